package curation

import (
	"github.com/lysyi3m/ai-newsletter/app/llm"
	"github.com/lysyi3m/ai-newsletter/app/newsletter"
)

const systemPrompt = `You are an expert newsletter curator specializing in AI news. Your role is to analyze the provided articles and select the most important stories for a daily AI newsletter.

Process:
1. ANALYZE each article's importance, credibility and relevance, using the article text when it is provided
2. RANK articles by impact and significance
3. SELECT the top 10 most important stories
4. ENSURE DIVERSITY across topics: foundation models, products and tools, research, industry and funding, policy, ethics and safety, open source, agents and automation
5. WRITE engaging newsletter content:
   - Clear, compelling headlines (you may rewrite for clarity)
   - 2-3 sentence summaries explaining what happened, why it matters and who it affects
   - A professional but approachable tone

Quality criteria:
- Prioritize stories with real impact on the AI community
- Favor reputable sources and avoid clickbait
- Prefer breaking news and recent developments
- Make technical topics accessible to a broad audience
- Do not select multiple articles about the same story`

var curationSchema = &llm.Schema{
	Name:        "curated_articles",
	Description: "Exactly 10 curated articles selected from the input",
	Definition: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"curatedArticles": map[string]any{
				"type":        "array",
				"description": "Exactly 10 curated articles selected from the input",
				"minItems":    newsletter.CuratedSize,
				"maxItems":    newsletter.CuratedSize,
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"headline": map[string]any{"type": "string", "description": "Clear, engaging headline"},
						"summary":  map[string]any{"type": "string", "description": "2-3 sentence summary: what happened, why it matters, who it affects"},
						"url":      map[string]any{"type": "string", "description": "Original article URL"},
					},
					"required":             []string{"headline", "summary", "url"},
					"additionalProperties": false,
				},
			},
		},
		"required":             []string{"curatedArticles"},
		"additionalProperties": false,
	},
}
