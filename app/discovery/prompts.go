package discovery

import (
	"github.com/lysyi3m/ai-newsletter/app/llm"
	"github.com/lysyi3m/ai-newsletter/app/newsletter"
)

const basePrompt = `You are an expert AI news discovery agent. Your role is to identify the most relevant and recent AI news articles.

Focus areas:
- LLMs and foundation models (GPT, Claude, Gemini, Llama, etc.)
- AI research breakthroughs and papers
- AI product launches and updates
- AI policy and regulation
- AI startups and funding announcements
- Open source AI projects
- AI ethics and safety developments
- AI agents and automation tools

Quality criteria:
- Prioritize articles from the last 24-48 hours
- Favor credible sources (major tech sites, research institutions, official company blogs)
- Ensure diversity of topics and sources
- Never list the same story twice
- Minimum 15 articles, maximum 20
- Each article must have a full, working URL`

const webSearchPrompt = `

Use web search to find current news in addition to any candidates provided. Do not rely on your training data.`

const candidatesPrompt = `

Select only from the candidate articles provided. Never invent articles or URLs.`

func systemPrompt(webSearch bool) string {
	if webSearch {
		return basePrompt + webSearchPrompt
	}
	return basePrompt + candidatesPrompt
}

var discoverySchema = &llm.Schema{
	Name:        "discovered_articles",
	Description: "Recent AI news articles",
	Definition: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"articles": map[string]any{
				"type":        "array",
				"description": "Array of 15-20 recent AI news articles",
				"minItems":    newsletter.MinDiscovered,
				"maxItems":    newsletter.MaxDiscovered,
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"title":   map[string]any{"type": "string", "description": "Clear, descriptive headline"},
						"url":     map[string]any{"type": "string", "description": "Full URL to the article"},
						"source":  map[string]any{"type": "string", "description": "Source website name"},
						"snippet": map[string]any{"type": "string", "description": "Brief description or excerpt (1-2 sentences)"},
					},
					"required":             []string{"title", "url", "source", "snippet"},
					"additionalProperties": false,
				},
			},
		},
		"required":             []string{"articles"},
		"additionalProperties": false,
	},
}
