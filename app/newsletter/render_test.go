package newsletter

import (
	"fmt"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parseDocument(t *testing.T, doc Document) *goquery.Document {
	t.Helper()
	dom, err := goquery.NewDocumentFromReader(strings.NewReader(doc.HTML))
	require.NoError(t, err)
	return dom
}

func TestRenderer_Run_OneBlockPerItemInOrder(t *testing.T) {
	renderer := NewRenderer("AI News Daily")
	items := curated(10)

	doc := renderer.Run(items, "Friday, October 16, 2026", RenderOptions{})
	dom := parseDocument(t, doc)

	blocks := dom.Find("div.article")
	require.Equal(t, 10, blocks.Length())

	blocks.Each(func(i int, block *goquery.Selection) {
		assert.Equal(t, fmt.Sprintf("%d", i+1), block.Find(".article-number").Text())

		headline := block.Find(".article-headline a")
		assert.Equal(t, items[i].Headline, headline.Text())
		href, _ := headline.Attr("href")
		assert.Equal(t, items[i].URL, href)

		assert.Equal(t, items[i].Summary, block.Find(".article-summary").Text())

		readMore, _ := block.Find("a.read-more").Attr("href")
		assert.Equal(t, items[i].URL, readMore)
	})

	assert.Equal(t, "AI News Daily", dom.Find(".header h1").Text())
	assert.Equal(t, "Friday, October 16, 2026", dom.Find(".header .date").Text())
	assert.Equal(t, "🤖 AI News Daily - Friday, October 16, 2026", doc.Subject)
}

func TestRenderer_Run_Deterministic(t *testing.T) {
	renderer := NewRenderer("AI News Daily")
	items := curated(10)

	first := renderer.Run(items, "Friday, October 16, 2026", RenderOptions{Broadcast: true})
	second := renderer.Run(items, "Friday, October 16, 2026", RenderOptions{Broadcast: true})

	assert.Equal(t, first, second)
}

func TestRenderer_Run_PreservesInputOrder(t *testing.T) {
	renderer := NewRenderer("")
	items := curated(10)
	items[0], items[9] = items[9], items[0]

	dom := parseDocument(t, renderer.Run(items, "today", RenderOptions{}))

	assert.Equal(t, "Headline 10", dom.Find("div.article").First().Find(".article-headline a").Text())
	assert.Equal(t, "Headline 1", dom.Find("div.article").Last().Find(".article-headline a").Text())
}

func TestRenderer_Run_UnsubscribeFooterOnlyForBroadcast(t *testing.T) {
	renderer := NewRenderer("AI News Daily")

	single := renderer.Run(curated(10), "today", RenderOptions{})
	assert.Equal(t, 0, strings.Count(single.HTML, DefaultUnsubscribePlaceholder))

	broadcast := renderer.Run(curated(10), "today", RenderOptions{Broadcast: true})
	assert.Equal(t, 1, strings.Count(broadcast.HTML, DefaultUnsubscribePlaceholder))

	custom := renderer.Run(curated(10), "today", RenderOptions{Broadcast: true, UnsubscribeURL: "{{{RESEND_UNSUBSCRIBE_URL}}}"})
	assert.Equal(t, 1, strings.Count(custom.HTML, "{{{RESEND_UNSUBSCRIBE_URL}}}"))
	assert.NotContains(t, custom.HTML, DefaultUnsubscribePlaceholder)
}

func TestRenderer_Run_EscapesContent(t *testing.T) {
	renderer := NewRenderer("AI News Daily")
	items := curated(10)
	items[2].Headline = `<script>alert("x")</script>`
	items[2].URL = `https://example.com/?a=1&b="2"`

	doc := renderer.Run(items, "today", RenderOptions{})

	assert.NotContains(t, doc.HTML, "<script>")
	assert.Contains(t, doc.HTML, "&lt;script&gt;")

	dom := parseDocument(t, doc)
	href, _ := dom.Find("div.article").Eq(2).Find(".article-headline a").Attr("href")
	assert.Equal(t, items[2].URL, href)
}

func TestRendererCampaignName(t *testing.T) {
	r := NewRenderer("")
	assert.Equal(t, "AI News Daily - Friday, October 16, 2026", r.CampaignName("Friday, October 16, 2026"))
	assert.Equal(t, "🤖 Weekly AI - x", NewRenderer("Weekly AI").Subject("x"))
}

func TestRendererWelcome(t *testing.T) {
	doc := NewRenderer("AI <News>").Welcome("08:00 UTC")

	assert.Equal(t, "🤖 Welcome to AI <News>!", doc.Subject)
	assert.Contains(t, doc.HTML, "Welcome to AI &lt;News&gt;! 🎉")
	assert.Contains(t, doc.HTML, "Your newsletter will arrive at 08:00 UTC daily.")
	assert.NotContains(t, NewRenderer("").Welcome("").HTML, "will arrive at")
}
