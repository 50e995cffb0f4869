package newsletter

import (
	"bytes"
	"fmt"
	"html"
)

const DefaultUnsubscribePlaceholder = "{{unsubscribe_url}}"

type RenderOptions struct {
	// Broadcast adds the unsubscribe footer.
	Broadcast bool
	// UnsubscribeURL is the provider placeholder substituted per contact.
	UnsubscribeURL string
}

type Renderer struct {
	title string
}

func NewRenderer(title string) *Renderer {
	if title == "" {
		title = "AI News Daily"
	}
	return &Renderer{title: title}
}

func (r *Renderer) Subject(date string) string {
	return fmt.Sprintf("🤖 %s - %s", r.title, date)
}

// CampaignName labels a broadcast in the provider dashboard.
func (r *Renderer) CampaignName(date string) string {
	return fmt.Sprintf("%s - %s", r.title, date)
}

// Welcome renders the email sent to new subscribers.
func (r *Renderer) Welcome(scheduleTime string) Document {
	var buf bytes.Buffer

	buf.WriteString("<!DOCTYPE html>\n<html>\n<head>\n  <meta charset=\"UTF-8\">\n</head>\n<body>\n")
	r.writeElement(&buf, "h1", "", fmt.Sprintf("Welcome to %s! 🎉", r.title), 2)
	r.writeElement(&buf, "p", "", "Thanks for subscribing! You'll receive your first newsletter tomorrow morning.", 2)
	r.writeElement(&buf, "h2", "", "What to expect:", 2)
	buf.WriteString("  <ul>\n")
	for _, line := range []string{
		"📰 Top 10 AI news stories every day",
		"🤖 Discovered and curated by AI agents",
		"✨ Clear summaries that explain why it matters",
	} {
		r.writeElement(&buf, "li", "", line, 4)
	}
	buf.WriteString("  </ul>\n")
	if scheduleTime != "" {
		r.writeElement(&buf, "p", "", fmt.Sprintf("Your newsletter will arrive at %s daily.", scheduleTime), 2)
	}
	r.writeElement(&buf, "p", "", "Don't want these emails? You can unsubscribe anytime from the link in any newsletter.", 2)
	buf.WriteString("</body>\n</html>\n")

	return Document{
		Subject: fmt.Sprintf("🤖 Welcome to %s!", r.title),
		HTML:    buf.String(),
	}
}

// Run renders items in input order. It never fails.
func (r *Renderer) Run(items CuratedBatch, date string, opts RenderOptions) Document {
	var buf bytes.Buffer

	buf.WriteString("<!DOCTYPE html>\n<html>\n<head>\n")
	buf.WriteString("  <meta charset=\"UTF-8\">\n")
	buf.WriteString("  <meta name=\"viewport\" content=\"width=device-width, initial-scale=1.0\">\n")
	buf.WriteString("  <title>" + html.EscapeString(r.Subject(date)) + "</title>\n")
	buf.WriteString("  <style>\n" + stylesheet + "  </style>\n")
	buf.WriteString("</head>\n<body>\n  <div class=\"container\">\n")

	buf.WriteString("    <div class=\"header\">\n")
	r.writeElement(&buf, "h1", "", r.title, 6)
	r.writeElement(&buf, "p", "date", date, 6)
	buf.WriteString("    </div>\n")

	for i, item := range items {
		r.writeItem(&buf, i+1, item)
	}

	buf.WriteString("    <div class=\"footer\">\n")
	r.writeElement(&buf, "p", "", "This newsletter was discovered and curated by AI agents.", 6)
	if opts.Broadcast {
		unsubscribe := opts.UnsubscribeURL
		if unsubscribe == "" {
			unsubscribe = DefaultUnsubscribePlaceholder
		}
		// The placeholder is substituted by the provider, so it is written verbatim.
		buf.WriteString(fmt.Sprintf("      <p class=\"unsubscribe\"><a href=\"%s\">Unsubscribe</a></p>\n", unsubscribe))
	}
	buf.WriteString("    </div>\n")

	buf.WriteString("  </div>\n</body>\n</html>\n")

	return Document{
		Subject: r.Subject(date),
		HTML:    buf.String(),
	}
}

func (r *Renderer) writeItem(buf *bytes.Buffer, number int, item CuratedItem) {
	link := html.EscapeString(item.URL)

	buf.WriteString("    <div class=\"article\">\n")
	buf.WriteString(fmt.Sprintf("      <div><span class=\"article-number\">%d</span></div>\n", number))
	buf.WriteString(fmt.Sprintf("      <h2 class=\"article-headline\"><a href=\"%s\" target=\"_blank\">%s</a></h2>\n",
		link, html.EscapeString(item.Headline)))
	r.writeElement(buf, "p", "article-summary", item.Summary, 6)
	buf.WriteString(fmt.Sprintf("      <a href=\"%s\" class=\"read-more\" target=\"_blank\">Read more &rarr;</a>\n", link))
	buf.WriteString("    </div>\n")
}

func (r *Renderer) writeElement(buf *bytes.Buffer, tag, class, content string, indent int) {
	for i := 0; i < indent; i++ {
		buf.WriteByte(' ')
	}
	if class != "" {
		buf.WriteString(fmt.Sprintf("<%s class=\"%s\">%s</%s>\n", tag, class, html.EscapeString(content), tag))
		return
	}
	buf.WriteString(fmt.Sprintf("<%s>%s</%s>\n", tag, html.EscapeString(content), tag))
}

const stylesheet = `    body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px; background-color: #f5f5f5; }
    .container { background-color: #ffffff; border-radius: 8px; padding: 30px; }
    .header { border-bottom: 3px solid #3b82f6; padding-bottom: 20px; margin-bottom: 30px; }
    h1 { color: #1f2937; margin: 0 0 10px 0; font-size: 28px; }
    .date { color: #6b7280; font-size: 14px; margin: 0; }
    .article { margin-bottom: 30px; padding-bottom: 30px; border-bottom: 1px solid #e5e7eb; }
    .article-number { display: inline-block; background-color: #3b82f6; color: white; width: 24px; height: 24px; border-radius: 50%; text-align: center; line-height: 24px; font-size: 14px; font-weight: bold; }
    .article-headline { font-size: 20px; font-weight: 600; margin: 10px 0; }
    .article-headline a { color: #1f2937; text-decoration: none; }
    .article-summary { color: #4b5563; margin: 10px 0; font-size: 15px; }
    .read-more { color: #3b82f6; text-decoration: none; font-weight: 500; font-size: 14px; }
    .footer { margin-top: 40px; padding-top: 20px; border-top: 1px solid #e5e7eb; text-align: center; color: #6b7280; font-size: 13px; }
`
