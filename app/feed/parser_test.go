package feed

import (
	"testing"
)

const rssFixture = `<?xml version="1.0"?>
<rss version="2.0">
  <channel>
    <title>Test Feed</title>
    <link>https://example.com</link>
    <description>Test Description</description>
    <language>en-us</language>
    <item>
      <title>OpenAI ships a new model</title>
      <link>https://example.com/item1</link>
      <description>&lt;p&gt;The &lt;b&gt;model&lt;/b&gt; is faster.&lt;/p&gt;</description>
      <guid>item-1</guid>
      <pubDate>Mon, 03 Jul 2023 10:00:00 GMT</pubDate>
      <author>test@example.com (Test Author)</author>
      <category>AI</category>
      <category>Models</category>
    </item>
    <item>
      <title>Item without link</title>
      <description>Cannot be cited</description>
    </item>
    <item>
      <title>Robotics funding round</title>
      <link>https://example.com/item2</link>
      <description>Plain description</description>
      <pubDate>Mon, 03 Jul 2023 11:00:00 GMT</pubDate>
    </item>
  </channel>
</rss>`

func TestParseRSS2(t *testing.T) {
	parser := NewParser()
	metadata, items, err := parser.Run([]byte(rssFixture), "Example")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if metadata.Title != "Test Feed" {
		t.Errorf("Expected title 'Test Feed', got: %s", metadata.Title)
	}
	if metadata.Language != "en-us" {
		t.Errorf("Expected language 'en-us', got: %s", metadata.Language)
	}

	if len(items) != 2 {
		t.Fatalf("Expected 2 items with links, got: %d", len(items))
	}

	first := items[0]
	if first.Title != "OpenAI ships a new model" {
		t.Errorf("Unexpected title: %s", first.Title)
	}
	if first.Source != "Example" {
		t.Errorf("Expected source 'Example', got: %s", first.Source)
	}
	if first.Description != "The model is faster." {
		t.Errorf("Expected markup to be stripped, got: %q", first.Description)
	}
	if first.GUID != "item-1" {
		t.Errorf("Expected GUID 'item-1', got: %s", first.GUID)
	}
	if first.PublishedAt.IsZero() {
		t.Error("Expected published date to be parsed")
	}
	if len(first.Categories) != 2 {
		t.Errorf("Expected 2 categories, got: %d", len(first.Categories))
	}
	if len(first.Authors) != 1 {
		t.Errorf("Expected 1 author, got: %d", len(first.Authors))
	}
	if first.ContentHash == "" {
		t.Error("Expected content hash to be set")
	}

	second := items[1]
	if second.GUID != "https://example.com/item2" {
		t.Errorf("Expected GUID to fall back to link, got: %s", second.GUID)
	}
	if second.Description != "Plain description" {
		t.Errorf("Unexpected description: %q", second.Description)
	}
}

func TestParseAtom(t *testing.T) {
	atomData := `<?xml version="1.0" encoding="utf-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <title>Atom Feed</title>
  <link href="https://example.org/"/>
  <updated>2023-07-03T12:00:00Z</updated>
  <entry>
    <title>Atom Entry</title>
    <link href="https://example.org/entry"/>
    <id>urn:uuid:1</id>
    <updated>2023-07-03T12:00:00Z</updated>
    <summary>Entry summary</summary>
    <author><name>Jane</name></author>
  </entry>
</feed>`

	_, items, err := NewParser().Run([]byte(atomData), "Atom")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if len(items) != 1 {
		t.Fatalf("Expected 1 item, got: %d", len(items))
	}
	if items[0].Link != "https://example.org/entry" {
		t.Errorf("Unexpected link: %s", items[0].Link)
	}
	if items[0].PublishedAt.IsZero() {
		t.Error("Expected updated date to be used as published date")
	}
	if len(items[0].Authors) != 1 || items[0].Authors[0] != "Jane" {
		t.Errorf("Unexpected authors: %v", items[0].Authors)
	}
}

func TestParseInvalid(t *testing.T) {
	if _, _, err := NewParser().Run([]byte("not a feed"), "x"); err == nil {
		t.Error("Expected error for invalid feed")
	}
}

func TestContentHashStable(t *testing.T) {
	_, a, err := NewParser().Run([]byte(rssFixture), "A")
	if err != nil {
		t.Fatal(err)
	}
	_, b, err := NewParser().Run([]byte(rssFixture), "B")
	if err != nil {
		t.Fatal(err)
	}

	if a[0].ContentHash != b[0].ContentHash {
		t.Error("Expected content hash to depend only on title and link")
	}
	if a[0].ContentHash == a[1].ContentHash {
		t.Error("Expected different items to hash differently")
	}
}
