package feed

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/lysyi3m/ai-newsletter/app/newsletter"
)

const maxBodySize = 5 << 20

// Fetcher downloads feed documents and article pages.
type Fetcher struct {
	httpClient *http.Client
	userAgent  string
}

func NewFetcher(httpClient *http.Client, userAgent string) *Fetcher {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	return &Fetcher{httpClient: httpClient, userAgent: userAgent}
}

func (f *Fetcher) FetchFeed(ctx context.Context, source *Source) ([]byte, error) {
	return f.fetch(ctx, source.URL, time.Duration(source.Settings.Timeout)*time.Second, "")
}

// FetchPage fetches an HTML page, rejecting other content types.
func (f *Fetcher) FetchPage(ctx context.Context, pageURL string, timeout time.Duration) ([]byte, error) {
	return f.fetch(ctx, pageURL, timeout, "text/html")
}

func (f *Fetcher) fetch(ctx context.Context, url string, timeout time.Duration, wantType string) ([]byte, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, newsletter.MarkNetwork(fmt.Errorf("failed to fetch %s: %w", url, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP error: %d %s", resp.StatusCode, resp.Status)
	}

	if wantType != "" {
		contentType := resp.Header.Get("Content-Type")
		if !strings.Contains(strings.ToLower(contentType), wantType) {
			return nil, fmt.Errorf("content type is not %s: %s", wantType, contentType)
		}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, newsletter.MarkNetwork(fmt.Errorf("failed to read response body: %w", err))
	}

	return data, nil
}
