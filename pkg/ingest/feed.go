package ingest

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/mmcdole/gofeed"
)

// FeedItem is a normalized entry from any feed source.
type FeedItem struct {
	Title       string
	Link        string
	Summary     string
	SourceName  string
	PublishedAt time.Time
}

// FeedClient fetches headline search feeds and fixed-URL source feeds.
type FeedClient struct {
	client    *http.Client
	parser    *gofeed.Parser
	searchURL string
	userAgent string
}

// NewFeedClient creates a feed client. searchURL is the base of the
// headline query feed (RSS search endpoint).
func NewFeedClient(searchURL string, timeout time.Duration) *FeedClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &FeedClient{
		client:    &http.Client{Timeout: timeout},
		parser:    gofeed.NewParser(),
		searchURL: searchURL,
		userAgent: "newspulse/1.0",
	}
}

// SearchHeadlines queries the headline feed. The when:1d hint restricts
// results to the last day on providers that understand it.
func (f *FeedClient) SearchHeadlines(ctx context.Context, query string) ([]FeedItem, error) {
	u := f.searchURL + "?q=" + url.QueryEscape(query+" when:1d")
	items, err := f.fetch(ctx, u, "")
	if err != nil {
		return nil, fmt.Errorf("search headlines: %w", err)
	}
	return items, nil
}

// FetchSource fetches a fixed RSS/Atom endpoint directly.
func (f *FeedClient) FetchSource(ctx context.Context, name, feedURL string) ([]FeedItem, error) {
	items, err := f.fetch(ctx, feedURL, name)
	if err != nil {
		return nil, fmt.Errorf("fetch source %s: %w", name, err)
	}
	return items, nil
}

func (f *FeedClient) fetch(ctx context.Context, feedURL, sourceName string) ([]FeedItem, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feed status %d", resp.StatusCode)
	}

	parsed, err := f.parser.Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}

	var items []FeedItem
	for _, entry := range parsed.Items {
		published := time.Now().UTC()
		if entry.PublishedParsed != nil {
			published = entry.PublishedParsed.UTC()
		} else if entry.UpdatedParsed != nil {
			published = entry.UpdatedParsed.UTC()
		}

		link := entry.Link
		if link == "" && len(entry.Links) > 0 {
			link = entry.Links[0]
		}
		if link == "" {
			continue
		}

		name := sourceName
		if name == "" && parsed.Title != "" {
			name = parsed.Title
		}

		items = append(items, FeedItem{
			Title:       entry.Title,
			Link:        link,
			Summary:     truncate(entry.Description, 500),
			SourceName:  name,
			PublishedAt: published,
		})
	}
	return items, nil
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
