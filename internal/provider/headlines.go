package provider

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/mmcdole/gofeed"
)

// Headlines shows the newest item title of an RSS or Atom feed.
type Headlines struct {
	desc    Descriptor
	client  *Client
	feedURL string
	parser  *gofeed.Parser
}

func NewHeadlines(desc Descriptor, client *Client, feedURL string) *Headlines {
	return &Headlines{
		desc:    desc,
		client:  client,
		feedURL: feedURL,
		parser:  gofeed.NewParser(),
	}
}

func (h *Headlines) Descriptor() Descriptor { return h.desc }

// Fetch treats a non-empty key as the feed URL.
func (h *Headlines) Fetch(ctx context.Context, key string) (string, error) {
	feedURL := h.feedURL
	if key != "" {
		feedURL = key
	}
	if feedURL == "" {
		return "", NewFetchError(h.desc.ID, KindMissingField, errors.New("feed url is required"))
	}

	headers := map[string]string{
		"Accept": "application/rss+xml, application/atom+xml, application/xml, text/xml",
	}
	body, err := h.client.Get(ctx, h.desc.ID, feedURL, headers)
	if err != nil {
		return "", err
	}

	feed, err := h.parser.Parse(bytes.NewReader(body))
	if err != nil {
		return "", NewFetchError(h.desc.ID, KindMalformed, fmt.Errorf("parsing feed: %w", err))
	}

	for _, item := range newestFirst(feed.Items) {
		if title := strings.Join(strings.Fields(item.Title), " "); title != "" {
			return title, nil
		}
	}
	return "", NewFetchError(h.desc.ID, KindMissingField, errors.New("feed has no titled items"))
}

func newestFirst(items []*gofeed.Item) []*gofeed.Item {
	out := append([]*gofeed.Item(nil), items...)
	sort.SliceStable(out, func(i, j int) bool {
		return newer(out[i], out[j])
	})
	return out
}

func newer(a, b *gofeed.Item) bool {
	if a.PublishedParsed == nil || b.PublishedParsed == nil {
		return false
	}
	return a.PublishedParsed.After(*b.PublishedParsed)
}
