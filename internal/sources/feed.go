package sources

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"hashwatch/internal/core"
)

type FeedConfig struct {
	Name string
	// URLTemplate holds one %s, replaced by the query-escaped term.
	URLTemplate string
	MaxItems    int
	Timeout     time.Duration
	Logger      *slog.Logger
}

// FeedSource reads an RSS or Atom search feed, such as a Nitter-style
// /search/rss?q=%s endpoint. Timestamps are epoch seconds.
type FeedSource struct {
	name        string
	urlTemplate string
	maxItems    int
	parser      *gofeed.Parser
	logger      *slog.Logger
}

func NewFeedSource(cfg FeedConfig) (*FeedSource, error) {
	if strings.Count(cfg.URLTemplate, "%s") != 1 {
		return nil, fmt.Errorf("feed source: url template must contain exactly one %%s, got %q", cfg.URLTemplate)
	}
	if cfg.Name == "" {
		cfg.Name = "feed"
	}
	if cfg.MaxItems <= 0 {
		cfg.MaxItems = 50
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	parser := gofeed.NewParser()
	parser.Client = newHTTPClient(cfg.Timeout)
	parser.UserAgent = userAgent

	return &FeedSource{
		name:        cfg.Name,
		urlTemplate: cfg.URLTemplate,
		maxItems:    cfg.MaxItems,
		parser:      parser,
		logger:      cfg.Logger,
	}, nil
}

func (f *FeedSource) Name() string {
	return f.name
}

func (f *FeedSource) Domain() core.Domain {
	return core.DomainEpoch
}

func (f *FeedSource) Initialize(ctx context.Context) error {
	f.logger.Info("Feed source initializing", "source", f.name, "url_template", f.urlTemplate, "max_items", f.maxItems)
	return nil
}

func (f *FeedSource) Fetch(ctx context.Context, term string, since int64) (<-chan core.Item, <-chan error) {
	itemChan := make(chan core.Item)
	errChan := make(chan error, 1)

	go func() {
		defer close(itemChan)
		defer close(errChan)

		feedURL := fmt.Sprintf(f.urlTemplate, url.QueryEscape(term))
		feed, err := f.parser.ParseURLWithContext(feedURL, ctx)
		if err != nil {
			f.logger.Error("Feed source error fetching feed", "source", f.name, "term", term, "error", err)
			errChan <- fmt.Errorf("failed to parse feed: %w", err)
			return
		}

		limit := min(f.maxItems, len(feed.Items))
		items := make([]core.Item, 0, limit)
		for _, entry := range feed.Items[:limit] {
			item, ok := entryToItem(entry)
			if !ok {
				continue
			}
			items = append(items, item)
		}

		items = newerThan(items, since)
		f.logger.Debug("Feed source retrieved items", "source", f.name, "term", term, "fetched", len(feed.Items), "new", len(items))

		if err := emit(ctx, itemChan, items); err != nil {
			errChan <- err
		}
	}()

	return itemChan, errChan
}

// entryToItem maps a feed entry. Entries without a publish or update time
// cannot be ordered against the watermark and are dropped.
func entryToItem(entry *gofeed.Item) (core.Item, bool) {
	var published *time.Time
	switch {
	case entry.PublishedParsed != nil:
		published = entry.PublishedParsed
	case entry.UpdatedParsed != nil:
		published = entry.UpdatedParsed
	default:
		return core.Item{}, false
	}

	author := ""
	if entry.Author != nil {
		author = entry.Author.Name
		if author == "" {
			author = entry.Author.Email
		}
	}
	if author == "" && len(entry.Authors) > 0 && entry.Authors[0] != nil {
		author = entry.Authors[0].Name
	}

	body := entry.Description
	if body == "" {
		body = entry.Content
	}
	if body == "" {
		body = entry.Title
	}

	return core.NewItem(author, published.Unix(), stripHTML(body)), true
}

func (f *FeedSource) Shutdown(ctx context.Context) error {
	f.logger.Debug("Feed source shutting down", "source", f.name)
	return nil
}
