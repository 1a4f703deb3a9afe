package sources

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bluesky-social/indigo/api/bsky"
	"github.com/bluesky-social/indigo/xrpc"

	"hashwatch/internal/core"
)

// SessionRunner is satisfied by platforms.BlueskyPlatform.
type SessionRunner interface {
	Do(ctx context.Context, fn func(c *xrpc.Client) error) error
}

type BlueskyConfig struct {
	Name       string
	Session    SessionRunner
	MaxResults int
	Lang       string
	Logger     *slog.Logger
}

// BlueskySource searches posts through app.bsky.feed.searchPosts. Timestamps
// are epoch seconds of the post's createdAt.
type BlueskySource struct {
	name       string
	session    SessionRunner
	maxResults int64
	lang       string
	logger     *slog.Logger
}

func NewBlueskySource(cfg BlueskyConfig) *BlueskySource {
	if cfg.Name == "" {
		cfg.Name = "bluesky"
	}
	if cfg.MaxResults <= 0 || cfg.MaxResults > 100 {
		cfg.MaxResults = 100
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &BlueskySource{
		name:       cfg.Name,
		session:    cfg.Session,
		maxResults: int64(cfg.MaxResults),
		lang:       cfg.Lang,
		logger:     cfg.Logger,
	}
}

func (b *BlueskySource) Name() string {
	return b.name
}

func (b *BlueskySource) Domain() core.Domain {
	return core.DomainEpoch
}

func (b *BlueskySource) Initialize(ctx context.Context) error {
	if b.session == nil {
		return fmt.Errorf("bluesky source %s: no session configured", b.name)
	}
	b.logger.Info("Bluesky source initializing", "source", b.name, "max_results", b.maxResults)
	return nil
}

func (b *BlueskySource) Fetch(ctx context.Context, term string, since int64) (<-chan core.Item, <-chan error) {
	itemChan := make(chan core.Item)
	errChan := make(chan error, 1)

	go func() {
		defer close(itemChan)
		defer close(errChan)

		var sinceParam string
		if since > 0 {
			sinceParam = time.Unix(since, 0).UTC().Format(time.RFC3339)
		}

		var out *bsky.FeedSearchPosts_Output
		err := b.session.Do(ctx, func(c *xrpc.Client) error {
			var err error
			out, err = bsky.FeedSearchPosts(ctx, c, "", "", "", b.lang, b.maxResults, "", term, sinceParam, "latest", nil, "", "")
			return err
		})
		if err != nil {
			b.logger.Error("Bluesky source error searching", "source", b.name, "term", term, "error", err)
			errChan <- fmt.Errorf("failed to search posts for %q: %w", term, err)
			return
		}

		items := make([]core.Item, 0, len(out.Posts))
		for _, post := range out.Posts {
			item, err := postToItem(post)
			if err != nil {
				b.logger.Debug("Bluesky source skipping post", "source", b.name, "error", err)
				continue
			}
			items = append(items, item)
		}

		items = newerThan(items, since)
		b.logger.Debug("Bluesky source retrieved items", "source", b.name, "term", term, "fetched", len(out.Posts), "new", len(items))

		if err := emit(ctx, itemChan, items); err != nil {
			errChan <- err
		}
	}()

	return itemChan, errChan
}

func postToItem(post *bsky.FeedDefs_PostView) (core.Item, error) {
	if post == nil || post.Record == nil {
		return core.Item{}, fmt.Errorf("post has no record")
	}

	record, ok := post.Record.Val.(*bsky.FeedPost)
	if !ok {
		return core.Item{}, fmt.Errorf("post %s: unexpected record type %T", post.Uri, post.Record.Val)
	}

	created, err := parseBlueskyTime(record.CreatedAt)
	if err != nil {
		created, err = parseBlueskyTime(post.IndexedAt)
		if err != nil {
			return core.Item{}, fmt.Errorf("post %s: %w", post.Uri, err)
		}
	}

	author := ""
	if post.Author != nil {
		author = post.Author.Handle
		if post.Author.DisplayName != nil && *post.Author.DisplayName != "" {
			author = *post.Author.DisplayName
		}
	}

	return core.NewItem(author, created.Unix(), stripHTML(record.Text)), nil
}

func parseBlueskyTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	return t, nil
}

func (b *BlueskySource) Shutdown(ctx context.Context) error {
	b.logger.Debug("Bluesky source shutting down", "source", b.name)
	return nil
}
