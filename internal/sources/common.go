package sources

import (
	"context"
	"html"
	"net/http"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"

	"hashwatch/internal/core"
	"hashwatch/internal/utils"
)

const userAgent = "Mozilla/5.0 (X11; Linux x86_64; rv:128.0) Gecko/20100101 Firefox/128.0"

var htmlStripper = bluemonday.StrictPolicy()

// stripHTML removes tags and decodes entities.
func stripHTML(s string) string {
	s = htmlStripper.Sanitize(s)
	s = html.UnescapeString(s)
	return strings.TrimSpace(s)
}

// newerThan keeps items whose timestamp is strictly greater than since.
func newerThan(items []core.Item, since int64) []core.Item {
	return utils.FilterArray(items, func(item core.Item) bool {
		return item.Timestamp > since
	})
}

// emit sends items in order and stops early when ctx ends.
func emit(ctx context.Context, itemChan chan<- core.Item, items []core.Item) error {
	for _, item := range items {
		select {
		case itemChan <- item:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &http.Client{Timeout: timeout}
}
