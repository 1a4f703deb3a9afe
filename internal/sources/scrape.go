package sources

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"hashwatch/internal/core"
)

const (
	defaultScrapeURL  = "https://mobile.twitter.com/search"
	tweetAnchorPrefix = "tweet_"
)

type SearchMode string

const (
	SearchExact     SearchMode = "sprv"
	SearchNonStrict SearchMode = "typd"
)

func ParseSearchMode(s string) (SearchMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "sprv", "exact":
		return SearchExact, nil
	case "typd", "non_strict":
		return SearchNonStrict, nil
	default:
		return "", fmt.Errorf("invalid search mode: %s (must be 'sprv' or 'typd')", s)
	}
}

type ScrapeConfig struct {
	Name    string
	URL     string
	Mode    SearchMode
	Timeout time.Duration
	Logger  *slog.Logger
}

// ScrapeSource reads the rendered mobile search page. Its timestamps are the
// platform's numeric status ids, not epoch seconds.
type ScrapeSource struct {
	name    string
	baseURL string
	mode    SearchMode
	client  *http.Client
	logger  *slog.Logger
}

func NewScrapeSource(cfg ScrapeConfig) *ScrapeSource {
	if cfg.Name == "" {
		cfg.Name = "scrape"
	}
	if cfg.URL == "" {
		cfg.URL = defaultScrapeURL
	}
	if cfg.Mode == "" {
		cfg.Mode = SearchExact
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &ScrapeSource{
		name:    cfg.Name,
		baseURL: cfg.URL,
		mode:    cfg.Mode,
		client:  newHTTPClient(cfg.Timeout),
		logger:  cfg.Logger,
	}
}

func (s *ScrapeSource) Name() string {
	return s.name
}

func (s *ScrapeSource) Domain() core.Domain {
	return core.DomainPlatformID
}

func (s *ScrapeSource) Initialize(ctx context.Context) error {
	s.logger.Info("Scrape source initializing", "source", s.name, "url", s.baseURL, "mode", s.mode)
	return nil
}

func (s *ScrapeSource) Fetch(ctx context.Context, term string, since int64) (<-chan core.Item, <-chan error) {
	itemChan := make(chan core.Item)
	errChan := make(chan error, 1)

	go func() {
		defer close(itemChan)
		defer close(errChan)

		page, err := s.fetchPage(ctx, term)
		if err != nil {
			s.logger.Error("Scrape source error fetching page", "source", s.name, "term", term, "error", err)
			errChan <- err
			return
		}

		items, err := s.parse(page, strconv.FormatInt(since, 10))
		if err != nil {
			errChan <- err
			return
		}

		s.logger.Debug("Scrape source retrieved items", "source", s.name, "term", term, "new", len(items))

		if err := emit(ctx, itemChan, items); err != nil {
			errChan <- err
		}
	}()

	return itemChan, errChan
}

func (s *ScrapeSource) fetchPage(ctx context.Context, term string) (string, error) {
	params := url.Values{}
	params.Set("q", term)
	params.Set("s", string(s.mode))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch search page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("failed to fetch search page: %s", resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read search page: %w", err)
	}
	return string(body), nil
}

// parse extracts every result whose status id is greater than since.
func (s *ScrapeSource) parse(page, since string) ([]core.Item, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(stripXMLDeclaration(page)))
	if err != nil {
		return nil, fmt.Errorf("failed to parse search page: %w", err)
	}

	items := make([]core.Item, 0)
	doc.Find(".tweet").Each(func(i int, sel *goquery.Selection) {
		anchor, ok := sel.Find(".timestamp a").Attr("name")
		if !ok || !strings.HasPrefix(anchor, tweetAnchorPrefix) {
			return
		}

		id := strings.TrimPrefix(anchor, tweetAnchorPrefix)
		if !NumericGreater(id, since) {
			return
		}

		timestamp, err := strconv.ParseInt(id, 10, 64)
		if err != nil {
			s.logger.Warn("Scrape source skipping result", "source", s.name, "id", id, "error", err)
			return
		}

		author := strings.TrimSpace(sel.Find(".username").Text())
		text := stripHTML(sel.Find(".tweet-text .dir-ltr").Text())
		items = append(items, core.NewItem(author, timestamp, text))
	})

	return items, nil
}

func stripXMLDeclaration(page string) string {
	trimmed := strings.TrimLeft(page, " \t\r\n\ufeff")
	if !strings.HasPrefix(trimmed, "<?xml") {
		return page
	}
	if end := strings.Index(trimmed, "?>"); end >= 0 {
		return trimmed[end+2:]
	}
	return page
}

func (s *ScrapeSource) Shutdown(ctx context.Context) error {
	s.logger.Debug("Scrape source shutting down", "source", s.name)
	s.client.CloseIdleConnections()
	return nil
}
