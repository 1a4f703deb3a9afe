package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/dghubble/oauth1"

	"hashwatch/internal/core"
)

const defaultAPIBaseURL = "https://api.twitter.com/1.1"

type APIConfig struct {
	Name           string
	BaseURL        string
	ConsumerKey    string
	ConsumerSecret string
	AccessToken    string
	AccessSecret   string
	MaxResults     int
	Timeout        time.Duration
	Logger         *slog.Logger
}

// APISource queries the v1.1 search endpoint with OAuth1 signed requests.
// Timestamps are epoch seconds taken from created_at.
type APISource struct {
	name       string
	baseURL    string
	oauth      *oauth1.Config
	token      *oauth1.Token
	maxResults int
	timeout    time.Duration
	client     *http.Client
	logger     *slog.Logger
}

func NewAPISource(cfg APIConfig) *APISource {
	if cfg.Name == "" {
		cfg.Name = "api"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultAPIBaseURL
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = 100
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &APISource{
		name:       cfg.Name,
		baseURL:    cfg.BaseURL,
		oauth:      oauth1.NewConfig(cfg.ConsumerKey, cfg.ConsumerSecret),
		token:      oauth1.NewToken(cfg.AccessToken, cfg.AccessSecret),
		maxResults: cfg.MaxResults,
		timeout:    cfg.Timeout,
		logger:     cfg.Logger,
	}
}

func (a *APISource) Name() string {
	return a.name
}

func (a *APISource) Domain() core.Domain {
	return core.DomainEpoch
}

func (a *APISource) Initialize(ctx context.Context) error {
	base := newHTTPClient(a.timeout)
	a.client = a.oauth.Client(context.WithValue(context.Background(), oauth1.HTTPClient, base), a.token)
	a.logger.Info("API source initializing", "source", a.name, "base_url", a.baseURL, "max_results", a.maxResults)
	return nil
}

type searchResponse struct {
	Statuses []status `json:"statuses"`
}

type status struct {
	CreatedAt string `json:"created_at"`
	FullText  string `json:"full_text"`
	Text      string `json:"text"`
	User      struct {
		Name       string `json:"name"`
		ScreenName string `json:"screen_name"`
	} `json:"user"`
}

func (a *APISource) Fetch(ctx context.Context, term string, since int64) (<-chan core.Item, <-chan error) {
	itemChan := make(chan core.Item)
	errChan := make(chan error, 1)

	go func() {
		defer close(itemChan)
		defer close(errChan)

		statuses, err := a.search(ctx, term)
		if err != nil {
			a.logger.Error("API source error searching", "source", a.name, "term", term, "error", err)
			errChan <- err
			return
		}

		items := make([]core.Item, 0, len(statuses))
		for _, st := range statuses {
			item, err := statusToItem(st)
			if err != nil {
				a.logger.Warn("API source skipping status", "source", a.name, "term", term, "error", err)
				continue
			}
			items = append(items, item)
		}

		items = newerThan(items, since)
		a.logger.Debug("API source retrieved items", "source", a.name, "term", term, "fetched", len(statuses), "new", len(items))

		if err := emit(ctx, itemChan, items); err != nil {
			errChan <- err
		}
	}()

	return itemChan, errChan
}

func (a *APISource) search(ctx context.Context, term string) ([]status, error) {
	if a.client == nil {
		return nil, fmt.Errorf("api source %s not initialized", a.name)
	}

	params := url.Values{}
	params.Set("q", term)
	params.Set("count", strconv.Itoa(a.maxResults))
	params.Set("result_type", "recent")
	params.Set("tweet_mode", "extended")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/search/tweets.json?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to search %q: %w", term, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search %q returned status %d", term, resp.StatusCode)
	}

	var result searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}

	return result.Statuses, nil
}

func statusToItem(st status) (core.Item, error) {
	created, err := time.Parse(time.RubyDate, st.CreatedAt)
	if err != nil {
		return core.Item{}, fmt.Errorf("invalid created_at %q: %w", st.CreatedAt, err)
	}

	body := st.FullText
	if body == "" {
		body = st.Text
	}

	author := st.User.Name
	if author == "" {
		author = st.User.ScreenName
	}

	return core.NewItem(author, created.Unix(), stripHTML(body)), nil
}

func (a *APISource) Shutdown(ctx context.Context) error {
	a.logger.Debug("API source shutting down", "source", a.name)
	if a.client != nil {
		a.client.CloseIdleConnections()
	}
	return nil
}
