package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/feeds"

	"hashwatch/internal/cache"
	"hashwatch/internal/core"
	"hashwatch/internal/storage"
	"hashwatch/internal/utils"
)

type Config struct {
	Port     string
	MaxItems int
	CacheTTL time.Duration
	Title    string
	Logger   *slog.Logger
}

// Server publishes the stored items of each watched term as RSS, Atom and
// JSON feeds. Rendered documents are cached until the TTL expires or a cycle
// stores new items for the term.
type Server struct {
	name     string
	config   Config
	reader   storage.Reader
	cache    *cache.Cache[CacheKey, string]
	server   *http.Server
	listener net.Listener
	logger   *slog.Logger

	// generations counts invalidations per term. A render started before
	// an invalidation must not be cached.
	genMu       sync.Mutex
	generations map[string]uint64
}

var _ core.Notifier = (*Server)(nil)

func New(name string, config Config, reader storage.Reader) *Server {
	if config.Port == "" {
		config.Port = "8080"
	}
	if config.MaxItems <= 0 {
		config.MaxItems = 50
	}
	if config.CacheTTL <= 0 {
		config.CacheTTL = time.Minute
	}
	if config.Title == "" {
		config.Title = "hashwatch"
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	return &Server{
		name:   name,
		config: config,
		reader: reader,
		cache:  newCache(cache.CacheConfig{TTL: config.CacheTTL, Logger: config.Logger}),
		logger: config.Logger,

		generations: make(map[string]uint64),
	}
}

func (s *Server) Name() string {
	return s.name
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/feed.rss", s.handleFeed(TypeRSS))
	mux.HandleFunc("/feed.atom", s.handleFeed(TypeAtom))
	mux.HandleFunc("/feed.json", s.handleFeed(TypeJSON))
	mux.HandleFunc("/terms", s.handleTerms)
	mux.HandleFunc("/health", s.handleHealth)
	return mux
}

func (s *Server) Start(ctx context.Context) error {
	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", ":"+s.config.Port)
	if err != nil {
		return fmt.Errorf("feed server %s: failed to listen on port %s: %w", s.name, s.config.Port, err)
	}

	s.listener = listener
	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("Feed server error", "server", s.name, "error", err)
		}
	}()

	s.logger.Info("Feed server listening", "server", s.name, "addr", listener.Addr().String())
	return nil
}

// Addr is the bound listener address, empty before Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *Server) Shutdown(ctx context.Context) error {
	defer s.cache.Close()
	if s.server == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("Feed server shutdown error", "server", s.name, "error", err)
		return fmt.Errorf("feed server %s: shutdown: %w", s.name, err)
	}
	return nil
}

// Notify drops the cached documents of term after a cycle stored items for it.
func (s *Server) Notify(ctx context.Context, term string, items []core.Item) error {
	s.genMu.Lock()
	defer s.genMu.Unlock()
	s.generations[term]++
	s.cache.InvalidatePrefix(termPrefix(term))
	return nil
}

func (s *Server) generation(term string) uint64 {
	s.genMu.Lock()
	defer s.genMu.Unlock()
	return s.generations[term]
}

// cacheIfCurrent stores body unless term was invalidated after gen was read.
func (s *Server) cacheIfCurrent(key CacheKey, gen uint64, body string) {
	s.genMu.Lock()
	defer s.genMu.Unlock()
	if s.generations[key.Term] != gen {
		return
	}
	s.cache.Set(key, body)
}

func (s *Server) handleFeed(feedType string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		term := r.URL.Query().Get("term")
		if term == "" {
			http.Error(w, "missing term parameter", http.StatusBadRequest)
			return
		}

		key := CacheKey{Term: term, Type: feedType}
		if body, ok := s.cache.Get(key); ok {
			s.write(w, feedType, body)
			return
		}

		gen := s.generation(term)
		items, ok := s.reader.RecentItems(r.Context(), term, s.config.MaxItems)
		if !ok {
			s.logger.Error("Feed server failed to list items", "server", s.name, "term", term)
			http.Error(w, "failed to read items", http.StatusInternalServerError)
			return
		}

		body, err := render(s.buildFeed(term, items), feedType)
		if err != nil {
			s.logger.Error("Feed server failed to render feed", "server", s.name, "term", term, "type", feedType, "error", err)
			http.Error(w, "failed to render feed", http.StatusInternalServerError)
			return
		}

		s.cacheIfCurrent(key, gen, body)
		s.write(w, feedType, body)
	}
}

func (s *Server) write(w http.ResponseWriter, feedType, body string) {
	switch feedType {
	case TypeRSS:
		w.Header().Set("Content-Type", "application/rss+xml; charset=utf-8")
	case TypeAtom:
		w.Header().Set("Content-Type", "application/atom+xml; charset=utf-8")
	case TypeJSON:
		w.Header().Set("Content-Type", "application/feed+json; charset=utf-8")
	}
	w.Header().Set("Cache-Control", fmt.Sprintf("public, max-age=%d", int(s.config.CacheTTL.Seconds())))
	fmt.Fprint(w, body)
}

func (s *Server) handleTerms(w http.ResponseWriter, r *http.Request) {
	terms, ok := s.reader.Terms(r.Context())
	if !ok {
		http.Error(w, "failed to read terms", http.StatusInternalServerError)
		return
	}
	if terms == nil {
		terms = []string{}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]any{"terms": terms}); err != nil {
		s.logger.Error("Feed server failed to encode terms", "server", s.name, "error", err)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"status": "ok",
		"name":   s.name,
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) buildFeed(term string, stored []storage.StoredItem) *feeds.Feed {
	items := make([]*feeds.Item, 0, len(stored))
	for _, item := range stored {
		items = append(items, &feeds.Item{
			Id:          utils.Fingerprint(item.Term, strconv.FormatInt(item.Time, 10), item.Author, item.Message),
			Title:       itemTitle(item),
			Link:        &feeds.Link{Href: "/feed.rss?term=" + url.QueryEscape(term)},
			Description: item.Message,
			Author:      &feeds.Author{Name: item.Author},
			Created:     item.Created(),
		})
	}

	return &feeds.Feed{
		Title:       fmt.Sprintf("%s: %s", s.config.Title, term),
		Link:        &feeds.Link{Href: "/feed.rss?term=" + url.QueryEscape(term)},
		Description: fmt.Sprintf("Latest items matching %s", term),
		Author:      &feeds.Author{Name: s.config.Title},
		Created:     time.Now().UTC(),
		Items:       items,
	}
}

func itemTitle(item storage.StoredItem) string {
	const maxLen = 80
	message := []rune(item.Message)
	if len(message) > maxLen {
		message = append(message[:maxLen], '…')
	}
	if item.Author == "" {
		return string(message)
	}
	return item.Author + ": " + string(message)
}

func render(feed *feeds.Feed, feedType string) (string, error) {
	switch feedType {
	case TypeRSS:
		return feed.ToRss()
	case TypeAtom:
		return feed.ToAtom()
	case TypeJSON:
		return feed.ToJSON()
	default:
		return "", fmt.Errorf("unknown feed type %q", feedType)
	}
}
