package core

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"hashwatch/internal/storage"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// mockFetcher serves canned items per term and honours since the way real
// fetchers must.
type mockFetcher struct {
	mu     sync.Mutex
	items  map[string][]Item
	errs   map[string]error
	delays map[string]time.Duration
	sinces map[string][]int64

	calls    atomic.Int32
	inFlight atomic.Int32
	peak     atomic.Int32
	shutdown atomic.Bool
}

func newMockFetcher() *mockFetcher {
	return &mockFetcher{
		items:  make(map[string][]Item),
		errs:   make(map[string]error),
		delays: make(map[string]time.Duration),
		sinces: make(map[string][]int64),
	}
}

func (m *mockFetcher) Name() string                         { return "mock" }
func (m *mockFetcher) Domain() Domain                       { return DomainEpoch }
func (m *mockFetcher) Initialize(ctx context.Context) error { return nil }

func (m *mockFetcher) Shutdown(ctx context.Context) error {
	m.shutdown.Store(true)
	return nil
}

func (m *mockFetcher) set(term string, items ...Item) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[term] = items
}

func (m *mockFetcher) sincesFor(term string) []int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int64(nil), m.sinces[term]...)
}

func (m *mockFetcher) Fetch(ctx context.Context, term string, since int64) (<-chan Item, <-chan error) {
	itemChan := make(chan Item)
	errChan := make(chan error, 1)

	m.calls.Add(1)
	m.mu.Lock()
	m.sinces[term] = append(m.sinces[term], since)
	items := m.items[term]
	err := m.errs[term]
	delay := m.delays[term]
	m.mu.Unlock()

	go func() {
		defer close(itemChan)
		defer close(errChan)

		n := m.inFlight.Add(1)
		defer m.inFlight.Add(-1)
		for {
			peak := m.peak.Load()
			if n <= peak || m.peak.CompareAndSwap(peak, n) {
				break
			}
		}

		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				errChan <- ctx.Err()
				return
			}
		}

		if err != nil {
			errChan <- err
			return
		}

		for _, item := range items {
			if item.Timestamp <= since {
				continue
			}
			select {
			case itemChan <- item:
			case <-ctx.Done():
				return
			}
		}
	}()

	return itemChan, errChan
}

func newTestStore(t *testing.T, terms ...string) *storage.Store {
	t.Helper()
	gw := storage.NewGateway(storage.GatewayConfig{
		Path:   filepath.Join(t.TempDir(), "test.db"),
		Logger: discardLogger(),
	})
	t.Cleanup(func() { gw.Close() })

	store := storage.NewStore(gw, discardLogger())
	if err := store.Bootstrap(context.Background(), storage.Seed{Terms: terms}); err != nil {
		t.Fatalf("Bootstrap() error = %v", err)
	}
	return store
}
