package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"hashwatch/internal"
)

var ErrCycleRunning = errors.New("cycle already running")

// Pipeline runs ingestion cycles: fetch every term concurrently, then write
// the results back one term at a time on the calling goroutine.
type Pipeline struct {
	store          Store
	fetcher        Fetcher
	notifiers      []Notifier
	fetchTimeout   time.Duration
	maxConcurrency int
	logger         *slog.Logger

	mu      sync.Mutex
	running bool
}

type PipelineConfig struct {
	Store          Store
	Fetcher        Fetcher
	FetchTimeout   time.Duration
	MaxConcurrency int
	Logger         *slog.Logger
}

func NewPipeline(config PipelineConfig) *Pipeline {
	if config.FetchTimeout == 0 {
		config.FetchTimeout = 30 * time.Second
	}
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = 8
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	return &Pipeline{
		store:          config.Store,
		fetcher:        config.Fetcher,
		fetchTimeout:   config.FetchTimeout,
		maxConcurrency: config.MaxConcurrency,
		logger:         config.Logger,
	}
}

func (p *Pipeline) AddNotifier(n Notifier) *Pipeline {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.notifiers = append(p.notifiers, n)
	return p
}

func (p *Pipeline) Initialize(ctx context.Context) error {
	p.logger.Info("Initializing fetcher", "fetcher", p.fetcher.Name(), "domain", p.fetcher.Domain())
	if err := p.fetcher.Initialize(ctx); err != nil {
		return fmt.Errorf("failed to initialize fetcher %s: %w", p.fetcher.Name(), err)
	}
	return nil
}

func (p *Pipeline) Shutdown(ctx context.Context) error {
	if err := p.fetcher.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown fetcher %s: %w", p.fetcher.Name(), err)
	}
	return nil
}

// Run executes one cycle. A store failure while reading terms ends the cycle
// with an empty report; a failed watermark read skips that term for the cycle
// and fetch failures only empty that term's result.
func (p *Pipeline) Run(ctx context.Context) (*CycleReport, error) {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return nil, ErrCycleRunning
	}
	p.running = true
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		p.running = false
		p.mu.Unlock()
	}()

	report := &CycleReport{Started: time.Now()}
	defer func() {
		report.Duration = time.Since(report.Started)
	}()

	terms, ok := p.store.Terms(ctx)
	if !ok {
		p.logger.Error("Failed to read terms, skipping cycle")
		return report, nil
	}
	if len(terms) == 0 {
		p.logger.Info("No terms configured")
		return report, nil
	}

	report.Terms = make([]TermResult, len(terms))
	skipped := make([]bool, len(terms))
	for i, term := range terms {
		report.Terms[i].Term = term
		since, ok := p.store.Watermark(ctx, term)
		if !ok {
			report.Terms[i].Err = fmt.Errorf("failed to read watermark for term %q", term)
			p.logger.Error("Skipping term", "term", term, "error", report.Terms[i].Err)
			skipped[i] = true
			continue
		}
		report.Terms[i].Since = since
	}

	batches := p.fetchAll(ctx, report.Terms, skipped)

	if err := ctx.Err(); err != nil {
		return report, err
	}

	for i := range report.Terms {
		if skipped[i] {
			continue
		}
		p.writeTerm(ctx, &report.Terms[i], batches[i])
	}

	p.logger.Debug("Cycle completed", "terms", len(terms), "stored", report.Stored(), "duration", time.Since(report.Started))
	return report, nil
}

// fetchAll fans out one fetch per term not marked in skip and blocks until
// every one of them has finished or timed out.
func (p *Pipeline) fetchAll(ctx context.Context, results []TermResult, skip []bool) [][]Item {
	batches := make([][]Item, len(results))

	var g errgroup.Group
	g.SetLimit(p.maxConcurrency)

	for i := range results {
		if skip[i] {
			continue
		}
		term, since := results[i].Term, results[i].Since
		g.Go(func() error {
			items, err := p.fetchTerm(ctx, term, since)
			if err != nil {
				p.logger.Warn("Fetch failed, treating as empty", "term", term, "since", since, "error", err)
				results[i].Err = err
				return nil
			}
			batches[i] = items
			results[i].Fetched = len(items)
			return nil
		})
	}

	_ = g.Wait()
	return batches
}

func (p *Pipeline) fetchTerm(ctx context.Context, term string, since int64) ([]Item, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, p.fetchTimeout)
	defer cancel()

	itemChan, errChan := p.fetcher.Fetch(fetchCtx, term, since)
	items := make([]Item, 0)

	for itemChan != nil || errChan != nil {
		select {
		case <-fetchCtx.Done():
			return nil, fmt.Errorf("fetch of %q aborted: %w", term, fetchCtx.Err())
		case err, ok := <-errChan:
			if !ok {
				errChan = nil
				continue
			}
			if err != nil {
				return nil, err
			}
		case item, ok := <-itemChan:
			if !ok {
				itemChan = nil
				continue
			}
			items = append(items, item)
		}
	}

	return items, nil
}

func (p *Pipeline) writeTerm(ctx context.Context, result *TermResult, items []Item) {
	termID, ok := p.store.ResolveTerm(ctx, result.Term)
	if !ok {
		result.Err = fmt.Errorf("failed to resolve term %q", result.Term)
		p.logger.Error("Skipping term", "term", result.Term, "error", result.Err)
		return
	}

	stored, ok := p.store.InsertItems(ctx, termID, internal.IntoAll[[]any](items))
	if !ok {
		result.Err = fmt.Errorf("failed to store items for term %q", result.Term)
		p.logger.Error("Skipping term", "term", result.Term, "error", result.Err)
		return
	}
	result.Stored = stored

	p.logger.Info("items for term", "count", len(items), "term", result.Term)

	if len(items) > 0 {
		p.notify(ctx, result.Term, items)
	}
}

func (p *Pipeline) notify(ctx context.Context, term string, items []Item) {
	p.mu.Lock()
	notifiers := p.notifiers
	p.mu.Unlock()

	for _, n := range notifiers {
		if err := n.Notify(ctx, term, items); err != nil {
			p.logger.Warn("Notifier failed", "notifier", n.Name(), "term", term, "error", err)
		}
	}
}
