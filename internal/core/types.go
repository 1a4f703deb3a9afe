package core

import (
	"context"
	"time"

	"hashwatch/internal/utils"
)

// Domain identifies how a fetcher interprets Item.Timestamp. Values from
// different domains are not comparable, so one store should only ever be
// fed by fetchers of a single domain.
type Domain int

const (
	DomainEpoch Domain = iota
	DomainPlatformID
)

func (d Domain) String() string {
	switch d {
	case DomainEpoch:
		return "epoch"
	case DomainPlatformID:
		return "platform-id"
	default:
		return "unknown"
	}
}

// Fetcher produces the items for term that are strictly newer than since.
// Both channels are closed when the fetch ends; at most one error is sent.
type Fetcher interface {
	Name() string
	Domain() Domain
	Initialize(ctx context.Context) error
	Fetch(ctx context.Context, term string, since int64) (<-chan Item, <-chan error)
	Shutdown(ctx context.Context) error
}

// Notifier is told about items after they were committed.
type Notifier interface {
	Name() string
	Notify(ctx context.Context, term string, items []Item) error
}

// Store is the subset of storage.Store used by the pipeline and the bot.
type Store interface {
	Terms(ctx context.Context) ([]string, bool)
	Watermark(ctx context.Context, term string) (int64, bool)
	ResolveTerm(ctx context.Context, term string) (int64, bool)
	InsertItems(ctx context.Context, termID int64, rows [][]any) (int64, bool)
	PollInterval(ctx context.Context) (int, bool)
}

type TermResult struct {
	Term    string
	Since   int64
	Fetched int
	Stored  int64
	Err     error
}

type CycleReport struct {
	Started  time.Time
	Duration time.Duration
	Terms    []TermResult
}

func (r *CycleReport) Stored() int64 {
	var total int64
	for _, t := range r.Terms {
		total += t.Stored
	}
	return total
}

func (r *CycleReport) Failed() []TermResult {
	return utils.FilterArray(r.Terms, func(t TermResult) bool {
		return t.Err != nil
	})
}
