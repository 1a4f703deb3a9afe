package storage

import (
	"context"
	"time"
)

// StoredItem is one persisted row of the tweets table joined with its term.
type StoredItem struct {
	Term    string
	Time    int64
	Author  string
	Message string
	Tags    string
}

// Created interprets Time as epoch seconds. Items fetched by the scrape
// source carry a platform id instead and do not map to a wall clock.
func (i StoredItem) Created() time.Time {
	return time.Unix(i.Time, 0).UTC()
}

// Reader is the read side used by the feed server.
type Reader interface {
	Terms(ctx context.Context) ([]string, bool)
	RecentItems(ctx context.Context, term string, limit int) ([]StoredItem, bool)
}

// Seed holds the values written by Bootstrap into an empty database.
type Seed struct {
	IntervalMinutes int
	Terms           []string
}
