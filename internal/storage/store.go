package storage

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
)

// Store exposes the typed operations of the ingestion pipeline. It never
// touches the connection itself; every statement goes through the Gateway.
type Store struct {
	gw     *Gateway
	logger *slog.Logger
}

func NewStore(gw *Gateway, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{gw: gw, logger: logger}
}

func (s *Store) Gateway() *Gateway {
	return s.gw
}

// Bootstrap applies the schema, then seeds the poll interval and the term
// list when they are absent.
func (s *Store) Bootstrap(ctx context.Context, seed Seed) error {
	s.logger.Info("Initializing storage", "path", s.gw.Path())

	if err := s.gw.Migrate(ctx); err != nil {
		return err
	}

	if _, ok := s.PollInterval(ctx); !ok && seed.IntervalMinutes > 0 {
		if !s.SetPollInterval(ctx, seed.IntervalMinutes) {
			return fmt.Errorf("failed to seed poll interval")
		}
		s.logger.Info("Seeded poll interval", "minutes", seed.IntervalMinutes)
	}

	terms, ok := s.Terms(ctx)
	if !ok {
		return fmt.Errorf("failed to read terms")
	}
	if len(terms) == 0 && len(seed.Terms) > 0 {
		if !s.AddTerms(ctx, seed.Terms...) {
			return fmt.Errorf("failed to seed terms")
		}
		s.logger.Info("Seeded terms", "terms", seed.Terms)
	}

	s.logger.Info("Storage initialized successfully")
	return nil
}

func (s *Store) Terms(ctx context.Context) ([]string, bool) {
	rows, ok := s.gw.Exec(ctx, `SELECT term FROM terms ORDER BY rowid`)
	if !ok {
		return nil, false
	}

	terms := make([]string, 0, len(rows))
	for _, row := range rows {
		terms = append(terms, asString(row[0]))
	}
	return terms, true
}

func (s *Store) AddTerms(ctx context.Context, terms ...string) bool {
	batch := make([][]any, 0, len(terms))
	for _, term := range terms {
		batch = append(batch, []any{term})
	}
	_, ok := s.gw.ExecBatch(ctx, `INSERT OR IGNORE INTO terms (term) VALUES (?)`, batch)
	return ok
}

// Watermark returns the newest stored timestamp for term, 0 when the term has
// no items yet. ok is false when the store could not answer.
func (s *Store) Watermark(ctx context.Context, term string) (int64, bool) {
	rows, ok := s.gw.Exec(ctx, `
		SELECT MAX(time) FROM tweets
		WHERE hash_id = (SELECT id FROM tweets_by_hash WHERE term = ?)
	`, term)
	if !ok {
		return 0, false
	}
	if len(rows) == 0 || rows[0][0] == nil {
		return 0, true
	}

	return asInt64(rows[0][0])
}

func (s *Store) LookupTerm(ctx context.Context, term string) (int64, bool) {
	rows, ok := s.gw.Exec(ctx, `SELECT id FROM tweets_by_hash WHERE term = ?`, term)
	if !ok || len(rows) == 0 {
		return 0, false
	}
	return asInt64(rows[0][0])
}

// ResolveTerm returns the identifier of term, creating it on first sight.
// The insert is an upsert keyed by the UNIQUE term column, so concurrent
// resolvers always agree on a single identifier.
func (s *Store) ResolveTerm(ctx context.Context, term string) (int64, bool) {
	if id, ok := s.LookupTerm(ctx, term); ok {
		return id, true
	}

	rows, ok := s.gw.Exec(ctx, `
		INSERT INTO tweets_by_hash (term) VALUES (?)
		ON CONFLICT(term) DO UPDATE SET term = excluded.term
		RETURNING id
	`, term)
	if !ok || len(rows) == 0 {
		return 0, false
	}
	return asInt64(rows[0][0])
}

// InsertItems writes rows of (time, author, message, tags) under termID in a
// single transaction.
func (s *Store) InsertItems(ctx context.Context, termID int64, rows [][]any) (int64, bool) {
	if len(rows) == 0 {
		return 0, true
	}

	batch := make([][]any, 0, len(rows))
	for _, row := range rows {
		if len(row) != 4 {
			s.logger.Error("Skipping malformed item row", "term_id", termID, "columns", len(row))
			continue
		}
		batch = append(batch, []any{row[0], termID, row[1], row[2], row[3]})
	}

	return s.gw.ExecBatch(ctx, `
		INSERT INTO tweets (time, hash_id, author, message, tags)
		VALUES (?, ?, ?, ?, ?)
	`, batch)
}

func (s *Store) CountItems(ctx context.Context, term string) (int64, bool) {
	rows, ok := s.gw.Exec(ctx, `
		SELECT COUNT(*) FROM tweets t
		JOIN tweets_by_hash h ON h.id = t.hash_id
		WHERE h.term = ?
	`, term)
	if !ok || len(rows) == 0 {
		return 0, false
	}
	return asInt64(rows[0][0])
}

func (s *Store) RecentItems(ctx context.Context, term string, limit int) ([]StoredItem, bool) {
	rows, ok := s.gw.Exec(ctx, `
		SELECT t.time, t.author, t.message, t.tags
		FROM tweets t
		JOIN tweets_by_hash h ON h.id = t.hash_id
		WHERE h.term = ?
		ORDER BY t.time DESC
		LIMIT ?
	`, term, limit)
	if !ok {
		return nil, false
	}

	items := make([]StoredItem, 0, len(rows))
	for _, row := range rows {
		ts, _ := asInt64(row[0])
		items = append(items, StoredItem{
			Term:    term,
			Time:    ts,
			Author:  asString(row[1]),
			Message: asString(row[2]),
			Tags:    asString(row[3]),
		})
	}
	return items, true
}

// PollInterval reads the configured interval in minutes. ok is false when the
// row is missing or the store failed.
func (s *Store) PollInterval(ctx context.Context) (int, bool) {
	rows, ok := s.gw.Exec(ctx, `SELECT timeout FROM timeout LIMIT 1`)
	if !ok || len(rows) == 0 {
		return 0, false
	}

	minutes, ok := asInt64(rows[0][0])
	if !ok {
		return 0, false
	}
	return int(minutes), true
}

func (s *Store) SetPollInterval(ctx context.Context, minutes int) bool {
	if _, ok := s.gw.Exec(ctx, `DELETE FROM timeout`); !ok {
		return false
	}
	_, ok := s.gw.Exec(ctx, `INSERT INTO timeout (timeout) VALUES (?)`, minutes)
	return ok
}

func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case float64:
		return int64(n), true
	case []byte:
		i, err := strconv.ParseInt(string(n), 10, 64)
		return i, err == nil
	case string:
		i, err := strconv.ParseInt(n, 10, 64)
		return i, err == nil
	default:
		return 0, false
	}
}

func asString(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case []byte:
		return string(s)
	default:
		return fmt.Sprint(s)
	}
}
