package storage

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Rows is the fully materialized result of a statement, one []any per row.
type Rows [][]any

// Gateway is the only owner of the SQLite connection. Every operation,
// including opening and closing the handle, runs under a single mutex, so at
// most one statement touches the connection at any instant.
//
// Store-layer failures never escape as errors: they are logged and reported
// through the boolean result.
type Gateway struct {
	path        string
	busyTimeout time.Duration
	logger      *slog.Logger

	mu   sync.Mutex
	conn *sql.DB
}

type GatewayConfig struct {
	Path        string
	BusyTimeout time.Duration
	Logger      *slog.Logger
}

func NewGateway(cfg GatewayConfig) *Gateway {
	if cfg.BusyTimeout == 0 {
		cfg.BusyTimeout = 5 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Gateway{
		path:        cfg.Path,
		busyTimeout: cfg.BusyTimeout,
		logger:      cfg.Logger,
	}
}

// Exec runs a single statement with a one-row bind (or no bind when args is
// empty) and returns every produced row. ok is false when the store failed;
// the failure has already been logged.
func (g *Gateway) Exec(ctx context.Context, query string, args ...any) (Rows, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	conn, err := g.ensureOpen()
	if err != nil {
		g.logFailure(query, args, err)
		return nil, false
	}

	rows, err := conn.QueryContext(ctx, query, args...)
	if err != nil {
		g.logFailure(query, args, err)
		return nil, false
	}

	result, err := collect(rows)
	if err != nil {
		g.logFailure(query, args, err)
		return nil, false
	}

	return result, true
}

// ExecBatch runs query once per inner slice of batch inside one transaction.
// Either every row is applied or none is. Returns the number of affected rows.
func (g *Gateway) ExecBatch(ctx context.Context, query string, batch [][]any) (int64, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	conn, err := g.ensureOpen()
	if err != nil {
		g.logFailure(query, batch, err)
		return 0, false
	}

	affected, err := execBatch(ctx, conn, query, batch)
	if err != nil {
		g.logFailure(query, batch, err)
		return 0, false
	}

	return affected, true
}

// Migrate applies the embedded schema.
func (g *Gateway) Migrate(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	conn, err := g.ensureOpen()
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	return runMigrations(conn, g.logger)
}

// Close closes the connection if it is open. A later Exec reopens it.
func (g *Gateway) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.conn == nil {
		return nil
	}

	g.logger.Debug("Closing database connection", "path", g.path)
	err := g.conn.Close()
	g.conn = nil
	if err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}

func (g *Gateway) Path() string {
	return g.path
}

// ensureOpen must be called with g.mu held.
func (g *Gateway) ensureOpen() (*sql.DB, error) {
	if g.conn != nil {
		return g.conn, nil
	}

	dsn := fmt.Sprintf("file:%s?_busy_timeout=%d&_foreign_keys=on", g.path, g.busyTimeout.Milliseconds())
	conn, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, err
	}

	g.logger.Debug("Opened database connection", "path", g.path)
	g.conn = conn
	return conn, nil
}

func (g *Gateway) logFailure(query string, params any, err error) {
	g.logger.Error("Error executing statement", "query", query, "params", params, "error", err)
}

func collect(rows *sql.Rows) (Rows, error) {
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	result := make(Rows, 0)
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		result = append(result, values)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func execBatch(ctx context.Context, conn *sql.DB, query string, batch [][]any) (int64, error) {
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	var affected int64
	for _, args := range batch {
		result, err := stmt.ExecContext(ctx, args...)
		if err != nil {
			return 0, err
		}
		if n, err := result.RowsAffected(); err == nil {
			affected += n
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return affected, nil
}

func runMigrations(conn *sql.DB, logger *slog.Logger) error {
	logger.Debug("Running database migrations")

	goose.SetBaseFS(migrationsFS)
	defer goose.SetBaseFS(nil)
	goose.SetLogger(gooseLogger{logger: logger})

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}

	if err := goose.Up(conn, "migrations"); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	logger.Debug("Migrations completed successfully")
	return nil
}

// gooseLogger sends goose progress lines to the gateway logger.
type gooseLogger struct {
	logger *slog.Logger
}

func (l gooseLogger) Printf(format string, v ...interface{}) {
	l.logger.Info(strings.TrimSpace(fmt.Sprintf(format, v...)), "component", "goose")
}

func (l gooseLogger) Fatalf(format string, v ...interface{}) {
	l.logger.Error(strings.TrimSpace(fmt.Sprintf(format, v...)), "component", "goose")
	os.Exit(1)
}
