package storage

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestGateway(t *testing.T) *Gateway {
	t.Helper()
	gw := NewGateway(GatewayConfig{
		Path:   filepath.Join(t.TempDir(), "test.db"),
		Logger: discardLogger(),
	})
	t.Cleanup(func() { gw.Close() })
	return gw
}

func TestGatewayConcurrentExecSerialized(t *testing.T) {
	ctx := context.Background()
	gw := newTestGateway(t)

	if _, ok := gw.Exec(ctx, `CREATE TABLE counter (n INTEGER NOT NULL)`); !ok {
		t.Fatal("create table failed")
	}
	if _, ok := gw.Exec(ctx, `INSERT INTO counter (n) VALUES (0)`); !ok {
		t.Fatal("insert failed")
	}

	const callers = 50
	var wg sync.WaitGroup
	failures := make(chan struct{}, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok := gw.Exec(ctx, `UPDATE counter SET n = n + 1`); !ok {
				failures <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(failures)

	if n := len(failures); n != 0 {
		t.Fatalf("%d updates failed", n)
	}

	rows, ok := gw.Exec(ctx, `SELECT n FROM counter`)
	if !ok {
		t.Fatal("select failed")
	}
	got, _ := asInt64(rows[0][0])
	if got != callers {
		t.Fatalf("counter = %d, want %d", got, callers)
	}
}

func TestGatewayReconnectAfterClose(t *testing.T) {
	ctx := context.Background()
	gw := newTestGateway(t)

	if _, ok := gw.Exec(ctx, `CREATE TABLE t (v TEXT)`); !ok {
		t.Fatal("create table failed")
	}
	if _, ok := gw.Exec(ctx, `INSERT INTO t (v) VALUES (?)`, "before"); !ok {
		t.Fatal("insert failed")
	}

	if err := gw.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := gw.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}

	rows, ok := gw.Exec(ctx, `SELECT v FROM t`)
	if !ok {
		t.Fatal("Exec after Close failed")
	}
	if len(rows) != 1 || asString(rows[0][0]) != "before" {
		t.Fatalf("rows = %v, want [[before]]", rows)
	}
}

func TestGatewayFailureReleasesLock(t *testing.T) {
	ctx := context.Background()
	gw := newTestGateway(t)

	rows, ok := gw.Exec(ctx, `SELECT * FROM missing_table`)
	if ok {
		t.Fatal("Exec on missing table reported success")
	}
	if rows != nil {
		t.Fatalf("rows = %v, want nil", rows)
	}

	if _, ok := gw.Exec(ctx, `SELECT 1`); !ok {
		t.Fatal("Exec after failure did not succeed")
	}
}

func TestGatewayExecBatchAtomic(t *testing.T) {
	ctx := context.Background()
	gw := newTestGateway(t)

	if _, ok := gw.Exec(ctx, `CREATE TABLE t (v TEXT NOT NULL UNIQUE)`); !ok {
		t.Fatal("create table failed")
	}

	n, ok := gw.ExecBatch(ctx, `INSERT INTO t (v) VALUES (?)`, [][]any{{"a"}, {"b"}, {"c"}})
	if !ok || n != 3 {
		t.Fatalf("ExecBatch = (%d, %v), want (3, true)", n, ok)
	}

	// "d" is new but "a" violates the unique constraint, so nothing lands.
	if _, ok := gw.ExecBatch(ctx, `INSERT INTO t (v) VALUES (?)`, [][]any{{"d"}, {"a"}}); ok {
		t.Fatal("ExecBatch with duplicate reported success")
	}

	rows, ok := gw.Exec(ctx, `SELECT COUNT(*) FROM t`)
	if !ok {
		t.Fatal("count failed")
	}
	if got, _ := asInt64(rows[0][0]); got != 3 {
		t.Fatalf("count = %d, want 3", got)
	}
}

func TestGatewayMigrateIdempotent(t *testing.T) {
	ctx := context.Background()
	gw := newTestGateway(t)

	for i := 0; i < 2; i++ {
		if err := gw.Migrate(ctx); err != nil {
			t.Fatalf("Migrate() run %d error = %v", i+1, err)
		}
	}

	for _, table := range []string{"terms", "tweets_by_hash", "tweets", "timeout"} {
		rows, ok := gw.Exec(ctx, `SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, table)
		if !ok || len(rows) != 1 {
			t.Fatalf("table %s missing after Migrate", table)
		}
	}
}

func TestGatewayMigrateLogsThroughSlog(t *testing.T) {
	var buf bytes.Buffer
	gw := NewGateway(GatewayConfig{
		Path:   filepath.Join(t.TempDir(), "test.db"),
		Logger: slog.New(slog.NewTextHandler(&buf, nil)),
	})
	t.Cleanup(func() { gw.Close() })

	if err := gw.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "00001_init.sql") || !strings.Contains(out, "component=goose") {
		t.Fatalf("migration output not routed to the logger:\n%s", out)
	}
}

