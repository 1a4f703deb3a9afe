package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func TestDefaults(t *testing.T) {
	cfg := Default()

	if cfg.Bot.Name != "hashwatch" || cfg.Bot.DefaultInterval != "5m" || cfg.Bot.FetchTimeout != "30s" {
		t.Errorf("bot defaults = %+v", cfg.Bot)
	}
	if cfg.Bot.MaxConcurrency != 8 {
		t.Errorf("MaxConcurrency = %d, want 8", cfg.Bot.MaxConcurrency)
	}
	if cfg.Storage.Path != "database.db" {
		t.Errorf("Storage.Path = %q", cfg.Storage.Path)
	}
	if cfg.Source.Type != SourceAPI || cfg.Source.Credentials != "api.txt" {
		t.Errorf("source defaults = %+v", cfg.Source)
	}
	if cfg.Seed.IntervalMinutes != 1 || !reflect.DeepEqual(cfg.Seed.Terms, DefaultTerms) {
		t.Errorf("seed defaults = %+v", cfg.Seed)
	}
	if cfg.Feed.Enabled || cfg.Feed.Port != "8080" || cfg.Feed.Title != "hashwatch" {
		t.Errorf("feed defaults = %+v", cfg.Feed)
	}
	if cfg.Notify.Redis.Enabled || cfg.Notify.Redis.Stream != "hashwatch:items" {
		t.Errorf("redis defaults = %+v", cfg.Notify.Redis)
	}
}

func TestParse(t *testing.T) {
	cfg, err := Parse([]byte(`
[bot]
name = "watcher"
refresh_interval = true
max_concurrency = 2

[seed]
terms = ["#go"]

[source]
type = "scrape"

[source.settings]
search_mode = "typd"

[feed]
enabled = true
port = "9090"
`))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if cfg.Bot.Name != "watcher" || !cfg.Bot.RefreshInterval || cfg.Bot.MaxConcurrency != 2 {
		t.Errorf("bot = %+v", cfg.Bot)
	}
	if !reflect.DeepEqual(cfg.Seed.Terms, []string{"#go"}) {
		t.Errorf("seed terms = %v", cfg.Seed.Terms)
	}
	if got := GetString(cfg.Source.Settings, "search_mode", ""); got != "typd" {
		t.Errorf("search_mode = %q", got)
	}
	if !cfg.Feed.Enabled || cfg.Feed.Port != "9090" || cfg.Feed.Title != "watcher" {
		t.Errorf("feed = %+v", cfg.Feed)
	}
}

func TestParseRejectsInvalid(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr string
	}{
		{"bad toml", `[bot`, "failed to parse config"},
		{"bad duration", "[bot]\ndefault_interval = \"soon\"", "bot.default_interval"},
		{"negative duration", "[bot]\nfetch_timeout = \"-1s\"", "must be positive"},
		{"unknown source", "[source]\ntype = \"carrier-pigeon\"", "unsupported source type"},
		{"feed without url", "[source]\ntype = \"feed\"", "requires settings.url"},
		{"script without script", "[source]\ntype = \"script\"", "requires settings.script"},
		{"discord without channel", "[notify.discord]\nenabled = true", "requires channel_id"},
		{"bad log level", "[log]\nlevel = \"loud\"", "invalid log level"},
		{"bad log format", "[log]\nformat = \"xml\"", "unsupported log format"},
		{"negative seed", "[seed]\ninterval_minutes = -2", "must be positive"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.input))
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Parse() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadOrDefault(t *testing.T) {
	dir := t.TempDir()

	cfg, err := LoadOrDefault(filepath.Join(dir, "missing.toml"))
	if err != nil {
		t.Fatalf("LoadOrDefault(missing) error = %v", err)
	}
	if cfg.Bot.Name != "hashwatch" {
		t.Errorf("expected defaults, got %+v", cfg.Bot)
	}

	path := filepath.Join(dir, "hashwatch.toml")
	if err := os.WriteFile(path, []byte("[storage]\npath = \"x.db\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err = LoadOrDefault(path)
	if err != nil {
		t.Fatalf("LoadOrDefault() error = %v", err)
	}
	if cfg.Storage.Path != "x.db" {
		t.Errorf("Storage.Path = %q", cfg.Storage.Path)
	}

	if _, err := Load(filepath.Join(dir, "missing.toml")); err == nil {
		t.Error("expected Load to fail on a missing file")
	}
}
