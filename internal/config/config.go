package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	SourceAPI     = "api"
	SourceScrape  = "scrape"
	SourceBluesky = "bluesky"
	SourceFeed    = "feed"
	SourceScript  = "script"
)

var DefaultTerms = []string{"#nba", "#oslo", "#kardashian"}

type Config struct {
	Bot     BotConfig     `toml:"bot"`
	Storage StorageConfig `toml:"storage"`
	Seed    SeedConfig    `toml:"seed"`
	Source  SourceConfig  `toml:"source"`
	Feed    FeedConfig    `toml:"feed"`
	Notify  NotifyConfig  `toml:"notify"`
	Log     LogConfig     `toml:"log"`
}

type BotConfig struct {
	Name            string `toml:"name"`
	DefaultInterval string `toml:"default_interval"`
	// RefreshInterval re-reads the stored poll interval before every cycle.
	RefreshInterval bool   `toml:"refresh_interval"`
	RunOnce         bool   `toml:"run_once"`
	FetchTimeout    string `toml:"fetch_timeout"`
	MaxConcurrency  int    `toml:"max_concurrency"`
}

type StorageConfig struct {
	Path        string `toml:"path"`
	BusyTimeout string `toml:"busy_timeout"`
}

// SeedConfig is written into an empty database by setup.
type SeedConfig struct {
	IntervalMinutes int      `toml:"interval_minutes"`
	Terms           []string `toml:"terms"`
}

type SourceConfig struct {
	Type        string                 `toml:"type"`
	Credentials string                 `toml:"credentials"`
	Timeout     string                 `toml:"timeout"`
	Settings    map[string]interface{} `toml:"settings"`
}

type FeedConfig struct {
	Enabled  bool   `toml:"enabled"`
	Port     string `toml:"port"`
	MaxItems int    `toml:"max_items"`
	CacheTTL string `toml:"cache_ttl"`
	Title    string `toml:"title"`
}

type NotifyConfig struct {
	Redis   RedisConfig   `toml:"redis"`
	Discord DiscordConfig `toml:"discord"`
}

type RedisConfig struct {
	Enabled  bool   `toml:"enabled"`
	Addr     string `toml:"addr"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
	Stream   string `toml:"stream"`
	MaxLen   int64  `toml:"max_len"`
}

// DiscordConfig posts new items to a text channel. The bot token is read
// from the credentials file.
type DiscordConfig struct {
	Enabled   bool   `toml:"enabled"`
	ChannelID string `toml:"channel_id"`
	MaxItems  int    `toml:"max_items"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
	File   string `toml:"file"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// LoadOrDefault behaves like Load but returns the defaults when path does
// not exist.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

func Parse(data []byte) (*Config, error) {
	var config Config
	if _, err := toml.Decode(string(data), &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &config, nil
}

func Default() *Config {
	var config Config
	if err := validateConfig(&config); err != nil {
		panic(fmt.Sprintf("default config is invalid: %v", err))
	}
	return &config
}

func validateConfig(config *Config) error {
	if config.Bot.Name == "" {
		config.Bot.Name = "hashwatch"
	}
	if config.Bot.DefaultInterval == "" {
		config.Bot.DefaultInterval = "5m"
	}
	if config.Bot.FetchTimeout == "" {
		config.Bot.FetchTimeout = "30s"
	}
	if config.Bot.MaxConcurrency <= 0 {
		config.Bot.MaxConcurrency = 8
	}

	if config.Storage.Path == "" {
		config.Storage.Path = "database.db"
	}
	if config.Storage.BusyTimeout == "" {
		config.Storage.BusyTimeout = "5s"
	}

	if config.Seed.IntervalMinutes == 0 {
		config.Seed.IntervalMinutes = 1
	}
	if config.Seed.IntervalMinutes < 0 {
		return fmt.Errorf("seed interval_minutes must be positive, got %d", config.Seed.IntervalMinutes)
	}
	if config.Seed.Terms == nil {
		config.Seed.Terms = append([]string(nil), DefaultTerms...)
	}

	if config.Source.Type == "" {
		config.Source.Type = SourceAPI
	}
	if config.Source.Credentials == "" {
		config.Source.Credentials = "api.txt"
	}
	if config.Source.Timeout == "" {
		config.Source.Timeout = "30s"
	}
	if config.Source.Settings == nil {
		config.Source.Settings = map[string]interface{}{}
	}
	switch config.Source.Type {
	case SourceAPI, SourceScrape, SourceBluesky:
	case SourceFeed:
		if GetString(config.Source.Settings, "url", "") == "" {
			return fmt.Errorf("source type feed requires settings.url")
		}
	case SourceScript:
		if GetString(config.Source.Settings, "script", "") == "" && GetString(config.Source.Settings, "script_path", "") == "" {
			return fmt.Errorf("source type script requires settings.script or settings.script_path")
		}
	default:
		return fmt.Errorf("unsupported source type: %s", config.Source.Type)
	}

	if config.Feed.Port == "" {
		config.Feed.Port = "8080"
	}
	if config.Feed.MaxItems <= 0 {
		config.Feed.MaxItems = 50
	}
	if config.Feed.CacheTTL == "" {
		config.Feed.CacheTTL = "1m"
	}
	if config.Feed.Title == "" {
		config.Feed.Title = config.Bot.Name
	}

	if config.Notify.Redis.Addr == "" {
		config.Notify.Redis.Addr = "localhost:6379"
	}
	if config.Notify.Redis.Stream == "" {
		config.Notify.Redis.Stream = "hashwatch:items"
	}

	if config.Notify.Discord.Enabled && config.Notify.Discord.ChannelID == "" {
		return fmt.Errorf("notify.discord requires channel_id")
	}
	if config.Notify.Discord.MaxItems <= 0 {
		config.Notify.Discord.MaxItems = 10
	}

	if config.Log.Level == "" {
		config.Log.Level = "info"
	}
	if config.Log.Format == "" {
		config.Log.Format = "text"
	}
	if config.Log.Format != "text" && config.Log.Format != "json" {
		return fmt.Errorf("unsupported log format: %s", config.Log.Format)
	}
	if _, err := parseLevel(config.Log.Level); err != nil {
		return err
	}

	durations := map[string]string{
		"bot.default_interval": config.Bot.DefaultInterval,
		"bot.fetch_timeout":    config.Bot.FetchTimeout,
		"storage.busy_timeout": config.Storage.BusyTimeout,
		"source.timeout":       config.Source.Timeout,
		"feed.cache_ttl":       config.Feed.CacheTTL,
	}
	for field, value := range durations {
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", field, err)
		}
		if d <= 0 {
			return fmt.Errorf("invalid %s: must be positive", field)
		}
	}

	return nil
}

// duration parses a value already checked by validateConfig.
func duration(value string) time.Duration {
	d, _ := time.ParseDuration(value)
	return d
}

func GetString(settings map[string]interface{}, key string, defaultValue string) string {
	if val, ok := settings[key]; ok {
		if str, ok := val.(string); ok {
			return str
		}
	}
	return defaultValue
}

func GetInt(settings map[string]interface{}, key string, defaultValue int) int {
	if val, ok := settings[key]; ok {
		if i, ok := val.(int64); ok {
			return int(i)
		}
		if i, ok := val.(int); ok {
			return i
		}
	}
	return defaultValue
}
