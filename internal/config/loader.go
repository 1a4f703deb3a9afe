package config

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"hashwatch/internal/components"
	"hashwatch/internal/core"
	"hashwatch/internal/notify"
	"hashwatch/internal/platforms"
	"hashwatch/internal/server/feed"
	"hashwatch/internal/sources"
	"hashwatch/internal/storage"
)

// Loader turns a Config into a ready Bot: components first, then the
// fetcher, the pipeline and its notifiers.
type Loader struct {
	config       *Config
	logger       *slog.Logger
	registry     *components.Registry
	storageComp  *components.StorageComponent
	platformComp *components.PlatformComponent
	serverComp   *components.ServerComponent
	notifyComp   *components.NotifyComponent
	pipeline     *core.Pipeline
}

func NewLoader(cfg *Config, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{
		config:   cfg,
		logger:   logger,
		registry: components.NewRegistry(logger),
	}
}

func (l *Loader) Initialize(ctx context.Context) (*core.Bot, error) {
	creds := l.readCredentials()

	if err := l.registerComponents(creds); err != nil {
		return nil, err
	}

	if err := l.registry.InitializeAll(ctx); err != nil {
		l.registry.CloseAll(ctx)
		return nil, fmt.Errorf("failed to initialize components: %w", err)
	}

	fetcher, err := l.createFetcher(creds)
	if err != nil {
		l.registry.CloseAll(ctx)
		return nil, fmt.Errorf("failed to create fetcher: %w", err)
	}

	l.buildPipeline(fetcher)

	shutdownFn := func() error {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return l.Shutdown(shutdownCtx)
	}

	bot := core.NewBot(core.BotConfig{
		Name:            l.config.Bot.Name,
		Pipeline:        l.pipeline,
		Store:           l.storageComp.Store(),
		DefaultInterval: duration(l.config.Bot.DefaultInterval),
		RefreshInterval: l.config.Bot.RefreshInterval,
		RunOnce:         l.config.Bot.RunOnce,
		ShutdownFn:      shutdownFn,
		Logger:          l.logger,
	})

	return bot, nil
}

// Setup applies the schema and seeds an empty database, then closes it.
func (l *Loader) Setup(ctx context.Context) error {
	storageComp := l.newStorageComponent()
	if err := storageComp.Validate(); err != nil {
		return err
	}
	if err := storageComp.Initialize(ctx); err != nil {
		return err
	}
	defer storageComp.Close(ctx)

	terms, _ := storageComp.Store().Terms(ctx)
	minutes, _ := storageComp.Store().PollInterval(ctx)
	l.logger.Info("Setup complete", "path", l.config.Storage.Path, "terms", terms, "interval_minutes", minutes)
	return nil
}

func (l *Loader) readCredentials() Credentials {
	needed := l.config.Source.Type == SourceAPI || l.config.Source.Type == SourceBluesky || l.config.Notify.Discord.Enabled
	if !needed {
		return Credentials{}
	}

	creds, err := ReadCredentials(l.config.Source.Credentials)
	if err != nil {
		l.logger.Warn("Credentials unavailable, continuing with empty values", "path", l.config.Source.Credentials, "error", err)
		return Credentials{}
	}
	return creds
}

func (l *Loader) newStorageComponent() *components.StorageComponent {
	return components.NewStorageComponent(components.StorageSettings{
		Path:        l.config.Storage.Path,
		BusyTimeout: duration(l.config.Storage.BusyTimeout),
		Seed: storage.Seed{
			IntervalMinutes: l.config.Seed.IntervalMinutes,
			Terms:           l.config.Seed.Terms,
		},
	}, l.logger)
}

func (l *Loader) registerComponents(creds Credentials) error {
	l.storageComp = l.newStorageComponent()

	var platformSettings components.PlatformSettings
	if l.config.Source.Type == SourceBluesky {
		platformSettings.Bluesky = &platforms.BlueskySettings{
			Host:       GetString(l.config.Source.Settings, "host", platforms.DefaultBlueskyHost),
			Identifier: creds.BlueskyIdentifier,
			Password:   creds.BlueskyPassword,
		}
	}
	if l.config.Notify.Discord.Enabled {
		platformSettings.Discord = &platforms.DiscordSettings{BotToken: creds.DiscordBotToken}
	}
	l.platformComp = components.NewPlatformComponent(platformSettings, l.logger)

	all := []components.IComponent{l.storageComp, l.platformComp}

	if l.config.Feed.Enabled {
		l.serverComp = components.NewServerComponent(l.config.Bot.Name, feed.Config{
			Port:     l.config.Feed.Port,
			MaxItems: l.config.Feed.MaxItems,
			CacheTTL: duration(l.config.Feed.CacheTTL),
			Title:    l.config.Feed.Title,
		}, l.storageComp, l.logger)
		all = append(all, l.serverComp)
	}

	var notifySettings components.NotifySettings
	if redis := l.config.Notify.Redis; redis.Enabled {
		notifySettings.Redis = &notify.RedisConfig{
			Addr:     redis.Addr,
			Password: redis.Password,
			DB:       redis.DB,
			Stream:   redis.Stream,
			MaxLen:   redis.MaxLen,
		}
	}
	if discord := l.config.Notify.Discord; discord.Enabled {
		notifySettings.Discord = &notify.DiscordConfig{
			ChannelID: discord.ChannelID,
			MaxItems:  discord.MaxItems,
		}
	}
	if notifySettings.Redis != nil || notifySettings.Discord != nil {
		l.notifyComp = components.NewNotifyComponent(notifySettings, l.platformComp, l.logger)
		all = append(all, l.notifyComp)
	}

	for _, comp := range all {
		if err := l.registry.Register(comp); err != nil {
			return err
		}
	}
	return nil
}

func (l *Loader) createFetcher(creds Credentials) (core.Fetcher, error) {
	cfg := l.config.Source
	timeout := duration(cfg.Timeout)
	name := cfg.Type

	switch cfg.Type {
	case SourceAPI:
		return sources.NewAPISource(sources.APIConfig{
			Name:           name,
			BaseURL:        GetString(cfg.Settings, "url", ""),
			ConsumerKey:    creds.ConsumerKey,
			ConsumerSecret: creds.ConsumerSecret,
			AccessToken:    creds.AccessTokenKey,
			AccessSecret:   creds.AccessTokenSecret,
			MaxResults:     GetInt(cfg.Settings, "max_results", 100),
			Timeout:        timeout,
			Logger:         l.logger,
		}), nil

	case SourceScrape:
		mode, err := sources.ParseSearchMode(GetString(cfg.Settings, "search_mode", string(sources.SearchExact)))
		if err != nil {
			return nil, err
		}
		return sources.NewScrapeSource(sources.ScrapeConfig{
			Name:    name,
			URL:     GetString(cfg.Settings, "url", ""),
			Mode:    mode,
			Timeout: timeout,
			Logger:  l.logger,
		}), nil

	case SourceBluesky:
		session := l.platformComp.Bluesky()
		if session == nil {
			return nil, fmt.Errorf("bluesky platform not initialized")
		}
		return sources.NewBlueskySource(sources.BlueskyConfig{
			Name:       name,
			Session:    session,
			MaxResults: GetInt(cfg.Settings, "max_results", 100),
			Lang:       GetString(cfg.Settings, "lang", ""),
			Logger:     l.logger,
		}), nil

	case SourceFeed:
		return sources.NewFeedSource(sources.FeedConfig{
			Name:        name,
			URLTemplate: GetString(cfg.Settings, "url", ""),
			MaxItems:    GetInt(cfg.Settings, "max_items", 50),
			Timeout:     timeout,
			Logger:      l.logger,
		})

	case SourceScript:
		return sources.NewScriptSource(sources.ScriptConfig{
			Name:       name,
			Script:     GetString(cfg.Settings, "script", ""),
			ScriptPath: GetString(cfg.Settings, "script_path", ""),
			Settings:   cfg.Settings,
			Timeout:    timeout,
			Logger:     l.logger,
		})

	default:
		return nil, fmt.Errorf("unsupported source type: %s", cfg.Type)
	}
}

func (l *Loader) buildPipeline(fetcher core.Fetcher) {
	l.pipeline = core.NewPipeline(core.PipelineConfig{
		Store:          l.storageComp.Store(),
		Fetcher:        fetcher,
		FetchTimeout:   duration(l.config.Bot.FetchTimeout),
		MaxConcurrency: l.config.Bot.MaxConcurrency,
		Logger:         l.logger,
	})

	if l.serverComp != nil {
		l.pipeline.AddNotifier(l.serverComp.Server())
	}
	if l.notifyComp != nil {
		for _, n := range l.notifyComp.Notifiers() {
			l.pipeline.AddNotifier(n)
		}
	}
}

func (l *Loader) Shutdown(ctx context.Context) error {
	return l.registry.CloseAll(ctx)
}

func (l *Loader) StorageComponent() *components.StorageComponent {
	return l.storageComp
}

func (l *Loader) ServerComponent() *components.ServerComponent {
	return l.serverComp
}
