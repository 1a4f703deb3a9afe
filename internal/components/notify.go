package components

import (
	"context"
	"fmt"
	"log/slog"

	"hashwatch/internal/core"
	"hashwatch/internal/notify"
)

type NotifySettings struct {
	// A nil entry leaves that notifier disabled.
	Redis   *notify.RedisConfig
	Discord *notify.DiscordConfig
}

// NotifyComponent builds the new-item notifiers. Discord reuses the session
// owned by the platforms component.
type NotifyComponent struct {
	settings  NotifySettings
	platforms *PlatformComponent
	redis     *notify.RedisStream
	notifiers []core.Notifier
	logger    *slog.Logger
}

func NewNotifyComponent(settings NotifySettings, platforms *PlatformComponent, logger *slog.Logger) *NotifyComponent {
	if logger == nil {
		logger = slog.Default()
	}
	if settings.Redis != nil {
		settings.Redis.Logger = logger
	}
	if settings.Discord != nil {
		settings.Discord.Logger = logger
	}
	return &NotifyComponent{
		settings:  settings,
		platforms: platforms,
		logger:    logger,
	}
}

func (c *NotifyComponent) Name() string {
	return NotifyComponentName
}

func (c *NotifyComponent) Dependencies() []string {
	if c.settings.Discord != nil {
		return []string{PlatformComponentName}
	}
	return []string{}
}

func (c *NotifyComponent) Validate() error {
	if c.settings.Discord != nil && c.platforms == nil {
		return fmt.Errorf("notify: discord requires the platforms component")
	}
	return nil
}

// Initialize connects the notifiers. An unreachable Redis is logged and the
// stream stays registered; publishes fail per cycle until it comes back.
func (c *NotifyComponent) Initialize(ctx context.Context) error {
	if cfg := c.settings.Redis; cfg != nil {
		c.redis = notify.NewRedisStream(*cfg)
		if err := c.redis.Ping(ctx); err != nil {
			c.logger.Warn("Redis unreachable at startup", "addr", cfg.Addr, "error", err)
		}
		c.notifiers = append(c.notifiers, c.redis)
	}

	if cfg := c.settings.Discord; cfg != nil {
		platform := c.platforms.Discord()
		if platform == nil || platform.Session() == nil {
			return fmt.Errorf("notify: discord platform not initialized")
		}
		discord, err := notify.NewDiscordChannel(*cfg, platform.Session())
		if err != nil {
			return err
		}
		c.notifiers = append(c.notifiers, discord)
	}

	return nil
}

func (c *NotifyComponent) Close(ctx context.Context) error {
	if c.redis == nil {
		return nil
	}
	return c.redis.Close()
}

func (c *NotifyComponent) Notifiers() []core.Notifier {
	return c.notifiers
}
