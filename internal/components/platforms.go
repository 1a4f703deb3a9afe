package components

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"hashwatch/internal/platforms"
)

type PlatformSettings struct {
	// A nil entry leaves that platform disabled.
	Bluesky *platforms.BlueskySettings
	Discord *platforms.DiscordSettings
}

// PlatformComponent owns authenticated platform sessions shared by fetchers
// and notifiers.
type PlatformComponent struct {
	settings PlatformSettings
	bluesky  *platforms.BlueskyPlatform
	discord  *platforms.DiscordPlatform
	logger   *slog.Logger
}

func NewPlatformComponent(settings PlatformSettings, logger *slog.Logger) *PlatformComponent {
	if logger == nil {
		logger = slog.Default()
	}
	return &PlatformComponent{
		settings: settings,
		logger:   logger,
	}
}

func (c *PlatformComponent) Name() string {
	return PlatformComponentName
}

func (c *PlatformComponent) Dependencies() []string {
	return []string{}
}

func (c *PlatformComponent) Validate() error {
	if s := c.settings.Bluesky; s != nil && (s.Identifier == "" || s.Password == "") {
		return fmt.Errorf("platforms: bluesky requires an identifier and an app password")
	}
	if s := c.settings.Discord; s != nil && s.BotToken == "" {
		return fmt.Errorf("platforms: discord requires a bot token")
	}
	return nil
}

func (c *PlatformComponent) Initialize(ctx context.Context) error {
	if s := c.settings.Bluesky; s != nil {
		bluesky, err := platforms.NewBlueskyPlatform(*s, c.logger)
		if err != nil {
			return fmt.Errorf("failed to create bluesky platform: %w", err)
		}
		if err := bluesky.Initialize(ctx); err != nil {
			return fmt.Errorf("bluesky platform initialization failed: %w", err)
		}
		c.bluesky = bluesky
	}

	if s := c.settings.Discord; s != nil {
		discord, err := platforms.NewDiscordPlatform(*s, c.logger)
		if err != nil {
			return fmt.Errorf("failed to create discord platform: %w", err)
		}
		if err := discord.Initialize(ctx); err != nil {
			return fmt.Errorf("discord platform initialization failed: %w", err)
		}
		c.discord = discord
	}
	return nil
}

func (c *PlatformComponent) Close(ctx context.Context) error {
	var errs []error
	if c.bluesky != nil {
		errs = append(errs, c.bluesky.Close(ctx))
	}
	if c.discord != nil {
		errs = append(errs, c.discord.Close(ctx))
	}
	return errors.Join(errs...)
}

func (c *PlatformComponent) Bluesky() *platforms.BlueskyPlatform {
	return c.bluesky
}

func (c *PlatformComponent) Discord() *platforms.DiscordPlatform {
	return c.discord
}
