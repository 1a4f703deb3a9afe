package platforms

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bwmarrin/discordgo"
)

type DiscordSettings struct {
	BotToken string
}

// DiscordPlatform holds a REST-only bot session. Sending messages needs no
// gateway connection, so the websocket is never opened.
type DiscordPlatform struct {
	botToken string
	session  *discordgo.Session
	logger   *slog.Logger
}

func NewDiscordPlatform(settings DiscordSettings, logger *slog.Logger) (*DiscordPlatform, error) {
	if settings.BotToken == "" {
		return nil, fmt.Errorf("discord platform: bot token is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &DiscordPlatform{
		botToken: settings.BotToken,
		logger:   logger,
	}, nil
}

func (p *DiscordPlatform) Initialize(ctx context.Context) error {
	session, err := discordgo.New("Bot " + p.botToken)
	if err != nil {
		return fmt.Errorf("failed to create discord session: %w", err)
	}
	session.UserAgent = "hashwatch (https://github.com/bwmarrin/discordgo)"
	p.session = session
	p.logger.Info("Discord platform initialized")
	return nil
}

func (p *DiscordPlatform) Close(ctx context.Context) error {
	p.session = nil
	return nil
}

func (p *DiscordPlatform) Session() *discordgo.Session {
	return p.session
}
