package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bwmarrin/discordgo"

	"hashwatch/internal/core"
)

const (
	maxEmbedFields     = 25
	maxEmbedFieldValue = 1024
	maxEmbedFieldName  = 256
	embedColor         = 0x1DA1F2
)

// EmbedSender is the part of *discordgo.Session the notifier uses.
type EmbedSender interface {
	ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

type DiscordConfig struct {
	Name      string
	ChannelID string
	// MaxItems caps the items listed per message; the rest are counted in
	// the footer.
	MaxItems int
	Logger   *slog.Logger
}

// DiscordChannel posts one embed per term and cycle to a text channel.
type DiscordChannel struct {
	name      string
	channelID string
	maxItems  int
	sender    EmbedSender
	logger    *slog.Logger
}

var _ core.Notifier = (*DiscordChannel)(nil)

func NewDiscordChannel(cfg DiscordConfig, sender EmbedSender) (*DiscordChannel, error) {
	if cfg.ChannelID == "" {
		return nil, fmt.Errorf("discord notifier: channel id is required")
	}
	if sender == nil {
		return nil, fmt.Errorf("discord notifier: no session")
	}
	if cfg.Name == "" {
		cfg.Name = "discord"
	}
	if cfg.MaxItems <= 0 || cfg.MaxItems > maxEmbedFields {
		cfg.MaxItems = 10
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &DiscordChannel{
		name:      cfg.Name,
		channelID: cfg.ChannelID,
		maxItems:  cfg.MaxItems,
		sender:    sender,
		logger:    cfg.Logger,
	}, nil
}

func (d *DiscordChannel) Name() string {
	return d.name
}

func (d *DiscordChannel) Notify(ctx context.Context, term string, items []core.Item) error {
	if len(items) == 0 {
		return nil
	}

	msg, err := d.sender.ChannelMessageSendEmbed(d.channelID, buildEmbed(term, items, d.maxItems), discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("discord %s: failed to send message for %s: %w", d.name, term, err)
	}

	d.logger.Debug("Posted items", "notifier", d.name, "channel", d.channelID, "term", term, "count", len(items), "message_id", msg.ID)
	return nil
}

func buildEmbed(term string, items []core.Item, maxItems int) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{
		Title:     fmt.Sprintf("%d new for %s", len(items), term),
		Color:     embedColor,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	shown := items
	if len(shown) > maxItems {
		shown = shown[:maxItems]
		embed.Footer = &discordgo.MessageEmbedFooter{
			Text: fmt.Sprintf("and %d more", len(items)-maxItems),
		}
	}

	for _, item := range shown {
		name := item.Author
		if name == "" {
			name = "unknown"
		}
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:  truncate(name, maxEmbedFieldName),
			Value: truncate(nonEmpty(item.Body), maxEmbedFieldValue),
		})
	}

	return embed
}

func nonEmpty(s string) string {
	if s == "" {
		return "(empty)"
	}
	return s
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit-3]) + "..."
}
