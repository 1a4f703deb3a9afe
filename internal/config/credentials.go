package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// Credentials come from a key=value file. Lines are trimmed of surrounding
// whitespace, keys are matched exactly, unknown lines are ignored and missing
// keys stay empty. Nothing is validated here;
// a bad secret first shows up as a failed remote call.
type Credentials struct {
	ConsumerKey       string
	ConsumerSecret    string
	AccessTokenKey    string
	AccessTokenSecret string
	BlueskyIdentifier string
	BlueskyPassword   string
	DiscordBotToken   string
}

func ParseCredentials(r io.Reader) (Credentials, error) {
	var creds Credentials
	fields := map[string]*string{
		"consumer_key":        &creds.ConsumerKey,
		"consumer_secret":     &creds.ConsumerSecret,
		"access_token_key":    &creds.AccessTokenKey,
		"access_token_secret": &creds.AccessTokenSecret,
		"bluesky_identifier":  &creds.BlueskyIdentifier,
		"bluesky_password":    &creds.BlueskyPassword,
		"discord_bot_token":   &creds.DiscordBotToken,
	}

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		key, value, ok := strings.Cut(strings.TrimSpace(scanner.Text()), "=")
		if !ok {
			continue
		}
		if field, known := fields[key]; known {
			*field = value
		}
	}
	if err := scanner.Err(); err != nil {
		return Credentials{}, fmt.Errorf("failed to read credentials: %w", err)
	}

	return creds, nil
}

func ReadCredentials(path string) (Credentials, error) {
	f, err := os.Open(path)
	if err != nil {
		return Credentials{}, fmt.Errorf("failed to open credentials file: %w", err)
	}
	defer f.Close()

	return ParseCredentials(f)
}
