package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseCredentials(t *testing.T) {
	input := strings.Join([]string{
		"consumer_key=ck",
		"consumer_secret=cs=with=equals",
		"# comment",
		"  access_token_key=atk",
		"unknown=value",
		"access_token_secret=ats\r",
		"\tbluesky_identifier=me.bsky.social  ",
		"discord_bot_token=tok",
		"consumer_key =ignored",
	}, "\n")

	creds, err := ParseCredentials(strings.NewReader(input))
	if err != nil {
		t.Fatalf("ParseCredentials() error = %v", err)
	}

	want := Credentials{
		ConsumerKey:       "ck",
		ConsumerSecret:    "cs=with=equals",
		AccessTokenKey:    "atk",
		AccessTokenSecret: "ats",
		BlueskyIdentifier: "me.bsky.social",
		DiscordBotToken:   "tok",
	}
	if creds != want {
		t.Errorf("creds = %+v, want %+v", creds, want)
	}
}

func TestParseCredentialsMissingKeys(t *testing.T) {
	creds, err := ParseCredentials(strings.NewReader("consumer_key=only\n"))
	if err != nil {
		t.Fatalf("ParseCredentials() error = %v", err)
	}
	if creds.ConsumerKey != "only" || creds.ConsumerSecret != "" || creds.AccessTokenSecret != "" {
		t.Errorf("creds = %+v", creds)
	}
}

func TestReadCredentials(t *testing.T) {
	path := filepath.Join(t.TempDir(), "api.txt")
	if err := os.WriteFile(path, []byte("access_token_key=abc\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	creds, err := ReadCredentials(path)
	if err != nil || creds.AccessTokenKey != "abc" {
		t.Errorf("ReadCredentials() = (%+v, %v)", creds, err)
	}

	if _, err := ReadCredentials(filepath.Join(t.TempDir(), "none.txt")); err == nil {
		t.Error("expected error for a missing file")
	}
}
