package platforms

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/bluesky-social/indigo/api/atproto"
	"github.com/bluesky-social/indigo/xrpc"
)

const DefaultBlueskyHost = "https://bsky.social"

type BlueskySettings struct {
	Host       string
	Identifier string
	Password   string
}

// BlueskyPlatform holds one authenticated XRPC session and hands it out to
// callers one at a time.
type BlueskyPlatform struct {
	host       string
	identifier string
	password   string
	logger     *slog.Logger

	mu     sync.Mutex
	client *xrpc.Client
}

func NewBlueskyPlatform(settings BlueskySettings, logger *slog.Logger) (*BlueskyPlatform, error) {
	if settings.Identifier == "" {
		return nil, fmt.Errorf("bluesky platform: identifier is required")
	}
	if settings.Password == "" {
		return nil, fmt.Errorf("bluesky platform: password is required")
	}
	if settings.Host == "" {
		settings.Host = DefaultBlueskyHost
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &BlueskyPlatform{
		host:       settings.Host,
		identifier: settings.Identifier,
		password:   settings.Password,
		logger:     logger,
	}, nil
}

func (p *BlueskyPlatform) Initialize(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.login(ctx)
}

// login must be called with p.mu held.
func (p *BlueskyPlatform) login(ctx context.Context) error {
	client := &xrpc.Client{Host: p.host}

	auth, err := atproto.ServerCreateSession(ctx, client, &atproto.ServerCreateSession_Input{
		Identifier: p.identifier,
		Password:   p.password,
	})
	if err != nil {
		return fmt.Errorf("failed to authenticate with bluesky: %w", err)
	}

	client.Auth = &xrpc.AuthInfo{
		AccessJwt:  auth.AccessJwt,
		RefreshJwt: auth.RefreshJwt,
		Handle:     auth.Handle,
		Did:        auth.Did,
	}

	p.logger.Info("Bluesky session created", "handle", auth.Handle, "host", p.host)
	p.client = client
	return nil
}

// refresh must be called with p.mu held.
func (p *BlueskyPlatform) refresh(ctx context.Context) error {
	if p.client == nil || p.client.Auth == nil {
		return p.login(ctx)
	}

	refreshClient := &xrpc.Client{
		Host: p.host,
		Auth: &xrpc.AuthInfo{
			AccessJwt:  p.client.Auth.RefreshJwt,
			RefreshJwt: p.client.Auth.RefreshJwt,
			Handle:     p.client.Auth.Handle,
			Did:        p.client.Auth.Did,
		},
	}

	out, err := atproto.ServerRefreshSession(ctx, refreshClient)
	if err != nil {
		p.logger.Warn("Bluesky session refresh failed, logging in again", "error", err)
		return p.login(ctx)
	}

	p.client.Auth = &xrpc.AuthInfo{
		AccessJwt:  out.AccessJwt,
		RefreshJwt: out.RefreshJwt,
		Handle:     out.Handle,
		Did:        out.Did,
	}
	return nil
}

// Do runs fn with the session client. An expired access token is refreshed
// and fn is retried once.
func (p *BlueskyPlatform) Do(ctx context.Context, fn func(c *xrpc.Client) error) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.client == nil {
		if err := p.login(ctx); err != nil {
			return err
		}
	}

	err := fn(p.client)
	if err == nil || !isExpiredToken(err) {
		return err
	}

	if err := p.refresh(ctx); err != nil {
		return err
	}
	return fn(p.client)
}

func isExpiredToken(err error) bool {
	return strings.Contains(err.Error(), "ExpiredToken")
}

func (p *BlueskyPlatform) Close(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.client == nil || p.client.Auth == nil {
		return nil
	}

	if err := atproto.ServerDeleteSession(ctx, &xrpc.Client{
		Host: p.host,
		Auth: &xrpc.AuthInfo{AccessJwt: p.client.Auth.RefreshJwt},
	}); err != nil {
		p.logger.Debug("Bluesky session delete failed", "error", err)
	}
	p.client = nil
	return nil
}
