package components

import (
	"context"
	"fmt"
	"log/slog"

	"hashwatch/internal/server/feed"
)

type ServerComponent struct {
	name    string
	config  feed.Config
	storage *StorageComponent
	server  *feed.Server
	logger  *slog.Logger
}

func NewServerComponent(name string, config feed.Config, storage *StorageComponent, logger *slog.Logger) *ServerComponent {
	if logger == nil {
		logger = slog.Default()
	}
	config.Logger = logger
	return &ServerComponent{
		name:    name,
		config:  config,
		storage: storage,
		logger:  logger,
	}
}

func (c *ServerComponent) Name() string {
	return ServerComponentName
}

func (c *ServerComponent) Dependencies() []string {
	return []string{StorageComponentName}
}

func (c *ServerComponent) Validate() error {
	if c.storage == nil {
		return fmt.Errorf("servers: storage component is required")
	}
	return nil
}

func (c *ServerComponent) Initialize(ctx context.Context) error {
	server := feed.New(c.name, c.config, c.storage.Store())
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("servers: failed to start feed server %s: %w", c.name, err)
	}
	c.server = server
	return nil
}

func (c *ServerComponent) Close(ctx context.Context) error {
	if c.server == nil {
		return nil
	}
	return c.server.Shutdown(ctx)
}

func (c *ServerComponent) Server() *feed.Server {
	return c.server
}
