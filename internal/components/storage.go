package components

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"hashwatch/internal/storage"
)

type StorageSettings struct {
	Path        string
	BusyTimeout time.Duration
	Seed        storage.Seed
}

type StorageComponent struct {
	settings StorageSettings
	gateway  *storage.Gateway
	store    *storage.Store
	logger   *slog.Logger
}

func NewStorageComponent(settings StorageSettings, logger *slog.Logger) *StorageComponent {
	if logger == nil {
		logger = slog.Default()
	}
	return &StorageComponent{
		settings: settings,
		logger:   logger,
	}
}

func (c *StorageComponent) Name() string {
	return StorageComponentName
}

func (c *StorageComponent) Dependencies() []string {
	return []string{}
}

func (c *StorageComponent) Validate() error {
	if c.settings.Path == "" {
		return fmt.Errorf("storage: database path is required")
	}
	return nil
}

func (c *StorageComponent) Initialize(ctx context.Context) error {
	c.gateway = storage.NewGateway(storage.GatewayConfig{
		Path:        c.settings.Path,
		BusyTimeout: c.settings.BusyTimeout,
		Logger:      c.logger,
	})
	c.store = storage.NewStore(c.gateway, c.logger)

	if err := c.store.Bootstrap(ctx, c.settings.Seed); err != nil {
		c.gateway.Close()
		return fmt.Errorf("storage: failed to bootstrap %s: %w", c.settings.Path, err)
	}
	return nil
}

func (c *StorageComponent) Close(ctx context.Context) error {
	if c.gateway == nil {
		return nil
	}
	return c.gateway.Close()
}

func (c *StorageComponent) Store() *storage.Store {
	return c.store
}
