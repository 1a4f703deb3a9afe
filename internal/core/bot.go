package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

type State int32

const (
	StateIdle State = iota
	StateReadingConfig
	StateRunning
	StateSleeping
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateReadingConfig:
		return "reading_config"
	case StateRunning:
		return "running"
	case StateSleeping:
		return "sleeping"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Bot drives the pipeline: one cycle right away, then one per poll interval.
type Bot struct {
	name            string
	pipeline        *Pipeline
	store           Store
	defaultInterval time.Duration
	intervalUnit    time.Duration
	refreshInterval bool
	runOnce         bool
	logger          *slog.Logger

	mu         sync.RWMutex
	running    bool
	state      State
	interval   time.Duration
	stopOnce   sync.Once
	stopCh     chan struct{}
	done       chan struct{}
	errorCh    chan error
	shutdownFn func() error
}

type BotConfig struct {
	Name     string
	Pipeline *Pipeline
	// Store is read for the poll interval. Usually the same store the
	// pipeline writes to.
	Store Store
	// DefaultInterval is used when the stored interval is missing or invalid.
	DefaultInterval time.Duration
	// IntervalUnit scales the stored interval. Defaults to one minute.
	IntervalUnit    time.Duration
	RefreshInterval bool
	RunOnce         bool
	ShutdownFn      func() error
	Logger          *slog.Logger
}

func NewBot(config BotConfig) *Bot {
	if config.DefaultInterval == 0 {
		config.DefaultInterval = 5 * time.Minute
	}
	if config.IntervalUnit == 0 {
		config.IntervalUnit = time.Minute
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	return &Bot{
		name:            config.Name,
		pipeline:        config.Pipeline,
		store:           config.Store,
		defaultInterval: config.DefaultInterval,
		intervalUnit:    config.IntervalUnit,
		refreshInterval: config.RefreshInterval,
		runOnce:         config.RunOnce,
		logger:          config.Logger,
		state:           StateIdle,
		stopCh:          make(chan struct{}),
		done:            make(chan struct{}),
		errorCh:         make(chan error, 10),
		shutdownFn:      config.ShutdownFn,
	}
}

// Start blocks until the context is cancelled, Stop is called, or, in run
// once mode, the single cycle finished.
func (b *Bot) Start(ctx context.Context) error {
	b.mu.Lock()
	if b.running {
		b.mu.Unlock()
		return fmt.Errorf("bot already running")
	}
	if b.state == StateStopped {
		b.mu.Unlock()
		return fmt.Errorf("bot already stopped")
	}
	b.running = true
	b.mu.Unlock()

	defer close(b.done)
	defer b.markStopped()

	if err := b.pipeline.Initialize(ctx); err != nil {
		return fmt.Errorf("failed to initialize pipeline: %w", err)
	}

	if b.runOnce {
		return b.runOnceMode(ctx)
	}

	return b.runContinuousMode(ctx)
}

func (b *Bot) runOnceMode(ctx context.Context) error {
	b.setState(StateRunning)
	if err := b.executeRun(ctx); err != nil {
		return fmt.Errorf("pipeline execution failed: %w", err)
	}
	return nil
}

func (b *Bot) runContinuousMode(ctx context.Context) error {
	interval := b.readInterval(ctx)
	b.logger.Info("Bot started", "bot", b.name, "interval", interval)

	b.setState(StateRunning)
	b.reportError(b.executeRun(ctx))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		b.setState(StateSleeping)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-b.stopCh:
			return nil
		case <-ticker.C:
		}

		if b.refreshInterval {
			if next := b.readInterval(ctx); next != interval {
				b.logger.Info("Poll interval changed", "bot", b.name, "from", interval, "to", next)
				interval = next
				ticker.Reset(interval)
			}
		}

		b.setState(StateRunning)
		b.reportError(b.executeRun(ctx))
	}
}

func (b *Bot) readInterval(ctx context.Context) time.Duration {
	b.setState(StateReadingConfig)

	minutes, ok := b.store.PollInterval(ctx)
	if !ok || minutes <= 0 {
		b.logger.Warn("Poll interval unavailable, using default", "bot", b.name, "default", b.defaultInterval)
		b.setInterval(b.defaultInterval)
		return b.defaultInterval
	}

	interval := time.Duration(minutes) * b.intervalUnit
	b.setInterval(interval)
	return interval
}

func (b *Bot) executeRun(ctx context.Context) error {
	report, err := b.pipeline.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("pipeline run failed: %w", err)
	}
	if report != nil {
		b.logger.Debug("Cycle finished", "bot", b.name, "terms", len(report.Terms), "stored", report.Stored(), "failed", len(report.Failed()))
	}
	return nil
}

func (b *Bot) reportError(err error) {
	if err == nil {
		return
	}
	b.logger.Error("Cycle failed", "bot", b.name, "error", err)
	select {
	case b.errorCh <- err:
	default:
	}
}

// Stop ends the loop, waits for an in-flight cycle, then shuts the pipeline
// down and runs the shutdown hook.
func (b *Bot) Stop(ctx context.Context) error {
	b.mu.RLock()
	running := b.running
	b.mu.RUnlock()

	b.stopOnce.Do(func() { close(b.stopCh) })

	if running {
		select {
		case <-b.done:
		case <-ctx.Done():
			return fmt.Errorf("failed to stop bot %s: %w", b.name, ctx.Err())
		}
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := b.pipeline.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("pipeline shutdown failed: %w", err)
	}

	if b.shutdownFn != nil {
		if err := b.shutdownFn(); err != nil {
			return fmt.Errorf("custom shutdown failed: %w", err)
		}
	}

	return nil
}

func (b *Bot) IsRunning() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.running
}

func (b *Bot) State() State {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state
}

// Interval is the period currently in effect, zero before the first read.
func (b *Bot) Interval() time.Duration {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.interval
}

func (b *Bot) Name() string {
	return b.name
}

func (b *Bot) Errors() <-chan error {
	return b.errorCh
}

func (b *Bot) setState(s State) {
	b.mu.Lock()
	b.state = s
	b.mu.Unlock()
}

func (b *Bot) setInterval(d time.Duration) {
	b.mu.Lock()
	b.interval = d
	b.mu.Unlock()
}

func (b *Bot) markStopped() {
	b.mu.Lock()
	b.running = false
	b.state = StateStopped
	b.mu.Unlock()
}
