package sources

import (
	"context"
	"embed"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/cjoudrey/gluahttp"
	gluajson "layeh.com/gopher-json"

	"hashwatch/internal/core"
	"hashwatch/internal/lua"
)

//go:embed scripts/*.lua
var bundledScripts embed.FS

type ScriptConfig struct {
	Name string
	// Script names a bundled script, e.g. "mastodon".
	Script string
	// ScriptPath points at a script on disk. Exactly one of Script and
	// ScriptPath is set.
	ScriptPath string
	Settings   map[string]interface{}
	Timeout    time.Duration
	Logger     *slog.Logger
}

// ScriptSource runs a Lua search(term, since, settings) function that returns
// a list of {author, body, time | created_at} tables. time is epoch seconds;
// created_at is RFC 3339. Scripts can require "http" and "json" and use the
// html and log globals. Every fetch runs in its own Lua state, so terms are
// searched concurrently.
type ScriptSource struct {
	name       string
	script     string
	scriptPath string
	settings   map[string]interface{}
	timeout    time.Duration
	loader     lua.Loader
	identifier string
	content    string
	ready      atomic.Bool
	logger     *slog.Logger
}

func NewScriptSource(cfg ScriptConfig) (*ScriptSource, error) {
	if (cfg.Script == "") == (cfg.ScriptPath == "") {
		return nil, fmt.Errorf("script source: exactly one of script and script_path is required")
	}
	if cfg.Name == "" {
		cfg.Name = "script"
	}
	if cfg.Settings == nil {
		cfg.Settings = map[string]interface{}{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &ScriptSource{
		name:       cfg.Name,
		script:     cfg.Script,
		scriptPath: cfg.ScriptPath,
		settings:   cfg.Settings,
		timeout:    cfg.Timeout,
		logger:     cfg.Logger,
	}, nil
}

func (s *ScriptSource) Name() string {
	return s.name
}

func (s *ScriptSource) Domain() core.Domain {
	return core.DomainEpoch
}

func (s *ScriptSource) Initialize(ctx context.Context) error {
	var loader lua.Loader
	identifier := s.script
	if s.script != "" {
		loader = lua.NewFSLoader(bundledScripts, "scripts")
	} else {
		loader = lua.NewFilesystemLoader(".")
		identifier = s.scriptPath
	}

	content, err := loader.Load(identifier)
	if err != nil {
		return err
	}
	s.loader = loader
	s.identifier = identifier
	s.content = content

	runtime, err := s.newRuntime()
	if err != nil {
		return err
	}
	runtime.Close()

	s.ready.Store(true)
	s.logger.Info("Script source initializing", "source", s.name, "script", identifier)
	return nil
}

// newRuntime builds a sandboxed state with the script loaded.
func (s *ScriptSource) newRuntime() (*lua.Runtime, error) {
	runtime := lua.NewRuntime(
		lua.WithLoader(s.loader),
		lua.WithSecureMode(true),
		lua.WithPreload("http", gluahttp.NewHttpModule(newHTTPClient(s.timeout)).Loader),
		lua.WithPreload("json", gluajson.Loader),
	)
	if err := runtime.Register(lua.NewHTMLModule(), lua.NewLogModule(s.logger, s.identifier)); err != nil {
		runtime.Close()
		return nil, err
	}
	if err := runtime.LoadScript(s.content); err != nil {
		runtime.Close()
		return nil, fmt.Errorf("script source %s: %w", s.name, err)
	}
	return runtime, nil
}

func (s *ScriptSource) Fetch(ctx context.Context, term string, since int64) (<-chan core.Item, <-chan error) {
	itemChan := make(chan core.Item)
	errChan := make(chan error, 1)

	go func() {
		defer close(itemChan)
		defer close(errChan)

		if !s.ready.Load() {
			errChan <- fmt.Errorf("script source %s: not initialized", s.name)
			return
		}

		runtime, err := s.newRuntime()
		if err != nil {
			errChan <- err
			return
		}
		defer runtime.Close()

		results, err := runtime.Call(ctx, "search", term, since, s.settings)
		if err != nil {
			s.logger.Error("Script execution error", "source", s.name, "term", term, "error", err)
			errChan <- err
			return
		}

		var raw []interface{}
		if len(results) > 0 {
			switch v := results[0].(type) {
			case []interface{}:
				raw = v
			case map[string]interface{}:
				// An empty Lua table converts to an empty map.
			default:
				errChan <- fmt.Errorf("script source %s: search returned %T, want a list", s.name, results[0])
				return
			}
		}

		items := make([]core.Item, 0, len(raw))
		for i, entry := range raw {
			item, err := scriptResultToItem(entry)
			if err != nil {
				s.logger.Warn("Skipping script result", "source", s.name, "index", i, "error", err)
				continue
			}
			items = append(items, item)
		}

		items = newerThan(items, since)
		s.logger.Debug("Script source retrieved items", "source", s.name, "term", term, "fetched", len(raw), "new", len(items))

		if err := emit(ctx, itemChan, items); err != nil {
			errChan <- err
		}
	}()

	return itemChan, errChan
}

func scriptResultToItem(entry interface{}) (core.Item, error) {
	fields, ok := entry.(map[string]interface{})
	if !ok {
		return core.Item{}, fmt.Errorf("expected table, got %T", entry)
	}

	var ts int64
	switch {
	case fields["time"] != nil:
		n, ok := fields["time"].(float64)
		if !ok {
			return core.Item{}, fmt.Errorf("time must be a number, got %T", fields["time"])
		}
		ts = int64(n)
	case fields["created_at"] != nil:
		s, _ := fields["created_at"].(string)
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return core.Item{}, fmt.Errorf("invalid created_at %q: %w", s, err)
		}
		ts = t.Unix()
	default:
		return core.Item{}, fmt.Errorf("missing time and created_at")
	}

	author, _ := fields["author"].(string)
	body, _ := fields["body"].(string)
	return core.NewItem(author, ts, stripHTML(body)), nil
}

func (s *ScriptSource) Shutdown(ctx context.Context) error {
	s.logger.Debug("Script source shutting down", "source", s.name)
	s.ready.Store(false)
	return nil
}
