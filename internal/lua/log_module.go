package lua

import (
	"context"
	"log/slog"

	lua "github.com/yuin/gopher-lua"
)

// LogModule exposes log.debug/info/warn/error to scripts. Messages carry the
// script name.
type LogModule struct {
	logger *slog.Logger
	script string
}

func NewLogModule(logger *slog.Logger, script string) *LogModule {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogModule{logger: logger, script: script}
}

func (l *LogModule) Name() string {
	return "log"
}

func (l *LogModule) Register(L *lua.LState) error {
	logTable := L.NewTable()
	L.SetField(logTable, "debug", L.NewFunction(l.logAt(slog.LevelDebug)))
	L.SetField(logTable, "info", L.NewFunction(l.logAt(slog.LevelInfo)))
	L.SetField(logTable, "warn", L.NewFunction(l.logAt(slog.LevelWarn)))
	L.SetField(logTable, "error", L.NewFunction(l.logAt(slog.LevelError)))
	L.SetGlobal("log", logTable)
	return nil
}

func (l *LogModule) logAt(level slog.Level) lua.LGFunction {
	return func(L *lua.LState) int {
		ctx := L.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		l.logger.Log(ctx, level, L.CheckString(1), "script", l.script)
		return 0
	}
}
