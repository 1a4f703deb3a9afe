package lua

import (
	"context"
	"fmt"
	"sync"

	lua "github.com/yuin/gopher-lua"
)

// Module installs a global table into a state.
type Module interface {
	Name() string
	Register(L *lua.LState) error
}

// Runtime wraps one Lua state. A state is single threaded, so every call
// into it holds mu.
type Runtime struct {
	mu         sync.Mutex
	state      *lua.LState
	secureMode bool
}

type RuntimeOption func(*Runtime)

func WithLoader(loader Loader) RuntimeOption {
	return func(r *Runtime) {
		if loader != nil {
			SetupRequire(r.state, loader)
		}
	}
}

func WithSecureMode(secure bool) RuntimeOption {
	return func(r *Runtime) {
		r.secureMode = secure
	}
}

// WithPreload makes a Go module available to require(name).
func WithPreload(name string, loader lua.LGFunction) RuntimeOption {
	return func(r *Runtime) {
		r.state.PreloadModule(name, loader)
	}
}

func NewRuntime(options ...RuntimeOption) *Runtime {
	runtime := &Runtime{
		state:      lua.NewState(),
		secureMode: true,
	}

	for _, opt := range options {
		opt(runtime)
	}

	if runtime.secureMode {
		for _, name := range []string{"os", "io", "debug", "dofile", "loadfile"} {
			runtime.state.SetGlobal(name, lua.LNil)
		}
	}

	return runtime
}

func (r *Runtime) Register(modules ...Module) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, module := range modules {
		if err := module.Register(r.state); err != nil {
			return fmt.Errorf("failed to register %s module: %w", module.Name(), err)
		}
	}
	return nil
}

func (r *Runtime) LoadScript(scriptContent string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.state.DoString(scriptContent); err != nil {
		return fmt.Errorf("failed to load script: %w", err)
	}
	return nil
}

// Call invokes the global function name with args converted by ToLuaValue
// and returns its results converted by ToGoValue. Cancelling ctx aborts the
// running script.
func (r *Runtime) Call(ctx context.Context, name string, args ...interface{}) ([]interface{}, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	luaFn, ok := r.state.GetGlobal(name).(*lua.LFunction)
	if !ok {
		return nil, fmt.Errorf("function %s not found", name)
	}

	r.state.SetContext(ctx)
	defer r.state.RemoveContext()

	base := r.state.GetTop()
	r.state.Push(luaFn)
	for _, arg := range args {
		r.state.Push(ToLuaValue(r.state, arg))
	}

	if err := r.state.PCall(len(args), lua.MultRet, nil); err != nil {
		r.state.SetTop(base)
		return nil, fmt.Errorf("lua execution error: %w", err)
	}

	top := r.state.GetTop()
	results := make([]interface{}, 0, top-base)
	for i := base + 1; i <= top; i++ {
		results = append(results, ToGoValue(r.state.Get(i)))
	}
	r.state.SetTop(base)

	return results, nil
}

func (r *Runtime) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != nil {
		r.state.Close()
		r.state = nil
	}
	return nil
}
