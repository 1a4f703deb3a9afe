package components

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"hashwatch/internal/graph"
)

const (
	StorageComponentName  = "storage"
	PlatformComponentName = "platforms"
	ServerComponentName   = "servers"
	NotifyComponentName   = "notify"
)

type IComponent interface {
	Name() string
	Dependencies() []string
	Validate() error
	Initialize(ctx context.Context) error
	Close(ctx context.Context) error
}

// Registry initializes components in dependency order and closes them in
// reverse.
type Registry struct {
	components map[string]IComponent
	order      []string
	logger     *slog.Logger
}

func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		components: make(map[string]IComponent),
		order:      make([]string, 0),
		logger:     logger,
	}
}

func (r *Registry) Register(component IComponent) error {
	name := component.Name()
	if _, exists := r.components[name]; exists {
		return fmt.Errorf("component %s already registered", name)
	}
	r.components[name] = component
	return nil
}

func (r *Registry) Get(name string) (IComponent, bool) {
	comp, exists := r.components[name]
	return comp, exists
}

func (r *Registry) InitializeAll(ctx context.Context) error {
	nodes := make(map[string]graph.Node, len(r.components))
	for name, comp := range r.components {
		nodes[name] = &componentNode{comp: comp}
	}

	order, err := graph.TopologicalSort(nodes)
	if err != nil {
		return err
	}

	for _, name := range order {
		if err := r.components[name].Validate(); err != nil {
			return fmt.Errorf("component %s validation failed: %w", name, err)
		}
	}

	for _, name := range order {
		if err := r.components[name].Initialize(ctx); err != nil {
			return fmt.Errorf("component %s initialization failed: %w", name, err)
		}
		r.order = append(r.order, name)
		r.logger.Debug("Component initialized", "component", name)
	}

	return nil
}

type componentNode struct {
	comp IComponent
}

func (cn *componentNode) GetName() string {
	return cn.comp.Name()
}

func (cn *componentNode) GetDependencies() []string {
	return cn.comp.Dependencies()
}

// CloseAll closes every initialized component, newest first. It keeps going
// past failures and returns them joined.
func (r *Registry) CloseAll(ctx context.Context) error {
	var errs []error
	for i := len(r.order) - 1; i >= 0; i-- {
		name := r.order[i]
		if err := r.components[name].Close(ctx); err != nil {
			r.logger.Error("Error closing component", "component", name, "error", err)
			errs = append(errs, fmt.Errorf("close %s: %w", name, err))
		}
	}
	r.order = r.order[:0]
	return errors.Join(errs...)
}
