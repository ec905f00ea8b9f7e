package variants

import (
	"context"
	"errors"
	"fmt"
	"sync"

	pipelines "github.com/neuromechanist/openwebui-piplines"
)

// Registry holds pipelines keyed by model id, in registration order.
type Registry struct {
	mu    sync.RWMutex
	order []string
	byID  map[string]*pipelines.Pipeline
}

// NewRegistry creates a registry holding the given pipelines.
// It panics on a duplicate id.
func NewRegistry(ps ...*pipelines.Pipeline) *Registry {
	r := &Registry{byID: make(map[string]*pipelines.Pipeline)}
	for _, p := range ps {
		if err := r.Register(p); err != nil {
			panic(err)
		}
	}
	return r
}

// Default builds both shipped pipelines with credentials from the environment.
func Default(endpoints Endpoints, opts ...pipelines.Option) *Registry {
	return NewRegistry(
		NewDirect(nil, endpoints, opts...),
		NewOpenRouter(nil, endpoints, opts...),
	)
}

// Register adds p under its id.
func (r *Registry) Register(p *pipelines.Pipeline) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byID[p.ID()]; exists {
		return fmt.Errorf("pipeline %q already registered", p.ID())
	}
	r.byID[p.ID()] = p
	r.order = append(r.order, p.ID())
	return nil
}

// Get returns the pipeline serving model id.
func (r *Registry) Get(id string) (*pipelines.Pipeline, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byID[id]
	return p, ok
}

// List returns the pipelines in registration order.
func (r *Registry) List() []*pipelines.Pipeline {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*pipelines.Pipeline, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.byID[id])
	}
	return out
}

// Models returns the combined catalog of every registered pipeline.
func (r *Registry) Models() []pipelines.ModelInfo {
	var models []pipelines.ModelInfo
	for _, p := range r.List() {
		models = append(models, p.Models()...)
	}
	return models
}

// Startup runs every pipeline's startup hook.
func (r *Registry) Startup(ctx context.Context) error {
	var errs []error
	for _, p := range r.List() {
		if err := p.OnStartup(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", p.ID(), err))
		}
	}
	return errors.Join(errs...)
}

// Shutdown runs every pipeline's shutdown hook, releasing client handles.
func (r *Registry) Shutdown(ctx context.Context) error {
	var errs []error
	for _, p := range r.List() {
		if err := p.OnShutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", p.ID(), err))
		}
	}
	return errors.Join(errs...)
}
