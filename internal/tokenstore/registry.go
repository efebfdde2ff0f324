package tokenstore

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"
)

// DefaultOrder returns the provider order used when a caller does not specify one.
func DefaultOrder() []string {
	return []string{"env_file", "json_file", "database", "api"}
}

// ErrInvalidStore is returned when registering a store that cannot serve tokens.
var ErrInvalidStore = errors.New("invalid token store")

// Factory constructs a store on first use.
type Factory func() (TokenStore, error)

// Registry maps store names to instances. Stores registered through a Factory
// are constructed lazily and cached for the lifetime of the registry.
type Registry struct {
	mu        sync.Mutex
	stores    map[string]TokenStore
	factories map[string]Factory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		stores:    make(map[string]TokenStore),
		factories: make(map[string]Factory),
	}
}

// Register adds or replaces a store under its name.
func (r *Registry) Register(store TokenStore) error {
	if store == nil {
		return fmt.Errorf("%w: nil", ErrInvalidStore)
	}
	name := store.Name()
	if name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidStore)
	}

	r.mu.Lock()
	r.stores[name] = store
	delete(r.factories, name)
	r.mu.Unlock()

	slog.Debug("registered token store", "store", name)
	return nil
}

// RegisterFactory registers a store that is constructed on first Resolve.
// Replaces any instance already registered under name.
func (r *Registry) RegisterFactory(name string, factory Factory) error {
	if name == "" || factory == nil {
		return fmt.Errorf("%w: factory for %q", ErrInvalidStore, name)
	}

	r.mu.Lock()
	delete(r.stores, name)
	r.factories[name] = factory
	r.mu.Unlock()
	return nil
}

// Resolve returns the store registered under name, constructing it if needed.
// A store that fails to construct is reported as absent; construction is
// retried on the next call.
func (r *Registry) Resolve(name string) (TokenStore, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if store, ok := r.stores[name]; ok {
		return store, true
	}

	factory, ok := r.factories[name]
	if !ok {
		slog.Debug("unknown token store", "store", name)
		return nil, false
	}

	store, err := factory()
	if err != nil {
		slog.Warn("token store unavailable", "store", name, "error", err)
		return nil, false
	}
	if store == nil {
		slog.Warn("token store unavailable", "store", name, "error", ErrInvalidStore)
		return nil, false
	}

	r.stores[name] = store
	delete(r.factories, name)
	return store, true
}

// Names returns the names of all registered stores, constructed or not, sorted.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, 0, len(r.stores)+len(r.factories))
	for name := range r.stores {
		names = append(names, name)
	}
	for name := range r.factories {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Close closes every constructed store that holds resources.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for name, store := range r.stores {
		if c, ok := store.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, fmt.Errorf("closing %s: %w", name, err))
			}
		}
	}
	return errors.Join(errs...)
}
