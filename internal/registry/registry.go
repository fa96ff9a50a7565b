// Package registry provides name-based factory registries for adapters,
// scorers, and sinks. Implementing packages register themselves at startup
// via explicit Register calls (usually from init functions); given a name
// and a config map, the registry produces an instance.
package registry

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/evalgate/evalgate/internal/domain/eval"
)

// Error types for registry operations.
var (
	// ErrAlreadyRegistered is returned when a name is registered twice.
	ErrAlreadyRegistered = errors.New("factory already registered")
	// ErrNotFound is returned when no factory exists for a name.
	ErrNotFound = errors.New("factory not found")
)

// Factory produces an instance from a config map.
type Factory[T any] func(config map[string]any) (T, error)

// Registry is a thread-safe name → factory map.
type Registry[T any] struct {
	mu        sync.RWMutex
	factories map[string]Factory[T]
}

// New creates an empty registry.
func New[T any]() *Registry[T] {
	return &Registry[T]{factories: make(map[string]Factory[T])}
}

// Register adds a factory under a name. Re-registering an existing name is
// rejected with ErrAlreadyRegistered.
func (r *Registry[T]) Register(name string, factory Factory[T]) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[name]; exists {
		return fmt.Errorf("%w: %q", ErrAlreadyRegistered, name)
	}
	r.factories[name] = factory
	return nil
}

// MustRegister registers a factory and panics on conflict. For use from
// init functions where a duplicate is a programming error.
func (r *Registry[T]) MustRegister(name string, factory Factory[T]) {
	if err := r.Register(name, factory); err != nil {
		panic(err)
	}
}

// Build produces an instance by name.
func (r *Registry[T]) Build(name string, config map[string]any) (T, error) {
	r.mu.RLock()
	factory, ok := r.factories[name]
	r.mu.RUnlock()

	var zero T
	if !ok {
		return zero, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	return factory(config)
}

// Names returns the registered names, sorted.
func (r *Registry[T]) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Process-wide default registries, populated by the implementing packages.
var (
	// Adapters maps adapter names to factories.
	Adapters = New[eval.Adapter]()
	// Scorers maps scorer names to factories.
	Scorers = New[eval.Scorer]()
	// Sinks maps sink names to factories.
	Sinks = New[eval.Sink]()
)
