// Package registry provides a generic name-to-factory table used to plug in
// reformulation methods and searcher backends without touching call sites.
package registry

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/kailas-cloud/queryforge/internal/domain"
)

// Factory constructs a T from construction arguments A.
type Factory[A, T any] func(args A) (T, error)

// UnknownKeyError is returned by Create for an unbound name.
type UnknownKeyError struct {
	Kind      string
	Name      string
	Available []string
}

func (e *UnknownKeyError) Error() string {
	return fmt.Sprintf("%s: unknown %s %q (available: %s)",
		domain.ErrUnknownRegistryKey.Error(), e.Kind, e.Name, strings.Join(e.Available, ", "))
}

func (e *UnknownKeyError) Unwrap() error { return domain.ErrUnknownRegistryKey }

// Registry maps names to factories.
//
// Registrations normally happen once at startup; the lock only keeps a late
// registration from corrupting the map, it does not order it against Create.
type Registry[A, T any] struct {
	kind      string
	mu        sync.RWMutex
	factories map[string]Factory[A, T]
}

// New creates an empty registry. kind names the entries in error messages ("method", "searcher").
func New[A, T any](kind string) *Registry[A, T] {
	return &Registry[A, T]{kind: kind, factories: make(map[string]Factory[A, T])}
}

type registerOptions struct {
	allowReplace bool
}

// RegisterOption tunes a single Register call.
type RegisterOption func(*registerOptions)

// AllowReplace lets Register overwrite an existing binding.
func AllowReplace() RegisterOption {
	return func(o *registerOptions) { o.allowReplace = true }
}

// Register binds name to factory.
func (r *Registry[A, T]) Register(name string, factory Factory[A, T], opts ...RegisterOption) error {
	if name == "" {
		return domain.Configurationf("%s name is required", r.kind)
	}
	if factory == nil {
		return domain.Configurationf("%s %q: factory is nil", r.kind, name)
	}

	var o registerOptions
	for _, opt := range opts {
		opt(&o)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[name]; exists && !o.allowReplace {
		return fmt.Errorf("%w: %s %q", domain.ErrDuplicateRegistration, r.kind, name)
	}
	r.factories[name] = factory
	return nil
}

// MustRegister is Register that panics on error, for startup code.
func (r *Registry[A, T]) MustRegister(name string, factory Factory[A, T], opts ...RegisterOption) {
	if err := r.Register(name, factory, opts...); err != nil {
		panic(err)
	}
}

// Create calls the factory bound to name. Factory errors are returned as is.
func (r *Registry[A, T]) Create(name string, args A) (T, error) {
	r.mu.RLock()
	factory, ok := r.factories[name]
	r.mu.RUnlock()

	if !ok {
		var zero T
		return zero, &UnknownKeyError{Kind: r.kind, Name: name, Available: r.Names()}
	}
	return factory(args)
}

// Has reports whether name is bound.
func (r *Registry[A, T]) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[name]
	return ok
}

// Names returns the registered names, sorted.
func (r *Registry[A, T]) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Kind returns the entry kind this registry was created with.
func (r *Registry[A, T]) Kind() string { return r.kind }
