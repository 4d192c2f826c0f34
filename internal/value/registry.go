package value

import (
	"fmt"
	"reflect"
	"sync"
)

// Registry maps kinds to their persist identifiers, dense indices and native
// Go types.
//
// The default registry is populated once with the built-in kinds. Extension
// kinds register during package initialisation; after that the registry is
// only read.
type Registry struct {
	mu       sync.RWMutex
	kinds    []*Kind
	byName   map[string]*Kind
	byID     map[uint32]*Kind
	byNative map[reflect.Type]*Kind
}

// NewRegistry creates a registry holding the built-in kinds.
func NewRegistry() *Registry {
	r := &Registry{
		byName:   make(map[string]*Kind),
		byID:     make(map[uint32]*Kind),
		byNative: make(map[reflect.Type]*Kind),
	}
	for _, k := range builtinKinds() {
		r.MustRegister(k)
	}
	return r
}

var (
	defaultOnce     sync.Once
	defaultRegistry *Registry
)

// Default returns the process-wide registry.
func Default() *Registry {
	defaultOnce.Do(func() {
		defaultRegistry = NewRegistry()
	})
	return defaultRegistry
}

// Register adds a kind. Kinds already registered in this registry are accepted
// again without error so built-in kinds can be shared by several registries.
func (r *Registry) Register(k *Kind) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.byName[k.name]; ok {
		if existing == k {
			return nil
		}
		return fmt.Errorf("kind %q already registered", k.name)
	}
	if existing, ok := r.byID[k.persistID]; ok {
		return fmt.Errorf("kind %q persist id %#08x collides with %q", k.name, k.persistID, existing.name)
	}

	if k.index < 0 {
		k.index = len(r.kinds)
	}
	r.kinds = append(r.kinds, k)
	r.byName[k.name] = k
	r.byID[k.persistID] = k
	if k.native != nil {
		r.byNative[k.native] = k
	}
	return nil
}

// MustRegister is Register that panics on error and returns the kind.
func (r *Registry) MustRegister(k *Kind) *Kind {
	if err := r.Register(k); err != nil {
		panic(err)
	}
	return k
}

// ByName looks a kind up by canonical name.
func (r *Registry) ByName(name string) (*Kind, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	k, ok := r.byName[name]
	return k, ok
}

// ByPersistID looks a kind up by wire identifier.
func (r *Registry) ByPersistID(id uint32) (*Kind, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	k, ok := r.byID[id]
	return k, ok
}

// ByNative looks a kind up by the Go type that carries it.
func (r *Registry) ByNative(t reflect.Type) (*Kind, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	k, ok := r.byNative[t]
	return k, ok
}

// Kinds returns every registered kind in index order.
func (r *Registry) Kinds() []*Kind {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]*Kind, len(r.kinds))
	copy(result, r.kinds)
	return result
}
