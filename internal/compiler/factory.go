package compiler

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/conduit-lang/respack/internal/compress"
	"github.com/conduit-lang/respack/internal/value"
)

// Object is a typed object built by a factory
type Object any

// Factory builds typed objects from source dictionaries and from their saved
// cache form, and converts them back into the cache form.
type Factory interface {
	TypeName() string
	BuildFromSource(d *value.Dict, ctx *BuildContext) (Object, error)
	BuildFromCache(d *value.Dict, ctx *LoadContext) (Object, error)
	Save(obj Object) (*value.Dict, error)
}

// Dependent objects name the values that must finish loading first. Each
// entry is a value.Ref or a *Node.
type Dependent interface {
	Dependencies() []value.Value
}

// SiblingProvider objects contribute extra top-level resources. owner is
// the name the object is registered under.
type SiblingProvider interface {
	Siblings(owner string) map[string]value.Value
}

// Finisher objects run a completion step once their dependencies are done
type Finisher interface {
	Finish(ctx context.Context) error
}

// FactoryRegistry maps type names to factories
type FactoryRegistry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewFactoryRegistry creates an empty registry
func NewFactoryRegistry() *FactoryRegistry {
	return &FactoryRegistry{factories: make(map[string]Factory)}
}

// Register adds f; a type name may only be registered once
func (r *FactoryRegistry) Register(f Factory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := f.TypeName()
	if _, exists := r.factories[name]; exists {
		return fmt.Errorf("factory %q already registered", name)
	}
	r.factories[name] = f
	return nil
}

// MustRegister is Register that panics on error
func (r *FactoryRegistry) MustRegister(f Factory) {
	if err := r.Register(f); err != nil {
		panic(err)
	}
}

// Lookup returns the factory for a type name
func (r *FactoryRegistry) Lookup(name string) (Factory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.factories[name]
	return f, ok
}

// TypeNames returns the registered names in sorted order
func (r *FactoryRegistry) TypeNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Awaiter resolves references on behalf of a LoadContext
type Awaiter interface {
	Await(ctx context.Context, ref value.Ref) (value.Value, error)
}

// LoadContext is handed to BuildFromCache
type LoadContext struct {
	ctx     context.Context
	name    string
	logger  *zap.Logger
	codec   compress.Codec
	awaiter Awaiter
}

// NewLoadContext creates a load context for the resource name. A nil awaiter
// resolves references by waiting on their target directly.
func NewLoadContext(ctx context.Context, name string, logger *zap.Logger, codec compress.Codec, awaiter Awaiter) *LoadContext {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LoadContext{ctx: ctx, name: name, logger: logger, codec: codec, awaiter: awaiter}
}

// Context returns the load's context
func (c *LoadContext) Context() context.Context { return c.ctx }

// Name returns the resource being loaded
func (c *LoadContext) Name() string { return c.name }

// Logger returns a logger tagged with the resource name
func (c *LoadContext) Logger() *zap.Logger { return c.logger }

// Codec returns the codec blobs are decompressed with
func (c *LoadContext) Codec() compress.Codec { return c.codec }

// Await blocks until the referenced resource is loaded. Unresolved names
// yield a nil value and no error.
func (c *LoadContext) Await(ref value.Ref) (value.Value, error) {
	if c.awaiter != nil {
		return c.awaiter.Await(c.ctx, ref)
	}
	return ref.Resolve(c.ctx)
}
