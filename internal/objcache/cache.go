// Package objcache is the runtime resource database. It holds the saved form
// of every resource and decodes live objects on demand on a worker pool.
package objcache

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"sync"
	"weak"

	lru "github.com/hashicorp/golang-lru"
	"go.uber.org/zap"

	"github.com/conduit-lang/respack/internal/compiler"
	"github.com/conduit-lang/respack/internal/compress"
	"github.com/conduit-lang/respack/internal/persist"
	"github.com/conduit-lang/respack/internal/resource"
	"github.com/conduit-lang/respack/internal/value"
	"github.com/conduit-lang/respack/internal/workers"
)

// DefaultKeepAlive is the number of recently requested resources held
// strongly when Options.KeepAlive is zero.
const DefaultKeepAlive = 128

// Options configures a Cache
type Options struct {
	Factories *compiler.FactoryRegistry
	Codec     compress.Codec
	// Compress stores entries compressed with Codec
	Compress bool
	// Pool runs background decoding. A nil pool makes the cache start and
	// own one sized to GOMAXPROCS.
	Pool   *workers.Pool
	Logger *zap.Logger
	// KeepAlive bounds the recently used resources kept from collection
	KeepAlive int
}

// Cache maps resource names to saved entries and live resources
type Cache struct {
	factories *compiler.FactoryRegistry
	codec     compress.Codec
	compress  bool
	pool      *workers.Pool
	ownsPool  bool
	logger    *zap.Logger
	graph     *resource.WaitGraph
	hasher    contentHasher

	mu      sync.Mutex
	entries map[string]*entry
	pending map[*load]struct{}
	meta    *compiler.Metadata
	keep    *lru.Cache
}

// entry is the saved form of one resource plus its live handle
type entry struct {
	name string
	// blob holds the persisted value
	blob *value.Blob
	// hash of the loaded bytes, computed on demand
	hash string
	live weak.Pointer[resource.Resource]
	// load is set while a decode is in flight
	load *load
}

// New creates an empty cache
func New(opts Options) *Cache {
	if opts.Factories == nil {
		opts.Factories = compiler.NewFactoryRegistry()
	}
	if opts.Codec == nil {
		opts.Codec = compress.Identity{}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.KeepAlive <= 0 {
		opts.KeepAlive = DefaultKeepAlive
	}
	keep, err := lru.New(opts.KeepAlive)
	if err != nil {
		panic(fmt.Sprintf("objcache: keep-alive cache: %v", err))
	}

	c := &Cache{
		factories: opts.Factories,
		codec:     opts.Codec,
		compress:  opts.Compress,
		pool:      opts.Pool,
		logger:    opts.Logger,
		graph:     resource.NewWaitGraph(),
		entries:   make(map[string]*entry),
		pending:   make(map[*load]struct{}),
		keep:      keep,
	}
	if c.pool == nil {
		c.pool = workers.NewPool("objcache", runtime.GOMAXPROCS(0), opts.Logger)
		c.pool.Start(context.Background())
		c.ownsPool = true
	}
	return c
}

// Close waits for in-flight decoding and stops the pool if the cache owns it
func (c *Cache) Close() {
	_ = c.FlushAllPending(context.Background())
	if c.ownsPool {
		c.pool.Stop()
	}
}

// GetResourceObject returns the live resource for name. A resource not
// decoded yet is returned pending while a worker decodes it. Unknown names
// yield a resource finalized to no value.
func (c *Cache) GetResourceObject(name string) *resource.Resource {
	r, l, fresh := c.acquire(name)
	if fresh {
		c.schedule(l)
	}
	return r
}

// Get waits for the live value of name
func (c *Cache) Get(ctx context.Context, name string) (value.Value, error) {
	return c.GetResourceObject(name).Wait(ctx)
}

// acquire returns the resource for name and its in-flight load, if any.
// fresh reports that the load was created by this call and is not scheduled.
func (c *Cache) acquire(name string) (*resource.Resource, *load, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[name]
	if !ok {
		return resource.NewFinalized(name, nil), nil, false
	}
	if e.load != nil {
		c.keep.Add(name, e.load.res)
		return e.load.res, e.load, false
	}
	if r := e.live.Value(); r != nil {
		c.keep.Add(name, r)
		return r, nil, false
	}
	l := c.newLoadLocked(e)
	return l.res, l, true
}

// newLoadLocked installs a pending resource for e. Callers hold c.mu.
func (c *Cache) newLoadLocked(e *entry) *load {
	l := &load{name: e.name, blob: e.blob, entry: e, res: resource.NewPending(e.name), done: make(chan struct{})}
	e.live = weak.Make(l.res)
	e.load = l
	c.pending[l] = struct{}{}
	c.keep.Add(e.name, l.res)
	return l
}

// Stored returns the persisted value of name without decoding objects
func (c *Cache) Stored(name string) (value.Value, bool, error) {
	c.mu.Lock()
	e, ok := c.entries[name]
	var blob *value.Blob
	if ok {
		blob = e.blob
	}
	c.mu.Unlock()
	if !ok {
		return nil, false, nil
	}
	data, err := blob.Bytes()
	if err != nil {
		return nil, true, fmt.Errorf("resource %q: %w", name, err)
	}
	v, err := persist.Unmarshal(data, persist.WithCodec(c.codec))
	if err != nil {
		return nil, true, fmt.Errorf("resource %q: %w", name, err)
	}
	return v, true, nil
}

// ResourceObjectNames returns every resource name in sorted order
func (c *Cache) ResourceObjectNames() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	names := make([]string, 0, len(c.entries))
	for name := range c.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of resources
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Metadata returns the metadata of the current contents, or nil
func (c *Cache) Metadata() *compiler.Metadata {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.meta
}

// FlushAllPending blocks until no decode is in flight, including decodes
// started while waiting.
func (c *Cache) FlushAllPending(ctx context.Context) error {
	for {
		c.mu.Lock()
		loads := make([]*load, 0, len(c.pending))
		for l := range c.pending {
			loads = append(loads, l)
		}
		c.mu.Unlock()
		if len(loads) == 0 {
			return nil
		}
		for _, l := range loads {
			select {
			case <-l.done:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}
