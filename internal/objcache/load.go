package objcache

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/conduit-lang/respack/internal/compiler"
	"github.com/conduit-lang/respack/internal/persist"
	"github.com/conduit-lang/respack/internal/resource"
	"github.com/conduit-lang/respack/internal/value"
)

// load decodes one entry into its pending resource. Whoever flips started
// runs it: a pool worker, or a task awaiting the resource inline.
type load struct {
	name    string
	blob    *value.Blob
	entry   *entry
	res     *resource.Resource
	started atomic.Bool
	// done closes after the pending set forgets the load
	done chan struct{}
}

func (c *Cache) schedule(l *load) {
	err := c.pool.Submit("decode", func(ctx context.Context) {
		if l.started.CompareAndSwap(false, true) {
			c.execute(context.WithoutCancel(ctx), l, resource.NewTaskID())
		}
	})
	if err != nil {
		c.logger.Debug("pool rejected decode, running inline", zap.String("resource", l.name), zap.Error(err))
		if l.started.CompareAndSwap(false, true) {
			c.execute(context.Background(), l, resource.NewTaskID())
		}
	}
}

// execute decodes l on behalf of task. A failure finalizes to no value.
func (c *Cache) execute(ctx context.Context, l *load, task resource.TaskID) {
	start := time.Now()
	if _, _, err := c.graph.Claim(l, task); err != nil {
		c.logger.Warn("resource claimed twice", zap.String("resource", l.name), zap.Error(err))
	}

	v, err := c.decodeEntry(ctx, l, task)
	c.graph.Release(l)
	if err != nil {
		c.logger.Warn("resource failed to load", zap.String("resource", l.name), zap.Error(err))
		v = nil
	}
	if err := l.res.Finalize(v); err != nil {
		c.logger.Error("resource finalized twice", zap.String("resource", l.name), zap.Error(err))
	}

	c.mu.Lock()
	delete(c.pending, l)
	if l.entry.load == l {
		l.entry.load = nil
	}
	c.mu.Unlock()
	close(l.done)

	c.logger.Debug("resource loaded",
		zap.String("resource", l.name),
		zap.Duration("duration", time.Since(start)),
	)
}

func (c *Cache) decodeEntry(ctx context.Context, l *load, task resource.TaskID) (value.Value, error) {
	data, err := l.blob.Bytes()
	if err != nil {
		return nil, err
	}
	stored, err := persist.Unmarshal(data, persist.WithCodec(c.codec))
	if err != nil {
		return nil, err
	}
	lc := compiler.NewLoadContext(ctx, l.name, c.logger.With(zap.String("resource", l.name)), c.codec, &awaiter{c: c, task: task})
	return c.decode(lc, "/"+l.name, stored)
}

// decode rebuilds live values: ref: strings become references, typed
// dictionaries become objects and blobs are materialised.
func (c *Cache) decode(lc *compiler.LoadContext, path string, v value.Value) (value.Value, error) {
	switch t := v.(type) {
	case value.String:
		if name, ok := strings.CutPrefix(string(t), value.RefPrefix); ok {
			return c.reference(name), nil
		}
		return v, nil
	case value.Vector:
		items := make([]value.Value, 0, len(t))
		for i, item := range t {
			out, err := c.decode(lc, path+"["+strconv.Itoa(i)+"]", item)
			if err != nil {
				return nil, err
			}
			if out != nil {
				items = append(items, out)
			}
		}
		return value.NewVector(items...), nil
	case *value.Blob:
		if t.IsDict() {
			d, err := t.Dict()
			if err != nil {
				return nil, fmt.Errorf("%s: %w", path, err)
			}
			return c.decode(lc, path, d)
		}
		if _, err := t.Bytes(); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		return t, nil
	case *value.Dict:
		return c.decodeDict(lc, path, t)
	}
	return v, nil
}

func (c *Cache) decodeDict(lc *compiler.LoadContext, path string, d *value.Dict) (value.Value, error) {
	out := value.NewDict()
	for _, key := range d.Keys() {
		child, _ := d.Lookup(key)
		dv, err := c.decode(lc, path+"/"+key, child)
		if err != nil {
			return nil, err
		}
		if dv != nil {
			out.Put(key, dv)
		}
	}

	tv, ok := out.Lookup(compiler.KeyType)
	if !ok {
		return out, nil
	}
	typeName, _ := value.ConvertTo[value.String](tv)
	f, ok := c.factories.Lookup(string(typeName))
	if !ok {
		lc.Logger().Debug("no factory for stored type", zap.String("path", path), zap.String("type", string(typeName)))
		return out, nil
	}
	src := out.Clone()
	src.Delete(compiler.KeyType)
	obj, err := f.BuildFromCache(src, lc)
	if err != nil {
		return nil, fmt.Errorf("%s: build %s: %w", path, typeName, err)
	}
	return compiler.NewFinishedNode(f, obj, path), nil
}

// reference binds a lazily requested reference to another entry
func (c *Cache) reference(name string) value.Ref {
	return value.NewRef(name, &lazyRef{c: c, name: name})
}

// await is LoadContext.Await for a decode running on task. A target nobody
// started yet is decoded inline so a saturated pool cannot starve itself.
func (c *Cache) await(ctx context.Context, task resource.TaskID, name string) (value.Value, error) {
	r, l, _ := c.acquire(name)
	if l == nil {
		return r.Wait(ctx)
	}
	if l.started.CompareAndSwap(false, true) {
		c.execute(ctx, l, task)
		return r.Wait(ctx)
	}
	if err := c.graph.BeginWait(task, l); err != nil {
		return nil, fmt.Errorf("resource %q: %w", name, err)
	}
	defer c.graph.EndWait(task)
	return r.Wait(ctx)
}

type awaiter struct {
	c    *Cache
	task resource.TaskID
}

func (a *awaiter) Await(ctx context.Context, ref value.Ref) (value.Value, error) {
	return a.c.await(ctx, a.task, ref.Name())
}

// lazyRef requests its resource on first use
type lazyRef struct {
	c    *Cache
	name string
	once sync.Once
	res  *resource.Resource
}

func (r *lazyRef) target() *resource.Resource {
	r.once.Do(func() { r.res = r.c.GetResourceObject(r.name) })
	return r.res
}

func (r *lazyRef) Name() string { return r.name }

func (r *lazyRef) TryGet() (value.Value, bool) { return r.target().TryGet() }

func (r *lazyRef) Wait(ctx context.Context) (value.Value, error) { return r.target().Wait(ctx) }
