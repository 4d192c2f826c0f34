package objcache

import (
	"sort"

	"go.uber.org/zap"

	"github.com/conduit-lang/respack/internal/compiler"
	"github.com/conduit-lang/respack/internal/resource"
	"github.com/conduit-lang/respack/internal/value"
)

// ReplaceStats summarises one content swap
type ReplaceStats struct {
	Added     int
	Changed   int
	Removed   int
	Unchanged int
	// Forwarded lists the live resources redirected to new values
	Forwarded []string
}

// Replace swaps in freshly compiled objects. Live resources of entries whose
// saved bytes changed, or that disappeared, are forwarded to their
// replacement (or to no value); unchanged entries keep their live objects.
func (c *Cache) Replace(objects *value.Dict, meta *compiler.Metadata) (ReplaceStats, error) {
	entries := make(map[string]*entry, objects.Len())
	for _, name := range objects.Keys() {
		v, _ := objects.Lookup(name)
		e, err := c.encodeEntry(name, v)
		if err != nil {
			return ReplaceStats{}, err
		}
		entries[name] = e
	}
	return c.install(entries, meta), nil
}

func (c *Cache) install(entries map[string]*entry, meta *compiler.Metadata) ReplaceStats {
	var stats ReplaceStats
	var scheduled []*load

	c.mu.Lock()
	for name, old := range c.entries {
		ne, ok := entries[name]
		if !ok {
			stats.Removed++
			if live := old.liveResource(); live != nil {
				c.forward(live, resource.NewFinalized(name, nil))
				stats.Forwarded = append(stats.Forwarded, name)
			}
			continue
		}
		if c.sameContent(old, ne) {
			// keep the live handle, drop any reference to the previous backing store
			old.blob = ne.blob
			old.hash = ne.hash
			entries[name] = old
			stats.Unchanged++
			continue
		}
		stats.Changed++
		if live := old.liveResource(); live != nil {
			l := c.newLoadLocked(ne)
			c.forward(live, l.res)
			scheduled = append(scheduled, l)
			stats.Forwarded = append(stats.Forwarded, name)
		}
	}
	for name := range entries {
		if _, ok := c.entries[name]; !ok {
			stats.Added++
		}
	}
	c.entries = entries
	c.meta = meta
	c.mu.Unlock()

	for _, l := range scheduled {
		c.schedule(l)
	}
	sort.Strings(stats.Forwarded)
	c.logger.Info("resource cache replaced",
		zap.Int("added", stats.Added),
		zap.Int("changed", stats.Changed),
		zap.Int("removed", stats.Removed),
		zap.Int("unchanged", stats.Unchanged),
		zap.Int("forwarded", len(stats.Forwarded)),
	)
	return stats
}

func (c *Cache) forward(from, to *resource.Resource) {
	if err := from.Latest().Forward(to); err != nil {
		c.logger.Warn("resource could not be forwarded", zap.String("resource", from.Name()), zap.Error(err))
	}
}

// sameContent compares loaded-byte hashes. An unreadable entry counts as changed.
func (c *Cache) sameContent(old, ne *entry) bool {
	for _, e := range []*entry{old, ne} {
		if e.hash != "" {
			continue
		}
		h, err := c.hasher.hashBlob(e.blob)
		if err != nil {
			c.logger.Warn("resource could not be hashed", zap.String("resource", e.name), zap.Error(err))
			return false
		}
		e.hash = h
	}
	return old.hash == ne.hash
}

// liveResource returns the resource callers may hold for e, or nil
func (e *entry) liveResource() *resource.Resource {
	if e.load != nil {
		return e.load.res
	}
	return e.live.Value()
}

func sortedCopy(names []string) []string {
	out := append([]string(nil), names...)
	sort.Strings(out)
	return out
}
