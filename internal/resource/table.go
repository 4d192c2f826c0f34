package resource

import (
	"sort"
	"sync"

	"github.com/conduit-lang/respack/internal/value"
)

// Table maps names to resources shared by one compilation
type Table struct {
	mu        sync.Mutex
	resources map[string]*Resource
}

// NewTable creates an empty table
func NewTable() *Table {
	return &Table{resources: make(map[string]*Resource)}
}

// Reference returns the resource for name, creating a pending one when the
// name has not been seen. Forward references resolve once the name is
// registered.
func (t *Table) Reference(name string) *Resource {
	t.mu.Lock()
	defer t.mu.Unlock()
	if r, ok := t.resources[name]; ok {
		return r
	}
	r := NewPending(name)
	t.resources[name] = r
	return r
}

// Register binds name to v. Registering a name twice returns
// ErrAlreadyFinalized and keeps the first value.
func (t *Table) Register(name string, v value.Value) (*Resource, error) {
	r := t.Reference(name)
	return r, r.Finalize(v)
}

// Lookup returns the resource for name without creating one
func (t *Table) Lookup(name string) (*Resource, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	r, ok := t.resources[name]
	return r, ok
}

// FinalizeUnresolved resolves every still-pending resource to no value and
// returns the affected names in sorted order.
func (t *Table) FinalizeUnresolved() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	var names []string
	for name, r := range t.resources {
		if r.Finalize(nil) == nil {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Names returns every known name in sorted order
func (t *Table) Names() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	names := make([]string, 0, len(t.resources))
	for name := range t.resources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
