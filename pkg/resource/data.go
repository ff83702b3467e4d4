package resource

import (
	"maps"
	"strings"
	"sync"

	"github.com/fivetwenty-io/iam/pkg/iam"
)

// AutogenScheme prefixes ids of resources that have no href yet.
const AutogenScheme = "autogen://"

// Data is the single mutable record behind every wrapper over one remote
// resource. Wrappers hold a *Data handle and never copy it.
type Data struct {
	mu       sync.RWMutex
	id       string
	kind     Kind
	props    iam.Map
	dirty    map[string]struct{}
	children map[Kind]*Data
	store    Store
}

// NewData creates an empty record.
func NewData(id string, kind Kind, store Store) *Data {
	return &Data{
		id:    id,
		kind:  kind,
		props: make(iam.Map),
		dirty: make(map[string]struct{}),
		store: store,
	}
}

// ID returns the identity-map id.
func (d *Data) ID() string {
	return d.id
}

// Kind returns the concrete kind.
func (d *Data) Kind() Kind {
	return d.kind
}

// Href returns the href property.
func (d *Data) Href() string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return HrefOf(d.props)
}

// IsNew reports whether the resource has not been persisted yet.
func (d *Data) IsNew() bool {
	return strings.HasPrefix(d.Href(), AutogenScheme)
}

// Get returns one property.
func (d *Data) Get(name string) (any, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	value, ok := d.props[name]

	return value, ok
}

// String returns a string property, or "" when absent or not a string.
func (d *Data) String(name string) string {
	value, _ := d.Get(name)
	s, _ := value.(string)

	return s
}

// LinkHref returns the href of a reference property.
func (d *Data) LinkHref(name string) string {
	value, _ := d.Get(name)
	body, _ := AsMap(value)

	return HrefOf(body)
}

// Set assigns a property and marks it dirty.
func (d *Data) Set(name string, value any) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.props[name] = value
	d.dirty[name] = struct{}{}
}

// Update merges props into the record. Incoming keys overwrite, the rest
// are kept. Merged keys are no longer dirty.
func (d *Data) Update(props iam.Map) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for name, value := range props {
		d.props[name] = value
		delete(d.dirty, name)
	}
}

// Snapshot returns a shallow copy of every property.
func (d *Data) Snapshot() iam.Map {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return maps.Clone(d.props)
}

// Dirty returns a copy of the properties set since the last save.
func (d *Data) Dirty() iam.Map {
	d.mu.RLock()
	defer d.mu.RUnlock()

	changed := make(iam.Map, len(d.dirty))
	for name := range d.dirty {
		changed[name] = d.props[name]
	}

	return changed
}

// ClearDirty forgets pending changes.
func (d *Data) ClearDirty() {
	d.mu.Lock()
	defer d.mu.Unlock()

	clear(d.dirty)
}

// Remove deletes a property locally.
func (d *Data) Remove(name string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	delete(d.props, name)
	delete(d.dirty, name)
}

// Store returns the owning store.
func (d *Data) Store() Store {
	return d.store
}

// Link attaches a child record so later lookups from this parent resolve
// the same shared instance.
func (d *Data) Link(child *Data) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.children == nil {
		d.children = make(map[Kind]*Data)
	}

	d.children[child.Kind()] = child
}

// Linked returns the attached child of kind.
func (d *Data) Linked(kind Kind) *Data {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return d.children[kind]
}
