// Package identitymap deduplicates live resource records by id, so every view
// over the same remote object shares one backing record.
package identitymap

import (
	"errors"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// ErrDisposed is returned by every call on a disposed map.
var ErrDisposed = errors.New("identity map disposed")

// Map holds pinned entries forever and the rest in an optionally bounded LRU with
// sliding expiration. Creation runs under the map lock, so concurrent misses
// for one id invoke the factory exactly once.
type Map[V any] struct {
	mu       sync.Mutex
	pinned   map[string]V
	entries  *expirable.LRU[string, V]
	disposed bool
}

// New creates a map. Unpinned entries expire after expiration without a
// lookup; size caps their number (0 means unbounded). A size eviction drops
// an entry even while callers hold it, so the next GetOrAdd for that id
// builds a new value that does not share state with the old one.
func New[V any](expiration time.Duration, size int) *Map[V] {
	return &Map[V]{
		pinned:  make(map[string]V),
		entries: expirable.NewLRU[string, V](size, nil, expiration),
	}
}

// GetOrAdd returns the entry for id, invoking factory only when none exists.
// A hit slides the entry's expiration. Asking for a pinned entry promotes an
// existing unpinned one.
func (m *Map[V]) GetOrAdd(id string, factory func() V, pinned bool) (V, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var zero V

	if m.disposed {
		return zero, ErrDisposed
	}

	if value, ok := m.pinned[id]; ok {
		return value, nil
	}

	if value, ok := m.entries.Get(id); ok {
		if pinned {
			m.entries.Remove(id)
			m.pinned[id] = value
		} else {
			m.entries.Add(id, value)
		}

		return value, nil
	}

	value := factory()

	if pinned {
		m.pinned[id] = value
	} else {
		m.entries.Add(id, value)
	}

	return value, nil
}

// Get returns the entry for id without creating one.
func (m *Map[V]) Get(id string) (V, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var zero V

	if m.disposed {
		return zero, false, ErrDisposed
	}

	if value, ok := m.pinned[id]; ok {
		return value, true, nil
	}

	value, ok := m.entries.Get(id)
	if ok {
		m.entries.Add(id, value)
	}

	return value, ok, nil
}

// Remove evicts id.
func (m *Map[V]) Remove(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.disposed {
		return ErrDisposed
	}

	delete(m.pinned, id)
	m.entries.Remove(id)

	return nil
}

// Len returns the number of live entries.
func (m *Map[V]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.disposed {
		return 0
	}

	return len(m.pinned) + m.entries.Len()
}

// Dispose releases every entry. Disposing twice is an error.
func (m *Map[V]) Dispose() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.disposed {
		return ErrDisposed
	}

	m.pinned = nil
	m.entries.Purge()
	m.disposed = true

	return nil
}
