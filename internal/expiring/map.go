package expiring

import (
	"container/list"
	"errors"
	"time"
)

// errKeyNotFoundOrExpired is returned by lookup when a key is missing or its
// deadline has passed. It never leaves the package.
var errKeyNotFoundOrExpired = errors.New("key not found or expired")

// Item is a live key/value pair returned by Items.
type Item[K comparable, V any] struct {
	Key   K
	Value V
}

// entry holds a stored value and the instant after which it is considered gone.
type entry[K comparable, V any] struct {
	key      K
	value    V
	deadline time.Time
}

// Option configures a Map.
type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock replaces time.Now as the source of the current instant.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// Map is a key/value store with a sliding time-to-live per entry. Keys are
// enumerated in first-insertion order; overwriting a key keeps its position.
type Map[K comparable, V any] struct {
	ttl time.Duration
	now func() time.Time

	items map[K]*list.Element
	order *list.List
}

// New creates a Map whose entries live for ttl after their last access.
func New[K comparable, V any](ttl time.Duration, opts ...Option) *Map[K, V] {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return &Map[K, V]{
		ttl:   ttl,
		now:   o.now,
		items: make(map[K]*list.Element),
		order: list.New(),
	}
}

// TTL returns the sliding lifetime applied to every entry.
func (m *Map[K, V]) TTL() time.Duration {
	return m.ttl
}

// Set stores value under key, overwriting any previous entry.
func (m *Map[K, V]) Set(key K, value V) {
	deadline := m.now().Add(m.ttl)

	if elem, ok := m.items[key]; ok {
		e := elem.Value.(*entry[K, V])
		e.value = value
		e.deadline = deadline
		return
	}

	m.items[key] = m.order.PushBack(&entry[K, V]{
		key:      key,
		value:    value,
		deadline: deadline,
	})
}

// Get returns the value for key and refreshes its deadline. An absent or
// expired key reports false; an expired entry is evicted on the way out.
func (m *Map[K, V]) Get(key K) (V, bool) {
	v, err := m.lookup(key)
	if err != nil {
		var zero V
		return zero, false
	}
	return v, true
}

// GetOr is Get with a fallback value for absent or expired keys.
func (m *Map[K, V]) GetOr(key K, def V) V {
	if v, ok := m.Get(key); ok {
		return v
	}
	return def
}

// Contains reports whether key is live. A hit refreshes the deadline.
func (m *Map[K, V]) Contains(key K) bool {
	_, err := m.lookup(key)
	return err == nil
}

// Delete removes key and reports whether it was stored, expired or not.
func (m *Map[K, V]) Delete(key K) bool {
	elem, ok := m.items[key]
	if !ok {
		return false
	}
	m.removeElement(elem)
	return true
}

// Keys returns the live keys. Every key is checked through the read path,
// so each returned key has its deadline refreshed.
func (m *Map[K, V]) Keys() []K {
	keys := make([]K, 0, len(m.items))
	for _, item := range m.Items() {
		keys = append(keys, item.Key)
	}
	return keys
}

// Items returns the live entries with the same refresh behaviour as Keys.
func (m *Map[K, V]) Items() []Item[K, V] {
	items := make([]Item[K, V], 0, len(m.items))

	elem := m.order.Front()
	for elem != nil {
		next := elem.Next()
		key := elem.Value.(*entry[K, V]).key
		if v, err := m.lookup(key); err == nil {
			items = append(items, Item[K, V]{Key: key, Value: v})
		}
		elem = next
	}

	return items
}

// Len returns the number of live entries, refreshing them as Keys does.
func (m *Map[K, V]) Len() int {
	return len(m.Items())
}

// Purge evicts every expired entry without touching the deadlines of live
// ones and returns how many were removed.
func (m *Map[K, V]) Purge() int {
	now := m.now()
	purged := 0

	elem := m.order.Front()
	for elem != nil {
		next := elem.Next()
		if now.After(elem.Value.(*entry[K, V]).deadline) {
			m.removeElement(elem)
			purged++
		}
		elem = next
	}

	return purged
}

// lookup is the single read path: it evicts expired entries and slides the
// deadline of live ones.
func (m *Map[K, V]) lookup(key K) (V, error) {
	var zero V

	elem, ok := m.items[key]
	if !ok {
		return zero, errKeyNotFoundOrExpired
	}

	e := elem.Value.(*entry[K, V])
	now := m.now()
	if now.After(e.deadline) {
		m.removeElement(elem)
		return zero, errKeyNotFoundOrExpired
	}

	e.deadline = now.Add(m.ttl)
	return e.value, nil
}

func (m *Map[K, V]) removeElement(elem *list.Element) {
	m.order.Remove(elem)
	delete(m.items, elem.Value.(*entry[K, V]).key)
}
