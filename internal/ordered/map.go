package ordered

import (
	"cmp"
	"container/heap"
	"errors"
	"fmt"
	"slices"
)

// ErrKeyNotFound is returned when deleting or refreshing a key that is not in the map.
var ErrKeyNotFound = errors.New("key not found")

// SortFunc computes the priority of a key/value pair. An error aborts the
// mutation that asked for it and is returned to the caller unchanged.
type SortFunc[K comparable, V any, P cmp.Ordered] func(key K, value V) (P, error)

// ByValue orders entries by a projection of their value.
func ByValue[K comparable, V any, P cmp.Ordered](f func(V) P) SortFunc[K, V, P] {
	return func(_ K, v V) (P, error) {
		return f(v), nil
	}
}

// ByKey orders entries by their key.
func ByKey[K cmp.Ordered, V any]() SortFunc[K, V, K] {
	return func(k K, _ V) (K, error) {
		return k, nil
	}
}

// Entry is a key/value pair.
type Entry[K comparable, V any] struct {
	Key   K
	Value V
}

// Map is a key/value store enumerated in priority order.
type Map[K comparable, V any, P cmp.Ordered] struct {
	sortFn  SortFunc[K, V, P]
	reverse bool

	values  map[K]V
	records map[K]*record[K, P]
	heap    recordHeap[K, P]

	// sorted is nil whenever a mutation happened since the last Keys/Items.
	sorted []K
}

// New creates a Map ordered by sortFn, ascending unless reverse is set.
// The initial entries are inserted in order.
func New[K comparable, V any, P cmp.Ordered](sortFn SortFunc[K, V, P], reverse bool, initial ...Entry[K, V]) (*Map[K, V, P], error) {
	if sortFn == nil {
		return nil, errors.New("ordered: nil sort func")
	}

	m := &Map[K, V, P]{
		sortFn:  sortFn,
		reverse: reverse,
		values:  make(map[K]V, len(initial)),
		records: make(map[K]*record[K, P], len(initial)),
		heap:    make(recordHeap[K, P], 0, len(initial)),
	}

	for _, e := range initial {
		if err := m.Set(e.Key, e.Value); err != nil {
			return nil, fmt.Errorf("initial entry %v: %w", e.Key, err)
		}
	}

	return m, nil
}

// Reverse reports whether enumeration is descending.
func (m *Map[K, V, P]) Reverse() bool {
	return m.reverse
}

// Set stores value under key and places the key according to its new
// priority. The priority is computed first, so a failing SortFunc leaves
// the map untouched.
func (m *Map[K, V, P]) Set(key K, value V) error {
	priority, err := m.sortFn(key, value)
	if err != nil {
		return err
	}

	if r, ok := m.records[key]; ok {
		m.values[key] = value
		r.priority = priority
		heap.Fix(&m.heap, r.index)
	} else {
		m.values[key] = value
		r := &record[K, P]{priority: priority, key: key}
		m.records[key] = r
		heap.Push(&m.heap, r)
	}

	m.sorted = nil
	return nil
}

// Delete removes key and its heap record.
func (m *Map[K, V, P]) Delete(key K) error {
	r, ok := m.records[key]
	if !ok {
		return fmt.Errorf("%w: %v", ErrKeyNotFound, key)
	}

	heap.Remove(&m.heap, r.index)
	delete(m.records, key)
	delete(m.values, key)

	m.sorted = nil
	return nil
}

// Refresh recomputes the priority of key from its current value, for values
// that were changed in place. The cached order is dropped only when the
// priority actually moved.
func (m *Map[K, V, P]) Refresh(key K) error {
	r, ok := m.records[key]
	if !ok {
		return fmt.Errorf("%w: %v", ErrKeyNotFound, key)
	}

	priority, err := m.sortFn(key, m.values[key])
	if err != nil {
		return err
	}
	if priority == r.priority {
		return nil
	}

	r.priority = priority
	heap.Fix(&m.heap, r.index)
	m.sorted = nil
	return nil
}

// Get returns the value stored under key.
func (m *Map[K, V, P]) Get(key K) (V, bool) {
	v, ok := m.values[key]
	return v, ok
}

// Contains reports whether key is present.
func (m *Map[K, V, P]) Contains(key K) bool {
	_, ok := m.values[key]
	return ok
}

// Len returns the number of entries.
func (m *Map[K, V, P]) Len() int {
	return len(m.values)
}

// Peek returns the entry with the lowest priority without removing it.
func (m *Map[K, V, P]) Peek() (Entry[K, V], bool) {
	if len(m.heap) == 0 {
		return Entry[K, V]{}, false
	}
	key := m.heap[0].key
	return Entry[K, V]{Key: key, Value: m.values[key]}, true
}

// Keys returns the keys in priority order.
func (m *Map[K, V, P]) Keys() []K {
	return slices.Clone(m.sortedKeys())
}

// Items returns the entries in priority order.
func (m *Map[K, V, P]) Items() []Entry[K, V] {
	keys := m.sortedKeys()
	items := make([]Entry[K, V], len(keys))
	for i, key := range keys {
		items[i] = Entry[K, V]{Key: key, Value: m.values[key]}
	}
	return items
}

// sortedKeys rebuilds the cached order if a mutation invalidated it.
func (m *Map[K, V, P]) sortedKeys() []K {
	if m.sorted != nil {
		return m.sorted
	}

	records := slices.Clone(m.heap)
	slices.SortStableFunc(records, func(a, b *record[K, P]) int {
		if m.reverse {
			return cmp.Compare(b.priority, a.priority)
		}
		return cmp.Compare(a.priority, b.priority)
	})

	m.sorted = make([]K, len(records))
	for i, r := range records {
		m.sorted[i] = r.key
	}
	return m.sorted
}
