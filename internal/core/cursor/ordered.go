package cursor

import (
	"container/list"
	"iter"
)

// orderedMap is a hash map that remembers insertion order, so the oldest
// entry can be found and evicted in O(1).
type orderedMap[K comparable, V any] struct {
	index map[K]*list.Element
	order *list.List
}

type orderedEntry[K comparable, V any] struct {
	key   K
	value V
}

func newOrderedMap[K comparable, V any]() *orderedMap[K, V] {
	return &orderedMap[K, V]{
		index: make(map[K]*list.Element),
		order: list.New(),
	}
}

func (m *orderedMap[K, V]) Len() int {
	return len(m.index)
}

func (m *orderedMap[K, V]) Get(key K) (V, bool) {
	if e, ok := m.index[key]; ok {
		return e.Value.(*orderedEntry[K, V]).value, true
	}
	var zero V
	return zero, false
}

// Set inserts or updates key. Updating keeps the original position.
func (m *orderedMap[K, V]) Set(key K, value V) {
	if e, ok := m.index[key]; ok {
		e.Value.(*orderedEntry[K, V]).value = value
		return
	}
	m.index[key] = m.order.PushBack(&orderedEntry[K, V]{key: key, value: value})
}

func (m *orderedMap[K, V]) Delete(key K) bool {
	e, ok := m.index[key]
	if !ok {
		return false
	}
	m.order.Remove(e)
	delete(m.index, key)
	return true
}

// PopOldest removes and returns the earliest inserted entry.
func (m *orderedMap[K, V]) PopOldest() (K, V, bool) {
	e := m.order.Front()
	if e == nil {
		var (
			zk K
			zv V
		)
		return zk, zv, false
	}
	entry := e.Value.(*orderedEntry[K, V])
	m.order.Remove(e)
	delete(m.index, entry.key)
	return entry.key, entry.value, true
}

// All iterates entries oldest first. The map must not be mutated while iterating.
func (m *orderedMap[K, V]) All() iter.Seq2[K, V] {
	return func(yield func(K, V) bool) {
		for e := m.order.Front(); e != nil; e = e.Next() {
			entry := e.Value.(*orderedEntry[K, V])
			if !yield(entry.key, entry.value) {
				return
			}
		}
	}
}
