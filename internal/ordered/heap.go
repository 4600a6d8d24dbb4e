package ordered

import "cmp"

// record is the heap entry for one key. index tracks the record's slot so
// updates and removals can use heap.Fix and heap.Remove directly.
type record[K comparable, P cmp.Ordered] struct {
	priority P
	key      K
	index    int
}

// recordHeap implements heap.Interface as a min-heap on priority.
type recordHeap[K comparable, P cmp.Ordered] []*record[K, P]

func (h recordHeap[K, P]) Len() int { return len(h) }

func (h recordHeap[K, P]) Less(i, j int) bool {
	return cmp.Less(h[i].priority, h[j].priority)
}

func (h recordHeap[K, P]) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *recordHeap[K, P]) Push(x any) {
	r := x.(*record[K, P])
	r.index = len(*h)
	*h = append(*h, r)
}

func (h *recordHeap[K, P]) Pop() any {
	old := *h
	n := len(old)
	r := old[n-1]
	old[n-1] = nil
	r.index = -1
	*h = old[:n-1]
	return r
}
