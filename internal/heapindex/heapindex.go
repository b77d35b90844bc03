// Package heapindex implements the sequence-aware min-heap eviction
// policy shared by FlowTracker, BurstTracker, and the classifier's IP
// cache: evict the entry with the smallest (lastTouched, sequence),
// where sequence is a monotone counter refreshed on every touch so a
// frequently-touched entry migrates away from the eviction end even
// when many entries share the same coarse timestamp.
package heapindex

import "container/heap"

// entry is one heap-tracked key with its last-touch time and the
// sequence number assigned at that touch.
type entry struct {
	key      any
	lastSeen float64
	sequence uint64
	index    int
}

type innerHeap []*entry

func (h innerHeap) Len() int { return len(h) }
func (h innerHeap) Less(i, j int) bool {
	if h[i].lastSeen != h[j].lastSeen {
		return h[i].lastSeen < h[j].lastSeen
	}
	return h[i].sequence < h[j].sequence
}
func (h innerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index, h[j].index = i, j
}
func (h *innerHeap) Push(x any) {
	e := x.(*entry)
	e.index = len(*h)
	*h = append(*h, e)
}
func (h *innerHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}

// Index is a sequence-aware LRU heap keyed by an arbitrary comparable
// key. Touch always pushes a fresh heap entry rather than fixing one
// in place, so repeated touches of the same key accumulate stale heap
// entries; byKey always holds the single live entry per key, and pop
// operations discard any popped entry whose sequence doesn't match the
// live one for its key. Compact reclaims the resulting bloat.
type Index struct {
	h        innerHeap
	byKey    map[any]*entry
	sequence uint64
}

// New creates an empty index.
func New() *Index {
	return &Index{byKey: make(map[any]*entry)}
}

// Touch (re-)inserts key with the given lastSeen timestamp and bumps
// its sequence number so it is treated as freshly used.
func (idx *Index) Touch(key any, lastSeen float64) {
	idx.sequence++
	e := &entry{key: key, lastSeen: lastSeen, sequence: idx.sequence}
	idx.byKey[key] = e
	heap.Push(&idx.h, e)
}

// Remove drops key from the index, if present. The stale heap entry
// (and any earlier stale entries for the same key) is reclaimed lazily
// on pop.
func (idx *Index) Remove(key any) {
	delete(idx.byKey, key)
}

// Len returns the number of live tracked keys, not the raw heap size
// (which may include stale entries awaiting lazy reclamation).
func (idx *Index) Len() int { return len(idx.byKey) }

// HeapSize returns the raw heap size, including stale lazily-deleted
// entries. Callers use this to decide when to Compact.
func (idx *Index) HeapSize() int { return idx.h.Len() }

func (idx *Index) isLive(e *entry) bool {
	live, ok := idx.byKey[e.key]
	return ok && live == e
}

// PopOldest removes and returns the key with the smallest
// (lastSeen, sequence) among live entries, or ok=false if the index is
// empty. Stale heap entries are discarded silently along the way.
func (idx *Index) PopOldest() (key any, ok bool) {
	for idx.h.Len() > 0 {
		e := heap.Pop(&idx.h).(*entry)
		if !idx.isLive(e) {
			continue
		}
		delete(idx.byKey, e.key)
		return e.key, true
	}
	return nil, false
}

// EvictExpired removes and returns every live key whose lastSeen
// satisfies lastSeen+ttl <= now, in no particular order.
func (idx *Index) EvictExpired(now, ttl float64) []any {
	var expired []any
	for idx.h.Len() > 0 && idx.h[0].lastSeen+ttl <= now {
		e := heap.Pop(&idx.h).(*entry)
		if !idx.isLive(e) {
			continue
		}
		delete(idx.byKey, e.key)
		expired = append(expired, e.key)
	}
	return expired
}

// Compact rebuilds the heap from only the live entries in byKey,
// dropping the stale entries accumulated from repeated Touch calls on
// the same key. This bounds heap growth under adversarial
// repeated-touch patterns on a fixed, small key set: after compaction
// the heap size always equals Len().
func (idx *Index) Compact() {
	fresh := make(innerHeap, 0, len(idx.byKey))
	for _, e := range idx.byKey {
		e.index = len(fresh)
		fresh = append(fresh, e)
	}
	heap.Init(&fresh)
	idx.h = fresh
}
