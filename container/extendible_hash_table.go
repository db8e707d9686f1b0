package container

import (
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/vmihailenco/msgpack"
)

// ExtendibleHashTable is a directory-based hash map that grows by splitting
// overflowing buckets. Directory slots that agree on a bucket's local depth
// bits share that bucket; the directory doubles when a bucket at global
// depth must split.
type ExtendibleHashTable[K comparable, V any] struct {
	mu          sync.Mutex
	globalDepth int
	bucketSize  int
	numBuckets  int
	dir         []*bucket[K, V]
}

type bucket[K comparable, V any] struct {
	depth int
	items []entry[K, V]
}

type entry[K comparable, V any] struct {
	key K
	val V
}

func NewExtendibleHashTable[K comparable, V any](bucketSize int) *ExtendibleHashTable[K, V] {
	return &ExtendibleHashTable[K, V]{
		globalDepth: 0,
		bucketSize:  bucketSize,
		numBuckets:  1,
		dir:         []*bucket[K, V]{{depth: 0}},
	}
}

// indexOf is the low globalDepth bits of the key's hash.
func (h *ExtendibleHashTable[K, V]) indexOf(key K) int {
	mask := (1 << h.globalDepth) - 1
	return int(hashOf(key)) & mask
}

func hashOf[K any](key K) uint64 {
	data, err := msgpack.Marshal(key)
	if err != nil {
		// only unencodable kinds (func, chan) can get here
		panic(err)
	}
	return xxhash.Sum64(data)
}

func (h *ExtendibleHashTable[K, V]) Find(key K) (V, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.dir[h.indexOf(key)].find(key)
}

func (h *ExtendibleHashTable[K, V]) Remove(key K) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.dir[h.indexOf(key)].remove(key)
}

// Insert adds key → value, overwriting an existing entry. A full target
// bucket splits, doubling the directory when its local depth has reached the
// global depth, until the insert fits.
func (h *ExtendibleHashTable[K, V]) Insert(key K, value V) {
	h.mu.Lock()
	defer h.mu.Unlock()

	idx := h.indexOf(key)
	target := h.dir[idx]

	for target.isFull(h.bucketSize) {
		if _, ok := target.find(key); ok {
			// overwrite needs no room
			break
		}

		// grow the directory by duplicating every slot
		if target.depth == h.globalDepth {
			for i := range 1 << h.globalDepth {
				h.dir = append(h.dir, h.dir[i])
			}
			h.globalDepth += 1
		}

		// split into two buckets one bit deeper; every slot that pointed at
		// the old bucket is rewired to one of them by that bit
		mask := 1 << target.depth
		low := &bucket[K, V]{depth: target.depth + 1}
		high := &bucket[K, V]{depth: target.depth + 1}
		for i, b := range h.dir {
			if b == target {
				h.dir[i] = low
				if i&mask != 0 {
					h.dir[i] = high
				}
			}
		}
		h.numBuckets += 1

		// rehash the old bucket's items into whichever bucket their slot
		// now points at
		retained := target.items[:0:0]
		for _, item := range target.items {
			slot := h.dir[h.indexOf(item.key)]
			if slot == target {
				retained = append(retained, item)
			} else {
				slot.items = append(slot.items, item)
			}
		}
		target.items = retained

		idx = h.indexOf(key)
		target = h.dir[idx]
	}

	target.insert(key, value)
}

func (h *ExtendibleHashTable[K, V]) GetGlobalDepth() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.globalDepth
}

func (h *ExtendibleHashTable[K, V]) GetLocalDepth(dirIndex int) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.dir[dirIndex].depth
}

func (h *ExtendibleHashTable[K, V]) GetNumBuckets() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.numBuckets
}

func (b *bucket[K, V]) find(key K) (V, bool) {
	for _, item := range b.items {
		if item.key == key {
			return item.val, true
		}
	}

	var zero V
	return zero, false
}

func (b *bucket[K, V]) remove(key K) bool {
	for i, item := range b.items {
		if item.key == key {
			b.items = append(b.items[:i], b.items[i+1:]...)
			return true
		}
	}

	return false
}

func (b *bucket[K, V]) insert(key K, value V) {
	for i, item := range b.items {
		if item.key == key {
			b.items[i].val = value
			return
		}
	}

	b.items = append(b.items, entry[K, V]{key: key, val: value})
}

func (b *bucket[K, V]) isFull(bucketSize int) bool {
	return len(b.items) >= bucketSize
}
