package index

import (
	"cmp"
	"fmt"

	"github.com/akinyi/pesto/buffer"
	"github.com/akinyi/pesto/storage/disk"
	"github.com/akinyi/pesto/util"
)

// IndexIterator walks the leaf chain in key order. It owns a pin on the
// leaf it currently points at; callers release it with Drop.
type IndexIterator[K cmp.Ordered, V any] struct {
	bpm   *buffer.BufferpoolManager
	guard *buffer.ReadPageGuard
	leaf  *bplusLeafPage[K, V]
	idx   int
}

// Begin positions an iterator on the first pair of the leftmost leaf. An
// empty tree yields an exhausted iterator.
func (b *BplusTree[K, V]) Begin() (*IndexIterator[K, V], error) {
	if b.isEmpty() {
		return &IndexIterator[K, V]{bpm: b.bpm}, nil
	}

	pageId := b.rootPageId
	for {
		guard, err := b.bpm.ReadPage(pageId)
		if err != nil {
			return nil, err
		}

		leaf, err := util.ToStruct[bplusLeafPage[K, V]](guard.GetData())
		if err != nil {
			guard.Drop()
			return nil, err
		}

		if leaf.isLeafPage() {
			return &IndexIterator[K, V]{bpm: b.bpm, guard: guard, leaf: &leaf}, nil
		}

		internal, err := util.ToStruct[bplusInternalPage[K]](guard.GetData())
		if err != nil {
			guard.Drop()
			return nil, err
		}

		pageId = internal.childAt(0)
		guard.Drop()
	}
}

// BeginAt positions an iterator on the first pair whose key is not less
// than key.
func (b *BplusTree[K, V]) BeginAt(key K) (*IndexIterator[K, V], error) {
	if b.isEmpty() {
		return &IndexIterator[K, V]{bpm: b.bpm}, nil
	}

	page, leaf, err := b.findLeafPage(key)
	if err != nil {
		return nil, err
	}
	// hand the pin over to a guard so Drop releases it
	b.bpm.UnpinPage(page.GetPageId(), false)
	guard, err := b.bpm.ReadPage(page.GetPageId())
	if err != nil {
		return nil, err
	}

	it := &IndexIterator[K, V]{bpm: b.bpm, guard: guard, leaf: leaf, idx: leaf.keyPosition(key)}
	if it.idx >= leaf.getSize() && leaf.Next != disk.INVALID_PAGE_ID {
		if err := it.advanceLeaf(); err != nil {
			it.Drop()
			return nil, err
		}
	}

	return it, nil
}

// IsEnd holds on the last leaf at its size.
func (it *IndexIterator[K, V]) IsEnd() bool {
	if it.guard == nil {
		return true
	}

	return it.leaf.Next == disk.INVALID_PAGE_ID && it.idx >= it.leaf.getSize()
}

// Next returns the current pair and advances, switching leaves through the
// next pointer when the current one is exhausted.
func (it *IndexIterator[K, V]) Next() (K, V, error) {
	var zeroK K
	var zeroV V

	if it.IsEnd() {
		return zeroK, zeroV, fmt.Errorf("iterator is exhausted")
	}

	key := it.leaf.keyAt(it.idx)
	val := it.leaf.Values[it.idx]
	it.idx += 1

	if it.idx >= it.leaf.getSize() && it.leaf.Next != disk.INVALID_PAGE_ID {
		if err := it.advanceLeaf(); err != nil {
			return zeroK, zeroV, err
		}
	}

	return key, val, nil
}

func (it *IndexIterator[K, V]) advanceLeaf() error {
	guard, err := it.bpm.ReadPage(it.leaf.Next)
	if err != nil {
		return fmt.Errorf("error reading next leaf: %w", err)
	}

	leaf, err := util.ToStruct[bplusLeafPage[K, V]](guard.GetData())
	if err != nil {
		guard.Drop()
		return err
	}

	it.guard.Drop()
	it.guard = guard
	it.leaf = &leaf
	it.idx = 0

	return nil
}

// Drop releases the pin on the current leaf.
func (it *IndexIterator[K, V]) Drop() {
	if it.guard != nil {
		it.guard.Drop()
		it.guard = nil
	}
}
