package index

import (
	"cmp"
	"slices"

	"github.com/akinyi/pesto/storage/disk"
)

// bplusLeafPage keeps sorted (key, value) pairs and a link to the next leaf
// in key order. Keys and Values always hold exactly Size entries.
type bplusLeafPage[K cmp.Ordered, V any] struct {
	BplusPageHeader
	Next   int64
	Keys   []K
	Values []V
}

func (p *bplusLeafPage[K, V]) init(pageId, parentPageId int64, maxSize int32) {
	p.PageType = LEAF_PAGE
	p.PageId = pageId
	p.Parent = parentPageId
	p.MaxSize = maxSize
	p.Size = 0
	p.Next = disk.INVALID_PAGE_ID
}

func (p *bplusLeafPage[K, V]) keyAt(idx int) K {
	return p.Keys[idx]
}

// keyPosition is the first index whose key is not less than key.
func (p *bplusLeafPage[K, V]) keyPosition(key K) int {
	left, right := 0, p.getSize()-1

	for left <= right {
		mid := left + (right-left)/2
		if p.Keys[mid] < key {
			left = mid + 1
		} else {
			right = mid - 1
		}
	}

	return left
}

func (p *bplusLeafPage[K, V]) search(key K) (V, bool) {
	pos := p.keyPosition(key)
	if pos == p.getSize() || p.Keys[pos] != key {
		var zero V
		return zero, false
	}

	return p.Values[pos], true
}

// insert places the pair at its sorted position and returns the new size.
// A duplicate key leaves the page untouched, returning the old size.
func (p *bplusLeafPage[K, V]) insert(key K, value V) int {
	pos := p.keyPosition(key)
	if pos < p.getSize() && p.Keys[pos] == key {
		return p.getSize()
	}

	p.Keys = slices.Insert(p.Keys, pos, key)
	p.Values = slices.Insert(p.Values, pos, value)
	p.Size += 1

	return p.getSize()
}

func (p *bplusLeafPage[K, V]) remove(key K) bool {
	pos := p.keyPosition(key)
	if pos == p.getSize() || p.Keys[pos] != key {
		return false
	}

	p.Keys = slices.Delete(p.Keys, pos, pos+1)
	p.Values = slices.Delete(p.Values, pos, pos+1)
	p.Size -= 1

	return true
}

// splitTo moves the upper half into target, keeping the lower half here.
func (p *bplusLeafPage[K, V]) splitTo(target *bplusLeafPage[K, V]) {
	idx := p.getMinSize()

	target.Keys = append(target.Keys, p.Keys[idx:]...)
	target.Values = append(target.Values, p.Values[idx:]...)
	target.Size = p.Size - int32(idx)

	p.Keys = p.Keys[:idx]
	p.Values = p.Values[:idx]
	p.Size = int32(idx)
}

// moveRearToFrontOf shifts this page's last pair to the front of target, the
// right participant of a redistribution.
func (p *bplusLeafPage[K, V]) moveRearToFrontOf(target *bplusLeafPage[K, V]) {
	last := p.getSize() - 1

	target.Keys = slices.Insert(target.Keys, 0, p.Keys[last])
	target.Values = slices.Insert(target.Values, 0, p.Values[last])
	target.Size += 1

	p.Keys = p.Keys[:last]
	p.Values = p.Values[:last]
	p.Size -= 1
}

// moveFrontToRearOf shifts this page's first pair to the rear of target, the
// left participant of a redistribution.
func (p *bplusLeafPage[K, V]) moveFrontToRearOf(target *bplusLeafPage[K, V]) {
	target.Keys = append(target.Keys, p.Keys[0])
	target.Values = append(target.Values, p.Values[0])
	target.Size += 1

	p.Keys = slices.Delete(p.Keys, 0, 1)
	p.Values = slices.Delete(p.Values, 0, 1)
	p.Size -= 1
}

// moveAllTo appends every pair into target and takes this page out of the
// leaf chain.
func (p *bplusLeafPage[K, V]) moveAllTo(target *bplusLeafPage[K, V]) {
	target.Keys = append(target.Keys, p.Keys...)
	target.Values = append(target.Values, p.Values...)
	target.Size += p.Size
	target.Next = p.Next

	p.Keys = nil
	p.Values = nil
	p.Size = 0
}
