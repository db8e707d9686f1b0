package index

import (
	"cmp"
	"slices"
)

// bplusInternalPage keeps sorted (key, child page id) pairs. The key at
// index 0 is logically invalid: child 0 covers every key strictly less than
// the key at index 1. Keys and Children always hold exactly Size entries.
type bplusInternalPage[K cmp.Ordered] struct {
	BplusPageHeader
	Keys     []K
	Children []int64
}

func (p *bplusInternalPage[K]) init(pageId, parentPageId int64, maxSize int32) {
	p.PageType = INTERNAL_PAGE
	p.PageId = pageId
	p.Parent = parentPageId
	p.MaxSize = maxSize
	p.Size = 0
}

func (p *bplusInternalPage[K]) keyAt(idx int) K {
	return p.Keys[idx]
}

func (p *bplusInternalPage[K]) setKeyAt(idx int, key K) {
	p.Keys[idx] = key
}

func (p *bplusInternalPage[K]) childAt(idx int) int64 {
	return p.Children[idx]
}

// childPosition is the slot holding the given child page id.
func (p *bplusInternalPage[K]) childPosition(childId int64) int {
	return slices.Index(p.Children, childId)
}

// keyPosition is the first index >= 1 whose key is not less than key; the
// guard slot at index 0 never participates.
func (p *bplusInternalPage[K]) keyPosition(key K) int {
	left, right := 1, p.getSize()-1

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

// search returns the child covering key: the child of the last key not
// greater than key, or child 0 when every key is greater.
func (p *bplusInternalPage[K]) search(key K) int64 {
	pos := p.keyPosition(key)
	if pos == p.getSize() {
		return p.Children[p.getSize()-1]
	}
	if p.Keys[pos] == key {
		return p.Children[pos]
	}

	return p.Children[pos-1]
}

// insert places the pair at its sorted position and returns the new size.
func (p *bplusInternalPage[K]) insert(key K, childId int64) int {
	pos := p.keyPosition(key)

	p.Keys = slices.Insert(p.Keys, pos, key)
	p.Children = slices.Insert(p.Children, pos, childId)
	p.Size += 1

	return p.getSize()
}

func (p *bplusInternalPage[K]) removeAt(idx int) {
	p.Keys = slices.Delete(p.Keys, idx, idx+1)
	p.Children = slices.Delete(p.Children, idx, idx+1)
	p.Size -= 1
}

// splitTo distributes this page's pairs plus the incoming one between this
// page and target, so that this page ends with exactly minSize pairs and
// target holds the rest in sorted order. Target's slot 0 key is the median
// that rises to the parent.
func (p *bplusInternalPage[K]) splitTo(target *bplusInternalPage[K], key K, childId int64) {
	pos := p.keyPosition(key)
	split := p.getMinSize()

	switch {
	case pos < split:
		// the new pair lands here; one extra pair moves over so this page
		// still ends at minSize after the insert
		target.Keys = append(target.Keys, p.Keys[split-1:]...)
		target.Children = append(target.Children, p.Children[split-1:]...)
		target.Size = p.Size - int32(split) + 1

		p.Keys = p.Keys[:split-1]
		p.Children = p.Children[:split-1]
		p.Size = int32(split) - 1
		p.insert(key, childId)

	case pos == split:
		// the new pair is target's first: it becomes the rising median
		target.Keys = append(target.Keys, key)
		target.Children = append(target.Children, childId)
		target.Keys = append(target.Keys, p.Keys[split:]...)
		target.Children = append(target.Children, p.Children[split:]...)
		target.Size = p.Size - int32(split) + 1

		p.Keys = p.Keys[:split]
		p.Children = p.Children[:split]
		p.Size = int32(split)

	default:
		target.Keys = append(target.Keys, p.Keys[split:]...)
		target.Children = append(target.Children, p.Children[split:]...)
		target.Size = p.Size - int32(split)

		p.Keys = p.Keys[:split]
		p.Children = p.Children[:split]
		p.Size = int32(split)
		target.insert(key, childId)
	}
}

// moveRearToFrontOf shifts this page's last pair to the front of target.
// The parent's separator for target comes down as target's old slot 0 key;
// the moved pair's key goes up to the parent.
func (p *bplusInternalPage[K]) moveRearToFrontOf(target *bplusInternalPage[K], separatorKey K) {
	last := p.getSize() - 1

	target.setKeyAt(0, separatorKey)
	target.Keys = slices.Insert(target.Keys, 0, p.Keys[last])
	target.Children = slices.Insert(target.Children, 0, p.Children[last])
	target.Size += 1

	p.Keys = p.Keys[:last]
	p.Children = p.Children[:last]
	p.Size -= 1
}

// moveFrontToRearOf shifts this page's first pair to the rear of target,
// with the parent's separator for this page standing in for the invalid
// slot 0 key.
func (p *bplusInternalPage[K]) moveFrontToRearOf(target *bplusInternalPage[K], separatorKey K) {
	target.Keys = append(target.Keys, separatorKey)
	target.Children = append(target.Children, p.Children[0])
	target.Size += 1

	p.Keys = slices.Delete(p.Keys, 0, 1)
	p.Children = slices.Delete(p.Children, 0, 1)
	p.Size -= 1
}

// moveAllTo appends every pair into target, bridging with the parent's
// separator in place of the invalid slot 0 key.
func (p *bplusInternalPage[K]) moveAllTo(target *bplusInternalPage[K], separatorKey K) {
	if p.getSize() > 0 {
		p.Keys[0] = separatorKey
	}
	target.Keys = append(target.Keys, p.Keys...)
	target.Children = append(target.Children, p.Children...)
	target.Size += p.Size

	p.Keys = nil
	p.Children = nil
	p.Size = 0
}
