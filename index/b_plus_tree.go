package index

import (
	"cmp"
	"fmt"

	"go.uber.org/zap"

	"github.com/akinyi/pesto/buffer"
	"github.com/akinyi/pesto/storage/disk"
	"github.com/akinyi/pesto/util"
)

// BplusTree is an ordered index over bufferpool pages. Reads may run
// concurrently with each other, but writers must be serialized by the
// caller: the tree takes no page latches of its own.
type BplusTree[K cmp.Ordered, V any] struct {
	indexName       string
	bpm             *buffer.BufferpoolManager
	rootPageId      int64
	leafMaxSize     int32
	internalMaxSize int32
	logger          *zap.Logger
}

func NewBplusTree[K cmp.Ordered, V any](name string, bpm *buffer.BufferpoolManager,
	leafMaxSize, internalMaxSize int32, logger *zap.Logger) (*BplusTree[K, V], error) {
	guard, err := bpm.WritePage(HEADER_PAGE_ID)
	if err != nil {
		return nil, fmt.Errorf("error reading header page: %v", err)
	}
	defer guard.Drop()

	header, err := util.ToStruct[headerPage](guard.GetData())
	if err != nil {
		return nil, fmt.Errorf("error decoding header page: %v", err)
	}
	if header.Records == nil {
		header.Records = map[string]int64{}
	}

	rootPageId, ok := header.Records[name]
	if !ok {
		rootPageId = disk.INVALID_PAGE_ID
		header.Records[name] = rootPageId

		data, err := util.ToByteSlice(&header)
		if err != nil {
			return nil, err
		}
		copy(guard.GetDataMut(), data)
	}

	return &BplusTree[K, V]{
		indexName:       name,
		bpm:             bpm,
		rootPageId:      rootPageId,
		leafMaxSize:     leafMaxSize,
		internalMaxSize: internalMaxSize,
		logger:          logger,
	}, nil
}

func (b *BplusTree[K, V]) isEmpty() bool {
	return b.rootPageId == disk.INVALID_PAGE_ID
}

func (b *BplusTree[K, V]) GetRootPageId() int64 {
	return b.rootPageId
}

// GetValue looks the key up, returning an empty result on a miss.
func (b *BplusTree[K, V]) GetValue(key K) ([]V, error) {
	if b.isEmpty() {
		return nil, nil
	}

	page, leaf, err := b.findLeafPage(key)
	if err != nil {
		return nil, err
	}
	defer b.bpm.UnpinPage(page.GetPageId(), false)

	val, found := leaf.search(key)
	if !found {
		return nil, nil
	}

	return []V{val}, nil
}

// Insert adds the pair, returning false without modification on a
// duplicate key.
func (b *BplusTree[K, V]) Insert(key K, value V) (bool, error) {
	if b.isEmpty() {
		return true, b.startNewTree(key, value)
	}

	return b.insertIntoLeaf(key, value)
}

func (b *BplusTree[K, V]) startNewTree(key K, value V) error {
	page, err := b.bpm.NewPage()
	if err != nil {
		return fmt.Errorf("error allocating root page: %w", err)
	}

	var leaf bplusLeafPage[K, V]
	leaf.init(page.GetPageId(), disk.INVALID_PAGE_ID, b.leafMaxSize)
	leaf.insert(key, value)

	if err := syncPage(page, &leaf); err != nil {
		b.bpm.UnpinPage(page.GetPageId(), false)
		return err
	}
	b.bpm.UnpinPage(page.GetPageId(), true)

	return b.setRootPageId(page.GetPageId())
}

func (b *BplusTree[K, V]) insertIntoLeaf(key K, value V) (bool, error) {
	page, leaf, err := b.findLeafPage(key)
	if err != nil {
		return false, err
	}

	oldSize := leaf.getSize()
	newSize := leaf.insert(key, value)

	// duplicate key
	if newSize == oldSize {
		b.bpm.UnpinPage(page.GetPageId(), false)
		return false, nil
	}

	if newSize < int(b.leafMaxSize) {
		if err := syncPage(page, leaf); err != nil {
			b.bpm.UnpinPage(page.GetPageId(), false)
			return false, err
		}
		b.bpm.UnpinPage(page.GetPageId(), true)
		return true, nil
	}

	// leaf became full, split it
	newPage := b.mustNewPage()
	var newLeaf bplusLeafPage[K, V]
	newLeaf.init(newPage.GetPageId(), leaf.Parent, b.leafMaxSize)

	leaf.splitTo(&newLeaf)
	newLeaf.Next = leaf.Next
	leaf.Next = newLeaf.PageId

	risenKey := newLeaf.keyAt(0)
	if err := b.insertRisenKeyToParent(risenKey, &leaf.BplusPageHeader, &newLeaf.BplusPageHeader); err != nil {
		return false, err
	}

	if err := syncPage(page, leaf); err != nil {
		return false, err
	}
	if err := syncPage(newPage, &newLeaf); err != nil {
		return false, err
	}
	b.bpm.UnpinPage(newPage.GetPageId(), true)
	b.bpm.UnpinPage(page.GetPageId(), true)

	return true, nil
}

// insertRisenKeyToParent installs the separator produced by a split. The
// left and right headers stay pinned by the caller; their parent pointers
// are fixed up in place so the caller's write-back persists them.
func (b *BplusTree[K, V]) insertRisenKeyToParent(risenKey K, left, right *BplusPageHeader) error {
	// the split page was the root, grow the tree by one level
	if left.Parent == disk.INVALID_PAGE_ID {
		rootPage := b.mustNewPage()

		var root bplusInternalPage[K]
		root.init(rootPage.GetPageId(), disk.INVALID_PAGE_ID, b.internalMaxSize)

		var zero K
		root.Keys = []K{zero, risenKey}
		root.Children = []int64{left.PageId, right.PageId}
		root.Size = 2

		left.Parent = root.PageId
		right.Parent = root.PageId

		if err := syncPage(rootPage, &root); err != nil {
			b.bpm.UnpinPage(root.PageId, false)
			return err
		}
		b.bpm.UnpinPage(root.PageId, true)

		return b.setRootPageId(root.PageId)
	}

	parentPage, parent, err := b.fetchInternal(left.Parent)
	if err != nil {
		return err
	}

	if parent.getSize() < int(b.internalMaxSize) {
		parent.insert(risenKey, right.PageId)
		right.Parent = parent.PageId

		if err := syncPage(parentPage, parent); err != nil {
			b.bpm.UnpinPage(parent.PageId, false)
			return err
		}
		b.bpm.UnpinPage(parent.PageId, true)
		return nil
	}

	// parent is full, split it and recurse with the new median
	splitPage := b.mustNewPage()
	var newInternal bplusInternalPage[K]
	newInternal.init(splitPage.GetPageId(), parent.Parent, b.internalMaxSize)

	parent.splitTo(&newInternal, risenKey, right.PageId)

	// children that moved to the new sibling now point at it
	for i := range newInternal.getSize() {
		childId := newInternal.childAt(i)
		switch childId {
		case left.PageId:
			left.Parent = newInternal.PageId
		case right.PageId:
			right.Parent = newInternal.PageId
		default:
			if err := b.setParent(childId, newInternal.PageId); err != nil {
				return err
			}
		}
	}

	parentRisenKey := newInternal.keyAt(0)
	if err := b.insertRisenKeyToParent(parentRisenKey, &parent.BplusPageHeader, &newInternal.BplusPageHeader); err != nil {
		return err
	}

	if err := syncPage(parentPage, parent); err != nil {
		return err
	}
	if err := syncPage(splitPage, &newInternal); err != nil {
		return err
	}
	b.bpm.UnpinPage(parent.PageId, true)
	b.bpm.UnpinPage(newInternal.PageId, true)

	return nil
}

// Remove deletes the key, rebalancing underflowing pages and freeing pages
// emptied along the way. Missing keys return quietly.
func (b *BplusTree[K, V]) Remove(key K) error {
	if b.isEmpty() {
		return nil
	}

	txn := newTransaction()

	page, leaf, err := b.findLeafPage(key)
	if err != nil {
		return err
	}

	if !leaf.remove(key) {
		b.bpm.UnpinPage(page.GetPageId(), false)
		return nil
	}

	if err := syncPage(page, leaf); err != nil {
		b.bpm.UnpinPage(page.GetPageId(), false)
		return err
	}
	b.bpm.UnpinPage(page.GetPageId(), true)

	if err := b.rebalanceLeaf(leaf.PageId, txn); err != nil {
		return err
	}

	for _, pageId := range txn.deletedPages {
		b.bpm.DeletePage(pageId)
	}

	return nil
}

func (b *BplusTree[K, V]) rebalanceLeaf(leafPageId int64, txn *transaction) error {
	page, leaf, err := b.fetchLeaf(leafPageId)
	if err != nil {
		return err
	}

	if leaf.isRootPage() {
		b.bpm.UnpinPage(page.GetPageId(), false)
		if leaf.getSize() == 0 {
			txn.addDeletedPage(leaf.PageId)
			return b.setRootPageId(disk.INVALID_PAGE_ID)
		}
		return nil
	}

	if leaf.getSize() >= leaf.getMinSize() {
		b.bpm.UnpinPage(page.GetPageId(), false)
		return nil
	}

	parentPage, parent, err := b.fetchInternal(leaf.Parent)
	if err != nil {
		b.bpm.UnpinPage(page.GetPageId(), false)
		return err
	}

	pos := parent.childPosition(leaf.PageId)
	prevSibling := true
	siblingPos := pos - 1
	if pos == 0 {
		prevSibling = false
		siblingPos = 1
	}

	siblingPage, sibling, err := b.fetchLeaf(parent.childAt(siblingPos))
	if err != nil {
		b.bpm.UnpinPage(page.GetPageId(), false)
		b.bpm.UnpinPage(parent.PageId, false)
		return err
	}

	coalesced := false
	if sibling.getSize() > sibling.getMinSize() {
		// redistribute one pair across and fix the separator
		if prevSibling {
			sibling.moveRearToFrontOf(leaf)
			parent.setKeyAt(pos, leaf.keyAt(0))
		} else {
			sibling.moveFrontToRearOf(leaf)
			parent.setKeyAt(siblingPos, sibling.keyAt(0))
		}
	} else {
		// coalesce into the left participant
		coalesced = true
		if prevSibling {
			leaf.moveAllTo(sibling)
			parent.removeAt(pos)
			txn.addDeletedPage(leaf.PageId)
		} else {
			sibling.moveAllTo(leaf)
			parent.removeAt(siblingPos)
			txn.addDeletedPage(sibling.PageId)
		}
	}

	if err := syncPage(page, leaf); err != nil {
		return err
	}
	if err := syncPage(siblingPage, sibling); err != nil {
		return err
	}
	if err := syncPage(parentPage, parent); err != nil {
		return err
	}
	b.bpm.UnpinPage(leaf.PageId, true)
	b.bpm.UnpinPage(sibling.PageId, true)
	b.bpm.UnpinPage(parent.PageId, true)

	if coalesced {
		return b.rebalanceInternal(parent.PageId, txn)
	}
	return nil
}

func (b *BplusTree[K, V]) rebalanceInternal(nodePageId int64, txn *transaction) error {
	page, node, err := b.fetchInternal(nodePageId)
	if err != nil {
		return err
	}

	if node.isRootPage() {
		b.bpm.UnpinPage(page.GetPageId(), false)
		if node.getSize() == 1 {
			// the root has a single child left, promote it
			childId := node.childAt(0)
			if err := b.setParent(childId, disk.INVALID_PAGE_ID); err != nil {
				return err
			}
			txn.addDeletedPage(node.PageId)
			return b.setRootPageId(childId)
		}
		return nil
	}

	if node.getSize() >= node.getMinSize() {
		b.bpm.UnpinPage(page.GetPageId(), false)
		return nil
	}

	parentPage, parent, err := b.fetchInternal(node.Parent)
	if err != nil {
		b.bpm.UnpinPage(page.GetPageId(), false)
		return err
	}

	pos := parent.childPosition(node.PageId)
	prevSibling := true
	siblingPos := pos - 1
	if pos == 0 {
		prevSibling = false
		siblingPos = 1
	}

	siblingPage, sibling, err := b.fetchInternal(parent.childAt(siblingPos))
	if err != nil {
		b.bpm.UnpinPage(page.GetPageId(), false)
		b.bpm.UnpinPage(parent.PageId, false)
		return err
	}

	coalesced := false
	if sibling.getSize() > sibling.getMinSize() {
		// redistribution pulls the separator down and lifts the adjacent
		// key up; the moved child changes parents
		if prevSibling {
			sibling.moveRearToFrontOf(node, parent.keyAt(pos))
			parent.setKeyAt(pos, node.keyAt(0))
			if err := b.setParent(node.childAt(0), node.PageId); err != nil {
				return err
			}
		} else {
			sibling.moveFrontToRearOf(node, parent.keyAt(siblingPos))
			parent.setKeyAt(siblingPos, sibling.keyAt(0))
			if err := b.setParent(node.childAt(node.getSize()-1), node.PageId); err != nil {
				return err
			}
		}
	} else {
		// coalesce using the separator as the bridge key
		coalesced = true
		if prevSibling {
			oldSize := sibling.getSize()
			node.moveAllTo(sibling, parent.keyAt(pos))
			for i := oldSize; i < sibling.getSize(); i++ {
				if err := b.setParent(sibling.childAt(i), sibling.PageId); err != nil {
					return err
				}
			}
			parent.removeAt(pos)
			txn.addDeletedPage(node.PageId)
		} else {
			oldSize := node.getSize()
			sibling.moveAllTo(node, parent.keyAt(siblingPos))
			for i := oldSize; i < node.getSize(); i++ {
				if err := b.setParent(node.childAt(i), node.PageId); err != nil {
					return err
				}
			}
			parent.removeAt(siblingPos)
			txn.addDeletedPage(sibling.PageId)
		}
	}

	if err := syncPage(page, node); err != nil {
		return err
	}
	if err := syncPage(siblingPage, sibling); err != nil {
		return err
	}
	if err := syncPage(parentPage, parent); err != nil {
		return err
	}
	b.bpm.UnpinPage(node.PageId, true)
	b.bpm.UnpinPage(sibling.PageId, true)
	b.bpm.UnpinPage(parent.PageId, true)

	if coalesced {
		return b.rebalanceInternal(parent.PageId, txn)
	}
	return nil
}

// findLeafPage descends to the leaf covering key and returns it pinned.
func (b *BplusTree[K, V]) findLeafPage(key K) (*buffer.Page, *bplusLeafPage[K, V], error) {
	pageId := b.rootPageId

	for {
		page, err := b.bpm.FetchPage(pageId)
		if err != nil {
			return nil, nil, fmt.Errorf("error reading page %d: %w", pageId, err)
		}

		leaf, err := util.ToStruct[bplusLeafPage[K, V]](page.GetData())
		if err != nil {
			b.bpm.UnpinPage(pageId, false)
			return nil, nil, err
		}

		if leaf.isLeafPage() {
			return page, &leaf, nil
		}

		internal, err := util.ToStruct[bplusInternalPage[K]](page.GetData())
		if err != nil {
			b.bpm.UnpinPage(pageId, false)
			return nil, nil, err
		}

		childId := internal.search(key)
		b.bpm.UnpinPage(pageId, false)
		pageId = childId
	}
}

func (b *BplusTree[K, V]) fetchLeaf(pageId int64) (*buffer.Page, *bplusLeafPage[K, V], error) {
	page, err := b.bpm.FetchPage(pageId)
	if err != nil {
		return nil, nil, fmt.Errorf("error reading leaf page %d: %w", pageId, err)
	}

	leaf, err := util.ToStruct[bplusLeafPage[K, V]](page.GetData())
	if err != nil {
		b.bpm.UnpinPage(pageId, false)
		return nil, nil, err
	}

	return page, &leaf, nil
}

func (b *BplusTree[K, V]) fetchInternal(pageId int64) (*buffer.Page, *bplusInternalPage[K], error) {
	page, err := b.bpm.FetchPage(pageId)
	if err != nil {
		return nil, nil, fmt.Errorf("error reading internal page %d: %w", pageId, err)
	}

	internal, err := util.ToStruct[bplusInternalPage[K]](page.GetData())
	if err != nil {
		b.bpm.UnpinPage(pageId, false)
		return nil, nil, err
	}

	return page, &internal, nil
}

// setParent rewrites one page's parent pointer through the bufferpool.
func (b *BplusTree[K, V]) setParent(pageId, parentId int64) error {
	page, err := b.bpm.FetchPage(pageId)
	if err != nil {
		return fmt.Errorf("error reading page %d: %w", pageId, err)
	}

	leaf, err := util.ToStruct[bplusLeafPage[K, V]](page.GetData())
	if err != nil {
		b.bpm.UnpinPage(pageId, false)
		return err
	}

	if leaf.isLeafPage() {
		leaf.Parent = parentId
		if err := syncPage(page, &leaf); err != nil {
			b.bpm.UnpinPage(pageId, false)
			return err
		}
	} else {
		internal, err := util.ToStruct[bplusInternalPage[K]](page.GetData())
		if err == nil {
			internal.Parent = parentId
			err = syncPage(page, &internal)
		}
		if err != nil {
			b.bpm.UnpinPage(pageId, false)
			return err
		}
	}

	b.bpm.UnpinPage(pageId, true)
	return nil
}

func (b *BplusTree[K, V]) setRootPageId(pageId int64) error {
	b.rootPageId = pageId

	guard, err := b.bpm.WritePage(HEADER_PAGE_ID)
	if err != nil {
		return fmt.Errorf("error updating root page id: %v", err)
	}
	defer guard.Drop()

	header, err := util.ToStruct[headerPage](guard.GetData())
	if err != nil {
		return err
	}
	if header.Records == nil {
		header.Records = map[string]int64{}
	}
	header.Records[b.indexName] = pageId

	data, err := util.ToByteSlice(&header)
	if err != nil {
		return err
	}
	copy(guard.GetDataMut(), data)

	b.logger.Debug("root page changed", zap.String("index", b.indexName), zap.Int64("rootPageId", pageId))
	return nil
}

func (b *BplusTree[K, V]) mustNewPage() *buffer.Page {
	page, err := b.bpm.NewPage()
	if err != nil {
		// a failed allocation mid-split would leave the tree inconsistent
		panic(fmt.Sprintf("allocating b+tree page: %v", err))
	}
	return page
}

func syncPage(page *buffer.Page, v any) error {
	data, err := util.ToByteSlice(v)
	if err != nil {
		return err
	}
	copy(page.GetData(), data)
	return nil
}
