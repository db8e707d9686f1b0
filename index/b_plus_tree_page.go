package index

import (
	"github.com/akinyi/pesto/storage/disk"
)

type PAGE_TYPE = int32

const (
	INVALID_PAGE PAGE_TYPE = iota
	INTERNAL_PAGE
	LEAF_PAGE
)

const HEADER_PAGE_ID = disk.HEADER_PAGE_ID

// BplusPageHeader is shared by leaf and internal pages. PageType
// discriminates which full struct a page buffer decodes into.
type BplusPageHeader struct {
	PageType PAGE_TYPE
	PageId   int64
	Parent   int64
	Size     int32
	MaxSize  int32
}

func (h *BplusPageHeader) isLeafPage() bool {
	return h.PageType == LEAF_PAGE
}

// isRootPage holds when the page has no parent.
func (h *BplusPageHeader) isRootPage() bool {
	return h.Parent == disk.INVALID_PAGE_ID
}

func (h *BplusPageHeader) getSize() int {
	return int(h.Size)
}

// getMinSize is the smallest legal size for a non-root page.
func (h *BplusPageHeader) getMinSize() int {
	return (int(h.MaxSize) + 1) / 2
}
