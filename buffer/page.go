package buffer

import (
	"github.com/akinyi/pesto/storage/disk"
)

// Page is the in-memory image of one disk page. A frame is an index into
// the pool's page array; the page's id, pin count and dirty flag are only
// mutated under the pool mutex.
type Page struct {
	pageId   int64
	pinCount int
	dirty    bool
	data     []byte
}

func newPage() *Page {
	return &Page{
		pageId: disk.INVALID_PAGE_ID,
		data:   make([]byte, disk.PAGE_SIZE),
	}
}

// GetData returns the page's buffer. Writers must hold a pin and report the
// write through UnpinPage's dirty flag.
func (p *Page) GetData() []byte {
	return p.data
}

func (p *Page) GetPageId() int64 {
	return p.pageId
}

func (p *Page) GetPinCount() int {
	return p.pinCount
}

func (p *Page) IsDirty() bool {
	return p.dirty
}

func (p *Page) reset() {
	p.pageId = disk.INVALID_PAGE_ID
	p.pinCount = 0
	p.dirty = false
	for i := range p.data {
		p.data[i] = 0
	}
}
