package buffer

// PageGuard owns one pin on a fetched page and gives it back exactly once.
type PageGuard struct {
	page    *Page
	bpm     *BufferpoolManager
	pageId  int64
	dropped bool
}

type ReadPageGuard struct {
	PageGuard
}

type WritePageGuard struct {
	PageGuard
}

// ReadPage fetches a page for reading; the guard unpins it clean on Drop.
func (b *BufferpoolManager) ReadPage(pageId int64) (*ReadPageGuard, error) {
	page, err := b.FetchPage(pageId)
	if err != nil {
		return nil, err
	}

	return &ReadPageGuard{PageGuard{page: page, bpm: b, pageId: pageId}}, nil
}

// WritePage fetches a page for writing; the guard unpins it dirty on Drop.
func (b *BufferpoolManager) WritePage(pageId int64) (*WritePageGuard, error) {
	page, err := b.FetchPage(pageId)
	if err != nil {
		return nil, err
	}

	return &WritePageGuard{PageGuard{page: page, bpm: b, pageId: pageId}}, nil
}

func (pg *ReadPageGuard) GetData() []byte {
	return pg.page.GetData()
}

func (pg *ReadPageGuard) Drop() {
	pg.drop(false)
}

func (pg *WritePageGuard) GetData() []byte {
	return pg.page.GetData()
}

func (pg *WritePageGuard) GetDataMut() []byte {
	return pg.page.GetData()
}

func (pg *WritePageGuard) Drop() {
	pg.drop(true)
}

func (pg *PageGuard) drop(dirty bool) {
	if pg == nil || pg.dropped {
		return
	}

	pg.dropped = true
	pg.bpm.UnpinPage(pg.pageId, dirty)
}
