package buffer

import (
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/akinyi/pesto/container"
	"github.com/akinyi/pesto/recovery"
	"github.com/akinyi/pesto/storage/disk"
	"github.com/akinyi/pesto/util"
)

// pageTableBucketSize is the extendible hash table's bucket capacity for the
// page id → frame id mapping.
const pageTableBucketSize = 4

// BufferpoolManager caches disk pages in a fixed set of frames. A page is
// evictable exactly when its pin count is zero; every FetchPage or NewPage
// must be matched by exactly one UnpinPage.
type BufferpoolManager struct {
	mu            sync.Mutex
	poolSize      int
	frames        []*Page
	freeFrames    []int
	pageTable     *container.ExtendibleHashTable[int64, int]
	replacer      *lrukReplacer
	diskScheduler *disk.DiskScheduler
	logManager    *recovery.LogManager
	nextPageId    atomic.Int64
	logger        *zap.Logger
}

func NewBufferpoolManager(size int, replacer *lrukReplacer, diskScheduler *disk.DiskScheduler,
	logManager *recovery.LogManager, logger *zap.Logger) *BufferpoolManager {
	frames := make([]*Page, size)
	freeFrames := make([]int, size)

	for i := range size {
		frames[i] = newPage()
		freeFrames[i] = i
	}

	return &BufferpoolManager{
		poolSize:      size,
		frames:        frames,
		freeFrames:    freeFrames,
		pageTable:     container.NewExtendibleHashTable[int64, int](pageTableBucketSize),
		replacer:      replacer,
		diskScheduler: diskScheduler,
		logManager:    logManager,
		logger:        logger,
	}
}

// NewPage allocates a fresh page id pinned in a frame. Fails with
// ErrPoolExhausted when every frame is pinned.
func (b *BufferpoolManager) NewPage() (*Page, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	frameId, err := b.selectFrame()
	if err != nil {
		return nil, err
	}

	pageId := b.AllocatePage()
	b.pageTable.Insert(pageId, frameId)
	_ = b.replacer.recordAccess(frameId)
	b.replacer.setEvictable(frameId, false)

	page := b.frames[frameId]
	page.pageId = pageId
	page.pinCount = 1

	return page, nil
}

// FetchPage pins the page, reading it from disk if it is not resident.
func (b *BufferpoolManager) FetchPage(pageId int64) (*Page, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if frameId, ok := b.pageTable.Find(pageId); ok {
		page := b.frames[frameId]
		page.pinCount += 1
		_ = b.replacer.recordAccess(frameId)
		b.replacer.setEvictable(frameId, false)

		return page, nil
	}

	frameId, err := b.selectFrame()
	if err != nil {
		return nil, err
	}

	page := b.frames[frameId]
	resp := <-b.diskScheduler.Schedule(disk.NewRequest(pageId, nil, false))
	if !resp.Success {
		// put the frame back on the free list; a victim evicted for it
		// stays evicted
		b.freeFrames = append(b.freeFrames, frameId)
		return nil, fmt.Errorf("error reading page %d from disk", pageId)
	}
	copy(page.data, resp.Data)

	b.pageTable.Insert(pageId, frameId)
	_ = b.replacer.recordAccess(frameId)
	b.replacer.setEvictable(frameId, false)
	page.pageId = pageId
	page.pinCount = 1

	return page, nil
}

// UnpinPage drops one pin. The dirty flag is sticky: unpinning clean never
// clears a dirty bit set earlier.
func (b *BufferpoolManager) UnpinPage(pageId int64, isDirty bool) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	frameId, ok := b.pageTable.Find(pageId)
	if !ok {
		return false
	}

	page := b.frames[frameId]
	if isDirty {
		page.dirty = true
	}

	if page.pinCount <= 0 {
		return false
	}

	page.pinCount -= 1
	if page.pinCount == 0 {
		b.replacer.setEvictable(frameId, true)
	}

	return true
}

// FlushPage writes the page to disk and clears its dirty flag regardless of
// pin state.
func (b *BufferpoolManager) FlushPage(pageId int64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.flushLocked(pageId)
}

func (b *BufferpoolManager) flushLocked(pageId int64) bool {
	if pageId == disk.INVALID_PAGE_ID {
		return false
	}

	frameId, ok := b.pageTable.Find(pageId)
	if !ok {
		return false
	}

	page := b.frames[frameId]
	resp := <-b.diskScheduler.Schedule(disk.NewRequest(pageId, page.data, true))
	if !resp.Success {
		b.logger.Error("flush failed", zap.Int64("pageId", pageId))
		return false
	}
	page.dirty = false

	return true
}

// FlushAllPages flushes the log, then every resident page.
func (b *BufferpoolManager) FlushAllPages() {
	b.mu.Lock()
	defer b.mu.Unlock()

	_ = b.logManager.Flush()
	for _, page := range b.frames {
		b.flushLocked(page.pageId)
	}
}

// DeletePage evicts and frees an unpinned page. Deleting a page that is not
// resident is a no-op success; deleting a pinned page fails.
func (b *BufferpoolManager) DeletePage(pageId int64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	frameId, ok := b.pageTable.Find(pageId)
	if !ok {
		return true
	}

	page := b.frames[frameId]
	if page.pinCount > 0 {
		return false
	}

	b.replacer.remove(frameId)
	page.reset()
	b.pageTable.Remove(pageId)
	b.freeFrames = append(b.freeFrames, frameId)
	b.DeallocatePage(pageId)

	return true
}

// AllocatePage hands out monotonically increasing page ids, starting after
// the header page.
func (b *BufferpoolManager) AllocatePage() int64 {
	return b.nextPageId.Add(1)
}

func (b *BufferpoolManager) DeallocatePage(pageId int64) {
	b.diskScheduler.Deallocate(pageId)
}

// selectFrame pops a free frame, falling back to evicting the replacer's
// victim. A dirty victim is written back before its frame is reused.
func (b *BufferpoolManager) selectFrame() (int, error) {
	if len(b.freeFrames) > 0 {
		frameId := b.freeFrames[0]
		b.freeFrames = b.freeFrames[1:]

		return frameId, nil
	}

	frameId, ok := b.replacer.evict()
	if !ok {
		return INVALID_FRAME_ID, util.ErrPoolExhausted
	}

	victim := b.frames[frameId]
	if victim.dirty {
		resp := <-b.diskScheduler.Schedule(disk.NewRequest(victim.pageId, victim.data, true))
		if !resp.Success {
			return INVALID_FRAME_ID, fmt.Errorf("error writing back page %d", victim.pageId)
		}
		b.logger.Debug("wrote back dirty victim", zap.Int64("pageId", victim.pageId), zap.Int("frameId", frameId))
	}

	b.pageTable.Remove(victim.pageId)
	victim.reset()

	return frameId, nil
}
