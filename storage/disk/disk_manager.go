package disk

import (
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"
)

// PageStore is the byte-addressable page backend consumed by the scheduler
// and the bufferpool.
type PageStore interface {
	ReadPage(pageId int64) ([]byte, error)
	WritePage(pageId int64, data []byte) error
	DeallocatePage(pageId int64)
}

func NewManager(file *os.File, logger *zap.Logger) *diskManager {
	return &diskManager{
		dbFile:       file,
		logger:       logger,
		pageCapacity: DEFAULT_PAGE_CAPACITY,
		freeSlots:    []int64{},
		pages:        map[int64]int64{},
	}
}

func (dm *diskManager) WritePage(pageId int64, data []byte) error {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	offset, pageFound := dm.pages[pageId]
	if !pageFound {
		var err error
		offset, err = dm.allocateSlot()
		if err != nil {
			return err
		}
		dm.pages[pageId] = offset
	}

	if _, err := dm.dbFile.WriteAt(data, offset); err != nil {
		return fmt.Errorf("error writing at offset %d: %v", offset, err)
	}

	return nil
}

func (dm *diskManager) ReadPage(pageId int64) ([]byte, error) {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	offset, pageFound := dm.pages[pageId]
	if !pageFound {
		// a page that was never written reads as zeroes; its file slot is
		// claimed on first write
		return make([]byte, PAGE_SIZE), nil
	}

	buf := make([]byte, PAGE_SIZE)
	if _, err := dm.dbFile.ReadAt(buf, offset); err != nil {
		return nil, fmt.Errorf("error reading from offset %d: %v", offset, err)
	}

	return buf, nil
}

// DeallocatePage releases the page's file slot for reuse by a later
// allocation. Unknown pages are a no-op.
func (dm *diskManager) DeallocatePage(pageId int64) {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	if offset, ok := dm.pages[pageId]; ok {
		dm.freeSlots = append(dm.freeSlots, offset)
		delete(dm.pages, pageId)
		dm.logger.Debug("deallocated page", zap.Int64("pageId", pageId), zap.Int64("offset", offset))
	}
}

func (dm *diskManager) allocateSlot() (int64, error) {
	if len(dm.freeSlots) > 0 {
		offset := dm.freeSlots[0]
		dm.freeSlots = dm.freeSlots[1:]

		return offset, nil
	}

	if len(dm.pages)+1 > dm.pageCapacity {
		dm.pageCapacity *= 2
		if err := os.Truncate(dm.dbFile.Name(), int64(dm.pageCapacity)*PAGE_SIZE); err != nil {
			return -1, fmt.Errorf("error resizing db file: %v", err)
		}
		dm.logger.Debug("resized db file", zap.Int("pageCapacity", dm.pageCapacity))
	}

	return dm.nextOffset(), nil
}

func (dm *diskManager) nextOffset() int64 {
	return int64(len(dm.pages)) * PAGE_SIZE
}

type diskManager struct {
	mu           sync.Mutex
	dbFile       *os.File
	logger       *zap.Logger
	pages        map[int64]int64
	freeSlots    []int64
	pageCapacity int
}
