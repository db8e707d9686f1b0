package buffer

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/akinyi/pesto/recovery"
	"github.com/akinyi/pesto/storage/disk"
	"github.com/akinyi/pesto/util"
)

// mockStore is an in-memory page backend that counts writes per page id, so
// tests can assert exactly when dirty pages reach disk.
type mockStore struct {
	mu          sync.Mutex
	pages       map[int64][]byte
	writes      map[int64]int
	deallocated []int64
}

func newMockStore() *mockStore {
	return &mockStore{
		pages:  map[int64][]byte{},
		writes: map[int64]int{},
	}
}

func (m *mockStore) ReadPage(pageId int64) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	buf := make([]byte, disk.PAGE_SIZE)
	copy(buf, m.pages[pageId])
	return buf, nil
}

func (m *mockStore) WritePage(pageId int64, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	buf := make([]byte, disk.PAGE_SIZE)
	copy(buf, data)
	m.pages[pageId] = buf
	m.writes[pageId] += 1
	return nil
}

func (m *mockStore) DeallocatePage(pageId int64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.deallocated = append(m.deallocated, pageId)
}

func (m *mockStore) writeCount(pageId int64) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.writes[pageId]
}

func createBpm(size, k int, store disk.PageStore) *BufferpoolManager {
	replacer := NewLrukReplacer(size, k)
	scheduler := disk.NewScheduler(store)
	logManager := recovery.NewLogManager(zap.NewNop())

	return NewBufferpoolManager(size, replacer, scheduler, logManager, zap.NewNop())
}

func TestBufferpoolManager(t *testing.T) {
	t.Run("new pages get increasing ids and start pinned", func(t *testing.T) {
		bpm := createBpm(5, 2, newMockStore())

		page1, err := bpm.NewPage()
		assert.NoError(t, err)
		assert.Equal(t, int64(1), page1.GetPageId())
		assert.Equal(t, 1, page1.GetPinCount())

		page2, err := bpm.NewPage()
		assert.NoError(t, err)
		assert.Equal(t, int64(2), page2.GetPageId())
	})

	t.Run("fetch returns the resident page", func(t *testing.T) {
		bpm := createBpm(5, 2, newMockStore())

		page, err := bpm.NewPage()
		assert.NoError(t, err)
		copy(page.GetData(), []byte("hello, world!"))

		fetched, err := bpm.FetchPage(page.GetPageId())
		assert.NoError(t, err)
		assert.Equal(t, 2, fetched.GetPinCount())
		assert.Equal(t, []byte("hello, world!"), fetched.GetData()[:13])

		assert.True(t, bpm.UnpinPage(page.GetPageId(), false))
		assert.True(t, bpm.UnpinPage(page.GetPageId(), false))
	})

	t.Run("fetch reads an evicted page back from disk", func(t *testing.T) {
		store := newMockStore()
		bpm := createBpm(1, 2, store)

		page, err := bpm.NewPage()
		assert.NoError(t, err)
		pageId := page.GetPageId()
		copy(page.GetData(), []byte("persisted"))
		assert.True(t, bpm.UnpinPage(pageId, true))

		// the only frame gets reused, evicting the dirty page
		other, err := bpm.NewPage()
		assert.NoError(t, err)
		assert.Equal(t, 1, store.writeCount(pageId))
		assert.True(t, bpm.UnpinPage(other.GetPageId(), false))

		fetched, err := bpm.FetchPage(pageId)
		assert.NoError(t, err)
		assert.Equal(t, []byte("persisted"), fetched.GetData()[:9])
		assert.True(t, bpm.UnpinPage(pageId, false))
	})

	t.Run("evicts the least recently used page", func(t *testing.T) {
		store := newMockStore()
		bpm := createBpm(3, 2, store)

		// pages 1, 2, 3 fill the pool, all dirty
		for i := 1; i <= 3; i++ {
			page, err := bpm.NewPage()
			assert.NoError(t, err)
			assert.Equal(t, int64(i), page.GetPageId())
			assert.True(t, bpm.UnpinPage(page.GetPageId(), true))
		}

		// touch them again so every frame has k accesses, oldest first
		for i := int64(1); i <= 3; i++ {
			_, err := bpm.FetchPage(i)
			assert.NoError(t, err)
			assert.True(t, bpm.UnpinPage(i, false))
		}

		// page 1 is the least recently used victim
		page, err := bpm.NewPage()
		assert.NoError(t, err)
		assert.Equal(t, int64(4), page.GetPageId())
		assert.Equal(t, 1, store.writeCount(1))

		_, ok := bpm.pageTable.Find(int64(1))
		assert.False(t, ok)
	})

	t.Run("fails when every frame is pinned", func(t *testing.T) {
		bpm := createBpm(2, 2, newMockStore())

		_, err := bpm.NewPage()
		assert.NoError(t, err)
		_, err = bpm.NewPage()
		assert.NoError(t, err)

		_, err = bpm.NewPage()
		assert.ErrorIs(t, err, util.ErrPoolExhausted)
		_, err = bpm.FetchPage(99)
		assert.ErrorIs(t, err, util.ErrPoolExhausted)

		// unpinning frees a frame for the retry
		assert.True(t, bpm.UnpinPage(1, false))
		_, err = bpm.NewPage()
		assert.NoError(t, err)
	})

	t.Run("unpin contracts", func(t *testing.T) {
		bpm := createBpm(5, 2, newMockStore())

		// unknown page
		assert.False(t, bpm.UnpinPage(42, false))

		page, err := bpm.NewPage()
		assert.NoError(t, err)

		assert.True(t, bpm.UnpinPage(page.GetPageId(), false))
		// double unpin
		assert.False(t, bpm.UnpinPage(page.GetPageId(), false))
	})

	t.Run("dirty flag is sticky across unpins", func(t *testing.T) {
		store := newMockStore()
		bpm := createBpm(2, 2, store)

		page, err := bpm.NewPage()
		assert.NoError(t, err)
		pageId := page.GetPageId()

		_, err = bpm.FetchPage(pageId)
		assert.NoError(t, err)

		assert.True(t, bpm.UnpinPage(pageId, true))
		// a clean unpin must not clear the dirty bit
		assert.True(t, bpm.UnpinPage(pageId, false))

		// force eviction, the write back must happen
		_, err = bpm.NewPage()
		assert.NoError(t, err)
		_, err = bpm.NewPage()
		assert.NoError(t, err)
		assert.Equal(t, 1, store.writeCount(pageId))
	})

	t.Run("flush writes and clears the dirty flag", func(t *testing.T) {
		store := newMockStore()
		bpm := createBpm(2, 2, store)

		page, err := bpm.NewPage()
		assert.NoError(t, err)
		pageId := page.GetPageId()
		copy(page.GetData(), []byte("flush me"))
		assert.True(t, bpm.UnpinPage(pageId, true))

		assert.True(t, bpm.FlushPage(pageId))
		assert.Equal(t, 1, store.writeCount(pageId))
		assert.False(t, page.IsDirty())

		// a clean page evicts without another write
		_, err = bpm.NewPage()
		assert.NoError(t, err)
		_, err = bpm.NewPage()
		assert.NoError(t, err)
		assert.Equal(t, 1, store.writeCount(pageId))

		// unknown and invalid ids
		assert.False(t, bpm.FlushPage(99))
		assert.False(t, bpm.FlushPage(disk.INVALID_PAGE_ID))
	})

	t.Run("flush all pages covers every resident page", func(t *testing.T) {
		store := newMockStore()
		bpm := createBpm(3, 2, store)

		ids := []int64{}
		for range 3 {
			page, err := bpm.NewPage()
			assert.NoError(t, err)
			ids = append(ids, page.GetPageId())
			assert.True(t, bpm.UnpinPage(page.GetPageId(), true))
		}

		bpm.FlushAllPages()
		for _, id := range ids {
			assert.Equal(t, 1, store.writeCount(id))
		}
	})

	t.Run("delete page contracts", func(t *testing.T) {
		store := newMockStore()
		bpm := createBpm(5, 2, store)

		page, err := bpm.NewPage()
		assert.NoError(t, err)
		pageId := page.GetPageId()

		// pinned pages cannot be deleted
		assert.False(t, bpm.DeletePage(pageId))

		assert.True(t, bpm.UnpinPage(pageId, false))
		assert.True(t, bpm.DeletePage(pageId))
		assert.Equal(t, []int64{pageId}, store.deallocated)

		// deleting a non resident page is an idempotent success
		assert.True(t, bpm.DeletePage(pageId))

		_, ok := bpm.pageTable.Find(pageId)
		assert.False(t, ok)
	})

	t.Run("pin counts return to zero after matched fetch and unpin", func(t *testing.T) {
		bpm := createBpm(4, 2, newMockStore())

		ids := []int64{}
		for range 4 {
			page, err := bpm.NewPage()
			assert.NoError(t, err)
			ids = append(ids, page.GetPageId())
		}

		for _, id := range ids {
			for range 3 {
				_, err := bpm.FetchPage(id)
				assert.NoError(t, err)
			}
		}

		for _, id := range ids {
			for range 4 {
				assert.True(t, bpm.UnpinPage(id, false))
			}
		}

		for _, page := range bpm.frames {
			assert.Equal(t, 0, page.GetPinCount())
		}
		assert.Equal(t, 4, bpm.replacer.size())
	})
}

func TestPageGuards(t *testing.T) {
	t.Run("read guard releases its pin on drop", func(t *testing.T) {
		bpm := createBpm(5, 2, newMockStore())

		page, err := bpm.NewPage()
		assert.NoError(t, err)
		pageId := page.GetPageId()
		assert.True(t, bpm.UnpinPage(pageId, false))

		guard, err := bpm.ReadPage(pageId)
		assert.NoError(t, err)
		assert.Equal(t, 1, page.GetPinCount())

		guard.Drop()
		assert.Equal(t, 0, page.GetPinCount())

		// dropping twice is safe
		guard.Drop()
		assert.Equal(t, 0, page.GetPinCount())
	})

	t.Run("write guard marks the page dirty", func(t *testing.T) {
		store := newMockStore()
		bpm := createBpm(2, 2, store)

		page, err := bpm.NewPage()
		assert.NoError(t, err)
		pageId := page.GetPageId()
		assert.True(t, bpm.UnpinPage(pageId, false))

		guard, err := bpm.WritePage(pageId)
		assert.NoError(t, err)
		copy(guard.GetDataMut(), []byte("guarded write"))
		guard.Drop()

		// eviction must write the guarded mutation back
		_, err = bpm.NewPage()
		assert.NoError(t, err)
		_, err = bpm.NewPage()
		assert.NoError(t, err)
		assert.Equal(t, 1, store.writeCount(pageId))
		assert.Equal(t, []byte("guarded write"), store.pages[pageId][:13])
	})
}
