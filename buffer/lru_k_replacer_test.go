package buffer

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/akinyi/pesto/util"
)

func TestLrukReplacer(t *testing.T) {
	t.Run("rejects out of range frames", func(t *testing.T) {
		replacer := NewLrukReplacer(5, 2)

		assert.ErrorIs(t, replacer.recordAccess(5), util.ErrInvalidFrame)
		assert.ErrorIs(t, replacer.recordAccess(-1), util.ErrInvalidFrame)
		assert.NoError(t, replacer.recordAccess(4))
	})

	t.Run("only evictable frames count towards size", func(t *testing.T) {
		replacer := NewLrukReplacer(5, 2)

		_ = replacer.recordAccess(1)
		_ = replacer.recordAccess(2)
		assert.Equal(t, 2, replacer.size())

		replacer.setEvictable(1, false)
		assert.Equal(t, 1, replacer.size())

		replacer.setEvictable(1, true)
		assert.Equal(t, 2, replacer.size())

		// unknown frames are a no-op
		replacer.setEvictable(4, true)
		assert.Equal(t, 2, replacer.size())
	})

	t.Run("prefers frames with fewer than k accesses", func(t *testing.T) {
		replacer := NewLrukReplacer(5, 2)

		// frame 1 reaches k accesses, frame 2 stays below
		_ = replacer.recordAccess(1)
		_ = replacer.recordAccess(1)
		_ = replacer.recordAccess(2)

		frameId, ok := replacer.evict()
		assert.True(t, ok)
		assert.Equal(t, 2, frameId)
	})

	t.Run("evicts the oldest when all frames are below k accesses", func(t *testing.T) {
		replacer := NewLrukReplacer(5, 2)

		_ = replacer.recordAccess(2)
		_ = replacer.recordAccess(3)
		_ = replacer.recordAccess(1)

		frameId, ok := replacer.evict()
		assert.True(t, ok)
		assert.Equal(t, 2, frameId)
	})

	t.Run("evicts by kth most recent access when all frames reached k", func(t *testing.T) {
		replacer := NewLrukReplacer(5, 2)

		_ = replacer.recordAccess(3)
		_ = replacer.recordAccess(3)
		_ = replacer.recordAccess(2)
		_ = replacer.recordAccess(2)
		_ = replacer.recordAccess(1)
		_ = replacer.recordAccess(1)

		frameId, ok := replacer.evict()
		assert.True(t, ok)
		assert.Equal(t, 3, frameId)
	})

	t.Run("skips unevictable frames", func(t *testing.T) {
		replacer := NewLrukReplacer(5, 2)

		_ = replacer.recordAccess(1)
		_ = replacer.recordAccess(2)
		replacer.setEvictable(1, false)

		frameId, ok := replacer.evict()
		assert.True(t, ok)
		assert.Equal(t, 2, frameId)

		_, ok = replacer.evict()
		assert.False(t, ok)
	})

	t.Run("evicted frames are forgotten", func(t *testing.T) {
		replacer := NewLrukReplacer(5, 2)

		_ = replacer.recordAccess(1)

		frameId, ok := replacer.evict()
		assert.True(t, ok)
		assert.Equal(t, 1, frameId)
		assert.Equal(t, 0, replacer.size())

		// the frame starts a fresh history on its next access
		_ = replacer.recordAccess(1)
		assert.Equal(t, 1, replacer.size())
	})

	t.Run("remove drops a frame from all state", func(t *testing.T) {
		replacer := NewLrukReplacer(5, 2)

		_ = replacer.recordAccess(1)
		_ = replacer.recordAccess(2)

		replacer.remove(1)
		assert.Equal(t, 1, replacer.size())

		// unknown frames are a no-op
		replacer.remove(1)
		assert.Equal(t, 1, replacer.size())
	})

	t.Run("remove panics on an unevictable frame", func(t *testing.T) {
		replacer := NewLrukReplacer(5, 2)

		_ = replacer.recordAccess(1)
		replacer.setEvictable(1, false)

		assert.Panics(t, func() { replacer.remove(1) })
	})

	t.Run("eviction order follows backward k distance", func(t *testing.T) {
		replacer := NewLrukReplacer(8, 2)

		for _, frameId := range []int{1, 2, 3, 4, 1, 2, 5, 6, 1, 2, 3, 4, 5, 6, 4, 7} {
			_ = replacer.recordAccess(frameId)
		}
		for frameId := 1; frameId <= 7; frameId++ {
			replacer.setEvictable(frameId, true)
		}
		assert.Equal(t, 7, replacer.size())

		// frame 7 has a single access and infinite k distance, then the
		// cached frames ordered by their second most recent access
		expected := []int{7, 3, 1, 2, 5, 6, 4}
		for _, want := range expected {
			frameId, ok := replacer.evict()
			assert.True(t, ok)
			assert.Equal(t, want, frameId)
		}

		_, ok := replacer.evict()
		assert.False(t, ok)
	})
}
