package buffer

import (
	"container/list"
	"fmt"
	"sync"

	"github.com/akinyi/pesto/util"
)

const INVALID_FRAME_ID = -1

// frameRecord tracks one frame's accesses. history holds up to k logical
// timestamps, oldest first; elem is the frame's position in whichever list
// currently orders it.
type frameRecord struct {
	frameId     int
	evictable   bool
	accessCount int
	history     []int
	elem        *list.Element
	inCache     bool
}

func (f *frameRecord) oldestAccess() int {
	return f.history[0]
}

// lrukReplacer picks eviction victims by LRU-K: among evictable frames the
// largest backward k-distance wins, with frames under k accesses treated as
// infinitely distant and ordered by first access.
type lrukReplacer struct {
	mu            sync.Mutex
	k             int
	replacerSize  int
	currSize      int
	currTimestamp int
	frames        map[int]*frameRecord

	// frames with fewer than k accesses, oldest first access at the front
	historyList *list.List
	// frames with k accesses, oldest k-th-most-recent access at the front
	cacheList *list.List
}

func NewLrukReplacer(numFrames, k int) *lrukReplacer {
	return &lrukReplacer{
		k:            k,
		replacerSize: numFrames,
		frames:       map[int]*frameRecord{},
		historyList:  list.New(),
		cacheList:    list.New(),
	}
}

func (lru *lrukReplacer) recordAccess(frameId int) error {
	lru.mu.Lock()
	defer lru.mu.Unlock()

	lru.currTimestamp += 1

	if frameId < 0 || frameId >= lru.replacerSize {
		return fmt.Errorf("%w: %d", util.ErrInvalidFrame, frameId)
	}

	rec, ok := lru.frames[frameId]
	if !ok {
		// first visit, frame starts out evictable
		rec = &frameRecord{
			frameId:     frameId,
			evictable:   true,
			accessCount: 1,
			history:     []int{lru.currTimestamp},
		}
		if lru.k == 1 {
			lru.insertSorted(rec)
			rec.inCache = true
		} else {
			rec.elem = lru.historyList.PushBack(rec)
		}
		lru.frames[frameId] = rec
		lru.currSize += 1

		return nil
	}

	rec.accessCount += 1
	rec.history = append(rec.history, lru.currTimestamp)
	if len(rec.history) > lru.k {
		rec.history = rec.history[1:]
	}

	switch {
	case rec.accessCount < lru.k:
		// stays in the history list at its position

	case rec.accessCount == lru.k:
		// graduates from the history list into the cache list
		lru.historyList.Remove(rec.elem)
		lru.insertSorted(rec)
		rec.inCache = true

	default:
		// already cached, reposition by the new k-th-most-recent access
		lru.cacheList.Remove(rec.elem)
		lru.insertSorted(rec)
	}

	return nil
}

// insertSorted places rec in the cache list keeping it ordered by oldest
// tracked access.
func (lru *lrukReplacer) insertSorted(rec *frameRecord) {
	pivot := rec.oldestAccess()

	for e := lru.cacheList.Front(); e != nil; e = e.Next() {
		if e.Value.(*frameRecord).oldestAccess() > pivot {
			rec.elem = lru.cacheList.InsertBefore(rec, e)
			return
		}
	}

	rec.elem = lru.cacheList.PushBack(rec)
}

func (lru *lrukReplacer) setEvictable(frameId int, evictable bool) {
	lru.mu.Lock()
	defer lru.mu.Unlock()

	rec, ok := lru.frames[frameId]
	if !ok {
		return
	}

	if !rec.evictable && evictable {
		lru.currSize += 1
	}
	if rec.evictable && !evictable {
		lru.currSize -= 1
	}

	rec.evictable = evictable
}

// evict removes and returns the evictable frame with the largest
// k-distance. History frames all sit at +inf, so the oldest of them wins
// before any cached frame is considered.
func (lru *lrukReplacer) evict() (int, bool) {
	lru.mu.Lock()
	defer lru.mu.Unlock()

	if lru.currSize <= 0 {
		return INVALID_FRAME_ID, false
	}

	for _, l := range []*list.List{lru.historyList, lru.cacheList} {
		for e := l.Front(); e != nil; e = e.Next() {
			rec := e.Value.(*frameRecord)
			if !rec.evictable {
				continue
			}

			l.Remove(e)
			delete(lru.frames, rec.frameId)
			lru.currSize -= 1

			return rec.frameId, true
		}
	}

	return INVALID_FRAME_ID, false
}

func (lru *lrukReplacer) remove(frameId int) {
	lru.mu.Lock()
	defer lru.mu.Unlock()

	rec, ok := lru.frames[frameId]
	if !ok {
		return
	}

	if !rec.evictable {
		panic(fmt.Sprintf("removing an unevictable frame: %d", frameId))
	}

	if rec.inCache {
		lru.cacheList.Remove(rec.elem)
	} else {
		lru.historyList.Remove(rec.elem)
	}

	delete(lru.frames, frameId)
	lru.currSize -= 1
}

func (lru *lrukReplacer) size() int {
	lru.mu.Lock()
	defer lru.mu.Unlock()

	return lru.currSize
}
