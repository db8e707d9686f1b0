package disk

import (
	"sync"
)

func NewScheduler(store PageStore) *DiskScheduler {
	ds := &DiskScheduler{
		reqCh:     make(chan DiskReq, 100),
		pageQueue: make(map[int64]chan DiskReq),
		store:     store,
	}

	go ds.handleDiskReq()
	return ds
}

func NewRequest(pageId int64, data []byte, isWrite bool) DiskReq {
	return DiskReq{
		PageId: pageId,
		Data:   data,
		Write:  isWrite,
		RespCh: make(chan DiskResp, 1),
	}
}

func (ds *DiskScheduler) Schedule(req DiskReq) <-chan DiskResp {
	ds.reqCh <- req
	return req.RespCh
}

// Deallocate forwards to the store directly; releasing a file slot is
// metadata-only and needs no ordering against in-flight page I/O.
func (ds *DiskScheduler) Deallocate(pageId int64) {
	ds.store.DeallocatePage(pageId)
}

func (ds *DiskScheduler) handleDiskReq() {
	for req := range ds.reqCh {
		ds.pageQueueMu.Lock()
		_, ok := ds.pageQueue[req.PageId]
		if !ok {
			ds.pageQueue[req.PageId] = make(chan DiskReq, 10)
		}
		queue := ds.pageQueue[req.PageId]
		ds.pageQueueMu.Unlock()

		queue <- req

		// !ok means we created a new page queue, therefore we should start a
		// new worker to handle the queue's page requests
		if !ok {
			go ds.pageWorker(req.PageId, queue)
		}
	}
}

func (ds *DiskScheduler) pageWorker(pageId int64, reqQueue chan DiskReq) {
	for {
		select {
		case req := <-reqQueue:
			if req.Write {
				if err := ds.store.WritePage(req.PageId, req.Data); err != nil {
					req.RespCh <- DiskResp{Success: false}
				} else {
					req.RespCh <- DiskResp{Success: true}
				}
			} else {
				if data, err := ds.store.ReadPage(req.PageId); err != nil {
					req.RespCh <- DiskResp{Success: false}
				} else {
					req.RespCh <- DiskResp{Success: true, Data: data}
				}
			}

		default:
			// done handling requests for this page, can remove it from queue
			ds.pageQueueMu.Lock()
			if len(reqQueue) > 0 {
				// a request landed between the drain and the lock
				ds.pageQueueMu.Unlock()
				continue
			}
			delete(ds.pageQueue, pageId)
			ds.pageQueueMu.Unlock()
			return
		}
	}
}

type DiskScheduler struct {
	reqCh chan DiskReq
	store PageStore

	pageQueue   map[int64]chan DiskReq
	pageQueueMu sync.Mutex
}

type DiskReq struct {
	PageId int64
	Data   []byte
	Write  bool
	RespCh chan DiskResp
}

type DiskResp struct {
	Success bool
	Data    []byte
}
