package index

import "fmt"

// RID locates a record: the page holding it and the slot within that page.
type RID struct {
	PageId  int64
	SlotNum int32
}

func (r RID) String() string {
	return fmt.Sprintf("(%d, %d)", r.PageId, r.SlotNum)
}
