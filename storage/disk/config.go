package disk

const (
	PAGE_SIZE       = 4096
	HEADER_PAGE_ID  = int64(0)
	INVALID_PAGE_ID = int64(-1)

	DEFAULT_PAGE_CAPACITY = 16
)
