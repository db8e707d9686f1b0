package util

import "errors"

var (
	// ErrPoolExhausted means every frame is pinned and nothing is evictable.
	// Callers may retry after unpinning pages they hold.
	ErrPoolExhausted = errors.New("bufferpool exhausted")

	// ErrInvalidFrame means a frame id outside the replacer's range.
	ErrInvalidFrame = errors.New("invalid frame id")

	// ErrPageOverflow means a page struct serialized to more than PAGE_SIZE bytes.
	ErrPageOverflow = errors.New("serialized page exceeds page size")
)
