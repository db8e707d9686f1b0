package util

import (
	"fmt"

	"github.com/vmihailenco/msgpack"

	"github.com/akinyi/pesto/storage/disk"
)

// ToByteSlice serializes obj into a PAGE_SIZE buffer. The encoded form must
// fit in one page.
func ToByteSlice[T any](obj T) ([]byte, error) {
	res := make([]byte, disk.PAGE_SIZE)

	data, err := msgpack.Marshal(obj)
	if err != nil {
		return nil, err
	}
	if len(data) > disk.PAGE_SIZE {
		return nil, fmt.Errorf("%w: %d bytes", ErrPageOverflow, len(data))
	}
	copy(res, data)

	return res, nil
}

// ToStruct deserializes a page buffer. A zeroed buffer is a page that was
// never written and decodes to the zero value.
func ToStruct[T any](data []byte) (T, error) {
	var res T

	if len(data) == 0 || data[0] == 0x00 {
		return res, nil
	}

	if err := msgpack.Unmarshal(data, &res); err != nil {
		return res, fmt.Errorf("decoding page: %w", err)
	}

	return res, nil
}
