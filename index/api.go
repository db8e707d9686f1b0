package index

// Scan returns the values of every key in [start, stop] in key order.
func (b *BplusTree[K, V]) Scan(start, stop K) ([]V, error) {
	it, err := b.BeginAt(start)
	if err != nil {
		return nil, err
	}
	defer it.Drop()

	res := []V{}
	for !it.IsEnd() {
		key, val, err := it.Next()
		if err != nil {
			return res, err
		}

		if key > stop {
			break
		}
		res = append(res, val)
	}

	return res, nil
}

func (b *BplusTree[K, V]) BatchInsert(items map[K]V) error {
	for k, v := range items {
		if _, err := b.Insert(k, v); err != nil {
			return err
		}
	}

	return nil
}
