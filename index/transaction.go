package index

// transaction remembers pages emptied during one mutating operation so they
// can be deleted once every pin on them is released.
type transaction struct {
	deletedPages []int64
	seen         map[int64]struct{}
}

func newTransaction() *transaction {
	return &transaction{seen: map[int64]struct{}{}}
}

func (t *transaction) addDeletedPage(pageId int64) {
	if _, ok := t.seen[pageId]; ok {
		return
	}

	t.seen[pageId] = struct{}{}
	t.deletedPages = append(t.deletedPages, pageId)
}
