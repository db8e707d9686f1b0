package index

// headerPage lives at page 0 and maps every index name to its root page id.
type headerPage struct {
	Records map[string]int64
}
