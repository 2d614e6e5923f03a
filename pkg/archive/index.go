package archive

import "time"

const dayLayout = "2006-01-02"

// index holds the three derived lookup tables. It is not safe for concurrent
// use; the Store guards it with its own lock.
type index struct {
	byDate map[string]map[string]struct{}
	byType map[string]map[string]struct{}
	bySize map[string]map[string]struct{}
}

// IndexStats reports the number of buckets in each table.
type IndexStats struct {
	ByDate int `json:"byDate"`
	ByType int `json:"byType"`
	BySize int `json:"bySize"`
}

func newIndex() *index {
	return &index{
		byDate: make(map[string]map[string]struct{}),
		byType: make(map[string]map[string]struct{}),
		bySize: make(map[string]map[string]struct{}),
	}
}

func dayKey(t time.Time) string {
	return t.UTC().Format(dayLayout)
}

func (ix *index) add(r *Record) {
	insert(ix.byDate, dayKey(r.CreatedAt), r.ID)
	insert(ix.byType, r.DataType, r.ID)
	insert(ix.bySize, SizeCategory(r.ArchivedSize), r.ID)
}

func (ix *index) remove(r *Record) {
	prune(ix.byDate, dayKey(r.CreatedAt), r.ID)
	prune(ix.byType, r.DataType, r.ID)
	prune(ix.bySize, SizeCategory(r.ArchivedSize), r.ID)
}

func (ix *index) ofType(dataType string) map[string]struct{} {
	return ix.byType[dataType]
}

func (ix *index) stats() IndexStats {
	return IndexStats{ByDate: len(ix.byDate), ByType: len(ix.byType), BySize: len(ix.bySize)}
}

// rebuildIndex derives a fresh index from records.
func rebuildIndex(records map[string]*Record) *index {
	ix := newIndex()
	for _, r := range records {
		ix.add(r)
	}
	return ix
}

func insert(table map[string]map[string]struct{}, bucket, id string) {
	ids, ok := table[bucket]
	if !ok {
		ids = make(map[string]struct{})
		table[bucket] = ids
	}
	ids[id] = struct{}{}
}

// prune removes id and drops the bucket once it is empty.
func prune(table map[string]map[string]struct{}, bucket, id string) {
	ids, ok := table[bucket]
	if !ok {
		return
	}
	delete(ids, id)
	if len(ids) == 0 {
		delete(table, bucket)
	}
}
