package directory

import "sync"

// dirRef is the open-directory table's per-inumber entry: a second,
// directory-scoped open count layered on top of the inode layer's own
// open_cnt (spec.md §4.5), so that Remove can refuse a directory that is
// open anywhere else even while its underlying inode is shared.
type dirRef struct {
	mu      sync.Mutex
	openCnt int
}

// openTable is the open_dirs_lock of spec.md §5: process-wide, keyed by
// inumber. Grounded on the teacher's fs/inode/dir.go lookup-count style
// accounting, layered a second time for directory handles specifically.
type openTable struct {
	mu      sync.Mutex
	entries map[uint32]*dirRef
}

func newOpenTable() *openTable {
	return &openTable{entries: make(map[uint32]*dirRef)}
}

// open increments (or creates) the ref for inumber. Every exit path is
// scoped with defer, per spec.md §9's note that dir_reopen-style table
// lookups must release open_dirs_lock on every branch, not just one.
func (t *openTable) open(inumber uint32) *dirRef {
	t.mu.Lock()
	defer t.mu.Unlock()

	r, ok := t.entries[inumber]
	if !ok {
		r = &dirRef{}
		t.entries[inumber] = r
	}
	r.mu.Lock()
	r.openCnt++
	r.mu.Unlock()
	return r
}

func (t *openTable) close(inumber uint32, r *dirRef) {
	t.mu.Lock()
	defer t.mu.Unlock()

	r.mu.Lock()
	r.openCnt--
	empty := r.openCnt == 0
	r.mu.Unlock()

	if empty {
		delete(t.entries, inumber)
	}
}

// count reports how many open handles exist for inumber, 0 if none.
func (t *openTable) count(inumber uint32) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	r, ok := t.entries[inumber]
	if !ok {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.openCnt
}
