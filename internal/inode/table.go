package inode

import (
	"fmt"
	"sync"

	"github.com/jacobsa/syncutil"
)

// descriptor is the in-memory inode descriptor of spec.md §3, unique per
// disk sector across the process. mu is the per-inode meta_lock: it
// brackets both the small bookkeeping mutations below (openCnt, removed,
// denyWriteCnt) and the full body of ReadAt/WriteAt, matching spec.md
// §4.4.5's "Acquires the inode's metadata lock for the full call."
type descriptor struct {
	sector uint32

	mu syncutil.InvariantMutex

	// GUARDED_BY(mu)
	openCnt int
	// GUARDED_BY(mu)
	removed bool
	// GUARDED_BY(mu)
	denyWriteCnt int
}

func newDescriptor(sector uint32) *descriptor {
	d := &descriptor{sector: sector, openCnt: 1}
	d.mu = syncutil.NewInvariantMutex(d.checkInvariants)
	return d
}

// checkInvariants enforces invariant 4: 0 <= denyWriteCnt <= openCnt.
func (d *descriptor) checkInvariants() {
	if d.denyWriteCnt < 0 || d.denyWriteCnt > d.openCnt {
		panic(fmt.Sprintf(
			"inode %d: deny_write_cnt %d out of range for open_cnt %d",
			d.sector, d.denyWriteCnt, d.openCnt))
	}
	if d.openCnt < 0 {
		panic(fmt.Sprintf("inode %d: negative open_cnt %d", d.sector, d.openCnt))
	}
}

// table is the process-wide open-inode table keyed by disk sector
// (spec.md §4.4.2). open_inodes_lock in the spec's lock taxonomy.
type table struct {
	mu      sync.Mutex
	entries map[uint32]*descriptor
}

func newTable() *table {
	return &table{entries: make(map[uint32]*descriptor)}
}

// open returns the existing descriptor for sector with openCnt
// incremented, or inserts a fresh one with openCnt 1.
func (t *table) open(sector uint32) *descriptor {
	t.mu.Lock()
	defer t.mu.Unlock()

	if d, ok := t.entries[sector]; ok {
		d.mu.Lock()
		d.openCnt++
		d.mu.Unlock()
		return d
	}

	d := newDescriptor(sector)
	t.entries[sector] = d
	return d
}

// reopen increments an already-open descriptor's openCnt. The descriptor
// is treated as non-nil by contract (spec.md §9: "inode_reopen increments
// open_cnt without null-checking before dereferencing").
func (t *table) reopen(d *descriptor) {
	d.mu.Lock()
	d.openCnt++
	d.mu.Unlock()
}

// close decrements d's openCnt. If it reaches zero the descriptor is
// removed from the table and wasRemoved reports whether the inode had
// been marked for deletion, so the caller can free its on-disk storage
// outside of open_inodes_lock.
func (t *table) close(d *descriptor) (lastClose, wasRemoved bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	d.mu.Lock()
	d.openCnt--
	lastClose = d.openCnt == 0
	wasRemoved = d.removed
	d.mu.Unlock()

	if lastClose {
		delete(t.entries, d.sector)
	}

	return lastClose, wasRemoved
}

func (d *descriptor) markRemoved() {
	d.mu.Lock()
	d.removed = true
	d.mu.Unlock()
}

func (d *descriptor) denyWrite() {
	d.mu.Lock()
	d.denyWriteCnt++
	d.mu.Unlock()
}

func (d *descriptor) allowWrite() {
	d.mu.Lock()
	d.denyWriteCnt--
	d.mu.Unlock()
}

func (d *descriptor) writesDenied() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.denyWriteCnt > 0
}
