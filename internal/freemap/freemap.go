// Package freemap implements the bitmap allocator for device sectors,
// persisted as a regular file through a reserved inode and mutated under a
// single process-wide mutex, per spec.md §4.3.
package freemap

import (
	"sync"

	"github.com/googlecloudplatform/blockfs/internal/blockdev"
	"github.com/googlecloudplatform/blockfs/internal/buffercache"
)

// bitsPerByte is spelled out rather than imported from a generic bits
// package; there is nothing here worth a third-party bit-set library for
// (see DESIGN.md: hand-rolled, justified).
const bitsPerByte = 8

// FreeMap tracks sector allocation state as an in-memory byte slice backed
// by raw cache reads/writes to a reserved "free-map inode's" data sectors.
// It does not itself know about the inode abstraction (that would create
// an import cycle with internal/inode, which uses FreeMap to grow files);
// instead it is handed a flat byte region via Bytes/LoadFrom, persisted by
// the inode layer through the buffer cache into the reserved free-map
// inode's data sectors.
//
// Every exported method below is GUARDED_BY(mu): callers must bracket
// calls with Lock/Unlock themselves. This is deliberate and mirrors
// spec.md §4.4.3's requirement that inode creation hold free_map_lock
// across a whole multi-sector allocation phase, and §4.4.4's requirement
// that free-all hold it across a whole release walk — a freemap that
// locked itself per call could not offer that wider critical section.
type FreeMap struct {
	mu       sync.Mutex
	bits     []byte // one bit per sector; bits[i/8] bit (i%8)
	capacity uint32
	dirty    bool
}

// New constructs a FreeMap able to track `capacity` sectors, all initially
// free. Sector 0 is marked allocated immediately since it is reserved as
// the null pointer.
func New(capacity uint32) *FreeMap {
	fm := &FreeMap{
		bits:     make([]byte, (capacity+bitsPerByte-1)/bitsPerByte),
		capacity: capacity,
	}
	fm.setBit(0, true)
	return fm
}

// LoadFrom reconstructs a FreeMap's bitmap from raw bytes previously
// produced by Bytes, e.g. when mounting an already-formatted image.
func LoadFrom(capacity uint32, raw []byte) *FreeMap {
	fm := New(capacity)
	n := len(fm.bits)
	if len(raw) < n {
		n = len(raw)
	}
	copy(fm.bits, raw[:n])
	return fm
}

// Bytes returns the raw bitmap bytes for persistence by the caller (the
// inode layer, which owns writing them through the buffer cache into the
// reserved free-map inode's data sectors). GUARDED_BY(mu).
func (fm *FreeMap) Bytes() []byte {
	out := make([]byte, len(fm.bits))
	copy(out, fm.bits)
	return out
}

func (fm *FreeMap) getBit(i uint32) bool {
	return fm.bits[i/bitsPerByte]&(1<<(i%bitsPerByte)) != 0
}

func (fm *FreeMap) setBit(i uint32, v bool) {
	if v {
		fm.bits[i/bitsPerByte] |= 1 << (i % bitsPerByte)
	} else {
		fm.bits[i/bitsPerByte] &^= 1 << (i % bitsPerByte)
	}
}

// Allocate finds and flips the lowest clear bit, returning its index. ok
// is false if the bitmap is full. GUARDED_BY(mu).
func (fm *FreeMap) Allocate() (sector uint32, ok bool) {
	for i := uint32(0); i < fm.capacity; i++ {
		if !fm.getBit(i) {
			fm.setBit(i, true)
			fm.dirty = true
			return i, true
		}
	}
	return 0, false
}

// ZeroAllocate allocates a sector as Allocate does, then cache-writes 512
// zero bytes to it so that any reader who later observes this sector
// through a freshly published indirect or data pointer sees zeros rather
// than stale contents (spec.md §4.3, §9 "free_map_alloc vs
// free_map_calloc"). GUARDED_BY(mu).
func (fm *FreeMap) ZeroAllocate(cache *buffercache.Cache) (sector uint32, ok bool) {
	sector, ok = fm.Allocate()
	if !ok {
		return 0, false
	}

	var zero [blockdev.SectorSize]byte
	cache.Write(sector, zero[:], 0, blockdev.SectorSize)
	return sector, true
}

// Release clears sector's bit. Double-releasing the same sector is a
// caller bug; FreeMap does not defend against it (spec.md §4.3:
// "Idempotence not required; callers must not double-release.").
// GUARDED_BY(mu).
func (fm *FreeMap) Release(sector uint32) {
	fm.setBit(sector, false)
	fm.dirty = true
}

// Lock and Unlock expose the free-map mutex directly so that the inode
// layer can hold free_map_lock across a multi-sector allocation or
// free-all walk, per spec.md §4.4.3/§4.4.4, without FreeMap needing to
// know what operation is being serialized.
func (fm *FreeMap) Lock()   { fm.mu.Lock() }
func (fm *FreeMap) Unlock() { fm.mu.Unlock() }

// AllocatedCount returns the number of set bits, used by fsck-style
// consistency checks (cmd/blockfsctl stat/fsck) and tests asserting
// invariant 5 (an inode's sectors return to the free-map on its last
// close after removal).
// GUARDED_BY(mu).
func (fm *FreeMap) AllocatedCount() uint32 {
	var n uint32
	for i := uint32(0); i < fm.capacity; i++ {
		if fm.getBit(i) {
			n++
		}
	}
	return n
}

// Capacity returns the number of sectors this free-map tracks.
func (fm *FreeMap) Capacity() uint32 { return fm.capacity }
