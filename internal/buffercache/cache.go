// Package buffercache implements the fixed-capacity, write-back,
// clock-replacement sector cache sitting between the filesystem layers and
// the block device. It is grounded on this corpus's lease/checkout idiom
// (a caller holds a handle that must be released) adapted from per-object
// GCS read leases to per-slot sector leases, with the clock-eviction
// algorithm implemented directly per spec rather than borrowed from any
// single example (none of the example repos implement clock replacement).
package buffercache

import (
	"sync"

	"github.com/googlecloudplatform/blockfs/internal/blockdev"
	"github.com/googlecloudplatform/blockfs/internal/blocklog"
)

// Slots is the fixed cache capacity. The spec treats cache size scaling as
// a non-goal: this is a compile-time constant, never parameterized by cfg.
const Slots = 64

type slot struct {
	mu     sync.Mutex
	sector uint32
	valid  bool
	dirty  bool
	data   [blockdev.SectorSize]byte
}

// Cache is the fixed 64-slot associative sector cache described in
// spec.md §4.2. The zero value is not usable; construct with New.
type Cache struct {
	device blockdev.Device

	// mu guards the sector->slot index, the per-slot used bits, and the
	// clock hand. It is the cache-wide lock referred to as cache_lock in
	// the spec's lock taxonomy. It must never be held across device I/O.
	mu    sync.Mutex
	index map[uint32]int
	used  [Slots]bool
	hand  int

	hits  uint64
	total uint64

	slots [Slots]*slot
}

// New constructs a cache with all slots initially invalid, backed by
// device.
func New(device blockdev.Device) *Cache {
	c := &Cache{
		device: device,
		index:  make(map[uint32]int, Slots),
	}
	for i := range c.slots {
		c.slots[i] = &slot{}
	}
	return c
}

// Handle is a checked-out cache slot. The caller must call Release exactly
// once, and must not retain the handle past that call.
type Handle struct {
	s *slot
}

// Release unlocks the slot backing h. Safe to call exactly once.
func (h *Handle) Release() {
	h.s.mu.Unlock()
}

// checkout implements the seven-step lookup/eviction protocol from
// spec.md §4.2 and returns a handle with the slot's lock held.
func (c *Cache) checkout(sector uint32) *Handle {
	c.mu.Lock()

	if idx, ok := c.index[sector]; ok {
		s := c.slots[idx]
		s.mu.Lock()
		c.used[idx] = true
		c.hits++
		c.total++
		c.mu.Unlock()
		return &Handle{s: s}
	}

	c.total++

	idx := c.clockScanLocked()
	s := c.slots[idx]

	oldSector := s.sector
	oldValid := s.valid
	oldDirty := s.dirty

	// Never contended in the steady state: the cache lock, held
	// continuously since step 1, has excluded every other lookup from
	// reaching this slot through the index.
	s.mu.Lock()

	if oldValid {
		delete(c.index, oldSector)
	}
	c.index[sector] = idx
	s.sector = sector
	s.valid = true
	c.used[idx] = true

	c.mu.Unlock()

	if oldValid && oldDirty {
		c.device.WriteSector(oldSector, s.data[:])
	}
	c.device.ReadSector(sector, s.data[:])
	s.dirty = false

	return &Handle{s: s}
}

// clockScanLocked runs the one-handed clock algorithm and returns the
// chosen victim slot index. Callers must hold c.mu.
func (c *Cache) clockScanLocked() int {
	for {
		idx := c.hand
		c.hand = (c.hand + 1) % Slots

		s := c.slots[idx]
		if !s.valid || !c.used[idx] {
			return idx
		}
		c.used[idx] = false
	}
}

// Read copies [offset, offset+size) of sector's cached contents into dst.
func (c *Cache) Read(sector uint32, dst []byte, offset, size int) {
	requireInSector(offset, size)
	h := c.checkout(sector)
	defer h.Release()
	copy(dst, h.s.data[offset:offset+size])
}

// Write copies src into [offset, offset+size) of sector's cached contents
// and marks the slot dirty.
func (c *Cache) Write(sector uint32, src []byte, offset, size int) {
	requireInSector(offset, size)
	h := c.checkout(sector)
	defer h.Release()
	copy(h.s.data[offset:offset+size], src[:size])
	h.s.dirty = true
}

func requireInSector(offset, size int) {
	if offset < 0 || size < 0 || offset+size > blockdev.SectorSize {
		blocklog.Fatalf("buffercache: offset+size out of range: offset=%d size=%d", offset, size)
	}
}

// FlushAll writes every dirty, valid slot back to the device. Each slot is
// written back under its own slot lock only, so the cache lock is not held
// across the device I/O and an eviction of that slot waits for the
// write-back to finish.
func (c *Cache) FlushAll() {
	for _, s := range c.slots {
		s.mu.Lock()
		if s.valid && s.dirty {
			c.device.WriteSector(s.sector, s.data[:])
			s.dirty = false
		}
		s.mu.Unlock()
	}
}

// Reset flushes, then invalidates every slot and zeros the hit-rate
// counters.
func (c *Cache) Reset() {
	c.FlushAll()

	c.mu.Lock()
	defer c.mu.Unlock()

	for i, s := range c.slots {
		s.mu.Lock()
		s.valid = false
		s.dirty = false
		s.sector = 0
		s.mu.Unlock()
		c.used[i] = false
	}
	c.index = make(map[uint32]int, Slots)
	c.hand = 0
	c.hits = 0
	c.total = 0
}

// Device returns the block device backing this cache, so that callers
// (the filesystem facade's write_cnt) can read its write counter without
// the cache needing to re-expose every Device method itself.
func (c *Cache) Device() blockdev.Device { return c.device }

// HitRate returns the integer percentage of lookups that found their
// sector resident, since the last Reset.
func (c *Cache) HitRate() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.total == 0 {
		return 0
	}
	return int(100 * c.hits / c.total)
}
