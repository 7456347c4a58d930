// Package inode implements the indexed inode layer of spec.md §4.4: the
// on-disk inode block layout, sparse allocation-on-write through direct /
// single-indirect / double-indirect pointers, the process-wide open-inode
// table, deny-write bracketing, and deferred deletion.
//
// It is grounded on the teacher's fs/inode.lookupCount (reference counting
// with a destroy callback run at zero, fs/inode/lookup_count.go) and
// fs/fs.go's unlockAndMaybeDisposeOfInode, generalized from "GCS object
// lookup count" to "on-disk inode open count with deferred on-disk free".
package inode

import (
	"encoding/binary"

	"github.com/googlecloudplatform/blockfs/internal/blockdev"
	"github.com/googlecloudplatform/blockfs/internal/blocklog"
	"github.com/googlecloudplatform/blockfs/internal/buffercache"
	"github.com/googlecloudplatform/blockfs/internal/fserrors"
	"github.com/googlecloudplatform/blockfs/internal/freemap"
)

// Manager owns the open-inode table and the collaborators (cache,
// free-map) needed to create, open, read, write, and destroy inodes. One
// Manager is shared process-wide, per spec.md §9's singleton model.
type Manager struct {
	cache   *buffercache.Cache
	freeMap *freemap.FreeMap
	table   *table
}

func NewManager(cache *buffercache.Cache, freeMap *freemap.FreeMap) *Manager {
	return &Manager{cache: cache, freeMap: freeMap, table: newTable()}
}

// Create allocates data blocks for the declared length on an
// already-allocated inode sector (the facade allocates `sector` itself
// before calling Create, per spec.md §4.4.3), zero-fills them via the
// free-map's zero-allocate, and stamps length and the magic constant.
// Holds free_map_lock for the whole block-allocation phase.
func (m *Manager) Create(sector uint32, length int64) error {
	if length < 0 || length > MaxBytes {
		return fserrors.ErrInvalidArgument
	}

	numBlocks := (length + blockdev.SectorSize - 1) / blockdev.SectorSize

	m.freeMap.Lock()
	for i := int64(0); i < numBlocks; i++ {
		if _, err := m.lookupOrCreateLocked(sector, i*blockdev.SectorSize); err != nil {
			m.freeAllLocked(sector)
			m.freeMap.Unlock()
			return err
		}
	}
	m.freeMap.Unlock()

	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(int32(length)))
	m.cache.Write(sector, lenBuf[:], offsetLength, 4)

	var magicBuf [4]byte
	binary.LittleEndian.PutUint32(magicBuf[:], diskMagic)
	m.cache.Write(sector, magicBuf[:], offsetMagic, 4)

	return nil
}

// Open returns the Inode for sector, creating a fresh descriptor with
// open_cnt 1 the first time and bumping open_cnt on every subsequent
// call, per invariant 3.
func (m *Manager) Open(sector uint32) *Inode {
	d := m.table.open(sector)
	return &Inode{mgr: m, sector: sector, desc: d}
}

// Inode is the handle callers (the directory layer, the filesystem
// facade) hold. Distinct Inode values returned by separate Open/Reopen
// calls on the same sector share the same underlying descriptor, so they
// observe each other's open/deny-write/removed state, per invariant 3.
type Inode struct {
	mgr    *Manager
	sector uint32
	desc   *descriptor
}

// Sector returns the inumber: the disk sector holding this inode.
func (in *Inode) Sector() uint32 { return in.sector }

// Reopen returns a new handle to the same inode, incrementing open_cnt.
func (in *Inode) Reopen() *Inode {
	in.mgr.table.reopen(in.desc)
	return &Inode{mgr: in.mgr, sector: in.sector, desc: in.desc}
}

// Close decrements open_cnt. On the last close of an inode that was
// marked Remove'd, its on-disk data blocks and its own sector are
// returned to the free-map (invariant 5).
func (in *Inode) Close() {
	lastClose, removed := in.mgr.table.close(in.desc)
	if lastClose && removed {
		in.mgr.destroy(in.sector)
	}
}

// Remove marks the inode for deletion; its storage is freed when the last
// open handle closes (spec.md §3 lifecycle, §4.5's dir_remove ->
// inode_remove).
func (in *Inode) Remove() {
	in.desc.markRemoved()
}

// DenyWrite and AllowWrite bracket a period where the inode must not be
// written (e.g. an executing program's text), enforcing invariant 4.
func (in *Inode) DenyWrite() { in.desc.denyWrite() }
func (in *Inode) AllowWrite() { in.desc.allowWrite() }

// destroy releases an inode's data blocks and its own sector under a
// single free_map_lock acquisition, so that invariant 5 ("its data
// sectors are returned at the same moment") holds atomically with
// respect to any concurrent allocator.
func (m *Manager) destroy(sector uint32) {
	m.freeMap.Lock()
	defer m.freeMap.Unlock()
	m.freeAllLocked(sector)
	m.freeMap.Release(sector)
}

// FreeAll releases every data, indirect, and double-indirect sector an
// inode addresses, without releasing the inode's own sector. Exposed for
// callers (the facade's Create and Mkdir, when adding the new entry to its
// parent fails) that need to roll back a built inode before releasing its
// sector themselves.
func (m *Manager) FreeAll(sector uint32) {
	m.freeMap.Lock()
	defer m.freeMap.Unlock()
	m.freeAllLocked(sector)
}

// freeAllLocked implements spec.md §4.4.4, walking all direct, indirect,
// and double-indirect pointers and releasing every non-zero sector found,
// including the indirect/double-indirect index sectors themselves.
// Requires free_map_lock held by the caller.
//
// The double-indirect walk iterates the outer index before reading the
// inner indirect block — spec.md §9 calls out a source bug where the
// outer loop variable was left uninitialized and the inner loop's index
// was read in its place; this implementation names and uses the outer
// index explicitly to avoid that class of bug.
func (m *Manager) freeAllLocked(sector uint32) {
	var buf [4]byte

	for i := 0; i < numDirect; i++ {
		m.cache.Read(sector, buf[:], directOffset(i), 4)
		if p := binary.LittleEndian.Uint32(buf[:]); p != 0 {
			m.freeMap.Release(p)
		}
	}

	m.cache.Read(sector, buf[:], offsetIndirect, 4)
	if indirectSector := binary.LittleEndian.Uint32(buf[:]); indirectSector != 0 {
		m.freeIndirectBlockLocked(indirectSector)
		m.freeMap.Release(indirectSector)
	}

	m.cache.Read(sector, buf[:], offsetDblIndirect, 4)
	if dblSector := binary.LittleEndian.Uint32(buf[:]); dblSector != 0 {
		for outer := 0; outer < pointersPerIndirect; outer++ {
			var outerBuf [4]byte
			m.cache.Read(dblSector, outerBuf[:], outer*4, 4)
			outerSector := binary.LittleEndian.Uint32(outerBuf[:])
			if outerSector == 0 {
				continue
			}
			m.freeIndirectBlockLocked(outerSector)
			m.freeMap.Release(outerSector)
		}
		m.freeMap.Release(dblSector)
	}
}

// freeIndirectBlockLocked releases the 128 data sectors an indirect block
// points to, but not the indirect block itself.
func (m *Manager) freeIndirectBlockLocked(indirectSector uint32) {
	var buf [4]byte
	for i := 0; i < pointersPerIndirect; i++ {
		m.cache.Read(indirectSector, buf[:], i*4, 4)
		if p := binary.LittleEndian.Uint32(buf[:]); p != 0 {
			m.freeMap.Release(p)
		}
	}
}

// resolveOrAllocPointerLocked reads the 4-byte pointer field at
// (parentSector, fieldOffset); if it is already non-zero it is returned
// unchanged, otherwise a freshly zero-allocated sector is published into
// that field and returned. Requires free_map_lock held by the caller —
// this is the serialization point spec.md §4.4.1 describes: "free_map_lock
// serializes concurrent allocation attempts on the same inode path".
func (m *Manager) resolveOrAllocPointerLocked(parentSector uint32, fieldOffset int) (uint32, error) {
	var buf [4]byte
	m.cache.Read(parentSector, buf[:], fieldOffset, 4)
	if p := binary.LittleEndian.Uint32(buf[:]); p != 0 {
		return p, nil
	}

	newSector, ok := m.freeMap.ZeroAllocate(m.cache)
	if !ok {
		blocklog.Warnf("inode: free-map exhausted allocating for sector %d offset %d", parentSector, fieldOffset)
		return 0, fserrors.ErrNoSpace
	}

	binary.LittleEndian.PutUint32(buf[:], newSector)
	m.cache.Write(parentSector, buf[:], fieldOffset, 4)
	return newSector, nil
}

// lookupOrCreateLocked requires free_map_lock held by the caller; used by
// Create, which wants one lock acquisition across many allocations.
func (m *Manager) lookupOrCreateLocked(sector uint32, pos int64) (uint32, error) {
	blockIdx := pos / blockdev.SectorSize

	switch classify(blockIdx) {
	case regionDirect:
		return m.resolveOrAllocPointerLocked(sector, directOffset(int(blockIdx)))

	case regionSingleIndirect:
		indirectSector, err := m.resolveOrAllocPointerLocked(sector, offsetIndirect)
		if err != nil {
			return 0, err
		}
		i := int(blockIdx - directIdxEnd)
		return m.resolveOrAllocPointerLocked(indirectSector, i*4)

	case regionDoubleIndirect:
		dblSector, err := m.resolveOrAllocPointerLocked(sector, offsetDblIndirect)
		if err != nil {
			return 0, err
		}
		rel := blockIdx - singleIndirectEnd
		outer := int(rel / pointersPerIndirect)
		inner := int(rel % pointersPerIndirect)
		outerSector, err := m.resolveOrAllocPointerLocked(dblSector, outer*4)
		if err != nil {
			return 0, err
		}
		return m.resolveOrAllocPointerLocked(outerSector, inner*4)

	default:
		return 0, fserrors.ErrInvalidArgument
	}
}

// lookupOrCreate is the public entry point used by WriteAt, acquiring
// free_map_lock itself for the duration of a single pointer-chain walk.
func (m *Manager) lookupOrCreate(sector uint32, pos int64) (uint32, error) {
	m.freeMap.Lock()
	defer m.freeMap.Unlock()
	return m.lookupOrCreateLocked(sector, pos)
}

// lookup walks the same pointer chain as lookupOrCreate but never
// allocates: it returns (0, false) the instant it finds a zero pointer,
// signalling a sparse hole rather than an error. This resolves spec.md
// §9's open question in the direction the note itself recommends: reads
// of a sparse region return zeros rather than materializing blocks.
func (m *Manager) lookup(sector uint32, pos int64) (dataSector uint32, ok bool) {
	blockIdx := pos / blockdev.SectorSize

	readPointer := func(parent uint32, off int) (uint32, bool) {
		var buf [4]byte
		m.cache.Read(parent, buf[:], off, 4)
		p := binary.LittleEndian.Uint32(buf[:])
		return p, p != 0
	}

	switch classify(blockIdx) {
	case regionDirect:
		return readPointer(sector, directOffset(int(blockIdx)))

	case regionSingleIndirect:
		indirectSector, has := readPointer(sector, offsetIndirect)
		if !has {
			return 0, false
		}
		return readPointer(indirectSector, int(blockIdx-directIdxEnd)*4)

	case regionDoubleIndirect:
		dblSector, has := readPointer(sector, offsetDblIndirect)
		if !has {
			return 0, false
		}
		rel := blockIdx - singleIndirectEnd
		outerSector, has := readPointer(dblSector, int(rel/pointersPerIndirect)*4)
		if !has {
			return 0, false
		}
		return readPointer(outerSector, int(rel%pointersPerIndirect)*4)

	default:
		return 0, false
	}
}

func (m *Manager) readLength(sector uint32) int64 {
	var buf [4]byte
	m.cache.Read(sector, buf[:], offsetLength, 4)
	return int64(int32(binary.LittleEndian.Uint32(buf[:])))
}

func (m *Manager) writeLength(sector uint32, length int64) {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], uint32(int32(length)))
	m.cache.Write(sector, buf[:], offsetLength, 4)
}

// CheckMagic panics (fatal, per spec.md §7's error taxonomy) if sector's
// magic field does not equal the compile-time constant — invariant 7.
func (m *Manager) CheckMagic(sector uint32) {
	var buf [4]byte
	m.cache.Read(sector, buf[:], offsetMagic, 4)
	if got := binary.LittleEndian.Uint32(buf[:]); got != diskMagic {
		blocklog.Fatalf("inode: bad magic at sector %d: got %#x want %#x", sector, got, diskMagic)
	}
}
