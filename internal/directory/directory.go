// Package directory implements the directory layer of spec.md §4.5: fixed-
// size directory entries stored in an ordinary inode's data blocks, an
// open-directory table keyed by inumber, and path resolution.
//
// Grounded on the teacher's fs/inode/dir.go DirInode: a syncutil-style
// mutex discipline guarding mutable directory state and a lookup-count
// style open accounting scheme, generalized here from a GCS-object-backed
// directory cache to a fixed-entry-table directory file walked entirely
// through the inode layer.
package directory

import (
	"github.com/googlecloudplatform/blockfs/internal/fserrors"
	"github.com/googlecloudplatform/blockfs/internal/inode"
)

// Manager owns the open-directory table and the inode manager used to
// read and write directory contents.
type Manager struct {
	inodes *inode.Manager
	open   *openTable
}

func NewManager(inodes *inode.Manager) *Manager {
	return &Manager{inodes: inodes, open: newOpenTable()}
}

func numEntries(ino *inode.Inode) int64 {
	return ino.Length() / EntrySize
}

func readEntryAt(ino *inode.Inode, index int64) (entry, bool) {
	var buf [EntrySize]byte
	n, _ := ino.ReadAt(buf[:], index*EntrySize)
	if n < EntrySize {
		return entry{}, false
	}
	return unmarshalEntry(buf[:]), true
}

func writeEntryAt(ino *inode.Inode, index int64, e entry) {
	buf := marshalEntry(e)
	ino.WriteAt(buf[:], index*EntrySize)
}

// Create formats an already-allocated inode sector as a directory: a fresh
// inode.Manager.Create call sized for InitialCapacityEntries entries,
// followed by "." (self) and ".." (parent) entries, per spec.md §4.5's
// dir_create. parentSector should equal sector for the root directory.
func (m *Manager) Create(sector, parentSector uint32) error {
	if err := m.inodes.Create(sector, InitialCapacityEntries*EntrySize); err != nil {
		return err
	}

	ino := m.inodes.Open(sector)
	defer ino.Close()

	writeEntryAt(ino, 0, entry{InodeSector: sector, Name: ".", InUse: true, IsDir: true})
	writeEntryAt(ino, 1, entry{InodeSector: parentSector, Name: "..", InUse: true, IsDir: true})
	return nil
}

// Handle is an open directory, analogous to a file descriptor but with its
// own open-count layered through Manager's open-directory table.
type Handle struct {
	mgr *Manager
	ino *inode.Inode
	ref *dirRef
	pos int64
}

// Open wraps an already-open inode handle in a directory Handle, bumping
// the open-directory table's count for its inumber.
func (m *Manager) Open(ino *inode.Inode) *Handle {
	ref := m.open.open(ino.Sector())
	return &Handle{mgr: m, ino: ino, ref: ref}
}

// Close releases the directory handle's slot in the open-directory table
// and closes the underlying inode.
func (h *Handle) Close() {
	h.mgr.open.close(h.ino.Sector(), h.ref)
	h.ino.Close()
}

// Inumber returns the inode sector backing this directory.
func (h *Handle) Inumber() uint32 { return h.ino.Sector() }

// Inode exposes the underlying inode handle, e.g. so a caller can Reopen
// it independently of this directory Handle's lifetime.
func (h *Handle) Inode() *inode.Inode { return h.ino }

// Lookup scans every entry for name, returning its inode sector and
// directory flag. Per spec.md §4.5, this never recurses and never
// allocates.
func (h *Handle) Lookup(name string) (sector uint32, isDir bool, ok bool) {
	n := numEntries(h.ino)
	for i := int64(0); i < n; i++ {
		e, valid := readEntryAt(h.ino, i)
		if !valid || !e.InUse {
			continue
		}
		if e.Name == name {
			return e.InodeSector, e.IsDir, true
		}
	}
	return 0, false, false
}

// Add inserts a new entry, failing if name already exists or is invalid.
// It reuses the first free (not InUse) slot if one exists, otherwise
// extends the directory file by one entry.
func (h *Handle) Add(name string, sector uint32, isDir bool) error {
	if len(name) > NameMax {
		return fserrors.ErrNameTooLong
	}
	if !validName(name) {
		return fserrors.ErrInvalidArgument
	}
	if _, _, exists := h.Lookup(name); exists {
		return fserrors.ErrExists
	}

	n := numEntries(h.ino)
	for i := int64(0); i < n; i++ {
		e, valid := readEntryAt(h.ino, i)
		if valid && !e.InUse {
			writeEntryAt(h.ino, i, entry{InodeSector: sector, Name: name, InUse: true, IsDir: isDir})
			return nil
		}
	}

	writeEntryAt(h.ino, n, entry{InodeSector: sector, Name: name, InUse: true, IsDir: isDir})
	return nil
}

// Empty reports whether the directory contains no entries besides "." and
// "..", per invariant 6.
func (h *Handle) Empty() bool {
	n := numEntries(h.ino)
	for i := int64(0); i < n; i++ {
		e, valid := readEntryAt(h.ino, i)
		if !valid || !e.InUse {
			continue
		}
		if !isDotOrDotDot(e.Name) {
			return false
		}
	}
	return true
}

// Remove deletes the entry named name. If it names a directory, Remove
// refuses unless that directory is both empty and not open anywhere
// (checked via the open-directory table's count, per spec.md §4.5), which
// is how scenario 5 of spec.md §8 ("remove a directory open elsewhere
// fails") is enforced. The target inode is marked for deferred deletion;
// its storage is freed only once its last open handle closes.
func (h *Handle) Remove(name string) error {
	if isDotOrDotDot(name) {
		return fserrors.ErrInvalidArgument
	}

	n := numEntries(h.ino)
	var foundIdx int64 = -1
	var found entry
	for i := int64(0); i < n; i++ {
		e, valid := readEntryAt(h.ino, i)
		if !valid || !e.InUse {
			continue
		}
		if e.Name == name {
			foundIdx, found = i, e
			break
		}
	}
	if foundIdx < 0 {
		return fserrors.ErrNotFound
	}

	if found.IsDir {
		targetIno := h.mgr.inodes.Open(found.InodeSector)
		targetDir := h.mgr.Open(targetIno)
		empty := targetDir.Empty()
		targetDir.Close()

		if h.mgr.open.count(found.InodeSector) > 0 {
			return fserrors.ErrDirBusy
		}
		if !empty {
			return fserrors.ErrNotEmpty
		}
	}

	found.InUse = false
	writeEntryAt(h.ino, foundIdx, found)

	target := h.mgr.inodes.Open(found.InodeSector)
	target.Remove()
	target.Close()

	return nil
}

// Readdir returns the next entry name other than "." or "..", advancing
// the handle's internal cursor, and ok=false once exhausted.
func (h *Handle) Readdir() (name string, ok bool) {
	n := numEntries(h.ino)
	for h.pos < n {
		idx := h.pos
		h.pos++
		e, valid := readEntryAt(h.ino, idx)
		if !valid || !e.InUse || isDotOrDotDot(e.Name) {
			continue
		}
		return e.Name, true
	}
	return "", false
}
