// Package filesys assembles the buffer cache, free-map, inode, and
// directory layers into the facade of spec.md §4.6/§6: format/create/
// open/remove/mkdir/chdir and the per-handle read/write/seek operations.
//
// Grounded on the teacher's fs.fileSystem (fs/fs.go): one struct owning
// every subsystem, exposing one method per externally consumed operation.
// FileSystem holds no lock of its own; all locking is delegated to the
// subsystems' per-object locks.
package filesys

import (
	"strings"

	"github.com/googlecloudplatform/blockfs/internal/blockdev"
	"github.com/googlecloudplatform/blockfs/internal/buffercache"
	"github.com/googlecloudplatform/blockfs/internal/directory"
	"github.com/googlecloudplatform/blockfs/internal/freemap"
	"github.com/googlecloudplatform/blockfs/internal/fserrors"
	"github.com/googlecloudplatform/blockfs/internal/inode"
)

// Reserved sectors, per spec.md §6's on-disk layout.
const (
	freeMapSector uint32 = 0
	rootSector    uint32 = 1
)

// FileSystem is the process-wide singleton of spec.md §9's global mutable
// state: the cache array, open-inode table, open-directory table, and
// free-map are all reachable only through this value.
type FileSystem struct {
	cache   *buffercache.Cache
	freeMap *freemap.FreeMap
	inodes  *inode.Manager
	dirs    *directory.Manager
}

// Format initializes a fresh filesystem on device: a free-map sized for
// device's sector count, a free-map file at the reserved free-map sector,
// and a root directory at the reserved root sector whose ".." is itself.
func Format(device blockdev.Device) (*FileSystem, error) {
	cache := buffercache.New(device)
	freeMap := freemap.New(device.SectorCount())
	inodes := inode.NewManager(cache, freeMap)
	dirs := directory.NewManager(inodes)

	freeMap.Lock()
	allocatedRoot, ok := freeMap.Allocate()
	freeMap.Unlock()
	if !ok || allocatedRoot != rootSector {
		return nil, fserrors.ErrNoSpace
	}

	bitmapBytes := int64((device.SectorCount() + 7) / 8)
	if err := inodes.Create(freeMapSector, bitmapBytes); err != nil {
		return nil, err
	}
	if err := dirs.Create(rootSector, rootSector); err != nil {
		return nil, err
	}

	fm := inodes.Open(freeMapSector)
	freeMap.Lock()
	raw := freeMap.Bytes()
	freeMap.Unlock()
	fm.WriteAt(raw, 0)
	fm.Close()

	cache.FlushAll()

	return &FileSystem{cache: cache, freeMap: freeMap, inodes: inodes, dirs: dirs}, nil
}

// Open mounts an already-formatted device: it reads the persisted free-map
// file out of the reserved free-map sector before any other inode can be
// safely opened, mirroring spec.md §4.3's "persisted lazily through the
// cache" free-map file.
func Open(device blockdev.Device) (*FileSystem, error) {
	cache := buffercache.New(device)

	bootstrapFreeMap := freemap.New(device.SectorCount())
	bootstrapInodes := inode.NewManager(cache, bootstrapFreeMap)

	fmIno := bootstrapInodes.Open(freeMapSector)
	raw := make([]byte, fmIno.Length())
	fmIno.ReadAt(raw, 0)
	fmIno.Close()

	freeMap := freemap.LoadFrom(device.SectorCount(), raw)
	inodes := inode.NewManager(cache, freeMap)
	dirs := directory.NewManager(inodes)

	return &FileSystem{cache: cache, freeMap: freeMap, inodes: inodes, dirs: dirs}, nil
}

// NewCWD returns a fresh current-working-directory handle rooted at /.
func (fs *FileSystem) NewCWD() *directory.CWD {
	return directory.NewCWD(rootSector)
}

// CacheReset flushes and invalidates the buffer cache and resets its hit
// counters, per spec.md §6's cache_reset.
func (fs *FileSystem) CacheReset() { fs.cache.Reset() }

// HitRate returns the integer percent of cache hits since the last reset.
func (fs *FileSystem) HitRate() int { return fs.cache.HitRate() }

// WriteCount returns the number of device writes since boot.
func (fs *FileSystem) WriteCount() uint64 { return fs.cache.Device().WriteCount() }

// TotalSectors returns the device's total sector count, as tracked by the
// free-map. Used by blockfsctl's stat and fsck subcommands.
func (fs *FileSystem) TotalSectors() uint32 {
	fs.freeMap.Lock()
	defer fs.freeMap.Unlock()
	return fs.freeMap.Capacity()
}

// AllocatedSectors returns the number of sectors currently marked used in
// the free-map.
func (fs *FileSystem) AllocatedSectors() uint32 {
	fs.freeMap.Lock()
	defer fs.freeMap.Unlock()
	return fs.freeMap.AllocatedCount()
}

// resolveParent resolves path's parent directory and returns an open
// directory.Handle on it along with the leaf component name.
func (fs *FileSystem) resolveParent(cwd *directory.CWD, path string) (*directory.Handle, string, error) {
	parentPath, leaf := directory.SplitPath(path)
	if leaf == "" {
		return nil, "", fserrors.ErrInvalidArgument
	}
	if parentPath == "" {
		// SplitPath drops the path's own leading slash along with its
		// leaf ("/a" -> ("", "a")); recover absolute-vs-relative intent
		// from the original path before resolving.
		if strings.HasPrefix(path, "/") {
			parentPath = "/"
		} else {
			parentPath = "."
		}
	}

	parentIno, err := fs.dirs.Resolve(rootSector, cwd.Sector(), parentPath)
	if err != nil {
		return nil, "", err
	}
	return fs.dirs.Open(parentIno), leaf, nil
}

// Create creates an empty regular file of the given initial size.
func (fs *FileSystem) Create(cwd *directory.CWD, path string, size int64) error {
	parent, leaf, err := fs.resolveParent(cwd, path)
	if err != nil {
		return err
	}
	defer parent.Close()

	fs.freeMap.Lock()
	sector, ok := fs.freeMap.Allocate()
	fs.freeMap.Unlock()
	if !ok {
		return fserrors.ErrNoSpace
	}

	if err := fs.inodes.Create(sector, size); err != nil {
		fs.freeMap.Lock()
		fs.freeMap.Release(sector)
		fs.freeMap.Unlock()
		return err
	}

	if err := parent.Add(leaf, sector, false); err != nil {
		fs.inodes.FreeAll(sector)
		fs.freeMap.Lock()
		fs.freeMap.Release(sector)
		fs.freeMap.Unlock()
		return err
	}

	return nil
}

// Mkdir creates an empty directory populated with "." and "..".
func (fs *FileSystem) Mkdir(cwd *directory.CWD, path string) error {
	parent, leaf, err := fs.resolveParent(cwd, path)
	if err != nil {
		return err
	}
	defer parent.Close()

	fs.freeMap.Lock()
	sector, ok := fs.freeMap.Allocate()
	fs.freeMap.Unlock()
	if !ok {
		return fserrors.ErrNoSpace
	}

	if err := fs.dirs.Create(sector, parent.Inumber()); err != nil {
		fs.freeMap.Lock()
		fs.freeMap.Release(sector)
		fs.freeMap.Unlock()
		return err
	}

	if err := parent.Add(leaf, sector, true); err != nil {
		fs.inodes.FreeAll(sector)
		fs.freeMap.Lock()
		fs.freeMap.Release(sector)
		fs.freeMap.Unlock()
		return err
	}

	return nil
}

// Remove removes the entry named by path.
func (fs *FileSystem) Remove(cwd *directory.CWD, path string) error {
	parent, leaf, err := fs.resolveParent(cwd, path)
	if err != nil {
		return err
	}
	defer parent.Close()

	return parent.Remove(leaf)
}

// Chdir replaces cwd's current directory.
func (fs *FileSystem) Chdir(cwd *directory.CWD, path string) error {
	target, err := fs.dirs.Resolve(rootSector, cwd.Sector(), path)
	if err != nil {
		return err
	}
	defer target.Close()

	cwd.Set(target.Sector())
	return nil
}

// Handle is an open file or directory, returned by Open below. Exactly
// one of file/dir is non-nil.
type Handle struct {
	fs   *FileSystem
	file *inode.Inode
	dir  *directory.Handle
	pos  int64
}

// Open resolves path to a handle, distinguishing files from directories
// via IsDir. An empty path is rejected, per spec.md §6.
func (fs *FileSystem) Open(cwd *directory.CWD, path string) (*Handle, error) {
	if path == "" {
		return nil, fserrors.ErrInvalidArgument
	}

	if path == "/" || path == "." {
		start := rootSector
		if path == "." {
			start = cwd.Sector()
		}
		ino := fs.inodes.Open(start)
		return &Handle{fs: fs, dir: fs.dirs.Open(ino)}, nil
	}

	parent, leaf, err := fs.resolveParent(cwd, path)
	if err != nil {
		return nil, err
	}
	defer parent.Close()

	sector, isDir, ok := parent.Lookup(leaf)
	if !ok {
		return nil, fserrors.ErrNotFound
	}

	ino := fs.inodes.Open(sector)
	if isDir {
		return &Handle{fs: fs, dir: fs.dirs.Open(ino)}, nil
	}
	return &Handle{fs: fs, file: ino}, nil
}

func (h *Handle) IsDir() bool { return h.dir != nil }

// Inumber returns the inode sector backing this handle.
func (h *Handle) Inumber() uint32 {
	if h.dir != nil {
		return h.dir.Inumber()
	}
	return h.file.Sector()
}

// Length returns the current byte length of a file handle.
func (h *Handle) Length() int64 {
	if h.file == nil {
		return 0
	}
	return h.file.Length()
}

// Close releases the handle's inode (and, for directories, its
// open-directory table slot).
func (h *Handle) Close() {
	if h.dir != nil {
		h.dir.Close()
		return
	}
	h.file.Close()
}

// Read reads len(buf) bytes starting at the handle's current position,
// advancing it by the number of bytes actually read.
func (h *Handle) Read(buf []byte) (int, error) {
	if h.file == nil {
		return 0, fserrors.ErrIsDirectory
	}
	n, err := h.file.ReadAt(buf, h.pos)
	h.pos += int64(n)
	return n, err
}

// Write writes buf at the handle's current position, advancing it by the
// number of bytes actually written.
func (h *Handle) Write(buf []byte) (int, error) {
	if h.file == nil {
		return 0, fserrors.ErrIsDirectory
	}
	n, err := h.file.WriteAt(buf, h.pos)
	h.pos += int64(n)
	return n, err
}

// Seek repositions the handle's cursor to an absolute byte offset.
func (h *Handle) Seek(off int64) { h.pos = off }

// Tell returns the handle's current byte position.
func (h *Handle) Tell() int64 { return h.pos }

// Readdir returns the next directory entry name, or ok=false once
// exhausted. Only valid on a directory handle.
func (h *Handle) Readdir() (name string, ok bool) {
	if h.dir == nil {
		return "", false
	}
	return h.dir.Readdir()
}
