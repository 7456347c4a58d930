// Package blockdev provides byte-addressable sector I/O over an underlying
// block device, following the adaptor pattern the teacher uses to wrap
// os.File for durable local storage (fs/file.go's tempFile, mutable's
// temp-backed objects) but addressed by fixed-size sector instead of byte
// offset into a growable file.
package blockdev

import (
	"fmt"
	"os"
	"sync/atomic"

	"golang.org/x/sys/unix"

	"github.com/googlecloudplatform/blockfs/internal/blocklog"
)

// SectorSize is the fixed size, in bytes, of every sector on the device.
const SectorSize = 512

// Device is the contract a buffer cache sits on top of. Implementations
// must treat I/O errors as fatal: the spec's error taxonomy classifies
// device errors as unrecoverable, so Device methods panic on failure
// rather than returning an error. Sector 0 is reserved as a null pointer
// by the layers above; Device itself imposes no such restriction.
type Device interface {
	// ReadSector fills buf (which must be exactly SectorSize bytes) with
	// the contents of the given sector.
	ReadSector(sector uint32, buf []byte)

	// WriteSector persists buf (exactly SectorSize bytes) to the given
	// sector and increments the write counter.
	WriteSector(sector uint32, buf []byte)

	// SectorCount returns the total number of sectors the device exposes.
	SectorCount() uint32

	// WriteCount returns the number of completed WriteSector calls since
	// the device was opened, used by tests to observe write coalescing
	// performed by the layer above (buffer cache).
	WriteCount() uint64
}

// FileDevice backs a Device onto a flat disk image file. An advisory
// exclusive flock is held for the lifetime of the open file, following the
// block-device-open discipline used elsewhere in this corpus (an on-disk
// image should not be opened by two independent filesystem processes at
// once).
type FileDevice struct {
	f       *os.File
	sectors uint32
	writes  uint64
}

// CreateFile creates a new flat image of the given sector count, zero
// filled, and returns a Device backed by it. It truncates any existing
// file at path.
func CreateFile(path string, sectors uint32) (*FileDevice, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("blockdev: create %s: %w", path, err)
	}

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		return nil, fmt.Errorf("blockdev: flock %s: %w", path, err)
	}

	size := int64(sectors) * SectorSize
	if err := f.Truncate(size); err != nil {
		f.Close()
		return nil, fmt.Errorf("blockdev: truncate %s: %w", path, err)
	}

	return &FileDevice{f: f, sectors: sectors}, nil
}

// OpenFile opens an existing flat image file whose size must be an exact
// multiple of SectorSize.
func OpenFile(path string) (*FileDevice, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("blockdev: open %s: %w", path, err)
	}

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		return nil, fmt.Errorf("blockdev: flock %s: %w", path, err)
	}

	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("blockdev: stat %s: %w", path, err)
	}
	if fi.Size()%SectorSize != 0 {
		f.Close()
		return nil, fmt.Errorf("blockdev: %s is not a whole number of sectors", path)
	}

	return &FileDevice{f: f, sectors: uint32(fi.Size() / SectorSize)}, nil
}

func (d *FileDevice) ReadSector(sector uint32, buf []byte) {
	if len(buf) != SectorSize {
		blocklog.Fatalf("blockdev: ReadSector buf must be %d bytes, got %d", SectorSize, len(buf))
	}
	if sector >= d.sectors {
		blocklog.Fatalf("blockdev: ReadSector sector %d out of range (%d sectors)", sector, d.sectors)
	}
	if _, err := d.f.ReadAt(buf, int64(sector)*SectorSize); err != nil {
		blocklog.Fatalf("blockdev: ReadAt sector %d: %v", sector, err)
	}
}

func (d *FileDevice) WriteSector(sector uint32, buf []byte) {
	if len(buf) != SectorSize {
		blocklog.Fatalf("blockdev: WriteSector buf must be %d bytes, got %d", SectorSize, len(buf))
	}
	if sector >= d.sectors {
		blocklog.Fatalf("blockdev: WriteSector sector %d out of range (%d sectors)", sector, d.sectors)
	}
	if _, err := d.f.WriteAt(buf, int64(sector)*SectorSize); err != nil {
		blocklog.Fatalf("blockdev: WriteAt sector %d: %v", sector, err)
	}
	atomic.AddUint64(&d.writes, 1)
}

func (d *FileDevice) SectorCount() uint32 { return d.sectors }

func (d *FileDevice) WriteCount() uint64 { return atomic.LoadUint64(&d.writes) }

// Close flushes and releases the underlying file, including the advisory
// lock.
func (d *FileDevice) Close() error {
	_ = unix.Flock(int(d.f.Fd()), unix.LOCK_UN)
	return d.f.Close()
}

var _ Device = (*FileDevice)(nil)
