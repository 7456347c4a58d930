package blockdev

import (
	"sync"
	"sync/atomic"

	"github.com/googlecloudplatform/blockfs/internal/blocklog"
)

// MemDevice is an in-memory Device for tests, grounded on this corpus's
// practice of faking the backing store (internal/storage/fake's faked GCS
// bucket) rather than hitting real I/O in unit tests.
type MemDevice struct {
	mu      sync.Mutex
	sectors [][SectorSize]byte
	writes  uint64
}

// NewMemDevice returns a zero-filled in-memory device of the given sector
// count.
func NewMemDevice(sectors uint32) *MemDevice {
	return &MemDevice{sectors: make([][SectorSize]byte, sectors)}
}

func (d *MemDevice) ReadSector(sector uint32, buf []byte) {
	if len(buf) != SectorSize {
		blocklog.Fatalf("memdevice: ReadSector buf must be %d bytes, got %d", SectorSize, len(buf))
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if int(sector) >= len(d.sectors) {
		blocklog.Fatalf("memdevice: ReadSector sector %d out of range (%d sectors)", sector, len(d.sectors))
	}
	copy(buf, d.sectors[sector][:])
}

func (d *MemDevice) WriteSector(sector uint32, buf []byte) {
	if len(buf) != SectorSize {
		blocklog.Fatalf("memdevice: WriteSector buf must be %d bytes, got %d", SectorSize, len(buf))
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if int(sector) >= len(d.sectors) {
		blocklog.Fatalf("memdevice: WriteSector sector %d out of range (%d sectors)", sector, len(d.sectors))
	}
	copy(d.sectors[sector][:], buf)
	atomic.AddUint64(&d.writes, 1)
}

func (d *MemDevice) SectorCount() uint32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return uint32(len(d.sectors))
}

func (d *MemDevice) WriteCount() uint64 { return atomic.LoadUint64(&d.writes) }

var _ Device = (*MemDevice)(nil)
