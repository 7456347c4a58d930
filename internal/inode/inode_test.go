package inode

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/googlecloudplatform/blockfs/internal/blockdev"
	"github.com/googlecloudplatform/blockfs/internal/buffercache"
	"github.com/googlecloudplatform/blockfs/internal/freemap"
)

func newTestManager(t *testing.T, sectors uint32) *Manager {
	t.Helper()
	dev := blockdev.NewMemDevice(sectors)
	cache := buffercache.New(dev)
	fm := freemap.New(sectors)
	return NewManager(cache, fm)
}

func allocSector(t *testing.T, m *Manager) uint32 {
	t.Helper()
	m.freeMap.Lock()
	defer m.freeMap.Unlock()
	sector, ok := m.freeMap.Allocate()
	require.True(t, ok)
	return sector
}

func TestReadAtAfterWriteAtReturnsWrittenBytes(t *testing.T) {
	m := newTestManager(t, 256)
	sector := allocSector(t, m)
	require.NoError(t, m.Create(sector, 0))

	in := m.Open(sector)
	defer in.Close()

	payload := []byte("the quick brown fox")
	n, err := in.WriteAt(payload, 100)
	require.NoError(t, err)
	require.Equal(t, len(payload), n)

	out := make([]byte, len(payload))
	n, err = in.ReadAt(out, 100)
	require.NoError(t, err)
	require.Equal(t, len(payload), n)
	assert.Equal(t, payload, out)
}

func TestReadAtPastEOFReturnsZeroWithoutError(t *testing.T) {
	m := newTestManager(t, 256)
	sector := allocSector(t, m)
	require.NoError(t, m.Create(sector, 10))

	in := m.Open(sector)
	defer in.Close()

	buf := make([]byte, 5)
	n, err := in.ReadAt(buf, 20)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestWriteAtGrowsLengthToOffsetPlusSize(t *testing.T) {
	m := newTestManager(t, 256)
	sector := allocSector(t, m)
	require.NoError(t, m.Create(sector, 0))

	in := m.Open(sector)
	defer in.Close()

	n, err := in.WriteAt([]byte("abc"), blockdev.SectorSize*2+5)
	require.NoError(t, err)
	require.Equal(t, 3, n)

	assert.Equal(t, int64(blockdev.SectorSize*2+5+3), in.Length())
}

func TestSparseReadReturnsZerosWithoutAllocating(t *testing.T) {
	m := newTestManager(t, 256)
	sector := allocSector(t, m)
	require.NoError(t, m.Create(sector, 0))

	in := m.Open(sector)
	defer in.Close()

	// Write far past the first block, leaving a sparse hole before it.
	_, err := in.WriteAt([]byte("end"), blockdev.SectorSize*3)
	require.NoError(t, err)

	before := allocatedCount(m)

	hole := make([]byte, blockdev.SectorSize)
	n, err := in.ReadAt(hole, 0)
	require.NoError(t, err)
	require.Equal(t, blockdev.SectorSize, n)
	for _, b := range hole {
		assert.Zero(t, b)
	}
	assert.Equal(t, before, allocatedCount(m), "reading a sparse hole must not allocate")
}

func TestSingleIndirectAddressing(t *testing.T) {
	m := newTestManager(t, 4096)
	sector := allocSector(t, m)
	require.NoError(t, m.Create(sector, 0))

	in := m.Open(sector)
	defer in.Close()

	// Block index 12 is the first block reached through the
	// single-indirect pointer.
	off := int64(directIdxEnd) * blockdev.SectorSize
	payload := []byte("indirect block contents")
	n, err := in.WriteAt(payload, off)
	require.NoError(t, err)
	require.Equal(t, len(payload), n)

	out := make([]byte, len(payload))
	n, err = in.ReadAt(out, off)
	require.NoError(t, err)
	require.Equal(t, len(payload), n)
	assert.Equal(t, payload, out)
}

func allocatedCount(m *Manager) uint32 {
	m.freeMap.Lock()
	defer m.freeMap.Unlock()
	return m.freeMap.AllocatedCount()
}

func TestRemoveFreesSectorsOnLastClose(t *testing.T) {
	m := newTestManager(t, 256)
	sector := allocSector(t, m)
	require.NoError(t, m.Create(sector, blockdev.SectorSize*3))

	before := allocatedCount(m)

	in := m.Open(sector)
	second := in.Reopen()

	in.Remove()
	in.Close() // not the last close: second is still open

	after := allocatedCount(m)
	assert.Equal(t, before, after, "sectors must not be freed until the last close")

	second.Close() // last close: data and inode sector return to the free-map

	afterLast := allocatedCount(m)
	assert.Less(t, afterLast, before)
}

func TestDenyWriteBlocksWriteAt(t *testing.T) {
	m := newTestManager(t, 256)
	sector := allocSector(t, m)
	require.NoError(t, m.Create(sector, 0))

	in := m.Open(sector)
	defer in.Close()

	in.DenyWrite()
	n, err := in.WriteAt([]byte("nope"), 0)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	in.AllowWrite()
	n, err = in.WriteAt([]byte("yes"), 0)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}
