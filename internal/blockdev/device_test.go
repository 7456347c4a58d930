package blockdev

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileDeviceCreateOpenRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "image.bin")

	created, err := CreateFile(path, 8)
	require.NoError(t, err)

	payload := make([]byte, SectorSize)
	copy(payload, []byte("sector three"))
	created.WriteSector(3, payload)
	require.NoError(t, created.Close())

	opened, err := OpenFile(path)
	require.NoError(t, err)
	defer opened.Close()

	assert.Equal(t, uint32(8), opened.SectorCount())

	out := make([]byte, SectorSize)
	opened.ReadSector(3, out)
	assert.Equal(t, payload, out)
}

func TestFileDeviceWriteCountIncrementsPerWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "image.bin")
	d, err := CreateFile(path, 4)
	require.NoError(t, err)
	defer d.Close()

	buf := make([]byte, SectorSize)
	d.WriteSector(0, buf)
	d.WriteSector(1, buf)

	assert.Equal(t, uint64(2), d.WriteCount())
}

func TestMemDeviceReadWrite(t *testing.T) {
	d := NewMemDevice(4)

	buf := make([]byte, SectorSize)
	copy(buf, []byte("hi"))
	d.WriteSector(2, buf)

	out := make([]byte, SectorSize)
	d.ReadSector(2, out)
	assert.Equal(t, buf, out)
	assert.Equal(t, uint64(1), d.WriteCount())
}
