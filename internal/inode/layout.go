package inode

import (
	"encoding/binary"

	"github.com/googlecloudplatform/blockfs/internal/blockdev"
)

// Layout of the on-disk inode, occupying exactly one sector, per
// spec.md §3. Field byte offsets are spelled out as named constants
// rather than a reflective codec (contrast the teacher's squashfs-style
// reflective Superblock.UnmarshalBinary): an inode's layout is fixed and
// small enough that a hand-rolled offset table is clearer than paying for
// reflection on every field access (see DESIGN.md).
const (
	numDirect           = 12
	pointersPerIndirect = blockdev.SectorSize / 4 // 128

	directIdxEnd      = numDirect                                         // 12
	singleIndirectEnd = directIdxEnd + pointersPerIndirect                // 140
	doubleIndirectEnd = singleIndirectEnd + pointersPerIndirect*pointersPerIndirect // 16524

	offsetLength      = 0
	offsetDirect      = 4
	offsetIndirect    = offsetDirect + numDirect*4   // 52
	offsetDblIndirect = offsetIndirect + 4            // 56
	offsetMagic       = offsetDblIndirect + 4         // 60

	// Magic stamped into a fully created inode (invariant 7).
	diskMagic uint32 = 0x494e4f44

	// MaxBytes is the largest byte offset a (direct, single-indirect,
	// double-indirect) pointer tree can address: (12+128+128*128)*512.
	MaxBytes = int64(doubleIndirectEnd) * blockdev.SectorSize
)

func directOffset(i int) int { return offsetDirect + i*4 }

// onDiskInode is the decoded form of an inode sector's fixed fields, with
// a whole-sector marshal/unmarshal pair. The inode layer itself does not
// round-trip the whole struct: Create, ReadAt/WriteAt and the pointer
// chasing in lookup/lookupOrCreate all read and write individual 4-byte
// fields directly through the cache at the offsets above.
type onDiskInode struct {
	Length      int32
	Direct      [numDirect]uint32
	Indirect    uint32
	DblIndirect uint32
	Magic       uint32
}

func (d *onDiskInode) marshal() [blockdev.SectorSize]byte {
	var buf [blockdev.SectorSize]byte
	binary.LittleEndian.PutUint32(buf[offsetLength:], uint32(d.Length))
	for i, p := range d.Direct {
		binary.LittleEndian.PutUint32(buf[directOffset(i):], p)
	}
	binary.LittleEndian.PutUint32(buf[offsetIndirect:], d.Indirect)
	binary.LittleEndian.PutUint32(buf[offsetDblIndirect:], d.DblIndirect)
	binary.LittleEndian.PutUint32(buf[offsetMagic:], d.Magic)
	return buf
}

func unmarshalOnDiskInode(buf []byte) onDiskInode {
	var d onDiskInode
	d.Length = int32(binary.LittleEndian.Uint32(buf[offsetLength:]))
	for i := range d.Direct {
		d.Direct[i] = binary.LittleEndian.Uint32(buf[directOffset(i):])
	}
	d.Indirect = binary.LittleEndian.Uint32(buf[offsetIndirect:])
	d.DblIndirect = binary.LittleEndian.Uint32(buf[offsetDblIndirect:])
	d.Magic = binary.LittleEndian.Uint32(buf[offsetMagic:])
	return d
}

// region classifies a block index into the direct / single-indirect /
// double-indirect address space described in spec.md §4.4.1.
type region int

const (
	regionDirect region = iota
	regionSingleIndirect
	regionDoubleIndirect
	regionOutOfBounds
)

func classify(blockIdx int64) region {
	switch {
	case blockIdx < directIdxEnd:
		return regionDirect
	case blockIdx < singleIndirectEnd:
		return regionSingleIndirect
	case blockIdx < doubleIndirectEnd:
		return regionDoubleIndirect
	default:
		return regionOutOfBounds
	}
}
