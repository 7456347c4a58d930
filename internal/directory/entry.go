package directory

import (
	"encoding/binary"
	"strings"
)

// NameMax is the longest permitted path component, per spec.md §3/§6.
const NameMax = 14

// EntrySize is the on-disk stride of one directory entry: a 4-byte inode
// sector, a NAME_MAX+1-byte name buffer, and two 1-byte flags, padded out
// to 32 bytes so that InitialCapacityEntries entries fill exactly one
// 512-byte sector, matching spec.md §4.5's "initial capacity of 16
// entries" for a freshly created directory.
const EntrySize = 32

// InitialCapacityEntries is how many entry slots dir_create allocates up
// front.
const InitialCapacityEntries = 16

const (
	entryOffInodeSector = 0
	entryOffName        = 4
	entryNameBufLen     = NameMax + 1 // room for a NUL terminator
	entryOffInUse       = entryOffName + entryNameBufLen
	entryOffIsDir       = entryOffInUse + 1
)

// entry is the decoded form of one directory entry, per spec.md §3.
type entry struct {
	InodeSector uint32
	Name        string
	InUse       bool
	IsDir       bool
}

func marshalEntry(e entry) [EntrySize]byte {
	var buf [EntrySize]byte
	binary.LittleEndian.PutUint32(buf[entryOffInodeSector:], e.InodeSector)
	copy(buf[entryOffName:entryOffName+entryNameBufLen], e.Name)
	if e.InUse {
		buf[entryOffInUse] = 1
	}
	if e.IsDir {
		buf[entryOffIsDir] = 1
	}
	return buf
}

func unmarshalEntry(buf []byte) entry {
	var e entry
	e.InodeSector = binary.LittleEndian.Uint32(buf[entryOffInodeSector:])
	raw := buf[entryOffName : entryOffName+entryNameBufLen]
	if i := indexByte(raw, 0); i >= 0 {
		e.Name = string(raw[:i])
	} else {
		e.Name = string(raw)
	}
	e.InUse = buf[entryOffInUse] != 0
	e.IsDir = buf[entryOffIsDir] != 0
	return e
}

func indexByte(b []byte, c byte) int {
	for i, v := range b {
		if v == c {
			return i
		}
	}
	return -1
}

func isDotOrDotDot(name string) bool {
	return name == "." || name == ".."
}

func validName(name string) bool {
	return len(name) > 0 && len(name) <= NameMax && !strings.Contains(name, "/")
}
