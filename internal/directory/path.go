package directory

import (
	"strings"
	"sync"

	"github.com/googlecloudplatform/blockfs/internal/fserrors"
	"github.com/googlecloudplatform/blockfs/internal/inode"
)

// CWD holds one caller's current-working-directory inumber. It is passed
// explicitly to Resolve rather than kept as implicit per-thread state
// (spec.md §9's resolved design decision for a library with no OS-thread
// affinity to piggyback on), and is safe for concurrent use by callers
// that share one process-wide CWD value.
type CWD struct {
	mu     sync.Mutex
	sector uint32
}

func NewCWD(rootSector uint32) *CWD {
	return &CWD{sector: rootSector}
}

func (c *CWD) Sector() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sector
}

func (c *CWD) Set(sector uint32) {
	c.mu.Lock()
	c.sector = sector
	c.mu.Unlock()
}

// getNextPart strips leading slashes from *src and returns the next
// path component up to (but not including) the following slash. end is
// true once no component remains.
func getNextPart(src *string) (part string, end bool, err error) {
	s := *src
	for len(s) > 0 && s[0] == '/' {
		s = s[1:]
	}
	if len(s) == 0 {
		*src = s
		return "", true, nil
	}

	i := 0
	for i < len(s) && s[i] != '/' {
		i++
	}
	if i > NameMax {
		return "", false, fserrors.ErrNameTooLong
	}

	part = s[:i]
	*src = s[i:]
	return part, false, nil
}

// SplitPath splits path into (parent, leaf) at its final path component,
// per spec.md §4.5.2:
//
//	"/"      -> ("/", "")
//	"a"      -> ("", "a")
//	"a/b/"   -> ("a", "b")
//	"//a//b" -> ("//a", "b")
//	"///"    -> ("///", "")
//
// Trailing slashes are trimmed before splitting, except when the whole
// path is composed of slashes, in which case it is returned unchanged
// with an empty leaf.
func SplitPath(path string) (parent, leaf string) {
	trimmed := strings.TrimRight(path, "/")
	if trimmed == "" {
		return path, ""
	}

	i := strings.LastIndex(trimmed, "/")
	if i < 0 {
		return "", trimmed
	}

	parent = strings.TrimRight(trimmed[:i], "/")
	return parent, trimmed[i+1:]
}

// Resolve walks path component by component starting from rootSector (if
// path is absolute) or cwdSector (otherwise), requiring every component,
// including the last, to name a directory — Resolve never returns a
// regular file. The returned Inode is owned by the caller and must be
// Closed.
func (m *Manager) Resolve(rootSector, cwdSector uint32, path string) (*inode.Inode, error) {
	start := cwdSector
	if strings.HasPrefix(path, "/") {
		start = rootSector
	}

	cur := m.inodes.Open(start)
	rest := path

	for {
		part, end, err := getNextPart(&rest)
		if err != nil {
			cur.Close()
			return nil, err
		}
		if end {
			return cur, nil
		}

		h := m.Open(cur)
		sector, isDir, ok := h.Lookup(part)
		h.Close()
		cur.Close()

		if !ok {
			return nil, fserrors.ErrNotFound
		}
		if !isDir {
			return nil, fserrors.ErrNotDirectory
		}
		cur = m.inodes.Open(sector)
	}
}
