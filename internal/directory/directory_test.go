package directory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/googlecloudplatform/blockfs/internal/blockdev"
	"github.com/googlecloudplatform/blockfs/internal/buffercache"
	"github.com/googlecloudplatform/blockfs/internal/freemap"
	"github.com/googlecloudplatform/blockfs/internal/fserrors"
	"github.com/googlecloudplatform/blockfs/internal/inode"
)

const testRootSector uint32 = 1

func newTestManager(t *testing.T, sectors uint32) (*Manager, *inode.Manager, *freemap.FreeMap) {
	t.Helper()
	dev := blockdev.NewMemDevice(sectors)
	cache := buffercache.New(dev)
	fm := freemap.New(sectors)

	fm.Lock()
	root, ok := fm.Allocate()
	fm.Unlock()
	require.True(t, ok)
	require.Equal(t, testRootSector, root)

	inodes := inode.NewManager(cache, fm)
	dirs := NewManager(inodes)
	require.NoError(t, dirs.Create(testRootSector, testRootSector))

	return dirs, inodes, fm
}

func allocSector(t *testing.T, fm *freemap.FreeMap) uint32 {
	t.Helper()
	fm.Lock()
	defer fm.Unlock()
	s, ok := fm.Allocate()
	require.True(t, ok)
	return s
}

func TestSplitPath(t *testing.T) {
	cases := []struct {
		path       string
		parent, leaf string
	}{
		{"/", "/", ""},
		{"a", "", "a"},
		{"a/b/", "a", "b"},
		{"//a//b", "//a", "b"},
		{"///", "///", ""},
	}

	for _, c := range cases {
		parent, leaf := SplitPath(c.path)
		assert.Equal(t, c.parent, parent, "parent for %q", c.path)
		assert.Equal(t, c.leaf, leaf, "leaf for %q", c.path)
	}
}

func TestRootDotAndDotDotSelfReference(t *testing.T) {
	dirs, inodes, _ := newTestManager(t, 256)

	root := inodes.Open(testRootSector)
	defer root.Close()
	h := dirs.Open(root)
	defer h.Close()

	sector, isDir, ok := h.Lookup(".")
	require.True(t, ok)
	assert.True(t, isDir)
	assert.Equal(t, testRootSector, sector)

	sector, isDir, ok = h.Lookup("..")
	require.True(t, ok)
	assert.True(t, isDir)
	assert.Equal(t, testRootSector, sector)
}

func TestAddAndLookup(t *testing.T) {
	dirs, inodes, fm := newTestManager(t, 256)

	root := inodes.Open(testRootSector)
	defer root.Close()
	h := dirs.Open(root)
	defer h.Close()

	fileSector := allocSector(t, fm)
	require.NoError(t, inodes.Create(fileSector, 0))
	require.NoError(t, h.Add("hello.txt", fileSector, false))

	sector, isDir, ok := h.Lookup("hello.txt")
	require.True(t, ok)
	assert.False(t, isDir)
	assert.Equal(t, fileSector, sector)
}

func TestAddDuplicateNameFails(t *testing.T) {
	dirs, inodes, fm := newTestManager(t, 256)

	root := inodes.Open(testRootSector)
	defer root.Close()
	h := dirs.Open(root)
	defer h.Close()

	s1 := allocSector(t, fm)
	require.NoError(t, inodes.Create(s1, 0))
	require.NoError(t, h.Add("dup", s1, false))

	s2 := allocSector(t, fm)
	require.NoError(t, inodes.Create(s2, 0))
	err := h.Add("dup", s2, false)
	assert.Error(t, err)
}

func TestEmpty(t *testing.T) {
	dirs, inodes, fm := newTestManager(t, 256)

	root := inodes.Open(testRootSector)
	defer root.Close()
	h := dirs.Open(root)
	defer h.Close()

	assert.True(t, h.Empty(), "a freshly created directory has only . and ..")

	sector := allocSector(t, fm)
	require.NoError(t, inodes.Create(sector, 0))
	require.NoError(t, h.Add("child", sector, false))

	assert.False(t, h.Empty())
}

func TestRemoveNonEmptyDirectoryFails(t *testing.T) {
	dirs, inodes, fm := newTestManager(t, 256)

	root := inodes.Open(testRootSector)
	defer root.Close()
	h := dirs.Open(root)
	defer h.Close()

	childSector := allocSector(t, fm)
	require.NoError(t, dirs.Create(childSector, testRootSector))
	require.NoError(t, h.Add("child", childSector, true))

	childIno := inodes.Open(childSector)
	childHandle := dirs.Open(childIno)
	grandchild := allocSector(t, fm)
	require.NoError(t, inodes.Create(grandchild, 0))
	require.NoError(t, childHandle.Add("grandchild", grandchild, false))
	childHandle.Close()

	err := h.Remove("child")
	assert.ErrorIs(t, err, fserrors.ErrNotEmpty)
}

func TestRemoveDirectoryOpenElsewhereFails(t *testing.T) {
	dirs, inodes, fm := newTestManager(t, 256)

	root := inodes.Open(testRootSector)
	defer root.Close()
	h := dirs.Open(root)
	defer h.Close()

	childSector := allocSector(t, fm)
	require.NoError(t, dirs.Create(childSector, testRootSector))
	require.NoError(t, h.Add("child", childSector, true))

	// Open it twice, independent of the removal call below.
	first := dirs.Open(inodes.Open(childSector))
	second := dirs.Open(inodes.Open(childSector))
	defer first.Close()
	defer second.Close()

	err := h.Remove("child")
	assert.Error(t, err)
}

func TestReaddirSkipsDotEntries(t *testing.T) {
	dirs, inodes, fm := newTestManager(t, 256)

	root := inodes.Open(testRootSector)
	defer root.Close()
	h := dirs.Open(root)
	defer h.Close()

	for _, name := range []string{"a", "b", "c"} {
		s := allocSector(t, fm)
		require.NoError(t, inodes.Create(s, 0))
		require.NoError(t, h.Add(name, s, false))
	}

	var names []string
	for {
		name, ok := h.Readdir()
		if !ok {
			break
		}
		names = append(names, name)
	}

	assert.ElementsMatch(t, []string{"a", "b", "c"}, names)
}

func TestResolveWalksNestedPath(t *testing.T) {
	dirs, inodes, fm := newTestManager(t, 256)

	root := inodes.Open(testRootSector)
	rootHandle := dirs.Open(root)

	aSector := allocSector(t, fm)
	require.NoError(t, dirs.Create(aSector, testRootSector))
	require.NoError(t, rootHandle.Add("a", aSector, true))
	rootHandle.Close()

	aIno := inodes.Open(aSector)
	aHandle := dirs.Open(aIno)
	bSector := allocSector(t, fm)
	require.NoError(t, dirs.Create(bSector, aSector))
	require.NoError(t, aHandle.Add("b", bSector, true))
	aHandle.Close()

	resolved, err := dirs.Resolve(testRootSector, testRootSector, "/a/b")
	require.NoError(t, err)
	defer resolved.Close()

	assert.Equal(t, bSector, resolved.Sector())
}
