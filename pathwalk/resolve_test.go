package pathwalk_test

import (
	"testing"

	"github.com/batra98/wfs/bitmapalloc"
	"github.com/batra98/wfs/datablock"
	"github.com/batra98/wfs/diskio"
	"github.com/batra98/wfs/inodetbl"
	"github.com/batra98/wfs/ondisk"
	"github.com/batra98/wfs/pathwalk"
	"github.com/batra98/wfs/raid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/bytesextra"
)

func setup(t *testing.T) (*inodetbl.Table, *datablock.Layer, *pathwalk.Resolver) {
	t.Helper()
	numInodes, numData := uint32(32), uint32(32)
	inodeRegion := int64(numInodes) * ondisk.BlockSize
	dataRegion := int64(numData) * ondisk.BlockSize
	total := inodeRegion + dataRegion

	stream := bytesextra.NewReadWriteSeeker(make([]byte, total))
	disks := diskio.Array{diskio.New(stream, total)}
	mapper := raid.New(disks, ondisk.ModeStripe)

	inodeAlloc := bitmapalloc.NewEmpty(numInodes, func([]byte) error { return nil })
	dataAlloc := bitmapalloc.NewEmpty(numData, func([]byte) error { return nil })

	inodes := inodetbl.New(mapper, 0, inodeAlloc)
	blocks := datablock.New(mapper, uint64(inodeRegion), dataAlloc, inodes)
	resolver := pathwalk.New(inodes, blocks)

	// root inode: reserve inode 0 the way the formatter does.
	_, err := inodeAlloc.Allocate()
	require.NoError(t, err)
	root := &ondisk.Inode{Num: 0, Mode: 0o040755, Nlinks: 2, Blocks: ondisk.NewBlocks()}
	require.NoError(t, inodes.Write(0, root))

	return inodes, blocks, resolver
}

func TestResolveRootPath(t *testing.T) {
	_, _, resolver := setup(t)
	num, err := resolver.Resolve("/")
	require.NoError(t, err)
	assert.EqualValues(t, pathwalk.RootInode, num)
}

func TestResolveNestedDirectories(t *testing.T) {
	inodes, blocks, resolver := setup(t)

	root, err := inodes.Read(pathwalk.RootInode)
	require.NoError(t, err)

	aNum, err := inodes.Allocate(0o040755, 0, 0, 1, true)
	require.NoError(t, err)
	require.NoError(t, blocks.AddEntry(pathwalk.RootInode, root, "a", ondisk.BlockRef(aNum), true))

	aInode, err := inodes.Read(aNum)
	require.NoError(t, err)
	bNum, err := inodes.Allocate(0o040755, 0, 0, 1, true)
	require.NoError(t, err)
	require.NoError(t, blocks.AddEntry(aNum, aInode, "b", ondisk.BlockRef(bNum), true))

	got, err := resolver.Resolve("/a/b")
	require.NoError(t, err)
	assert.Equal(t, bNum, got)
}

func TestResolveMissingComponentIsNotFound(t *testing.T) {
	_, _, resolver := setup(t)
	_, err := resolver.Resolve("/nope")
	assert.Error(t, err)
}

func TestSplitPath(t *testing.T) {
	parent, name, err := pathwalk.Split("/a/b/c")
	require.NoError(t, err)
	assert.Equal(t, "/a/b", parent)
	assert.Equal(t, "c", name)

	parent, name, err = pathwalk.Split("/x")
	require.NoError(t, err)
	assert.Equal(t, "/", parent)
	assert.Equal(t, "x", name)

	_, _, err = pathwalk.Split("relative")
	assert.Error(t, err)

	_, _, err = pathwalk.Split("/")
	assert.Error(t, err)
}
