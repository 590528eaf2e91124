package fsctx_test

import (
	"bytes"
	"io"
	"testing"

	"github.com/batra98/wfs/format"
	"github.com/batra98/wfs/fsctx"
	"github.com/batra98/wfs/ondisk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/bytesextra"
)

func mountFresh(t *testing.T, mode uint32, numDisks int) ([]io.ReadWriteSeeker, *fsctx.Context) {
	t.Helper()
	size := format.RequiredSize(32, 64) + 4096
	streams := make([]io.ReadWriteSeeker, numDisks)
	for i := range streams {
		streams[i] = bytesextra.NewReadWriteSeeker(make([]byte, size))
	}
	require.NoError(t, format.Format(streams, format.Options{RaidMode: mode, NumInodes: 32, NumDataBlocks: 64}))

	ctx, err := fsctx.Mount(streams)
	require.NoError(t, err)
	return streams, ctx
}

func TestFormatThenGetattrRoot(t *testing.T) {
	_, ctx := mountFresh(t, ondisk.ModeStripe, 2)

	attr, err := ctx.Getattr("/")
	require.NoError(t, err)
	assert.True(t, attr.IsDir())
	assert.EqualValues(t, 0, attr.InodeNum)
	assert.EqualValues(t, 2, attr.Nlinks)
}

func TestNestedMkdirAndReaddir(t *testing.T) {
	_, ctx := mountFresh(t, ondisk.ModeStripe, 2)

	_, err := ctx.Mkdir("/a", 0o755, 1, 1)
	require.NoError(t, err)
	_, err = ctx.Mkdir("/a/b", 0o755, 1, 1)
	require.NoError(t, err)

	names, err := ctx.Readdir("/a")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{".", "..", "b"}, names)

	root, err := ctx.Getattr("/")
	require.NoError(t, err)
	assert.EqualValues(t, 3, root.Nlinks, "root started at 2, gained one for /a")

	aAttr, err := ctx.Getattr("/a")
	require.NoError(t, err)
	assert.EqualValues(t, 3, aAttr.Nlinks, "/a started at 2, gained one for /a/b")
}

func TestDuplicateMkdirRejected(t *testing.T) {
	_, ctx := mountFresh(t, ondisk.ModeStripe, 2)

	_, err := ctx.Mkdir("/dup", 0o755, 0, 0)
	require.NoError(t, err)

	_, err = ctx.Mkdir("/dup", 0o755, 0, 0)
	assert.Error(t, err)

	stat := ctx.Statfs()
	// root (1) + /dup (1) = 2 inodes consumed; the rejected duplicate
	// must not have consumed a third.
	assert.EqualValues(t, stat.TotalInodes-2, stat.FreeInodes)
}

func TestWriteThenReadAcrossBlockBoundary(t *testing.T) {
	_, ctx := mountFresh(t, ondisk.ModeStripe, 2)

	_, err := ctx.Mknod("/big.txt", 0o644, 0, 0, 0)
	require.NoError(t, err)

	payload := bytes.Repeat([]byte("0123456789"), 70) // 700 bytes, spans block boundary
	n, err := ctx.Write("/big.txt", payload, 0)
	require.NoError(t, err)
	assert.Equal(t, len(payload), n)

	buf := make([]byte, len(payload))
	n, err = ctx.Read("/big.txt", buf, 0)
	require.NoError(t, err)
	assert.Equal(t, len(payload), n)
	assert.Equal(t, payload, buf)
}

func TestWriteAtIndirectBlockOffset(t *testing.T) {
	_, ctx := mountFresh(t, ondisk.ModeStripe, 2)

	_, err := ctx.Mknod("/indirect.bin", 0o644, 0, 0, 0)
	require.NoError(t, err)

	offset := int64(ondisk.NDirect) * ondisk.BlockSize
	payload := []byte("past the direct blocks")
	_, err = ctx.Write("/indirect.bin", payload, offset)
	require.NoError(t, err)

	buf := make([]byte, len(payload))
	_, err = ctx.Read("/indirect.bin", buf, offset)
	require.NoError(t, err)
	assert.Equal(t, payload, buf)
}

func TestUnlinkAndRmdir(t *testing.T) {
	_, ctx := mountFresh(t, ondisk.ModeStripe, 2)

	_, err := ctx.Mknod("/f.txt", 0o644, 0, 0, 0)
	require.NoError(t, err)
	require.NoError(t, ctx.Unlink("/f.txt"))
	_, err = ctx.Getattr("/f.txt")
	assert.Error(t, err)

	_, err = ctx.Mkdir("/empty", 0o755, 0, 0)
	require.NoError(t, err)
	require.NoError(t, ctx.Rmdir("/empty"))
	_, err = ctx.Getattr("/empty")
	assert.Error(t, err)
}

func TestRmdirNonEmptyFails(t *testing.T) {
	_, ctx := mountFresh(t, ondisk.ModeStripe, 2)

	_, err := ctx.Mkdir("/nonempty", 0o755, 0, 0)
	require.NoError(t, err)
	_, err = ctx.Mknod("/nonempty/child.txt", 0o644, 0, 0, 0)
	require.NoError(t, err)

	err = ctx.Rmdir("/nonempty")
	assert.Error(t, err)
}

func TestMirrorWritesByteIdenticalAcrossDisks(t *testing.T) {
	streams, ctx := mountFresh(t, ondisk.ModeMirror, 3)

	_, err := ctx.Mknod("/mirrored.txt", 0o644, 0, 0, 0)
	require.NoError(t, err)
	payload := []byte("mirror me")
	_, err = ctx.Write("/mirrored.txt", payload, 0)
	require.NoError(t, err)

	// The superblock intentionally differs per disk (DiskIndex/DiskID), so
	// only the data region -- which mirroring replicates verbatim -- is
	// compared here.
	dataStart := int64(ctx.Superblock.DBlocksPtr)
	var regions [][]byte
	for _, s := range streams {
		size, err := s.Seek(0, io.SeekEnd)
		require.NoError(t, err)
		buf := make([]byte, size-dataStart)
		_, err = s.Seek(dataStart, io.SeekStart)
		require.NoError(t, err)
		_, err = io.ReadFull(s, buf)
		require.NoError(t, err)
		regions = append(regions, buf)
	}
	for i := 1; i < len(regions); i++ {
		assert.True(t, bytes.Equal(regions[0], regions[i]), "disk 0 and disk %d diverge in the data region under mirroring", i)
	}
}

func TestStatfsReflectsAllocations(t *testing.T) {
	_, ctx := mountFresh(t, ondisk.ModeStripe, 2)

	before := ctx.Statfs()
	_, err := ctx.Mknod("/x.txt", 0o644, 0, 0, 0)
	require.NoError(t, err)
	after := ctx.Statfs()

	assert.Equal(t, before.FreeInodes-1, after.FreeInodes)
	assert.Equal(t, before.FreeBlocks, after.FreeBlocks, "an empty file allocates no data blocks")
}
