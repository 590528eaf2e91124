package opsurface_test

import (
	"context"
	"io"
	"testing"

	"github.com/batra98/wfs/format"
	"github.com/batra98/wfs/fsctx"
	"github.com/batra98/wfs/ondisk"
	"github.com/batra98/wfs/opsurface"
	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/bytesextra"
)

func newMountedRoot(t *testing.T) *opsurface.Node {
	t.Helper()
	size := format.RequiredSize(32, 32) + 4096
	streams := make([]io.ReadWriteSeeker, 2)
	for i := range streams {
		streams[i] = bytesextra.NewReadWriteSeeker(make([]byte, size))
	}
	require.NoError(t, format.Format(streams, format.Options{RaidMode: ondisk.ModeStripe, NumInodes: 32, NumDataBlocks: 32}))

	ctx, err := fsctx.Mount(streams)
	require.NoError(t, err)

	root := opsurface.NewRoot(ctx)
	node, ok := root.(*opsurface.Node)
	require.True(t, ok)

	// Register the root with a throwaway Inode so NewInode calls on it
	// during Lookup/Mkdir/Create have a valid parent.
	bridge := fs.NewNodeFS(root, &fs.Options{})
	_ = bridge
	return node
}

func TestGetattrOnRoot(t *testing.T) {
	root := newMountedRoot(t)
	var out fuse.AttrOut
	errno := root.Getattr(context.Background(), nil, &out)
	assert.Equal(t, fs.OK, errno)
	assert.EqualValues(t, 0, out.Attr.Ino)
	assert.NotZero(t, out.Attr.Mode&uint32(040000))
}

func TestMkdirLookupAndReaddir(t *testing.T) {
	root := newMountedRoot(t)
	ctx := context.Background()

	var entryOut fuse.EntryOut
	_, errno := root.Mkdir(ctx, "sub", 0o755, &entryOut)
	require.Equal(t, fs.OK, errno)

	var lookupOut fuse.EntryOut
	_, errno = root.Lookup(ctx, "sub", &lookupOut)
	require.Equal(t, fs.OK, errno)
	assert.Equal(t, entryOut.NodeId, lookupOut.NodeId)

	_, errno = root.Lookup(ctx, "missing", &fuse.EntryOut{})
	assert.NotEqual(t, fs.OK, errno)

	stream, errno := root.Readdir(ctx)
	require.Equal(t, fs.OK, errno)
	seen := map[string]bool{}
	for stream.HasNext() {
		e, errno := stream.Next()
		require.Equal(t, fs.OK, errno)
		seen[e.Name] = true
	}
	assert.True(t, seen["."])
	assert.True(t, seen[".."])
	assert.True(t, seen["sub"])
}

func TestCreateWriteReadFile(t *testing.T) {
	root := newMountedRoot(t)
	ctx := context.Background()

	var entryOut fuse.EntryOut
	_, fh, _, errno := root.Create(ctx, "hello.txt", 0, 0o644, &entryOut)
	require.Equal(t, fs.OK, errno)
	file, ok := fh.(*opsurface.Node)
	require.True(t, ok)

	payload := []byte("hello, wfs")
	n, errno := file.Write(ctx, file, payload, 0)
	require.Equal(t, fs.OK, errno)
	assert.EqualValues(t, len(payload), n)

	buf := make([]byte, len(payload))
	result, errno := file.Read(ctx, file, buf, 0)
	require.Equal(t, fs.OK, errno)
	out, status := result.Bytes(buf)
	require.True(t, status.Ok())
	assert.Equal(t, payload, out)
}

func TestUnlinkRemovesFile(t *testing.T) {
	root := newMountedRoot(t)
	ctx := context.Background()

	var entryOut fuse.EntryOut
	_, _, _, errno := root.Create(ctx, "victim.txt", 0, 0o644, &entryOut)
	require.Equal(t, fs.OK, errno)

	errno = root.Unlink(ctx, "victim.txt")
	require.Equal(t, fs.OK, errno)

	_, errno = root.Lookup(ctx, "victim.txt", &fuse.EntryOut{})
	assert.NotEqual(t, fs.OK, errno)
}

func TestStatfsReportsCapacity(t *testing.T) {
	root := newMountedRoot(t)
	var out fuse.StatfsOut
	errno := root.Statfs(context.Background(), &out)
	require.Equal(t, fs.OK, errno)
	assert.EqualValues(t, ondisk.BlockSize, out.Bsize)
	assert.EqualValues(t, 32, out.Blocks)
}
