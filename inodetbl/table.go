// Package inodetbl implements the inode table: a fixed array of one
// inode record per block, indexed from the superblock's IBlocksPtr, plus
// its allocator and lifecycle operations.
package inodetbl

import (
	"fmt"

	"github.com/batra98/wfs/bitmapalloc"
	"github.com/batra98/wfs/ondisk"
	"github.com/batra98/wfs/raid"
	"github.com/batra98/wfs/wfserr"
)

// BlockFreer releases the data blocks owned by an inode. datablock.Layer
// implements this; inodetbl depends only on the interface so the two
// packages don't import each other.
type BlockFreer interface {
	FreeDirectBlocks(in *ondisk.Inode) error
	FreeIndirectBlock(in *ondisk.Inode) error
}

// Table is the inode table for one mounted filesystem.
type Table struct {
	mapper    *raid.Mapper
	blocksPtr uint64
	alloc     *bitmapalloc.Allocator
}

// New constructs a Table backed by mapper, with the inode array starting
// at blocksPtr (the superblock's IBlocksPtr) and allocation state tracked
// by alloc.
func New(mapper *raid.Mapper, blocksPtr uint64, alloc *bitmapalloc.Allocator) *Table {
	return &Table{mapper: mapper, blocksPtr: blocksPtr, alloc: alloc}
}

func (t *Table) offsetOf(i int32) int64 {
	return int64(t.blocksPtr) + int64(i)*ondisk.BlockSize
}

// Read loads inode i's record through the RAID mapper.
func (t *Table) Read(i int32) (*ondisk.Inode, error) {
	raw, err := t.mapper.ReadMeta(t.offsetOf(i), ondisk.BlockSize)
	if err != nil {
		return nil, wfserr.IOError("read-inode", fmt.Sprintf("#%d", i))
	}
	in, err := ondisk.DecodeInode(raw)
	if err != nil {
		return nil, wfserr.IOError("read-inode", fmt.Sprintf("#%d", i))
	}
	return in, nil
}

// Write persists inode i's record, replicating under mirrored modes.
func (t *Table) Write(i int32, in *ondisk.Inode) error {
	in.Num = i
	if err := t.mapper.WriteMeta(t.offsetOf(i), in.Encode()); err != nil {
		return wfserr.IOError("write-inode", fmt.Sprintf("#%d", i))
	}
	return nil
}

// Allocate reserves a bitmap index and composes a fresh inode record:
// nlinks=2 for directories, 1 for regular files, size=0, every block
// slot unallocated, timestamps set to now.
func (t *Table) Allocate(mode uint32, uid, gid uint32, now int64, isDir bool) (int32, error) {
	idx, err := t.alloc.Allocate()
	if err != nil {
		return 0, wfserr.NoSpace("allocate-inode", "")
	}

	nlinks := uint32(1)
	if isDir {
		nlinks = 2
	}

	in := &ondisk.Inode{
		Num:    int32(idx),
		Mode:   mode,
		UID:    uid,
		GID:    gid,
		Size:   0,
		Nlinks: nlinks,
		Atim:   now,
		Mtim:   now,
		Ctim:   now,
		Blocks: ondisk.NewBlocks(),
	}
	if err := t.Write(int32(idx), in); err != nil {
		_ = t.alloc.Free(idx)
		return 0, err
	}
	return int32(idx), nil
}

// Free reads the inode, releases its direct and indirect data blocks
// through freer, then clears its bitmap bit. It does not zero the inode
// slot on disk; the bitmap is the sole authority on allocation state.
func (t *Table) Free(i int32, freer BlockFreer) error {
	in, err := t.Read(i)
	if err != nil {
		return err
	}
	if err := freer.FreeDirectBlocks(in); err != nil {
		return err
	}
	if err := freer.FreeIndirectBlock(in); err != nil {
		return err
	}
	if err := t.alloc.Free(uint32(i)); err != nil {
		return wfserr.IOError("free-inode", fmt.Sprintf("#%d", i))
	}
	return nil
}

// Allocator exposes the underlying bitmap allocator, e.g. for statfs
// reporting.
func (t *Table) Allocator() *bitmapalloc.Allocator {
	return t.alloc
}
