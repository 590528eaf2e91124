// Package datablock implements the data block layer: whole-block
// transfers through the RAID mapper, direct/indirect block chains for
// regular files, and the directory-entry protocol (in dentry.go) for
// directories.
package datablock

import (
	"github.com/batra98/wfs/bitmapalloc"
	"github.com/batra98/wfs/inodetbl"
	"github.com/batra98/wfs/ondisk"
	"github.com/batra98/wfs/raid"
	"github.com/batra98/wfs/wfserr"
)

// Layer is the data block region for one mounted filesystem. It needs
// the inode table to persist inode size/nlinks changes that the
// directory-entry and file-write protocols make as a side effect.
type Layer struct {
	mapper *raid.Mapper
	dataPtr uint64
	alloc  *bitmapalloc.Allocator
	inodes *inodetbl.Table
}

func New(mapper *raid.Mapper, dataPtr uint64, alloc *bitmapalloc.Allocator, inodes *inodetbl.Table) *Layer {
	return &Layer{mapper: mapper, dataPtr: dataPtr, alloc: alloc, inodes: inodes}
}

// ReadBlock reads one whole data block by its data-region-relative
// logical index.
func (l *Layer) ReadBlock(ref ondisk.BlockRef) ([]byte, error) {
	if !ref.Valid() {
		return nil, wfserr.IOError("read-block", ref.String())
	}
	data, err := l.mapper.ReadDataBlock(l.dataPtr, int64(ref))
	if err != nil {
		return nil, wfserr.IOError("read-block", ref.String())
	}
	return data, nil
}

// WriteBlock writes one whole data block, replicating under mirrored
// modes.
func (l *Layer) WriteBlock(ref ondisk.BlockRef, data []byte) error {
	if !ref.Valid() {
		return wfserr.IOError("write-block", ref.String())
	}
	if err := l.mapper.WriteDataBlock(l.dataPtr, int64(ref), data); err != nil {
		return wfserr.IOError("write-block", ref.String())
	}
	return nil
}

// AllocateBlock reserves one free data block.
func (l *Layer) AllocateBlock() (ondisk.BlockRef, error) {
	idx, err := l.alloc.Allocate()
	if err != nil {
		return ondisk.Nil, wfserr.NoSpace("allocate-block", "")
	}
	return ondisk.BlockRef(idx), nil
}

// FreeBlock releases a data block back to the bitmap.
func (l *Layer) FreeBlock(ref ondisk.BlockRef) error {
	if !ref.Valid() {
		return nil
	}
	if err := l.alloc.Free(uint32(ref)); err != nil {
		return wfserr.IOError("free-block", ref.String())
	}
	return nil
}

// AllocateDirectBlock ensures inode's direct slot k names an allocated
// block, allocating one if the slot is currently the unallocated
// sentinel, and returns the effective index.
func (l *Layer) AllocateDirectBlock(in *ondisk.Inode, k int) (ondisk.BlockRef, error) {
	cur := ondisk.BlockRef(in.Blocks[k])
	if cur.Valid() {
		return cur, nil
	}
	ref, err := l.AllocateBlock()
	if err != nil {
		return ondisk.Nil, err
	}
	in.SetBlockRef(k, ref)
	return ref, nil
}

// AllocateIndirectBlock resolves the data block backing logical block k
// (k >= NDirect) through the indirect chain, allocating the indirect
// block itself and/or the target data block as needed.
func (l *Layer) AllocateIndirectBlock(in *ondisk.Inode, k int) (ondisk.BlockRef, error) {
	indirectSlot := ondisk.NDirect

	indirectRef := ondisk.BlockRef(in.Blocks[indirectSlot])
	if !indirectRef.Valid() {
		newRef, err := l.AllocateBlock()
		if err != nil {
			return ondisk.Nil, err
		}
		sentinel := ondisk.EncodeIndirectBlock(ondisk.NewIndirectBlockSentinel())
		if err := l.WriteBlock(newRef, sentinel); err != nil {
			return ondisk.Nil, err
		}
		in.SetBlockRef(indirectSlot, newRef)
		indirectRef = newRef
	}

	raw, err := l.ReadBlock(indirectRef)
	if err != nil {
		return ondisk.Nil, err
	}
	entries, err := ondisk.DecodeIndirectBlock(raw)
	if err != nil {
		return ondisk.Nil, wfserr.IOError("allocate-indirect", "")
	}

	j := k - indirectSlot
	if j >= ondisk.IndirectEntries {
		return ondisk.Nil, wfserr.IOError("allocate-indirect", "file too large")
	}

	if entries[j] == int32(ondisk.Nil) {
		dataRef, err := l.AllocateBlock()
		if err != nil {
			return ondisk.Nil, err
		}
		entries[j] = int32(dataRef)
		if err := l.WriteBlock(indirectRef, ondisk.EncodeIndirectBlock(entries)); err != nil {
			return ondisk.Nil, err
		}
		return dataRef, nil
	}
	return ondisk.BlockRef(entries[j]), nil
}

// readIndirectEntry resolves logical block k (k >= NDirect) for reading:
// it does not allocate, and reports missing entries as EIO, matching the
// invariant that every block within [0, size) is already allocated.
func (l *Layer) readIndirectEntry(in *ondisk.Inode, k int) (ondisk.BlockRef, error) {
	indirectRef := ondisk.BlockRef(in.Blocks[ondisk.NDirect])
	if !indirectRef.Valid() {
		return ondisk.Nil, wfserr.IOError("read", "indirect block not allocated")
	}
	raw, err := l.ReadBlock(indirectRef)
	if err != nil {
		return ondisk.Nil, err
	}
	entries, err := ondisk.DecodeIndirectBlock(raw)
	if err != nil {
		return ondisk.Nil, wfserr.IOError("read", "")
	}
	j := k - ondisk.NDirect
	if j >= ondisk.IndirectEntries || entries[j] == int32(ondisk.Nil) {
		return ondisk.Nil, wfserr.IOError("read", "no data block at indirect index")
	}
	return ondisk.BlockRef(entries[j]), nil
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// ReadFile copies up to len(dest) bytes starting at offset into dest,
// clipped to the inode's logical size, and returns the number of bytes
// actually delivered (which may be shorter than requested at EOF).
func (l *Layer) ReadFile(in *ondisk.Inode, dest []byte, offset int64) (int, error) {
	size := int64(in.Size)
	if offset >= size {
		return 0, nil
	}

	read := 0
	for read < len(dest) && offset+int64(read) < size {
		pos := offset + int64(read)
		blockIndex := int(pos / ondisk.BlockSize)
		blockOffset := int(pos % ondisk.BlockSize)

		var ref ondisk.BlockRef
		var err error
		if blockIndex < ondisk.NDirect {
			ref = ondisk.BlockRef(in.Blocks[blockIndex])
			if !ref.Valid() {
				return read, wfserr.IOError("read", "no data block allocated")
			}
		} else {
			ref, err = l.readIndirectEntry(in, blockIndex)
			if err != nil {
				return read, err
			}
		}

		block, err := l.ReadBlock(ref)
		if err != nil {
			return read, err
		}

		remaining := int(size - pos)
		toRead := min(len(dest)-read, ondisk.BlockSize-blockOffset)
		toRead = min(toRead, remaining)

		copy(dest[read:read+toRead], block[blockOffset:blockOffset+toRead])
		read += toRead
	}
	return read, nil
}

// WriteFile allocates blocks as needed (direct or via the indirect
// chain), splices data into each covered block, extends the inode's
// logical size if the write grows the file, and persists the inode. It
// returns the number of bytes written.
func (l *Layer) WriteFile(inodeNum int32, in *ondisk.Inode, data []byte, offset int64) (int, error) {
	written := 0
	for written < len(data) {
		pos := offset + int64(written)
		blockIndex := int(pos / ondisk.BlockSize)
		blockOffset := int(pos % ondisk.BlockSize)

		var ref ondisk.BlockRef
		var err error
		if blockIndex < ondisk.NDirect {
			ref, err = l.AllocateDirectBlock(in, blockIndex)
		} else {
			ref, err = l.AllocateIndirectBlock(in, blockIndex)
		}
		if err != nil {
			return written, err
		}

		block, err := l.ReadBlock(ref)
		if err != nil {
			return written, err
		}

		toWrite := min(len(data)-written, ondisk.BlockSize-blockOffset)
		copy(block[blockOffset:blockOffset+toWrite], data[written:written+toWrite])

		if err := l.WriteBlock(ref, block); err != nil {
			return written, err
		}
		written += toWrite
	}

	if offset+int64(written) > int64(in.Size) {
		in.Size = uint64(offset + int64(written))
	}
	if err := l.inodes.Write(inodeNum, in); err != nil {
		return written, err
	}
	return written, nil
}

// FreeDirectBlocks releases every direct slot (indices < NDirect),
// resetting each to the unallocated sentinel.
func (l *Layer) FreeDirectBlocks(in *ondisk.Inode) error {
	for k := 0; k < ondisk.NDirect; k++ {
		ref := ondisk.BlockRef(in.Blocks[k])
		if ref.Valid() {
			if err := l.FreeBlock(ref); err != nil {
				return err
			}
			in.SetBlockRef(k, ondisk.Nil)
		}
	}
	return nil
}

// FreeIndirectBlock releases every block referenced by the indirect
// index block, then the indirect block itself.
func (l *Layer) FreeIndirectBlock(in *ondisk.Inode) error {
	ref := ondisk.BlockRef(in.Blocks[ondisk.NDirect])
	if !ref.Valid() {
		return nil
	}

	raw, err := l.ReadBlock(ref)
	if err != nil {
		return err
	}
	entries, err := ondisk.DecodeIndirectBlock(raw)
	if err != nil {
		return wfserr.IOError("free-indirect", "")
	}

	for _, e := range entries {
		r := ondisk.BlockRef(e)
		if r.Valid() {
			if err := l.FreeBlock(r); err != nil {
				return err
			}
		}
	}

	if err := l.FreeBlock(ref); err != nil {
		return err
	}
	in.SetBlockRef(ondisk.NDirect, ondisk.Nil)
	return nil
}
