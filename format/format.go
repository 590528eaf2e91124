// Package format implements the formatter: laying out a fresh superblock,
// empty bitmaps (with inode 0 pre-allocated), and a root directory inode
// identically on every disk in the array.
package format

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"io"
	"time"

	"github.com/batra98/wfs/diskio"
	"github.com/batra98/wfs/ondisk"
)

// Options controls one format run.
type Options struct {
	RaidMode      uint32
	NumInodes     uint32
	NumDataBlocks uint32
}

// RequiredSize returns the number of bytes each disk must be at least,
// given the inode and data block counts. Like Format, it first rounds
// both counts up to a multiple of 32.
func RequiredSize(numInodes, numDataBlocks uint32) int64 {
	numInodes = uint32(ondisk.RoundUp32(uint64(numInodes)))
	numDataBlocks = uint32(ondisk.RoundUp32(uint64(numDataBlocks)))
	sb := &ondisk.Superblock{NumInodes: uint64(numInodes), NumDataBlocks: uint64(numDataBlocks)}
	_, _, _, dblocksPtr := layout(sb)
	return int64(dblocksPtr) + int64(numDataBlocks)*ondisk.BlockSize
}

func layout(sb *ondisk.Superblock) (ibitmap, dbitmap, iblocks, dblocks uint64) {
	ibitmap = ondisk.SuperblockSize
	dbitmap = ibitmap + sb.InodeBitmapSize()
	iblocks = ondisk.AlignToBlock(dbitmap + sb.DataBitmapSize())
	dblocks = ondisk.AlignToBlock(iblocks + sb.NumInodes*ondisk.BlockSize)
	return
}

// Format initializes every disk in streams identically (aside from each
// disk's DiskIndex/DiskID identity fields): superblock, empty bitmaps
// with inode 0 marked allocated, and a root directory inode. Every
// supplied disk must already exist and be at least RequiredSize bytes;
// counts are rounded up to a multiple of 32 before sizing.
func Format(streams []io.ReadWriteSeeker, opts Options) error {
	if len(streams) < 2 {
		return fmt.Errorf("format: at least 2 disks required, got %d", len(streams))
	}

	numInodes := uint32(ondisk.RoundUp32(uint64(opts.NumInodes)))
	numDataBlocks := uint32(ondisk.RoundUp32(uint64(opts.NumDataBlocks)))

	probe := &ondisk.Superblock{NumInodes: uint64(numInodes), NumDataBlocks: uint64(numDataBlocks)}
	ibitmapPtr, dbitmapPtr, iblocksPtr, dblocksPtr := layout(probe)
	required := int64(dblocksPtr) + int64(numDataBlocks)*ondisk.BlockSize

	disks := make(diskio.Array, len(streams))
	for i, s := range streams {
		size, err := diskio.DetermineSize(s)
		if err != nil {
			return fmt.Errorf("format: determine size of disk %d: %w", i, err)
		}
		if size < required {
			return fmt.Errorf("format: disk %d is too small: have %d bytes, need %d", i, size, required)
		}
		disks[i] = diskio.New(s, size)
	}

	now := time.Now().Unix()

	for i, d := range disks {
		diskID, err := randomDiskID()
		if err != nil {
			return fmt.Errorf("format: generate disk id: %w", err)
		}

		sb := &ondisk.Superblock{
			NumInodes:     uint64(numInodes),
			NumDataBlocks: uint64(numDataBlocks),
			IBitmapPtr:    ibitmapPtr,
			DBitmapPtr:    dbitmapPtr,
			IBlocksPtr:    iblocksPtr,
			DBlocksPtr:    dblocksPtr,
			RaidMode:      opts.RaidMode,
			DiskIndex:     uint32(i),
			TotalDisks:    uint32(len(disks)),
			DiskID:        diskID,
		}
		if err := d.WriteAt(0, sb.Encode()); err != nil {
			return fmt.Errorf("format: write superblock to disk %d: %w", i, err)
		}

		inodeBitmap := make([]byte, sb.InodeBitmapSize())
		inodeBitmap[0] |= 1 // inode 0, the root directory, is always allocated
		if err := d.WriteAt(int64(sb.IBitmapPtr), inodeBitmap); err != nil {
			return fmt.Errorf("format: write inode bitmap to disk %d: %w", i, err)
		}

		dataBitmap := make([]byte, sb.DataBitmapSize())
		if err := d.WriteAt(int64(sb.DBitmapPtr), dataBitmap); err != nil {
			return fmt.Errorf("format: write data bitmap to disk %d: %w", i, err)
		}

		root := &ondisk.Inode{
			Num:    0,
			Mode:   0o040755,
			UID:    0,
			GID:    0,
			Size:   0,
			Nlinks: 2,
			Atim:   now,
			Mtim:   now,
			Ctim:   now,
			Blocks: ondisk.NewBlocks(),
		}
		if err := d.WriteAt(int64(sb.IBlocksPtr), root.Encode()); err != nil {
			return fmt.Errorf("format: write root inode to disk %d: %w", i, err)
		}
	}
	return nil
}

func randomDiskID() (uint32, error) {
	var buf [4]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(buf[:]), nil
}
