package fsctx

import (
	"fmt"
	"io"
	"sort"

	"github.com/batra98/wfs/diskio"
	"github.com/batra98/wfs/ondisk"
	"github.com/batra98/wfs/raid"
)

// Mount probes every disk's superblock, arranges them in DiskIndex
// order, validates that every disk agrees on the layout-defining fields,
// and assembles a ready-to-use Context. Disagreement among disks or a
// malformed superblock is a fatal startup condition, reported as a plain
// error for the caller's main() to print and exit nonzero on -- the spec
// treats "superblock mismatch" as fatal, not a recoverable operation
// error.
func Mount(streams []io.ReadWriteSeeker) (*Context, error) {
	if len(streams) < 2 {
		return nil, fmt.Errorf("mount: at least 2 disks required, got %d", len(streams))
	}

	type probed struct {
		disk *diskio.Disk
		sb   *ondisk.Superblock
	}

	probes := make([]probed, len(streams))
	for i, s := range streams {
		size, err := diskio.DetermineSize(s)
		if err != nil {
			return nil, fmt.Errorf("mount: determine size of disk %d: %w", i, err)
		}
		d := diskio.New(s, size)

		raw := make([]byte, ondisk.SuperblockSize)
		if err := d.ReadAt(0, raw); err != nil {
			return nil, fmt.Errorf("mount: read superblock of disk %d: %w", i, err)
		}
		sb, err := ondisk.DecodeSuperblock(raw)
		if err != nil {
			return nil, fmt.Errorf("mount: decode superblock of disk %d: %w", i, err)
		}
		probes[i] = probed{disk: d, sb: sb}
	}

	ref := probes[0].sb
	for i, p := range probes {
		if p.sb.RaidMode != ref.RaidMode ||
			p.sb.TotalDisks != ref.TotalDisks ||
			p.sb.NumInodes != ref.NumInodes ||
			p.sb.NumDataBlocks != ref.NumDataBlocks ||
			p.sb.IBitmapPtr != ref.IBitmapPtr ||
			p.sb.DBitmapPtr != ref.DBitmapPtr ||
			p.sb.IBlocksPtr != ref.IBlocksPtr ||
			p.sb.DBlocksPtr != ref.DBlocksPtr {
			return nil, fmt.Errorf("mount: disk %d superblock disagrees with disk 0's layout", i)
		}
	}
	if int(ref.TotalDisks) != len(probes) {
		return nil, fmt.Errorf("mount: superblock declares %d disks, %d supplied", ref.TotalDisks, len(probes))
	}

	sort.Slice(probes, func(i, j int) bool {
		return probes[i].sb.DiskIndex < probes[j].sb.DiskIndex
	})

	disks := make(diskio.Array, len(probes))
	for i, p := range probes {
		if int(p.sb.DiskIndex) != i {
			return nil, fmt.Errorf("mount: disk indices are not a dense [0,%d) permutation", len(probes))
		}
		disks[i] = p.disk
	}

	mapper := raid.New(disks, ref.RaidMode)

	inodeBitmap, err := mapper.ReadMeta(int64(ref.IBitmapPtr), int(ref.InodeBitmapSize()))
	if err != nil {
		return nil, fmt.Errorf("mount: read inode bitmap: %w", err)
	}
	dataBitmap, err := mapper.ReadMeta(int64(ref.DBitmapPtr), int(ref.DataBitmapSize()))
	if err != nil {
		return nil, fmt.Errorf("mount: read data bitmap: %w", err)
	}

	return New(ref, mapper, inodeBitmap, dataBitmap)
}
