// Package raid implements the logical-block-to-disk mapping and the
// replication/majority-read primitives used by every layer that touches
// the disk array.
//
// Two kinds of region go through a Mapper:
//
//   - Metadata (superblock, bitmaps, inode table): never striped. It
//     lives on disk 0 of a striped array and on every disk of a mirrored
//     array, per the data model's "both bitmaps live on disk 0 of a
//     striped array and on all disks of a mirrored array".
//   - Data blocks: striped round-robin in stripe mode, replicated in
//     mirror modes, via Locate.
package raid

import (
	"fmt"

	"github.com/batra98/wfs/diskio"
	"github.com/batra98/wfs/ondisk"
	multierror "github.com/hashicorp/go-multierror"
)

// Mapper translates logical block indices to (disk, physical block) pairs
// and provides the replication/majority-read primitives for mirrored
// modes. It holds no state beyond the array and mode; it is safe to
// share across the lifetime of a mounted filesystem.
type Mapper struct {
	Disks diskio.Array
	Mode  uint32
}

func New(disks diskio.Array, mode uint32) *Mapper {
	return &Mapper{Disks: disks, Mode: mode}
}

// Locate deterministically maps a data-block logical index to a disk
// index and a physical block index within that disk's data region,
// purely from RaidMode, len(Disks), and logical. It fails for a negative
// logical block index (a programming error upstream), an empty array, or
// an unknown RAID mode.
func (m *Mapper) Locate(logical int64) (diskIndex int, physical int64, err error) {
	if logical < 0 {
		return 0, 0, fmt.Errorf("raid: negative logical block index %d", logical)
	}
	n := int64(len(m.Disks))
	if n == 0 {
		return 0, 0, fmt.Errorf("raid: no disks in array")
	}

	switch m.Mode {
	case ondisk.ModeStripe:
		return int(logical % n), logical / n, nil
	case ondisk.ModeMirror, ondisk.ModeVerifiedMirror:
		return 0, logical, nil
	default:
		return 0, 0, fmt.Errorf("raid: unknown raid mode %d", m.Mode)
	}
}

// ReadMeta reads a metadata region (superblock, a bitmap, an inode
// record) at a raw byte offset. Under verified mirror this reads every
// disk and returns the plurality-agreed content; otherwise it reads disk
// 0, the sole/primary copy.
func (m *Mapper) ReadMeta(offset int64, length int) ([]byte, error) {
	if m.Mode == ondisk.ModeVerifiedMirror {
		return m.readVerified(offset, length)
	}
	buf := make([]byte, length)
	if err := m.Disks[0].ReadAt(offset, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// WriteMeta writes a metadata region at a raw byte offset to disk 0,
// replicating to every other disk under mirrored modes.
func (m *Mapper) WriteMeta(offset int64, data []byte) error {
	if err := m.Disks[0].WriteAt(offset, data); err != nil {
		return err
	}
	if m.Mode == ondisk.ModeMirror || m.Mode == ondisk.ModeVerifiedMirror {
		return m.Replicate(offset, data, 0)
	}
	return nil
}

// ReadDataBlock reads one BlockSize data block. dataPtr is the
// superblock's DBlocksPtr; logical is the data-region-relative block
// index (0 == dataPtr).
func (m *Mapper) ReadDataBlock(dataPtr uint64, logical int64) ([]byte, error) {
	diskIdx, phys, err := m.Locate(logical)
	if err != nil {
		return nil, err
	}
	offset := int64(dataPtr) + phys*ondisk.BlockSize

	if m.Mode == ondisk.ModeVerifiedMirror {
		return m.readVerified(offset, ondisk.BlockSize)
	}
	buf := make([]byte, ondisk.BlockSize)
	if err := m.Disks[diskIdx].ReadAt(offset, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// WriteDataBlock writes one BlockSize data block, replicating to every
// other disk under mirrored modes.
func (m *Mapper) WriteDataBlock(dataPtr uint64, logical int64, data []byte) error {
	if len(data) != ondisk.BlockSize {
		return fmt.Errorf("raid: WriteDataBlock requires exactly %d bytes, got %d", ondisk.BlockSize, len(data))
	}
	diskIdx, phys, err := m.Locate(logical)
	if err != nil {
		return err
	}
	offset := int64(dataPtr) + phys*ondisk.BlockSize

	if err := m.Disks[diskIdx].WriteAt(offset, data); err != nil {
		return err
	}
	if m.Mode == ondisk.ModeMirror || m.Mode == ondisk.ModeVerifiedMirror {
		return m.Replicate(offset, data, diskIdx)
	}
	return nil
}

// Replicate copies the exact byte range [offset, offset+len(data)) to
// every disk other than primaryDisk, byte-for-byte. It is the uniform
// replication primitive used after every mutating write under mirrored
// modes, operating on raw byte offsets so it applies uniformly to the
// superblock, bitmaps, the inode table, and data blocks.
func (m *Mapper) Replicate(offset int64, data []byte, primaryDisk int) error {
	var errs *multierror.Error
	for i, d := range m.Disks {
		if i == primaryDisk {
			continue
		}
		if err := d.WriteAt(offset, data); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("replicate to disk %d: %w", i, err))
		}
	}
	return errs.ErrorOrNil()
}

// readVerified reads the same region from every disk and returns the
// content agreed upon by a plurality of disks, ties breaking toward the
// lowest disk index. It only fails if no disk could be read at all.
func (m *Mapper) readVerified(offset int64, length int) ([]byte, error) {
	type candidate struct {
		data  string
		count int
		first int
	}
	votes := make(map[string]*candidate)
	var errs *multierror.Error

	for i, d := range m.Disks {
		buf := make([]byte, length)
		if err := d.ReadAt(offset, buf); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("read disk %d: %w", i, err))
			continue
		}
		key := string(buf)
		c, ok := votes[key]
		if !ok {
			votes[key] = &candidate{data: key, count: 1, first: i}
		} else {
			c.count++
		}
	}

	if len(votes) == 0 {
		return nil, errs.ErrorOrNil()
	}

	var best *candidate
	for _, c := range votes {
		if best == nil || c.count > best.count || (c.count == best.count && c.first < best.first) {
			best = c
		}
	}
	return []byte(best.data), nil
}
