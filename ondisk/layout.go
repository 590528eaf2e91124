// Package ondisk defines the exact binary layout shared by every disk in
// the array: the superblock, the inode record, and the directory entry
// record, plus the offset arithmetic that locates them. Every struct here
// is encoded with encoding/binary.LittleEndian and carries no implicit
// padding; field order is the on-disk field order.
package ondisk

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

const (
	// BlockSize is the fixed compile-time block size shared by every
	// on-disk region: the inode table (one block per inode), the data
	// block region, and the unit the bitmaps allocate in.
	BlockSize = 512

	// NBlocks is the size of an inode's blocks[] array: NDirect direct
	// slots plus one trailing indirect slot.
	NBlocks = 8
	NDirect = NBlocks - 1

	// MaxName is the longest name (including the NUL terminator) a
	// directory entry can hold. Chosen so DentryOnDisk packs to exactly
	// 32 bytes, a power of two.
	MaxName = 28

	// IndirectEntries is the number of block indices an indirect block
	// can hold.
	IndirectEntries = BlockSize / 4

	// RoundAlloc is the multiple inode and data-block counts round up to
	// at format time.
	RoundAlloc = 32
)

// RAID modes, matching the superblock's RaidMode field.
const (
	ModeStripe uint32 = iota
	ModeMirror
	ModeVerifiedMirror
)

func RoundUp32(n uint64) uint64 {
	if n%RoundAlloc == 0 {
		return n
	}
	return n + (RoundAlloc - n%RoundAlloc)
}

// AlignToBlock rounds off up to the next multiple of BlockSize.
func AlignToBlock(off uint64) uint64 {
	rem := off % BlockSize
	if rem == 0 {
		return off
	}
	return off + (BlockSize - rem)
}

// BlockRef is a non-nullable index newtype over the raw signed 32-bit
// indices used for inode.blocks[], dentry.num, and indirect-block
// entries. Nil is the -1 sentinel; every other value is a valid index.
type BlockRef int32

const Nil BlockRef = -1

func (b BlockRef) Valid() bool   { return b != Nil }
func (b BlockRef) Int32() int32  { return int32(b) }
func (b BlockRef) String() string {
	if !b.Valid() {
		return "nil"
	}
	return fmt.Sprintf("%d", int32(b))
}

// Superblock is the fixed header written at byte 0 of every disk.
type Superblock struct {
	NumInodes     uint64
	NumDataBlocks uint64
	IBitmapPtr    uint64
	DBitmapPtr    uint64
	IBlocksPtr    uint64
	DBlocksPtr    uint64
	RaidMode      uint32
	DiskIndex     uint32
	TotalDisks    uint32
	DiskID        uint32
}

// SuperblockSize is the exact on-disk byte size of Superblock.
const SuperblockSize = 6*8 + 4*4

// InodeBitmapSize returns the byte length of the inode bitmap for a
// superblock with the given inode capacity.
func (sb *Superblock) InodeBitmapSize() uint64 {
	return (sb.NumInodes + 7) / 8
}

// DataBitmapSize returns the byte length of the data-block bitmap for a
// superblock with the given data-block capacity.
func (sb *Superblock) DataBitmapSize() uint64 {
	return (sb.NumDataBlocks + 7) / 8
}

// Encode serializes the superblock to its fixed on-disk representation.
func (sb *Superblock) Encode() []byte {
	buf := new(bytes.Buffer)
	buf.Grow(SuperblockSize)
	_ = binary.Write(buf, binary.LittleEndian, sb)
	return buf.Bytes()
}

// DecodeSuperblock parses a Superblock from raw bytes.
func DecodeSuperblock(data []byte) (*Superblock, error) {
	if len(data) < SuperblockSize {
		return nil, fmt.Errorf("superblock buffer too small: got %d bytes, need %d", len(data), SuperblockSize)
	}
	sb := &Superblock{}
	r := bytes.NewReader(data[:SuperblockSize])
	if err := binary.Read(r, binary.LittleEndian, sb); err != nil {
		return nil, err
	}
	return sb, nil
}

// Inode is the fixed-size-in-one-block record stored in the inode table.
type Inode struct {
	Num    int32
	Mode   uint32
	UID    uint32
	GID    uint32
	Size   uint64
	Nlinks uint32
	Atim   int64
	Mtim   int64
	Ctim   int64
	Blocks [NBlocks]int32
}

// InodeRecordSize is the exact on-disk byte size of the Inode fields
// that are actually serialized; the remainder of the inode's block is
// reserved padding, matching the spec's "each occupies one full block;
// the record is smaller, the rest is reserved".
const InodeRecordSize = 4 + 4 + 4 + 4 + 8 + 4 + 8 + 8 + 8 + NBlocks*4

// BlockRefs returns the direct+indirect blocks array as typed BlockRefs.
func (in *Inode) BlockRefs() [NBlocks]BlockRef {
	var out [NBlocks]BlockRef
	for i, v := range in.Blocks {
		out[i] = BlockRef(v)
	}
	return out
}

func (in *Inode) SetBlockRef(i int, ref BlockRef) {
	in.Blocks[i] = int32(ref)
}

// Encode serializes the inode into a full BlockSize buffer, zero-padded.
func (in *Inode) Encode() []byte {
	buf := make([]byte, BlockSize)
	w := bytes.NewBuffer(buf[:0])
	_ = binary.Write(w, binary.LittleEndian, in)
	return buf
}

// DecodeInode parses an Inode from the leading InodeRecordSize bytes of a
// block-sized buffer.
func DecodeInode(data []byte) (*Inode, error) {
	if len(data) < InodeRecordSize {
		return nil, fmt.Errorf("inode buffer too small: got %d bytes, need %d", len(data), InodeRecordSize)
	}
	in := &Inode{}
	r := bytes.NewReader(data[:InodeRecordSize])
	if err := binary.Read(r, binary.LittleEndian, in); err != nil {
		return nil, err
	}
	return in, nil
}

// NewBlocks returns an inode blocks[] array fully set to the unallocated
// sentinel, matching allocate_and_init_inode's "all blocks[] set to -1".
func NewBlocks() [NBlocks]int32 {
	var b [NBlocks]int32
	for i := range b {
		b[i] = int32(Nil)
	}
	return b
}

// Dentry is the fixed-size directory entry record packed into a
// directory's data blocks.
type Dentry struct {
	Name [MaxName]byte
	Num  int32
}

// DentrySize is the exact on-disk size of a Dentry: MaxName bytes of
// name plus a 4-byte inode index, 32 bytes total.
const DentrySize = MaxName + 4

// DentriesPerBlock is the number of directory entry slots per data
// block.
const DentriesPerBlock = BlockSize / DentrySize

// NewDentry builds a Dentry for name/num, truncating name to fit and
// NUL-terminating it.
func NewDentry(name string, num BlockRef) Dentry {
	var d Dentry
	n := copy(d.Name[:], name)
	if n < len(d.Name) {
		d.Name[n] = 0
	} else {
		d.Name[len(d.Name)-1] = 0
	}
	d.Num = int32(num)
	return d
}

// NameString returns the NUL-terminated name as a Go string.
func (d *Dentry) NameString() string {
	n := bytes.IndexByte(d.Name[:], 0)
	if n < 0 {
		n = len(d.Name)
	}
	return string(d.Name[:n])
}

func (d *Dentry) Free() bool { return d.Num == int32(Nil) }

// Encode serializes a single dentry.
func (d *Dentry) Encode() []byte {
	buf := new(bytes.Buffer)
	buf.Grow(DentrySize)
	_ = binary.Write(buf, binary.LittleEndian, d)
	return buf.Bytes()
}

// DecodeDentry parses a single dentry from its exact-size encoding.
func DecodeDentry(data []byte) (Dentry, error) {
	if len(data) < DentrySize {
		return Dentry{}, fmt.Errorf("dentry buffer too small: got %d bytes, need %d", len(data), DentrySize)
	}
	var d Dentry
	r := bytes.NewReader(data[:DentrySize])
	if err := binary.Read(r, binary.LittleEndian, &d); err != nil {
		return Dentry{}, err
	}
	return d, nil
}

// DecodeDentries splits a whole data block into its DentriesPerBlock
// slots.
func DecodeDentries(block []byte) ([]Dentry, error) {
	out := make([]Dentry, 0, DentriesPerBlock)
	for i := 0; i < DentriesPerBlock; i++ {
		off := i * DentrySize
		d, err := DecodeDentry(block[off : off+DentrySize])
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

// EncodeDentries packs a full set of DentriesPerBlock entries back into a
// BlockSize buffer.
func EncodeDentries(entries []Dentry) []byte {
	buf := make([]byte, BlockSize)
	for i, d := range entries {
		copy(buf[i*DentrySize:], d.Encode())
	}
	return buf
}

// NewEmptyDentryBlock returns a block-sized buffer where every slot's num
// is the -1 sentinel, matching "fill the block with -1 sentinels".
func NewEmptyDentryBlock() []byte {
	entries := make([]Dentry, DentriesPerBlock)
	for i := range entries {
		entries[i] = NewDentry("", Nil)
	}
	return EncodeDentries(entries)
}

// EncodeIndirectBlock packs IndirectEntries signed 32-bit block indices
// into a BlockSize buffer.
func EncodeIndirectBlock(entries [IndirectEntries]int32) []byte {
	buf := new(bytes.Buffer)
	buf.Grow(BlockSize)
	_ = binary.Write(buf, binary.LittleEndian, entries)
	return buf.Bytes()
}

// DecodeIndirectBlock parses a BlockSize buffer into IndirectEntries
// signed 32-bit block indices.
func DecodeIndirectBlock(data []byte) ([IndirectEntries]int32, error) {
	var entries [IndirectEntries]int32
	if len(data) < BlockSize {
		return entries, fmt.Errorf("indirect block buffer too small: got %d bytes, need %d", len(data), BlockSize)
	}
	r := bytes.NewReader(data[:BlockSize])
	if err := binary.Read(r, binary.LittleEndian, &entries); err != nil {
		return entries, err
	}
	return entries, nil
}

// NewIndirectBlockSentinel returns IndirectEntries entries all set to the
// -1 sentinel.
func NewIndirectBlockSentinel() [IndirectEntries]int32 {
	var entries [IndirectEntries]int32
	for i := range entries {
		entries[i] = int32(Nil)
	}
	return entries
}
