// Package fsctx threads the filesystem's mutable state -- the
// superblock, the disk array, the RAID mapper, both bitmap allocators,
// the inode table, the data block layer, and the path resolver -- as a
// single explicit value, rather than as ambient global state, and
// implements every operation in the operation surface's contract in
// terms of the lower layers.
package fsctx

import (
	"sync"
	"time"

	"github.com/batra98/wfs/bitmapalloc"
	"github.com/batra98/wfs/datablock"
	"github.com/batra98/wfs/inodetbl"
	"github.com/batra98/wfs/ondisk"
	"github.com/batra98/wfs/pathwalk"
	"github.com/batra98/wfs/raid"
	"github.com/batra98/wfs/wfserr"
)

const (
	ModeTypeMask = 0o170000
	ModeDir      = 0o040000
	ModeRegular  = 0o100000
)

// Attr is the subset of inode fields the operation surface reports back
// to the driver for getattr/lookup/create.
type Attr struct {
	InodeNum int32
	Mode     uint32
	Nlinks   uint32
	Size     uint64
	UID      uint32
	GID      uint32
	Atim     int64
	Mtim     int64
	Ctim     int64
}

func (a Attr) IsDir() bool { return a.Mode&ModeTypeMask == ModeDir }

func attrFromInode(in *ondisk.Inode) Attr {
	return Attr{
		InodeNum: in.Num,
		Mode:     in.Mode,
		Nlinks:   in.Nlinks,
		Size:     in.Size,
		UID:      in.UID,
		GID:      in.GID,
		Atim:     in.Atim,
		Mtim:     in.Mtim,
		Ctim:     in.Ctim,
	}
}

// Stat is the filesystem-wide capacity/usage report for statfs.
type Stat struct {
	BlockSize     uint64
	TotalInodes   uint32
	FreeInodes    uint32
	TotalBlocks   uint32
	FreeBlocks    uint32
	MaxNameLength uint32
}

// Context is the single value every operation runs against. The spec's
// single-threaded cooperative scheduling model is enforced here with one
// mutex: every exported method takes it for its whole duration.
type Context struct {
	mu sync.Mutex

	Superblock *ondisk.Superblock
	Mapper     *raid.Mapper
	InodeAlloc *bitmapalloc.Allocator
	DataAlloc  *bitmapalloc.Allocator
	Inodes     *inodetbl.Table
	Blocks     *datablock.Layer
	Resolver   *pathwalk.Resolver
}

// New assembles a Context from an already-probed superblock and disk
// array. Use Mount to probe disks and construct a Context in one step.
func New(sb *ondisk.Superblock, mapper *raid.Mapper, inodeBitmap, dataBitmap []byte) (*Context, error) {
	c := &Context{Superblock: sb, Mapper: mapper}

	c.InodeAlloc = mustAllocator(uint32(sb.NumInodes), inodeBitmap, func(data []byte) error {
		return mapper.WriteMeta(int64(sb.IBitmapPtr), data)
	})
	c.DataAlloc = mustAllocator(uint32(sb.NumDataBlocks), dataBitmap, func(data []byte) error {
		return mapper.WriteMeta(int64(sb.DBitmapPtr), data)
	})

	c.Inodes = inodetbl.New(mapper, sb.IBlocksPtr, c.InodeAlloc)
	c.Blocks = datablock.New(mapper, sb.DBlocksPtr, c.DataAlloc, c.Inodes)
	c.Resolver = pathwalk.New(c.Inodes, c.Blocks)
	return c, nil
}

func mustAllocator(capacity uint32, existing []byte, persist bitmapalloc.PersistFunc) *bitmapalloc.Allocator {
	a, err := bitmapalloc.New(capacity, existing, persist)
	if err != nil {
		// existing is exactly what DataBitmapSize/InodeBitmapSize computed;
		// a mismatch here means the on-disk image is corrupt in a way that's
		// a fatal startup condition, not a recoverable operation error.
		panic(err)
	}
	return a
}

func now() int64 { return time.Now().Unix() }

// Getattr resolves path and reports its inode's attributes.
func (c *Context) Getattr(path string) (Attr, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	num, err := c.Resolver.Resolve(path)
	if err != nil {
		return Attr{}, err
	}
	in, err := c.Inodes.Read(num)
	if err != nil {
		return Attr{}, err
	}
	return attrFromInode(in), nil
}

// Readdir resolves path, requires a directory, and returns every name in
// it including the synthesized "." and "..".
func (c *Context) Readdir(path string) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	num, err := c.Resolver.Resolve(path)
	if err != nil {
		return nil, err
	}
	dir, err := c.Inodes.Read(num)
	if err != nil {
		return nil, err
	}
	if dir.Mode&ModeTypeMask != ModeDir {
		return nil, wfserr.NotDir("readdir", path)
	}

	entries, err := c.Blocks.ListEntries(dir)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(entries)+2)
	names = append(names, ".", "..")
	for _, e := range entries {
		names = append(names, e.NameString())
	}
	return names, nil
}

func (c *Context) createChild(path string, mode uint32, uid, gid uint32, isDir bool) (Attr, error) {
	parentPath, name, err := pathwalk.Split(path)
	if err != nil {
		return Attr{}, err
	}
	parentNum, err := c.Resolver.Resolve(parentPath)
	if err != nil {
		return Attr{}, err
	}
	parent, err := c.Inodes.Read(parentNum)
	if err != nil {
		return Attr{}, err
	}
	if parent.Mode&ModeTypeMask != ModeDir {
		return Attr{}, wfserr.NotDir("create", parentPath)
	}

	if dup, err := c.Blocks.CheckDuplicate(parent, name); err != nil {
		return Attr{}, err
	} else if dup {
		return Attr{}, wfserr.Exists("create", path)
	}

	childNum, err := c.Inodes.Allocate(mode, uid, gid, now(), isDir)
	if err != nil {
		return Attr{}, err
	}

	if err := c.Blocks.AddEntry(parentNum, parent, name, ondisk.BlockRef(childNum), isDir); err != nil {
		return Attr{}, err
	}

	child, err := c.Inodes.Read(childNum)
	if err != nil {
		return Attr{}, err
	}
	return attrFromInode(child), nil
}

// Mkdir splits path into parent+name, requires the parent be a
// directory, rejects a duplicate name with EEXIST, then allocates and
// links a new directory inode.
func (c *Context) Mkdir(path string, perm uint32, uid, gid uint32) (Attr, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.createChild(path, ModeDir|(perm&^ModeTypeMask), uid, gid, true)
}

// Mknod is Mkdir's regular-file counterpart; dev is accepted for
// interface symmetry but unused, matching the spec's "dev unused".
func (c *Context) Mknod(path string, perm uint32, uid, gid uint32, dev uint32) (Attr, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.createChild(path, ModeRegular|(perm&^ModeTypeMask), uid, gid, false)
}

// Read resolves path, requires a regular file, and copies up to
// len(dest) bytes from offset, clipped to the file's size.
func (c *Context) Read(path string, dest []byte, offset int64) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	num, err := c.Resolver.Resolve(path)
	if err != nil {
		return 0, err
	}
	in, err := c.Inodes.Read(num)
	if err != nil {
		return 0, err
	}
	if in.Mode&ModeTypeMask != ModeRegular {
		return 0, wfserr.IsDir("read", path)
	}
	return c.Blocks.ReadFile(in, dest, offset)
}

// Write resolves path, requires a regular file, allocates blocks as
// needed, splices data at offset, and extends the file's size if the
// write grows it.
func (c *Context) Write(path string, data []byte, offset int64) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	num, err := c.Resolver.Resolve(path)
	if err != nil {
		return 0, err
	}
	in, err := c.Inodes.Read(num)
	if err != nil {
		return 0, err
	}
	if in.Mode&ModeTypeMask != ModeRegular {
		return 0, wfserr.IsDir("write", path)
	}
	return c.Blocks.WriteFile(num, in, data, offset)
}

func (c *Context) unlinkOrRmdir(path string, wantDir bool) error {
	parentPath, name, err := pathwalk.Split(path)
	if err != nil {
		return err
	}
	parentNum, err := c.Resolver.Resolve(parentPath)
	if err != nil {
		return err
	}
	parent, err := c.Inodes.Read(parentNum)
	if err != nil {
		return err
	}
	if parent.Mode&ModeTypeMask != ModeDir {
		return wfserr.NotDir("remove", parentPath)
	}

	targetRef, err := c.Blocks.FindEntry(parent, name)
	if err != nil {
		return wfserr.NotFound("remove", path)
	}
	target, err := c.Inodes.Read(int32(targetRef))
	if err != nil {
		return err
	}

	isDir := target.Mode&ModeTypeMask == ModeDir
	if wantDir && !isDir {
		return wfserr.NotDir("rmdir", path)
	}
	if !wantDir && isDir {
		return wfserr.IsDir("unlink", path)
	}
	if wantDir {
		empty, err := c.Blocks.IsEmpty(target)
		if err != nil {
			return err
		}
		if !empty {
			return wfserr.NotEmpty("rmdir", path)
		}
	}

	if err := c.Inodes.Free(int32(targetRef), c.Blocks); err != nil {
		return err
	}
	return c.Blocks.RemoveEntry(parentNum, parent, targetRef, isDir)
}

// Unlink removes a regular file: the target must not be a directory.
func (c *Context) Unlink(path string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.unlinkOrRmdir(path, false)
}

// Rmdir removes an empty directory: the target must be a directory and
// contain no live entries.
func (c *Context) Rmdir(path string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.unlinkOrRmdir(path, true)
}

// Lookup resolves name within the directory named by dirInodeNum,
// returning its attributes. It resolves a single component without
// walking a path from the root.
func (c *Context) Lookup(dirInodeNum int32, name string) (Attr, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	num, err := c.Resolver.FindEntry(dirInodeNum, name)
	if err != nil {
		return Attr{}, err
	}
	in, err := c.Inodes.Read(num)
	if err != nil {
		return Attr{}, err
	}
	return attrFromInode(in), nil
}

// Statfs reports filesystem-wide capacity and usage, computed by
// popcount over both bitmaps.
func (c *Context) Statfs() Stat {
	c.mu.Lock()
	defer c.mu.Unlock()

	usedInodes, totalInodes := c.InodeAlloc.Count()
	usedBlocks, totalBlocks := c.DataAlloc.Count()
	return Stat{
		BlockSize:     ondisk.BlockSize,
		TotalInodes:   totalInodes,
		FreeInodes:    totalInodes - usedInodes,
		TotalBlocks:   totalBlocks,
		FreeBlocks:    totalBlocks - usedBlocks,
		MaxNameLength: ondisk.MaxName - 1,
	}
}
