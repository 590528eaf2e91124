// Package opsurface adapts fsctx.Context's path-keyed operations to
// go-fuse's per-node Inode tree: one Node per resolved path, translating
// wfserr errors to syscall.Errno and fsctx.Attr to fuse's wire attribute
// structs.
package opsurface

import (
	"context"
	"strings"
	"syscall"

	"github.com/batra98/wfs/fsctx"
	"github.com/batra98/wfs/wfserr"
	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
)

// Node is a go-fuse Inode embedder backed by a path into a mounted
// Context. The filesystem is stateless across opens -- every Read/Write
// re-resolves the path through the Context rather than caching a handle
// -- so Node also serves as its own FileHandle.
type Node struct {
	fs.Inode

	ctx  *fsctx.Context
	path string
}

var (
	_ fs.NodeGetattrer  = (*Node)(nil)
	_ fs.NodeLookuper   = (*Node)(nil)
	_ fs.NodeReaddirer  = (*Node)(nil)
	_ fs.NodeMkdirer    = (*Node)(nil)
	_ fs.NodeCreater    = (*Node)(nil)
	_ fs.NodeUnlinker   = (*Node)(nil)
	_ fs.NodeRmdirer    = (*Node)(nil)
	_ fs.NodeOpener     = (*Node)(nil)
	_ fs.NodeStatfser   = (*Node)(nil)
	_ fs.FileReader     = (*Node)(nil)
	_ fs.FileWriter     = (*Node)(nil)
)

// NewRoot builds the root node of the Inode tree for ctx.
func NewRoot(ctx *fsctx.Context) fs.InodeEmbedder {
	return &Node{ctx: ctx, path: "/"}
}

func (n *Node) childPath(name string) string {
	if n.path == "/" {
		return "/" + name
	}
	return n.path + "/" + name
}

func parentPath(p string) string {
	if p == "/" {
		return "/"
	}
	idx := strings.LastIndexByte(p, '/')
	if idx <= 0 {
		return "/"
	}
	return p[:idx]
}

func setAttr(a *fuse.Attr, attr fsctx.Attr) {
	a.Ino = uint64(attr.InodeNum)
	a.Size = attr.Size
	a.Blocks = (attr.Size + 511) / 512
	a.Mode = attr.Mode
	a.Nlink = attr.Nlinks
	a.Uid = attr.UID
	a.Gid = attr.GID
	a.Atime = uint64(attr.Atim)
	a.Mtime = uint64(attr.Mtim)
	a.Ctime = uint64(attr.Ctim)
}

func fillEntryOut(out *fuse.EntryOut, attr fsctx.Attr) {
	out.NodeId = uint64(attr.InodeNum)
	setAttr(&out.Attr, attr)
}

func callerIDs(ctx context.Context) (uid, gid uint32) {
	if caller, ok := fuse.FromContext(ctx); ok && caller != nil {
		return caller.Uid, caller.Gid
	}
	return 0, 0
}

func newChildInode(parent *fs.Inode, ctx context.Context, n *Node, attr fsctx.Attr) *fs.Inode {
	return parent.NewInode(ctx, n, fs.StableAttr{
		Mode: attr.Mode & syscall.S_IFMT,
		Ino:  uint64(attr.InodeNum),
	})
}

// Getattr reports the node's attributes.
func (n *Node) Getattr(ctx context.Context, f fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	attr, err := n.ctx.Getattr(n.path)
	if err != nil {
		return wfserr.Errno(err)
	}
	setAttr(&out.Attr, attr)
	return fs.OK
}

// Lookup resolves name within this directory.
func (n *Node) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	childPath := n.childPath(name)
	attr, err := n.ctx.Getattr(childPath)
	if err != nil {
		return nil, wfserr.Errno(err)
	}
	fillEntryOut(out, attr)
	child := &Node{ctx: n.ctx, path: childPath}
	return newChildInode(&n.Inode, ctx, child, attr), fs.OK
}

// Readdir lists this directory's entries, including "." and "..".
func (n *Node) Readdir(ctx context.Context) (fs.DirStream, syscall.Errno) {
	names, err := n.ctx.Readdir(n.path)
	if err != nil {
		return nil, wfserr.Errno(err)
	}

	entries := make([]fuse.DirEntry, 0, len(names))
	for _, name := range names {
		var targetPath string
		switch name {
		case ".":
			targetPath = n.path
		case "..":
			targetPath = parentPath(n.path)
		default:
			targetPath = n.childPath(name)
		}
		attr, err := n.ctx.Getattr(targetPath)
		if err != nil {
			return nil, wfserr.Errno(err)
		}
		entries = append(entries, fuse.DirEntry{
			Name: name,
			Ino:  uint64(attr.InodeNum),
			Mode: attr.Mode & syscall.S_IFMT,
		})
	}
	return fs.NewListDirStream(entries), fs.OK
}

// Mkdir creates a subdirectory.
func (n *Node) Mkdir(ctx context.Context, name string, mode uint32, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	uid, gid := callerIDs(ctx)
	attr, err := n.ctx.Mkdir(n.childPath(name), mode, uid, gid)
	if err != nil {
		return nil, wfserr.Errno(err)
	}
	fillEntryOut(out, attr)
	child := &Node{ctx: n.ctx, path: n.childPath(name)}
	return newChildInode(&n.Inode, ctx, child, attr), fs.OK
}

// Create makes and opens a new regular file.
func (n *Node) Create(ctx context.Context, name string, flags, mode uint32, out *fuse.EntryOut) (*fs.Inode, fs.FileHandle, uint32, syscall.Errno) {
	uid, gid := callerIDs(ctx)
	attr, err := n.ctx.Mknod(n.childPath(name), mode, uid, gid, 0)
	if err != nil {
		return nil, nil, 0, wfserr.Errno(err)
	}
	fillEntryOut(out, attr)
	child := &Node{ctx: n.ctx, path: n.childPath(name)}
	inode := newChildInode(&n.Inode, ctx, child, attr)
	return inode, child, 0, fs.OK
}

// Unlink removes a regular file from this directory.
func (n *Node) Unlink(ctx context.Context, name string) syscall.Errno {
	if err := n.ctx.Unlink(n.childPath(name)); err != nil {
		return wfserr.Errno(err)
	}
	return fs.OK
}

// Rmdir removes an empty subdirectory from this directory.
func (n *Node) Rmdir(ctx context.Context, name string) syscall.Errno {
	if err := n.ctx.Rmdir(n.childPath(name)); err != nil {
		return wfserr.Errno(err)
	}
	return fs.OK
}

// Open is a no-op: every operation re-resolves the path through Context,
// so the node serves as its own stateless file handle.
func (n *Node) Open(ctx context.Context, flags uint32) (fs.FileHandle, uint32, syscall.Errno) {
	return n, 0, fs.OK
}

// Read copies up to len(dest) bytes from off.
func (n *Node) Read(ctx context.Context, f fs.FileHandle, dest []byte, off int64) (fuse.ReadResult, syscall.Errno) {
	nRead, err := n.ctx.Read(n.path, dest, off)
	if err != nil {
		return nil, wfserr.Errno(err)
	}
	return fuse.ReadResultData(dest[:nRead]), fs.OK
}

// Write splices data into the file at off, growing it if necessary.
func (n *Node) Write(ctx context.Context, f fs.FileHandle, data []byte, off int64) (uint32, syscall.Errno) {
	written, err := n.ctx.Write(n.path, data, off)
	if err != nil {
		return 0, wfserr.Errno(err)
	}
	return uint32(written), fs.OK
}

// Statfs reports filesystem-wide capacity and usage.
func (n *Node) Statfs(ctx context.Context, out *fuse.StatfsOut) syscall.Errno {
	st := n.ctx.Statfs()
	out.Bsize = uint32(st.BlockSize)
	out.Blocks = uint64(st.TotalBlocks)
	out.Bfree = uint64(st.FreeBlocks)
	out.Bavail = uint64(st.FreeBlocks)
	out.Files = uint64(st.TotalInodes)
	out.Ffree = uint64(st.FreeInodes)
	out.NameLen = st.MaxNameLength
	return fs.OK
}
