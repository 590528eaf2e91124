// Package pathwalk implements path resolution: turning a slash-delimited
// absolute path into an inode index by walking directory entries from
// the root.
package pathwalk

import (
	"strings"

	"github.com/batra98/wfs/datablock"
	"github.com/batra98/wfs/inodetbl"
	"github.com/batra98/wfs/wfserr"
)

const RootInode int32 = 0

// Resolver walks paths against a given inode table and data block layer.
type Resolver struct {
	inodes *inodetbl.Table
	blocks *datablock.Layer
}

func New(inodes *inodetbl.Table, blocks *datablock.Layer) *Resolver {
	return &Resolver{inodes: inodes, blocks: blocks}
}

// Resolve converts an absolute path into an inode index. "/" resolves to
// the root inode.
func (r *Resolver) Resolve(path string) (int32, error) {
	if path == "" || path[0] != '/' {
		return 0, wfserr.InvalidArg("resolve", path)
	}

	current := RootInode
	for _, component := range strings.Split(path, "/") {
		if component == "" {
			continue
		}
		next, err := r.FindEntry(current, component)
		if err != nil {
			return 0, wfserr.NotFound("resolve", path)
		}
		current = next
	}
	return current, nil
}

// FindEntry reads dirInodeNum's directory and looks up name among its
// live entries.
func (r *Resolver) FindEntry(dirInodeNum int32, name string) (int32, error) {
	dir, err := r.inodes.Read(dirInodeNum)
	if err != nil {
		return 0, err
	}
	ref, err := r.blocks.FindEntry(dir, name)
	if err != nil {
		return 0, err
	}
	return int32(ref), nil
}

// Split divides an absolute path into its parent directory path and
// final component, the way mkdir/mknod/unlink/rmdir need to resolve the
// parent and then operate on the name within it.
func Split(path string) (parent string, name string, err error) {
	if path == "" || path[0] != '/' {
		return "", "", wfserr.InvalidArg("split-path", path)
	}
	trimmed := strings.TrimRight(path, "/")
	if trimmed == "" {
		return "", "", wfserr.InvalidArg("split-path", path)
	}
	idx := strings.LastIndexByte(trimmed, '/')
	name = trimmed[idx+1:]
	if name == "" {
		return "", "", wfserr.InvalidArg("split-path", path)
	}
	parent = trimmed[:idx]
	if parent == "" {
		parent = "/"
	}
	return parent, name, nil
}
