package opsurface

import (
	"github.com/batra98/wfs/fsctx"
	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
)

// Mount attaches ctx's filesystem at mountpoint and returns the running
// fuse server. Callers should defer server.Unmount() and may call
// server.Wait() to block until the mount is torn down.
func Mount(mountpoint string, ctx *fsctx.Context, debug bool) (*fuse.Server, error) {
	root := NewRoot(ctx)
	opts := &fs.Options{
		MountOptions: fuse.MountOptions{
			Debug:  debug,
			FsName: "wfs",
			Name:   "wfs",
		},
	}
	return fs.Mount(mountpoint, root, opts)
}
