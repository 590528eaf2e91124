// Command raidfsd mounts a previously-formatted RAID array filesystem
// image as a FUSE filesystem.
package main

import (
	"fmt"
	"io"
	"log"
	"os"

	"github.com/batra98/wfs/fsctx"
	"github.com/batra98/wfs/opsurface"
	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:      "raidfsd",
		Usage:     "Mount a RAID array filesystem image",
		ArgsUsage: "DISK [DISK...] MOUNTPOINT",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "log every FUSE operation",
			},
			&cli.BoolFlag{
				Name:  "foreground",
				Usage: "block until the filesystem is unmounted instead of returning immediately",
				Value: true,
			},
		},
		Action: runMount,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatalf("raidfsd: %s", err)
	}
}

func runMount(c *cli.Context) error {
	args := c.Args().Slice()
	if len(args) < 3 {
		return fmt.Errorf("usage: raidfsd DISK [DISK...] MOUNTPOINT (need at least 2 disks and a mountpoint)")
	}
	diskPaths, mountpoint := args[:len(args)-1], args[len(args)-1]

	files := make([]*os.File, 0, len(diskPaths))
	defer func() {
		for _, f := range files {
			_ = f.Close()
		}
	}()

	streams := make([]io.ReadWriteSeeker, len(diskPaths))
	for i, p := range diskPaths {
		f, err := os.OpenFile(p, os.O_RDWR, 0o644)
		if err != nil {
			return fmt.Errorf("open disk %q: %w", p, err)
		}
		files = append(files, f)
		streams[i] = f
	}

	ctx, err := fsctx.Mount(streams)
	if err != nil {
		return fmt.Errorf("mount filesystem image: %w", err)
	}

	server, err := opsurface.Mount(mountpoint, ctx, c.Bool("debug"))
	if err != nil {
		return fmt.Errorf("mount FUSE at %q: %w", mountpoint, err)
	}

	log.Printf("raidfsd: mounted at %s", mountpoint)
	if c.Bool("foreground") {
		server.Wait()
	}
	return nil
}
