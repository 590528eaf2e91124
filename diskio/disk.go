// Package diskio provides the byte-addressable backing-region abstraction
// the rest of the filesystem reads and writes through: one instance per
// disk file in the array.
package diskio

import (
	"fmt"
	"io"
)

// Disk wraps a single backing file (or any seekable read/write stream) as
// a byte-addressable region. It does not know about blocks, inodes, or
// RAID; it only checks bounds and performs the seek+read/write.
//
// The exposed Size field is informational only and should never be
// changed directly.
type Disk struct {
	Size   int64
	stream io.ReadWriteSeeker
}

// New wraps stream as a Disk of the given size. size should match the
// stream's actual length; callers that don't know it up front can pass
// DetermineSize's result.
func New(stream io.ReadWriteSeeker, size int64) *Disk {
	return &Disk{Size: size, stream: stream}
}

// DetermineSize seeks to the end of stream to discover its length,
// leaving the stream position at the end.
func DetermineSize(stream io.Seeker) (int64, error) {
	return stream.Seek(0, io.SeekEnd)
}

// CheckBounds reports an error if [offset, offset+length) falls outside
// the disk.
func (d *Disk) CheckBounds(offset int64, length int) error {
	if offset < 0 || length < 0 {
		return fmt.Errorf("negative offset/length: offset=%d length=%d", offset, length)
	}
	if offset+int64(length) > d.Size {
		return fmt.Errorf(
			"region [%d, %d) extends past end of disk (size %d)",
			offset, offset+int64(length), d.Size,
		)
	}
	return nil
}

// ReadAt reads exactly len(buf) bytes starting at offset.
func (d *Disk) ReadAt(offset int64, buf []byte) error {
	if err := d.CheckBounds(offset, len(buf)); err != nil {
		return err
	}
	if _, err := d.stream.Seek(offset, io.SeekStart); err != nil {
		return err
	}
	_, err := io.ReadFull(d.stream, buf)
	return err
}

// WriteAt writes data starting at offset.
func (d *Disk) WriteAt(offset int64, data []byte) error {
	if err := d.CheckBounds(offset, len(data)); err != nil {
		return err
	}
	if _, err := d.stream.Seek(offset, io.SeekStart); err != nil {
		return err
	}
	_, err := d.stream.Write(data)
	return err
}

// Array is the set of disks backing a mounted or formatted filesystem, in
// disk-index order.
type Array []*Disk

// Len returns the number of disks in the array.
func (a Array) Len() int { return len(a) }

// EqualSize reports whether every disk in the array has the same size.
func (a Array) EqualSize() bool {
	if len(a) == 0 {
		return true
	}
	first := a[0].Size
	for _, d := range a[1:] {
		if d.Size != first {
			return false
		}
	}
	return true
}
