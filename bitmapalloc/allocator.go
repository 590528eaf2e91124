// Package bitmapalloc implements the first-fit bitmap allocator shared by
// the inode table and the data block region: one bit per allocatable
// unit, little-endian within a byte, persisted as a whole-bitmap rewrite
// on every mutation.
package bitmapalloc

import (
	"fmt"

	bitmap "github.com/boljen/go-bitmap"

	"github.com/batra98/wfs/wfserr"
)

// PersistFunc writes the whole bitmap back to its backing storage. The
// caller supplies this so the allocator stays agnostic of the RAID
// mapper and byte offset its bitmap lives at.
type PersistFunc func(data []byte) error

// Allocator is a single bitmap: either the inode bitmap or the
// data-block bitmap for one filesystem.
type Allocator struct {
	bm       bitmap.Bitmap
	capacity uint32
	persist  PersistFunc
}

// New constructs an Allocator over capacity bits, loading its initial
// state from existing (which must be exactly ceil(capacity/8) bytes, as
// read from disk), and persisting future mutations through persist.
func New(capacity uint32, existing []byte, persist PersistFunc) (*Allocator, error) {
	want := int((capacity + 7) / 8)
	if len(existing) != want {
		return nil, fmt.Errorf("bitmapalloc: expected %d bytes for %d bits, got %d", want, capacity, len(existing))
	}
	buf := make([]byte, want)
	copy(buf, existing)
	return &Allocator{
		bm:       bitmap.Bitmap(buf),
		capacity: capacity,
		persist:  persist,
	}, nil
}

// NewEmpty constructs an Allocator over capacity bits, all clear.
func NewEmpty(capacity uint32, persist PersistFunc) *Allocator {
	return &Allocator{
		bm:       bitmap.New(int(capacity)),
		capacity: capacity,
		persist:  persist,
	}
}

// Allocate scans bits from index 0 upward, sets the first clear bit,
// persists the whole bitmap, and returns the index. Returns ENOSPC if
// every bit is set.
func (a *Allocator) Allocate() (uint32, error) {
	for i := uint32(0); i < a.capacity; i++ {
		if !a.bm.Get(int(i)) {
			a.bm.Set(int(i), true)
			if err := a.persist(a.bm.Data(false)); err != nil {
				a.bm.Set(int(i), false)
				return 0, err
			}
			return i, nil
		}
	}
	return 0, wfserr.NoSpace("allocate", "")
}

// Free clears the bit at idx and persists. Freeing an out-of-range or
// already-clear index is treated as a caller bug: it returns an error
// rather than corrupting state, but does not panic.
func (a *Allocator) Free(idx uint32) error {
	if idx >= a.capacity {
		return wfserr.InvalidArg("free", fmt.Sprintf("index %d", idx))
	}
	if !a.bm.Get(int(idx)) {
		return wfserr.AlreadyFree("free", fmt.Sprintf("index %d", idx))
	}
	a.bm.Set(int(idx), false)
	return a.persist(a.bm.Data(false))
}

// IsSet reports whether idx is currently allocated.
func (a *Allocator) IsSet(idx uint32) bool {
	if idx >= a.capacity {
		return false
	}
	return a.bm.Get(int(idx))
}

// Count returns the number of allocated bits and the total capacity.
func (a *Allocator) Count() (used, total uint32) {
	for i := uint32(0); i < a.capacity; i++ {
		if a.bm.Get(int(i)) {
			used++
		}
	}
	return used, a.capacity
}

// Bytes returns the raw bitmap bytes, e.g. for writing out at format
// time.
func (a *Allocator) Bytes() []byte {
	return a.bm.Data(false)
}

// MarkAllocated force-sets a bit without going through Allocate's
// first-fit scan, used by the formatter to reserve inode 0 for the root
// directory up front.
func (a *Allocator) MarkAllocated(idx uint32) error {
	if idx >= a.capacity {
		return wfserr.InvalidArg("mark-allocated", fmt.Sprintf("index %d", idx))
	}
	a.bm.Set(int(idx), true)
	return a.persist(a.bm.Data(false))
}
