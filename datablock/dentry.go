package datablock

import (
	"github.com/batra98/wfs/ondisk"
	"github.com/batra98/wfs/wfserr"
)

// AddEntry adds (name, target) to the directory parent (whose inode
// number is parentNum), walking all NBlocks slots -- directories never
// use the trailing slot as an indirect pointer, only ever as another
// direct block of directory entries, capping a directory at
// NBlocks*DentriesPerBlock entries. The parent's nlinks is incremented
// only when target is itself a directory, per POSIX ".." accounting.
func (l *Layer) AddEntry(parentNum int32, parent *ondisk.Inode, name string, target ondisk.BlockRef, targetIsDir bool) error {
	for i := 0; i < ondisk.NBlocks; i++ {
		ref := ondisk.BlockRef(parent.Blocks[i])

		if !ref.Valid() {
			newRef, err := l.AllocateBlock()
			if err != nil {
				return err
			}
			entries, err := ondisk.DecodeDentries(ondisk.NewEmptyDentryBlock())
			if err != nil {
				return wfserr.IOError("add-entry", name)
			}
			entries[0] = ondisk.NewDentry(name, target)
			if err := l.WriteBlock(newRef, ondisk.EncodeDentries(entries)); err != nil {
				return err
			}
			parent.SetBlockRef(i, newRef)
			return l.commitDirMutation(parentNum, parent, 1, targetIsDir)
		}

		raw, err := l.ReadBlock(ref)
		if err != nil {
			return err
		}
		entries, err := ondisk.DecodeDentries(raw)
		if err != nil {
			return wfserr.IOError("add-entry", name)
		}

		for j, e := range entries {
			if e.Free() {
				entries[j] = ondisk.NewDentry(name, target)
				if err := l.WriteBlock(ref, ondisk.EncodeDentries(entries)); err != nil {
					return err
				}
				return l.commitDirMutation(parentNum, parent, 1, targetIsDir)
			}
		}
	}
	return wfserr.NoSpace("add-entry", name)
}

// RemoveEntry clears the slot referencing target in parent, without
// compacting the block, decrementing nlinks only when the removed entry
// was itself a directory.
func (l *Layer) RemoveEntry(parentNum int32, parent *ondisk.Inode, target ondisk.BlockRef, targetWasDir bool) error {
	for i := 0; i < ondisk.NBlocks; i++ {
		ref := ondisk.BlockRef(parent.Blocks[i])
		if !ref.Valid() {
			continue
		}
		raw, err := l.ReadBlock(ref)
		if err != nil {
			return err
		}
		entries, err := ondisk.DecodeDentries(raw)
		if err != nil {
			return wfserr.IOError("remove-entry", "")
		}

		for j, e := range entries {
			if !e.Free() && ondisk.BlockRef(e.Num) == target {
				entries[j] = ondisk.NewDentry("", ondisk.Nil)
				if err := l.WriteBlock(ref, ondisk.EncodeDentries(entries)); err != nil {
					return err
				}
				return l.commitDirMutation(parentNum, parent, -1, targetWasDir)
			}
		}
	}
	return wfserr.NotFound("remove-entry", "")
}

// commitDirMutation applies the size delta (in dentry-sized units) and
// the nlinks delta (only for directory targets) and persists parent.
func (l *Layer) commitDirMutation(parentNum int32, parent *ondisk.Inode, sizeDeltaUnits int, isDir bool) error {
	if sizeDeltaUnits > 0 {
		parent.Size += uint64(sizeDeltaUnits) * ondisk.DentrySize
	} else if sizeDeltaUnits < 0 {
		dec := uint64(-sizeDeltaUnits) * ondisk.DentrySize
		if dec > parent.Size {
			parent.Size = 0
		} else {
			parent.Size -= dec
		}
	}
	if isDir {
		if sizeDeltaUnits > 0 {
			parent.Nlinks++
		} else if parent.Nlinks > 0 {
			parent.Nlinks--
		}
	}
	return l.inodes.Write(parentNum, parent)
}

// CheckDuplicate reports whether name already appears as a non-free
// entry in any of dir's allocated direct blocks.
func (l *Layer) CheckDuplicate(dir *ondisk.Inode, name string) (bool, error) {
	_, err := l.FindEntry(dir, name)
	if err == nil {
		return true, nil
	}
	if wfserr.Errno(err) == wfserr.NotFound("", "").Errno {
		return false, nil
	}
	return false, err
}

// FindEntry scans dir's allocated direct blocks for the first slot whose
// name matches, returning its inode number.
func (l *Layer) FindEntry(dir *ondisk.Inode, name string) (ondisk.BlockRef, error) {
	for i := 0; i < ondisk.NBlocks; i++ {
		ref := ondisk.BlockRef(dir.Blocks[i])
		if !ref.Valid() {
			continue
		}
		raw, err := l.ReadBlock(ref)
		if err != nil {
			return ondisk.Nil, err
		}
		entries, err := ondisk.DecodeDentries(raw)
		if err != nil {
			return ondisk.Nil, wfserr.IOError("find-entry", name)
		}
		for _, e := range entries {
			if !e.Free() && e.NameString() == name {
				return ondisk.BlockRef(e.Num), nil
			}
		}
	}
	return ondisk.Nil, wfserr.NotFound("find-entry", name)
}

// ListEntries returns every live (non-free) directory entry in dir. It
// does not synthesize "." or "..": that is the operation surface's job.
func (l *Layer) ListEntries(dir *ondisk.Inode) ([]ondisk.Dentry, error) {
	var out []ondisk.Dentry
	for i := 0; i < ondisk.NBlocks; i++ {
		ref := ondisk.BlockRef(dir.Blocks[i])
		if !ref.Valid() {
			continue
		}
		raw, err := l.ReadBlock(ref)
		if err != nil {
			return nil, err
		}
		entries, err := ondisk.DecodeDentries(raw)
		if err != nil {
			return nil, wfserr.IOError("readdir", "")
		}
		for _, e := range entries {
			if !e.Free() {
				out = append(out, e)
			}
		}
	}
	return out, nil
}

// IsEmpty reports whether dir has no live entries, excluding the
// synthetic "." and ".." this layer never persists.
func (l *Layer) IsEmpty(dir *ondisk.Inode) (bool, error) {
	entries, err := l.ListEntries(dir)
	if err != nil {
		return false, err
	}
	return len(entries) == 0, nil
}
