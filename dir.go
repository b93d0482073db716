package imgfs

// dir.go implements the directory and link layer (spec §4.6): a directory
// is a regular file whose content is a linear stream of DirEntry records,
// read forward from offset 0 until the first zero-first-byte sentinel.

// DirIterator is an explicit iterator object owning a directory descriptor
// and its current offset. It replaces the legacy get_entry_from(dir_or_null,
// ...) contract, which overloaded a single call as either "start a new
// iteration" or "continue the previous one" through a process-wide static
// cursor — brittle and re-entrancy-hostile (spec §9 Design Notes). A fresh
// DirIterator always starts at offset 0; there is no hidden global state.
type DirIterator struct {
	sess   *Session
	dir    *FileDescriptor
	offset int64
}

// Next returns the next non-tombstoned entry, or ok=false once the
// end-of-stream sentinel is reached.
func (it *DirIterator) Next() (name string, fdID int32, ok bool, err error) {
	var e DirEntry
	buf := make([]byte, direntRecordSize)
	for {
		n, err := it.sess.readFrom(it.dir, buf, it.offset)
		if err != nil {
			return "", 0, false, err
		}
		if n < direntRecordSize {
			return "", 0, false, nil
		}
		if err := e.UnmarshalBinary(buf); err != nil {
			return "", 0, false, err
		}
		it.offset += direntRecordSize
		if e.isSentinel() {
			return "", 0, false, nil
		}
		if e.isTombstone() {
			continue
		}
		return e.Name(), e.FdID, true, nil
	}
}

func (sess *Session) newDirIterator(dir *FileDescriptor) *DirIterator {
	return &DirIterator{sess: sess, dir: dir}
}

// appendEntry writes entry into the first slot whose first byte is
// tombstone or zero (an overwritable gap, or the end), then increments
// nlink on the entry's target and persists it (spec §4.6).
func (sess *Session) appendEntry(dir *FileDescriptor, name string, fdID int32) error {
	entry, err := newDirEntry(name, fdID)
	if err != nil {
		return err
	}

	// dir may be a copy loaded before an earlier appendEntry raised its nlink
	// on disk (the "." entry, or a child's ".."); refresh it so the saves
	// below do not write a stale nlink back.
	cur, err := sess.getDescriptor(dir.FdID)
	if err != nil {
		return err
	}
	*dir = *cur

	buf := make([]byte, direntRecordSize)
	var offset int64
	for {
		n, err := sess.readFrom(dir, buf, offset)
		if err != nil {
			return err
		}
		if n < direntRecordSize {
			break // ran off the end of the allocated chain: append past it
		}
		var e DirEntry
		if err := e.UnmarshalBinary(buf); err != nil {
			return err
		}
		if e.isSentinel() || e.isTombstone() {
			break
		}
		offset += direntRecordSize
	}

	data, err := entry.MarshalBinary()
	if err != nil {
		return err
	}
	if _, err := sess.writeTo(dir, data, offset); err != nil {
		return err
	}
	if offset+direntRecordSize > dir.Size {
		dir.Size = offset + direntRecordSize
		if err := sess.saveDescriptor(dir); err != nil {
			return err
		}
	}

	target, err := sess.getDescriptor(fdID)
	if err != nil {
		return err
	}
	target.NLink++
	return sess.saveDescriptor(target)
}

// findEntry performs a linear scan for a matching non-tombstoned entry
// (spec §4.6), used by resolution and deletion.
func (sess *Session) findEntry(dir *FileDescriptor, name string) (fdID int32, offset int64, found bool, err error) {
	it := sess.newDirIterator(dir)
	for {
		n, id, ok, err := it.Next()
		if err != nil {
			return 0, 0, false, err
		}
		if !ok {
			return 0, 0, false, nil
		}
		entryOffset := it.offset - direntRecordSize
		if n == name {
			return id, entryOffset, true, nil
		}
	}
}

// deleteEntry tombstones a matching entry in place and decrements nlink on
// its target, removing the descriptor entirely if nlink reaches zero
// (spec §4.6).
func (sess *Session) deleteEntry(dir *FileDescriptor, name string) (int32, error) {
	fdID, offset, found, err := sess.findEntry(dir, name)
	if err != nil {
		return 0, err
	}
	if !found {
		return 0, ErrNotFound
	}

	var e DirEntry
	buf := make([]byte, direntRecordSize)
	if _, err := sess.readFrom(dir, buf, offset); err != nil {
		return 0, err
	}
	if err := e.UnmarshalBinary(buf); err != nil {
		return 0, err
	}
	e.tombstoneInPlace()
	data, err := e.MarshalBinary()
	if err != nil {
		return 0, err
	}
	if _, err := sess.writeTo(dir, data, offset); err != nil {
		return 0, err
	}

	target, err := sess.getDescriptor(fdID)
	if err != nil {
		return 0, err
	}
	target.NLink--
	if target.NLink <= 0 {
		if err := sess.removeDescriptor(fdID); err != nil {
			return 0, err
		}
		return fdID, nil
	}
	if err := sess.saveDescriptor(target); err != nil {
		return 0, err
	}
	return fdID, nil
}

// tombstoneAllEntries is used by removeDescriptor when a directory is being
// torn down: it walks the stream and tombstones everything without touching
// nlink counts on the targets, since the directory itself is going away.
func (sess *Session) tombstoneAllEntries(dir *FileDescriptor) error {
	var offset int64
	buf := make([]byte, direntRecordSize)
	for {
		n, err := sess.readFrom(dir, buf, offset)
		if err != nil {
			return err
		}
		if n < direntRecordSize {
			return nil
		}
		var e DirEntry
		if err := e.UnmarshalBinary(buf); err != nil {
			return err
		}
		if e.isSentinel() {
			return nil
		}
		if !e.isTombstone() {
			e.tombstoneInPlace()
			data, err := e.MarshalBinary()
			if err != nil {
				return err
			}
			if _, err := sess.writeTo(dir, data, offset); err != nil {
				return err
			}
		}
		offset += direntRecordSize
	}
}

// isEmptyDir reports whether dir's only non-tombstoned entries are "." and
// "..", the emptiness check rmdir requires (spec §6.2).
func (sess *Session) isEmptyDir(dir *FileDescriptor) (bool, error) {
	it := sess.newDirIterator(dir)
	for {
		name, _, ok, err := it.Next()
		if err != nil {
			return false, err
		}
		if !ok {
			return true, nil
		}
		if name != "." && name != ".." {
			return false, nil
		}
	}
}

// makeDefaultLinks writes "." (always self) and ".." (self for the root, the
// parent otherwise) and, for non-root directories, the directory's own entry
// in its parent (spec §4.6).
func (sess *Session) makeDefaultLinks(fdID int32, dirPath string) error {
	dir, err := sess.getDescriptor(fdID)
	if err != nil {
		return err
	}
	if dir.Type != Directory {
		return ErrNotADirectory
	}

	if err := sess.appendEntry(dir, ".", fdID); err != nil {
		return err
	}

	if dirPath == "/" {
		return sess.appendEntry(dir, "..", fdID)
	}

	parentPath, name := splitPath(dirPath)
	parent, parentID, err := sess.resolve(parentPath)
	if err != nil {
		return err
	}
	if err := sess.appendEntry(dir, "..", parentID); err != nil {
		return err
	}
	return sess.appendEntry(parent, name, fdID)
}

// makeLink splits absolute_path into (parent, name) and appends the binding
// in the parent directory (spec §4.6).
func (sess *Session) makeLink(target *FileDescriptor, absolutePath string) error {
	parentPath, name := splitPath(absolutePath)
	parent, _, err := sess.resolve(parentPath)
	if err != nil {
		return err
	}
	if parent.Type != Directory {
		return ErrNotADirectory
	}
	return sess.appendEntry(parent, name, target.FdID)
}

// removeLink splits absolute_path and tombstones the matching entry.
func (sess *Session) removeLink(absolutePath string) (int32, error) {
	parentPath, name := splitPath(absolutePath)
	parent, _, err := sess.resolve(parentPath)
	if err != nil {
		return 0, err
	}
	if parent.Type != Directory {
		return 0, ErrNotADirectory
	}
	return sess.deleteEntry(parent, name)
}
