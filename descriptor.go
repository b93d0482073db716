package imgfs

import (
	"bytes"
	"encoding/binary"
)

// FileDescriptor is the fixed-width inode-like record stored in the
// descriptor region (spec §3). All six fields persist in declaration order,
// little-endian, with no mixed exported/unexported shape, so it is encoded
// directly with encoding/binary rather than through the reflect-based
// Superblock technique.
type FileDescriptor struct {
	FdID           int32
	Type           FileType
	Size           int64
	NLink          int32
	FirstBlock     BlockID
	OccupiedBlocks int32
}

// descriptorRecordSize is FileDescriptor's fixed on-disk footprint: four
// int32-sized fields (FdID, Type, NLink, OccupiedBlocks) plus one int64
// (Size) plus one int32 (FirstBlock) = 4*4 + 8 + 4.
const descriptorRecordSize = 4*4 + 8 + 4

func (d *FileDescriptor) MarshalBinary() ([]byte, error) {
	buf := &bytes.Buffer{}
	buf.Grow(descriptorRecordSize)
	fields := []interface{}{d.FdID, d.Type, d.Size, d.NLink, d.FirstBlock, d.OccupiedBlocks}
	for _, f := range fields {
		if err := binary.Write(buf, binary.LittleEndian, f); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

func (d *FileDescriptor) UnmarshalBinary(data []byte) error {
	r := bytes.NewReader(data)
	fields := []interface{}{&d.FdID, &d.Type, &d.Size, &d.NLink, &d.FirstBlock, &d.OccupiedBlocks}
	for _, f := range fields {
		if err := binary.Read(r, binary.LittleEndian, f); err != nil {
			return err
		}
	}
	return nil
}

// getDescriptor performs a positioned read into the descriptor region by
// fd_id (spec §4.4).
func (sess *Session) getDescriptor(fdID int32) (*FileDescriptor, error) {
	if fdID < 0 || fdID >= sess.sb.MaxFiles {
		return nil, ErrNotFound
	}
	buf := make([]byte, descriptorRecordSize)
	if err := sess.store().readAt(buf, sess.sb.descriptorOffset(fdID)); err != nil {
		return nil, err
	}
	d := &FileDescriptor{}
	if err := d.UnmarshalBinary(buf); err != nil {
		return nil, err
	}
	return d, nil
}

// saveDescriptor performs a positioned write into the descriptor region.
func (sess *Session) saveDescriptor(d *FileDescriptor) error {
	data, err := d.MarshalBinary()
	if err != nil {
		return err
	}
	return sess.store().writeAt(data, sess.sb.descriptorOffset(d.FdID))
}

// createDescriptor scans from index 0 for the first Deleted slot (the reuse
// policy is lowest-index-first), allocates the descriptor's first block so
// every new descriptor starts non-empty, and persists it (spec §3, §4.4).
func (sess *Session) createDescriptor(typ FileType, size int64) (int32, error) {
	var slot int32 = -1
	for i := int32(0); i < sess.sb.MaxFiles; i++ {
		d, err := sess.getDescriptor(i)
		if err != nil {
			return -1, err
		}
		if d.Type == Deleted {
			slot = i
			break
		}
	}
	if slot < 0 {
		return -1, ErrTableFull
	}

	d := &FileDescriptor{
		FdID:           slot,
		Type:           typ,
		Size:           size,
		NLink:          0,
		FirstBlock:     NoBlock,
		OccupiedBlocks: 0,
	}
	if err := sess.saveDescriptor(d); err != nil {
		return -1, err
	}
	if _, err := sess.appendBlock(d); err != nil {
		// Roll the slot back to Deleted: no side effects survive a
		// failed create (spec §7 propagation policy).
		d.Type = Deleted
		d.FirstBlock = NoBlock
		d.OccupiedBlocks = 0
		_ = sess.saveDescriptor(d)
		return -1, err
	}
	if err := sess.saveDescriptor(d); err != nil {
		return -1, err
	}
	return slot, nil
}

// removeDescriptor tombstones every entry of a directory descriptor before
// releasing its chain, then marks the slot Deleted (spec §4.4).
func (sess *Session) removeDescriptor(fdID int32) error {
	d, err := sess.getDescriptor(fdID)
	if err != nil {
		return err
	}
	if d.Type == Directory {
		if err := sess.tombstoneAllEntries(d); err != nil {
			return err
		}
	}
	if err := sess.sb.releaseChain(d.FirstBlock); err != nil {
		return err
	}
	d.Type = Deleted
	d.FirstBlock = NoBlock
	d.OccupiedBlocks = 0
	d.Size = 0
	d.NLink = 0
	return sess.saveDescriptor(d)
}

// iterateDescriptors yields every non-Deleted descriptor in slot order.
func (sess *Session) iterateDescriptors(fn func(*FileDescriptor) error) error {
	for i := int32(0); i < sess.sb.MaxFiles; i++ {
		d, err := sess.getDescriptor(i)
		if err != nil {
			return err
		}
		if d.Type == Deleted {
			continue
		}
		if err := fn(d); err != nil {
			return err
		}
	}
	return nil
}
