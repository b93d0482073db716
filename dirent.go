package imgfs

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// DirEntry is the fixed-width record making up a directory file's content
// stream (spec §3). A name whose first byte is the tombstone value marks
// the entry as deleted-in-place; a name whose first byte is zero is the
// end-of-stream sentinel.
type DirEntry struct {
	name [MaxFNameLen]byte
	FdID int32
}

// direntRecordSize is DirEntry's fixed on-disk footprint.
const direntRecordSize = MaxFNameLen + 4

func newDirEntry(name string, fdID int32) (DirEntry, error) {
	var e DirEntry
	if len(name) > MaxFNameLen-1 {
		return e, ErrNameTooLong
	}
	copy(e.name[:], name)
	// NUL-terminate; the rest of the array is already zero from the
	// zero-value var declaration.
	e.FdID = fdID
	return e, nil
}

func (e *DirEntry) isTombstone() bool { return e.name[0] == tombstoneByte }
func (e *DirEntry) isSentinel() bool  { return e.name[0] == 0 }

// Name returns the entry's leaf name, trimmed at the first NUL byte.
func (e *DirEntry) Name() string {
	n := bytes.IndexByte(e.name[:], 0)
	if n < 0 {
		n = len(e.name)
	}
	return string(e.name[:n])
}

func (e DirEntry) String() string {
	return fmt.Sprintf("%s\t%d", e.Name(), e.FdID)
}

func (e *DirEntry) tombstoneInPlace() { e.name[0] = tombstoneByte }

func (e *DirEntry) MarshalBinary() ([]byte, error) {
	buf := &bytes.Buffer{}
	buf.Grow(direntRecordSize)
	buf.Write(e.name[:])
	if err := binary.Write(buf, binary.LittleEndian, e.FdID); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (e *DirEntry) UnmarshalBinary(data []byte) error {
	copy(e.name[:], data[:MaxFNameLen])
	return binary.Read(bytes.NewReader(data[MaxFNameLen:]), binary.LittleEndian, &e.FdID)
}
