package imgfs

import (
	"bytes"
	"encoding/binary"
	"log"
	"reflect"
)

// Superblock is the three-field header persisted at offset 0 (spec §3, §6.1):
// device_size, block_size and max_files fully determine every other region
// offset, which is recomputed on open rather than stored redundantly.
type Superblock struct {
	store *blockStore
	lock  bool

	descriptorsOffset int64
	fatHeadOffset     int64
	fatOffset         int64
	dataOffset        int64
	numBlocks         int64
	firstDataBlock    BlockID

	DeviceSize int64
	BlockSize  int32
	MaxFiles   int32
}

// superblockWireSize is the size in bytes of the persisted (exported) fields
// of Superblock, little-endian, tightly packed in declaration order.
func superblockWireSize() int {
	return binarySizeOf(&Superblock{})
}

// binarySizeOf sums the size of every exported field of v's underlying
// struct, mirroring the teacher's technique of skipping unexported runtime
// fields (those whose name does not start with an upper-case letter) when
// computing the on-disk footprint.
func binarySizeOf(v interface{}) int {
	rv := reflect.ValueOf(v).Elem()
	n := rv.NumField()
	sz := 0
	for i := 0; i < n; i++ {
		name := rv.Type().Field(i).Name
		if name[0] < 'A' || name[0] > 'Z' {
			continue
		}
		sz += int(rv.Field(i).Type().Size())
	}
	return sz
}

// MarshalBinary encodes only the exported, persisted fields of the
// superblock in declaration order, little-endian. Unexported runtime fields
// (store, lock, the computed offsets) are never written.
func (s *Superblock) MarshalBinary() ([]byte, error) {
	buf := &bytes.Buffer{}
	if err := encodeExportedFields(buf, s); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// UnmarshalBinary is the inverse of MarshalBinary; it does not recompute
// region offsets, callers must call computeOffsets after unmarshaling.
func (s *Superblock) UnmarshalBinary(data []byte) error {
	r := bytes.NewReader(data)
	return decodeExportedFields(r, s)
}

func encodeExportedFields(w *bytes.Buffer, v interface{}) error {
	rv := reflect.ValueOf(v).Elem()
	n := rv.NumField()
	for i := 0; i < n; i++ {
		name := rv.Type().Field(i).Name
		if name[0] < 'A' || name[0] > 'Z' {
			continue
		}
		if err := binary.Write(w, binary.LittleEndian, rv.Field(i).Interface()); err != nil {
			return err
		}
	}
	return nil
}

func decodeExportedFields(r *bytes.Reader, v interface{}) error {
	rv := reflect.ValueOf(v).Elem()
	n := rv.NumField()
	for i := 0; i < n; i++ {
		name := rv.Type().Field(i).Name
		if name[0] < 'A' || name[0] > 'Z' {
			continue
		}
		if err := binary.Read(r, binary.LittleEndian, rv.Field(i).Addr().Interface()); err != nil {
			return err
		}
	}
	return nil
}

// computeOffsets fills in every unexported region offset from the three
// persisted fields, per spec §4.2. It never touches the backing store.
func (s *Superblock) computeOffsets() error {
	if s.BlockSize <= 0 || s.MaxFiles <= 0 || s.DeviceSize <= 0 {
		return ErrInvalidSuperblock
	}

	s.descriptorsOffset = int64(superblockWireSize())
	s.fatHeadOffset = s.descriptorsOffset + int64(s.MaxFiles)*int64(descriptorRecordSize)
	s.fatOffset = s.fatHeadOffset + 4 // one BlockID cell
	s.numBlocks = s.DeviceSize / int64(s.BlockSize)
	s.dataOffset = s.fatOffset + s.numBlocks*4

	// First data block whose byte range lies entirely at or beyond
	// dataOffset: ceil(dataOffset / blockSize).
	bs := int64(s.BlockSize)
	s.firstDataBlock = BlockID((s.dataOffset + bs - 1) / bs)
	if int64(s.firstDataBlock) >= s.numBlocks {
		return ErrInvalidSuperblock
	}
	return nil
}

func (s *Superblock) blockOffset(b BlockID) int64 {
	return s.dataOffset + int64(b)*int64(s.BlockSize)
}

func (s *Superblock) fatCellOffset(b BlockID) int64 {
	return s.fatOffset + int64(b)*4
}

func (s *Superblock) descriptorOffset(fdID int32) int64 {
	return s.descriptorsOffset + int64(fdID)*int64(descriptorRecordSize)
}

// readSuperblock loads and validates the header from an already-open store.
func readSuperblock(store *blockStore) (*Superblock, error) {
	buf := make([]byte, superblockWireSize())
	if err := store.readAt(buf, 0); err != nil {
		return nil, err
	}
	sb := &Superblock{store: store}
	if err := sb.UnmarshalBinary(buf); err != nil {
		return nil, err
	}
	if err := sb.computeOffsets(); err != nil {
		log.Printf("imgfs: invalid superblock: %v", err)
		return nil, err
	}
	return sb, nil
}

func (s *Superblock) writeSuperblock() error {
	data, err := s.MarshalBinary()
	if err != nil {
		return err
	}
	return s.store.writeAt(data, 0)
}

// CreateImage creates a new image file of deviceSize bytes, partitioned into
// blockSize-byte blocks with room for maxFiles descriptors, initializes the
// allocator and the root directory, and returns a ready Session (spec §4.2).
func CreateImage(path string, deviceSize int64, blockSize, maxFiles int32, opts ...CreateOption) (*Session, error) {
	store, err := openBackingStore(path, true)
	if err != nil {
		return nil, err
	}

	sb := &Superblock{
		store:      store,
		DeviceSize: deviceSize,
		BlockSize:  blockSize,
		MaxFiles:   maxFiles,
	}
	for _, o := range opts {
		if err := o(sb); err != nil {
			store.close()
			return nil, err
		}
	}
	if err := sb.computeOffsets(); err != nil {
		store.close()
		return nil, err
	}

	log.Printf("imgfs: creating image %s: device=%d block=%d max_files=%d", path, deviceSize, blockSize, maxFiles)

	if err := preallocate(store, deviceSize); err != nil {
		store.close()
		return nil, err
	}
	if err := sb.writeSuperblock(); err != nil {
		store.close()
		return nil, err
	}
	if err := sb.initFAT(); err != nil {
		store.close()
		return nil, err
	}

	sess := newSession(sb)
	if sb.lock {
		if err := lockFile(store.f); err != nil {
			store.close()
			return nil, err
		}
		store.locked = true
	}

	root, err := sess.createDescriptor(Directory, 0)
	if err != nil {
		store.close()
		return nil, err
	}
	if root != 0 {
		store.close()
		return nil, ErrInvalidSuperblock
	}
	if err := sess.makeDefaultLinks(root, "/"); err != nil {
		store.close()
		return nil, err
	}

	return sess, nil
}

// OpenImage opens an existing image file, recomputing region offsets from
// its persisted superblock and checking that the root descriptor can be read
// (spec §4.2). The root descriptor is not kept in memory.
func OpenImage(path string, opts ...OpenOption) (*Session, error) {
	store, err := openBackingStore(path, false)
	if err != nil {
		return nil, err
	}

	sb, err := readSuperblock(store)
	if err != nil {
		store.close()
		return nil, err
	}
	for _, o := range opts {
		if err := o(sb); err != nil {
			store.close()
			return nil, err
		}
	}
	if sb.lock {
		if err := lockFile(store.f); err != nil {
			store.close()
			return nil, err
		}
		store.locked = true
	}

	sess := newSession(sb)
	if _, err := sess.getDescriptor(0); err != nil {
		store.close()
		return nil, err
	}
	return sess, nil
}
