package imgfs

import "io/fs"

// BlockID identifies a block in the data region by index. NoBlock is the
// end-of-chain / "no block" sentinel used throughout the FAT and descriptor
// table.
type BlockID int32

// NoBlock is the sentinel value for "end of chain" or "absent".
const NoBlock BlockID = -1

// MaxFNameLen is the maximum number of bytes (including the terminating
// NUL) a directory entry name may occupy on disk.
const MaxFNameLen = 128

// tombstoneByte marks a directory entry as deleted-in-place. It is the
// all-ones byte; read as a signed int8 this is -1, which is why the C
// original compares entry.name[0] against -1.
const tombstoneByte = 0xFF

// FileType is the type of a descriptor.
type FileType int32

const (
	Deleted   FileType = iota // free descriptor slot
	Regular                   // regular file
	Directory                 // directory
	Symlink                   // symbolic link
)

func (t FileType) String() string {
	switch t {
	case Deleted:
		return "deleted"
	case Regular:
		return "regular"
	case Directory:
		return "directory"
	case Symlink:
		return "symlink"
	default:
		return "unknown"
	}
}

// Mode returns a fs.FileMode carrying the type bits for t plus a fixed 0777
// permission (mode bits are not persisted by this engine, so every live
// descriptor reports the same permissions). Deleted and unknown types map to
// fs.ModeIrregular.
func (t FileType) Mode() fs.FileMode {
	switch t {
	case Directory:
		return fs.ModeDir | 0777
	case Symlink:
		return fs.ModeSymlink | 0777
	case Regular:
		return 0777
	default:
		return fs.ModeIrregular
	}
}
