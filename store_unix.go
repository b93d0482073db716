//go:build !windows

package imgfs

import (
	"log"
	"os"

	fallocate "github.com/detailyang/go-fallocate"
	"golang.org/x/sys/unix"
)

// lockFile takes an advisory exclusive flock(2) on f for the lifetime of the
// Session (spec §5: "a single controller owns the image"). It is released by
// unlockFile on Close.
func lockFile(f *os.File) error {
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		return ioErrorf("flock", err)
	}
	return nil
}

func unlockFile(f *os.File) error {
	return unix.Flock(int(f.Fd()), unix.LOCK_UN)
}

// preallocate reserves size bytes for the backing file and zero-fills it, so
// that the end-of-stream sentinel (first byte == 0) and the default FAT cell
// value hold naturally for every block until it is first written (spec
// §4.1). fallocate(2) is attempted first since it can reserve multi-gigabyte
// images without writing every byte on filesystems that support it; on
// failure (e.g. tmpfs, or a filesystem lacking FALLOC_FL support) this falls
// back to the portable chunked zero-fill.
func preallocate(s *blockStore, size int64) error {
	if err := fallocate.Fallocate(s.f, 0, size); err != nil {
		log.Printf("imgfs: fallocate unavailable (%v), falling back to zero-fill", err)
		return s.zeroFill(0, size)
	}
	return nil
}
