package imgfs

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

// TestShortReadReturnsIOError follows the teacher's mockReader technique of
// deliberately constructing a truncated backing source and asserting the
// resulting error surfaces correctly, adapted here to a real, deliberately
// truncated temp file rather than an injected io.ReaderAt, since blockStore
// is built directly on *os.File rather than an interface seam.
func TestShortReadReturnsIOError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "short.img")
	if err := os.WriteFile(path, []byte{1, 2, 3}, 0644); err != nil {
		t.Fatal(err)
	}

	store, err := openBackingStore(path, false)
	if err != nil {
		t.Fatal(err)
	}
	defer store.close()

	buf := make([]byte, 16)
	err = store.readAt(buf, 0)
	if err == nil {
		t.Fatal("expected a short-read error, got nil")
	}
	if !errors.Is(err, ErrIO) {
		t.Fatalf("expected errors.Is(err, ErrIO), got %v", err)
	}
}

func TestInvalidSuperblockRejected(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "zero.img")
	// An all-zero file has block_size = 0 and max_files = 0, both invalid.
	if err := os.WriteFile(path, make([]byte, 4096), 0644); err != nil {
		t.Fatal(err)
	}

	_, err := OpenImage(path)
	if !errors.Is(err, ErrInvalidSuperblock) {
		t.Fatalf("expected ErrInvalidSuperblock, got %v", err)
	}
}

func TestCreateThenOpenRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rt.img")

	sess, err := CreateImage(path, 1<<20, 4096, 32)
	if err != nil {
		t.Fatal(err)
	}
	if err := sess.Close(); err != nil {
		t.Fatal(err)
	}

	sess2, err := OpenImage(path)
	if err != nil {
		t.Fatal(err)
	}
	defer sess2.Close()

	attr, err := sess2.Getattr("/")
	if err != nil {
		t.Fatal(err)
	}
	if attr.Type != Directory {
		t.Fatalf("expected root to be a directory, got %v", attr.Type)
	}
	if attr.NLink != 2 {
		t.Fatalf("expected root nlink=2 (. and ..), got %d", attr.NLink)
	}
}
