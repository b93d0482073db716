package imgfs

import (
	"bytes"
	"errors"
	"path/filepath"
	"testing"
)

func mustCreate(t *testing.T, path string, deviceSize int64, blockSize, maxFiles int32) *Session {
	t.Helper()
	sess, err := CreateImage(path, deviceSize, blockSize, maxFiles)
	if err != nil {
		t.Fatal(err)
	}
	return sess
}

// TestScenario1 mirrors spec scenario S1: a fresh image has a root whose
// "." and ".." both resolve to fd_id 0, a free count matching the full data
// region minus the blocks root itself consumed, and exactly one descriptor.
func TestScenario1(t *testing.T) {
	path := filepath.Join(t.TempDir(), "s1.img")
	sess := mustCreate(t, path, 4<<20, 4<<10, 64)
	defer sess.Close()

	fdID, err := sess.Open("/")
	if err != nil || fdID != 0 {
		t.Fatalf("root should be fd_id 0, got %d, %v", fdID, err)
	}

	root, err := sess.getDescriptor(0)
	if err != nil {
		t.Fatal(err)
	}
	if root.NLink != 2 {
		t.Fatalf("expected root nlink=2, got %d", root.NLink)
	}

	_, _, found, err := sess.findEntry(root, ".")
	if err != nil || !found {
		t.Fatalf(". not found in root: %v", err)
	}
	dotdotFd, _, found, err := sess.findEntry(root, "..")
	if err != nil || !found || dotdotFd != 0 {
		t.Fatalf(".. should resolve to 0 in root, got %d, %v", dotdotFd, err)
	}

	free, err := sess.sb.freeCount()
	if err != nil {
		t.Fatal(err)
	}
	wantFree := sess.sb.numBlocks - int64(sess.sb.firstDataBlock) - 1
	if free != wantFree {
		t.Fatalf("expected free_count %d (data blocks minus root's one block), got %d", wantFree, free)
	}

	count := 0
	if err := sess.iterateDescriptors(func(*FileDescriptor) error {
		count++
		return nil
	}); err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Fatalf("expected exactly one live descriptor, got %d", count)
	}
}

// TestScenario2 mirrors S2: create, write, close, reopen, read back the same
// bytes. Per the documented write_to contract, the caller's write does not
// implicitly grow descriptor.size, so the test sets the logical size itself
// with Truncate after writing; Read is bounded by occupied_blocks, not size.
func TestScenario2(t *testing.T) {
	path := filepath.Join(t.TempDir(), "s2.img")
	sess := mustCreate(t, path, 4<<20, 4<<10, 64)

	fdID, err := sess.Create("/hi")
	if err != nil {
		t.Fatal(err)
	}
	payload := append([]byte("Hello world!"), 0)
	if _, err := sess.Write(fdID, payload, 0); err != nil {
		t.Fatal(err)
	}
	if err := sess.Truncate("/hi", int64(len(payload))); err != nil {
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

	fdID2, err := sess2.Open("/hi")
	if err != nil {
		t.Fatal(err)
	}
	got, err := sess2.Read(fdID2, len(payload), 0)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("read back %q, want %q", got, payload)
	}
}

// TestScenario3 mirrors S3: hard-linking, then unlinking the original name,
// keeps the data reachable through the second name.
func TestScenario3(t *testing.T) {
	path := filepath.Join(t.TempDir(), "s3.img")
	sess := mustCreate(t, path, 4<<20, 4<<10, 64)
	defer sess.Close()

	fdID, err := sess.Create("/hi")
	if err != nil {
		t.Fatal(err)
	}
	payload := append([]byte("Hello world!"), 0)
	if _, err := sess.Write(fdID, payload, 0); err != nil {
		t.Fatal(err)
	}
	if err := sess.Truncate("/hi", int64(len(payload))); err != nil {
		t.Fatal(err)
	}

	if _, err := sess.Mkdir("/d"); err != nil {
		t.Fatal(err)
	}
	if err := sess.Link("/hi", "/d/hi2"); err != nil {
		t.Fatal(err)
	}

	d, err := sess.getDescriptor(fdID)
	if err != nil {
		t.Fatal(err)
	}
	if d.NLink != 2 {
		t.Fatalf("expected nlink=2 after link, got %d", d.NLink)
	}

	if err := sess.Unlink("/hi"); err != nil {
		t.Fatal(err)
	}

	fdID2, err := sess.Open("/d/hi2")
	if err != nil {
		t.Fatal(err)
	}
	got, err := sess.Read(fdID2, len(payload), 0)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("read back %q via second name, want %q", got, payload)
	}
}

// TestScenario4 mirrors S4: rmdir refuses a non-empty directory and
// restores the free count once every level is removed.
func TestScenario4(t *testing.T) {
	path := filepath.Join(t.TempDir(), "s4.img")
	sess := mustCreate(t, path, 4<<20, 4<<10, 64)
	defer sess.Close()

	initial, err := sess.sb.freeCount()
	if err != nil {
		t.Fatal(err)
	}

	if _, err := sess.Mkdir("/a"); err != nil {
		t.Fatal(err)
	}
	if _, err := sess.Mkdir("/a/b"); err != nil {
		t.Fatal(err)
	}

	if err := sess.Rmdir("/a"); !errors.Is(err, ErrNotEmpty) {
		t.Fatalf("expected ErrNotEmpty, got %v", err)
	}
	if err := sess.Rmdir("/a/b"); err != nil {
		t.Fatal(err)
	}
	if err := sess.Rmdir("/a"); err != nil {
		t.Fatal(err)
	}

	final, err := sess.sb.freeCount()
	if err != nil {
		t.Fatal(err)
	}
	if final != initial {
		t.Fatalf("expected free_count to return to %d, got %d", initial, final)
	}
}

// TestScenario5 mirrors S5: a symlink's stored target round-trips through
// Readlink with its trailing NUL intact, and Getattr reports the Symlink
// type.
func TestScenario5(t *testing.T) {
	path := filepath.Join(t.TempDir(), "s5.img")
	sess := mustCreate(t, path, 4<<20, 4<<10, 64)
	defer sess.Close()

	if _, err := sess.Create("/hi"); err != nil {
		t.Fatal(err)
	}
	if _, err := sess.Symlink("/hi", "/ln"); err != nil {
		t.Fatal(err)
	}

	target, err := sess.Readlink("/ln")
	if err != nil {
		t.Fatal(err)
	}
	if target != "/hi\x00" {
		t.Fatalf("readlink returned %q, want \"/hi\\x00\"", target)
	}

	attr, err := sess.Getattr("/ln")
	if err != nil {
		t.Fatal(err)
	}
	if attr.Type != Symlink {
		t.Fatalf("expected Symlink type, got %v", attr.Type)
	}
}

// TestScenario6 mirrors S6: filling the descriptor table to capacity
// returns TableFull, and freeing one slot lets the next create reuse the
// lowest-indexed vacated slot.
func TestScenario6(t *testing.T) {
	path := filepath.Join(t.TempDir(), "s6.img")
	sess := mustCreate(t, path, 4<<20, 4<<10, 4)
	defer sess.Close()

	// Root occupies slot 0; three more slots remain.
	for i := 0; i < 3; i++ {
		if _, err := sess.Create(pathFor(i)); err != nil {
			t.Fatalf("create %d: %v", i, err)
		}
	}

	if _, err := sess.Create("/overflow"); !errors.Is(err, ErrTableFull) {
		t.Fatalf("expected ErrTableFull, got %v", err)
	}

	if err := sess.Unlink(pathFor(0)); err != nil {
		t.Fatal(err)
	}

	fdID, err := sess.Create("/reused")
	if err != nil {
		t.Fatal(err)
	}
	if fdID != 1 {
		t.Fatalf("expected the lowest vacated slot (1) to be reused, got %d", fdID)
	}
}

func pathFor(i int) string {
	return "/f" + string(rune('a'+i))
}
