package imgfs

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// imgfs_invariants_test.go checks the universal invariants spec §8 states
// must hold after any sequence of operations: free-block conservation,
// disjoint chains, chain length matching occupied_blocks, and nlink
// accounting across the directory tree.

// collectAllChains walks every live descriptor's block chain and returns the
// total block count plus a per-block owner map, used to check both that
// chain_length == occupied_blocks and that no two descriptors share a block.
func collectAllChains(t *testing.T, sess *Session) (total int64, owner map[BlockID]int32) {
	t.Helper()
	owner = make(map[BlockID]int32)
	err := sess.iterateDescriptors(func(d *FileDescriptor) error {
		chain, err := sess.sb.collectChain(d.FirstBlock)
		if err != nil {
			return err
		}
		require.EqualValues(t, d.OccupiedBlocks, len(chain),
			"fd %d: chain_length must equal occupied_blocks", d.FdID)
		for _, b := range chain {
			if prev, dup := owner[b]; dup {
				t.Fatalf("block %d owned by both fd %d and fd %d", b, prev, d.FdID)
			}
			owner[b] = d.FdID
		}
		total += int64(len(chain))
		return nil
	})
	require.NoError(t, err)
	return total, owner
}

// checkConservation asserts free_count + Σoccupied_blocks stays fixed at the
// number of data blocks, the allocator-level invariant from spec §8.
func checkConservation(t *testing.T, sess *Session) {
	t.Helper()
	free, err := sess.sb.freeCount()
	require.NoError(t, err)
	occupied, _ := collectAllChains(t, sess)
	totalDataBlocks := sess.sb.numBlocks - int64(sess.sb.firstDataBlock)
	require.Equal(t, totalDataBlocks, free+occupied,
		"free_count + occupied must equal total data blocks")
}

// checkNLinks recomputes every descriptor's nlink by counting references
// from every live directory's entry stream, and compares it against the
// descriptor's stored NLink field (spec §8 invariant 4).
func checkNLinks(t *testing.T, sess *Session) {
	t.Helper()
	counted := make(map[int32]int32)
	err := sess.iterateDescriptors(func(d *FileDescriptor) error {
		if d.Type != Directory {
			return nil
		}
		it := sess.newDirIterator(d)
		for {
			_, id, ok, err := it.Next()
			if err != nil {
				return err
			}
			if !ok {
				return nil
			}
			counted[id]++
		}
	})
	require.NoError(t, err)

	err = sess.iterateDescriptors(func(d *FileDescriptor) error {
		require.Equal(t, d.NLink, counted[d.FdID],
			"fd %d: stored nlink %d does not match %d counted references",
			d.FdID, d.NLink, counted[d.FdID])
		return nil
	})
	require.NoError(t, err)
}

func TestInvariantsAfterMixedWorkload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "inv.img")
	sess := mustCreate(t, path, 4<<20, 4<<10, 32)
	defer sess.Close()

	checkConservation(t, sess)
	checkNLinks(t, sess)

	fdID, err := sess.Create("/a")
	require.NoError(t, err)
	payload := make([]byte, 9000) // spans multiple 4KiB blocks
	for i := range payload {
		payload[i] = byte(i)
	}
	_, err = sess.Write(fdID, payload, 0)
	require.NoError(t, err)
	require.NoError(t, sess.Truncate("/a", int64(len(payload))))
	checkConservation(t, sess)
	checkNLinks(t, sess)

	_, err = sess.Mkdir("/d")
	require.NoError(t, err)
	require.NoError(t, sess.Link("/a", "/d/a2"))
	checkConservation(t, sess)
	checkNLinks(t, sess)

	require.NoError(t, sess.Truncate("/a", 10))
	checkConservation(t, sess)

	require.NoError(t, sess.Unlink("/d/a2"))
	checkConservation(t, sess)
	checkNLinks(t, sess)

	require.NoError(t, sess.Unlink("/a"))
	checkConservation(t, sess)
	checkNLinks(t, sess)

	require.NoError(t, sess.Rmdir("/d"))
	checkConservation(t, sess)
	checkNLinks(t, sess)
}

func TestInvariantsAcrossRename(t *testing.T) {
	path := filepath.Join(t.TempDir(), "inv_rename.img")
	sess := mustCreate(t, path, 2<<20, 4<<10, 16)
	defer sess.Close()

	_, err := sess.Mkdir("/src")
	require.NoError(t, err)
	_, err = sess.Mkdir("/dst")
	require.NoError(t, err)
	_, err = sess.Create("/src/f")
	require.NoError(t, err)

	require.NoError(t, sess.Rename("/src/f", "/dst/f"))
	checkConservation(t, sess)
	checkNLinks(t, sess)

	_, err = sess.Open("/dst/f")
	require.NoError(t, err)
	_, err = sess.Open("/src/f")
	require.ErrorIs(t, err, ErrNotFound)
}
