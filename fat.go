package imgfs

// fat.go implements the allocator (spec §4.3): a singly-linked free list and
// per-descriptor block chains, both threaded through one table of BlockID
// cells indexed by block id. Cell i means "if i is in use, the next block of
// its chain is cell[i] (or NoBlock at the end); if i is free, the next free
// block is cell[i]." The free-list head lives in its own cell just before
// the FAT.

func (s *Superblock) readFATCell(b BlockID) (BlockID, error) {
	return s.store.readBlockID(s.fatCellOffset(b))
}

func (s *Superblock) writeFATCell(b BlockID, v BlockID) error {
	return s.store.writeBlockID(s.fatCellOffset(b), v)
}

func (s *Superblock) readFreeListHead() (BlockID, error) {
	return s.store.readBlockID(s.fatHeadOffset)
}

func (s *Superblock) writeFreeListHead(v BlockID) error {
	return s.store.writeBlockID(s.fatHeadOffset, v)
}

// initFAT builds the initial free list as one contiguous chain from the
// first usable data block to the last, terminated by NoBlock (spec §4.2).
// The REDESIGN FLAGS note in the reference's init_fat ("a/b + (a%b)?1:0"
// does not round up due to operator precedence) does not apply here:
// firstDataBlock is already computed with an explicit ceiling division in
// computeOffsets.
func (s *Superblock) initFAT() error {
	first := s.firstDataBlock
	last := BlockID(s.numBlocks - 1)

	if first > last {
		return s.writeFreeListHead(NoBlock)
	}
	for b := first; b < last; b++ {
		if err := s.writeFATCell(b, b+1); err != nil {
			return err
		}
	}
	if err := s.writeFATCell(last, NoBlock); err != nil {
		return err
	}
	return s.writeFreeListHead(first)
}

// allocateBlock pops the head of the free list, or returns ErrNoSpace if
// exhausted (spec §4.3).
func (s *Superblock) allocateBlock() (BlockID, error) {
	head, err := s.readFreeListHead()
	if err != nil {
		return NoBlock, err
	}
	if head == NoBlock {
		return NoBlock, ErrNoSpace
	}
	next, err := s.readFATCell(head)
	if err != nil {
		return NoBlock, err
	}
	if err := s.writeFATCell(head, NoBlock); err != nil {
		return NoBlock, err
	}
	if err := s.writeFreeListHead(next); err != nil {
		return NoBlock, err
	}
	return head, nil
}

// releaseChain splices an entire chain back onto the front of the free
// list in one LIFO operation (spec §4.3). Releasing NoBlock is a no-op.
func (s *Superblock) releaseChain(start BlockID) error {
	if start == NoBlock {
		return nil
	}
	oldHead, err := s.readFreeListHead()
	if err != nil {
		return err
	}

	tail := start
	for {
		next, err := s.readFATCell(tail)
		if err != nil {
			return err
		}
		if next == NoBlock {
			break
		}
		tail = next
	}
	if err := s.writeFATCell(tail, oldHead); err != nil {
		return err
	}
	return s.writeFreeListHead(start)
}

// chainLength walks a chain to its end, counting blocks.
func (s *Superblock) chainLength(start BlockID) (int32, error) {
	var n int32
	for b := start; b != NoBlock; {
		n++
		next, err := s.readFATCell(b)
		if err != nil {
			return 0, err
		}
		b = next
	}
	return n, nil
}

// collectChain returns the ordered list of blocks in a chain.
func (s *Superblock) collectChain(start BlockID) ([]BlockID, error) {
	var out []BlockID
	for b := start; b != NoBlock; {
		out = append(out, b)
		next, err := s.readFATCell(b)
		if err != nil {
			return nil, err
		}
		b = next
	}
	return out, nil
}

// nthInChain walks k steps from start; used by file I/O to locate the block
// backing a given logical offset. O(k).
func (s *Superblock) nthInChain(start BlockID, k int) (BlockID, error) {
	b := start
	for i := 0; i < k; i++ {
		if b == NoBlock {
			return NoBlock, ErrInvalidArgument
		}
		next, err := s.readFATCell(b)
		if err != nil {
			return NoBlock, err
		}
		b = next
	}
	return b, nil
}

// freeCount walks the free list; O(free blocks).
func (s *Superblock) freeCount() (int64, error) {
	head, err := s.readFreeListHead()
	if err != nil {
		return 0, err
	}
	var n int64
	for b := head; b != NoBlock; {
		n++
		next, err := s.readFATCell(b)
		if err != nil {
			return 0, err
		}
		b = next
	}
	return n, nil
}

// appendBlock allocates one block, splices it onto the tail of d's chain
// (or sets FirstBlock directly if the chain is empty), zero-fills the new
// block's data range, and persists d (spec §4.3 edge case: appending to an
// empty chain must not try to walk a nonexistent tail).
func (sess *Session) appendBlock(d *FileDescriptor) (BlockID, error) {
	b, err := sess.sb.allocateBlock()
	if err != nil {
		return NoBlock, err
	}

	if d.FirstBlock == NoBlock {
		d.FirstBlock = b
	} else {
		tail, err := sess.sb.nthInChain(d.FirstBlock, int(d.OccupiedBlocks-1))
		if err != nil {
			return NoBlock, err
		}
		if err := sess.sb.writeFATCell(tail, b); err != nil {
			return NoBlock, err
		}
	}

	if err := sess.store().zeroFill(sess.sb.blockOffset(b), int64(sess.sb.BlockSize)); err != nil {
		return NoBlock, err
	}
	d.OccupiedBlocks++
	if err := sess.saveDescriptor(d); err != nil {
		return NoBlock, err
	}
	return b, nil
}

// truncateBlocks removes the last n blocks of d's chain, releasing them to
// the free list, per spec §4.3.
func (sess *Session) truncateBlocks(d *FileDescriptor, n int32) error {
	if n <= 0 {
		return nil
	}
	if n >= d.OccupiedBlocks {
		if err := sess.sb.releaseChain(d.FirstBlock); err != nil {
			return err
		}
		d.FirstBlock = NoBlock
		d.OccupiedBlocks = 0
		return sess.saveDescriptor(d)
	}

	newLen := d.OccupiedBlocks - n
	newTail, err := sess.sb.nthInChain(d.FirstBlock, int(newLen-1))
	if err != nil {
		return err
	}
	subChainHead, err := sess.sb.readFATCell(newTail)
	if err != nil {
		return err
	}
	if err := sess.sb.writeFATCell(newTail, NoBlock); err != nil {
		return err
	}
	if err := sess.sb.releaseChain(subChainHead); err != nil {
		return err
	}
	d.OccupiedBlocks = newLen
	return sess.saveDescriptor(d)
}
