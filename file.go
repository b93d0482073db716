package imgfs

// file.go maps logical file offsets onto (block, in-block offset) pairs
// atop the block chain (spec §4.5).
//
// Both readFrom and writeTo drive I/O from an explicit position computation,
// offset+bytesDone, on every segment rather than advancing a saved "current
// block" cursor between iterations. The reference implementation advances
// to the successor of the current block before writing the tail segment,
// which double-skips a block under certain size/offset combinations
// (REDESIGN FLAGS); computing the owning block fresh from the absolute
// position for every segment sidesteps that class of bug entirely.

func (sess *Session) blockAt(d *FileDescriptor, pos int64) (BlockID, error) {
	idx := int(pos / int64(sess.sb.BlockSize))
	return sess.sb.nthInChain(d.FirstBlock, idx)
}

// readFrom reads len(p) bytes starting at offset into p. Per spec §4.5,
// reads that would reach beyond the descriptor's allocated chain are not
// serviced at all: the caller is expected to have checked size beforehand.
func (sess *Session) readFrom(d *FileDescriptor, p []byte, offset int64) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	bs := int64(sess.sb.BlockSize)
	lastByte := offset + int64(len(p)) - 1
	lastBlockIdx := int32(lastByte / bs)
	if lastBlockIdx >= d.OccupiedBlocks {
		return 0, nil
	}

	done := 0
	for done < len(p) {
		pos := offset + int64(done)
		b, err := sess.blockAt(d, pos)
		if err != nil {
			return done, err
		}
		inBlock := pos % bs
		n := bs - inBlock
		if remaining := int64(len(p) - done); n > remaining {
			n = remaining
		}
		if err := sess.store().readAt(p[done:int64(done)+n], sess.sb.blockOffset(b)+inBlock); err != nil {
			return done, err
		}
		done += int(n)
	}
	return done, nil
}

// writeTo writes len(p) bytes starting at offset, extending the chain as
// needed. If the extension required would exceed the allocator's free
// count, it writes nothing and returns 0 (spec §4.5: "no side effects where
// possible"). It never updates d.Size; per the reference contract the
// caller updates the logical length after a successful extending write.
func (sess *Session) writeTo(d *FileDescriptor, p []byte, offset int64) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	bs := int64(sess.sb.BlockSize)
	lastByte := offset + int64(len(p)) - 1
	neededBlocks := int32(lastByte/bs) + 1

	if neededBlocks > d.OccupiedBlocks {
		additional := neededBlocks - d.OccupiedBlocks
		free, err := sess.sb.freeCount()
		if err != nil {
			return 0, err
		}
		if int64(additional) > free {
			return 0, nil
		}
		for i := int32(0); i < additional; i++ {
			if _, err := sess.appendBlock(d); err != nil {
				return 0, err
			}
		}
	}

	done := 0
	for done < len(p) {
		pos := offset + int64(done)
		b, err := sess.blockAt(d, pos)
		if err != nil {
			return done, err
		}
		inBlock := pos % bs
		n := bs - inBlock
		if remaining := int64(len(p) - done); n > remaining {
			n = remaining
		}
		if err := sess.store().writeAt(p[done:int64(done)+n], sess.sb.blockOffset(b)+inBlock); err != nil {
			return done, err
		}
		done += int(n)
	}
	return done, nil
}

// changeSize grows or shrinks d's chain to ceil(newSize/blockSize) blocks
// and persists the descriptor (spec §4.5). On a grow that exhausts the
// allocator midway, d.Size is left covering only the whole blocks actually
// added, capped at newSize.
func (sess *Session) changeSize(d *FileDescriptor, newSize int64) error {
	bs := int64(sess.sb.BlockSize)
	wantBlocks := int32((newSize + bs - 1) / bs)
	if newSize == 0 {
		wantBlocks = 0
	}

	switch {
	case wantBlocks < d.OccupiedBlocks:
		if err := sess.truncateBlocks(d, d.OccupiedBlocks-wantBlocks); err != nil {
			return err
		}
		d.Size = newSize
		return sess.saveDescriptor(d)

	case wantBlocks > d.OccupiedBlocks:
		added := int32(0)
		for d.OccupiedBlocks < wantBlocks {
			if _, err := sess.appendBlock(d); err != nil {
				achieved := d.Size + int64(added)*bs
				if achieved > newSize {
					achieved = newSize
				}
				d.Size = achieved
				_ = sess.saveDescriptor(d)
				return err
			}
			added++
		}
		d.Size = newSize
		return sess.saveDescriptor(d)

	default:
		d.Size = newSize
		return sess.saveDescriptor(d)
	}
}
