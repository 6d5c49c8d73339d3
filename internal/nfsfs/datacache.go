package nfsfs

// dataBlockState classifies a cached data block, mirroring
// original_source's fs++/datacache.h DataCache::State.
type dataBlockState int

const (
	stateStable dataBlockState = iota
	stateUnstable
	stateDirty
)

type dataBlock struct {
	state      dataBlockState
	start, end uint64
	data       []byte
}

// dataCache is a per-OpenFile range-merging cache of recently read or
// written data, adopted per SPEC_FULL.md's Open Question decision to
// follow the richer of the two DataCache variants in original_source
// (fs++/datacache.h): overlapping ranges are merged/clipped rather than
// evicted whole-block. Used by OpenFile to avoid re-issuing a READ RPC
// for data it just fetched or wrote.
type dataCache struct {
	blocks []dataBlock
}

// get returns the cached segment overlapping [offset, offset+count), or
// nil if nothing is cached there. Mirrors DataCache::get.
func (c *dataCache) get(offset uint64, count uint32) []byte {
	start, end := offset, offset+uint64(count)
	for _, b := range c.blocks {
		if b.start >= end {
			break
		}
		if b.end > start {
			segEnd := end
			if b.end < segEnd {
				segEnd = b.end
			}
			return b.data[start-b.start : segEnd-b.start]
		}
	}
	return nil
}

// add inserts data at offset, clipping or splitting any overlapping
// blocks. Mirrors DataCache::add.
func (c *dataCache) add(state dataBlockState, offset uint64, data []byte) {
	newb := dataBlock{state: state, start: offset, end: offset + uint64(len(data)), data: data}

	out := make([]dataBlock, 0, len(c.blocks)+1)
	i := 0
	for i < len(c.blocks) && c.blocks[i].end <= newb.start {
		out = append(out, c.blocks[i])
		i++
	}
	inserted := false
	for i < len(c.blocks) && c.blocks[i].start < newb.end {
		b := c.blocks[i]
		switch {
		case b.start < newb.start && b.end <= newb.end:
			b.data = b.data[:newb.start-b.start]
			b.end = newb.start
			out = append(out, b)
			i++
		case b.start < newb.start && b.end > newb.end:
			tail := dataBlock{state: b.state, start: newb.end, end: b.end, data: b.data[newb.end-b.start:]}
			b.data = b.data[:newb.start-b.start]
			b.end = newb.start
			out = append(out, b, newb, tail)
			i++
			inserted = true
		case b.start >= newb.start && b.end <= newb.end:
			i++ // entirely covered, discard
		default: // b.start >= newb.start, b.end > newb.end
			b.data = b.data[newb.end-b.start:]
			b.start = newb.end
			out = append(out, newb, b)
			i++
			inserted = true
		}
		if inserted {
			break
		}
	}
	if !inserted {
		out = append(out, newb)
	}
	for ; i < len(c.blocks); i++ {
		out = append(out, c.blocks[i])
	}
	c.blocks = out
}

// truncate discards cached data at or beyond size, and clips any block
// that straddles it. Not present in the original's DataCache but
// required by spec.md §9's adoption of the richer variant.
func (c *dataCache) truncate(size uint64) {
	out := c.blocks[:0:0]
	for _, b := range c.blocks {
		if b.start >= size {
			continue
		}
		if b.end > size {
			b.data = b.data[:size-b.start]
			b.end = size
		}
		out = append(out, b)
	}
	c.blocks = out
}

func (c *dataCache) clear() { c.blocks = nil }

func (c *dataCache) blockCount() int { return len(c.blocks) }
