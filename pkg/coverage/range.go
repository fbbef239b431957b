package coverage

import (
	"iter"

	"github.com/bits-and-blooms/bitset"
)

type Range struct {
	// Start is the start address of the range in bytes.
	// Start is inclusive.
	Start int64
	// Size is the size of the range in bytes.
	Size int64
}

func (r Range) End() int64 {
	return r.Start + r.Size
}

// Contains reports whether off lies inside the range.
func (r Range) Contains(off int64) bool {
	return off >= r.Start && off < r.End()
}

// NewRange creates a new range from a start address and size in bytes.
func NewRange(start, size int64) Range {
	return Range{
		Start: start,
		Size:  size,
	}
}

// bitsetRanges returns a sequence of the runs of set bits, one bit per byte.
func bitsetRanges(b *bitset.BitSet) iter.Seq[Range] {
	return func(yield func(Range) bool) {
		start, ok := b.NextSet(0)

		for ok {
			end, endOk := b.NextClear(start)
			if !endOk {
				yield(NewRange(int64(start), int64(b.Len()-start)))

				return
			}

			if !yield(NewRange(int64(start), int64(end-start))) {
				return
			}

			start, ok = b.NextSet(end + 1)
		}
	}
}

func TotalSize(rs []Range) (size int64) {
	for _, r := range rs {
		size += r.Size
	}

	return size
}
