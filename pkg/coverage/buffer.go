// Package coverage implements the sparse read-ahead buffer: a fixed size
// byte address space where only committed ranges hold valid data.
package coverage

import (
	"fmt"
	"iter"
	"math"
	"os"
	"path/filepath"
	"slices"

	"github.com/bits-and-blooms/bitset"
	"github.com/edsrzf/mmap-go"
	"github.com/google/uuid"
)

// Buffer tracks which bytes of [0, size) hold valid data and stores them.
//
// Buffer is not safe for concurrent use. The owner serializes all calls, the
// only exception being writes into a slice returned by Write, which may happen
// without the owner's lock as long as nobody commits or reads that slice until
// the write is done.
type Buffer struct {
	size int64
	data mmap.MMap
	// valid has one bit per byte of data.
	valid *bitset.BitSet
}

func checkSize(size int64) error {
	if size < 0 {
		return fmt.Errorf("negative size: %d", size)
	}

	if size > math.MaxInt {
		return fmt.Errorf("size too big: %d > %d", size, math.MaxInt)
	}

	return nil
}

// New creates a buffer backed by anonymous memory.
func New(size int64) (*Buffer, error) {
	if err := checkSize(size); err != nil {
		return nil, err
	}

	b := &Buffer{
		size:  size,
		valid: bitset.New(uint(size)),
	}

	if size == 0 {
		return b, nil
	}

	mm, err := mmap.MapRegion(nil, int(size), mmap.RDWR, mmap.ANON, 0)
	if err != nil {
		return nil, fmt.Errorf("error mapping anonymous memory: %w", err)
	}

	b.data = mm

	return b, nil
}

// NewFileBacked creates a buffer backed by a sparse file in dir.
// The file is unlinked right after mapping, so nothing is left behind in dir.
func NewFileBacked(size int64, dir string) (*Buffer, error) {
	if err := checkSize(size); err != nil {
		return nil, err
	}

	if size == 0 {
		return New(0)
	}

	path := filepath.Join(dir, fmt.Sprintf(".readahead.%s.bin", uuid.NewString()))

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return nil, fmt.Errorf("error opening file: %w", err)
	}

	defer f.Close()
	defer os.Remove(path)

	// This should create a sparse file on Linux.
	err = f.Truncate(size)
	if err != nil {
		return nil, fmt.Errorf("error allocating file: %w", err)
	}

	mm, err := mmap.MapRegion(f, int(size), mmap.RDWR, 0, 0)
	if err != nil {
		return nil, fmt.Errorf("error mapping file: %w", err)
	}

	return &Buffer{
		size:  size,
		data:  mm,
		valid: bitset.New(uint(size)),
	}, nil
}

func (b *Buffer) Size() int64 {
	return b.size
}

// Has reports whether the byte at pos is valid.
func (b *Buffer) Has(pos int64) bool {
	if pos < 0 || pos >= b.size {
		return false
	}

	return b.valid.Test(uint(pos))
}

// Read returns the valid data from pos up to the end of the valid range
// containing pos, or nil if pos is not valid.
func (b *Buffer) Read(pos int64) []byte {
	if !b.Has(pos) {
		return nil
	}

	end, ok := b.valid.NextClear(uint(pos))
	if !ok || int64(end) > b.size {
		end = uint(b.size)
	}

	return b.data[pos:end]
}

// Write returns the writable gap starting at pos. The gap ends at the next
// valid byte or at the end of the buffer. It returns nil if pos is valid or
// outside the buffer.
func (b *Buffer) Write(pos int64) []byte {
	if b.data == nil || pos < 0 || pos >= b.size || b.valid.Test(uint(pos)) {
		return nil
	}

	end, ok := b.valid.NextSet(uint(pos))
	if !ok || int64(end) > b.size {
		end = uint(b.size)
	}

	return b.data[pos:end]
}

// Commit marks [begin, end) as valid. Bytes that are already valid are left untouched.
func (b *Buffer) Commit(begin, end int64) {
	begin = max(begin, 0)
	end = min(end, b.size)

	for i := uint(begin); i < uint(end); {
		start, ok := b.valid.NextClear(i)
		if !ok || start >= uint(end) {
			return
		}

		stop, ok := b.valid.NextSet(start)
		if !ok || stop > uint(end) {
			stop = uint(end)
		}

		b.valid.FlipRange(start, stop)

		i = stop
	}
}

// Ranges returns the valid ranges in ascending order.
func (b *Buffer) Ranges() iter.Seq[Range] {
	return bitsetRanges(b.valid.Clone())
}

// Covered returns the number of valid bytes.
func (b *Buffer) Covered() int64 {
	return int64(b.valid.Count())
}

// Snapshot returns the valid ranges as a slice.
func (b *Buffer) Snapshot() []Range {
	return slices.Collect(b.Ranges())
}

func (b *Buffer) Close() error {
	if b.data == nil {
		return nil
	}

	err := b.data.Unmap()
	if err != nil {
		return fmt.Errorf("error unmapping buffer: %w", err)
	}

	b.data = nil
	b.valid.ClearAll()

	return nil
}
