/*
 * Copyright 2025 CloudWeGo Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package buddy

import (
	"fmt"
	"math/bits"

	"github.com/inda21plusplus/dtottie-hw11/malloc"
)

const (
	// MinLeafSize is the smallest leaf block size accepted by New.
	MinLeafSize = 8

	// DefaultLeafSize is the leaf block size used by callers with no preference.
	DefaultLeafSize = 64
)

// Allocator is a binary buddy allocator over [start, start+capacity).
//
// The range is split in levels: level 0 is one block of sizeLimit bytes and
// every following level halves the block size, down to leafSize at the last
// level. A block is (level, index) and its buddy is (level, index^1).
//
// Allocator is not safe for concurrent use, see malloc.Locked.
type Allocator struct {
	// start is the first address of the managed range.
	start uintptr
	// capacity is the usable size of the range, a multiple of leafSize.
	capacity uintptr
	// maxAlign is the natural alignment of start.
	// Every block is aligned to min(its size, maxAlign).
	maxAlign uintptr

	// leafSize is the smallest block size.
	leafSize uintptr
	// leafShift is log2(leafSize).
	leafShift int
	// levels is the index of the leaf level.
	levels int
	// sizeLimit is leafSize << levels, the size of the level 0 block.
	sizeLimit uintptr

	// freeLists[level] holds the indexes of the free blocks of that level.
	freeLists []freeList

	allocated uintptr
	allocs    uint64
	frees     uint64
	failures  uint64
}

var _ malloc.Strategy = (*Allocator)(nil)

// New creates a buddy allocator managing [start, end).
//
// leaf must be a power of two >= MinLeafSize and start must be aligned to it.
// levels is the smallest number such that leaf<<levels covers the range.
// A trailing partial leaf is never handed out, and if the range is not
// exactly leaf<<levels bytes the blocks past end are never free.
func New(start, end, leaf uintptr) (*Allocator, error) {
	if !malloc.IsPowerOfTwo(leaf) || leaf < MinLeafSize {
		return nil, fmt.Errorf("leaf size must be a power of two >= %d, got %d", MinLeafSize, leaf)
	}
	if end < start {
		return nil, fmt.Errorf("invalid range [%#x, %#x)", start, end)
	}
	if start&(leaf-1) != 0 {
		return nil, fmt.Errorf("range start %#x is not aligned to leaf size %d", start, leaf)
	}
	capacity := (end - start) &^ (leaf - 1)
	if capacity < leaf {
		return nil, fmt.Errorf("range [%#x, %#x) must hold at least one %d bytes leaf", start, end, leaf)
	}

	leafShift := bits.TrailingZeros(uint(leaf))
	levels := 0
	if capacity > leaf {
		levels = bits.Len(uint(capacity-1)) - leafShift
	}
	if leafShift+levels >= bits.UintSize {
		return nil, fmt.Errorf("range of %d bytes is too large", capacity)
	}

	a := &Allocator{
		start:     start,
		capacity:  capacity,
		maxAlign:  malloc.NaturalAlign(start),
		leafSize:  leaf,
		leafShift: leafShift,
		levels:    levels,
		sizeLimit: leaf << levels,
		freeLists: make([]freeList, levels+1),
	}
	// level i holds at most 2^i blocks, capped to avoid over-allocation.
	for i := range a.freeLists {
		n := 1 << i
		if n > 64 {
			n = 64
		}
		a.freeLists[i] = newFreeList(n)
	}
	a.seed()
	return a, nil
}

// seed fills the free lists with the largest aligned blocks covering [0, capacity).
// For a range of exactly sizeLimit bytes, this is the single level 0 block.
func (a *Allocator) seed() {
	for off := uintptr(0); off < a.capacity; {
		level := 0
		for ; level < a.levels; level++ {
			size := a.BlockSize(level)
			if off&(size-1) == 0 && a.capacity-off >= size {
				break
			}
		}
		size := a.BlockSize(level)
		a.freeLists[level].push(uint64(off / size))
		off += size
	}
}

// Allocate implements malloc.Allocator.
//
// The request is rounded up to max(size, align, leaf size) and served by a
// block of the deepest level big enough for it.
func (a *Allocator) Allocate(size, align uintptr) (uintptr, error) {
	level, err := a.levelFor(size, align)
	if err != nil {
		a.failures++
		return 0, err
	}
	index, ok := a.getBlock(level)
	if !ok {
		a.failures++
		return 0, malloc.ErrOutOfMemory
	}
	blockSize := a.BlockSize(level)
	a.allocated += blockSize
	a.allocs++
	return a.start + uintptr(index)*blockSize, nil
}

// Deallocate implements malloc.Allocator.
// The level is recomputed from (size, align), they must match Allocate.
func (a *Allocator) Deallocate(addr, size, align uintptr) {
	level, err := a.levelFor(size, align)
	if err != nil {
		return
	}
	blockSize := a.BlockSize(level)
	index := uint64((addr - a.start) / blockSize)
	a.allocated -= blockSize
	a.frees++
	a.merge(level, index)
}

// getBlock returns a free block of the given level, splitting a block of a
// lower level if needed. The first child of each split is kept, the second
// one goes to the free list.
func (a *Allocator) getBlock(level int) (uint64, bool) {
	from := level
	for from >= 0 && a.freeLists[from].len() == 0 {
		from--
	}
	if from < 0 {
		return 0, false
	}
	index, _ := a.freeLists[from].pop()
	for ; from < level; from++ {
		index <<= 1
		a.freeLists[from+1].push(index | 1)
	}
	return index, true
}

// merge frees (level, index) and coalesces it with its buddy as long as the
// buddy is free, moving one level up at each step.
func (a *Allocator) merge(level int, index uint64) {
	for level > 0 && a.freeLists[level].remove(index^1) {
		index >>= 1
		level--
	}
	a.freeLists[level].push(index)
}

// levelFor returns the deepest level whose blocks can hold (size, align).
func (a *Allocator) levelFor(size, align uintptr) (int, error) {
	align, err := malloc.NormalizeAlign(align)
	if err != nil {
		return 0, err
	}
	if align > a.maxAlign {
		return 0, malloc.ErrInvalidAlign
	}
	rounded := size
	if rounded < align {
		rounded = align
	}
	if rounded > a.sizeLimit {
		return 0, malloc.ErrRangeExceeded
	}
	return a.levels - a.orderForSize(rounded), nil
}

// orderForSize returns log2 of the smallest power-of-two number of leaves holding size.
func (a *Allocator) orderForSize(size uintptr) int {
	if size <= a.leafSize {
		return 0
	}
	return bits.Len(uint(size-1)) - a.leafShift
}

// BlockSize returns the size of the blocks of the given level.
func (a *Allocator) BlockSize(level int) uintptr {
	return a.sizeLimit >> level
}

// SizeLimit returns the size of the level 0 block, the largest request
// that can ever be served.
func (a *Allocator) SizeLimit() uintptr {
	return a.sizeLimit
}

// Levels returns the leaf level. Valid levels are 0..Levels().
func (a *Allocator) Levels() int {
	return a.levels
}

// LeafSize returns the smallest block size.
func (a *Allocator) LeafSize() uintptr {
	return a.leafSize
}

// Start returns the first managed address.
func (a *Allocator) Start() uintptr {
	return a.start
}

// Capacity returns the number of bytes managed.
func (a *Allocator) Capacity() uintptr {
	return a.capacity
}

// FreeBlocks returns the number of free blocks at level.
func (a *Allocator) FreeBlocks(level int) int {
	if level < 0 || level > a.levels {
		return 0
	}
	return a.freeLists[level].len()
}

// Stats implements malloc.StatsSource.
func (a *Allocator) Stats() malloc.Stats {
	s := malloc.Stats{
		Capacity:  a.capacity,
		Allocated: a.allocated,
		Allocs:    a.allocs,
		Frees:     a.frees,
		Failures:  a.failures,
	}
	for level := range a.freeLists {
		n := a.freeLists[level].len()
		s.FreeBlocks += n
		s.Free += uintptr(n) * a.BlockSize(level)
	}
	return s
}

// Validate implements malloc.Strategy. It costs one bit per leaf.
//
// It checks that free blocks lie inside the range and do not overlap, that
// no two free buddies were left unmerged, and that free plus allocated bytes
// add up to the capacity.
func (a *Allocator) Validate() error {
	leaves := uint64(a.sizeLimit >> a.leafShift)
	usable := uint64(a.capacity >> a.leafShift)
	covered := newBitset(leaves)
	free := uintptr(0)
	for level := range a.freeLists {
		l := &a.freeLists[level]
		if len(l.blocks) != len(l.pos) {
			return fmt.Errorf("level %d: %d blocks but %d indexed", level, len(l.blocks), len(l.pos))
		}
		span := uint64(1) << (a.levels - level) // leaves per block
		for i, index := range l.blocks {
			if p, ok := l.pos[index]; !ok || p != i {
				return fmt.Errorf("level %d: block %d is not indexed at %d", level, index, i)
			}
			if index >= uint64(1)<<level {
				return fmt.Errorf("level %d: block %d out of level", level, index)
			}
			first := index * span
			if first+span > usable {
				return fmt.Errorf("level %d: block %d extends past the range", level, index)
			}
			if covered.setRange(first, span) {
				return fmt.Errorf("level %d: block %d overlaps another free block", level, index)
			}
			if level > 0 && l.contains(index^1) {
				return fmt.Errorf("level %d: blocks %d and %d are free buddies", level, index, index^1)
			}
			free += a.BlockSize(level)
		}
	}
	if covered.count()<<a.leafShift != uint64(free) {
		return fmt.Errorf("free lists cover %d leaves, expect %d bytes", covered.count(), free)
	}
	if free+a.allocated != a.capacity {
		return fmt.Errorf("free (%d) + allocated (%d) != capacity (%d)", free, a.allocated, a.capacity)
	}
	return nil
}

// Reset implements malloc.Strategy.
func (a *Allocator) Reset() {
	for i := range a.freeLists {
		a.freeLists[i].reset()
	}
	a.seed()
	a.allocated = 0
	a.allocs, a.frees, a.failures = 0, 0, 0
}
