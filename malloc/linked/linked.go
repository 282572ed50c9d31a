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

// Package linked implements a first-fit free-list allocator with coalescing.
//
// Free regions are kept twice: in list order, most recently freed first,
// which drives the first-fit scan, and in an address-ordered B-tree, which
// finds the neighbours to coalesce with on free.
package linked

import (
	"fmt"
	"unsafe"

	"github.com/google/btree"

	"github.com/inda21plusplus/dtottie-hw11/malloc"
)

const (
	// MetadataSize is the smallest region. Every request and every leftover
	// is at least this large.
	MetadataSize = 2 * unsafe.Sizeof(uintptr(0))

	// MetadataAlign is the minimum alignment of every allocation.
	MetadataAlign = unsafe.Alignof(uintptr(0))
)

// Region is a free span [Start, Start+Size).
type Region struct {
	Start uintptr
	Size  uintptr
}

// End returns the first address after the region.
func (r Region) End() uintptr {
	return r.Start + r.Size
}

type region struct {
	Region
	prev, next *region
}

func lessRegion(a, b *region) bool {
	return a.Start < b.Start
}

// Allocator manages [start, end) with a first-fit scan over its free regions.
//
// Allocator is not safe for concurrent use, see malloc.Locked.
type Allocator struct {
	start uintptr
	end   uintptr

	head  region // sentinel, head.next is the first region in list order
	index *btree.BTreeG[*region]

	allocated uintptr
	allocs    uint64
	frees     uint64
	failures  uint64
}

var _ malloc.Strategy = (*Allocator)(nil)

// New creates an allocator whose single initial region is [start, end).
// start must be aligned to MetadataAlign, and the range must be empty or
// at least MetadataSize bytes.
func New(start, end uintptr) (*Allocator, error) {
	if end < start {
		return nil, fmt.Errorf("invalid range [%#x, %#x)", start, end)
	}
	if start%MetadataAlign != 0 {
		return nil, fmt.Errorf("range start %#x is not aligned to %d", start, MetadataAlign)
	}
	if n := end - start; n != 0 && n < MetadataSize {
		return nil, fmt.Errorf("range of %d bytes is smaller than a region (%d bytes)", n, MetadataSize)
	}
	a := &Allocator{
		start: start,
		end:   end,
		index: btree.NewG(16, lessRegion),
	}
	a.Reset()
	return a, nil
}

// layout normalizes a request: align is raised to MetadataAlign and size is
// rounded to it, and to at least MetadataSize.
func layout(size, align uintptr) (uintptr, uintptr, error) {
	align, err := malloc.NormalizeAlign(align)
	if err != nil {
		return 0, 0, err
	}
	if align < MetadataAlign {
		align = MetadataAlign
	}
	size, ok := malloc.RoundUp(size, align)
	if !ok {
		return 0, 0, malloc.ErrOverflow
	}
	if size < MetadataSize {
		size = MetadataSize
	}
	return size, align, nil
}

// Allocate implements malloc.Allocator.
//
// Regions are scanned in list order and the first one that can hold the
// request is used. A region is rejected if it would leave a tail smaller
// than MetadataSize. Padding in front of an aligned block is kept as a
// region of its own, so it is moved forward until it is MetadataSize or more.
func (a *Allocator) Allocate(size, align uintptr) (uintptr, error) {
	size, align, err := layout(size, align)
	if err != nil {
		a.failures++
		return 0, err
	}
	for r := a.head.next; r != &a.head; r = r.next {
		addr, ok := fit(r.Region, size, align)
		if !ok {
			continue
		}
		a.take(r, addr, size)
		a.allocated += size
		a.allocs++
		return addr, nil
	}
	a.failures++
	return 0, malloc.ErrOutOfMemory
}

// fit returns where (size, align) goes inside r, if it does.
func fit(r Region, size, align uintptr) (uintptr, bool) {
	addr, ok := malloc.RoundUp(r.Start, align)
	if !ok {
		return 0, false
	}
	if front := addr - r.Start; front != 0 && front < MetadataSize {
		if addr, ok = malloc.RoundUp(r.Start+MetadataSize, align); !ok {
			return 0, false
		}
	}
	end, ok := malloc.CheckedAdd(addr, size)
	if !ok || end > r.End() {
		return 0, false
	}
	if tail := r.End() - end; tail != 0 && tail < MetadataSize {
		return 0, false
	}
	return addr, true
}

// take removes r and puts back what is left around [addr, addr+size).
func (a *Allocator) take(r *region, addr, size uintptr) {
	a.unlink(r)
	if end := addr + size; end < r.End() {
		a.insert(Region{Start: end, Size: r.End() - end})
	}
	if addr > r.Start {
		r.Size = addr - r.Start
		a.push(r)
	}
}

// Deallocate implements malloc.Allocator.
//
// The span is merged with the free regions right before and after it,
// until none is adjacent, then pushed at the head of the list.
func (a *Allocator) Deallocate(addr, size, align uintptr) {
	size, _, err := layout(size, align)
	if err != nil {
		return
	}
	a.allocated -= size
	a.frees++

	span := Region{Start: addr, Size: size}
	for merged := true; merged; {
		merged = false
		if p := a.before(span.Start); p != nil && p.End() == span.Start {
			a.unlink(p)
			span = Region{Start: p.Start, Size: p.Size + span.Size}
			merged = true
		}
		if n, ok := a.index.Get(&region{Region: Region{Start: span.End()}}); ok {
			a.unlink(n)
			span.Size += n.Size
			merged = true
		}
	}
	a.insert(span)
}

// before returns the free region with the greatest start below addr.
func (a *Allocator) before(addr uintptr) *region {
	var ret *region
	a.index.DescendLessOrEqual(&region{Region: Region{Start: addr}}, func(r *region) bool {
		if r.Start < addr {
			ret = r
			return false
		}
		return true
	})
	return ret
}

func (a *Allocator) insert(r Region) {
	a.push(&region{Region: r})
}

// push adds r at the head of the list and to the index.
func (a *Allocator) push(r *region) {
	r.prev = &a.head
	r.next = a.head.next
	a.head.next.prev = r
	a.head.next = r
	a.index.ReplaceOrInsert(r)
}

func (a *Allocator) unlink(r *region) {
	r.prev.next = r.next
	r.next.prev = r.prev
	r.prev, r.next = nil, nil
	a.index.Delete(r)
}

// Regions returns the free regions in list order.
func (a *Allocator) Regions() []Region {
	ret := make([]Region, 0, a.index.Len())
	for r := a.head.next; r != &a.head; r = r.next {
		ret = append(ret, r.Region)
	}
	return ret
}

// Start returns the first managed address.
func (a *Allocator) Start() uintptr {
	return a.start
}

// Capacity returns the number of bytes managed.
func (a *Allocator) Capacity() uintptr {
	return a.end - a.start
}

// Stats implements malloc.StatsSource.
func (a *Allocator) Stats() malloc.Stats {
	s := malloc.Stats{
		Capacity:   a.end - a.start,
		Allocated:  a.allocated,
		FreeBlocks: a.index.Len(),
		Allocs:     a.allocs,
		Frees:      a.frees,
		Failures:   a.failures,
	}
	a.index.Ascend(func(r *region) bool {
		s.Free += r.Size
		return true
	})
	return s
}

// Validate implements malloc.Strategy.
//
// It checks that the list and the index hold the same regions, that every
// region is inside the range and at least MetadataSize, that regions neither
// overlap nor touch, and that free plus allocated bytes add up to the capacity.
func (a *Allocator) Validate() error {
	n := 0
	for r := a.head.next; r != &a.head; r = r.next {
		if r.next.prev != r {
			return fmt.Errorf("region %#x: broken list links", r.Start)
		}
		if got, ok := a.index.Get(r); !ok || got != r {
			return fmt.Errorf("region %#x: in list but not indexed", r.Start)
		}
		n++
	}
	if n != a.index.Len() {
		return fmt.Errorf("%d regions in list, %d indexed", n, a.index.Len())
	}

	var (
		err  error
		prev *region
		free uintptr
	)
	a.index.Ascend(func(r *region) bool {
		switch {
		case r.Size < MetadataSize:
			err = fmt.Errorf("region %#x: size %d below %d", r.Start, r.Size, MetadataSize)
		case r.Start < a.start || r.End() > a.end || r.End() < r.Start:
			err = fmt.Errorf("region [%#x, %#x) outside of [%#x, %#x)", r.Start, r.End(), a.start, a.end)
		case prev != nil && prev.End() > r.Start:
			err = fmt.Errorf("regions %#x and %#x overlap", prev.Start, r.Start)
		case prev != nil && prev.End() == r.Start:
			err = fmt.Errorf("regions %#x and %#x are adjacent but not merged", prev.Start, r.Start)
		}
		prev = r
		free += r.Size
		return err == nil
	})
	if err != nil {
		return err
	}
	if free+a.allocated != a.end-a.start {
		return fmt.Errorf("free (%d) + allocated (%d) != capacity (%d)", free, a.allocated, a.end-a.start)
	}
	return nil
}

// Reset implements malloc.Strategy. The whole range becomes one region again.
func (a *Allocator) Reset() {
	a.head.prev, a.head.next = &a.head, &a.head
	a.index.Clear(false)
	if a.end > a.start {
		a.insert(Region{Start: a.start, Size: a.end - a.start})
	}
	a.allocated = 0
	a.allocs, a.frees, a.failures = 0, 0, 0
}
