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

// Package bump implements a monotonic allocator: each allocation moves a
// cursor forward, and the whole range is reclaimed at once when the last
// outstanding block is freed.
package bump

import (
	"fmt"

	"github.com/inda21plusplus/dtottie-hw11/malloc"
)

// Allocator hands out [start, end) from a moving cursor.
//
// Allocator is not safe for concurrent use, see malloc.Locked.
type Allocator struct {
	start uintptr
	end   uintptr
	next  uintptr

	// outstanding is the number of blocks not freed yet.
	outstanding int

	allocs   uint64
	frees    uint64
	failures uint64
}

var _ malloc.Strategy = (*Allocator)(nil)

// New creates a bump allocator over [start, end).
func New(start, end uintptr) (*Allocator, error) {
	if end < start {
		return nil, fmt.Errorf("invalid range [%#x, %#x)", start, end)
	}
	return &Allocator{start: start, end: end, next: start}, nil
}

// Allocate implements malloc.Allocator.
// Zero sized requests still take one byte so every address is distinct.
func (a *Allocator) Allocate(size, align uintptr) (uintptr, error) {
	align, err := malloc.NormalizeAlign(align)
	if err != nil {
		a.failures++
		return 0, err
	}
	if size == 0 {
		size = 1
	}
	addr, ok := malloc.RoundUp(a.next, align)
	if !ok {
		a.failures++
		return 0, malloc.ErrOverflow
	}
	end, ok := malloc.CheckedAdd(addr, size)
	if !ok {
		a.failures++
		return 0, malloc.ErrOverflow
	}
	if end > a.end {
		a.failures++
		if size > a.end-a.start {
			return 0, malloc.ErrRangeExceeded
		}
		return 0, malloc.ErrOutOfMemory
	}
	a.next = end
	a.outstanding++
	a.allocs++
	return addr, nil
}

// Deallocate implements malloc.Allocator. Only the number of outstanding
// blocks is tracked: the cursor goes back to start when it drops to zero.
func (a *Allocator) Deallocate(addr, size, align uintptr) {
	if a.outstanding == 0 {
		return
	}
	a.frees++
	a.outstanding--
	if a.outstanding == 0 {
		a.next = a.start
	}
}

// Outstanding returns the number of blocks not freed yet.
func (a *Allocator) Outstanding() int {
	return a.outstanding
}

// Stats implements malloc.StatsSource. Allocated counts every byte behind the
// cursor, alignment padding included.
func (a *Allocator) Stats() malloc.Stats {
	s := malloc.Stats{
		Capacity:  a.end - a.start,
		Allocated: a.next - a.start,
		Free:      a.end - a.next,
		Allocs:    a.allocs,
		Frees:     a.frees,
		Failures:  a.failures,
	}
	if s.Free > 0 {
		s.FreeBlocks = 1
	}
	return s
}

// Validate implements malloc.Strategy.
func (a *Allocator) Validate() error {
	if a.next < a.start || a.next > a.end {
		return fmt.Errorf("cursor %#x outside of [%#x, %#x]", a.next, a.start, a.end)
	}
	if a.outstanding < 0 {
		return fmt.Errorf("negative outstanding count %d", a.outstanding)
	}
	if a.outstanding == 0 && a.next != a.start {
		return fmt.Errorf("no outstanding block but cursor at %#x", a.next)
	}
	return nil
}

// Reset implements malloc.Strategy.
func (a *Allocator) Reset() {
	a.next = a.start
	a.outstanding = 0
	a.allocs, a.frees, a.failures = 0, 0, 0
}
