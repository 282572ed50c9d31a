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

package malloc

// DefaultAlign is the alignment Heap uses when none is given.
const DefaultAlign = 8

// Heap hands out []byte carved from an Arena by an Allocator.
// It is safe for concurrent use if the Allocator is (see Locked).
type Heap struct {
	arena *Arena
	a     Allocator
	align uintptr
}

// NewHeap returns a Heap serving blocks aligned to align (DefaultAlign if 0).
// a must manage a range inside arena, usually one obtained from arena.Range.
func NewHeap(arena *Arena, a Allocator, align uintptr) (*Heap, error) {
	if align == 0 {
		align = DefaultAlign
	}
	if !IsPowerOfTwo(align) {
		return nil, ErrInvalidAlign
	}
	return &Heap{arena: arena, a: a, align: align}, nil
}

// Malloc returns a block with len == cap == size, or nil if size <= 0 or
// the allocator has no room for it. The content is not zeroed.
func (h *Heap) Malloc(size int) []byte {
	if size <= 0 {
		return nil
	}
	addr, err := h.a.Allocate(uintptr(size), h.align)
	if err != nil {
		return nil
	}
	return h.arena.Bytes(addr, uintptr(size))
}

// Free gives b back. b must be the slice returned by Malloc, resliced at most
// as b[:n]: the start pointer and cap identify the block.
// Panics if b does not point into the arena.
func (h *Heap) Free(b []byte) {
	if cap(b) == 0 {
		return
	}
	addr := h.arena.Addr(b)
	if !h.arena.Contains(addr) {
		panic("malloc: block not in arena")
	}
	h.a.Deallocate(addr, uintptr(cap(b)), h.align)
}

// Arena returns the backing arena.
func (h *Heap) Arena() *Arena {
	return h.arena
}

// Allocator returns the allocator serving the heap.
func (h *Heap) Allocator() Allocator {
	return h.a
}
