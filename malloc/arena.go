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

import (
	"fmt"
	"unsafe"

	"github.com/bytedance/gopkg/lang/mcache"
)

// Arena owns a contiguous piece of real memory and maps the addresses handed
// out by a Strategy back to []byte.
//
// The memory must stay reachable while any address inside it is in use,
// Arena keeps a reference to it for that reason.
type Arena struct {
	buf     []byte
	base    uintptr
	release func()
}

// NewArena allocates size bytes from the byte-slice cache.
// Call Release to give the memory back once no block is in use.
func NewArena(size int) (*Arena, error) {
	if size <= 0 {
		return nil, fmt.Errorf("arena size must be > 0, got %d", size)
	}
	buf := mcache.Malloc(size)
	a := ArenaOf(buf)
	a.release = func() { mcache.Free(buf) }
	return a, nil
}

// ArenaOf uses buf as the backing memory. buf is not copied.
func ArenaOf(buf []byte) *Arena {
	a := &Arena{buf: buf}
	if len(buf) > 0 {
		a.base = uintptr(unsafe.Pointer(&buf[0]))
	}
	return a
}

// Len returns the size of the arena in bytes.
func (a *Arena) Len() int {
	return len(a.buf)
}

// Range returns the largest sub range [start, end) of the arena with start
// aligned to align. start == end if nothing is left after aligning.
func (a *Arena) Range(align uintptr) (start, end uintptr) {
	end = a.base + uintptr(len(a.buf))
	start, ok := RoundUp(a.base, align)
	if !ok || start > end {
		return end, end
	}
	return start, end
}

// Contains reports whether addr lies inside the arena.
func (a *Arena) Contains(addr uintptr) bool {
	return addr >= a.base && addr < a.base+uintptr(len(a.buf))
}

// Bytes returns the size bytes starting at addr, with len == cap == size.
// It panics if the block is not inside the arena.
func (a *Arena) Bytes(addr, size uintptr) []byte {
	off := addr - a.base
	return a.buf[off : off+size : off+size]
}

// Addr returns the address of the first byte of b, which must come from Bytes.
func (a *Arena) Addr(b []byte) uintptr {
	// read the slice header directly, so it works for zero-length slices
	return *(*uintptr)(unsafe.Pointer(&b))
}

// Release gives the memory back to where it came from.
// The arena must not be used afterwards.
func (a *Arena) Release() {
	if a.release != nil {
		a.release()
	}
	a.buf, a.base, a.release = nil, 0, nil
}
