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

	"github.com/bytedance/gopkg/collection/skipmap"
)

// Layout is the (size, align) pair an allocation was made with.
type Layout struct {
	Size  uintptr
	Align uintptr
}

// Tracker records every live allocation of the wrapped Allocator and panics
// when Deallocate does not match one of them: double free, foreign address,
// or a size/align different from the one used by Allocate.
//
// Tracker is safe for concurrent use if the wrapped Allocator is.
// Strategy correctness never depends on it, it only verifies callers.
type Tracker struct {
	a    Allocator
	live *skipmap.Uint64Map // addr -> Layout
}

// NewTracker wraps a.
func NewTracker(a Allocator) *Tracker {
	return &Tracker{a: a, live: skipmap.NewUint64()}
}

// Allocate implements Allocator.
func (t *Tracker) Allocate(size, align uintptr) (uintptr, error) {
	addr, err := t.a.Allocate(size, align)
	if err != nil {
		return 0, err
	}
	if align == 0 {
		align = 1
	}
	t.live.Store(uint64(addr), Layout{Size: size, Align: align})
	return addr, nil
}

// Deallocate implements Allocator.
// It panics if (addr, size, align) does not match a live allocation.
func (t *Tracker) Deallocate(addr, size, align uintptr) {
	v, ok := t.live.LoadAndDelete(uint64(addr))
	if !ok {
		panic(errDoubleFree)
	}
	if align == 0 {
		align = 1
	}
	if l := v.(Layout); l.Size != size || l.Align != align {
		panic(fmt.Sprintf("%s: addr=%#x allocated with size=%d align=%d, freed with size=%d align=%d",
			errLayoutMismatch, addr, l.Size, l.Align, size, align))
	}
	t.a.Deallocate(addr, size, align)
}

// Live returns the number of outstanding allocations.
func (t *Tracker) Live() int {
	return t.live.Len()
}

// Lookup returns the layout of the live allocation starting at addr.
func (t *Tracker) Lookup(addr uintptr) (Layout, bool) {
	v, ok := t.live.Load(uint64(addr))
	if !ok {
		return Layout{}, false
	}
	return v.(Layout), true
}

// Range calls f for every live allocation in address order until f returns false.
func (t *Tracker) Range(f func(addr uintptr, l Layout) bool) {
	t.live.Range(func(key uint64, value interface{}) bool {
		return f(uintptr(key), value.(Layout))
	})
}

// Stats returns the stats of the wrapped Allocator, or zero Stats if it has none.
func (t *Tracker) Stats() Stats {
	if s, ok := t.a.(StatsSource); ok {
		return s.Stats()
	}
	return Stats{}
}
