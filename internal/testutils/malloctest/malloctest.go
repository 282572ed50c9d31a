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

// Package malloctest holds checks shared by the allocator strategy tests.
package malloctest

import (
	"sync"
	"testing"

	"github.com/bytedance/gopkg/lang/fastrand"
	"github.com/google/btree"
	"github.com/stretchr/testify/require"

	"github.com/inda21plusplus/dtottie-hw11/malloc"
)

// Block is a live allocation.
type Block struct {
	Addr  uintptr
	Size  uintptr
	Align uintptr
}

// End returns the first address after the block. Zero sized blocks count as one byte.
func (b Block) End() uintptr {
	if b.Size == 0 {
		return b.Addr + 1
	}
	return b.Addr + b.Size
}

// Overlaps reports whether x and y share at least one byte.
func Overlaps(x, y Block) bool {
	return x.Addr < y.End() && y.Addr < x.End()
}

// Live is an address-ordered set of live blocks. It is safe for concurrent use.
type Live struct {
	mu     sync.Mutex
	blocks *btree.BTreeG[Block]
}

// NewLive returns an empty set.
func NewLive() *Live {
	return &Live{blocks: btree.NewG(8, func(a, b Block) bool { return a.Addr < b.Addr })}
}

// Add records b. If b overlaps a live block, that block is returned and b is not added.
func (l *Live) Add(b Block) (Block, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var hit Block
	found := false
	l.blocks.DescendLessOrEqual(b, func(prev Block) bool {
		if Overlaps(prev, b) {
			hit, found = prev, true
		}
		return false
	})
	if !found {
		l.blocks.AscendGreaterOrEqual(b, func(next Block) bool {
			if Overlaps(next, b) {
				hit, found = next, true
			}
			return false
		})
	}
	if found {
		return hit, true
	}
	l.blocks.ReplaceOrInsert(b)
	return Block{}, false
}

// Remove forgets the block starting at addr.
func (l *Live) Remove(addr uintptr) (Block, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.blocks.Delete(Block{Addr: addr})
}

// Len returns the number of live blocks.
func (l *Live) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.blocks.Len()
}

// Blocks returns the live blocks in address order.
func (l *Live) Blocks() []Block {
	l.mu.Lock()
	defer l.mu.Unlock()
	ret := make([]Block, 0, l.blocks.Len())
	l.blocks.Ascend(func(b Block) bool {
		ret = append(ret, b)
		return true
	})
	return ret
}

// RoundTrip allocates (size, align), frees it, and allocates it again.
func RoundTrip(t testing.TB, a malloc.Allocator, size, align uintptr) {
	t.Helper()
	addr, err := a.Allocate(size, align)
	require.NoError(t, err, "first allocate size=%d align=%d", size, align)
	a.Deallocate(addr, size, align)
	addr2, err := a.Allocate(size, align)
	require.NoError(t, err, "second allocate size=%d align=%d", size, align)
	a.Deallocate(addr2, size, align)
}

// StressConfig drives Stress.
type StressConfig struct {
	Workers int       // concurrent goroutines
	Ops     int       // operations per goroutine
	Sizes   []uintptr // request sizes, picked at random
	Aligns  []uintptr // request alignments, picked at random
	Start   uintptr   // managed range, every address must be inside
	End     uintptr
}

// Stress runs random allocate/deallocate calls from c.Workers goroutines
// against a, and reports overlapping or out-of-range blocks.
// Every block is freed before returning. It returns the number of
// successful allocations.
func Stress(t testing.TB, a malloc.Allocator, c StressConfig) int {
	t.Helper()
	live := NewLive()
	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		total int
	)
	for w := 0; w < c.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var mine []Block
			n := 0
			for i := 0; i < c.Ops; i++ {
				if len(mine) > 0 && fastrand.Intn(3) == 0 {
					k := fastrand.Intn(len(mine))
					b := mine[k]
					mine[k] = mine[len(mine)-1]
					mine = mine[:len(mine)-1]
					// forget it before the allocator may hand it out again
					live.Remove(b.Addr)
					a.Deallocate(b.Addr, b.Size, b.Align)
					continue
				}
				b := Block{
					Size:  c.Sizes[fastrand.Intn(len(c.Sizes))],
					Align: c.Aligns[fastrand.Intn(len(c.Aligns))],
				}
				addr, err := a.Allocate(b.Size, b.Align)
				if err != nil {
					continue
				}
				b.Addr = addr
				n++
				if b.Addr < c.Start || b.End() > c.End {
					t.Errorf("block [%#x, %#x) outside of [%#x, %#x)", b.Addr, b.End(), c.Start, c.End)
				}
				if b.Align > 1 && b.Addr%b.Align != 0 {
					t.Errorf("block %#x not aligned to %d", b.Addr, b.Align)
				}
				if hit, ok := live.Add(b); ok {
					t.Errorf("block [%#x, %#x) overlaps [%#x, %#x)", b.Addr, b.End(), hit.Addr, hit.End())
					continue
				}
				mine = append(mine, b)
			}
			for _, b := range mine {
				live.Remove(b.Addr)
				a.Deallocate(b.Addr, b.Size, b.Align)
			}
			mu.Lock()
			total += n
			mu.Unlock()
		}()
	}
	wg.Wait()
	return total
}
