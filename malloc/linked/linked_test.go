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

package linked

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inda21plusplus/dtottie-hw11/internal/testutils/malloctest"
	"github.com/inda21plusplus/dtottie-hw11/malloc"
)

const testStart = uintptr(0x1000)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		start   uintptr
		end     uintptr
		regions int
		wantErr bool
	}{
		{"one_region", testStart, testStart + 1024, 1, false},
		{"metadata_size", testStart, testStart + MetadataSize, 1, false},
		{"empty", testStart, testStart, 0, false},
		{"odd_size", testStart, testStart + 1001, 1, false},
		{"misaligned_start", testStart + 1, testStart + 1025, 0, true},
		{"too_small", testStart, testStart + MetadataSize - 1, 0, true},
		{"end_before_start", testStart, testStart - 16, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := New(tt.start, tt.end)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Len(t, a.Regions(), tt.regions)
			assert.NoError(t, a.Validate())
		})
	}
}

func TestEmptyRange(t *testing.T) {
	a, err := New(testStart, testStart)
	require.NoError(t, err)
	_, err = a.Allocate(0, 0)
	assert.ErrorIs(t, err, malloc.ErrOutOfMemory)
}

func TestFirstFit(t *testing.T) {
	// A(64) S(16) B(128) S(16) C(32) S(16) fills the range exactly,
	// the S blocks keep A, B and C from coalescing.
	a := newTestAllocator(t, 272)
	addrs := make([]uintptr, 0, 6)
	for _, size := range []uintptr{64, 16, 128, 16, 32, 16} {
		addr, err := a.Allocate(size, 8)
		require.NoError(t, err)
		addrs = append(addrs, addr)
	}
	assert.Empty(t, a.Regions())
	blockA, blockB, blockC := addrs[0], addrs[2], addrs[4]
	assert.Equal(t, testStart, blockA)
	assert.Equal(t, testStart+80, blockB)
	assert.Equal(t, testStart+224, blockC)

	a.Deallocate(blockC, 32, 8)
	a.Deallocate(blockB, 128, 8)
	a.Deallocate(blockA, 64, 8)
	require.NoError(t, a.Validate())
	assert.Equal(t, []Region{
		{Start: blockA, Size: 64},
		{Start: blockB, Size: 128},
		{Start: blockC, Size: 32},
	}, a.Regions())

	// 50 rounds to 56: A would leave 8 bytes, B is the first fit, C is too small
	addr, err := a.Allocate(50, 1)
	require.NoError(t, err)
	assert.Equal(t, blockB, addr)
	assert.Equal(t, []Region{
		{Start: blockB + 56, Size: 72},
		{Start: blockA, Size: 64},
		{Start: blockC, Size: 32},
	}, a.Regions())
	require.NoError(t, a.Validate())
}

func TestCoalesce(t *testing.T) {
	for _, order := range [][]int{{0, 1}, {1, 0}} {
		a := newTestAllocator(t, 64)
		x, err := a.Allocate(32, 8)
		require.NoError(t, err)
		y, err := a.Allocate(32, 8)
		require.NoError(t, err)
		assert.Equal(t, x+32, y)
		assert.Empty(t, a.Regions())

		blocks := []uintptr{x, y}
		for _, i := range order {
			a.Deallocate(blocks[i], 32, 8)
		}
		assert.Equal(t, []Region{{Start: testStart, Size: 64}}, a.Regions(), "order=%v", order)
		require.NoError(t, a.Validate())

		addr, err := a.Allocate(64, 8)
		require.NoError(t, err)
		assert.Equal(t, testStart, addr)
	}
}

func TestCoalesceBothSides(t *testing.T) {
	a := newTestAllocator(t, 48)
	var blocks []uintptr
	for i := 0; i < 3; i++ {
		addr, err := a.Allocate(16, 8)
		require.NoError(t, err)
		blocks = append(blocks, addr)
	}
	a.Deallocate(blocks[0], 16, 8)
	a.Deallocate(blocks[2], 16, 8)
	assert.Len(t, a.Regions(), 2)

	a.Deallocate(blocks[1], 16, 8)
	assert.Equal(t, []Region{{Start: testStart, Size: 48}}, a.Regions())
	require.NoError(t, a.Validate())
}

func TestTailLeftover(t *testing.T) {
	a := newTestAllocator(t, 40)

	// would leave 8 bytes, too small for a region
	_, err := a.Allocate(32, 8)
	assert.ErrorIs(t, err, malloc.ErrOutOfMemory)

	addr, err := a.Allocate(24, 8)
	require.NoError(t, err)
	assert.Equal(t, []Region{{Start: addr + 24, Size: 16}}, a.Regions())
	a.Deallocate(addr, 24, 8)

	addr, err = a.Allocate(40, 8)
	require.NoError(t, err)
	assert.Empty(t, a.Regions())
	a.Deallocate(addr, 40, 8)
	require.NoError(t, a.Validate())
}

func TestAlign(t *testing.T) {
	a := newTestAllocator(t, 4096)

	first, err := a.Allocate(24, 8)
	require.NoError(t, err)
	assert.Equal(t, testStart, first)

	// 0x1018 rounds to 0x1020, 8 bytes of padding is not a region
	addr, err := a.Allocate(16, 16)
	require.NoError(t, err)
	assert.Equal(t, testStart+0x30, addr)
	assert.Contains(t, a.Regions(), Region{Start: testStart + 0x18, Size: 0x18})

	big, err := a.Allocate(100, 256)
	require.NoError(t, err)
	assert.Zero(t, big%256)
	assert.Contains(t, a.Regions(), Region{Start: testStart + 0x40, Size: big - testStart - 0x40})
	require.NoError(t, a.Validate())

	_, err = a.Allocate(8, 3)
	assert.ErrorIs(t, err, malloc.ErrInvalidAlign)

	a.Deallocate(big, 100, 256)
	a.Deallocate(first, 24, 8)
	a.Deallocate(addr, 16, 16)
	assert.Equal(t, []Region{{Start: testStart, Size: 4096}}, a.Regions())
	require.NoError(t, a.Validate())
}

func TestBoundaries(t *testing.T) {
	a := newTestAllocator(t, 1024)

	addr, err := a.Allocate(0, 0)
	require.NoError(t, err)
	assert.Equal(t, MetadataSize, a.Stats().Allocated)
	a.Deallocate(addr, 0, 0)

	_, err = a.Allocate(1025, 1)
	assert.ErrorIs(t, err, malloc.ErrOutOfMemory)
	_, err = a.Allocate(^uintptr(0), 8)
	assert.ErrorIs(t, err, malloc.ErrOverflow)
	assert.Equal(t, uint64(2), a.Stats().Failures)
	require.NoError(t, a.Validate())
}

func TestRoundTrip(t *testing.T) {
	a := newTestAllocator(t, 64*1024)
	for _, size := range []uintptr{0, 1, 15, 16, 17, 100, 4096, 60 * 1024} {
		for _, align := range []uintptr{0, 1, 8, 64, 1024} {
			malloctest.RoundTrip(t, a, size, align)
		}
	}
	require.NoError(t, a.Validate())
	assert.Equal(t, []Region{{Start: testStart, Size: 64 * 1024}}, a.Regions())
}

func TestRandomized(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	a := newTestAllocator(t, 64*1024)
	sizes := []uintptr{0, 1, 16, 50, 100, 256, 1000, 4096}
	aligns := []uintptr{1, 8, 16, 64, 512}
	live := malloctest.NewLive()
	var blocks []malloctest.Block

	for i := 0; i < 20000; i++ {
		if len(blocks) == 0 || rng.Intn(3) != 0 {
			b := malloctest.Block{Size: sizes[rng.Intn(len(sizes))], Align: aligns[rng.Intn(len(aligns))]}
			addr, err := a.Allocate(b.Size, b.Align)
			if err != nil {
				require.ErrorIs(t, err, malloc.ErrOutOfMemory)
				continue
			}
			b.Addr = addr
			require.Zero(t, addr%b.Align)
			hit, overlap := live.Add(b)
			require.False(t, overlap, "%#x overlaps %#x", addr, hit.Addr)
			blocks = append(blocks, b)
		} else {
			k := rng.Intn(len(blocks))
			b := blocks[k]
			blocks[k] = blocks[len(blocks)-1]
			blocks = blocks[:len(blocks)-1]
			live.Remove(b.Addr)
			a.Deallocate(b.Addr, b.Size, b.Align)
		}
		if i%500 == 0 {
			require.NoError(t, a.Validate())
		}
	}
	for _, b := range blocks {
		a.Deallocate(b.Addr, b.Size, b.Align)
	}
	require.NoError(t, a.Validate())
	assert.Equal(t, []Region{{Start: testStart, Size: 64 * 1024}}, a.Regions())
}

func TestConcurrentStress(t *testing.T) {
	const size = 1 << 20
	a := newTestAllocator(t, size)
	l := malloc.NewLocked(a)
	n := malloctest.Stress(t, l, malloctest.StressConfig{
		Workers: 8,
		Ops:     5000,
		Sizes:   []uintptr{0, 8, 64, 100, 512, 4096, 20000},
		Aligns:  []uintptr{1, 8, 64, 1024},
		Start:   testStart,
		End:     testStart + size,
	})
	assert.Greater(t, n, 0)
	require.NoError(t, l.Validate())
	s := l.Stats()
	assert.Equal(t, uintptr(0), s.Allocated)
	assert.Equal(t, 1, s.FreeBlocks)
	assert.Equal(t, uintptr(size), s.Free)
}

func TestReset(t *testing.T) {
	a := newTestAllocator(t, 1024)
	for i := 0; i < 5; i++ {
		_, err := a.Allocate(100, 8)
		require.NoError(t, err)
	}
	a.Reset()
	require.NoError(t, a.Validate())
	assert.Equal(t, malloc.Stats{Capacity: 1024, Free: 1024, FreeBlocks: 1}, a.Stats())
}

func newTestAllocator(t *testing.T, size uintptr) *Allocator {
	t.Helper()
	a, err := New(testStart, testStart+size)
	require.NoError(t, err)
	return a
}

func BenchmarkAllocate(b *testing.B) {
	a, _ := New(testStart, testStart+16<<20)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		addr, err := a.Allocate(8192, 8)
		if err == nil {
			a.Deallocate(addr, 8192, 8)
		}
	}
}

func BenchmarkFragmented(b *testing.B) {
	a, _ := New(testStart, testStart+16<<20)
	// every other 64 bytes block stays allocated
	var keep []uintptr
	for i := 0; i < 1024; i++ {
		x, _ := a.Allocate(64, 8)
		y, _ := a.Allocate(64, 8)
		a.Deallocate(x, 64, 8)
		keep = append(keep, y)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		addr, err := a.Allocate(128, 8)
		if err == nil {
			a.Deallocate(addr, 128, 8)
		}
	}
	b.StopTimer()
	for _, addr := range keep {
		a.Deallocate(addr, 64, 8)
	}
}
