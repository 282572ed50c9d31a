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

// Allocator is the allocation contract every strategy exposes.
//
// Deallocate must be called with the exact (addr, size, align) of a prior
// successful Allocate which has not been freed yet. Anything else is a
// contract violation and is not detected, see Tracker for a checked variant.
type Allocator interface {
	// Allocate returns the start address of a block of at least size bytes
	// aligned to align. align must be a power of two, 0 is treated as 1.
	Allocate(size, align uintptr) (uintptr, error)

	// Deallocate gives a block back to the allocator.
	Deallocate(addr, size, align uintptr)
}

// StatsSource is implemented by anything able to report allocation stats.
type StatsSource interface {
	Stats() Stats
}

// Strategy is an Allocator owning its bookkeeping.
//
// Strategies are not safe for concurrent use, wrap them with NewLocked.
type Strategy interface {
	Allocator
	StatsSource

	// Validate walks the bookkeeping and reports the first broken invariant.
	Validate() error

	// Reset forgets all allocations and returns to the initial state.
	Reset()
}
