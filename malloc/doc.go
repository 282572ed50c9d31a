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

// Package malloc defines the allocation contract shared by the allocator
// strategies under this directory, and the glue used to run them:
//
//   - Allocator / Strategy: allocate and deallocate addresses inside a fixed
//     range [start, end) handed over by the caller.
//   - Locked: serializes every call against one strategy with a mutex.
//   - Tracker: records live allocations and panics on mismatched frees.
//   - Arena and Heap: back an address range with real memory and hand out
//     []byte instead of raw addresses.
//
// Strategies live in sub packages:
//
//	buddy   binary power-of-two partitioning with splitting and coalescing
//	linked  first-fit free list with region splitting and coalescing
//	bump    monotonic cursor, reset when nothing is outstanding
//
// Strategies never touch the memory they manage, so the same code can serve
// a []byte slab, an mmap'd region or a purely synthetic address space.
package malloc
