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

import "errors"

var (
	// ErrOutOfMemory indicates that no free block large enough exists.
	ErrOutOfMemory = errors.New("malloc: out of memory")

	// ErrRangeExceeded indicates that the request is larger than the whole
	// range an allocator can ever hand out.
	ErrRangeExceeded = errors.New("malloc: size exceeds allocator capacity")

	// ErrOverflow indicates that address arithmetic would wrap around.
	ErrOverflow = errors.New("malloc: address overflow")

	// ErrInvalidAlign indicates an alignment which is not a power of two,
	// or one the allocator cannot honor.
	ErrInvalidAlign = errors.New("malloc: invalid alignment")
)

// panic messages for contract violations caught by Tracker.
const (
	errDoubleFree     = "malloc: double free or invalid block"
	errLayoutMismatch = "malloc: layout mismatch"
)
