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

import "math/bits"

// IsPowerOfTwo reports whether x is a non-zero power of two.
func IsPowerOfTwo(x uintptr) bool {
	return x != 0 && x&(x-1) == 0
}

// NormalizeAlign maps 0 to 1 and rejects alignments which are not powers of two.
func NormalizeAlign(align uintptr) (uintptr, error) {
	if align == 0 {
		return 1, nil
	}
	if !IsPowerOfTwo(align) {
		return 0, ErrInvalidAlign
	}
	return align, nil
}

// RoundUp rounds addr up to the next multiple of align.
// align must be a power of two. ok is false if the result does not fit in uintptr.
func RoundUp(addr, align uintptr) (_ uintptr, ok bool) {
	mask := align - 1
	if addr&mask == 0 {
		return addr, true
	}
	sum, carry := bits.Add(uint(addr), uint(mask), 0)
	if carry != 0 {
		return 0, false
	}
	return uintptr(sum) &^ mask, true
}

// NaturalAlign returns the largest power of two dividing addr.
// Address 0 is aligned to everything, it returns the highest uintptr bit.
func NaturalAlign(addr uintptr) uintptr {
	if addr == 0 {
		return 1 << (bits.UintSize - 1)
	}
	return addr & -addr
}

// CheckedAdd returns a+b, ok is false on overflow.
func CheckedAdd(a, b uintptr) (_ uintptr, ok bool) {
	sum, carry := bits.Add(uint(a), uint(b), 0)
	return uintptr(sum), carry == 0
}
