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

package buddy

import "math/bits"

// bitset marks leaf blocks covered while validating.
type bitset []uint64

func newBitset(n uint64) bitset {
	return make(bitset, (n+63)/64)
}

func (b bitset) isSet(i uint64) bool {
	return b[i>>6]&(1<<(i&63)) != 0
}

// setRange sets bits [i, i+count) and reports whether any of them was already set.
func (b bitset) setRange(i, count uint64) (overlap bool) {
	end := i + count
	for i < end {
		// whole word
		if i&63 == 0 && end-i >= 64 {
			if b[i>>6] != 0 {
				overlap = true
			}
			b[i>>6] = ^uint64(0)
			i += 64
			continue
		}
		if b.isSet(i) {
			overlap = true
		}
		b[i>>6] |= 1 << (i & 63)
		i++
	}
	return overlap
}

// count returns the number of set bits.
func (b bitset) count() (n uint64) {
	for _, w := range b {
		n += uint64(bits.OnesCount64(w))
	}
	return n
}
