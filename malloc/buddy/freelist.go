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

// freeList is the set of free block indexes of one level.
// push, pop, remove and contains are O(1); pop order is unspecified.
type freeList struct {
	blocks []uint64
	pos    map[uint64]int // index -> position in blocks
}

func newFreeList(capacity int) freeList {
	return freeList{
		blocks: make([]uint64, 0, capacity),
		pos:    make(map[uint64]int, capacity),
	}
}

func (l *freeList) len() int {
	return len(l.blocks)
}

func (l *freeList) contains(index uint64) bool {
	_, ok := l.pos[index]
	return ok
}

func (l *freeList) push(index uint64) {
	l.pos[index] = len(l.blocks)
	l.blocks = append(l.blocks, index)
}

func (l *freeList) pop() (uint64, bool) {
	n := len(l.blocks) - 1
	if n < 0 {
		return 0, false
	}
	index := l.blocks[n]
	l.blocks = l.blocks[:n]
	delete(l.pos, index)
	return index, true
}

// remove deletes index, swapping the last entry into its place.
func (l *freeList) remove(index uint64) bool {
	p, ok := l.pos[index]
	if !ok {
		return false
	}
	n := len(l.blocks) - 1
	if last := l.blocks[n]; p != n {
		l.blocks[p] = last
		l.pos[last] = p
	}
	l.blocks = l.blocks[:n]
	delete(l.pos, index)
	return true
}

func (l *freeList) reset() {
	l.blocks = l.blocks[:0]
	for k := range l.pos {
		delete(l.pos, k)
	}
}
