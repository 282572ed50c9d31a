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

import "sync"

// Locked guards a Strategy with a mutex held for the whole of each call,
// so at most one mutation of the strategy state is in progress at a time.
type Locked[S Strategy] struct {
	mu sync.Mutex
	s  S
}

// NewLocked wraps s. s must not be used directly afterwards.
func NewLocked[S Strategy](s S) *Locked[S] {
	return &Locked[S]{s: s}
}

// Allocate implements Allocator.
func (l *Locked[S]) Allocate(size, align uintptr) (uintptr, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.s.Allocate(size, align)
}

// Deallocate implements Allocator.
func (l *Locked[S]) Deallocate(addr, size, align uintptr) {
	l.mu.Lock()
	l.s.Deallocate(addr, size, align)
	l.mu.Unlock()
}

// Stats implements StatsSource.
func (l *Locked[S]) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.s.Stats()
}

// Validate implements Strategy.
func (l *Locked[S]) Validate() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.s.Validate()
}

// Reset implements Strategy.
func (l *Locked[S]) Reset() {
	l.mu.Lock()
	l.s.Reset()
	l.mu.Unlock()
}

// Do runs f with the lock held. f must not keep s after returning.
func (l *Locked[S]) Do(f func(s S)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	f(l.s)
}
