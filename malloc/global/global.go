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

// Package global binds one allocation strategy, serialized by malloc.Locked,
// to a process-wide Allocate/Deallocate entry point.
package global

import (
	"errors"
	"fmt"
	"log"
	"sync/atomic"

	"github.com/inda21plusplus/dtottie-hw11/malloc"
	"github.com/inda21plusplus/dtottie-hw11/malloc/buddy"
	"github.com/inda21plusplus/dtottie-hw11/malloc/bump"
	"github.com/inda21plusplus/dtottie-hw11/malloc/linked"
)

// Strategy names accepted by Option.Strategy.
const (
	StrategyBuddy  = "buddy"
	StrategyLinked = "linked"
	StrategyBump   = "bump"
	StrategyArena  = "arena" // same as StrategyBump
)

// ErrNotInstalled is returned by Allocate when no Adapter was installed.
var ErrNotInstalled = errors.New("malloc: no global allocator installed")

// FailureHandler is called when an allocation fails.
type FailureHandler func(name string, size, align uintptr, err error)

// Option ...
type Option struct {
	// Strategy is one of the Strategy* names.
	Strategy string

	// LeafSize is the smallest block of the buddy strategy, ignored by others.
	LeafSize uintptr

	// Verify checks every Deallocate against the live allocations and panics
	// on double or mismatched frees. It costs a map entry per live block.
	Verify bool
}

// DefaultOption returns the default values of Option.
func DefaultOption() *Option {
	return &Option{
		Strategy: StrategyBuddy,
		LeafSize: buddy.DefaultLeafSize,
	}
}

// Adapter is a strategy behind a lock, exposed as a malloc.Allocator.
// It is safe for concurrent use.
type Adapter struct {
	name     string
	strategy malloc.Strategy  // locked
	a        malloc.Allocator // strategy, or a Tracker over it
	tracker  *malloc.Tracker

	failureHandler atomic.Value // FailureHandler
}

// New creates an Adapter managing [start, end) with the strategy picked by o.
func New(name string, start, end uintptr, o *Option) (*Adapter, error) {
	if o == nil {
		o = DefaultOption()
	}
	s, err := newStrategy(start, end, o)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	ad := &Adapter{name: name, strategy: s, a: s}
	if o.Verify {
		ad.tracker = malloc.NewTracker(s)
		ad.a = ad.tracker
	}
	return ad, nil
}

// NewFromArena creates an Adapter managing the part of arena aligned to
// what the strategy needs.
func NewFromArena(name string, arena *malloc.Arena, o *Option) (*Adapter, error) {
	if o == nil {
		o = DefaultOption()
	}
	var align uintptr = 1
	switch o.Strategy {
	case StrategyBuddy, "":
		align = o.LeafSize
		if align == 0 {
			align = buddy.DefaultLeafSize
		}
	case StrategyLinked:
		align = linked.MetadataAlign
	}
	if !malloc.IsPowerOfTwo(align) {
		return nil, fmt.Errorf("%s: leaf size must be a power of two, got %d", name, align)
	}
	start, end := arena.Range(align)
	return New(name, start, end, o)
}

func newStrategy(start, end uintptr, o *Option) (malloc.Strategy, error) {
	switch o.Strategy {
	case StrategyBuddy, "":
		leaf := o.LeafSize
		if leaf == 0 {
			leaf = buddy.DefaultLeafSize
		}
		a, err := buddy.New(start, end, leaf)
		if err != nil {
			return nil, err
		}
		return malloc.NewLocked(a), nil
	case StrategyLinked:
		a, err := linked.New(start, end)
		if err != nil {
			return nil, err
		}
		return malloc.NewLocked(a), nil
	case StrategyBump, StrategyArena:
		a, err := bump.New(start, end)
		if err != nil {
			return nil, err
		}
		return malloc.NewLocked(a), nil
	}
	return nil, fmt.Errorf("unknown strategy %q", o.Strategy)
}

// Name returns the name given to New.
func (ad *Adapter) Name() string {
	return ad.name
}

// Allocate implements malloc.Allocator.
// Failures are reported to the failure handler before being returned.
func (ad *Adapter) Allocate(size, align uintptr) (uintptr, error) {
	addr, err := ad.a.Allocate(size, align)
	if err != nil {
		ad.onFailure(size, align, err)
		return 0, err
	}
	return addr, nil
}

// Deallocate implements malloc.Allocator.
// With Option.Verify it panics if (addr, size, align) is not a live allocation.
func (ad *Adapter) Deallocate(addr, size, align uintptr) {
	ad.a.Deallocate(addr, size, align)
}

// Stats implements malloc.StatsSource.
func (ad *Adapter) Stats() malloc.Stats {
	return ad.strategy.Stats()
}

// Validate checks the internal consistency of the strategy.
func (ad *Adapter) Validate() error {
	return ad.strategy.Validate()
}

// Live returns the number of outstanding allocations, or -1 without Option.Verify.
func (ad *Adapter) Live() int {
	if ad.tracker == nil {
		return -1
	}
	return ad.tracker.Live()
}

// SetFailureHandler sets a func for handling failed allocations.
//
// By default, Adapter will use log.Printf to record the failure.
func (ad *Adapter) SetFailureHandler(f FailureHandler) {
	ad.failureHandler.Store(f)
}

func (ad *Adapter) onFailure(size, align uintptr, err error) {
	if f, _ := ad.failureHandler.Load().(FailureHandler); f != nil {
		f(ad.name, size, align, err)
		return
	}
	if f, _ := defaultFailureHandler.Load().(FailureHandler); f != nil {
		f(ad.name, size, align, err)
		return
	}
	log.Printf("MALLOC: allocation failed in %s: size=%d align=%d: %v", ad.name, size, align, err)
}

var (
	installed             atomic.Pointer[Adapter]
	defaultFailureHandler atomic.Value // FailureHandler
)

// Install makes ad the process-wide allocator and returns the previous one.
// Passing nil uninstalls it.
func Install(ad *Adapter) *Adapter {
	return installed.Swap(ad)
}

// Default returns the installed Adapter, or nil.
func Default() *Adapter {
	return installed.Load()
}

// Allocate allocates from the installed Adapter.
func Allocate(size, align uintptr) (uintptr, error) {
	ad := installed.Load()
	if ad == nil {
		return 0, ErrNotInstalled
	}
	return ad.Allocate(size, align)
}

// Deallocate gives a block back to the installed Adapter.
// It does nothing if no Adapter is installed.
func Deallocate(addr, size, align uintptr) {
	if ad := installed.Load(); ad != nil {
		ad.Deallocate(addr, size, align)
	}
}

// SetFailureHandler sets the failure handler used by adapters which have no
// handler of their own.
//
// check the comment of (*Adapter).SetFailureHandler for details
func SetFailureHandler(f FailureHandler) {
	defaultFailureHandler.Store(f)
}
