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

import (
	"fmt"

	"github.com/dustin/go-humanize"
)

// Stats is a point-in-time snapshot of an allocator.
type Stats struct {
	Capacity   uintptr // bytes the allocator can ever hand out
	Allocated  uintptr // bytes currently handed out, including rounding
	Free       uintptr // bytes reachable from free lists
	FreeBlocks int     // number of free blocks or regions

	Allocs   uint64 // successful Allocate calls
	Frees    uint64 // Deallocate calls
	Failures uint64 // failed Allocate calls
}

// Utilization returns Allocated/Capacity in percent.
func (s Stats) Utilization() float64 {
	if s.Capacity == 0 {
		return 0
	}
	return float64(s.Allocated) / float64(s.Capacity) * 100
}

func (s Stats) String() string {
	return fmt.Sprintf("capacity=%s allocated=%s free=%s (%d blocks) allocs=%d frees=%d failures=%d",
		humanize.IBytes(uint64(s.Capacity)),
		humanize.IBytes(uint64(s.Allocated)),
		humanize.IBytes(uint64(s.Free)),
		s.FreeBlocks, s.Allocs, s.Frees, s.Failures)
}
