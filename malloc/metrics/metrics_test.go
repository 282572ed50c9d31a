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

package metrics

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inda21plusplus/dtottie-hw11/malloc"
	"github.com/inda21plusplus/dtottie-hw11/malloc/buddy"
	"github.com/inda21plusplus/dtottie-hw11/malloc/linked"
)

func TestCollector(t *testing.T) {
	b, err := buddy.New(0x10000, 0x10000+4096, 64)
	require.NoError(t, err)
	l, err := linked.New(0x10000, 0x10000+1024)
	require.NoError(t, err)

	lb := malloc.NewLocked(b)
	c := NewCollector("malloc")
	c.Add("buddy", lb)
	c.Add("linked", l)
	assert.Equal(t, 2, c.Len())
	assert.Equal(t, 14, testutil.CollectAndCount(c))

	_, err = lb.Allocate(100, 8)
	require.NoError(t, err)
	_, err = l.Allocate(100, 8)
	require.NoError(t, err)
	_, err = l.Allocate(4096, 8)
	require.Error(t, err)

	expected := `
# HELP malloc_allocated_bytes Bytes currently handed out, including rounding.
# TYPE malloc_allocated_bytes gauge
malloc_allocated_bytes{allocator="buddy"} 128
malloc_allocated_bytes{allocator="linked"} 104
# HELP malloc_failures_total Failed allocations.
# TYPE malloc_failures_total counter
malloc_failures_total{allocator="buddy"} 0
malloc_failures_total{allocator="linked"} 1
`
	assert.NoError(t, testutil.CollectAndCompare(c, strings.NewReader(expected),
		"malloc_allocated_bytes", "malloc_failures_total"))

	c.Remove("linked")
	assert.Equal(t, 7, testutil.CollectAndCount(c))
	assert.Equal(t, 1, testutil.CollectAndCount(c, "malloc_free_blocks"))
}

func TestRegister(t *testing.T) {
	reg := prometheus.NewPedanticRegistry()
	c := NewCollector("test")
	require.NoError(t, reg.Register(c))

	a, err := linked.New(0x10000, 0x10000+1024)
	require.NoError(t, err)
	c.Add("a", a)

	mfs, err := reg.Gather()
	require.NoError(t, err)
	assert.Len(t, mfs, 7)
	for _, mf := range mfs {
		assert.True(t, strings.HasPrefix(mf.GetName(), "test_"), mf.GetName())
	}
}
