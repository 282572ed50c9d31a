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

// Package metrics exports allocator stats as prometheus metrics.
package metrics

import (
	"github.com/bytedance/gopkg/collection/skipmap"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/inda21plusplus/dtottie-hw11/malloc"
)

// Collector is a prometheus.Collector reading the Stats of named allocators
// at scrape time. Every metric has an "allocator" label.
type Collector struct {
	sources *skipmap.StringMap // name -> malloc.StatsSource

	capacity   *prometheus.Desc
	allocated  *prometheus.Desc
	free       *prometheus.Desc
	freeBlocks *prometheus.Desc
	allocs     *prometheus.Desc
	frees      *prometheus.Desc
	failures   *prometheus.Desc
}

var _ prometheus.Collector = (*Collector)(nil)

// NewCollector returns an empty Collector, metric names are prefixed by namespace.
func NewCollector(namespace string) *Collector {
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "", name), help, []string{"allocator"}, nil)
	}
	return &Collector{
		sources:    skipmap.NewString(),
		capacity:   desc("capacity_bytes", "Bytes the allocator manages."),
		allocated:  desc("allocated_bytes", "Bytes currently handed out, including rounding."),
		free:       desc("free_bytes", "Bytes in free blocks."),
		freeBlocks: desc("free_blocks", "Number of free blocks or regions."),
		allocs:     desc("allocs_total", "Successful allocations."),
		frees:      desc("frees_total", "Deallocations."),
		failures:   desc("failures_total", "Failed allocations."),
	}
}

// Add starts reporting s under name, replacing any source with that name.
func (c *Collector) Add(name string, s malloc.StatsSource) {
	c.sources.Store(name, s)
}

// Remove stops reporting name.
func (c *Collector) Remove(name string) {
	c.sources.Delete(name)
}

// Len returns the number of sources.
func (c *Collector) Len() int {
	return c.sources.Len()
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.capacity
	ch <- c.allocated
	ch <- c.free
	ch <- c.freeBlocks
	ch <- c.allocs
	ch <- c.frees
	ch <- c.failures
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.sources.Range(func(name string, v interface{}) bool {
		s := v.(malloc.StatsSource).Stats()
		gauge := func(d *prometheus.Desc, v float64) {
			ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, v, name)
		}
		counter := func(d *prometheus.Desc, v uint64) {
			ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(v), name)
		}
		gauge(c.capacity, float64(s.Capacity))
		gauge(c.allocated, float64(s.Allocated))
		gauge(c.free, float64(s.Free))
		gauge(c.freeBlocks, float64(s.FreeBlocks))
		counter(c.allocs, s.Allocs)
		counter(c.frees, s.Frees)
		counter(c.failures, s.Failures)
		return true
	})
}
