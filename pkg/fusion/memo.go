/*
Copyright 2024 The Tempofuse Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package fusion

import (
	"container/heap"

	"github.com/fuseproj/tempofuse/pkg/timekey"
)

// MemoCache memoizes a derived per-timestamp artifact so overlapping
// windows sharing a frame do not recompute it. Eviction is keyed to window
// progress, never wall-clock time: the scheduler purges keys at or before
// the start of each processed window, which bounds the cache to roughly one
// window's worth of unique timestamps while guaranteeing unbounded reuse
// within a window's lifetime.
//
// A lookup map is paired with a min-key heap so evicting k expired entries
// costs O(k log n) instead of a full scan. The cache is accessed only from
// the scheduler goroutine and is deliberately unsynchronized.
type MemoCache[V any] struct {
	entries map[timekey.Key]V
	keys    keyHeap
}

// NewMemoCache returns an empty cache.
func NewMemoCache[V any]() *MemoCache[V] {
	return &MemoCache[V]{entries: make(map[timekey.Key]V)}
}

// GetOrCompute returns the artifact for k, invoking compute and storing the
// result on first access. compute runs at most once per key per cache
// lifetime.
func (c *MemoCache[V]) GetOrCompute(k timekey.Key, compute func() V) V {
	if v, ok := c.entries[k]; ok {
		return v
	}
	v := compute()
	c.entries[k] = v
	heap.Push(&c.keys, k)
	return v
}

// Get returns the artifact for k when present.
func (c *MemoCache[V]) Get(k timekey.Key) (V, bool) {
	v, ok := c.entries[k]
	return v, ok
}

// Len returns the number of memoized entries.
func (c *MemoCache[V]) Len() int {
	return len(c.entries)
}

// EvictThrough removes every entry whose key is <= bound and returns how
// many were removed.
func (c *MemoCache[V]) EvictThrough(bound timekey.Key) int {
	evicted := 0
	for c.keys.Len() > 0 && c.keys[0] <= bound {
		delete(c.entries, heap.Pop(&c.keys).(timekey.Key))
		evicted++
	}
	return evicted
}

// keyHeap is a min-heap of nanosecond keys.
type keyHeap []timekey.Key

func (h keyHeap) Len() int            { return len(h) }
func (h keyHeap) Less(i, j int) bool  { return h[i] < h[j] }
func (h keyHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *keyHeap) Push(x interface{}) { *h = append(*h, x.(timekey.Key)) }
func (h *keyHeap) Pop() interface{} {
	old := *h
	n := len(old)
	k := old[n-1]
	*h = old[:n-1]
	return k
}
