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
	"sync"

	"github.com/fuseproj/tempofuse/pkg/timekey"
)

// ReplaySync paces a bulk replay producer against scheduler consumption.
// The scheduler publishes the trailing timestamp of every extracted window;
// the producer, after pushing one aligned tuple, waits until the published
// timestamp reaches that tuple. This bounds buffer growth to roughly one
// window's depth however large the dataset is.
type ReplaySync struct {
	mu        sync.Mutex
	cond      *sync.Cond
	extracted timekey.Key
	has       bool
	closed    bool
}

// NewReplaySync returns a sync with no published timestamp.
func NewReplaySync() *ReplaySync {
	r := &ReplaySync{}
	r.cond = sync.NewCond(&r.mu)
	return r
}

// Publish records the trailing timestamp of the most recently extracted
// window and releases any waiting producer.
func (r *ReplaySync) Publish(k timekey.Key) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.extracted = k
	r.has = true
	r.cond.Broadcast()
}

// WaitFor blocks until the published timestamp is >= k or the sync is
// closed. Returns false when released by Close before k was reached.
func (r *ReplaySync) WaitFor(k timekey.Key) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for !r.closed && !(r.has && r.extracted >= k) {
		r.cond.Wait()
	}
	return r.has && r.extracted >= k
}

// Last returns the most recently published timestamp.
func (r *ReplaySync) Last() (timekey.Key, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.extracted, r.has
}

// Close releases all waiters. Called on scheduler shutdown so a blocked
// producer cannot be stranded.
func (r *ReplaySync) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	r.cond.Broadcast()
}
