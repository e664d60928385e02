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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestReplaySync_WaitForAlreadyPublished(t *testing.T) {
	s := NewReplaySync()
	s.Publish(100)
	assert.True(t, s.WaitFor(100), "inclusive bound")
	assert.True(t, s.WaitFor(50))
}

func TestReplaySync_WaitForBlocksUntilPublish(t *testing.T) {
	s := NewReplaySync()
	released := make(chan bool, 1)
	go func() {
		released <- s.WaitFor(200)
	}()

	select {
	case <-released:
		t.Fatal("WaitFor returned before any publish")
	case <-time.After(20 * time.Millisecond):
	}

	s.Publish(150) // not enough yet
	select {
	case <-released:
		t.Fatal("WaitFor returned below the requested timestamp")
	case <-time.After(20 * time.Millisecond):
	}

	s.Publish(200)
	select {
	case ok := <-released:
		assert.True(t, ok)
	case <-time.After(time.Second):
		t.Fatal("WaitFor did not release after publish")
	}
}

func TestReplaySync_CloseReleasesWaiters(t *testing.T) {
	s := NewReplaySync()
	released := make(chan bool, 2)
	for i := 0; i < 2; i++ {
		go func() {
			released <- s.WaitFor(500)
		}()
	}
	time.Sleep(10 * time.Millisecond)

	s.Close()
	for i := 0; i < 2; i++ {
		select {
		case ok := <-released:
			assert.False(t, ok, "close before reaching the timestamp reports false")
		case <-time.After(time.Second):
			t.Fatal("Close did not release waiter")
		}
	}
}

func TestReplaySync_WaitForAfterClose(t *testing.T) {
	s := NewReplaySync()
	s.Publish(300)
	s.Close()
	// Already-satisfied waits still succeed after close.
	assert.True(t, s.WaitFor(300))
	assert.False(t, s.WaitFor(301))
}

func TestReplaySync_Last(t *testing.T) {
	s := NewReplaySync()
	_, ok := s.Last()
	assert.False(t, ok)
	s.Publish(42)
	k, ok := s.Last()
	assert.True(t, ok)
	assert.Equal(t, int64(42), int64(k))
}
