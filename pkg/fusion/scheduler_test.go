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
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/goleak"

	"github.com/fuseproj/tempofuse/pkg/timekey"
)

type fakeClassifier struct {
	mu       sync.Mutex
	requests []*ClassifyRequest
	err      error
}

func (f *fakeClassifier) Predict(_ context.Context, req *ClassifyRequest) (*Prediction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	return &Prediction{
		Labels:      []string{"grasp", "idle"},
		Confidences: []float64{0.9, 0.1},
	}, nil
}

func (f *fakeClassifier) numRequests() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func (f *fakeClassifier) request(i int) *ClassifyRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[i]
}

type fakeSink struct {
	mu       sync.Mutex
	nextID   int
	records  map[string]*InputWindow
	collects map[string]*Prediction
}

func newFakeSink() *fakeSink {
	return &fakeSink{
		records:  make(map[string]*InputWindow),
		collects: make(map[string]*Prediction),
	}
}

func (s *fakeSink) AddRecord(_ timekey.Key, w *InputWindow) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	id := fmt.Sprintf("r%d", s.nextID)
	s.records[id] = w
	return id, nil
}

func (s *fakeSink) Collect(id string, p *Prediction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.collects[id] = p
	return nil
}

func (s *fakeSink) Close() error { return nil }

func (s *fakeSink) numCollects() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.collects)
}

func (s *fakeSink) numRecords() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

func newTestScheduler(t *testing.T, opts ...Option) (*Scheduler, *fakeClassifier, *fakeSink) {
	t.Helper()
	b, err := NewTemporalBuffer()
	assert.NoError(t, err)
	fc := &fakeClassifier{}
	fs := newFakeSink()
	base := []Option{
		WithWindowSize(2),
		WithHeartbeat(10 * time.Millisecond),
		WithResultSink(fs),
	}
	s, err := NewScheduler(context.Background(), b, fc, append(base, opts...)...)
	assert.NoError(t, err)
	return s, fc, fs
}

func TestScheduler_StartStop(t *testing.T) {
	defer goleak.VerifyNone(t)
	s, _, _ := newTestScheduler(t)

	assert.NoError(t, s.Start(context.Background()))
	assert.True(t, s.IsRunning())
	assert.Error(t, s.Start(context.Background()), "second start must fail")

	s.Stop()
	assert.False(t, s.IsRunning())
	s.Stop() // idempotent
}

func TestScheduler_ProcessesWindow(t *testing.T) {
	defer goleak.VerifyNone(t)
	s, fc, fs := newTestScheduler(t)
	assert.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	assert.True(t, s.AppendFrame(timekey.StampOf(1), "img-1"))
	assert.True(t, s.AppendFrame(timekey.StampOf(2), "img-2"))

	assert.Eventually(t, func() bool { return fs.numCollects() == 1 },
		2*time.Second, 5*time.Millisecond)

	req := fc.request(0)
	assert.Len(t, req.Frames, 2)
	assert.Equal(t, timekey.Key(1), req.Frames[0].Time())
	assert.Equal(t, timekey.Key(2), req.Frames[1].Time())
	assert.Equal(t, int64(0), req.Frames[0].Seq)
	assert.Equal(t, int64(1), req.Frames[1].Seq)

	// One frame of overlap stays buffered as join context.
	assert.Eventually(t, func() bool { return s.buffer.Len() == 1 },
		time.Second, 5*time.Millisecond)
	oldest, err := s.buffer.OldestFrameTime()
	assert.NoError(t, err)
	assert.Equal(t, timekey.Key(2), oldest)
}

func TestScheduler_OneClassificationPerLeadingEdge(t *testing.T) {
	defer goleak.VerifyNone(t)
	s, _, fs := newTestScheduler(t)
	assert.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	// Wake signals coalesce, so pace the appends: each new frame defines
	// exactly one new window [i-1, i].
	for i := 1; i <= 5; i++ {
		assert.True(t, s.AppendFrame(timekey.StampOf(timekey.Key(i)), ""))
		want := i - 1
		assert.Eventually(t, func() bool { return fs.numCollects() == want },
			2*time.Second, 5*time.Millisecond)
	}
	assert.Equal(t, 4, fs.numCollects())

	// Further wakes without new frames never produce duplicates.
	for i := 0; i < 5; i++ {
		s.Wake()
		time.Sleep(15 * time.Millisecond)
	}
	assert.Equal(t, 4, fs.numCollects())
}

func TestScheduler_AppendRefusedAfterStop(t *testing.T) {
	defer goleak.VerifyNone(t)
	s, _, _ := newTestScheduler(t)
	assert.NoError(t, s.Start(context.Background()))

	ok, err := s.AppendPoses(poseFor(1, Hand("nope")))
	assert.False(t, ok)
	assert.Error(t, err, "invalid hand is refused while running")

	s.Stop()

	assert.False(t, s.AppendFrame(timekey.StampOf(10), ""))
	assert.False(t, s.AppendDetections(detectionsFor(10)))
	ok, err = s.AppendPoses(poseFor(10, HandLeft))
	assert.False(t, ok)
	assert.NoError(t, err)
	assert.Zero(t, s.buffer.Len())
}

func TestScheduler_ClassifierNoResult(t *testing.T) {
	defer goleak.VerifyNone(t)
	s, fc, fs := newTestScheduler(t)
	fc.err = ErrNoResult
	assert.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	assert.True(t, s.AppendFrame(timekey.StampOf(1), ""))
	assert.True(t, s.AppendFrame(timekey.StampOf(2), ""))

	// The window is booked for completeness but no distribution is
	// collected, and the loop survives.
	assert.Eventually(t, func() bool { return fc.numRequests() == 1 },
		2*time.Second, 5*time.Millisecond)
	assert.Eventually(t, func() bool { return fs.numRecords() >= 1 },
		time.Second, 5*time.Millisecond)
	assert.Zero(t, fs.numCollects())
	assert.True(t, s.IsRunning())

	// Progress still advances: the same leading edge is not retried.
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, fc.numRequests())
}

func TestScheduler_MemoizedSummariesShared(t *testing.T) {
	defer goleak.VerifyNone(t)
	s, fc, fs := newTestScheduler(t)
	assert.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	s.AppendDetections(detectionsFor(1))
	assert.True(t, s.AppendFrame(timekey.StampOf(1), ""))
	s.AppendDetections(detectionsFor(2))
	assert.True(t, s.AppendFrame(timekey.StampOf(2), ""))
	assert.Eventually(t, func() bool { return fs.numCollects() == 1 },
		2*time.Second, 5*time.Millisecond)

	s.AppendDetections(detectionsFor(3))
	assert.True(t, s.AppendFrame(timekey.StampOf(3), ""))
	assert.Eventually(t, func() bool { return fs.numCollects() == 2 },
		2*time.Second, 5*time.Millisecond)

	// The summary for the overlapping frame is computed once and shared
	// across the two windows that contain it.
	first, second := fc.request(0), fc.request(1)
	assert.NotNil(t, first.Detections[1])
	assert.Same(t, first.Detections[1], second.Detections[0])
}

func TestScheduler_ReplayPacing(t *testing.T) {
	defer goleak.VerifyNone(t)
	s, _, fs := newTestScheduler(t, WithReplayMode(true))
	assert.NotNil(t, s.Sync(), "replay mode must allocate a sync")
	assert.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	produced := make(chan struct{})
	go func() {
		defer close(produced)
		for i := 1; i <= 4; i++ {
			k := timekey.Key(i)
			s.AppendDetections(detectionsFor(k))
			if !s.AppendFrame(timekey.StampOf(k), "") {
				return
			}
			if !s.Sync().WaitFor(k) {
				return
			}
		}
	}()

	select {
	case <-produced:
	case <-time.After(5 * time.Second):
		t.Fatal("replay producer never unblocked")
	}
	assert.Eventually(t, func() bool { return fs.numCollects() == 3 },
		2*time.Second, 5*time.Millisecond)
}

func TestScheduler_ReplayPacingUnderLeadingAnchor(t *testing.T) {
	defer goleak.VerifyNone(t)
	// Long heartbeat so only explicit wakes drive the loop: the producer
	// must not depend on a timeout to get past a wake that fired before
	// its frame landed.
	s, _, fs := newTestScheduler(t,
		WithReplayMode(true),
		WithAnchor(AnchorLeadingWithDetections),
		WithHeartbeat(10*time.Second))
	assert.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	produced := make(chan struct{})
	go func() {
		defer close(produced)
		for i := 1; i <= 3; i++ {
			k := timekey.Key(i)
			s.AppendDetections(detectionsFor(k))
			if !s.AppendFrame(timekey.StampOf(k), "") {
				return
			}
			if !s.Sync().WaitFor(k) {
				return
			}
		}
	}()

	select {
	case <-produced:
	case <-time.After(5 * time.Second):
		t.Fatal("replay producer stalled under the leading anchor")
	}
	assert.Eventually(t, func() bool { return fs.numCollects() == 2 },
		2*time.Second, 5*time.Millisecond)
}

func TestScheduler_NoSync_OutsideReplayMode(t *testing.T) {
	s, _, _ := newTestScheduler(t)
	assert.Nil(t, s.Sync())
}

func TestScheduler_DetectionWakeUnderLeadingAnchor(t *testing.T) {
	defer goleak.VerifyNone(t)
	s, _, fs := newTestScheduler(t,
		WithAnchor(AnchorLeadingWithDetections),
		// Long heartbeat so only explicit wakes drive the loop.
		WithHeartbeat(10*time.Second))
	assert.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	assert.True(t, s.AppendFrame(timekey.StampOf(1), ""))
	assert.True(t, s.AppendFrame(timekey.StampOf(2), ""))
	time.Sleep(30 * time.Millisecond)
	assert.Zero(t, fs.numCollects(), "frames alone do not wake the leading anchor")

	assert.True(t, s.AppendDetections(detectionsFor(2)))
	assert.Eventually(t, func() bool { return fs.numCollects() == 1 },
		2*time.Second, 5*time.Millisecond)
}
