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
	"fmt"
	"sync"
	"time"

	"github.com/fuseproj/tempofuse/pkg/timekey"
)

// AnchorPolicy selects where a window's trailing edge is pinned.
type AnchorPolicy string

const (
	// AnchorTrailing pins the trailing edge to the most recent frame.
	AnchorTrailing AnchorPolicy = "trailing"
	// AnchorLeadingWithDetections pins the trailing edge to the most
	// recent frame that has an exact-match detection set, trading latency
	// for alignment.
	AnchorLeadingWithDetections AnchorPolicy = "leading_with_detections"
)

// TemporalBuffer is the protected container for the three input streams.
// Frames are the primary index to which everything else associates. Each
// stream is kept in ascending time order (appends go to the tail, eviction
// trims the head). The locking is deliberately coarse: one mutex scoped to
// the buffer instance guards every operation, and critical sections contain
// no I/O or computation beyond the joins themselves.
type TemporalBuffer struct {
	mu sync.Mutex

	// Pose messages arrive asynchronously at a different rate than
	// frames, so they associate to the nearest frame within this bound.
	// Detections always demand exact source-timestamp equality.
	poseTolerance timekey.Key

	frames     []Frame
	detections []*DetectionSet
	poses      []*PoseSet
}

// BufferOption customizes a TemporalBuffer.
type BufferOption func(*TemporalBuffer) error

// WithPoseTolerance sets the nearest-match association tolerance for the
// pose stream. Default is zero, i.e. same-timestamp match.
func WithPoseTolerance(d time.Duration) BufferOption {
	return func(b *TemporalBuffer) error {
		b.poseTolerance = timekey.FromDuration(d)
		return nil
	}
}

// NewTemporalBuffer returns an empty buffer.
func NewTemporalBuffer(opts ...BufferOption) (*TemporalBuffer, error) {
	b := &TemporalBuffer{}
	for _, o := range opts {
		if err := o(b); err != nil {
			return nil, err
		}
	}
	return b, nil
}

// Append routes an item to the named stream. It exists for callers that
// dispatch on a wire-level stream identifier; the typed Append* methods are
// preferred in-process.
func (b *TemporalBuffer) Append(stream StreamID, item any) error {
	switch stream {
	case StreamFrames:
		f, ok := item.(Frame)
		if !ok {
			return fmt.Errorf("stream %q expects a Frame, got %T", stream, item)
		}
		b.AppendFrame(f)
		return nil
	case StreamDetections:
		d, ok := item.(*DetectionSet)
		if !ok {
			return fmt.Errorf("stream %q expects a *DetectionSet, got %T", stream, item)
		}
		b.AppendDetections(d)
		return nil
	case StreamPoses:
		p, ok := item.(*PoseSet)
		if !ok {
			return fmt.Errorf("stream %q expects a *PoseSet, got %T", stream, item)
		}
		return b.AppendPoses(p)
	default:
		return InvalidStreamError{Stream: stream}
	}
}

// AppendFrame appends to the tail of the frame stream.
func (b *TemporalBuffer) AppendFrame(f Frame) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.frames = append(b.frames, f)
	bufferLength.WithLabelValues(string(StreamFrames)).Set(float64(len(b.frames)))
}

// AppendDetections appends to the tail of the detection stream.
func (b *TemporalBuffer) AppendDetections(d *DetectionSet) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.detections = append(b.detections, d)
	bufferLength.WithLabelValues(string(StreamDetections)).Set(float64(len(b.detections)))
}

// AppendPoses appends to the tail of the pose stream. The pose's declared
// hand label must be in the recognized set.
func (b *TemporalBuffer) AppendPoses(p *PoseSet) error {
	if !p.Hand.Valid() {
		return InvalidHandError{Hand: p.Hand}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.poses = append(b.poses, p)
	bufferLength.WithLabelValues(string(StreamPoses)).Set(float64(len(b.poses)))
	return nil
}

// Window extracts a snapshot of at most size frames from the tail of the
// frame stream, with detections and poses associated per slot. Fewer frames
// than requested is not an error here; short windows are left for the
// validator to reject. Under AnchorLeadingWithDetections the trailing edge
// is pinned to the most recent frame that has a detection set; when no
// buffered frame has one the returned window is empty.
func (b *TemporalBuffer) Window(size int, anchor AnchorPolicy) *InputWindow {
	b.mu.Lock()
	defer b.mu.Unlock()

	end := len(b.frames)
	if anchor == AnchorLeadingWithDetections {
		end = b.lastFrameWithDetectionLocked()
	}
	if end <= 0 {
		return &InputWindow{}
	}
	start := end - size
	if start < 0 {
		start = 0
	}

	frames := make([]Frame, end-start)
	copy(frames, b.frames[start:end])

	refs := make([]timekey.Key, len(frames))
	for i, f := range frames {
		refs[i] = f.Time()
	}

	return &InputWindow{
		Frames:     frames,
		Detections: AssociateDescending(refs, b.detections, 0, (*DetectionSet).SourceTime),
		Poses:      AssociateDescending(refs, b.poses, b.poseTolerance, (*PoseSet).SourceTime),
	}
}

// lastFrameWithDetectionLocked returns one past the index of the most
// recent frame having an exact-match detection, or 0 when none does.
func (b *TemporalBuffer) lastFrameWithDetectionLocked() int {
	have := make(map[timekey.Key]struct{}, len(b.detections))
	for _, d := range b.detections {
		have[d.SourceTime()] = struct{}{}
	}
	for i := len(b.frames) - 1; i >= 0; i-- {
		if _, ok := have[b.frames[i].Time()]; ok {
			return i + 1
		}
	}
	return 0
}

// EvictBefore drops every buffered item whose key is strictly less than t,
// each stream independently. Calling it twice with the same bound is a
// no-op the second time. Monotonicity of the bound across calls is the
// caller's concern.
func (b *TemporalBuffer) EvictBefore(t timekey.Key) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.evictBeforeLocked(t)
}

func (b *TemporalBuffer) evictBeforeLocked(t timekey.Key) {
	i := 0
	for i < len(b.frames) && b.frames[i].Time() < t {
		i++
	}
	b.frames = trimFrames(b.frames, i)

	j := 0
	for j < len(b.detections) && b.detections[j].SourceTime() < t {
		j++
	}
	b.detections = trimPtrs(b.detections, j)

	k := 0
	for k < len(b.poses) && b.poses[k].SourceTime() < t {
		k++
	}
	b.poses = trimPtrs(b.poses, k)

	bufferLength.WithLabelValues(string(StreamFrames)).Set(float64(len(b.frames)))
	bufferLength.WithLabelValues(string(StreamDetections)).Set(float64(len(b.detections)))
	bufferLength.WithLabelValues(string(StreamPoses)).Set(float64(len(b.poses)))
}

// EvictToRetention drops content older than maxAge relative to the latest
// buffered frame. The latest-frame lookup and the eviction happen under one
// lock acquisition so the bound cannot race with concurrent appends.
// Returns ErrEmptyBuffer when no frames are buffered (nothing to clear).
func (b *TemporalBuffer) EvictToRetention(maxAge time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.frames) == 0 {
		return ErrEmptyBuffer
	}
	latest := b.frames[len(b.frames)-1].Time()
	b.evictBeforeLocked(latest - timekey.FromDuration(maxAge))
	return nil
}

// LatestFrameTime returns the key of the most recent buffered frame.
func (b *TemporalBuffer) LatestFrameTime() (timekey.Key, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.frames) == 0 {
		return 0, ErrEmptyBuffer
	}
	return b.frames[len(b.frames)-1].Time(), nil
}

// OldestFrameTime returns the key of the oldest buffered frame.
func (b *TemporalBuffer) OldestFrameTime() (timekey.Key, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.frames) == 0 {
		return 0, ErrEmptyBuffer
	}
	return b.frames[0].Time(), nil
}

// Len returns the number of buffered frames.
func (b *TemporalBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.frames)
}

// Counts returns the per-stream buffered item counts.
func (b *TemporalBuffer) Counts() (frames, detections, poses int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.frames), len(b.detections), len(b.poses)
}

// trimFrames reslices past the first n entries, reallocating when the dead
// prefix grows large so evicted frames do not pin the backing array.
func trimFrames(s []Frame, n int) []Frame {
	if n == 0 {
		return s
	}
	if n == len(s) {
		return nil
	}
	if n > cap(s)/2 {
		out := make([]Frame, len(s)-n)
		copy(out, s[n:])
		return out
	}
	return s[n:]
}

func trimPtrs[T any](s []*T, n int) []*T {
	if n == 0 {
		return s
	}
	if n == len(s) {
		return nil
	}
	if n > cap(s)/2 {
		out := make([]*T, len(s)-n)
		copy(out, s[n:])
		return out
	}
	// Nil out the dead prefix so evicted items can be collected even
	// though the backing array is shared.
	for i := 0; i < n; i++ {
		s[i] = nil
	}
	return s[n:]
}
