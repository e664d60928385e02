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

// Package replay feeds the scheduler from a recorded JSON dataset instead
// of a live transport. Delivery is paced: after pushing one frame's
// aligned tuple the producer waits until the scheduler has extracted a
// window reaching that frame, so the buffer never holds much more than one
// window of a dataset however large the file is.
package replay

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/fuseproj/tempofuse/pkg/fusion"
	"github.com/fuseproj/tempofuse/pkg/shared/logging"
	"github.com/fuseproj/tempofuse/pkg/timekey"
)

// ErrInvalidDataset wraps every dataset-shape configuration error.
var ErrInvalidDataset = errors.New("invalid replay dataset")

// FrameEntry is one recorded frame arrival.
type FrameEntry struct {
	Stamp      timekey.Stamp `json:"stamp"`
	PayloadRef string        `json:"payload_ref,omitempty"`
}

// Sequence is one contiguous recording: frames with their detection sets
// and pose sets.
type Sequence struct {
	Name       string                 `json:"name"`
	Frames     []FrameEntry           `json:"frames"`
	Detections []*fusion.DetectionSet `json:"detections"`
	Poses      []*fusion.PoseSet      `json:"poses"`
}

// Dataset is the file-level shape of a replay input.
type Dataset struct {
	Sequences []Sequence `json:"sequences"`
}

// ReplaySource drives the scheduler from one recorded sequence.
type ReplaySource struct {
	seq       Sequence
	scheduler *fusion.Scheduler
	logger    *zap.SugaredLogger

	detsByTime  map[timekey.Key][]*fusion.DetectionSet
	posesByTime map[timekey.Key][]*fusion.PoseSet
}

type Option func(*ReplaySource) error

func WithLogger(l *zap.SugaredLogger) Option {
	return func(r *ReplaySource) error {
		r.logger = l
		return nil
	}
}

// New parses the dataset at path and validates it against the scheduler.
// The dataset must hold exactly one sequence; replaying several recordings
// into one temporal buffer would interleave unrelated timelines. The
// scheduler must be in replay mode so a pacing sync exists.
func New(ctx context.Context, path string, scheduler *fusion.Scheduler, opts ...Option) (*ReplaySource, error) {
	if scheduler.Sync() == nil {
		return nil, fmt.Errorf("scheduler is not in replay mode")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read replay dataset, %w", err)
	}
	var ds Dataset
	if err := json.Unmarshal(data, &ds); err != nil {
		return nil, fmt.Errorf("failed to parse replay dataset, %w", err)
	}
	if len(ds.Sequences) != 1 {
		return nil, fmt.Errorf("%w: expected exactly 1 sequence, found %d", ErrInvalidDataset, len(ds.Sequences))
	}

	r := &ReplaySource{
		seq:       ds.Sequences[0],
		scheduler: scheduler,
		logger:    logging.FromContext(ctx),
	}
	for _, o := range opts {
		if err := o(r); err != nil {
			return nil, err
		}
	}
	r.logger = r.logger.Named("replay").With(zap.String("sequence", r.seq.Name))

	if len(r.seq.Frames) == 0 {
		return nil, fmt.Errorf("%w: sequence %q has no frames", ErrInvalidDataset, r.seq.Name)
	}
	sort.Slice(r.seq.Frames, func(i, j int) bool {
		return r.seq.Frames[i].Stamp.Key() < r.seq.Frames[j].Stamp.Key()
	})

	r.detsByTime = make(map[timekey.Key][]*fusion.DetectionSet, len(r.seq.Detections))
	for i, d := range r.seq.Detections {
		if err := d.Validate(); err != nil {
			return nil, fmt.Errorf("%w: detection set %d: %v", ErrInvalidDataset, i, err)
		}
		r.detsByTime[d.SourceTime()] = append(r.detsByTime[d.SourceTime()], d)
	}
	r.posesByTime = make(map[timekey.Key][]*fusion.PoseSet, len(r.seq.Poses))
	for _, p := range r.seq.Poses {
		r.posesByTime[p.SourceTime()] = append(r.posesByTime[p.SourceTime()], p)
	}
	return r, nil
}

// Start launches the producer goroutine. The returned channel closes when
// the whole sequence has been consumed (or the scheduler died); the
// scheduler is stopped either way, so a caller can simply wait on it.
func (r *ReplaySource) Start() <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		defer r.scheduler.Stop()
		r.populate()
	}()
	return done
}

// populate pushes each frame's aligned tuple and then waits for the
// scheduler's extraction watermark to reach it.
func (r *ReplaySource) populate() {
	r.logger.Infow("Replaying sequence",
		zap.Int("frames", len(r.seq.Frames)),
		zap.Int("detectionSets", len(r.seq.Detections)),
		zap.Int("poseSets", len(r.seq.Poses)))

	for _, fe := range r.seq.Frames {
		t := fe.Stamp.Key()
		// Detections and poses go in first so the frame's window slot is
		// complete the moment the frame lands.
		for _, d := range r.detsByTime[t] {
			r.scheduler.AppendDetections(d)
		}
		for _, p := range r.posesByTime[t] {
			if _, err := r.scheduler.AppendPoses(p); err != nil {
				r.logger.Warnw("Skipping recorded pose", zap.Error(err))
			}
		}
		if !r.scheduler.AppendFrame(fe.Stamp, fe.PayloadRef) {
			r.logger.Warn("Scheduler no longer running, abandoning replay")
			return
		}
		replayedFrames.Inc()
		if !r.scheduler.Sync().WaitFor(t) {
			r.logger.Warn("Pacing sync closed, abandoning replay")
			return
		}
	}
	r.logger.Info("Replay complete")
}
