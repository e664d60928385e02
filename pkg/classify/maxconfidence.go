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

// Package classify provides the reference activity classifier used by the
// commands and tests. It is a deliberately simple stand-in for an external
// model server: it votes by per-frame top detection confidence, which is
// enough to exercise the whole windowing pipeline end to end.
package classify

import (
	"context"
	"fmt"
	"sort"

	"github.com/fuseproj/tempofuse/pkg/fusion"
)

type options struct {
	// minConfidence drops detections scored below it from the vote
	minConfidence float64
}

// Option customizes a MaxConfidence classifier.
type Option func(*options) error

// WithMinConfidence excludes detections below threshold from the vote.
func WithMinConfidence(threshold float64) Option {
	return func(o *options) error {
		if threshold < 0 || threshold > 1 {
			return fmt.Errorf("confidence threshold must be in [0,1], got %f", threshold)
		}
		o.minConfidence = threshold
		return nil
	}
}

// MaxConfidence classifies a window by accumulating, per detection label,
// the confidence mass of each frame's top detections, and normalizing the
// totals into a distribution. Per-frame confidence vectors are memoized in
// the request's embedding cache so overlapping windows do not re-reduce
// shared frames.
type MaxConfidence struct {
	opts *options
}

// NewMaxConfidence returns a vote-by-confidence classifier.
func NewMaxConfidence(opts ...Option) (*MaxConfidence, error) {
	o := &options{}
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, err
		}
	}
	return &MaxConfidence{opts: o}, nil
}

// Predict implements fusion.Classifier. It returns fusion.ErrNoResult when
// no frame in the window carries a detection above the threshold.
func (m *MaxConfidence) Predict(ctx context.Context, req *fusion.ClassifyRequest) (*fusion.Prediction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	votes := make(map[string]float64)
	for i, s := range req.Detections {
		if s == nil {
			continue
		}
		s := s
		vec := req.Embeddings.GetOrCompute(req.Frames[i].Time(), func() []float32 {
			return confidenceVector(s)
		})
		for j, label := range s.Labels {
			if c := float64(vec[j]); c >= m.opts.minConfidence {
				votes[label] += c
			}
		}
	}
	if len(votes) == 0 {
		return nil, fmt.Errorf("no detections above threshold %f in window: %w",
			m.opts.minConfidence, fusion.ErrNoResult)
	}

	labels := make([]string, 0, len(votes))
	for l := range votes {
		labels = append(labels, l)
	}
	sort.Strings(labels)

	total := 0.0
	for _, l := range labels {
		total += votes[l]
	}
	confs := make([]float64, len(labels))
	for i, l := range labels {
		confs[i] = votes[l] / total
	}
	return &fusion.Prediction{Labels: labels, Confidences: confs}, nil
}

// confidenceVector is the memoized per-frame feature: the summary's top
// confidence per detection as float32.
func confidenceVector(s *fusion.DetectionSummary) []float32 {
	vec := make([]float32, len(s.Confidences))
	for i, c := range s.Confidences {
		vec[i] = float32(c)
	}
	return vec
}
