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

	"github.com/fuseproj/tempofuse/pkg/timekey"
)

// Prediction is a class-label distribution produced for one window.
type Prediction struct {
	// Labels and Confidences are parallel; Confidences is a distribution
	// over Labels.
	Labels      []string  `json:"labels"`
	Confidences []float64 `json:"confidences"`
	// Stamps of the window's oldest and most recent frames.
	StartStamp timekey.Stamp `json:"start_stamp"`
	EndStamp   timekey.Stamp `json:"end_stamp"`
}

// Best returns the maximally confident label and its confidence.
func (p *Prediction) Best() (string, float64) {
	best, conf := "", -1.0
	for i, l := range p.Labels {
		if p.Confidences[i] > conf {
			best, conf = l, p.Confidences[i]
		}
	}
	return best, conf
}

// ClassifyRequest is the per-window input handed to the Classifier. The
// detection and pose summaries are memoized per unique frame timestamp and
// aligned 1:1 with Frames (nil for absent slots). Embeddings is a
// progress-evicted cache the classifier may use to memoize per-frame
// feature vectors across overlapping windows; the scheduler owns its
// eviction.
type ClassifyRequest struct {
	Frames     []Frame
	Detections []*DetectionSummary
	Poses      []*PoseSummary
	Embeddings *MemoCache[[]float32]
}

// Classifier is the external activity classification step. Predict returns
// ErrNoResult (possibly wrapped) when the window's content cannot be
// embedded into a feature vector; the scheduler treats that as a rejection,
// not a fault.
type Classifier interface {
	Predict(ctx context.Context, req *ClassifyRequest) (*Prediction, error)
}

// ResultSink receives every produced classification, and rejected windows
// for bookkeeping, for persistence outside the core.
type ResultSink interface {
	// AddRecord registers a window by its trailing frame key and returns
	// a record id for later collection.
	AddRecord(frameKey timekey.Key, w *InputWindow) (string, error)
	// Collect attaches a class distribution to a previously added record.
	Collect(recordID string, p *Prediction) error
	// Close flushes anything pending.
	Close() error
}
