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
	"strings"

	"github.com/fuseproj/tempofuse/pkg/timekey"
)

// StreamID names one of the three input streams of the buffer.
type StreamID string

const (
	StreamFrames     StreamID = "frames"
	StreamDetections StreamID = "detections"
	StreamPoses      StreamID = "poses"
)

// Hand is the side label a pose set declares.
type Hand string

const (
	HandLeft    Hand = "left"
	HandRight   Hand = "right"
	HandPatient Hand = "patient"
)

// Valid returns whether the hand label is one of the recognized sides.
func (h Hand) Valid() bool {
	switch h {
	case HandLeft, HandRight, HandPatient:
		return true
	}
	return false
}

// Frame is one entry of the primary stream: a capture timestamp, a
// monotonically increasing sequence number assigned at ingestion, and an
// opaque reference to the frame payload held elsewhere. Frames are never
// mutated after append and are removed only by eviction.
type Frame struct {
	Stamp      timekey.Stamp `json:"stamp"`
	Seq        int64         `json:"seq"`
	PayloadRef string        `json:"payload_ref,omitempty"`
}

// Time returns the frame's nanosecond key.
func (f Frame) Time() timekey.Key {
	return f.Stamp.Key()
}

// DetectionSet is the set of object detections predicted from a single
// source frame. SourceStamp is the timestamp of that frame; association to
// the frame stream is by exact SourceStamp match. Confidences is row-major,
// one row of len(Labels) scores per detection.
type DetectionSet struct {
	Stamp       timekey.Stamp `json:"stamp"`
	SourceStamp timekey.Stamp `json:"source_stamp"`
	Labels      []string      `json:"labels"`
	Left        []float64     `json:"left"`
	Top         []float64     `json:"top"`
	Right       []float64     `json:"right"`
	Bottom      []float64     `json:"bottom"`
	Confidences []float64     `json:"confidences"`
}

// NumDetections returns the number of detections in the set.
func (d *DetectionSet) NumDetections() int {
	return len(d.Left)
}

// SourceTime returns the nanosecond key of the frame this set was predicted
// from, the join key for the detection stream.
func (d *DetectionSet) SourceTime() timekey.Key {
	return d.SourceStamp.Key()
}

// Validate checks the set's parallel-slice shape: four box slices of equal
// length and a row-major confidence matrix of one score per label per
// detection. Ingestion paths check this before the set can reach a window.
func (d *DetectionSet) Validate() error {
	n := len(d.Left)
	if len(d.Top) != n || len(d.Right) != n || len(d.Bottom) != n {
		return MalformedDetectionsError{Detail: fmt.Sprintf(
			"box slice lengths disagree: left=%d top=%d right=%d bottom=%d",
			len(d.Left), len(d.Top), len(d.Right), len(d.Bottom))}
	}
	if n > 0 && len(d.Labels) == 0 {
		return MalformedDetectionsError{Detail: fmt.Sprintf("%d detections but no labels", n)}
	}
	if want := n * len(d.Labels); len(d.Confidences) != want {
		return MalformedDetectionsError{Detail: fmt.Sprintf(
			"confidence matrix holds %d scores, want %d", len(d.Confidences), want)}
	}
	return nil
}

// Joint is a single labeled keypoint position.
type Joint struct {
	Label string  `json:"label"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Z     float64 `json:"z"`
}

// PoseSet is one pose estimate: a set of joint keypoints for a declared
// hand/body side. Association to the frame stream is by nearest SourceStamp
// within the configured tolerance.
type PoseSet struct {
	Stamp       timekey.Stamp `json:"stamp"`
	SourceStamp timekey.Stamp `json:"source_stamp"`
	Hand        Hand          `json:"hand"`
	Joints      []Joint       `json:"joints"`
}

// SourceTime returns the pose set's join key.
func (p *PoseSet) SourceTime() timekey.Key {
	return p.SourceStamp.Key()
}

// InputWindow is an immutable snapshot of aligned per-frame data, the unit
// handed to validation and classification. Detections and Poses are 1:1
// with Frames; any position may be nil for detections/poses, never for
// frames. The snapshot copies references out of the buffer under its lock
// and does not alias mutable buffer state afterwards.
type InputWindow struct {
	Frames     []Frame
	Detections []*DetectionSet
	Poses      []*PoseSet
}

// Len returns the number of frames in the window.
func (w *InputWindow) Len() int {
	return len(w.Frames)
}

// TrailingTime returns the key of the window's most recent (leading) frame.
// The second return is false for an empty window.
func (w *InputWindow) TrailingTime() (timekey.Key, bool) {
	if len(w.Frames) == 0 {
		return 0, false
	}
	return w.Frames[len(w.Frames)-1].Time(), true
}

// StartTime returns the key of the window's oldest frame.
func (w *InputWindow) StartTime() (timekey.Key, bool) {
	if len(w.Frames) == 0 {
		return 0, false
	}
	return w.Frames[0].Time(), true
}

// AlignmentSummary renders per-slot presence, oldest to newest. Used for
// diagnostic dumps of rejected windows.
func (w *InputWindow) AlignmentSummary() string {
	var sb strings.Builder
	for i, f := range w.Frames {
		det, pose := "-", "-"
		if w.Detections[i] != nil {
			det = "det"
		}
		if w.Poses[i] != nil {
			pose = "pose"
		}
		fmt.Fprintf(&sb, "%d:%d[%s,%s] ", i, f.Time(), det, pose)
	}
	return strings.TrimSpace(sb.String())
}
