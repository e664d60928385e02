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

import "github.com/fuseproj/tempofuse/pkg/timekey"

// DetectionSummary is the preprocessed form of a DetectionSet: the boxes
// with, per detection, only the maximally confident label and its
// confidence. Computed once per unique source timestamp and reused across
// overlapping windows via a MemoCache.
type DetectionSummary struct {
	Time        timekey.Key
	Left        []float64
	Top         []float64
	Right       []float64
	Bottom      []float64
	Labels      []string
	Confidences []float64
}

// SummarizeDetections reduces a detection set's row-major confidence matrix
// to the top label and confidence per detection.
func SummarizeDetections(d *DetectionSet) *DetectionSummary {
	n := d.NumDetections()
	nl := len(d.Labels)
	// Ingestion validates shape, but a malformed set must never index past
	// its slices here: only rows every parallel slice and the confidence
	// matrix fully cover are scorable.
	for _, side := range [][]float64{d.Top, d.Right, d.Bottom} {
		if len(side) < n {
			n = len(side)
		}
	}
	if nl == 0 {
		n = 0
	} else if rows := len(d.Confidences) / nl; rows < n {
		n = rows
	}
	s := &DetectionSummary{
		Time:        d.SourceTime(),
		Left:        d.Left[:n],
		Top:         d.Top[:n],
		Right:       d.Right[:n],
		Bottom:      d.Bottom[:n],
		Labels:      make([]string, n),
		Confidences: make([]float64, n),
	}
	for i := 0; i < n; i++ {
		row := d.Confidences[i*nl : (i+1)*nl]
		best, conf := 0, -1.0
		for j, c := range row {
			if c > conf {
				best, conf = j, c
			}
		}
		s.Labels[i] = d.Labels[best]
		s.Confidences[i] = conf
	}
	return s
}

// PoseSummary is the preprocessed form of a PoseSet, keyed by source
// timestamp.
type PoseSummary struct {
	Time   timekey.Key
	Hand   Hand
	Joints []Joint
}

// SummarizePose snapshots the pose keypoints under the set's join key.
func SummarizePose(p *PoseSet) *PoseSummary {
	joints := make([]Joint, len(p.Joints))
	copy(joints, p.Joints)
	return &PoseSummary{Time: p.SourceTime(), Hand: p.Hand, Joints: joints}
}
