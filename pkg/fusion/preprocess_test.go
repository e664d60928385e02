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

	"github.com/stretchr/testify/assert"

	"github.com/fuseproj/tempofuse/pkg/timekey"
)

func TestSummarizeDetections(t *testing.T) {
	d := &DetectionSet{
		Stamp:       timekey.StampOf(105),
		SourceStamp: timekey.StampOf(100),
		Labels:      []string{"hand", "tool", "gauze"},
		Left:        []float64{0, 20},
		Top:         []float64{0, 20},
		Right:       []float64{10, 30},
		Bottom:      []float64{10, 30},
		// Row-major, one row of three scores per detection.
		Confidences: []float64{0.1, 0.7, 0.2, 0.6, 0.3, 0.1},
	}

	s := SummarizeDetections(d)
	assert.Equal(t, timekey.Key(100), s.Time)
	assert.Equal(t, []string{"tool", "hand"}, s.Labels)
	assert.Equal(t, []float64{0.7, 0.6}, s.Confidences)
	assert.Equal(t, d.Left, s.Left)
	assert.Equal(t, d.Bottom, s.Bottom)
}

func TestSummarizeDetections_Empty(t *testing.T) {
	s := SummarizeDetections(&DetectionSet{
		SourceStamp: timekey.StampOf(7),
		Labels:      []string{"hand"},
	})
	assert.Empty(t, s.Labels)
	assert.Empty(t, s.Confidences)
}

func TestSummarizeDetections_MalformedShape(t *testing.T) {
	// Boxes with no label vector at all: nothing is scorable, and the
	// summary must come back empty rather than indexing past the matrix.
	s := SummarizeDetections(&DetectionSet{
		SourceStamp: timekey.StampOf(9),
		Left:        []float64{1},
		Top:         []float64{1},
		Right:       []float64{2},
		Bottom:      []float64{2},
	})
	assert.Empty(t, s.Labels)
	assert.Empty(t, s.Confidences)
	assert.Empty(t, s.Left)

	// A short confidence matrix covers only its complete rows.
	s = SummarizeDetections(&DetectionSet{
		SourceStamp: timekey.StampOf(9),
		Labels:      []string{"hand", "tool"},
		Left:        []float64{0, 20},
		Top:         []float64{0, 20},
		Right:       []float64{10, 30},
		Bottom:      []float64{10, 30},
		Confidences: []float64{0.4, 0.6},
	})
	assert.Equal(t, []string{"tool"}, s.Labels)
	assert.Equal(t, []float64{0.6}, s.Confidences)
	assert.Equal(t, []float64{0}, s.Left)
}

func TestDetectionSetValidate(t *testing.T) {
	assert.NoError(t, detectionsFor(10).Validate())
	assert.NoError(t, (&DetectionSet{Labels: []string{"hand"}}).Validate())

	for name, d := range map[string]*DetectionSet{
		"no labels": {
			Left: []float64{1}, Top: []float64{1}, Right: []float64{2}, Bottom: []float64{2},
		},
		"box slices disagree": {
			Labels: []string{"hand"},
			Left:   []float64{1}, Top: []float64{1}, Right: []float64{2},
			Confidences: []float64{0.5},
		},
		"short confidence matrix": {
			Labels: []string{"hand", "tool"},
			Left:   []float64{1}, Top: []float64{1}, Right: []float64{2}, Bottom: []float64{2},
			Confidences: []float64{0.5},
		},
	} {
		var malformed MalformedDetectionsError
		assert.ErrorAs(t, d.Validate(), &malformed, name)
	}
}

func TestSummarizePose(t *testing.T) {
	p := poseFor(50, HandRight)
	s := SummarizePose(p)
	assert.Equal(t, timekey.Key(50), s.Time)
	assert.Equal(t, HandRight, s.Hand)
	assert.Equal(t, p.Joints, s.Joints)

	// The summary must not alias the live message's joint slice.
	p.Joints[0].X = 999
	assert.NotEqual(t, p.Joints[0].X, s.Joints[0].X)
}
