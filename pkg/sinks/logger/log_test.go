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

package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/fuseproj/tempofuse/pkg/fusion"
	"github.com/fuseproj/tempofuse/pkg/timekey"
)

func testWindow() *fusion.InputWindow {
	return &fusion.InputWindow{
		Frames:     []fusion.Frame{{Stamp: timekey.StampOf(1)}, {Stamp: timekey.StampOf(2)}},
		Detections: make([]*fusion.DetectionSet, 2),
		Poses:      make([]*fusion.PoseSet, 2),
	}
}

func TestToLog(t *testing.T) {
	s, err := NewToLog("test-pipeline", WithLogger(zap.NewNop().Sugar()))
	assert.NoError(t, err)

	id, err := s.AddRecord(2, testWindow())
	assert.NoError(t, err)
	assert.NotEmpty(t, id)

	id2, err := s.AddRecord(3, testWindow())
	assert.NoError(t, err)
	assert.NotEqual(t, id, id2)

	assert.NoError(t, s.Collect(id, &fusion.Prediction{
		Labels:      []string{"grasp"},
		Confidences: []float64{1.0},
		StartStamp:  timekey.StampOf(1),
		EndStamp:    timekey.StampOf(2),
	}))
	assert.NoError(t, s.Close())
}
