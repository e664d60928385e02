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

package classify

// KeypointCategories is the recognized pose keypoint vocabulary, in the
// index order pose estimators emit joints.
var KeypointCategories = []string{
	"nose",
	"mouth",
	"throat",
	"chest",
	"stomach",
	"left_upper_arm",
	"right_upper_arm",
	"left_lower_arm",
	"right_lower_arm",
	"left_wrist",
	"right_wrist",
	"left_hand",
	"right_hand",
	"left_upper_leg",
	"right_upper_leg",
	"left_knee",
	"right_knee",
	"left_lower_leg",
	"right_lower_leg",
	"left_foot",
	"right_foot",
	"back",
}

var keypointSet = func() map[string]struct{} {
	m := make(map[string]struct{}, len(KeypointCategories))
	for _, k := range KeypointCategories {
		m[k] = struct{}{}
	}
	return m
}()

// ValidKeypoint returns whether label is in the recognized vocabulary.
func ValidKeypoint(label string) bool {
	_, ok := keypointSet[label]
	return ok
}

// KeypointLabel maps a pose estimator's joint index to its category label.
// The second return is false for indexes beyond the vocabulary.
func KeypointLabel(i int) (string, bool) {
	if i < 0 || i >= len(KeypointCategories) {
		return "", false
	}
	return KeypointCategories[i], true
}
