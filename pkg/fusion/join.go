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

// AssociateDescending matches each reference timestamp to the item whose
// key is nearest to it within tolerance (inclusive), producing one
// matched-or-nil slot per reference. Both sequences must be in ascending
// time order; the walk is a single linear pass from the most recent end
// backward with a shared item cursor, so the whole join is O(len(refs) +
// len(items)). Ties on equal absolute difference resolve to the more recent
// item. A tolerance of zero demands exact key equality.
//
// An item may satisfy more than one reference when references are denser
// than items; a reference with no item inside tolerance gets nil.
func AssociateDescending[T any](refs []timekey.Key, items []*T, tolerance timekey.Key, timeOf func(*T) timekey.Key) []*T {
	out := make([]*T, len(refs))
	j := len(items) - 1
	for i := len(refs) - 1; i >= 0; i-- {
		// Retreat the cursor while the next older item is strictly
		// closer; strict comparison keeps the more recent item on ties.
		for j > 0 && absDiff(timeOf(items[j-1]), refs[i]) < absDiff(timeOf(items[j]), refs[i]) {
			j--
		}
		if j >= 0 && absDiff(timeOf(items[j]), refs[i]) <= tolerance {
			out[i] = items[j]
		}
	}
	return out
}

func absDiff(a, b timekey.Key) timekey.Key {
	if a > b {
		return a - b
	}
	return b - a
}
