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

type stampedItem struct {
	t timekey.Key
	v string
}

func itemTime(it *stampedItem) timekey.Key { return it.t }

func items(ts ...timekey.Key) []*stampedItem {
	out := make([]*stampedItem, len(ts))
	for i, t := range ts {
		out[i] = &stampedItem{t: t}
	}
	return out
}

func TestAssociateDescending_ExactMatch(t *testing.T) {
	refs := []timekey.Key{10, 11, 12, 13}
	got := AssociateDescending(refs, items(10, 12), 0, itemTime)

	assert.Len(t, got, 4)
	assert.NotNil(t, got[0])
	assert.Equal(t, timekey.Key(10), got[0].t)
	assert.Nil(t, got[1])
	assert.NotNil(t, got[2])
	assert.Equal(t, timekey.Key(12), got[2].t)
	assert.Nil(t, got[3])
}

func TestAssociateDescending_ToleranceBoundary(t *testing.T) {
	const tol = 5
	tests := []struct {
		name    string
		itemAt  timekey.Key
		matches bool
	}{
		{name: "exact", itemAt: 100, matches: true},
		{name: "within_below", itemAt: 95, matches: true},
		{name: "within_above", itemAt: 105, matches: true},
		{name: "outside_below", itemAt: 94, matches: false},
		{name: "outside_above", itemAt: 106, matches: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := AssociateDescending([]timekey.Key{100}, items(tt.itemAt), tol, itemTime)
			if tt.matches {
				assert.NotNil(t, got[0])
			} else {
				assert.Nil(t, got[0])
			}
		})
	}
}

func TestAssociateDescending_NearestWins(t *testing.T) {
	// Frame at 100 with items at 90 and 103: 103 is nearer.
	got := AssociateDescending([]timekey.Key{100}, items(90, 103), 10, itemTime)
	assert.Equal(t, timekey.Key(103), got[0].t)
}

func TestAssociateDescending_TiePrefersMostRecent(t *testing.T) {
	// Items equidistant from the reference; the newer one wins.
	got := AssociateDescending([]timekey.Key{100}, items(95, 105), 5, itemTime)
	assert.Equal(t, timekey.Key(105), got[0].t)
}

func TestAssociateDescending_ItemMayServeMultipleRefs(t *testing.T) {
	got := AssociateDescending([]timekey.Key{100, 101}, items(101), 1, itemTime)
	assert.NotNil(t, got[0])
	assert.NotNil(t, got[1])
	assert.Same(t, got[0], got[1])
}

func TestAssociateDescending_Empty(t *testing.T) {
	assert.Equal(t, []*stampedItem{nil, nil}, AssociateDescending([]timekey.Key{1, 2}, nil, 10, itemTime))
	assert.Empty(t, AssociateDescending(nil, items(1, 2), 10, itemTime))
}

func TestAssociateDescending_DenseItemsSparseRefs(t *testing.T) {
	refs := []timekey.Key{100, 200, 300}
	got := AssociateDescending(refs, items(98, 99, 100, 101, 199, 205, 301), 2, itemTime)
	assert.Equal(t, timekey.Key(100), got[0].t)
	assert.Equal(t, timekey.Key(199), got[1].t)
	assert.Equal(t, timekey.Key(301), got[2].t)
}
