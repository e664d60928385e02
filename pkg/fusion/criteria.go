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

	"github.com/fuseproj/tempofuse/pkg/timekey"
)

// Rejection reasons, also used as metric label values.
const (
	ReasonWrongSize           = "wrong_size"
	ReasonStaleLeadingFrame   = "stale_leading_frame"
	ReasonIncompleteAlignment = "incomplete_alignment"
	ReasonNoResult            = "no_result"
)

// Rejection describes why a window was not processed. It is an expected
// outcome, not an error.
type Rejection struct {
	Reason string
	Detail string
}

func (r *Rejection) String() string {
	if r.Detail == "" {
		return r.Reason
	}
	return fmt.Sprintf("%s: %s", r.Reason, r.Detail)
}

// Criterion is one predicate over an extracted window. A nil return means
// the window passes.
type Criterion func(w *InputWindow) *Rejection

// Criteria is an ordered chain of criteria evaluated left to right with
// short-circuit on the first rejection. Extend by appending; cheap checks
// belong first.
type Criteria []Criterion

// Validate runs the chain and returns the first rejection, or nil.
func (c Criteria) Validate(w *InputWindow) *Rejection {
	for _, fn := range c {
		if rej := fn(w); rej != nil {
			return rej
		}
	}
	return nil
}

// CorrectSize requires the window to hold exactly size frames.
func CorrectSize(size int) Criterion {
	return func(w *InputWindow) *Rejection {
		if w.Len() != size {
			return &Rejection{
				Reason: ReasonWrongSize,
				Detail: fmt.Sprintf("actual:%d != %d:expected", w.Len(), size),
			}
		}
		return nil
	}
}

// NewLeadingFrame requires the window's trailing frame to be strictly newer
// than the trailing frame of the last successfully processed window, so the
// same leading edge is never processed twice. lastProcessed reports that
// timestamp and whether any window has been processed yet; the very first
// window always passes.
func NewLeadingFrame(lastProcessed func() (timekey.Key, bool)) Criterion {
	return func(w *InputWindow) *Rejection {
		cur, ok := w.TrailingTime()
		if !ok {
			return &Rejection{Reason: ReasonStaleLeadingFrame, Detail: "window has no content"}
		}
		prev, has := lastProcessed()
		if has && cur <= prev {
			return &Rejection{
				Reason: ReasonStaleLeadingFrame,
				Detail: fmt.Sprintf("leading frame %d not beyond %d", cur, prev),
			}
		}
		return nil
	}
}

// CompleteAlignment requires every frame slot to have a detection set.
// Only meaningful in replay mode, where delivery is lock-step and a gap
// indicates an alignment bug upstream. (Pose slots are allowed to be empty;
// pose streams are sparse even in recorded datasets.)
func CompleteAlignment() Criterion {
	return func(w *InputWindow) *Rejection {
		for i := range w.Frames {
			if w.Detections[i] == nil {
				return &Rejection{
					Reason: ReasonIncompleteAlignment,
					Detail: fmt.Sprintf("slot %d (frame %d) has no detections", i, w.Frames[i].Time()),
				}
			}
		}
		return nil
	}
}
