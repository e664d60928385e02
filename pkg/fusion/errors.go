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
	"errors"
	"fmt"
)

// ErrEmptyBuffer is returned by queries that need at least one buffered
// frame.
var ErrEmptyBuffer = errors.New("buffer contains no frames")

// ErrNoResult is the expected failure a Classifier raises when a window's
// content cannot be embedded into a feature vector (e.g. every slot is
// empty). The scheduler treats it as a rejection, not a fault.
var ErrNoResult = errors.New("window yielded no classification result")

// InvalidStreamError indicates an append addressed to an unrecognized
// stream.
type InvalidStreamError struct {
	Stream StreamID
}

func (e InvalidStreamError) Error() string {
	return fmt.Sprintf("unrecognized stream %q", string(e.Stream))
}

// MalformedDetectionsError indicates a detection set whose parallel box
// slices or row-major confidence matrix disagree in shape.
type MalformedDetectionsError struct {
	Detail string
}

func (e MalformedDetectionsError) Error() string {
	return fmt.Sprintf("malformed detection set: %s", e.Detail)
}

// InvalidHandError indicates a pose item declaring a side label outside the
// recognized set.
type InvalidHandError struct {
	Hand Hand
}

func (e InvalidHandError) Error() string {
	return fmt.Sprintf("unrecognized pose hand label %q", string(e.Hand))
}
