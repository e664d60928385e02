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

// Package fusion implements the temporal buffering, alignment and windowing
// engine that joins three asynchronous sensor streams (image-frame
// timestamps, per-frame object detections, and pose keypoints) into
// fixed-size windows for a downstream activity classifier.
//
// Frames are the primary index: every window is anchored to a contiguous run
// of frames taken from the tail of the frame sequence, and the other streams
// are associated to those frames by timestamp. Detections associate by exact
// source-timestamp match; poses associate by nearest-within-tolerance.
//
// The TemporalBuffer owns all cross-goroutine shared state under a single
// coarse lock. The Scheduler runs a single consumer goroutine that extracts
// windows, validates them through an ordered criterion chain, and hands the
// survivors to the external Classifier. Rejection is a routine outcome, not
// an error: warm-up windows, duplicate leading edges, and classifier
// no-result conditions are all recovered locally by evicting the buffer back
// to its retention bound and continuing.
package fusion
