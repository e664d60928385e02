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
	"time"
)

type options struct {
	// windowSize is the number of frames per window
	windowSize int
	// maxRetention bounds how much history the buffer keeps
	maxRetention time.Duration
	// heartbeat bounds the idle wait so stop is observed promptly
	heartbeat time.Duration
	// anchor selects the window anchoring policy
	anchor AnchorPolicy
	// replayMode enables the completeness criterion and producer pacing
	replayMode bool
	// sink receives classifications and rejected-window bookkeeping
	sink ResultSink
	// traceLogging enables info-level arrival/processing logs
	traceLogging bool
}

// Option customizes a Scheduler.
type Option func(*options) error

// DefaultOptions mirror the windowed-classifier deployment defaults.
func DefaultOptions() *options {
	return &options{
		windowSize:   25,
		maxRetention: 15 * time.Second,
		heartbeat:    100 * time.Millisecond,
		anchor:       AnchorTrailing,
	}
}

// WithWindowSize sets the number of frames per window.
func WithWindowSize(n int) Option {
	return func(o *options) error {
		if n < 2 {
			return fmt.Errorf("window size must be at least 2, got %d", n)
		}
		o.windowSize = n
		return nil
	}
}

// WithMaxRetention sets the maximum buffered duration.
func WithMaxRetention(d time.Duration) Option {
	return func(o *options) error {
		o.maxRetention = d
		return nil
	}
}

// WithHeartbeat sets the idle-wait timeout of the runtime loop.
func WithHeartbeat(d time.Duration) Option {
	return func(o *options) error {
		o.heartbeat = d
		return nil
	}
}

// WithAnchor sets the window anchoring policy.
func WithAnchor(a AnchorPolicy) Option {
	return func(o *options) error {
		switch a {
		case AnchorTrailing, AnchorLeadingWithDetections:
			o.anchor = a
			return nil
		default:
			return fmt.Errorf("unknown anchor policy %q", a)
		}
	}
}

// WithReplayMode enables dataset-replay ingestion: the completeness
// criterion joins the chain and a ReplaySync is allocated for producer
// pacing.
func WithReplayMode(enabled bool) Option {
	return func(o *options) error {
		o.replayMode = enabled
		return nil
	}
}

// WithResultSink attaches a sink for classifications and rejection
// bookkeeping.
func WithResultSink(s ResultSink) Option {
	return func(o *options) error {
		o.sink = s
		return nil
	}
}

// WithTraceLogging enables per-arrival and per-window info logging.
func WithTraceLogging(enabled bool) Option {
	return func(o *options) error {
		o.traceLogging = enabled
		return nil
	}
}
