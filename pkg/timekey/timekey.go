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

// Package timekey converts stream-native timestamps into the monotonic
// integer nanosecond keys that all buffering, association and eviction
// logic operates on. A Key totally orders every item in the system and is
// the sole join key between streams.
package timekey

import "time"

// Key is a timestamp expressed as nanoseconds. Keys are comparable with
// the standard integer operators.
type Key = int64

// Stamp is the wire representation of a sensor timestamp, a second and
// nanosecond pair as produced by the upstream capture stack.
type Stamp struct {
	Sec  int64 `json:"sec"`
	NSec int64 `json:"nsec"`
}

// Key returns the monotonic nanosecond key for the stamp.
func (s Stamp) Key() Key {
	return s.Sec*int64(time.Second) + s.NSec
}

// StampOf converts a nanosecond key back into its wire representation.
func StampOf(k Key) Stamp {
	return Stamp{Sec: k / int64(time.Second), NSec: k % int64(time.Second)}
}

// FromTime converts a wall-clock time into a Key.
func FromTime(t time.Time) Key {
	return t.UnixNano()
}

// FromDuration converts a duration (e.g. a configured tolerance or
// retention bound) into the same nanosecond unit as Key.
func FromDuration(d time.Duration) Key {
	return d.Nanoseconds()
}
