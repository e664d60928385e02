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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/fuseproj/tempofuse/pkg/metrics"
)

// appendedTotal is the number of items accepted per stream
var appendedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Subsystem: "fusion",
	Name:      "appended_total",
	Help:      "Total number of stream items appended to the buffer",
}, []string{metrics.LabelStream})

// appendRefusedTotal counts appends refused because the scheduler is not running
var appendRefusedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Subsystem: "fusion",
	Name:      "append_refused_total",
	Help:      "Total number of appends refused after scheduler stop",
}, []string{metrics.LabelStream})

// windowsExtractedTotal is the number of windows pulled from the buffer
var windowsExtractedTotal = promauto.NewCounter(prometheus.CounterOpts{
	Subsystem: "fusion",
	Name:      "windows_extracted_total",
	Help:      "Total number of windows extracted from the buffer",
})

// windowsRejectedTotal is the number of windows rejected by the criterion chain or the classifier
var windowsRejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Subsystem: "fusion",
	Name:      "windows_rejected_total",
	Help:      "Total number of windows rejected, by reason",
}, []string{metrics.LabelReason})

// windowsProcessedTotal is the number of windows successfully classified
var windowsProcessedTotal = promauto.NewCounter(prometheus.CounterOpts{
	Subsystem: "fusion",
	Name:      "windows_processed_total",
	Help:      "Total number of windows classified and published",
})

// classifyLatency observes the external classification call duration
var classifyLatency = promauto.NewHistogram(prometheus.HistogramOpts{
	Subsystem: "fusion",
	Name:      "classify_latency_seconds",
	Help:      "Latency of the external classification step",
	Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14),
})

// bufferLength tracks the buffered item count per stream
var bufferLength = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Subsystem: "fusion",
	Name:      "buffer_length",
	Help:      "Number of items currently buffered, per stream",
}, []string{metrics.LabelStream})

// memoEntries tracks the memo cache sizes
var memoEntries = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Subsystem: "fusion",
	Name:      "memo_entries",
	Help:      "Number of memoized per-timestamp artifacts, per cache",
}, []string{"cache"})
