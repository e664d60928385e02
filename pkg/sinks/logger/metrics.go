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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/fuseproj/tempofuse/pkg/metrics"
)

// logSinkRecordCount is the number of window records booked to the log sink
var logSinkRecordCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Subsystem: "log_sink",
	Name:      "record_total",
	Help:      "Total number of window records booked to log sink",
}, []string{metrics.LabelPipeline})

// logSinkCollectCount is the number of classifications written to the log sink
var logSinkCollectCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Subsystem: "log_sink",
	Name:      "collect_total",
	Help:      "Total number of classifications written to log sink",
}, []string{metrics.LabelPipeline})
