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
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fuseproj/tempofuse/pkg/fusion"
	"github.com/fuseproj/tempofuse/pkg/shared/logging"
	"github.com/fuseproj/tempofuse/pkg/timekey"
)

// ToLog prints every classification to a structured log. Mainly used for
// smoke-testing a pipeline before attaching a real sink.
type ToLog struct {
	pipelineName string
	logger       *zap.SugaredLogger
}

type Option func(*ToLog) error

func WithLogger(log *zap.SugaredLogger) Option {
	return func(t *ToLog) error {
		t.logger = log
		return nil
	}
}

// NewToLog returns ToLog type.
func NewToLog(pipelineName string, opts ...Option) (*ToLog, error) {
	toLog := &ToLog{pipelineName: pipelineName}
	for _, o := range opts {
		if err := o(toLog); err != nil {
			return nil, err
		}
	}
	if toLog.logger == nil {
		toLog.logger = logging.NewLogger()
	}
	toLog.logger = toLog.logger.Named("log-sink").With(zap.String("pipeline", pipelineName))
	return toLog, nil
}

// AddRecord logs the window's shape and returns a fresh record id.
func (t *ToLog) AddRecord(frameKey timekey.Key, w *fusion.InputWindow) (string, error) {
	id := uuid.New().String()
	logSinkRecordCount.WithLabelValues(t.pipelineName).Inc()
	t.logger.Infow("Window record",
		zap.String("recordID", id),
		zap.Int64("leadingTime", frameKey),
		zap.Int("frames", w.Len()),
		zap.String("alignment", w.AlignmentSummary()))
	return id, nil
}

// Collect logs the class distribution attached to a record.
func (t *ToLog) Collect(recordID string, p *fusion.Prediction) error {
	label, conf := p.Best()
	logSinkCollectCount.WithLabelValues(t.pipelineName).Inc()
	t.logger.Infow("Activity classification",
		zap.String("recordID", recordID),
		zap.String("label", label),
		zap.Float64("confidence", conf),
		zap.Int64("startTime", p.StartStamp.Key()),
		zap.Int64("endTime", p.EndStamp.Key()))
	return nil
}

func (t *ToLog) Close() error {
	return nil
}
