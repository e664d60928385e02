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

// Package dataset accumulates window records in memory and writes a JSON
// results dataset when closed. Used for offline evaluation runs over
// recorded data, where the output must be frame-complete: rejected windows
// are booked with a null distribution instead of being dropped.
package dataset

import (
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fuseproj/tempofuse/pkg/fusion"
	"github.com/fuseproj/tempofuse/pkg/shared/logging"
	"github.com/fuseproj/tempofuse/pkg/timekey"
)

// Record is one booked window with its (possibly absent) distribution.
type Record struct {
	ID          string             `json:"id"`
	LeadingTime timekey.Key        `json:"leading_time_ns"`
	Frames      []fusion.Frame     `json:"frames"`
	Prediction  *fusion.Prediction `json:"prediction,omitempty"`
}

// Results is the file-level shape of the output dataset.
type Results struct {
	Pipeline  string    `json:"pipeline"`
	CreatedAt time.Time `json:"created_at"`
	Records   []*Record `json:"records"`
}

// Collector implements fusion.ResultSink. Like the other sinks it is
// driven only from the scheduler goroutine and takes no lock.
type Collector struct {
	pipelineName string
	outputPath   string
	logger       *zap.SugaredLogger

	records map[string]*Record
}

type Option func(*Collector) error

func WithLogger(log *zap.SugaredLogger) Option {
	return func(c *Collector) error {
		c.logger = log
		return nil
	}
}

// NewCollector returns a collector writing to outputPath at Close.
func NewCollector(pipelineName, outputPath string, opts ...Option) (*Collector, error) {
	if outputPath == "" {
		return nil, fmt.Errorf("output path must not be empty")
	}
	c := &Collector{
		pipelineName: pipelineName,
		outputPath:   outputPath,
		records:      make(map[string]*Record),
	}
	for _, o := range opts {
		if err := o(c); err != nil {
			return nil, err
		}
	}
	if c.logger == nil {
		c.logger = logging.NewLogger()
	}
	c.logger = c.logger.Named("dataset-sink")
	return c, nil
}

// AddRecord books a window under a fresh record id.
func (c *Collector) AddRecord(frameKey timekey.Key, w *fusion.InputWindow) (string, error) {
	id := uuid.New().String()
	frames := make([]fusion.Frame, len(w.Frames))
	copy(frames, w.Frames)
	c.records[id] = &Record{ID: id, LeadingTime: frameKey, Frames: frames}
	return id, nil
}

// Collect attaches a distribution to a booked record.
func (c *Collector) Collect(recordID string, p *fusion.Prediction) error {
	r, ok := c.records[recordID]
	if !ok {
		return fmt.Errorf("unknown record id %q", recordID)
	}
	r.Prediction = p
	return nil
}

// Len returns the number of booked records.
func (c *Collector) Len() int {
	return len(c.records)
}

// Close writes the accumulated dataset, records ordered by leading time.
func (c *Collector) Close() error {
	out := &Results{
		Pipeline:  c.pipelineName,
		CreatedAt: time.Now().UTC(),
		Records:   make([]*Record, 0, len(c.records)),
	}
	for _, r := range c.records {
		out.Records = append(out.Records, r)
	}
	sort.Slice(out.Records, func(i, j int) bool {
		return out.Records[i].LeadingTime < out.Records[j].LeadingTime
	})

	data, err := json.Marshal(out)
	if err != nil {
		return fmt.Errorf("failed to marshal results dataset, %w", err)
	}
	if err := os.WriteFile(c.outputPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write results dataset, %w", err)
	}
	c.logger.Infow("Wrote results dataset",
		zap.String("path", c.outputPath), zap.Int("records", len(out.Records)))
	return nil
}
