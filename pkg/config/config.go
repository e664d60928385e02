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

// Package config loads pipeline settings from a YAML file. Flags only
// carry what varies per invocation (paths, addresses); everything shaping
// the fusion behavior itself lives in the settings file so an evaluation
// run is reproducible from the file alone.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Settings is the full configuration of a fusion pipeline.
type Settings struct {
	// PipelineName labels logs, metrics and subjects.
	PipelineName string `json:"pipelineName" mapstructure:"pipelineName"`

	// WindowSize is the number of frames per classification window.
	WindowSize int `json:"windowSize" mapstructure:"windowSize"`
	// MaxRetention bounds buffered history.
	MaxRetention time.Duration `json:"maxRetention" mapstructure:"maxRetention"`
	// Heartbeat bounds the runtime loop's idle wait.
	Heartbeat time.Duration `json:"heartbeat" mapstructure:"heartbeat"`
	// PoseTolerance is the nearest-match bound for the pose stream.
	PoseTolerance time.Duration `json:"poseTolerance" mapstructure:"poseTolerance"`
	// Anchor is "trailing" or "leading_with_detections".
	Anchor string `json:"anchor" mapstructure:"anchor"`
	// TraceLogging enables per-arrival info logs.
	TraceLogging bool `json:"traceLogging" mapstructure:"traceLogging"`

	// MinConfidence is the classification vote threshold.
	MinConfidence float64 `json:"minConfidence" mapstructure:"minConfidence"`

	Nats    NatsSettings  `json:"nats" mapstructure:"nats"`
	Sink    SinkSettings  `json:"sink" mapstructure:"sink"`
	Metrics MetricsServer `json:"metrics" mapstructure:"metrics"`
}

// NatsSettings configures the live ingestion adapter.
type NatsSettings struct {
	URL string `json:"url" mapstructure:"url"`
	// Subjects default to <pipelineName>.<stream> when empty.
	FrameSubject     string `json:"frameSubject" mapstructure:"frameSubject"`
	DetectionSubject string `json:"detectionSubject" mapstructure:"detectionSubject"`
	PoseSubject      string `json:"poseSubject" mapstructure:"poseSubject"`
	Queue            string `json:"queue" mapstructure:"queue"`
}

// SinkSettings selects and configures the result sink.
type SinkSettings struct {
	// Type is "log", "redis" or "dataset".
	Type string `json:"type" mapstructure:"type"`
	// RedisURL is required for the redis sink.
	RedisURL string `json:"redisUrl" mapstructure:"redisUrl"`
	// RedisStreamKey overrides the default stream key.
	RedisStreamKey string `json:"redisStreamKey" mapstructure:"redisStreamKey"`
	// OutputPath is required for the dataset sink.
	OutputPath string `json:"outputPath" mapstructure:"outputPath"`
}

// MetricsServer configures the prometheus endpoint.
type MetricsServer struct {
	// Addr like ":2469"; empty disables the endpoint.
	Addr string `json:"addr" mapstructure:"addr"`
}

// DefaultSettings mirror the windowed-classifier deployment defaults.
func DefaultSettings() *Settings {
	return &Settings{
		PipelineName:  "tempofuse",
		WindowSize:    25,
		MaxRetention:  15 * time.Second,
		Heartbeat:     100 * time.Millisecond,
		Anchor:        "trailing",
		MinConfidence: 0,
		Nats:          NatsSettings{URL: "nats://127.0.0.1:4222"},
		Sink:          SinkSettings{Type: "log"},
		Metrics:       MetricsServer{Addr: ":2469"},
	}
}

// Load reads the settings file at path, layered over the defaults.
func Load(path string) (*Settings, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to load configuration file. %w", err)
	}
	s := DefaultSettings()
	if err := v.Unmarshal(s); err != nil {
		return nil, fmt.Errorf("failed unmarshal configuration file. %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Validate checks cross-field requirements that viper cannot.
func (s *Settings) Validate() error {
	if s.PipelineName == "" {
		return fmt.Errorf("pipelineName must not be empty")
	}
	if s.WindowSize < 2 {
		return fmt.Errorf("windowSize must be at least 2, got %d", s.WindowSize)
	}
	if s.MaxRetention <= 0 {
		return fmt.Errorf("maxRetention must be positive")
	}
	if s.Heartbeat <= 0 {
		return fmt.Errorf("heartbeat must be positive")
	}
	switch s.Anchor {
	case "trailing", "leading_with_detections":
	default:
		return fmt.Errorf("unknown anchor policy %q", s.Anchor)
	}
	switch s.Sink.Type {
	case "log":
	case "redis":
		if s.Sink.RedisURL == "" {
			return fmt.Errorf("redis sink requires sink.redisUrl")
		}
	case "dataset":
		if s.Sink.OutputPath == "" {
			return fmt.Errorf("dataset sink requires sink.outputPath")
		}
	default:
		return fmt.Errorf("unknown sink type %q", s.Sink.Type)
	}
	return nil
}
