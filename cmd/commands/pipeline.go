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

package commands

import (
	"context"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/fuseproj/tempofuse/pkg/classify"
	"github.com/fuseproj/tempofuse/pkg/config"
	"github.com/fuseproj/tempofuse/pkg/fusion"
	"github.com/fuseproj/tempofuse/pkg/shared/logging"
	"github.com/fuseproj/tempofuse/pkg/sinks/dataset"
	logsink "github.com/fuseproj/tempofuse/pkg/sinks/logger"
	redissink "github.com/fuseproj/tempofuse/pkg/sinks/redis"
)

// buildSink constructs the result sink named by the settings.
func buildSink(ctx context.Context, s *config.Settings) (fusion.ResultSink, error) {
	log := logging.FromContext(ctx)
	switch s.Sink.Type {
	case "log":
		return logsink.NewToLog(s.PipelineName, logsink.WithLogger(log))
	case "redis":
		opt, err := goredis.ParseURL(s.Sink.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse redis url, %w", err)
		}
		sinkOpts := []redissink.Option{redissink.WithLogger(log)}
		if s.Sink.RedisStreamKey != "" {
			sinkOpts = append(sinkOpts, redissink.WithStreamKey(s.Sink.RedisStreamKey))
		}
		return redissink.NewRedisSink(ctx, s.PipelineName, goredis.NewClient(opt), sinkOpts...)
	case "dataset":
		return dataset.NewCollector(s.PipelineName, s.Sink.OutputPath, dataset.WithLogger(log))
	default:
		return nil, fmt.Errorf("unknown sink type %q", s.Sink.Type)
	}
}

// healthCheck backs the readiness probe of the metrics endpoint.
func healthCheck(s *fusion.Scheduler) error {
	if !s.IsRunning() {
		return fmt.Errorf("fusion runtime loop is not running")
	}
	return nil
}

// buildScheduler assembles buffer, classifier and scheduler per settings.
func buildScheduler(ctx context.Context, s *config.Settings, sink fusion.ResultSink, replayMode bool) (*fusion.Scheduler, error) {
	buffer, err := fusion.NewTemporalBuffer(fusion.WithPoseTolerance(s.PoseTolerance))
	if err != nil {
		return nil, err
	}
	classifier, err := classify.NewMaxConfidence(classify.WithMinConfidence(s.MinConfidence))
	if err != nil {
		return nil, err
	}
	return fusion.NewScheduler(ctx, buffer, classifier,
		fusion.WithWindowSize(s.WindowSize),
		fusion.WithMaxRetention(s.MaxRetention),
		fusion.WithHeartbeat(s.Heartbeat),
		fusion.WithAnchor(fusion.AnchorPolicy(s.Anchor)),
		fusion.WithReplayMode(replayMode),
		fusion.WithResultSink(sink),
		fusion.WithTraceLogging(s.TraceLogging))
}
