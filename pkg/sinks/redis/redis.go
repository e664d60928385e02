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

package redis

import (
	"context"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/fuseproj/tempofuse/pkg/fusion"
	"github.com/fuseproj/tempofuse/pkg/shared/logging"
	"github.com/fuseproj/tempofuse/pkg/timekey"
)

// RedisSink publishes classifications to a redis stream, one XADD entry per
// collected distribution. Records are held pending between AddRecord and
// Collect; the scheduler drives both from its single goroutine so no lock
// is taken here.
type RedisSink struct {
	ctx          context.Context
	pipelineName string
	streamKey    string
	client       redis.UniversalClient
	logger       *zap.SugaredLogger

	pending map[string]timekey.Key
}

type Option func(*RedisSink) error

func WithLogger(log *zap.SugaredLogger) Option {
	return func(rs *RedisSink) error {
		rs.logger = log
		return nil
	}
}

// WithStreamKey overrides the destination stream key.
func WithStreamKey(key string) Option {
	return func(rs *RedisSink) error {
		rs.streamKey = key
		return nil
	}
}

// NewRedisSink returns RedisSink type.
func NewRedisSink(ctx context.Context, pipelineName string, client redis.UniversalClient, opts ...Option) (*RedisSink, error) {
	rs := &RedisSink{
		ctx:          ctx,
		pipelineName: pipelineName,
		streamKey:    pipelineName + ":classifications",
		client:       client,
		pending:      make(map[string]timekey.Key),
	}
	for _, o := range opts {
		if err := o(rs); err != nil {
			return nil, err
		}
	}
	if rs.logger == nil {
		rs.logger = logging.FromContext(ctx)
	}
	rs.logger = rs.logger.Named("redis-sink")
	return rs, nil
}

// AddRecord registers a window pending collection.
func (rs *RedisSink) AddRecord(frameKey timekey.Key, _ *fusion.InputWindow) (string, error) {
	id := uuid.New().String()
	rs.pending[id] = frameKey
	return id, nil
}

// Collect publishes the distribution to the stream. Records never collected
// (rejected windows) are dropped at Close; redis only carries actual
// classifications.
func (rs *RedisSink) Collect(recordID string, p *fusion.Prediction) error {
	delete(rs.pending, recordID)

	dist, err := json.Marshal(struct {
		Labels      []string  `json:"labels"`
		Confidences []float64 `json:"confidences"`
	}{p.Labels, p.Confidences})
	if err != nil {
		return err
	}
	label, conf := p.Best()
	err = rs.client.XAdd(rs.ctx, &redis.XAddArgs{
		Stream: rs.streamKey,
		Values: map[string]interface{}{
			"record_id":    recordID,
			"pipeline":     rs.pipelineName,
			"label":        label,
			"confidence":   conf,
			"distribution": string(dist),
			"start_ns":     p.StartStamp.Key(),
			"end_ns":       p.EndStamp.Key(),
		},
	}).Err()
	if err != nil {
		return err
	}
	redisSinkWriteCount.WithLabelValues(rs.pipelineName).Inc()
	return nil
}

// Close discards pending never-collected records and closes the client.
func (rs *RedisSink) Close() error {
	if n := len(rs.pending); n > 0 {
		rs.logger.Infow("Dropping records that never produced a classification", zap.Int("count", n))
	}
	rs.pending = nil
	return rs.client.Close()
}
