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

// Package nats is the live ingestion adapter: it subscribes to the three
// stream subjects and feeds decoded messages to the scheduler. Transport
// concerns (reconnects, subscriptions) stay on this side of the boundary;
// the scheduler only ever sees typed appends.
package nats

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	natslib "github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/fuseproj/tempofuse/pkg/fusion"
	"github.com/fuseproj/tempofuse/pkg/shared/logging"
	"github.com/fuseproj/tempofuse/pkg/timekey"
)

// frameMessage is the wire form of a frame arrival. The sequence number is
// assigned at ingestion, not carried on the wire.
type frameMessage struct {
	Stamp      timekey.Stamp `json:"stamp"`
	PayloadRef string        `json:"payload_ref,omitempty"`
}

type natsSource struct {
	pipelineName string
	logger       *zap.SugaredLogger
	natsConn     *natslib.Conn
	subs         []*natslib.Subscription
	scheduler    *fusion.Scheduler

	queue            string
	frameSubject     string
	detectionSubject string
	poseSubject      string
}

type Option func(*natsSource) error

// WithLogger is used to return logger information
func WithLogger(l *zap.SugaredLogger) Option {
	return func(o *natsSource) error {
		o.logger = l
		return nil
	}
}

// WithQueue sets the queue group name for all three subscriptions.
func WithQueue(q string) Option {
	return func(o *natsSource) error {
		o.queue = q
		return nil
	}
}

// WithSubjects overrides the default per-stream subjects.
func WithSubjects(frames, detections, poses string) Option {
	return func(o *natsSource) error {
		o.frameSubject = frames
		o.detectionSubject = detections
		o.poseSubject = poses
		return nil
	}
}

// New connects to the nats server at url and subscribes the three stream
// subjects, feeding decoded arrivals to the scheduler.
func New(ctx context.Context, url, pipelineName string, scheduler *fusion.Scheduler, opts ...Option) (*natsSource, error) {
	n := &natsSource{
		pipelineName:     pipelineName,
		scheduler:        scheduler,
		logger:           logging.FromContext(ctx),
		queue:            pipelineName + "-fusion",
		frameSubject:     pipelineName + ".frames",
		detectionSubject: pipelineName + ".detections",
		poseSubject:      pipelineName + ".poses",
	}
	for _, o := range opts {
		if err := o(n); err != nil {
			return nil, err
		}
	}

	opt := []natslib.Option{
		natslib.MaxReconnects(-1),
		natslib.ReconnectWait(3 * time.Second),
		natslib.DisconnectErrHandler(func(c *natslib.Conn, err error) {
			n.logger.Errorw("Nats disconnected", zap.Error(err))
		}),
		natslib.ReconnectHandler(func(c *natslib.Conn) {
			n.logger.Info("Nats reconnected")
		}),
	}

	n.logger.Info("Connecting to nats service...")
	conn, err := natslib.Connect(url, opt...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats server, %w", err)
	}
	n.natsConn = conn

	for _, s := range []struct {
		subject string
		stream  fusion.StreamID
		handler natslib.MsgHandler
	}{
		{n.frameSubject, fusion.StreamFrames, n.handleFrame},
		{n.detectionSubject, fusion.StreamDetections, n.handleDetections},
		{n.poseSubject, fusion.StreamPoses, n.handlePose},
	} {
		sub, err := n.natsConn.QueueSubscribe(s.subject, n.queue, s.handler)
		if err != nil {
			n.natsConn.Close()
			return nil, fmt.Errorf("failed to QueueSubscribe %q, %w", s.subject, err)
		}
		n.subs = append(n.subs, sub)
	}
	return n, nil
}

func (ns *natsSource) handleFrame(msg *natslib.Msg) {
	var fm frameMessage
	if err := json.Unmarshal(msg.Data, &fm); err != nil {
		ns.decodeError(fusion.StreamFrames, err)
		return
	}
	ns.scheduler.AppendFrame(fm.Stamp, fm.PayloadRef)
	natsSourceReadCount.WithLabelValues(ns.pipelineName, string(fusion.StreamFrames)).Inc()
}

func (ns *natsSource) handleDetections(msg *natslib.Msg) {
	var d fusion.DetectionSet
	if err := json.Unmarshal(msg.Data, &d); err != nil {
		ns.decodeError(fusion.StreamDetections, err)
		return
	}
	// A decodable message can still carry a torn box/confidence shape;
	// reject it here so it never reaches a window.
	if err := d.Validate(); err != nil {
		ns.decodeError(fusion.StreamDetections, err)
		return
	}
	ns.scheduler.AppendDetections(&d)
	natsSourceReadCount.WithLabelValues(ns.pipelineName, string(fusion.StreamDetections)).Inc()
}

func (ns *natsSource) handlePose(msg *natslib.Msg) {
	var p fusion.PoseSet
	if err := json.Unmarshal(msg.Data, &p); err != nil {
		ns.decodeError(fusion.StreamPoses, err)
		return
	}
	if _, err := ns.scheduler.AppendPoses(&p); err != nil {
		ns.logger.Warnw("Dropping pose message", zap.Error(err))
		return
	}
	natsSourceReadCount.WithLabelValues(ns.pipelineName, string(fusion.StreamPoses)).Inc()
}

func (ns *natsSource) decodeError(stream fusion.StreamID, err error) {
	natsSourceDecodeErrors.WithLabelValues(ns.pipelineName, string(stream)).Inc()
	ns.logger.Errorw("Failed to decode message", zap.String("stream", string(stream)), zap.Error(err))
}

func (ns *natsSource) GetName() string {
	return ns.pipelineName
}

func (ns *natsSource) Close() error {
	ns.logger.Info("Shutting down nats source...")
	for _, sub := range ns.subs {
		if err := sub.Unsubscribe(); err != nil {
			ns.logger.Errorw("Failed to unsubscribe nats subscription", zap.Error(err))
		}
	}
	ns.natsConn.Close()
	ns.logger.Info("Nats source shutdown")
	return nil
}
