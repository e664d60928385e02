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
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/fuseproj/tempofuse/pkg/shared/logging"
	"github.com/fuseproj/tempofuse/pkg/timekey"
)

// Scheduler runs the fusion loop: woken by new arrivals (or a heartbeat),
// it pulls a window from the buffer, validates it through the criterion
// chain, and on success hands it to the external classifier; on failure it
// evicts stale buffer content and continues. Exactly one window is in
// flight at any time.
type Scheduler struct {
	buffer     *TemporalBuffer
	classifier Classifier
	opts       *options
	criteria   Criteria
	log        *zap.SugaredLogger

	// wake has capacity one so repeated signals coalesce, the set-and-
	// clear event semantic.
	wake     chan struct{}
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
	cancel   context.CancelFunc
	running  *atomic.Bool
	started  *atomic.Bool

	// replay producer pacing; nil outside replay mode.
	sync *ReplaySync

	// frameSeq numbers frames in arrival order.
	frameSeq *atomic.Int64

	// Trailing timestamp of the last successfully processed window.
	// Loop-goroutine state; read by the progress criterion on the same
	// goroutine.
	lastProcessed timekey.Key
	hasProcessed  bool

	// Progress-evicted memoization, scheduler goroutine only.
	memoDetections *MemoCache[*DetectionSummary]
	memoPoses      *MemoCache[*PoseSummary]
	memoEmbeddings *MemoCache[[]float32]
}

// NewScheduler assembles a scheduler over the given buffer and classifier.
func NewScheduler(ctx context.Context, buffer *TemporalBuffer, classifier Classifier, opts ...Option) (*Scheduler, error) {
	o := DefaultOptions()
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, err
		}
	}
	s := &Scheduler{
		buffer:         buffer,
		classifier:     classifier,
		opts:           o,
		log:            logging.FromContext(ctx).Named("scheduler"),
		wake:           make(chan struct{}, 1),
		stop:           make(chan struct{}),
		done:           make(chan struct{}),
		running:        atomic.NewBool(false),
		started:        atomic.NewBool(false),
		frameSeq:       atomic.NewInt64(0),
		memoDetections: NewMemoCache[*DetectionSummary](),
		memoPoses:      NewMemoCache[*PoseSummary](),
		memoEmbeddings: NewMemoCache[[]float32](),
	}

	// Cheap checks first; the chain short-circuits on the first failure.
	s.criteria = Criteria{
		CorrectSize(o.windowSize),
		NewLeadingFrame(func() (timekey.Key, bool) { return s.lastProcessed, s.hasProcessed }),
	}
	if o.replayMode {
		s.criteria = append(s.criteria, CompleteAlignment())
		s.sync = NewReplaySync()
	}
	return s, nil
}

// Start launches the runtime goroutine. It may be called once.
func (s *Scheduler) Start(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return errors.New("scheduler already started")
	}
	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.running.Store(true)
	s.log.Infow("Starting runtime loop",
		zap.Int("windowSize", s.opts.windowSize),
		zap.Duration("maxRetention", s.opts.maxRetention),
		zap.String("anchor", string(s.opts.anchor)),
		zap.Bool("replayMode", s.opts.replayMode))
	go s.run(loopCtx)
	return nil
}

// Stop signals cooperative shutdown and waits for the runtime goroutine to
// exit. Idempotent. An in-flight classification is allowed to complete.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		close(s.stop)
		s.signalWake() // intentionally second
	})
	if s.started.Load() {
		<-s.done
	}
}

// IsRunning reports whether the runtime loop is alive. Ingestion callbacks
// use it to short-circuit work once the scheduler has died or stopped.
func (s *Scheduler) IsRunning() bool {
	return s.running.Load()
}

// Sync exposes the replay pacing primitive; nil outside replay mode.
func (s *Scheduler) Sync() *ReplaySync {
	return s.sync
}

// Wake nudges the runtime loop to attempt a window extraction.
func (s *Scheduler) Wake() {
	s.signalWake()
}

func (s *Scheduler) signalWake() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// AppendFrame queues a frame timestamp, assigning the next sequence
// number. Returns false once the scheduler is no longer running.
func (s *Scheduler) AppendFrame(stamp timekey.Stamp, payloadRef string) bool {
	if !s.IsRunning() {
		appendRefusedTotal.WithLabelValues(string(StreamFrames)).Inc()
		return false
	}
	f := Frame{Stamp: stamp, Seq: s.frameSeq.Inc() - 1, PayloadRef: payloadRef}
	s.buffer.AppendFrame(f)
	appendedTotal.WithLabelValues(string(StreamFrames)).Inc()
	if s.opts.traceLogging {
		s.log.Infow("Queueing image TS", zap.Int64("time", f.Time()), zap.Int64("frame", f.Seq))
	}
	// Under the trailing anchor a new frame defines a new window; under
	// leading-with-detections only a new detection set does. Replay mode
	// always wakes on the frame itself: the paced producer blocks right
	// after this append and sends nothing more, so a wake consumed before
	// the frame landed would never be replaced and the run would stall.
	if s.opts.anchor == AnchorTrailing || s.opts.replayMode {
		s.signalWake()
	}
	return true
}

// AppendDetections queues a detection set. Returns false once the
// scheduler is no longer running.
func (s *Scheduler) AppendDetections(d *DetectionSet) bool {
	if !s.IsRunning() {
		appendRefusedTotal.WithLabelValues(string(StreamDetections)).Inc()
		return false
	}
	s.buffer.AppendDetections(d)
	appendedTotal.WithLabelValues(string(StreamDetections)).Inc()
	if s.opts.traceLogging {
		s.log.Infow("Queueing object detections",
			zap.Int64("time", d.Stamp.Key()), zap.Int64("sourceTime", d.SourceTime()))
	}
	if s.opts.anchor == AnchorLeadingWithDetections {
		s.signalWake()
	}
	return true
}

// AppendPoses queues a pose set. The hand label must be recognized.
// Returns (false, nil) once the scheduler is no longer running.
func (s *Scheduler) AppendPoses(p *PoseSet) (bool, error) {
	if !s.IsRunning() {
		appendRefusedTotal.WithLabelValues(string(StreamPoses)).Inc()
		return false, nil
	}
	if err := s.buffer.AppendPoses(p); err != nil {
		return false, err
	}
	appendedTotal.WithLabelValues(string(StreamPoses)).Inc()
	if s.opts.traceLogging {
		s.log.Infow("Queueing pose estimation",
			zap.Int64("time", p.Stamp.Key()), zap.Int64("sourceTime", p.SourceTime()),
			zap.String("hand", string(p.Hand)))
	}
	// Pose arrivals never wake the loop; frames (or detections) define
	// window boundaries.
	return true, nil
}

func (s *Scheduler) run(ctx context.Context) {
	defer close(s.done)
	defer s.running.Store(false)
	defer func() {
		if s.sync != nil {
			s.sync.Close()
		}
	}()
	defer s.cancel()

	for s.keepRunning() {
		if !s.awaitWake() {
			// Heartbeat timeout: loop to re-check the stop flag.
			continue
		}
		s.iterate(ctx)
	}
	s.log.Info("Runtime loop end")
}

func (s *Scheduler) keepRunning() bool {
	select {
	case <-s.stop:
		return false
	default:
		return true
	}
}

// awaitWake parks until the next wake signal, bounded by the heartbeat
// interval. Returns false on timeout or shutdown.
func (s *Scheduler) awaitWake() bool {
	t := time.NewTimer(s.opts.heartbeat)
	defer t.Stop()
	select {
	case <-s.wake:
		return true
	case <-s.stop:
		return false
	case <-t.C:
		return false
	}
}

// iterate is one pass of the loop: extract, validate, then classify or
// evict.
func (s *Scheduler) iterate(ctx context.Context) {
	w := s.buffer.Window(s.opts.windowSize, s.opts.anchor)
	windowsExtractedTotal.Inc()

	// Publish the extraction watermark to any pacing replay producer,
	// before validation: the producer only needs to know its tuple was
	// considered, not that it was processed.
	if trailing, ok := w.TrailingTime(); ok && s.sync != nil {
		s.sync.Publish(trailing)
	}

	if rej := s.criteria.Validate(w); rej != nil {
		windowsRejectedTotal.WithLabelValues(rej.Reason).Inc()
		s.log.Debugw("Window criterion check failed", zap.String("rejection", rej.String()))
		if rej.Reason == ReasonWrongSize {
			// Rejected-for-size windows still go to the sink for
			// bookkeeping, so the output dataset stays frame-complete.
			s.collectRejected(w)
		}
		// Clear down to the retention bound even though nothing was
		// processed; an empty buffer means nothing to clear.
		if err := s.buffer.EvictToRetention(s.opts.maxRetention); err != nil && !errors.Is(err, ErrEmptyBuffer) {
			s.log.Errorw("Eviction to retention bound failed", zap.Error(err))
		}
		return
	}

	// The window is a valid snapshot: clear buffered data older than its
	// second-oldest frame, keeping one frame of overlap as join context
	// for the next window. Same policy in live and replay modes.
	s.buffer.EvictBefore(w.Frames[1].Time())

	trailing, _ := w.TrailingTime()
	start, _ := w.StartTime()

	if s.opts.traceLogging {
		s.log.Infow("Processing window", zap.Int64("leadingTime", trailing))
	}

	pred, rej := s.process(ctx, w)
	if rej != nil {
		windowsRejectedTotal.WithLabelValues(rej.Reason).Inc()
		s.log.Warnw("Window processing did not yield a classification",
			zap.String("rejection", rej.String()),
			zap.String("alignment", w.AlignmentSummary()))
		s.collectRejected(w)
	} else {
		windowsProcessedTotal.Inc()
		s.publish(w, pred)
	}

	// The window completed processing either way; record its leading
	// timestamp so the same leading edge is never handled twice.
	s.lastProcessed, s.hasProcessed = trailing, true

	// Expire memoized artifacts at or before this window's oldest frame.
	s.memoDetections.EvictThrough(start)
	s.memoPoses.EvictThrough(start)
	s.memoEmbeddings.EvictThrough(start)
	memoEntries.WithLabelValues("detections").Set(float64(s.memoDetections.Len()))
	memoEntries.WithLabelValues("poses").Set(float64(s.memoPoses.Len()))
	memoEntries.WithLabelValues("embeddings").Set(float64(s.memoEmbeddings.Len()))
}

// process builds the memoized classification request and invokes the
// external classifier. Classifier no-result conditions come back as
// rejections, never as faults.
func (s *Scheduler) process(ctx context.Context, w *InputWindow) (*Prediction, *Rejection) {
	req := &ClassifyRequest{
		Frames:     w.Frames,
		Detections: make([]*DetectionSummary, len(w.Frames)),
		Poses:      make([]*PoseSummary, len(w.Frames)),
		Embeddings: s.memoEmbeddings,
	}
	for i, d := range w.Detections {
		if d == nil {
			continue
		}
		d := d
		req.Detections[i] = s.memoDetections.GetOrCompute(d.SourceTime(), func() *DetectionSummary {
			return SummarizeDetections(d)
		})
	}
	for i, p := range w.Poses {
		if p == nil {
			continue
		}
		p := p
		req.Poses[i] = s.memoPoses.GetOrCompute(p.SourceTime(), func() *PoseSummary {
			return SummarizePose(p)
		})
	}

	begin := time.Now()
	pred, err := s.classifier.Predict(ctx, req)
	classifyLatency.Observe(time.Since(begin).Seconds())
	if err != nil {
		if errors.Is(err, ErrNoResult) {
			return nil, &Rejection{Reason: ReasonNoResult, Detail: err.Error()}
		}
		// Unexpected classifier errors are logged but still handled as
		// rejections; the loop must outlive its collaborator's bad days.
		s.log.Errorw("Classifier failed", zap.Error(err))
		return nil, &Rejection{Reason: ReasonNoResult, Detail: err.Error()}
	}
	pred.StartStamp = w.Frames[0].Stamp
	pred.EndStamp = w.Frames[len(w.Frames)-1].Stamp
	if s.opts.traceLogging {
		label, conf := pred.Best()
		s.log.Infow("Activity classification",
			zap.String("label", label), zap.Float64("confidence", conf),
			zap.Int64("startTime", pred.StartStamp.Key()), zap.Int64("endTime", pred.EndStamp.Key()))
	}
	return pred, nil
}

func (s *Scheduler) publish(w *InputWindow, pred *Prediction) {
	if s.opts.sink == nil {
		return
	}
	trailing, _ := w.TrailingTime()
	id, err := s.opts.sink.AddRecord(trailing, w)
	if err != nil {
		s.log.Errorw("Failed to add result record", zap.Error(err))
		return
	}
	if err := s.opts.sink.Collect(id, pred); err != nil {
		s.log.Errorw("Failed to collect result", zap.String("recordID", id), zap.Error(err))
	}
}

// collectRejected books a rejected window into the sink with no
// distribution attached.
func (s *Scheduler) collectRejected(w *InputWindow) {
	if s.opts.sink == nil {
		return
	}
	trailing, ok := w.TrailingTime()
	if !ok {
		return
	}
	if _, err := s.opts.sink.AddRecord(trailing, w); err != nil {
		s.log.Errorw("Failed to book rejected window", zap.Error(err))
	}
}
