// Package pipeline runs the frame loop: read a frame, detect, annotate, publish, pace. A
// Controller owns one run at a time and exposes its state to any number of readers.
package pipeline

import (
	"context"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/atomic"

	"go.viam.com/peoplecount/config"
	"go.viam.com/peoplecount/logging"
	"go.viam.com/peoplecount/source"
	"go.viam.com/peoplecount/utils"
	"go.viam.com/peoplecount/vision/objectdetection"
)

// ErrAlreadyRunning is returned by Start while a run is active.
var ErrAlreadyRunning = errors.New("a run is already active")

// SourceOpener opens the frame source for a run.
type SourceOpener func(ctx context.Context, cfg source.Config, logger logging.Logger) (source.Source, error)

// Options are the long lived collaborators of a Controller.
type Options struct {
	// Backend is the loaded model. It is shared by every run.
	Backend objectdetection.Backend
	// Open defaults to source.Open.
	Open  SourceOpener
	Sinks []Sink
	Clock clock.Clock
}

// A Controller starts and stops runs. There is at most one run at a time; a new one may start
// once the previous one is Stopped or Failed.
type Controller struct {
	backend objectdetection.Backend
	open    SourceOpener
	clock   clock.Clock
	logger  logging.Logger

	startMu sync.Mutex
	workers utils.StoppableWorkers

	mu      sync.RWMutex
	state   State
	current *run
	sinks   []Sink
}

type run struct {
	id            string
	cfg           config.Config
	src           source.Source
	detector      objectdetection.Detector
	annotator     *objectdetection.Annotator
	limiter       *RateLimiter
	stats         *runStats
	stopRequested atomic.Bool
	// last is the most recent tick with a successful inference. Only the loop touches it.
	last          *Tick
	done          chan struct{}
	logger        logging.Logger
}

// NewController returns an idle controller.
func NewController(opts Options, logger logging.Logger) *Controller {
	if opts.Open == nil {
		opts.Open = source.Open
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	return &Controller{
		backend: opts.Backend,
		open:    opts.Open,
		clock:   opts.Clock,
		logger:  logger,
		state:   State{Status: StatusIdle, Seq: -1},
		sinks:   append([]Sink(nil), opts.Sinks...),
	}
}

// AddSink registers another observer of published results.
func (c *Controller) AddSink(sink Sink) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sinks = append(c.sinks, sink)
}

// State returns a snapshot of the current run.
func (c *Controller) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshotLocked()
}

func (c *Controller) snapshotLocked() State {
	st := c.state
	if c.current != nil {
		st.Stats = c.current.stats.snapshot(c.current.limiter.Overruns())
	}
	return st
}

// Start validates cfg, opens its source and starts the frame loop. A config error or an
// unavailable source moves the controller to Failed and is returned; nothing is published.
func (c *Controller) Start(ctx context.Context, cfg config.Config) error {
	c.startMu.Lock()
	defer c.startMu.Unlock()

	c.mu.RLock()
	active := c.state.Status.Active()
	c.mu.RUnlock()
	if active {
		return ErrAlreadyRunning
	}
	// The previous worker has already published its final state; join it.
	if c.workers != nil {
		c.workers.Stop()
		c.workers = nil
	}

	runID := uuid.NewString()
	logger := c.logger.WithFields("run_id", runID)

	r, err := c.prepare(ctx, runID, cfg, logger)
	if err != nil {
		c.failBeforeStart(runID, err, logger)
		return err
	}

	c.mu.Lock()
	c.current = r
	c.state = State{RunID: runID, Status: StatusRunning, Seq: -1}
	st := c.snapshotLocked()
	sinks := c.sinks
	c.mu.Unlock()
	notifyState(sinks, st)

	logger.Infow("run started",
		"mode", cfg.Source.Mode,
		"target", cfg.Source.Target(),
		"class_id", cfg.Detector.TargetClassID,
		"threshold", cfg.Detector.ConfidenceThreshold,
		"target_fps", cfg.TargetFPS)
	c.workers = utils.NewStoppableWorkers(context.Background(), func(workerCtx context.Context) {
		c.loop(workerCtx, r)
	})
	return nil
}

// prepare builds everything a run needs. The source is opened last so that a config error never
// leaves a device open.
func (c *Controller) prepare(ctx context.Context, runID string, cfg config.Config, logger logging.Logger) (*run, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if c.backend == nil {
		return nil, config.NewConfigurationError("model", "no detection backend loaded")
	}
	detector, err := objectdetection.NewDetectorWithClock(c.backend, cfg.DetectorConfig(), c.clock, logger.Sublogger("detector"))
	if err != nil {
		return nil, config.NewConfigurationError("detector", err.Error())
	}
	limiter, err := NewRateLimiter(cfg.TargetFPS, c.clock)
	if err != nil {
		return nil, config.NewConfigurationError("target_fps", err.Error())
	}

	src, err := c.open(ctx, cfg.Source, logger.Sublogger("source"))
	if err != nil {
		if !source.IsUnavailable(err) {
			err = source.NewUnavailableError(cfg.Source, err)
		}
		return nil, err
	}

	return &run{
		id:        runID,
		cfg:       cfg,
		src:       src,
		detector:  detector,
		annotator: objectdetection.NewAnnotator(cfg.AnnotatorConfig()),
		limiter:   limiter,
		stats:     newRunStats(c.clock.Now()),
		done:      make(chan struct{}),
		logger:    logger,
	}, nil
}

func (c *Controller) failBeforeStart(runID string, err error, logger logging.Logger) {
	failure := newFailure(err)
	c.mu.Lock()
	c.current = nil
	c.state = State{RunID: runID, Status: StatusFailed, Seq: -1, LastError: failure}
	st := c.state
	sinks := c.sinks
	c.mu.Unlock()

	logger.Errorw("run failed to start", "kind", failure.Kind, "error", err)
	notifyState(sinks, st)
}

// Stop asks the active run to finish. It returns immediately; the loop notices at the start of
// its next iteration and tells the sinks. Calling Stop when nothing runs, or more than once,
// does nothing.
func (c *Controller) Stop() {
	c.mu.Lock()
	if c.state.Status != StatusRunning || c.current == nil {
		c.mu.Unlock()
		return
	}
	c.state.Status = StatusStopping
	c.current.stopRequested.Store(true)
	r := c.current
	c.mu.Unlock()

	r.logger.Info("stop requested")
}

// Wait blocks until the current run reaches Stopped or Failed, or ctx is done.
func (c *Controller) Wait(ctx context.Context) (State, error) {
	c.mu.RLock()
	r := c.current
	c.mu.RUnlock()
	if r != nil {
		select {
		case <-r.done:
		case <-ctx.Done():
			return c.State(), ctx.Err()
		}
	}
	return c.State(), nil
}

// Close stops any active run and waits for it. If ctx ends first the loop is cancelled, which
// interrupts a blocked read or inference.
func (c *Controller) Close(ctx context.Context) error {
	c.Stop()
	_, waitErr := c.Wait(ctx)

	c.startMu.Lock()
	defer c.startMu.Unlock()
	if c.workers != nil {
		c.workers.Stop()
		c.workers = nil
	}
	if waitErr != nil {
		return errors.Wrap(waitErr, "run did not stop in time")
	}
	return nil
}

func (c *Controller) loop(ctx context.Context, r *run) {
	consecutiveReadErrors := 0
	for {
		if r.stopRequested.Load() {
			c.beginStopping()
			c.finish(r, nil)
			return
		}

		loopStart := c.clock.Now()
		frame, err := r.src.Next(ctx)
		if err != nil {
			switch {
			case errors.Is(err, source.ErrEndOfStream):
				r.logger.Info("end of stream")
				c.beginStopping()
				c.finish(r, nil)
				return
			case ctx.Err() != nil || r.stopRequested.Load():
				c.beginStopping()
				c.finish(r, nil)
				return
			case source.IsReadError(err):
				consecutiveReadErrors++
				r.stats.readFailures.Inc()
				if consecutiveReadErrors > r.cfg.ReadErrorTolerance {
					c.finish(r, errors.Wrapf(err, "%d consecutive read failures", consecutiveReadErrors))
					return
				}
				r.logger.Warnw("frame read failed", "error", err, "consecutive", consecutiveReadErrors)
			default:
				c.finish(r, source.NewReadError(err))
				return
			}
			if err := r.limiter.Pace(ctx, loopStart); err != nil {
				r.logger.Debugw("pacing interrupted", "error", err)
			}
			continue
		}
		consecutiveReadErrors = 0
		r.stats.framesRead.Inc()

		inferStart := c.clock.Now()
		batch, err := r.detector.Infer(ctx, frame.Image)
		r.stats.observeInference(c.clock.Since(inferStart))
		if err != nil {
			r.stats.inferenceFailures.Inc()
			r.logger.Warnw("inference failed, repeating previous result", "seq", frame.Seq, "kind", ErrorKindInferenceError, "error", err)
			c.publish(r, r.retained(frame))
		} else {
			annotated, count := r.annotator.Render(frame.Image, batch)
			tick := Tick{
				RunID:      r.id,
				Seq:        frame.Seq,
				Timestamp:  frame.Timestamp,
				Image:      annotated,
				Count:      count,
				Detections: batch,
			}
			r.last = &tick
			c.publish(r, tick)
		}

		if err := r.limiter.Pace(ctx, loopStart); err != nil {
			r.logger.Debugw("pacing interrupted", "error", err)
		}
	}
}

// retained is the tick for a frame whose inference failed: it repeats the previous annotated
// image and count. Before any successful inference that is the bare frame with no boxes.
func (r *run) retained(frame source.Frame) Tick {
	if r.last == nil {
		annotated, count := r.annotator.Render(frame.Image, nil)
		r.last = &Tick{RunID: r.id, Image: annotated, Count: count}
	}
	tick := *r.last
	tick.Seq = frame.Seq
	tick.Timestamp = frame.Timestamp
	tick.Retained = true
	return tick
}

// publish updates the count and frame together, then hands the tick to the sinks.
func (c *Controller) publish(r *run, tick Tick) {
	r.stats.framesPublished.Inc()
	c.mu.Lock()
	c.state.Count = tick.Count
	c.state.Seq = tick.Seq
	c.state.Frame = tick.Image
	sinks := c.sinks
	c.mu.Unlock()

	r.logger.Debugw("published", "seq", tick.Seq, "count", tick.Count)
	for _, sink := range sinks {
		sink.Publish(tick)
	}
}

// beginStopping reports Stopping from the loop, after Stop may already have set it.
func (c *Controller) beginStopping() {
	c.mu.Lock()
	c.state.Status = StatusStopping
	st := c.snapshotLocked()
	sinks := c.sinks
	c.mu.Unlock()
	notifyState(sinks, st)
}

// finish releases the source and only then reports the final state.
func (c *Controller) finish(r *run, cause error) {
	//nolint:contextcheck
	if err := r.src.Close(context.Background()); err != nil {
		r.logger.Warnw("closing source failed", "error", err)
	}

	c.mu.Lock()
	if cause != nil {
		c.state.Status = StatusFailed
		c.state.LastError = newFailure(cause)
	} else {
		c.state.Status = StatusStopped
	}
	st := c.snapshotLocked()
	sinks := c.sinks
	c.mu.Unlock()

	if cause != nil {
		r.logger.Errorw("run failed", "kind", st.LastError.Kind, "error", cause)
	}
	r.logger.Infow("run finished",
		"status", st.Status,
		"frames_read", st.Stats.FramesRead,
		"frames_published", st.Stats.FramesPublished,
		"read_failures", st.Stats.ReadFailures,
		"inference_failures", st.Stats.InferenceFailures,
		"mean_inference", st.Stats.MeanInference,
		"p95_inference", st.Stats.P95Inference)
	notifyState(sinks, st)
	close(r.done)
}

func notifyState(sinks []Sink, st State) {
	for _, sink := range sinks {
		sink.StateChanged(st)
	}
}
