package objectdetection

import (
	"context"
	"image"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"

	"go.viam.com/peoplecount/logging"
	"go.viam.com/peoplecount/utils"
)

// DefaultConfidenceThreshold is applied when none is configured.
const DefaultConfidenceThreshold = 0.5

// A Backend runs a model over an image and reports raw per-box, per-class predictions.
type Backend interface {
	Predict(ctx context.Context, img image.Image) ([]Prediction, error)
	// Labels names the classes, indexed by class id. It may be empty.
	Labels() []string
}

// A Detector finds objects of the target class in an image. It does not keep the image.
type Detector interface {
	Infer(ctx context.Context, img image.Image) (Batch, error)
}

// Config selects and filters what the Detector reports.
type Config struct {
	ClassID             int
	ConfidenceThreshold float64
	// IOUThreshold enables non-maximum suppression when greater than zero.
	IOUThreshold float64
	MinArea      int
	// Timeout bounds one inference call. Zero means no bound.
	Timeout time.Duration
	// SlowAfter is how long an inference may run before it is reported as slow.
	SlowAfter time.Duration
}

// InferenceError reports that a frame could not be run through the model. The frame is skipped.
type InferenceError struct {
	Err error
}

// NewInferenceError wraps a failed inference.
func NewInferenceError(err error) error {
	return &InferenceError{Err: err}
}

func (e *InferenceError) Error() string {
	return "inference failed: " + e.Err.Error()
}

func (e *InferenceError) Unwrap() error {
	return e.Err
}

// IsInferenceError returns whether err is, or wraps, an *InferenceError.
func IsInferenceError(err error) bool {
	var inferErr *InferenceError
	return errors.As(err, &inferErr)
}

type detector struct {
	backend Backend
	cfg     Config
	labels  []string
	post    []Postprocessor
	clock   clock.Clock
	logger  logging.Logger
}

// NewDetector adapts a backend into a Detector for one class.
func NewDetector(backend Backend, cfg Config, logger logging.Logger) (Detector, error) {
	return NewDetectorWithClock(backend, cfg, clock.New(), logger)
}

// NewDetectorWithClock is like NewDetector but times slow calls with `clk`.
func NewDetectorWithClock(backend Backend, cfg Config, clk clock.Clock, logger logging.Logger) (Detector, error) {
	if backend == nil {
		return nil, errors.New("detector must have a backend")
	}
	if cfg.ClassID < 0 {
		return nil, errors.Errorf("class id must not be negative, got %d", cfg.ClassID)
	}
	if cfg.ConfidenceThreshold < 0 || cfg.ConfidenceThreshold > 1 {
		return nil, errors.Errorf("confidence threshold must be in [0, 1], got %v", cfg.ConfidenceThreshold)
	}
	if cfg.SlowAfter <= 0 {
		cfg.SlowAfter = 5 * time.Second
	}

	post := []Postprocessor{NewClassFilter(cfg.ClassID), NewScoreFilter(cfg.ConfidenceThreshold)}
	if cfg.MinArea > 0 {
		post = append(post, NewAreaFilter(cfg.MinArea))
	}
	if cfg.IOUThreshold > 0 {
		post = append(post, NewNMSFilter(cfg.IOUThreshold))
	}

	return &detector{
		backend: backend,
		cfg:     cfg,
		labels:  backend.Labels(),
		post:    post,
		clock:   clk,
		logger:  logger,
	}, nil
}

func (d *detector) Infer(ctx context.Context, img image.Image) (Batch, error) {
	if img == nil || img.Bounds().Empty() {
		return nil, NewInferenceError(errors.New("empty frame"))
	}
	bounds := img.Bounds()

	if d.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.cfg.Timeout)
		defer cancel()
	}

	stopSlowLogger := utils.SlowLogger(ctx, d.clock, d.cfg.SlowAfter,
		"inference is taking a while", "frame_size", bounds.Size().String(), d.logger)
	predictions, err := d.backend.Predict(ctx, img)
	stopSlowLogger()
	if err != nil {
		return nil, NewInferenceError(err)
	}

	detections := make(Batch, 0, len(predictions))
	for i, p := range predictions {
		if d.cfg.ClassID >= len(p.Scores) {
			return nil, NewInferenceError(errors.Errorf(
				"prediction %d has %d class scores, need class %d", i, len(p.Scores), d.cfg.ClassID))
		}
		box := p.Box.Canon().Intersect(bounds)
		if box.Empty() {
			continue
		}
		classID := topClass(p.Scores)
		score := utils.Clamp(p.Scores[classID], 0, 1)
		detections = append(detections, NewDetection(box, score, classID, LabelFor(d.labels, classID)))
	}
	for _, pp := range d.post {
		detections = pp(detections)
	}
	return detections, nil
}

// topClass is the index of the highest score. Ties go to the lower index.
func topClass(scores []float64) int {
	best := 0
	for i, s := range scores {
		if s > scores[best] {
			best = i
		}
	}
	return best
}
