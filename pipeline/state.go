package pipeline

import (
	"image"
	"time"

	"github.com/pkg/errors"

	"go.viam.com/peoplecount/config"
	"go.viam.com/peoplecount/source"
	"go.viam.com/peoplecount/vision/objectdetection"
)

// Status is where a run is in its lifecycle. Within one run it only moves forward:
// Idle, Running, then either Stopping and Stopped, or Failed.
type Status int

// The run statuses.
const (
	StatusIdle Status = iota
	StatusRunning
	StatusStopping
	StatusStopped
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusRunning:
		return "running"
	case StatusStopping:
		return "stopping"
	case StatusStopped:
		return "stopped"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// MarshalText encodes the status by name.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Active reports whether a run is executing or winding down.
func (s Status) Active() bool {
	return s == StatusRunning || s == StatusStopping
}

// ErrorKind classifies why a run failed or a frame was skipped.
type ErrorKind int

// The error kinds surfaced to observers.
const (
	ErrorKindNone ErrorKind = iota
	ErrorKindSourceUnavailable
	ErrorKindReadError
	ErrorKindInferenceError
	ErrorKindConfigurationError
)

func (k ErrorKind) String() string {
	switch k {
	case ErrorKindNone:
		return ""
	case ErrorKindSourceUnavailable:
		return "SourceUnavailable"
	case ErrorKindReadError:
		return "ReadError"
	case ErrorKindInferenceError:
		return "InferenceError"
	case ErrorKindConfigurationError:
		return "ConfigurationError"
	default:
		return "Unknown"
	}
}

// MarshalText encodes the kind by name.
func (k ErrorKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// KindOf maps an error to the kind observers are shown.
func KindOf(err error) ErrorKind {
	var (
		unavailable *source.UnavailableError
		readErr     *source.ReadError
		inferErr    *objectdetection.InferenceError
		configErr   *config.ConfigurationError
	)
	switch {
	case err == nil:
		return ErrorKindNone
	case errors.As(err, &configErr):
		return ErrorKindConfigurationError
	case errors.As(err, &unavailable):
		return ErrorKindSourceUnavailable
	case errors.As(err, &inferErr):
		return ErrorKindInferenceError
	case errors.As(err, &readErr):
		return ErrorKindReadError
	default:
		return ErrorKindReadError
	}
}

// Failure is the error a run ended with.
type Failure struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
	// Guidance is a hint for the operator, when one is known.
	Guidance string `json:"guidance,omitempty"`
}

func newFailure(err error) *Failure {
	f := &Failure{Kind: KindOf(err), Message: err.Error()}
	var unavailable *source.UnavailableError
	if errors.As(err, &unavailable) {
		f.Guidance = unavailable.Guidance()
	}
	return f
}

// Stats summarize a run.
type Stats struct {
	StartedAt         time.Time     `json:"started_at"`
	FramesRead        int64         `json:"frames_read"`
	FramesPublished   int64         `json:"frames_published"`
	ReadFailures      int64         `json:"read_failures"`
	InferenceFailures int64         `json:"inference_failures"`
	Overruns          int64         `json:"overruns"`
	MeanInference     time.Duration `json:"mean_inference_ns"`
	P95Inference      time.Duration `json:"p95_inference_ns"`
}

// State is a consistent snapshot of the controller. Count always equals the number of
// detections drawn on Frame.
type State struct {
	RunID     string      `json:"run_id,omitempty"`
	Status    Status      `json:"status"`
	Count     int         `json:"count"`
	Seq       int64       `json:"seq"`
	Frame     image.Image `json:"-"`
	LastError *Failure    `json:"last_error,omitempty"`
	Stats     Stats       `json:"stats"`
}

// Tick is one published result: an annotated frame and its count. Image is shared with every
// sink and with State.Frame, so it must not be modified.
type Tick struct {
	RunID      string
	Seq        int64
	Timestamp  time.Time
	Image      *image.RGBA
	Count      int
	Detections objectdetection.Batch
	// Retained is set when inference failed on this frame and Image, Count and Detections repeat
	// the previous tick.
	Retained bool
}

// A Sink receives results from the frame loop. Calls never overlap and arrive in order: Start
// reports Running or a failed start, then the loop goroutine makes every later call. Methods
// must return quickly.
type Sink interface {
	Publish(Tick)
	StateChanged(State)
}
