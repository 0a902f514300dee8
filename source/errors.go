package source

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrEndOfStream is returned by Next when a file source has no more frames.
	ErrEndOfStream = errors.New("end of stream")
	// ErrClosed is returned by Next after the source was closed.
	ErrClosed = errors.New("source is closed")
)

// UnavailableError reports that the configured input could not be opened.
type UnavailableError struct {
	Mode   Mode
	Target string
	Err    error
}

// NewUnavailableError wraps the reason `cfg` could not be opened.
func NewUnavailableError(cfg Config, err error) error {
	return &UnavailableError{Mode: cfg.Mode, Target: cfg.Target(), Err: err}
}

func (e *UnavailableError) Error() string {
	msg := fmt.Sprintf("cannot open %s", e.Target)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *UnavailableError) Unwrap() error {
	return e.Err
}

// Guidance is a hint for the person operating the input.
func (e *UnavailableError) Guidance() string {
	if e.Mode == ModeFile {
		return "ensure the file is a valid video format (mp4, avi, mov, mkv)"
	}
	return "check that your camera is connected and not being used by another application"
}

// ReadError reports that one frame could not be read. The source stays usable.
type ReadError struct {
	Err error
}

// NewReadError wraps a failed frame read.
func NewReadError(err error) error {
	return &ReadError{Err: err}
}

func (e *ReadError) Error() string {
	if e.Err == nil {
		return "failed to read frame"
	}
	return "failed to read frame: " + e.Err.Error()
}

func (e *ReadError) Unwrap() error {
	return e.Err
}

// IsReadError returns whether err is, or wraps, a *ReadError.
func IsReadError(err error) bool {
	var readErr *ReadError
	return errors.As(err, &readErr)
}

// IsUnavailable returns whether err is, or wraps, an *UnavailableError.
func IsUnavailable(err error) bool {
	var unavailable *UnavailableError
	return errors.As(err, &unavailable)
}
