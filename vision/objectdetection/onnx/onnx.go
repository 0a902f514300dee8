//go:build !no_cgo

// Package onnx runs YOLOv8 object detection models through ONNX Runtime.
package onnx

import (
	"context"
	"image"
	"runtime"
	"sync"

	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
	"go.uber.org/multierr"

	"go.viam.com/peoplecount/logging"
	"go.viam.com/peoplecount/vision/objectdetection"
)

// Defaults for the stock yolov8n COCO export.
const (
	DefaultInputSize  = 640
	DefaultNumClasses = 80
	defaultMinScore   = 0.05
)

// Config points at a model and the ONNX Runtime shared library.
type Config struct {
	ModelPath   string
	LibraryPath string
	InputSize   int
	NumClasses  int
	Labels      []string
	Threads     int
	InputName   string
	OutputName  string
}

var (
	envOnce sync.Once
	envErr  error
)

func initEnvironment(libraryPath string) error {
	envOnce.Do(func() {
		if libraryPath != "" {
			ort.SetSharedLibraryPath(libraryPath)
		}
		envErr = ort.InitializeEnvironment()
	})
	return envErr
}

// Backend holds one loaded model. Predict calls are serialized since they share tensors.
type Backend struct {
	mu      sync.Mutex
	cfg     Config
	anchors int
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	output  *ort.Tensor[float32]
	logger  logging.Logger
}

// New loads the model described by cfg.
func New(cfg Config, logger logging.Logger) (*Backend, error) {
	if cfg.ModelPath == "" {
		return nil, errors.New("model path is required")
	}
	if cfg.InputSize <= 0 {
		cfg.InputSize = DefaultInputSize
	}
	if cfg.NumClasses <= 0 {
		cfg.NumClasses = DefaultNumClasses
	}
	if cfg.Threads <= 0 {
		cfg.Threads = runtime.NumCPU()
	}
	if cfg.InputName == "" {
		cfg.InputName = "images"
	}
	if cfg.OutputName == "" {
		cfg.OutputName = "output0"
	}
	if len(cfg.Labels) == 0 && cfg.NumClasses == DefaultNumClasses {
		cfg.Labels = objectdetection.COCOLabels
	}

	if err := initEnvironment(cfg.LibraryPath); err != nil {
		return nil, errors.Wrap(err, "cannot initialize onnxruntime")
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, errors.Wrap(err, "error creating session options")
	}
	defer func() {
		if err := options.Destroy(); err != nil {
			logger.Debugw("destroying session options failed", "error", err)
		}
	}()
	if err := options.SetIntraOpNumThreads(cfg.Threads); err != nil {
		return nil, errors.Wrap(err, "error setting thread count")
	}

	anchors := numAnchors(cfg.InputSize)
	input, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 3, int64(cfg.InputSize), int64(cfg.InputSize)))
	if err != nil {
		return nil, errors.Wrap(err, "error creating input tensor")
	}
	output, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(4+cfg.NumClasses), int64(anchors)))
	if err != nil {
		return nil, multierr.Combine(errors.Wrap(err, "error creating output tensor"), input.Destroy())
	}

	session, err := ort.NewAdvancedSession(
		cfg.ModelPath,
		[]string{cfg.InputName},
		[]string{cfg.OutputName},
		[]ort.ArbitraryTensor{input},
		[]ort.ArbitraryTensor{output},
		options,
	)
	if err != nil {
		return nil, multierr.Combine(errors.Wrap(err, "error creating session"), input.Destroy(), output.Destroy())
	}

	logger.Infow("model loaded", "path", cfg.ModelPath, "input_size", cfg.InputSize, "classes", cfg.NumClasses)
	return &Backend{
		cfg:     cfg,
		anchors: anchors,
		session: session,
		input:   input,
		output:  output,
		logger:  logger,
	}, nil
}

// Predict letterboxes img into the model input, runs the model and maps boxes back to img.
func (b *Backend) Predict(ctx context.Context, img image.Image) ([]objectdetection.Prediction, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.session == nil {
		return nil, errors.New("model is closed")
	}
	lb := newLetterbox(img.Bounds(), b.cfg.InputSize)
	if err := fillInput(b.input.GetData(), lb.apply(img)); err != nil {
		return nil, err
	}
	// Run cannot be interrupted, so this is the last point to honor cancellation.
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := b.session.Run(); err != nil {
		return nil, errors.Wrap(err, "model inference")
	}
	return decodeOutput(b.output.GetData(), b.cfg.NumClasses, b.anchors, lb, defaultMinScore)
}

// Labels returns the class names of the model.
func (b *Backend) Labels() []string {
	return b.cfg.Labels
}

// Close releases the session and its tensors.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.session == nil {
		return nil
	}
	err := multierr.Combine(b.session.Destroy(), b.input.Destroy(), b.output.Destroy())
	b.session = nil
	return err
}
