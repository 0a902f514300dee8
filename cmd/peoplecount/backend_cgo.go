//go:build !no_cgo

package main

import (
	"github.com/pkg/errors"

	"go.viam.com/peoplecount/config"
	"go.viam.com/peoplecount/logging"
	_ "go.viam.com/peoplecount/source/opencv"
	"go.viam.com/peoplecount/vision/objectdetection"
	"go.viam.com/peoplecount/vision/objectdetection/onnx"
)

// loadBackend loads the detection model once for the life of the process.
func loadBackend(cfg *config.Config, logger logging.Logger) (objectdetection.Backend, func() error, error) {
	if cfg.Model.Path == "" {
		return nil, nil, config.NewConfigurationError("model.path", "a detection model is required (--model)")
	}
	var labels []string
	if cfg.Model.LabelsPath != "" {
		var err error
		labels, err = objectdetection.LoadLabels(cfg.Model.LabelsPath)
		if err != nil {
			return nil, nil, errors.Wrap(err, "cannot load labels")
		}
	}
	backend, err := onnx.New(onnx.Config{
		ModelPath:   cfg.Model.Path,
		LibraryPath: cfg.Model.LibraryPath,
		InputSize:   cfg.Model.InputSize,
		NumClasses:  cfg.Model.NumClasses,
		Labels:      labels,
	}, logger)
	if err != nil {
		return nil, nil, err
	}
	return backend, backend.Close, nil
}
