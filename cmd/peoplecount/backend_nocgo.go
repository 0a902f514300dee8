//go:build no_cgo

package main

import (
	"github.com/pkg/errors"

	"go.viam.com/peoplecount/config"
	"go.viam.com/peoplecount/logging"
	"go.viam.com/peoplecount/vision/objectdetection"
)

func loadBackend(cfg *config.Config, logger logging.Logger) (objectdetection.Backend, func() error, error) {
	return nil, nil, errors.New("this build has no detection backend; rebuild without the no_cgo tag")
}
