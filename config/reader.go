package config

import (
	"bytes"
	"encoding/json"
	"io"

	"github.com/a8m/envsubst"
	"github.com/pkg/errors"

	"go.viam.com/peoplecount/source"
	"go.viam.com/peoplecount/utils"
)

// Read reads a config from the given file. Environment variables in the file are expanded and
// keys left out keep their defaults.
func Read(filePath string) (*Config, error) {
	buf, err := envsubst.ReadFile(filePath)
	if err != nil {
		return nil, err
	}
	return FromReader(bytes.NewReader(buf))
}

// FromReader decodes a JSON config on top of the defaults and validates it.
func FromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	decoder := json.NewDecoder(r)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&cfg); err != nil {
		return nil, errors.Wrapf(err, "failed to decode Config from json")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromAttributes applies a flat attribute map, as sent by a start request, onto `base`. The keys
// are input_mode, camera_index, file_path, backend, target_class_id, confidence_threshold and
// target_fps. Unknown keys are rejected.
func FromAttributes(base Config, attrs map[string]interface{}) (*Config, error) {
	overrides := runOverrides{
		Mode:                string(base.Source.Mode),
		CameraIndex:         base.Source.CameraIndex,
		FilePath:            base.Source.FilePath,
		Backend:             base.Source.Backend,
		TargetClassID:       base.Detector.TargetClassID,
		ConfidenceThreshold: base.Detector.ConfidenceThreshold,
		TargetFPS:           base.TargetFPS,
	}
	if err := utils.DecodeAttributes(attrs, &overrides); err != nil {
		return nil, NewConfigurationError("attributes", err.Error())
	}

	cfg := base
	cfg.Source.Mode = source.Mode(overrides.Mode)
	cfg.Source.CameraIndex = overrides.CameraIndex
	cfg.Source.FilePath = overrides.FilePath
	cfg.Source.Backend = overrides.Backend
	cfg.Detector.TargetClassID = overrides.TargetClassID
	cfg.Detector.ConfidenceThreshold = overrides.ConfidenceThreshold
	cfg.TargetFPS = overrides.TargetFPS
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type runOverrides struct {
	Mode                string  `json:"input_mode"`
	CameraIndex         int     `json:"camera_index"`
	FilePath            string  `json:"file_path"`
	Backend             string  `json:"backend"`
	TargetClassID       int     `json:"target_class_id"`
	ConfidenceThreshold float64 `json:"confidence_threshold"`
	TargetFPS           float64 `json:"target_fps"`
}
