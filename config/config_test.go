package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"go.viam.com/test"

	"go.viam.com/peoplecount/config"
	"go.viam.com/peoplecount/source"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := config.Default()
	test.That(t, cfg.Validate(), test.ShouldBeNil)
	test.That(t, cfg.Detector.ConfidenceThreshold, test.ShouldEqual, 0.5)
	test.That(t, cfg.Detector.TargetClassID, test.ShouldEqual, 0)
	test.That(t, cfg.ReadErrorTolerance, test.ShouldEqual, 3)
	test.That(t, cfg.Detector.InferenceTimeoutMs, test.ShouldEqual, 0)
	test.That(t, cfg.DetectorConfig().Timeout, test.ShouldEqual, 0)
}

func TestValidate(t *testing.T) {
	for _, tc := range []struct {
		name   string
		modify func(*config.Config)
		field  string
	}{
		{"negative camera", func(c *config.Config) { c.Source.CameraIndex = -1 }, "source.camera_index"},
		{"unknown mode", func(c *config.Config) { c.Source.Mode = "stream" }, "source.input_mode"},
		{"file without path", func(c *config.Config) { c.Source.Mode = source.ModeFile }, "source.file_path"},
		{"file with bad extension", func(c *config.Config) {
			c.Source.Mode = source.ModeFile
			c.Source.FilePath = "notes.txt"
		}, "source.file_path"},
		{"threshold above one", func(c *config.Config) { c.Detector.ConfidenceThreshold = 1.2 }, "detector.confidence_threshold"},
		{"negative class", func(c *config.Config) { c.Detector.TargetClassID = -3 }, "detector.target_class_id"},
		{"zero fps", func(c *config.Config) { c.TargetFPS = 0 }, "target_fps"},
		{"negative tolerance", func(c *config.Config) { c.ReadErrorTolerance = -1 }, "read_error_tolerance"},
		{"negative timeout", func(c *config.Config) { c.Detector.InferenceTimeoutMs = -5 }, "detector.inference_timeout_ms"},
		{"bad color", func(c *config.Config) { c.Annotation.BoxColor = "green" }, "annotation.box_color"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Default()
			tc.modify(&cfg)
			err := cfg.Validate()
			var configErr *config.ConfigurationError
			test.That(t, errors.As(err, &configErr), test.ShouldBeTrue)
			test.That(t, configErr.Field, test.ShouldEqual, tc.field)
		})
	}

	cfg := config.Default()
	cfg.Source.Mode = source.ModeFile
	cfg.Source.FilePath = "/videos/Lobby.MKV"
	test.That(t, cfg.Validate(), test.ShouldBeNil)
	cfg.Detector.ConfidenceThreshold = 0
	test.That(t, cfg.Validate(), test.ShouldBeNil)
}

func TestFromReader(t *testing.T) {
	cfg, err := config.FromReader(strings.NewReader(`{
		"source": {"input_mode": "file", "file_path": "in.mp4", "backend": "ffmpeg"},
		"detector": {"confidence_threshold": 0.7},
		"target_fps": 10
	}`))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cfg.Source.Mode, test.ShouldEqual, source.ModeFile)
	test.That(t, cfg.Source.Backend, test.ShouldEqual, "ffmpeg")
	test.That(t, cfg.Detector.ConfidenceThreshold, test.ShouldEqual, 0.7)
	test.That(t, cfg.TargetFPS, test.ShouldEqual, 10.0)
	// Untouched keys keep their defaults.
	test.That(t, cfg.Detector.IOUThreshold, test.ShouldEqual, 0.45)
	test.That(t, cfg.ReadErrorTolerance, test.ShouldEqual, config.DefaultReadErrorTolerance)

	_, err = config.FromReader(strings.NewReader(`{"target_fps": -1}`))
	test.That(t, err, test.ShouldNotBeNil)
	_, err = config.FromReader(strings.NewReader(`{"fps": 3}`))
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "failed to decode")
}

func TestRead(t *testing.T) {
	t.Setenv("PEOPLECOUNT_TEST_CAMERA", "2")
	path := filepath.Join(t.TempDir(), "config.json")
	err := os.WriteFile(path, []byte(`{"source": {"input_mode": "camera", "camera_index": ${PEOPLECOUNT_TEST_CAMERA}}}`), 0o600)
	test.That(t, err, test.ShouldBeNil)

	cfg, err := config.Read(path)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cfg.Source.CameraIndex, test.ShouldEqual, 2)

	_, err = config.Read(filepath.Join(t.TempDir(), "missing.json"))
	test.That(t, err, test.ShouldNotBeNil)
}

func TestFromAttributes(t *testing.T) {
	base := config.Default()
	cfg, err := config.FromAttributes(base, map[string]interface{}{
		"input_mode":           "file",
		"file_path":            "clip.avi",
		"confidence_threshold": "0.25",
		"target_fps":           30,
	})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cfg.Source.Mode, test.ShouldEqual, source.ModeFile)
	test.That(t, cfg.Source.FilePath, test.ShouldEqual, "clip.avi")
	test.That(t, cfg.Detector.ConfidenceThreshold, test.ShouldEqual, 0.25)
	test.That(t, cfg.TargetFPS, test.ShouldEqual, 30.0)
	test.That(t, cfg.Source.Backend, test.ShouldEqual, base.Source.Backend)
	// The base is not modified.
	test.That(t, base.Source.Mode, test.ShouldEqual, source.ModeCamera)

	_, err = config.FromAttributes(base, map[string]interface{}{"camera": 1})
	var configErr *config.ConfigurationError
	test.That(t, errors.As(err, &configErr), test.ShouldBeTrue)
	test.That(t, configErr.Field, test.ShouldEqual, "attributes")

	_, err = config.FromAttributes(base, map[string]interface{}{"target_fps": 0})
	test.That(t, errors.As(err, &configErr), test.ShouldBeTrue)
	test.That(t, configErr.Field, test.ShouldEqual, "target_fps")
}
