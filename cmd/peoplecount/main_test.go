package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.viam.com/test"

	"go.viam.com/peoplecount/config"
	"go.viam.com/peoplecount/logging"
	"go.viam.com/peoplecount/pipeline"
	"go.viam.com/peoplecount/source"
)

func configFromArgs(t *testing.T, args ...string) (*config.Config, error) {
	t.Helper()
	var (
		cfg     *config.Config
		loadErr error
	)
	app := newApp()
	app.Commands = nil
	app.Action = func(c *cli.Context) error {
		cfg, loadErr = loadConfig(c)
		return nil
	}
	test.That(t, app.Run(append([]string{"peoplecount"}, args...)), test.ShouldBeNil)
	return cfg, loadErr
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := configFromArgs(t)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cfg.Source.Mode, test.ShouldEqual, source.ModeCamera)
	test.That(t, cfg.Detector.ConfidenceThreshold, test.ShouldEqual, 0.5)
	test.That(t, cfg.TargetFPS, test.ShouldEqual, 15.0)
}

func TestLoadConfigFlags(t *testing.T) {
	cfg, err := configFromArgs(t,
		"--file", "entrance.mov", "--threshold", "0.7", "--fps", "5", "--class", "2", "--backend", "ffmpeg")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cfg.Source.Mode, test.ShouldEqual, source.ModeFile)
	test.That(t, cfg.Source.FilePath, test.ShouldEqual, "entrance.mov")
	test.That(t, cfg.Source.Backend, test.ShouldEqual, "ffmpeg")
	test.That(t, cfg.Detector.ConfidenceThreshold, test.ShouldEqual, 0.7)
	test.That(t, cfg.Detector.TargetClassID, test.ShouldEqual, 2)
	test.That(t, cfg.TargetFPS, test.ShouldEqual, 5.0)

	_, err = configFromArgs(t, "--mode", "satellite")
	var configErr *config.ConfigurationError
	test.That(t, errors.As(err, &configErr), test.ShouldBeTrue)
	test.That(t, configErr.Field, test.ShouldEqual, "source.input_mode")

	_, err = configFromArgs(t, "--file", "notes.txt")
	test.That(t, errors.As(err, &configErr), test.ShouldBeTrue)
	test.That(t, configErr.Field, test.ShouldEqual, "source.file_path")
}

func TestLoadConfigFileThenFlags(t *testing.T) {
	t.Setenv("PEOPLECOUNT_TEST_CAMERA", "2")
	path := filepath.Join(t.TempDir(), "peoplecount.json")
	doc := `{"source": {"input_mode": "camera", "camera_index": ${PEOPLECOUNT_TEST_CAMERA}}, "target_fps": 10}`
	test.That(t, os.WriteFile(path, []byte(doc), 0o600), test.ShouldBeNil)

	cfg, err := configFromArgs(t, "--config", path, "--fps", "20")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cfg.Source.CameraIndex, test.ShouldEqual, 2)
	test.That(t, cfg.TargetFPS, test.ShouldEqual, 20.0)

	_, err = configFromArgs(t, "--config", filepath.Join(t.TempDir(), "missing.json"))
	test.That(t, err, test.ShouldNotBeNil)
}

func TestNewLogger(t *testing.T) {
	cfg := config.Default()
	cfg.Log.Level = "warn"
	logger, err := newLogger(&cfg, false)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, logger.GetLevel(), test.ShouldEqual, logging.WARN)

	logger, err = newLogger(&cfg, true)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, logger.GetLevel(), test.ShouldEqual, logging.DEBUG)

	cfg.Log.Level = "chatty"
	_, err = newLogger(&cfg, false)
	test.That(t, err, test.ShouldNotBeNil)

	test.That(t, fileAppenders(&cfg), test.ShouldBeEmpty)
	cfg.Log.File = filepath.Join(t.TempDir(), "peoplecount.log")
	appenders := fileAppenders(&cfg)
	test.That(t, appenders, test.ShouldHaveLength, 1)
	test.That(t, appenders[0].Close(), test.ShouldBeNil)
}

func TestTerminalSinkLogsChanges(t *testing.T) {
	logger, logs := logging.NewObservedTestLogger(t)
	sink := newTerminalSink(logger)
	for seq, count := range []int{1, 1, 2, 2, 0, 0} {
		sink.Publish(pipeline.Tick{RunID: "a", Seq: int64(seq), Count: count})
	}
	// A new run logs its first count even if unchanged.
	sink.Publish(pipeline.Tick{RunID: "b", Seq: 0, Count: 0})
	test.That(t, logs.FilterMessage("people in frame").Len(), test.ShouldEqual, 4)

	sink.StateChanged(pipeline.State{Status: pipeline.StatusFailed, LastError: &pipeline.Failure{
		Kind: pipeline.ErrorKindSourceUnavailable, Message: "cannot open camera 1",
	}})
	test.That(t, logs.FilterMessage("run failed").Len(), test.ShouldEqual, 1)
}

func TestDescribeFailure(t *testing.T) {
	cause := errors.New("boom")
	test.That(t, describeFailure(pipeline.State{}, cause), test.ShouldEqual, cause)

	err := describeFailure(pipeline.State{LastError: &pipeline.Failure{
		Kind:     pipeline.ErrorKindSourceUnavailable,
		Message:  "cannot open camera 3",
		Guidance: "check that your camera is connected",
	}}, cause)
	test.That(t, err.Error(), test.ShouldEqual,
		"SourceUnavailable: cannot open camera 3; check that your camera is connected")
}
