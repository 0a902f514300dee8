package main

import (
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"go.viam.com/peoplecount/config"
	"go.viam.com/peoplecount/logging"
	"go.viam.com/peoplecount/source"
)

const (
	logMaxBackups = 3
)

// loadConfig reads --config, if given, and lays the flags that were set on top.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg := config.Default()
	if path := c.String(flagConfig); path != "" {
		fromFile, err := config.Read(path)
		if err != nil {
			return nil, errors.Wrapf(err, "cannot read config %s", path)
		}
		cfg = *fromFile
	}
	applyFlags(c, &cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyFlags(c *cli.Context, cfg *config.Config) {
	if c.IsSet(flagFile) {
		cfg.Source.FilePath = c.String(flagFile)
		cfg.Source.Mode = source.ModeFile
	}
	if c.IsSet(flagMode) {
		cfg.Source.Mode = source.Mode(c.String(flagMode))
	}
	if c.IsSet(flagCamera) {
		cfg.Source.CameraIndex = c.Int(flagCamera)
	}
	if c.IsSet(flagBackend) {
		cfg.Source.Backend = c.String(flagBackend)
	}
	if c.IsSet(flagClass) {
		cfg.Detector.TargetClassID = c.Int(flagClass)
	}
	if c.IsSet(flagThreshold) {
		cfg.Detector.ConfidenceThreshold = c.Float64(flagThreshold)
	}
	if c.IsSet(flagFPS) {
		cfg.TargetFPS = c.Float64(flagFPS)
	}
	if c.IsSet(flagModel) {
		cfg.Model.Path = c.String(flagModel)
	}
	if c.IsSet(flagORTLib) {
		cfg.Model.LibraryPath = c.String(flagORTLib)
	}
	if c.IsSet(flagLabels) {
		cfg.Model.LabelsPath = c.String(flagLabels)
	}
	if c.IsSet(flagLogFile) {
		cfg.Log.File = c.String(flagLogFile)
	}
}

func newLogger(cfg *config.Config, debug bool) (logging.Logger, error) {
	logger := logging.NewLogger("peoplecount")
	if debug {
		logger.SetLevel(logging.DEBUG)
		return logger, nil
	}
	if cfg.Log.Level != "" {
		level, err := logging.LevelFromString(cfg.Log.Level)
		if err != nil {
			return nil, config.NewConfigurationError("log.level", err.Error())
		}
		logger.SetLevel(level)
	}
	return logger, nil
}

func fileAppenders(cfg *config.Config) []*logging.FileAppender {
	if cfg.Log.File == "" {
		return nil
	}
	return []*logging.FileAppender{logging.NewFileAppender(cfg.Log.File, cfg.Log.MaxSizeMB, logMaxBackups)}
}
