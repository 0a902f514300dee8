// Package main counts people in a camera or video feed, either in the terminal or behind a small
// web page.
package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"
	goutils "go.viam.com/utils"

	"go.viam.com/peoplecount/config"
	"go.viam.com/peoplecount/logging"
	"go.viam.com/peoplecount/pipeline"
	"go.viam.com/peoplecount/source"
	_ "go.viam.com/peoplecount/source/fake"
	_ "go.viam.com/peoplecount/source/ffmpeg"
	"go.viam.com/peoplecount/web"
)

const (
	// Flags.
	flagConfig    = "config"
	flagMode      = "mode"
	flagCamera    = "camera"
	flagFile      = "file"
	flagBackend   = "backend"
	flagClass     = "class"
	flagThreshold = "threshold"
	flagFPS       = "fps"
	flagModel     = "model"
	flagORTLib    = "ort-lib"
	flagLabels    = "labels"
	flagListen    = "listen"
	flagAutostart = "autostart"
	flagDebug     = "debug"
	flagLogFile   = "log-file"

	shutdownTimeout = 10 * time.Second
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		logging.Global().Error(err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "peoplecount",
		Usage: "count people in a camera or video feed",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    flagConfig,
				Aliases: []string{"c"},
				Usage:   "load configuration from `FILE`",
			},
			&cli.StringFlag{
				Name:  flagMode,
				Usage: "input mode, camera or file",
			},
			&cli.IntFlag{
				Name:  flagCamera,
				Usage: "camera device `INDEX`",
			},
			&cli.StringFlag{
				Name:  flagFile,
				Usage: "video `FILE` to read; implies --mode file",
			},
			&cli.StringFlag{
				Name:  flagBackend,
				Usage: "frame source backend (" + strings.Join(source.RegisteredBackends(), ", ") + ")",
			},
			&cli.IntFlag{
				Name:  flagClass,
				Usage: "model class `ID` to count",
			},
			&cli.Float64Flag{
				Name:  flagThreshold,
				Usage: "minimum detection confidence",
			},
			&cli.Float64Flag{
				Name:  flagFPS,
				Usage: "target frames per second",
			},
			&cli.StringFlag{
				Name:    flagModel,
				Usage:   "path to the ONNX detection `MODEL`",
				EnvVars: []string{"PEOPLECOUNT_MODEL"},
			},
			&cli.StringFlag{
				Name:    flagORTLib,
				Usage:   "path to the onnxruntime shared library",
				EnvVars: []string{"ONNXRUNTIME_SHARED_LIBRARY_PATH"},
			},
			&cli.StringFlag{
				Name:  flagLabels,
				Usage: "class names `FILE`, one per line",
			},
			&cli.BoolFlag{
				Name:    flagDebug,
				Aliases: []string{"vvv"},
				Usage:   "enable debug logging",
			},
			&cli.StringFlag{
				Name:  flagLogFile,
				Usage: "also write logs to `FILE`, rotated by size",
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "run",
				Usage:  "count until the input ends or the process is interrupted",
				Action: runAction,
			},
			{
				Name:  "serve",
				Usage: "serve the live count and annotated frames over HTTP",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  flagListen,
						Usage: "`ADDRESS` to listen on",
					},
					&cli.BoolFlag{
						Name:  flagAutostart,
						Usage: "start a run with the configured input immediately",
					},
				},
				Action: serveAction,
			},
		},
	}
}

// process holds what both commands need.
type process struct {
	cfg     *config.Config
	logger  logging.Logger
	ctrl    *pipeline.Controller
	closers []func() error
}

func setup(c *cli.Context) (*process, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, err
	}
	proc := &process{cfg: cfg}
	proc.logger, err = newLogger(cfg, c.Bool(flagDebug))
	if err != nil {
		return nil, err
	}
	for _, appender := range fileAppenders(cfg) {
		proc.logger.AddAppender(appender)
		proc.closers = append(proc.closers, appender.Close)
	}
	logging.ReplaceGlobal(proc.logger)

	backend, closeBackend, err := loadBackend(cfg, proc.logger.Sublogger("model"))
	if err != nil {
		return nil, multierr.Combine(err, proc.close())
	}
	proc.closers = append(proc.closers, closeBackend)

	proc.ctrl = pipeline.NewController(pipeline.Options{
		Backend: backend,
		Sinks:   []pipeline.Sink{newTerminalSink(proc.logger.Sublogger("count"))},
	}, proc.logger.Sublogger("pipeline"))
	return proc, nil
}

func (proc *process) close() error {
	var errs error
	if proc.ctrl != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		errs = multierr.Combine(errs, proc.ctrl.Close(ctx))
		cancel()
	}
	for i := len(proc.closers) - 1; i >= 0; i-- {
		errs = multierr.Combine(errs, proc.closers[i]())
	}
	return errs
}

func runAction(c *cli.Context) (err error) {
	proc, err := setup(c)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, proc.close())
	}()

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := proc.ctrl.Start(ctx, *proc.cfg); err != nil {
		return describeFailure(proc.ctrl.State(), err)
	}

	finished := make(chan struct{})
	goutils.PanicCapturingGo(func() {
		select {
		case <-ctx.Done():
			proc.ctrl.Stop()
		case <-finished:
		}
	})
	st, err := proc.ctrl.Wait(context.Background())
	close(finished)
	if err != nil {
		return err
	}
	proc.logger.Infof("run summary\n%s", st)
	if st.Status == pipeline.StatusFailed {
		return describeFailure(st, nil)
	}
	return nil
}

func serveAction(c *cli.Context) (err error) {
	proc, err := setup(c)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, proc.close())
	}()
	if c.IsSet(flagListen) {
		proc.cfg.Web.Listen = c.String(flagListen)
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := web.NewServer(proc.ctrl, *proc.cfg, proc.logger.Sublogger("web"))
	proc.ctrl.AddSink(srv)
	if path := c.String(flagConfig); path != "" {
		if err := watchConfig(ctx, c, path, srv, proc); err != nil {
			return err
		}
	}
	if c.Bool(flagAutostart) {
		if err := proc.ctrl.Start(ctx, *proc.cfg); err != nil {
			// The page shows the failure and a new run can be started from there.
			proc.logger.Warnw("autostart failed", "error", describeFailure(proc.ctrl.State(), err))
		}
	}
	return srv.Serve(ctx, proc.cfg.Web.Listen)
}

// watchConfig re-applies command line flags to every valid edit of the config file and makes
// the result the base of later start requests.
func watchConfig(ctx context.Context, c *cli.Context, path string, srv *web.Server, proc *process) error {
	watcher, err := config.NewWatcher(ctx, path, proc.logger.Sublogger("config"))
	if err != nil {
		return err
	}
	proc.closers = append(proc.closers, watcher.Close)
	goutils.PanicCapturingGo(func() {
		for {
			select {
			case <-ctx.Done():
				return
			case cfg, ok := <-watcher.Config():
				if !ok {
					return
				}
				applyFlags(c, cfg)
				if err := cfg.Validate(); err != nil {
					proc.logger.Warnw("ignoring config change", "error", err)
					continue
				}
				srv.SetBase(*cfg)
				proc.logger.Infow("config reloaded", "path", path)
			}
		}
	})
	return nil
}

// describeFailure adds the operator guidance, if any, to a failed run's error.
func describeFailure(st pipeline.State, err error) error {
	if st.LastError == nil {
		return err
	}
	msg := st.LastError.Message
	if st.LastError.Guidance != "" {
		msg += "; " + st.LastError.Guidance
	}
	return errors.Errorf("%s: %s", st.LastError.Kind, msg)
}
