// Package ffmpeg decodes video files, and V4L2 cameras, by piping raw frames out of an ffmpeg
// process.
package ffmpeg

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"io"
	"os"
	"os/exec"
	"sync"

	"github.com/pkg/errors"
	ffmpeg "github.com/u2takey/ffmpeg-go"

	"go.viam.com/peoplecount/logging"
	"go.viam.com/peoplecount/source"
	"go.viam.com/peoplecount/utils"
)

// BackendName is the name this backend registers under.
const BackendName = "ffmpeg"

func init() {
	source.RegisterBackend(BackendName, Open)
}

// Attributes are optional ffmpeg settings passed through source.Config.Attributes.
type Attributes struct {
	InputKWArgs map[string]interface{} `json:"input_kw_args"`
	// DevicePattern formats a camera index into a device path.
	DevicePattern string `json:"device_pattern"`
}

type decoder struct {
	cfg    source.Config
	width  int
	height int
	reader *bufio.Reader
	pipeR  *io.PipeReader

	workers utils.StoppableWorkers
	errMu   sync.Mutex
	runErr  error
	logger  logging.Logger
}

// Open probes the input and starts an ffmpeg process writing RGBA frames into a pipe.
func Open(ctx context.Context, cfg source.Config, logger logging.Logger) (source.Reader, error) {
	// make sure ffmpeg is in the path before doing anything else
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		return nil, source.NewUnavailableError(cfg, err)
	}

	var attrs Attributes
	if err := utils.DecodeAttributes(cfg.Attributes, &attrs); err != nil {
		return nil, source.NewUnavailableError(cfg, errors.Wrap(err, "invalid ffmpeg attributes"))
	}
	input, inputArgs, err := inputFor(cfg, attrs)
	if err != nil {
		return nil, source.NewUnavailableError(cfg, err)
	}

	probed, err := ffmpeg.Probe(input, inputArgs)
	if err != nil {
		return nil, source.NewUnavailableError(cfg, errors.Wrap(err, "probe failed"))
	}
	width, height, err := videoSize(probed)
	if err != nil {
		return nil, source.NewUnavailableError(cfg, err)
	}

	pipeR, pipeW := io.Pipe()
	d := &decoder{
		cfg:    cfg,
		width:  width,
		height: height,
		reader: bufio.NewReaderSize(pipeR, width*height*4),
		pipeR:  pipeR,
		logger: logger,
	}
	// The process outlives the open call, so it is not bound to ctx.
	d.workers = utils.NewStoppableWorkers(context.Background(), func(workerCtx context.Context) {
		stream := ffmpeg.Input(input, inputArgs).
			Output("pipe:", ffmpeg.KwArgs{"format": "rawvideo", "pix_fmt": "rgba"})
		stream.Context = workerCtx
		runErr := stream.WithOutput(pipeW).Run()
		if runErr != nil && workerCtx.Err() == nil {
			d.errMu.Lock()
			d.runErr = runErr
			d.errMu.Unlock()
		}
		pipeW.CloseWithError(runErr)
	})
	logger.CDebugw(ctx, "ffmpeg decoder started", "input", input, "width", width, "height", height)
	return d, nil
}

func inputFor(cfg source.Config, attrs Attributes) (string, ffmpeg.KwArgs, error) {
	args := ffmpeg.KwArgs{}
	for k, v := range attrs.InputKWArgs {
		args[k] = v
	}
	switch cfg.Mode {
	case source.ModeFile:
		if _, err := os.Stat(cfg.FilePath); err != nil {
			return "", nil, err
		}
		return cfg.FilePath, args, nil
	case source.ModeCamera:
		pattern := attrs.DevicePattern
		if pattern == "" {
			pattern = "/dev/video%d"
		}
		device := fmt.Sprintf(pattern, cfg.CameraIndex)
		if _, err := os.Stat(device); err != nil {
			return "", nil, err
		}
		if _, ok := args["format"]; !ok {
			args["format"] = "v4l2"
		}
		return device, args, nil
	default:
		return "", nil, errors.Errorf("unsupported input mode %q", cfg.Mode)
	}
}

type probeResult struct {
	Streams []struct {
		CodecType string `json:"codec_type"`
		Width     int    `json:"width"`
		Height    int    `json:"height"`
	} `json:"streams"`
}

// videoSize pulls the dimensions of the first video stream out of ffprobe's JSON output.
func videoSize(probed string) (int, int, error) {
	var result probeResult
	if err := json.Unmarshal([]byte(probed), &result); err != nil {
		return 0, 0, errors.Wrap(err, "cannot parse probe output")
	}
	for _, stream := range result.Streams {
		if stream.CodecType == "video" && stream.Width > 0 && stream.Height > 0 {
			return stream.Width, stream.Height, nil
		}
	}
	return 0, 0, errors.New("no video stream found")
}

func (d *decoder) Read(ctx context.Context) (image.Image, error) {
	img := image.NewRGBA(image.Rect(0, 0, d.width, d.height))
	n, err := io.ReadFull(d.reader, img.Pix)
	switch {
	case err == nil:
		return img, nil
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		if runErr := d.decodeErr(); runErr != nil {
			return nil, source.NewReadError(runErr)
		}
		if n > 0 {
			d.logger.Debugw("dropping truncated final frame", "bytes", n)
		}
		return nil, source.ErrEndOfStream
	default:
		return nil, source.NewReadError(err)
	}
}

func (d *decoder) decodeErr() error {
	d.errMu.Lock()
	defer d.errMu.Unlock()
	return d.runErr
}

func (d *decoder) Close(ctx context.Context) error {
	err := d.pipeR.Close()
	d.workers.Stop()
	return err
}
