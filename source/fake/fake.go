// Package fake implements a synthetic frame source. It needs no hardware, which makes it handy for
// demos and for exercising the pipeline end to end.
package fake

import (
	"context"
	"image"
	"image/color"
	"time"

	"github.com/pkg/errors"
	goutils "go.viam.com/utils"

	"go.viam.com/peoplecount/logging"
	"go.viam.com/peoplecount/source"
	"go.viam.com/peoplecount/utils"
)

// BackendName is the name the fake backend registers under.
const BackendName = "fake"

func init() {
	source.RegisterBackend(BackendName, Open)
}

// Attributes configure the fake source.
type Attributes struct {
	Width  int `json:"width"`
	Height int `json:"height"`
	// FrameCount is the number of frames a file yields. Cameras ignore it.
	FrameCount int `json:"frame_count"`
	// Devices is the number of cameras that exist; indexes outside [0, Devices) fail to open.
	Devices int `json:"devices"`
	// IntervalMs simulates the time taken to capture a frame.
	IntervalMs int `json:"interval_ms"`
}

func (attrs *Attributes) applyDefaults() {
	if attrs.Width <= 0 {
		attrs.Width = 320
	}
	if attrs.Height <= 0 {
		attrs.Height = 240
	}
	if attrs.FrameCount <= 0 {
		attrs.FrameCount = 30
	}
	if attrs.Devices <= 0 {
		attrs.Devices = 1
	}
}

// DecodeAttributes reads fake source settings out of a generic attribute map.
func DecodeAttributes(raw map[string]interface{}) (Attributes, error) {
	var attrs Attributes
	if err := utils.DecodeAttributes(raw, &attrs); err != nil {
		return Attributes{}, errors.Wrap(err, "invalid fake source attributes")
	}
	attrs.applyDefaults()
	return attrs, nil
}

type reader struct {
	cfg   source.Config
	attrs Attributes
	read  int
}

// Open opens a fake camera or file.
func Open(ctx context.Context, cfg source.Config, logger logging.Logger) (source.Reader, error) {
	attrs, err := DecodeAttributes(cfg.Attributes)
	if err != nil {
		return nil, source.NewUnavailableError(cfg, err)
	}
	switch cfg.Mode {
	case source.ModeCamera:
		if cfg.CameraIndex < 0 || cfg.CameraIndex >= attrs.Devices {
			return nil, source.NewUnavailableError(cfg, errors.Errorf("no device at index %d", cfg.CameraIndex))
		}
	case source.ModeFile:
		if cfg.FilePath == "" {
			return nil, source.NewUnavailableError(cfg, errors.New("no file path given"))
		}
	default:
		return nil, source.NewUnavailableError(cfg, errors.Errorf("unsupported input mode %q", cfg.Mode))
	}
	logger.CDebugw(ctx, "fake source ready", "width", attrs.Width, "height", attrs.Height, "mode", cfg.Mode)
	return &reader{cfg: cfg, attrs: attrs}, nil
}

func (r *reader) Read(ctx context.Context) (image.Image, error) {
	if r.cfg.Mode == source.ModeFile && r.read >= r.attrs.FrameCount {
		return nil, source.ErrEndOfStream
	}
	if r.attrs.IntervalMs > 0 {
		if !goutils.SelectContextOrWait(ctx, time.Duration(r.attrs.IntervalMs)*time.Millisecond) {
			return nil, ctx.Err()
		}
	}
	img := Pattern(r.attrs.Width, r.attrs.Height, r.read)
	r.read++
	return img, nil
}

func (r *reader) Close(ctx context.Context) error {
	return nil
}

// Pattern draws a gradient that shifts with `n`, so successive frames differ.
func Pattern(width, height, n int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.SetRGBA(x, y, color.RGBA{
				R: uint8((x + n) * 255 / width),
				G: uint8(y * 255 / height),
				B: uint8(n * 8),
				A: 0xff,
			})
		}
	}
	return img
}
