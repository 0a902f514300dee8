package fake

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"go.viam.com/test"

	"go.viam.com/peoplecount/logging"
	"go.viam.com/peoplecount/source"
)

func TestFakeFileEndsAfterFrameCount(t *testing.T) {
	ctx := context.Background()
	logger := logging.NewTestLogger(t)
	cfg := source.Config{
		Mode:       source.ModeFile,
		FilePath:   "clip.mp4",
		Backend:    BackendName,
		Attributes: map[string]interface{}{"frame_count": 5, "width": 16, "height": "8"},
	}
	src, err := source.Open(ctx, cfg, logger)
	test.That(t, err, test.ShouldBeNil)
	defer func() {
		test.That(t, src.Close(ctx), test.ShouldBeNil)
	}()

	for i := int64(0); i < 5; i++ {
		frame, err := src.Next(ctx)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, frame.Seq, test.ShouldEqual, i)
		test.That(t, frame.Width(), test.ShouldEqual, 16)
		test.That(t, frame.Height(), test.ShouldEqual, 8)
	}
	_, err = src.Next(ctx)
	test.That(t, errors.Is(err, source.ErrEndOfStream), test.ShouldBeTrue)
}

func TestFakeCameraNeverEnds(t *testing.T) {
	ctx := context.Background()
	cfg := source.Config{Mode: source.ModeCamera, Backend: BackendName, Attributes: map[string]interface{}{"frame_count": 1}}
	src, err := source.Open(ctx, cfg, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	for i := 0; i < 10; i++ {
		_, err := src.Next(ctx)
		test.That(t, err, test.ShouldBeNil)
	}
	test.That(t, src.Close(ctx), test.ShouldBeNil)
}

func TestFakeCameraIndexOutOfRange(t *testing.T) {
	cfg := source.Config{Mode: source.ModeCamera, CameraIndex: 99, Backend: BackendName}
	_, err := source.Open(context.Background(), cfg, logging.NewTestLogger(t))
	test.That(t, source.IsUnavailable(err), test.ShouldBeTrue)
	test.That(t, err.Error(), test.ShouldContainSubstring, "camera 99")
}

func TestFakeRejectsUnknownAttributes(t *testing.T) {
	_, err := DecodeAttributes(map[string]interface{}{"fps": 3})
	test.That(t, err, test.ShouldNotBeNil)

	attrs, err := DecodeAttributes(nil)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, attrs.Width, test.ShouldEqual, 320)
	test.That(t, attrs.Devices, test.ShouldEqual, 1)
}

func TestFakeReadHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := source.Config{Mode: source.ModeCamera, Backend: BackendName, Attributes: map[string]interface{}{"interval_ms": 1000}}
	src, err := source.Open(ctx, cfg, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	cancel()
	_, err = src.Next(ctx)
	test.That(t, errors.Is(err, context.Canceled), test.ShouldBeTrue)
}
