package web_test

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/jpeg"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.viam.com/test"

	"go.viam.com/peoplecount/config"
	"go.viam.com/peoplecount/logging"
	"go.viam.com/peoplecount/pipeline"
	_ "go.viam.com/peoplecount/source/fake"
	"go.viam.com/peoplecount/testutils/inject"
	"go.viam.com/peoplecount/vision/objectdetection"
	"go.viam.com/peoplecount/web"
)

func newTestServer(t *testing.T) (*web.Server, *pipeline.Controller) {
	t.Helper()
	logger := logging.NewTestLogger(t)
	backend := &inject.Backend{
		PredictFunc: func(ctx context.Context, img image.Image) ([]objectdetection.Prediction, error) {
			return []objectdetection.Prediction{
				inject.PersonPrediction(image.Rect(10, 10, 60, 120), 0.8),
				inject.PersonPrediction(image.Rect(100, 20, 150, 130), 0.7),
			}, nil
		},
	}
	ctrl := pipeline.NewController(pipeline.Options{Backend: backend}, logger)
	t.Cleanup(func() {
		test.That(t, ctrl.Close(context.Background()), test.ShouldBeNil)
	})

	base := config.Default()
	base.Source.Backend = "fake"
	base.TargetFPS = 200
	base.Web.PreviewWidth = 160
	srv := web.NewServer(ctrl, base, logger)
	ctrl.AddSink(srv)
	return srv, ctrl
}

func do(t *testing.T, h http.Handler, method, path, body string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	out := map[string]interface{}{}
	if rec.Header().Get("Content-Type") == "application/json" {
		test.That(t, json.Unmarshal(rec.Body.Bytes(), &out), test.ShouldBeNil)
	}
	return rec, out
}

func waitStopped(t *testing.T, ctrl *pipeline.Controller) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := ctrl.Wait(ctx)
	test.That(t, err, test.ShouldBeNil)
}

func TestFileRunOverHTTP(t *testing.T) {
	srv, ctrl := newTestServer(t)
	h := srv.Handler()

	rec, st := do(t, h, http.MethodGet, "/api/state", "")
	test.That(t, rec.Code, test.ShouldEqual, http.StatusOK)
	test.That(t, st["status"], test.ShouldEqual, "idle")
	test.That(t, st["frame_available"], test.ShouldEqual, false)

	rec, _ = do(t, h, http.MethodGet, "/frame.jpg", "")
	test.That(t, rec.Code, test.ShouldEqual, http.StatusNotFound)

	rec, st = do(t, h, http.MethodPost, "/api/start", `{"input_mode": "file", "file_path": "walkers.mp4"}`)
	test.That(t, rec.Code, test.ShouldEqual, http.StatusAccepted)
	test.That(t, st["run_id"], test.ShouldNotBeEmpty)
	waitStopped(t, ctrl)

	rec, st = do(t, h, http.MethodGet, "/api/state", "")
	test.That(t, rec.Code, test.ShouldEqual, http.StatusOK)
	test.That(t, st["status"], test.ShouldEqual, "stopped")
	test.That(t, st["count"], test.ShouldEqual, 2.0)
	test.That(t, st["seq"], test.ShouldEqual, 29.0)
	test.That(t, st["frame_available"], test.ShouldEqual, true)

	rec, _ = do(t, h, http.MethodGet, "/frame.jpg", "")
	test.That(t, rec.Code, test.ShouldEqual, http.StatusOK)
	test.That(t, rec.Header().Get("Content-Type"), test.ShouldEqual, "image/jpeg")
	img, err := jpeg.Decode(rec.Body)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, img.Bounds().Dx(), test.ShouldEqual, 160)
	test.That(t, img.Bounds().Dy(), test.ShouldEqual, 120)
}

func TestStartRejections(t *testing.T) {
	srv, ctrl := newTestServer(t)
	h := srv.Handler()

	rec, out := do(t, h, http.MethodPost, "/api/start", `{"input_mode": "camera", "zoom": 2}`)
	test.That(t, rec.Code, test.ShouldEqual, http.StatusBadRequest)
	test.That(t, out["kind"], test.ShouldEqual, "ConfigurationError")

	rec, out = do(t, h, http.MethodPost, "/api/start", `{"confidence_threshold": 1.5}`)
	test.That(t, rec.Code, test.ShouldEqual, http.StatusBadRequest)
	test.That(t, out["error"], test.ShouldContainSubstring, "confidence_threshold")

	rec, _ = do(t, h, http.MethodPost, "/api/start", `[1, 2]`)
	test.That(t, rec.Code, test.ShouldEqual, http.StatusBadRequest)

	rec, out = do(t, h, http.MethodPost, "/api/start", `{"input_mode": "camera", "camera_index": 99}`)
	test.That(t, rec.Code, test.ShouldEqual, http.StatusServiceUnavailable)
	test.That(t, out["kind"], test.ShouldEqual, "SourceUnavailable")
	test.That(t, out["guidance"], test.ShouldContainSubstring, "camera")
	test.That(t, ctrl.State().Status, test.ShouldEqual, pipeline.StatusFailed)

	rec, _ = do(t, h, http.MethodPost, "/api/start", `{"input_mode": "camera"}`)
	test.That(t, rec.Code, test.ShouldEqual, http.StatusAccepted)
	rec, _ = do(t, h, http.MethodPost, "/api/start", ``)
	test.That(t, rec.Code, test.ShouldEqual, http.StatusConflict)

	rec, _ = do(t, h, http.MethodPost, "/api/stop", "")
	test.That(t, rec.Code, test.ShouldEqual, http.StatusAccepted)
	waitStopped(t, ctrl)
	test.That(t, ctrl.State().Status, test.ShouldEqual, pipeline.StatusStopped)

	rec, _ = do(t, h, http.MethodGet, "/api/start", "")
	test.That(t, rec.Code, test.ShouldEqual, http.StatusNotFound)
}

func TestStream(t *testing.T) {
	srv, ctrl := newTestServer(t)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/api/start", "application/json", bytes.NewBufferString(`{"input_mode": "camera"}`))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, resp.Body.Close(), test.ShouldBeNil)
	test.That(t, resp.StatusCode, test.ShouldEqual, http.StatusAccepted)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/stream.mjpeg", nil)
	test.That(t, err, test.ShouldBeNil)
	resp, err = http.DefaultClient.Do(req)
	test.That(t, err, test.ShouldBeNil)
	defer resp.Body.Close()

	mediaType, params, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, mediaType, test.ShouldEqual, "multipart/x-mixed-replace")

	mr := multipart.NewReader(resp.Body, params["boundary"])
	for i := 0; i < 2; i++ {
		part, err := mr.NextPart()
		test.That(t, err, test.ShouldBeNil)
		test.That(t, part.Header.Get("Content-Type"), test.ShouldEqual, "image/jpeg")
		img, err := jpeg.Decode(part)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, img.Bounds().Dx(), test.ShouldEqual, 160)
	}
	cancel()

	ctrl.Stop()
	waitStopped(t, ctrl)
}

func TestServeShutsDownWithContext(t *testing.T) {
	srv, _ := newTestServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ctx, "localhost:0")
	}()
	cancel()
	select {
	case err := <-errCh:
		test.That(t, err, test.ShouldBeNil)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestSetBaseAppliesToLaterStarts(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Handler()

	base := config.Default()
	base.Source.Backend = "fake"
	base.Source.CameraIndex = 99
	srv.SetBase(base)

	rec, out := do(t, h, http.MethodPost, "/api/start", "")
	test.That(t, rec.Code, test.ShouldEqual, http.StatusServiceUnavailable)
	test.That(t, out["kind"], test.ShouldEqual, "SourceUnavailable")
}
