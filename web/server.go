// Package web serves the counting pipeline over HTTP: the current state as JSON, the latest
// annotated frame as JPEG or an MJPEG stream, and endpoints to start and stop runs.
package web

import (
	"context"
	"encoding/json"
	"fmt"
	"image"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/cors"
	"go.viam.com/utils"
	"goji.io"
	"goji.io/pat"

	"go.viam.com/peoplecount/config"
	"go.viam.com/peoplecount/logging"
	"go.viam.com/peoplecount/pipeline"
	"go.viam.com/peoplecount/source"
)

// maxStartBody bounds the attribute document of a start request.
const maxStartBody = 1 << 16

// Controller is the part of *pipeline.Controller the server drives.
type Controller interface {
	Start(ctx context.Context, cfg config.Config) error
	Stop()
	State() pipeline.State
}

// Server is a pipeline.Sink that keeps the latest published frame for HTTP clients.
type Server struct {
	ctrl   Controller
	logger logging.Logger

	baseMu sync.Mutex
	base   config.Config

	frames *frameStore
	mux    *goji.Mux
}

// NewServer returns a server whose start requests apply their attributes on top of `base`.
// Register the server as a sink of ctrl so it receives frames.
func NewServer(ctrl Controller, base config.Config, logger logging.Logger) *Server {
	s := &Server{
		ctrl:   ctrl,
		base:   base,
		logger: logger,
		frames: newFrameStore(base.Web.PreviewWidth),
	}
	s.mux = s.initMux()
	return s
}

// SetBase replaces the config later start requests are applied on top of. A running pipeline
// keeps the config it was started with.
func (s *Server) SetBase(base config.Config) {
	s.baseMu.Lock()
	defer s.baseMu.Unlock()
	s.base = base
}

func (s *Server) baseConfig() config.Config {
	s.baseMu.Lock()
	defer s.baseMu.Unlock()
	return s.base
}

func (s *Server) initMux() *goji.Mux {
	mux := goji.NewMux()
	mux.HandleFunc(pat.Get("/"), s.handleIndex)
	mux.HandleFunc(pat.Get("/api/state"), s.handleState)
	mux.HandleFunc(pat.Post("/api/start"), s.handleStart)
	mux.HandleFunc(pat.Post("/api/stop"), s.handleStop)
	mux.HandleFunc(pat.Get("/frame.jpg"), s.handleFrame)
	mux.HandleFunc(pat.Get("/stream.mjpeg"), s.handleStream)
	return mux
}

// Handler returns the routes wrapped in a permissive CORS policy.
func (s *Server) Handler() http.Handler {
	return cors.AllowAll().Handler(s.mux)
}

// Publish stores the frame. Encoding is deferred until a client asks for it.
func (s *Server) Publish(tick pipeline.Tick) {
	s.frames.put(tick.RunID, tick.Seq, tick.Image)
}

// StateChanged drops the previous run's frame when a new run starts.
func (s *Server) StateChanged(st pipeline.State) {
	if st.Status == pipeline.StatusRunning {
		s.frames.reset(st.RunID)
	}
	// Wake streams so they can notice the run ended.
	s.frames.broadcast()
}

// Serve listens on addr until ctx is done.
func (s *Server) Serve(ctx context.Context, addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Wrapf(err, "cannot listen on %s", addr)
	}
	return s.ServeListener(ctx, listener)
}

// ServeListener serves on an existing listener until ctx is done.
func (s *Server) ServeListener(ctx context.Context, listener net.Listener) error {
	httpServer := &http.Server{
		ReadHeaderTimeout: 10 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Handler:           s.Handler(),
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	var wg sync.WaitGroup
	wg.Add(1)
	utils.PanicCapturingGo(func() {
		defer wg.Done()
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		//nolint:contextcheck
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Errorw("error shutting down", "error", err)
		}
	})

	s.logger.Infow("serving", "url", fmt.Sprintf("http://%s", listener.Addr().String()))
	serveErr := httpServer.Serve(listener)
	wg.Wait()
	if serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
		return serveErr
	}
	return nil
}

type stateResponse struct {
	pipeline.State
	FrameAvailable bool `json:"frame_available"`
}

type errorResponse struct {
	Error    string         `json:"error"`
	Kind     string         `json:"kind,omitempty"`
	Guidance string         `json:"guidance,omitempty"`
	State    *stateResponse `json:"state,omitempty"`
}

func (s *Server) currentState() *stateResponse {
	st := s.ctrl.State()
	return &stateResponse{State: st, FrameAvailable: st.Frame != nil}
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.currentState())
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	attrs := map[string]interface{}{}
	if r.ContentLength != 0 {
		decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxStartBody))
		if err := decoder.Decode(&attrs); err != nil && !errors.Is(err, io.EOF) {
			s.writeError(w, http.StatusBadRequest, errors.Wrap(err, "start request must be a JSON object"))
			return
		}
	}
	cfg, err := config.FromAttributes(s.baseConfig(), attrs)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	if err := s.ctrl.Start(r.Context(), *cfg); err != nil {
		switch {
		case errors.Is(err, pipeline.ErrAlreadyRunning):
			s.writeError(w, http.StatusConflict, err)
		case source.IsUnavailable(err):
			s.writeError(w, http.StatusServiceUnavailable, err)
		default:
			s.writeError(w, http.StatusBadRequest, err)
		}
		return
	}
	s.writeJSON(w, http.StatusAccepted, s.currentState())
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	s.ctrl.Stop()
	s.writeJSON(w, http.StatusAccepted, s.currentState())
}

func (s *Server) handleFrame(w http.ResponseWriter, r *http.Request) {
	buf, _, ok := s.frames.jpeg()
	if !ok {
		http.Error(w, "no frame has been published yet", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "no-store")
	if _, err := w.Write(buf); err != nil {
		s.logger.Debugw("error writing frame", "error", err)
	}
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if _, err := w.Write([]byte(indexHTML)); err != nil {
		s.logger.Debugw("error writing index", "error", err)
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Debugw("error writing response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, code int, err error) {
	resp := errorResponse{Error: err.Error(), State: s.currentState()}
	if !errors.Is(err, pipeline.ErrAlreadyRunning) {
		resp.Kind = pipeline.KindOf(err).String()
	}
	var unavailable *source.UnavailableError
	if errors.As(err, &unavailable) {
		resp.Guidance = unavailable.Guidance()
	}
	s.writeJSON(w, code, resp)
}

// previewBounds is the size a frame is shown at.
func previewBounds(b image.Rectangle, maxWidth uint) (uint, uint) {
	if maxWidth == 0 || uint(b.Dx()) <= maxWidth {
		return uint(b.Dx()), uint(b.Dy())
	}
	return maxWidth, uint(float64(b.Dy()) * float64(maxWidth) / float64(b.Dx()))
}
