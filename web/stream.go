package web

import (
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strconv"
)

// handleStream writes every new frame as one part of a multipart/x-mixed-replace response, the
// format browsers render as a live image.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	mw := multipart.NewWriter(w)
	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary="+mw.Boundary())
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	lastSeq := int64(-1)
	for {
		changed := s.frames.next()
		if buf, seq, ok := s.frames.jpeg(); ok && seq != lastSeq {
			part, err := mw.CreatePart(textproto.MIMEHeader{
				"Content-Type":   {"image/jpeg"},
				"Content-Length": {strconv.Itoa(len(buf))},
			})
			if err == nil {
				_, err = part.Write(buf)
			}
			if err != nil {
				s.logger.Debugw("stream client went away", "error", err)
				return
			}
			flusher.Flush()
			lastSeq = seq
		}

		select {
		case <-r.Context().Done():
			return
		case <-changed:
		}
	}
}
