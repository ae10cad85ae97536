package api

import (
	"errors"
	"net/http"

	"github.com/zombieplant/hydrocore/internal/gate"
	"github.com/zombieplant/hydrocore/internal/timelapse"
)

// handleTimelapseCapture takes one frame on demand.
func (s *Server) handleTimelapseCapture(w http.ResponseWriter, r *http.Request) {
	if s.timelapse == nil {
		writeNotFound(w, "timelapse is disabled")
		return
	}

	path, err := s.timelapse.Capture(r.Context())
	switch {
	case errors.Is(err, gate.ErrBusy):
		writeProcedureError(w, err)
	case errors.Is(err, timelapse.ErrCameraUnavailable):
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, err.Error())
	case err != nil:
		s.logger.Error("timelapse capture failed", "error", err)
		writeInternalError(w, err.Error())
	default:
		writeJSON(w, http.StatusOK, map[string]string{"status": "success", "path": path})
	}
}

// handleTimelapseEncode stitches stored frames into a video.
func (s *Server) handleTimelapseEncode(w http.ResponseWriter, r *http.Request) {
	if s.timelapse == nil {
		writeNotFound(w, "timelapse is disabled")
		return
	}

	path, err := s.timelapse.Encode(r.Context())
	switch {
	case errors.Is(err, timelapse.ErrNoFrames):
		writeNotFound(w, err.Error())
	case err != nil:
		s.logger.Error("timelapse encode failed", "error", err)
		writeInternalError(w, err.Error())
	default:
		writeJSON(w, http.StatusOK, map[string]string{"status": "success", "path": path})
	}
}
