package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.inflightMiddleware)
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	// Prometheus scrape endpoint (no auth, scraped on the LAN)
	r.Handle("/metrics", s.metrics.Handler())

	// WebSocket (auth via ticket, validated in handler)
	r.Get(s.wsPath(), s.handleWebSocket)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Post("/auth/ws-ticket", s.handleWSTicket)

			r.Get("/hardware/status", s.handleHardwareStatus)

			r.Route("/jobs", func(r chi.Router) {
				r.Get("/", s.handleListJobs)
				r.Post("/", s.handleSubmitJob)
				r.Get("/{id}", s.handleGetJob)
				r.Delete("/{id}", s.handleCancelJob)
			})

			r.Route("/control", func(r chi.Router) {
				r.Post("/pump", s.handlePump)
				r.Post("/ac_relay", s.handleRelay)
				r.Post("/fill_to_max", s.handleFillToMax)
				r.Post("/empty_tank", s.handleEmptyTank)
				r.Post("/fix_overflow", s.handleFixOverflow)
			})

			r.Route("/tools", func(r chi.Router) {
				r.Post("/flush", s.handleFlush)
				r.Post("/feed", s.handleFeed)
				r.Post("/dose", s.handleDose)
				r.Post("/diagnose", s.handleDiagnose)
			})

			r.Route("/timelapse", func(r chi.Router) {
				r.Post("/capture", s.handleTimelapseCapture)
				r.Post("/encode", s.handleTimelapseEncode)
			})
		})
	})

	return r
}

func (s *Server) wsPath() string {
	if s.wsCfg.Path == "" {
		return "/ws"
	}
	return s.wsCfg.Path
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	snap := s.control.Status()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
		"busy":    snap.Busy,
	})
}
