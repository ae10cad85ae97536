package api

import (
	"net/http"

	"github.com/zombieplant/hydrocore/internal/procedure"
)

// flushRequest is the request body for POST /tools/flush.
type flushRequest struct {
	SoakDuration *float64 `json:"soak_duration"`
}

// doseRequest is the request body for POST /tools/dose.
type doseRequest struct {
	Nutrient   string   `json:"nutrient"`
	AmountML   float64  `json:"amount_ml"`
	MixSeconds *float64 `json:"mix_seconds"`
}

// handleFlush runs a system flush inside the request. soak_duration is in
// seconds and defaults to procedures.flush_soak.
func (s *Server) handleFlush(w http.ResponseWriter, r *http.Request) {
	var req flushRequest
	if err := decodeBody(r, &req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	soak := s.procCfg.FlushSoak
	if req.SoakDuration != nil {
		d, ok := secondsToDuration(*req.SoakDuration)
		if !ok {
			writeBadRequest(w, "soak_duration must be a finite number")
			return
		}
		soak = d
	}

	res, err := s.control.SystemFlush(r.Context(), soak)
	if err != nil {
		writeProcedureError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleFeed runs a feed cycle for a preset or custom recipe.
func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	var req procedure.FeedRequest
	if err := decodeBody(r, &req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	res, err := s.control.FeedCycle(r.Context(), req)
	if err != nil {
		writeProcedureError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleDose adds one nutrient to the current water. mix_seconds defaults
// to procedures.dose_mix.
func (s *Server) handleDose(w http.ResponseWriter, r *http.Request) {
	var req doseRequest
	if err := decodeBody(r, &req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	mix := s.procCfg.DoseMix
	if req.MixSeconds != nil {
		d, ok := secondsToDuration(*req.MixSeconds)
		if !ok {
			writeBadRequest(w, "mix_seconds must be a finite number")
			return
		}
		mix = d
	}

	res, err := s.control.Dose(r.Context(), procedure.DoseRequest{
		Nutrient: req.Nutrient,
		AmountML: req.AmountML,
		Mix:      mix,
	})
	if err != nil {
		writeProcedureError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleDiagnose runs the sensor and acoustic pump checks.
func (s *Server) handleDiagnose(w http.ResponseWriter, r *http.Request) {
	report, err := s.control.Diagnose(r.Context())
	if err != nil {
		writeProcedureError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}
