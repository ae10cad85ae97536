package api

import (
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"
	"time"

	"github.com/zombieplant/hydrocore/internal/hardware"
)

// pumpRequest is the request body for POST /control/pump.
type pumpRequest struct {
	PumpID  string  `json:"pump_id"`
	Seconds float64 `json:"seconds"`
}

// relayRequest is the request body for POST /control/ac_relay.
type relayRequest struct {
	State *bool `json:"state"`
}

// decodeBody decodes an optional JSON body. An empty body leaves v untouched.
func decodeBody(r *http.Request, v any) error {
	if r.Body == nil {
		return nil
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// secondsToDuration converts a JSON seconds value, rejecting NaN and
// infinities that would overflow a Duration.
func secondsToDuration(sec float64) (time.Duration, bool) {
	if math.IsNaN(sec) || math.IsInf(sec, 0) || sec > math.MaxInt64/float64(time.Second) {
		return 0, false
	}
	return time.Duration(sec * float64(time.Second)), true
}

// handleHardwareStatus returns the hardware snapshot. It does not take the
// gate, so it answers while a procedure runs.
func (s *Server) handleHardwareStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.control.Status())
}

// handlePump runs one pump for a bounded number of seconds.
func (s *Server) handlePump(w http.ResponseWriter, r *http.Request) {
	var req pumpRequest
	if err := decodeBody(r, &req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	ch, err := hardware.ParseChannel(req.PumpID)
	if err != nil || !ch.IsPump() {
		writeBadRequest(w, "Pump "+req.PumpID+" not found.")
		return
	}
	d, ok := secondsToDuration(req.Seconds)
	if !ok {
		writeBadRequest(w, "seconds must be a finite number")
		return
	}

	res, err := s.control.Dispense(r.Context(), ch, d)
	if err != nil {
		writeProcedureError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleRelay switches the AC relay.
func (s *Server) handleRelay(w http.ResponseWriter, r *http.Request) {
	var req relayRequest
	if err := decodeBody(r, &req); err != nil || req.State == nil {
		writeBadRequest(w, "body must be {\"state\": true|false}")
		return
	}

	res, err := s.control.SetRelay(r.Context(), *req.State)
	if err != nil {
		writeProcedureError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleFillToMax(w http.ResponseWriter, r *http.Request) {
	res, err := s.control.FillToMax(r.Context())
	if err != nil {
		writeProcedureError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleEmptyTank(w http.ResponseWriter, r *http.Request) {
	res, err := s.control.EmptyTank(r.Context())
	if err != nil {
		writeProcedureError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleFixOverflow always answers 200 once the gate is held; the result
// status says whether anything was drained.
func (s *Server) handleFixOverflow(w http.ResponseWriter, r *http.Request) {
	res, err := s.control.FixOverflow(r.Context())
	if err != nil {
		writeProcedureError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
