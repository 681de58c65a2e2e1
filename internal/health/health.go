// Package health serves the liveness and readiness routes on the client's
// telemetry listener.
//
// GET /healthz reports liveness and succeeds as long as the process can
// serve HTTP. GET /readyz runs every registered [Probe] and fails with 503
// when any of them reports a problem. Both routes answer with a small JSON
// document such as {"status":"ok","checks":{"session":"ok"}}.
//
// Readiness for this client is a question of local state (is the
// conversation session ready, is the microphone pipeline running) rather
// than of remote dependencies, so probes are plain functions that are
// expected to return immediately.
package health

import (
	"encoding/json"
	"errors"
	"net/http"
)

// A Probe inspects one subsystem. Ready returns nil when the subsystem is
// usable and a short error describing the problem otherwise. Probes run
// inline on every /readyz request and must not block.
type Probe struct {
	// Name keys the probe's result in the JSON response body.
	Name string

	Ready func() error
}

// StateProbe builds a [Probe] from a boolean accessor. While ok reports
// false the probe fails with reason.
func StateProbe(name, reason string, ok func() bool) Probe {
	return Probe{
		Name: name,
		Ready: func() error {
			if !ok() {
				return errors.New(reason)
			}
			return nil
		},
	}
}

// Handler answers the health routes for a fixed set of probes. A Handler
// with no probes reports ready unconditionally.
type Handler struct {
	probes []Probe
}

// New returns a [Handler] that evaluates the given probes, in order, on
// each readiness request.
func New(probes ...Probe) *Handler {
	return &Handler{probes: append([]Probe(nil), probes...)}
}

// Register mounts the handler's routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.healthz)
	mux.HandleFunc("GET /readyz", h.readyz)
}

func (h *Handler) healthz(w http.ResponseWriter, _ *http.Request) {
	respond(w, http.StatusOK, report{Status: "ok"})
}

func (h *Handler) readyz(w http.ResponseWriter, _ *http.Request) {
	rep := report{
		Status: "ok",
		Checks: make(map[string]string, len(h.probes)),
	}
	code := http.StatusOK
	for _, p := range h.probes {
		if err := p.Ready(); err != nil {
			rep.Checks[p.Name] = "fail: " + err.Error()
			rep.Status = "fail"
			code = http.StatusServiceUnavailable
			continue
		}
		rep.Checks[p.Name] = "ok"
	}
	respond(w, code, rep)
}

// report is the response document shared by both routes.
type report struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func respond(w http.ResponseWriter, code int, rep report) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	// The status line is already out; an encode failure here has nowhere
	// useful to go.
	_ = json.NewEncoder(w).Encode(rep)
}
