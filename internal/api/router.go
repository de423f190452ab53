// Package api exposes the pipeline's operational HTTP surface: health,
// recent trades, and hot config reload. Grounded on the teacher's
// internal/api/router.go mux shape and the /reload handler pattern from
// cmd/indengine/main.go, re-pointed at this pipeline's Config/Journal.
package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"signalcore/internal/config"
	"signalcore/internal/execution"
	"signalcore/internal/model"
)

// ReloadFunc validates and applies a new configuration, returning an error
// if the new config is rejected.
type ReloadFunc func(cfg *config.Config) error

// RingInspector exposes the Ring Store's read side (internal/ring.Store,
// via internal/pipeline.Pipeline) for operational introspection: the
// current partial candle and closed-history depth per timeframe.
type RingInspector interface {
	Partial(tf string) (model.Candle, bool)
	RingDepth(tf string) int
}

// Router builds the operational HTTP mux.
type Router struct {
	mux        *http.ServeMux
	reload     ReloadFunc
	journal    *execution.Journal
	ring       RingInspector
	timeframes []string
}

// NewRouter builds the mux. journal may be nil if no execution journal is
// wired (e.g. a dry-run pipeline with no OrderSink); ring may be nil if the
// process has no live pipeline to inspect (e.g. cmd/execution).
func NewRouter(reload ReloadFunc, journal *execution.Journal, ring RingInspector, timeframes []string) *Router {
	r := &Router{mux: http.NewServeMux(), reload: reload, journal: journal, ring: ring, timeframes: timeframes}

	r.mux.HandleFunc("/api/v1/health", r.handleHealth)
	r.mux.HandleFunc("/api/v1/reload", r.handleReload)
	r.mux.HandleFunc("/api/v1/trades", r.handleTrades)
	r.mux.HandleFunc("/api/v1/ring", r.handleRing)

	return r
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

func (r *Router) handleHealth(w http.ResponseWriter, req *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func (r *Router) handleReload(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		http.Error(w, "POST only", http.StatusMethodNotAllowed)
		return
	}
	if r.reload == nil {
		http.Error(w, "reload not supported by this process", http.StatusNotImplemented)
		return
	}

	var cfg config.Config
	if err := json.NewDecoder(req.Body).Decode(&cfg); err != nil {
		http.Error(w, "invalid JSON: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := cfg.Validate(); err != nil {
		http.Error(w, "validation: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := r.reload(&cfg); err != nil {
		http.Error(w, "reload: "+err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (r *Router) handleTrades(w http.ResponseWriter, req *http.Request) {
	if r.journal == nil {
		http.Error(w, "no journal configured", http.StatusNotImplemented)
		return
	}

	limit := 100
	if raw := req.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}

	trades, err := r.journal.GetTrades(limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(trades)
}

func (r *Router) handleRing(w http.ResponseWriter, req *http.Request) {
	if r.ring == nil {
		http.Error(w, "ring introspection not supported by this process", http.StatusNotImplemented)
		return
	}

	type tfRing struct {
		Timeframe   string        `json:"timeframe"`
		ClosedDepth int           `json:"closed_depth"`
		Partial     *model.Candle `json:"partial,omitempty"`
	}

	out := make([]tfRing, 0, len(r.timeframes))
	for _, tf := range r.timeframes {
		entry := tfRing{Timeframe: tf, ClosedDepth: r.ring.RingDepth(tf)}
		if pc, ok := r.ring.Partial(tf); ok {
			entry.Partial = &pc
		}
		out = append(out, entry)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(out)
}
