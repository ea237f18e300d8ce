package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/nidhogg/semnet/internal/reasoning"
)

// spreadRequest leaves a field nil when the body omits it, so an explicit
// zero is kept and an absent value falls back to the default.
type spreadRequest struct {
	Source            string   `json:"source"`
	InitialActivation *float64 `json:"initial_activation"`
	MaxDepth          *int     `json:"max_depth"`
	Decay             *float64 `json:"decay"`
}

func (h *Handler) spread(w http.ResponseWriter, r *http.Request) {
	var req spreadRequest
	if !decode(w, r, &req) {
		return
	}
	opts := reasoning.DefaultSpreadOpts()
	if req.InitialActivation != nil {
		opts.InitialActivation = *req.InitialActivation
	}
	if req.MaxDepth != nil {
		opts.MaxDepth = *req.MaxDepth
	}
	if req.Decay != nil {
		opts.Decay = *req.Decay
	}
	if opts.MaxDepth < 0 || opts.Decay < 0 || opts.InitialActivation < 0 {
		writeError(w, http.StatusBadRequest, "spread parameters must not be negative")
		return
	}

	res := h.engine.SpreadActivation(req.Source, opts)
	if res == nil {
		writeError(w, http.StatusNotFound, "source concept not found")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type inferRequest struct {
	Source string `json:"source"`
	Target string `json:"target"`
	Kind   string `json:"kind"`
}

func (h *Handler) infer(w http.ResponseWriter, r *http.Request) {
	var req inferRequest
	if !decode(w, r, &req) {
		return
	}
	kind, ok := reasoning.ParseInferenceKind(req.Kind)
	if !ok {
		writeError(w, http.StatusBadRequest, "kind must be one of deductive, inductive, analogical, causal")
		return
	}
	res := h.engine.Infer(req.Source, req.Target, kind)
	if res == nil {
		writeError(w, http.StatusNotFound, "source or target concept not found")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type decideRequest struct {
	Options []string               `json:"options"`
	Context map[string]interface{} `json:"context"`
}

func (h *Handler) decide(w http.ResponseWriter, r *http.Request) {
	var req decideRequest
	if !decode(w, r, &req) {
		return
	}
	if len(req.Options) == 0 {
		writeError(w, http.StatusBadRequest, "options are required")
		return
	}
	writeJSON(w, http.StatusOK, h.engine.Decide(req.Options, req.Context))
}

type learnRequest struct {
	reasoning.Outcome
	Reinforcement float64 `json:"reinforcement"`
}

func (h *Handler) learn(w http.ResponseWriter, r *http.Request) {
	var req learnRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Reinforcement < 0 {
		writeError(w, http.StatusBadRequest, "reinforcement must not be negative")
		return
	}
	if !h.engine.Learn(req.Outcome, req.Reinforcement) {
		writeError(w, http.StatusNotFound, "source or target concept not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"applied": true})
}

type discoverRequest struct {
	Threshold *float64 `json:"threshold"`
	MaxNew    int      `json:"max_new"`
}

// discover accepts an empty body, which runs with the default options.
func (h *Handler) discover(w http.ResponseWriter, r *http.Request) {
	var req discoverRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	opts := reasoning.DefaultDiscoverOpts()
	if h.watcher != nil {
		opts = h.watcher.Options()
	}
	if req.Threshold != nil {
		opts.Threshold = *req.Threshold
	}
	if req.MaxNew > 0 {
		opts.MaxNew = req.MaxNew
	}

	var found []reasoning.Discovery
	if h.watcher != nil {
		found = h.watcher.RunWith(r.Context(), opts)
	} else {
		found = h.engine.AutoDiscoverRelationships(r.Context(), opts)
	}
	writeJSON(w, http.StatusOK, found)
}

func (h *Handler) thoughtStep(w http.ResponseWriter, r *http.Request) {
	t := h.engine.ThinkStep()
	if t == nil {
		writeError(w, http.StatusConflict, "no concepts to think about")
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (h *Handler) discoveryStatus(w http.ResponseWriter, r *http.Request) {
	if h.watcher == nil {
		writeError(w, http.StatusServiceUnavailable, "periodic discovery not configured")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"running":   !h.watcher.Paused(),
		"runs":      h.watcher.Runs(),
		"threshold": h.watcher.Options().Threshold,
		"max_new":   h.watcher.Options().MaxNew,
	})
}

func (h *Handler) startDiscovery(w http.ResponseWriter, r *http.Request) {
	if h.watcher == nil {
		writeError(w, http.StatusServiceUnavailable, "periodic discovery not configured")
		return
	}
	h.watcher.Resume()
	writeJSON(w, http.StatusOK, map[string]string{"status": "started"})
}

func (h *Handler) stopDiscovery(w http.ResponseWriter, r *http.Request) {
	if h.watcher == nil {
		writeError(w, http.StatusServiceUnavailable, "periodic discovery not configured")
		return
	}
	h.watcher.Pause()
	writeJSON(w, http.StatusOK, map[string]string{"status": "stopped"})
}
