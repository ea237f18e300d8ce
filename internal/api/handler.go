package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/nidhogg/semnet/internal/discovery"
	"github.com/nidhogg/semnet/internal/reasoning"
	"github.com/nidhogg/semnet/internal/snapshot"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// HistoryReader reads persisted history records.
type HistoryReader interface {
	RecentHistory(ctx context.Context, kind reasoning.EventKind, limit int) ([]reasoning.Record, error)
}

// SnapshotWriter stores an exported graph projection.
type SnapshotWriter interface {
	Write(ctx context.Context, g snapshot.Graph) error
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	engine    *reasoning.Engine
	watcher   *discovery.Watcher
	history   HistoryReader
	snapshots SnapshotWriter
	gatherer  prometheus.Gatherer
	logger    *zap.Logger
}

// NewHandler creates a new API handler.
func NewHandler(engine *reasoning.Engine, logger *zap.Logger) *Handler {
	return &Handler{engine: engine, logger: logger}
}

// SetWatcher routes discovery requests through w so its sinks see the results.
func (h *Handler) SetWatcher(w *discovery.Watcher) { h.watcher = w }

// SetHistoryReader enables reading persisted history.
func (h *Handler) SetHistoryReader(r HistoryReader) { h.history = r }

// SetSnapshotWriter enables pushing snapshots to an external store.
func (h *Handler) SetSnapshotWriter(s SnapshotWriter) { h.snapshots = s }

// SetGatherer exposes g on /metrics.
func (h *Handler) SetGatherer(g prometheus.Gatherer) { h.gatherer = g }

// Router builds the chi router with all routes.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.healthCheck)

		// Graph construction
		r.Get("/concepts", h.listConcepts)
		r.Post("/concepts", h.addConcept)
		r.Get("/concepts/{id}", h.getConcept)
		r.Post("/relationships", h.addRelationship)
		r.Get("/relation-types", h.listRelationTypes)
		r.Post("/relation-types", h.registerRelationType)

		// Reasoning
		r.Post("/spread", h.spread)
		r.Post("/infer", h.infer)
		r.Post("/decide", h.decide)
		r.Post("/learn", h.learn)
		r.Post("/discover", h.discover)
		r.Post("/thought/step", h.thoughtStep)

		// Periodic discovery
		r.Get("/discovery", h.discoveryStatus)
		r.Post("/discovery/start", h.startDiscovery)
		r.Post("/discovery/stop", h.stopDiscovery)

		// State
		r.Get("/working-memory", h.workingMemory)
		r.Delete("/working-memory", h.clearWorkingMemory)
		r.Get("/history", h.listHistory)
		r.Get("/snapshot", h.getSnapshot)
		r.Post("/snapshot/export", h.exportSnapshot)
	})

	if h.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}))
	}

	return r
}

func (h *Handler) healthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":   "ok",
		"service":  "semnet",
		"concepts": h.engine.Len(),
	})
}

func (h *Handler) listConcepts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.engine.ListConcepts())
}

type conceptRequest struct {
	ID         string                 `json:"id"`
	Name       string                 `json:"name"`
	Attributes map[string]interface{} `json:"attributes"`
}

func (h *Handler) addConcept(w http.ResponseWriter, r *http.Request) {
	var req conceptRequest
	if !decode(w, r, &req) {
		return
	}
	if req.ID == "" {
		writeError(w, http.StatusBadRequest, "id is required")
		return
	}
	if req.Name == "" {
		req.Name = req.ID
	}
	h.engine.AddConcept(req.ID, req.Name, req.Attributes)
	v, _ := h.engine.Describe(req.ID)
	writeJSON(w, http.StatusCreated, v)
}

func (h *Handler) getConcept(w http.ResponseWriter, r *http.Request) {
	v, ok := h.engine.Describe(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "concept not found")
		return
	}
	writeJSON(w, http.StatusOK, v)
}

type relationshipRequest struct {
	Source       string  `json:"source"`
	RelationType string  `json:"relation_type"`
	Target       string  `json:"target"`
	Strength     float64 `json:"strength"`
}

func (h *Handler) addRelationship(w http.ResponseWriter, r *http.Request) {
	var req relationshipRequest
	if !decode(w, r, &req) {
		return
	}
	if req.RelationType == "" {
		writeError(w, http.StatusBadRequest, "relation_type is required")
		return
	}
	if req.Strength < 0 {
		writeError(w, http.StatusBadRequest, "strength must not be negative")
		return
	}
	if !h.engine.AddRelationship(req.Source, req.RelationType, req.Target, req.Strength) {
		writeError(w, http.StatusNotFound, "source or target concept not found")
		return
	}
	v, _ := h.engine.Describe(req.Source)
	writeJSON(w, http.StatusCreated, v)
}

func (h *Handler) listRelationTypes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.engine.Registry().List())
}

type relationTypeRequest struct {
	ID          string `json:"id"`
	Label       string `json:"label"`
	Description string `json:"description"`
}

func (h *Handler) registerRelationType(w http.ResponseWriter, r *http.Request) {
	var req relationTypeRequest
	if !decode(w, r, &req) {
		return
	}
	if req.ID == "" || req.Label == "" {
		writeError(w, http.StatusBadRequest, "id and label are required")
		return
	}
	h.engine.Registry().Register(req.ID, req.Label, req.Description)
	t, _ := h.engine.Registry().Get(req.ID)
	writeJSON(w, http.StatusCreated, t)
}

func (h *Handler) workingMemory(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.engine.WorkingMemory())
}

func (h *Handler) clearWorkingMemory(w http.ResponseWriter, r *http.Request) {
	h.engine.ClearWorkingMemory()
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

// listHistory serves the in-memory ring, or the persisted log with
// ?source=store. ?kind filters by event kind, ?limit keeps the newest n.
func (h *Handler) listHistory(w http.ResponseWriter, r *http.Request) {
	kind := reasoning.EventKind(r.URL.Query().Get("kind"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	if r.URL.Query().Get("source") == "store" {
		if h.history == nil {
			writeError(w, http.StatusServiceUnavailable, "history store not configured")
			return
		}
		records, err := h.history.RecentHistory(r.Context(), kind, limit)
		if err != nil {
			h.logger.Warn("read persisted history", zap.Error(err))
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, records)
		return
	}

	records := []reasoning.Record{}
	for _, rec := range h.engine.History() {
		if kind == "" || rec.Kind == kind {
			records = append(records, rec)
		}
	}
	if limit > 0 && len(records) > limit {
		records = records[len(records)-limit:]
	}
	writeJSON(w, http.StatusOK, records)
}

func (h *Handler) getSnapshot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.engine.ExportSnapshot())
}

func (h *Handler) exportSnapshot(w http.ResponseWriter, r *http.Request) {
	if h.snapshots == nil {
		writeError(w, http.StatusServiceUnavailable, "snapshot store not configured")
		return
	}
	g := h.engine.ExportSnapshot()
	if err := h.snapshots.Write(r.Context(), g); err != nil {
		h.logger.Warn("export snapshot", zap.Error(err))
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"nodes": len(g.Nodes), "edges": len(g.Edges)})
}

func decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
