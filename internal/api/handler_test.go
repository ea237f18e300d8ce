package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nidhogg/semnet/internal/discovery"
	"github.com/nidhogg/semnet/internal/metrics"
	"github.com/nidhogg/semnet/internal/reasoning"
	"github.com/nidhogg/semnet/internal/snapshot"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// newTestHandler creates a Handler over an in-memory engine (no Neo4j/Redis/Postgres).
// Setters in with run before the server starts.
func newTestHandler(t *testing.T, with ...func(h *Handler)) (*Handler, *httptest.Server) {
	t.Helper()
	logger := zap.NewNop()

	engine, err := reasoning.NewEngine(reasoning.DefaultConfig(), logger)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	reg := prometheus.NewRegistry()
	engine.SetMetrics(metrics.New(reg))

	h := NewHandler(engine, logger)
	h.SetGatherer(reg)
	for _, fn := range with {
		fn(h)
	}
	ts := httptest.NewServer(h.Router())
	t.Cleanup(ts.Close)
	return h, ts
}

func postJSON(t *testing.T, ts *httptest.Server, path string, body interface{}) *http.Response {
	t.Helper()
	b, _ := json.Marshal(body)
	resp, err := http.Post(ts.URL+path, "application/json", bytes.NewReader(b))
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	return resp
}

func getJSON(t *testing.T, ts *httptest.Server, path string) *http.Response {
	t.Helper()
	resp, err := http.Get(ts.URL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	return resp
}

func decodeJSON(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func expectStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	if resp.StatusCode != want {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		t.Fatalf("expected %d, got %d: %s", want, resp.StatusCode, body)
	}
}

// seed builds dog --is-a--> animal --needs--> food.
func seed(t *testing.T, ts *httptest.Server) {
	t.Helper()
	for _, id := range []string{"dog", "animal", "food"} {
		resp := postJSON(t, ts, "/api/concepts", map[string]interface{}{"id": id, "name": id})
		expectStatus(t, resp, http.StatusCreated)
		resp.Body.Close()
	}
	for _, rel := range []relationshipRequest{
		{Source: "dog", RelationType: "is-a", Target: "animal", Strength: 0.9},
		{Source: "animal", RelationType: "needs", Target: "food", Strength: 0.8},
	} {
		resp := postJSON(t, ts, "/api/relationships", rel)
		expectStatus(t, resp, http.StatusCreated)
		resp.Body.Close()
	}
}

// --- Tests ---

func TestHealthCheck(t *testing.T) {
	_, ts := newTestHandler(t)

	resp := getJSON(t, ts, "/api/health")
	expectStatus(t, resp, http.StatusOK)
	var body map[string]interface{}
	decodeJSON(t, resp, &body)
	if body["status"] != "ok" {
		t.Errorf("expected status ok, got %v", body["status"])
	}
	if body["concepts"] != float64(0) {
		t.Errorf("expected 0 concepts, got %v", body["concepts"])
	}
}

func TestConceptCRUD(t *testing.T) {
	_, ts := newTestHandler(t)

	resp := postJSON(t, ts, "/api/concepts", map[string]interface{}{
		"id":         "dog",
		"name":       "Dog",
		"attributes": map[string]interface{}{"legs": 4, "type": "concrete"},
	})
	expectStatus(t, resp, http.StatusCreated)
	var v reasoning.ConceptView
	decodeJSON(t, resp, &v)
	if v.Name != "Dog" || v.Type != "concrete" || v.Weight != 1 {
		t.Errorf("unexpected concept: %+v", v)
	}
	if v.Attributes["legs"] != float64(4) {
		t.Errorf("attributes = %v", v.Attributes)
	}

	resp = getJSON(t, ts, "/api/concepts/dog")
	expectStatus(t, resp, http.StatusOK)
	resp.Body.Close()

	resp = getJSON(t, ts, "/api/concepts/ghost")
	expectStatus(t, resp, http.StatusNotFound)
	resp.Body.Close()

	resp = postJSON(t, ts, "/api/concepts", map[string]string{"name": "nameless"})
	expectStatus(t, resp, http.StatusBadRequest)
	resp.Body.Close()

	resp = getJSON(t, ts, "/api/concepts")
	var list []reasoning.ConceptView
	decodeJSON(t, resp, &list)
	if len(list) != 1 {
		t.Errorf("expected 1 concept, got %d", len(list))
	}
}

func TestAddRelationship(t *testing.T) {
	_, ts := newTestHandler(t)
	seed(t, ts)

	resp := getJSON(t, ts, "/api/concepts/animal")
	var v reasoning.ConceptView
	decodeJSON(t, resp, &v)
	sub := v.Relationships["has-subtype"]
	if len(sub) != 1 || sub[0].Target != "dog" {
		t.Fatalf("mirrored edge missing: %+v", v.Relationships)
	}
	if d := sub[0].Strength - 0.72; d > 1e-9 || d < -1e-9 {
		t.Errorf("mirrored strength = %v, want 0.72", sub[0].Strength)
	}

	resp = postJSON(t, ts, "/api/relationships", relationshipRequest{Source: "dog", RelationType: "is-a", Target: "ghost"})
	expectStatus(t, resp, http.StatusNotFound)
	resp.Body.Close()

	resp = postJSON(t, ts, "/api/relationships", relationshipRequest{Source: "dog", Target: "food"})
	expectStatus(t, resp, http.StatusBadRequest)
	resp.Body.Close()
}

func TestSpreadKeepsExplicitZeroDepth(t *testing.T) {
	_, ts := newTestHandler(t)
	seed(t, ts)

	resp := postJSON(t, ts, "/api/spread", map[string]interface{}{
		"source": "dog", "initial_activation": 1.0, "max_depth": 0, "decay": 1.0,
	})
	expectStatus(t, resp, http.StatusOK)
	var res reasoning.SpreadResult
	decodeJSON(t, resp, &res)
	if n, ok := res.Nodes["animal"]; !ok || n.Depth != 1 {
		t.Errorf("direct target should still be reached: %+v", res.Nodes)
	}
	if _, ok := res.Nodes["food"]; ok {
		t.Errorf("max_depth 0 must not expand past the source: %+v", res.Nodes)
	}

	resp = postJSON(t, ts, "/api/spread", map[string]interface{}{"source": "dog", "decay": -0.5})
	expectStatus(t, resp, http.StatusBadRequest)
	resp.Body.Close()
}

func TestSpreadAndWorkingMemory(t *testing.T) {
	_, ts := newTestHandler(t)
	seed(t, ts)

	resp := postJSON(t, ts, "/api/spread", map[string]interface{}{"source": "dog"})
	expectStatus(t, resp, http.StatusOK)
	var res reasoning.SpreadResult
	decodeJSON(t, resp, &res)
	if n, ok := res.Nodes["animal"]; !ok || n.Depth != 1 {
		t.Errorf("animal not reached at depth 1: %+v", res.Nodes)
	}

	resp = postJSON(t, ts, "/api/spread", map[string]interface{}{"source": "ghost"})
	expectStatus(t, resp, http.StatusNotFound)
	resp.Body.Close()

	resp = getJSON(t, ts, "/api/working-memory")
	var wm []reasoning.MemoryItem
	decodeJSON(t, resp, &wm)
	if len(wm) != 2 || wm[0].ID != "dog" {
		t.Errorf("working memory = %+v", wm)
	}

	req, _ := http.NewRequest(http.MethodDelete, ts.URL+"/api/working-memory", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE: %v", err)
	}
	expectStatus(t, resp, http.StatusOK)
	resp.Body.Close()

	resp = getJSON(t, ts, "/api/working-memory")
	decodeJSON(t, resp, &wm)
	if len(wm) != 0 {
		t.Errorf("working memory not cleared: %+v", wm)
	}
}

func TestInfer(t *testing.T) {
	_, ts := newTestHandler(t)
	seed(t, ts)

	resp := postJSON(t, ts, "/api/infer", inferRequest{Source: "dog", Target: "animal", Kind: "deduction"})
	expectStatus(t, resp, http.StatusOK)
	var inf reasoning.Inference
	decodeJSON(t, resp, &inf)
	if inf.Confidence != 0.9 || inf.Kind != reasoning.Deductive {
		t.Errorf("inference = %+v", inf)
	}

	resp = postJSON(t, ts, "/api/infer", inferRequest{Source: "dog", Target: "animal", Kind: "guesswork"})
	expectStatus(t, resp, http.StatusBadRequest)
	resp.Body.Close()

	resp = postJSON(t, ts, "/api/infer", inferRequest{Source: "dog", Target: "ghost", Kind: "causal"})
	expectStatus(t, resp, http.StatusNotFound)
	resp.Body.Close()
}

func TestDecideAndLearn(t *testing.T) {
	_, ts := newTestHandler(t)
	for _, c := range []map[string]interface{}{
		{"id": "x", "attributes": map[string]interface{}{"color": "red"}},
		{"id": "y", "attributes": map[string]interface{}{"color": "blue"}},
	} {
		resp := postJSON(t, ts, "/api/concepts", c)
		expectStatus(t, resp, http.StatusCreated)
		resp.Body.Close()
	}

	resp := postJSON(t, ts, "/api/decide", decideRequest{
		Options: []string{"x", "y"},
		Context: map[string]interface{}{"color": "blue"},
	})
	expectStatus(t, resp, http.StatusOK)
	var d reasoning.Decision
	decodeJSON(t, resp, &d)
	if d.Chosen != "y" || len(d.Evaluations) != 2 {
		t.Errorf("decision = %+v", d)
	}

	resp = postJSON(t, ts, "/api/decide", decideRequest{})
	expectStatus(t, resp, http.StatusBadRequest)
	resp.Body.Close()

	resp = postJSON(t, ts, "/api/relationships", relationshipRequest{Source: "x", RelationType: "opposite-to", Target: "y"})
	expectStatus(t, resp, http.StatusCreated)
	resp.Body.Close()

	resp = postJSON(t, ts, "/api/learn", map[string]interface{}{
		"source": "x", "target": "y", "relation_type": "opposite-to", "success": true, "reinforcement": 0.5,
	})
	expectStatus(t, resp, http.StatusOK)
	resp.Body.Close()

	resp = getJSON(t, ts, "/api/concepts/x")
	var v reasoning.ConceptView
	decodeJSON(t, resp, &v)
	if got := v.Relationships["opposite-to"][0].Strength; got != 1.5 {
		t.Errorf("strength after learning = %v, want 1.5", got)
	}

	resp = postJSON(t, ts, "/api/learn", map[string]interface{}{"source": "x", "target": "ghost"})
	expectStatus(t, resp, http.StatusNotFound)
	resp.Body.Close()
}

func TestDiscoverThroughWatcher(t *testing.T) {
	var w *discovery.Watcher
	var delivered atomic.Int32
	_, ts := newTestHandler(t, func(h *Handler) {
		w = discovery.NewWatcher(h.engine, reasoning.DefaultDiscoverOpts(), time.Minute, zap.NewNop())
		w.AddSink("count", func(_ context.Context, found []reasoning.Discovery) error {
			delivered.Add(int32(len(found)))
			return nil
		})
		h.SetWatcher(w)
	})
	for _, c := range []map[string]interface{}{
		{"id": "cat", "attributes": map[string]interface{}{"legs": 4, "fur": true}},
		{"id": "dog", "attributes": map[string]interface{}{"legs": 4, "fur": true}},
		{"id": "animal"},
	} {
		resp := postJSON(t, ts, "/api/concepts", c)
		expectStatus(t, resp, http.StatusCreated)
		resp.Body.Close()
	}
	for _, src := range []string{"cat", "dog"} {
		resp := postJSON(t, ts, "/api/relationships", relationshipRequest{Source: src, RelationType: "is-a", Target: "animal"})
		expectStatus(t, resp, http.StatusCreated)
		resp.Body.Close()
	}

	resp, err := http.Post(ts.URL+"/api/discover", "application/json", nil)
	if err != nil {
		t.Fatalf("POST /api/discover: %v", err)
	}
	expectStatus(t, resp, http.StatusOK)
	var found []reasoning.Discovery
	decodeJSON(t, resp, &found)
	if len(found) != 1 || found[0].RelationType != "similar-to" {
		t.Fatalf("found = %+v", found)
	}
	if delivered.Load() != 1 {
		t.Errorf("sink saw %d discoveries, want 1", delivered.Load())
	}

	resp = postJSON(t, ts, "/api/discovery/stop", nil)
	expectStatus(t, resp, http.StatusOK)
	resp.Body.Close()
	if !w.Paused() {
		t.Error("watcher should be paused")
	}
	resp = getJSON(t, ts, "/api/discovery")
	var status map[string]interface{}
	decodeJSON(t, resp, &status)
	if status["running"] != false || status["runs"] != float64(1) {
		t.Errorf("status = %v", status)
	}
	resp = postJSON(t, ts, "/api/discovery/start", nil)
	expectStatus(t, resp, http.StatusOK)
	resp.Body.Close()
	if w.Paused() {
		t.Error("watcher should be running")
	}
}

func TestDiscoveryRoutesWithoutWatcher(t *testing.T) {
	_, ts := newTestHandler(t)

	resp := postJSON(t, ts, "/api/discover", map[string]interface{}{"threshold": 0.0, "max_new": 3})
	expectStatus(t, resp, http.StatusOK)
	var found []reasoning.Discovery
	decodeJSON(t, resp, &found)
	if len(found) != 0 {
		t.Errorf("empty graph discovered %d", len(found))
	}

	resp = getJSON(t, ts, "/api/discovery")
	expectStatus(t, resp, http.StatusServiceUnavailable)
	resp.Body.Close()
}

func TestThoughtStep(t *testing.T) {
	_, ts := newTestHandler(t)

	resp := postJSON(t, ts, "/api/thought/step", nil)
	expectStatus(t, resp, http.StatusConflict)
	resp.Body.Close()

	seed(t, ts)
	resp = postJSON(t, ts, "/api/thought/step", nil)
	expectStatus(t, resp, http.StatusOK)
	var th reasoning.Thought
	decodeJSON(t, resp, &th)
	if th.From != "dog" || th.To != "animal" {
		t.Errorf("thought = %+v", th)
	}
}

func TestHistory(t *testing.T) {
	_, ts := newTestHandler(t)
	seed(t, ts)
	postJSON(t, ts, "/api/spread", map[string]string{"source": "dog"}).Body.Close()
	postJSON(t, ts, "/api/infer", inferRequest{Source: "dog", Target: "food", Kind: "causal"}).Body.Close()

	resp := getJSON(t, ts, "/api/history?kind=inference")
	var records []reasoning.Record
	decodeJSON(t, resp, &records)
	if len(records) != 1 || records[0].Kind != reasoning.EventInference {
		t.Errorf("records = %+v", records)
	}

	resp = getJSON(t, ts, "/api/history?limit=1")
	decodeJSON(t, resp, &records)
	if len(records) != 1 || records[0].Kind != reasoning.EventInference {
		t.Errorf("limited records = %+v", records)
	}

	resp = getJSON(t, ts, "/api/history?source=store")
	expectStatus(t, resp, http.StatusServiceUnavailable)
	resp.Body.Close()
}

type stubHistory struct {
	kind reasoning.EventKind
	mu   sync.Mutex
}

func (s *stubHistory) RecentHistory(_ context.Context, kind reasoning.EventKind, _ int) ([]reasoning.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.kind = kind
	return []reasoning.Record{{ID: "persisted", Kind: reasoning.EventDecision}}, nil
}

func TestHistoryFromStore(t *testing.T) {
	stub := &stubHistory{}
	_, ts := newTestHandler(t, func(h *Handler) { h.SetHistoryReader(stub) })

	resp := getJSON(t, ts, "/api/history?source=store&kind=decision")
	var records []reasoning.Record
	decodeJSON(t, resp, &records)
	stub.mu.Lock()
	defer stub.mu.Unlock()
	if len(records) != 1 || records[0].ID != "persisted" || stub.kind != reasoning.EventDecision {
		t.Errorf("records = %+v, kind = %q", records, stub.kind)
	}
}

type stubSnapshots struct {
	edges int
	err   error
	mu    sync.Mutex
}

func (s *stubSnapshots) Write(_ context.Context, g snapshot.Graph) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.edges = len(g.Edges)
	return s.err
}

func (s *stubSnapshots) written() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.edges
}

func TestSnapshot(t *testing.T) {
	_, ts := newTestHandler(t)
	seed(t, ts)

	resp := getJSON(t, ts, "/api/snapshot")
	var g snapshot.Graph
	decodeJSON(t, resp, &g)
	if len(g.Nodes) != 3 || len(g.Edges) != 2 {
		t.Errorf("snapshot = %d nodes, %d edges", len(g.Nodes), len(g.Edges))
	}

	resp = postJSON(t, ts, "/api/snapshot/export", nil)
	expectStatus(t, resp, http.StatusServiceUnavailable)
	resp.Body.Close()
}

func TestSnapshotExport(t *testing.T) {
	sink := &stubSnapshots{}
	_, ts := newTestHandler(t, func(h *Handler) { h.SetSnapshotWriter(sink) })
	seed(t, ts)

	resp := postJSON(t, ts, "/api/snapshot/export", nil)
	expectStatus(t, resp, http.StatusOK)
	var counts map[string]int
	decodeJSON(t, resp, &counts)
	if counts["nodes"] != 3 || counts["edges"] != 2 || sink.written() != 2 {
		t.Errorf("counts = %v, sink edges = %d", counts, sink.written())
	}

	failing := &stubSnapshots{err: errors.New("neo4j down")}
	_, ts = newTestHandler(t, func(h *Handler) { h.SetSnapshotWriter(failing) })
	resp = postJSON(t, ts, "/api/snapshot/export", nil)
	expectStatus(t, resp, http.StatusBadGateway)
	resp.Body.Close()
}

func TestRelationTypes(t *testing.T) {
	_, ts := newTestHandler(t)

	resp := postJSON(t, ts, "/api/relation-types", relationTypeRequest{ID: "orbits", Label: "orbits", Description: "circles around"})
	expectStatus(t, resp, http.StatusCreated)
	resp.Body.Close()

	resp = postJSON(t, ts, "/api/relation-types", relationTypeRequest{ID: "orbits"})
	expectStatus(t, resp, http.StatusBadRequest)
	resp.Body.Close()

	resp = getJSON(t, ts, "/api/relation-types")
	var types []map[string]string
	decodeJSON(t, resp, &types)
	if len(types) != 8 || types[7]["id"] != "orbits" {
		t.Errorf("relation types = %+v", types)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	_, ts := newTestHandler(t)
	postJSON(t, ts, "/api/spread", map[string]string{"source": "ghost"}).Body.Close()

	resp := getJSON(t, ts, "/metrics")
	expectStatus(t, resp, http.StatusOK)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if !strings.Contains(string(body), `semnet_noop_total{operation="spread",reason="unknown_concept"} 1`) {
		t.Errorf("no-op counter missing from metrics:\n%s", body)
	}
}
