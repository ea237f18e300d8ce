package config

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestParseOverlaysDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`{"server": {"port": 9000}, "discovery": {"enabled": true, "threshold": 0.6}}`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Server.Port != 9000 || cfg.Server.LogLevel != "info" {
		t.Errorf("server = %+v", cfg.Server)
	}
	if cfg.Engine.WorkingMemoryCapacity != 7 || cfg.Engine.HistoryCapacity != 1000 {
		t.Errorf("engine defaults lost: %+v", cfg.Engine)
	}
	if math.Abs(cfg.Engine.DecayRate-1.0536) > 1e-3 {
		t.Errorf("decay rate = %v", cfg.Engine.DecayRate)
	}
	if !cfg.Discovery.Enabled || cfg.Discovery.Threshold != 0.6 || cfg.Discovery.MaxNew != 10 {
		t.Errorf("discovery = %+v", cfg.Discovery)
	}
	if cfg.DiscoveryInterval() != 30*time.Second {
		t.Errorf("discovery interval = %v", cfg.DiscoveryInterval())
	}
}

func TestEnvSubstitution(t *testing.T) {
	t.Setenv("SEMNET_TEST_REDIS", "redis://cache:6379/1")
	raw := `{
		"database": {
			"redis": {"url": "${SEMNET_TEST_REDIS}"},
			"neo4j": {"uri": "${SEMNET_TEST_UNSET:bolt://localhost:7687}", "user": "${SEMNET_TEST_UNSET_USER}"}
		}
	}`
	cfg, err := Parse([]byte(raw))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Database.Redis.URL != "redis://cache:6379/1" {
		t.Errorf("redis url = %q", cfg.Database.Redis.URL)
	}
	if cfg.Database.Neo4j.URI != "bolt://localhost:7687" {
		t.Errorf("neo4j uri = %q", cfg.Database.Neo4j.URI)
	}
	if cfg.Database.Neo4j.User != "" {
		t.Errorf("unset var without default should be empty, got %q", cfg.Database.Neo4j.User)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"zero capacity", `{"engine": {"working_memory_capacity": 0}}`},
		{"negative history", `{"engine": {"history_capacity": -5}}`},
		{"negative decay", `{"engine": {"decay_rate": -1}}`},
		{"bad port", `{"server": {"port": 70000}}`},
		{"discovery interval", `{"discovery": {"enabled": true, "interval_seconds": 0}}`},
		{"thought interval", `{"thought": {"enabled": true, "interval_seconds": -1}}`},
		{"flush interval", `{"database": {"postgres": {"dsn": "postgres://x"}}, "history": {"flush_interval_seconds": 0}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse([]byte(tt.raw)); !errors.Is(err, ErrInvalid) {
				t.Errorf("got %v, want ErrInvalid", err)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "semnet.json")
	if err := os.WriteFile(path, []byte(`{"thought": {"enabled": true}}`), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !cfg.Thought.Enabled || cfg.ThoughtInterval() != 5*time.Second {
		t.Errorf("thought = %+v", cfg.Thought)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoadYAML(t *testing.T) {
	t.Setenv("SEMNET_TEST_DSN", "postgres://semnet@db/semnet")
	path := filepath.Join(t.TempDir(), "semnet.yaml")
	raw := `
server:
  port: 9100
  log_level: debug
engine:
  history_capacity: 50
discovery:
  enabled: true
  max_new: 3
database:
  postgres:
    dsn: ${SEMNET_TEST_DSN}
`
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		t.Fatal(err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	want := Default()
	want.Server = ServerConfig{Port: 9100, LogLevel: "debug"}
	want.Engine.HistoryCapacity = 50
	want.Discovery.Enabled = true
	want.Discovery.MaxNew = 3
	want.Database.Postgres.DSN = "postgres://semnet@db/semnet"
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestParseYAMLValidates(t *testing.T) {
	if _, err := ParseYAML([]byte("engine:\n  working_memory_capacity: -1\n")); !errors.Is(err, ErrInvalid) {
		t.Errorf("got %v, want ErrInvalid", err)
	}
}
