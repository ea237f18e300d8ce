package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid config")

// Config is the top-level configuration structure.
type Config struct {
	Server    ServerConfig    `json:"server" yaml:"server"`
	Engine    EngineConfig    `json:"engine" yaml:"engine"`
	Discovery DiscoveryConfig `json:"discovery" yaml:"discovery"`
	Thought   ThoughtConfig   `json:"thought" yaml:"thought"`
	History   HistoryConfig   `json:"history" yaml:"history"`
	Database  DatabaseConfig  `json:"database" yaml:"database"`
}

type ServerConfig struct {
	Port     int    `json:"port" yaml:"port"`
	LogLevel string `json:"log_level" yaml:"log_level"`
}

type EngineConfig struct {
	WorkingMemoryCapacity int     `json:"working_memory_capacity" yaml:"working_memory_capacity"`
	HistoryCapacity       int     `json:"history_capacity" yaml:"history_capacity"`
	DecayRate             float64 `json:"decay_rate" yaml:"decay_rate"` // per second
}

type DiscoveryConfig struct {
	Enabled         bool    `json:"enabled" yaml:"enabled"`
	IntervalSeconds int     `json:"interval_seconds" yaml:"interval_seconds"`
	Threshold       float64 `json:"threshold" yaml:"threshold"`
	MaxNew          int     `json:"max_new" yaml:"max_new"`
}

type ThoughtConfig struct {
	Enabled         bool `json:"enabled" yaml:"enabled"`
	IntervalSeconds int  `json:"interval_seconds" yaml:"interval_seconds"`
}

type HistoryConfig struct {
	FlushIntervalSeconds int `json:"flush_interval_seconds" yaml:"flush_interval_seconds"`
}

type DatabaseConfig struct {
	Postgres PostgresConfig `json:"postgres" yaml:"postgres"`
	Neo4j    Neo4jConfig    `json:"neo4j" yaml:"neo4j"`
	Redis    RedisConfig    `json:"redis" yaml:"redis"`
}

type PostgresConfig struct {
	DSN string `json:"dsn" yaml:"dsn"`
}

type Neo4jConfig struct {
	URI      string `json:"uri" yaml:"uri"`
	User     string `json:"user" yaml:"user"`
	Password string `json:"password" yaml:"password"`
}

type RedisConfig struct {
	URL string `json:"url" yaml:"url"`
}

// Default returns the configuration used when a file leaves a field out.
func Default() *Config {
	return &Config{
		Server: ServerConfig{Port: 8080, LogLevel: "info"},
		Engine: EngineConfig{
			WorkingMemoryCapacity: 7,
			HistoryCapacity:       1000,
			DecayRate:             -math.Log(0.9) / 0.1,
		},
		Discovery: DiscoveryConfig{IntervalSeconds: 30, Threshold: 0.5, MaxNew: 10},
		Thought:   ThoughtConfig{IntervalSeconds: 5},
		History:   HistoryConfig{FlushIntervalSeconds: 10},
	}
}

// envVarRe matches ${VAR} and ${VAR:default} patterns.
var envVarRe = regexp.MustCompile(`\$\{(\w+)(?::([^}]*))?\}`)

// Load reads a JSON or YAML config file, chosen by extension, substitutes
// environment variable references and overlays the result onto Default.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	parse := Parse
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		parse = ParseYAML
	}
	cfg, err := parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse is Load without the file read, for JSON input.
func Parse(data []byte) (*Config, error) {
	return parse(data, json.Unmarshal)
}

// ParseYAML is Parse for YAML input.
func ParseYAML(data []byte) (*Config, error) {
	return parse(data, yaml.Unmarshal)
}

func parse(data []byte, unmarshal func([]byte, any) error) (*Config, error) {
	resolved := envVarRe.ReplaceAllStringFunc(string(data), func(match string) string {
		parts := envVarRe.FindStringSubmatch(match)
		if v := os.Getenv(parts[1]); v != "" {
			return v
		}
		return parts[2]
	})

	cfg := Default()
	if err := unmarshal([]byte(resolved), cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the engine cannot run with.
func (c *Config) Validate() error {
	switch {
	case c.Server.Port < 0 || c.Server.Port > 65535:
		return fmt.Errorf("%w: server.port %d", ErrInvalid, c.Server.Port)
	case c.Engine.WorkingMemoryCapacity <= 0:
		return fmt.Errorf("%w: engine.working_memory_capacity must be positive, got %d", ErrInvalid, c.Engine.WorkingMemoryCapacity)
	case c.Engine.HistoryCapacity <= 0:
		return fmt.Errorf("%w: engine.history_capacity must be positive, got %d", ErrInvalid, c.Engine.HistoryCapacity)
	case c.Engine.DecayRate < 0:
		return fmt.Errorf("%w: engine.decay_rate must not be negative", ErrInvalid)
	case c.Discovery.Enabled && c.Discovery.IntervalSeconds <= 0:
		return fmt.Errorf("%w: discovery.interval_seconds must be positive", ErrInvalid)
	case c.Discovery.MaxNew < 0:
		return fmt.Errorf("%w: discovery.max_new must not be negative", ErrInvalid)
	case c.Thought.Enabled && c.Thought.IntervalSeconds <= 0:
		return fmt.Errorf("%w: thought.interval_seconds must be positive", ErrInvalid)
	case c.Database.Postgres.DSN != "" && c.History.FlushIntervalSeconds <= 0:
		return fmt.Errorf("%w: history.flush_interval_seconds must be positive", ErrInvalid)
	}
	return nil
}

func seconds(n int) time.Duration { return time.Duration(n) * time.Second }

// DiscoveryInterval returns the auto-discovery period.
func (c *Config) DiscoveryInterval() time.Duration { return seconds(c.Discovery.IntervalSeconds) }

// ThoughtInterval returns the thought-flow period.
func (c *Config) ThoughtInterval() time.Duration { return seconds(c.Thought.IntervalSeconds) }

// FlushInterval returns the history flush period.
func (c *Config) FlushInterval() time.Duration { return seconds(c.History.FlushIntervalSeconds) }
