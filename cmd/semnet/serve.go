package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nidhogg/semnet/internal/api"
	"github.com/nidhogg/semnet/internal/config"
	"github.com/nidhogg/semnet/internal/discovery"
	"github.com/nidhogg/semnet/internal/events"
	"github.com/nidhogg/semnet/internal/metrics"
	"github.com/nidhogg/semnet/internal/reasoning"
	"github.com/nidhogg/semnet/internal/scheduler"
	"github.com/nidhogg/semnet/internal/snapshot"
	"github.com/nidhogg/semnet/internal/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API and the background loops",
	RunE:  runServe,
}

// sinks holds the optional external backends.
type sinks struct {
	neo *snapshot.Neo4jSink
	pub *events.Publisher
	pg  *store.Store
}

func (s *sinks) close(ctx context.Context) {
	if s.neo != nil {
		s.neo.Close(ctx)
	}
	if s.pub != nil {
		s.pub.Close()
	}
	if s.pg != nil {
		s.pg.Close()
	}
}

// connectSinks dials every configured backend. An unreachable backend is
// logged and skipped; only a failed migration is fatal.
func connectSinks(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*sinks, error) {
	s := &sinks{}

	if cfg.Database.Neo4j.URI != "" {
		n, err := snapshot.NewNeo4jSink(cfg.Database.Neo4j.URI, cfg.Database.Neo4j.User, cfg.Database.Neo4j.Password, logger)
		if err == nil {
			err = n.Ping(ctx)
		}
		if err != nil {
			logger.Warn("Neo4j unavailable, running without snapshot export", zap.Error(err))
		} else {
			s.neo = n
		}
	}

	if cfg.Database.Redis.URL != "" {
		p, err := events.NewPublisher(cfg.Database.Redis.URL, logger)
		if err != nil {
			logger.Warn("Redis unavailable, running without discovery events", zap.Error(err))
		} else {
			s.pub = p
		}
	}

	if cfg.Database.Postgres.DSN != "" {
		pg, err := store.New(ctx, cfg.Database.Postgres.DSN, logger)
		if err != nil {
			logger.Warn("PostgreSQL unavailable, running without history persistence", zap.Error(err))
		} else {
			if _, err := pg.Migrate(ctx, migrationsDir); err != nil {
				pg.Close()
				s.close(ctx)
				return nil, fmt.Errorf("migrate: %w", err)
			}
			s.pg = pg
		}
	}
	return s, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger := newLogger(cfg.Server.LogLevel)
	defer logger.Sync()
	logger.Info("Starting semnet...", zap.String("config", configPath))

	// Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	// Reasoning engine
	engine, err := reasoning.NewEngine(reasoning.Config{
		WorkingMemoryCapacity: cfg.Engine.WorkingMemoryCapacity,
		HistoryCapacity:       cfg.Engine.HistoryCapacity,
		DecayRate:             cfg.Engine.DecayRate,
	}, logger)
	if err != nil {
		return fmt.Errorf("create engine: %w", err)
	}
	engine.SetMetrics(metrics.New(reg))

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	backends, err := connectSinks(ctx, cfg, logger)
	if err != nil {
		return err
	}

	// Background work
	ticker := scheduler.NewTicker(time.Second, logger)

	watcher := discovery.NewWatcher(engine, reasoning.DiscoverOpts{
		Threshold: cfg.Discovery.Threshold,
		MaxNew:    cfg.Discovery.MaxNew,
	}, cfg.DiscoveryInterval(), logger)
	if backends.pub != nil {
		watcher.AddSink("redis", backends.pub.Publish)
	}
	if backends.neo != nil {
		watcher.AddSink("neo4j", func(ctx context.Context, _ []reasoning.Discovery) error {
			return backends.neo.Write(ctx, engine.ExportSnapshot())
		})
	}
	if !cfg.Discovery.Enabled {
		watcher.Pause()
	}
	ticker.AddListener(watcher)

	if cfg.Thought.Enabled {
		ticker.AddListener(scheduler.NewThoughtLoop(engine, cfg.ThoughtInterval(), logger))
	}

	var flusher *scheduler.HistoryFlusher
	if backends.pg != nil {
		flusher = scheduler.NewHistoryFlusher(engine, backends.pg.SaveHistory, cfg.FlushInterval(), logger)
		ticker.AddListener(flusher)
	}

	// HTTP
	handler := api.NewHandler(engine, logger)
	handler.SetWatcher(watcher)
	handler.SetGatherer(reg)
	if backends.pg != nil {
		handler.SetHistoryReader(backends.pg)
	}
	if backends.neo != nil {
		handler.SetSnapshotWriter(backends.neo)
	}

	port := cfg.Server.Port
	if port == 0 {
		port = 8080
	}
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           handler.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ticker.Start(ctx)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("semnet listening", zap.Int("port", port))
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down semnet...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		ticker.Stop()
		err := srv.Shutdown(shutdownCtx)
		if flusher != nil {
			flusher.Flush(shutdownCtx)
		}
		backends.close(shutdownCtx)
		return err
	})
	return g.Wait()
}
