// Package api serves the report endpoint: machines submit run results and
// dashboards query them back.
package api

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/mufat/mufat/pkg/config"
	"github.com/mufat/mufat/pkg/report"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const shutdownTimeout = 10 * time.Second

// Server exposes the report server lifecycle.
type Server interface {
	Start(ctx context.Context) error
	Stop() error
}

// Compile-time interface check.
var _ Server = (*server)(nil)

type server struct {
	log        logrus.FieldLogger
	cfg        *config.APIConfig
	store      *report.Store
	redis      redis.UniversalClient
	httpServer *http.Server
	wg         sync.WaitGroup

	// submitMu serializes the load-merge-save of submissions.
	submitMu sync.Mutex
}

// NewServer creates a new report server.
func NewServer(
	log logrus.FieldLogger,
	cfg *config.APIConfig,
) Server {
	return &server{
		log: log.WithField("component", "api"),
		cfg: cfg,
	}
}

// Start opens the report store and starts the HTTP server.
func (s *server) Start(ctx context.Context) error {
	cache, err := s.newCache(ctx)
	if err != nil {
		return fmt.Errorf("creating report cache: %w", err)
	}

	s.store = report.NewStore(s.log, &s.cfg.Database, cache)
	if err := s.store.Start(ctx); err != nil {
		return fmt.Errorf("starting store: %w", err)
	}

	s.httpServer = &http.Server{
		Addr:              s.cfg.Server.Listen,
		Handler:           s.buildRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Bind the listener synchronously so we fail fast on port conflicts.
	ln, err := net.Listen("tcp", s.cfg.Server.Listen)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.cfg.Server.Listen, err)
	}

	s.wg.Add(1)

	go func() {
		defer s.wg.Done()

		s.log.WithField("listen", s.cfg.Server.Listen).
			Info("Report server starting")

		if err := s.httpServer.Serve(ln); err != nil &&
			err != http.ErrServerClosed {
			s.log.WithError(err).Error("HTTP server error")
		}
	}()

	return nil
}

// newCache builds the report cache selected by the configuration.
func (s *server) newCache(ctx context.Context) (report.Cache, error) {
	switch s.cfg.Cache.Driver {
	case "redis":
		opts, err := redis.ParseURL(s.cfg.Cache.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("parsing redis url: %w", err)
		}

		client := redis.NewClient(opts)
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()

			return nil, fmt.Errorf("connecting to redis: %w", err)
		}

		s.redis = client

		return report.NewRedisCache(client), nil
	case "lru":
		return report.NewLRUCache(s.cfg.Cache.Size)
	default:
		return report.NopCache{}, nil
	}
}

// Stop gracefully shuts down the HTTP server and closes the store.
func (s *server) Stop() error {
	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(
			context.Background(), shutdownTimeout,
		)
		defer cancel()

		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.log.WithError(err).Warn("HTTP server shutdown error")
		}
	}

	s.wg.Wait()

	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			s.log.WithError(err).Warn("Redis cache close error")
		}
	}

	if s.store != nil {
		if err := s.store.Stop(); err != nil {
			return fmt.Errorf("stopping store: %w", err)
		}
	}

	s.log.Info("Report server stopped")

	return nil
}
