/*
Copyright (c) 2025 Tobias Schäfer. All rights reserved.
Licensed under the MIT License, see LICENSE file in the project root for details.
*/
package service

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tschaefer/filterctl/internal/engine"
	"github.com/tschaefer/filterctl/internal/logger"
	"github.com/tschaefer/filterctl/internal/metrics"
	"github.com/tschaefer/filterctl/internal/record"
	"github.com/tschaefer/filterctl/internal/rule"
	"github.com/tschaefer/filterctl/internal/version"
)

const shutdownTimeout = 5 * time.Second

// Watcher runs beside the installed filters until its context is done.
type Watcher interface {
	Watch(ctx context.Context) error
}

// Service installs the rules through the engine, holds them until the
// context is done and removes them again.
type Service struct {
	Engine   *engine.Engine
	Rules    []*rule.Rule
	Recorder *record.Recorder
	Metrics  *metrics.Recorder
	Watchers []Watcher
	Logger   *slog.Logger

	// MetricsAddress enables the /metrics endpoint when set.
	MetricsAddress string
}

func NewService(logger *logger.Logger, eng *engine.Engine, rules []*rule.Rule) (*Service, error) {
	if eng == nil {
		return nil, errors.New("no filter engine")
	}
	slog.SetDefault(logger.Logger)

	return &Service{
		Engine: eng,
		Rules:  rules,
		Logger: logger.Logger,
	}, nil
}

func (s *Service) Run(ctx context.Context) bool {
	s.Logger.Info("Starting filterctl.",
		"release", version.Release(), "commit", version.Commit(), "backend", s.Engine.Backend(),
	)

	if err := s.Engine.Initialize(); err != nil {
		return false
	}
	if s.Recorder != nil {
		s.Recorder.Bind(s.Engine.Backend(), s.Engine.ID().String())
	}

	if _, err := s.Engine.AddFilters(s.Rules); err != nil {
		s.cleanup()
		return false
	}

	g, gctx := errgroup.WithContext(ctx)
	s.startMetricsServer(gctx, g)
	for _, w := range s.Watchers {
		g.Go(func() error {
			return w.Watch(gctx)
		})
	}

	return s.handleShutdown(ctx, gctx, g)
}

func (s *Service) startMetricsServer(ctx context.Context, g *errgroup.Group) {
	if s.MetricsAddress == "" || s.Metrics == nil {
		return
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", s.Metrics.Handler())
	server := &http.Server{
		Addr:              s.MetricsAddress,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g.Go(func() error {
		s.Logger.Info("Serving metrics.", "address", s.MetricsAddress)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.Logger.Error("Metrics server failed.", "error", err)
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
}

func (s *Service) handleShutdown(ctx, gctx context.Context, g *errgroup.Group) bool {
	<-gctx.Done()
	if ctx.Err() != nil {
		s.Logger.Info("Shutting down filterctl.")
	}

	tranquil := true
	if err := g.Wait(); err != nil {
		s.Logger.Error("Background task returned error during shutdown.", "error", err)
		tranquil = false
	}

	if !s.cleanup() {
		tranquil = false
	}
	return tranquil
}

func (s *Service) cleanup() bool {
	if err := s.Engine.Cleanup(); err != nil {
		s.Logger.Error("Failed to clean up filters.", "error", err)
		return false
	}
	return true
}
