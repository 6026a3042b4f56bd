// Copyright (C) 2025 SpecVault Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See <https://www.gnu.org/licenses/> for the full license text.

// Command specvault starts the SpecVault versioning API server.
//
// SpecVault manages structured BDD test documents whose publication passes
// through a review gate:
//
//   - snapshot building and diffing at feature/scenario/step granularity
//   - semantic version bump classification with synthesized release notes
//   - a PENDING -> APPROVED | REJECTED approval state machine with a
//     project-level edit lock
//
// Usage:
//
//	specvault serve
//	specvault serve --port 9090 --data-dir /var/lib/specvault
//
// Example requests:
//
//	# Health check
//	curl http://localhost:8080/v1/versioning/health
//
//	# Publish a project tree for review
//	curl -X POST http://localhost:8080/v1/versioning/projects/p1/publish \
//	  -H "Content-Type: application/json" \
//	  -d '{"createdBy": "u1", "project": {"id": "p1", "name": "Checkout", "features": [...]}}'
//
//	# Approve the pending version
//	curl -X POST http://localhost:8080/v1/versioning/versions/<id>/approve \
//	  -H "Content-Type: application/json" \
//	  -d '{"reviewerId": "u2"}'
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

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"golang.org/x/sync/errgroup"

	"github.com/specvault/specvault/pkg/logging"
	"github.com/specvault/specvault/services/versioning"
	"github.com/specvault/specvault/services/versioning/storage/badgerstore"
	"github.com/specvault/specvault/services/versioning/telemetry"
)

func main() {
	root := &cobra.Command{
		Use:   "specvault",
		Short: "SpecVault BDD document versioning service",
	}
	root.AddCommand(newServeCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newServeCmd() *cobra.Command {
	var (
		port          int
		dataDir       string
		logDir        string
		traceExporter string
		inMemory      bool
		debug         bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the versioning API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(port, dataDir, logDir, traceExporter, inMemory, debug)
		},
	}

	cmd.Flags().IntVar(&port, "port", 8080, "Port to listen on")
	cmd.Flags().StringVar(&dataDir, "data-dir", "~/.specvault/data", "Directory for the version store")
	cmd.Flags().StringVar(&logDir, "log-dir", "", "Directory for log files (disabled when empty)")
	cmd.Flags().StringVar(&traceExporter, "trace-exporter", "none", "Span exporter: stdout or none")
	cmd.Flags().BoolVar(&inMemory, "in-memory", false, "Run without disk persistence (development only)")
	cmd.Flags().BoolVar(&debug, "debug", false, "Enable debug logging and gin debug mode")

	return cmd
}

func serve(port int, dataDir, logDir, traceExporter string, inMemory, debug bool) error {
	level := logging.LevelInfo
	if debug {
		level = logging.LevelDebug
	}
	logger := logging.New(logging.Config{
		Level:   level,
		LogDir:  logDir,
		Service: "versioning",
	})
	defer logger.Close()

	if debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	shutdownTracing, err := telemetry.InitTracing(context.Background(), telemetry.TracingConfig{
		ServiceName:    "specvault",
		ServiceVersion: versioning.ServiceVersion,
		Exporter:       traceExporter,
	})
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Warn("trace shutdown", "error", err)
		}
	}()

	storeCfg := badgerstore.DefaultConfig()
	storeCfg.Path = expandHome(dataDir)
	storeCfg.InMemory = inMemory
	storeCfg.Logger = logger.Slog()

	db, err := badgerstore.OpenDB(storeCfg)
	if err != nil {
		return fmt.Errorf("open version store: %w", err)
	}
	defer db.Close()

	svc := versioning.NewService(badgerstore.NewVersionStore(db), versioning.DefaultServiceConfig())
	handlers := versioning.NewHandlers(svc)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("specvault"))
	if debug {
		router.Use(gin.Logger())
	}

	v1 := router.Group("/v1")
	versioning.RegisterRoutes(v1, handlers)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("versioning API listening", "port", port, "in_memory", inMemory)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	logger.Info("shutdown complete")
	return nil
}

func expandHome(path string) string {
	if len(path) > 0 && path[0] == '~' {
		if home, err := os.UserHomeDir(); err == nil {
			return home + path[1:]
		}
	}
	return path
}
