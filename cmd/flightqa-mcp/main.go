package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"

	"github.com/flightqa/flightqa/internal/app"
	"github.com/flightqa/flightqa/internal/config"
	"github.com/flightqa/flightqa/internal/mcpserver"
	"github.com/flightqa/flightqa/internal/observability"
)

func main() {
	httpAddr := flag.String("http", "", "serve streamable HTTP on this address instead of stdio")
	timeout := flag.Duration("timeout", 2*time.Minute, "per-call timeout for search_flights")
	flag.Parse()

	cfg, err := config.LoadFromEnv("flightqa-mcp")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	// stdout carries the stdio transport.
	logger := observability.NewLogger(cfg, os.Stderr)
	pipeline, err := app.Build(context.Background(), cfg, app.Models{}, logger)
	if err != nil {
		logger.Error("failed to initialize pipeline", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = pipeline.Close() }()

	mcpServer, err := mcpserver.New(mcpserver.Dependencies{
		Answerer: pipeline.Composer,
		Airlines: pipeline.Catalog,
		Logger:   logger,
		Timeout:  *timeout,
	})
	if err != nil {
		logger.Error("failed to build mcp server", slog.Any("error", err))
		os.Exit(1)
	}

	if *httpAddr == "" {
		logger.Info("serving mcp over stdio")
		if err := server.ServeStdio(mcpServer); err != nil {
			logger.Error("mcp stdio server failed", slog.Any("error", err))
			os.Exit(1)
		}
		return
	}

	httpServer := server.NewStreamableHTTPServer(mcpServer)
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("starting mcp http server", slog.String("addr", *httpAddr))
		if err := httpServer.Start(*httpAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("mcp http server failed", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("shutting down mcp http server")
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", slog.Any("error", err))
		os.Exit(1)
	}
}
