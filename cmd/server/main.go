// Copyright 2024 Google, LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package main is the HTTP server of Prompt to Video Live.
//
// Logic Flow:
//  1. Configuration is loaded, then logging and telemetry are initialized.
//  2. The cloud clients, the asset workflow and the session service are wired.
//  3. A gin router with OpenTelemetry and CORS middleware serves the session
//     API under /api/v1 and the direct provider endpoints under /api.
//  4. Idle sessions are expired in the background until shutdown.
//  5. On SIGINT/SIGTERM every session is closed, which ends open event
//     streams, the server drains for up to five seconds and buffered
//     telemetry is flushed.
package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/jaycherian/prompt-to-video-live/internal/telemetry"
)

func main() {
	config := GetConfig()

	closeLog := telemetry.SetupLogging(config.Application.LogFile)
	defer func() { _ = closeLog() }()
	slog.Info("Logging initialized")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTelemetry, err := telemetry.SetupOpenTelemetry(ctx, config)
	if err != nil {
		slog.Error("Failed to setup OpenTelemetry", "error", err)
		log.Fatal(err)
	}
	defer func() {
		flushCtx, flushCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer flushCancel()
		if err := shutdownTelemetry(flushCtx); err != nil {
			slog.Error("Telemetry shutdown failed", "error", err)
		}
	}()
	slog.Info("Tracing initialized")

	if err := InitState(ctx); err != nil {
		slog.Error("Failed to initialize state", "error", err)
		log.Fatal(err)
	}
	defer state.Close()
	slog.Info("Initialized State")

	go state.sessions.Run(ctx)

	srv := NewServer(state, config.Application.ListenAddress)

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("failed to listen", "error", err)
			cancel()
		}
	}()
	slog.Info("Server ready", "address", config.Application.ListenAddress)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case <-ctx.Done():
	}
	slog.Info("Shutdown Server ...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server Shutdown Failed", "error", err)
	}
	log.Println("Server exiting")
}

// NewServer returns the HTTP server for s listening on addr. Shutting it down
// closes every session, so event streams end instead of holding the drain open.
func NewServer(s *StateManager, addr string) *http.Server {
	srv := &http.Server{Addr: addr, Handler: NewRouter(s)}
	srv.RegisterOnShutdown(s.sessions.Close)
	return srv
}

// NewRouter builds the gin engine serving every route of the application.
func NewRouter(s *StateManager) *gin.Engine {
	r := gin.Default()
	r.Use(otelgin.Middleware(s.config.Application.Name))
	r.Use(cors.Default())

	api := r.Group("/api")
	{
		ProviderRouter(api, s)
	}

	apiV1 := r.Group("/api/v1")
	{
		CatalogRouter(apiV1)
		SessionRouter(apiV1, s)
		AssetRouter(apiV1, s)
		Dashboard(apiV1, s)
	}
	return r
}
