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

// Command server runs the narrator as a service: the HTTP API under /api/v1
// and, when topic_subscriptions are configured, Pub/Sub listeners that start a
// narration run for every trigger message.
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

	"github.com/jaycherian/go-media-narrator/internal/app"
	"github.com/jaycherian/go-media-narrator/internal/telemetry"
)

func main() {
	config, err := app.GetConfig()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	closer, err := telemetry.SetupLogging(config.Logging)
	if err != nil {
		log.Fatalf("failed to setup logging: %v", err)
	}
	defer closer.Close()
	slog.Info("Logging initialized", "level", config.Logging.Level)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdown, err := telemetry.SetupOpenTelemetry(ctx, config)
	if err != nil {
		slog.Error("Failed to setup OpenTelemetry", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			slog.Warn("OpenTelemetry shutdown", "error", err)
		}
	}()
	slog.Info("Tracing initialized", "exporter", config.Telemetry.Exporter)

	state, err := InitState(ctx, config)
	if err != nil {
		slog.Error("Failed to initialize state", "error", err)
		os.Exit(1)
	}
	defer state.Close()
	slog.Info("Initialized State")

	SetupListeners(ctx, state)

	srv := &http.Server{
		Addr:    ":" + config.Server.Port,
		Handler: state.Router(ctx),
	}

	// Start the server in a goroutine
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("failed to listen", "error", err)
			cancel()
		}
	}()
	slog.Info("Server ready", "port", config.Server.Port)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case <-ctx.Done():
	}
	slog.Info("Shutdown Server ...")

	// In-flight requests get 5 seconds; running narrations are cancelled and
	// recorded as failed.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server Shutdown Failed", "error", err)
	}
	cancel()

	slog.Info("Server exiting")
}
