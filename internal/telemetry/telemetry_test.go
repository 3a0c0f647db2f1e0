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

package telemetry_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/jaycherian/go-media-narrator/internal/cloud"
	"github.com/jaycherian/go-media-narrator/internal/telemetry"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, telemetry.ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, telemetry.ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, telemetry.ParseLevel(" error "))
	assert.Equal(t, slog.LevelInfo, telemetry.ParseLevel("chatty"))
}

func TestHandlerUsesCloudLoggingKeys(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(telemetry.NewHandler(&buf, slog.LevelInfo))

	tp := sdktrace.NewTracerProvider()
	defer func() { _ = tp.Shutdown(context.Background()) }()
	ctx, span := tp.Tracer("telemetry-test").Start(context.Background(), "log")
	logger.With("component", "test").WarnContext(ctx, "disk almost full", "free_mb", 12)
	span.End()
	logger.Debug("dropped below the level")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry), buf.String())
	assert.Equal(t, "WARNING", entry["severity"])
	assert.Equal(t, "disk almost full", entry["message"])
	assert.Contains(t, entry, "timestamp")
	assert.Equal(t, "test", entry["component"])
	assert.Equal(t, span.SpanContext().TraceID().String(), entry["logging.googleapis.com/trace"])
}

func TestSetupLoggingWritesRotatedFile(t *testing.T) {
	previous := slog.Default()
	defer slog.SetDefault(previous)

	file := filepath.Join(t.TempDir(), "logs", "narrator.log")
	closer, err := telemetry.SetupLogging(cloud.LoggingConfig{Level: "info", File: file, MaxSizeMB: 1, MaxBackups: 1, MaxAgeDays: 1})
	require.NoError(t, err)
	telemetry.Component("test").Info("hello file")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"message":"hello file"`)
	assert.Contains(t, string(data), `"component":"test"`)
}

func TestSetupOpenTelemetryWithoutExporter(t *testing.T) {
	config := cloud.NewConfig()
	shutdown, err := telemetry.SetupOpenTelemetry(context.Background(), config)
	require.NoError(t, err)
	defer func() { assert.NoError(t, shutdown(context.Background())) }()

	ctx, span := otel.Tracer("telemetry-test").Start(context.Background(), "span-check")
	assert.True(t, span.SpanContext().IsValid(), "a real tracer provider is installed")
	otelslog.NewLogger("telemetry-test").InfoContext(ctx, "traced log line")
	span.End()
}
