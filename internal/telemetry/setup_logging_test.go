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

package telemetry

import (
	"bytes"
	"context"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
)

func jsonLogger(buf *bytes.Buffer) slog.Handler {
	return slog.NewJSONHandler(buf, &slog.HandlerOptions{ReplaceAttr: replacer, Level: slog.LevelInfo})
}

func TestReplacerUsesCloudLoggingKeys(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(jsonLogger(&buf))

	logger.Warn("disk low", "free", 3)

	out := buf.String()
	assert.Contains(t, out, `"severity":"WARNING"`)
	assert.Contains(t, out, `"message":"disk low"`)
	assert.Contains(t, out, `"timestamp":`)
	assert.NotContains(t, out, `"level":`)
}

func TestSpanContextHandlerAddsTraceFields(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(handlerWithSpanContext(jsonLogger(&buf)))

	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    trace.TraceID{0x0a, 0x0b},
		SpanID:     trace.SpanID{0x01},
		TraceFlags: trace.FlagsSampled,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	logger.InfoContext(ctx, "with span")
	assert.Contains(t, buf.String(), sc.TraceID().String())
	assert.Contains(t, buf.String(), `"logging.googleapis.com/trace_sampled":true`)

	buf.Reset()
	logger.With("scene", 2).InfoContext(context.Background(), "without span")
	assert.NotContains(t, buf.String(), "logging.googleapis.com/trace")
	assert.Contains(t, buf.String(), `"scene":2`)
}

func TestFanoutHandlerRespectsEachLevel(t *testing.T) {
	var info, errs bytes.Buffer
	handler := fanoutHandler{
		slog.NewJSONHandler(&info, &slog.HandlerOptions{Level: slog.LevelInfo}),
		slog.NewJSONHandler(&errs, &slog.HandlerOptions{Level: slog.LevelError}),
	}
	logger := slog.New(handler).WithGroup("run")

	logger.Debug("hidden")
	assert.False(t, handler.Enabled(context.Background(), slog.LevelDebug))

	logger.Info("started", "index", 0)
	logger.Error("failed", "index", 1)

	assert.Contains(t, info.String(), `"msg":"started"`)
	assert.Contains(t, info.String(), `"msg":"failed"`)
	assert.Contains(t, info.String(), `"run":{"index":0}`)
	assert.NotContains(t, errs.String(), "started")
	assert.Contains(t, errs.String(), `"msg":"failed"`)
}

func TestSetupLoggingWritesLogFile(t *testing.T) {
	previous := slog.Default()
	previousOut := log.Writer()
	t.Cleanup(func() {
		slog.SetDefault(previous)
		log.SetOutput(previousOut)
	})

	path := filepath.Join(t.TempDir(), "logs", "server.log")
	closeLog := SetupLogging(path)

	slog.Info("narration started", "index", 1)
	require.NoError(t, closeLog())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"message":"narration started"`)
	assert.Contains(t, string(data), `"severity":"INFO"`)
}
