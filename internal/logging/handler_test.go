// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Plugmesh Authors

package logging_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plugmesh/plugmesh/internal/logging"
)

func logOneRecord(t *testing.T, opts logging.Options, log func(*slog.Logger)) map[string]any {
	t.Helper()
	var buf bytes.Buffer
	opts.Writer = &buf
	logger := logging.New(opts)

	log(logger)

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	return record
}

func TestNew_StampsServiceAndVersion(t *testing.T) {
	record := logOneRecord(t, logging.Options{Service: "plugmesh", Version: "1.2.3"},
		func(l *slog.Logger) { l.Info("hello", "k", "v") })

	assert.Equal(t, "plugmesh", record["service"])
	assert.Equal(t, "1.2.3", record["version"])
	assert.Equal(t, "hello", record["msg"])
	assert.Equal(t, "v", record["k"])
}

func TestNew_PluginContextAttribution(t *testing.T) {
	ctx := logging.WithPlugin(context.Background(), "ping", "ping.plugin")
	record := logOneRecord(t, logging.Options{Service: "plugmesh", Version: "dev"},
		func(l *slog.Logger) { l.ErrorContext(ctx, "handler failed") })

	assert.Equal(t, "ping", record["plugin"])
	assert.Equal(t, "ping.plugin", record["artifact"])
}

func TestNew_PartialPluginContextOmitsEmptyFields(t *testing.T) {
	ctx := logging.WithPlugin(context.Background(), "", "bad.plugin")
	record := logOneRecord(t, logging.Options{Service: "plugmesh", Version: "dev"},
		func(l *slog.Logger) { l.WarnContext(ctx, "load failed") })

	assert.NotContains(t, record, "plugin")
	assert.Equal(t, "bad.plugin", record["artifact"])
}

func TestNew_NoPluginContextMeansNoAttribution(t *testing.T) {
	record := logOneRecord(t, logging.Options{Service: "plugmesh", Version: "dev"},
		func(l *slog.Logger) { l.Info("hello") })

	assert.NotContains(t, record, "plugin")
	assert.NotContains(t, record, "artifact")
}

func TestPluginFromContext(t *testing.T) {
	_, ok := logging.PluginFromContext(context.Background())
	assert.False(t, ok)

	ctx := logging.WithPlugin(context.Background(), "sum", "sum.plugin")
	info, ok := logging.PluginFromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, "sum", info.Name)
	assert.Equal(t, "sum.plugin", info.Artifact)
}

func TestNew_TextFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.New(logging.Options{Service: "plugmesh", Version: "dev", Format: "text", Writer: &buf})

	logger.Info("hello")

	out := buf.String()
	assert.Contains(t, out, "msg=hello")
	assert.Contains(t, out, "service=plugmesh")
}

func TestNew_LevelFiltersRecords(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.New(logging.Options{Service: "plugmesh", Version: "dev", Level: slog.LevelInfo, Writer: &buf})

	logger.Debug("too quiet")
	assert.Zero(t, buf.Len())

	logger.Info("loud enough")
	assert.NotZero(t, buf.Len())
}

func TestNew_WithAttrsAndGroupPreserveIdentity(t *testing.T) {
	record := logOneRecord(t, logging.Options{Service: "plugmesh", Version: "dev"},
		func(l *slog.Logger) {
			l.With("plugin", "ping").WithGroup("lifecycle").Info("loaded", "state", "active")
		})

	assert.Equal(t, "plugmesh", record["service"])
	assert.Equal(t, "ping", record["plugin"])
}

func TestSetup_EmptyFormatDefaultsToJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.Setup("plugmesh", "dev", "", &buf)

	logger.Info("hello")

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "hello", record["msg"])
}
