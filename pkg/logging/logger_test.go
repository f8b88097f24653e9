// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// Tests for the logging package

package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// ParseLevel Tests
// =============================================================================

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"debug", slog.LevelDebug, false},
		{"", slog.LevelInfo, false},
		{"INFO", slog.LevelInfo, false},
		{"warning", slog.LevelWarn, false},
		{" error ", slog.LevelError, false},
		{"loud", slog.LevelInfo, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

// =============================================================================
// New Tests
// =============================================================================

func TestNew_JSONOutput(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Output: &buf, Format: FormatJSON, Service: "insightd"})
	logger.Info("pack built", "facts", 12)

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "pack built", rec["msg"])
	assert.Equal(t, "insightd", rec["service"])
	assert.Equal(t, float64(12), rec["facts"])
}

func TestNew_AutoFormatIsJSONForNonTerminal(t *testing.T) {
	var buf bytes.Buffer
	New(Config{Output: &buf}).Info("hello")
	assert.True(t, strings.HasPrefix(buf.String(), "{"))
}

func TestNew_TextOutput(t *testing.T) {
	var buf bytes.Buffer
	New(Config{Output: &buf, Format: FormatText}).Info("hello", "k", "v")
	assert.Contains(t, buf.String(), "msg=hello")
	assert.Contains(t, buf.String(), "k=v")
}

func TestNew_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Output: &buf, Format: FormatText, Level: slog.LevelWarn})
	logger.Info("hidden")
	logger.Warn("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}

func TestNew_Quiet(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Output: &buf, Quiet: true})
	logger.Error("nothing")
	assert.Empty(t, buf.String())
	assert.NoError(t, logger.Close())
}

func TestNew_LogDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	logger := New(Config{Quiet: true, LogDir: dir, Service: "insightd"})
	logger.Info("to file", "dataset_id", "sales")
	require.NoError(t, logger.Close())

	files, err := filepath.Glob(filepath.Join(dir, "insightd_*.log"))
	require.NoError(t, err)
	require.Len(t, files, 1)

	data, err := os.ReadFile(files[0])
	require.NoError(t, err)
	assert.Contains(t, string(data), `"dataset_id":"sales"`)
}

func TestNew_LogDirUnwritable(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o600))

	var buf bytes.Buffer
	logger := New(Config{Output: &buf, Format: FormatText, LogDir: filepath.Join(blocker, "logs")})
	assert.Contains(t, buf.String(), "File logging disabled")
	assert.NoError(t, logger.Close())
}

// =============================================================================
// Exporter Tests
// =============================================================================

func TestExporter_ReceivesSlogRecords(t *testing.T) {
	exp := NewBufferedExporter()
	logger := New(Config{Quiet: true, Service: "insightd", Exporter: exp})

	child := logger.Slog().With("request_id", "r1").WithGroup("pack")
	child.Warn("Report generation failed, using fallback report", "facts", 3)
	logger.Debug("below level")

	entries := exp.Entries()
	require.Len(t, entries, 1)
	e := entries[0]
	assert.Equal(t, slog.LevelWarn, e.Level)
	assert.Equal(t, "insightd", e.Service)
	assert.Equal(t, "r1", e.Attrs["request_id"])
	assert.Equal(t, int64(3), e.Attrs["pack.facts"])
	assert.NotContains(t, e.Attrs, "service")

	assert.Len(t, exp.Find("Report generation failed, using fallback report"), 1)
	assert.Empty(t, exp.Find("missing"))
}

func TestExporter_WithStderr(t *testing.T) {
	var buf bytes.Buffer
	exp := NewBufferedExporter()
	logger := New(Config{Output: &buf, Format: FormatJSON, Exporter: exp})
	logger.Info("both")

	assert.Contains(t, buf.String(), "both")
	assert.Len(t, exp.Entries(), 1)
}

func TestBufferedExporter_EntriesIsCopy(t *testing.T) {
	exp := NewBufferedExporter()
	require.NoError(t, exp.Export(context.Background(), LogEntry{Message: "a"}))
	entries := exp.Entries()
	entries[0].Message = "changed"
	assert.Equal(t, "a", exp.Entries()[0].Message)
}

func TestBufferedExporter_Concurrent(t *testing.T) {
	exp := NewBufferedExporter()
	logger := New(Config{Quiet: true, Exporter: exp})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			logger.Info("concurrent", "n", n)
		}(i)
	}
	wg.Wait()
	assert.Len(t, exp.Entries(), 20)
}

type failingExporter struct {
	BufferedExporter
}

func (f *failingExporter) Flush(context.Context) error { return errors.New("flush failed") }
func (f *failingExporter) Close() error                { return errors.New("close failed") }

func TestLogger_CloseErrors(t *testing.T) {
	logger := New(Config{Quiet: true, Exporter: &failingExporter{}})
	err := logger.Close()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "flush failed")
	assert.Contains(t, err.Error(), "close failed")

	assert.NoError(t, logger.Close(), "second close is a no-op")
}

// =============================================================================
// Helper Tests
// =============================================================================

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(home, ".aleutian/logs"), expandPath("~/.aleutian/logs"))
	assert.Equal(t, "/var/log", expandPath("/var/log"))
	assert.Equal(t, "relative", expandPath("relative"))
}
