package bootstrap

import (
	"bytes"
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
)

func captureDefaultLogger(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	previous := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(previous) })
	return &buf
}

func TestBuildAPIWarnsWhenEmbeddedConsumerEnabled(t *testing.T) {
	t.Setenv("DATABASE_DRIVER", "sqlite")
	t.Setenv("SQLITE_PATH", filepath.Join(t.TempDir(), "votes.db"))
	t.Setenv("ENABLE_EMBEDDED_CONSUMER", "true")
	logs := captureDefaultLogger(t)

	app, err := BuildAPI(context.Background())
	if err != nil {
		t.Fatalf("build api failed: %v", err)
	}
	defer func() { _ = app.Close() }()

	if app.consumer == nil {
		t.Fatalf("expected embedded consumer to be wired")
	}
	if !strings.Contains(logs.String(), `"event":"embedded_consumer_enabled"`) {
		t.Fatalf("expected embedded consumer warning, got %s", logs.String())
	}
}

func TestBuildAPIWithoutEmbeddedConsumer(t *testing.T) {
	t.Setenv("DATABASE_DRIVER", "sqlite")
	t.Setenv("SQLITE_PATH", filepath.Join(t.TempDir(), "votes.db"))
	logs := captureDefaultLogger(t)

	app, err := BuildAPI(context.Background())
	if err != nil {
		t.Fatalf("build api failed: %v", err)
	}
	defer func() { _ = app.Close() }()

	if app.consumer != nil {
		t.Fatalf("expected no embedded consumer by default")
	}
	if strings.Contains(logs.String(), "embedded_consumer_enabled") {
		t.Fatalf("unexpected embedded consumer warning: %s", logs.String())
	}
}
