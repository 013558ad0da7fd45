package logging

import (
	"context"
	"errors"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/lojinha-app/storefront/internal/config"
	log "github.com/sirupsen/logrus"
)

func TestLogFormatterRendersRequestIDAndOrderedFields(t *testing.T) {
	entry := &log.Entry{
		Logger:  log.New(),
		Time:    time.Date(2026, 3, 2, 10, 4, 11, 0, time.UTC),
		Level:   log.WarnLevel,
		Message: "session resolution failed\n",
		Data: log.Fields{
			"request_id": "a1b2c3d4",
			"error":      errors.New("timeout"),
			"component":  "session",
			"ignored":    "x",
		},
		Caller: &runtime.Frame{File: "/src/sdk/session/gate.go", Line: 42},
	}

	out, err := (&LogFormatter{}).Format(entry)
	if err != nil {
		t.Fatalf("Format returned error: %v", err)
	}
	want := "[2026-03-02 10:04:11] [a1b2c3d4] [warn ] [gate.go:42] session resolution failed component=session error=timeout\n"
	if string(out) != want {
		t.Fatalf("unexpected output\nwant %q\ngot  %q", want, string(out))
	}
}

func TestLogFormatterWithoutRequestID(t *testing.T) {
	entry := &log.Entry{Logger: log.New(), Time: time.Now(), Level: log.InfoLevel, Message: "ready"}
	out, err := (&LogFormatter{}).Format(entry)
	if err != nil {
		t.Fatalf("Format returned error: %v", err)
	}
	if !strings.Contains(string(out), "[--------] [info ] ready") {
		t.Fatalf("expected placeholder request id, got %q", string(out))
	}
}

func TestResolveLogDirectoryUsesSessionDir(t *testing.T) {
	t.Setenv("WRITABLE_PATH", "")
	t.Setenv("writable_path", "")
	dir := t.TempDir()
	got := ResolveLogDirectory(&config.Config{SessionDir: dir})
	if got != filepath.Join(dir, "logs") {
		t.Fatalf("expected logs under session dir, got %q", got)
	}

	t.Setenv("WRITABLE_PATH", dir)
	if got = ResolveLogDirectory(nil); got != filepath.Join(dir, "logs") {
		t.Fatalf("expected WRITABLE_PATH to win, got %q", got)
	}
}

func TestEnsureRequestIDKeepsExisting(t *testing.T) {
	ctx := WithRequestID(context.Background(), "deadbeef")
	got, id := EnsureRequestID(ctx)
	if id != "deadbeef" || got != ctx {
		t.Fatalf("expected existing request id to be kept, got %q", id)
	}
	_, fresh := EnsureRequestID(context.Background())
	if len(fresh) != 8 {
		t.Fatalf("expected fresh 8 character id, got %q", fresh)
	}
}
