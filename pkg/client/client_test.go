package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/agenticscrum/agentmon/internal/monitor"
	"github.com/agenticscrum/agentmon/internal/server"
	"github.com/agenticscrum/agentmon/internal/store/sqlite"
)

// newTestClient runs the real router behind httptest and points a Client at
// it, so these tests cover the wire types end to end.
func newTestClient(t *testing.T) (*Client, string) {
	t.Helper()
	dir := t.TempDir()
	db, err := sqlite.New(filepath.Join(dir, "agentmon.db"))
	if err != nil {
		t.Fatalf("sqlite open: %v", err)
	}
	if err := db.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}
	logsDir := filepath.Join(dir, "logs")
	if err := os.MkdirAll(logsDir, 0o755); err != nil {
		t.Fatalf("mkdir logs: %v", err)
	}
	mon := monitor.New(db, monitor.Options{LogsDir: logsDir, GracePeriod: 100 * time.Millisecond})
	srv := httptest.NewServer(server.NewRouter(mon, "/api", false).Handler())
	t.Cleanup(func() {
		srv.Close()
		_ = mon.Close()
	})
	return New(Config{BaseURL: srv.URL + "/api", Timeout: 5 * time.Second}), logsDir
}

func TestClientRoundTrip(t *testing.T) {
	c, logsDir := newTestClient(t)
	ctx := context.Background()

	reg, err := c.Register(ctx, os.Getpid(), "coder", "STORY-1", "sess-1")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if reg.SessionID != "sess-1" || reg.PID != os.Getpid() || !reg.Sampled {
		t.Fatalf("unexpected register result: %+v", reg)
	}

	hb, err := c.Heartbeat(ctx, "sess-1")
	if err != nil {
		t.Fatalf("heartbeat: %v", err)
	}
	if hb.Status != "alive" || hb.Metrics == nil || hb.Metrics.MemoryMB <= 0 {
		t.Fatalf("unexpected heartbeat: %+v", hb)
	}

	list, err := c.List(ctx, false)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 || list[0].Status != "running" || list[0].AgentType != "coder" {
		t.Fatalf("unexpected list: %+v", list)
	}

	if err := c.AppendEvent(ctx, "sess-1", "progress", "halfway"); err != nil {
		t.Fatalf("append event: %v", err)
	}

	rep, err := c.Metrics(ctx, "sess-1", 15)
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	if rep.WindowMinutes != 15 || rep.Stats.SampleCount != 1 || rep.Agent.SessionID != "sess-1" {
		t.Fatalf("unexpected report: %+v", rep)
	}
	foundProgress := false
	for _, ev := range rep.Events {
		if ev.Type == "progress" {
			foundProgress = true
		}
	}
	if !foundProgress {
		t.Fatalf("progress event missing: %+v", rep.Events)
	}

	if err := os.WriteFile(filepath.Join(logsDir, "sess-1.log"), []byte("x\ny\nz\n"), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}
	logs, err := c.Logs(ctx, "sess-1", 2)
	if err != nil {
		t.Fatalf("logs: %v", err)
	}
	if logs.Content != "y\nz" {
		t.Fatalf("unexpected tail: %q", logs.Content)
	}

	// a session whose process is long gone terminates without signalling
	if _, err := c.Register(ctx, 1<<30, "coder", "STORY-2", "sess-2"); err != nil {
		t.Fatalf("register dead pid: %v", err)
	}
	term, err := c.Terminate(ctx, "sess-2", false)
	if err != nil {
		t.Fatalf("terminate: %v", err)
	}
	if term.Forced || term.SessionID != "sess-2" {
		t.Fatalf("unexpected terminate result: %+v", term)
	}

	clean, err := c.Cleanup(ctx, 0)
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if clean.CleanedCount != 1 || clean.Sessions[0] != "sess-2" {
		t.Fatalf("unexpected cleanup: %+v", clean)
	}
}

func TestClientAPIErrors(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	_, err := c.Heartbeat(ctx, "ghost")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Status != http.StatusNotFound || apiErr.Kind != "session_not_found" {
		t.Fatalf("unexpected api error: %+v", apiErr)
	}

	if _, err := c.Register(ctx, os.Getpid(), "coder", "STORY-1", "dup"); err != nil {
		t.Fatalf("register: %v", err)
	}
	_, err = c.Register(ctx, os.Getpid(), "coder", "STORY-1", "dup")
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusConflict {
		t.Fatalf("expected 409 APIError, got %v", err)
	}

	_, err = c.Logs(ctx, "dup", 10)
	if !errors.As(err, &apiErr) || apiErr.Kind != "log_not_found" {
		t.Fatalf("expected log_not_found, got %v", err)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.BaseURL != "http://127.0.0.1:8420/api" || cfg.Timeout != 10*time.Second {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}
