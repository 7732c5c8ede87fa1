package agentmon

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func openTestMonitor(t *testing.T) *Monitor {
	t.Helper()
	dir := t.TempDir()
	m, err := Open(context.Background(), filepath.Join(dir, "agentmon.db"), Options{
		LogsDir:     filepath.Join(dir, "logs"),
		GracePeriod: 100 * time.Millisecond,
		ArchiveDSN:  filepath.Join(dir, "archive.db"),
	})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func TestOpenAndOperate(t *testing.T) {
	m := openTestMonitor(t)
	ctx := context.Background()

	if _, err := m.Register(ctx, os.Getpid(), "coder", "STORY-1", "sess-1"); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := m.Register(ctx, os.Getpid(), "coder", "STORY-1", "sess-1"); !errors.Is(err, ErrDuplicateSession) {
		t.Fatalf("expected ErrDuplicateSession, got %v", err)
	}
	hb, err := m.Heartbeat(ctx, "sess-1")
	if err != nil {
		t.Fatalf("heartbeat: %v", err)
	}
	if hb.Status != "alive" {
		t.Fatalf("unexpected heartbeat: %+v", hb)
	}
	list, err := m.List(ctx, false)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 || list[0].SessionID != "sess-1" {
		t.Fatalf("unexpected list: %+v", list)
	}
	rep, err := m.GetMetrics(ctx, "sess-1", 0)
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	if rep.Stats.SampleCount != 1 {
		t.Fatalf("unexpected stats: %+v", rep.Stats)
	}
	if _, err := m.GetLogs("sess-1", 10); !errors.Is(err, ErrLogNotFound) {
		t.Fatalf("expected ErrLogNotFound, got %v", err)
	}
}

func TestHandlerMounts(t *testing.T) {
	m := openTestMonitor(t)

	srv := httptest.NewServer(Handler(m, "/monitor", false))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/monitor/agents")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list status %d", resp.StatusCode)
	}
}
