package monitor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/agenticscrum/agentmon/internal/store"
	"github.com/agenticscrum/agentmon/internal/store/sqlite"
)

func newTestMonitor(t *testing.T) (*Monitor, *sqlite.DB, string) {
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
	m := New(db, Options{LogsDir: logsDir, GracePeriod: 200 * time.Millisecond})
	t.Cleanup(func() { _ = m.Close() })
	return m, db, logsDir
}

func TestRegisterSelf(t *testing.T) {
	m, _, _ := newTestMonitor(t)
	ctx := context.Background()

	res, err := m.Register(ctx, os.Getpid(), "coder", "STORY-7", "sess-1")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if res.SessionID != "sess-1" || res.PID != os.Getpid() {
		t.Fatalf("unexpected result: %+v", res)
	}
	if !res.Sampled || res.Metrics.MemoryMB <= 0 {
		t.Fatalf("expected a real sample of our own process, got %+v", res)
	}

	list, err := m.List(ctx, false)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected 1 session, got %d", len(list))
	}
	got := list[0]
	if got.Status != "running" || got.StoredStatus != store.StatusRunning {
		t.Fatalf("expected running/running, got %s/%s", got.Status, got.StoredStatus)
	}
	if got.AgentType != "coder" || got.StoryID != "STORY-7" {
		t.Fatalf("unexpected summary: %+v", got)
	}
}

func TestRegisterEmptySessionID(t *testing.T) {
	m, _, _ := newTestMonitor(t)
	if _, err := m.Register(context.Background(), os.Getpid(), "coder", "s", "  "); err == nil {
		t.Fatal("expected error for blank session id")
	}
}

func TestRegisterDuplicateSessionID(t *testing.T) {
	m, _, _ := newTestMonitor(t)
	ctx := context.Background()

	if _, err := m.Register(ctx, os.Getpid(), "coder", "STORY-1", "sess-1"); err != nil {
		t.Fatalf("first register: %v", err)
	}
	_, err := m.Register(ctx, os.Getpid(), "reviewer", "STORY-2", "sess-1")
	if !errors.Is(err, store.ErrDuplicateSession) {
		t.Fatalf("expected ErrDuplicateSession, got %v", err)
	}
	// first registration unchanged
	list, err := m.List(ctx, true)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 || list[0].AgentType != "coder" {
		t.Fatalf("duplicate register mutated original: %+v", list)
	}
}

func TestHeartbeatSelf(t *testing.T) {
	m, _, _ := newTestMonitor(t)
	ctx := context.Background()

	if _, err := m.Register(ctx, os.Getpid(), "coder", "STORY-1", "sess-1"); err != nil {
		t.Fatalf("register: %v", err)
	}
	first, err := m.Heartbeat(ctx, "sess-1")
	if err != nil {
		t.Fatalf("heartbeat: %v", err)
	}
	if first.Status != HeartbeatAlive || first.Metrics == nil || first.Metrics.MemoryMB <= 0 {
		t.Fatalf("unexpected heartbeat: %+v", first)
	}
	second, err := m.Heartbeat(ctx, "sess-1")
	if err != nil {
		t.Fatalf("second heartbeat: %v", err)
	}
	if second.Timestamp.Before(first.Timestamp) {
		t.Fatalf("heartbeat timestamps went backwards: %v then %v", first.Timestamp, second.Timestamp)
	}

	rep, err := m.GetMetrics(ctx, "sess-1", 0)
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	if rep.Stats.SampleCount != 2 {
		t.Fatalf("expected 2 samples, got %d", rep.Stats.SampleCount)
	}
}

func TestHeartbeatUnknownSession(t *testing.T) {
	m, _, _ := newTestMonitor(t)
	if _, err := m.Heartbeat(context.Background(), "ghost"); !errors.Is(err, store.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestGetMetricsReport(t *testing.T) {
	m, _, _ := newTestMonitor(t)
	ctx := context.Background()

	if _, err := m.Register(ctx, os.Getpid(), "coder", "STORY-1", "sess-1"); err != nil {
		t.Fatalf("register: %v", err)
	}
	for i := 0; i < 3; i++ {
		if _, err := m.Heartbeat(ctx, "sess-1"); err != nil {
			t.Fatalf("heartbeat %d: %v", i, err)
		}
	}
	rep, err := m.GetMetrics(ctx, "sess-1", 0)
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	if rep.WindowMinutes != DefaultWindowMinutes {
		t.Fatalf("expected default window, got %d", rep.WindowMinutes)
	}
	if rep.Stats.SampleCount != 3 || rep.Stats.AvgMemoryMB <= 0 || rep.Stats.MaxMemoryMB < rep.Stats.AvgMemoryMB {
		t.Fatalf("unexpected stats: %+v", rep.Stats)
	}
	if len(rep.Samples) != 3 {
		t.Fatalf("expected 3 raw samples, got %d", len(rep.Samples))
	}
	if len(rep.Events) == 0 || rep.Events[len(rep.Events)-1].Type != store.EventRegistered {
		t.Fatalf("expected registered event in trail, got %+v", rep.Events)
	}
}

func TestGetMetricsEmptyWindow(t *testing.T) {
	m, _, _ := newTestMonitor(t)
	ctx := context.Background()

	if _, err := m.Register(ctx, os.Getpid(), "coder", "STORY-1", "sess-1"); err != nil {
		t.Fatalf("register: %v", err)
	}
	// registration does not append a sample row
	rep, err := m.GetMetrics(ctx, "sess-1", 5)
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	if rep.Stats.SampleCount != 0 || rep.Stats.AvgCPU != 0 || rep.Stats.MaxMemoryMB != 0 {
		t.Fatalf("expected zero stats for empty window, got %+v", rep.Stats)
	}
	if len(rep.Samples) != 0 {
		t.Fatalf("expected no samples, got %d", len(rep.Samples))
	}
}

func TestGetMetricsUnknownSession(t *testing.T) {
	m, _, _ := newTestMonitor(t)
	if _, err := m.GetMetrics(context.Background(), "ghost", 10); !errors.Is(err, store.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestGetLogs(t *testing.T) {
	m, _, logsDir := newTestMonitor(t)

	content := "line1\nline2\nline3\nline4\nline5\n"
	if err := os.WriteFile(filepath.Join(logsDir, "sess-1.log"), []byte(content), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}
	got, err := m.GetLogs("sess-1", 3)
	if err != nil {
		t.Fatalf("get logs: %v", err)
	}
	if got.Content != "line3\nline4\nline5" {
		t.Fatalf("unexpected tail: %q", got.Content)
	}
	if got.Lines != 3 || !strings.HasSuffix(got.Path, "sess-1.log") {
		t.Fatalf("unexpected excerpt: %+v", got)
	}

	// fewer lines than asked for returns the whole file
	all, err := m.GetLogs("sess-1", 50)
	if err != nil {
		t.Fatalf("get logs: %v", err)
	}
	if all.Content != strings.TrimRight(content, "\n") {
		t.Fatalf("unexpected full tail: %q", all.Content)
	}
}

func TestGetLogsNotFound(t *testing.T) {
	m, _, _ := newTestMonitor(t)
	if _, err := m.GetLogs("nope", 10); !errors.Is(err, ErrLogNotFound) {
		t.Fatalf("expected ErrLogNotFound, got %v", err)
	}
}

func TestGetLogsRejectsTraversal(t *testing.T) {
	m, _, _ := newTestMonitor(t)
	for _, id := range []string{"../etc/passwd", "a/b", `a\b`, ""} {
		if _, err := m.GetLogs(id, 10); !errors.Is(err, ErrLogNotFound) {
			t.Fatalf("id %q: expected ErrLogNotFound, got %v", id, err)
		}
	}
}

func TestCleanupDead(t *testing.T) {
	m, db, _ := newTestMonitor(t)
	ctx := context.Background()

	if _, err := m.Register(ctx, os.Getpid(), "coder", "STORY-1", "keep"); err != nil {
		t.Fatalf("register keep: %v", err)
	}
	if _, err := m.Register(ctx, os.Getpid(), "coder", "STORY-2", "purge"); err != nil {
		t.Fatalf("register purge: %v", err)
	}
	if err := db.SetStatus(ctx, "purge", store.StatusDead); err != nil {
		t.Fatalf("set dead: %v", err)
	}

	res, err := m.CleanupDead(ctx, 0)
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if res.CleanedCount != 1 || len(res.Sessions) != 1 || res.Sessions[0] != "purge" {
		t.Fatalf("unexpected cleanup result: %+v", res)
	}
	if _, err := m.GetMetrics(ctx, "purge", 10); !errors.Is(err, store.ErrSessionNotFound) {
		t.Fatalf("purged session still readable: %v", err)
	}
	if _, err := m.GetMetrics(ctx, "keep", 10); err != nil {
		t.Fatalf("running session was purged: %v", err)
	}

	// nothing left to clean
	res, err = m.CleanupDead(ctx, 0)
	if err != nil {
		t.Fatalf("second cleanup: %v", err)
	}
	if res.CleanedCount != 0 {
		t.Fatalf("expected no-op cleanup, got %+v", res)
	}
}

func TestAppendEvent(t *testing.T) {
	m, _, _ := newTestMonitor(t)
	ctx := context.Background()

	if _, err := m.Register(ctx, os.Getpid(), "coder", "STORY-1", "sess-1"); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := m.AppendEvent(ctx, "sess-1", "progress", "tests passing"); err != nil {
		t.Fatalf("append event: %v", err)
	}
	rep, err := m.GetMetrics(ctx, "sess-1", 10)
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	found := false
	for _, ev := range rep.Events {
		if ev.Type == "progress" && ev.Message == "tests passing" {
			found = true
		}
	}
	if !found {
		t.Fatalf("custom event missing from trail: %+v", rep.Events)
	}

	if err := m.AppendEvent(ctx, "ghost", "progress", ""); !errors.Is(err, store.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestTail(t *testing.T) {
	cases := []struct {
		in   string
		n    int
		want string
	}{
		{"", 5, ""},
		{"a\nb\nc\n", 2, "b\nc"},
		{"a\nb\nc", 10, "a\nb\nc"},
		{"only\n", 1, "only"},
	}
	for _, c := range cases {
		if got := tail(c.in, c.n); got != c.want {
			t.Fatalf("tail(%q, %d) = %q, want %q", c.in, c.n, got, c.want)
		}
	}
}
