package archive

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/agenticscrum/agentmon/internal/store"
)

func TestNewFromDSN(t *testing.T) {
	dir := t.TempDir()

	sink, err := NewFromDSN("sqlite://" + filepath.Join(dir, "a.db"))
	if err != nil {
		t.Fatalf("sqlite scheme: %v", err)
	}
	_ = sink.Close()

	sink, err = NewFromDSN(filepath.Join(dir, "b.db"))
	if err != nil {
		t.Fatalf("bare path: %v", err)
	}
	_ = sink.Close()

	if _, err := NewFromDSN("  "); err == nil {
		t.Fatal("expected error for empty DSN")
	}
}

func TestSQLiteSinkSend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "archive.db")
	sink, err := newSQLite(path)
	if err != nil {
		t.Fatalf("open sink: %v", err)
	}
	t.Cleanup(func() { _ = sink.Close() })

	ctx := context.Background()
	evs := []store.Event{
		{SessionID: "sess-1", Timestamp: time.Now().UTC(), Type: store.EventRegistered, Message: "registered"},
		{SessionID: "sess-1", Timestamp: time.Now().UTC(), Type: store.EventTerminated, Message: "stopped"},
	}
	for _, ev := range evs {
		if err := sink.Send(ctx, ev); err != nil {
			t.Fatalf("send: %v", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer func() { _ = db.Close() }()
	var n int
	if err := db.QueryRow(`SELECT COUNT(1) FROM agent_event_archive WHERE session_id='sess-1';`).Scan(&n); err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 archived events, got %d", n)
	}
}
