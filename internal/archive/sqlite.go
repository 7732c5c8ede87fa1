package archive

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/agenticscrum/agentmon/internal/store"
)

// sqliteSink appends events to a standalone SQLite file. The table has no
// primary key; it is a plain audit trail.
type sqliteSink struct {
	db *sql.DB
}

func newSQLite(path string) (*sqliteSink, error) {
	p := strings.TrimSpace(path)
	if p == "" {
		return nil, errors.New("empty sqlite archive path")
	}
	db, err := sql.Open("sqlite", p)
	if err != nil {
		return nil, err
	}
	s := &sqliteSink{db: db}
	if err := s.ensureSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *sqliteSink) ensureSchema(ctx context.Context) error {
	stmt := `CREATE TABLE IF NOT EXISTS agent_event_archive(
		timestamp TIMESTAMP NOT NULL DEFAULT (CURRENT_TIMESTAMP),
		session_id TEXT NOT NULL,
		event_type TEXT NOT NULL,
		message TEXT NOT NULL DEFAULT ''
	);`
	_, err := s.db.ExecContext(ctx, stmt)
	return err
}

func (s *sqliteSink) Send(ctx context.Context, ev store.Event) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO agent_event_archive(timestamp, session_id, event_type, message)
		VALUES(?, ?, ?, ?);`,
		ev.Timestamp.UTC(), ev.SessionID, ev.Type, ev.Message)
	return err
}

func (s *sqliteSink) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
