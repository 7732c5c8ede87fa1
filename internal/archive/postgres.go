package archive

import (
	"context"
	"database/sql"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/agenticscrum/agentmon/internal/store"
)

// postgresSink appends events to a shared PostgreSQL audit table, for
// fleets where several monitor hosts archive into one place.
type postgresSink struct {
	db *sql.DB
}

func newPostgres(dsn string) (*postgresSink, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	s := &postgresSink{db: db}
	if err := s.ensureSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *postgresSink) ensureSchema(ctx context.Context) error {
	stmt := `CREATE TABLE IF NOT EXISTS agent_event_archive(
		id BIGSERIAL PRIMARY KEY,
		timestamp TIMESTAMPTZ NOT NULL DEFAULT now(),
		session_id TEXT NOT NULL,
		event_type TEXT NOT NULL,
		message TEXT NOT NULL DEFAULT ''
	);`
	_, err := s.db.ExecContext(ctx, stmt)
	return err
}

func (s *postgresSink) Send(ctx context.Context, ev store.Event) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO agent_event_archive(timestamp, session_id, event_type, message)
		VALUES($1,$2,$3,$4);`,
		ev.Timestamp.UTC(), ev.SessionID, ev.Type, ev.Message)
	return err
}

func (s *postgresSink) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
