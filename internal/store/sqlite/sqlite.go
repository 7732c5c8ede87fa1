package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/agenticscrum/agentmon/internal/store"
)

// DB implements store.Store on SQLite (modernc.org/sqlite driver, CGO-free).
// Path is a filesystem path to the database file; use ":memory:" for tests.

type DB struct {
	db *sql.DB
}

// New opens a SQLite database at path.
func New(path string) (*DB, error) {
	p := strings.TrimSpace(path)
	if p == "" {
		return nil, errors.New("empty sqlite path")
	}
	d, err := sql.Open("sqlite", p)
	if err != nil {
		return nil, err
	}
	// busy timeout helps with short concurrent locks
	_, _ = d.Exec("PRAGMA busy_timeout=3000;")
	return &DB{db: d}, nil
}

func (s *DB) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS agents(
			session_id TEXT PRIMARY KEY,
			pid INTEGER NOT NULL,
			agent_type TEXT NOT NULL,
			story_id TEXT NOT NULL,
			started_at TIMESTAMP NOT NULL,
			last_heartbeat TIMESTAMP NOT NULL,
			status TEXT NOT NULL,
			cpu_percent REAL NOT NULL DEFAULT 0,
			memory_mb REAL NOT NULL DEFAULT 0,
			num_fds INTEGER NOT NULL DEFAULT 0
		);`,
		`CREATE INDEX IF NOT EXISTS idx_agents_status ON agents(status);`,
		`CREATE TABLE IF NOT EXISTS agent_metrics(
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			timestamp TIMESTAMP NOT NULL,
			cpu_percent REAL NOT NULL,
			memory_mb REAL NOT NULL,
			num_fds INTEGER NOT NULL,
			io_reads INTEGER NOT NULL,
			io_writes INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_agent_metrics_session ON agent_metrics(session_id);`,
		`CREATE TABLE IF NOT EXISTS agent_events(
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			timestamp TIMESTAMP NOT NULL,
			event_type TEXT NOT NULL,
			message TEXT NOT NULL DEFAULT ''
		);`,
		`CREATE INDEX IF NOT EXISTS idx_agent_events_session ON agent_events(session_id);`,
	}
	for _, q := range stmts {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

func (s *DB) Close() error { return s.db.Close() }

func (s *DB) RegisterAgent(ctx context.Context, rec store.AgentRecord, ev store.Event) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var exists int
	err = tx.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM agents WHERE session_id=?;`, rec.SessionID).Scan(&exists)
	if err != nil {
		return err
	}
	if exists > 0 {
		return store.ErrDuplicateSession
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO agents(session_id, pid, agent_type, story_id, started_at, last_heartbeat, status, cpu_percent, memory_mb, num_fds)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?);`,
		rec.SessionID, rec.PID, rec.AgentType, rec.StoryID,
		rec.StartedAt.UTC(), rec.LastHeartbeat.UTC(), string(rec.Status),
		rec.CPUPercent, rec.MemoryMB, rec.NumFDs)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrDuplicateSession
		}
		return err
	}
	if err := insertEvent(ctx, tx, ev); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *DB) GetAgent(ctx context.Context, sessionID string) (store.AgentRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT session_id, pid, agent_type, story_id, started_at, last_heartbeat, status, cpu_percent, memory_mb, num_fds
		FROM agents WHERE session_id=?;`, sessionID)
	rec, err := scanAgent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return store.AgentRecord{}, store.ErrSessionNotFound
	}
	return rec, err
}

func (s *DB) RecordHeartbeat(ctx context.Context, sample store.MetricSample) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		UPDATE agents
		SET last_heartbeat=?, cpu_percent=?, memory_mb=?, num_fds=?
		WHERE session_id=?;`,
		sample.Timestamp.UTC(), sample.CPUPercent, sample.MemoryMB, sample.NumFDs, sample.SessionID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrSessionNotFound
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO agent_metrics(session_id, timestamp, cpu_percent, memory_mb, num_fds, io_reads, io_writes)
		VALUES(?, ?, ?, ?, ?, ?, ?);`,
		sample.SessionID, sample.Timestamp.UTC(), sample.CPUPercent, sample.MemoryMB,
		sample.NumFDs, sample.IOReads, sample.IOWrites)
	if err != nil {
		return err
	}
	return tx.Commit()
}

func (s *DB) SetStatus(ctx context.Context, sessionID string, st store.Status) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE agents SET status=? WHERE session_id=?;`, string(st), sessionID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrSessionNotFound
	}
	return nil
}

func (s *DB) MarkTerminated(ctx context.Context, sessionID string, ev store.Event) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`UPDATE agents SET status=? WHERE session_id=?;`, string(store.StatusTerminated), sessionID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrSessionNotFound
	}
	if err := insertEvent(ctx, tx, ev); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *DB) AppendEvent(ctx context.Context, ev store.Event) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO agent_events(session_id, timestamp, event_type, message)
		VALUES(?, ?, ?, ?);`,
		ev.SessionID, ev.Timestamp.UTC(), ev.Type, ev.Message)
	return err
}

func (s *DB) ListAgents(ctx context.Context, includeDead bool) ([]store.AgentRecord, error) {
	q := `
		SELECT session_id, pid, agent_type, story_id, started_at, last_heartbeat, status, cpu_percent, memory_mb, num_fds
		FROM agents`
	var args []any
	if !includeDead {
		q += ` WHERE status=?`
		args = append(args, string(store.StatusRunning))
	}
	q += ` ORDER BY started_at DESC;`
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	return scanAgents(rows)
}

func (s *DB) SamplesSince(ctx context.Context, sessionID string, cutoff time.Time) ([]store.MetricSample, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, timestamp, cpu_percent, memory_mb, num_fds, io_reads, io_writes
		FROM agent_metrics
		WHERE session_id=? AND timestamp>=?
		ORDER BY timestamp DESC;`, sessionID, cutoff.UTC())
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	return scanSamples(rows)
}

func (s *DB) RecentSamples(ctx context.Context, sessionID string, n int) ([]store.MetricSample, error) {
	if n <= 0 {
		n = 10
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, timestamp, cpu_percent, memory_mb, num_fds, io_reads, io_writes
		FROM agent_metrics
		WHERE session_id=?
		ORDER BY timestamp DESC
		LIMIT ?;`, sessionID, n)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	return scanSamples(rows)
}

func (s *DB) RecentEvents(ctx context.Context, sessionID string, n int) ([]store.Event, error) {
	if n <= 0 {
		n = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, timestamp, event_type, message
		FROM agent_events
		WHERE session_id=?
		ORDER BY timestamp DESC, id DESC
		LIMIT ?;`, sessionID, n)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	out := make([]store.Event, 0)
	for rows.Next() {
		var e store.Event
		if err := rows.Scan(&e.SessionID, &e.Timestamp, &e.Type, &e.Message); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *DB) PurgeDead(ctx context.Context, cutoff time.Time) ([]string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx, `
		SELECT session_id FROM agents
		WHERE status IN (?, ?) AND last_heartbeat < ?;`,
		string(store.StatusDead), string(store.StatusTerminated), cutoff.UTC())
	if err != nil {
		return nil, err
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			_ = rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()
	if len(ids) == 0 {
		return nil, tx.Commit()
	}

	in, args := placeholders(ids)
	// three deletes, one transaction: samples, events, then registry rows
	for _, q := range []string{
		`DELETE FROM agent_metrics WHERE session_id IN (` + in + `);`,
		`DELETE FROM agent_events WHERE session_id IN (` + in + `);`,
		`DELETE FROM agents WHERE session_id IN (` + in + `);`,
	} {
		if _, err := tx.ExecContext(ctx, q, args...); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return ids, nil
}

func insertEvent(ctx context.Context, tx *sql.Tx, ev store.Event) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO agent_events(session_id, timestamp, event_type, message)
		VALUES(?, ?, ?, ?);`,
		ev.SessionID, ev.Timestamp.UTC(), ev.Type, ev.Message)
	return err
}

func placeholders(ids []string) (string, []any) {
	args := make([]any, len(ids))
	marks := make([]string, len(ids))
	for i, id := range ids {
		args[i] = id
		marks[i] = "?"
	}
	return strings.Join(marks, ","), args
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAgent(row rowScanner) (store.AgentRecord, error) {
	var r store.AgentRecord
	var st string
	err := row.Scan(&r.SessionID, &r.PID, &r.AgentType, &r.StoryID,
		&r.StartedAt, &r.LastHeartbeat, &st, &r.CPUPercent, &r.MemoryMB, &r.NumFDs)
	if err != nil {
		return store.AgentRecord{}, err
	}
	r.Status = store.Status(st)
	return r, nil
}

func scanAgents(rows *sql.Rows) ([]store.AgentRecord, error) {
	out := make([]store.AgentRecord, 0)
	for rows.Next() {
		rec, err := scanAgent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func scanSamples(rows *sql.Rows) ([]store.MetricSample, error) {
	out := make([]store.MetricSample, 0)
	for rows.Next() {
		var m store.MetricSample
		if err := rows.Scan(&m.SessionID, &m.Timestamp, &m.CPUPercent, &m.MemoryMB,
			&m.NumFDs, &m.IOReads, &m.IOWrites); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
