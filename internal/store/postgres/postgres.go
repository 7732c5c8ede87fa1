package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/agenticscrum/agentmon/internal/store"
)

// DB implements store.Store on PostgreSQL via the pgx stdlib driver. Intended
// for deployments where several hosts report into one shared registry; the
// single-writer assumption from the sqlite backend still applies per host.

type DB struct {
	db *sql.DB
}

func New(dsn string) (*DB, error) {
	d, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	return &DB{db: d}, nil
}

func (p *DB) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS agents(
			session_id TEXT PRIMARY KEY,
			pid INTEGER NOT NULL,
			agent_type TEXT NOT NULL,
			story_id TEXT NOT NULL,
			started_at TIMESTAMPTZ NOT NULL,
			last_heartbeat TIMESTAMPTZ NOT NULL,
			status TEXT NOT NULL,
			cpu_percent DOUBLE PRECISION NOT NULL DEFAULT 0,
			memory_mb DOUBLE PRECISION NOT NULL DEFAULT 0,
			num_fds INTEGER NOT NULL DEFAULT 0
		);`,
		`CREATE INDEX IF NOT EXISTS idx_agents_status ON agents(status);`,
		`CREATE TABLE IF NOT EXISTS agent_metrics(
			id BIGSERIAL PRIMARY KEY,
			session_id TEXT NOT NULL,
			timestamp TIMESTAMPTZ NOT NULL,
			cpu_percent DOUBLE PRECISION NOT NULL,
			memory_mb DOUBLE PRECISION NOT NULL,
			num_fds INTEGER NOT NULL,
			io_reads BIGINT NOT NULL,
			io_writes BIGINT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_agent_metrics_session ON agent_metrics(session_id);`,
		`CREATE TABLE IF NOT EXISTS agent_events(
			id BIGSERIAL PRIMARY KEY,
			session_id TEXT NOT NULL,
			timestamp TIMESTAMPTZ NOT NULL,
			event_type TEXT NOT NULL,
			message TEXT NOT NULL DEFAULT ''
		);`,
		`CREATE INDEX IF NOT EXISTS idx_agent_events_session ON agent_events(session_id);`,
	}
	for _, q := range stmts {
		if _, err := p.db.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

func (p *DB) Close() error { return p.db.Close() }

func (p *DB) RegisterAgent(ctx context.Context, rec store.AgentRecord, ev store.Event) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO agents(session_id, pid, agent_type, story_id, started_at, last_heartbeat, status, cpu_percent, memory_mb, num_fds)
		VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		ON CONFLICT(session_id) DO NOTHING;`,
		rec.SessionID, rec.PID, rec.AgentType, rec.StoryID,
		rec.StartedAt.UTC(), rec.LastHeartbeat.UTC(), string(rec.Status),
		rec.CPUPercent, rec.MemoryMB, rec.NumFDs)
	if err != nil {
		return err
	}
	// DO NOTHING turns a duplicate into zero inserted rows
	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		return store.ErrDuplicateSession
	}
	if err := insertEvent(ctx, tx, ev); err != nil {
		return err
	}
	return tx.Commit()
}

func (p *DB) GetAgent(ctx context.Context, sessionID string) (store.AgentRecord, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT session_id, pid, agent_type, story_id, started_at, last_heartbeat, status, cpu_percent, memory_mb, num_fds
		FROM agents WHERE session_id=$1;`, sessionID)
	var r store.AgentRecord
	var st string
	err := row.Scan(&r.SessionID, &r.PID, &r.AgentType, &r.StoryID,
		&r.StartedAt, &r.LastHeartbeat, &st, &r.CPUPercent, &r.MemoryMB, &r.NumFDs)
	if errors.Is(err, sql.ErrNoRows) {
		return store.AgentRecord{}, store.ErrSessionNotFound
	}
	if err != nil {
		return store.AgentRecord{}, err
	}
	r.Status = store.Status(st)
	return r, nil
}

func (p *DB) RecordHeartbeat(ctx context.Context, sample store.MetricSample) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		UPDATE agents SET last_heartbeat=$1, cpu_percent=$2, memory_mb=$3, num_fds=$4
		WHERE session_id=$5;`,
		sample.Timestamp.UTC(), sample.CPUPercent, sample.MemoryMB, sample.NumFDs, sample.SessionID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		return store.ErrSessionNotFound
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO agent_metrics(session_id, timestamp, cpu_percent, memory_mb, num_fds, io_reads, io_writes)
		VALUES($1,$2,$3,$4,$5,$6,$7);`,
		sample.SessionID, sample.Timestamp.UTC(), sample.CPUPercent, sample.MemoryMB,
		sample.NumFDs, int64(sample.IOReads), int64(sample.IOWrites))
	if err != nil {
		return err
	}
	return tx.Commit()
}

func (p *DB) SetStatus(ctx context.Context, sessionID string, st store.Status) error {
	res, err := p.db.ExecContext(ctx,
		`UPDATE agents SET status=$1 WHERE session_id=$2;`, string(st), sessionID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		return store.ErrSessionNotFound
	}
	return nil
}

func (p *DB) MarkTerminated(ctx context.Context, sessionID string, ev store.Event) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`UPDATE agents SET status=$1 WHERE session_id=$2;`,
		string(store.StatusTerminated), sessionID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		return store.ErrSessionNotFound
	}
	if err := insertEvent(ctx, tx, ev); err != nil {
		return err
	}
	return tx.Commit()
}

func (p *DB) AppendEvent(ctx context.Context, ev store.Event) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO agent_events(session_id, timestamp, event_type, message)
		VALUES($1,$2,$3,$4);`,
		ev.SessionID, ev.Timestamp.UTC(), ev.Type, ev.Message)
	return err
}

func (p *DB) ListAgents(ctx context.Context, includeDead bool) ([]store.AgentRecord, error) {
	q := `
		SELECT session_id, pid, agent_type, story_id, started_at, last_heartbeat, status, cpu_percent, memory_mb, num_fds
		FROM agents`
	var args []any
	if !includeDead {
		q += ` WHERE status=$1`
		args = append(args, string(store.StatusRunning))
	}
	q += ` ORDER BY started_at DESC;`
	rows, err := p.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	out := make([]store.AgentRecord, 0)
	for rows.Next() {
		var r store.AgentRecord
		var st string
		if err := rows.Scan(&r.SessionID, &r.PID, &r.AgentType, &r.StoryID,
			&r.StartedAt, &r.LastHeartbeat, &st, &r.CPUPercent, &r.MemoryMB, &r.NumFDs); err != nil {
			return nil, err
		}
		r.Status = store.Status(st)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (p *DB) SamplesSince(ctx context.Context, sessionID string, cutoff time.Time) ([]store.MetricSample, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT session_id, timestamp, cpu_percent, memory_mb, num_fds, io_reads, io_writes
		FROM agent_metrics WHERE session_id=$1 AND timestamp>=$2
		ORDER BY timestamp DESC;`, sessionID, cutoff.UTC())
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	return scanSamples(rows)
}

func (p *DB) RecentSamples(ctx context.Context, sessionID string, n int) ([]store.MetricSample, error) {
	if n <= 0 {
		n = 10
	}
	rows, err := p.db.QueryContext(ctx, `
		SELECT session_id, timestamp, cpu_percent, memory_mb, num_fds, io_reads, io_writes
		FROM agent_metrics WHERE session_id=$1
		ORDER BY timestamp DESC LIMIT $2;`, sessionID, n)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	return scanSamples(rows)
}

func (p *DB) RecentEvents(ctx context.Context, sessionID string, n int) ([]store.Event, error) {
	if n <= 0 {
		n = 20
	}
	rows, err := p.db.QueryContext(ctx, `
		SELECT session_id, timestamp, event_type, message
		FROM agent_events WHERE session_id=$1
		ORDER BY timestamp DESC, id DESC LIMIT $2;`, sessionID, n)
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

func (p *DB) PurgeDead(ctx context.Context, cutoff time.Time) ([]string, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx, `
		SELECT session_id FROM agents
		WHERE status IN ($1, $2) AND last_heartbeat < $3;`,
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
		VALUES($1,$2,$3,$4);`,
		ev.SessionID, ev.Timestamp.UTC(), ev.Type, ev.Message)
	return err
}

func placeholders(ids []string) (string, []any) {
	args := make([]any, len(ids))
	marks := make([]string, len(ids))
	for i, id := range ids {
		args[i] = id
		marks[i] = fmt.Sprintf("$%d", i+1)
	}
	return strings.Join(marks, ","), args
}

func scanSamples(rows *sql.Rows) ([]store.MetricSample, error) {
	out := make([]store.MetricSample, 0)
	for rows.Next() {
		var m store.MetricSample
		var ioR, ioW int64
		if err := rows.Scan(&m.SessionID, &m.Timestamp, &m.CPUPercent, &m.MemoryMB,
			&m.NumFDs, &ioR, &ioW); err != nil {
			return nil, err
		}
		m.IOReads = uint64(ioR)
		m.IOWrites = uint64(ioW)
		out = append(out, m)
	}
	return out, rows.Err()
}
