// Package archive exports agent audit events to an external retention
// store. The registry's own event table is purged together with its session
// by cleanup; an archive sink keeps a copy that survives the purge.
package archive

import (
	"context"
	"errors"
	"strings"

	"github.com/agenticscrum/agentmon/internal/store"
)

// Sink is a destination for archived events. Delivery is best-effort: the
// monitor logs and continues when Send fails. Implementations must be safe
// for concurrent use.
type Sink interface {
	Send(ctx context.Context, ev store.Event) error
	Close() error
}

// NewFromDSN selects a sink implementation based on DSN, mirroring the
// store factory conventions.
func NewFromDSN(dsn string) (Sink, error) {
	d := strings.TrimSpace(dsn)
	ld := strings.ToLower(d)
	if ld == "" {
		return nil, errors.New("empty archive DSN")
	}
	if strings.HasPrefix(ld, "postgres://") || strings.HasPrefix(ld, "postgresql://") {
		return newPostgres(d)
	}
	if strings.HasPrefix(ld, "sqlite://") {
		return newSQLite(strings.TrimPrefix(d, "sqlite://"))
	}
	return newSQLite(d)
}
