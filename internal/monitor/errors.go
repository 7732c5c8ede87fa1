package monitor

import (
	"errors"

	"github.com/agenticscrum/agentmon/internal/store"
)

// ErrLogNotFound is returned by GetLogs when no log file exists for the
// session.
var ErrLogNotFound = errors.New("log file not found")

// ErrorKind classifies operation failures for callers that need to branch
// on them (the HTTP layer maps kinds to status codes).
type ErrorKind string

const (
	KindSessionNotFound  ErrorKind = "session_not_found"
	KindDuplicateSession ErrorKind = "duplicate_session"
	KindLogNotFound      ErrorKind = "log_not_found"
	KindInternal         ErrorKind = "internal"
)

// Kind maps an error returned by any Monitor operation to its ErrorKind.
func Kind(err error) ErrorKind {
	switch {
	case errors.Is(err, store.ErrSessionNotFound):
		return KindSessionNotFound
	case errors.Is(err, store.ErrDuplicateSession):
		return KindDuplicateSession
	case errors.Is(err, ErrLogNotFound):
		return KindLogNotFound
	default:
		return KindInternal
	}
}
