package services

import (
	"errors"

	"github.com/getsentry/sentry-go"
)

// Error taxonomy shared by all flows. Relational failures are returned as
// wrapped errors; external platform failures never abort a flow whose
// relational portion committed, they land in SyncResult instead.
var (
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
)

// SyncResult is the secondary outcome of a mutating operation: whether the
// external platform now mirrors the relational state. A false Synced with a
// committed relational write means "expect eventual repair", not "retry the
// whole operation".
type SyncResult struct {
	Synced bool   `json:"synced"`
	Error  string `json:"error,omitempty"`
}

func syncOK() SyncResult {
	return SyncResult{Synced: true}
}

func syncFailed(err error) SyncResult {
	sentry.CaptureException(err)
	return SyncResult{Synced: false, Error: err.Error()}
}

// mergeSync folds two secondary outcomes into one: synced only when both
// legs are.
func mergeSync(a, b SyncResult) SyncResult {
	switch {
	case a.Synced:
		return b
	case b.Synced:
		return a
	default:
		return SyncResult{Synced: false, Error: a.Error + "; " + b.Error}
	}
}
