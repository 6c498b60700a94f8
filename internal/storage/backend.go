// Package storage defines the persistence contract used by a game round and the
// local and remote backends that satisfy it. Backends never fail a caller:
// remote problems turn into a local fallback plus a classified cause.
package storage

import (
	"context"
	"time"

	"hayaoshi/internal/models"
)

const (
	DefaultRemoteTimeout      = 5 * time.Second
	DefaultLocalHistoryCap    = 50
	DefaultRemoteHistoryLimit = 20
)

// Word stat orderings accepted by GetWordStats
const (
	SortWrong   = "wrong"
	SortCorrect = "correct"
	SortRecent  = "recent"
)

// SaveResult reports where a record was written and why the remote path was skipped
type SaveResult struct {
	Persisted bool
	Location  models.Location
	Cause     ErrorKind
	Err       error
}

// Backend persists records and stats for one identity
type Backend interface {
	// FetchQuestions returns the remote question set; ok is false when none is available
	FetchQuestions(ctx context.Context) (qs []models.Question, ok bool)
	SaveRecord(ctx context.Context, record models.SessionRecord) SaveResult
	// GetHistory returns records most recent first
	GetHistory(ctx context.Context) []models.SessionRecord
	// UpdateWordStats increments per-question counters for every entry
	UpdateWordStats(ctx context.Context, details []models.AnswerLogEntry) SaveResult
	GetWordStats(ctx context.Context, sortKey string) []models.WordStat
	GetUserStats(ctx context.Context) models.UserStats
	// UpdateUserStats adds delta to the cumulative score and returns the new stats
	UpdateUserStats(ctx context.Context, delta int) models.UserStats
}

// Budgeter is implemented by backends whose calls are bounded by a time budget
type Budgeter interface {
	Budget() time.Duration
}

// Scoper is implemented by backends that can bind to a player
type Scoper interface {
	ForIdentity(identity string) Backend
	ForGuest(guestID string) Backend
}

// ForIdentity scopes b to a resolved identity when b supports it
func ForIdentity(b Backend, identity string) Backend {
	if s, ok := b.(Scoper); ok {
		return s.ForIdentity(identity)
	}
	return b
}

// ForGuest scopes b to an anonymous player. Guests never reach remote storage.
func ForGuest(b Backend, guestID string) Backend {
	if s, ok := b.(Scoper); ok {
		return s.ForGuest(guestID)
	}
	return b
}

// RemoteStore is the minimal surface a cloud database has to offer. All calls are
// scoped by identity and counters must be incremented server side.
type RemoteStore interface {
	FetchQuestions(ctx context.Context) ([]models.Question, error)
	InsertRecord(ctx context.Context, identity string, record models.SessionRecord) error
	ListRecords(ctx context.Context, identity string, limit int) ([]models.SessionRecord, error)
	// IncrementWordStats applies details all or nothing, or returns a
	// *PartialWriteError naming how many leading entries were applied
	IncrementWordStats(ctx context.Context, identity string, details []models.AnswerLogEntry, at time.Time) error
	ListWordStats(ctx context.Context, identity string) ([]models.WordStat, error)
	GetUserStats(ctx context.Context, identity string) (models.UserStats, error)
	AddUserScore(ctx context.Context, identity string, delta int, at time.Time) (models.UserStats, error)
	Close(ctx context.Context) error
}

// Options configure the remote backend
type Options struct {
	Timeout      time.Duration
	HistoryLimit int
	Now          func() time.Time
}

// New composes the backend chosen at startup. Without a remote store the local
// backend is used directly.
func New(remote RemoteStore, local *Local, opts Options) Backend {
	if remote == nil {
		return local
	}
	return NewRemote(remote, local, opts)
}
