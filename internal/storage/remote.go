package storage

import (
	"context"
	"errors"
	"log"
	"time"

	"hayaoshi/internal/metrics"
	"hayaoshi/internal/models"
)

// Remote writes to a RemoteStore first and falls back to Local whenever the
// remote call fails, exceeds its time budget or no identity is resolved.
type Remote struct {
	store        RemoteStore
	local        *Local
	identity     string
	timeout      time.Duration
	historyLimit int
	now          func() time.Time
}

// NewRemote wraps store with local fallback
func NewRemote(store RemoteStore, local *Local, opts Options) *Remote {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultRemoteTimeout
	}
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = DefaultRemoteHistoryLimit
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Remote{
		store:        store,
		local:        local,
		timeout:      opts.Timeout,
		historyLimit: opts.HistoryLimit,
		now:          opts.Now,
	}
}

// ForIdentity binds the remote paths to identity and the fallback to its local namespace
func (r *Remote) ForIdentity(identity string) Backend {
	cp := *r
	cp.identity = identity
	cp.local = r.local.scoped("u", identity)
	return &cp
}

// ForGuest drops the identity so every call stays local
func (r *Remote) ForGuest(guestID string) Backend {
	cp := *r
	cp.identity = ""
	cp.local = r.local.scoped("guest", guestID)
	return &cp
}

// Identity returns the identity remote calls are scoped to
func (r *Remote) Identity() string {
	return r.identity
}

// Budget is the longest a single remote call may take
func (r *Remote) Budget() time.Duration {
	return r.timeout
}

// call runs fn against the remote store, racing it against the time budget.
// A caller deadline that already passed skips the store entirely.
func (r *Remote) call(ctx context.Context, op string, fn func(context.Context) error) error {
	if err := ctx.Err(); err != nil {
		kind := KindUnknown
		if errors.Is(err, context.DeadlineExceeded) {
			kind = KindTimeout
		}
		metrics.RemoteCallDuration.WithLabelValues(op, string(kind)).Observe(0)
		return NewError(op, kind, err)
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	start := time.Now()
	done := make(chan error, 1)
	go func() {
		done <- fn(ctx)
	}()

	var err error
	select {
	case err = <-done:
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			err = NewError(op, KindTimeout, ctx.Err())
		} else {
			err = NewError(op, KindUnknown, ctx.Err())
		}
	}

	outcome := "ok"
	if err != nil {
		err = Classify(op, err, nil)
		outcome = string(KindOf(err))
	}
	metrics.RemoteCallDuration.WithLabelValues(op, outcome).Observe(time.Since(start).Seconds())
	return err
}

// FetchQuestions does not need an identity: the question set is shared
func (r *Remote) FetchQuestions(ctx context.Context) ([]models.Question, bool) {
	var qs []models.Question
	err := r.call(ctx, "fetch_questions", func(ctx context.Context) error {
		var err error
		qs, err = r.store.FetchQuestions(ctx)
		return err
	})
	if err != nil {
		log.Printf("Warning: questions fetch failed, using bundled set: %v", err)
		return nil, false
	}
	if len(qs) == 0 {
		return nil, false
	}
	return qs, true
}

// SaveRecord tries the remote store and falls back to the local ring buffer
func (r *Remote) SaveRecord(ctx context.Context, record models.SessionRecord) SaveResult {
	if r.identity == "" {
		res := r.local.SaveRecord(ctx, record)
		res.Cause = KindAuthRequired
		return res
	}

	err := r.call(ctx, "save_record", func(ctx context.Context) error {
		return r.store.InsertRecord(ctx, r.identity, record)
	})
	if err == nil {
		return SaveResult{Persisted: true, Location: models.LocationRemote}
	}

	kind := KindOf(err)
	log.Printf("Warning: cloud save failed (%s), saving locally: %v", kind, err)
	return r.fallback(r.local.SaveRecord(context.WithoutCancel(ctx), record), kind, err)
}

// GetHistory reads the remote history, or the local buffer when remote is unusable
func (r *Remote) GetHistory(ctx context.Context) []models.SessionRecord {
	if r.identity == "" {
		return r.local.GetHistory(ctx)
	}

	var records []models.SessionRecord
	err := r.call(ctx, "list_records", func(ctx context.Context) error {
		var err error
		records, err = r.store.ListRecords(ctx, r.identity, r.historyLimit)
		return err
	})
	if err != nil {
		log.Printf("Warning: cloud history fetch failed, reading local history: %v", err)
		return r.local.GetHistory(context.WithoutCancel(ctx))
	}
	if records == nil {
		records = []models.SessionRecord{}
	}
	return records
}

// UpdateWordStats increments remote counters atomically, falling back to local counters
func (r *Remote) UpdateWordStats(ctx context.Context, details []models.AnswerLogEntry) SaveResult {
	if r.identity == "" {
		res := r.local.UpdateWordStats(ctx, details)
		res.Cause = KindAuthRequired
		return res
	}

	err := r.call(ctx, "update_word_stats", func(ctx context.Context) error {
		return r.store.IncrementWordStats(ctx, r.identity, details, r.now())
	})
	if err == nil {
		return SaveResult{Persisted: true, Location: models.LocationRemote}
	}

	kind := KindOf(err)
	rest := details
	var partial *PartialWriteError
	if errors.As(err, &partial) && partial.Applied > 0 && partial.Applied <= len(details) {
		rest = details[partial.Applied:]
	}
	log.Printf("Warning: cloud word stats update failed (%s), updating %d of %d locally: %v", kind, len(rest), len(details), err)
	return r.fallback(r.local.UpdateWordStats(context.WithoutCancel(ctx), rest), kind, err)
}

// GetWordStats lists per-question counters ordered by sortKey
func (r *Remote) GetWordStats(ctx context.Context, sortKey string) []models.WordStat {
	if r.identity == "" {
		return r.local.GetWordStats(ctx, sortKey)
	}

	var stats []models.WordStat
	err := r.call(ctx, "list_word_stats", func(ctx context.Context) error {
		var err error
		stats, err = r.store.ListWordStats(ctx, r.identity)
		return err
	})
	if err != nil {
		log.Printf("Warning: cloud word stats fetch failed, reading local stats: %v", err)
		return r.local.GetWordStats(context.WithoutCancel(ctx), sortKey)
	}
	if stats == nil {
		stats = []models.WordStat{}
	}
	SortWordStats(stats, sortKey)
	return stats
}

// GetUserStats reads the cumulative score
func (r *Remote) GetUserStats(ctx context.Context) models.UserStats {
	if r.identity == "" {
		return r.local.GetUserStats(ctx)
	}

	var stats models.UserStats
	err := r.call(ctx, "get_user_stats", func(ctx context.Context) error {
		var err error
		stats, err = r.store.GetUserStats(ctx, r.identity)
		return err
	})
	if errors.Is(err, ErrNotFound) {
		return models.UserStats{}
	}
	if err != nil {
		log.Printf("Warning: cloud stats fetch failed, reading local stats: %v", err)
		return r.local.GetUserStats(context.WithoutCancel(ctx))
	}
	return stats
}

// UpdateUserStats adds delta with the store's atomic increment
func (r *Remote) UpdateUserStats(ctx context.Context, delta int) models.UserStats {
	if r.identity == "" {
		return r.local.UpdateUserStats(ctx, delta)
	}

	var stats models.UserStats
	err := r.call(ctx, "add_user_score", func(ctx context.Context) error {
		var err error
		stats, err = r.store.AddUserScore(ctx, r.identity, delta, r.now())
		return err
	})
	if err != nil {
		log.Printf("Warning: cloud stats update failed, updating locally: %v", err)
		return r.local.UpdateUserStats(context.WithoutCancel(ctx), delta)
	}
	return stats
}

func (r *Remote) fallback(res SaveResult, kind ErrorKind, remoteErr error) SaveResult {
	res.Cause = kind
	if res.Err != nil {
		res.Err = errors.Join(remoteErr, res.Err)
	} else {
		res.Err = remoteErr
	}
	return res
}
