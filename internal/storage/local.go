package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"hayaoshi/internal/models"
)

// errCorrupt marks a stored blob that no longer decodes. Only such blobs are
// rebuilt from scratch; read failures of the KV itself leave the data alone.
var errCorrupt = errors.New("corrupt local data")

// Keys of the JSON blobs kept in the local KV
const (
	KeyHistory   = "study_history"
	KeyUserStats = "user_stats"
	KeyWordStats = "word_stats"
)

// Local keeps history and stats as JSON blobs in a KV. It is a single writer
// store, so read-modify-write under a mutex is enough.
type Local struct {
	kv        KV
	namespace string
	capacity  int
	now       func() time.Time
	mu        *sync.Mutex
}

// NewLocal creates a local backend whose history ring buffer holds capacity records
func NewLocal(kv KV, capacity int, now func() time.Time) *Local {
	if capacity <= 0 {
		capacity = DefaultLocalHistoryCap
	}
	if now == nil {
		now = time.Now
	}
	return &Local{kv: kv, capacity: capacity, now: now, mu: &sync.Mutex{}}
}

// ForIdentity returns a view of the same KV whose keys are prefixed by identity
func (l *Local) ForIdentity(identity string) Backend {
	return l.scoped("u", identity)
}

// ForGuest returns a view for an anonymous player kept apart from other guests
func (l *Local) ForGuest(guestID string) Backend {
	return l.scoped("guest", guestID)
}

func (l *Local) scoped(kind, id string) *Local {
	cp := *l
	cp.namespace = ""
	if id != "" {
		cp.namespace = kind + "/" + id + "/"
	}
	return &cp
}

// Namespaced returns a view over the keys stored under namespace, as produced
// by ForIdentity or ForGuest. An empty namespace is the unscoped store.
func (l *Local) Namespaced(namespace string) *Local {
	cp := *l
	cp.namespace = namespace
	return &cp
}

// Namespace returns the key prefix of this view
func (l *Local) Namespace() string {
	return l.namespace
}

func (l *Local) key(name string) string {
	return l.namespace + name
}

// FetchQuestions always reports unavailable; the bundled set is the local source
func (l *Local) FetchQuestions(ctx context.Context) ([]models.Question, bool) {
	return nil, false
}

// SaveRecord pushes record to the front of the history ring buffer
func (l *Local) SaveRecord(ctx context.Context, record models.SessionRecord) SaveResult {
	l.mu.Lock()
	defer l.mu.Unlock()

	var history []models.SessionRecord
	if err := l.read(ctx, KeyHistory, &history); err != nil {
		if !errors.Is(err, errCorrupt) {
			return SaveResult{Persisted: false, Location: models.LocationLocal, Err: err}
		}
		log.Printf("Warning: local history unreadable, starting over: %v", err)
		history = nil
	}

	history = append([]models.SessionRecord{record}, history...)
	if len(history) > l.capacity {
		history = history[:l.capacity]
	}

	if err := l.write(ctx, KeyHistory, history); err != nil {
		return SaveResult{Persisted: false, Location: models.LocationLocal, Err: err}
	}
	return SaveResult{Persisted: true, Location: models.LocationLocal}
}

// GetHistory returns the buffered records, newest first
func (l *Local) GetHistory(ctx context.Context) []models.SessionRecord {
	var history []models.SessionRecord
	if err := l.read(ctx, KeyHistory, &history); err != nil {
		log.Printf("Warning: failed to read local history: %v", err)
		return []models.SessionRecord{}
	}
	if history == nil {
		history = []models.SessionRecord{}
	}
	return history
}

// UpdateWordStats increments the local counters of every answered question
func (l *Local) UpdateWordStats(ctx context.Context, details []models.AnswerLogEntry) SaveResult {
	l.mu.Lock()
	defer l.mu.Unlock()

	stats := map[string]models.WordStat{}
	if err := l.read(ctx, KeyWordStats, &stats); err != nil {
		if !errors.Is(err, errCorrupt) {
			return SaveResult{Persisted: false, Location: models.LocationLocal, Err: err}
		}
		log.Printf("Warning: local word stats unreadable, starting over: %v", err)
		stats = map[string]models.WordStat{}
	}
	if stats == nil {
		stats = map[string]models.WordStat{}
	}

	now := l.now()
	for _, d := range details {
		ws := stats[d.QuestionID]
		ws.QuestionID = d.QuestionID
		ws.Term = d.Term
		ws.Meaning = d.Meaning
		ws.Type = d.Type
		ws.Total++
		if d.IsCorrect {
			ws.Correct++
		} else {
			ws.Wrong++
		}
		ws.LastPlayed = now
		stats[d.QuestionID] = ws
	}

	if err := l.write(ctx, KeyWordStats, stats); err != nil {
		return SaveResult{Persisted: false, Location: models.LocationLocal, Err: err}
	}
	return SaveResult{Persisted: true, Location: models.LocationLocal}
}

// GetWordStats lists the local per-question counters
func (l *Local) GetWordStats(ctx context.Context, sortKey string) []models.WordStat {
	stats := map[string]models.WordStat{}
	if err := l.read(ctx, KeyWordStats, &stats); err != nil {
		log.Printf("Warning: failed to read local word stats: %v", err)
		return []models.WordStat{}
	}
	list := make([]models.WordStat, 0, len(stats))
	for _, ws := range stats {
		list = append(list, ws)
	}
	SortWordStats(list, sortKey)
	return list
}

// GetUserStats returns the local cumulative score, zero when nothing was saved yet
func (l *Local) GetUserStats(ctx context.Context) models.UserStats {
	var stats models.UserStats
	if err := l.read(ctx, KeyUserStats, &stats); err != nil {
		log.Printf("Warning: failed to read local user stats: %v", err)
		return models.UserStats{}
	}
	return stats
}

// UpdateUserStats adds delta to the stored total. When the stored total cannot
// be read the store is left untouched and zero stats are returned.
func (l *Local) UpdateUserStats(ctx context.Context, delta int) models.UserStats {
	l.mu.Lock()
	defer l.mu.Unlock()

	var stats models.UserStats
	if err := l.read(ctx, KeyUserStats, &stats); err != nil {
		if !errors.Is(err, errCorrupt) {
			log.Printf("Warning: local user stats not updated: %v", err)
			return models.UserStats{}
		}
		log.Printf("Warning: local user stats unreadable, starting over: %v", err)
		stats = models.UserStats{}
	}
	stats.TotalScore += delta
	if stats.TotalScore < 0 {
		stats.TotalScore = 0
	}
	stats.LastPlayed = l.now()

	if err := l.write(ctx, KeyUserStats, stats); err != nil {
		log.Printf("Warning: failed to write local user stats: %v", err)
	}
	return stats
}

// Snapshot is the full content of a local store, used for backups
type Snapshot struct {
	History   []models.SessionRecord     `json:"history"`
	UserStats models.UserStats           `json:"user_stats"`
	WordStats map[string]models.WordStat `json:"word_stats"`
}

// Export reads everything kept under the current namespace
func (l *Local) Export(ctx context.Context) (Snapshot, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	snap := Snapshot{WordStats: map[string]models.WordStat{}}
	if err := l.read(ctx, KeyHistory, &snap.History); err != nil {
		return Snapshot{}, err
	}
	if err := l.read(ctx, KeyUserStats, &snap.UserStats); err != nil {
		return Snapshot{}, err
	}
	if err := l.read(ctx, KeyWordStats, &snap.WordStats); err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}

// Import replaces the local content with snap, trimming history to capacity
func (l *Local) Import(ctx context.Context, snap Snapshot) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	history := snap.History
	if len(history) > l.capacity {
		history = history[:l.capacity]
	}
	if err := l.write(ctx, KeyHistory, history); err != nil {
		return err
	}
	if err := l.write(ctx, KeyUserStats, snap.UserStats); err != nil {
		return err
	}
	wordStats := snap.WordStats
	if wordStats == nil {
		wordStats = map[string]models.WordStat{}
	}
	return l.write(ctx, KeyWordStats, wordStats)
}

func (l *Local) read(ctx context.Context, name string, v interface{}) error {
	raw, ok, err := l.kv.Get(ctx, l.key(name))
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", name, err)
	}
	if !ok || raw == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return fmt.Errorf("%w: %s: %v", errCorrupt, name, err)
	}
	return nil
}

func (l *Local) write(ctx context.Context, name string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", name, err)
	}
	if err := l.kv.Set(ctx, l.key(name), string(data)); err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	return nil
}

// SortWordStats orders stats in place by sortKey; unknown keys sort by recency
func SortWordStats(stats []models.WordStat, sortKey string) {
	sort.SliceStable(stats, func(i, j int) bool {
		a, b := stats[i], stats[j]
		switch sortKey {
		case SortWrong:
			if a.Wrong != b.Wrong {
				return a.Wrong > b.Wrong
			}
		case SortCorrect:
			if a.Correct != b.Correct {
				return a.Correct > b.Correct
			}
		}
		if !a.LastPlayed.Equal(b.LastPlayed) {
			return a.LastPlayed.After(b.LastPlayed)
		}
		return a.QuestionID < b.QuestionID
	})
}
