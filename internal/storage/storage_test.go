package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"hayaoshi/internal/models"
)

// fakeRemote is an in-memory RemoteStore. block makes every call wait for
// the context to expire; fail makes every call return the given error.
type fakeRemote struct {
	mu    sync.Mutex
	block bool
	fail  error
	// wordLimit > 0 stops word stat batches after that many entries
	wordLimit int
	questions []models.Question
	records   map[string][]models.SessionRecord
	words     map[string]map[string]models.WordStat
	users     map[string]models.UserStats
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		records: make(map[string][]models.SessionRecord),
		words:   make(map[string]map[string]models.WordStat),
		users:   make(map[string]models.UserStats),
	}
}

func (f *fakeRemote) gate(ctx context.Context) error {
	if f.block {
		<-ctx.Done()
		return ctx.Err()
	}
	return f.fail
}

func (f *fakeRemote) FetchQuestions(ctx context.Context) ([]models.Question, error) {
	if err := f.gate(ctx); err != nil {
		return nil, err
	}
	return f.questions, nil
}

func (f *fakeRemote) InsertRecord(ctx context.Context, identity string, record models.SessionRecord) error {
	if err := f.gate(ctx); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records[identity] = append([]models.SessionRecord{record}, f.records[identity]...)
	return nil
}

func (f *fakeRemote) ListRecords(ctx context.Context, identity string, limit int) ([]models.SessionRecord, error) {
	if err := f.gate(ctx); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	records := f.records[identity]
	if len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

func (f *fakeRemote) IncrementWordStats(ctx context.Context, identity string, details []models.AnswerLogEntry, at time.Time) error {
	if err := f.gate(ctx); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.words[identity] == nil {
		f.words[identity] = make(map[string]models.WordStat)
	}
	applied := details
	if f.wordLimit > 0 && len(details) > f.wordLimit {
		applied = details[:f.wordLimit]
	}
	for _, d := range applied {
		ws := f.words[identity][d.QuestionID]
		ws.QuestionID = d.QuestionID
		ws.Total++
		if d.IsCorrect {
			ws.Correct++
		} else {
			ws.Wrong++
		}
		ws.LastPlayed = at
		f.words[identity][d.QuestionID] = ws
	}
	if len(applied) < len(details) {
		return &PartialWriteError{Applied: len(applied), Err: NewError("increment", KindUnknown, errors.New("write conflict"))}
	}
	return nil
}

func (f *fakeRemote) ListWordStats(ctx context.Context, identity string) ([]models.WordStat, error) {
	if err := f.gate(ctx); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.WordStat
	for _, ws := range f.words[identity] {
		out = append(out, ws)
	}
	return out, nil
}

func (f *fakeRemote) GetUserStats(ctx context.Context, identity string) (models.UserStats, error) {
	if err := f.gate(ctx); err != nil {
		return models.UserStats{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.users[identity], nil
}

func (f *fakeRemote) AddUserScore(ctx context.Context, identity string, delta int, at time.Time) (models.UserStats, error) {
	if err := f.gate(ctx); err != nil {
		return models.UserStats{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	stats := f.users[identity]
	stats.TotalScore += delta
	stats.LastPlayed = at
	f.users[identity] = stats
	return stats, nil
}

func (f *fakeRemote) Close(ctx context.Context) error { return nil }

func testRecord(score int) models.SessionRecord {
	return models.SessionRecord{
		ID:             fmt.Sprintf("rec-%d", score),
		Timestamp:      time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Score:          score,
		CorrectCount:   1,
		TotalQuestions: 1,
		Details: []models.AnswerLogEntry{
			{QuestionID: "q1", Term: "矛盾", IsCorrect: true, ElapsedSeconds: 2},
		},
	}
}

func newTestRemote(store *fakeRemote, timeout time.Duration) (*Remote, *Local) {
	local := NewLocal(NewMemoryKV(), DefaultLocalHistoryCap, nil)
	remote := NewRemote(store, local, Options{Timeout: timeout})
	return remote, local
}

func TestLocalHistoryRingBuffer(t *testing.T) {
	ctx := context.Background()
	local := NewLocal(NewMemoryKV(), 50, nil)

	for i := 1; i <= 60; i++ {
		res := local.SaveRecord(ctx, testRecord(i))
		if !res.Persisted || res.Location != models.LocationLocal {
			t.Fatalf("SaveRecord() = %+v, want local persisted", res)
		}
	}

	history := local.GetHistory(ctx)
	if len(history) != 50 {
		t.Fatalf("history length = %d, want 50", len(history))
	}
	if history[0].Score != 60 {
		t.Errorf("newest record first: got score %d, want 60", history[0].Score)
	}
	if history[49].Score != 11 {
		t.Errorf("oldest kept record: got score %d, want 11", history[49].Score)
	}
}

func TestLocalEmptyDefaults(t *testing.T) {
	ctx := context.Background()
	local := NewLocal(NewMemoryKV(), 0, nil)

	if got := local.GetHistory(ctx); got == nil || len(got) != 0 {
		t.Errorf("GetHistory() = %v, want empty slice", got)
	}
	if got := local.GetUserStats(ctx); got.TotalScore != 0 {
		t.Errorf("GetUserStats() = %+v, want zero", got)
	}
	if _, ok := local.FetchQuestions(ctx); ok {
		t.Error("local backend should not provide questions")
	}
}

func TestUpdateUserStatsIsCumulative(t *testing.T) {
	ctx := context.Background()

	t.Run("local", func(t *testing.T) {
		local := NewLocal(NewMemoryKV(), 0, nil)
		local.UpdateUserStats(ctx, 1000)
		previous := local.GetUserStats(ctx).TotalScore

		local.UpdateUserStats(ctx, 100)
		got := local.UpdateUserStats(ctx, 50)

		if got.TotalScore != previous+150 {
			t.Errorf("TotalScore = %d, want %d", got.TotalScore, previous+150)
		}
	})

	t.Run("remote", func(t *testing.T) {
		store := newFakeRemote()
		remote, _ := newTestRemote(store, time.Second)
		b := remote.ForIdentity("alice")
		b.UpdateUserStats(ctx, 1000)

		b.UpdateUserStats(ctx, 100)
		got := b.UpdateUserStats(ctx, 50)

		if got.TotalScore != 1150 {
			t.Errorf("TotalScore = %d, want 1150", got.TotalScore)
		}
		if b.GetUserStats(ctx).TotalScore != 1150 {
			t.Errorf("stored total = %d, want 1150", b.GetUserStats(ctx).TotalScore)
		}
	})
}

func TestRemoteSaveRecordSuccess(t *testing.T) {
	ctx := context.Background()
	store := newFakeRemote()
	remote, local := newTestRemote(store, time.Second)
	b := remote.ForIdentity("alice")

	res := b.SaveRecord(ctx, testRecord(200))

	if !res.Persisted || res.Location != models.LocationRemote || res.Cause != KindNone {
		t.Fatalf("SaveRecord() = %+v, want remote success", res)
	}
	if len(store.records["alice"]) != 1 {
		t.Errorf("remote records = %d, want 1", len(store.records["alice"]))
	}
	if len(local.ForIdentity("alice").GetHistory(ctx)) != 0 {
		t.Error("record should not be written locally on success")
	}
	if got := b.GetHistory(ctx); len(got) != 1 || got[0].Score != 200 {
		t.Errorf("GetHistory() = %+v", got)
	}
}

func TestRemoteSaveRecordTimeoutFallsBack(t *testing.T) {
	ctx := context.Background()
	store := newFakeRemote()
	store.block = true
	remote, _ := newTestRemote(store, 20*time.Millisecond)
	b := remote.ForIdentity("alice")

	res := b.SaveRecord(ctx, testRecord(300))

	if res.Location != models.LocationLocal {
		t.Fatalf("Location = %v, want local", res.Location)
	}
	if !res.Persisted {
		t.Error("record should be persisted locally")
	}
	if res.Cause != KindTimeout {
		t.Errorf("Cause = %v, want %v", res.Cause, KindTimeout)
	}

	history := b.GetHistory(ctx)
	if len(history) != 1 || history[0].ID != "rec-300" {
		t.Errorf("GetHistory() = %+v, want the fallback record", history)
	}
}

func TestRemoteSaveRecordClassifiesFailures(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{name: "permission denied", err: NewError("insert", KindPermissionDenied, errors.New("denied")), want: KindPermissionDenied},
		{name: "unavailable", err: NewError("insert", KindRemoteUnavailable, errors.New("offline")), want: KindRemoteUnavailable},
		{name: "deadline from driver", err: fmt.Errorf("wrapped: %w", context.DeadlineExceeded), want: KindTimeout},
		{name: "anything else", err: errors.New("boom"), want: KindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newFakeRemote()
			store.fail = tt.err
			remote, _ := newTestRemote(store, time.Second)

			res := remote.ForIdentity("bob").SaveRecord(context.Background(), testRecord(10))

			if res.Location != models.LocationLocal || !res.Persisted {
				t.Fatalf("SaveRecord() = %+v, want local fallback", res)
			}
			if res.Cause != tt.want {
				t.Errorf("Cause = %v, want %v", res.Cause, tt.want)
			}
			if res.Err == nil {
				t.Error("expected the remote error to be reported")
			}
		})
	}
}

func TestRemoteWithoutIdentityStaysLocal(t *testing.T) {
	ctx := context.Background()
	store := newFakeRemote()
	remote, _ := newTestRemote(store, time.Second)
	b := remote.ForGuest("guest-1")

	res := b.SaveRecord(ctx, testRecord(100))
	if res.Location != models.LocationLocal || !res.Persisted {
		t.Fatalf("SaveRecord() = %+v, want local", res)
	}
	if res.Cause != KindAuthRequired {
		t.Errorf("Cause = %v, want %v", res.Cause, KindAuthRequired)
	}
	if res.Err != nil {
		t.Errorf("no error should surface without identity, got %v", res.Err)
	}

	b.UpdateUserStats(ctx, 40)
	if len(store.records) != 0 || len(store.users) != 0 {
		t.Error("guest data reached the remote store")
	}
	if got := b.GetUserStats(ctx).TotalScore; got != 40 {
		t.Errorf("guest total = %d, want 40", got)
	}
}

func TestGuestsAreIsolated(t *testing.T) {
	ctx := context.Background()
	local := NewLocal(NewMemoryKV(), 0, nil)

	local.ForGuest("a").UpdateUserStats(ctx, 10)
	local.ForGuest("b").UpdateUserStats(ctx, 99)

	if got := local.ForGuest("a").GetUserStats(ctx).TotalScore; got != 10 {
		t.Errorf("guest a total = %d, want 10", got)
	}
	if got := local.GetUserStats(ctx).TotalScore; got != 0 {
		t.Errorf("unscoped total = %d, want 0", got)
	}
}

func TestUpdateWordStatsFallsBackLocally(t *testing.T) {
	ctx := context.Background()
	store := newFakeRemote()
	store.fail = NewError("increment", KindPermissionDenied, errors.New("denied"))
	remote, _ := newTestRemote(store, time.Second)
	b := remote.ForIdentity("carol")

	details := []models.AnswerLogEntry{
		{QuestionID: "q1", Term: "矛盾", IsCorrect: true},
		{QuestionID: "q2", Term: "蛇足", IsCorrect: false},
	}
	res := b.UpdateWordStats(ctx, details)
	if res.Location != models.LocationLocal || res.Cause != KindPermissionDenied {
		t.Fatalf("UpdateWordStats() = %+v", res)
	}
	b.UpdateWordStats(ctx, details[:1])

	stats := b.GetWordStats(ctx, SortCorrect)
	if len(stats) != 2 {
		t.Fatalf("word stats = %d, want 2", len(stats))
	}
	first := stats[0]
	if first.QuestionID != "q1" || first.Total != 2 || first.Correct != 2 || first.Wrong != 0 {
		t.Errorf("q1 stats = %+v", first)
	}
	for _, ws := range stats {
		if ws.Total != ws.Correct+ws.Wrong {
			t.Errorf("total != correct + wrong for %+v", ws)
		}
	}
}

func TestUpdateWordStatsFallsBackOnlyForUnappliedEntries(t *testing.T) {
	ctx := context.Background()
	store := newFakeRemote()
	store.wordLimit = 1
	remote, local := newTestRemote(store, time.Second)
	b := remote.ForIdentity("erin")

	details := []models.AnswerLogEntry{
		{QuestionID: "q1", IsCorrect: true},
		{QuestionID: "q2", IsCorrect: false},
		{QuestionID: "q3", IsCorrect: true},
	}
	res := b.UpdateWordStats(ctx, details)
	if !res.Persisted || res.Location != models.LocationLocal || res.Cause != KindUnknown {
		t.Fatalf("UpdateWordStats() = %+v", res)
	}

	if got := store.words["erin"]; len(got) != 1 || got["q1"].Total != 1 {
		t.Errorf("remote word stats = %+v, want only q1", got)
	}
	localStats := local.ForIdentity("erin").GetWordStats(ctx, SortRecent)
	if len(localStats) != 2 {
		t.Fatalf("local word stats = %+v, want q2 and q3", localStats)
	}
	for _, ws := range localStats {
		if ws.QuestionID == "q1" {
			t.Errorf("q1 counted locally as well: %+v", ws)
		}
	}
}

func TestRemoteWordStatsIncrements(t *testing.T) {
	ctx := context.Background()
	store := newFakeRemote()
	remote, _ := newTestRemote(store, time.Second)
	b := remote.ForIdentity("dave")

	res := b.UpdateWordStats(ctx, []models.AnswerLogEntry{{QuestionID: "q1", IsCorrect: false}})
	if res.Location != models.LocationRemote {
		t.Fatalf("UpdateWordStats() = %+v, want remote", res)
	}

	stats := b.GetWordStats(ctx, SortWrong)
	if len(stats) != 1 || stats[0].Wrong != 1 {
		t.Errorf("GetWordStats() = %+v", stats)
	}
}

func TestFetchQuestions(t *testing.T) {
	ctx := context.Background()

	store := newFakeRemote()
	store.questions = []models.Question{{ID: "1", Term: "矛盾"}}
	remote, _ := newTestRemote(store, time.Second)
	qs, ok := remote.FetchQuestions(ctx)
	if !ok || len(qs) != 1 {
		t.Errorf("FetchQuestions() = %v, %v", qs, ok)
	}

	empty := newFakeRemote()
	remote, _ = newTestRemote(empty, time.Second)
	if _, ok := remote.FetchQuestions(ctx); ok {
		t.Error("empty remote set should be reported unavailable")
	}

	failing := newFakeRemote()
	failing.fail = errors.New("offline")
	remote, _ = newTestRemote(failing, time.Second)
	if _, ok := remote.FetchQuestions(ctx); ok {
		t.Error("failing remote should be reported unavailable")
	}
}

func TestNewSelectsLocalWithoutRemote(t *testing.T) {
	local := NewLocal(NewMemoryKV(), 0, nil)
	if b := New(nil, local, Options{}); b != Backend(local) {
		t.Errorf("New(nil, ...) = %T, want *Local", b)
	}
	if b := New(newFakeRemote(), local, Options{}); b == Backend(local) {
		t.Error("New(remote, ...) should wrap the remote store")
	}
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{name: "nil", err: nil, want: KindNone},
		{name: "classified", err: ErrNoIdentity, want: KindAuthRequired},
		{name: "wrapped classified", err: fmt.Errorf("save: %w", ErrRemoteNotConfigured), want: KindRemoteUnavailable},
		{name: "deadline", err: context.DeadlineExceeded, want: KindTimeout},
		{name: "plain", err: errors.New("x"), want: KindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.want {
				t.Errorf("KindOf() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestClassifyUsesPredicate(t *testing.T) {
	denied := errors.New("driver says no")
	err := Classify("insert", denied, func(err error) bool { return errors.Is(err, denied) })
	if KindOf(err) != KindPermissionDenied {
		t.Errorf("KindOf() = %v, want %v", KindOf(err), KindPermissionDenied)
	}
	if !errors.Is(err, denied) {
		t.Error("classified error should unwrap to the driver error")
	}
}

func TestLocalExportImport(t *testing.T) {
	ctx := context.Background()
	src := NewLocal(NewMemoryKV(), 0, nil)
	src.SaveRecord(ctx, testRecord(1))
	src.UpdateUserStats(ctx, 500)
	src.UpdateWordStats(ctx, testRecord(1).Details)

	snap, err := src.Export(ctx)
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}

	dst := NewLocal(NewMemoryKV(), 0, nil)
	if err := dst.Import(ctx, snap); err != nil {
		t.Fatalf("Import() error = %v", err)
	}
	if got := dst.GetUserStats(ctx).TotalScore; got != 500 {
		t.Errorf("imported total = %d, want 500", got)
	}
	if got := len(dst.GetHistory(ctx)); got != 1 {
		t.Errorf("imported history = %d, want 1", got)
	}
	if got := len(dst.GetWordStats(ctx, SortRecent)); got != 1 {
		t.Errorf("imported word stats = %d, want 1", got)
	}
}

// flakyKV fails the next getFailures reads before delegating to MemoryKV
type flakyKV struct {
	*MemoryKV
	getFailures int
}

func (f *flakyKV) Get(ctx context.Context, key string) (string, bool, error) {
	if f.getFailures > 0 {
		f.getFailures--
		return "", false, errors.New("database is locked")
	}
	return f.MemoryKV.Get(ctx, key)
}

func TestLocalReadFailureKeepsStoredData(t *testing.T) {
	ctx := context.Background()
	kv := &flakyKV{MemoryKV: NewMemoryKV()}
	local := NewLocal(kv, 0, nil)

	local.UpdateUserStats(ctx, 10000)
	for i := 1; i <= 5; i++ {
		local.SaveRecord(ctx, testRecord(i))
	}
	local.UpdateWordStats(ctx, testRecord(1).Details)

	kv.getFailures = 1
	local.UpdateUserStats(ctx, 100)
	if got := local.GetUserStats(ctx).TotalScore; got != 10000 {
		t.Errorf("total after failed read = %d, want 10000", got)
	}
	if got := local.UpdateUserStats(ctx, 100).TotalScore; got != 10100 {
		t.Errorf("total after recovery = %d, want 10100", got)
	}

	kv.getFailures = 1
	if res := local.SaveRecord(ctx, testRecord(6)); res.Persisted || res.Err == nil {
		t.Errorf("SaveRecord() = %+v, want not persisted with error", res)
	}
	if got := len(local.GetHistory(ctx)); got != 5 {
		t.Errorf("history length after failed read = %d, want 5", got)
	}
	if res := local.SaveRecord(ctx, testRecord(6)); !res.Persisted {
		t.Fatalf("SaveRecord() after recovery = %+v, want persisted", res)
	}
	if got := len(local.GetHistory(ctx)); got != 6 {
		t.Errorf("history length after recovery = %d, want 6", got)
	}

	kv.getFailures = 1
	if res := local.UpdateWordStats(ctx, testRecord(1).Details); res.Persisted {
		t.Errorf("UpdateWordStats() = %+v, want not persisted", res)
	}
	stats := local.GetWordStats(ctx, SortRecent)
	if len(stats) != 1 || stats[0].Total != 1 {
		t.Errorf("word stats after failed read = %+v, want q1 with total 1", stats)
	}
}

func TestLocalCorruptBlobStartsOver(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryKV()
	local := NewLocal(kv, 0, nil)
	kv.Set(ctx, KeyUserStats, "{not json")
	kv.Set(ctx, KeyHistory, "[")

	if got := local.UpdateUserStats(ctx, 100).TotalScore; got != 100 {
		t.Errorf("total after corrupt blob = %d, want 100", got)
	}
	if res := local.SaveRecord(ctx, testRecord(1)); !res.Persisted {
		t.Errorf("SaveRecord() = %+v, want persisted", res)
	}
	if got := len(local.GetHistory(ctx)); got != 1 {
		t.Errorf("history length = %d, want 1", got)
	}
}
