package repository

import (
	"context"
	"path/filepath"
	"testing"

	"hayaoshi/internal/database"
	"hayaoshi/internal/models"
	"hayaoshi/internal/storage"
)

func setupTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.Initialize(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to initialize database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestKVRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewKVRepository(setupTestDB(t))

	if _, ok, err := repo.Get(ctx, "missing"); err != nil || ok {
		t.Fatalf("Get(missing) = ok %v, err %v; want not found", ok, err)
	}

	if err := repo.Set(ctx, "u/alice/user_stats", `{"totalScore":1}`); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := repo.Set(ctx, "u/alice/user_stats", `{"totalScore":2}`); err != nil {
		t.Fatalf("second Set() error = %v", err)
	}

	value, ok, err := repo.Get(ctx, "u/alice/user_stats")
	if err != nil || !ok {
		t.Fatalf("Get() = ok %v, err %v", ok, err)
	}
	if value != `{"totalScore":2}` {
		t.Errorf("Get() = %v, want the last written value", value)
	}

	repo.Set(ctx, "u/bob/user_stats", "{}")
	keys, err := repo.Keys(ctx, "u/alice/")
	if err != nil {
		t.Fatalf("Keys() error = %v", err)
	}
	if len(keys) != 1 || keys[0] != "u/alice/user_stats" {
		t.Errorf("Keys() = %v", keys)
	}
}

func TestKVRepositoryBacksLocalStorage(t *testing.T) {
	ctx := context.Background()
	local := storage.NewLocal(NewKVRepository(setupTestDB(t)), 3, nil)

	for i := 1; i <= 5; i++ {
		res := local.SaveRecord(ctx, models.SessionRecord{ID: string(rune('a' + i)), Score: i * 100})
		if !res.Persisted {
			t.Fatalf("SaveRecord() = %+v", res)
		}
	}
	local.UpdateUserStats(ctx, 100)
	local.UpdateUserStats(ctx, 50)

	history := local.GetHistory(ctx)
	if len(history) != 3 || history[0].Score != 500 {
		t.Errorf("history = %+v, want 3 records newest first", history)
	}
	if got := local.GetUserStats(ctx).TotalScore; got != 150 {
		t.Errorf("TotalScore = %d, want 150", got)
	}
}
