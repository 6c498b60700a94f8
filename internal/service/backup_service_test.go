package service

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"hayaoshi/internal/models"
	"hayaoshi/internal/storage"
)

func TestBackupRoundTrip(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewMemoryKV()
	local := storage.NewLocal(kv, 0, nil)

	alice := local.ForIdentity("alice")
	alice.SaveRecord(ctx, models.SessionRecord{ID: "a1", Timestamp: time.Unix(1700000000, 0), Score: 300})
	alice.UpdateUserStats(ctx, 300)
	guest := local.ForGuest("g1")
	guest.UpdateWordStats(ctx, []models.AnswerLogEntry{{QuestionID: "q1", Term: "猫", IsCorrect: true}})

	var buf bytes.Buffer
	backup, err := NewBackupService(kv, local).ExportTo(ctx, &buf)
	if err != nil {
		t.Fatalf("ExportTo() error = %v", err)
	}
	if len(backup.Players) != 2 {
		t.Fatalf("exported players = %d, want 2", len(backup.Players))
	}

	restoredKV := storage.NewMemoryKV()
	restored := storage.NewLocal(restoredKV, 0, nil)
	if err := NewBackupService(restoredKV, restored).ImportFromReader(ctx, &buf); err != nil {
		t.Fatalf("ImportFromReader() error = %v", err)
	}

	if got := restored.ForIdentity("alice").GetUserStats(ctx).TotalScore; got != 300 {
		t.Errorf("alice total = %d, want 300", got)
	}
	if got := len(restored.ForIdentity("alice").GetHistory(ctx)); got != 1 {
		t.Errorf("alice history = %d, want 1", got)
	}
	stats := restored.ForGuest("g1").GetWordStats(ctx, storage.SortCorrect)
	if len(stats) != 1 || stats[0].Correct != 1 {
		t.Errorf("guest word stats = %+v, want one entry with 1 correct", stats)
	}
}

func TestImportRejectsUnknownVersion(t *testing.T) {
	kv := storage.NewMemoryKV()
	svc := NewBackupService(kv, storage.NewLocal(kv, 0, nil))

	err := svc.ImportFromReader(context.Background(), strings.NewReader(`{"version":"9.9","players":[]}`))
	if err == nil {
		t.Fatal("ImportFromReader() error = nil, want version error")
	}
}
