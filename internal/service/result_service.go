package service

import (
	"context"
	"fmt"
	"log"

	"hayaoshi/internal/game"
	"hayaoshi/internal/metrics"
	"hayaoshi/internal/models"
	"hayaoshi/internal/progression"
	"hayaoshi/internal/storage"
)

// ResultService persists finished rounds for one player and turns the storage
// outcome into what the result screen shows
type ResultService struct {
	backend storage.Backend
	tracker *progression.Tracker
}

// NewResultService creates a result service writing to backend
func NewResultService(backend storage.Backend, tracker *progression.Tracker) *ResultService {
	return &ResultService{backend: backend, tracker: tracker}
}

// Summary is the cumulative progress of a player
type Summary struct {
	TotalScore int               `json:"totalScore"`
	Rank       models.Reward     `json:"rank"`
	Next       *progression.Goal `json:"next,omitempty"`
	Rewards    []models.Reward   `json:"rewards"`
}

// Record saves record, updates word and user stats and reports unlocks.
// Word stats are updated whichever location the record ended up in. All
// remote calls share one time budget; once it is spent the rest go local.
func (s *ResultService) Record(ctx context.Context, record models.SessionRecord) game.Outcome {
	if b, ok := s.backend.(storage.Budgeter); ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.Budget())
		defer cancel()
	}

	res := s.backend.SaveRecord(ctx, record)

	if wres := s.backend.UpdateWordStats(ctx, record.Details); !wres.Persisted {
		log.Printf("Warning: word stats were not saved: %v", wres.Err)
	}

	prevTotal := s.backend.GetUserStats(ctx).TotalScore
	stats := s.backend.UpdateUserStats(ctx, record.Score)

	metrics.RoundsFinished.Inc()
	metrics.RecordSaves.WithLabelValues(string(res.Location), string(res.Cause)).Inc()

	outcome := game.Outcome{
		Location:   res.Location,
		Message:    SaveStatusMessage(res),
		TotalScore: stats.TotalScore,
		Rank:       s.tracker.CurrentRank(stats.TotalScore),
		Rewards:    s.tracker.ActiveRewards(stats.TotalScore),
	}
	if reward, ok := s.tracker.ApplyReward(prevTotal, stats.TotalScore); ok {
		log.Printf("Reward unlocked: %s at %d points", reward.ID, stats.TotalScore)
		outcome.Unlocked = &reward
	}
	return outcome
}

// Summary reads the cumulative score and the rank it earns
func (s *ResultService) Summary(ctx context.Context) Summary {
	total := s.backend.GetUserStats(ctx).TotalScore
	summary := Summary{
		TotalScore: total,
		Rank:       s.tracker.CurrentRank(total),
		Rewards:    s.tracker.ActiveRewards(total),
	}
	if goal, ok := s.tracker.NextGoal(total); ok {
		summary.Next = &goal
	}
	return summary
}

// History lists past rounds, newest first
func (s *ResultService) History(ctx context.Context) []models.SessionRecord {
	return s.backend.GetHistory(ctx)
}

// WordStats lists per-question results ordered by sortKey
func (s *ResultService) WordStats(ctx context.Context, sortKey string) []models.WordStat {
	return s.backend.GetWordStats(ctx, sortKey)
}

// SaveStatusMessage is the line shown under the result
func SaveStatusMessage(res storage.SaveResult) string {
	if !res.Persisted {
		return "保存失敗"
	}
	if res.Location == models.LocationRemote {
		return "保存完了 (クラウド)"
	}
	if res.Cause == storage.KindNone {
		return "保存完了 (端末)"
	}
	return fmt.Sprintf("保存完了 (%sのため端末保存)", causeLabel(res.Cause))
}

func causeLabel(kind storage.ErrorKind) string {
	switch kind {
	case storage.KindPermissionDenied:
		return "権限エラー"
	case storage.KindTimeout:
		return "タイムアウト"
	case storage.KindAuthRequired:
		return "未ログイン"
	case storage.KindRemoteUnavailable:
		return "オフライン"
	default:
		return "通信エラー"
	}
}
