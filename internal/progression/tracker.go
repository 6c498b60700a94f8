// Package progression maps cumulative scores to ranks and unlockable rewards.
package progression

import (
	"sort"

	"hayaoshi/internal/models"
)

// Novice is the rank shown before the first reward is unlocked
var Novice = models.Reward{Threshold: 0, ID: "novice", DisplayName: "見習い", Icon: "🐣"}

// DefaultRewards returns the built-in reward table ordered by threshold
func DefaultRewards() []models.Reward {
	return []models.Reward{
		{Threshold: 5000, ID: "cube", DisplayName: "ブロンズ・キューブ", Icon: "🟫"},
		{Threshold: 15000, ID: "hex", DisplayName: "シルバー・ヘキサ", Icon: "⚪"},
		{Threshold: 30000, ID: "star", DisplayName: "ゴールド・スター", Icon: "⭐"},
		{Threshold: 50000, ID: "heart", DisplayName: "フローティング・ハート", Icon: "💖"},
	}
}

// Goal describes the distance to the next reward
type Goal struct {
	Next      models.Reward `json:"next"`
	Remaining int           `json:"remaining"`
	Progress  float64       `json:"progress"` // 0-100, measured from the current rank
}

// Tracker evaluates a fixed, threshold-ordered reward table
type Tracker struct {
	rewards []models.Reward
}

// NewTracker creates a tracker over a copy of rewards sorted by threshold
func NewTracker(rewards []models.Reward) *Tracker {
	sorted := make([]models.Reward, len(rewards))
	copy(sorted, rewards)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Threshold < sorted[j].Threshold
	})
	return &Tracker{rewards: sorted}
}

// Rewards returns the reward table
func (t *Tracker) Rewards() []models.Reward {
	out := make([]models.Reward, len(t.rewards))
	copy(out, t.rewards)
	return out
}

// ApplyReward returns the highest reward whose threshold was crossed when the total
// moved from previousTotal to newTotal. Only one reward is reported even when
// several thresholds were crossed at once.
func (t *Tracker) ApplyReward(previousTotal, newTotal int) (models.Reward, bool) {
	var unlocked models.Reward
	found := false
	for _, r := range t.rewards {
		if r.Threshold <= newTotal && r.Threshold > previousTotal {
			unlocked = r
			found = true
		}
	}
	return unlocked, found
}

// ActiveRewards returns every reward reached by total
func (t *Tracker) ActiveRewards(total int) []models.Reward {
	active := make([]models.Reward, 0, len(t.rewards))
	for _, r := range t.rewards {
		if r.Threshold <= total {
			active = append(active, r)
		}
	}
	return active
}

// CurrentRank returns the highest reward reached by total, or Novice
func (t *Tracker) CurrentRank(total int) models.Reward {
	rank := Novice
	for _, r := range t.rewards {
		if r.Threshold <= total {
			rank = r
		}
	}
	return rank
}

// NextGoal reports the next reward to unlock. ok is false at the top rank.
func (t *Tracker) NextGoal(total int) (Goal, bool) {
	current := t.CurrentRank(total)
	for _, r := range t.rewards {
		if r.Threshold <= total {
			continue
		}
		span := r.Threshold - current.Threshold
		progress := 0.0
		if span > 0 {
			progress = float64(total-current.Threshold) / float64(span) * 100
		}
		if progress < 0 {
			progress = 0
		}
		if progress > 100 {
			progress = 100
		}
		return Goal{Next: r, Remaining: r.Threshold - total, Progress: progress}, true
	}
	return Goal{}, false
}
