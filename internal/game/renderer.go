package game

import "hayaoshi/internal/models"

// Screens announced through Renderer.ShowScreen
const (
	ScreenLoading = "loading"
	ScreenGame    = "game"
	ScreenResult  = "result"
)

// Question sources announced through Renderer.ShowDataSource
const (
	SourceCloud = "cloud"
	SourceLocal = "local"
)

// QuestionView is what a player sees for one question. Choices are already
// shuffled for display.
type QuestionView struct {
	ID        string              `json:"id"`
	Term      string              `json:"term"`
	Reading   string              `json:"reading,omitempty"`
	Type      models.QuestionType `json:"type"`
	TypeLabel string              `json:"typeLabel"`
	Choices   []string            `json:"choices"`
}

// Renderer receives presentation notifications. The engine never reads
// anything back from it.
type Renderer interface {
	ShowScreen(name string)
	RenderQuestion(q QuestionView, index int)
	UpdateTimer(pct float64)
	UpdateScore(score int)
	ShowFeedback(correct bool)
	RenderResult(score, correct, total int)
	ShowDataSource(source string)
	SetSaveStatus(msg string)
	ShowUnlock(reward models.Reward)
	ApplyDecorations(rewards []models.Reward)
}

// NopRenderer ignores every notification
type NopRenderer struct{}

func (NopRenderer) ShowScreen(string)                {}
func (NopRenderer) RenderQuestion(QuestionView, int) {}
func (NopRenderer) UpdateTimer(float64)              {}
func (NopRenderer) UpdateScore(int)                  {}
func (NopRenderer) ShowFeedback(bool)                {}
func (NopRenderer) RenderResult(int, int, int)       {}
func (NopRenderer) ShowDataSource(string)            {}
func (NopRenderer) SetSaveStatus(string)             {}
func (NopRenderer) ShowUnlock(models.Reward)         {}
func (NopRenderer) ApplyDecorations([]models.Reward) {}
