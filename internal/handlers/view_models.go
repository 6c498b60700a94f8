package handlers

import (
	"hayaoshi/internal/game"
	"hayaoshi/internal/models"
)

// ResultView is the summary shown on the result screen
type ResultView struct {
	Score   int `json:"score"`
	Correct int `json:"correct"`
	Total   int `json:"total"`
}

// PlayView collects what the engine asks to be displayed, so a client can
// poll it. It is guarded by the lock of the session that owns it.
type PlayView struct {
	Screen      string             `json:"screen"`
	DataSource  string             `json:"dataSource,omitempty"`
	Question    *game.QuestionView `json:"question,omitempty"`
	Index       int                `json:"index"`
	TimerPct    float64            `json:"timerPct"`
	Score       int                `json:"score"`
	Feedback    *bool              `json:"feedback,omitempty"`
	Result      *ResultView        `json:"result,omitempty"`
	SaveStatus  string             `json:"saveStatus,omitempty"`
	Unlocked    *models.Reward     `json:"unlocked,omitempty"`
	Decorations []models.Reward    `json:"decorations"`
}

var _ game.Renderer = (*PlayView)(nil)

func (v *PlayView) ShowScreen(name string) {
	v.Screen = name
	if name == game.ScreenLoading {
		v.Question = nil
		v.Feedback = nil
		v.Result = nil
		v.SaveStatus = ""
		v.Unlocked = nil
	}
}

func (v *PlayView) RenderQuestion(q game.QuestionView, index int) {
	v.Question = &q
	v.Index = index
	v.Feedback = nil
}

func (v *PlayView) UpdateTimer(pct float64) { v.TimerPct = pct }

func (v *PlayView) UpdateScore(score int) { v.Score = score }

func (v *PlayView) ShowFeedback(correct bool) { v.Feedback = &correct }

func (v *PlayView) RenderResult(score, correct, total int) {
	v.Question = nil
	v.Result = &ResultView{Score: score, Correct: correct, Total: total}
}

func (v *PlayView) ShowDataSource(source string) { v.DataSource = source }

func (v *PlayView) SetSaveStatus(msg string) { v.SaveStatus = msg }

func (v *PlayView) ShowUnlock(reward models.Reward) { v.Unlocked = &reward }

func (v *PlayView) ApplyDecorations(rewards []models.Reward) {
	v.Decorations = append([]models.Reward(nil), rewards...)
}

// GameState is the response of every game endpoint
type GameState struct {
	State       game.State              `json:"state"`
	Index       int                     `json:"index"`
	Total       int                     `json:"total"`
	RemainingMs int64                   `json:"remainingMs"`
	Answered    bool                    `json:"answered"`
	Score       int                     `json:"score"`
	Log         []models.AnswerLogEntry `json:"log"`
	Record      *models.SessionRecord   `json:"record,omitempty"`
	Outcome     *game.Outcome           `json:"outcome,omitempty"`
	View        PlayView                `json:"view"`
}

// AnswerResponse wraps the scored answer with the state after it
type AnswerResponse struct {
	Result game.AnswerResult `json:"result"`
	GameState
}

func newGameState(s game.Snapshot, v *PlayView) GameState {
	return GameState{
		State:       s.State,
		Index:       s.Index,
		Total:       s.Total,
		RemainingMs: s.Remaining.Milliseconds(),
		Answered:    s.Answered,
		Score:       s.Score,
		Log:         s.Log,
		Record:      s.Record,
		Outcome:     s.Outcome,
		View:        *v,
	}
}
