// Package game drives a single timed quiz round. The engine is tick driven:
// an outer scheduler feeds it elapsed time, so the state machine itself never
// sleeps and can be fast-forwarded in tests.
package game

import (
	"context"
	"errors"
	"log"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"hayaoshi/internal/models"
	"hayaoshi/internal/questions"
)

// State of the engine
type State string

const (
	StateIdle     State = "idle"
	StateLoading  State = "loading"
	StateInRound  State = "in_round"
	StateScoring  State = "scoring"
	StateFinished State = "finished"
)

// Mode selects the question direction
type Mode string

const (
	ModeForward Mode = "forward"
	// ModeReverse asks for the term given its meaning. It is not supported.
	ModeReverse Mode = "reverse"
)

const (
	DefaultRoundSize     = 10
	DefaultQuestionTime  = 10 * time.Second
	DefaultFeedbackDelay = time.Second

	basePoints = 100
	bonusUnit  = 100 * time.Millisecond
)

var (
	ErrNotInRound          = errors.New("no round in progress")
	ErrAlreadyAnswered     = errors.New("question already answered")
	ErrNotAnswered         = errors.New("current question not answered yet")
	ErrReverseModeDisabled = errors.New("reverse question mode is disabled")
)

// QuestionSource provides the remote question set. ok is false when the
// source is unavailable; the engine then uses its bundled questions.
type QuestionSource interface {
	FetchQuestions(ctx context.Context) (qs []models.Question, ok bool)
}

// Outcome is what the recorder reports back after a round was saved
type Outcome struct {
	Location   models.Location `json:"location"`
	Message    string          `json:"message"`
	TotalScore int             `json:"totalScore"`
	Unlocked   *models.Reward  `json:"unlocked,omitempty"`
	Rank       models.Reward   `json:"rank"`
	Rewards    []models.Reward `json:"rewards"`
}

// Recorder persists a finished round. It must not fail: problems are folded
// into the returned Outcome.
type Recorder interface {
	Record(ctx context.Context, record models.SessionRecord) Outcome
}

// Config holds the round parameters
type Config struct {
	RoundSize     int
	QuestionTime  time.Duration
	FeedbackDelay time.Duration
	Mode          Mode
}

// Deps are the collaborators of an engine
type Deps struct {
	Source   QuestionSource
	Fallback []models.Question
	Renderer Renderer
	Recorder Recorder
	Rand     *rand.Rand
	Now      func() time.Time
	NewID    func() string
}

// AnswerResult is returned for every scored answer
type AnswerResult struct {
	Correct       bool   `json:"correct"`
	Points        int    `json:"points"`
	CorrectChoice string `json:"correctChoice"`
}

// Snapshot is a read-only copy of the engine state
type Snapshot struct {
	State     State                   `json:"state"`
	Source    string                  `json:"source,omitempty"`
	Index     int                     `json:"index"`
	Total     int                     `json:"total"`
	Remaining time.Duration           `json:"remaining"`
	Answered  bool                    `json:"answered"`
	Score     int                     `json:"score"`
	Question  *QuestionView           `json:"question,omitempty"`
	Log       []models.AnswerLogEntry `json:"log"`
	Record    *models.SessionRecord   `json:"record,omitempty"`
	Outcome   *Outcome                `json:"outcome,omitempty"`
}

// Engine runs one round at a time. It is not safe for concurrent use;
// callers serialize access.
type Engine struct {
	cfg  Config
	deps Deps

	state     State
	source    string
	round     []models.Question
	index     int
	current   QuestionView
	remaining time.Duration
	answered  bool
	// feedback delay left before the next question; only meaningful when answered
	pending time.Duration
	score   int
	log     []models.AnswerLogEntry
	record  *models.SessionRecord
	outcome *Outcome
}

// New creates an idle engine
func New(cfg Config, deps Deps) (*Engine, error) {
	if cfg.Mode == "" {
		cfg.Mode = ModeForward
	}
	if cfg.Mode == ModeReverse {
		return nil, ErrReverseModeDisabled
	}
	if cfg.Mode != ModeForward {
		return nil, errors.New("unknown question mode: " + string(cfg.Mode))
	}
	if cfg.RoundSize <= 0 {
		cfg.RoundSize = DefaultRoundSize
	}
	if cfg.QuestionTime <= 0 {
		cfg.QuestionTime = DefaultQuestionTime
	}
	if cfg.FeedbackDelay <= 0 {
		cfg.FeedbackDelay = DefaultFeedbackDelay
	}

	if deps.Renderer == nil {
		deps.Renderer = NopRenderer{}
	}
	if deps.Rand == nil {
		deps.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.NewID == nil {
		deps.NewID = uuid.NewString
	}

	return &Engine{cfg: cfg, deps: deps, state: StateIdle}, nil
}

// Points scores one answer. The time bonus is one point per remaining
// tenth of a second.
func Points(correct bool, remaining time.Duration) int {
	if !correct {
		return 0
	}
	bonus := 0
	if remaining > 0 {
		bonus = int(remaining / bonusUnit)
	}
	return basePoints + bonus
}

// State returns the current state
func (e *Engine) State() State {
	return e.state
}

// Start loads questions and begins a new round. A round in progress is
// abandoned and its answers are discarded.
func (e *Engine) Start(ctx context.Context) error {
	if e.state == StateInRound {
		log.Printf("Abandoning round at question %d of %d", e.index+1, len(e.round))
	}
	e.reset()
	e.state = StateLoading
	e.deps.Renderer.ShowScreen(ScreenLoading)

	var all []models.Question
	e.source = SourceLocal
	if e.deps.Source != nil {
		if qs, ok := e.deps.Source.FetchQuestions(ctx); ok && len(qs) > 0 {
			if valid := questions.Playable(qs); len(valid) > 0 {
				all = valid
				e.source = SourceCloud
			} else {
				log.Printf("Warning: none of %d fetched questions is playable, using bundled set", len(qs))
			}
		}
	}
	if e.source == SourceLocal {
		all = e.deps.Fallback
	}
	e.deps.Renderer.ShowDataSource(e.source)

	e.round = questions.SelectRound(all, e.cfg.RoundSize, e.deps.Rand)
	if len(e.round) == 0 {
		log.Printf("Warning: no questions available, finishing empty round")
		e.finish(ctx)
		return nil
	}

	e.state = StateInRound
	e.deps.Renderer.ShowScreen(ScreenGame)
	e.deps.Renderer.UpdateScore(0)
	e.present()
	return nil
}

// Tick advances the clock by dt. It counts down the current question and,
// once answered, the feedback delay before the next one.
func (e *Engine) Tick(ctx context.Context, dt time.Duration) {
	if e.state != StateInRound || dt <= 0 {
		return
	}

	if e.answered {
		e.pending -= dt
		if e.pending <= 0 {
			e.next(ctx)
		}
		return
	}

	e.remaining -= dt
	if e.remaining <= 0 {
		e.remaining = 0
		e.deps.Renderer.UpdateTimer(0)
		e.answer(ctx, "", true)
		return
	}
	e.deps.Renderer.UpdateTimer(e.timerPct())
}

// SubmitAnswer scores choice for the current question
func (e *Engine) SubmitAnswer(ctx context.Context, choice string) (AnswerResult, error) {
	if e.state != StateInRound {
		return AnswerResult{}, ErrNotInRound
	}
	if e.answered {
		return AnswerResult{}, ErrAlreadyAnswered
	}
	return e.answer(ctx, choice, false), nil
}

// Advance skips the remaining feedback delay and moves to the next question
func (e *Engine) Advance(ctx context.Context) error {
	if e.state != StateInRound {
		return ErrNotInRound
	}
	if !e.answered {
		return ErrNotAnswered
	}
	e.next(ctx)
	return nil
}

// Snapshot copies the observable state
func (e *Engine) Snapshot() Snapshot {
	s := Snapshot{
		State:     e.state,
		Source:    e.source,
		Index:     e.index,
		Total:     len(e.round),
		Remaining: e.remaining,
		Answered:  e.answered,
		Score:     e.score,
		Log:       append([]models.AnswerLogEntry(nil), e.log...),
		Record:    e.record,
		Outcome:   e.outcome,
	}
	if e.state == StateInRound {
		q := e.current
		s.Question = &q
	}
	return s
}

func (e *Engine) reset() {
	e.round = nil
	e.index = 0
	e.current = QuestionView{}
	e.remaining = 0
	e.answered = false
	e.pending = 0
	e.score = 0
	e.log = nil
	e.record = nil
	e.outcome = nil
}

func (e *Engine) present() {
	q := e.round[e.index]
	e.remaining = e.cfg.QuestionTime
	e.answered = false
	e.pending = 0
	e.current = QuestionView{
		ID:        q.ID,
		Term:      q.Term,
		Reading:   q.Reading,
		Type:      q.Type,
		TypeLabel: q.Type.Label(),
		Choices:   questions.DisplayChoices(q, e.deps.Rand),
	}
	e.deps.Renderer.RenderQuestion(e.current, e.index)
	e.deps.Renderer.UpdateTimer(100)
}

// answer scores the current question. A timeout counts as a wrong answer
// with no choice selected.
func (e *Engine) answer(ctx context.Context, choice string, timedOut bool) AnswerResult {
	q := e.round[e.index]
	correct := !timedOut && choice == q.Answer()
	points := Points(correct, e.remaining)

	e.score += points
	e.log = append(e.log, models.AnswerLogEntry{
		QuestionID:     q.ID,
		Term:           q.Term,
		Meaning:        q.Meaning,
		Type:           q.Type,
		IsCorrect:      correct,
		ElapsedSeconds: (e.cfg.QuestionTime - e.remaining).Seconds(),
	})
	e.answered = true
	e.pending = e.cfg.FeedbackDelay

	e.deps.Renderer.UpdateScore(e.score)
	e.deps.Renderer.ShowFeedback(correct)

	result := AnswerResult{Correct: correct, Points: points, CorrectChoice: q.Answer()}
	if e.pending <= 0 {
		e.next(ctx)
	}
	return result
}

func (e *Engine) next(ctx context.Context) {
	e.index++
	if e.index >= len(e.round) {
		e.finish(ctx)
		return
	}
	e.present()
}

func (e *Engine) finish(ctx context.Context) {
	e.state = StateScoring
	e.answered = false
	e.pending = 0

	correct := 0
	for _, entry := range e.log {
		if entry.IsCorrect {
			correct++
		}
	}
	record := models.SessionRecord{
		ID:             e.deps.NewID(),
		Timestamp:      e.deps.Now(),
		Score:          e.score,
		CorrectCount:   correct,
		TotalQuestions: len(e.round),
		Details:        append([]models.AnswerLogEntry(nil), e.log...),
	}
	e.record = &record
	e.state = StateFinished

	e.deps.Renderer.ShowScreen(ScreenResult)
	e.deps.Renderer.RenderResult(record.Score, record.CorrectCount, record.TotalQuestions)

	if len(e.round) == 0 || e.deps.Recorder == nil {
		return
	}
	outcome := e.deps.Recorder.Record(ctx, record)
	e.outcome = &outcome
	e.deps.Renderer.SetSaveStatus(outcome.Message)
	if outcome.Unlocked != nil {
		e.deps.Renderer.ShowUnlock(*outcome.Unlocked)
	}
	e.deps.Renderer.ApplyDecorations(outcome.Rewards)
}

func (e *Engine) timerPct() float64 {
	return float64(e.remaining) / float64(e.cfg.QuestionTime) * 100
}
