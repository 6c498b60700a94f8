package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"hayaoshi/internal/game"
	"hayaoshi/internal/metrics"
	"hayaoshi/internal/models"
	"hayaoshi/internal/progression"
	"hayaoshi/internal/service"
	"hayaoshi/internal/storage"
)

// GameHandler handles quiz round HTTP requests
type GameHandler struct {
	backend  storage.Backend
	tracker  *progression.Tracker
	fallback []models.Question
	cfg      game.Config
	sessions *SessionRegistry
}

// NewGameHandler creates a game handler. backend is the unscoped storage; every
// player gets a view of it bound to their identity or guest id.
func NewGameHandler(ctx context.Context, backend storage.Backend, tracker *progression.Tracker, fallback []models.Question, cfg game.Config, tickInterval time.Duration) *GameHandler {
	h := &GameHandler{
		backend:  backend,
		tracker:  tracker,
		fallback: fallback,
		cfg:      cfg,
	}
	h.sessions = NewSessionRegistry(ctx, h.newSession, tickInterval)
	return h
}

// Sessions returns the registry of play sessions
func (h *GameHandler) Sessions() *SessionRegistry {
	return h.sessions
}

func (h *GameHandler) newSession(p Player) (*playSession, error) {
	var backend storage.Backend
	if p.IsGuest() {
		backend = storage.ForGuest(h.backend, p.GuestID)
	} else {
		backend = storage.ForIdentity(h.backend, p.Identity)
	}

	results := service.NewResultService(backend, h.tracker)
	view := &PlayView{}
	engine, err := game.New(h.cfg, game.Deps{
		Source:   h.backend,
		Fallback: h.fallback,
		Renderer: view,
		Recorder: results,
	})
	if err != nil {
		return nil, err
	}
	return &playSession{engine: engine, view: view, results: results}, nil
}

func (h *GameHandler) session(w http.ResponseWriter, r *http.Request) (*playSession, bool) {
	player, ok := GetPlayerFromContext(r.Context())
	if !ok {
		respondWithError(w, http.StatusInternalServerError, ErrInternalServerError, ErrNoPlayer, errors.New("player middleware missing"))
		return nil, false
	}
	s, err := h.sessions.Get(player)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, ErrInternalServerError, "Error creating play session", err)
		return nil, false
	}
	return s, true
}

// StartGame starts a new round, abandoning any round in progress
func (h *GameHandler) StartGame(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Saving must outlive a client that hangs up mid request
	ctx := context.WithoutCancel(r.Context())
	if err := s.engine.Start(ctx); err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to start round", "Error starting round", err)
		return
	}

	snap := s.engine.Snapshot()
	metrics.RoundsStarted.WithLabelValues(snap.Source).Inc()
	h.sessions.startClock(s)

	respondJSON(w, http.StatusOK, newGameState(snap, s.view))
}

// GetGame returns the current state of the player's round
func (h *GameHandler) GetGame(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	respondJSON(w, http.StatusOK, newGameState(s.engine.Snapshot(), s.view))
}

type answerRequest struct {
	Choice string `json:"choice"`
}

// SubmitAnswer scores the chosen meaning for the current question
func (h *GameHandler) SubmitAnswer(w http.ResponseWriter, r *http.Request) {
	var req answerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, ErrInvalidRequestBody, "", nil)
		return
	}

	s, ok := h.session(w, r)
	if !ok {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.engine.SubmitAnswer(context.WithoutCancel(r.Context()), req.Choice)
	if err != nil {
		respondEngineError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, AnswerResponse{
		Result:    result,
		GameState: newGameState(s.engine.Snapshot(), s.view),
	})
}

// AdvanceGame skips the rest of the feedback delay
func (h *GameHandler) AdvanceGame(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.engine.Advance(context.WithoutCancel(r.Context())); err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, newGameState(s.engine.Snapshot(), s.view))
}

func respondEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, game.ErrNotInRound),
		errors.Is(err, game.ErrAlreadyAnswered),
		errors.Is(err, game.ErrNotAnswered):
		respondWithError(w, http.StatusConflict, err.Error(), "", nil)
	default:
		respondWithError(w, http.StatusInternalServerError, ErrInternalServerError, "Error in round", err)
	}
}
