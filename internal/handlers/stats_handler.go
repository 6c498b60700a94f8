package handlers

import (
	"net/http"

	"hayaoshi/internal/progression"
	"hayaoshi/internal/storage"
)

// StatsHandler serves a player's history and cumulative progress
type StatsHandler struct {
	sessions *SessionRegistry
	tracker  *progression.Tracker
}

// NewStatsHandler creates a stats handler reading through the play sessions
func NewStatsHandler(sessions *SessionRegistry, tracker *progression.Tracker) *StatsHandler {
	return &StatsHandler{sessions: sessions, tracker: tracker}
}

func (h *StatsHandler) results(w http.ResponseWriter, r *http.Request) (*playSession, bool) {
	player, ok := GetPlayerFromContext(r.Context())
	if !ok {
		respondWithError(w, http.StatusInternalServerError, ErrInternalServerError, "", nil)
		return nil, false
	}
	s, err := h.sessions.Get(player)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, ErrInternalServerError, "Error creating play session", err)
		return nil, false
	}
	return s, true
}

// GetHistory lists the player's past rounds, newest first
func (h *StatsHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	s, ok := h.results(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, s.results.History(r.Context()))
}

// GetStats returns the cumulative score, rank and next goal
func (h *StatsHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	s, ok := h.results(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, s.results.Summary(r.Context()))
}

// GetWordStats lists per-question results. sort is one of wrong, correct or recent.
func (h *StatsHandler) GetWordStats(w http.ResponseWriter, r *http.Request) {
	sortKey := r.URL.Query().Get("sort")
	switch sortKey {
	case "":
		sortKey = storage.SortRecent
	case storage.SortWrong, storage.SortCorrect, storage.SortRecent:
	default:
		respondWithError(w, http.StatusBadRequest, "Invalid sort key", "", nil)
		return
	}

	s, ok := h.results(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, s.results.WordStats(r.Context(), sortKey))
}

// GetRewards lists the reward table
func (h *StatsHandler) GetRewards(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.tracker.Rewards())
}

// GetMe describes the player behind the request
func (h *StatsHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	player, ok := GetPlayerFromContext(r.Context())
	if !ok {
		respondWithError(w, http.StatusInternalServerError, ErrInternalServerError, "", nil)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"guest": player.IsGuest(),
		"user":  player.User,
	})
}

// Health reports liveness
func Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
