package handlers

import (
	"context"
	"log"
	"sync"
	"time"

	"hayaoshi/internal/game"
	"hayaoshi/internal/service"
)

// playSession is one player's engine and view. mu serializes requests and ticks.
type playSession struct {
	mu       sync.Mutex
	engine   *game.Engine
	view     *PlayView
	results  *service.ResultService
	gen      int // bumped on every start; a tick loop exits when it is stale
	lastSeen time.Time
}

// SessionFactory builds a new session for a player
type SessionFactory func(p Player) (*playSession, error)

// SessionRegistry keeps one play session per player and drives the clock of
// rounds in progress
type SessionRegistry struct {
	mu       sync.Mutex
	sessions map[string]*playSession
	factory  SessionFactory
	interval time.Duration
	idleTTL  time.Duration
	now      func() time.Time
	ctx      context.Context // parent of tick loops, cancelled on shutdown
}

// NewSessionRegistry creates a registry ticking rounds every interval
func NewSessionRegistry(ctx context.Context, factory SessionFactory, interval time.Duration) *SessionRegistry {
	return &SessionRegistry{
		sessions: make(map[string]*playSession),
		factory:  factory,
		interval: interval,
		idleTTL:  30 * time.Minute,
		now:      time.Now,
		ctx:      ctx,
	}
}

// Get returns the session of p, creating it on first use
func (r *SessionRegistry) Get(p Player) (*playSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[p.Key]; ok {
		s.lastSeen = r.now()
		return s, nil
	}
	s, err := r.factory(p)
	if err != nil {
		return nil, err
	}
	s.lastSeen = r.now()
	r.sessions[p.Key] = s
	return s, nil
}

// Len returns the number of live sessions
func (r *SessionRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// startClock runs the tick loop of a freshly started round. Must be called
// with s.mu held.
func (r *SessionRegistry) startClock(s *playSession) {
	s.gen++
	if s.engine.State() != game.StateInRound {
		return
	}
	go r.tick(s, s.gen)
}

// tick feeds wall clock time to the engine until the round ends or a newer
// round replaces it
func (r *SessionRegistry) tick(s *playSession, gen int) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	last := r.now()
	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
		}

		s.mu.Lock()
		if s.gen != gen {
			s.mu.Unlock()
			return
		}
		now := r.now()
		s.engine.Tick(r.ctx, now.Sub(last))
		last = now
		done := s.engine.State() != game.StateInRound
		s.mu.Unlock()

		if done {
			return
		}
	}
}

// Run evicts sessions idle for longer than the idle TTL until ctx is done
func (r *SessionRegistry) Run(ctx context.Context) {
	ticker := time.NewTicker(r.idleTTL / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := r.evictIdle(); n > 0 {
				log.Printf("Evicted %d idle play sessions", n)
			}
		}
	}
}

func (r *SessionRegistry) evictIdle() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	evicted := 0
	for key, s := range r.sessions {
		if !s.mu.TryLock() {
			continue
		}
		idle := now.Sub(s.lastSeen) > r.idleTTL && s.engine.State() != game.StateInRound
		s.mu.Unlock()
		if idle {
			delete(r.sessions, key)
			evicted++
		}
	}
	return evicted
}
