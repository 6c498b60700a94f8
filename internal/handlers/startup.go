package handlers

import (
	"net/http"
	"sync"
)

// Startup steps reported on /readyz
const (
	StepLocalDatabase = "Local database"
	StepRemoteStorage = "Remote storage"
	StepQuestions     = "Loading questions"
	StepServer        = "Server ready"
)

// StartupStep is one initialization step
type StartupStep struct {
	Name      string `json:"name"`
	Completed bool   `json:"completed"`
}

// StartupStatus is the JSON body of /readyz
type StartupStatus struct {
	Ready    bool          `json:"ready"`
	Current  string        `json:"current"`
	Progress int           `json:"progress"`
	Steps    []StartupStep `json:"steps"`
}

// Startup serves requests while the server initializes. Until Ready is
// called everything but the health and readiness probes gets 503.
type Startup struct {
	mu      sync.RWMutex
	status  StartupStatus
	handler http.Handler
}

// NewStartup tracks the given steps in order
func NewStartup(steps ...string) *Startup {
	s := &Startup{status: StartupStatus{Current: "Initializing..."}}
	for _, name := range steps {
		s.status.Steps = append(s.status.Steps, StartupStep{Name: name})
	}
	return s
}

// SetCurrentStep updates the current initialization step
func (s *Startup) SetCurrentStep(step string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status.Current = step
}

// CompleteStep marks a step as completed and updates progress
func (s *Startup) CompleteStep(stepName string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	completed := 0
	for i := range s.status.Steps {
		if s.status.Steps[i].Name == stepName {
			s.status.Steps[i].Completed = true
		}
		if s.status.Steps[i].Completed {
			completed++
		}
	}
	if len(s.status.Steps) > 0 {
		s.status.Progress = (completed * 100) / len(s.status.Steps)
	}
}

// MarkReady starts routing requests to handler
func (s *Startup) MarkReady(handler http.Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.status.Steps {
		s.status.Steps[i].Completed = true
	}
	s.handler = handler
	s.status.Ready = true
	s.status.Current = StepServer
	s.status.Progress = 100
}

// IsReady returns whether the server is fully initialized
func (s *Startup) IsReady() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status.Ready
}

func (s *Startup) snapshot() StartupStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := s.status
	st.Steps = append([]StartupStep(nil), s.status.Steps...)
	return st
}

// ShowStartupStatus reports initialization progress; 503 until ready
func (s *Startup) ShowStartupStatus(w http.ResponseWriter, r *http.Request) {
	st := s.snapshot()
	status := http.StatusOK
	if !st.Ready {
		status = http.StatusServiceUnavailable
	}
	respondJSON(w, status, st)
}

func (s *Startup) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/healthz":
		Health(w, r)
		return
	case "/readyz":
		s.ShowStartupStatus(w, r)
		return
	}

	s.mu.RLock()
	handler := s.handler
	s.mu.RUnlock()
	if handler == nil {
		w.Header().Set("Retry-After", "2")
		respondWithError(w, http.StatusServiceUnavailable, "Server starting up", "", nil)
		return
	}
	handler.ServeHTTP(w, r)
}
