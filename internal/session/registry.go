package session

import (
	"log/slog"
	"sync"
)

// Registry tracks the live session for each connection. It is owned by
// the connection server and passed explicitly into handlers; business
// logic never touches the map directly.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewRegistry creates an empty session registry.
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
	}
}

// Create registers a new session under its connection ID. An existing
// session under the same ID is replaced; the connection handler
// guarantees IDs are unique per accept.
func (r *Registry) Create(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.ID] = s
	slog.Info("Session created",
		"session_id", s.ID,
		"mode", s.Mode,
		"learning_language", s.LearningLanguage,
		"native_language", s.NativeLanguage)
}

// Get returns the session for a connection ID, or nil.
func (r *Registry) Get(id string) *Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sessions[id]
}

// Remove deletes the session for a connection ID. Any pending quiz
// timer is stopped so it cannot fire into a dead session.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[id]; ok {
		if q := s.QuizState(); q != nil {
			q.StopAnswerTimer()
		}
		delete(r.sessions, id)
		slog.Info("Session removed", "session_id", id)
	}
}

// Len reports the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
