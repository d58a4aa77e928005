package gateway

import (
	"sync"

	"github.com/accord-chat/accord/internal/metrics"
)

// SessionRegistry is the set of live gateway sessions. A user may hold any
// number of concurrent sessions; the registry keys by session id and keeps
// a per-user index.
type SessionRegistry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	byUser   map[string]map[string]*Session
}

func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{
		sessions: make(map[string]*Session),
		byUser:   make(map[string]map[string]*Session),
	}
}

func (r *SessionRegistry) Register(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sessions[s.ID] = s
	if r.byUser[s.UserID] == nil {
		r.byUser[s.UserID] = make(map[string]*Session)
	}
	r.byUser[s.UserID][s.ID] = s
	metrics.GatewaySessionsActive.Set(float64(len(r.sessions)))
}

func (r *SessionRegistry) Unregister(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.sessions, s.ID)
	if subs, ok := r.byUser[s.UserID]; ok {
		delete(subs, s.ID)
		if len(subs) == 0 {
			delete(r.byUser, s.UserID)
		}
	}
	metrics.GatewaySessionsActive.Set(float64(len(r.sessions)))
}

// SessionsByUser returns the user's live sessions.
func (r *SessionRegistry) SessionsByUser(userID string) []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Session, 0, len(r.byUser[userID]))
	for _, s := range r.byUser[userID] {
		out = append(out, s)
	}
	return out
}

// HasUser reports whether any live session remains for the user.
func (r *SessionRegistry) HasUser(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser[userID]) > 0
}

func (r *SessionRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// AddSpaceForUser folds a newly joined space into every live session of the
// user so its events start flowing without a reconnect.
func (r *SessionRegistry) AddSpaceForUser(userID, spaceID string) {
	for _, s := range r.SessionsByUser(userID) {
		s.addSpace(spaceID)
	}
}

// RemoveSpaceForUser drops a space from every live session of the user.
// Called after a leave, kick or ban.
func (r *SessionRegistry) RemoveSpaceForUser(userID, spaceID string) {
	for _, s := range r.SessionsByUser(userID) {
		s.removeSpace(spaceID)
	}
}

// CloseAll cancels every live session. Used on shutdown; each actor runs
// its own closing path.
func (r *SessionRegistry) CloseAll() {
	r.mu.RLock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.RUnlock()

	for _, s := range sessions {
		s.cancel()
	}
}
