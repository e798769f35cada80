package core

import "time"

// Registry maps transport connections to registered sessions. It is the
// only shared structure that is safe to read outside the chat service
// lock; all other state must go through the service.
type Registry struct {
	sessions *SyncMap[int, *Session]
}

func NewRegistry() *Registry {
	return &Registry{sessions: NewSyncMap[int, *Session]()}
}

// Register upserts the session for a connection. A stale mapping for the
// same connection is overwritten, so repeated register_user events are
// harmless.
func (r *Registry) Register(connID int, input RegisterInput, at time.Time) *Session {
	session := &Session{
		UserID:      input.UserID,
		Nickname:    input.Nickname,
		Mood:        input.Mood,
		ConnID:      connID,
		ConnectedAt: at,
	}
	r.sessions.Store(connID, session)
	return session
}

func (r *Registry) Lookup(connID int) (*Session, bool) {
	return r.sessions.Load(connID)
}

// Remove drops the session of a closed connection and returns it, if any.
func (r *Registry) Remove(connID int) (*Session, bool) {
	return r.sessions.LoadAndDelete(connID)
}

func (r *Registry) Len() int {
	return r.sessions.Len()
}

// Sessions returns a snapshot of all registered sessions.
func (r *Registry) Sessions() []Session {
	sessions := make([]Session, 0, r.sessions.Len())
	r.sessions.RRange(func(_ int, s *Session) bool {
		sessions = append(sessions, *s)
		return true
	})
	return sessions
}
