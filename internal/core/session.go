package core

import (
	"sync"

	"github.com/sqltalk/sqltalk/internal/sqldb"
)

// LiveSession holds the session-scoped runtime state the store does not:
// the established database connection and the attempt log. Both live
// exactly as long as the session is connected.
type LiveSession struct {
	ID string

	// mu serializes turns within the session; each session's state is
	// mutated only by its own in-flight turn.
	mu       sync.Mutex
	conn     *sqldb.Conn
	attempts []Attempt
}

func (s *LiveSession) appendAttempt(a Attempt) {
	s.attempts = append(s.attempts, a)
}

// Attempts returns a copy of the attempt log in insertion order.
func (s *LiveSession) Attempts() []Attempt {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Attempt, len(s.attempts))
	copy(out, s.attempts)
	return out
}

// SessionRegistry maps session IDs to their live state. Entries are added
// on connect and removed on disconnect; the transcript in the store
// outlives them.
type SessionRegistry struct {
	mu       sync.Mutex
	sessions map[string]*LiveSession
}

func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{sessions: make(map[string]*LiveSession)}
}

func (r *SessionRegistry) Add(sessionID string, conn *sqldb.Conn) *LiveSession {
	r.mu.Lock()
	defer r.mu.Unlock()
	live := &LiveSession{ID: sessionID, conn: conn}
	r.sessions[sessionID] = live
	return live
}

func (r *SessionRegistry) Get(sessionID string) *LiveSession {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessions[sessionID]
}

// Remove drops the session from the registry and returns it, or nil if it
// was not live.
func (r *SessionRegistry) Remove(sessionID string) *LiveSession {
	r.mu.Lock()
	defer r.mu.Unlock()
	live := r.sessions[sessionID]
	delete(r.sessions, sessionID)
	return live
}
