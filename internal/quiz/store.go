package quiz

import "sync"

// Store is the process-wide registry of sessions. The map is guarded by an
// RWMutex; each [Session] carries its own lock for state mutations, so
// operations on different sessions never contend beyond the map lookup.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{sessions: make(map[string]*Session)}
}

// Put registers s under its id, replacing any previous entry.
func (st *Store) Put(s *Session) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.sessions[s.id] = s
}

// Get returns the session for id, or [ErrSessionNotFound].
func (st *Store) Get(id string) (*Session, error) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	s, ok := st.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Len returns the number of registered sessions.
func (st *Store) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.sessions)
}
