package session

import (
	"sort"
	"sync"
	"time"
)

// Store owns one Session per conversation id. It grows monotonically
// with the number of distinct conversations seen.
type Store struct {
	sessions map[string]*Session
	now      func() time.Time
	mu       sync.RWMutex
}

func NewStore() *Store {
	return &Store{
		sessions: make(map[string]*Session),
		now:      time.Now,
	}
}

// NewStoreWithClock is NewStore with an injected clock.
func NewStoreWithClock(now func() time.Time) *Store {
	s := NewStore()
	if now != nil {
		s.now = now
	}
	return s
}

// GetOrCreate returns the session for id, creating it on first call.
func (st *Store) GetOrCreate(id string) *Session {
	st.mu.RLock()
	s, ok := st.sessions[id]
	st.mu.RUnlock()
	if ok {
		return s
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	if s, ok := st.sessions[id]; ok {
		return s
	}
	s = newSession(id, st.now())
	st.sessions[id] = s
	return s
}

// Get returns the session for id without creating it.
func (st *Store) Get(id string) (*Session, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	s, ok := st.sessions[id]
	return s, ok
}

// With runs fn while holding the session's exclusive reservation.
func (st *Store) With(id string, fn func(*Session)) {
	s := st.GetOrCreate(id)
	s.Lock()
	defer s.Unlock()
	fn(s)
}

func (st *Store) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.sessions)
}

// IDs returns all conversation ids, sorted.
func (st *Store) IDs() []string {
	st.mu.RLock()
	ids := make([]string, 0, len(st.sessions))
	for id := range st.sessions {
		ids = append(ids, id)
	}
	st.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

// List summarizes every session without waiting on reply runs. A session
// held by a run is reported from its last published summary, marked Busy.
// Transcripts are omitted.
func (st *Store) List() []Snapshot {
	ids := st.IDs()
	out := make([]Snapshot, 0, len(ids))
	for _, id := range ids {
		s, ok := st.Get(id)
		if !ok {
			continue
		}
		if !s.TryLock() {
			snap := s.LastSummary()
			snap.Busy = true
			out = append(out, snap)
			continue
		}
		snap := s.summary()
		s.Unlock()
		out = append(out, snap)
	}
	return out
}

// Delete drops one session. Operator use only; the engine never deletes.
func (st *Store) Delete(id string) bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	if _, ok := st.sessions[id]; !ok {
		return false
	}
	delete(st.sessions, id)
	return true
}

// Reset drops every session. Operator use only.
func (st *Store) Reset() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	n := len(st.sessions)
	st.sessions = make(map[string]*Session)
	return n
}
