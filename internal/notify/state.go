package notify

import "sync"

// Level ranks notification kinds. Within one generation only a strictly
// higher level may speak after a lower one has.
type Level int

const (
	LevelNone         Level = 0
	LevelTurnComplete Level = 1
	LevelPermission   Level = 2
	LevelIdle         Level = 3
	LevelQuestion     Level = 4
)

// String names the level for debug logs.
func (l Level) String() string {
	switch l {
	case LevelTurnComplete:
		return "turn-complete"
	case LevelPermission:
		return "permission-prompt"
	case LevelIdle:
		return "idle-prompt"
	case LevelQuestion:
		return "ask-question"
	}
	return "none"
}

type sessionState struct {
	generation uint64
	level      Level
}

// Store tracks per-session notification state: a cancellation generation
// and the level of the notification currently owning the session. Records
// are created lazily and never destroyed; session cardinality is small.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*sessionState
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{sessions: make(map[string]*sessionState)}
}

// getOrCreate must be called with s.mu held.
func (s *Store) getOrCreate(key string) *sessionState {
	st, ok := s.sessions[key]
	if !ok {
		st = &sessionState{}
		s.sessions[key] = st
	}
	return st
}

// Generation returns the session's current cancellation generation.
func (s *Store) Generation(key string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getOrCreate(key).generation
}

// CancelActivity records new activity for the session: the generation
// advances, invalidating any dispatch captured before the bump, and the
// notification level resets so the next turn can notify again.
func (s *Store) CancelActivity(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.getOrCreate(key)
	st.generation++
	st.level = LevelNone
}

// ShouldNotify reports whether a notification at the given level may speak.
func (s *Store) ShouldNotify(key string, level Level) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return level > s.getOrCreate(key).level
}

// SetLevel marks the session as owned by a notification at the given level.
func (s *Store) SetLevel(key string, level Level) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.getOrCreate(key).level = level
}
