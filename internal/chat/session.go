// Package chat keeps per-requester conversation state for the chat surface.
//
// Sessions are keyed by requester email and live in memory only. A session
// is handed out exclusively: two requests for the same requester run one
// after the other, while different requesters proceed concurrently. Idle
// sessions are evicted lazily and by Sweep.
package chat

import (
	"strings"
	"sync"
	"time"

	"github.com/tbourn/go-ticket-intake/internal/domain"
)

const (
	DefaultIdleTimeout  = 60 * time.Minute
	DefaultHistoryTurns = 6
)

// Session is one requester's conversation. Its methods must only be called
// between Acquire and the matching release.
type Session struct {
	mu sync.Mutex

	Requester  string
	CreatedAt  time.Time
	lastActive time.Time
	history    []domain.Turn
	maxTurns   int
	inUse      int // guarded by Store.mu
}

// History returns a copy of the retained turns, oldest first.
func (s *Session) History() []domain.Turn {
	out := make([]domain.Turn, len(s.history))
	copy(out, s.history)
	return out
}

// Append adds a turn and drops the oldest ones beyond the window.
func (s *Session) Append(role, content string, at time.Time) {
	s.history = append(s.history, domain.Turn{Role: role, Content: content, At: at})
	if n := len(s.history) - s.maxTurns; s.maxTurns > 0 && n > 0 {
		s.history = append(s.history[:0:0], s.history[n:]...)
	}
}

// Store holds live sessions.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*Session
	idle     time.Duration
	maxTurns int
	now      func() time.Time
}

// NewStore returns a store. Non-positive arguments select the defaults.
func NewStore(maxTurns int, idle time.Duration) *Store {
	if maxTurns <= 0 {
		maxTurns = DefaultHistoryTurns
	}
	if idle <= 0 {
		idle = DefaultIdleTimeout
	}
	return &Store{
		sessions: make(map[string]*Session),
		idle:     idle,
		maxTurns: maxTurns,
		now:      time.Now,
	}
}

func key(requester string) string {
	return strings.ToLower(strings.TrimSpace(requester))
}

// Acquire returns the requester's session, creating it if needed, and
// blocks until no other caller holds it. The returned func releases it and
// must be called exactly once.
func (st *Store) Acquire(requester string) (*Session, func()) {
	k := key(requester)

	st.mu.Lock()
	now := st.now()
	st.evictLocked(now)
	sess, ok := st.sessions[k]
	if !ok {
		sess = &Session{Requester: k, CreatedAt: now, lastActive: now, maxTurns: st.maxTurns}
		st.sessions[k] = sess
	}
	sess.inUse++
	st.mu.Unlock()

	sess.mu.Lock()
	var once sync.Once
	return sess, func() {
		once.Do(func() {
			st.mu.Lock()
			sess.lastActive = st.now()
			sess.inUse--
			st.mu.Unlock()
			sess.mu.Unlock()
		})
	}
}

// End drops the requester's session. It reports whether one existed.
// A session currently in use is detached; the in-flight request finishes
// against it and the next request starts fresh.
func (st *Store) End(requester string) bool {
	k := key(requester)
	st.mu.Lock()
	defer st.mu.Unlock()
	if _, ok := st.sessions[k]; !ok {
		return false
	}
	delete(st.sessions, k)
	return true
}

// Active returns the number of live (non-expired) sessions.
func (st *Store) Active() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.evictLocked(st.now())
	return len(st.sessions)
}

// Sweep evicts idle sessions and returns how many were removed.
func (st *Store) Sweep() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.evictLocked(st.now())
}

func (st *Store) evictLocked(now time.Time) int {
	n := 0
	for k, s := range st.sessions {
		if s.inUse == 0 && now.Sub(s.lastActive) > st.idle {
			delete(st.sessions, k)
			n++
		}
	}
	return n
}
