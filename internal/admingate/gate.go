// Package admingate implements the hidden admin entry point: five rapid
// taps on the profile open a code prompt, the correct code unlocks admin
// for that session. Gate state is session-local and never persisted.
package admingate

import (
	"errors"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// State names the gate position for one session.
type State string

const (
	StateLocked    State = "locked"
	StateCounting  State = "counting"
	StatePrompting State = "prompting"
	StateUnlocked  State = "unlocked"
)

const (
	// TapTarget taps within the window open the code prompt.
	TapTarget = 5
	// ResetWindow is the max gap between taps before the count resets.
	ResetWindow = 5 * time.Second
)

// ErrNotPrompting is returned when a code arrives outside the prompt state.
var ErrNotPrompting = errors.New("gate is not prompting for a code")

// Status is the session's gate position after an event.
type Status struct {
	State State
	Taps  int
}

type sessionState struct {
	state   State
	taps    int
	lastTap time.Time
}

// Gate tracks tap sequences per session and verifies the unlock code.
type Gate struct {
	mu       sync.Mutex
	codeHash []byte
	now      func() time.Time
	sessions map[string]*sessionState
}

// New builds a gate around a bcrypt hash of the unlock code.
func New(codeHash string) (*Gate, error) {
	hash := strings.TrimSpace(codeHash)
	if hash == "" {
		return nil, errors.New("admin code hash required")
	}
	if _, err := bcrypt.Cost([]byte(hash)); err != nil {
		return nil, errors.New("admin code hash is not a bcrypt hash")
	}
	return &Gate{
		codeHash: []byte(hash),
		now:      time.Now,
		sessions: make(map[string]*sessionState),
	}, nil
}

// WithClock overrides the gate clock. Test hook.
func (g *Gate) WithClock(now func() time.Time) *Gate {
	g.now = now
	return g
}

// Tap records one profile tap. The fifth tap inside the window moves the
// session to prompting; a gap of ResetWindow or more restarts the count.
func (g *Gate) Tap(sessionID string) Status {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	s := g.sessions[sessionID]
	if s == nil {
		s = &sessionState{state: StateLocked}
		g.sessions[sessionID] = s
	}
	if s.state == StateUnlocked {
		return Status{State: StateUnlocked, Taps: 0}
	}
	if s.taps > 0 && now.Sub(s.lastTap) >= ResetWindow {
		s.taps = 0
		s.state = StateLocked
	}
	s.taps++
	s.lastTap = now
	if s.taps >= TapTarget {
		s.state = StatePrompting
	} else {
		s.state = StateCounting
	}
	return Status{State: s.state, Taps: s.taps}
}

// SubmitCode verifies the unlock code for a prompting session. A wrong
// code drops the session back to locked; callers flip the user's admin
// flag only on true.
func (g *Gate) SubmitCode(sessionID, code string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	s := g.sessions[sessionID]
	if s == nil || s.state != StatePrompting {
		return false, ErrNotPrompting
	}
	if err := bcrypt.CompareHashAndPassword(g.codeHash, []byte(code)); err != nil {
		s.state = StateLocked
		s.taps = 0
		return false, nil
	}
	s.state = StateUnlocked
	s.taps = 0
	return true, nil
}

// Unlocked reports whether the session has passed the gate.
func (g *Gate) Unlocked(sessionID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	s := g.sessions[sessionID]
	return s != nil && s.state == StateUnlocked
}

// Reset drops all gate state for a session.
func (g *Gate) Reset(sessionID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.sessions, sessionID)
}
