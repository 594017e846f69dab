package admingate

import (
	"errors"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"
)

func newTestGate(t *testing.T, code string) (*Gate, *time.Time) {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash code: %v", err)
	}
	g, err := New(string(hash))
	if err != nil {
		t.Fatalf("new gate: %v", err)
	}
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	g.WithClock(func() time.Time { return now })
	return g, &now
}

func tapTimes(g *Gate, session string, n int) Status {
	var st Status
	for i := 0; i < n; i++ {
		st = g.Tap(session)
	}
	return st
}

func TestFifthTapOpensPrompt(t *testing.T) {
	g, _ := newTestGate(t, "open-sesame")

	for i := 1; i <= 4; i++ {
		st := g.Tap("s1")
		if st.State != StateCounting || st.Taps != i {
			t.Fatalf("tap %d: state=%v taps=%d", i, st.State, st.Taps)
		}
	}
	st := g.Tap("s1")
	if st.State != StatePrompting {
		t.Fatalf("fifth tap should prompt, got %v", st.State)
	}
}

func TestSlowTapsReset(t *testing.T) {
	g, now := newTestGate(t, "open-sesame")

	tapTimes(g, "s1", 4)
	*now = now.Add(ResetWindow)
	st := g.Tap("s1")
	if st.State != StateCounting || st.Taps != 1 {
		t.Fatalf("a stale tap streak must restart at 1, got state=%v taps=%d", st.State, st.Taps)
	}

	// Taps inside the window keep counting.
	*now = now.Add(ResetWindow - time.Second)
	st = g.Tap("s1")
	if st.Taps != 2 {
		t.Fatalf("taps inside the window must accumulate, got %d", st.Taps)
	}
}

func TestCorrectCodeUnlocks(t *testing.T) {
	g, _ := newTestGate(t, "open-sesame")
	tapTimes(g, "s1", 5)

	ok, err := g.SubmitCode("s1", "open-sesame")
	if err != nil || !ok {
		t.Fatalf("submit = %v, %v; want unlocked", ok, err)
	}
	if !g.Unlocked("s1") {
		t.Fatalf("session should be unlocked")
	}
	// Further taps are inert once unlocked.
	if st := g.Tap("s1"); st.State != StateUnlocked {
		t.Fatalf("taps after unlock should report unlocked, got %v", st.State)
	}
}

func TestWrongCodeLocks(t *testing.T) {
	g, _ := newTestGate(t, "open-sesame")
	tapTimes(g, "s1", 5)

	ok, err := g.SubmitCode("s1", "guess")
	if err != nil || ok {
		t.Fatalf("submit = %v, %v; want rejected without error", ok, err)
	}
	if g.Unlocked("s1") {
		t.Fatalf("wrong code must not unlock")
	}
	// Back to locked: a code without a fresh tap streak is refused.
	if _, err := g.SubmitCode("s1", "open-sesame"); !errors.Is(err, ErrNotPrompting) {
		t.Fatalf("err = %v, want ErrNotPrompting", err)
	}
}

func TestGateIsPerSession(t *testing.T) {
	g, _ := newTestGate(t, "open-sesame")
	tapTimes(g, "s1", 5)
	if _, err := g.SubmitCode("s1", "open-sesame"); err != nil {
		t.Fatalf("unlock s1: %v", err)
	}

	if g.Unlocked("s2") {
		t.Fatalf("unlock must not leak across sessions")
	}
	if st := g.Tap("s2"); st.State != StateCounting || st.Taps != 1 {
		t.Fatalf("s2 starts fresh, got state=%v taps=%d", st.State, st.Taps)
	}
}

func TestNewRejectsBadHash(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Fatalf("empty hash must be rejected")
	}
	if _, err := New("plaintext-code"); err == nil {
		t.Fatalf("non-bcrypt hash must be rejected")
	}
}
