package domain

import (
	"regexp"
	"time"
)

// SessionState is the lifecycle state of a session.
type SessionState string

const (
	StateRunning  SessionState = "RUNNING"
	StatePaused   SessionState = "PAUSED"
	StateFinished SessionState = "FINISHED"
)

// Open reports whether the state still counts against the one-open-record-per-lot rule.
func (s SessionState) Open() bool {
	return s == StateRunning || s == StatePaused
}

const (
	MaxLotLength    = 20
	MaxExpiryLength = 6
)

// manualLotPattern is the GS1 AI (10) form operators type when they start a
// session by hand.
var manualLotPattern = regexp.MustCompile(`^10[\x21-\x22\x25-\x2F\x30-\x39\x3A-\x3F\x41-\x5A\x5F\x61-\x7A]{0,18}$`)

// Session is one active print/scan unit of work.
type Session struct {
	Lot         string       `json:"lot"`
	Expiry      string       `json:"expiry"`
	State       SessionState `json:"state"`
	OriginInput int          `json:"origin_input"`
	Created     time.Time    `json:"created"`
	Updated     time.Time    `json:"updated"`
	Context     *Context     `json:"context,omitempty"`
}

// Clone returns a deep copy so callers never share the registry's record.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	c.Context = s.Context.Clone()
	return &c
}

// Transition is one persisted state change of a lot.
type Transition struct {
	Lot         string       `json:"lot"`
	State       SessionState `json:"state"`
	OriginInput int          `json:"origin_input"`
	At          time.Time    `json:"at"`
}

// Transition returns the history row recording the session's current state.
func (s *Session) Transition() Transition {
	return Transition{
		Lot:         s.Lot,
		State:       s.State,
		OriginInput: s.OriginInput,
		At:          s.Updated,
	}
}

// ValidateSession checks the lot and expiry limits enforced for every session.
func ValidateSession(lot, expiry string) error {
	if lot == "" || len(lot) > MaxLotLength {
		return Errorf(KindSessionState, "lot %q must be 1-%d characters", lot, MaxLotLength)
	}
	if expiry == "" || len(expiry) > MaxExpiryLength {
		return Errorf(KindSessionState, "expiry %q must be 1-%d characters", expiry, MaxExpiryLength)
	}
	return nil
}

// ValidateManualLot applies the stricter pattern used for lots entered by an operator.
func ValidateManualLot(lot string) error {
	if !manualLotPattern.MatchString(lot) {
		return Errorf(KindInvalidInput, "lot %q must start with 10 and use the GS1 character set", lot)
	}
	return nil
}
