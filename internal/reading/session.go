package reading

import (
	"time"

	"github.com/user/arcana/internal/types"
)

// Request is one inbound question, as handed over by the command layer.
// Now is passed in rather than sampled internally so the cooldown decision
// and the recorded activity timestamp always agree.
type Request struct {
	UserID   types.UserID
	Username string
	ChatID   types.ChatID
	Question string
	Now      time.Time
}

// sessionState tags where a session is in its linear flow. Transitions only
// move forward; failed and rejected are terminal.
type sessionState int

const (
	stateReceived sessionState = iota
	stateCooldownChecked
	stateActivityRecorded
	stateSymbolsDrawn
	stateNarrating
	stateInterpreting
	stateClosed
	stateRejected
	stateFailed
)

func (s sessionState) String() string {
	switch s {
	case stateReceived:
		return "received"
	case stateCooldownChecked:
		return "cooldown_checked"
	case stateActivityRecorded:
		return "activity_recorded"
	case stateSymbolsDrawn:
		return "symbols_drawn"
	case stateNarrating:
		return "narrating"
	case stateInterpreting:
		return "interpreting"
	case stateClosed:
		return "closed"
	case stateRejected:
		return "rejected"
	case stateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// session is the transient per-request state. It lives only for the duration
// of one orchestrator invocation and is never persisted.
type session struct {
	id    types.SessionID
	req   Request
	state sessionState
	cards []types.Card

	// recorded flips once activity has been written; a failure before that
	// point must not produce a log entry.
	recorded bool
}

func newSession(req Request) *session {
	return &session{
		id:    types.NewSessionID(),
		req:   req,
		state: stateReceived,
	}
}
