package types

import "github.com/google/uuid"

// UserID is a stable Telegram user identifier.
type UserID int64

// ChatID identifies the chat a reading is delivered to.
type ChatID int64

// SessionID correlates log entries and log lines for one reading session.
type SessionID string

func NewSessionID() SessionID {
	return SessionID(uuid.New().String())
}
