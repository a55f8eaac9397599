package types

import (
	"context"
	"time"
)

// Store is the durable state layer: settings, per-user cooldown timestamps,
// and the append-only reading log. Read paths degrade to defaults on storage
// errors; write paths surface them.
type Store interface {
	Setting(ctx context.Context, name string) string
	SetSetting(ctx context.Context, name, value string, changedBy UserID) error

	CooldownDuration(ctx context.Context) time.Duration
	SetCooldownDuration(ctx context.Context, d time.Duration, changedBy UserID) error
	TestMode(ctx context.Context) bool
	ToggleTestMode(ctx context.Context, changedBy UserID) (bool, error)

	LastActivity(ctx context.Context, userID UserID) (time.Time, bool, error)
	RecordActivity(ctx context.Context, userID UserID, at time.Time) error

	AppendLog(ctx context.Context, entry *LogEntry) error
	QueryStats(ctx context.Context, window time.Duration) (*Stats, error)
	PurgeOlderThan(ctx context.Context, age time.Duration) (cooldowns, entries int64, err error)

	Close() error
}

// Transport delivers text and images to a chat. Implementations own their
// retry policy; the orchestrator treats sends as fire-and-forget.
type Transport interface {
	SendText(ctx context.Context, chatID ChatID, text string) error
	SendImage(ctx context.Context, chatID ChatID, path, caption string) error
}

// Interpreter produces a natural-language interpretation of a drawn spread.
type Interpreter interface {
	Interpret(ctx context.Context, cards []string, question string) (string, error)
}

// AssetResolver maps a card to its image resource on disk.
type AssetResolver interface {
	Resolve(card Card) (string, error)
}
