// Package cooldown decides whether a user may start a new reading.
package cooldown

import (
	"context"
	"log/slog"
	"time"

	"github.com/user/arcana/internal/types"
)

// Decision is the outcome of a cooldown evaluation.
type Decision struct {
	Allowed   bool
	Remaining time.Duration
}

// RemainingMinutes returns the remaining wait in whole minutes.
func (d Decision) RemainingMinutes() int {
	return int(d.Remaining / time.Minute)
}

// Policy evaluates the configured cooldown against a user's last activity.
// It is read-only with respect to the store: recording activity on acceptance
// is the orchestrator's job, which keeps evaluation side-effect-free and
// safely retryable.
type Policy struct {
	store types.Store
}

// New creates a Policy over the given store.
func New(store types.Store) *Policy {
	return &Policy{store: store}
}

// Evaluate returns whether the user may start a reading at the given time,
// and otherwise how long until they may. The remaining duration is rounded up
// to the next whole minute and is never zero when the user is blocked. When
// the store is unreadable the user is allowed through; a degraded read must
// not lock anyone out.
func (p *Policy) Evaluate(ctx context.Context, userID types.UserID, now time.Time) Decision {
	last, ok, err := p.store.LastActivity(ctx, userID)
	if err != nil {
		slog.Error("cooldown check degraded to allowed", "user_id", int64(userID), "error", err)
		return Decision{Allowed: true}
	}
	if !ok {
		return Decision{Allowed: true}
	}

	window := p.store.CooldownDuration(ctx)
	elapsed := now.Sub(last)
	if elapsed >= window {
		return Decision{Allowed: true}
	}

	remaining := window - elapsed
	minutes := int64((remaining + time.Minute - 1) / time.Minute)
	if minutes < 1 {
		minutes = 1
	}
	return Decision{Allowed: false, Remaining: time.Duration(minutes) * time.Minute}
}
