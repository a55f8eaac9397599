// Package reading drives one tarot session end-to-end: cooldown gate,
// activity recording, draw, paced narration, interpretation, and the final
// log write.
package reading

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/user/arcana/internal/cooldown"
	"github.com/user/arcana/internal/deck"
	"github.com/user/arcana/internal/store"
	"github.com/user/arcana/internal/types"
)

// ErrAccessDenied is returned by administrative operations invoked by a user
// who is not on the admin allow-list.
var ErrAccessDenied = errors.New("access denied")

// Options tunes the orchestrator.
type Options struct {
	// Pace is the delay between narration steps. Zero disables pacing
	// (used in tests).
	Pace time.Duration
	// MaxConcurrent caps sessions narrating at once across all users.
	MaxConcurrent int64
	// Admins is the administrator allow-list.
	Admins []int64
}

// Orchestrator coordinates the state store, the cooldown policy, and the
// external collaborators for every inbound question. Sessions for different
// users run concurrently and independently; sessions for the same user are
// serialized through a per-user lane.
type Orchestrator struct {
	store       types.Store
	policy      *cooldown.Policy
	deck        *deck.Deck
	transport   types.Transport
	interpreter types.Interpreter
	assets      types.AssetResolver
	admins      map[types.UserID]bool
	pace        time.Duration
	queue       *queue
}

// New wires an Orchestrator. The interpreter may be nil when no text
// generation backend is configured; sessions then fall back to the
// meditation notice.
func New(
	st types.Store,
	d *deck.Deck,
	transport types.Transport,
	interpreter types.Interpreter,
	assets types.AssetResolver,
	opts Options,
) *Orchestrator {
	admins := make(map[types.UserID]bool, len(opts.Admins))
	for _, id := range opts.Admins {
		admins[types.UserID(id)] = true
	}
	if opts.MaxConcurrent < 1 {
		opts.MaxConcurrent = 4
	}
	o := &Orchestrator{
		store:       st,
		policy:      cooldown.New(st),
		deck:        d,
		transport:   transport,
		interpreter: interpreter,
		assets:      assets,
		admins:      admins,
		pace:        opts.Pace,
		queue:       newQueue(opts.MaxConcurrent),
	}
	o.queue.processor = o.process
	return o
}

// Start makes the orchestrator accept requests.
func (o *Orchestrator) Start(ctx context.Context) {
	o.queue.start(ctx)
}

// Stop drains the queue and waits for in-flight sessions.
func (o *Orchestrator) Stop() {
	o.queue.stop()
}

// WaitIdle blocks until all enqueued sessions have finished or the timeout
// expires. Intended for tests and graceful shutdown.
func (o *Orchestrator) WaitIdle(timeout time.Duration) bool {
	return o.queue.waitIdle(timeout)
}

// IsAdmin reports whether the user is on the administrator allow-list.
func (o *Orchestrator) IsAdmin(userID types.UserID) bool {
	return o.admins[userID]
}

// HandleReadingRequest is the single entry point for an inbound question.
// The session runs asynchronously on the user's lane; an error here means
// the request could not even be queued.
func (o *Orchestrator) HandleReadingRequest(_ context.Context, req Request) error {
	if strings.TrimSpace(req.Question) == "" {
		return fmt.Errorf("empty question")
	}
	if req.Now.IsZero() {
		req.Now = time.Now()
	}
	return o.queue.enqueue(&job{sessionID: types.NewSessionID(), req: req})
}

// HandleStatsRequest summarizes the reading log over the trailing window.
// Restricted to administrators.
func (o *Orchestrator) HandleStatsRequest(ctx context.Context, requester types.UserID, windowDays int) (*types.Stats, error) {
	if !o.IsAdmin(requester) {
		return nil, ErrAccessDenied
	}
	if windowDays < 1 {
		windowDays = 7
	}
	stats, err := o.store.QueryStats(ctx, time.Duration(windowDays)*24*time.Hour)
	if err != nil {
		// Reporting never fails visibly over a quiet period.
		slog.Error("stats query failed, returning empty aggregate", "error", err)
		return &types.Stats{Window: time.Duration(windowDays) * 24 * time.Hour}, nil
	}
	return stats, nil
}

// HandleSetCooldown sets the cooldown duration in minutes. Restricted to
// administrators; minutes must be at least 1.
func (o *Orchestrator) HandleSetCooldown(ctx context.Context, requester types.UserID, minutes int) error {
	if !o.IsAdmin(requester) {
		return ErrAccessDenied
	}
	return o.store.SetCooldownDuration(ctx, time.Duration(minutes)*time.Minute, requester)
}

// HandleToggleTestMode flips the interpretation bypass and returns the new
// state. Restricted to administrators.
func (o *Orchestrator) HandleToggleTestMode(ctx context.Context, requester types.UserID) (bool, error) {
	if !o.IsAdmin(requester) {
		return false, ErrAccessDenied
	}
	return o.store.ToggleTestMode(ctx, requester)
}

// process runs one session's state machine to a terminal state. This is the
// queue's processor; it executes on the user's lane.
func (o *Orchestrator) process(j *job) error {
	ctx := j.ctx
	if ctx == nil {
		ctx = context.Background()
	}

	s := newSession(j.req)
	s.id = j.sessionID

	for {
		switch s.state {
		case stateReceived:
			s.state = o.checkCooldown(ctx, s)
		case stateCooldownChecked:
			s.state = o.recordActivity(ctx, s)
		case stateActivityRecorded:
			s.state = o.drawCards(s)
		case stateSymbolsDrawn:
			s.state = o.narrate(ctx, s)
		case stateInterpreting:
			s.state = o.interpret(ctx, s)
		case stateClosed:
			o.closeSession(ctx, s)
			return nil
		case stateRejected:
			return nil
		case stateFailed:
			o.failSession(ctx, s)
			return nil
		default:
			return fmt.Errorf("session %s in impossible state %s", s.id, s.state)
		}
	}
}

// checkCooldown gates the session. Rejection is a normal terminal, not a
// failure, and by default produces no log entry; the log_rejected setting
// turns on rejection logging for abuse analytics.
func (o *Orchestrator) checkCooldown(ctx context.Context, s *session) sessionState {
	decision := o.policy.Evaluate(ctx, s.req.UserID, s.req.Now)
	if decision.Allowed {
		return stateCooldownChecked
	}

	slog.Info("reading rejected by cooldown",
		"user_id", int64(s.req.UserID),
		"remaining", decision.Remaining)
	o.sendText(ctx, s, cooldownNotice(decision.Remaining))

	if strings.EqualFold(o.store.Setting(ctx, store.SettingLogRejected), "true") {
		o.appendLog(ctx, s, nil, false)
	}
	return stateRejected
}

// recordActivity consumes the user's cooldown slot before anything is drawn
// or shown, so a crash mid-session cannot grant free retries. A failure here
// happens before anything was promised to the user and produces no log entry.
func (o *Orchestrator) recordActivity(ctx context.Context, s *session) sessionState {
	if err := o.store.RecordActivity(ctx, s.req.UserID, s.req.Now); err != nil {
		slog.Error("record activity failed", "session_id", string(s.id), "error", err)
		return stateFailed
	}
	s.recorded = true
	return stateActivityRecorded
}

func (o *Orchestrator) drawCards(s *session) sessionState {
	cards, err := o.deck.Draw(deck.SpreadSize)
	if err != nil {
		// Can only happen on a catalog misconfiguration.
		slog.Error("card draw failed", "session_id", string(s.id), "error", err)
		return stateFailed
	}
	s.cards = cards
	slog.Info("cards drawn",
		"session_id", string(s.id),
		"user_id", int64(s.req.UserID),
		"cards", strings.Join(deck.Names(cards), ", "))
	return stateSymbolsDrawn
}

// narrate reveals the three cards in draw order with a pacing delay between
// steps. Send failures are swallowed; narration always runs to the end unless
// the process is shutting down.
func (o *Orchestrator) narrate(ctx context.Context, s *session) sessionState {
	o.sendText(ctx, s, readingStart)

	for i, card := range s.cards {
		if intro := roleIntros[i]; intro != "" {
			if err := o.pause(ctx); err != nil {
				return stateFailed
			}
			o.sendText(ctx, s, intro)
			if err := o.pause(ctx); err != nil {
				return stateFailed
			}
		}
		o.sendCard(ctx, s, card, fmt.Sprintf(roleCaptions[i], card.Name))
	}
	return stateInterpreting
}

// interpret asks the external service for a reading of the spread. In test
// mode administrators skip the call entirely. Failures and empty responses
// degrade to in-character notices and never fail the session.
func (o *Orchestrator) interpret(ctx context.Context, s *session) sessionState {
	if o.store.TestMode(ctx) && o.IsAdmin(s.req.UserID) {
		o.sendText(ctx, s, oracleMeditation)
		return stateClosed
	}
	if o.interpreter == nil {
		o.sendText(ctx, s, oracleMeditation)
		return stateClosed
	}

	o.sendText(ctx, s, interpretationStart)
	if err := o.pause(ctx); err != nil {
		return stateFailed
	}

	text, err := o.interpreter.Interpret(ctx, deck.Names(s.cards), s.req.Question)
	switch {
	case err != nil:
		slog.Error("interpretation failed", "session_id", string(s.id), "error", err)
		o.sendText(ctx, s, powersUnavailable)
	case text == "":
		o.sendText(ctx, s, cardsSilent)
	default:
		o.sendText(ctx, s, text)
	}
	// An interpretation failure does not fail the session: the reading
	// itself completed.
	return stateClosed
}

// closeSession emits the closing notice and writes the single success log
// entry, after all user-visible output has been attempted.
func (o *Orchestrator) closeSession(ctx context.Context, s *session) {
	o.sendText(ctx, s, closingMessage)
	o.appendLog(ctx, s, deck.Names(s.cards), true)
}

// failSession emits the generic error notice and, if the cooldown slot was
// already consumed, writes the single failure log entry.
func (o *Orchestrator) failSession(ctx context.Context, s *session) {
	o.sendText(ctx, s, errorMessage)
	if s.recorded {
		o.appendLog(ctx, s, nil, false)
	}
}

// appendLog writes the session's one log entry. Log failures never surface
// to the user. Shutdown must not lose the entry, so the write detaches from
// the session context's cancellation.
func (o *Orchestrator) appendLog(ctx context.Context, s *session, cards []string, success bool) {
	entry := &types.LogEntry{
		SessionID: s.id,
		UserID:    s.req.UserID,
		Username:  s.req.Username,
		Question:  s.req.Question,
		Cards:     cards,
		At:        s.req.Now,
		Success:   success,
	}
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := o.store.AppendLog(writeCtx, entry); err != nil {
		slog.Error("append log entry failed", "session_id", string(s.id), "error", err)
	}
}

// pause sleeps for one pacing interval. Only process shutdown interrupts it;
// sessions for other users tick on their own timers.
func (o *Orchestrator) pause(ctx context.Context) error {
	if o.pace <= 0 {
		return ctx.Err()
	}
	select {
	case <-time.After(o.pace):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// sendText delivers a notice, swallowing transport failures: a dropped chat
// must not abort the session or its log write.
func (o *Orchestrator) sendText(ctx context.Context, s *session, text string) {
	if err := o.transport.SendText(ctx, s.req.ChatID, text); err != nil {
		slog.Warn("send text failed", "session_id", string(s.id), "error", err)
	}
}

// sendCard sends the card image with its role caption, degrading to a plain
// text caption when the asset is missing or the photo send fails.
func (o *Orchestrator) sendCard(ctx context.Context, s *session, card types.Card, caption string) {
	path, err := o.assets.Resolve(card)
	if err != nil {
		slog.Warn("card image unavailable", "session_id", string(s.id), "card", card.Name, "error", err)
		o.sendText(ctx, s, caption)
		return
	}
	if err := o.transport.SendImage(ctx, s.req.ChatID, path, caption); err != nil {
		slog.Warn("send image failed", "session_id", string(s.id), "card", card.Name, "error", err)
		o.sendText(ctx, s, caption)
	}
}
