package reading

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/user/arcana/internal/assets"
	"github.com/user/arcana/internal/deck"
	"github.com/user/arcana/internal/store"
	"github.com/user/arcana/internal/types"
)

const adminID = types.UserID(99)

// fakeTransport records every delivery.
type fakeTransport struct {
	mu    sync.Mutex
	sends []string
	fail  bool
}

func (f *fakeTransport) SendText(_ context.Context, _ types.ChatID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("chat gone")
	}
	f.sends = append(f.sends, text)
	return nil
}

func (f *fakeTransport) SendImage(_ context.Context, _ types.ChatID, path, caption string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("chat gone")
	}
	f.sends = append(f.sends, "[image] "+caption)
	return nil
}

func (f *fakeTransport) all() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sends...)
}

func (f *fakeTransport) contains(substr string) bool {
	for _, s := range f.all() {
		if strings.Contains(s, substr) {
			return true
		}
	}
	return false
}

// fakeInterpreter returns a canned interpretation or an error.
type fakeInterpreter struct {
	mu     sync.Mutex
	empty  bool
	err    error
	called int
}

func (f *fakeInterpreter) Interpret(_ context.Context, cards []string, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.called++
	if f.err != nil {
		return "", f.err
	}
	if f.empty {
		return "", nil
	}
	return "The spread of " + strings.Join(cards, ", ") + " speaks of change.", nil
}

func (f *fakeInterpreter) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.called
}

type fixture struct {
	store     *store.SQLiteStore
	transport *fakeTransport
	interp    *fakeInterpreter
	orch      *Orchestrator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "arcana.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })

	transport := &fakeTransport{}
	interp := &fakeInterpreter{}
	orch := New(st, deck.Default(), transport, interp, assets.New(t.TempDir()), Options{
		Pace:          0,
		MaxConcurrent: 2,
		Admins:        []int64{int64(adminID)},
	})

	ctx, cancel := context.WithCancel(context.Background())
	orch.Start(ctx)
	t.Cleanup(func() { cancel(); orch.Stop() })

	return &fixture{store: st, transport: transport, interp: interp, orch: orch}
}

func (fx *fixture) runReading(t *testing.T, req Request) {
	t.Helper()
	if err := fx.orch.HandleReadingRequest(context.Background(), req); err != nil {
		t.Fatal(err)
	}
	if !fx.orch.WaitIdle(5 * time.Second) {
		t.Fatal("session did not finish in time")
	}
}

func logEntries(t *testing.T, fx *fixture) *types.Stats {
	t.Helper()
	stats, err := fx.store.QueryStats(context.Background(), 24*time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	return stats
}

func TestFullReading(t *testing.T) {
	fx := newFixture(t)
	t0 := time.Now()

	fx.runReading(t, Request{UserID: 1, Username: "ada", ChatID: 10, Question: "What awaits me?", Now: t0})

	sends := fx.transport.all()
	if len(sends) == 0 || sends[0] != readingStart {
		t.Fatalf("expected reading start first, got %v", sends)
	}
	// Three role captions in draw order.
	var captions []string
	for _, s := range sends {
		if strings.Contains(s, "Past:") || strings.Contains(s, "Present:") || strings.Contains(s, "Future:") {
			captions = append(captions, s)
		}
	}
	if len(captions) != 3 {
		t.Fatalf("expected 3 card captions, got %v", sends)
	}
	if !strings.Contains(captions[0], "Past:") || !strings.Contains(captions[1], "Present:") || !strings.Contains(captions[2], "Future:") {
		t.Errorf("captions out of role order: %v", captions)
	}
	if !fx.transport.contains("speaks of change") {
		t.Error("interpretation text missing")
	}
	if sends[len(sends)-1] != closingMessage {
		t.Errorf("expected closing message last, got %q", sends[len(sends)-1])
	}

	stats := logEntries(t, fx)
	if stats.Total != 1 || stats.Success != 1 {
		t.Errorf("expected exactly one success entry, got %+v", stats)
	}

	// Activity was recorded with the request timestamp.
	last, ok, err := fx.store.LastActivity(context.Background(), 1)
	if err != nil || !ok {
		t.Fatalf("expected activity record, got ok=%v err=%v", ok, err)
	}
	if last.Unix() != t0.Unix() {
		t.Errorf("activity timestamp mismatch: %v vs %v", last, t0)
	}
}

func TestCooldownRejection(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	if err := fx.store.SetCooldownDuration(ctx, time.Hour, adminID); err != nil {
		t.Fatal(err)
	}

	t0 := time.Now()
	fx.runReading(t, Request{UserID: 1, ChatID: 10, Question: "first", Now: t0})
	if got := logEntries(t, fx).Total; got != 1 {
		t.Fatalf("expected 1 entry after first reading, got %d", got)
	}

	// Second request ten minutes later is rejected with ~50 minutes left.
	fx.runReading(t, Request{UserID: 1, ChatID: 10, Question: "again", Now: t0.Add(10 * time.Minute)})

	if !fx.transport.contains("50 minutes") {
		t.Errorf("expected a 50-minute cooldown notice, got %v", fx.transport.all())
	}
	// Rejection produces no log entry by default.
	if got := logEntries(t, fx).Total; got != 1 {
		t.Errorf("cooldown rejection must not add a log entry, got %d", got)
	}
}

func TestCooldownRejectionLoggedWhenEnabled(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	if err := fx.store.SetSetting(ctx, store.SettingLogRejected, "true", adminID); err != nil {
		t.Fatal(err)
	}

	t0 := time.Now()
	fx.runReading(t, Request{UserID: 1, ChatID: 10, Question: "first", Now: t0})
	fx.runReading(t, Request{UserID: 1, ChatID: 10, Question: "again", Now: t0.Add(time.Minute)})

	stats := logEntries(t, fx)
	if stats.Total != 2 || stats.Failure != 1 {
		t.Errorf("expected rejected entry to be logged as failure, got %+v", stats)
	}
}

func TestInterpretationFailureStillCloses(t *testing.T) {
	fx := newFixture(t)
	fx.interp.err = errors.New("service down")

	fx.runReading(t, Request{UserID: 1, ChatID: 10, Question: "q", Now: time.Now()})

	if !fx.transport.contains(powersUnavailable) {
		t.Error("expected the powers-unavailable notice")
	}
	if !fx.transport.contains(closingMessage) {
		t.Error("expected the session to close normally")
	}
	// The reading itself completed, so the entry stays a success.
	stats := logEntries(t, fx)
	if stats.Total != 1 || stats.Success != 1 {
		t.Errorf("expected one success entry, got %+v", stats)
	}
}

func TestEmptyInterpretation(t *testing.T) {
	fx := newFixture(t)
	fx.interp.empty = true

	fx.runReading(t, Request{UserID: 1, ChatID: 10, Question: "q", Now: time.Now()})

	if !fx.transport.contains(cardsSilent) {
		t.Error("expected the cards-silent notice")
	}
	if !fx.transport.contains(closingMessage) {
		t.Error("expected the session to close")
	}
}

func TestTestModeBypassForAdmin(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	if _, err := fx.store.ToggleTestMode(ctx, adminID); err != nil {
		t.Fatal(err)
	}

	fx.runReading(t, Request{UserID: adminID, ChatID: 10, Question: "q", Now: time.Now()})

	if fx.interp.calls() != 0 {
		t.Error("test mode must skip the interpretation call for admins")
	}
	if !fx.transport.contains(oracleMeditation) {
		t.Error("expected the meditation notice")
	}

	// Ordinary users still get real interpretations in test mode.
	fx.runReading(t, Request{UserID: 2, ChatID: 11, Question: "q", Now: time.Now()})
	if fx.interp.calls() != 1 {
		t.Error("test mode must not bypass interpretation for ordinary users")
	}
}

func TestTransportFailuresAreSwallowed(t *testing.T) {
	fx := newFixture(t)
	fx.transport.fail = true

	fx.runReading(t, Request{UserID: 1, ChatID: 10, Question: "q", Now: time.Now()})

	// Every send failed, yet the session completed and logged.
	stats := logEntries(t, fx)
	if stats.Total != 1 || stats.Success != 1 {
		t.Errorf("expected one success entry despite dead transport, got %+v", stats)
	}
}

func TestEmptyQuestionRejected(t *testing.T) {
	fx := newFixture(t)
	err := fx.orch.HandleReadingRequest(context.Background(), Request{UserID: 1, ChatID: 10, Question: "   "})
	if err == nil {
		t.Error("expected empty question to be rejected at enqueue")
	}
}

func TestStatsAccess(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	if _, err := fx.orch.HandleStatsRequest(ctx, 1, 7); !errors.Is(err, ErrAccessDenied) {
		t.Errorf("expected access denied for non-admin, got %v", err)
	}

	stats, err := fx.orch.HandleStatsRequest(ctx, adminID, 7)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Total != 0 {
		t.Errorf("expected empty aggregate, got %+v", stats)
	}
}

func TestSetCooldownAccess(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	if err := fx.orch.HandleSetCooldown(ctx, 1, 5); !errors.Is(err, ErrAccessDenied) {
		t.Errorf("expected access denied, got %v", err)
	}
	if err := fx.orch.HandleSetCooldown(ctx, adminID, 0); err == nil {
		t.Error("expected rejection of zero-minute cooldown")
	}
	if err := fx.orch.HandleSetCooldown(ctx, adminID, 5); err != nil {
		t.Fatal(err)
	}
	if got := fx.store.CooldownDuration(ctx); got != 5*time.Minute {
		t.Errorf("expected 5m cooldown, got %s", got)
	}
}

func TestToggleTestModeAccess(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	if _, err := fx.orch.HandleToggleTestMode(ctx, 1); !errors.Is(err, ErrAccessDenied) {
		t.Errorf("expected access denied, got %v", err)
	}
	on, err := fx.orch.HandleToggleTestMode(ctx, adminID)
	if err != nil {
		t.Fatal(err)
	}
	if !on {
		t.Error("expected test mode on")
	}
}

func TestConcurrentUsersIndependent(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	for i := 0; i < 8; i++ {
		req := Request{
			UserID:   types.UserID(100 + i),
			ChatID:   types.ChatID(100 + i),
			Question: fmt.Sprintf("question %d", i),
			Now:      time.Now(),
		}
		if err := fx.orch.HandleReadingRequest(ctx, req); err != nil {
			t.Fatal(err)
		}
	}
	if !fx.orch.WaitIdle(10 * time.Second) {
		t.Fatal("sessions did not finish in time")
	}

	stats := logEntries(t, fx)
	if stats.Total != 8 || stats.Success != 8 {
		t.Errorf("expected 8 success entries, got %+v", stats)
	}
	if stats.UniqueUsers != 8 {
		t.Errorf("expected 8 unique users, got %d", stats.UniqueUsers)
	}
}

func TestSameUserSerialized(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	if err := fx.store.SetCooldownDuration(ctx, time.Hour, adminID); err != nil {
		t.Fatal(err)
	}

	// Two racing requests from the same user: the lane serializes them, so
	// exactly one passes the cooldown gate.
	now := time.Now()
	for i := 0; i < 2; i++ {
		if err := fx.orch.HandleReadingRequest(ctx, Request{UserID: 1, ChatID: 10, Question: "race", Now: now.Add(time.Duration(i) * time.Second)}); err != nil {
			t.Fatal(err)
		}
	}
	if !fx.orch.WaitIdle(5 * time.Second) {
		t.Fatal("sessions did not finish in time")
	}

	stats := logEntries(t, fx)
	if stats.Total != 1 {
		t.Errorf("expected exactly one accepted reading, got %+v", stats)
	}
}
