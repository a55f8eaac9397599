// Package housekeeping runs the periodic retention sweep over the state
// store: stale cooldown rows and reading-log entries older than the retention
// window are purged on a cron schedule.
package housekeeping

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/user/arcana/internal/types"
)

// Sweeper purges aged rows from the store on a cron schedule.
type Sweeper struct {
	store     types.Store
	schedule  string
	retention time.Duration
	cron      *cron.Cron
}

// cronParser accepts both standard 5-field cron expressions and 6-field
// expressions with an optional seconds field.
var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// New creates a Sweeper. The schedule is a cron expression; retention is how
// long rows are kept.
func New(store types.Store, schedule string, retention time.Duration) *Sweeper {
	return &Sweeper{
		store:     store,
		schedule:  schedule,
		retention: retention,
		cron:      cron.New(cron.WithParser(cronParser)),
	}
}

// Start registers the sweep and starts the cron ticker.
func (s *Sweeper) Start() error {
	if _, err := s.cron.AddFunc(s.schedule, s.sweep); err != nil {
		return fmt.Errorf("invalid housekeeping schedule %q: %w", s.schedule, err)
	}
	s.cron.Start()
	slog.Info("housekeeping scheduled", "schedule", s.schedule, "retention", s.retention)
	return nil
}

// Stop stops the cron ticker. A sweep already running completes.
func (s *Sweeper) Stop() {
	s.cron.Stop()
}

// Sweep runs one purge immediately, outside the schedule.
func (s *Sweeper) Sweep(ctx context.Context) (cooldowns, entries int64, err error) {
	return s.store.PurgeOlderThan(ctx, s.retention)
}

func (s *Sweeper) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	cooldowns, entries, err := s.store.PurgeOlderThan(ctx, s.retention)
	if err != nil {
		slog.Error("housekeeping sweep failed", "error", err)
		return
	}
	slog.Info("housekeeping sweep done", "cooldowns", cooldowns, "entries", entries)
}
