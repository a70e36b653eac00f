// Package jobs runs scheduled maintenance against the account store.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// InactiveDeleter removes Student accounts idle for at least days.
type InactiveDeleter interface {
	DeleteInactive(ctx context.Context, days int) (int64, error)
}

// Cleanup purges inactive accounts on a cron schedule. Schedules use the
// six-field form with seconds, e.g. "0 0 3 * * *".
type Cleanup struct {
	store   InactiveDeleter
	days    int
	timeout time.Duration
	cron    *cron.Cron
}

func NewCleanup(store InactiveDeleter, schedule string, days int) (*Cleanup, error) {
	schedule = strings.TrimSpace(schedule)
	if schedule == "" {
		return nil, fmt.Errorf("cleanup schedule is empty")
	}
	if days < 0 {
		return nil, fmt.Errorf("inactive days must not be negative, got %d", days)
	}
	c := &Cleanup{
		store:   store,
		days:    days,
		timeout: time.Minute,
		cron:    cron.New(cron.WithSeconds()),
	}
	if _, err := c.cron.AddFunc(schedule, func() { c.RunOnce(context.Background()) }); err != nil {
		return nil, fmt.Errorf("invalid cleanup schedule %q: %w", schedule, err)
	}
	return c, nil
}

func (c *Cleanup) Start() {
	c.cron.Start()
}

// Stop halts the scheduler and waits for a running purge to finish.
func (c *Cleanup) Stop() {
	<-c.cron.Stop().Done()
}

// RunOnce performs a single purge and logs the outcome.
func (c *Cleanup) RunOnce(ctx context.Context) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	n, err := c.store.DeleteInactive(ctx, c.days)
	if err != nil {
		slog.Warn("inactive account cleanup failed", "days", c.days, "error", err)
		return 0, err
	}
	if n > 0 {
		slog.Info("inactive accounts deleted", "count", n, "days", c.days)
	}
	return n, nil
}
