// Package scheduler registers the tracker's recurring jobs on a cron runner.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"finance-tracker/internal/backup"
	"finance-tracker/internal/syncer"
)

type DailySnapshotter interface {
	MaybeCreateDailySnapshot() (*backup.Artifact, error)
}

type PeriodicSyncer interface {
	PeriodicSync(ctx context.Context) error
}

type CooldownResetter interface {
	ResetExpiredCooldown() (bool, error)
}

// Jobs are the collaborators driven by the schedule.
type Jobs struct {
	Backups      DailySnapshotter
	Sync         PeriodicSyncer
	Quota        CooldownResetter
	SyncInterval time.Duration // default 5m
	Timeout      time.Duration // per periodic sync, default 30s
}

// Register adds the daily backup check, the safety sync and the quota
// cooldown reset to c. The caller starts and stops c.
func Register(c *cron.Cron, jobs Jobs) ([]cron.EntryID, error) {
	if jobs.SyncInterval <= 0 {
		jobs.SyncInterval = 5 * time.Minute
	}
	if jobs.Timeout <= 0 {
		jobs.Timeout = 30 * time.Second
	}

	var ids []cron.EntryID
	add := func(spec string, fn func()) error {
		id, err := c.AddFunc(spec, fn)
		if err != nil {
			return fmt.Errorf("failed to add cron job %q: %w", spec, err)
		}
		ids = append(ids, id)
		return nil
	}

	if err := add("@hourly", func() {
		art, err := jobs.Backups.MaybeCreateDailySnapshot()
		if err != nil {
			slog.Error("daily snapshot failed", "err", err)
			return
		}
		if art != nil {
			slog.Info("daily snapshot written", "path", art.Path)
		}
	}); err != nil {
		return nil, err
	}

	if err := add(fmt.Sprintf("@every %s", jobs.SyncInterval), func() {
		ctx, cancel := context.WithTimeout(context.Background(), jobs.Timeout)
		defer cancel()
		if err := jobs.Sync.PeriodicSync(ctx); err != nil && !errors.Is(err, syncer.ErrSyncDisabled) {
			slog.Warn("periodic sync failed", "err", err)
		}
	}); err != nil {
		return nil, err
	}

	if err := add("@every 1m", func() {
		reset, err := jobs.Quota.ResetExpiredCooldown()
		if err != nil {
			slog.Error("quota cooldown check failed", "err", err)
			return
		}
		if reset {
			slog.Info("AI quota cooldown expired")
		}
	}); err != nil {
		return nil, err
	}

	return ids, nil
}
