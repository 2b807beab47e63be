package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/storefront-session/pkg/logger"
)

const defaultGuestRetention = 30 * 24 * time.Hour

// GuestListPurger deletes durable guest lists not updated since cutoff.
type GuestListPurger interface {
	PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type GuestRetentionJobParams struct {
	Logger    *logger.Logger
	Purger    GuestListPurger
	Retention time.Duration
}

func NewGuestRetentionJob(params GuestRetentionJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Purger == nil {
		return nil, fmt.Errorf("guest list purger required")
	}
	retention := params.Retention
	if retention <= 0 {
		retention = defaultGuestRetention
	}
	return &guestRetentionJob{
		logg:      params.Logger,
		purger:    params.Purger,
		retention: retention,
		now:       time.Now,
	}, nil
}

type guestRetentionJob struct {
	logg      *logger.Logger
	purger    GuestListPurger
	retention time.Duration
	now       func() time.Time
}

func (j *guestRetentionJob) Name() string { return "guest-retention" }

func (j *guestRetentionJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.retention)
	deleted, err := j.purger.PurgeBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("guest retention: %w", err)
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":          cutoff,
		"retention_hours": int(j.retention.Hours()),
		"rows_deleted":    deleted,
	})
	j.logg.Info(logCtx, "guest list retention complete")
	return nil
}
