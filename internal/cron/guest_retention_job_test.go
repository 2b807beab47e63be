package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/storefront-session/pkg/logger"
)

type fakePurger struct {
	cutoff  time.Time
	deleted int64
	err     error
}

func (f *fakePurger) PurgeBefore(_ context.Context, cutoff time.Time) (int64, error) {
	f.cutoff = cutoff
	return f.deleted, f.err
}

func TestGuestRetentionJobUsesCutoff(t *testing.T) {
	purger := &fakePurger{deleted: 4}
	job, err := NewGuestRetentionJob(GuestRetentionJobParams{
		Logger:    logger.Nop(),
		Purger:    purger,
		Retention: 48 * time.Hour,
	})
	require.NoError(t, err)
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	job.(*guestRetentionJob).now = func() time.Time { return now }

	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, "guest-retention", job.Name())
	assert.True(t, purger.cutoff.Equal(now.Add(-48*time.Hour)))
}

func TestGuestRetentionJobDefaultsAndErrors(t *testing.T) {
	purger := &fakePurger{err: errors.New("db down")}
	job, err := NewGuestRetentionJob(GuestRetentionJobParams{Logger: logger.Nop(), Purger: purger})
	require.NoError(t, err)
	assert.Equal(t, defaultGuestRetention, job.(*guestRetentionJob).retention)

	err = job.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db down")

	_, err = NewGuestRetentionJob(GuestRetentionJobParams{Logger: logger.Nop()})
	require.Error(t, err)
}
