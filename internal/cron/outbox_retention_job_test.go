package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/closetapp/marketplace-backend/pkg/logger"
)

type fakeRetentionRepo struct {
	batches []int64
	calls   int
	cutoff  time.Time
	limit   int
	err     error
}

func (f *fakeRetentionRepo) DeletePublishedBefore(_ context.Context, cutoff time.Time, limit int) (int64, error) {
	f.calls++
	f.cutoff = cutoff
	f.limit = limit
	if f.err != nil {
		return 0, f.err
	}
	if len(f.batches) == 0 {
		return 0, nil
	}
	n := f.batches[0]
	f.batches = f.batches[1:]
	return n, nil
}

func TestOutboxRetentionDeletesUntilShortBatch(t *testing.T) {
	repo := &fakeRetentionRepo{batches: []int64{10, 10, 3}}
	job, err := NewOutboxRetentionJob(OutboxRetentionJobParams{
		Logger:     logger.Nop(),
		Repository: repo,
		Retention:  7,
		BatchSize:  10,
	})
	require.NoError(t, err)

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	job.(*outboxRetentionJob).now = func() time.Time { return now }

	require.NoError(t, job.Run(context.Background()))
	require.Equal(t, 3, repo.calls)
	require.Equal(t, 10, repo.limit)
	require.Equal(t, now.Add(-7*24*time.Hour), repo.cutoff)
	require.Equal(t, outboxRetentionJobName, job.Name())
}

func TestOutboxRetentionSurfacesErrors(t *testing.T) {
	job, err := NewOutboxRetentionJob(OutboxRetentionJobParams{
		Logger:     logger.Nop(),
		Repository: &fakeRetentionRepo{err: errors.New("db down")},
	})
	require.NoError(t, err)
	require.Error(t, job.Run(context.Background()))
}

func TestNewOutboxRetentionJobRequiresRepository(t *testing.T) {
	_, err := NewOutboxRetentionJob(OutboxRetentionJobParams{Logger: logger.Nop()})
	require.Error(t, err)
}
