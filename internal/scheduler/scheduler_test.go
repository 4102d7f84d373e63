package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobharvest/internal/domain"
)

type harvesterFunc func(ctx context.Context) (*domain.HarvestStats, error)

func (f harvesterFunc) Harvest(ctx context.Context) (*domain.HarvestStats, error) {
	return f(ctx)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestScheduler_RunOnce(t *testing.T) {
	var runs atomic.Int32
	errHarvest := errors.New("search failed")

	sched := NewScheduler(harvesterFunc(func(context.Context) (*domain.HarvestStats, error) {
		runs.Add(1)
		return nil, errHarvest
	}), 0, 0, testLogger())

	err := sched.Start(context.Background())

	assert.ErrorIs(t, err, errHarvest)
	assert.Equal(t, int32(1), runs.Load())
}

func TestScheduler_RunTimeout(t *testing.T) {
	sched := NewScheduler(harvesterFunc(func(ctx context.Context) (*domain.HarvestStats, error) {
		deadline, ok := ctx.Deadline()
		require.True(t, ok)
		assert.WithinDuration(t, time.Now().Add(time.Minute), deadline, 5*time.Second)
		return &domain.HarvestStats{}, nil
	}), 0, time.Minute, testLogger())

	assert.NoError(t, sched.Start(context.Background()))
}

func TestScheduler_IntervalUntilCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var runs atomic.Int32
	sched := NewScheduler(harvesterFunc(func(context.Context) (*domain.HarvestStats, error) {
		if runs.Add(1) == 3 {
			cancel()
		}
		return nil, errors.New("keeps going")
	}), 10*time.Millisecond, 0, testLogger())

	err := sched.Start(ctx)

	assert.ErrorIs(t, err, context.Canceled)
	assert.GreaterOrEqual(t, runs.Load(), int32(3))
}
