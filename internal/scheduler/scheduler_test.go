package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stock_digest/internal/domain"
	"stock_digest/internal/lock"
)

type fakeRunner struct {
	calls    int
	deadline time.Time
	err      error
	onRun    func()
}

func (f *fakeRunner) Run(ctx context.Context) (*domain.DigestReport, error) {
	f.calls++
	f.deadline, _ = ctx.Deadline()
	if f.onRun != nil {
		f.onRun()
	}
	if f.err != nil {
		return nil, f.err
	}
	return domain.NewDigestReport("run-1", time.Now()), nil
}

type fakeLocker struct {
	err      error
	released int
}

func (f *fakeLocker) Acquire(context.Context) (func(context.Context) error, error) {
	if f.err != nil {
		return nil, f.err
	}
	return func(context.Context) error {
		f.released++
		return nil
	}, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNextRun(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	tests := []struct {
		name   string
		now    time.Time
		offset time.Duration
		loc    *time.Location
		want   time.Time
	}{
		{
			name:   "later today",
			now:    time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC),
			offset: 12 * time.Hour,
			loc:    time.UTC,
			want:   time.Date(2024, 3, 4, 12, 0, 0, 0, time.UTC),
		},
		{
			name:   "already passed rolls to tomorrow",
			now:    time.Date(2024, 3, 4, 12, 30, 0, 0, time.UTC),
			offset: 12 * time.Hour,
			loc:    time.UTC,
			want:   time.Date(2024, 3, 5, 12, 0, 0, 0, time.UTC),
		},
		{
			name:   "exactly at run time rolls to tomorrow",
			now:    time.Date(2024, 3, 4, 12, 0, 0, 0, time.UTC),
			offset: 12 * time.Hour,
			loc:    time.UTC,
			want:   time.Date(2024, 3, 5, 12, 0, 0, 0, time.UTC),
		},
		{
			name:   "month boundary",
			now:    time.Date(2024, 1, 31, 23, 0, 0, 0, time.UTC),
			offset: 6*time.Hour + 30*time.Minute,
			loc:    time.UTC,
			want:   time.Date(2024, 2, 1, 6, 30, 0, 0, time.UTC),
		},
		{
			name:   "evaluated in location",
			now:    time.Date(2024, 3, 4, 3, 0, 0, 0, time.UTC), // 22:00 on Mar 3 in New York
			offset: 23 * time.Hour,
			loc:    ny,
			want:   time.Date(2024, 3, 3, 23, 0, 0, 0, ny),
		},
		{
			name:   "across spring forward",
			now:    time.Date(2024, 3, 9, 13, 0, 0, 0, ny),
			offset: 12 * time.Hour,
			loc:    ny,
			want:   time.Date(2024, 3, 10, 12, 0, 0, 0, ny),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NextRun(tt.now, tt.offset, tt.loc)
			assert.True(t, tt.want.Equal(got), "NextRun() = %v, want %v", got, tt.want)
		})
	}
}

func TestRunOnce_AppliesTimeoutAndReleasesLock(t *testing.T) {
	runner := &fakeRunner{}
	locker := &fakeLocker{}
	s := NewScheduler(runner, locker, 12*time.Hour, time.UTC, time.Minute, testLogger())

	report, err := s.RunOnce(context.Background())

	require.NoError(t, err)
	require.NotNil(t, report)
	assert.Equal(t, 1, runner.calls)
	assert.False(t, runner.deadline.IsZero())
	assert.Equal(t, 1, locker.released)
}

func TestRunOnce_LockHeldElsewhereSkips(t *testing.T) {
	runner := &fakeRunner{}
	s := NewScheduler(runner, &fakeLocker{err: lock.ErrNotAcquired}, 12*time.Hour, time.UTC, time.Minute, testLogger())

	report, err := s.RunOnce(context.Background())

	assert.NoError(t, err)
	assert.Nil(t, report)
	assert.Equal(t, 0, runner.calls)
}

func TestRunOnce_LockErrorIsReturned(t *testing.T) {
	runner := &fakeRunner{}
	s := NewScheduler(runner, &fakeLocker{err: errors.New("redis down")}, 12*time.Hour, time.UTC, time.Minute, testLogger())

	_, err := s.RunOnce(context.Background())

	assert.ErrorContains(t, err, "acquire run lock")
	assert.Equal(t, 0, runner.calls)
}

func TestRunOnce_RunnerErrorStillReleases(t *testing.T) {
	runner := &fakeRunner{err: errors.New("boom")}
	locker := &fakeLocker{}
	s := NewScheduler(runner, locker, 12*time.Hour, time.UTC, 0, testLogger())

	_, err := s.RunOnce(context.Background())

	assert.Error(t, err)
	assert.True(t, runner.deadline.IsZero())
	assert.Equal(t, 1, locker.released)
}

func TestStart_RunsWhenTimerFiresAndStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runner := &fakeRunner{onRun: cancel}
	s := NewScheduler(runner, nil, 12*time.Hour, time.UTC, time.Minute, testLogger())
	s.now = func() time.Time { return time.Date(2024, 3, 4, 11, 0, 0, 0, time.UTC) }

	var waited []time.Duration
	s.wait = func(d time.Duration) <-chan time.Time {
		waited = append(waited, d)
		if len(waited) > 1 {
			return nil
		}
		ch := make(chan time.Time, 1)
		ch <- time.Time{}
		return ch
	}

	err := s.Start(ctx)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, runner.calls)
	require.NotEmpty(t, waited)
	assert.Equal(t, time.Hour, waited[0])
}
