package job

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maauso/genbridge-api/internal/generator"
)

// scriptedFetcher returns snapshots in order and repeats the last one.
// errs[i], when set, is returned by call i instead of a snapshot.
type scriptedFetcher struct {
	mu    sync.Mutex
	snaps []generator.Snapshot
	errs  []error
	err   error
	calls int
}

func (f *scriptedFetcher) Status(_ context.Context, id string) (generator.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return generator.Snapshot{}, f.err
	}
	i := f.calls - 1
	if i < len(f.errs) && f.errs[i] != nil {
		return generator.Snapshot{}, f.errs[i]
	}
	if i >= len(f.snaps) {
		i = len(f.snaps) - 1
	}
	s := f.snaps[i]
	s.ID = id
	return s, nil
}

func (f *scriptedFetcher) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// sleepRecorder records requested sleeps without waiting.
type sleepRecorder struct {
	mu    sync.Mutex
	total time.Duration
	count int
}

func (s *sleepRecorder) Sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.total += d
	s.count++
	return ctx.Err()
}

func running(progress int) generator.Snapshot {
	return generator.Snapshot{Status: generator.StatusProcessing, Progress: progress}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		snap generator.Snapshot
		want Outcome
	}{
		{"completed with results", generator.Snapshot{Status: generator.StatusCompleted, Results: []string{"u"}}, OutcomeSucceeded},
		{"completed without results", generator.Snapshot{Status: generator.StatusCompleted}, OutcomeRunning},
		{"failed", generator.Snapshot{Status: generator.StatusFailed}, OutcomeFailed},
		{"pending", generator.Snapshot{Status: generator.StatusPending}, OutcomeRunning},
		{"processing", running(30), OutcomeRunning},
		{"unknown", generator.Snapshot{Status: "paused"}, OutcomeRunning},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.snap))
		})
	}
}

func TestPoller_SucceedsOnFirstPoll(t *testing.T) {
	fetcher := &scriptedFetcher{snaps: []generator.Snapshot{
		{Status: generator.StatusCompleted, Progress: 100, Results: []string{"https://v/1.png"}},
	}}
	sleeper := &sleepRecorder{}
	p := NewPoller(fetcher, WithSleep(sleeper.Sleep))

	var seen []generator.Snapshot
	results, err := p.Wait(context.Background(), "task-1", func(s generator.Snapshot) { seen = append(seen, s) })

	require.NoError(t, err)
	assert.Equal(t, []string{"https://v/1.png"}, results)
	assert.Equal(t, 1, fetcher.Calls())
	assert.Equal(t, 1, sleeper.count, "sleeps before the first status check")
	assert.Equal(t, DefaultPollInterval, sleeper.total)
	require.Len(t, seen, 1)
	assert.Equal(t, "task-1", seen[0].ID)
}

func TestPoller_FailsOnThirdAttempt(t *testing.T) {
	fetcher := &scriptedFetcher{snaps: []generator.Snapshot{
		running(10),
		running(50),
		{Status: generator.StatusFailed, Error: "content policy"},
	}}
	sleeper := &sleepRecorder{}
	p := NewPoller(fetcher, WithSleep(sleeper.Sleep))

	_, err := p.Wait(context.Background(), "task-1", nil)

	require.ErrorIs(t, err, ErrGenerationFailed)
	assert.Contains(t, err.Error(), "content policy")
	assert.Equal(t, 3, fetcher.Calls())
}

func TestPoller_CompletedWithoutResultsKeepsPolling(t *testing.T) {
	fetcher := &scriptedFetcher{snaps: []generator.Snapshot{
		{Status: generator.StatusCompleted, Progress: 100},
		{Status: generator.StatusCompleted, Progress: 100, Results: []string{"https://v/1.mp4"}},
	}}
	p := NewPoller(fetcher, WithSleep((&sleepRecorder{}).Sleep))

	results, err := p.Wait(context.Background(), "task-1", nil)

	require.NoError(t, err)
	assert.Equal(t, []string{"https://v/1.mp4"}, results)
	assert.Equal(t, 2, fetcher.Calls())
}

func TestPoller_TimesOutWithinBudget(t *testing.T) {
	fetcher := &scriptedFetcher{snaps: []generator.Snapshot{
		{Status: generator.StatusCompleted}, // never gains results
	}}
	sleeper := &sleepRecorder{}
	p := NewPoller(fetcher,
		WithSleep(sleeper.Sleep),
		WithMaxAttempts(5),
		WithPollInterval(100*time.Millisecond),
	)

	_, err := p.Wait(context.Background(), "task-1", nil)

	require.ErrorIs(t, err, ErrTimeout)
	assert.Equal(t, 5, fetcher.Calls())
	assert.Equal(t, 5, sleeper.count)
	assert.LessOrEqual(t, sleeper.total, p.Budget())
	assert.Equal(t, 500*time.Millisecond, p.Budget())
}

func TestPoller_FetchErrorAborts(t *testing.T) {
	boom := errors.New("vendor unreachable")
	fetcher := &scriptedFetcher{err: boom}
	p := NewPoller(fetcher, WithSleep((&sleepRecorder{}).Sleep))

	_, err := p.Wait(context.Background(), "task-1", nil)

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, fetcher.Calls())
}

func TestPoller_ContextCancelled(t *testing.T) {
	fetcher := &scriptedFetcher{snaps: []generator.Snapshot{running(0)}}
	p := NewPoller(fetcher, WithPollInterval(time.Hour))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Wait(ctx, "task-1", nil)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, fetcher.Calls())
}

func TestPoller_RealSleep(t *testing.T) {
	fetcher := &scriptedFetcher{snaps: []generator.Snapshot{
		running(10),
		{Status: generator.StatusCompleted, Results: []string{"u"}},
	}}
	p := NewPoller(fetcher, WithPollInterval(5*time.Millisecond))

	start := time.Now()
	_, err := p.Wait(context.Background(), "task-1", nil)

	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 10*time.Millisecond)
}

func TestPoller_Options(t *testing.T) {
	p := NewPoller(&scriptedFetcher{}, WithMaxAttempts(0), WithPollInterval(-time.Second))

	assert.Equal(t, DefaultMaxAttempts, p.maxAttempts)
	assert.Equal(t, DefaultPollInterval, p.interval)
	assert.Equal(t, 4*time.Minute, p.Budget())
}
