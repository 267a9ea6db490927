package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-procurement-agent/internal/database"
	"go-procurement-agent/internal/models"
)

type fakeRunner struct {
	mu       sync.Mutex
	ran      []string
	fail     map[string]bool
	active   atomic.Int32
	maxSeen  atomic.Int32
	duration time.Duration
}

func (f *fakeRunner) Run(ctx context.Context, jobID string) error {
	n := f.active.Add(1)
	defer f.active.Add(-1)
	for {
		m := f.maxSeen.Load()
		if n <= m || f.maxSeen.CompareAndSwap(m, n) {
			break
		}
	}
	time.Sleep(f.duration)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.ran = append(f.ran, jobID)
	if f.fail[jobID] {
		return errors.New("blocked")
	}
	return nil
}

func (f *fakeRunner) sorted() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := append([]string(nil), f.ran...)
	sort.Strings(out)
	return out
}

func TestRunCycleSeedsApprovedLinksOnce(t *testing.T) {
	ctx := context.Background()
	store := database.NewMemoryStore()
	store.AddLink(models.ProcurementLink{State: "Ohio", Capital: "Columbus", ProcurementLink: "https://oh.example.gov/bids", Approved: true})
	store.AddLink(models.ProcurementLink{State: "Utah", ProcurementLink: "https://ut.example.gov/bids"})
	runner := &fakeRunner{}

	s := New(store, noopRunner{}, Options{SeedLinks: true})
	stats, err := s.RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Seeded)
	assert.Equal(t, 1, stats.Dispatched)

	// the job is still pending because noopRunner never moves it
	s = New(store, runner, Options{SeedLinks: true})
	stats, err = s.RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Seeded, "a link with a job in flight is not seeded again")
	assert.Equal(t, 1, stats.Dispatched)

	jobs, err := store.ListScrapingJobs(ctx, models.StatusPending, 0)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "Ohio", jobs[0].State)
	assert.Equal(t, "Columbus", jobs[0].Capital)
	assert.Equal(t, []string{jobs[0].ID}, runner.sorted())
}

type noopRunner struct{}

func (noopRunner) Run(ctx context.Context, jobID string) error { return nil }

func TestRunCycleRespectsWorkerLimit(t *testing.T) {
	ctx := context.Background()
	store := database.NewMemoryStore()
	var want []string
	for i := 0; i < 6; i++ {
		id, err := store.CreateScrapingJob(ctx, models.NewScrapingJob{URL: "https://bids.example.gov"})
		require.NoError(t, err)
		want = append(want, id)
	}
	sort.Strings(want)

	runner := &fakeRunner{duration: 20 * time.Millisecond, fail: map[string]bool{want[0]: true}}
	s := New(store, runner, Options{Workers: 2})

	stats, err := s.RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 6, stats.Dispatched)
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, want, runner.sorted())
	assert.LessOrEqual(t, runner.maxSeen.Load(), int32(2))
}

func TestRunCycleResumesAbandonedJobs(t *testing.T) {
	ctx := context.Background()
	store := database.NewMemoryStore()

	mk := func(status models.Status, startedAgo time.Duration) string {
		id, err := store.CreateScrapingJob(ctx, models.NewScrapingJob{URL: "https://bids.example.gov"})
		require.NoError(t, err)
		if status == models.StatusPending {
			return id
		}
		require.NoError(t, store.ClaimScrapingJob(ctx, id))
		if status == models.StatusInProgress {
			require.NoError(t, store.UpdateScrapingJob(ctx, id, models.JobPatch{
				Status:    models.Ptr(models.StatusInProgress),
				StartedAt: models.Ptr(time.Now().Add(-startedAgo)),
			}))
		}
		return id
	}
	pending := mk(models.StatusPending, 0)
	stale := mk(models.StatusInProgress, 2*time.Hour)
	mk(models.StatusInProgress, time.Minute)
	mk(models.StatusQueued, 0)

	runner := &fakeRunner{}
	s := New(store, runner, Options{StaleAfter: time.Hour})
	_, err := s.RunCycle(ctx)
	require.NoError(t, err)

	want := []string{pending, stale}
	sort.Strings(want)
	assert.Equal(t, want, runner.sorted())
}

// shutdownRunner holds each job until the cycle's context ends, like an
// agent run interrupted by SIGTERM.
type shutdownRunner struct {
	started chan struct{}
}

func (r shutdownRunner) Run(ctx context.Context, jobID string) error {
	r.started <- struct{}{}
	<-ctx.Done()
	return fmt.Errorf("job %s: interrupted", jobID)
}

func TestRunCycleShutdownIsNotAFailure(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	store := database.NewMemoryStore()
	_, err := store.CreateScrapingJob(ctx, models.NewScrapingJob{URL: "https://bids.example.gov"})
	require.NoError(t, err)

	runner := shutdownRunner{started: make(chan struct{}, 1)}
	s := New(store, runner, Options{})
	go func() {
		<-runner.started
		cancel()
	}()

	stats, err := s.RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Dispatched)
	assert.Equal(t, 0, stats.Failed)
	assert.Equal(t, 1, stats.Interrupted)
}

func TestRunCycleSkipsWhenBusy(t *testing.T) {
	store := database.NewMemoryStore()
	s := New(store, noopRunner{}, Options{})
	s.cycle.Lock()
	defer s.cycle.Unlock()

	stats, err := s.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Stats{}, stats)
}

func TestStartRunsImmediately(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	store := database.NewMemoryStore()
	id, err := store.CreateScrapingJob(ctx, models.NewScrapingJob{URL: "https://bids.example.gov"})
	require.NoError(t, err)

	runner := &fakeRunner{}
	s := New(store, runner, Options{Spec: "@every 1h"})
	require.NoError(t, s.Start(ctx))
	defer s.Stop()

	assert.Eventually(t, func() bool {
		got := runner.sorted()
		return len(got) == 1 && got[0] == id
	}, 2*time.Second, 10*time.Millisecond)
}

func TestStartRejectsBadSpec(t *testing.T) {
	s := New(database.NewMemoryStore(), noopRunner{}, Options{Spec: "every now and then"})
	assert.Error(t, s.Start(context.Background()))
}
