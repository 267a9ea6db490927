// Package scheduler wires up the cron job that seeds scraping jobs from the
// approved procurement links and runs pending jobs on a bounded worker pool.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"go-procurement-agent/internal/models"
)

type Store interface {
	ListApprovedLinks(ctx context.Context) ([]models.ProcurementLink, error)
	HasActiveJob(ctx context.Context, linkID string) (bool, error)
	CreateScrapingJob(ctx context.Context, in models.NewScrapingJob) (string, error)
	ListScrapingJobs(ctx context.Context, status models.Status, limit int) ([]models.ScrapingJob, error)
}

// Runner drives one job to a terminal state.
type Runner interface {
	Run(ctx context.Context, jobID string) error
}

type Options struct {
	// Spec is a robfig/cron spec, e.g. "@every 6h".
	Spec      string
	Workers   int
	BatchSize int
	SeedLinks bool
	// StaleAfter is how long a queued or in_progress job may go untouched
	// before it is considered abandoned by a crashed worker and resumed.
	StaleAfter time.Duration
}

// Stats summarizes one cycle.
type Stats struct {
	Seeded     int
	Dispatched int
	Failed     int
	// Interrupted counts jobs stopped by shutdown. They keep their status
	// and are resumed by a later cycle.
	Interrupted int
}

// Scheduler wraps robfig/cron and manages the scrape cycle.
type Scheduler struct {
	cron   *cron.Cron
	store  Store
	runner Runner
	opts   Options
	now    func() time.Time
	log    *zap.SugaredLogger

	cycle sync.Mutex
}

func New(store Store, runner Runner, opts Options) *Scheduler {
	if opts.Spec == "" {
		opts.Spec = "@every 6h"
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 50
	}
	return &Scheduler{
		cron:   cron.New(),
		store:  store,
		runner: runner,
		opts:   opts,
		now:    time.Now,
		log:    zap.S().Named("scheduler"),
	}
}

// Start registers the cycle and starts cron. One cycle also runs right away
// so pending jobs don't wait for the first tick.
func (s *Scheduler) Start(ctx context.Context) error {
	_, err := s.cron.AddFunc(s.opts.Spec, func() {
		s.tick(ctx)
	})
	if err != nil {
		return fmt.Errorf("cron.AddFunc: %w", err)
	}

	s.cron.Start()
	s.log.Infof("⏰ Cron started, spec %s, %d worker(s)", s.opts.Spec, s.opts.Workers)

	go s.tick(ctx)
	return nil
}

// Stop stops cron and waits for a running cycle to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.cycle.Lock()
	defer s.cycle.Unlock()
	s.log.Info("⏰ Cron stopped")
}

func (s *Scheduler) tick(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	stats, err := s.RunCycle(ctx)
	if err != nil {
		s.log.Errorf("❌ Cycle failed: %v", err)
		return
	}
	s.log.Infof("📊 Cycle done: %d seeded, %d dispatched, %d failed, %d interrupted", stats.Seeded, stats.Dispatched, stats.Failed, stats.Interrupted)
}

// RunCycle seeds jobs (when enabled) and runs every runnable job once. A
// cycle that starts while another is still running is skipped.
func (s *Scheduler) RunCycle(ctx context.Context) (Stats, error) {
	var stats Stats
	if !s.cycle.TryLock() {
		s.log.Info("⏭️ Previous cycle still running, skipping")
		return stats, nil
	}
	defer s.cycle.Unlock()

	if s.opts.SeedLinks {
		n, err := s.seed(ctx)
		if err != nil {
			return stats, err
		}
		stats.Seeded = n
	}

	ids, err := s.runnable(ctx)
	if err != nil {
		return stats, err
	}
	if len(ids) == 0 {
		return stats, nil
	}

	var failed, interrupted atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Workers)
	for _, id := range ids {
		if gctx.Err() != nil {
			break
		}
		id := id
		g.Go(func() error {
			if err := s.runner.Run(gctx, id); err != nil {
				if gctx.Err() != nil {
					interrupted.Add(1)
					s.log.Infof("⏸️ Job %s left for a later cycle: %v", id, err)
					return nil
				}
				failed.Add(1)
				s.log.Warnf("⚠️ Job %s: %v", id, err)
			}
			return nil
		})
		stats.Dispatched++
	}
	_ = g.Wait()
	stats.Failed = int(failed.Load())
	stats.Interrupted = int(interrupted.Load())
	return stats, nil
}

// seed creates one pending job per approved link that has no job in flight.
func (s *Scheduler) seed(ctx context.Context) (int, error) {
	links, err := s.store.ListApprovedLinks(ctx)
	if err != nil {
		return 0, fmt.Errorf("list approved links: %w", err)
	}
	created := 0
	for _, l := range links {
		active, err := s.store.HasActiveJob(ctx, l.ID)
		if err != nil {
			return created, fmt.Errorf("check link %s: %w", l.ID, err)
		}
		if active {
			continue
		}
		id, err := s.store.CreateScrapingJob(ctx, models.NewScrapingJob{
			ProcurementLinkID: l.ID,
			URL:               l.ProcurementLink,
			State:             l.State,
			Capital:           l.Capital,
		})
		if err != nil {
			return created, fmt.Errorf("create job for %s: %w", l.State, err)
		}
		s.log.Infof("🌱 Seeded job %s for %s", id, l.State)
		created++
	}
	return created, nil
}

// runnable lists pending jobs plus queued or in_progress jobs that look
// abandoned.
func (s *Scheduler) runnable(ctx context.Context) ([]string, error) {
	var ids []string
	pending, err := s.store.ListScrapingJobs(ctx, models.StatusPending, s.opts.BatchSize)
	if err != nil {
		return nil, fmt.Errorf("list pending jobs: %w", err)
	}
	for _, j := range pending {
		ids = append(ids, j.ID)
	}
	if s.opts.StaleAfter <= 0 {
		return ids, nil
	}

	cutoff := s.now().Add(-s.opts.StaleAfter)
	for _, st := range []models.Status{models.StatusQueued, models.StatusInProgress} {
		jobs, err := s.store.ListScrapingJobs(ctx, st, s.opts.BatchSize)
		if err != nil {
			return nil, fmt.Errorf("list %s jobs: %w", st, err)
		}
		for _, j := range jobs {
			since := j.QueuedAt
			if j.StartedAt != nil {
				since = *j.StartedAt
			}
			if since.Before(cutoff) {
				s.log.Infof("♻️ Job %s looks abandoned (%s since %s)", j.ID, j.Status, since.Format(time.RFC3339))
				ids = append(ids, j.ID)
			}
		}
	}
	return ids, nil
}
