package agent

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"go-procurement-agent/internal/models"
)

// Progress is the part of the job the loop reports at checkpoints.
type Progress struct {
	Page          int
	TotalPages    *int
	Opportunities int
	CurrentAction string
	AgentStatus   string
	// ResultID is the working extraction batch, once one was written.
	ResultID string
}

// Lifecycle is the only writer of a job's status. It keeps a local mirror of
// the record so every write can be checked against the transition graph and
// the counters stay non-decreasing.
type Lifecycle struct {
	store  JobStore
	events EventPublisher
	now    func() time.Time
	job    models.ScrapingJob
	log    *zap.SugaredLogger
}

func NewLifecycle(store JobStore, events EventPublisher, now func() time.Time, job *models.ScrapingJob) *Lifecycle {
	if now == nil {
		now = time.Now
	}
	return &Lifecycle{
		store:  store,
		events: events,
		now:    now,
		job:    *job,
		log:    zap.S().Named("lifecycle").With("job_id", job.ID),
	}
}

// Job returns a copy of the mirrored record.
func (l *Lifecycle) Job() *models.ScrapingJob {
	j := l.job
	return &j
}

// Claim moves pending to queued through the store's conditional update.
func (l *Lifecycle) Claim(ctx context.Context) error {
	if !models.IsTransitionAllowed(l.job.Status, models.StatusQueued) {
		return illegalTransition(l.job.Status, models.StatusQueued)
	}
	if err := l.store.ClaimScrapingJob(ctx, l.job.ID); err != nil {
		return err
	}
	l.job.Status = models.StatusQueued
	l.publish(ctx, "transition", "claimed")
	return nil
}

// Start moves queued to in_progress and stamps startedAt.
func (l *Lifecycle) Start(ctx context.Context) error {
	now := l.now()
	return l.transition(ctx, models.StatusInProgress, models.JobPatch{
		StartedAt:   &now,
		CurrentPage: models.Ptr(max(l.job.CurrentPage, 1)),
		AgentStatus: models.Ptr("starting"),
	}, "session opening")
}

// Resume takes over a job left in_progress by a crashed worker. Each resume
// bumps retryCount; past maxResumes the job fails.
func (l *Lifecycle) Resume(ctx context.Context, maxResumes int) error {
	if l.job.Status != models.StatusInProgress {
		return illegalTransition(l.job.Status, models.StatusInProgress)
	}
	if l.job.RetryCount >= maxResumes {
		return newError(KindRetriesExhausted, fmt.Sprintf("job was resumed %d time(s) already", l.job.RetryCount), nil)
	}
	patch := models.JobPatch{
		RetryCount:  models.Ptr(l.job.RetryCount + 1),
		AgentStatus: models.Ptr("resuming"),
	}
	if err := l.persist(ctx, patch); err != nil {
		return err
	}
	l.publish(ctx, "resume", fmt.Sprintf("attempt %d", l.job.RetryCount+1))
	return nil
}

// Checkpoint persists progress. Page and opportunity counters never go down.
func (l *Lifecycle) Checkpoint(ctx context.Context, p Progress) error {
	if l.job.Status.IsTerminal() {
		return illegalTransition(l.job.Status, l.job.Status)
	}
	if err := l.persist(ctx, l.progressPatch(p)); err != nil {
		return err
	}
	l.publish(ctx, "checkpoint", p.CurrentAction)
	return nil
}

// Complete ends the job successfully.
func (l *Lifecycle) Complete(ctx context.Context, p Progress, resultID string) error {
	patch := l.terminalPatch(p)
	patch.AgentStatus = models.Ptr("completed")
	if resultID != "" {
		patch.ResultRecordID = &resultID
	}
	return l.transition(ctx, models.StatusCompleted, patch, p.CurrentAction)
}

// Fail ends the job with a classified error. The message is never empty.
func (l *Lifecycle) Fail(ctx context.Context, p Progress, e *Error, resultID string) error {
	msg := e.Message
	if msg == "" {
		msg = e.Error()
	}
	if e.Kind != KindUnrecoverable && e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	patch := l.terminalPatch(p)
	patch.AgentStatus = models.Ptr("failed")
	patch.ErrorMessage = &msg
	patch.ErrorType = models.Ptr(string(e.Kind))
	if resultID != "" {
		patch.ResultRecordID = &resultID
	}
	return l.transition(ctx, models.StatusFailed, patch, msg)
}

// Cancel ends the job on an external cancellation signal. It is valid from
// any non-terminal state.
func (l *Lifecycle) Cancel(ctx context.Context, p Progress, resultID string) error {
	patch := l.terminalPatch(p)
	patch.AgentStatus = models.Ptr("cancelled")
	if resultID != "" {
		patch.ResultRecordID = &resultID
	}
	return l.transition(ctx, models.StatusCancelled, patch, "cancelled")
}

func (l *Lifecycle) transition(ctx context.Context, to models.Status, patch models.JobPatch, msg string) error {
	from := l.job.Status
	if !models.IsTransitionAllowed(from, to) {
		return illegalTransition(from, to)
	}
	patch.Status = &to
	if err := l.persist(ctx, patch); err != nil {
		return err
	}
	l.log.Infof("🔁 %s -> %s", from, to)
	l.publish(ctx, "transition", msg)
	return nil
}

func (l *Lifecycle) persist(ctx context.Context, patch models.JobPatch) error {
	if err := l.store.UpdateScrapingJob(ctx, l.job.ID, patch); err != nil {
		return fmt.Errorf("persist job %s: %w", l.job.ID, err)
	}
	patch.Apply(&l.job)
	return nil
}

func (l *Lifecycle) progressPatch(p Progress) models.JobPatch {
	patch := models.JobPatch{
		CurrentPage:        models.Ptr(max(p.Page, l.job.CurrentPage)),
		OpportunitiesFound: models.Ptr(max(p.Opportunities, l.job.OpportunitiesFound)),
	}
	if p.TotalPages != nil {
		total := max(*p.TotalPages, *patch.CurrentPage)
		patch.TotalPages = &total
	}
	if p.CurrentAction != "" {
		patch.CurrentAction = models.Ptr(p.CurrentAction)
	}
	if p.AgentStatus != "" {
		patch.AgentStatus = models.Ptr(p.AgentStatus)
	}
	if p.ResultID != "" {
		patch.ResultRecordID = models.Ptr(p.ResultID)
	}
	return patch
}

func (l *Lifecycle) terminalPatch(p Progress) models.JobPatch {
	patch := l.progressPatch(p)
	now := l.now()
	patch.CompletedAt = &now
	from := l.job.QueuedAt
	if l.job.StartedAt != nil {
		from = *l.job.StartedAt
	}
	if !from.IsZero() {
		patch.DurationMs = models.Ptr(now.Sub(from).Milliseconds())
	}
	return patch
}

func (l *Lifecycle) publish(ctx context.Context, typ, msg string) {
	if l.events == nil {
		return
	}
	ev := models.JobEvent{
		Type:          typ,
		JobID:         l.job.ID,
		Status:        l.job.Status,
		Page:          l.job.CurrentPage,
		Opportunities: l.job.OpportunitiesFound,
		Message:       msg,
		At:            l.now(),
	}
	if err := l.events.PublishJobEvent(ctx, ev); err != nil {
		l.log.Warnf("⚠️ publish %s event: %v", typ, err)
	}
}

func illegalTransition(from, to models.Status) *Error {
	return newError(KindInternal, fmt.Sprintf("illegal status transition %s -> %s", from, to), nil)
}
