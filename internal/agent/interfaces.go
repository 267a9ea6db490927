package agent

import (
	"context"
	"time"

	"go-procurement-agent/internal/models"
)

// Browser is one page-rendering session owned by a single job. Calls are
// never made concurrently.
type Browser interface {
	Navigate(ctx context.Context, url string) error
	Click(ctx context.Context, selector string) error
	Fill(ctx context.Context, selector, value string) error
	Scroll(ctx context.Context, direction string, amount int) error
	Wait(ctx context.Context, d time.Duration) error
	// Snapshot returns the screenshot and the simplified, truncated HTML.
	Snapshot(ctx context.Context) (*models.PageSnapshot, error)
	// Content returns the full current DOM, used to resolve targets.
	Content(ctx context.Context) (string, error)
	Close() error
}

type SessionOpener interface {
	Open(ctx context.Context, job *models.ScrapingJob) (Browser, error)
}

// OpenerFunc adapts a function to SessionOpener.
type OpenerFunc func(ctx context.Context, job *models.ScrapingJob) (Browser, error)

func (f OpenerFunc) Open(ctx context.Context, job *models.ScrapingJob) (Browser, error) {
	return f(ctx, job)
}

// JobStore is the slice of the job store the agent writes through.
type JobStore interface {
	GetScrapingJob(ctx context.Context, id string) (*models.ScrapingJob, error)
	UpdateScrapingJob(ctx context.Context, id string, patch models.JobPatch) error
	// ClaimScrapingJob moves a pending job to queued, failing with
	// models.ErrAlreadyClaimed when another worker got there first.
	ClaimScrapingJob(ctx context.Context, id string) error
	// SaveExtractionBatch inserts batch, or overwrites it in place when
	// batch.ID is set, and returns its id.
	SaveExtractionBatch(ctx context.Context, batch *models.ExtractionBatch) (string, error)
	GetExtractionBatch(ctx context.Context, id string) (*models.ExtractionBatch, error)
}

// Canceller reads the per-job cancellation flag. ClearCancel is called once
// the job is cancelled so the flag does not outlive it.
type Canceller interface {
	IsCancelled(ctx context.Context, jobID string) (bool, error)
	ClearCancel(ctx context.Context, jobID string) error
}

type EventPublisher interface {
	PublishJobEvent(ctx context.Context, ev models.JobEvent) error
}

type Notifier interface {
	JobFinished(ctx context.Context, job *models.ScrapingJob) error
}

// ArtifactRecorder keeps page evidence for failures worth a human look.
type ArtifactRecorder interface {
	Record(name, reason string, snap *models.PageSnapshot)
}
