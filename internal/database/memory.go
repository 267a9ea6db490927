package database

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"go-procurement-agent/internal/models"
)

// MemoryStore keeps jobs, links and batches in process. It backs tests and
// the one-shot `scrape` command.
type MemoryStore struct {
	mu      sync.RWMutex
	jobs    map[string]*models.ScrapingJob
	links   map[string]*models.ProcurementLink
	batches map[string]*models.ExtractionBatch
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs:    make(map[string]*models.ScrapingJob),
		links:   make(map[string]*models.ProcurementLink),
		batches: make(map[string]*models.ExtractionBatch),
		now:     time.Now,
	}
}

func (s *MemoryStore) CreateScrapingJob(ctx context.Context, in models.NewScrapingJob) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job := &models.ScrapingJob{
		ID:                uuid.NewString(),
		PortalID:          in.PortalID,
		AgentJobID:        in.AgentJobID,
		ProcurementLinkID: in.ProcurementLinkID,
		URL:               in.URL,
		State:             in.State,
		Capital:           in.Capital,
		Status:            models.StatusPending,
		QueuedAt:          s.now(),
	}
	if job.AgentJobID == "" {
		job.AgentJobID = newAgentJobID()
	}
	s.jobs[job.ID] = job
	return job.ID, nil
}

func (s *MemoryStore) GetScrapingJob(ctx context.Context, id string) (*models.ScrapingJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, fmt.Errorf("job %s: %w", id, models.ErrNotFound)
	}
	cp := *job
	return &cp, nil
}

// UpdateScrapingJob applies patch atomically. Terminal jobs reject every
// patch and status changes must follow the transition graph.
func (s *MemoryStore) UpdateScrapingJob(ctx context.Context, id string, patch models.JobPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return fmt.Errorf("job %s: %w", id, models.ErrNotFound)
	}
	if job.Status.IsTerminal() || (patch.Status != nil && *patch.Status != job.Status && !models.IsTransitionAllowed(job.Status, *patch.Status)) {
		return rejectedUpdate(id, job.Status, patch)
	}
	patch.Apply(job)
	return nil
}

func (s *MemoryStore) ClaimScrapingJob(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return fmt.Errorf("job %s: %w", id, models.ErrNotFound)
	}
	if job.Status != models.StatusPending {
		return fmt.Errorf("job %s is %s: %w", id, job.Status, models.ErrAlreadyClaimed)
	}
	job.Status = models.StatusQueued
	return nil
}

// ListScrapingJobs returns jobs with the given status, oldest first. An
// empty status lists everything.
func (s *MemoryStore) ListScrapingJobs(ctx context.Context, status models.Status, limit int) ([]models.ScrapingJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.ScrapingJob
	for _, j := range s.jobs {
		if status == "" || j.Status == status {
			out = append(out, *j)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].QueuedAt.Equal(out[j].QueuedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].QueuedAt.Before(out[j].QueuedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// SaveExtractionBatch inserts batch, or replaces the stored batch with the
// same ID. A replaced batch keeps its creation time.
func (s *MemoryStore) SaveExtractionBatch(ctx context.Context, batch *models.ExtractionBatch) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *batch
	if cp.ID == "" {
		cp.ID = uuid.NewString()
	}
	cp.Opportunities = append([]models.ExtractedOpportunity(nil), batch.Opportunities...)
	cp.Notes = append([]string(nil), batch.Notes...)
	if prev, ok := s.batches[cp.ID]; ok {
		cp.CreatedAt = prev.CreatedAt
	}
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = s.now()
	}
	s.batches[cp.ID] = &cp
	return cp.ID, nil
}

func (s *MemoryStore) GetExtractionBatch(ctx context.Context, id string) (*models.ExtractionBatch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.batches[id]
	if !ok {
		return nil, fmt.Errorf("batch %s: %w", id, models.ErrNotFound)
	}
	cp := *b
	cp.Opportunities = append([]models.ExtractedOpportunity(nil), b.Opportunities...)
	cp.Notes = append([]string(nil), b.Notes...)
	return &cp, nil
}

// AddLink registers a procurement link, mostly for tests.
func (s *MemoryStore) AddLink(link models.ProcurementLink) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if link.ID == "" {
		link.ID = uuid.NewString()
	}
	if link.CreatedAt.IsZero() {
		link.CreatedAt = s.now()
	}
	s.links[link.ID] = &link
	return link.ID
}

func (s *MemoryStore) ListApprovedLinks(ctx context.Context) ([]models.ProcurementLink, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.ProcurementLink
	for _, l := range s.links {
		if l.Approved && l.ProcurementLink != "" {
			out = append(out, *l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].State < out[j].State })
	return out, nil
}

// HasActiveJob reports whether a non-terminal job exists for the link.
func (s *MemoryStore) HasActiveJob(ctx context.Context, linkID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, j := range s.jobs {
		if j.ProcurementLinkID == linkID && !j.Status.IsTerminal() {
			return true, nil
		}
	}
	return false, nil
}
