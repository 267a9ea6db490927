package models

import (
	"errors"
	"time"
)

var (
	ErrNotFound       = errors.New("not found")
	ErrAlreadyClaimed = errors.New("job already claimed")
)

// ScrapingJob is one end-to-end scrape attempt against one portal URL.
type ScrapingJob struct {
	ID                 string `json:"id"`
	PortalID           string `json:"portalId,omitempty"`
	AgentJobID         string `json:"agentJobId"`
	ProcurementLinkID  string `json:"procurementLinkId,omitempty"`
	URL                string `json:"url"`
	State              string `json:"state"`
	Capital            string `json:"capital"`
	Status             Status `json:"status"`
	AgentStatus        string `json:"agentStatus,omitempty"`
	CurrentPage        int    `json:"currentPage"`
	TotalPages         *int   `json:"totalPages,omitempty"`
	OpportunitiesFound int    `json:"opportunitiesFound"`
	CurrentAction      string `json:"currentAction,omitempty"`

	QueuedAt    time.Time  `json:"queuedAt"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	DurationMs  *int64     `json:"durationMs,omitempty"`

	ResultRecordID string `json:"resultRecordId,omitempty"`
	ErrorMessage   string `json:"errorMessage,omitempty"`
	ErrorType      string `json:"errorType,omitempty"`
	RetryCount     int    `json:"retryCount"`
}

// NewScrapingJob is the input of CreateScrapingJob.
type NewScrapingJob struct {
	PortalID          string `json:"portalId"`
	AgentJobID        string `json:"agentJobId"`
	ProcurementLinkID string `json:"procurementLinkId"`
	URL               string `json:"url" binding:"required"`
	State             string `json:"state"`
	Capital           string `json:"capital"`
}

// JobPatch is a partial update of a ScrapingJob. Nil fields are left
// unchanged; there is no way to clear a field through a patch.
type JobPatch struct {
	Status             *Status
	AgentStatus        *string
	CurrentPage        *int
	TotalPages         *int
	OpportunitiesFound *int
	CurrentAction      *string
	StartedAt          *time.Time
	CompletedAt        *time.Time
	DurationMs         *int64
	ResultRecordID     *string
	ErrorMessage       *string
	ErrorType          *string
	RetryCount         *int
}

// IsEmpty reports whether the patch would change nothing.
func (p JobPatch) IsEmpty() bool {
	return p.Status == nil && p.AgentStatus == nil && p.CurrentPage == nil &&
		p.TotalPages == nil && p.OpportunitiesFound == nil && p.CurrentAction == nil &&
		p.StartedAt == nil && p.CompletedAt == nil && p.DurationMs == nil &&
		p.ResultRecordID == nil && p.ErrorMessage == nil && p.ErrorType == nil &&
		p.RetryCount == nil
}

// Apply merges the present fields of p into job.
func (p JobPatch) Apply(job *ScrapingJob) {
	if p.Status != nil {
		job.Status = *p.Status
	}
	if p.AgentStatus != nil {
		job.AgentStatus = *p.AgentStatus
	}
	if p.CurrentPage != nil {
		job.CurrentPage = *p.CurrentPage
	}
	if p.TotalPages != nil {
		v := *p.TotalPages
		job.TotalPages = &v
	}
	if p.OpportunitiesFound != nil {
		job.OpportunitiesFound = *p.OpportunitiesFound
	}
	if p.CurrentAction != nil {
		job.CurrentAction = *p.CurrentAction
	}
	if p.StartedAt != nil {
		v := *p.StartedAt
		job.StartedAt = &v
	}
	if p.CompletedAt != nil {
		v := *p.CompletedAt
		job.CompletedAt = &v
	}
	if p.DurationMs != nil {
		v := *p.DurationMs
		job.DurationMs = &v
	}
	if p.ResultRecordID != nil {
		job.ResultRecordID = *p.ResultRecordID
	}
	if p.ErrorMessage != nil {
		job.ErrorMessage = *p.ErrorMessage
	}
	if p.ErrorType != nil {
		job.ErrorType = *p.ErrorType
	}
	if p.RetryCount != nil {
		job.RetryCount = *p.RetryCount
	}
}

// ProcurementLink is an approved portal entry point for a state capital.
type ProcurementLink struct {
	ID              string    `json:"id"`
	State           string    `json:"state"`
	Capital         string    `json:"capital"`
	OfficialWebsite string    `json:"officialWebsite"`
	ProcurementLink string    `json:"procurementLink"`
	Approved        bool      `json:"approved"`
	CreatedAt       time.Time `json:"createdAt"`
}

// ExtractionBatch is the persisted result of one job.
type ExtractionBatch struct {
	ID                string                 `json:"id"`
	JobID             string                 `json:"jobId"`
	ProcurementLinkID string                 `json:"procurementLinkId,omitempty"`
	State             string                 `json:"state"`
	SourceURL         string                 `json:"sourceUrl"`
	Opportunities     []ExtractedOpportunity `json:"data"`
	RowCount          int                    `json:"rowCount"`
	Notes             []string               `json:"notes,omitempty"`
	CreatedAt         time.Time              `json:"createdAt"`
}

// JobEvent is published on every lifecycle transition and checkpoint.
type JobEvent struct {
	Type          string    `json:"type"`
	JobID         string    `json:"jobId"`
	Status        Status    `json:"status"`
	Page          int       `json:"page"`
	Opportunities int       `json:"opportunities"`
	Message       string    `json:"message,omitempty"`
	At            time.Time `json:"at"`
}

// Ptr returns a pointer to v. Handy for building patches.
func Ptr[T any](v T) *T { return &v }
