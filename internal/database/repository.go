package database

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go-procurement-agent/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema.sql
var schemaSQL string

type Repository struct {
	db *pgxpool.Pool
}

func ConnectDB(ctx context.Context, connString string) (*Repository, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database url: %w", err)
	}

	config.MaxConns = 10
	config.MinConns = 2
	config.MaxConnLifetime = time.Hour

	// Transaction-mode poolers (PgBouncer, Supabase) can't keep prepared
	// statements across connections.
	config.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeExec

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("database unreachable: %w", err)
	}

	return &Repository{db: pool}, nil
}

func (r *Repository) Close() {
	if r.db != nil {
		r.db.Close()
	}
}

// Migrate creates the tables if they are missing.
func (r *Repository) Migrate(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// ---------------- SCRAPING JOBS ----------------

const jobColumns = `id, portal_id, agent_job_id, procurement_link_id, url, state, capital,
	status, agent_status, current_page, total_pages, opportunities_found, current_action,
	queued_at, started_at, completed_at, duration_ms, result_record_id, error_message,
	error_type, retry_count`

func scanJob(row pgx.Row) (*models.ScrapingJob, error) {
	var (
		job    models.ScrapingJob
		status string
	)
	err := row.Scan(&job.ID, &job.PortalID, &job.AgentJobID, &job.ProcurementLinkID, &job.URL,
		&job.State, &job.Capital, &status, &job.AgentStatus, &job.CurrentPage, &job.TotalPages,
		&job.OpportunitiesFound, &job.CurrentAction, &job.QueuedAt, &job.StartedAt,
		&job.CompletedAt, &job.DurationMs, &job.ResultRecordID, &job.ErrorMessage,
		&job.ErrorType, &job.RetryCount)
	if err != nil {
		return nil, err
	}
	job.Status = models.Status(status)
	return &job, nil
}

func (r *Repository) CreateScrapingJob(ctx context.Context, in models.NewScrapingJob) (string, error) {
	agentJobID := in.AgentJobID
	if agentJobID == "" {
		agentJobID = newAgentJobID()
	}
	var id string
	err := r.db.QueryRow(ctx, `
		INSERT INTO scraping_jobs (portal_id, agent_job_id, procurement_link_id, url, state, capital, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`,
		in.PortalID, agentJobID, in.ProcurementLinkID, in.URL, in.State, in.Capital, string(models.StatusPending)).
		Scan(&id)
	if err != nil {
		return "", fmt.Errorf("failed to create scraping job: %w", err)
	}
	return id, nil
}

func (r *Repository) GetScrapingJob(ctx context.Context, id string) (*models.ScrapingJob, error) {
	job, err := scanJob(r.db.QueryRow(ctx, "SELECT "+jobColumns+" FROM scraping_jobs WHERE id = $1", id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("job %s: %w", id, models.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get scraping job: %w", err)
	}
	return job, nil
}

// UpdateScrapingJob writes the present fields of patch in one statement.
// The WHERE clause refuses terminal rows and, when the status changes,
// any source status the transition graph does not allow.
func (r *Repository) UpdateScrapingJob(ctx context.Context, id string, patch models.JobPatch) error {
	if patch.IsEmpty() {
		return nil
	}
	sets, args := patchAssignments(patch)
	args = append(args, id)
	query := fmt.Sprintf("UPDATE scraping_jobs SET %s WHERE id = $%d", strings.Join(sets, ", "), len(args))

	guard := []string{string(models.StatusPending), string(models.StatusQueued), string(models.StatusInProgress)}
	if patch.Status != nil {
		guard = statusStrings(append(models.SourcesOf(*patch.Status), *patch.Status))
	}
	args = append(args, guard)
	query += fmt.Sprintf(" AND status = ANY($%d)", len(args))

	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update scraping job: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	current, err := r.GetScrapingJob(ctx, id)
	if err != nil {
		return err
	}
	return rejectedUpdate(id, current.Status, patch)
}

// rejectedUpdate explains why patch could not be applied to a job that is
// now in status current.
func rejectedUpdate(id string, current models.Status, patch models.JobPatch) error {
	switch {
	case current.IsTerminal():
		return fmt.Errorf("job %s is %s and can no longer change", id, current)
	case patch.Status == nil:
		// The guard only excludes terminal rows, so another writer won
		// between the update and this read.
		return fmt.Errorf("job %s changed concurrently (now %s), update not applied", id, current)
	default:
		return fmt.Errorf("job %s: illegal transition %s -> %s", id, current, *patch.Status)
	}
}

func patchAssignments(p models.JobPatch) ([]string, []any) {
	var (
		sets []string
		args []any
	)
	add := func(col string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	if p.Status != nil {
		add("status", string(*p.Status))
	}
	if p.AgentStatus != nil {
		add("agent_status", *p.AgentStatus)
	}
	if p.CurrentPage != nil {
		add("current_page", *p.CurrentPage)
	}
	if p.TotalPages != nil {
		add("total_pages", *p.TotalPages)
	}
	if p.OpportunitiesFound != nil {
		add("opportunities_found", *p.OpportunitiesFound)
	}
	if p.CurrentAction != nil {
		add("current_action", *p.CurrentAction)
	}
	if p.StartedAt != nil {
		add("started_at", *p.StartedAt)
	}
	if p.CompletedAt != nil {
		add("completed_at", *p.CompletedAt)
	}
	if p.DurationMs != nil {
		add("duration_ms", *p.DurationMs)
	}
	if p.ResultRecordID != nil {
		add("result_record_id", *p.ResultRecordID)
	}
	if p.ErrorMessage != nil {
		add("error_message", *p.ErrorMessage)
	}
	if p.ErrorType != nil {
		add("error_type", *p.ErrorType)
	}
	if p.RetryCount != nil {
		add("retry_count", *p.RetryCount)
	}
	return sets, args
}

func statusStrings(in []models.Status) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = string(s)
	}
	return out
}

// ClaimScrapingJob is a compare-and-set from pending to queued. Exactly one
// concurrent caller wins.
func (r *Repository) ClaimScrapingJob(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx,
		"UPDATE scraping_jobs SET status = $1 WHERE id = $2 AND status = $3",
		string(models.StatusQueued), id, string(models.StatusPending))
	if err != nil {
		return fmt.Errorf("failed to claim scraping job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.GetScrapingJob(ctx, id); err != nil {
			return err
		}
		return fmt.Errorf("job %s: %w", id, models.ErrAlreadyClaimed)
	}
	return nil
}

func (r *Repository) ListScrapingJobs(ctx context.Context, status models.Status, limit int) ([]models.ScrapingJob, error) {
	if limit <= 0 {
		limit = 100
	}
	query := "SELECT " + jobColumns + " FROM scraping_jobs"
	args := []any{}
	if status != "" {
		args = append(args, string(status))
		query += " WHERE status = $1"
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY queued_at ASC LIMIT $%d", len(args))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list scraping jobs: %w", err)
	}
	defer rows.Close()

	var jobs []models.ScrapingJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan scraping job: %w", err)
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

// HasActiveJob reports whether a non-terminal job exists for the link.
func (r *Repository) HasActiveJob(ctx context.Context, linkID string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM scraping_jobs
			WHERE procurement_link_id = $1 AND status IN ('pending', 'queued', 'in_progress')
		)`, linkID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check active jobs: %w", err)
	}
	return exists, nil
}

// ---------------- EXTRACTION BATCHES ----------------

func (r *Repository) SaveExtractionBatch(ctx context.Context, batch *models.ExtractionBatch) (string, error) {
	data, err := json.Marshal(batch.Opportunities)
	if err != nil {
		return "", fmt.Errorf("failed to encode opportunities: %w", err)
	}
	notes := batch.Notes
	if notes == nil {
		notes = []string{}
	}
	notesJSON, err := json.Marshal(notes)
	if err != nil {
		return "", fmt.Errorf("failed to encode notes: %w", err)
	}

	// An empty id inserts a new batch; a known one is rewritten in place, which
	// is how the agent keeps a job's working batch current.
	var id string
	err = r.db.QueryRow(ctx, `
		INSERT INTO extraction_batches (id, job_id, procurement_link_id, state, source_url, data, row_count, notes)
		VALUES (COALESCE(NULLIF($1, '')::uuid, gen_random_uuid()), $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			data = EXCLUDED.data,
			row_count = EXCLUDED.row_count,
			notes = EXCLUDED.notes
		RETURNING id`,
		batch.ID, batch.JobID, batch.ProcurementLinkID, batch.State, batch.SourceURL, string(data), batch.RowCount, string(notesJSON)).
		Scan(&id)
	if err != nil {
		return "", fmt.Errorf("failed to save extraction batch: %w", err)
	}
	return id, nil
}

func (r *Repository) GetExtractionBatch(ctx context.Context, id string) (*models.ExtractionBatch, error) {
	var (
		b           models.ExtractionBatch
		data, notes []byte
	)
	err := r.db.QueryRow(ctx, `
		SELECT id, job_id, procurement_link_id, state, source_url, data, row_count, notes, created_at
		FROM extraction_batches WHERE id = $1`, id).
		Scan(&b.ID, &b.JobID, &b.ProcurementLinkID, &b.State, &b.SourceURL, &data, &b.RowCount, &notes, &b.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("batch %s: %w", id, models.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get extraction batch: %w", err)
	}
	if err := json.Unmarshal(data, &b.Opportunities); err != nil {
		return nil, fmt.Errorf("failed to decode opportunities: %w", err)
	}
	if err := json.Unmarshal(notes, &b.Notes); err != nil {
		return nil, fmt.Errorf("failed to decode notes: %w", err)
	}
	return &b, nil
}

// ---------------- PROCUREMENT LINKS ----------------

func (r *Repository) ListApprovedLinks(ctx context.Context) ([]models.ProcurementLink, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, state, capital, official_website, procurement_link, approved, created_at
		FROM procurement_links
		WHERE approved AND procurement_link <> ''
		ORDER BY state`)
	if err != nil {
		return nil, fmt.Errorf("failed to list procurement links: %w", err)
	}
	defer rows.Close()

	var links []models.ProcurementLink
	for rows.Next() {
		var l models.ProcurementLink
		if err := rows.Scan(&l.ID, &l.State, &l.Capital, &l.OfficialWebsite, &l.ProcurementLink, &l.Approved, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan procurement link: %w", err)
		}
		links = append(links, l)
	}
	return links, rows.Err()
}
