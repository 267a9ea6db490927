// Package agent runs the scraping control loop for one job: plan an action,
// execute it, observe the page, extract, and decide whether to continue.
package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"go-procurement-agent/internal/ai"
	"go-procurement-agent/internal/dedup"
	"go-procurement-agent/internal/models"
)

// Deps are the collaborators of the loop. Canceller, Events, Notifier and
// Recorder are optional.
type Deps struct {
	Store     JobStore
	Sessions  SessionOpener
	LLM       ai.Client
	Canceller Canceller
	Events    EventPublisher
	Notifier  Notifier
	Recorder  ArtifactRecorder
	Now       func() time.Time
}

type Agent struct {
	deps      Deps
	budgets   Budgets
	planner   *Planner
	executor  *Executor
	extractor *Extractor
	paginator Paginator
}

func New(deps Deps, budgets Budgets) *Agent {
	b := budgets.withDefaults()
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Agent{
		deps:      deps,
		budgets:   b,
		planner:   NewPlanner(deps.LLM, b),
		executor:  NewExecutor(b),
		extractor: NewExtractor(deps.LLM, b),
		paginator: Paginator{MaxPages: b.MaxPagesPerPortal, MaxActions: b.MaxActionsPerPage},
	}
}

// Run drives job jobID from its current status to a terminal one. It
// returns nil when the job completed or was cancelled, the classified
// *Error when it failed, and a plain error when the job could not be
// loaded or claimed. When ctx ends without ErrJobCancelled as its cause the
// job is left as it is for a later resume and the error wraps
// ErrInterrupted.
func (a *Agent) Run(ctx context.Context, jobID string) error {
	job, err := a.deps.Store.GetScrapingJob(ctx, jobID)
	if err != nil {
		return fmt.Errorf("load job %s: %w", jobID, err)
	}
	if job.Status.IsTerminal() {
		return fmt.Errorf("job %s is already %s", jobID, job.Status)
	}

	r := &jobRun{
		Agent:     a,
		lc:        NewLifecycle(a.deps.Store, a.deps.Events, a.deps.Now, job),
		log:       zap.S().Named("agent").With("job_id", jobID),
		merger:    dedup.NewMerger(),
		page:      max(job.CurrentPage, 1),
		ambiguous: map[string]int{},
	}

	if stop, err := r.stopRequested(ctx); stop {
		return err
	}

	switch job.Status {
	case models.StatusPending:
		if err := r.lc.Claim(ctx); err != nil {
			return err
		}
		if err := r.lc.Start(ctx); err != nil {
			return err
		}
	case models.StatusQueued:
		if err := r.lc.Start(ctx); err != nil {
			return err
		}
	case models.StatusInProgress:
		if err := r.lc.Resume(ctx, a.budgets.MaxResumes); err != nil {
			var e *Error
			if errors.As(err, &e) && e.Kind == KindRetriesExhausted {
				return r.finishFailed(ctx, e)
			}
			return err
		}
		r.resumed = true
		r.restoreBatch(ctx, job.ResultRecordID)
	}

	r.started = true
	r.startedAt = a.deps.Now()
	return r.execute(ctx)
}

// jobRun is the per-job loop state. It is used by one goroutine only.
type jobRun struct {
	*Agent
	lc  *Lifecycle
	log *zap.SugaredLogger

	browser Browser
	snap    *models.PageSnapshot
	merger  *dedup.Merger

	page              int
	actionsOnPage     int
	extractedThisPage bool
	extractedURL      string
	lastResult        *models.ExtractionResult
	pendingExtract    bool
	afterNavigation   bool
	seeking           bool
	history           []models.PlannedAction
	notes             []string
	ambiguous         map[string]int
	batchID           string
	batchNotes        []string
	lastAction        string
	resumed           bool
	started           bool
	startedAt         time.Time
}

// restoreBatch seeds the merger with what an earlier attempt already saved,
// so a resumed job keeps its opportunities.
func (r *jobRun) restoreBatch(ctx context.Context, id string) {
	if id == "" {
		return
	}
	batch, err := r.deps.Store.GetExtractionBatch(ctx, id)
	if err != nil {
		r.log.Warnf("⚠️ Could not load batch %s of the previous attempt: %v", id, err)
		return
	}
	r.batchID = batch.ID
	r.merger.Add(batch.Opportunities)
	r.batchNotes = append(r.batchNotes, batch.Notes...)
	r.log.Infof("♻️ Restored %d opportunities from batch %s", r.merger.Len(), batch.ID)
}

func (r *jobRun) execute(ctx context.Context) error {
	job := r.lc.Job()
	r.log.Infof("🚀 Opening session for %s", job.URL)

	b, err := r.deps.Sessions.Open(ctx, job)
	if err != nil {
		if ctx.Err() != nil {
			_, serr := r.stopRequested(ctx)
			return serr
		}
		return r.finishFailed(ctx, newError(KindSession, "could not open browser session", err))
	}
	r.browser = b
	defer func() {
		if err := b.Close(); err != nil {
			r.log.Warnf("⚠️ Failed to close browser session: %v", err)
		}
	}()

	r.snap, err = r.executor.Navigate(ctx, b, job.URL)
	if err != nil {
		return r.stopOnError(ctx, err)
	}
	r.lastAction = "navigate " + job.URL
	if r.resumed && r.page > 1 {
		// Clicks on the way back to the stopped page are not new pages.
		r.seeking = true
		r.notes = append(r.notes, fmt.Sprintf(
			"A previous attempt stopped on results page %d. Navigate to page %d of the listings before extracting.", r.page, r.page))
	}
	if err := r.checkpoint(ctx, "navigating"); err != nil {
		return err
	}

	return r.loop(ctx)
}

func (r *jobRun) loop(ctx context.Context) error {
	for {
		if stop, err := r.stopRequested(ctx); stop {
			return err
		}
		if r.budgets.MaxJobDuration > 0 && r.deps.Now().Sub(r.startedAt) >= r.budgets.MaxJobDuration {
			return r.finishBudget(ctx, budgetExceeded(fmt.Sprintf("time budget of %s reached on page %d", r.budgets.MaxJobDuration, r.page)))
		}
		if r.snap.Verification != "" {
			r.record("blocked", r.snap.Verification)
			return r.finishFailed(ctx, blocked(fmt.Sprintf("%s detected on %s", r.snap.Verification, r.snap.URL)))
		}

		if r.pendingExtract {
			r.pendingExtract = false
			if done, err := r.extractAndPaginate(ctx, r.afterNavigation); done {
				return err
			}
			continue
		}

		action, err := r.planner.Plan(ctx, PlanInput{
			Snapshot:      r.snap,
			History:       r.history,
			Notes:         r.notes,
			ActionsOnPage: r.actionsOnPage,
		})
		if err != nil {
			if IsKind(err, KindSchemaValidation) {
				r.record("planner-schema", err.Error())
			}
			return r.stopOnError(ctx, err)
		}
		r.notes = nil
		r.log.Infof("🧭 Page %d action %d: %s", r.page, r.actionsOnPage+1, action.Describe())

		switch action.Type {
		case models.ActionDone:
			if action.Reason != ReasonActionBudget {
				r.lastAction = action.Describe()
				return r.finishCompleted(ctx, "")
			}
			// Out of actions on this page: extract what is there and let
			// the pagination policy decide whether the job goes on.
			res := r.lastResult
			if !r.extractedThisPage || res == nil {
				if res, err = r.extract(ctx); err != nil {
					return r.stopOnError(ctx, err)
				}
			}
			r.lastAction = action.Describe()
			if done, err := r.paginate(ctx, res, false); done {
				return err
			}

		case models.ActionError:
			if IsBlockedSignal(action) {
				r.record("blocked", action.Message)
				return r.finishFailed(ctx, blocked(action.Message))
			}
			return r.finishFailed(ctx, newError(KindUnrecoverable, action.Message, nil))

		case models.ActionExtract:
			if done, err := r.extractAndPaginate(ctx, false); done {
				return err
			}

		default:
			// Listings on a page the planner is about to leave are taken
			// first.
			if !r.seeking && leavesPage(action) && !r.extractedThisPage && r.snap.URL != r.extractedURL {
				if _, err := r.extract(ctx); err != nil {
					return r.stopOnError(ctx, err)
				}
			}
			if done, err := r.act(ctx, action); done {
				return err
			}
		}
	}
}

func leavesPage(a models.PlannedAction) bool {
	return a.Type == models.ActionClick || a.Type == models.ActionNavigate
}

// act executes one browser action. A click or navigate that lands on a new
// URL queues an extraction of that page. It reports done when the job
// reached a terminal state.
func (r *jobRun) act(ctx context.Context, action models.PlannedAction) (bool, error) {
	prevURL := r.snap.URL
	snap, err := r.executor.Execute(ctx, r.browser, action)
	r.actionsOnPage++
	r.history = append(r.history, action)
	if err != nil {
		if ctx.Err() != nil {
			_, serr := r.stopRequested(ctx)
			return true, serr
		}
		e := AsError(err)
		if e.Kind != KindAmbiguousTarget {
			return true, r.stopOnError(ctx, e)
		}
		key := strings.ToLower(strings.TrimSpace(e.Target))
		r.ambiguous[key]++
		if r.ambiguous[key] >= r.budgets.MaxAmbiguousRepeats {
			e.Message = fmt.Sprintf("target %q could not be resolved after %d attempts: %s", e.Target, r.ambiguous[key], e.Message)
			return true, r.finishFailed(ctx, e)
		}
		r.notes = append(r.notes, fmt.Sprintf("Your last action (%s) failed: %s. Choose a different selector or description.", action.Describe(), e.Message))
		r.log.Warnf("🎯 %v", e)
		return false, nil
	}

	r.snap = snap
	r.lastAction = action.Describe()
	if !r.seeking && leavesPage(action) && snap.URL != prevURL {
		if r.extractedThisPage {
			// The planner moved on from a page whose listings were taken
			// without asking for the next one.
			if r.page >= r.budgets.MaxPagesPerPortal {
				return true, r.finishBudget(ctx, pageBudgetReached(r.budgets.MaxPagesPerPortal))
			}
			r.nextPage()
		}
		r.pendingExtract = true
		r.afterNavigation = true
	}
	if err := r.checkpoint(ctx, "acting"); err != nil {
		return true, err
	}
	return false, nil
}

func pageBudgetReached(limit int) *Error {
	return budgetExceeded(fmt.Sprintf("page budget of %d reached; more listings remain", limit))
}

// extractAndPaginate runs one extraction and applies the pagination
// decision. It reports done when the job reached a terminal state.
func (r *jobRun) extractAndPaginate(ctx context.Context, afterNavigation bool) (bool, error) {
	res, err := r.extract(ctx)
	if err != nil {
		return true, r.stopOnError(ctx, err)
	}
	return r.paginate(ctx, res, afterNavigation)
}

// paginate applies the pagination policy to res. An empty page reached by a
// click is not taken as the end of the listings: it is often a landing or
// search page on the way to them, so the planner gets another turn.
func (r *jobRun) paginate(ctx context.Context, res *models.ExtractionResult, afterNavigation bool) (bool, error) {
	decision := r.paginator.Decide(res, r.page, r.actionsOnPage)
	r.log.Infof("📄 Page %d: %d extracted, %d unique so far, decision %s", r.page, len(res.Opportunities), r.merger.Len(), decision)

	switch decision {
	case DecisionStop:
		if afterNavigation && len(res.Opportunities) == 0 && r.actionsOnPage < r.budgets.MaxActionsPerPage {
			r.notes = append(r.notes, "No listings were found on this page. Navigate to the list of open bids, or answer done if the portal has none.")
			return false, nil
		}
		return true, r.finishCompleted(ctx, "")

	case DecisionBudgetStop:
		return true, r.finishBudget(ctx, pageBudgetReached(r.budgets.MaxPagesPerPortal))

	case DecisionScroll:
		scroll := models.PlannedAction{Type: models.ActionScroll, Direction: "down", Amount: models.DefaultScrollAmount}
		done, err := r.act(ctx, scroll)
		if done {
			return true, err
		}
		r.pendingExtract = true
		r.afterNavigation = false
		return false, nil

	default:
		r.nextPage()
		r.notes = append(r.notes, fmt.Sprintf(
			"Listings on the previous page were extracted. Open results page %d by clicking the pagination control (\"Next\", \">\", \"»\" or the number %d), then extract.", r.page, r.page))
		r.lastAction = fmt.Sprintf("paginating to page %d", r.page)
		if err := r.checkpoint(ctx, "paginating"); err != nil {
			return true, err
		}
		return false, nil
	}
}

// nextPage resets the per-page state for the following results page.
func (r *jobRun) nextPage() {
	r.page++
	r.actionsOnPage = 0
	r.extractedThisPage = false
	r.lastResult = nil
	r.history = nil
	r.ambiguous = map[string]int{}
}

func (r *jobRun) extract(ctx context.Context) (*models.ExtractionResult, error) {
	res, err := r.extractor.Extract(ctx, r.snap)
	if err != nil {
		if IsKind(err, KindSchemaValidation) {
			r.record("extraction-schema", err.Error())
		}
		return nil, err
	}
	added := r.merger.Add(res.Opportunities)
	r.seeking = false
	r.extractedURL = r.snap.URL
	r.lastResult = res
	if len(res.Opportunities) > 0 {
		r.extractedThisPage = true
	}
	if res.ExtractionNotes != "" {
		r.batchNotes = append(r.batchNotes, fmt.Sprintf("page %d: %s", r.page, res.ExtractionNotes))
	}
	if added > 0 {
		// Keep the working batch current so a resume after a crash starts
		// from what was already found.
		if _, err := r.saveBatch(ctx, false); err != nil {
			r.log.Warnf("⚠️ Could not save working batch: %v", err)
		}
	}
	r.lastAction = fmt.Sprintf("extracted %d opportunities (%d new) on page %d", len(res.Opportunities), added, r.page)
	if err := r.checkpoint(ctx, "extracting"); err != nil {
		return nil, err
	}
	return res, nil
}

func (r *jobRun) checkpoint(ctx context.Context, status string) error {
	return r.lc.Checkpoint(ctx, r.progress(status, nil))
}

func (r *jobRun) progress(status string, total *int) Progress {
	return Progress{
		Page:          r.page,
		TotalPages:    total,
		Opportunities: r.merger.Len(),
		CurrentAction: r.lastAction,
		AgentStatus:   status,
		ResultID:      r.batchID,
	}
}

// stopRequested checks both stop signals. A cancellation request ends the
// job as cancelled; a context that ended for any other reason is a worker
// shutdown and leaves the job to be resumed. It reports whether the caller
// must return, and with which error.
func (r *jobRun) stopRequested(ctx context.Context) (bool, error) {
	if ctx.Err() != nil {
		if errors.Is(context.Cause(ctx), ErrJobCancelled) {
			return true, r.finishCancelled(ctx)
		}
		return true, r.interrupt(ctx)
	}
	if r.isCancelled(ctx) {
		return true, r.finishCancelled(ctx)
	}
	return false, nil
}

func (r *jobRun) isCancelled(ctx context.Context) bool {
	if r.deps.Canceller == nil {
		return false
	}
	cancelled, err := r.deps.Canceller.IsCancelled(ctx, r.lc.Job().ID)
	if err != nil {
		r.log.Warnf("⚠️ Cancellation check failed: %v", err)
		return false
	}
	return cancelled
}

// stopOnError routes an error raised inside the loop to the right terminal
// state.
func (r *jobRun) stopOnError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		_, serr := r.stopRequested(ctx)
		return serr
	}
	if errors.Is(err, ErrJobCancelled) {
		return r.finishCancelled(ctx)
	}
	e := AsError(err)
	if !e.IsFailure() {
		return r.finishBudget(ctx, e)
	}
	return r.finishFailed(ctx, e)
}

func (r *jobRun) finishCompleted(ctx context.Context, note string) error {
	pctx := context.WithoutCancel(ctx)
	if note != "" {
		r.lastAction = note
		r.batchNotes = append(r.batchNotes, note)
	}
	resultID, err := r.saveBatch(pctx, true)
	if err != nil {
		return r.finishFailed(ctx, newError(KindInternal, "could not save extraction batch", err))
	}
	total := r.page
	if err := r.lc.Complete(pctx, r.progress("completed", &total), resultID); err != nil {
		return err
	}
	r.log.Infof("✅ Completed: %d opportunities over %d page(s)", r.merger.Len(), total)
	r.notify(pctx)
	return nil
}

func (r *jobRun) finishBudget(ctx context.Context, e *Error) error {
	r.log.Infof("⏱️ %s", e.Message)
	return r.finishCompleted(ctx, "budget exceeded: "+e.Message)
}

func (r *jobRun) finishFailed(ctx context.Context, e *Error) error {
	pctx := context.WithoutCancel(ctx)
	resultID, err := r.saveBatch(pctx, false)
	if err != nil {
		r.log.Warnf("⚠️ Could not save partial batch: %v", err)
	}
	if err := r.lc.Fail(pctx, r.progress("failed", nil), e, resultID); err != nil {
		return err
	}
	r.log.Errorf("❌ Failed (%s): %s", e.Kind, e.Message)
	r.notify(pctx)
	return e
}

func (r *jobRun) finishCancelled(ctx context.Context) error {
	pctx := context.WithoutCancel(ctx)
	resultID, err := r.saveBatch(pctx, false)
	if err != nil {
		r.log.Warnf("⚠️ Could not save partial batch: %v", err)
	}
	if err := r.lc.Cancel(pctx, r.progress("cancelled", nil), resultID); err != nil {
		return err
	}
	if r.deps.Canceller != nil {
		if err := r.deps.Canceller.ClearCancel(pctx, r.lc.Job().ID); err != nil {
			r.log.Warnf("⚠️ Could not clear cancel flag: %v", err)
		}
	}
	r.log.Infof("🛑 Cancelled on page %d", r.page)
	r.notify(pctx)
	return nil
}

// interrupt stops without a terminal write. Progress and the working batch
// are saved so the stale-job sweep can resume from them.
func (r *jobRun) interrupt(ctx context.Context) error {
	pctx := context.WithoutCancel(ctx)
	job := r.lc.Job()
	if r.started {
		if _, err := r.saveBatch(pctx, false); err != nil {
			r.log.Warnf("⚠️ Could not save working batch: %v", err)
		}
		if err := r.lc.Checkpoint(pctx, r.progress("interrupted", nil)); err != nil {
			r.log.Warnf("⚠️ Could not save progress: %v", err)
		}
	}
	r.log.Infof("⏸️ Interrupted on page %d, job stays %s", r.page, job.Status)
	return fmt.Errorf("job %s: %w", job.ID, ErrInterrupted)
}

// saveBatch writes the merged opportunities to the job's single batch,
// creating it on first use. An empty result is only written when always is
// set, which completion does.
func (r *jobRun) saveBatch(ctx context.Context, always bool) (string, error) {
	opps := r.merger.Opportunities()
	if !always && len(opps) == 0 && r.batchID == "" {
		return "", nil
	}
	job := r.lc.Job()
	id, err := r.deps.Store.SaveExtractionBatch(ctx, &models.ExtractionBatch{
		ID:                r.batchID,
		JobID:             job.ID,
		ProcurementLinkID: job.ProcurementLinkID,
		State:             job.State,
		SourceURL:         job.URL,
		Opportunities:     opps,
		RowCount:          len(opps),
		Notes:             r.batchNotes,
		CreatedAt:         r.deps.Now(),
	})
	if err != nil {
		return "", err
	}
	r.batchID = id
	return id, nil
}

func (r *jobRun) notify(ctx context.Context) {
	if r.deps.Notifier == nil {
		return
	}
	if err := r.deps.Notifier.JobFinished(ctx, r.lc.Job()); err != nil {
		r.log.Warnf("⚠️ Notification failed: %v", err)
	}
}

func (r *jobRun) record(name, reason string) {
	if r.deps.Recorder == nil || r.snap == nil {
		return
	}
	r.deps.Recorder.Record(r.lc.Job().ID+"-"+name, reason, r.snap)
}
