package agent

import "time"

// Budgets bounds one job. Exhausting a page, action or time budget stops the
// job as completed; exhausting a retry budget fails it.
type Budgets struct {
	MaxPagesPerPortal   int
	MaxActionsPerPage   int
	MaxJobDuration      time.Duration
	ActionTimeout       time.Duration
	LLMTimeout          time.Duration
	NavigationRetries   int
	LLMRetries          int
	RetryBackoff        time.Duration
	MaxHTMLChars        int
	MaxAmbiguousRepeats int
	MinTargetConfidence float64
	MaxResumes          int
}

func DefaultBudgets() Budgets {
	return Budgets{
		MaxPagesPerPortal:   20,
		MaxActionsPerPage:   10,
		MaxJobDuration:      30 * time.Minute,
		ActionTimeout:       30 * time.Second,
		LLMTimeout:          90 * time.Second,
		NavigationRetries:   3,
		LLMRetries:          2,
		RetryBackoff:        2 * time.Second,
		MaxHTMLChars:        60000,
		MaxAmbiguousRepeats: 2,
		MinTargetConfidence: 0.5,
		MaxResumes:          2,
	}
}

// withDefaults fills zero values from DefaultBudgets.
func (b Budgets) withDefaults() Budgets {
	d := DefaultBudgets()
	if b.MaxPagesPerPortal <= 0 {
		b.MaxPagesPerPortal = d.MaxPagesPerPortal
	}
	if b.MaxActionsPerPage <= 0 {
		b.MaxActionsPerPage = d.MaxActionsPerPage
	}
	if b.ActionTimeout <= 0 {
		b.ActionTimeout = d.ActionTimeout
	}
	if b.LLMTimeout <= 0 {
		b.LLMTimeout = d.LLMTimeout
	}
	if b.NavigationRetries < 0 {
		b.NavigationRetries = 0
	}
	if b.LLMRetries < 0 {
		b.LLMRetries = 0
	}
	if b.RetryBackoff <= 0 {
		b.RetryBackoff = time.Millisecond
	}
	if b.MaxHTMLChars <= 0 {
		b.MaxHTMLChars = d.MaxHTMLChars
	}
	if b.MaxAmbiguousRepeats <= 0 {
		b.MaxAmbiguousRepeats = d.MaxAmbiguousRepeats
	}
	if b.MinTargetConfidence <= 0 {
		b.MinTargetConfidence = d.MinTargetConfidence
	}
	if b.MaxResumes < 0 {
		b.MaxResumes = 0
	}
	return b
}

// MaxRunTime bounds how long one attempt keeps a job in_progress: the time
// budget plus one planner call, one action and one extraction started just
// before it ran out.
func (b Budgets) MaxRunTime() time.Duration {
	b = b.withDefaults()
	llm := time.Duration(b.LLMRetries+1) * (b.LLMTimeout + b.RetryBackoff)
	action := time.Duration(b.NavigationRetries+1) * (b.ActionTimeout + b.RetryBackoff)
	return b.MaxJobDuration + 2*llm + action
}
