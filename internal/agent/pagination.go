package agent

import "go-procurement-agent/internal/models"

type Decision int

const (
	// DecisionStop ends the job as completed: the portal has no more listings.
	DecisionStop Decision = iota
	// DecisionScroll scrolls and extracts again on the same page.
	DecisionScroll
	// DecisionNextPage hands control to the planner to open the next page.
	DecisionNextPage
	// DecisionBudgetStop ends the job as completed because the page budget
	// is spent.
	DecisionBudgetStop
)

func (d Decision) String() string {
	switch d {
	case DecisionStop:
		return "stop"
	case DecisionScroll:
		return "scroll"
	case DecisionNextPage:
		return "next_page"
	case DecisionBudgetStop:
		return "budget_stop"
	}
	return "unknown"
}

// Paginator decides what follows an extraction.
type Paginator struct {
	MaxPages   int
	MaxActions int
}

// Decide applies the pagination policy. Scrolling costs an action, so a page
// without action budget left moves on to the next page instead.
func (p Paginator) Decide(res *models.ExtractionResult, page, actionsOnPage int) Decision {
	if !res.HasMoreOpportunities {
		return DecisionStop
	}
	if res.NeedsScrolling && actionsOnPage < p.MaxActions {
		return DecisionScroll
	}
	if page >= p.MaxPages {
		return DecisionBudgetStop
	}
	return DecisionNextPage
}
