package agent

import (
	"context"
	"fmt"
	"strings"

	"go-procurement-agent/internal/ai"
	"go-procurement-agent/internal/dom"
	"go-procurement-agent/internal/models"
)

// ReasonActionBudget is the reason of the done action the planner emits
// itself when the page's action budget is spent.
const ReasonActionBudget = "action budget exhausted for this page"

type PlanInput struct {
	Snapshot *models.PageSnapshot
	// History holds the actions already executed on the current page.
	History       []models.PlannedAction
	Notes         []string
	ActionsOnPage int
}

// Planner asks the model for the next action.
type Planner struct {
	llm     ai.Client
	budgets Budgets
}

func NewPlanner(llm ai.Client, b Budgets) *Planner {
	return &Planner{llm: llm, budgets: b.withDefaults()}
}

// Plan returns the next action for the page. Once the page's action budget
// is spent it returns done without calling the model. A reply that is not a
// valid action is retried once with a correction note, then reported as a
// schema validation error.
func (p *Planner) Plan(ctx context.Context, in PlanInput) (models.PlannedAction, error) {
	if in.ActionsOnPage >= p.budgets.MaxActionsPerPage {
		return models.PlannedAction{Type: models.ActionDone, Reason: ReasonActionBudget}, nil
	}

	req := ai.Request{
		System:     ai.PlannerSystemPrompt,
		URL:        in.Snapshot.URL,
		HTML:       dom.Truncate(in.Snapshot.HTML, p.budgets.MaxHTMLChars),
		Screenshot: in.Snapshot.Screenshot,
		Notes:      plannerNotes(in, p.budgets.MaxActionsPerPage),
	}

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		if lastErr != nil {
			req.Notes = append(req.Notes, fmt.Sprintf(
				"Your previous reply could not be used (%v). Reply with exactly one JSON action object.", lastErr))
		}
		reply, err := complete(ctx, p.llm, req, p.budgets)
		if err != nil {
			return models.PlannedAction{}, err
		}
		action, err := models.ParsePlannedAction([]byte(reply), in.Snapshot.URL)
		if err == nil {
			return action, nil
		}
		lastErr = err
	}
	return models.PlannedAction{}, schemaValidation("planner reply is not a valid action", lastErr)
}

func plannerNotes(in PlanInput, maxActions int) []string {
	notes := append([]string(nil), in.Notes...)
	if len(in.History) > 0 {
		steps := make([]string, len(in.History))
		for i, a := range in.History {
			steps[i] = fmt.Sprintf("%d. %s", i+1, a.Describe())
		}
		notes = append(notes, "Actions already taken on this page: "+strings.Join(steps, "; "))
	}
	notes = append(notes, fmt.Sprintf("You have %d action(s) left on this page.", maxActions-in.ActionsOnPage))
	return notes
}

// blockedPhrases back up the model's blocked flag. They name a wall, not a
// word that also shows up on ordinary listing pages ("login", "verification").
var blockedPhrases = []string{
	"captcha", "cloudflare", "datadome", "bot check", "verify you are human",
	"verify that you are human", "are you a robot", "not a robot",
	"access denied", "sign in to", "sign-in required", "log in to",
	"login required", "requires login", "must log in", "must sign in",
	"authentication required", "enter your password",
}

// IsBlockedSignal reports whether an error action describes a CAPTCHA or
// login wall. The blocked flag decides; the message is only scanned for
// phrases when the flag is missing.
func IsBlockedSignal(a models.PlannedAction) bool {
	if a.Blocked {
		return true
	}
	msg := strings.ToLower(a.Message + " " + a.Reason)
	for _, kw := range blockedPhrases {
		if strings.Contains(msg, kw) {
			return true
		}
	}
	return false
}
