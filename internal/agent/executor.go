package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"

	"go-procurement-agent/internal/dom"
	"go-procurement-agent/internal/models"
)

// Executor turns planned actions into browser calls.
type Executor struct {
	budgets Budgets
}

func NewExecutor(b Budgets) *Executor {
	return &Executor{budgets: b.withDefaults()}
}

// Execute runs one browser action and returns the snapshot that follows it.
func (e *Executor) Execute(ctx context.Context, b Browser, a models.PlannedAction) (*models.PageSnapshot, error) {
	var err error
	switch a.Type {
	case models.ActionClick:
		err = e.interact(ctx, b, a, dom.Clickable, func(ctx context.Context, sel string) error {
			return b.Click(ctx, sel)
		})
	case models.ActionFill:
		err = e.interact(ctx, b, a, dom.Fillable, func(ctx context.Context, sel string) error {
			return b.Fill(ctx, sel, a.Value)
		})
	case models.ActionScroll:
		err = e.withRetry(ctx, "scroll", e.budgets.ActionTimeout, func(ctx context.Context) error {
			return b.Scroll(ctx, a.Direction, a.Amount)
		})
	case models.ActionNavigate:
		err = e.withRetry(ctx, "navigate "+a.URL, e.budgets.ActionTimeout, func(ctx context.Context) error {
			return b.Navigate(ctx, a.URL)
		})
	case models.ActionWait:
		d := time.Duration(a.Duration) * time.Millisecond
		err = e.withRetry(ctx, "wait", d+e.budgets.ActionTimeout, func(ctx context.Context) error {
			return b.Wait(ctx, d)
		})
	default:
		return nil, newError(KindInternal, fmt.Sprintf("%s is not a browser action", a.Type), nil)
	}
	if err != nil {
		return nil, err
	}
	return e.Snapshot(ctx, b)
}

// Navigate opens url with the transient retry policy and returns the first
// snapshot.
func (e *Executor) Navigate(ctx context.Context, b Browser, url string) (*models.PageSnapshot, error) {
	return e.Execute(ctx, b, models.PlannedAction{Type: models.ActionNavigate, URL: url})
}

// Snapshot captures the page, retrying transient capture failures.
func (e *Executor) Snapshot(ctx context.Context, b Browser) (*models.PageSnapshot, error) {
	var snap *models.PageSnapshot
	err := e.withRetry(ctx, "snapshot", e.budgets.ActionTimeout, func(ctx context.Context) error {
		s, err := b.Snapshot(ctx)
		if err != nil {
			return err
		}
		snap = s
		return nil
	})
	if err != nil {
		return nil, err
	}
	snap.HTML = dom.Truncate(snap.HTML, e.budgets.MaxHTMLChars)
	return snap, nil
}

// interact resolves the target of a click or fill and runs fn on it. An
// explicit selector is tried first; the visual description is resolved
// against the live DOM when there is no selector or the selector misses.
func (e *Executor) interact(ctx context.Context, b Browser, a models.PlannedAction, kind dom.TargetKind, fn func(context.Context, string) error) error {
	var selErr error
	if a.Selector != "" {
		selErr = e.attempt(ctx, e.budgets.ActionTimeout, func(ctx context.Context) error {
			return fn(ctx, a.Selector)
		})
		if selErr == nil || ctx.Err() != nil {
			return ctxOr(ctx, selErr)
		}
		if a.Description == "" {
			return ambiguousTarget(a.Target(), fmt.Sprintf("selector %q did not match an actionable element", a.Selector), selErr)
		}
	}

	html, err := b.Content(ctx)
	if err != nil {
		return ctxOr(ctx, transientNavigation("could not read page DOM", err))
	}
	match, ok := dom.FindTarget(html, a.Description, kind, e.budgets.MinTargetConfidence)
	if !ok {
		msg := fmt.Sprintf("no element matches %q with confidence >= %.2f", a.Description, e.budgets.MinTargetConfidence)
		if match.Name != "" {
			msg += fmt.Sprintf(" (closest %q at %.2f)", match.Name, match.Score)
		}
		return ambiguousTarget(a.Target(), msg, selErr)
	}
	zap.S().Named("executor").Debugf("resolved %q to %s (%q, %.2f)", a.Description, match.Selector, match.Name, match.Score)

	err = e.attempt(ctx, e.budgets.ActionTimeout, func(ctx context.Context) error {
		return fn(ctx, match.Selector)
	})
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return ambiguousTarget(a.Target(), fmt.Sprintf("resolved element %s could not be used", match.Selector), err)
	}
	return nil
}

// withRetry runs fn with a per-attempt timeout, retrying failures up to the
// navigation retry budget. Exhaustion is a transient navigation error, which
// the loop treats as fatal.
func (e *Executor) withRetry(ctx context.Context, what string, timeout time.Duration, fn func(context.Context) error) error {
	backoff := retry.WithMaxRetries(uint64(e.budgets.NavigationRetries), retry.NewConstant(e.budgets.RetryBackoff))
	attempts := 0
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempts++
		if err := e.attempt(ctx, timeout, fn); err != nil {
			if ctx.Err() != nil {
				return err
			}
			zap.S().Named("executor").Warnf("⚠️ %s attempt %d failed: %v", what, attempts, err)
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return transientNavigation(fmt.Sprintf("%s failed after %d attempt(s)", what, attempts), err)
	}
	return nil
}

func (e *Executor) attempt(ctx context.Context, timeout time.Duration, fn func(context.Context) error) error {
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return fn(callCtx)
}

// ctxOr prefers the context error so cancellation is never misclassified.
func ctxOr(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}
