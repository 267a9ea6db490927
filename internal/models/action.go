package models

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
)

type ActionType string

const (
	ActionClick    ActionType = "click"
	ActionScroll   ActionType = "scroll"
	ActionNavigate ActionType = "navigate"
	ActionFill     ActionType = "fill"
	ActionWait     ActionType = "wait"
	ActionExtract  ActionType = "extract"
	ActionDone     ActionType = "done"
	ActionError    ActionType = "error"
)

const (
	DefaultScrollAmount = 800
	MaxScrollAmount     = 5000
	MaxWaitMs           = 15000
)

// PlannedAction is one step proposed by the planner. Only the fields that
// belong to Type are meaningful.
type PlannedAction struct {
	Type ActionType `json:"action"`

	// click, fill
	Selector    string `json:"selector,omitempty"`
	Description string `json:"description,omitempty"`

	// scroll
	Direction string `json:"direction,omitempty"`
	Amount    int    `json:"amount,omitempty"`

	// navigate
	URL string `json:"url,omitempty"`

	// fill
	Value string `json:"value,omitempty"`

	// wait, in milliseconds
	Duration int `json:"duration,omitempty"`

	// done, error
	Reason  string `json:"reason,omitempty"`
	Message string `json:"message,omitempty"`
	Blocked bool   `json:"blocked,omitempty"`
}

// IsBrowserAction reports whether the action is executed against the page.
func (a PlannedAction) IsBrowserAction() bool {
	switch a.Type {
	case ActionClick, ActionScroll, ActionNavigate, ActionFill, ActionWait:
		return true
	}
	return false
}

// Target is the selector if present, otherwise the visual description.
func (a PlannedAction) Target() string {
	if a.Selector != "" {
		return a.Selector
	}
	return a.Description
}

// Describe renders the action as a short human readable line, stored as the
// job's currentAction.
func (a PlannedAction) Describe() string {
	switch a.Type {
	case ActionClick:
		return fmt.Sprintf("click %q", a.Target())
	case ActionFill:
		return fmt.Sprintf("fill %q", a.Target())
	case ActionScroll:
		return fmt.Sprintf("scroll %s %dpx", a.Direction, a.Amount)
	case ActionNavigate:
		return "navigate " + a.URL
	case ActionWait:
		return fmt.Sprintf("wait %dms", a.Duration)
	case ActionExtract:
		return "extract"
	case ActionDone:
		if a.Reason != "" {
			return "done: " + a.Reason
		}
		return "done"
	case ActionError:
		return "error: " + a.Message
	}
	return string(a.Type)
}

// ParsePlannedAction decodes and validates one planner reply. baseURL resolves
// relative navigate targets.
func ParsePlannedAction(raw []byte, baseURL string) (PlannedAction, error) {
	var a PlannedAction
	if err := json.Unmarshal(raw, &a); err != nil {
		return PlannedAction{}, fmt.Errorf("invalid action JSON: %w", err)
	}
	a.Type = ActionType(strings.ToLower(strings.TrimSpace(string(a.Type))))
	a.Selector = strings.TrimSpace(a.Selector)
	a.Description = strings.TrimSpace(a.Description)

	switch a.Type {
	case ActionClick:
		if a.Selector == "" && a.Description == "" {
			return PlannedAction{}, fmt.Errorf("click needs a selector or description")
		}
	case ActionFill:
		if a.Selector == "" && a.Description == "" {
			return PlannedAction{}, fmt.Errorf("fill needs a selector or description")
		}
		if a.Value == "" {
			return PlannedAction{}, fmt.Errorf("fill needs a value")
		}
	case ActionScroll:
		a.Direction = strings.ToLower(strings.TrimSpace(a.Direction))
		if a.Direction == "" {
			a.Direction = "down"
		}
		if a.Direction != "down" && a.Direction != "up" {
			return PlannedAction{}, fmt.Errorf("scroll direction must be up or down, got %q", a.Direction)
		}
		if a.Amount <= 0 {
			a.Amount = DefaultScrollAmount
		}
		if a.Amount > MaxScrollAmount {
			a.Amount = MaxScrollAmount
		}
	case ActionNavigate:
		resolved, err := resolveURL(baseURL, a.URL)
		if err != nil {
			return PlannedAction{}, err
		}
		a.URL = resolved
	case ActionWait:
		if a.Duration <= 0 {
			return PlannedAction{}, fmt.Errorf("wait needs a positive duration")
		}
		if a.Duration > MaxWaitMs {
			a.Duration = MaxWaitMs
		}
	case ActionExtract, ActionDone:
	case ActionError:
		a.Message = strings.TrimSpace(a.Message)
		if a.Message == "" {
			a.Message = strings.TrimSpace(a.Reason)
		}
		if a.Message == "" {
			return PlannedAction{}, fmt.Errorf("error action needs a message")
		}
	case "":
		return PlannedAction{}, fmt.Errorf("missing action tag")
	default:
		return PlannedAction{}, fmt.Errorf("unknown action %q", a.Type)
	}
	return a, nil
}

func resolveURL(base, target string) (string, error) {
	target = strings.TrimSpace(target)
	if target == "" {
		return "", fmt.Errorf("navigate needs a url")
	}
	ref, err := url.Parse(target)
	if err != nil {
		return "", fmt.Errorf("navigate url %q: %w", target, err)
	}
	if !ref.IsAbs() && base != "" {
		b, err := url.Parse(base)
		if err == nil {
			ref = b.ResolveReference(ref)
		}
	}
	if ref.Scheme != "http" && ref.Scheme != "https" {
		return "", fmt.Errorf("navigate url %q must be http(s)", target)
	}
	return ref.String(), nil
}
