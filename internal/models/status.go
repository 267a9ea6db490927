// Package models holds the data shapes shared by the agent, the stores and
// the API.
//
// Job status graph:
//
//	pending ──► queued ──► in_progress ──► completed
//	   │           │            ├──────────► failed
//	   └───────────┴────────────┴──────────► cancelled
//
// completed, failed and cancelled are terminal.
package models

import "fmt"

// Status mirrors the scraping_job_status column in PostgreSQL.
type Status string

const (
	StatusPending    Status = "pending"
	StatusQueued     Status = "queued"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// validTransitions lists every allowed (from → to) pair.
var validTransitions = map[Status][]Status{
	StatusPending:    {StatusQueued, StatusCancelled},
	StatusQueued:     {StatusInProgress, StatusCancelled},
	StatusInProgress: {StatusCompleted, StatusFailed, StatusCancelled},
}

// ParseStatus converts a raw string to a Status, returning an error for
// unknown values.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	switch st {
	case StatusPending, StatusQueued, StatusInProgress, StatusCompleted, StatusFailed, StatusCancelled:
		return st, nil
	}
	return "", fmt.Errorf("unknown job status %q", s)
}

func (s Status) String() string { return string(s) }

// IsTerminal reports whether no transition leaves s.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// IsTransitionAllowed reports whether moving from → to is part of the graph.
func IsTransitionAllowed(from, to Status) bool {
	for _, allowed := range validTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// AllowedTransitions returns the statuses reachable from s in one step.
func AllowedTransitions(s Status) []Status {
	out := make([]Status, len(validTransitions[s]))
	copy(out, validTransitions[s])
	return out
}

// SourcesOf returns the statuses from which to can be reached in one step.
func SourcesOf(to Status) []Status {
	var out []Status
	for _, from := range []Status{StatusPending, StatusQueued, StatusInProgress} {
		if IsTransitionAllowed(from, to) {
			out = append(out, from)
		}
	}
	return out
}
