package database

import "github.com/google/uuid"

// newAgentJobID tags a job with the id the worker reports in logs and events.
func newAgentJobID() string {
	return "agent-" + uuid.NewString()
}
