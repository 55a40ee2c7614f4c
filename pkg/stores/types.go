package stores

import (
	"fmt"
	"time"
)

// RunStatus is the terminal status of a recorded run.
type RunStatus string

const (
	// RunSucceeded means every declaration resolved.
	RunSucceeded RunStatus = "succeeded"

	// RunFailed means at least one declaration failed or was blocked.
	RunFailed RunStatus = "failed"
)

// Validate checks that the status is a known value.
func (s RunStatus) Validate() error {
	switch s {
	case RunSucceeded, RunFailed:
		return nil
	}
	return fmt.Errorf("invalid run status: %s", s)
}

// OutputRecord names one resolved output of a run. Values are deliberately
// absent; only the name and the sensitivity flag are recorded.
type OutputRecord struct {
	Name      string `json:"name"`
	Sensitive bool   `json:"sensitive"`
}

// RunRecord is one persisted evaluation run.
type RunRecord struct {
	ID          string         `json:"id"`
	Status      RunStatus      `json:"status"`
	StartedAt   time.Time      `json:"started_at"`
	CompletedAt time.Time      `json:"completed_at"`
	DurationMs  int64          `json:"duration_ms"`
	Outputs     []OutputRecord `json:"outputs,omitempty"`

	// Error is the first error message of a failed run, empty otherwise.
	Error string `json:"error,omitempty"`
}
