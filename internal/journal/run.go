package journal

import (
	"time"

	"github.com/google/uuid"
)

// Run is one workflow execution as recorded in the journal.
type Run struct {
	ID         uuid.UUID  `json:"id"`
	Source     string     `json:"source"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Status     string     `json:"status"`
	Submitted  int        `json:"submitted"`
	Resolved   int        `json:"resolved"`
	Unresolved int        `json:"unresolved"`
	Malformed  int        `json:"malformed"`
	Error      string     `json:"error,omitempty"`
}

// Submission ties a protocol to the sheet row it was created for.
type Submission struct {
	RunID      uuid.UUID `json:"run_id"`
	Row        int       `json:"row"`
	ExternalID string    `json:"external_id"`
	Protocol   int64     `json:"protocol"`
	CreatedAt  time.Time `json:"created_at"`
}
