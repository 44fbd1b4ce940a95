package models

import "time"

// OutboxEntry points at a run whose execution intent has not been published yet.
type OutboxEntry struct {
	ID        string    `json:"id"`
	RunID     string    `json:"run_id"`
	CreatedAt time.Time `json:"created_at"`
}
