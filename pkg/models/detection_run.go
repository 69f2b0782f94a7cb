package models

import "time"

// DetectionRun statuses.
const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusAborted   = "aborted"
)

// DetectionRun records one bounded detection batch over the registry.
// Aborted runs keep their partial counts; already-stored candidates
// are never discarded.
type DetectionRun struct {
	ID         string     `json:"id" db:"id"`
	ClientType ClientType `json:"client_type" db:"client_type"`
	Status     string     `json:"status" db:"status"`
	MinScore   int        `json:"min_score" db:"min_score"`
	Processed  int        `json:"processed" db:"processed"`
	Detected   int        `json:"detected" db:"detected"`
	Skipped    int        `json:"skipped" db:"skipped"`
	StartedAt  time.Time  `json:"started_at" db:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty" db:"finished_at"`
}
