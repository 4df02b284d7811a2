package models

import "time"

// BatchJob is the ordered list of identities a caller accumulates before a run.
// It lives until the caller deletes it.
type BatchJob struct {
	ID        string           `json:"id"`
	Entries   []PersonIdentity `json:"entries"`
	CreatedAt time.Time        `json:"created_at"`
}

// BatchSummary counts report outcomes of one run.
type BatchSummary struct {
	Total        int `json:"total"`
	Passed       int `json:"passed"`
	Failed       int `json:"failed"`
	Inconclusive int `json:"inconclusive"`
	Errored      int `json:"errored"`
}

// BatchRunStatus tracks a run on the batch worker.
type BatchRunStatus string

const (
	BatchRunQueued    BatchRunStatus = "queued"
	BatchRunRunning   BatchRunStatus = "running"
	BatchRunCompleted BatchRunStatus = "completed"
)
