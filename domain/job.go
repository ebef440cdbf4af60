package domain

import "time"

// Pipeline job names as they appear in the status feed and metrics.
const (
	JobPerformance = "performance"
	JobProfiles    = "profiles"
	JobSimilarity  = "similarity"
)

// Job run statuses.
const (
	JobStatusSuccess = "success"
	JobStatusPartial = "partial"
	JobStatusFailed  = "failed"
)

// JobStatus is one entry of the per-shop, per-job status feed read by
// the merchant dashboard.
type JobStatus struct {
	Shop       string    `json:"shop"`
	Job        string    `json:"job"`
	Status     string    `json:"status"`
	ErrorCount int       `json:"error_count"`
	Message    string    `json:"message,omitempty"`
	RunID      string    `json:"run_id"`
	RanAt      time.Time `json:"ran_at"`
}
