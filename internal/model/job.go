package model

import "time"

// Monitoring job statuses.
const (
	JobPending   = "pending"
	JobRunning   = "running"
	JobCompleted = "completed"
	JobFailed    = "failed"
)

// JobTypeMonitoringCycle is the job type recorded for a batch monitoring pass.
const JobTypeMonitoringCycle = "monitoring_cycle"

// MonitoringJob is the bookkeeping row for one batch cycle. Per-document
// failures only bump ErrorsEncountered; the job itself stays on the
// pending -> running -> completed path unless the cycle aborts.
type MonitoringJob struct {
	ID                string     `json:"id"`
	JobType           string     `json:"job_type"`
	Status            string     `json:"status"`
	DocumentsChecked  int        `json:"documents_checked"`
	ChangesDetected   int        `json:"changes_detected"`
	ErrorsEncountered int        `json:"errors_encountered"`
	StartedAt         time.Time  `json:"started_at"`
	CompletedAt       *time.Time `json:"completed_at,omitempty"`
}

// MonitoringMetrics is the summary a cycle returns to its caller.
type MonitoringMetrics struct {
	JobID             string        `json:"job_id"`
	Status            string        `json:"status"`
	DocumentsChecked  int           `json:"documents_checked"`
	ChangesDetected   int           `json:"changes_detected"`
	ErrorsEncountered int           `json:"errors_encountered"`
	Duration          time.Duration `json:"duration"`
}
