package model

import "time"

// Job statuses, in the order a successful run moves through them
const (
	StatusPending     = "pending"
	StatusFetching    = "fetching"
	StatusReshaping   = "reshaping"
	StatusAggregating = "aggregating"
	StatusDeriving    = "deriving"
	StatusForecasting = "forecasting"
	StatusRendering   = "rendering"
	StatusExporting   = "exporting"
	StatusCompleted   = "completed"
	StatusFailed      = "failed"
)

// Job is a persisted pipeline run
type Job struct {
	ID        string          `json:"id"`
	Spec      PipelineJobSpec `json:"spec"`
	Status    string          `json:"status"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// JobError is an error recorded against a run
type JobError struct {
	ID        int64     `json:"id"`
	JobID     string    `json:"job_id"`
	Message   string    `json:"error_message"`
	CreatedAt time.Time `json:"created_at"`
}

// StageProgress tracks one pipeline stage of a run
type StageProgress struct {
	JobID     string     `json:"job_id"`
	Stage     string     `json:"stage"`
	Status    string     `json:"status"` // "started", "completed", "failed"
	StartedAt *time.Time `json:"started_at,omitempty"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	Records   int        `json:"records_processed"`
	Errors    int        `json:"error_count"`
}

// Duration returns the stage duration, or zero while it is running.
func (s StageProgress) Duration() time.Duration {
	if s.StartedAt == nil || s.EndedAt == nil {
		return 0
	}
	return s.EndedAt.Sub(*s.StartedAt)
}

// PipelineLog is a log line persisted for a run
type PipelineLog struct {
	ID        int64                  `json:"id"`
	JobID     string                 `json:"job_id"`
	Stage     string                 `json:"stage"`
	Level     string                 `json:"level"` // info, warning, error
	Message   string                 `json:"message"`
	Details   map[string]interface{} `json:"details,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
}

// OutputFile is a file produced by a run
type OutputFile struct {
	ID          int64     `json:"id"`
	JobID       string    `json:"job_id"`
	FileName    string    `json:"file_name"`
	FilePath    string    `json:"file_path"`
	FileType    string    `json:"file_type"`
	FileSize    int64     `json:"file_size"`
	DownloadURL string    `json:"download_url"`
	CreatedAt   time.Time `json:"created_at"`
}
