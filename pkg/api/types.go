package api

import "time"

// Public report types consumed by CLI/MCP layers.

type JobStatus string

const (
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
	JobCancelled JobStatus = "cancelled"
)

// JobOutcome is the terminal result recorded for a single job. Exactly one
// outcome exists per original job index in a finished batch.
type JobOutcome struct {
	Index        int       `json:"index" yaml:"index"`
	Status       JobStatus `json:"status" yaml:"status"`
	OutputPath   string    `json:"output_path,omitempty" yaml:"output_path,omitempty"`
	RemoteURL    string    `json:"remote_url,omitempty" yaml:"remote_url,omitempty"`
	RequestID    string    `json:"request_id,omitempty" yaml:"request_id,omitempty"`
	VideoSeconds float64   `json:"video_seconds,omitempty" yaml:"video_seconds,omitempty"`
	DurationMS   int64     `json:"duration_ms" yaml:"duration_ms"`
	Attempts     int       `json:"attempts" yaml:"attempts"`
	Message      string    `json:"message,omitempty" yaml:"message,omitempty"`
}

// KindEstimate is the per-kind bucket of a cost estimate.
type KindEstimate struct {
	Kind    string  `json:"kind" yaml:"kind"`
	Jobs    int     `json:"jobs" yaml:"jobs"`
	Seconds float64 `json:"seconds" yaml:"seconds"`
	CostUSD float64 `json:"cost_usd" yaml:"cost_usd"`
}

// CostEstimate is a pre-execution cost range for a batch.
type CostEstimate struct {
	TotalJobs    int            `json:"total_jobs" yaml:"total_jobs"`
	TotalSeconds float64        `json:"total_seconds" yaml:"total_seconds"`
	MinUSD       float64        `json:"min_usd" yaml:"min_usd"`
	MaxUSD       float64        `json:"max_usd" yaml:"max_usd"`
	ByKind       []KindEstimate `json:"by_kind" yaml:"by_kind"`
}

// BatchReport is the final, immutable result of a batch run. Outcomes are
// ordered by original job index.
type BatchReport struct {
	Total      int          `json:"total" yaml:"total"`
	Succeeded  int          `json:"succeeded" yaml:"succeeded"`
	Failed     int          `json:"failed" yaml:"failed"`
	Cancelled  int          `json:"cancelled" yaml:"cancelled"`
	Outcomes   []JobOutcome `json:"outcomes" yaml:"outcomes"`
	StartedAt  time.Time    `json:"started_at" yaml:"started_at"`
	FinishedAt time.Time    `json:"finished_at" yaml:"finished_at"`
	ElapsedMS  int64        `json:"elapsed_ms" yaml:"elapsed_ms"`
	Estimate   CostEstimate `json:"estimate" yaml:"estimate"`
}

// OK reports whether every job in the batch succeeded. The CLI exit code
// follows this: zero iff OK.
func (r *BatchReport) OK() bool {
	return r.Failed == 0 && r.Cancelled == 0
}
