package models

import "time"

// RunStatus captures the lifecycle of a course run.
type RunStatus string

const (
	RunStatusQueued   RunStatus = "QUEUED"
	RunStatusRunning  RunStatus = "RUNNING"
	RunStatusFinished RunStatus = "FINISHED"
	RunStatusPartial  RunStatus = "PARTIAL"
	RunStatusFailed   RunStatus = "FAILED"
)

// RunRequest describes one course run to segment. Events come from the
// listed log files, from every *.log.gz file of LogDir, or, with FromStore,
// from the clickstream collection of the document store. Posts optionally
// names the forum dump of the course.
type RunRequest struct {
	Name            string   `json:"name" yaml:"name" validate:"required,max=200"`
	CourseStructure string   `json:"course_structure" yaml:"course_structure" validate:"required"`
	Logs            []string `json:"logs,omitempty" yaml:"logs" validate:"omitempty,dive,required"`
	LogDir          string   `json:"log_dir,omitempty" yaml:"log_dir"`
	FromStore       bool     `json:"from_store,omitempty" yaml:"from_store"`
	Posts           string   `json:"posts,omitempty" yaml:"posts"`
}

// RunStats aggregates the counters produced while segmenting a run.
type RunStats struct {
	Files      int            `json:"files"`
	Events     int            `json:"events"`
	Malformed  map[string]int `json:"malformed,omitempty"`
	Unresolved int            `json:"unresolved"`
	Late       int            `json:"late"`
	Posts      int            `json:"posts"`
	Written    map[string]int `json:"written,omitempty"`
	Failed     map[string]int `json:"failed,omitempty"`
}

// Run is the bookkeeping record of a queued or processed course run.
type Run struct {
	ID         string     `json:"id"`
	Request    RunRequest `json:"request"`
	Status     RunStatus  `json:"status"`
	Stats      RunStats   `json:"stats"`
	Error      string     `json:"error,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// PipelineMetrics is the JSON snapshot of the process-wide counters.
type PipelineMetrics struct {
	RequestsTotal    uint64    `json:"requests_total"`
	CacheHitRatio    float64   `json:"cache_hit_ratio"`
	EventsDecoded    uint64    `json:"events_decoded"`
	DocumentsWritten uint64    `json:"documents_written"`
	WriteFailures    uint64    `json:"write_failures"`
	RunsFinished     uint64    `json:"runs_finished"`
	Goroutines       int       `json:"goroutines"`
	GeneratedAt      time.Time `json:"generated_at"`
}
