package ingest

import (
	"time"

	"github.com/google/uuid"

	"github.com/spherical-ai/spherical/libs/program-engine/internal/analysis"
	"github.com/spherical-ai/spherical/libs/program-engine/internal/classify"
	"github.com/spherical-ai/spherical/libs/program-engine/internal/program"
	"github.com/spherical-ai/spherical/libs/program-engine/internal/schedule"
	"github.com/spherical-ai/spherical/libs/program-engine/internal/storage"
)

// Result is the outcome of an import or a dry-run analysis.
type Result struct {
	JobID    uuid.UUID         `json:"job_id"`
	EventID  uuid.UUID         `json:"event_id"`
	FileName string            `json:"file_name"`
	DryRun   bool              `json:"dry_run"`
	Cached   bool              `json:"cached"`
	Status   storage.JobStatus `json:"status"`

	Columns   []classify.DetectedColumn `json:"columns"`
	ColumnMap classify.ColumnMap        `json:"column_map"`

	// Totals of the built schedule.
	Rows     int `json:"rows"`
	Sessions int `json:"sessions"`
	Halls    int `json:"halls"`
	Faculty  int `json:"faculty"`
	Tracks   int `json:"tracks"`

	// Counts is what the import wrote. Zero for dry runs.
	Counts storage.ImportCounts `json:"counts"`

	Issues      []program.IssueRecord     `json:"issues"`
	IssuesTotal int                       `json:"issues_total"`
	IssueCounts map[program.IssueKind]int `json:"issue_counts"`
	Skipped     schedule.SkipStats        `json:"skipped"`
	Summary     analysis.Summary          `json:"summary"`

	Timings     map[string]int64 `json:"timings_ms"`
	StartedAt   time.Time        `json:"started_at"`
	CompletedAt time.Time        `json:"completed_at"`
}

// Duration is the wall time of the run.
func (r *Result) Duration() time.Duration {
	return r.CompletedAt.Sub(r.StartedAt)
}

type stageTimer struct {
	timings map[string]int64
	last    time.Time
}

func newStageTimer(start time.Time) *stageTimer {
	return &stageTimer{timings: make(map[string]int64), last: start}
}

func (t *stageTimer) mark(stage string) {
	now := time.Now()
	t.timings[stage] = now.Sub(t.last).Milliseconds()
	t.last = now
}
