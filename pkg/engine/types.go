package engine

import (
	"encoding/json"
	"time"
)

// HealthStatus is the body of GET /health.
type HealthStatus struct {
	Status  string `json:"status"`
	Service string `json:"service"`
}

// DetectedColumn is the type the server assigned to one input column.
type DetectedColumn struct {
	Header     string   `json:"header"`
	Type       string   `json:"type"`
	Confidence int      `json:"confidence"`
	Samples    []string `json:"samples"`
	Source     string   `json:"source"`
}

// ImportCounts are the write-back totals of one import.
type ImportCounts struct {
	SessionsCreated  int `json:"sessions_created"`
	SessionsExisting int `json:"sessions_existing"`
	FacultyCreated   int `json:"faculty_created"`
	FacultyUpdated   int `json:"faculty_updated"`
	TracksCreated    int `json:"tracks_created"`
	TracksUpdated    int `json:"tracks_updated"`
}

// Issue is one scheduling problem. Data holds the kind-specific fields.
type Issue struct {
	Kind   string          `json:"kind"`
	Detail string          `json:"detail"`
	Data   json.RawMessage `json:"data"`
}

// SkipStats counts rows that did not produce a session.
type SkipStats struct {
	InvalidDate  int `json:"invalid_date"`
	InvalidTime  int `json:"invalid_time"`
	MissingTopic int `json:"missing_topic"`
	MetadataRows int `json:"metadata_rows"`
}

// DaySummary describes one program day.
type DaySummary struct {
	Date     string  `json:"date"`
	Sessions int     `json:"sessions"`
	Hours    float64 `json:"hours"`
	Halls    int     `json:"halls"`
	Speakers int     `json:"speakers"`
}

// FacultyLoad is the number of sessions one person is assigned to.
type FacultyLoad struct {
	Name     string `json:"name"`
	Sessions int    `json:"sessions"`
}

// HallLoad is the number of sessions held in one hall.
type HallLoad struct {
	Hall     string `json:"hall"`
	Sessions int    `json:"sessions"`
}

// Summary is an overview of the uploaded schedule.
type Summary struct {
	Days       []DaySummary  `json:"days"`
	TopFaculty []FacultyLoad `json:"top_faculty"`
	Halls      []HallLoad    `json:"halls"`
}

// ImportResult is the outcome of an import or dry run.
type ImportResult struct {
	JobID    string `json:"job_id"`
	EventID  string `json:"event_id"`
	FileName string `json:"file_name"`
	DryRun   bool   `json:"dry_run"`
	Cached   bool   `json:"cached"`
	Status   string `json:"status"`

	Columns   []DetectedColumn  `json:"columns"`
	ColumnMap map[string]string `json:"column_map"`

	Rows     int `json:"rows"`
	Sessions int `json:"sessions"`
	Halls    int `json:"halls"`
	Faculty  int `json:"faculty"`
	Tracks   int `json:"tracks"`

	Counts      ImportCounts     `json:"counts"`
	Issues      []Issue          `json:"issues"`
	IssuesTotal int              `json:"issues_total"`
	IssueCounts map[string]int   `json:"issue_counts"`
	Skipped     SkipStats        `json:"skipped"`
	Summary     Summary          `json:"summary"`
	Timings     map[string]int64 `json:"timings_ms"`
	StartedAt   time.Time        `json:"started_at"`
	CompletedAt time.Time        `json:"completed_at"`
}

// ImportJob is a recorded import.
type ImportJob struct {
	ID          string       `json:"id"`
	EventID     string       `json:"event_id"`
	FileName    string       `json:"file_name"`
	Operator    string       `json:"operator,omitempty"`
	Status      string       `json:"status"`
	Counts      ImportCounts `json:"counts"`
	IssuesTotal int          `json:"issues_total"`
	RowsSkipped int          `json:"rows_skipped"`
	Error       string       `json:"error,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	CompletedAt *time.Time   `json:"completed_at,omitempty"`
}

// Person is a named participant of a session.
type Person struct {
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

// Session is a stored program session.
type Session struct {
	ID              string   `json:"id"`
	ImportJobID     string   `json:"import_job_id"`
	Date            string   `json:"date"`
	Start           string   `json:"start_time"`
	End             string   `json:"end_time,omitempty"`
	DurationMinutes *int     `json:"duration_minutes"`
	Topic           string   `json:"topic"`
	Hall            string   `json:"hall,omitempty"`
	Track           string   `json:"track,omitempty"`
	Type            string   `json:"session_type"`
	Speakers        []Person `json:"speakers"`
	Chairpersons    []Person `json:"chairpersons"`
	Moderators      []Person `json:"moderators"`
	Panelists       []Person `json:"panelists"`
}
