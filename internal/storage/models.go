// Package storage provides database models and repositories for imported
// conference programs.
package storage

import (
	"time"

	"github.com/google/uuid"

	"github.com/spherical-ai/spherical/libs/program-engine/internal/program"
)

// JobStatus represents the outcome of an import job.
type JobStatus string

const (
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// ImportCounts are the write-back totals of one import.
type ImportCounts struct {
	SessionsCreated  int `json:"sessions_created"`
	SessionsExisting int `json:"sessions_existing"`
	FacultyCreated   int `json:"faculty_created"`
	FacultyUpdated   int `json:"faculty_updated"`
	TracksCreated    int `json:"tracks_created"`
	TracksUpdated    int `json:"tracks_updated"`
}

// ImportJob records one committed (or failed) program import.
type ImportJob struct {
	ID          uuid.UUID    `json:"id"`
	EventID     uuid.UUID    `json:"event_id"`
	FileName    string       `json:"file_name"`
	Operator    string       `json:"operator,omitempty"`
	Status      JobStatus    `json:"status"`
	Counts      ImportCounts `json:"counts"`
	IssuesTotal int          `json:"issues_total"`
	RowsSkipped int          `json:"rows_skipped"`
	Error       string       `json:"error,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	CompletedAt *time.Time   `json:"completed_at,omitempty"`
}

// SessionRecord is a stored session.
type SessionRecord struct {
	ID          uuid.UUID `json:"id"`
	EventID     uuid.UUID `json:"event_id"`
	ImportJobID uuid.UUID `json:"import_job_id"`
	DedupeKey   string    `json:"-"`
	program.Session
	CreatedAt time.Time `json:"created_at"`
}

// FacultyRecord is a stored faculty member.
type FacultyRecord struct {
	ID      uuid.UUID `json:"id"`
	EventID uuid.UUID `json:"event_id"`
	program.Faculty
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TrackRecord is a stored track with its chairpersons.
type TrackRecord struct {
	ID      uuid.UUID `json:"id"`
	EventID uuid.UUID `json:"event_id"`
	program.Track
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TrackChange is a track write: a new track, or an existing one with a
// description to fill and chairpersons to append.
type TrackChange struct {
	Name            string
	Description     string
	NewChairpersons []program.Person
}

// ImportPlan is everything one import writes, staged in memory and applied
// in a single transaction.
type ImportPlan struct {
	Job      *ImportJob
	Sessions []*program.Session
	Faculty  []*program.Faculty
	Tracks   []TrackChange
}

// SessionID derives the stable ID of a session within an event.
func SessionID(eventID uuid.UUID, key program.SessionKey) uuid.UUID {
	return uuid.NewSHA1(eventID, []byte("session|"+key.String()))
}

// FacultyID derives the stable ID of a faculty member within an event.
func FacultyID(eventID uuid.UUID, nameKey string) uuid.UUID {
	return uuid.NewSHA1(eventID, []byte("faculty|"+nameKey))
}

// TrackID derives the stable ID of a track within an event.
func TrackID(eventID uuid.UUID, name string) uuid.UUID {
	return uuid.NewSHA1(eventID, []byte("track|"+name))
}

// EventNamespace is the namespace for event IDs derived from names.
var EventNamespace = uuid.MustParse("6f1c3c1e-5b0a-4c8e-9a57-2f7f0d6b8e11")

// ResolveEventID accepts an event UUID or a free-form event name. Names map
// to a stable UUID so repeated imports land on the same event.
func ResolveEventID(ref string) uuid.UUID {
	if id, err := uuid.Parse(ref); err == nil {
		return id
	}
	return uuid.NewSHA1(EventNamespace, []byte(program.NormalizeName(ref)))
}
