package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/spherical-ai/spherical/libs/program-engine/internal/program"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// DB represents a database connection interface. Both *sql.DB and *sql.Tx
// satisfy it.
type DB interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// ImportJobRepository handles import job records.
type ImportJobRepository struct {
	db DB
}

// NewImportJobRepository creates a new import job repository.
func NewImportJobRepository(db DB) *ImportJobRepository {
	return &ImportJobRepository{db: db}
}

// Create inserts an import job.
func (r *ImportJobRepository) Create(ctx context.Context, job *ImportJob) error {
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO import_jobs (id, event_id, file_name, operator, status,
			sessions_created, sessions_existing, faculty_created, faculty_updated,
			tracks_created, tracks_updated, issues_total, rows_skipped, error,
			created_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`
	_, err := r.db.ExecContext(ctx, query,
		job.ID, job.EventID, job.FileName, job.Operator, string(job.Status),
		job.Counts.SessionsCreated, job.Counts.SessionsExisting,
		job.Counts.FacultyCreated, job.Counts.FacultyUpdated,
		job.Counts.TracksCreated, job.Counts.TracksUpdated,
		job.IssuesTotal, job.RowsSkipped, job.Error,
		job.CreatedAt, job.CompletedAt,
	)
	return err
}

// GetByID retrieves an import job by ID with event scoping.
func (r *ImportJobRepository) GetByID(ctx context.Context, eventID, jobID uuid.UUID) (*ImportJob, error) {
	query := `
		SELECT id, event_id, file_name, operator, status,
			sessions_created, sessions_existing, faculty_created, faculty_updated,
			tracks_created, tracks_updated, issues_total, rows_skipped, error,
			created_at, completed_at
		FROM import_jobs
		WHERE id = $1 AND event_id = $2
	`
	job := &ImportJob{}
	var (
		status      string
		completedAt sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, query, jobID, eventID).Scan(
		&job.ID, &job.EventID, &job.FileName, &job.Operator, &status,
		&job.Counts.SessionsCreated, &job.Counts.SessionsExisting,
		&job.Counts.FacultyCreated, &job.Counts.FacultyUpdated,
		&job.Counts.TracksCreated, &job.Counts.TracksUpdated,
		&job.IssuesTotal, &job.RowsSkipped, &job.Error,
		&job.CreatedAt, &completedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	job.Status = JobStatus(status)
	if completedAt.Valid {
		t := completedAt.Time
		job.CompletedAt = &t
	}
	return job, nil
}

// SessionRepository handles session CRUD operations.
type SessionRepository struct {
	db DB
}

// NewSessionRepository creates a new session repository.
func NewSessionRepository(db DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// Keys returns the dedupe keys of all stored sessions of an event.
func (r *SessionRepository) Keys(ctx context.Context, eventID uuid.UUID) (map[string]bool, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT dedupe_key FROM sessions WHERE event_id = $1`, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	keys := make(map[string]bool)
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys[k] = true
	}
	return keys, rows.Err()
}

// InsertBatch inserts sessions and their people in chunks of batchSize rows.
// Sessions whose key already exists are left untouched. progress, when set,
// is called after each chunk with the number of sessions written so far.
func (r *SessionRepository) InsertBatch(ctx context.Context, eventID, jobID uuid.UUID, sessions []*program.Session, batchSize int, progress func(done int)) error {
	if batchSize < 1 {
		batchSize = 1
	}
	now := time.Now().UTC()

	for start := 0; start < len(sessions); start += batchSize {
		end := min(start+batchSize, len(sessions))
		chunk := sessions[start:end]

		sessionRows := make([][]interface{}, 0, len(chunk))
		var peopleRows [][]interface{}
		for _, s := range chunk {
			key := s.Key()
			id := SessionID(eventID, key)
			var duration interface{}
			if s.Duration != nil {
				duration = *s.Duration
			}
			sessionRows = append(sessionRows, []interface{}{
				id, eventID, jobID, key.String(), s.Date, s.Start, s.End,
				duration, s.Topic, s.Hall, s.Track, string(s.Type), now,
			})
			for _, role := range []program.Role{program.RoleSpeaker, program.RoleChairperson, program.RoleModerator, program.RolePanelist} {
				for pos, p := range s.People(role) {
					peopleRows = append(peopleRows, []interface{}{id, string(role), pos, p.Name, p.Email, p.Phone})
				}
			}
		}

		if err := insertRows(ctx, r.db, "sessions",
			[]string{"id", "event_id", "import_job_id", "dedupe_key", "session_date", "start_time", "end_time",
				"duration_minutes", "topic", "hall", "track", "session_type", "created_at"},
			"ON CONFLICT (event_id, dedupe_key) DO NOTHING", sessionRows); err != nil {
			return fmt.Errorf("insert sessions: %w", err)
		}

		for ps := 0; ps < len(peopleRows); ps += batchSize {
			pe := min(ps+batchSize, len(peopleRows))
			if err := insertRows(ctx, r.db, "session_people",
				[]string{"session_id", "role", "position", "name", "email", "phone"},
				"ON CONFLICT (session_id, role, position) DO NOTHING", peopleRows[ps:pe]); err != nil {
				return fmt.Errorf("insert session people: %w", err)
			}
		}

		if progress != nil {
			progress(end)
		}
	}
	return nil
}

// ListByEvent lists the sessions of an event with their people, ordered by
// date, start time, hall and topic.
func (r *SessionRepository) ListByEvent(ctx context.Context, eventID uuid.UUID) ([]*SessionRecord, error) {
	query := `
		SELECT id, event_id, import_job_id, dedupe_key, session_date, start_time, end_time,
			duration_minutes, topic, hall, track, session_type, created_at
		FROM sessions
		WHERE event_id = $1
		ORDER BY session_date, start_time, hall, topic
	`
	rows, err := r.db.QueryContext(ctx, query, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []*SessionRecord
	byID := make(map[uuid.UUID]*SessionRecord)
	for rows.Next() {
		rec := &SessionRecord{}
		var (
			duration    sql.NullInt64
			sessionType string
		)
		if err := rows.Scan(
			&rec.ID, &rec.EventID, &rec.ImportJobID, &rec.DedupeKey, &rec.Date, &rec.Start, &rec.End,
			&duration, &rec.Topic, &rec.Hall, &rec.Track, &sessionType, &rec.CreatedAt,
		); err != nil {
			return nil, err
		}
		rec.Type = program.SessionType(sessionType)
		if duration.Valid {
			d := int(duration.Int64)
			rec.Duration = &d
		}
		if tr, ok := program.ParseTimeRange(rec.Start); ok {
			rec.StartMinute = tr.Start
		}
		sessions = append(sessions, rec)
		byID[rec.ID] = rec
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	peopleQuery := `
		SELECT sp.session_id, sp.role, sp.name, sp.email, sp.phone
		FROM session_people sp
		JOIN sessions s ON s.id = sp.session_id
		WHERE s.event_id = $1
		ORDER BY sp.session_id, sp.role, sp.position
	`
	prows, err := r.db.QueryContext(ctx, peopleQuery, eventID)
	if err != nil {
		return nil, err
	}
	defer prows.Close()

	for prows.Next() {
		var (
			sessionID uuid.UUID
			role      string
			p         program.Person
		)
		if err := prows.Scan(&sessionID, &role, &p.Name, &p.Email, &p.Phone); err != nil {
			return nil, err
		}
		if rec, ok := byID[sessionID]; ok {
			rec.AddPerson(program.Role(role), p)
		}
	}
	return sessions, prows.Err()
}

// FacultyRepository handles faculty CRUD operations.
type FacultyRepository struct {
	db DB
}

// NewFacultyRepository creates a new faculty repository.
func NewFacultyRepository(db DB) *FacultyRepository {
	return &FacultyRepository{db: db}
}

// ListByEvent lists the faculty of an event ordered by name key.
func (r *FacultyRepository) ListByEvent(ctx context.Context, eventID uuid.UUID) ([]*FacultyRecord, error) {
	query := `
		SELECT id, event_id, name_key, name, email, phone, role, created_at, updated_at
		FROM faculty
		WHERE event_id = $1
		ORDER BY name_key
	`
	rows, err := r.db.QueryContext(ctx, query, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var faculty []*FacultyRecord
	for rows.Next() {
		f := &FacultyRecord{}
		var role string
		if err := rows.Scan(
			&f.ID, &f.EventID, &f.Key, &f.Name, &f.Email, &f.Phone, &role,
			&f.CreatedAt, &f.UpdatedAt,
		); err != nil {
			return nil, err
		}
		f.Role = program.Role(role)
		faculty = append(faculty, f)
	}
	return faculty, rows.Err()
}

// Upsert inserts a faculty member or fills the empty contact fields of an
// existing one. Stored non-empty values are never overwritten.
func (r *FacultyRepository) Upsert(ctx context.Context, eventID uuid.UUID, f *program.Faculty) error {
	now := time.Now().UTC()
	query := `
		INSERT INTO faculty (id, event_id, name_key, name, email, phone, role, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (event_id, name_key) DO UPDATE SET
			email = CASE WHEN faculty.email = '' THEN excluded.email ELSE faculty.email END,
			phone = CASE WHEN faculty.phone = '' THEN excluded.phone ELSE faculty.phone END,
			role = CASE WHEN faculty.role = '' THEN excluded.role ELSE faculty.role END,
			updated_at = excluded.updated_at
	`
	_, err := r.db.ExecContext(ctx, query,
		FacultyID(eventID, f.Key), eventID, f.Key, f.Name, f.Email, f.Phone, string(f.Role), now, now,
	)
	return err
}

// TrackRepository handles track CRUD operations.
type TrackRepository struct {
	db DB
}

// NewTrackRepository creates a new track repository.
func NewTrackRepository(db DB) *TrackRepository {
	return &TrackRepository{db: db}
}

// ListByEvent lists the tracks of an event with their chairpersons.
func (r *TrackRepository) ListByEvent(ctx context.Context, eventID uuid.UUID) ([]*TrackRecord, error) {
	query := `
		SELECT id, event_id, name, description, created_at, updated_at
		FROM tracks
		WHERE event_id = $1
		ORDER BY name
	`
	rows, err := r.db.QueryContext(ctx, query, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tracks []*TrackRecord
	byID := make(map[uuid.UUID]*TrackRecord)
	for rows.Next() {
		t := &TrackRecord{}
		if err := rows.Scan(&t.ID, &t.EventID, &t.Name, &t.Description, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, err
		}
		tracks = append(tracks, t)
		byID[t.ID] = t
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	chairQuery := `
		SELECT tc.track_id, tc.name, tc.email, tc.phone
		FROM track_chairpersons tc
		JOIN tracks t ON t.id = tc.track_id
		WHERE t.event_id = $1
		ORDER BY tc.track_id, tc.position
	`
	crows, err := r.db.QueryContext(ctx, chairQuery, eventID)
	if err != nil {
		return nil, err
	}
	defer crows.Close()

	for crows.Next() {
		var (
			trackID uuid.UUID
			p       program.Person
		)
		if err := crows.Scan(&trackID, &p.Name, &p.Email, &p.Phone); err != nil {
			return nil, err
		}
		if t, ok := byID[trackID]; ok {
			t.Chairpersons = append(t.Chairpersons, p)
		}
	}
	return tracks, crows.Err()
}

// Apply creates the track if needed, fills an empty description and appends
// chairpersons after the existing ones.
func (r *TrackRepository) Apply(ctx context.Context, eventID uuid.UUID, change TrackChange) error {
	now := time.Now().UTC()
	id := TrackID(eventID, change.Name)

	query := `
		INSERT INTO tracks (id, event_id, name, description, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (event_id, name) DO UPDATE SET
			description = CASE WHEN tracks.description = '' THEN excluded.description ELSE tracks.description END,
			updated_at = excluded.updated_at
	`
	if _, err := r.db.ExecContext(ctx, query, id, eventID, change.Name, change.Description, now, now); err != nil {
		return fmt.Errorf("upsert track: %w", err)
	}
	if len(change.NewChairpersons) == 0 {
		return nil
	}

	var next int
	err := r.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(position) + 1, 0) FROM track_chairpersons WHERE track_id = $1`, id,
	).Scan(&next)
	if err != nil {
		return fmt.Errorf("next chairperson position: %w", err)
	}

	rows := make([][]interface{}, 0, len(change.NewChairpersons))
	for i, p := range change.NewChairpersons {
		rows = append(rows, []interface{}{id, next + i, p.Name, p.Email, p.Phone})
	}
	if err := insertRows(ctx, r.db, "track_chairpersons",
		[]string{"track_id", "position", "name", "email", "phone"}, "", rows); err != nil {
		return fmt.Errorf("insert chairpersons: %w", err)
	}
	return nil
}

// insertRows writes rows with one multi-row INSERT using $n placeholders.
func insertRows(ctx context.Context, db DB, table string, columns []string, suffix string, rows [][]interface{}) error {
	if len(rows) == 0 {
		return nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "INSERT INTO %s (%s) VALUES ", table, strings.Join(columns, ", "))
	args := make([]interface{}, 0, len(rows)*len(columns))
	n := 1
	for i, row := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteByte('(')
		for j := range row {
			if j > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "$%d", n)
			n++
		}
		b.WriteByte(')')
		args = append(args, row...)
	}
	if suffix != "" {
		b.WriteByte(' ')
		b.WriteString(suffix)
	}

	_, err := db.ExecContext(ctx, b.String(), args...)
	return err
}
