package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/spherical-ai/spherical/libs/program-engine/internal/config"
	"github.com/spherical-ai/spherical/libs/program-engine/internal/observability"
)

// Store is the program database: sessions, faculty, tracks and import jobs
// for every event.
type Store struct {
	db     *sql.DB
	driver string
	logger *observability.Logger
}

// Open connects to the configured database.
func Open(cfg config.DatabaseConfig, logger *observability.Logger) (*Store, error) {
	var (
		db  *sql.DB
		err error
	)
	switch cfg.Driver {
	case "sqlite":
		db, err = sql.Open("sqlite3", cfg.SQLite.Path+"?_foreign_keys=on&_busy_timeout=5000")
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		if cfg.SQLite.MaxOpenConns > 0 {
			db.SetMaxOpenConns(cfg.SQLite.MaxOpenConns)
		}
		if cfg.SQLite.JournalMode != "" {
			if _, err := db.Exec("PRAGMA journal_mode=" + cfg.SQLite.JournalMode); err != nil {
				db.Close()
				return nil, fmt.Errorf("set journal mode: %w", err)
			}
		}
	case "postgres":
		db, err = sql.Open("postgres", cfg.Postgres.DSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		db.SetMaxOpenConns(cfg.Postgres.MaxOpenConns)
		db.SetMaxIdleConns(cfg.Postgres.MaxIdleConns)
		db.SetConnMaxLifetime(cfg.Postgres.ConnMaxLifetime)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	return NewStore(db, cfg.Driver, logger), nil
}

// NewStore wraps an open database handle.
func NewStore(db *sql.DB, driver string, logger *observability.Logger) *Store {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Store{db: db, driver: driver, logger: logger}
}

// Migrate applies pending schema migrations.
func (s *Store) Migrate(ctx context.Context) (*MigrationStatus, error) {
	mm := NewMigrationManager(s.db, s.driver)
	status, err := mm.CheckMigrations(ctx)
	if err != nil {
		return nil, err
	}
	if status.UpToDate {
		return status, nil
	}

	s.logger.Info().Strs("pending", status.Pending).Msg("Applying migrations")
	if err := mm.RunMigrations(ctx, status); err != nil {
		return nil, err
	}
	return status, nil
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// SessionKeys returns the dedupe keys of the sessions already stored for an
// event.
func (s *Store) SessionKeys(ctx context.Context, eventID uuid.UUID) (map[string]bool, error) {
	return NewSessionRepository(s.db).Keys(ctx, eventID)
}

// ListSessions lists an event's sessions with their people.
func (s *Store) ListSessions(ctx context.Context, eventID uuid.UUID) ([]*SessionRecord, error) {
	return NewSessionRepository(s.db).ListByEvent(ctx, eventID)
}

// ListFaculty lists an event's faculty.
func (s *Store) ListFaculty(ctx context.Context, eventID uuid.UUID) ([]*FacultyRecord, error) {
	return NewFacultyRepository(s.db).ListByEvent(ctx, eventID)
}

// ListTracks lists an event's tracks.
func (s *Store) ListTracks(ctx context.Context, eventID uuid.UUID) ([]*TrackRecord, error) {
	return NewTrackRepository(s.db).ListByEvent(ctx, eventID)
}

// GetImportJob retrieves an import job of an event.
func (s *Store) GetImportJob(ctx context.Context, eventID, jobID uuid.UUID) (*ImportJob, error) {
	return NewImportJobRepository(s.db).GetByID(ctx, eventID, jobID)
}

// RecordFailedJob stores a job that failed before anything was written.
func (s *Store) RecordFailedJob(ctx context.Context, job *ImportJob) error {
	job.Status = JobStatusFailed
	now := time.Now().UTC()
	job.CompletedAt = &now
	return NewImportJobRepository(s.db).Create(ctx, job)
}

// ApplyImport writes an import plan in one transaction: the job row, then
// tracks, faculty and sessions in batches of batchSize. Nothing is written
// if any step fails.
func (s *Store) ApplyImport(ctx context.Context, plan *ImportPlan, batchSize int, progress func(done, total int)) error {
	if plan.Job == nil {
		return fmt.Errorf("import plan has no job")
	}
	start := time.Now()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	job := plan.Job
	job.Status = JobStatusCompleted
	now := time.Now().UTC()
	job.CompletedAt = &now
	if err := NewImportJobRepository(tx).Create(ctx, job); err != nil {
		return fmt.Errorf("create import job: %w", err)
	}

	tracks := NewTrackRepository(tx)
	for _, change := range plan.Tracks {
		if err := tracks.Apply(ctx, job.EventID, change); err != nil {
			return fmt.Errorf("track %q: %w", change.Name, err)
		}
	}

	faculty := NewFacultyRepository(tx)
	for _, f := range plan.Faculty {
		if err := faculty.Upsert(ctx, job.EventID, f); err != nil {
			return fmt.Errorf("faculty %q: %w", f.Name, err)
		}
	}

	total := len(plan.Sessions)
	var report func(int)
	if progress != nil {
		report = func(done int) { progress(done, total) }
	}
	if err := NewSessionRepository(tx).InsertBatch(ctx, job.EventID, job.ID, plan.Sessions, batchSize, report); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit import: %w", err)
	}

	s.logger.Info().
		Str("job_id", job.ID.String()).
		Str("event_id", job.EventID.String()).
		Int("sessions", total).
		Int("faculty", len(plan.Faculty)).
		Int("tracks", len(plan.Tracks)).
		Dur("duration", time.Since(start)).
		Msg("Import committed")
	return nil
}
