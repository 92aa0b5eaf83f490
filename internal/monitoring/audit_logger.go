// Package monitoring provides audit logging for program imports.
package monitoring

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/spherical-ai/spherical/libs/program-engine/internal/cache"
	"github.com/spherical-ai/spherical/libs/program-engine/internal/observability"
	"github.com/spherical-ai/spherical/libs/program-engine/internal/storage"
)

// DefaultChannel is the pub/sub channel import events are published on.
const DefaultChannel = "program.imports"

// ImportAction is what happened to a program file.
type ImportAction string

const (
	ActionImported ImportAction = "imported"
	ActionAnalyzed ImportAction = "analyzed"
	ActionFailed   ImportAction = "failed"
)

// AuditLogger records import events to the log and, when a publisher is
// configured, to a pub/sub channel for downstream notification services.
type AuditLogger struct {
	logger    *observability.Logger
	publisher cache.Publisher
	channel   string
}

// ImportEvent represents one auditable import run.
type ImportEvent struct {
	ID          uuid.UUID            `json:"id"`
	EventID     uuid.UUID            `json:"event_id"`
	JobID       uuid.UUID            `json:"job_id"`
	Action      ImportAction         `json:"action"`
	Operator    string               `json:"operator"`
	FileName    string               `json:"file_name"`
	Counts      storage.ImportCounts `json:"counts"`
	IssuesTotal int                  `json:"issues_total"`
	RowsSkipped int                  `json:"rows_skipped"`
	Error       string               `json:"error,omitempty"`
	OccurredAt  time.Time            `json:"occurred_at"`
}

// NewAuditLogger creates a new audit logger. publisher may be nil.
func NewAuditLogger(logger *observability.Logger, publisher cache.Publisher, channel string) *AuditLogger {
	if logger == nil {
		logger = observability.NopLogger()
	}
	if channel == "" {
		channel = DefaultChannel
	}
	return &AuditLogger{logger: logger, publisher: publisher, channel: channel}
}

// RecordImport logs the event and publishes it. A publish failure is logged
// and returned; the import itself has already happened.
func (a *AuditLogger) RecordImport(ctx context.Context, event ImportEvent) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	if event.Operator == "" {
		event.Operator = "system"
	}

	log := a.logger.Info()
	if event.Action == ActionFailed {
		log = a.logger.Warn().Str("error", event.Error)
	}
	log.Str("audit_id", event.ID.String()).
		Str("event_id", event.EventID.String()).
		Str("job_id", event.JobID.String()).
		Str("action", string(event.Action)).
		Str("operator", event.Operator).
		Str("file", event.FileName).
		Int("sessions_created", event.Counts.SessionsCreated).
		Int("issues", event.IssuesTotal).
		Msg("Audit event")

	if a.publisher == nil {
		return nil
	}
	if err := a.publisher.Publish(ctx, a.channel, event); err != nil {
		a.logger.Warn().Err(err).Str("channel", a.channel).Msg("Failed to publish audit event")
		return err
	}
	return nil
}
