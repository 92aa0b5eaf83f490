package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/spherical-ai/spherical/libs/program-engine/cmd/program-engine-api/middleware"
	"github.com/spherical-ai/spherical/libs/program-engine/internal/ingest"
	"github.com/spherical-ai/spherical/libs/program-engine/internal/observability"
	"github.com/spherical-ai/spherical/libs/program-engine/internal/storage"
)

// DefaultFileName is used for raw uploads without an X-File-Name header.
const DefaultFileName = "program.csv"

// Pipeline runs program imports and dry runs.
type Pipeline interface {
	Import(ctx context.Context, req ingest.Request) (*ingest.Result, error)
	Analyze(ctx context.Context, req ingest.Request) (*ingest.Result, error)
}

// JobReader loads recorded import jobs.
type JobReader interface {
	GetImportJob(ctx context.Context, eventID, jobID uuid.UUID) (*storage.ImportJob, error)
}

// ImportHandler handles program upload requests.
type ImportHandler struct {
	logger    *observability.Logger
	pipeline  Pipeline
	jobs      JobReader
	maxUpload int64
}

// NewImportHandler creates a new import handler. maxUpload caps the request
// body in bytes.
func NewImportHandler(logger *observability.Logger, pipeline Pipeline, jobs JobReader, maxUpload int64) *ImportHandler {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &ImportHandler{
		logger:    logger,
		pipeline:  pipeline,
		jobs:      jobs,
		maxUpload: maxUpload,
	}
}

// Import handles POST /events/{eventId}/program/imports.
func (h *ImportHandler) Import(w http.ResponseWriter, r *http.Request) {
	dryRun, _ := strconv.ParseBool(r.URL.Query().Get("dryRun"))
	h.handle(w, r, dryRun)
}

// Analyze handles POST /events/{eventId}/program/analyze.
func (h *ImportHandler) Analyze(w http.ResponseWriter, r *http.Request) {
	h.handle(w, r, true)
}

func (h *ImportHandler) handle(w http.ResponseWriter, r *http.Request, dryRun bool) {
	ctx := r.Context()
	logger := h.logger.WithContext(ctx)

	eventID, err := eventIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid eventId", err.Error())
		return
	}

	fileName, content, err := h.readUpload(w, r)
	if err != nil {
		status := statusFor(err)
		if status == http.StatusInternalServerError {
			status = http.StatusBadRequest
		}
		writeError(w, status, "invalid upload", err.Error())
		return
	}

	req := ingest.Request{
		EventID:  eventID,
		FileName: fileName,
		Content:  content,
		Operator: middleware.OperatorFromContext(ctx),
	}

	logger.Info().
		Str("event_id", eventID.String()).
		Str("file", fileName).
		Int("bytes", len(content)).
		Bool("dry_run", dryRun).
		Msg("Program upload received")

	var (
		result *ingest.Result
		status = http.StatusOK
	)
	if dryRun {
		result, err = h.pipeline.Analyze(ctx, req)
	} else {
		result, err = h.pipeline.Import(ctx, req)
		status = http.StatusCreated
	}
	if err != nil {
		code := statusFor(err)
		if code == http.StatusInternalServerError {
			logger.Error().Err(err).Str("event_id", eventID.String()).Msg("Program import failed")
		}
		writeError(w, code, "import failed", err.Error())
		return
	}

	writeJSON(w, status, result)
}

// readUpload accepts a multipart form with a "file" part or a raw body named
// by X-File-Name.
func (h *ImportHandler) readUpload(w http.ResponseWriter, r *http.Request) (string, []byte, error) {
	if h.maxUpload > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	}

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			return "", nil, fmt.Errorf("parse multipart form: %w", err)
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			return "", nil, fmt.Errorf("form field \"file\": %w", err)
		}
		defer file.Close()

		content, err := io.ReadAll(file)
		if err != nil {
			return "", nil, fmt.Errorf("read upload: %w", err)
		}
		return header.Filename, content, nil
	}

	content, err := io.ReadAll(r.Body)
	if err != nil {
		return "", nil, fmt.Errorf("read body: %w", err)
	}
	if len(content) == 0 {
		return "", nil, errors.New("empty request body")
	}
	fileName := strings.TrimSpace(r.Header.Get("X-File-Name"))
	if fileName == "" {
		fileName = DefaultFileName
	}
	return fileName, content, nil
}

// GetJob handles GET /events/{eventId}/program/imports/{jobId}.
func (h *ImportHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	eventID, err := eventIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid eventId", err.Error())
		return
	}
	jobID, err := uuid.Parse(chi.URLParam(r, "jobId"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid jobId", err.Error())
		return
	}
	if h.jobs == nil {
		writeError(w, http.StatusServiceUnavailable, "no store configured", "")
		return
	}

	job, err := h.jobs.GetImportJob(r.Context(), eventID, jobID)
	if err != nil {
		code := statusFor(err)
		if code == http.StatusNotFound {
			writeError(w, code, "import job not found", jobID.String())
			return
		}
		h.logger.WithContext(r.Context()).Error().Err(err).Str("job_id", jobID.String()).Msg("Failed to load import job")
		writeError(w, code, "failed to load import job", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, job)
}
