// Package ingest provides the program import pipeline: parse, classify,
// build, analyze and commit.
package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/spherical-ai/spherical/libs/program-engine/internal/analysis"
	"github.com/spherical-ai/spherical/libs/program-engine/internal/cache"
	"github.com/spherical-ai/spherical/libs/program-engine/internal/classify"
	"github.com/spherical-ai/spherical/libs/program-engine/internal/config"
	"github.com/spherical-ai/spherical/libs/program-engine/internal/monitoring"
	"github.com/spherical-ai/spherical/libs/program-engine/internal/observability"
	"github.com/spherical-ai/spherical/libs/program-engine/internal/program"
	"github.com/spherical-ai/spherical/libs/program-engine/internal/schedule"
	"github.com/spherical-ai/spherical/libs/program-engine/internal/storage"
	"github.com/spherical-ai/spherical/libs/program-engine/internal/tabular"
)

var (
	// ErrNoSchedulableColumns indicates the date, time or topic column could
	// not be detected.
	ErrNoSchedulableColumns = errors.New("no schedulable columns")
	// ErrImportInProgress indicates another import holds the event's lock.
	ErrImportInProgress = errors.New("import already in progress for event")
	// ErrNoStore indicates an import was requested on a pipeline without a store.
	ErrNoStore = errors.New("pipeline has no store")
)

// Store is the persistence the pipeline needs.
type Store interface {
	SessionKeys(ctx context.Context, eventID uuid.UUID) (map[string]bool, error)
	ListFaculty(ctx context.Context, eventID uuid.UUID) ([]*storage.FacultyRecord, error)
	ListTracks(ctx context.Context, eventID uuid.UUID) ([]*storage.TrackRecord, error)
	ApplyImport(ctx context.Context, plan *storage.ImportPlan, batchSize int, progress func(done, total int)) error
	RecordFailedJob(ctx context.Context, job *storage.ImportJob) error
}

// Options holds pipeline configuration.
type Options struct {
	BatchSize          int
	IssueLimit         int
	LockTTL            time.Duration
	CacheResults       bool
	CacheTTL           time.Duration
	Classifier         classify.Options
	LongSessionMinutes int
	Thresholds         analysis.Thresholds
	TopFaculty         int
}

// DefaultOptions returns the stock pipeline options.
func DefaultOptions() Options {
	return Options{
		BatchSize:          100,
		IssueLimit:         50,
		LockTTL:            5 * time.Minute,
		CacheResults:       true,
		CacheTTL:           15 * time.Minute,
		Classifier:         classify.DefaultOptions(),
		LongSessionMinutes: schedule.DefaultLongSessionMinutes,
		Thresholds:         analysis.DefaultThresholds(),
		TopFaculty:         analysis.DefaultTopFaculty,
	}
}

// OptionsFromConfig maps application configuration onto pipeline options.
func OptionsFromConfig(cfg *config.Config) Options {
	c := cfg.Classifier
	return Options{
		BatchSize:    cfg.Import.BatchSize,
		IssueLimit:   cfg.Import.IssueLimit,
		LockTTL:      cfg.Import.LockTTL,
		CacheResults: cfg.Import.CacheResults,
		CacheTTL:     cfg.Cache.TTL,
		Classifier: classify.Options{
			SampleSize: c.SampleSize,
			Confidences: classify.Confidences{
				HeaderKeyword:  c.HeaderKeyword,
				ValuePattern:   c.ValuePattern,
				PhonePattern:   c.PhonePattern,
				HallPattern:    c.HallPattern,
				RolePattern:    c.RolePattern,
				SessionLabel:   c.SessionLabel,
				SessionAsTopic: c.SessionAsTopic,
				NameHeader:     c.NameHeader,
				NameHeuristic:  c.NameHeuristic,
				LongTextTopic:  c.LongTextTopic,
			},
			SessionLabelMaxLen: c.SessionLabelMaxLen,
			LongTextMinLen:     c.LongTextMinLen,
		},
		LongSessionMinutes: cfg.Analysis.LongSessionMinutes,
		Thresholds: analysis.Thresholds{
			MaxGapMinutes:        cfg.Analysis.MaxGapMinutes,
			MaxContinuousMinutes: cfg.Analysis.MaxContinuousMinutes,
			HeavyLoadSessions:    cfg.Analysis.HeavyLoadSessions,
			UnderutilizedRatio:   cfg.Analysis.UnderutilizedRatio,
		},
		TopFaculty: cfg.Analysis.TopFacultyLimit,
	}
}

// Request is one program file to import or analyze.
type Request struct {
	EventID  uuid.UUID
	FileName string
	Content  []byte
	Operator string

	// OnStage, when set, is called as each stage starts.
	OnStage func(stage string)
	// OnProgress, when set, is called after each committed session batch.
	OnProgress func(done, total int)
}

func (r Request) stage(name string) {
	if r.OnStage != nil {
		r.OnStage(name)
	}
}

// Pipeline orchestrates program imports. It holds no per-import state and
// may serve concurrent requests.
type Pipeline struct {
	logger     *observability.Logger
	opts       Options
	store      Store
	cache      cache.Client
	locker     cache.Locker
	audit      *monitoring.AuditLogger
	advisor    classify.Advisor
	advisorCap int
}

// NewPipeline creates a new import pipeline. store, cacheClient, locker and
// audit may be nil; a nil store limits the pipeline to dry runs.
func NewPipeline(
	logger *observability.Logger,
	opts Options,
	store Store,
	cacheClient cache.Client,
	locker cache.Locker,
	audit *monitoring.AuditLogger,
) *Pipeline {
	if logger == nil {
		logger = observability.NopLogger()
	}
	def := DefaultOptions()
	if opts.BatchSize <= 0 {
		opts.BatchSize = def.BatchSize
	}
	if opts.IssueLimit <= 0 {
		opts.IssueLimit = def.IssueLimit
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = def.LockTTL
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = def.CacheTTL
	}
	if opts.Classifier.Confidences == (classify.Confidences{}) {
		opts.Classifier = def.Classifier
	}
	if audit == nil {
		audit = monitoring.NewAuditLogger(logger, nil, "")
	}
	return &Pipeline{
		logger: logger,
		opts:   opts,
		store:  store,
		cache:  cacheClient,
		locker: locker,
		audit:  audit,
	}
}

// WithAdvisor attaches an LLM column advisor used for columns the rules
// leave unknown.
func (p *Pipeline) WithAdvisor(a classify.Advisor, maxConfidence int) *Pipeline {
	p.advisor = a
	p.advisorCap = maxConfidence
	return p
}

// analysisRun holds everything computed before the write-back.
type analysisRun struct {
	table   *tabular.Table
	columns []classify.DetectedColumn
	colMap  classify.ColumnMap
	sched   *schedule.Schedule
	issues  []program.Issue
	summary analysis.Summary
}

func (p *Pipeline) run(ctx context.Context, req Request, timer *stageTimer, logger *observability.Logger) (*analysisRun, error) {
	req.stage("parse")
	table, err := tabular.Parse(req.FileName, req.Content)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", req.FileName, err)
	}
	timer.mark("parse")
	logger.Debug().Int("rows", len(table.Rows)).Int("columns", len(table.Headers)).Msg("File parsed")

	req.stage("classify")
	classifier := classify.NewClassifier(p.opts.Classifier, logger)
	if p.advisor != nil {
		classifier.WithAdvisor(p.advisor, p.advisorCap)
	}
	columns := classifier.Classify(ctx, table)
	colMap := classify.BuildColumnMap(columns)
	timer.mark("classify")

	if missing := colMap.Missing(classify.TypeDate, classify.TypeTime, classify.TypeTopic); len(missing) > 0 {
		names := make([]string, len(missing))
		for i, t := range missing {
			names[i] = string(t)
		}
		return nil, fmt.Errorf("%w: missing %s", ErrNoSchedulableColumns, strings.Join(names, ", "))
	}

	req.stage("build")
	sched := schedule.NewBuilder(p.opts.LongSessionMinutes, logger).Build(table, colMap)
	timer.mark("build")

	req.stage("analyze")
	issues := append([]program.Issue(nil), sched.Issues...)
	issues = append(issues, analysis.NewAnalyzer(p.opts.Thresholds).Analyze(sched.Sessions, sched.Slots)...)
	summary := analysis.Summarize(sched.Sessions, sched.Slots, p.opts.TopFaculty)
	timer.mark("analyze")
	logger.Debug().Int("issues", len(issues)).Msg("Schedule analyzed")

	return &analysisRun{
		table:   table,
		columns: columns,
		colMap:  colMap,
		sched:   sched,
		issues:  issues,
		summary: summary,
	}, nil
}

func (p *Pipeline) newResult(req Request, run *analysisRun, started time.Time) *Result {
	shown := run.issues
	if len(shown) > p.opts.IssueLimit {
		shown = shown[:p.opts.IssueLimit]
	}
	return &Result{
		EventID:     req.EventID,
		FileName:    req.FileName,
		Columns:     run.columns,
		ColumnMap:   run.colMap,
		Rows:        len(run.table.Rows),
		Sessions:    len(run.sched.Sessions),
		Halls:       len(run.sched.Halls()),
		Faculty:     len(run.sched.Faculty),
		Tracks:      len(run.sched.Tracks),
		Issues:      program.Records(shown),
		IssuesTotal: len(run.issues),
		IssueCounts: program.CountByKind(run.issues),
		Skipped:     run.sched.Skipped,
		Summary:     run.summary,
		StartedAt:   started,
	}
}

// Analyze runs a dry run: everything but the write-back. Results are cached
// by file content when a cache is configured.
func (p *Pipeline) Analyze(ctx context.Context, req Request) (*Result, error) {
	started := time.Now()
	logger := p.logger.WithContext(ctx).WithOperation("analyze").WithEvent(req.EventID.String())

	key := cache.AnalysisKey(contentHash(req.FileName, req.Content, p.fingerprint()))
	if cached := p.cachedResult(ctx, key, logger); cached != nil {
		cached.EventID = req.EventID
		cached.FileName = req.FileName
		p.recordAnalysis(ctx, req, cached)
		return cached, nil
	}

	timer := newStageTimer(started)
	run, err := p.run(ctx, req, timer, logger)
	if err != nil {
		logger.Warn().Err(err).Str("file", req.FileName).Msg("Analysis failed")
		return nil, err
	}

	result := p.newResult(req, run, started)
	result.DryRun = true
	result.Timings = timer.timings
	result.CompletedAt = time.Now()

	p.storeResult(ctx, key, result, logger)
	p.recordAnalysis(ctx, req, result)

	logger.Info().
		Str("file", req.FileName).
		Int("sessions", result.Sessions).
		Int("issues", result.IssuesTotal).
		Dur("duration", result.Duration()).
		Msg("Analysis completed")
	return result, nil
}

// Import runs the full pipeline and commits the result in one transaction.
// Terminal errors leave the store untouched.
func (p *Pipeline) Import(ctx context.Context, req Request) (*Result, error) {
	if p.store == nil {
		return nil, ErrNoStore
	}
	started := time.Now()
	jobID := uuid.New()
	logger := p.logger.WithContext(ctx).WithOperation("import").WithEvent(req.EventID.String()).WithJob(jobID.String())

	logger.Info().Str("file", req.FileName).Str("operator", req.Operator).Msg("Starting import job")

	if p.locker != nil {
		release, err := p.locker.Acquire(ctx, cache.ImportLockKey(req.EventID.String()), p.opts.LockTTL)
		if errors.Is(err, cache.ErrLockHeld) {
			return nil, ErrImportInProgress
		}
		if err != nil {
			return nil, fmt.Errorf("acquire import lock: %w", err)
		}
		defer func() {
			if err := release(context.Background()); err != nil {
				logger.Warn().Err(err).Msg("Failed to release import lock")
			}
		}()
	}

	timer := newStageTimer(started)
	run, err := p.run(ctx, req, timer, logger)
	if err != nil {
		p.recordFailure(ctx, req, jobID, err, logger)
		return nil, err
	}

	req.stage("commit")
	plan, counts, err := planImport(ctx, p.store, req.EventID, run.sched)
	if err != nil {
		p.recordFailure(ctx, req, jobID, err, logger)
		return nil, err
	}

	result := p.newResult(req, run, started)
	result.JobID = jobID
	result.Counts = counts

	plan.Job = &storage.ImportJob{
		ID:          jobID,
		EventID:     req.EventID,
		FileName:    req.FileName,
		Operator:    req.Operator,
		Counts:      counts,
		IssuesTotal: result.IssuesTotal,
		RowsSkipped: run.sched.Skipped.Total(),
		CreatedAt:   started.UTC(),
	}
	if err := p.store.ApplyImport(ctx, plan, p.opts.BatchSize, req.OnProgress); err != nil {
		err = fmt.Errorf("commit import: %w", err)
		failed := &storage.ImportJob{ID: jobID, EventID: req.EventID, FileName: req.FileName, Operator: req.Operator, Error: err.Error()}
		if recErr := p.store.RecordFailedJob(context.Background(), failed); recErr != nil {
			logger.Error().Err(recErr).Msg("Failed to record failed import job")
		}
		p.recordFailure(ctx, req, jobID, err, logger)
		return nil, err
	}
	timer.mark("commit")

	result.Status = storage.JobStatusCompleted
	result.Timings = timer.timings
	result.CompletedAt = time.Now()

	_ = p.audit.RecordImport(ctx, monitoring.ImportEvent{
		EventID:     req.EventID,
		JobID:       jobID,
		Action:      monitoring.ActionImported,
		Operator:    req.Operator,
		FileName:    req.FileName,
		Counts:      counts,
		IssuesTotal: result.IssuesTotal,
		RowsSkipped: run.sched.Skipped.Total(),
	})

	logger.Info().
		Int("sessions_created", counts.SessionsCreated).
		Int("sessions_existing", counts.SessionsExisting).
		Int("faculty_created", counts.FacultyCreated).
		Int("faculty_updated", counts.FacultyUpdated).
		Int("tracks_created", counts.TracksCreated).
		Int("issues", result.IssuesTotal).
		Int("rows_skipped", run.sched.Skipped.Total()).
		Dur("duration", result.Duration()).
		Msg("Import job completed")
	return result, nil
}

func (p *Pipeline) recordFailure(ctx context.Context, req Request, jobID uuid.UUID, err error, logger *observability.Logger) {
	logger.Warn().Err(err).Str("file", req.FileName).Msg("Import failed")
	_ = p.audit.RecordImport(ctx, monitoring.ImportEvent{
		EventID:  req.EventID,
		JobID:    jobID,
		Action:   monitoring.ActionFailed,
		Operator: req.Operator,
		FileName: req.FileName,
		Error:    err.Error(),
	})
}

func (p *Pipeline) recordAnalysis(ctx context.Context, req Request, result *Result) {
	_ = p.audit.RecordImport(ctx, monitoring.ImportEvent{
		EventID:     req.EventID,
		Action:      monitoring.ActionAnalyzed,
		Operator:    req.Operator,
		FileName:    req.FileName,
		IssuesTotal: result.IssuesTotal,
		RowsSkipped: result.Skipped.Total(),
	})
}

func (p *Pipeline) cachedResult(ctx context.Context, key string, logger *observability.Logger) *Result {
	if p.cache == nil || !p.opts.CacheResults {
		return nil
	}
	data, err := p.cache.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			logger.Warn().Err(err).Msg("Analysis cache read failed")
		}
		return nil
	}

	var result Result
	if err := json.Unmarshal(data, &result); err != nil {
		logger.Warn().Err(err).Msg("Discarding unreadable cached analysis")
		return nil
	}
	result.Cached = true
	logger.Debug().Str("key", key).Msg("Analysis cache hit")
	return &result
}

func (p *Pipeline) storeResult(ctx context.Context, key string, result *Result, logger *observability.Logger) {
	if p.cache == nil || !p.opts.CacheResults {
		return
	}
	data, err := json.Marshal(result)
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to encode analysis for cache")
		return
	}
	if err := p.cache.Set(ctx, key, data, p.opts.CacheTTL); err != nil {
		logger.Warn().Err(err).Msg("Analysis cache write failed")
	}
}

// fingerprint covers every option that changes an analysis result, so
// pipelines with different limits or thresholds never share cache entries.
func (p *Pipeline) fingerprint() []byte {
	data, _ := json.Marshal(struct {
		IssueLimit         int
		Classifier         classify.Options
		LongSessionMinutes int
		Thresholds         analysis.Thresholds
		TopFaculty         int
		Advisor            bool
		AdvisorCap         int
	}{
		IssueLimit:         p.opts.IssueLimit,
		Classifier:         p.opts.Classifier,
		LongSessionMinutes: p.opts.LongSessionMinutes,
		Thresholds:         p.opts.Thresholds,
		TopFaculty:         p.opts.TopFaculty,
		Advisor:            p.advisor != nil,
		AdvisorCap:         p.advisorCap,
	})
	return data
}

// contentHash keys a file by content, extension and analysis options. The
// extension selects the parser.
func contentHash(fileName string, content, options []byte) string {
	h := sha256.New()
	h.Write([]byte(strings.ToLower(filepath.Ext(fileName))))
	h.Write([]byte{0})
	h.Write(options)
	h.Write([]byte{0})
	h.Write(content)
	return hex.EncodeToString(h.Sum(nil))
}
