package main

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical-ai/spherical/libs/program-engine/cmd/program-engine-api/middleware"
	"github.com/spherical-ai/spherical/libs/program-engine/internal/cache"
	"github.com/spherical-ai/spherical/libs/program-engine/internal/config"
	"github.com/spherical-ai/spherical/libs/program-engine/internal/ingest"
	"github.com/spherical-ai/spherical/libs/program-engine/internal/observability"
	"github.com/spherical-ai/spherical/libs/program-engine/internal/storage"
)

const programCSV = "Date,Time,Topic,Hall,Name,Role,Email\n" +
	"2024-03-01,09:00-10:00,Opening Keynote,Hall A,Dr. Smith,Speaker,smith@x.com\n" +
	"2024-03-01,09:30-10:30,Heart Failure,Hall A,Dr. Jones,Speaker,\n"

type testServer struct {
	handler http.Handler
	store   *storage.Store
	locks   *cache.MemoryClient
}

func newTestServer(t *testing.T, mutate func(*AppConfig)) *testServer {
	t.Helper()
	dbCfg := config.DefaultConfig().Database
	dbCfg.SQLite.Path = filepath.Join(t.TempDir(), "api.db")

	store, err := storage.Open(dbCfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	_, err = store.Migrate(context.Background())
	require.NoError(t, err)

	mem := cache.NewMemoryClient(0)
	t.Cleanup(func() { mem.Close() })

	pipeline := ingest.NewPipeline(nil, ingest.DefaultOptions(), store, mem, mem, nil)

	appCfg := DefaultAppConfig()
	appCfg.MaxUploadBytes = 4 << 10
	if mutate != nil {
		mutate(appCfg)
	}
	return &testServer{
		handler: NewRouter(observability.NopLogger(), appCfg, pipeline, store),
		store:   store,
		locks:   mem,
	}
}

func (s *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func rawUpload(path, fileName, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "text/csv")
	if fileName != "" {
		req.Header.Set("X-File-Name", fileName)
	}
	return req
}

func multipartUpload(t *testing.T, path, fileName, body string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", fileName)
	require.NoError(t, err)
	_, err = part.Write([]byte(body))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func importPath(eventID uuid.UUID) string {
	return "/api/v1/events/" + eventID.String() + "/program/imports"
}

func TestHealthAndReady(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := srv.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "healthy")

	rec = srv.do(httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ready"}`, rec.Body.String())
}

func TestReady_StoreClosed(t *testing.T) {
	srv := newTestServer(t, nil)
	require.NoError(t, srv.store.Close())

	rec := srv.do(httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestImport_MultipartThenReadBack(t *testing.T) {
	srv := newTestServer(t, nil)
	eventID := uuid.New()

	req := multipartUpload(t, importPath(eventID), "program.csv", programCSV)
	req.Header.Set("X-Operator", "coordinator")
	rec := srv.do(req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var result ingest.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, eventID, result.EventID)
	assert.Equal(t, storage.JobStatusCompleted, result.Status)
	assert.Equal(t, 2, result.Counts.SessionsCreated)
	assert.Equal(t, 1, result.IssuesTotal)
	require.Len(t, result.Issues, 1)

	rec = srv.do(httptest.NewRequest(http.MethodGet, importPath(eventID)+"/"+result.JobID.String(), nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var job storage.ImportJob
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &job))
	assert.Equal(t, "coordinator", job.Operator)
	assert.Equal(t, storage.JobStatusCompleted, job.Status)
	assert.Equal(t, 1, job.IssuesTotal)

	rec = srv.do(httptest.NewRequest(http.MethodGet, "/api/v1/events/"+eventID.String()+"/sessions", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Count    int `json:"count"`
		Sessions []struct {
			Topic string `json:"topic"`
		} `json:"sessions"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Equal(t, 2, list.Count)
	assert.Equal(t, "Opening Keynote", list.Sessions[0].Topic)
}

func TestImport_DryRunWritesNothing(t *testing.T) {
	srv := newTestServer(t, nil)
	eventID := uuid.New()

	rec := srv.do(rawUpload(importPath(eventID)+"?dryRun=true", "program.csv", programCSV))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"dry_run":true`)

	rec = srv.do(rawUpload("/api/v1/events/"+eventID.String()+"/program/analyze", "", programCSV))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"cached":true`)

	sessions, err := srv.store.ListSessions(context.Background(), eventID)
	require.NoError(t, err)
	assert.Empty(t, sessions)
}

func TestImport_ErrorStatuses(t *testing.T) {
	eventID := uuid.New()
	tests := []struct {
		name   string
		req    func(t *testing.T) *http.Request
		status int
	}{
		{
			name:   "invalid event id",
			req:    func(*testing.T) *http.Request { return rawUpload("/api/v1/events/not-a-uuid/program/imports", "", programCSV) },
			status: http.StatusBadRequest,
		},
		{
			name:   "empty body",
			req:    func(*testing.T) *http.Request { return rawUpload(importPath(eventID), "", "") },
			status: http.StatusBadRequest,
		},
		{
			name:   "header only",
			req:    func(*testing.T) *http.Request { return rawUpload(importPath(eventID), "p.csv", "Date,Time,Topic\n") },
			status: http.StatusUnprocessableEntity,
		},
		{
			name: "no schedulable columns",
			req: func(*testing.T) *http.Request {
				return rawUpload(importPath(eventID), "p.csv", "Name,Email\nDr. A,a@x.com\n")
			},
			status: http.StatusUnprocessableEntity,
		},
		{
			name:   "legacy workbook",
			req:    func(t *testing.T) *http.Request { return multipartUpload(t, importPath(eventID), "p.xls", "binary") },
			status: http.StatusUnprocessableEntity,
		},
		{
			name: "too large",
			req: func(*testing.T) *http.Request {
				return rawUpload(importPath(eventID), "p.csv", programCSV+strings.Repeat("x", 8<<10))
			},
			status: http.StatusRequestEntityTooLarge,
		},
	}

	srv := newTestServer(t, nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := srv.do(tt.req(t))
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
		})
	}
}

func TestImport_InProgress(t *testing.T) {
	srv := newTestServer(t, nil)
	eventID := uuid.New()

	release, err := srv.locks.Acquire(context.Background(), cache.ImportLockKey(eventID.String()), time.Minute)
	require.NoError(t, err)
	defer release(context.Background())

	rec := srv.do(rawUpload(importPath(eventID), "p.csv", programCSV))
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestGetJob_NotFound(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := srv.do(httptest.NewRequest(http.MethodGet, importPath(uuid.New())+"/"+uuid.NewString(), nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = srv.do(httptest.NewRequest(http.MethodGet, importPath(uuid.New())+"/bogus", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAuth_APIKeys(t *testing.T) {
	srv := newTestServer(t, func(c *AppConfig) {
		c.AuthConfig = middleware.AuthConfig{Enabled: true, APIKeys: []string{"ops:secret-1", "secret-2"}}
	})
	eventID := uuid.New()

	rec := srv.do(rawUpload(importPath(eventID), "p.csv", programCSV))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := rawUpload(importPath(eventID), "p.csv", programCSV)
	req.Header.Set("Authorization", "Bearer wrong")
	assert.Equal(t, http.StatusUnauthorized, srv.do(req).Code)

	req = rawUpload(importPath(eventID), "p.csv", programCSV)
	req.Header.Set("Authorization", "Bearer secret-1")
	rec = srv.do(req)
	require.Equal(t, http.StatusCreated, rec.Code)

	var result ingest.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	job, err := srv.store.GetImportJob(context.Background(), eventID, result.JobID)
	require.NoError(t, err)
	assert.Equal(t, "ops", job.Operator)

	// Health stays open.
	assert.Equal(t, http.StatusOK, srv.do(httptest.NewRequest(http.MethodGet, "/health", nil)).Code)
}

func TestImport_LogsCarryRequestID(t *testing.T) {
	var buf bytes.Buffer
	logger := observability.NewLogger(observability.LogConfig{Level: "info", Output: &buf})
	pipeline := ingest.NewPipeline(logger, ingest.DefaultOptions(), nil, nil, nil, nil)
	router := NewRouter(logger, DefaultAppConfig(), pipeline, nil)

	req := rawUpload("/api/v1/events/"+uuid.New().String()+"/program/analyze", "program.csv", programCSV)
	req.Header.Set("X-Request-Id", "req-42")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var tagged []string
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if strings.Contains(line, `"request_id":"req-42"`) {
			tagged = append(tagged, line)
		}
	}
	require.NotEmpty(t, tagged)
	joined := strings.Join(tagged, "\n")
	assert.Contains(t, joined, "Program upload received")
	assert.Contains(t, joined, "Analysis completed")
}
