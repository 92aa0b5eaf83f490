// Package engine provides the public Go SDK for the Program Engine API.
package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultBaseURL is the address of a locally running API server.
const DefaultBaseURL = "http://localhost:8086"

var (
	// ErrNotFound is returned when the requested resource does not exist.
	ErrNotFound = errors.New("not found")
	// ErrImportInProgress is returned when another import holds the event.
	ErrImportInProgress = errors.New("import already in progress for event")
	// ErrUnprocessable is returned when the file cannot be turned into a
	// program: empty input, unsupported format or no schedulable columns.
	ErrUnprocessable = errors.New("program file could not be processed")
)

// APIError is a non-2xx response from the server.
type APIError struct {
	StatusCode int
	Message    string `json:"error"`
	Detail     string `json:"detail,omitempty"`
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("program engine: %d %s: %s", e.StatusCode, e.Message, e.Detail)
	}
	return fmt.Sprintf("program engine: %d %s", e.StatusCode, e.Message)
}

// Unwrap maps well-known status codes onto sentinel errors.
func (e *APIError) Unwrap() error {
	switch e.StatusCode {
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusConflict:
		return ErrImportInProgress
	case http.StatusUnprocessableEntity:
		return ErrUnprocessable
	}
	return nil
}

// Client is the public SDK client for the Program Engine.
type Client struct {
	baseURL    string
	apiKey     string
	operator   string
	httpClient *http.Client
}

// ClientConfig holds client configuration.
type ClientConfig struct {
	BaseURL string
	APIKey  string
	// Operator is sent as X-Operator; servers with authentication enabled
	// record the key's operator instead.
	Operator   string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// NewClient creates a new Program Engine client.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 2 * time.Minute
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		operator:   cfg.Operator,
		httpClient: httpClient,
	}, nil
}

// ImportProgram uploads a program file and commits it to the event.
func (c *Client) ImportProgram(ctx context.Context, eventID uuid.UUID, fileName string, content []byte) (*ImportResult, error) {
	var result ImportResult
	path := fmt.Sprintf("/api/v1/events/%s/program/imports", eventID)
	if err := c.upload(ctx, path, fileName, content, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// AnalyzeProgram runs a dry run of a program file. Nothing is written.
func (c *Client) AnalyzeProgram(ctx context.Context, eventID uuid.UUID, fileName string, content []byte) (*ImportResult, error) {
	var result ImportResult
	path := fmt.Sprintf("/api/v1/events/%s/program/analyze", eventID)
	if err := c.upload(ctx, path, fileName, content, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetImportJob fetches a recorded import job.
func (c *Client) GetImportJob(ctx context.Context, eventID, jobID uuid.UUID) (*ImportJob, error) {
	req, err := c.newRequest(ctx, http.MethodGet, fmt.Sprintf("/api/v1/events/%s/program/imports/%s", eventID, jobID), nil)
	if err != nil {
		return nil, err
	}
	var job ImportJob
	if err := c.do(req, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// ListSessions returns the sessions stored for an event.
func (c *Client) ListSessions(ctx context.Context, eventID uuid.UUID) ([]Session, error) {
	req, err := c.newRequest(ctx, http.MethodGet, fmt.Sprintf("/api/v1/events/%s/sessions", eventID), nil)
	if err != nil {
		return nil, err
	}
	var list struct {
		Sessions []Session `json:"sessions"`
	}
	if err := c.do(req, &list); err != nil {
		return nil, err
	}
	return list.Sessions, nil
}

// Health reports whether the server is up.
func (c *Client) Health(ctx context.Context) (*HealthStatus, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/health", nil)
	if err != nil {
		return nil, err
	}
	var status HealthStatus
	if err := c.do(req, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

func (c *Client) upload(ctx context.Context, path, fileName string, content []byte, out interface{}) error {
	req, err := c.newRequest(ctx, http.MethodPost, path, bytes.NewReader(content))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("X-File-Name", fileName)
	return c.do(req, out)
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	if c.operator != "" {
		req.Header.Set("X-Operator", c.operator)
	}
	return req, nil
}

func (c *Client) do(req *http.Request, out interface{}) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		if json.Unmarshal(body, apiErr) != nil || apiErr.Message == "" {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
