package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/sjawhar/ghost-interviewer/internal/call"
	"github.com/sjawhar/ghost-interviewer/internal/storage"
)

// StatusError is a non-2xx response from the persistence API.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("persistence api returned %d", e.Code)
}

// Client implements call.Persistence against a remote persistence API.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient uses http.DefaultClient when hc is nil.
func NewClient(baseURL string, hc *http.Client) *Client {
	if hc == nil {
		hc = http.DefaultClient
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: hc}
}

func (c *Client) CreateInterview(ctx context.Context, req call.InterviewRequest) (call.InterviewResult, error) {
	var out call.InterviewResult
	if err := c.post(ctx, "/api/interviews", req, &out); err != nil {
		return call.InterviewResult{}, err
	}
	return out, nil
}

func (c *Client) CreateFeedback(ctx context.Context, req call.FeedbackRequest) (call.FeedbackResult, error) {
	var out call.FeedbackResult
	if err := c.post(ctx, "/api/feedback", req, &out); err != nil {
		return call.FeedbackResult{}, err
	}
	return out, nil
}

// GetInterview loads a stored interview, used to fetch the prepared
// questions for a fixed-mode call.
func (c *Client) GetInterview(ctx context.Context, id string) (storage.Interview, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/interviews/"+url.PathEscape(id), nil)
	if err != nil {
		return storage.Interview{}, fmt.Errorf("build request: %w", err)
	}
	var iv storage.Interview
	if err := c.do(req, &iv); err != nil {
		return storage.Interview{}, err
	}
	return iv, nil
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		var f failure
		_ = json.Unmarshal(data, &f)
		return &StatusError{Code: resp.StatusCode, Message: f.Error}
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

var _ call.Persistence = (*Client)(nil)
