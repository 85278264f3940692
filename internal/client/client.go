package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rhq-project/rhq-sub002/internal/api/model"
	"github.com/rhq-project/rhq-sub002/internal/measurement/schedule"
)

// Client talks to the schedsync HTTP API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a client for baseURL, e.g. "http://localhost:8080".
func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// APIError is a non-2xx response. Outcome is set when the server reported a partial
// result alongside the error.
type APIError struct {
	Status  int
	Detail  model.ErrorDetail
	Outcome *schedule.Outcome
}

func (e *APIError) Error() string {
	if e.Detail.Parameter != "" {
		return fmt.Sprintf("schedsync: %d %s (%s): %s", e.Status, e.Detail.Code, e.Detail.Parameter, e.Detail.Message)
	}
	return fmt.Sprintf("schedsync: %d %s: %s", e.Status, e.Detail.Code, e.Detail.Message)
}

func targetPath(kind schedule.Context, id int) string {
	return "/v1/schedules/" + url.PathEscape(string(kind)) + "/" + strconv.Itoa(id)
}

// ListSchedules returns the target's schedules.
func (c *Client) ListSchedules(ctx context.Context, kind schedule.Context, id int) (*model.SchedulesResponse, error) {
	var resp model.SchedulesResponse
	if err := c.do(ctx, http.MethodGet, targetPath(kind, id), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Apply sends an update request. With dryRun the server only plans.
func (c *Client) Apply(ctx context.Context, req *schedule.UpdateRequest, dryRun bool) (*model.ResolveResponse, error) {
	body := model.UpdateSchedulesRequest{Schedules: req.Schedules, DryRun: dryRun}
	var resp model.ResolveResponse
	if err := c.do(ctx, http.MethodPut, targetPath(req.Context, req.TargetID), body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Changes returns recent changes for the target.
func (c *Client) Changes(ctx context.Context, kind schedule.Context, id, limit int) (*model.ChangesResponse, error) {
	path := targetPath(kind, id) + "/changes"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var resp model.ChangesResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Interval converts amount and unit to milliseconds on the server.
func (c *Client) Interval(ctx context.Context, amount int64, unit string) (*model.IntervalResponse, error) {
	path := "/v1/intervals/" + strconv.FormatInt(amount, 10) + "/" + url.PathEscape(unit)
	var resp model.IntervalResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var env model.ResolveResponse
		apiErr := &APIError{Status: resp.StatusCode}
		if json.Unmarshal(data, &env) == nil && env.Error != nil {
			apiErr.Detail = *env.Error
			apiErr.Outcome = env.Outcome
		} else {
			apiErr.Detail = model.ErrorDetail{Code: http.StatusText(resp.StatusCode), Message: strings.TrimSpace(string(data))}
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
