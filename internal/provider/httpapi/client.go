// Package httpapi implements the provider interfaces over plain JSON HTTP
// APIs with bounded retry, so a transient provider hiccup does not fail a
// tenant operation and a dead provider fails it quickly.
package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"reviewsync/internal/provider"
)

type Client struct {
	base  string
	token string
	http  *retryablehttp.Client
}

// New builds a provider client for the given base URL. Retries are bounded
// (3 attempts, short backoff); RetryQueue backoff is a separate concern and
// lives elsewhere.
func New(baseURL, token string) *Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = 3
	rc.RetryWaitMin = 200 * time.Millisecond
	rc.RetryWaitMax = 2 * time.Second
	rc.HTTPClient.Timeout = 10 * time.Second
	rc.Logger = nil
	return &Client{base: baseURL, token: token, http: rc}
}

func (c *Client) do(ctx context.Context, op, method, path string, body any, out any) error {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return &provider.Error{Op: op, Err: err}
		}
		rd = bytes.NewReader(b)
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, method, c.base+path, rd)
	if err != nil {
		return &provider.Error{Op: op, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return &provider.Error{Op: op, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &provider.Error{Op: op, Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return &provider.Error{Op: op, Err: err}
		}
	}
	return nil
}

// Scheduler is the SchedulerProvider implementation.
type Scheduler struct {
	*Client
}

func NewScheduler(baseURL, token string) *Scheduler {
	return &Scheduler{Client: New(baseURL, token)}
}

func (s *Scheduler) CreateSchedule(ctx context.Context, cronExpr string, input provider.ScheduleInput) (string, error) {
	req := struct {
		Cron  string                 `json:"cron"`
		Input provider.ScheduleInput `json:"input"`
	}{Cron: cronExpr, Input: input}
	var resp struct {
		ScheduleID string `json:"schedule_id"`
	}
	if err := s.do(ctx, "create schedule", http.MethodPost, "/schedules", req, &resp); err != nil {
		return "", err
	}
	return resp.ScheduleID, nil
}

func (s *Scheduler) UpdateScheduleInput(ctx context.Context, externalID string, input provider.ScheduleInput) error {
	return s.do(ctx, "update schedule input", http.MethodPut, "/schedules/"+externalID+"/input", input, nil)
}

func (s *Scheduler) PauseSchedule(ctx context.Context, externalID string) error {
	return s.do(ctx, "pause schedule", http.MethodPost, "/schedules/"+externalID+"/pause", nil, nil)
}

func (s *Scheduler) ResumeSchedule(ctx context.Context, externalID string) error {
	return s.do(ctx, "resume schedule", http.MethodPost, "/schedules/"+externalID+"/resume", nil, nil)
}

func (s *Scheduler) DeleteSchedule(ctx context.Context, externalID string) error {
	return s.do(ctx, "delete schedule", http.MethodDelete, "/schedules/"+externalID, nil, nil)
}

// Runner is the TaskRunner implementation.
type Runner struct {
	*Client
}

func NewRunner(baseURL, token string) *Runner {
	return &Runner{Client: New(baseURL, token)}
}

func (r *Runner) RunTask(ctx context.Context, platform, identifier string) (string, error) {
	req := struct {
		Platform   string `json:"platform"`
		Identifier string `json:"identifier"`
	}{Platform: platform, Identifier: identifier}
	var resp struct {
		RunID string `json:"run_id"`
	}
	if err := r.do(ctx, "run task", http.MethodPost, "/runs", req, &resp); err != nil {
		return "", err
	}
	return resp.RunID, nil
}

// Billing is the read-only BillingSource implementation.
type Billing struct {
	*Client
}

func NewBilling(baseURL, token string) *Billing {
	return &Billing{Client: New(baseURL, token)}
}

func (b *Billing) GetTeamTier(ctx context.Context, teamID string) (string, error) {
	var resp struct {
		Tier string `json:"tier"`
	}
	if err := b.do(ctx, "get team tier", http.MethodGet, "/teams/"+teamID+"/tier", nil, &resp); err != nil {
		return "", err
	}
	return resp.Tier, nil
}

func (b *Billing) GetTierDefaultInterval(ctx context.Context, tier string) (int, error) {
	var resp struct {
		IntervalHours int `json:"interval_hours"`
	}
	if err := b.do(ctx, "get tier default interval", http.MethodGet, "/tiers/"+tier+"/interval", nil, &resp); err != nil {
		return 0, err
	}
	return resp.IntervalHours, nil
}
