package shiftpostsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Shiftpost HTTP API client.
type Client struct {
	BaseURL     string
	BearerToken string
	ActorID     string
	Role        string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Review is one side's post-completion feedback.
type Review struct {
	Rating    int      `json:"rating"`
	Traits    []string `json:"traits,omitempty"`
	Comments  string   `json:"comments,omitempty"`
	Timestamp string   `json:"timestamp"`
}

// Job represents the API job model.
type Job struct {
	ID            int64   `json:"id"`
	Site          string  `json:"site"`
	SiteType      string  `json:"site_type"`
	Date          string  `json:"date"`
	Rank          string  `json:"rank"`
	StartTime     string  `json:"start_time"`
	EndTime       string  `json:"end_time"`
	Urgency       string  `json:"urgency"`
	SuggestedPay  float64 `json:"suggested_pay"`
	OfferPay      float64 `json:"offer_pay"`
	Status        string  `json:"status"`
	CommittedBy   *string `json:"committed_by,omitempty"`
	CommitTime    *string `json:"commit_time,omitempty"`
	CancellableAt *string `json:"cancellable_at,omitempty"`
	AgencyReview  *Review `json:"agency_review,omitempty"`
	OfficerReview *Review `json:"officer_review,omitempty"`
	Revision      int64   `json:"revision"`
	CreatedAt     string  `json:"created_at"`
}

// Account represents a registration.
type Account struct {
	ID          string  `json:"id"`
	Kind        string  `json:"kind"`
	Name        string  `json:"name"`
	Contact     string  `json:"contact,omitempty"`
	Status      string  `json:"status"`
	CreatedAt   string  `json:"created_at"`
	ValidatedAt *string `json:"validated_at,omitempty"`
}

// Event represents a log entry.
type Event struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id,omitempty"`
	ActorID    string         `json:"actor_id,omitempty"`
	Payload    map[string]any `json:"payload,omitempty"`
}

// Quote is the advisory pricing for a shift.
type Quote struct {
	Rank      string  `json:"rank"`
	Hours     int     `json:"hours"`
	Urgency   string  `json:"urgency"`
	Suggested float64 `json:"suggested_pay"`
	Minimum   float64 `json:"minimum_offer"`
}

// JobInput are the fields for posting a job.
type JobInput struct {
	Site      string  `json:"site"`
	SiteType  string  `json:"site_type,omitempty"`
	Date      string  `json:"date"`
	Rank      string  `json:"rank"`
	StartTime string  `json:"start_time"`
	EndTime   string  `json:"end_time"`
	Urgency   string  `json:"urgency,omitempty"`
	OfferPay  float64 `json:"offer_pay"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// CreateJob posts a job.
func (c *Client) CreateJob(ctx context.Context, input JobInput) (Job, error) {
	var resp Job
	err := c.do(ctx, http.MethodPost, "jobs", input, &resp)
	return resp, err
}

// Job fetches a job by id.
func (c *Client) Job(ctx context.Context, id int64) (Job, error) {
	var resp Job
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("jobs/%d", id), nil, &resp)
	return resp, err
}

// Jobs lists jobs, optionally filtered by status and rank.
func (c *Client) Jobs(ctx context.Context, status, rank string) ([]Job, error) {
	endpoint := "jobs"
	q := url.Values{}
	if status != "" {
		q.Set("status", status)
	}
	if rank != "" {
		q.Set("rank", rank)
	}
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp []Job
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// Commit reserves an open job for the calling officer.
func (c *Client) Commit(ctx context.Context, id int64) (Job, error) {
	var resp Job
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("jobs/%d/commit", id), nil, &resp)
	return resp, err
}

// Cancel reverts a pending commitment after the cancel window.
func (c *Client) Cancel(ctx context.Context, id int64) (Job, error) {
	var resp Job
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("jobs/%d/cancel", id), nil, &resp)
	return resp, err
}

// Accept books the committed officer.
func (c *Client) Accept(ctx context.Context, id int64) (Job, error) {
	var resp Job
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("jobs/%d/accept", id), nil, &resp)
	return resp, err
}

// Complete marks a booked job done.
func (c *Client) Complete(ctx context.Context, id int64) (Job, error) {
	var resp Job
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("jobs/%d/complete", id), nil, &resp)
	return resp, err
}

// SubmitReview attaches a review from the given side (agency or officer).
func (c *Client) SubmitReview(ctx context.Context, id int64, side string, rating int, traits []string, comments string) (Job, error) {
	body := map[string]any{
		"rating":   rating,
		"traits":   traits,
		"comments": comments,
	}
	var resp Job
	endpoint := fmt.Sprintf("jobs/%d/reviews/%s", id, url.PathEscape(side))
	err := c.do(ctx, http.MethodPost, endpoint, body, &resp)
	return resp, err
}

// RegisterAccount files a pending registration.
func (c *Client) RegisterAccount(ctx context.Context, kind, name, contact string) (Account, error) {
	body := map[string]any{
		"kind":    kind,
		"name":    name,
		"contact": contact,
	}
	var resp Account
	err := c.do(ctx, http.MethodPost, "accounts", body, &resp)
	return resp, err
}

// ValidateAccount approves a pending registration.
func (c *Client) ValidateAccount(ctx context.Context, id string) (Account, error) {
	var resp Account
	endpoint := fmt.Sprintf("accounts/%s/validate", url.PathEscape(id))
	err := c.do(ctx, http.MethodPost, endpoint, nil, &resp)
	return resp, err
}

// Quote returns advisory pricing for a shift.
func (c *Client) Quote(ctx context.Context, rank, start, end, urgency string) (Quote, error) {
	q := url.Values{}
	q.Set("rank", rank)
	q.Set("start_time", start)
	q.Set("end_time", end)
	if urgency != "" {
		q.Set("urgency", urgency)
	}
	var resp Quote
	err := c.do(ctx, http.MethodGet, "pay/quote?"+q.Encode(), nil, &resp)
	return resp, err
}

// Events returns recent events, newest first.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	endpoint := "events"
	if limit > 0 {
		endpoint = fmt.Sprintf("events?limit=%d", limit)
	}
	var resp []Event
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	target := c.base() + "/v1/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, target, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	}
	if c.ActorID != "" {
		req.Header.Set("X-Actor-Id", c.ActorID)
	}
	if c.Role != "" {
		req.Header.Set("X-Role", c.Role)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
