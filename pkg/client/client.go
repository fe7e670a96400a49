// Package client is the Go SDK for the tire-request service: an HTTP client
// for the request-store API plus a realtime connection manager and the state
// reconciler that keeps a local request list current from pushed events.
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
	"time"
)

// Client is a minimal HTTP API client.
type Client struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

type dataEnvelope[T any] struct {
	Success bool `json:"success"`
	Data    T    `json:"data"`
}

// LoginResult carries the issued token and identity.
type LoginResult struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	Actor     Identity  `json:"actor"`
}

// Login exchanges credentials for a bearer token and stores it on the client.
func (c *Client) Login(ctx context.Context, email, password string) (LoginResult, error) {
	var resp LoginResult
	err := c.do(ctx, http.MethodPost, "/auth/login", map[string]string{
		"email":    email,
		"password": password,
	}, &resp)
	if err != nil {
		return LoginResult{}, err
	}
	c.Token = resp.Token
	return resp, nil
}

// Me revalidates the bearer identity.
func (c *Client) Me(ctx context.Context) (Identity, error) {
	var resp dataEnvelope[Identity]
	err := c.do(ctx, http.MethodGet, "/auth/me", nil, &resp)
	return resp.Data, err
}

// SubmitInput describes request creation payload.
type SubmitInput struct {
	VehicleID string `json:"vehicle_id"`
	TireSize  string `json:"tire_size"`
	Quantity  int    `json:"quantity"`
	Reason    string `json:"reason"`
}

// Submit creates a new request.
func (c *Client) Submit(ctx context.Context, input SubmitInput) (Request, error) {
	var resp dataEnvelope[Request]
	err := c.do(ctx, http.MethodPost, "/requests", input, &resp)
	return resp.Data, err
}

// List fetches live requests visible to the caller.
func (c *Client) List(ctx context.Context) ([]Request, error) {
	var resp dataEnvelope[[]Request]
	err := c.do(ctx, http.MethodGet, "/requests", nil, &resp)
	return resp.Data, err
}

// Get fetches one request by id.
func (c *Client) Get(ctx context.Context, id int64) (Request, error) {
	var resp dataEnvelope[Request]
	err := c.do(ctx, http.MethodGet, "/requests/"+strconv.FormatInt(id, 10), nil, &resp)
	return resp.Data, err
}

// Transition applies a status change with the mandatory note.
func (c *Client) Transition(ctx context.Context, id int64, status, note string) (Request, error) {
	var resp dataEnvelope[Request]
	err := c.do(ctx, http.MethodPut, "/requests/"+strconv.FormatInt(id, 10), map[string]string{
		"status": status,
		"note":   note,
	}, &resp)
	return resp.Data, err
}

// SoftDelete marks a request deleted.
func (c *Client) SoftDelete(ctx context.Context, id int64) (Request, error) {
	var resp dataEnvelope[Request]
	err := c.do(ctx, http.MethodDelete, "/requests/"+strconv.FormatInt(id, 10), nil, &resp)
	return resp.Data, err
}

// Restore brings a deleted request back.
func (c *Client) Restore(ctx context.Context, id int64) (Request, error) {
	var resp dataEnvelope[Request]
	err := c.do(ctx, http.MethodPost, "/requests/restore/"+strconv.FormatInt(id, 10), nil, &resp)
	return resp.Data, err
}

// DeletedFilter captures listing filters for deleted requests.
type DeletedFilter struct {
	SubmitterID string
	DeletedBy   string
	Status      string
	From        *time.Time
	To          *time.Time
	Page        int
	Limit       int
	SortBy      string
	SortOrder   string
}

// ListDeleted fetches a page of soft-deleted requests.
func (c *Client) ListDeleted(ctx context.Context, filter DeletedFilter) (DeletedPage, error) {
	values := url.Values{}
	if filter.SubmitterID != "" {
		values.Set("submitterId", filter.SubmitterID)
	}
	if filter.DeletedBy != "" {
		values.Set("deletedBy", filter.DeletedBy)
	}
	if filter.Status != "" {
		values.Set("status", filter.Status)
	}
	if filter.From != nil {
		values.Set("from", filter.From.Format(time.RFC3339))
	}
	if filter.To != nil {
		values.Set("to", filter.To.Format(time.RFC3339))
	}
	if filter.Page > 0 {
		values.Set("page", strconv.Itoa(filter.Page))
	}
	if filter.Limit > 0 {
		values.Set("limit", strconv.Itoa(filter.Limit))
	}
	if filter.SortBy != "" {
		values.Set("sortBy", filter.SortBy)
	}
	if filter.SortOrder != "" {
		values.Set("sortOrder", filter.SortOrder)
	}

	path := "/requests/deleted"
	if encoded := values.Encode(); encoded != "" {
		path += "?" + encoded
	}
	var resp DeletedPage
	err := c.do(ctx, http.MethodGet, path, nil, &resp)
	return resp, err
}

// ListEvents fetches the lifecycle event log for a request.
func (c *Client) ListEvents(ctx context.Context, id int64) ([]LifecycleEvent, error) {
	var resp dataEnvelope[[]LifecycleEvent]
	err := c.do(ctx, http.MethodGet, "/requests/"+strconv.FormatInt(id, 10)+"/events", nil, &resp)
	return resp.Data, err
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	httpClient := c.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: c.Timeout}
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{StatusCode: resp.StatusCode, Body: string(raw)}
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(raw, out)
}
