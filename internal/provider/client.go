package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/foxzi/mailpilot/internal/metrics"
)

const (
	pathSend   = "/v1/send"
	pathTrack  = "/v1/track"
	pathCount  = "/v1/contacts/count"
	pathEvents = "/v1/events"

	maxResponseBytes = 1 << 20
)

// Client is a provider API client bound to one account
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a new provider API client
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// request performs an HTTP request and returns the status code and raw body.
// A transport failure is returned as err; any HTTP status is not.
func (c *Client) request(ctx context.Context, operation, method, path string, body any) (int, []byte, error) {
	start := time.Now()
	status, data, err := c.do(ctx, method, path, body)

	result := "ok"
	switch {
	case err != nil:
		result = "transport_error"
	case status < 200 || status >= 300:
		result = "http_" + strconv.Itoa(status)
	}
	metrics.ObserveProviderRequest(operation, result, time.Since(start))

	return status, data, err
}

func (c *Client) do(ctx context.Context, method, path string, body any) (int, []byte, error) {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, nil, fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return 0, nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read response: %w", err)
	}

	return resp.StatusCode, data, nil
}

// SendEmail sends one email. It never returns an error: failures are
// reported through Outcome.OK and Outcome.Body.
func (c *Client) SendEmail(ctx context.Context, req *SendRequest) Outcome {
	wire := wireSendRequest{
		To:      req.To,
		Subject: req.Subject,
		Body:    req.HTML,
		From:    req.FromEmail,
		Name:    req.FromName,
	}
	return c.outcome(c.request(ctx, "send", http.MethodPost, pathSend, wire))
}

// AddToAudience adds one contact to an audience. Like SendEmail it never fails.
func (c *Client) AddToAudience(ctx context.Context, req *TrackRequest) Outcome {
	wire := wireTrackRequest{
		Event:      req.AudienceID,
		Email:      req.Email,
		Subscribed: true,
		Data:       req.Fields,
	}
	return c.outcome(c.request(ctx, "track", http.MethodPost, pathTrack, wire))
}

// CheckStatus verifies the account's credentials. Rejected credentials
// are reported as Valid=false, other failures as errors.
func (c *Client) CheckStatus(ctx context.Context) (*StatusResponse, error) {
	status, data, err := c.request(ctx, "status", http.MethodGet, pathCount, nil)
	if err != nil {
		return nil, err
	}

	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		return &StatusResponse{Valid: false, Error: http.StatusText(status)}, nil
	}
	if status < 200 || status >= 300 {
		return nil, &APIError{StatusCode: status, Body: normalizeBody(data, status)}
	}

	var count wireCount
	if err := json.Unmarshal(data, &count); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &StatusResponse{Valid: true, Contacts: count.Count}, nil
}

// FetchLogs returns one page of delivery events (page starts at 1)
func (c *Client) FetchLogs(ctx context.Context, page, limit int) (*LogsPage, error) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = 50
	}

	params := url.Values{}
	params.Set("page", strconv.Itoa(page))
	params.Set("limit", strconv.Itoa(limit))

	status, data, err := c.request(ctx, "logs", http.MethodGet, pathEvents+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	if status < 200 || status >= 300 {
		return nil, &APIError{StatusCode: status, Body: normalizeBody(data, status)}
	}

	var wire wireEventsPage
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	out := &LogsPage{
		Events: make([]LogEvent, 0, len(wire.Events)),
		Page:   page,
		Limit:  limit,
		Total:  wire.Total,
	}
	for _, e := range wire.Events {
		out.Events = append(out.Events, LogEvent{
			ID:        e.ID,
			Type:      e.Name,
			Recipient: e.Contact.Email,
			Timestamp: e.CreatedAt,
		})
	}
	return out, nil
}

// Analytics walks up to maxPages pages of events and aggregates them
func (c *Client) Analytics(ctx context.Context, maxPages, limit int) (*Analytics, error) {
	if maxPages <= 0 {
		maxPages = 5
	}
	if limit <= 0 {
		limit = 100
	}

	var events []LogEvent
	pages := 0
	for page := 1; page <= maxPages; page++ {
		p, err := c.FetchLogs(ctx, page, limit)
		if err != nil {
			return nil, err
		}
		pages++
		events = append(events, p.Events...)
		if len(p.Events) < limit || (p.Total > 0 && len(events) >= p.Total) {
			break
		}
	}

	a := Summarize(events)
	a.Pages = pages
	return a, nil
}

// Summarize counts events per type and unique recipients
func Summarize(events []LogEvent) *Analytics {
	a := &Analytics{
		Events: len(events),
		ByType: make(map[string]int),
	}

	recipients := make(map[string]struct{})
	for i := range events {
		e := &events[i]
		a.ByType[e.Type]++
		if e.Recipient != "" {
			recipients[strings.ToLower(e.Recipient)] = struct{}{}
		}
		if e.Timestamp.IsZero() {
			continue
		}
		if a.FirstEventAt == nil || e.Timestamp.Before(*a.FirstEventAt) {
			ts := e.Timestamp
			a.FirstEventAt = &ts
		}
		if a.LastEventAt == nil || e.Timestamp.After(*a.LastEventAt) {
			ts := e.Timestamp
			a.LastEventAt = &ts
		}
	}
	a.UniqueRecipients = len(recipients)
	return a
}

func (c *Client) outcome(status int, data []byte, err error) Outcome {
	if err != nil {
		return Outcome{OK: false, Body: ErrorBody(err.Error())}
	}
	if status < 200 || status >= 300 {
		return Outcome{OK: false, Body: normalizeBody(data, status)}
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return Outcome{OK: true, Body: json.RawMessage(`{}`)}
	}
	if !json.Valid(data) {
		raw, _ := json.Marshal(map[string]string{"response": string(data)})
		return Outcome{OK: true, Body: raw}
	}
	return Outcome{OK: true, Body: json.RawMessage(data)}
}

// ErrorBody builds the synthesized {"error": msg} payload
func ErrorBody(msg string) json.RawMessage {
	data, _ := json.Marshal(map[string]string{"error": msg})
	return data
}

// normalizeBody keeps a JSON error body as-is and wraps anything else
func normalizeBody(data []byte, status int) json.RawMessage {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && json.Valid(trimmed) {
		return json.RawMessage(trimmed)
	}
	msg := string(trimmed)
	if msg == "" {
		msg = fmt.Sprintf("HTTP %d %s", status, http.StatusText(status))
	}
	return ErrorBody(msg)
}

// IsAPIError reports whether err is a provider HTTP error and returns it
func IsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}
