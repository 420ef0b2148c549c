package provider

import (
	"encoding/json"
	"fmt"
	"time"
)

// Outcome is the normalized result of a per-recipient call.
// Body is the raw provider payload, or {"error": "..."} for local failures.
type Outcome struct {
	OK   bool            `json:"ok"`
	Body json.RawMessage `json:"body"`
}

// APIError is returned when the provider answers with a non-2xx status
type APIError struct {
	StatusCode int
	Body       json.RawMessage
}

func (e *APIError) Error() string {
	return fmt.Sprintf("provider error (status %d): %s", e.StatusCode, string(e.Body))
}

// SendRequest is the internal schema of a single email
type SendRequest struct {
	To        string `json:"to"`
	Subject   string `json:"subject"`
	HTML      string `json:"html"`
	FromEmail string `json:"from_email,omitempty"`
	FromName  string `json:"from_name,omitempty"`
}

// TrackRequest adds one contact to an audience (tracked as a provider event)
type TrackRequest struct {
	AudienceID string         `json:"audience_id"`
	Email      string         `json:"email"`
	Fields     map[string]any `json:"fields,omitempty"`
}

// StatusResponse reports whether an account's credentials are accepted
type StatusResponse struct {
	Valid    bool   `json:"valid"`
	Contacts int    `json:"contacts"`
	Error    string `json:"error,omitempty"`
}

// LogEvent is one delivery event in the internal schema
type LogEvent struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Recipient string    `json:"recipient"`
	Timestamp time.Time `json:"timestamp"`
}

// LogsPage is one page of delivery events
type LogsPage struct {
	Events []LogEvent `json:"events"`
	Page   int        `json:"page"`
	Limit  int        `json:"limit"`
	Total  int        `json:"total"`
}

// Analytics aggregates delivery events over several pages
type Analytics struct {
	Events           int            `json:"events"`
	ByType           map[string]int `json:"by_type"`
	UniqueRecipients int            `json:"unique_recipients"`
	Pages            int            `json:"pages"`
	FirstEventAt     *time.Time     `json:"first_event_at,omitempty"`
	LastEventAt      *time.Time     `json:"last_event_at,omitempty"`
}

// Provider wire schema

type wireSendRequest struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
	From    string `json:"from,omitempty"`
	Name    string `json:"name,omitempty"`
}

type wireTrackRequest struct {
	Event      string         `json:"event"`
	Email      string         `json:"email"`
	Subscribed bool           `json:"subscribed"`
	Data       map[string]any `json:"data,omitempty"`
}

type wireCount struct {
	Count int `json:"count"`
}

type wireEvent struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Contact struct {
		Email string `json:"email"`
	} `json:"contact"`
	CreatedAt time.Time `json:"createdAt"`
}

type wireEventsPage struct {
	Events []wireEvent `json:"events"`
	Total  int         `json:"total"`
}
