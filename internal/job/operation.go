package job

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/osteele/liquid"

	"github.com/foxzi/mailpilot/internal/account"
	"github.com/foxzi/mailpilot/internal/provider"
)

// Step performs the job's provider call for one recipient. index is 0-based.
type Step func(ctx context.Context, index, total int, recipient string) provider.Outcome

// Operation is the per-recipient capability a Controller is parameterized over
type Operation interface {
	Kind() Kind
	// Prepare validates the payload and binds it to an account
	Prepare(acct *account.Account, payload json.RawMessage) (Step, error)
}

// ClientSource resolves the provider client of an account
type ClientSource interface {
	Client(acct *account.Account) *provider.Client
}

// ParseRecipients splits operator text into trimmed, non-empty lines in order
func ParseRecipients(raw string) []string {
	lines := strings.Split(raw, "\n")
	recipients := make([]string, 0, len(lines))
	for _, line := range lines {
		if r := strings.TrimSpace(line); r != "" {
			recipients = append(recipients, r)
		}
	}
	return recipients
}

// SendPayload is the payload of a send job
type SendPayload struct {
	Subject   string `json:"subject"`
	HTML      string `json:"html"`
	FromEmail string `json:"from_email,omitempty"`
	FromName  string `json:"from_name,omitempty"`
}

// SendOperation sends one email per recipient. Subject and HTML are Liquid
// templates with email, index and total bound.
type SendOperation struct {
	clients ClientSource
	engine  *liquid.Engine
}

// NewSendOperation creates the bulk send operation
func NewSendOperation(clients ClientSource) *SendOperation {
	return &SendOperation{
		clients: clients,
		engine:  liquid.NewEngine(),
	}
}

func (o *SendOperation) Kind() Kind { return KindSend }

func (o *SendOperation) Prepare(acct *account.Account, payload json.RawMessage) (Step, error) {
	var p SendPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if strings.TrimSpace(p.Subject) == "" {
		return nil, fmt.Errorf("%w: subject is required", ErrInvalidPayload)
	}
	if strings.TrimSpace(p.HTML) == "" {
		return nil, fmt.Errorf("%w: html is required", ErrInvalidPayload)
	}

	subject, err := o.engine.ParseString(p.Subject)
	if err != nil {
		return nil, fmt.Errorf("%w: subject template: %v", ErrInvalidPayload, err)
	}
	body, err := o.engine.ParseString(p.HTML)
	if err != nil {
		return nil, fmt.Errorf("%w: html template: %v", ErrInvalidPayload, err)
	}

	fromEmail := p.FromEmail
	if fromEmail == "" {
		fromEmail = acct.FromEmail
	}
	fromName := p.FromName
	if fromName == "" {
		fromName = acct.FromName
	}
	client := o.clients.Client(acct)

	return func(ctx context.Context, index, total int, recipient string) provider.Outcome {
		vars := liquid.Bindings{
			"email": recipient,
			"index": index + 1,
			"total": total,
		}
		renderedSubject, err := subject.RenderString(vars)
		if err != nil {
			return provider.Outcome{Body: provider.ErrorBody("render subject: " + err.Error())}
		}
		renderedHTML, err := body.RenderString(vars)
		if err != nil {
			return provider.Outcome{Body: provider.ErrorBody("render html: " + err.Error())}
		}

		return client.SendEmail(ctx, &provider.SendRequest{
			To:        recipient,
			Subject:   renderedSubject,
			HTML:      renderedHTML,
			FromEmail: fromEmail,
			FromName:  fromName,
		})
	}, nil
}

// TrackPayload is the payload of a track job. CustomFields is either the
// operator's raw JSON text or an inline JSON object.
type TrackPayload struct {
	AudienceID   string          `json:"audience_id"`
	CustomFields json.RawMessage `json:"custom_fields,omitempty"`
}

// TrackOperation adds each recipient to an audience
type TrackOperation struct {
	clients ClientSource
}

// NewTrackOperation creates the bulk audience-add operation
func NewTrackOperation(clients ClientSource) *TrackOperation {
	return &TrackOperation{clients: clients}
}

func (o *TrackOperation) Kind() Kind { return KindTrack }

func (o *TrackOperation) Prepare(acct *account.Account, payload json.RawMessage) (Step, error) {
	var p TrackPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	audienceID := strings.TrimSpace(p.AudienceID)
	if audienceID == "" {
		return nil, fmt.Errorf("%w: audience_id is required", ErrInvalidPayload)
	}

	fields, err := parseCustomFields(p.CustomFields)
	if err != nil {
		return nil, fmt.Errorf("%w: custom_fields: %v", ErrInvalidPayload, err)
	}
	client := o.clients.Client(acct)

	return func(ctx context.Context, index, total int, recipient string) provider.Outcome {
		return client.AddToAudience(ctx, &provider.TrackRequest{
			AudienceID: audienceID,
			Email:      recipient,
			Fields:     fields,
		})
	}, nil
}

func parseCustomFields(raw json.RawMessage) (map[string]any, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}

	if raw[0] == '"' {
		var text string
		if err := json.Unmarshal(raw, &text); err != nil {
			return nil, err
		}
		text = strings.TrimSpace(text)
		if text == "" {
			return nil, nil
		}
		raw = json.RawMessage(text)
	}

	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("must be a JSON object: %w", err)
	}
	return fields, nil
}
