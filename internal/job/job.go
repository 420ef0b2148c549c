package job

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrValidation     = errors.New("validation error")
	ErrNoRecipients   = fmt.Errorf("%w: no recipients", ErrValidation)
	ErrInvalidPayload = fmt.Errorf("%w: invalid payload", ErrValidation)
	ErrJobActive      = errors.New("job is active")
)

// Kind identifies a bulk job type
type Kind string

const (
	KindSend  Kind = "send"
	KindTrack Kind = "track"
)

// Status of a job run
type Status string

const (
	StatusIdle       Status = "idle"
	StatusProcessing Status = "processing"
	StatusPaused     Status = "paused"
	StatusWaiting    Status = "waiting"
	StatusCompleted  Status = "completed"
	StatusStopped    Status = "stopped"
)

// Active reports whether a run is in progress
func (s Status) Active() bool {
	return s == StatusProcessing || s == StatusPaused || s == StatusWaiting
}

// Ticking reports whether elapsed time accumulates in this status
func (s Status) Ticking() bool {
	return s == StatusProcessing || s == StatusWaiting
}

// Result statuses
const (
	ResultSuccess = "success"
	ResultError   = "error"
)

// Progress counts recipients with a recorded outcome
type Progress struct {
	Current int `json:"current"`
	Total   int `json:"total"`
}

// Stats counts outcomes per result status
type Stats struct {
	Success int `json:"success"`
	Fail    int `json:"fail"`
}

// Result is the outcome of one recipient
type Result struct {
	ID        int             `json:"id"`
	Recipient string          `json:"recipient"`
	Status    string          `json:"status"`
	Response  json.RawMessage `json:"response"`
}

// Job is the state of one account's bulk job of a given kind
type Job struct {
	RecipientsRaw    string          `json:"recipients_raw"`
	Payload          json.RawMessage `json:"payload"`
	DelaySeconds     int             `json:"delay_seconds"`
	Status           Status          `json:"status"`
	Progress         Progress        `json:"progress"`
	Results          []Result        `json:"results"`
	Stats            Stats           `json:"stats"`
	ElapsedSeconds   int             `json:"elapsed_seconds"`
	CountdownSeconds int             `json:"countdown_seconds"`
}

func newJob() *Job {
	return &Job{
		Payload: json.RawMessage(`{}`),
		Status:  StatusIdle,
		Results: []Result{},
	}
}

func (j *Job) clone() *Job {
	c := *j
	c.Payload = append(json.RawMessage(nil), j.Payload...)
	c.Results = make([]Result, len(j.Results))
	copy(c.Results, j.Results)
	return &c
}

// Patch holds the fields to merge into a job. Nil fields are left unchanged;
// nested values replace the stored ones wholesale.
type Patch struct {
	RecipientsRaw    *string
	Payload          json.RawMessage
	DelaySeconds     *int
	Status           *Status
	Progress         *Progress
	Results          *[]Result
	Stats            *Stats
	ElapsedSeconds   *int
	CountdownSeconds *int
}

func (p *Patch) apply(j *Job) {
	if p.RecipientsRaw != nil {
		j.RecipientsRaw = *p.RecipientsRaw
	}
	if p.Payload != nil {
		j.Payload = append(json.RawMessage(nil), p.Payload...)
	}
	if p.DelaySeconds != nil {
		j.DelaySeconds = *p.DelaySeconds
	}
	if p.Status != nil {
		j.Status = *p.Status
	}
	if p.Progress != nil {
		j.Progress = *p.Progress
	}
	if p.Results != nil {
		j.Results = append([]Result{}, (*p.Results)...)
	}
	if p.Stats != nil {
		j.Stats = *p.Stats
	}
	if p.ElapsedSeconds != nil {
		j.ElapsedSeconds = *p.ElapsedSeconds
	}
	if p.CountdownSeconds != nil {
		j.CountdownSeconds = *p.CountdownSeconds
	}
}

// Input holds the operator-editable fields of a job
type Input struct {
	RecipientsRaw string          `json:"recipients_raw"`
	Payload       json.RawMessage `json:"payload"`
	DelaySeconds  int             `json:"delay_seconds"`
}
