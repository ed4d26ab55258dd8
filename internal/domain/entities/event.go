package entities

import (
	"time"
)

// Event is an immutable visitor-activity fact. Rows are created once by the
// ingestion service and never mutated or deleted by this core.
type Event struct {
	ID             string            `json:"id"`
	ProjectID      string            `json:"project_id"`
	OccurredAt     time.Time         `json:"occurred_at"`
	PageURL        string            `json:"page_url"`
	Path           string            `json:"path"`
	Referrer       string            `json:"referrer"`
	SessionHash    string            `json:"session_hash"`
	UserHash       string            `json:"user_hash"`
	AnonHash       string            `json:"anon_hash"`
	VisitorKey     string            `json:"visitor_key"`
	FunnelID       string            `json:"funnel_id,omitempty"`
	StepKey        string            `json:"step_key,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	IdempotencyKey string            `json:"idempotency_key"`
	CreatedAt      time.Time         `json:"created_at"`
}

// IngestEvent is the raw payload handed over by the ingestion boundary.
// Timestamps arrive as ISO-8601 UTC strings and are parsed during admission.
type IngestEvent struct {
	OccurredAt     string            `json:"occurred_at"`
	PageURL        string            `json:"page_url"`
	Path           string            `json:"path"`
	Referrer       string            `json:"referrer"`
	SessionID      string            `json:"session_id"`
	UserID         string            `json:"user_id"`
	AnonID         string            `json:"anon_id"`
	FunnelID       string            `json:"funnel_id"`
	StepKey        string            `json:"step_key"`
	Metadata       map[string]string `json:"metadata"`
	IdempotencyKey string            `json:"idempotency_key"`
}

// AdmitError reports a single event that could not be admitted.
type AdmitError struct {
	Index   int    `json:"index"`
	Message string `json:"message"`
}

// AdmitResult summarizes one ingestion batch. Accepted + Skipped +
// len(Errors) always equals Total.
type AdmitResult struct {
	Accepted int          `json:"accepted"`
	Skipped  int          `json:"skipped"`
	Total    int          `json:"total"`
	Errors   []AdmitError `json:"errors,omitempty"`
}
