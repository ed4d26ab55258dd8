package entities

import (
	"time"
)

// Funnel is an ordered sequence of steps used to measure visitor progression.
// Definitions are owned by an external CRUD collaborator; this core reads
// them and normalizes step ordering.
type Funnel struct {
	ID        string       `json:"id"`
	ProjectID string       `json:"project_id"`
	Name      string       `json:"name"`
	Steps     []FunnelStep `json:"steps"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// FunnelStep is one step of a funnel. Order values form a dense 0..N-1
// sequence assigned at normalization time; keys are unique within a funnel.
type FunnelStep struct {
	Key         string `json:"key"`
	Name        string `json:"name"`
	Order       int    `json:"order"`
	PagePattern string `json:"page_pattern,omitempty"`
}

// FunnelStepStats holds the computed conversion metrics for a single step.
type FunnelStepStats struct {
	Key            string  `json:"key"`
	Name           string  `json:"name"`
	Order          int     `json:"order"`
	Visits         int64   `json:"visits"`
	Conversions    int64   `json:"conversions"`
	DropOff        int64   `json:"drop_off"`
	ConversionRate float64 `json:"conversion_rate"`
}

// FunnelStats is the computed result for a funnel over a time range.
type FunnelStats struct {
	FunnelID      string            `json:"funnel_id"`
	TotalVisitors int64             `json:"total_visitors"`
	Steps         []FunnelStepStats `json:"steps"`
}
