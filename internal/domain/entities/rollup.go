package entities

import (
	"time"
)

// dayLayout is the canonical calendar-date format used for rollup keys.
const dayLayout = "2006-01-02"

// Day is a UTC calendar date. It is used as the rollup grouping key and as a
// map key in the pending-aggregation set, so it is kept as a plain sortable
// string rather than a time.Time.
type Day string

// DayOf returns the UTC calendar date of a timestamp.
func DayOf(t time.Time) Day {
	return Day(t.UTC().Format(dayLayout))
}

// ParseDay parses a calendar date in 2006-01-02 form.
func ParseDay(s string) (Day, error) {
	t, err := time.Parse(dayLayout, s)
	if err != nil {
		return "", err
	}
	return DayOf(t), nil
}

// Bounds returns the half-open UTC interval [start, end) covered by the day.
func (d Day) Bounds() (time.Time, time.Time) {
	start, _ := time.ParseInLocation(dayLayout, string(d), time.UTC)
	return start, start.AddDate(0, 0, 1)
}

// Start returns UTC midnight at the beginning of the day.
func (d Day) Start() time.Time {
	start, _ := d.Bounds()
	return start
}

func (d Day) String() string {
	return string(d)
}

// OverviewRollup is the whole-day traffic aggregate for a project.
type OverviewRollup struct {
	ProjectID      string    `json:"project_id"`
	EventDate      Day       `json:"event_date"`
	Visits         int64     `json:"visits"`
	UniqueVisitors int64     `json:"unique_visitors"`
	FirstSeen      time.Time `json:"first_seen"`
	LastSeen       time.Time `json:"last_seen"`
}

// PageRollup is the per-page daily aggregate.
type PageRollup struct {
	ProjectID      string    `json:"project_id"`
	EventDate      Day       `json:"event_date"`
	Path           string    `json:"path"`
	PageURL        string    `json:"page_url"`
	Visits         int64     `json:"visits"`
	UniqueVisitors int64     `json:"unique_visitors"`
	FirstSeen      time.Time `json:"first_seen"`
	LastSeen       time.Time `json:"last_seen"`
}

// VisitorRollup is the per-visitor daily aggregate.
type VisitorRollup struct {
	ProjectID  string    `json:"project_id"`
	EventDate  Day       `json:"event_date"`
	VisitorKey string    `json:"visitor_key"`
	Visits     int64     `json:"visits"`
	FirstSeen  time.Time `json:"first_seen"`
	LastSeen   time.Time `json:"last_seen"`
}

// PageVisitorRollup is the per-page, per-visitor daily aggregate.
type PageVisitorRollup struct {
	ProjectID  string    `json:"project_id"`
	EventDate  Day       `json:"event_date"`
	Path       string    `json:"path"`
	PageURL    string    `json:"page_url"`
	VisitorKey string    `json:"visitor_key"`
	Visits     int64     `json:"visits"`
	FirstSeen  time.Time `json:"first_seen"`
	LastSeen   time.Time `json:"last_seen"`
}

// RollupEvent announces that a batch of daily rollups for a project has been
// rebuilt. It is published on the event bus after the project's cache has
// been invalidated locally, so sibling processes can drop their own cached
// reads.
type RollupEvent struct {
	ID          string    `json:"id"`
	ProjectID   string    `json:"project_id"`
	Dates       []Day     `json:"dates"`
	CompletedAt time.Time `json:"completed_at"`
}
