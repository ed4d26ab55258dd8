package entities

import (
	"time"
)

// OverviewPoint is one bucket of an overview time series. For granularities
// coarser than a day, visits and unique visitors are sums over the daily
// rollups inside the bucket.
type OverviewPoint struct {
	Bucket         time.Time `json:"bucket"`
	Visits         int64     `json:"visits"`
	UniqueVisitors int64     `json:"unique_visitors"`
}

// PageStats is one row of the per-page report, aggregated across the
// requested range.
type PageStats struct {
	Path           string `json:"path"`
	PageURL        string `json:"page_url"`
	Visits         int64  `json:"visits"`
	UniqueVisitors int64  `json:"unique_visitors"`
}

// PathCount is a path with its event count, used by the realtime snapshot.
type PathCount struct {
	Path  string `json:"path"`
	Count int64  `json:"count"`
}

// RealtimeSnapshot describes the last few minutes of raw traffic. It is
// always computed from the event store, never cached.
type RealtimeSnapshot struct {
	Events      int64       `json:"events"`
	Visitors    int64       `json:"visitors"`
	TopPaths    []PathCount `json:"top_paths"`
	WindowStart time.Time   `json:"window_start"`
	GeneratedAt time.Time   `json:"generated_at"`
}

// EventPage is one page of raw events for a project.
type EventPage struct {
	Events     []*Event `json:"events"`
	TotalCount int      `json:"total_count"`
	Limit      int      `json:"limit"`
	Offset     int      `json:"offset"`
}
