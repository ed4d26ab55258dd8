package repositories

import (
	"context"
	"time"

	"github.com/kolade/sitewatch/backend/internal/domain/entities"
)

// Granularity selects the bucket size of the overview time series.
type Granularity string

const (
	GranularityDay   Granularity = "day"
	GranularityWeek  Granularity = "week"
	GranularityMonth Granularity = "month"
)

// Valid reports whether the granularity is one of the supported buckets.
func (g Granularity) Valid() bool {
	switch g {
	case GranularityDay, GranularityWeek, GranularityMonth:
		return true
	}
	return false
}

// PageFilter narrows the per-page report.
type PageFilter struct {
	PathPrefix string
	Limit      int
	Offset     int
}

// RollupRepository owns the four derived aggregate tables. Rows for a given
// (project, date) are only ever replaced wholesale inside one transaction,
// never patched.
type RollupRepository interface {
	// ReplaceDay atomically deletes and recomputes all four rollup variants
	// for (project, day) from the raw event table. The delete and the four
	// recomputed inserts commit together or not at all.
	ReplaceDay(ctx context.Context, projectID string, day entities.Day) error

	// OverviewRange returns overview buckets for the range at the requested
	// granularity, ascending by bucket.
	OverviewRange(ctx context.Context, projectID string, granularity Granularity, from, to *time.Time) ([]entities.OverviewPoint, error)

	// PageRange returns per-page aggregates for the range ordered by visits
	// descending.
	PageRange(ctx context.Context, projectID string, filter PageFilter, from, to *time.Time) ([]entities.PageStats, error)
}
