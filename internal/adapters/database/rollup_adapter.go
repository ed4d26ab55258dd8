package database

import (
	"context"
	"fmt"
	"time"

	"github.com/kolade/sitewatch/backend/internal/domain/entities"
	"github.com/kolade/sitewatch/backend/internal/domain/repositories"
	"github.com/kolade/sitewatch/backend/internal/infrastructure/clients/postgres"
	apperrors "github.com/kolade/sitewatch/backend/pkg/errors"
)

var rollupTables = []string{
	"rollup_overview",
	"rollup_pages",
	"rollup_visitors",
	"rollup_page_visitors",
}

// RollupAdapter implements the RollupRepository interface. Each ReplaceDay
// runs as one transaction so readers only ever see fully old or fully new
// rows for a (project, date).
type RollupAdapter struct {
	client *postgres.Client
}

// NewRollupAdapter creates a new rollup adapter
func NewRollupAdapter(client *postgres.Client) repositories.RollupRepository {
	return &RollupAdapter{client: client}
}

// ReplaceDay deletes and recomputes all four rollup variants for
// (project, day) from the raw event table inside one transaction.
func (a *RollupAdapter) ReplaceDay(ctx context.Context, projectID string, day entities.Day) error {
	start, end := day.Bounds()

	tx, err := a.client.BeginTx(ctx)
	if err != nil {
		return apperrors.NewInternalError("failed to begin rollup transaction", err)
	}
	defer tx.Rollback()

	for _, table := range rollupTables {
		deleteQuery := fmt.Sprintf("DELETE FROM %s WHERE project_id = $1 AND event_date = $2", table)
		if _, err := tx.ExecContext(ctx, deleteQuery, projectID, day.Start()); err != nil {
			return apperrors.NewInternalError(fmt.Sprintf("failed to clear %s", table), err)
		}
	}

	overviewQuery := `
		INSERT INTO rollup_overview (project_id, event_date, visits, unique_visitors, first_seen, last_seen)
		SELECT $1, $2, COUNT(*), COUNT(DISTINCT visitor_key), MIN(occurred_at), MAX(occurred_at)
		FROM events
		WHERE project_id = $1 AND occurred_at >= $3 AND occurred_at < $4
		HAVING COUNT(*) > 0
	`
	if _, err := tx.ExecContext(ctx, overviewQuery, projectID, day.Start(), start, end); err != nil {
		return apperrors.NewInternalError("failed to rebuild overview rollup", err)
	}

	pagesQuery := `
		INSERT INTO rollup_pages (project_id, event_date, path, page_url, visits, unique_visitors, first_seen, last_seen)
		SELECT $1, $2, path, page_url, COUNT(*), COUNT(DISTINCT visitor_key), MIN(occurred_at), MAX(occurred_at)
		FROM events
		WHERE project_id = $1 AND occurred_at >= $3 AND occurred_at < $4
		GROUP BY path, page_url
	`
	if _, err := tx.ExecContext(ctx, pagesQuery, projectID, day.Start(), start, end); err != nil {
		return apperrors.NewInternalError("failed to rebuild page rollup", err)
	}

	visitorsQuery := `
		INSERT INTO rollup_visitors (project_id, event_date, visitor_key, visits, first_seen, last_seen)
		SELECT $1, $2, visitor_key, COUNT(*), MIN(occurred_at), MAX(occurred_at)
		FROM events
		WHERE project_id = $1 AND occurred_at >= $3 AND occurred_at < $4
		GROUP BY visitor_key
	`
	if _, err := tx.ExecContext(ctx, visitorsQuery, projectID, day.Start(), start, end); err != nil {
		return apperrors.NewInternalError("failed to rebuild visitor rollup", err)
	}

	pageVisitorsQuery := `
		INSERT INTO rollup_page_visitors (project_id, event_date, path, page_url, visitor_key, visits, first_seen, last_seen)
		SELECT $1, $2, path, page_url, visitor_key, COUNT(*), MIN(occurred_at), MAX(occurred_at)
		FROM events
		WHERE project_id = $1 AND occurred_at >= $3 AND occurred_at < $4
		GROUP BY path, page_url, visitor_key
	`
	if _, err := tx.ExecContext(ctx, pageVisitorsQuery, projectID, day.Start(), start, end); err != nil {
		return apperrors.NewInternalError("failed to rebuild page visitor rollup", err)
	}

	if err := tx.Commit(); err != nil {
		return apperrors.NewInternalError("failed to commit rollup transaction", err)
	}

	return nil
}

// OverviewRange returns overview buckets at the requested granularity. Visits
// and unique visitors for buckets coarser than a day are sums over the daily
// rollups inside the bucket.
func (a *RollupAdapter) OverviewRange(ctx context.Context, projectID string, granularity repositories.Granularity, from, to *time.Time) ([]entities.OverviewPoint, error) {
	if !granularity.Valid() {
		return nil, apperrors.NewValidationError(fmt.Sprintf("invalid granularity: %s", granularity))
	}

	query := fmt.Sprintf(`
		SELECT date_trunc('%s', event_date) AS bucket,
		       SUM(visits), SUM(unique_visitors)
		FROM rollup_overview
		WHERE project_id = $1
	`, granularity)
	args := []interface{}{projectID}
	argCount := 2

	if from != nil {
		query += fmt.Sprintf(" AND event_date >= $%d", argCount)
		args = append(args, *from)
		argCount++
	}
	if to != nil {
		query += fmt.Sprintf(" AND event_date < $%d", argCount)
		args = append(args, *to)
	}
	query += " GROUP BY bucket ORDER BY bucket ASC"

	rows, err := a.client.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to query overview range", err)
	}
	defer rows.Close()

	points := []entities.OverviewPoint{}
	for rows.Next() {
		var p entities.OverviewPoint
		if err := rows.Scan(&p.Bucket, &p.Visits, &p.UniqueVisitors); err != nil {
			return nil, apperrors.NewInternalError("failed to scan overview point", err)
		}
		points = append(points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewInternalError("error iterating overview points", err)
	}

	return points, nil
}

// PageRange returns per-page aggregates across the range, ordered by visits
// descending.
func (a *RollupAdapter) PageRange(ctx context.Context, projectID string, filter repositories.PageFilter, from, to *time.Time) ([]entities.PageStats, error) {
	query := `
		SELECT path, page_url, SUM(visits) AS visits, SUM(unique_visitors)
		FROM rollup_pages
		WHERE project_id = $1
	`
	args := []interface{}{projectID}
	argCount := 2

	if filter.PathPrefix != "" {
		query += fmt.Sprintf(" AND path LIKE $%d", argCount)
		args = append(args, filter.PathPrefix+"%")
		argCount++
	}
	if from != nil {
		query += fmt.Sprintf(" AND event_date >= $%d", argCount)
		args = append(args, *from)
		argCount++
	}
	if to != nil {
		query += fmt.Sprintf(" AND event_date < $%d", argCount)
		args = append(args, *to)
		argCount++
	}

	query += " GROUP BY path, page_url ORDER BY visits DESC"

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	query += fmt.Sprintf(" LIMIT $%d", argCount)
	args = append(args, limit)
	argCount++

	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argCount)
		args = append(args, filter.Offset)
	}

	rows, err := a.client.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to query page range", err)
	}
	defer rows.Close()

	pages := []entities.PageStats{}
	for rows.Next() {
		var p entities.PageStats
		if err := rows.Scan(&p.Path, &p.PageURL, &p.Visits, &p.UniqueVisitors); err != nil {
			return nil, apperrors.NewInternalError("failed to scan page stats", err)
		}
		pages = append(pages, p)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewInternalError("error iterating page stats", err)
	}

	return pages, nil
}
