package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"

	"github.com/kolade/sitewatch/backend/internal/domain/entities"
	"github.com/kolade/sitewatch/backend/internal/domain/repositories"
	"github.com/kolade/sitewatch/backend/internal/infrastructure/clients/postgres"
	apperrors "github.com/kolade/sitewatch/backend/pkg/errors"
)

// EventAdapter implements the EventRepository interface against the Postgres
// events table.
type EventAdapter struct {
	client *postgres.Client
	db     *goqu.Database
}

// NewEventAdapter creates a new event adapter
func NewEventAdapter(client *postgres.Client) repositories.EventRepository {
	return &EventAdapter{
		client: client,
		db:     goqu.New("postgres", client.DB()),
	}
}

// InsertBatch inserts events in one statement with conflict-skip on
// (project_id, idempotency_key). The returned slice holds only the rows that
// were actually inserted; duplicates are silently omitted.
func (a *EventAdapter) InsertBatch(ctx context.Context, events []*entities.Event) ([]*entities.Event, error) {
	if len(events) == 0 {
		return nil, nil
	}

	records := make([]interface{}, 0, len(events))
	byID := make(map[string]*entities.Event, len(events))
	for _, e := range events {
		metadata := "{}"
		if len(e.Metadata) > 0 {
			raw, err := json.Marshal(e.Metadata)
			if err != nil {
				return nil, apperrors.NewInternalError("failed to encode event metadata", err)
			}
			metadata = string(raw)
		}

		records = append(records, goqu.Record{
			"id":              e.ID,
			"project_id":      e.ProjectID,
			"occurred_at":     e.OccurredAt,
			"page_url":        e.PageURL,
			"path":            e.Path,
			"referrer":        e.Referrer,
			"session_hash":    e.SessionHash,
			"user_hash":       e.UserHash,
			"anon_hash":       e.AnonHash,
			"visitor_key":     e.VisitorKey,
			"funnel_id":       sql.NullString{String: e.FunnelID, Valid: e.FunnelID != ""},
			"step_key":        sql.NullString{String: e.StepKey, Valid: e.StepKey != ""},
			"metadata":        metadata,
			"idempotency_key": e.IdempotencyKey,
			"created_at":      e.CreatedAt,
		})
		byID[e.ID] = e
	}

	query, args, err := a.db.Insert("events").
		Rows(records...).
		OnConflict(goqu.DoNothing()).
		Returning("id").
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build event insert query", err)
	}

	rows, err := a.client.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to insert events", err)
	}
	defer rows.Close()

	var inserted []*entities.Event
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, apperrors.NewInternalError("failed to scan inserted event id", err)
		}
		if e, ok := byID[id]; ok {
			inserted = append(inserted, e)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewInternalError("error iterating inserted events", err)
	}

	return inserted, nil
}

// List returns a page of raw events for a project, newest first.
func (a *EventAdapter) List(ctx context.Context, projectID string, filter repositories.EventFilter) (*entities.EventPage, error) {
	ds := a.db.From("events").Where(goqu.Ex{"project_id": projectID})
	if filter.From != nil {
		ds = ds.Where(goqu.I("occurred_at").Gte(*filter.From))
	}
	if filter.To != nil {
		ds = ds.Where(goqu.I("occurred_at").Lt(*filter.To))
	}

	countSQL, countArgs, err := ds.Select(goqu.COUNT("*")).ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build event count query", err)
	}

	var total int
	if err := a.client.DB().QueryRowContext(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, apperrors.NewInternalError("failed to count events", err)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}

	listDS := ds.Select(
		"id", "project_id", "occurred_at", "page_url", "path", "referrer",
		"session_hash", "user_hash", "anon_hash", "visitor_key",
		"funnel_id", "step_key", "metadata", "idempotency_key", "created_at",
	).Order(goqu.I("occurred_at").Desc()).Limit(uint(limit))
	if filter.Offset > 0 {
		listDS = listDS.Offset(uint(filter.Offset))
	}

	query, args, err := listDS.ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build event list query", err)
	}

	rows, err := a.client.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to list events", err)
	}
	defer rows.Close()

	events := []*entities.Event{}
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewInternalError("error iterating events", err)
	}

	return &entities.EventPage{
		Events:     events,
		TotalCount: total,
		Limit:      limit,
		Offset:     filter.Offset,
	}, nil
}

// DaysWithEvents returns the distinct calendar dates with events, ascending.
func (a *EventAdapter) DaysWithEvents(ctx context.Context, projectID string, from, to *time.Time) ([]entities.Day, error) {
	query := `
		SELECT DISTINCT to_char(occurred_at AT TIME ZONE 'UTC', 'YYYY-MM-DD') AS event_day
		FROM events
		WHERE project_id = $1
	`
	args := []interface{}{projectID}
	argCount := 2

	if from != nil {
		query += fmt.Sprintf(" AND occurred_at >= $%d", argCount)
		args = append(args, *from)
		argCount++
	}
	if to != nil {
		query += fmt.Sprintf(" AND occurred_at < $%d", argCount)
		args = append(args, *to)
	}
	query += " ORDER BY event_day ASC"

	rows, err := a.client.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to query event days", err)
	}
	defer rows.Close()

	var days []entities.Day
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, apperrors.NewInternalError("failed to scan event day", err)
		}
		day, err := entities.ParseDay(raw)
		if err != nil {
			return nil, apperrors.NewInternalError("invalid event day from store", err)
		}
		days = append(days, day)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewInternalError("error iterating event days", err)
	}

	return days, nil
}

// RealtimeSnapshot aggregates raw events since the given instant. It reads
// the event table directly so the window always reflects the latest writes.
func (a *EventAdapter) RealtimeSnapshot(ctx context.Context, projectID string, since time.Time) (*entities.RealtimeSnapshot, error) {
	snapshot := &entities.RealtimeSnapshot{
		WindowStart: since,
		GeneratedAt: time.Now().UTC(),
	}

	totalsQuery := `
		SELECT COUNT(*), COUNT(DISTINCT visitor_key)
		FROM events
		WHERE project_id = $1 AND occurred_at >= $2
	`
	err := a.client.DB().QueryRowContext(ctx, totalsQuery, projectID, since).
		Scan(&snapshot.Events, &snapshot.Visitors)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to query realtime totals", err)
	}

	pathsQuery := `
		SELECT path, COUNT(*) AS hits
		FROM events
		WHERE project_id = $1 AND occurred_at >= $2
		GROUP BY path
		ORDER BY hits DESC
		LIMIT 10
	`
	rows, err := a.client.DB().QueryContext(ctx, pathsQuery, projectID, since)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to query realtime paths", err)
	}
	defer rows.Close()

	for rows.Next() {
		var pc entities.PathCount
		if err := rows.Scan(&pc.Path, &pc.Count); err != nil {
			return nil, apperrors.NewInternalError("failed to scan realtime path", err)
		}
		snapshot.TopPaths = append(snapshot.TopPaths, pc)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewInternalError("error iterating realtime paths", err)
	}

	return snapshot, nil
}

// CountStepVisitors returns distinct visitor counts per step key for one
// funnel. The visitor key stored at admission is reused so funnel counts
// resolve identity exactly like the rollups do.
func (a *EventAdapter) CountStepVisitors(ctx context.Context, projectID, funnelID string, from, to *time.Time) (map[string]int64, error) {
	query := `
		SELECT step_key, COUNT(DISTINCT visitor_key)
		FROM events
		WHERE project_id = $1 AND funnel_id = $2 AND step_key IS NOT NULL
	`
	args := []interface{}{projectID, funnelID}
	argCount := 3

	if from != nil {
		query += fmt.Sprintf(" AND occurred_at >= $%d", argCount)
		args = append(args, *from)
		argCount++
	}
	if to != nil {
		query += fmt.Sprintf(" AND occurred_at < $%d", argCount)
		args = append(args, *to)
	}
	query += " GROUP BY step_key"

	rows, err := a.client.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to query step visitors", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var stepKey string
		var count int64
		if err := rows.Scan(&stepKey, &count); err != nil {
			return nil, apperrors.NewInternalError("failed to scan step visitors", err)
		}
		counts[stepKey] = count
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewInternalError("error iterating step visitors", err)
	}

	return counts, nil
}

func scanEvent(rows *sql.Rows) (*entities.Event, error) {
	e := &entities.Event{}
	var funnelID, stepKey sql.NullString
	var metadata []byte

	err := rows.Scan(
		&e.ID,
		&e.ProjectID,
		&e.OccurredAt,
		&e.PageURL,
		&e.Path,
		&e.Referrer,
		&e.SessionHash,
		&e.UserHash,
		&e.AnonHash,
		&e.VisitorKey,
		&funnelID,
		&stepKey,
		&metadata,
		&e.IdempotencyKey,
		&e.CreatedAt,
	)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to scan event", err)
	}

	e.FunnelID = funnelID.String
	e.StepKey = stepKey.String
	if len(metadata) > 0 && string(metadata) != "{}" {
		if err := json.Unmarshal(metadata, &e.Metadata); err != nil {
			return nil, apperrors.NewInternalError("failed to decode event metadata", err)
		}
	}

	return e, nil
}
