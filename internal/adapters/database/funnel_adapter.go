package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/doug-martin/goqu/v9"

	"github.com/kolade/sitewatch/backend/internal/domain/entities"
	"github.com/kolade/sitewatch/backend/internal/domain/repositories"
	"github.com/kolade/sitewatch/backend/internal/infrastructure/clients/postgres"
	apperrors "github.com/kolade/sitewatch/backend/pkg/errors"
)

// FunnelAdapter implements read access to funnel definitions. Funnel CRUD is
// owned by an external collaborator; this adapter only reads.
type FunnelAdapter struct {
	client *postgres.Client
	db     *goqu.Database
}

// NewFunnelAdapter creates a new funnel adapter
func NewFunnelAdapter(client *postgres.Client) repositories.FunnelRepository {
	return &FunnelAdapter{
		client: client,
		db:     goqu.New("postgres", client.DB()),
	}
}

// GetByID returns the funnel with steps in normalized order, or a not-found
// error when the funnel does not exist or belongs to a different project.
func (a *FunnelAdapter) GetByID(ctx context.Context, projectID, funnelID string) (*entities.Funnel, error) {
	query, args, err := a.db.Select("id", "project_id", "name", "created_at", "updated_at").
		From("funnels").
		Where(goqu.Ex{"id": funnelID, "project_id": projectID}).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build funnel query", err)
	}

	funnel := &entities.Funnel{}
	err = a.client.DB().QueryRowContext(ctx, query, args...).Scan(
		&funnel.ID,
		&funnel.ProjectID,
		&funnel.Name,
		&funnel.CreatedAt,
		&funnel.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("funnel %s not found for project %s", funnelID, projectID))
	}
	if err != nil {
		return nil, apperrors.NewInternalError("failed to get funnel", err)
	}

	steps, err := a.listSteps(ctx, funnelID)
	if err != nil {
		return nil, err
	}
	funnel.Steps = steps

	return funnel, nil
}

func (a *FunnelAdapter) listSteps(ctx context.Context, funnelID string) ([]entities.FunnelStep, error) {
	query, args, err := a.db.Select("step_key", "name", "step_order", "page_pattern").
		From("funnel_steps").
		Where(goqu.Ex{"funnel_id": funnelID}).
		Order(goqu.I("step_order").Asc()).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build funnel steps query", err)
	}

	rows, err := a.client.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to list funnel steps", err)
	}
	defer rows.Close()

	steps := []entities.FunnelStep{}
	for rows.Next() {
		var step entities.FunnelStep
		var pattern sql.NullString
		if err := rows.Scan(&step.Key, &step.Name, &step.Order, &pattern); err != nil {
			return nil, apperrors.NewInternalError("failed to scan funnel step", err)
		}
		step.PagePattern = pattern.String
		steps = append(steps, step)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewInternalError("error iterating funnel steps", err)
	}

	return steps, nil
}
