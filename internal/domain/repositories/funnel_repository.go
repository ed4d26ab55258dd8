package repositories

import (
	"context"

	"github.com/kolade/sitewatch/backend/internal/domain/entities"
)

// FunnelRepository is read access to funnel definitions. Funnel CRUD is owned
// by an external collaborator; this core only reads definitions scoped to a
// project.
type FunnelRepository interface {
	// GetByID returns the funnel with its steps in normalized order, or a
	// not-found error when the funnel does not exist or belongs to a
	// different project.
	GetByID(ctx context.Context, projectID, funnelID string) (*entities.Funnel, error)
}
