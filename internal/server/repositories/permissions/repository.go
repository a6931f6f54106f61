// Package permissions declares storage for per-document grants. There is at
// most one row per (document, user).
package permissions

import (
	"context"

	"github.com/dmitrijs2005/docvault/internal/server/models"
)

type Repository interface {
	// Get returns common.ErrorNotFound when the user holds no grant.
	Get(ctx context.Context, documentID, userID string) (*models.DocumentPermission, error)
	// Upsert inserts the grant or replaces the level of the existing one.
	Upsert(ctx context.Context, p *models.DocumentPermission) (*models.DocumentPermission, error)
	ListByDocument(ctx context.Context, documentID string) ([]models.DocumentPermission, error)
	// Delete removes permission id belonging to documentID; a missing row is
	// common.ErrorNotFound.
	Delete(ctx context.Context, documentID, id string) error
	DeleteByDocument(ctx context.Context, documentID string) error
}
