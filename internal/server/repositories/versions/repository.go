// Package versions declares storage for the numbered revisions of a document.
package versions

import (
	"context"

	"github.com/dmitrijs2005/docvault/internal/server/models"
)

type Repository interface {
	// NextNumber returns max(version_number)+1 for the document, or 1.
	// Call it with the document row locked so concurrent writers serialise.
	NextNumber(ctx context.Context, documentID string) (int, error)
	Create(ctx context.Context, v *models.DocumentVersion) (*models.DocumentVersion, error)
	// List is ordered by version number ascending.
	List(ctx context.Context, documentID string) ([]models.DocumentVersion, error)
	Get(ctx context.Context, documentID string, number int) (*models.DocumentVersion, error)
	Latest(ctx context.Context, documentID string) (*models.DocumentVersion, error)
	// DeleteByDocument removes all versions and returns their storage keys.
	DeleteByDocument(ctx context.Context, documentID string) ([]string, error)
}
