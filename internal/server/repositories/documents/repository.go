// Package documents declares storage for document metadata. Soft-deleted
// rows are invisible to every read except Delete.
package documents

import (
	"context"

	"github.com/dmitrijs2005/docvault/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, doc *models.Document) (*models.Document, error)
	// GetByID returns common.ErrorNotFound for unknown or soft-deleted documents.
	GetByID(ctx context.Context, id string) (*models.Document, error)
	// GetForUpdate is GetByID that also row-locks the document until the
	// surrounding transaction ends.
	GetForUpdate(ctx context.Context, id string) (*models.Document, error)
	List(ctx context.Context, filter models.DocumentFilter) ([]models.Document, int, error)
	// ListReadable returns every live document readerID can read, optionally
	// restricted to ids. An empty readerID means no ownership restriction.
	ListReadable(ctx context.Context, readerID string, ids []string) ([]models.Document, error)
	UpdateMeta(ctx context.Context, id string, upd models.DocumentUpdate) (*models.Document, error)
	UpdateFile(ctx context.Context, id string, file models.FileRef) error
	SoftDelete(ctx context.Context, id string) error
	// Delete removes the row. Dependent rows must be removed first.
	Delete(ctx context.Context, id string) error
}
