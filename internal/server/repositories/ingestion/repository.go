// Package ingestion declares storage for ingestion job records.
package ingestion

import (
	"context"

	"github.com/dmitrijs2005/docvault/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, job *models.IngestionJob) (*models.IngestionJob, error)
	GetByID(ctx context.Context, id string) (*models.IngestionJob, error)
	GetForUpdate(ctx context.Context, id string) (*models.IngestionJob, error)
	List(ctx context.Context, filter models.JobFilter) ([]models.IngestionJob, int, error)
	// Update persists status, started_at, completed_at and error_message.
	Update(ctx context.Context, job *models.IngestionJob) (*models.IngestionJob, error)
	DeleteByDocument(ctx context.Context, documentID string) error
}
