// Package qahistory declares storage for asked questions and their answers.
// Every operation is scoped to the owning user.
package qahistory

import (
	"context"

	"github.com/dmitrijs2005/docvault/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, h *models.QAHistory) (*models.QAHistory, error)
	// List is ordered newest first.
	List(ctx context.Context, userID string, page models.Page) ([]models.QAHistory, int, error)
	Get(ctx context.Context, userID, id string) (*models.QAHistory, error)
	Delete(ctx context.Context, userID, id string) error
	// Clear removes all of the user's entries and reports how many went.
	Clear(ctx context.Context, userID string) (int64, error)
}
