package services

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/dmitrijs2005/docvault/internal/common"
	"github.com/dmitrijs2005/docvault/internal/dbx"
	"github.com/dmitrijs2005/docvault/internal/logging"
	"github.com/dmitrijs2005/docvault/internal/server/access"
	"github.com/dmitrijs2005/docvault/internal/server/events"
	"github.com/dmitrijs2005/docvault/internal/server/models"
	"github.com/dmitrijs2005/docvault/internal/server/repositories/repomanager"
)

// jobNow is a seam for tests.
var jobNow = func() time.Time { return time.Now().UTC() }

// IngestionService tracks processing jobs. Jobs are driven by hand; nothing
// here processes documents.
type IngestionService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	resolver    *access.Resolver
	publisher   events.Publisher
	logger      logging.Logger
}

func NewIngestionService(db *sql.DB, m repomanager.RepositoryManager, publisher events.Publisher, logger logging.Logger) *IngestionService {
	return &IngestionService{
		db:          db,
		repomanager: m,
		resolver:    access.NewResolver(db, m),
		publisher:   publisher,
		logger:      logger.With("module", "ingestion"),
	}
}

// ApplyStatus moves job to status. Transitions are permissive: any valid
// status may follow any other, which is how a finished job is retried.
//
//	processing -> started_at = t
//	completed  -> completed_at = t
//	failed     -> completed_at = t, error_message = msg when given
//	pending    -> timestamps and error untouched
func ApplyStatus(job *models.IngestionJob, status models.JobStatus, errorMessage *string, t time.Time) error {
	if !status.Valid() {
		return common.NewValidationError("status", "must be one of pending, processing, completed, failed")
	}
	job.Status = status
	switch status {
	case models.JobProcessing:
		job.StartedAt = &t
	case models.JobCompleted:
		job.CompletedAt = &t
	case models.JobFailed:
		job.CompletedAt = &t
		if errorMessage != nil && strings.TrimSpace(*errorMessage) != "" {
			msg := strings.TrimSpace(*errorMessage)
			job.ErrorMessage = &msg
		}
	}
	return nil
}

// Create starts a manual job for the document's current file.
func (s *IngestionService) Create(ctx context.Context, sub access.Subject, documentID string) (*models.IngestionJob, error) {
	if strings.TrimSpace(documentID) == "" {
		return nil, common.NewValidationError("documentId", "is required")
	}
	if _, err := s.resolver.Require(ctx, sub, documentID, models.PermissionWrite); err != nil {
		return nil, err
	}

	job, err := s.repomanager.Ingestion(s.db).Create(ctx, &models.IngestionJob{
		DocumentID: documentID,
		Status:     models.JobPending,
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info(ctx, "ingestion job created", "job_id", job.ID, "document_id", documentID)
	s.publish(ctx, job)
	return job, nil
}

// Get needs read access to the job's document.
func (s *IngestionService) Get(ctx context.Context, sub access.Subject, id string) (*models.IngestionJob, error) {
	job, err := s.repomanager.Ingestion(s.db).GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := s.resolver.Require(ctx, sub, job.DocumentID, models.PermissionRead); err != nil {
		return nil, err
	}
	return job, nil
}

// List returns every job for admins and jobs of readable documents for
// everyone else.
func (s *IngestionService) List(ctx context.Context, sub access.Subject, filter models.JobFilter) (models.Paged[models.IngestionJob], error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return models.Paged[models.IngestionJob]{}, common.NewValidationError("status", "must be one of pending, processing, completed, failed")
	}
	if filter.DocumentID != "" && !validID(filter.DocumentID) {
		return models.Paged[models.IngestionJob]{}, common.NewValidationError("documentId", "must be a valid id")
	}
	filter.ReaderID = readerID(sub)

	items, total, err := s.repomanager.Ingestion(s.db).List(ctx, filter)
	if err != nil {
		return models.Paged[models.IngestionJob]{}, err
	}
	return models.NewPaged(items, total, filter.Page), nil
}

// ListForDocument lists one document's jobs, newest first.
func (s *IngestionService) ListForDocument(ctx context.Context, sub access.Subject, documentID string, page models.Page) (models.Paged[models.IngestionJob], error) {
	if _, err := s.resolver.Require(ctx, sub, documentID, models.PermissionRead); err != nil {
		return models.Paged[models.IngestionJob]{}, err
	}
	return s.List(ctx, sub, models.JobFilter{DocumentID: documentID, Page: page})
}

// UpdateStatus applies a status change under a row lock. It needs write
// access to the job's document.
func (s *IngestionService) UpdateStatus(ctx context.Context, sub access.Subject, id string, status models.JobStatus, errorMessage *string) (*models.IngestionJob, error) {
	if !status.Valid() {
		return nil, common.NewValidationError("status", "must be one of pending, processing, completed, failed")
	}

	var job *models.IngestionJob
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		jobs := s.repomanager.Ingestion(tx)
		current, err := jobs.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if _, err := s.resolver.WithDB(tx).Require(ctx, sub, current.DocumentID, models.PermissionWrite); err != nil {
			return err
		}
		if err := ApplyStatus(current, status, errorMessage, jobNow()); err != nil {
			return err
		}
		job, err = jobs.Update(ctx, current)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info(ctx, "ingestion job updated", "job_id", job.ID, "status", job.Status)
	s.publish(ctx, job)
	return job, nil
}

func (s *IngestionService) publish(ctx context.Context, job *models.IngestionJob) {
	if err := s.publisher.PublishJobEvent(ctx, events.NewJobEvent(job)); err != nil {
		s.logger.Warn(ctx, "failed to publish job event", "job_id", job.ID, "error", err)
	}
}
