package services

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/dmitrijs2005/docvault/internal/common"
	"github.com/dmitrijs2005/docvault/internal/dbx"
	"github.com/dmitrijs2005/docvault/internal/server/access"
	"github.com/dmitrijs2005/docvault/internal/server/models"
)

const maxChangeSummaryLength = 1000

// CreateVersion stores a new revision of the document. Inside one
// transaction the document row is locked, the next number assigned, the
// version inserted, the current file pointer moved and a pending ingestion
// job created for that number.
func (s *DocumentService) CreateVersion(ctx context.Context, sub access.Subject, documentID string, file FileUpload, changeSummary string) (*models.DocumentVersion, error) {
	if _, err := s.resolver.Require(ctx, sub, documentID, models.PermissionWrite); err != nil {
		return nil, err
	}

	changeSummary = strings.TrimSpace(changeSummary)
	if len(changeSummary) > maxChangeSummaryLength {
		return nil, common.NewValidationError("changeSummary", fmt.Sprintf("must be at most %d characters", maxChangeSummaryLength))
	}

	ref, body, err := s.prepareFile(file)
	if err != nil {
		return nil, err
	}
	if err := s.store.Put(ctx, ref.StorageKey, body, putSize(ref), ref.FileType); err != nil {
		return nil, fmt.Errorf("store file: %w", err)
	}

	var version *models.DocumentVersion
	var job *models.IngestionJob
	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if _, err := s.repomanager.Documents(tx).GetForUpdate(ctx, documentID); err != nil {
			return err
		}

		versions := s.repomanager.Versions(tx)
		number, err := versions.NextNumber(ctx, documentID)
		if err != nil {
			return fmt.Errorf("next version number: %w", err)
		}

		version, err = versions.Create(ctx, &models.DocumentVersion{
			DocumentID:    documentID,
			VersionNumber: number,
			FileRef:       ref,
			AuthorID:      sub.UserID,
			ChangeSummary: changeSummary,
		})
		if err != nil {
			return fmt.Errorf("create version: %w", err)
		}

		if err := s.repomanager.Documents(tx).UpdateFile(ctx, documentID, ref); err != nil {
			return fmt.Errorf("update document file: %w", err)
		}

		job, err = s.createJob(ctx, tx, documentID, number)
		return err
	})
	if err != nil {
		s.removeBlob(ctx, ref.StorageKey)
		return nil, err
	}

	s.invalidate(ctx, documentID)
	s.logger.Info(ctx, "document version created", "document_id", documentID, "version", version.VersionNumber, "author_id", sub.UserID)
	s.publish(ctx, job)
	return version, nil
}

// ListVersions is ordered by number ascending.
func (s *DocumentService) ListVersions(ctx context.Context, sub access.Subject, documentID string) ([]models.DocumentVersion, error) {
	if _, err := s.resolver.Require(ctx, sub, documentID, models.PermissionRead); err != nil {
		return nil, err
	}
	return s.repomanager.Versions(s.db).List(ctx, documentID)
}

func (s *DocumentService) GetVersion(ctx context.Context, sub access.Subject, documentID string, number int) (*models.DocumentVersion, error) {
	if _, err := s.resolver.Require(ctx, sub, documentID, models.PermissionRead); err != nil {
		return nil, err
	}
	if number < 1 {
		return nil, common.ErrorNotFound
	}
	return s.repomanager.Versions(s.db).Get(ctx, documentID, number)
}

// LatestVersion is the highest numbered version.
func (s *DocumentService) LatestVersion(ctx context.Context, sub access.Subject, documentID string) (*models.DocumentVersion, error) {
	if _, err := s.resolver.Require(ctx, sub, documentID, models.PermissionRead); err != nil {
		return nil, err
	}
	return s.repomanager.Versions(s.db).Latest(ctx, documentID)
}

// DownloadVersion opens the file of one version. The caller closes the reader.
func (s *DocumentService) DownloadVersion(ctx context.Context, sub access.Subject, documentID string, number int) (*models.DocumentVersion, io.ReadCloser, error) {
	v, err := s.GetVersion(ctx, sub, documentID, number)
	if err != nil {
		return nil, nil, err
	}
	rc, err := s.store.Get(ctx, v.StorageKey)
	if err != nil {
		return nil, nil, err
	}
	return v, rc, nil
}
