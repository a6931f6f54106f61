package services

import (
	"bufio"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/dmitrijs2005/docvault/internal/common"
	"github.com/dmitrijs2005/docvault/internal/dbx"
	"github.com/dmitrijs2005/docvault/internal/logging"
	"github.com/dmitrijs2005/docvault/internal/server/access"
	"github.com/dmitrijs2005/docvault/internal/server/config"
	"github.com/dmitrijs2005/docvault/internal/server/events"
	"github.com/dmitrijs2005/docvault/internal/server/models"
	"github.com/dmitrijs2005/docvault/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/docvault/internal/server/storage"
	"github.com/google/uuid"
)

const maxTitleLength = 255

// FileUpload is an incoming blob. Size is the declared length in bytes.
type FileUpload struct {
	FileName    string
	ContentType string
	Size        int64
	Body        io.Reader
}

// NewDocument is the metadata supplied with an upload.
type NewDocument struct {
	Title       string
	Description string
	Tags        []string
}

// ContentInvalidator forgets derived data about a document.
type ContentInvalidator interface {
	Invalidate(ctx context.Context, documentID string) error
}

// DocumentService manages documents and their versions. Blobs go to the
// store before the metadata transaction and are removed again if it fails.
type DocumentService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	resolver    *access.Resolver
	store       storage.Store
	publisher   events.Publisher
	cache       ContentInvalidator
	logger      logging.Logger
	maxSize     int64
	allowed     []string
}

func NewDocumentService(db *sql.DB, m repomanager.RepositoryManager, store storage.Store, publisher events.Publisher,
	cache ContentInvalidator, logger logging.Logger, cfg *config.Config) *DocumentService {
	return &DocumentService{
		db:          db,
		repomanager: m,
		resolver:    access.NewResolver(db, m),
		store:       store,
		publisher:   publisher,
		cache:       cache,
		logger:      logger.With("module", "documents"),
		maxSize:     cfg.MaxUploadSize,
		allowed:     cfg.AllowedMIMETypes,
	}
}

// Upload stores the file and creates the document with version 1 and a
// pending ingestion job in one transaction.
func (s *DocumentService) Upload(ctx context.Context, sub access.Subject, in NewDocument, file FileUpload) (*models.Document, error) {
	if !sub.Role.CanUpload() {
		return nil, common.ErrorForbidden
	}

	ref, body, err := s.prepareFile(file)
	if err != nil {
		return nil, err
	}
	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" {
		in.Title = ref.FileName
	}
	if len(in.Title) > maxTitleLength {
		return nil, common.NewValidationError("title", fmt.Sprintf("must be at most %d characters", maxTitleLength))
	}

	if err := s.store.Put(ctx, ref.StorageKey, body, putSize(ref), ref.FileType); err != nil {
		return nil, fmt.Errorf("store file: %w", err)
	}

	var doc *models.Document
	var job *models.IngestionJob
	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		var err error
		doc, err = s.repomanager.Documents(tx).Create(ctx, &models.Document{
			Title:       in.Title,
			Description: strings.TrimSpace(in.Description),
			FileRef:     ref,
			OwnerID:     sub.UserID,
			Tags:        common.NormalizeTags(in.Tags),
		})
		if err != nil {
			return fmt.Errorf("create document: %w", err)
		}

		if _, err = s.repomanager.Versions(tx).Create(ctx, &models.DocumentVersion{
			DocumentID:    doc.ID,
			VersionNumber: 1,
			FileRef:       ref,
			AuthorID:      sub.UserID,
			ChangeSummary: "Initial version",
		}); err != nil {
			return fmt.Errorf("create version: %w", err)
		}

		job, err = s.createJob(ctx, tx, doc.ID, 1)
		return err
	})
	if err != nil {
		s.removeBlob(ctx, ref.StorageKey)
		return nil, err
	}

	s.logger.Info(ctx, "document uploaded", "document_id", doc.ID, "owner_id", sub.UserID, "size", ref.FileSize)
	s.publish(ctx, job)
	return doc, nil
}

// List returns documents the subject can read. Admins see every document.
func (s *DocumentService) List(ctx context.Context, sub access.Subject, filter models.DocumentFilter) (models.Paged[models.Document], error) {
	filter.ReaderID = readerID(sub)
	filter.Tag = strings.ToLower(strings.TrimSpace(filter.Tag))
	filter.Search = strings.TrimSpace(filter.Search)

	items, total, err := s.repomanager.Documents(s.db).List(ctx, filter)
	if err != nil {
		return models.Paged[models.Document]{}, err
	}
	return models.NewPaged(items, total, filter.Page), nil
}

func (s *DocumentService) Get(ctx context.Context, sub access.Subject, id string) (*models.Document, error) {
	return s.resolver.Require(ctx, sub, id, models.PermissionRead)
}

func (s *DocumentService) Update(ctx context.Context, sub access.Subject, id string, upd models.DocumentUpdate) (*models.Document, error) {
	if _, err := s.resolver.Require(ctx, sub, id, models.PermissionWrite); err != nil {
		return nil, err
	}

	if upd.Title != nil {
		title := strings.TrimSpace(*upd.Title)
		switch {
		case title == "":
			return nil, common.NewValidationError("title", "must not be empty")
		case len(title) > maxTitleLength:
			return nil, common.NewValidationError("title", fmt.Sprintf("must be at most %d characters", maxTitleLength))
		}
		upd.Title = &title
	}
	if upd.Tags != nil {
		upd.Tags = common.NormalizeTags(upd.Tags)
	}

	return s.repomanager.Documents(s.db).UpdateMeta(ctx, id, upd)
}

// Delete soft-deletes the document, or with permanent removes it with all
// versions, grants and jobs. Stored blobs are then deleted best effort.
func (s *DocumentService) Delete(ctx context.Context, sub access.Subject, id string, permanent bool) error {
	if _, err := s.resolver.Require(ctx, sub, id, models.PermissionAdmin); err != nil {
		return err
	}

	if !permanent {
		if err := s.repomanager.Documents(s.db).SoftDelete(ctx, id); err != nil {
			return err
		}
		s.invalidate(ctx, id)
		s.logger.Info(ctx, "document deleted", "document_id", id, "by", sub.UserID)
		return nil
	}

	var keys []string
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		doc, err := s.repomanager.Documents(tx).GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := s.repomanager.Ingestion(tx).DeleteByDocument(ctx, id); err != nil {
			return fmt.Errorf("delete jobs: %w", err)
		}
		if err := s.repomanager.Permissions(tx).DeleteByDocument(ctx, id); err != nil {
			return fmt.Errorf("delete permissions: %w", err)
		}
		if keys, err = s.repomanager.Versions(tx).DeleteByDocument(ctx, id); err != nil {
			return fmt.Errorf("delete versions: %w", err)
		}
		keys = append(keys, doc.StorageKey)
		return s.repomanager.Documents(tx).Delete(ctx, id)
	})
	if err != nil {
		return err
	}

	seen := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		if _, dup := seen[k]; dup || k == "" {
			continue
		}
		seen[k] = struct{}{}
		s.removeBlob(ctx, k)
	}
	s.invalidate(ctx, id)
	s.logger.Info(ctx, "document purged", "document_id", id, "by", sub.UserID, "blobs", len(seen))
	return nil
}

// Download opens the current file. The caller closes the reader.
func (s *DocumentService) Download(ctx context.Context, sub access.Subject, id string) (*models.FileRef, io.ReadCloser, error) {
	doc, err := s.resolver.Require(ctx, sub, id, models.PermissionRead)
	if err != nil {
		return nil, nil, err
	}
	rc, err := s.store.Get(ctx, doc.StorageKey)
	if err != nil {
		return nil, nil, err
	}
	return &doc.FileRef, rc, nil
}

// --- helpers below ---

// prepareFile validates the upload and returns its stored form plus a
// reader positioned at the start of the content.
func (s *DocumentService) prepareFile(f FileUpload) (models.FileRef, io.Reader, error) {
	if f.Body == nil {
		return models.FileRef{}, nil, common.NewValidationError("file", "is required")
	}
	if f.Size > s.maxSize {
		return models.FileRef{}, nil, common.ErrorFileTooLarge
	}

	br := bufio.NewReaderSize(f.Body, 512)
	head, err := br.Peek(512)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
		return models.FileRef{}, nil, fmt.Errorf("read upload: %w", err)
	}
	if len(head) == 0 {
		return models.FileRef{}, nil, common.NewValidationError("file", "must not be empty")
	}

	name := storage.SanitizeFilename(f.FileName)
	mediaType := storage.DetectType(f.ContentType, name, head)
	if !storage.TypeAllowed(mediaType, s.allowed) {
		return models.FileRef{}, nil, common.ErrorFileTypeNotAllowed
	}

	var body io.Reader = br
	if f.Size > 0 {
		body = io.LimitReader(br, f.Size)
	}

	ref := models.FileRef{
		StorageKey: storage.NewKey(),
		FileName:   name,
		FileType:   mediaType,
		FileSize:   f.Size,
	}
	return ref, &maxReader{r: body, left: s.maxSize}, nil
}

func (s *DocumentService) createJob(ctx context.Context, tx dbx.DBTX, documentID string, version int) (*models.IngestionJob, error) {
	job := &models.IngestionJob{DocumentID: documentID, Status: models.JobPending}
	if version > 0 {
		job.VersionNumber = &version
	}
	j, err := s.repomanager.Ingestion(tx).Create(ctx, job)
	if err != nil {
		return nil, fmt.Errorf("create ingestion job: %w", err)
	}
	return j, nil
}

func (s *DocumentService) publish(ctx context.Context, job *models.IngestionJob) {
	if job == nil {
		return
	}
	if err := s.publisher.PublishJobEvent(ctx, events.NewJobEvent(job)); err != nil {
		s.logger.Warn(ctx, "failed to publish job event", "job_id", job.ID, "error", err)
	}
}

func (s *DocumentService) removeBlob(ctx context.Context, key string) {
	if err := s.store.Delete(context.WithoutCancel(ctx), key); err != nil {
		s.logger.Warn(ctx, "failed to delete blob", "key", key, "error", err)
	}
}

func (s *DocumentService) invalidate(ctx context.Context, documentID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, documentID); err != nil {
		s.logger.Warn(ctx, "failed to invalidate content cache", "document_id", documentID, "error", err)
	}
}

// putSize is the length handed to the store; -1 means unknown.
func putSize(ref models.FileRef) int64 {
	if ref.FileSize > 0 {
		return ref.FileSize
	}
	return -1
}

// readerID is the ownership restriction for listings; admins have none.
func readerID(sub access.Subject) string {
	if sub.Role == models.RoleAdmin {
		return ""
	}
	return sub.UserID
}

func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// parsedIDs keeps the ids that are well-formed uuids; the rest cannot match
// any row.
func parsedIDs(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if validID(id) {
			out = append(out, id)
		}
	}
	return out
}

// maxReader fails once more than left bytes have been read, so an upload
// with an understated or unknown size cannot exceed the limit.
type maxReader struct {
	r    io.Reader
	left int64
}

func (m *maxReader) Read(p []byte) (int, error) {
	if m.left < 0 {
		return 0, common.ErrorFileTooLarge
	}
	if int64(len(p)) > m.left+1 {
		p = p[:m.left+1]
	}
	n, err := m.r.Read(p)
	m.left -= int64(n)
	if m.left < 0 {
		return n, common.ErrorFileTooLarge
	}
	return n, err
}
