package services

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/dmitrijs2005/docvault/internal/common"
	"github.com/dmitrijs2005/docvault/internal/logging"
	"github.com/dmitrijs2005/docvault/internal/server/access"
	"github.com/dmitrijs2005/docvault/internal/server/models"
	"github.com/dmitrijs2005/docvault/internal/server/repositories/repomanager"
)

// PermissionService manages per-document grants. Every operation needs
// admin level on the document.
type PermissionService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	resolver    *access.Resolver
	logger      logging.Logger
}

func NewPermissionService(db *sql.DB, m repomanager.RepositoryManager, logger logging.Logger) *PermissionService {
	return &PermissionService{
		db:          db,
		repomanager: m,
		resolver:    access.NewResolver(db, m),
		logger:      logger.With("module", "permissions"),
	}
}

// Grant sets userID's level on the document, replacing any earlier grant.
// The owner already holds every right and cannot be granted one.
func (s *PermissionService) Grant(ctx context.Context, sub access.Subject, documentID, userID string, level models.PermissionLevel) (*models.DocumentPermission, error) {
	doc, err := s.resolver.Require(ctx, sub, documentID, models.PermissionAdmin)
	if err != nil {
		return nil, err
	}

	verr := &common.ValidationError{}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		verr.Add("userId", "is required")
	} else if userID == doc.OwnerID {
		verr.Add("userId", "the document owner already has full access")
	}
	if !level.Valid() {
		verr.Add("permission", "must be one of read, write, admin")
	}
	if err := verr.OrNil(); err != nil {
		return nil, err
	}

	if _, err := s.repomanager.Users(s.db).GetByID(ctx, userID); err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.NewValidationError("userId", "user not found")
		}
		return nil, err
	}

	p, err := s.repomanager.Permissions(s.db).Upsert(ctx, &models.DocumentPermission{
		DocumentID: documentID,
		UserID:     userID,
		Permission: level,
		GrantedBy:  sub.UserID,
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info(ctx, "permission granted", "document_id", documentID, "user_id", userID, "level", level, "by", sub.UserID)
	return p, nil
}

func (s *PermissionService) List(ctx context.Context, sub access.Subject, documentID string) ([]models.DocumentPermission, error) {
	if _, err := s.resolver.Require(ctx, sub, documentID, models.PermissionAdmin); err != nil {
		return nil, err
	}
	return s.repomanager.Permissions(s.db).ListByDocument(ctx, documentID)
}

// Revoke deletes one grant of the document. A grant that does not exist,
// or belongs to another document, is common.ErrorNotFound.
func (s *PermissionService) Revoke(ctx context.Context, sub access.Subject, documentID, permissionID string) error {
	if _, err := s.resolver.Require(ctx, sub, documentID, models.PermissionAdmin); err != nil {
		return err
	}
	if err := s.repomanager.Permissions(s.db).Delete(ctx, documentID, permissionID); err != nil {
		return err
	}
	s.logger.Info(ctx, "permission revoked", "document_id", documentID, "permission_id", permissionID, "by", sub.UserID)
	return nil
}
