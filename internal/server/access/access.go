// Package access decides whether a user may act on a document. It is the
// only place that knows about the admin-role and owner overrides.
package access

import (
	"context"
	"database/sql"
	"errors"

	"github.com/dmitrijs2005/docvault/internal/common"
	"github.com/dmitrijs2005/docvault/internal/dbx"
	"github.com/dmitrijs2005/docvault/internal/server/models"
	"github.com/dmitrijs2005/docvault/internal/server/repositories/repomanager"
)

// Subject is the acting user as far as access decisions are concerned.
type Subject struct {
	UserID string
	Role   models.Role
}

// Decide is the access rule. grant is the user's stored permission on the
// document or nil when there is none.
//
//	admin role        -> allow
//	document owner    -> allow
//	no grant          -> deny
//	grant             -> allow iff rank(grant) >= rank(required)
func Decide(sub Subject, ownerID string, grant *models.DocumentPermission, required models.PermissionLevel) bool {
	if sub.Role == models.RoleAdmin {
		return true
	}
	if sub.UserID != "" && sub.UserID == ownerID {
		return true
	}
	if grant == nil || grant.UserID != sub.UserID {
		return false
	}
	return grant.Permission.Rank() >= required.Rank()
}

// Resolver loads what Decide needs from the database.
type Resolver struct {
	db dbx.DBTX
	m  repomanager.RepositoryManager
}

func NewResolver(db *sql.DB, m repomanager.RepositoryManager) *Resolver {
	return &Resolver{db: db, m: m}
}

// WithDB returns a resolver that reads through db, typically an open
// transaction.
func (r *Resolver) WithDB(db dbx.DBTX) *Resolver {
	return &Resolver{db: db, m: r.m}
}

// HasPermission reports whether sub holds required on the document. Unknown
// and soft-deleted documents return common.ErrorNotFound.
func (r *Resolver) HasPermission(ctx context.Context, sub Subject, documentID string, required models.PermissionLevel) (bool, error) {
	_, ok, err := r.Check(ctx, sub, documentID, required)
	return ok, err
}

// Check is HasPermission that also returns the loaded document.
func (r *Resolver) Check(ctx context.Context, sub Subject, documentID string, required models.PermissionLevel) (*models.Document, bool, error) {
	doc, err := r.m.Documents(r.db).GetByID(ctx, documentID)
	if err != nil {
		return nil, false, err
	}
	ok, err := r.Allowed(ctx, sub, doc, required)
	return doc, ok, err
}

// Allowed decides for an already loaded document.
func (r *Resolver) Allowed(ctx context.Context, sub Subject, doc *models.Document, required models.PermissionLevel) (bool, error) {
	if sub.Role == models.RoleAdmin || sub.UserID == doc.OwnerID {
		return Decide(sub, doc.OwnerID, nil, required), nil
	}

	grant, err := r.m.Permissions(r.db).Get(ctx, doc.ID, sub.UserID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return false, nil
		}
		return false, err
	}
	return Decide(sub, doc.OwnerID, grant, required), nil
}

// Require loads the document and fails with common.ErrorForbidden when sub
// lacks required.
func (r *Resolver) Require(ctx context.Context, sub Subject, documentID string, required models.PermissionLevel) (*models.Document, error) {
	doc, ok, err := r.Check(ctx, sub, documentID, required)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, common.ErrorForbidden
	}
	return doc, nil
}
