// Package repomanager vends repositories bound to either the connection pool
// or an open transaction, so services can compose multi-table writes.
package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/docvault/internal/dbx"
	"github.com/dmitrijs2005/docvault/internal/server/repositories/documents"
	"github.com/dmitrijs2005/docvault/internal/server/repositories/ingestion"
	"github.com/dmitrijs2005/docvault/internal/server/repositories/permissions"
	"github.com/dmitrijs2005/docvault/internal/server/repositories/qahistory"
	"github.com/dmitrijs2005/docvault/internal/server/repositories/refreshtokens"
	"github.com/dmitrijs2005/docvault/internal/server/repositories/users"
	"github.com/dmitrijs2005/docvault/internal/server/repositories/versions"
)

type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Users(db dbx.DBTX) users.Repository
	RefreshTokens(db dbx.DBTX) refreshtokens.Repository
	Documents(db dbx.DBTX) documents.Repository
	Versions(db dbx.DBTX) versions.Repository
	Permissions(db dbx.DBTX) permissions.Repository
	Ingestion(db dbx.DBTX) ingestion.Repository
	QAHistory(db dbx.DBTX) qahistory.Repository
}
