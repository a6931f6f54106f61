package rest

import (
	"context"
	"io"

	"github.com/dmitrijs2005/docvault/internal/server/access"
	"github.com/dmitrijs2005/docvault/internal/server/auth"
	"github.com/dmitrijs2005/docvault/internal/server/models"
	"github.com/dmitrijs2005/docvault/internal/server/services"
)

// UserService is the account surface the handlers need.
type UserService interface {
	Register(ctx context.Context, in services.Registration) (*models.User, error)
	Login(ctx context.Context, email, password string) (*services.TokenPair, *models.User, error)
	RefreshToken(ctx context.Context, refreshToken string) (*services.TokenPair, error)
	Logout(ctx context.Context, claims *auth.Claims, refreshToken string) error
	Authenticate(ctx context.Context, token string) (*models.User, *auth.Claims, error)
	Me(ctx context.Context, userID string) (*models.User, error)
	UpdateMe(ctx context.Context, userID string, upd services.ProfileUpdate) (*models.User, error)

	ListUsers(ctx context.Context, filter models.UserFilter) (models.Paged[models.User], error)
	GetUser(ctx context.Context, id string) (*models.User, error)
	CreateUser(ctx context.Context, in services.Registration) (*models.User, error)
	UpdateUser(ctx context.Context, id string, upd services.UserUpdate) (*models.User, error)
	DeactivateUser(ctx context.Context, actorID, id string) error
}

type DocumentService interface {
	Upload(ctx context.Context, sub access.Subject, in services.NewDocument, file services.FileUpload) (*models.Document, error)
	List(ctx context.Context, sub access.Subject, filter models.DocumentFilter) (models.Paged[models.Document], error)
	Get(ctx context.Context, sub access.Subject, id string) (*models.Document, error)
	Update(ctx context.Context, sub access.Subject, id string, upd models.DocumentUpdate) (*models.Document, error)
	Delete(ctx context.Context, sub access.Subject, id string, permanent bool) error
	Download(ctx context.Context, sub access.Subject, id string) (*models.FileRef, io.ReadCloser, error)

	CreateVersion(ctx context.Context, sub access.Subject, documentID string, file services.FileUpload, changeSummary string) (*models.DocumentVersion, error)
	ListVersions(ctx context.Context, sub access.Subject, documentID string) ([]models.DocumentVersion, error)
	GetVersion(ctx context.Context, sub access.Subject, documentID string, number int) (*models.DocumentVersion, error)
	LatestVersion(ctx context.Context, sub access.Subject, documentID string) (*models.DocumentVersion, error)
	DownloadVersion(ctx context.Context, sub access.Subject, documentID string, number int) (*models.DocumentVersion, io.ReadCloser, error)
}

type PermissionService interface {
	Grant(ctx context.Context, sub access.Subject, documentID, userID string, level models.PermissionLevel) (*models.DocumentPermission, error)
	List(ctx context.Context, sub access.Subject, documentID string) ([]models.DocumentPermission, error)
	Revoke(ctx context.Context, sub access.Subject, documentID, permissionID string) error
}

type IngestionService interface {
	Create(ctx context.Context, sub access.Subject, documentID string) (*models.IngestionJob, error)
	Get(ctx context.Context, sub access.Subject, id string) (*models.IngestionJob, error)
	List(ctx context.Context, sub access.Subject, filter models.JobFilter) (models.Paged[models.IngestionJob], error)
	ListForDocument(ctx context.Context, sub access.Subject, documentID string, page models.Page) (models.Paged[models.IngestionJob], error)
	UpdateStatus(ctx context.Context, sub access.Subject, id string, status models.JobStatus, errorMessage *string) (*models.IngestionJob, error)
}

type QAService interface {
	Ask(ctx context.Context, sub access.Subject, question string, documentIDs []string) (*models.QAHistory, error)
	History(ctx context.Context, sub access.Subject, page models.Page) (models.Paged[models.QAHistory], error)
	GetHistory(ctx context.Context, sub access.Subject, id string) (*models.QAHistory, error)
	DeleteHistory(ctx context.Context, sub access.Subject, id string) error
	ClearHistory(ctx context.Context, sub access.Subject) (int64, error)
}

var (
	_ UserService       = (*services.UserService)(nil)
	_ DocumentService   = (*services.DocumentService)(nil)
	_ PermissionService = (*services.PermissionService)(nil)
	_ IngestionService  = (*services.IngestionService)(nil)
	_ QAService         = (*services.QAService)(nil)
)
