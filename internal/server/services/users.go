package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/docvault/internal/common"
	"github.com/dmitrijs2005/docvault/internal/server/auth"
	"github.com/dmitrijs2005/docvault/internal/server/models"
)

// UserUpdate is an admin edit of any account; nil fields are unchanged.
type UserUpdate struct {
	Name     *string
	Email    *string
	Role     *models.Role
	IsActive *bool
	Password *string
}

func (s *UserService) ListUsers(ctx context.Context, filter models.UserFilter) (models.Paged[models.User], error) {
	if filter.Role != "" && !filter.Role.Valid() {
		return models.Paged[models.User]{}, common.NewValidationError("role", "must be one of admin, editor, viewer")
	}
	items, total, err := s.repomanager.Users(s.db).List(ctx, filter)
	if err != nil {
		return models.Paged[models.User]{}, err
	}
	return models.NewPaged(items, total, filter.Page), nil
}

func (s *UserService) GetUser(ctx context.Context, id string) (*models.User, error) {
	return s.repomanager.Users(s.db).GetByID(ctx, id)
}

// CreateUser creates an account with any role. An empty role means viewer.
func (s *UserService) CreateUser(ctx context.Context, in Registration) (*models.User, error) {
	if in.Role == "" {
		in.Role = models.RoleViewer
	}
	return s.createUser(ctx, in)
}

func (s *UserService) UpdateUser(ctx context.Context, id string, upd UserUpdate) (*models.User, error) {
	repo := s.repomanager.Users(s.db)
	user, err := repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	verr := &common.ValidationError{}
	if upd.Name != nil {
		if user.Name = strings.TrimSpace(*upd.Name); user.Name == "" {
			verr.Add("name", "must not be empty")
		}
	}
	if upd.Email != nil {
		email, ok := validEmail(*upd.Email)
		if !ok {
			verr.Add("email", "must be a valid email address")
		}
		user.Email = email
	}
	if upd.Role != nil {
		if !upd.Role.Valid() {
			verr.Add("role", "must be one of admin, editor, viewer")
		}
		user.Role = *upd.Role
	}
	if upd.IsActive != nil {
		user.IsActive = *upd.IsActive
	}
	if upd.Password != nil {
		if len(*upd.Password) < auth.MinPasswordLength {
			verr.Add("password", fmt.Sprintf("must be at least %d characters", auth.MinPasswordLength))
		}
	}
	if err := verr.OrNil(); err != nil {
		return nil, err
	}

	if upd.Password != nil {
		if user.PasswordHash, err = auth.HashPassword(*upd.Password); err != nil {
			return nil, fmt.Errorf("hash password: %w", err)
		}
	}

	u, err := repo.Update(ctx, user)
	if err != nil {
		return nil, err
	}
	if !u.IsActive {
		s.dropSessions(ctx, u.ID)
	}
	return u, nil
}

// DeactivateUser disables the account and drops its refresh tokens. Admins
// cannot deactivate themselves.
func (s *UserService) DeactivateUser(ctx context.Context, actorID, id string) error {
	if actorID == id {
		return common.NewValidationError("id", "cannot deactivate your own account")
	}
	if err := s.repomanager.Users(s.db).SetActive(ctx, id, false); err != nil {
		return err
	}
	s.dropSessions(ctx, id)
	s.logger.Info(ctx, "user deactivated", "user_id", id, "by", actorID)
	return nil
}

func (s *UserService) dropSessions(ctx context.Context, userID string) {
	if err := s.repomanager.RefreshTokens(s.db).DeleteByUser(ctx, userID); err != nil {
		s.logger.Warn(ctx, "failed to drop refresh tokens", "user_id", userID, "error", err)
	}
}
