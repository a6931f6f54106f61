// Package services contains server-side business logic. This file implements
// UserService, which handles registration, login, token refresh and logout
// plus the caller's own profile.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/dmitrijs2005/docvault/internal/common"
	"github.com/dmitrijs2005/docvault/internal/dbx"
	"github.com/dmitrijs2005/docvault/internal/logging"
	"github.com/dmitrijs2005/docvault/internal/server/auth"
	"github.com/dmitrijs2005/docvault/internal/server/config"
	"github.com/dmitrijs2005/docvault/internal/server/models"
	"github.com/dmitrijs2005/docvault/internal/server/repositories/repomanager"
)

// TokenPair bundles a short-lived access token and a long-lived refresh token.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	TokenType    string `json:"tokenType"`
	ExpiresIn    int64  `json:"expiresIn"`
}

// Registration is the input of Register and CreateUser.
type Registration struct {
	Email    string
	Password string
	Name     string
	Role     models.Role
}

// ProfileUpdate changes the caller's own account. Changing the password
// requires CurrentPassword.
type ProfileUpdate struct {
	Name            *string
	Email           *string
	CurrentPassword string
	NewPassword     string
}

type UserService struct {
	db                           *sql.DB
	repomanager                  repomanager.RepositoryManager
	revoker                      auth.Revoker
	logger                       logging.Logger
	jwtSecret                    []byte
	accessTokenValidityDuration  time.Duration
	refreshTokenValidityDuration time.Duration
}

func NewUserService(db *sql.DB, m repomanager.RepositoryManager, revoker auth.Revoker, logger logging.Logger, cfg *config.Config) *UserService {
	return &UserService{
		db:                           db,
		repomanager:                  m,
		revoker:                      revoker,
		logger:                       logger.With("module", "users"),
		jwtSecret:                    []byte(cfg.SecretKey),
		accessTokenValidityDuration:  cfg.AccessTokenTTL,
		refreshTokenValidityDuration: cfg.RefreshTokenTTL,
	}
}

// Register creates a viewer account.
func (s *UserService) Register(ctx context.Context, in Registration) (*models.User, error) {
	in.Role = models.RoleViewer
	return s.createUser(ctx, in)
}

// Login verifies credentials and mints a token pair. Unknown emails and
// wrong passwords are indistinguishable to the caller.
func (s *UserService) Login(ctx context.Context, email, password string) (*TokenPair, *models.User, error) {
	user, err := s.repomanager.Users(s.db).GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, nil, common.ErrorInvalidCredentials
		}
		return nil, nil, err
	}

	ok, err := auth.CheckPassword(user.PasswordHash, password)
	if err != nil {
		return nil, nil, fmt.Errorf("check password: %w", err)
	}
	if !ok {
		return nil, nil, common.ErrorInvalidCredentials
	}
	if !user.IsActive {
		return nil, nil, common.ErrorAccountDisabled
	}

	pair, err := s.generateTokenPair(ctx, user, s.db)
	if err != nil {
		return nil, nil, err
	}
	s.logger.Info(ctx, "user logged in", "user_id", user.ID)
	return pair, user, nil
}

// RefreshToken validates a refresh token, rotates it transactionally, and
// returns a fresh TokenPair. Expired tokens yield ErrRefreshTokenExpired.
func (s *UserService) RefreshToken(ctx context.Context, refreshToken string) (*TokenPair, error) {
	if refreshToken == "" {
		return nil, common.NewValidationError("refreshToken", "is required")
	}

	var pair *TokenPair
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		tokens := s.repomanager.RefreshTokens(tx)

		token, err := tokens.Find(ctx, refreshToken)
		if err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				return common.ErrInvalidToken
			}
			return fmt.Errorf("error searching refresh token: %w", err)
		}
		if err := tokens.Delete(ctx, refreshToken); err != nil {
			return fmt.Errorf("error deleting refresh token: %w", err)
		}
		if token.Expired(time.Now()) {
			return common.ErrRefreshTokenExpired
		}

		user, err := s.repomanager.Users(tx).GetByID(ctx, token.UserID)
		if err != nil {
			return err
		}
		if !user.IsActive {
			return common.ErrorAccountDisabled
		}

		pair, err = s.generateTokenPair(ctx, user, tx)
		return err
	})
	// An expired token is still consumed.
	if errors.Is(err, common.ErrRefreshTokenExpired) {
		_ = s.repomanager.RefreshTokens(s.db).Delete(ctx, refreshToken)
	}
	if err != nil {
		return nil, err
	}
	return pair, nil
}

// Logout revokes the access token for the rest of its lifetime and drops
// the refresh token when one is given.
func (s *UserService) Logout(ctx context.Context, claims *auth.Claims, refreshToken string) error {
	if err := s.revoker.Revoke(ctx, claims.ID, claims.TTL()); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	if refreshToken != "" {
		if err := s.repomanager.RefreshTokens(s.db).Delete(ctx, refreshToken); err != nil {
			return err
		}
	}
	s.logger.Info(ctx, "user logged out", "user_id", claims.UserID)
	return nil
}

// Authenticate resolves a bearer token to an active user.
func (s *UserService) Authenticate(ctx context.Context, token string) (*models.User, *auth.Claims, error) {
	claims, err := auth.ParseToken(token, s.jwtSecret)
	if err != nil {
		return nil, nil, err
	}

	revoked, err := s.revoker.IsRevoked(ctx, claims.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("check revocation: %w", err)
	}
	if revoked {
		return nil, nil, common.ErrTokenRevoked
	}

	user, err := s.repomanager.Users(s.db).GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, nil, common.ErrorUnauthorized
		}
		return nil, nil, err
	}
	if !user.IsActive {
		return nil, nil, common.ErrorAccountDisabled
	}
	return user, claims, nil
}

func (s *UserService) Me(ctx context.Context, userID string) (*models.User, error) {
	return s.repomanager.Users(s.db).GetByID(ctx, userID)
}

func (s *UserService) UpdateMe(ctx context.Context, userID string, upd ProfileUpdate) (*models.User, error) {
	repo := s.repomanager.Users(s.db)
	user, err := repo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	verr := &common.ValidationError{}
	if upd.Name != nil {
		name := strings.TrimSpace(*upd.Name)
		if name == "" {
			verr.Add("name", "must not be empty")
		}
		user.Name = name
	}
	if upd.Email != nil {
		email, ok := validEmail(*upd.Email)
		if !ok {
			verr.Add("email", "must be a valid email address")
		}
		user.Email = email
	}
	if upd.NewPassword != "" {
		if len(upd.NewPassword) < auth.MinPasswordLength {
			verr.Add("newPassword", fmt.Sprintf("must be at least %d characters", auth.MinPasswordLength))
		}
		if upd.CurrentPassword == "" {
			verr.Add("currentPassword", "is required to change the password")
		}
	}
	if err := verr.OrNil(); err != nil {
		return nil, err
	}

	if upd.NewPassword != "" {
		ok, err := auth.CheckPassword(user.PasswordHash, upd.CurrentPassword)
		if err != nil {
			return nil, fmt.Errorf("check password: %w", err)
		}
		if !ok {
			return nil, common.NewValidationError("currentPassword", "is incorrect")
		}
		if user.PasswordHash, err = auth.HashPassword(upd.NewPassword); err != nil {
			return nil, fmt.Errorf("hash password: %w", err)
		}
	}

	return repo.Update(ctx, user)
}

// --- helpers below ---

func (s *UserService) createUser(ctx context.Context, in Registration) (*models.User, error) {
	verr := &common.ValidationError{}
	email, ok := validEmail(in.Email)
	if !ok {
		verr.Add("email", "must be a valid email address")
	}
	if len(in.Password) < auth.MinPasswordLength {
		verr.Add("password", fmt.Sprintf("must be at least %d characters", auth.MinPasswordLength))
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		verr.Add("name", "is required")
	}
	if !in.Role.Valid() {
		verr.Add("role", "must be one of admin, editor, viewer")
	}
	if err := verr.OrNil(); err != nil {
		return nil, err
	}

	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &models.User{Email: email, PasswordHash: hash, Name: name, Role: in.Role, IsActive: true}
	u, err := s.repomanager.Users(s.db).Create(ctx, user)
	if err != nil {
		return nil, err
	}
	s.logger.Info(ctx, "user created", "user_id", u.ID, "role", u.Role)
	return u, nil
}

func (s *UserService) generateRefreshToken() (string, error) {
	return common.MakeRandHexString(32)
}

func (s *UserService) generateTokenPair(ctx context.Context, user *models.User, tx dbx.DBTX) (*TokenPair, error) {
	access, _, err := auth.GenerateToken(user.ID, user.Role, s.jwtSecret, s.accessTokenValidityDuration)
	if err != nil {
		return nil, fmt.Errorf("generate access token: %w", err)
	}
	refresh, err := s.generateRefreshToken()
	if err != nil {
		return nil, fmt.Errorf("generate refresh token: %w", err)
	}
	if err := s.repomanager.RefreshTokens(tx).Create(ctx, user.ID, refresh, s.refreshTokenValidityDuration); err != nil {
		return nil, fmt.Errorf("store refresh token: %w", err)
	}
	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresIn:    int64(s.accessTokenValidityDuration.Seconds()),
	}, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validEmail(email string) (string, bool) {
	email = normalizeEmail(email)
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return email, false
	}
	return email, true
}
