// Package services contains server-side business logic. UserService owns
// account lifecycle (registration, login, token refresh, email verification,
// password reset) and profile mutations; ContactService owns address-book
// entries.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/contactbook/internal/common"
	"github.com/dmitrijs2005/contactbook/internal/dbx"
	"github.com/dmitrijs2005/contactbook/internal/logging"
	"github.com/dmitrijs2005/contactbook/internal/server/auth"
	"github.com/dmitrijs2005/contactbook/internal/server/config"
	"github.com/dmitrijs2005/contactbook/internal/server/identity"
	"github.com/dmitrijs2005/contactbook/internal/server/models"
	"github.com/dmitrijs2005/contactbook/internal/server/repositories/repomanager"
)

// ResetTokenValidity is how long a password reset token stays usable.
const ResetTokenValidity = time.Hour

// MaxAvatarSize caps avatar uploads.
const MaxAvatarSize = 5 * 1024 * 1024

var (
	ErrNotAnImage     = errors.New("file must be an image")
	ErrAvatarTooLarge = errors.New("file size too large, maximum 5MB allowed")
	ErrInvalidRole    = fmt.Errorf("%w: role must be one of user, admin", common.ErrorValidation)
)

// TokenPair bundles a short-lived access token and a long-lived refresh token.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// Invalidator drops cached identity snapshots.
type Invalidator interface {
	Invalidate(ctx context.Context, email string)
}

// Notifier delivers account emails.
type Notifier interface {
	SendVerification(ctx context.Context, to, token string) error
	SendPasswordReset(ctx context.Context, to, token string, validity time.Duration) error
}

// AvatarUploader stores an avatar image and returns its public URL.
type AvatarUploader interface {
	Upload(ctx context.Context, userID int64, contentType string, body []byte) (string, error)
}

// UserService mutates identities. Every successful mutation invalidates the
// cached snapshot of the affected user before returning.
type UserService struct {
	db                           *sql.DB
	repomanager                  repomanager.RepositoryManager
	identities                   Invalidator
	mailer                       Notifier
	avatars                      AvatarUploader
	logger                       logging.Logger
	tokens                       *auth.Verifier
	accessTokenValidityDuration  time.Duration
	refreshTokenValidityDuration time.Duration
	now                          func() time.Time
}

func NewUserService(db *sql.DB, m repomanager.RepositoryManager, cfg *config.Config, tokens *auth.Verifier,
	identities Invalidator, mailer Notifier, avatars AvatarUploader, logger logging.Logger) *UserService {
	return &UserService{
		db:                           db,
		repomanager:                  m,
		identities:                   identities,
		mailer:                       mailer,
		avatars:                      avatars,
		logger:                       logger.With("module", "user_service"),
		tokens:                       tokens,
		accessTokenValidityDuration:  cfg.AccessTokenValidityDuration,
		refreshTokenValidityDuration: cfg.RefreshTokenValidityDuration,
		now:                          time.Now,
	}
}

// Register creates an unverified regular user and mails the verification link.
func (s *UserService) Register(ctx context.Context, username, email, password string) (*models.User, error) {
	return s.create(ctx, username, email, password, models.RoleUser)
}

// CreateAdmin creates an unverified administrator. It is only reachable from
// the admin CLI.
func (s *UserService) CreateAdmin(ctx context.Context, username, email, password string) (*models.User, error) {
	return s.create(ctx, username, email, password, models.RoleAdmin)
}

func (s *UserService) create(ctx context.Context, username, email, password string, role models.Role) (*models.User, error) {
	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	token, err := common.MakeURLSafeToken(32)
	if err != nil {
		return nil, common.ErrorInternal
	}

	user := &models.User{
		Username:          username,
		Email:             normalizeEmail(email),
		HashedPassword:    hash,
		Role:              role,
		VerificationToken: token,
	}

	u, err := s.repomanager.Users(s.db).Create(ctx, user)
	if err != nil {
		return nil, storeErr("error creating user", err)
	}

	s.notifyVerification(ctx, u)
	return u, nil
}

// Login checks the password and issues a token pair. Unverified users may log
// in; the verified gate applies to protected routes.
func (s *UserService) Login(ctx context.Context, email, password string) (*TokenPair, error) {
	user, err := s.repomanager.Users(s.db).FindByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorUnauthorized
		}
		return nil, storeErr("error loading user", err)
	}
	if !auth.CheckPassword(user.HashedPassword, password) {
		return nil, common.ErrorUnauthorized
	}
	return s.generateTokenPair(ctx, user, s.db)
}

// RefreshToken validates a refresh token, rotates it transactionally, and
// returns a fresh TokenPair. Expired tokens yield ErrRefreshTokenExpired.
func (s *UserService) RefreshToken(ctx context.Context, refreshToken string) (*TokenPair, error) {
	token, err := s.repomanager.RefreshTokens(s.db).Find(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrInvalidToken
		}
		return nil, storeErr("error searching refresh token", err)
	}
	if token.Expires.Before(s.now()) {
		return nil, common.ErrRefreshTokenExpired
	}

	var pair *TokenPair
	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.repomanager.RefreshTokens(tx).Delete(ctx, refreshToken); err != nil {
			return fmt.Errorf("error deleting refresh token: %w", err)
		}
		user, err := s.repomanager.Users(tx).FindByID(ctx, token.UserID)
		if err != nil {
			return err
		}
		pair, err = s.generateTokenPair(ctx, user, tx)
		return err
	})
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrInvalidToken
		}
		return nil, storeErr("error rotating refresh token", err)
	}
	return pair, nil
}

// VerifyEmail marks the owner of token verified and consumes the token.
func (s *UserService) VerifyEmail(ctx context.Context, token string) (*models.User, error) {
	if token == "" {
		return nil, common.ErrInvalidToken
	}
	user, err := s.repomanager.Users(s.db).MarkVerified(ctx, token)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrInvalidToken
		}
		return nil, storeErr("error verifying user", err)
	}
	return s.changed(ctx, user), nil
}

// ResendVerification mails the verification link again. Unknown emails are
// accepted silently so callers cannot probe for accounts.
func (s *UserService) ResendVerification(ctx context.Context, email string) error {
	repo := s.repomanager.Users(s.db)

	user, err := repo.FindByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil
		}
		return storeErr("error loading user", err)
	}
	if user.IsVerified {
		return common.ErrAlreadyVerified
	}

	if user.VerificationToken == "" {
		token, err := common.MakeURLSafeToken(32)
		if err != nil {
			return common.ErrorInternal
		}
		user, err = repo.SetVerificationToken(ctx, user.ID, token)
		if err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				// verified (or deleted) since the lookup
				return common.ErrAlreadyVerified
			}
			return storeErr("error saving user", err)
		}
		s.changed(ctx, user)
	}

	s.notifyVerification(ctx, user)
	return nil
}

// ForgotPassword issues a reset token valid for ResetTokenValidity and mails
// it. Unknown emails are accepted silently.
func (s *UserService) ForgotPassword(ctx context.Context, email string) error {
	repo := s.repomanager.Users(s.db)

	user, err := repo.FindByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil
		}
		return storeErr("error loading user", err)
	}

	token, err := common.MakeURLSafeToken(32)
	if err != nil {
		return common.ErrorInternal
	}
	user, err = repo.SetResetToken(ctx, user.ID, token, s.now().Add(ResetTokenValidity))
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil
		}
		return storeErr("error saving user", err)
	}
	s.changed(ctx, user)

	if err := s.mailer.SendPasswordReset(ctx, user.Email, token, ResetTokenValidity); err != nil {
		s.logger.Error(ctx, "password reset mail failed", "email", user.Email, "error", err)
	}
	return nil
}

// VerifyResetToken reports whether token can still be used.
func (s *UserService) VerifyResetToken(ctx context.Context, token string) error {
	if token == "" {
		return common.ErrInvalidToken
	}
	_, err := s.repomanager.Users(s.db).FindByResetToken(ctx, token, s.now())
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return common.ErrInvalidToken
		}
		return storeErr("error loading user", err)
	}
	return nil
}

// ResetPassword sets a new password and consumes the token. Outstanding
// refresh tokens of the user are revoked in the same transaction.
func (s *UserService) ResetPassword(ctx context.Context, token, newPassword string) error {
	if token == "" {
		return common.ErrInvalidToken
	}
	hash, err := auth.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	var email string
	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		user, err := s.repomanager.Users(tx).ConsumeResetToken(ctx, token, hash, s.now())
		if err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				return common.ErrInvalidToken
			}
			return err
		}
		email = user.Email
		return s.repomanager.RefreshTokens(tx).DeleteByUser(ctx, user.ID)
	})
	if err != nil {
		if errors.Is(err, common.ErrInvalidToken) {
			return err
		}
		return storeErr("error resetting password", err)
	}

	s.identities.Invalidate(ctx, email)
	return nil
}

// UpdateProfile renames the acting user.
func (s *UserService) UpdateProfile(ctx context.Context, actor *models.User, username *string) (*models.User, error) {
	if err := identity.RequireVerified(actor); err != nil {
		return nil, err
	}
	repo := s.repomanager.Users(s.db)
	if username == nil {
		user, err := repo.FindByID(ctx, actor.ID)
		if err != nil {
			return nil, storeErr("error loading user", err)
		}
		return user, nil
	}

	user, err := repo.UpdateUsername(ctx, actor.ID, strings.TrimSpace(*username))
	if err != nil {
		return nil, storeErr("error saving user", err)
	}
	return s.changed(ctx, user), nil
}

// UpdateAvatar stores a new avatar image for an administrator.
func (s *UserService) UpdateAvatar(ctx context.Context, actor *models.User, contentType string, body []byte) (*models.User, error) {
	if err := identity.RequireAdmin(actor); err != nil {
		return nil, err
	}
	if !strings.HasPrefix(contentType, "image/") {
		return nil, ErrNotAnImage
	}
	if len(body) > MaxAvatarSize {
		return nil, ErrAvatarTooLarge
	}

	url, err := s.avatars.Upload(ctx, actor.ID, contentType, body)
	if err != nil {
		return nil, fmt.Errorf("could not upload avatar: %w", err)
	}

	user, err := s.repomanager.Users(s.db).UpdateAvatar(ctx, actor.ID, url)
	if err != nil {
		return nil, storeErr("error saving user", err)
	}
	return s.changed(ctx, user), nil
}

// ChangeRole sets the role of targetID. Only administrators may do this and
// they cannot demote themselves.
func (s *UserService) ChangeRole(ctx context.Context, actor *models.User, targetID int64, role models.Role) (*models.User, error) {
	if err := identity.RequireAdmin(actor); err != nil {
		return nil, err
	}
	if !role.Valid() {
		return nil, ErrInvalidRole
	}
	if err := identity.RequireNotSelfDemotion(actor, targetID, role); err != nil {
		return nil, err
	}

	target, err := s.repomanager.Users(s.db).UpdateRole(ctx, targetID, role)
	if err != nil {
		return nil, storeErr("error saving user", err)
	}
	return s.changed(ctx, target), nil
}

// --- helpers below ---

// changed drops the cached snapshot of a user the store just updated.
func (s *UserService) changed(ctx context.Context, user *models.User) *models.User {
	s.identities.Invalidate(ctx, user.Email)
	return user
}

func (s *UserService) notifyVerification(ctx context.Context, u *models.User) {
	if err := s.mailer.SendVerification(ctx, u.Email, u.VerificationToken); err != nil {
		s.logger.Error(ctx, "verification mail failed", "email", u.Email, "error", err)
	}
}

func (s *UserService) generateTokenPair(ctx context.Context, user *models.User, tx dbx.DBTX) (*TokenPair, error) {
	access, err := s.tokens.Issue(user.Email, string(user.Role), s.accessTokenValidityDuration)
	if err != nil {
		return nil, common.ErrorInternal
	}
	refresh, err := common.MakeRandHexString(32)
	if err != nil {
		return nil, common.ErrorInternal
	}
	if err := s.repomanager.RefreshTokens(tx).Create(ctx, user.ID, refresh, s.refreshTokenValidityDuration); err != nil {
		return nil, storeErr("error storing refresh token", err)
	}
	return &TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// storeErr keeps domain errors matchable and folds everything else into
// common.ErrStoreUnavailable.
func storeErr(op string, err error) error {
	switch {
	case errors.Is(err, common.ErrorNotFound),
		errors.Is(err, common.ErrorAlreadyExists),
		errors.Is(err, common.ErrStoreUnavailable):
		return err
	default:
		return fmt.Errorf("%s: %w: %v", op, common.ErrStoreUnavailable, err)
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
