// Package users declares and implements the persistent identity store.
package users

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/contactbook/internal/common"
	"github.com/dmitrijs2005/contactbook/internal/server/models"
)

// Uniqueness failures. Both match common.ErrorAlreadyExists.
var (
	ErrEmailTaken    = fmt.Errorf("email %w", common.ErrorAlreadyExists)
	ErrUsernameTaken = fmt.Errorf("username %w", common.ErrorAlreadyExists)
)

// Repository is the store of record for users. Lookups return
// common.ErrorNotFound when nothing matches.
type Repository interface {
	Create(ctx context.Context, user *models.User) (*models.User, error)
	FindByID(ctx context.Context, id int64) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByUsername(ctx context.Context, username string) (*models.User, error)
	FindByVerificationToken(ctx context.Context, token string) (*models.User, error)
	// FindByResetToken only matches tokens whose expiry is after now.
	FindByResetToken(ctx context.Context, token string, now time.Time) (*models.User, error)
	// Save writes every mutable column of an existing user except that
	// is_verified is never lowered.
	Save(ctx context.Context, user *models.User) (*models.User, error)

	// Field-scoped updates. Each writes only its own columns and returns the
	// row as stored, so concurrent mutations of other fields are not lost.
	MarkVerified(ctx context.Context, token string) (*models.User, error)
	// SetVerificationToken leaves verified users alone and reports
	// common.ErrorNotFound for them.
	SetVerificationToken(ctx context.Context, id int64, token string) (*models.User, error)
	SetResetToken(ctx context.Context, id int64, token string, expires time.Time) (*models.User, error)
	// ConsumeResetToken sets the password and clears an unexpired reset token
	// atomically. A token can be consumed once.
	ConsumeResetToken(ctx context.Context, token, hashedPassword string, now time.Time) (*models.User, error)
	UpdateUsername(ctx context.Context, id int64, username string) (*models.User, error)
	UpdateAvatar(ctx context.Context, id int64, avatarURL string) (*models.User, error)
	UpdateRole(ctx context.Context, id int64, role models.Role) (*models.User, error)
}
