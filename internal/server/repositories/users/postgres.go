package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/contactbook/internal/common"
	"github.com/dmitrijs2005/contactbook/internal/dbx"
	"github.com/dmitrijs2005/contactbook/internal/server/models"
)

const userColumns = `id, username, email, hashed_password, avatar_url, is_verified, role,
		 verification_token, reset_password_token, reset_password_expires, created_at, updated_at`

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	query :=
		`INSERT INTO users (username, email, hashed_password, avatar_url, is_verified, role, verification_token)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id, created_at, updated_at`

	err := r.db.QueryRowContext(ctx, query,
		user.Username, user.Email, user.HashedPassword, nullString(user.AvatarURL),
		user.IsVerified, string(user.Role), nullString(user.VerificationToken),
	).Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt)

	if err != nil {
		return nil, classify(err)
	}

	return user, nil
}

func (r *PostgresRepository) FindByID(ctx context.Context, id int64) (*models.User, error) {
	return r.findOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

func (r *PostgresRepository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.findOne(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
}

func (r *PostgresRepository) FindByUsername(ctx context.Context, username string) (*models.User, error) {
	return r.findOne(ctx, `SELECT `+userColumns+` FROM users WHERE username = $1`, username)
}

func (r *PostgresRepository) FindByVerificationToken(ctx context.Context, token string) (*models.User, error) {
	return r.findOne(ctx, `SELECT `+userColumns+` FROM users WHERE verification_token = $1`, token)
}

func (r *PostgresRepository) FindByResetToken(ctx context.Context, token string, now time.Time) (*models.User, error) {
	return r.findOne(ctx, `SELECT `+userColumns+` FROM users
		 WHERE reset_password_token = $1 AND reset_password_expires > $2`, token, now)
}

// Save writes an existing user back. is_verified can only be raised here;
// a stale copy never un-verifies an account.
func (r *PostgresRepository) Save(ctx context.Context, user *models.User) (*models.User, error) {
	query :=
		`UPDATE users
		 SET username = $2, hashed_password = $3, avatar_url = $4, is_verified = is_verified OR $5, role = $6,
		     verification_token = $7, reset_password_token = $8, reset_password_expires = $9,
		     updated_at = NOW()
		 WHERE id = $1
		 RETURNING ` + userColumns

	var expires sql.NullTime
	if user.ResetPasswordExpires != nil && user.ResetPasswordToken != "" {
		expires = sql.NullTime{Time: *user.ResetPasswordExpires, Valid: true}
	}

	return r.findOne(ctx, query,
		user.ID, user.Username, user.HashedPassword, nullString(user.AvatarURL), user.IsVerified,
		string(user.Role), nullString(user.VerificationToken), nullString(user.ResetPasswordToken), expires,
	)
}

func (r *PostgresRepository) MarkVerified(ctx context.Context, token string) (*models.User, error) {
	return r.findOne(ctx,
		`UPDATE users
		 SET is_verified = TRUE, verification_token = NULL, updated_at = NOW()
		 WHERE verification_token = $1
		 RETURNING `+userColumns, token)
}

func (r *PostgresRepository) SetVerificationToken(ctx context.Context, id int64, token string) (*models.User, error) {
	return r.findOne(ctx,
		`UPDATE users
		 SET verification_token = $2, updated_at = NOW()
		 WHERE id = $1 AND NOT is_verified
		 RETURNING `+userColumns, id, token)
}

func (r *PostgresRepository) SetResetToken(ctx context.Context, id int64, token string, expires time.Time) (*models.User, error) {
	return r.findOne(ctx,
		`UPDATE users
		 SET reset_password_token = $2, reset_password_expires = $3, updated_at = NOW()
		 WHERE id = $1
		 RETURNING `+userColumns, id, token, expires)
}

// ConsumeResetToken matches and clears the token in one statement, so of two
// concurrent callers only the first sees the row.
func (r *PostgresRepository) ConsumeResetToken(ctx context.Context, token, hashedPassword string, now time.Time) (*models.User, error) {
	return r.findOne(ctx,
		`UPDATE users
		 SET hashed_password = $3, reset_password_token = NULL, reset_password_expires = NULL, updated_at = NOW()
		 WHERE reset_password_token = $1 AND reset_password_expires > $2
		 RETURNING `+userColumns, token, now, hashedPassword)
}

func (r *PostgresRepository) UpdateUsername(ctx context.Context, id int64, username string) (*models.User, error) {
	return r.findOne(ctx,
		`UPDATE users SET username = $2, updated_at = NOW() WHERE id = $1 RETURNING `+userColumns, id, username)
}

func (r *PostgresRepository) UpdateAvatar(ctx context.Context, id int64, avatarURL string) (*models.User, error) {
	return r.findOne(ctx,
		`UPDATE users SET avatar_url = $2, updated_at = NOW() WHERE id = $1 RETURNING `+userColumns, id, nullString(avatarURL))
}

func (r *PostgresRepository) UpdateRole(ctx context.Context, id int64, role models.Role) (*models.User, error) {
	return r.findOne(ctx,
		`UPDATE users SET role = $2, updated_at = NOW() WHERE id = $1 RETURNING `+userColumns, id, string(role))
}

func (r *PostgresRepository) findOne(ctx context.Context, query string, args ...any) (*models.User, error) {
	user := &models.User{}

	var (
		avatar, verification, reset sql.NullString
		expires                     sql.NullTime
		role                        string
	)

	err := r.db.QueryRowContext(ctx, query, args...).Scan(
		&user.ID, &user.Username, &user.Email, &user.HashedPassword, &avatar, &user.IsVerified, &role,
		&verification, &reset, &expires, &user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, classify(err)
	}

	user.Role = models.Role(role)
	user.AvatarURL = avatar.String
	user.VerificationToken = verification.String
	if reset.Valid && expires.Valid {
		user.SetResetToken(reset.String, expires.Time)
	}

	return user, nil
}

func classify(err error) error {
	switch {
	case dbx.IsUniqueViolation(err, "users_email_key"):
		return ErrEmailTaken
	case dbx.IsUniqueViolation(err, "users_username_key"):
		return ErrUsernameTaken
	default:
		return fmt.Errorf("db error: %w", err)
	}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
