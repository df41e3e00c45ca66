// Package cache implements the identity cache: a best-effort, TTL-bounded
// copy of user records keyed by email. Every operation fails open. Errors are
// logged and reported as a miss or as false, never returned.
package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/dmitrijs2005/contactbook/internal/common"
	"github.com/dmitrijs2005/contactbook/internal/server/models"
)

// IdentityCache maps an email to a snapshot of the user record.
type IdentityCache interface {
	// Get returns the cached user, or false on a miss or on any cache failure.
	Get(ctx context.Context, email string) (*models.User, bool)
	// Put stores a snapshot for ttl. It reports whether the write succeeded.
	Put(ctx context.Context, email string, user *models.User, ttl time.Duration) bool
	// Invalidate drops the snapshot. It reports whether the delete succeeded.
	Invalidate(ctx context.Context, email string) bool
}

// snapshot is the cached form of a user. Secrets (password hash, reset and
// verification tokens) are never written to the cache.
type snapshot struct {
	ID         int64       `json:"id"`
	Username   string      `json:"username"`
	Email      string      `json:"email"`
	AvatarURL  string      `json:"avatar_url,omitempty"`
	Role       models.Role `json:"role"`
	IsVerified bool        `json:"is_verified"`
	CreatedAt  time.Time   `json:"created_at"`
	UpdatedAt  time.Time   `json:"updated_at"`
}

func key(email string) string {
	return common.UserCacheNamespace + ":" + email
}

func encode(u *models.User) ([]byte, error) {
	return json.Marshal(snapshot{
		ID:         u.ID,
		Username:   u.Username,
		Email:      u.Email,
		AvatarURL:  u.AvatarURL,
		Role:       u.Role,
		IsVerified: u.IsVerified,
		CreatedAt:  u.CreatedAt,
		UpdatedAt:  u.UpdatedAt,
	})
}

func decode(b []byte) (*models.User, error) {
	var s snapshot
	if err := json.Unmarshal(b, &s); err != nil {
		return nil, err
	}
	return &models.User{
		ID:         s.ID,
		Username:   s.Username,
		Email:      s.Email,
		AvatarURL:  s.AvatarURL,
		Role:       s.Role,
		IsVerified: s.IsVerified,
		CreatedAt:  s.CreatedAt,
		UpdatedAt:  s.UpdatedAt,
	}, nil
}
