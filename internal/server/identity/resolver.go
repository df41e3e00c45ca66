// Package identity resolves bearer credentials to users and guards actions
// with trust gates.
//
// Resolution is strict cache-aside: the cache is consulted first and the
// store only on a miss, after which the cache is repopulated. Cache problems
// are absorbed; store problems surface as common.ErrStoreUnavailable.
package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/contactbook/internal/common"
	"github.com/dmitrijs2005/contactbook/internal/logging"
	"github.com/dmitrijs2005/contactbook/internal/server/cache"
	"github.com/dmitrijs2005/contactbook/internal/server/models"
)

// Store is the persistent identity store of record.
type Store interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByID(ctx context.Context, id int64) (*models.User, error)
	Save(ctx context.Context, user *models.User) (*models.User, error)
}

// CredentialVerifier extracts the subject from a bearer credential.
type CredentialVerifier interface {
	Subject(token string) (string, bool)
}

// Resolver turns bearer credentials into users.
type Resolver struct {
	verifier CredentialVerifier
	cache    cache.IdentityCache
	store    Store
	ttl      time.Duration
	logger   logging.Logger
}

func NewResolver(v CredentialVerifier, c cache.IdentityCache, s Store, ttl time.Duration, l logging.Logger) *Resolver {
	return &Resolver{
		verifier: v,
		cache:    c,
		store:    s,
		ttl:      ttl,
		logger:   l.With("module", "identity_resolver"),
	}
}

// Resolve returns the user the credential belongs to.
//
// It fails with common.ErrUnauthenticated when the credential does not verify
// or its subject no longer exists, and with common.ErrStoreUnavailable when
// the store cannot be read.
func (r *Resolver) Resolve(ctx context.Context, credential string) (*models.User, error) {
	email, ok := r.verifier.Subject(credential)
	if !ok {
		return nil, common.ErrUnauthenticated
	}

	if u, hit := r.cache.Get(ctx, email); hit {
		return u, nil
	}

	u, err := r.store.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrUnauthenticated
		}
		r.logger.Error(ctx, "identity store read failed", "email", email, "error", err)
		return nil, fmt.Errorf("%w: %v", common.ErrStoreUnavailable, err)
	}

	if !r.cache.Put(ctx, email, u, r.ttl) {
		r.logger.Debug(ctx, "identity not cached", "email", email)
	}

	return u, nil
}

// Invalidate drops the cached snapshot for email. Mutating services call it
// before reporting success.
func (r *Resolver) Invalidate(ctx context.Context, email string) {
	if !r.cache.Invalidate(ctx, email) {
		r.logger.Warn(ctx, "identity cache invalidation failed", "email", email)
	}
}
