// Package contacts persists address-book entries. Every query is scoped to
// the owning user.
package contacts

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/contactbook/internal/common"
	"github.com/dmitrijs2005/contactbook/internal/server/models"
)

// ErrEmailTaken reports a contact email that already exists. Contact emails
// are unique across all owners.
var ErrEmailTaken = fmt.Errorf("contact email %w", common.ErrorAlreadyExists)

// ListFilter pages and optionally filters a listing. An empty Search matches
// everything.
type ListFilter struct {
	Skip   int
	Limit  int
	Search string
}

type Repository interface {
	Create(ctx context.Context, c *models.Contact) (*models.Contact, error)
	Get(ctx context.Context, id, ownerID int64) (*models.Contact, error)
	List(ctx context.Context, ownerID int64, f ListFilter) ([]*models.Contact, error)
	Update(ctx context.Context, c *models.Contact) (*models.Contact, error)
	Delete(ctx context.Context, id, ownerID int64) error
	// BirthdaysBetween returns contacts whose month/day falls in [from, to],
	// wrapping over New Year when to is in the next year.
	BirthdaysBetween(ctx context.Context, ownerID int64, from, to time.Time) ([]*models.Contact, error)
}
