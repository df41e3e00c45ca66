package identity

import (
	"github.com/dmitrijs2005/contactbook/internal/common"
	"github.com/dmitrijs2005/contactbook/internal/server/models"
)

// Reasons carried by common.ForbiddenError.
const (
	ReasonAdminRequired = "Admin access required"
	ReasonSelfDemotion  = "Administrators cannot demote themselves"
)

// RequireVerified fails with common.ErrNotVerified for unverified users.
func RequireVerified(u *models.User) error {
	if u == nil {
		return common.ErrUnauthenticated
	}
	if !u.IsVerified {
		return common.ErrNotVerified
	}
	return nil
}

// RequireAdmin checks verification first, then the admin role.
func RequireAdmin(u *models.User) error {
	if err := RequireVerified(u); err != nil {
		return err
	}
	if !u.IsAdmin() {
		return common.Forbidden(ReasonAdminRequired)
	}
	return nil
}

// RequireNotSelfDemotion blocks an administrator from dropping their own
// admin role. Changing another user's role, or re-granting admin to oneself,
// passes.
func RequireNotSelfDemotion(actor *models.User, targetID int64, newRole models.Role) error {
	if actor == nil {
		return common.ErrUnauthenticated
	}
	if actor.ID == targetID && actor.IsAdmin() && newRole != models.RoleAdmin {
		return common.Forbidden(ReasonSelfDemotion)
	}
	return nil
}
