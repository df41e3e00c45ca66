// Package models defines server-side data models persisted in the database.
package models

import "time"

// Role is the authorization level of a user.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

// User is the identity record. Empty strings stand for absent optional values.
//
// ResetPasswordToken and ResetPasswordExpires are set and cleared together.
// IsVerified only ever goes from false to true.
type User struct {
	ID                   int64
	Username             string
	Email                string
	HashedPassword       string
	AvatarURL            string
	IsVerified           bool
	Role                 Role
	VerificationToken    string
	ResetPasswordToken   string
	ResetPasswordExpires *time.Time
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// IsAdmin reports whether the user holds the admin role.
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// SetResetToken stores a reset token that stays valid until expires.
func (u *User) SetResetToken(token string, expires time.Time) {
	u.ResetPasswordToken = token
	u.ResetPasswordExpires = &expires
}

// ClearResetToken consumes the reset token.
func (u *User) ClearResetToken() {
	u.ResetPasswordToken = ""
	u.ResetPasswordExpires = nil
}

// Clone returns a deep copy.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	if u.ResetPasswordExpires != nil {
		t := *u.ResetPasswordExpires
		c.ResetPasswordExpires = &t
	}
	return &c
}
