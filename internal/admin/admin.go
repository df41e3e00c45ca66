// Package admin implements the interactive create-admin command.
package admin

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/dmitrijs2005/contactbook/internal/server/models"
)

// MinPasswordLength matches the registration rule.
const MinPasswordLength = 6

var (
	ErrPasswordMismatch = errors.New("passwords do not match")
	ErrPasswordTooShort = fmt.Errorf("password must be at least %d characters", MinPasswordLength)
	ErrMissingField     = errors.New("username and email are required")
)

// Creator persists a new administrator.
type Creator interface {
	CreateAdmin(ctx context.Context, username, email, password string) (*models.User, error)
}

// CreateAdmin prompts for the administrator's details on reader and w, then
// creates the account through c. The account starts unverified and receives
// a verification mail like any other.
func CreateAdmin(ctx context.Context, c Creator, reader *bufio.Reader, w io.Writer) (*models.User, error) {
	username, err := GetSimpleText(reader, "Enter admin username", w)
	if err != nil {
		return nil, err
	}
	email, err := GetSimpleText(reader, "Enter admin email", w)
	if err != nil {
		return nil, err
	}
	if username == "" || email == "" {
		return nil, ErrMissingField
	}

	password, err := GetPassword("Enter password", w)
	if err != nil {
		return nil, err
	}
	if len(password) < MinPasswordLength {
		return nil, ErrPasswordTooShort
	}
	confirm, err := GetPassword("Repeat password", w)
	if err != nil {
		return nil, err
	}
	if password != confirm {
		return nil, ErrPasswordMismatch
	}

	u, err := c.CreateAdmin(ctx, username, email, password)
	if err != nil {
		return nil, err
	}

	fmt.Fprintf(w, "Administrator %s <%s> created with id=%d\n", u.Username, u.Email, u.ID)
	return u, nil
}
