package rest

import (
	"errors"
	"net/http"
	"strings"

	"github.com/dmitrijs2005/contactbook/internal/common"
	"github.com/dmitrijs2005/contactbook/internal/server/repositories/contacts"
	"github.com/dmitrijs2005/contactbook/internal/server/repositories/users"
	"github.com/dmitrijs2005/contactbook/internal/server/services"
)

const (
	msgUnauthenticated = "Could not validate credentials"
	msgBadLogin        = "Incorrect email or password"
	msgNotVerified     = "Email not verified"
	msgInternal        = "Internal server error"
	msgContactNotFound = "Contact not found!"
	msgUserNotFound    = "User not found"
)

// fail writes the response for err. notFound is the detail used when err is
// common.ErrorNotFound.
func (h *handlers) fail(w http.ResponseWriter, r *http.Request, err error, notFound string) {
	if fe, ok := common.IsForbidden(err); ok {
		writeError(w, http.StatusForbidden, fe.Reason)
		return
	}

	switch {
	case errors.Is(err, common.ErrUnauthenticated):
		unauthorized(w, msgUnauthenticated)
	case errors.Is(err, common.ErrorUnauthorized):
		unauthorized(w, msgBadLogin)
	case errors.Is(err, common.ErrRefreshTokenExpired):
		unauthorized(w, "Refresh token expired")
	case errors.Is(err, common.ErrNotVerified):
		writeError(w, http.StatusBadRequest, msgNotVerified)
	case errors.Is(err, common.ErrAlreadyVerified):
		writeError(w, http.StatusBadRequest, "Email already verified")
	case errors.Is(err, common.ErrInvalidToken):
		writeError(w, http.StatusBadRequest, "Invalid or expired token")
	case errors.Is(err, services.ErrNotAnImage):
		writeError(w, http.StatusBadRequest, "File must be an image")
	case errors.Is(err, services.ErrAvatarTooLarge):
		writeError(w, http.StatusBadRequest, "File size too large. Maximum 5MB allowed")
	case errors.Is(err, contacts.ErrEmailTaken):
		writeError(w, http.StatusBadRequest, "Email is already in the system")
	case errors.Is(err, users.ErrEmailTaken):
		writeError(w, http.StatusConflict, "Email already registered")
	case errors.Is(err, users.ErrUsernameTaken):
		writeError(w, http.StatusConflict, "Username already taken")
	case errors.Is(err, common.ErrorNotFound):
		writeError(w, http.StatusNotFound, notFound)
	case errors.Is(err, common.ErrorValidation):
		writeError(w, http.StatusUnprocessableEntity, validationDetail(err))
	default:
		h.logger.Error(r.Context(), "request failed", "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, msgInternal)
	}
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	writeError(w, http.StatusUnauthorized, msg)
}

// validationDetail strips the sentinel prefix so clients see only the
// field-level message.
func validationDetail(err error) string {
	msg := strings.TrimPrefix(err.Error(), common.ErrorValidation.Error()+": ")
	if msg == "" {
		return common.ErrorValidation.Error()
	}
	return strings.ToUpper(msg[:1]) + msg[1:]
}
