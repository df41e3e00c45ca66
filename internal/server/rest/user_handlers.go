package rest

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/dmitrijs2005/contactbook/internal/server/models"
	"github.com/dmitrijs2005/contactbook/internal/server/services"
	"github.com/go-chi/chi/v5"
)

func (h *handlers) getMe(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, newUserResponse(currentUser(r)))
}

func (h *handlers) updateMe(w http.ResponseWriter, r *http.Request) {
	var req updateMeRequest
	if err := decode(w, r, &req); err != nil {
		h.fail(w, r, err, "")
		return
	}

	u, err := h.users.UpdateProfile(r.Context(), currentUser(r), req.Username)
	if err != nil {
		h.fail(w, r, err, msgUserNotFound)
		return
	}
	writeJSON(w, http.StatusOK, newUserResponse(u))
}

func (h *handlers) uploadAvatar(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, services.MaxAvatarSize+1<<20)
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.fail(w, r, services.ErrAvatarTooLarge, "")
			return
		}
		writeError(w, http.StatusUnprocessableEntity, "File is required")
		return
	}
	defer file.Close()

	body, err := io.ReadAll(io.LimitReader(file, services.MaxAvatarSize+1))
	if err != nil {
		h.fail(w, r, err, "")
		return
	}

	u, err := h.users.UpdateAvatar(r.Context(), currentUser(r), header.Header.Get("Content-Type"), body)
	if err != nil {
		h.fail(w, r, err, msgUserNotFound)
		return
	}
	writeJSON(w, http.StatusOK, newUserResponse(u))
}

func (h *handlers) changeRole(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req roleRequest
	if err := decode(w, r, &req); err != nil {
		h.fail(w, r, err, "")
		return
	}

	u, err := h.users.ChangeRole(r.Context(), currentUser(r), id, models.Role(req.Role))
	if err != nil {
		h.fail(w, r, err, msgUserNotFound)
		return
	}
	writeJSON(w, http.StatusOK, newUserResponse(u))
}

// pathID parses the {id} URL parameter, answering 422 when it is not an
// integer.
func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "Id must be an integer")
		return 0, false
	}
	return id, true
}
