package rest

import (
	"net/http"
	"strconv"

	"github.com/dmitrijs2005/contactbook/internal/server/repositories/contacts"
	"github.com/dmitrijs2005/contactbook/internal/server/services"
)

func (h *handlers) listContacts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := contacts.ListFilter{Limit: services.DefaultContactLimit, Search: q.Get("search")}

	var err error
	if v := q.Get("skip"); v != "" {
		if f.Skip, err = strconv.Atoi(v); err != nil {
			writeError(w, http.StatusUnprocessableEntity, "Skip must be an integer")
			return
		}
	}
	if v := q.Get("limit"); v != "" {
		if f.Limit, err = strconv.Atoi(v); err != nil || f.Limit == 0 {
			writeError(w, http.StatusUnprocessableEntity, "Limit must be between 1 and 500")
			return
		}
	}

	list, err := h.contacts.List(r.Context(), currentUser(r).ID, f)
	if err != nil {
		h.fail(w, r, err, msgContactNotFound)
		return
	}
	writeJSON(w, http.StatusOK, newContactList(list, h.now()))
}

func (h *handlers) createContact(w http.ResponseWriter, r *http.Request) {
	var req contactRequest
	if err := decode(w, r, &req); err != nil {
		h.fail(w, r, err, "")
		return
	}

	c, err := h.contacts.Create(r.Context(), currentUser(r).ID, req.input())
	if err != nil {
		h.fail(w, r, err, msgContactNotFound)
		return
	}
	writeJSON(w, http.StatusCreated, newContactResponse(c, h.now()))
}

func (h *handlers) getContact(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	c, err := h.contacts.Get(r.Context(), currentUser(r).ID, id)
	if err != nil {
		h.fail(w, r, err, msgContactNotFound)
		return
	}
	writeJSON(w, http.StatusOK, newContactResponse(c, h.now()))
}

func (h *handlers) updateContact(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req contactPatchRequest
	if err := decode(w, r, &req); err != nil {
		h.fail(w, r, err, "")
		return
	}

	c, err := h.contacts.Update(r.Context(), currentUser(r).ID, id, req.patch())
	if err != nil {
		h.fail(w, r, err, msgContactNotFound)
		return
	}
	writeJSON(w, http.StatusOK, newContactResponse(c, h.now()))
}

func (h *handlers) deleteContact(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	if err := h.contacts.Delete(r.Context(), currentUser(r).ID, id); err != nil {
		h.fail(w, r, err, msgContactNotFound)
		return
	}
	writeMessage(w, "Contact deleted successfully!")
}

func (h *handlers) upcomingBirthdays(w http.ResponseWriter, r *http.Request) {
	list, err := h.contacts.UpcomingBirthdays(r.Context(), currentUser(r).ID)
	if err != nil {
		h.fail(w, r, err, msgContactNotFound)
		return
	}
	writeJSON(w, http.StatusOK, newContactList(list, h.now()))
}
