package http

import (
	"net/http"

	"live-survey-service/internal/domain"
)

type addAdminRequest struct {
	Email string      `json:"email"`
	Name  string      `json:"name"`
	Role  domain.Role `json:"role"`
}

type adminStatus struct {
	Admin bool          `json:"admin"`
	Info  *domain.Admin `json:"info"`
}

func (h *Handler) listAdmins(w http.ResponseWriter, r *http.Request) {
	list, err := h.services.Admins.List(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if list == nil {
		list = []domain.Admin{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *Handler) adminMe(w http.ResponseWriter, r *http.Request) {
	info, err := h.services.Admins.Info(r.Context(), r.Header.Get(UserEmailHeader))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, adminStatus{Admin: info != nil, Info: info})
}

func (h *Handler) addAdmin(w http.ResponseWriter, r *http.Request) {
	var in addAdminRequest
	if err := parseJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if err := h.services.Admins.Add(r.Context(), r.Header.Get(UserEmailHeader), in.Email, in.Name, in.Role); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) removeAdmin(w http.ResponseWriter, r *http.Request) {
	if err := h.services.Admins.Remove(r.Context(), r.Header.Get(UserEmailHeader), r.PathValue("email")); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
