package rest

import (
	"net/http"

	"github.com/dmitrijs2005/docvault/internal/server/models"
	"github.com/gorilla/mux"
)

type grantRequest struct {
	UserID     string                 `json:"userId"`
	Permission models.PermissionLevel `json:"permission"`
}

func (h *Handler) listPermissions(w http.ResponseWriter, r *http.Request) {
	list, err := h.permissions.List(r.Context(), subjectFrom(r.Context()), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeOK(w, http.StatusOK, "permissions", list)
}

func (h *Handler) grantPermission(w http.ResponseWriter, r *http.Request) {
	var req grantRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	p, err := h.permissions.Grant(r.Context(), subjectFrom(r.Context()), mux.Vars(r)["id"], req.UserID, req.Permission)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeOK(w, http.StatusOK, "permission granted", p)
}

func (h *Handler) revokePermission(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if err := h.permissions.Revoke(r.Context(), subjectFrom(r.Context()), vars["id"], vars["permissionId"]); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeOK(w, http.StatusOK, "permission revoked", nil)
}
