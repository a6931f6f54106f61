package rest

import (
	"net/http"

	"github.com/gorilla/mux"
)

type askRequest struct {
	Question    string   `json:"question"`
	DocumentIDs []string `json:"documentIds"`
}

type clearResponse struct {
	Deleted int64 `json:"deleted"`
}

func (h *Handler) ask(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	entry, err := h.qa.Ask(r.Context(), subjectFrom(r.Context()), req.Question, req.DocumentIDs)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeOK(w, http.StatusOK, "answer", entry)
}

func (h *Handler) qaHistory(w http.ResponseWriter, r *http.Request) {
	page, err := h.qa.History(r.Context(), subjectFrom(r.Context()), pageFrom(r))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeOK(w, http.StatusOK, "history", page)
}

func (h *Handler) clearQAHistory(w http.ResponseWriter, r *http.Request) {
	n, err := h.qa.ClearHistory(r.Context(), subjectFrom(r.Context()))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeOK(w, http.StatusOK, "history cleared", clearResponse{Deleted: n})
}

func (h *Handler) getQAEntry(w http.ResponseWriter, r *http.Request) {
	entry, err := h.qa.GetHistory(r.Context(), subjectFrom(r.Context()), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeOK(w, http.StatusOK, "history entry", entry)
}

func (h *Handler) deleteQAEntry(w http.ResponseWriter, r *http.Request) {
	if err := h.qa.DeleteHistory(r.Context(), subjectFrom(r.Context()), mux.Vars(r)["id"]); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeOK(w, http.StatusOK, "history entry deleted", nil)
}
