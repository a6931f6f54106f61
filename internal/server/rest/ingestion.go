package rest

import (
	"net/http"

	"github.com/dmitrijs2005/docvault/internal/server/models"
	"github.com/gorilla/mux"
)

type createJobRequest struct {
	DocumentID string `json:"documentId"`
}

type updateJobRequest struct {
	Status       models.JobStatus `json:"status"`
	ErrorMessage *string          `json:"errorMessage"`
}

func (h *Handler) listJobs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := models.JobFilter{
		DocumentID: q.Get("documentId"),
		Status:     models.JobStatus(q.Get("status")),
		Page:       pageFrom(r),
	}

	page, err := h.ingestion.List(r.Context(), subjectFrom(r.Context()), filter)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeOK(w, http.StatusOK, "ingestion jobs", page)
}

func (h *Handler) createJob(w http.ResponseWriter, r *http.Request) {
	var req createJobRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	h.createJobFor(w, r, req.DocumentID)
}

// triggerJob starts a manual ingestion run for the document in the path.
func (h *Handler) triggerJob(w http.ResponseWriter, r *http.Request) {
	h.createJobFor(w, r, mux.Vars(r)["documentId"])
}

func (h *Handler) createJobFor(w http.ResponseWriter, r *http.Request, documentID string) {
	job, err := h.ingestion.Create(r.Context(), subjectFrom(r.Context()), documentID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeOK(w, http.StatusCreated, "ingestion job created", job)
}

func (h *Handler) getJob(w http.ResponseWriter, r *http.Request) {
	job, err := h.ingestion.Get(r.Context(), subjectFrom(r.Context()), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeOK(w, http.StatusOK, "ingestion job", job)
}

func (h *Handler) updateJob(w http.ResponseWriter, r *http.Request) {
	var req updateJobRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	job, err := h.ingestion.UpdateStatus(r.Context(), subjectFrom(r.Context()), mux.Vars(r)["id"], req.Status, req.ErrorMessage)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeOK(w, http.StatusOK, "ingestion job updated", job)
}

func (h *Handler) documentJobs(w http.ResponseWriter, r *http.Request) {
	page, err := h.ingestion.ListForDocument(r.Context(), subjectFrom(r.Context()), mux.Vars(r)["documentId"], pageFrom(r))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeOK(w, http.StatusOK, "ingestion jobs", page)
}
