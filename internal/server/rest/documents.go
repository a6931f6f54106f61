package rest

import (
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/dmitrijs2005/docvault/internal/common"
	"github.com/dmitrijs2005/docvault/internal/server/models"
	"github.com/dmitrijs2005/docvault/internal/server/services"
	"github.com/dmitrijs2005/docvault/internal/server/storage"
	"github.com/gorilla/mux"
)

// multipartMemory is how much of a multipart form is held in memory before
// spilling to temporary files.
const multipartMemory = 8 << 20

type updateDocumentRequest struct {
	Title       *string  `json:"title"`
	Description *string  `json:"description"`
	Tags        []string `json:"tags"`
}

func (h *Handler) listDocuments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := models.DocumentFilter{
		Search: strings.TrimSpace(q.Get("search")),
		Tag:    strings.ToLower(strings.TrimSpace(q.Get("tag"))),
		Page:   pageFrom(r),
	}

	page, err := h.documents.List(r.Context(), subjectFrom(r.Context()), filter)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeOK(w, http.StatusOK, "documents", page)
}

func (h *Handler) uploadDocument(w http.ResponseWriter, r *http.Request) {
	file, closeFn, err := h.formFile(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	defer closeFn()

	tags, err := parseTags(r.MultipartForm.Value["tags"])
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	in := services.NewDocument{
		Title:       r.FormValue("title"),
		Description: r.FormValue("description"),
		Tags:        tags,
	}
	doc, err := h.documents.Upload(r.Context(), subjectFrom(r.Context()), in, file)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeOK(w, http.StatusCreated, "document uploaded", doc)
}

func (h *Handler) getDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := h.documents.Get(r.Context(), subjectFrom(r.Context()), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeOK(w, http.StatusOK, "document", doc)
}

func (h *Handler) updateDocument(w http.ResponseWriter, r *http.Request) {
	var req updateDocumentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	doc, err := h.documents.Update(r.Context(), subjectFrom(r.Context()), mux.Vars(r)["id"], models.DocumentUpdate{
		Title:       req.Title,
		Description: req.Description,
		Tags:        req.Tags,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeOK(w, http.StatusOK, "document updated", doc)
}

func (h *Handler) deleteDocument(w http.ResponseWriter, r *http.Request) {
	permanent, err := boolQuery(r, "permanent")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	hard := permanent != nil && *permanent

	id := mux.Vars(r)["id"]
	if err := h.documents.Delete(r.Context(), subjectFrom(r.Context()), id, hard); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	if hard {
		writeOK(w, http.StatusOK, "document permanently deleted", nil)
		return
	}
	writeOK(w, http.StatusOK, "document deleted", nil)
}

func (h *Handler) downloadDocument(w http.ResponseWriter, r *http.Request) {
	ref, body, err := h.documents.Download(r.Context(), subjectFrom(r.Context()), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	h.stream(w, r, *ref, body)
}

func (h *Handler) createVersion(w http.ResponseWriter, r *http.Request) {
	file, closeFn, err := h.formFile(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	defer closeFn()

	v, err := h.documents.CreateVersion(r.Context(), subjectFrom(r.Context()), mux.Vars(r)["id"], file, r.FormValue("changeSummary"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeOK(w, http.StatusCreated, "version created", v)
}

func (h *Handler) listVersions(w http.ResponseWriter, r *http.Request) {
	list, err := h.documents.ListVersions(r.Context(), subjectFrom(r.Context()), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeOK(w, http.StatusOK, "versions", list)
}

func (h *Handler) latestVersion(w http.ResponseWriter, r *http.Request) {
	v, err := h.documents.LatestVersion(r.Context(), subjectFrom(r.Context()), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeOK(w, http.StatusOK, "version", v)
}

func (h *Handler) getVersion(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	v, err := h.documents.GetVersion(r.Context(), subjectFrom(r.Context()), vars["id"], versionNumber(vars))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeOK(w, http.StatusOK, "version", v)
}

func (h *Handler) downloadVersion(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	v, body, err := h.documents.DownloadVersion(r.Context(), subjectFrom(r.Context()), vars["id"], versionNumber(vars))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	h.stream(w, r, v.FileRef, body)
}

// versionNumber is 0, which never exists, when the path value does not fit
// an int.
func versionNumber(vars map[string]string) int {
	n, err := strconv.Atoi(vars["n"])
	if err != nil {
		return 0
	}
	return n
}

// stream copies a blob to the response. Errors after the headers are sent
// can only be logged.
func (h *Handler) stream(w http.ResponseWriter, r *http.Request, ref models.FileRef, body io.ReadCloser) {
	defer body.Close()

	hdr := w.Header()
	contentType := ref.FileType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	hdr.Set("Content-Type", contentType)
	hdr.Set("Content-Disposition", storage.ContentDisposition(ref.FileName))
	if ref.FileSize > 0 {
		hdr.Set("Content-Length", strconv.FormatInt(ref.FileSize, 10))
	}
	w.WriteHeader(http.StatusOK)

	if _, err := io.Copy(w, body); err != nil {
		h.logger.Warn(r.Context(), "download interrupted", "path", r.URL.Path, "error", err)
	}
}

// formFile parses a multipart request and returns its "file" part. The
// returned func releases temporary files.
func (h *Handler) formFile(r *http.Request) (services.FileUpload, func(), error) {
	noop := func() {}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return services.FileUpload{}, noop, common.ErrorFileTooLarge
		}
		return services.FileUpload{}, noop, common.NewValidationError("file", "multipart form data is required")
	}
	cleanup := func() { _ = r.MultipartForm.RemoveAll() }

	f, hdr, err := r.FormFile("file")
	if err != nil {
		cleanup()
		return services.FileUpload{}, noop, common.NewValidationError("file", "file is required")
	}

	return fileUpload(f, hdr), func() {
		_ = f.Close()
		cleanup()
	}, nil
}

func fileUpload(f multipart.File, hdr *multipart.FileHeader) services.FileUpload {
	return services.FileUpload{
		FileName:    hdr.Filename,
		ContentType: hdr.Header.Get("Content-Type"),
		Size:        hdr.Size,
		Body:        f,
	}
}

// parseTags accepts repeated fields, comma separated lists or a JSON array.
func parseTags(values []string) ([]string, error) {
	var tags []string
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if strings.HasPrefix(v, "[") {
			var list []string
			if err := json.Unmarshal([]byte(v), &list); err != nil {
				return nil, common.NewValidationError("tags", "must be a JSON array of strings")
			}
			tags = append(tags, list...)
			continue
		}
		tags = append(tags, strings.Split(v, ",")...)
	}
	return tags, nil
}
