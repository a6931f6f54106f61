package rest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/dmitrijs2005/docvault/internal/common"
	"github.com/dmitrijs2005/docvault/internal/logging"
	"github.com/dmitrijs2005/docvault/internal/server/models"
)

const maxJSONBody = 1 << 20

var errEmptyBody = errors.New("request body is empty")

// envelope is the body of every JSON response.
type envelope struct {
	Success bool                `json:"success"`
	Message string              `json:"message"`
	Data    any                 `json:"data,omitempty"`
	Errors  []common.FieldError `json:"errors,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func writeOK(w http.ResponseWriter, status int, message string, data any) {
	writeJSON(w, status, envelope{Success: true, Message: message, Data: data})
}

func writeFail(w http.ResponseWriter, status int, message string, fields []common.FieldError) {
	if message == "" {
		message = http.StatusText(status)
	}
	writeJSON(w, status, envelope{Success: false, Message: message, Errors: fields})
}

// statusFor maps an error to its HTTP status and client-facing message.
// Unrecognised errors are 500 with a generic message.
func statusFor(err error) (int, string, []common.FieldError) {
	var verr *common.ValidationError
	var maxErr *http.MaxBytesError
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest, "validation failed", verr.Fields
	case errors.As(err, &maxErr), errors.Is(err, common.ErrorFileTooLarge):
		return http.StatusRequestEntityTooLarge, "file too large", nil
	case errors.Is(err, common.ErrorFileTypeNotAllowed):
		return http.StatusBadRequest, "file type not allowed", nil
	case errors.Is(err, common.ErrorInvalidCredentials):
		return http.StatusUnauthorized, "invalid email or password", nil
	case errors.Is(err, common.ErrTokenExpired):
		return http.StatusUnauthorized, "token expired", nil
	case errors.Is(err, common.ErrRefreshTokenExpired):
		return http.StatusUnauthorized, "refresh token expired", nil
	case errors.Is(err, common.ErrTokenRevoked):
		return http.StatusUnauthorized, "token revoked", nil
	case errors.Is(err, common.ErrInvalidToken), errors.Is(err, common.ErrorUnauthorized):
		return http.StatusUnauthorized, "unauthorized", nil
	case errors.Is(err, common.ErrorAccountDisabled):
		return http.StatusForbidden, "account disabled", nil
	case errors.Is(err, common.ErrorForbidden):
		return http.StatusForbidden, "forbidden", nil
	case errors.Is(err, common.ErrorNotFound):
		return http.StatusNotFound, "not found", nil
	case errors.Is(err, common.ErrorAlreadyExists):
		return http.StatusBadRequest, "duplicate value", nil
	case errors.Is(err, errEmptyBody):
		return http.StatusBadRequest, err.Error(), nil
	case errors.Is(err, context.Canceled):
		return 499, "request cancelled", nil
	}
	return http.StatusInternalServerError, "internal server error", nil
}

// writeError responds with the mapped status. 500s are logged with the cause.
func writeError(w http.ResponseWriter, r *http.Request, log logging.Logger, err error) {
	status, msg, fields := statusFor(err)
	if status == http.StatusInternalServerError {
		log.Error(r.Context(), "request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	writeFail(w, status, msg, fields)
}

// decodeJSON reads one JSON object into dst, rejecting unknown fields.
// Syntax errors become validation errors.
func decodeJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()

	dec := json.NewDecoder(io.LimitReader(r.Body, maxJSONBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.Is(err, io.EOF):
			return errEmptyBody
		case errors.As(err, &maxErr):
			return err
		}
		return common.NewValidationError("body", jsonProblem(err))
	}
	return nil
}

func jsonProblem(err error) string {
	var syn *json.SyntaxError
	var typ *json.UnmarshalTypeError
	switch {
	case errors.As(err, &syn):
		return fmt.Sprintf("malformed JSON at offset %d", syn.Offset)
	case errors.As(err, &typ):
		return fmt.Sprintf("field %q has the wrong type", typ.Field)
	case strings.HasPrefix(err.Error(), "json: unknown field "):
		return "unknown field " + strings.TrimPrefix(err.Error(), "json: unknown field ")
	}
	return "malformed JSON"
}

// pageFrom reads ?page= and ?limit=. Missing or malformed values fall back
// to the defaults applied by models.Page.Normalize.
func pageFrom(r *http.Request) models.Page {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	limit, _ := strconv.Atoi(q.Get("limit"))
	return models.Page{Page: page, Limit: limit}.Normalize()
}

// boolQuery parses an optional boolean query parameter.
func boolQuery(r *http.Request, name string) (*bool, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return nil, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return nil, common.NewValidationError(name, "must be true or false")
	}
	return &b, nil
}
