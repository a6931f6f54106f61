// Package rest exposes the docvault services over a JSON HTTP API.
package rest

import (
	"github.com/dmitrijs2005/docvault/internal/logging"
)

// Handler holds the services behind every route.
type Handler struct {
	users       UserService
	documents   DocumentService
	permissions PermissionService
	ingestion   IngestionService
	qa          QAService
	logger      logging.Logger
	maxUpload   int64
}

func NewHandler(d Deps) *Handler {
	logger := d.Logger
	if logger == nil {
		logger = logging.Nop{}
	}
	return &Handler{
		users:       d.Users,
		documents:   d.Documents,
		permissions: d.Permissions,
		ingestion:   d.Ingestion,
		qa:          d.QA,
		logger:      logger.With("module", "rest"),
		maxUpload:   d.MaxUploadSize,
	}
}
