package rest

import (
	"context"
	"net/http"

	"github.com/dmitrijs2005/docvault/internal/logging"
	"github.com/gorilla/mux"
)

// multipartOverhead is the allowance on top of the max upload size for the
// multipart envelope and form fields.
const multipartOverhead = 1 << 20

// Deps are the collaborators of the HTTP API.
type Deps struct {
	Users       UserService
	Documents   DocumentService
	Permissions PermissionService
	Ingestion   IngestionService
	QA          QAService
	Logger      logging.Logger

	// Limiter is optional; nil disables rate limiting.
	Limiter       *RateLimiter
	CORSOrigins   []string
	MaxUploadSize int64

	// Health reports whether dependencies are reachable. Nil means healthy.
	Health func(ctx context.Context) error
}

// NewRouter builds the full handler chain for the API.
func NewRouter(d Deps) http.Handler {
	h := NewHandler(d)

	r := mux.NewRouter()
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeFail(w, http.StatusNotFound, "route not found", nil)
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeFail(w, http.StatusMethodNotAllowed, "method not allowed", nil)
	})

	r.HandleFunc("/health", health(d.Health)).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()

	public := api.PathPrefix("/auth").Subrouter()
	public.HandleFunc("/register", h.register).Methods(http.MethodPost)
	public.HandleFunc("/login", h.login).Methods(http.MethodPost)
	public.HandleFunc("/refresh", h.refresh).Methods(http.MethodPost)

	secured := api.NewRoute().Subrouter()
	secured.Use(h.authenticate)

	secured.HandleFunc("/auth/logout", h.logout).Methods(http.MethodPost)
	secured.HandleFunc("/auth/me", h.me).Methods(http.MethodGet)
	secured.HandleFunc("/auth/me", h.updateMe).Methods(http.MethodPut)

	admin := secured.PathPrefix("/users").Subrouter()
	admin.Use(requireAdmin)
	admin.HandleFunc("", h.listUsers).Methods(http.MethodGet)
	admin.HandleFunc("", h.createUser).Methods(http.MethodPost)
	admin.HandleFunc("/{id}", h.getUser).Methods(http.MethodGet)
	admin.HandleFunc("/{id}", h.updateUser).Methods(http.MethodPut)
	admin.HandleFunc("/{id}", h.deactivateUser).Methods(http.MethodDelete)

	docs := secured.PathPrefix("/documents").Subrouter()
	docs.HandleFunc("", h.listDocuments).Methods(http.MethodGet)
	docs.HandleFunc("", h.uploadDocument).Methods(http.MethodPost)
	docs.HandleFunc("/{id}", h.getDocument).Methods(http.MethodGet)
	docs.HandleFunc("/{id}", h.updateDocument).Methods(http.MethodPut)
	docs.HandleFunc("/{id}", h.deleteDocument).Methods(http.MethodDelete)
	docs.HandleFunc("/{id}/download", h.downloadDocument).Methods(http.MethodGet)
	docs.HandleFunc("/{id}/versions", h.listVersions).Methods(http.MethodGet)
	docs.HandleFunc("/{id}/versions", h.createVersion).Methods(http.MethodPost)
	docs.HandleFunc("/{id}/versions/latest", h.latestVersion).Methods(http.MethodGet)
	docs.HandleFunc("/{id}/versions/{n:[0-9]+}", h.getVersion).Methods(http.MethodGet)
	docs.HandleFunc("/{id}/versions/{n:[0-9]+}/download", h.downloadVersion).Methods(http.MethodGet)
	docs.HandleFunc("/{id}/permissions", h.listPermissions).Methods(http.MethodGet)
	docs.HandleFunc("/{id}/permissions", h.grantPermission).Methods(http.MethodPost)
	docs.HandleFunc("/{id}/permissions/{permissionId}", h.revokePermission).Methods(http.MethodDelete)

	jobs := secured.PathPrefix("/ingestion").Subrouter()
	jobs.HandleFunc("", h.listJobs).Methods(http.MethodGet)
	jobs.HandleFunc("", h.createJob).Methods(http.MethodPost)
	jobs.HandleFunc("/document/{documentId}", h.documentJobs).Methods(http.MethodGet)
	jobs.HandleFunc("/document/{documentId}", h.triggerJob).Methods(http.MethodPost)
	jobs.HandleFunc("/{id}", h.getJob).Methods(http.MethodGet)
	jobs.HandleFunc("/{id}", h.updateJob).Methods(http.MethodPut)

	qa := secured.PathPrefix("/qa").Subrouter()
	qa.HandleFunc("/ask", h.ask).Methods(http.MethodPost)
	qa.HandleFunc("/history", h.qaHistory).Methods(http.MethodGet)
	qa.HandleFunc("/history", h.clearQAHistory).Methods(http.MethodDelete)
	qa.HandleFunc("/history/{id}", h.getQAEntry).Methods(http.MethodGet)
	qa.HandleFunc("/history/{id}", h.deleteQAEntry).Methods(http.MethodDelete)

	// The chain wraps the router so preflight requests and unknown routes
	// pass through it as well.
	var handler http.Handler = r
	handler = bodyLimit(d.MaxUploadSize + multipartOverhead)(handler)
	handler = d.Limiter.Middleware(handler)
	handler = cors(d.CORSOrigins)(handler)
	handler = securityHeaders(handler)
	handler = requestLogger(h.logger)(handler)
	handler = recoverer(h.logger)(handler)
	return handler
}

func health(check func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			if err := check(r.Context()); err != nil {
				writeFail(w, http.StatusServiceUnavailable, "unhealthy", nil)
				return
			}
		}
		writeOK(w, http.StatusOK, "ok", map[string]string{"status": "ok"})
	}
}
