package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/docvault/internal/logging"
	"github.com/dmitrijs2005/docvault/internal/server/auth"
	"github.com/dmitrijs2005/docvault/internal/server/config"
	"github.com/dmitrijs2005/docvault/internal/server/events"
	"github.com/dmitrijs2005/docvault/internal/server/models"
	"github.com/dmitrijs2005/docvault/internal/server/qa"
	"github.com/dmitrijs2005/docvault/internal/server/repositories/memory"
	"github.com/dmitrijs2005/docvault/internal/server/services"
	"github.com/dmitrijs2005/docvault/internal/server/storage"
	"github.com/stretchr/testify/require"
)

type testAPI struct {
	handler http.Handler
	m       *memory.Manager
	mock    sqlmock.Sqlmock
	store   *storage.MemoryStore
	cfg     *config.Config
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	return newTestAPIWithLogger(t, logging.Nop{})
}

// newTestAPIWithLogger gives the router its own logger while the services
// stay silent.
func newTestAPIWithLogger(t *testing.T, routerLog logging.Logger) *testAPI {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	cfg := &config.Config{}
	cfg.LoadDefaults()
	cfg.SecretKey = "test-secret"
	cfg.AccessTokenTTL = time.Hour
	cfg.RefreshTokenTTL = 2 * time.Hour
	cfg.MaxUploadSize = 1 << 10

	m := memory.NewManager()
	store := storage.NewMemoryStore()
	loader := qa.NewContentLoader(store, qa.NewMemoryCache(time.Minute, 16))
	log := logging.Nop{}

	handler := NewRouter(Deps{
		Users:         services.NewUserService(db, m, auth.NewMemoryRevoker(), log, cfg),
		Documents:     services.NewDocumentService(db, m, store, events.Noop{}, loader, log, cfg),
		Permissions:   services.NewPermissionService(db, m, log),
		Ingestion:     services.NewIngestionService(db, m, events.Noop{}, log),
		QA:            services.NewQAService(db, m, loader, log),
		Logger:        routerLog,
		MaxUploadSize: cfg.MaxUploadSize,
	})
	return &testAPI{handler: handler, m: m, mock: mock, store: store, cfg: cfg}
}

func (a *testAPI) token(t *testing.T, u *models.User) string {
	t.Helper()
	tok, _, err := auth.GenerateToken(u.ID, u.Role, []byte(a.cfg.SecretKey), time.Hour)
	require.NoError(t, err)
	return tok
}

func (a *testAPI) expectTx() {
	a.mock.ExpectBegin()
	a.mock.ExpectCommit()
}

// do sends a JSON request; body may be nil, a string or any value to encode.
func (a *testAPI) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		r = bytes.NewBufferString(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		r = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return a.send(req, token)
}

func (a *testAPI) upload(t *testing.T, path, token string, fields map[string]string, filename, contentType, content string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="`+filename+`"`)
	h.Set("Content-Type", contentType)
	part, err := mw.CreatePart(h)
	require.NoError(t, err)
	_, err = io.WriteString(part, content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return a.send(req, token)
}

func (a *testAPI) send(req *http.Request, token string) *httptest.ResponseRecorder {
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	return rec
}

// messageLogger records Info messages, including those of child loggers.
type messageLogger struct {
	logging.Nop
	msgs []string
}

func (l *messageLogger) With(...any) logging.Logger { return l }

func (l *messageLogger) Info(_ context.Context, msg string, _ ...any) {
	l.msgs = append(l.msgs, msg)
}

type response[T any] struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    T      `json:"data"`
	Errors  []struct {
		Field   string `json:"field"`
		Message string `json:"message"`
	} `json:"errors"`
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) response[T] {
	t.Helper()
	var out response[T]
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}
