package services

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/docvault/internal/logging"
	"github.com/dmitrijs2005/docvault/internal/server/access"
	"github.com/dmitrijs2005/docvault/internal/server/auth"
	"github.com/dmitrijs2005/docvault/internal/server/config"
	"github.com/dmitrijs2005/docvault/internal/server/events"
	"github.com/dmitrijs2005/docvault/internal/server/models"
	"github.com/dmitrijs2005/docvault/internal/server/repositories/memory"
	"github.com/dmitrijs2005/docvault/internal/server/storage"
)

var errBoom = errors.New("boom")

func newSQLMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func expectTx(mock sqlmock.Sqlmock) {
	mock.ExpectBegin()
	mock.ExpectCommit()
}

func expectRollback(mock sqlmock.Sqlmock) {
	mock.ExpectBegin()
	mock.ExpectRollback()
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.LoadDefaults()
	cfg.SecretKey = "test-secret"
	cfg.AccessTokenTTL = time.Hour
	cfg.RefreshTokenTTL = 2 * time.Hour
	cfg.MaxUploadSize = 1 << 10
	return cfg
}

func subjectOf(u *models.User) access.Subject {
	return access.Subject{UserID: u.ID, Role: u.Role}
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.JobEvent
	err    error
}

func (p *recordingPublisher) PublishJobEvent(_ context.Context, ev events.JobEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.err
}

func (p *recordingPublisher) Close() error { return nil }

type recordingCache struct {
	invalidated []string
}

func (c *recordingCache) Invalidate(_ context.Context, id string) error {
	c.invalidated = append(c.invalidated, id)
	return nil
}

type docFixture struct {
	db    *sql.DB
	mock  sqlmock.Sqlmock
	m     *memory.Manager
	store *storage.MemoryStore
	pub   *recordingPublisher
	cache *recordingCache
	svc   *DocumentService
}

func newDocFixture(t *testing.T) *docFixture {
	t.Helper()
	db, mock := newSQLMockDB(t)
	f := &docFixture{
		db: db, mock: mock,
		m:     memory.NewManager(),
		store: storage.NewMemoryStore(),
		pub:   &recordingPublisher{},
		cache: &recordingCache{},
	}
	f.svc = NewDocumentService(db, f.m, f.store, f.pub, f.cache, logging.Nop{}, testConfig())
	return f
}

func newUserFixture(t *testing.T) (*UserService, *memory.Manager, sqlmock.Sqlmock, *auth.MemoryRevoker) {
	t.Helper()
	db, mock := newSQLMockDB(t)
	m := memory.NewManager()
	rev := auth.NewMemoryRevoker()
	return NewUserService(db, m, rev, logging.Nop{}, testConfig()), m, mock, rev
}
