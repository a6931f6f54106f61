package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/docvault/internal/common"
	"github.com/dmitrijs2005/docvault/internal/logging"
	"github.com/dmitrijs2005/docvault/internal/server/access"
	"github.com/dmitrijs2005/docvault/internal/server/models"
	"github.com/dmitrijs2005/docvault/internal/server/qa"
	"github.com/dmitrijs2005/docvault/internal/server/repositories/memory"
	"github.com/dmitrijs2005/docvault/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/docvault/internal/server/storage"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type qaFixture struct {
	svc   *QAService
	m     *memory.Manager
	store *storage.MemoryStore
}

func newQAFixture(t *testing.T) *qaFixture {
	t.Helper()
	db, _ := newSQLMockDB(t)
	m := memory.NewManager()
	store := storage.NewMemoryStore()
	loader := qa.NewContentLoader(store, qa.NewMemoryCache(time.Minute, 16))
	return &qaFixture{svc: NewQAService(db, m, loader, logging.Nop{}), m: m, store: store}
}

func (f *qaFixture) doc(t *testing.T, owner *models.User, title, body string) *models.Document {
	t.Helper()
	d := f.m.SeedDocument(owner.ID, title)
	require.NoError(t, f.store.Put(context.Background(), d.StorageKey, strings.NewReader(body), int64(len(body)), "text/plain"))
	return d
}

func TestAsk_RanksReadableDocuments(t *testing.T) {
	f := newQAFixture(t)
	ctx := context.Background()
	owner := f.m.SeedUser("ow@example.com", models.RoleEditor)
	asker := f.m.SeedUser("as@example.com", models.RoleViewer)

	budget := f.doc(t, owner, "Budget", "The budget for 2026 grows. Budget review in May.")
	notes := f.doc(t, owner, "Notes", "Meeting notes mention the budget once.")
	hidden := f.doc(t, owner, "Hidden", "budget budget budget budget")
	f.m.Grant(budget.ID, asker.ID, models.PermissionRead)
	f.m.Grant(notes.ID, asker.ID, models.PermissionRead)

	h, err := f.svc.Ask(ctx, subjectOf(asker), "What is the budget?", nil)
	require.NoError(t, err)
	require.Len(t, h.Sources, 2)
	assert.Equal(t, budget.ID, h.Sources[0].DocumentID)
	assert.Equal(t, 2, h.Sources[0].Score)
	assert.Equal(t, notes.ID, h.Sources[1].DocumentID)
	for _, s := range h.Sources {
		assert.NotEqual(t, hidden.ID, s.DocumentID)
	}
	assert.NotEmpty(t, h.ID, "saved to history")

	h, err = f.svc.Ask(ctx, subjectOf(asker), "budget", []string{notes.ID, hidden.ID})
	require.NoError(t, err)
	require.Len(t, h.Sources, 1)
	assert.Equal(t, notes.ID, h.Sources[0].DocumentID)
}

func TestAsk_Fallbacks(t *testing.T) {
	f := newQAFixture(t)
	ctx := context.Background()
	owner := f.m.SeedUser("ow@example.com", models.RoleEditor)
	f.doc(t, owner, "Doc", "nothing relevant")

	h, err := f.svc.Ask(ctx, subjectOf(owner), "quantum entanglement", nil)
	require.NoError(t, err)
	assert.Equal(t, qa.FallbackAnswer, h.Answer)
	assert.Empty(t, h.Sources)

	f.m.Fail["documents.ListReadable"] = errBoom
	h, err = f.svc.Ask(ctx, subjectOf(owner), "nothing", nil)
	require.NoError(t, err, "internal errors are swallowed")
	assert.Equal(t, qa.FallbackAnswer, h.Answer)

	delete(f.m.Fail, "documents.ListReadable")
	f.m.Fail["qahistory.Create"] = errBoom
	h, err = f.svc.Ask(ctx, subjectOf(owner), "relevant", nil)
	require.NoError(t, err, "history is best effort")
	assert.Empty(t, h.ID)
	assert.Len(t, h.Sources, 1)

	_, err = f.svc.Ask(ctx, subjectOf(owner), "   ", nil)
	var verr *common.ValidationError
	assert.True(t, errors.As(err, &verr))
}

func TestAsk_MalformedIDsAreSkipped(t *testing.T) {
	f := newQAFixture(t)
	ctx := context.Background()
	owner := f.m.SeedUser("ow@example.com", models.RoleEditor)
	doc := f.doc(t, owner, "Plan", "the rollout plan")

	h, err := f.svc.Ask(ctx, subjectOf(owner), "rollout", []string{"nope", doc.ID})
	require.NoError(t, err)
	require.Len(t, h.Sources, 1)
	assert.Equal(t, doc.ID, h.Sources[0].DocumentID)

	h, err = f.svc.Ask(ctx, subjectOf(owner), "rollout", []string{"nope"})
	require.NoError(t, err)
	assert.Equal(t, qa.FallbackAnswer, h.Answer)
	assert.Empty(t, h.Sources)
}

func TestAsk_OnlyParsedIDsReachTheQuery(t *testing.T) {
	db, mock := newSQLMockDB(t)
	loader := qa.NewContentLoader(storage.NewMemoryStore(), qa.NewMemoryCache(time.Minute, 16))
	svc := NewQAService(db, repomanager.NewPostgresRepositoryManager(), loader, logging.Nop{})
	admin := access.Subject{UserID: uuid.NewString(), Role: models.RoleAdmin}
	valid := uuid.NewString()

	mock.ExpectQuery(`id\s+IN\s+\(SELECT\s+jsonb_array_elements_text\(\$1::jsonb\)::uuid\)`).
		WithArgs([]byte(`["` + valid + `"]`)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	h, err := svc.Ask(context.Background(), admin, "anything", []string{"nope", valid, "1234"})
	require.NoError(t, err)
	assert.Equal(t, qa.FallbackAnswer, h.Answer)

	_, err = svc.Ask(context.Background(), admin, "anything", []string{"nope"})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet(), "no document query when nothing parses")
}

func TestAsk_MissingBlobIsSkipped(t *testing.T) {
	f := newQAFixture(t)
	ctx := context.Background()
	owner := f.m.SeedUser("ow@example.com", models.RoleEditor)
	f.m.SeedDocument(owner.ID, "orphan")
	good := f.doc(t, owner, "Good", "orphan mention")

	h, err := f.svc.Ask(ctx, subjectOf(owner), "orphan", nil)
	require.NoError(t, err)
	require.Len(t, h.Sources, 1)
	assert.Equal(t, good.ID, h.Sources[0].DocumentID)
}

func TestHistory(t *testing.T) {
	f := newQAFixture(t)
	ctx := context.Background()
	me := f.m.SeedUser("me@example.com", models.RoleViewer)
	other := f.m.SeedUser("ot@example.com", models.RoleViewer)

	first, err := f.svc.Ask(ctx, subjectOf(me), "first question", nil)
	require.NoError(t, err)
	second, err := f.svc.Ask(ctx, subjectOf(me), "second question", nil)
	require.NoError(t, err)
	_, err = f.svc.Ask(ctx, subjectOf(other), "their question", nil)
	require.NoError(t, err)

	page, err := f.svc.History(ctx, subjectOf(me), models.Page{})
	require.NoError(t, err)
	require.Equal(t, 2, page.Total)
	assert.Equal(t, second.ID, page.Items[0].ID, "newest first")

	got, err := f.svc.GetHistory(ctx, subjectOf(me), first.ID)
	require.NoError(t, err)
	assert.Equal(t, "first question", got.Question)

	_, err = f.svc.GetHistory(ctx, subjectOf(other), first.ID)
	assert.ErrorIs(t, err, common.ErrorNotFound)

	require.NoError(t, f.svc.DeleteHistory(ctx, subjectOf(me), first.ID))
	assert.ErrorIs(t, f.svc.DeleteHistory(ctx, subjectOf(me), first.ID), common.ErrorNotFound)

	n, err := f.svc.ClearHistory(ctx, subjectOf(me))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	page, err = f.svc.History(ctx, subjectOf(other), models.Page{})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)
}
