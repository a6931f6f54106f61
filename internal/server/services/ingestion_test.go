package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/docvault/internal/common"
	"github.com/dmitrijs2005/docvault/internal/logging"
	"github.com/dmitrijs2005/docvault/internal/server/models"
	"github.com/dmitrijs2005/docvault/internal/server/repositories/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyStatus(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	msg := "parse error"

	job := &models.IngestionJob{Status: models.JobPending}

	require.NoError(t, ApplyStatus(job, models.JobProcessing, nil, t0))
	require.NotNil(t, job.StartedAt)
	assert.Equal(t, t0, *job.StartedAt)
	assert.Nil(t, job.CompletedAt)

	t1 := t0.Add(time.Minute)
	require.NoError(t, ApplyStatus(job, models.JobFailed, &msg, t1))
	assert.Equal(t, t1, *job.CompletedAt)
	require.NotNil(t, job.ErrorMessage)
	assert.Equal(t, "parse error", *job.ErrorMessage)

	// Retry: back to pending leaves completion data alone.
	require.NoError(t, ApplyStatus(job, models.JobPending, nil, t1.Add(time.Minute)))
	assert.Equal(t, models.JobPending, job.Status)
	assert.Equal(t, t1, *job.CompletedAt)
	assert.Equal(t, "parse error", *job.ErrorMessage)

	t2 := t1.Add(time.Hour)
	require.NoError(t, ApplyStatus(job, models.JobCompleted, &msg, t2))
	assert.Equal(t, t2, *job.CompletedAt)
	assert.Equal(t, t0, *job.StartedAt)

	fresh := &models.IngestionJob{Status: models.JobProcessing}
	require.NoError(t, ApplyStatus(fresh, models.JobFailed, nil, t0))
	assert.Nil(t, fresh.ErrorMessage)

	err := ApplyStatus(fresh, "done", nil, t0)
	var verr *common.ValidationError
	assert.True(t, errors.As(err, &verr))
	assert.Equal(t, models.JobFailed, fresh.Status)
}

type ingestionFixture struct {
	svc  *IngestionService
	m    *memory.Manager
	mock sqlmock.Sqlmock
	pub  *recordingPublisher
}

func newIngestionFixture(t *testing.T) *ingestionFixture {
	t.Helper()
	db, mock := newSQLMockDB(t)
	m := memory.NewManager()
	pub := &recordingPublisher{}
	return &ingestionFixture{svc: NewIngestionService(db, m, pub, logging.Nop{}), m: m, mock: mock, pub: pub}
}

func TestIngestion_CreateAndUpdate(t *testing.T) {
	f := newIngestionFixture(t)
	ctx := context.Background()
	owner := f.m.SeedUser("ow@example.com", models.RoleEditor)
	doc := f.m.SeedDocument(owner.ID, "doc")

	job, err := f.svc.Create(ctx, subjectOf(owner), doc.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobPending, job.Status)
	assert.Nil(t, job.VersionNumber)
	assert.Nil(t, job.CompletedAt)

	expectTx(f.mock)
	job, err = f.svc.UpdateStatus(ctx, subjectOf(owner), job.ID, models.JobProcessing, nil)
	require.NoError(t, err)
	assert.NotNil(t, job.StartedAt)

	expectTx(f.mock)
	job, err = f.svc.UpdateStatus(ctx, subjectOf(owner), job.ID, models.JobCompleted, nil)
	require.NoError(t, err)
	assert.NotNil(t, job.CompletedAt)
	require.NoError(t, f.mock.ExpectationsWereMet())

	require.Len(t, f.pub.events, 3)
	assert.Equal(t, models.JobCompleted, f.pub.events[2].Status)

	stored, err := f.svc.Get(ctx, subjectOf(owner), job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobCompleted, stored.Status)
}

func TestIngestion_Errors(t *testing.T) {
	f := newIngestionFixture(t)
	ctx := context.Background()
	owner := f.m.SeedUser("ow@example.com", models.RoleEditor)
	reader := f.m.SeedUser("re@example.com", models.RoleViewer)
	doc := f.m.SeedDocument(owner.ID, "doc")
	f.m.Grant(doc.ID, reader.ID, models.PermissionRead)

	var verr *common.ValidationError
	_, err := f.svc.Create(ctx, subjectOf(owner), "")
	assert.True(t, errors.As(err, &verr))

	_, err = f.svc.Create(ctx, subjectOf(reader), doc.ID)
	assert.ErrorIs(t, err, common.ErrorForbidden)

	job, err := f.svc.Create(ctx, subjectOf(owner), doc.ID)
	require.NoError(t, err)

	_, err = f.svc.UpdateStatus(ctx, subjectOf(owner), job.ID, "done", nil)
	assert.True(t, errors.As(err, &verr))

	expectRollback(f.mock)
	_, err = f.svc.UpdateStatus(ctx, subjectOf(owner), "missing", models.JobFailed, nil)
	assert.ErrorIs(t, err, common.ErrorNotFound)

	expectRollback(f.mock)
	_, err = f.svc.UpdateStatus(ctx, subjectOf(reader), job.ID, models.JobFailed, nil)
	assert.ErrorIs(t, err, common.ErrorForbidden)
	require.NoError(t, f.mock.ExpectationsWereMet())

	got, err := f.svc.Get(ctx, subjectOf(reader), job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobPending, got.Status)
}

func TestIngestion_List(t *testing.T) {
	f := newIngestionFixture(t)
	ctx := context.Background()
	owner := f.m.SeedUser("ow@example.com", models.RoleEditor)
	reader := f.m.SeedUser("re@example.com", models.RoleViewer)
	admin := f.m.SeedUser("ad@example.com", models.RoleAdmin)
	shared := f.m.SeedDocument(owner.ID, "shared")
	private := f.m.SeedDocument(owner.ID, "private")
	f.m.Grant(shared.ID, reader.ID, models.PermissionRead)

	for _, d := range []*models.Document{shared, private, private} {
		_, err := f.svc.Create(ctx, subjectOf(owner), d.ID)
		require.NoError(t, err)
	}

	page, err := f.svc.List(ctx, subjectOf(reader), models.JobFilter{})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)

	page, err = f.svc.List(ctx, subjectOf(admin), models.JobFilter{Status: models.JobPending})
	require.NoError(t, err)
	assert.Equal(t, 3, page.Total)

	page, err = f.svc.ListForDocument(ctx, subjectOf(owner), private.ID, models.Page{})
	require.NoError(t, err)
	assert.Equal(t, 2, page.Total)

	_, err = f.svc.ListForDocument(ctx, subjectOf(reader), private.ID, models.Page{})
	assert.ErrorIs(t, err, common.ErrorForbidden)

	_, err = f.svc.List(ctx, subjectOf(admin), models.JobFilter{Status: "weird"})
	var verr *common.ValidationError
	assert.True(t, errors.As(err, &verr))

	_, err = f.svc.List(ctx, subjectOf(admin), models.JobFilter{DocumentID: "not-a-uuid"})
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "documentId", verr.Fields[0].Field)
}
