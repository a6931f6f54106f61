package services

import (
	"context"
	"io"
	"testing"

	"github.com/dmitrijs2005/docvault/internal/common"
	"github.com/dmitrijs2005/docvault/internal/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateVersion_NumbersAreContiguous(t *testing.T) {
	f := newDocFixture(t)
	ctx := context.Background()
	owner := f.m.SeedUser("ed@example.com", models.RoleEditor)
	doc := f.upload(t, owner, "spec", "v1")

	for want := 2; want <= 4; want++ {
		expectTx(f.mock)
		v, err := f.svc.CreateVersion(ctx, subjectOf(owner), doc.ID, textFile("spec.txt", "body"), "edit")
		require.NoError(t, err)
		assert.Equal(t, want, v.VersionNumber)
		assert.Equal(t, "edit", v.ChangeSummary)
	}
	require.NoError(t, f.mock.ExpectationsWereMet())

	list, err := f.svc.ListVersions(ctx, subjectOf(owner), doc.ID)
	require.NoError(t, err)
	require.Len(t, list, 4)
	for i, v := range list {
		assert.Equal(t, i+1, v.VersionNumber)
	}

	latest, err := f.svc.LatestVersion(ctx, subjectOf(owner), doc.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, latest.VersionNumber)

	current, err := f.svc.Get(ctx, subjectOf(owner), doc.ID)
	require.NoError(t, err)
	assert.Equal(t, latest.StorageKey, current.StorageKey, "document points at the newest file")

	assert.Len(t, f.m.Jobs, 4, "one pending job per version")
	assert.Len(t, f.pub.events, 4)
	assert.Contains(t, f.cache.invalidated, doc.ID)
}

func TestCreateVersion_Access(t *testing.T) {
	f := newDocFixture(t)
	ctx := context.Background()
	owner := f.m.SeedUser("ed@example.com", models.RoleEditor)
	reader := f.m.SeedUser("re@example.com", models.RoleViewer)
	writer := f.m.SeedUser("wr@example.com", models.RoleViewer)
	doc := f.upload(t, owner, "spec", "v1")
	f.m.Grant(doc.ID, reader.ID, models.PermissionRead)
	f.m.Grant(doc.ID, writer.ID, models.PermissionWrite)

	_, err := f.svc.CreateVersion(ctx, subjectOf(reader), doc.ID, textFile("x.txt", "x"), "")
	assert.ErrorIs(t, err, common.ErrorForbidden)

	expectTx(f.mock)
	v, err := f.svc.CreateVersion(ctx, subjectOf(writer), doc.ID, textFile("x.txt", "x"), "")
	require.NoError(t, err)
	assert.Equal(t, writer.ID, v.AuthorID)

	_, err = f.svc.CreateVersion(ctx, subjectOf(owner), "missing", textFile("x.txt", "x"), "")
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestCreateVersion_FailureCompensates(t *testing.T) {
	f := newDocFixture(t)
	ctx := context.Background()
	owner := f.m.SeedUser("ed@example.com", models.RoleEditor)
	doc := f.upload(t, owner, "spec", "v1")
	f.m.Fail["documents.UpdateFile"] = errBoom

	expectRollback(f.mock)
	_, err := f.svc.CreateVersion(ctx, subjectOf(owner), doc.ID, textFile("x.txt", "x"), "")
	assert.ErrorIs(t, err, errBoom)
	require.NoError(t, f.mock.ExpectationsWereMet())
	assert.Equal(t, 1, f.store.Len(), "only the original blob remains")
	assert.True(t, f.store.Has(doc.StorageKey))
}

func TestGetAndDownloadVersion(t *testing.T) {
	f := newDocFixture(t)
	ctx := context.Background()
	owner := f.m.SeedUser("ed@example.com", models.RoleEditor)
	doc := f.upload(t, owner, "spec", "first")
	expectTx(f.mock)
	_, err := f.svc.CreateVersion(ctx, subjectOf(owner), doc.ID, textFile("spec.txt", "second"), "")
	require.NoError(t, err)

	v, rc, err := f.svc.DownloadVersion(ctx, subjectOf(owner), doc.ID, 1)
	require.NoError(t, err)
	b, _ := io.ReadAll(rc)
	_ = rc.Close()
	assert.Equal(t, 1, v.VersionNumber)
	assert.Equal(t, "first", string(b))

	_, err = f.svc.GetVersion(ctx, subjectOf(owner), doc.ID, 3)
	assert.ErrorIs(t, err, common.ErrorNotFound)
	_, err = f.svc.GetVersion(ctx, subjectOf(owner), doc.ID, 0)
	assert.ErrorIs(t, err, common.ErrorNotFound)
}
