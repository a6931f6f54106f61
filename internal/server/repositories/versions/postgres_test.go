package versions

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/docvault/internal/common"
	"github.com/dmitrijs2005/docvault/internal/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var columns = []string{"id", "document_id", "version_number", "storage_key", "file_name", "file_type", "file_size",
	"author_id", "change_summary", "created_at"}

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewPostgresRepository(db), mock
}

func TestNextNumber(t *testing.T) {
	tests := []struct {
		name string
		max  int
	}{
		{"first version", 1},
		{"after three", 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, mock := newRepoWithMock(t)
			mock.ExpectQuery(`(?s)^SELECT\s+COALESCE\(MAX\(version_number\),\s*0\)\s*\+\s*1\s+FROM\s+document_versions\s+WHERE\s+document_id\s*=\s*\$1$`).
				WithArgs("d-1").
				WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(tt.max))

			got, err := repo.NextNumber(context.Background(), "d-1")
			require.NoError(t, err)
			assert.Equal(t, tt.max, got)
		})
	}
}

func TestCreate_NullSummary(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	now := time.Now()

	mock.ExpectQuery(`(?s)^INSERT\s+INTO\s+document_versions.*RETURNING\s+id,\s*created_at$`).
		WithArgs("d-1", 2, "documents/k2", "b.txt", "text/plain", int64(3), "u-1", sql.NullString{}).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow("v-2", now))

	v := &models.DocumentVersion{
		DocumentID: "d-1", VersionNumber: 2, AuthorID: "u-1",
		FileRef: models.FileRef{StorageKey: "documents/k2", FileName: "b.txt", FileType: "text/plain", FileSize: 3},
	}
	got, err := repo.Create(context.Background(), v)
	require.NoError(t, err)
	assert.Equal(t, "v-2", got.ID)
}

func TestList_Ordered(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	now := time.Now()

	mock.ExpectQuery(`ORDER\s+BY\s+version_number\s+ASC$`).WithArgs("d-1").
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow("v-1", "d-1", 1, "k1", "a.txt", "text/plain", int64(1), "u-1", nil, now).
			AddRow("v-2", "d-1", 2, "k2", "b.txt", "text/plain", int64(2), "u-1", "fix typo", now))

	got, err := repo.List(context.Background(), "d-1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 1, got[0].VersionNumber)
	assert.Equal(t, "", got[0].ChangeSummary)
	assert.Equal(t, "fix typo", got[1].ChangeSummary)
}

func TestGet_NotFound(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectQuery(`WHERE\s+document_id\s*=\s*\$1\s+AND\s+version_number\s*=\s*\$2$`).WithArgs("d-1", 9).
		WillReturnError(sql.ErrNoRows)

	_, err := repo.Get(context.Background(), "d-1", 9)
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestLatest(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectQuery(`ORDER\s+BY\s+version_number\s+DESC\s+LIMIT\s+1$`).WithArgs("d-1").
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow("v-3", "d-1", 3, "k3", "c.txt", "text/plain", int64(3), "u-1", nil, time.Now()))

	got, err := repo.Latest(context.Background(), "d-1")
	require.NoError(t, err)
	assert.Equal(t, 3, got.VersionNumber)
}

func TestDeleteByDocument_ReturnsKeys(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectQuery(`^DELETE\s+FROM\s+document_versions\s+WHERE\s+document_id\s*=\s*\$1\s+RETURNING\s+storage_key$`).
		WithArgs("d-1").
		WillReturnRows(sqlmock.NewRows([]string{"storage_key"}).AddRow("k1").AddRow("k2"))

	keys, err := repo.DeleteByDocument(context.Background(), "d-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"k1", "k2"}, keys)
}
