package documents

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

var columns = []string{"id", "title", "description", "storage_key", "file_name", "file_type", "file_size",
	"owner_id", "tags", "is_deleted", "deleted_at", "created_at", "updated_at"}

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewPostgresRepository(db), mock
}

func docRow(id string) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows(columns).
		AddRow(id, "Report", "Q3", "documents/k1", "report.pdf", "application/pdf", int64(42),
			"u-1", []byte(`["finance","q3"]`), false, nil, now, now)
}

func TestCreate(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	now := time.Now()

	mock.ExpectQuery(`(?s)^INSERT\s+INTO\s+documents\s*\(title,.*VALUES\s*\(\$1,.*\$8::jsonb\)\s*RETURNING\s+id,\s*created_at,\s*updated_at$`).
		WithArgs("Report", "", "documents/k1", "report.pdf", "application/pdf", int64(42), "u-1", []byte(`[]`)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow("d-1", now, now))

	doc := &models.Document{
		Title:   "Report",
		FileRef: models.FileRef{StorageKey: "documents/k1", FileName: "report.pdf", FileType: "application/pdf", FileSize: 42},
		OwnerID: "u-1",
	}
	got, err := repo.Create(context.Background(), doc)
	require.NoError(t, err)
	assert.Equal(t, "d-1", got.ID)
	assert.Equal(t, []string{}, got.Tags)
}

func TestGetByID(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectQuery(`(?s)FROM\s+documents\s+WHERE\s+id\s*=\s*\$1\s+AND\s+NOT\s+is_deleted$`).
		WithArgs("d-1").WillReturnRows(docRow("d-1"))

	got, err := repo.GetByID(context.Background(), "d-1")
	require.NoError(t, err)
	assert.Equal(t, "Report", got.Title)
	assert.Equal(t, []string{"finance", "q3"}, got.Tags)
	assert.Equal(t, int64(42), got.FileSize)
	assert.Nil(t, got.DeletedAt)
}

func TestGetByID_SoftDeletedIsNotFound(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectQuery(`NOT\s+is_deleted`).WithArgs("d-gone").WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByID(context.Background(), "d-gone")
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestGetForUpdate_Locks(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectQuery(`(?s)WHERE\s+id\s*=\s*\$1\s+AND\s+NOT\s+is_deleted\s+FOR\s+UPDATE$`).
		WithArgs("d-1").WillReturnRows(docRow("d-1"))

	_, err := repo.GetForUpdate(context.Background(), "d-1")
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestList_ReaderSearchTag(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	where := `WHERE\s+NOT\s+is_deleted\s+AND\s+\(owner_id\s*=\s*\$1\s+OR\s+EXISTS\s*\(.*p\.user_id\s*=\s*\$2\)\)\s+AND\s+\(title\s+ILIKE\s+\$3\s+ESCAPE\s+'\\'\s+OR\s+description\s+ILIKE\s+\$4\s+ESCAPE\s+'\\'\)\s+AND\s+tags\s*@>\s*\$5::jsonb`
	mock.ExpectQuery(`(?s)^SELECT\s+COUNT\(\*\)\s+FROM\s+documents\s+`+where+`$`).
		WithArgs("u-2", "u-2", "%rep%", "%rep%", []byte(`["finance"]`)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery(`(?s)FROM\s+documents\s+`+where+`\s+ORDER\s+BY\s+updated_at\s+DESC\s+LIMIT\s+\$6\s+OFFSET\s+\$7$`).
		WithArgs("u-2", "u-2", "%rep%", "%rep%", []byte(`["finance"]`), 10, 0).
		WillReturnRows(docRow("d-1"))

	got, total, err := repo.List(context.Background(), models.DocumentFilter{
		ReaderID: "u-2", Search: "rep", Tag: "finance", Page: models.Page{Page: 1, Limit: 10},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, got, 1)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestList_SearchWildcardsAreLiteral(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	pattern := `%50\%\_off\\%`
	mock.ExpectQuery(`SELECT\s+COUNT`).
		WithArgs(pattern, pattern).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery(`ORDER\s+BY`).
		WithArgs(pattern, pattern, 20, 0).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, total, err := repo.List(context.Background(), models.DocumentFilter{Search: `50%_off\`})
	require.NoError(t, err)
	assert.Equal(t, 0, total)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListReadable_WithIDs(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectQuery(`(?s)WHERE\s+NOT\s+is_deleted\s+AND\s+id\s+IN\s+\(SELECT\s+jsonb_array_elements_text\(\$1::jsonb\)::uuid\)\s+ORDER\s+BY`).
		WithArgs([]byte(`["d-1","d-2"]`)).
		WillReturnRows(docRow("d-1"))

	got, err := repo.ListReadable(context.Background(), "", []string{"d-1", "d-2"})
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestUpdateMeta_PartialFields(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	title := "Renamed"

	mock.ExpectQuery(`(?s)^UPDATE\s+documents\s+SET\s+title\s*=\s*COALESCE\(\$2,\s*title\).*RETURNING\s+id,`).
		WithArgs("d-1", "Renamed", nil, nil).
		WillReturnRows(docRow("d-1"))

	_, err := repo.UpdateMeta(context.Background(), "d-1", models.DocumentUpdate{Title: &title})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateFile(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectExec(`(?s)^UPDATE\s+documents\s+SET\s+storage_key\s*=\s*\$2,\s*file_name\s*=\s*\$3,\s*file_type\s*=\s*\$4,\s*file_size\s*=\s*\$5`).
		WithArgs("d-1", "documents/k2", "v2.pdf", "application/pdf", int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.UpdateFile(context.Background(), "d-1", models.FileRef{StorageKey: "documents/k2", FileName: "v2.pdf", FileType: "application/pdf", FileSize: 7})
	require.NoError(t, err)
}

func TestSoftDeleteAndDelete(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectExec(`UPDATE\s+documents\s+SET\s+is_deleted\s*=\s*true`).WithArgs("d-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.SoftDelete(context.Background(), "d-1"))

	mock.ExpectExec(`UPDATE\s+documents\s+SET\s+is_deleted\s*=\s*true`).WithArgs("d-1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	assert.ErrorIs(t, repo.SoftDelete(context.Background(), "d-1"), common.ErrorNotFound)

	mock.ExpectExec(`^DELETE\s+FROM\s+documents\s+WHERE\s+id\s*=\s*\$1$`).WithArgs("d-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.Delete(context.Background(), "d-1"))
}
