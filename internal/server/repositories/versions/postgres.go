package versions

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/docvault/internal/dbx"
	"github.com/dmitrijs2005/docvault/internal/server/models"
)

const versionColumns = `id, document_id, version_number, storage_key, file_name, file_type, file_size, author_id, change_summary, created_at`

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func scanVersion(s dbx.Scanner) (*models.DocumentVersion, error) {
	var (
		v       models.DocumentVersion
		summary sql.NullString
	)
	err := s.Scan(&v.ID, &v.DocumentID, &v.VersionNumber, &v.StorageKey, &v.FileName, &v.FileType, &v.FileSize,
		&v.AuthorID, &summary, &v.CreatedAt)
	if err != nil {
		return nil, err
	}
	v.ChangeSummary = summary.String
	return &v, nil
}

func (r *PostgresRepository) NextNumber(ctx context.Context, documentID string) (int, error) {
	query := `SELECT COALESCE(MAX(version_number), 0) + 1 FROM document_versions WHERE document_id = $1`

	var n int
	if err := r.db.QueryRowContext(ctx, query, documentID).Scan(&n); err != nil {
		return 0, dbx.TranslateError(err)
	}
	return n, nil
}

func (r *PostgresRepository) Create(ctx context.Context, v *models.DocumentVersion) (*models.DocumentVersion, error) {
	query :=
		`INSERT INTO document_versions (document_id, version_number, storage_key, file_name, file_type, file_size, author_id, change_summary)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING id, created_at`

	err := r.db.QueryRowContext(ctx, query,
		v.DocumentID, v.VersionNumber, v.StorageKey, v.FileName, v.FileType, v.FileSize,
		v.AuthorID, dbx.NullString(v.ChangeSummary)).
		Scan(&v.ID, &v.CreatedAt)
	if err != nil {
		return nil, dbx.TranslateError(err)
	}
	return v, nil
}

func (r *PostgresRepository) List(ctx context.Context, documentID string) ([]models.DocumentVersion, error) {
	query := `SELECT ` + versionColumns + ` FROM document_versions WHERE document_id = $1 ORDER BY version_number ASC`

	rows, err := r.db.QueryContext(ctx, query, documentID)
	if err != nil {
		return nil, dbx.TranslateError(err)
	}
	defer rows.Close()

	out := []models.DocumentVersion{}
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, dbx.TranslateError(err)
		}
		out = append(out, *v)
	}
	if err := rows.Err(); err != nil {
		return nil, dbx.TranslateError(err)
	}
	return out, nil
}

func (r *PostgresRepository) Get(ctx context.Context, documentID string, number int) (*models.DocumentVersion, error) {
	query := `SELECT ` + versionColumns + ` FROM document_versions WHERE document_id = $1 AND version_number = $2`

	v, err := scanVersion(r.db.QueryRowContext(ctx, query, documentID, number))
	if err != nil {
		return nil, dbx.TranslateError(err)
	}
	return v, nil
}

func (r *PostgresRepository) Latest(ctx context.Context, documentID string) (*models.DocumentVersion, error) {
	query := `SELECT ` + versionColumns + ` FROM document_versions WHERE document_id = $1 ORDER BY version_number DESC LIMIT 1`

	v, err := scanVersion(r.db.QueryRowContext(ctx, query, documentID))
	if err != nil {
		return nil, dbx.TranslateError(err)
	}
	return v, nil
}

func (r *PostgresRepository) DeleteByDocument(ctx context.Context, documentID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `DELETE FROM document_versions WHERE document_id = $1 RETURNING storage_key`, documentID)
	if err != nil {
		return nil, dbx.TranslateError(err)
	}
	defer rows.Close()

	keys := []string{}
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, dbx.TranslateError(err)
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, dbx.TranslateError(err)
	}
	return keys, nil
}
