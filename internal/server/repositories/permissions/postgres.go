package permissions

import (
	"context"

	"github.com/dmitrijs2005/docvault/internal/dbx"
	"github.com/dmitrijs2005/docvault/internal/server/models"
)

const permissionColumns = `id, document_id, user_id, permission, granted_by, created_at, updated_at`

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func scanPermission(s dbx.Scanner) (*models.DocumentPermission, error) {
	p := &models.DocumentPermission{}
	if err := s.Scan(&p.ID, &p.DocumentID, &p.UserID, &p.Permission, &p.GrantedBy, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	return p, nil
}

func (r *PostgresRepository) Get(ctx context.Context, documentID, userID string) (*models.DocumentPermission, error) {
	query := `SELECT ` + permissionColumns + ` FROM document_permissions WHERE document_id = $1 AND user_id = $2`

	p, err := scanPermission(r.db.QueryRowContext(ctx, query, documentID, userID))
	if err != nil {
		return nil, dbx.TranslateError(err)
	}
	return p, nil
}

func (r *PostgresRepository) Upsert(ctx context.Context, p *models.DocumentPermission) (*models.DocumentPermission, error) {
	query :=
		`INSERT INTO document_permissions (document_id, user_id, permission, granted_by)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (document_id, user_id)
		 DO UPDATE SET permission = EXCLUDED.permission, granted_by = EXCLUDED.granted_by, updated_at = now()
		 RETURNING ` + permissionColumns

	out, err := scanPermission(r.db.QueryRowContext(ctx, query, p.DocumentID, p.UserID, p.Permission, p.GrantedBy))
	if err != nil {
		return nil, dbx.TranslateError(err)
	}
	return out, nil
}

func (r *PostgresRepository) ListByDocument(ctx context.Context, documentID string) ([]models.DocumentPermission, error) {
	query := `SELECT ` + permissionColumns + ` FROM document_permissions WHERE document_id = $1 ORDER BY created_at ASC`

	rows, err := r.db.QueryContext(ctx, query, documentID)
	if err != nil {
		return nil, dbx.TranslateError(err)
	}
	defer rows.Close()

	out := []models.DocumentPermission{}
	for rows.Next() {
		p, err := scanPermission(rows)
		if err != nil {
			return nil, dbx.TranslateError(err)
		}
		out = append(out, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, dbx.TranslateError(err)
	}
	return out, nil
}

func (r *PostgresRepository) Delete(ctx context.Context, documentID, id string) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM document_permissions WHERE id = $1 AND document_id = $2`, id, documentID)
	return dbx.ExpectOne(res, err)
}

func (r *PostgresRepository) DeleteByDocument(ctx context.Context, documentID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM document_permissions WHERE document_id = $1`, documentID); err != nil {
		return dbx.TranslateError(err)
	}
	return nil
}
