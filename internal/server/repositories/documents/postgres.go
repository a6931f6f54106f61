package documents

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/docvault/internal/dbx"
	"github.com/dmitrijs2005/docvault/internal/server/models"
)

const (
	docColumns = `id, title, description, storage_key, file_name, file_type, file_size, owner_id, tags, is_deleted, deleted_at, created_at, updated_at`

	// readable is the ownership-or-grant predicate; ? is the reader id.
	readable = `(owner_id = ? OR EXISTS (SELECT 1 FROM document_permissions p WHERE p.document_id = documents.id AND p.user_id = ?))`
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func scanDocument(s dbx.Scanner) (*models.Document, error) {
	var (
		d       models.Document
		tags    []byte
		deleted sql.NullTime
	)
	err := s.Scan(&d.ID, &d.Title, &d.Description, &d.StorageKey, &d.FileName, &d.FileType, &d.FileSize,
		&d.OwnerID, &tags, &d.IsDeleted, &deleted, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if d.Tags, err = dbx.ParseJSONStrings(tags); err != nil {
		return nil, err
	}
	d.DeletedAt = dbx.TimePtr(deleted)
	return &d, nil
}

func (r *PostgresRepository) Create(ctx context.Context, doc *models.Document) (*models.Document, error) {
	query :=
		`INSERT INTO documents (title, description, storage_key, file_name, file_type, file_size, owner_id, tags)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8::jsonb)
		 RETURNING id, created_at, updated_at`

	err := r.db.QueryRowContext(ctx, query,
		doc.Title, doc.Description, doc.StorageKey, doc.FileName, doc.FileType, doc.FileSize,
		doc.OwnerID, dbx.JSONStrings(doc.Tags)).
		Scan(&doc.ID, &doc.CreatedAt, &doc.UpdatedAt)
	if err != nil {
		return nil, dbx.TranslateError(err)
	}
	if doc.Tags == nil {
		doc.Tags = []string{}
	}
	return doc, nil
}

func (r *PostgresRepository) get(ctx context.Context, id string, lock bool) (*models.Document, error) {
	query := `SELECT ` + docColumns + ` FROM documents WHERE id = $1 AND NOT is_deleted`
	if lock {
		query += ` FOR UPDATE`
	}
	d, err := scanDocument(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, dbx.TranslateError(err)
	}
	return d, nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.Document, error) {
	return r.get(ctx, id, false)
}

func (r *PostgresRepository) GetForUpdate(ctx context.Context, id string) (*models.Document, error) {
	return r.get(ctx, id, true)
}

// likeEscaper makes LIKE wildcards in user input match literally.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func (r *PostgresRepository) List(ctx context.Context, filter models.DocumentFilter) ([]models.Document, int, error) {
	var w dbx.Where
	w.Add("NOT is_deleted")
	if filter.ReaderID != "" {
		w.Add(readable, filter.ReaderID, filter.ReaderID)
	}
	if filter.Search != "" {
		pattern := "%" + likeEscaper.Replace(filter.Search) + "%"
		w.Add(`(title ILIKE ? ESCAPE '\' OR description ILIKE ? ESCAPE '\')`, pattern, pattern)
	}
	if filter.Tag != "" {
		w.Add("tags @> ?::jsonb", dbx.JSONStrings([]string{filter.Tag}))
	}

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`+w.SQL(), w.Args()...).Scan(&total); err != nil {
		return nil, 0, dbx.TranslateError(err)
	}

	page := filter.Page.Normalize()
	query := fmt.Sprintf(`SELECT %s FROM documents%s ORDER BY updated_at DESC LIMIT %s OFFSET %s`,
		docColumns, w.SQL(), w.Next(page.Limit), w.Next(page.Offset()))

	docs, err := r.query(ctx, query, w.Args()...)
	if err != nil {
		return nil, 0, err
	}
	return docs, total, nil
}

func (r *PostgresRepository) ListReadable(ctx context.Context, readerID string, ids []string) ([]models.Document, error) {
	var w dbx.Where
	w.Add("NOT is_deleted")
	if readerID != "" {
		w.Add(readable, readerID, readerID)
	}
	if ids != nil {
		w.Add("id IN (SELECT jsonb_array_elements_text(?::jsonb)::uuid)", dbx.JSONStrings(ids))
	}
	return r.query(ctx, `SELECT `+docColumns+` FROM documents`+w.SQL()+` ORDER BY updated_at DESC`, w.Args()...)
}

func (r *PostgresRepository) query(ctx context.Context, query string, args ...any) ([]models.Document, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, dbx.TranslateError(err)
	}
	defer rows.Close()

	out := []models.Document{}
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, dbx.TranslateError(err)
		}
		out = append(out, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, dbx.TranslateError(err)
	}
	return out, nil
}

func (r *PostgresRepository) UpdateMeta(ctx context.Context, id string, upd models.DocumentUpdate) (*models.Document, error) {
	var tags any
	if upd.Tags != nil {
		tags = dbx.JSONStrings(upd.Tags)
	}

	query :=
		`UPDATE documents
		 SET title = COALESCE($2, title),
		     description = COALESCE($3, description),
		     tags = COALESCE($4::jsonb, tags),
		     updated_at = now()
		 WHERE id = $1 AND NOT is_deleted
		 RETURNING ` + docColumns

	d, err := scanDocument(r.db.QueryRowContext(ctx, query, id, upd.Title, upd.Description, tags))
	if err != nil {
		return nil, dbx.TranslateError(err)
	}
	return d, nil
}

func (r *PostgresRepository) UpdateFile(ctx context.Context, id string, file models.FileRef) error {
	query :=
		`UPDATE documents
		 SET storage_key = $2, file_name = $3, file_type = $4, file_size = $5, updated_at = now()
		 WHERE id = $1 AND NOT is_deleted`

	res, err := r.db.ExecContext(ctx, query, id, file.StorageKey, file.FileName, file.FileType, file.FileSize)
	return dbx.ExpectOne(res, err)
}

func (r *PostgresRepository) SoftDelete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE documents SET is_deleted = true, deleted_at = now(), updated_at = now() WHERE id = $1 AND NOT is_deleted`, id)
	return dbx.ExpectOne(res, err)
}

func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM documents WHERE id = $1`, id)
	return dbx.ExpectOne(res, err)
}
