package ingestion

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dmitrijs2005/docvault/internal/dbx"
	"github.com/dmitrijs2005/docvault/internal/server/models"
)

const (
	jobColumns = `id, document_id, version_number, status, started_at, completed_at, error_message, created_at, updated_at`

	readableDocs = `document_id IN (SELECT d.id FROM documents d WHERE NOT d.is_deleted AND (d.owner_id = ? OR EXISTS (SELECT 1 FROM document_permissions p WHERE p.document_id = d.id AND p.user_id = ?)))`
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func scanJob(s dbx.Scanner) (*models.IngestionJob, error) {
	var (
		j                  models.IngestionJob
		version            sql.NullInt32
		started, completed sql.NullTime
		errMsg             sql.NullString
	)
	err := s.Scan(&j.ID, &j.DocumentID, &version, &j.Status, &started, &completed, &errMsg, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if version.Valid {
		n := int(version.Int32)
		j.VersionNumber = &n
	}
	j.StartedAt = dbx.TimePtr(started)
	j.CompletedAt = dbx.TimePtr(completed)
	j.ErrorMessage = dbx.StringPtr(errMsg)
	return &j, nil
}

func nullInt(p *int) sql.NullInt32 {
	if p == nil {
		return sql.NullInt32{}
	}
	return sql.NullInt32{Int32: int32(*p), Valid: true}
}

func (r *PostgresRepository) Create(ctx context.Context, job *models.IngestionJob) (*models.IngestionJob, error) {
	query :=
		`INSERT INTO ingestion_jobs (document_id, version_number, status)
		 VALUES ($1, $2, $3)
		 RETURNING id, created_at, updated_at`

	err := r.db.QueryRowContext(ctx, query, job.DocumentID, nullInt(job.VersionNumber), job.Status).
		Scan(&job.ID, &job.CreatedAt, &job.UpdatedAt)
	if err != nil {
		return nil, dbx.TranslateError(err)
	}
	return job, nil
}

func (r *PostgresRepository) get(ctx context.Context, id string, lock bool) (*models.IngestionJob, error) {
	query := `SELECT ` + jobColumns + ` FROM ingestion_jobs WHERE id = $1`
	if lock {
		query += ` FOR UPDATE`
	}
	j, err := scanJob(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, dbx.TranslateError(err)
	}
	return j, nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.IngestionJob, error) {
	return r.get(ctx, id, false)
}

func (r *PostgresRepository) GetForUpdate(ctx context.Context, id string) (*models.IngestionJob, error) {
	return r.get(ctx, id, true)
}

func (r *PostgresRepository) List(ctx context.Context, filter models.JobFilter) ([]models.IngestionJob, int, error) {
	var w dbx.Where
	if filter.ReaderID != "" {
		w.Add(readableDocs, filter.ReaderID, filter.ReaderID)
	}
	if filter.DocumentID != "" {
		w.Add("document_id = ?", filter.DocumentID)
	}
	if filter.Status != "" {
		w.Add("status = ?", filter.Status)
	}

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM ingestion_jobs`+w.SQL(), w.Args()...).Scan(&total); err != nil {
		return nil, 0, dbx.TranslateError(err)
	}

	page := filter.Page.Normalize()
	query := fmt.Sprintf(`SELECT %s FROM ingestion_jobs%s ORDER BY created_at DESC LIMIT %s OFFSET %s`,
		jobColumns, w.SQL(), w.Next(page.Limit), w.Next(page.Offset()))

	rows, err := r.db.QueryContext(ctx, query, w.Args()...)
	if err != nil {
		return nil, 0, dbx.TranslateError(err)
	}
	defer rows.Close()

	out := []models.IngestionJob{}
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, 0, dbx.TranslateError(err)
		}
		out = append(out, *j)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, dbx.TranslateError(err)
	}
	return out, total, nil
}

func (r *PostgresRepository) Update(ctx context.Context, job *models.IngestionJob) (*models.IngestionJob, error) {
	query :=
		`UPDATE ingestion_jobs
		 SET status = $2, started_at = $3, completed_at = $4, error_message = $5, updated_at = now()
		 WHERE id = $1
		 RETURNING updated_at`

	var started, completed sql.NullTime
	if job.StartedAt != nil {
		started = sql.NullTime{Time: *job.StartedAt, Valid: true}
	}
	if job.CompletedAt != nil {
		completed = sql.NullTime{Time: *job.CompletedAt, Valid: true}
	}
	var errMsg sql.NullString
	if job.ErrorMessage != nil {
		errMsg = sql.NullString{String: *job.ErrorMessage, Valid: true}
	}

	err := r.db.QueryRowContext(ctx, query, job.ID, job.Status, started, completed, errMsg).Scan(&job.UpdatedAt)
	if err != nil {
		return nil, dbx.TranslateError(err)
	}
	return job, nil
}

func (r *PostgresRepository) DeleteByDocument(ctx context.Context, documentID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM ingestion_jobs WHERE document_id = $1`, documentID); err != nil {
		return dbx.TranslateError(err)
	}
	return nil
}
