package qahistory

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dmitrijs2005/docvault/internal/dbx"
	"github.com/dmitrijs2005/docvault/internal/server/models"
)

const historyColumns = `id, user_id, question, answer, sources, created_at`

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func scanHistory(s dbx.Scanner) (*models.QAHistory, error) {
	var (
		h   models.QAHistory
		raw []byte
	)
	if err := s.Scan(&h.ID, &h.UserID, &h.Question, &h.Answer, &raw, &h.CreatedAt); err != nil {
		return nil, err
	}
	h.Sources = []models.QASource{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &h.Sources); err != nil {
			return nil, fmt.Errorf("decode sources: %w", err)
		}
	}
	return &h, nil
}

func (r *PostgresRepository) Create(ctx context.Context, h *models.QAHistory) (*models.QAHistory, error) {
	if h.Sources == nil {
		h.Sources = []models.QASource{}
	}
	sources, err := json.Marshal(h.Sources)
	if err != nil {
		return nil, fmt.Errorf("encode sources: %w", err)
	}

	query :=
		`INSERT INTO qa_history (user_id, question, answer, sources)
		 VALUES ($1, $2, $3, $4::jsonb)
		 RETURNING id, created_at`

	if err := r.db.QueryRowContext(ctx, query, h.UserID, h.Question, h.Answer, sources).Scan(&h.ID, &h.CreatedAt); err != nil {
		return nil, dbx.TranslateError(err)
	}
	return h, nil
}

func (r *PostgresRepository) List(ctx context.Context, userID string, page models.Page) ([]models.QAHistory, int, error) {
	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM qa_history WHERE user_id = $1`, userID).Scan(&total); err != nil {
		return nil, 0, dbx.TranslateError(err)
	}

	p := page.Normalize()
	query := `SELECT ` + historyColumns + ` FROM qa_history WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`

	rows, err := r.db.QueryContext(ctx, query, userID, p.Limit, p.Offset())
	if err != nil {
		return nil, 0, dbx.TranslateError(err)
	}
	defer rows.Close()

	out := []models.QAHistory{}
	for rows.Next() {
		h, err := scanHistory(rows)
		if err != nil {
			return nil, 0, dbx.TranslateError(err)
		}
		out = append(out, *h)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, dbx.TranslateError(err)
	}
	return out, total, nil
}

func (r *PostgresRepository) Get(ctx context.Context, userID, id string) (*models.QAHistory, error) {
	query := `SELECT ` + historyColumns + ` FROM qa_history WHERE id = $1 AND user_id = $2`

	h, err := scanHistory(r.db.QueryRowContext(ctx, query, id, userID))
	if err != nil {
		return nil, dbx.TranslateError(err)
	}
	return h, nil
}

func (r *PostgresRepository) Delete(ctx context.Context, userID, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM qa_history WHERE id = $1 AND user_id = $2`, id, userID)
	return dbx.ExpectOne(res, err)
}

func (r *PostgresRepository) Clear(ctx context.Context, userID string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM qa_history WHERE user_id = $1`, userID)
	if err != nil {
		return 0, dbx.TranslateError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, dbx.TranslateError(err)
	}
	return n, nil
}
