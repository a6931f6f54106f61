package services

import (
	"context"
	"database/sql"
	"strings"

	"github.com/dmitrijs2005/docvault/internal/common"
	"github.com/dmitrijs2005/docvault/internal/logging"
	"github.com/dmitrijs2005/docvault/internal/server/access"
	"github.com/dmitrijs2005/docvault/internal/server/models"
	"github.com/dmitrijs2005/docvault/internal/server/qa"
	"github.com/dmitrijs2005/docvault/internal/server/repositories/repomanager"
)

const maxQuestionLength = 2000

// TextLoader returns the scorable text of a document.
type TextLoader interface {
	Text(ctx context.Context, doc *models.Document) (string, error)
}

// QAService answers questions from readable documents and keeps a
// per-user history.
type QAService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	loader      TextLoader
	logger      logging.Logger
}

func NewQAService(db *sql.DB, m repomanager.RepositoryManager, loader TextLoader, logger logging.Logger) *QAService {
	return &QAService{
		db:          db,
		repomanager: m,
		loader:      loader,
		logger:      logger.With("module", "qa"),
	}
}

// Ask scores the requested documents, or every readable one when ids is
// empty, and records the exchange. Ids the subject cannot read are skipped.
// Failures past input validation degrade to the fallback answer.
func (s *QAService) Ask(ctx context.Context, sub access.Subject, question string, documentIDs []string) (*models.QAHistory, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, common.NewValidationError("question", "is required")
	}
	if len(question) > maxQuestionLength {
		return nil, common.NewValidationError("question", "is too long")
	}

	answer, sources := s.answer(ctx, sub, question, documentIDs)

	entry := &models.QAHistory{UserID: sub.UserID, Question: question, Answer: answer, Sources: sources}
	saved, err := s.repomanager.QAHistory(s.db).Create(ctx, entry)
	if err != nil {
		s.logger.Warn(ctx, "failed to save qa history", "user_id", sub.UserID, "error", err)
		return entry, nil
	}
	return saved, nil
}

func (s *QAService) answer(ctx context.Context, sub access.Subject, question string, ids []string) (string, []models.QASource) {
	if len(ids) == 0 {
		ids = nil
	} else if ids = parsedIDs(ids); len(ids) == 0 {
		return qa.FallbackAnswer, []models.QASource{}
	}
	docs, err := s.repomanager.Documents(s.db).ListReadable(ctx, readerID(sub), ids)
	if err != nil {
		s.logger.Error(ctx, "failed to list documents for qa", "user_id", sub.UserID, "error", err)
		return qa.FallbackAnswer, []models.QASource{}
	}

	candidates := make([]qa.Candidate, 0, len(docs))
	for i := range docs {
		text, err := s.loader.Text(ctx, &docs[i])
		if err != nil {
			s.logger.Warn(ctx, "failed to load document text", "document_id", docs[i].ID, "error", err)
			continue
		}
		if text == "" {
			continue
		}
		candidates = append(candidates, qa.Candidate{Document: docs[i], Text: text})
	}
	return qa.Rank(question, candidates)
}

func (s *QAService) History(ctx context.Context, sub access.Subject, page models.Page) (models.Paged[models.QAHistory], error) {
	items, total, err := s.repomanager.QAHistory(s.db).List(ctx, sub.UserID, page)
	if err != nil {
		return models.Paged[models.QAHistory]{}, err
	}
	return models.NewPaged(items, total, page), nil
}

func (s *QAService) GetHistory(ctx context.Context, sub access.Subject, id string) (*models.QAHistory, error) {
	return s.repomanager.QAHistory(s.db).Get(ctx, sub.UserID, id)
}

func (s *QAService) DeleteHistory(ctx context.Context, sub access.Subject, id string) error {
	return s.repomanager.QAHistory(s.db).Delete(ctx, sub.UserID, id)
}

// ClearHistory removes all of the subject's entries and returns how many.
func (s *QAService) ClearHistory(ctx context.Context, sub access.Subject) (int64, error) {
	return s.repomanager.QAHistory(s.db).Clear(ctx, sub.UserID)
}
