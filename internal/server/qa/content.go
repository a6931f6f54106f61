package qa

import (
	"context"
	"fmt"
	"io"
	"unicode/utf8"

	"github.com/dmitrijs2005/docvault/internal/server/models"
	"github.com/dmitrijs2005/docvault/internal/server/storage"
)

// ContentLoader reads the text of a document's current file through the
// cache.
type ContentLoader struct {
	store storage.Store
	cache ContentCache
}

func NewContentLoader(store storage.Store, cache ContentCache) *ContentLoader {
	return &ContentLoader{store: store, cache: cache}
}

// Text returns at most MaxContentChars of the document text. Non-text file
// types yield "" without touching the store.
func (l *ContentLoader) Text(ctx context.Context, doc *models.Document) (string, error) {
	if !storage.IsText(doc.FileType) {
		return "", nil
	}

	if text, ok, err := l.cache.Get(ctx, doc.ID); err == nil && ok {
		return text, nil
	}

	rc, err := l.store.Get(ctx, doc.StorageKey)
	if err != nil {
		return "", fmt.Errorf("load %s: %w", doc.ID, err)
	}
	defer rc.Close()

	// A character is at most utf8.UTFMax bytes.
	b, err := io.ReadAll(io.LimitReader(rc, MaxContentChars*utf8.UTFMax))
	if err != nil {
		return "", fmt.Errorf("read %s: %w", doc.ID, err)
	}
	text := Truncate(string(b))

	_ = l.cache.Set(ctx, doc.ID, text)
	return text, nil
}

// Invalidate forgets the cached text of a document.
func (l *ContentLoader) Invalidate(ctx context.Context, documentID string) error {
	return l.cache.Invalidate(ctx, documentID)
}
