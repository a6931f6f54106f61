package models

import "time"

// FileRef points at a stored blob.
type FileRef struct {
	StorageKey string `json:"-"`
	FileName   string `json:"fileName"`
	FileType   string `json:"fileType"`
	FileSize   int64  `json:"fileSize"`
}

type Document struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	FileRef
	OwnerID   string     `json:"ownerId"`
	Tags      []string   `json:"tags"`
	IsDeleted bool       `json:"-"`
	DeletedAt *time.Time `json:"deletedAt,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

// DocumentFilter narrows document listings. When ReaderID is set only
// documents that user owns or holds a permission on are returned.
type DocumentFilter struct {
	ReaderID string
	Search   string
	Tag      string
	Page
}

// DocumentUpdate carries the mutable metadata fields; nil means unchanged.
type DocumentUpdate struct {
	Title       *string
	Description *string
	Tags        []string
}

type DocumentVersion struct {
	ID            string `json:"id"`
	DocumentID    string `json:"documentId"`
	VersionNumber int    `json:"versionNumber"`
	FileRef
	AuthorID      string    `json:"authorId"`
	ChangeSummary string    `json:"changeSummary,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}
