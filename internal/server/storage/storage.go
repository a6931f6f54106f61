// Package storage keeps document blobs outside the database. Keys are opaque
// strings produced by NewKey; the metadata rows only store the key.
package storage

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/dmitrijs2005/docvault/internal/server/config"
	"github.com/google/uuid"
)

// Store is a flat blob store. Get on an unknown key returns
// common.ErrorNotFound; Delete on an unknown key is not an error.
type Store interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

// keyTime is a seam for tests.
var keyTime = time.Now

// NewKey returns a fresh storage key grouped by upload date.
func NewKey() string {
	d := keyTime()
	return fmt.Sprintf("documents/%d/%02d/%02d/%v", d.Year(), d.Month(), d.Day(), uuid.New())
}

// New builds the backend selected by c.StorageBackend.
func New(ctx context.Context, c *config.Config) (Store, error) {
	switch c.StorageBackend {
	case config.StorageS3:
		return NewS3Store(ctx, S3Options{
			Region:    c.S3Region,
			AccessKey: c.S3AccessKey,
			SecretKey: c.S3SecretKey,
			Endpoint:  c.S3BaseEndpoint,
			Bucket:    c.S3Bucket,
		})
	case config.StorageDisk:
		return NewDiskStore(c.DiskRoot)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", c.StorageBackend)
	}
}
