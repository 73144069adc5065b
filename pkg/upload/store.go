package upload

import (
	"context"
	"io"
	"time"
)

// Store is the interface for storage backends that receive transferred
// files. Implement it to use GCS or other storage.
type Store interface {
	// Save stores the content read from r and returns its id.
	Save(ctx context.Context, filename, contentType string, size int64, r io.Reader) (id string, err error)

	// Claim retrieves and removes a stored file. The caller must Close the
	// returned file.
	Claim(ctx context.Context, id string) (*StoredFile, error)

	// Cleanup removes files older than maxAge.
	Cleanup(ctx context.Context, maxAge time.Duration) error
}

// StoredFile is a file held by a Store.
type StoredFile struct {
	ID          string
	Filename    string
	ContentType string
	Size        int64

	// Path is the local filesystem path (DiskStore).
	Path string

	// URL is a presigned URL for direct access (S3Store), if available.
	URL string

	// Reader provides the file content.
	Reader io.ReadCloser
}

// Close closes the file reader if open.
func (f *StoredFile) Close() error {
	if f.Reader != nil {
		return f.Reader.Close()
	}
	return nil
}
