package ports

import (
	"context"
	"io"
)

type PutObjectInput struct {
	ObjectKey   string
	ContentType string
	Reader      io.Reader
	Size        int64
}

type PutObjectOutput struct {
	// En localfs es el mismo object_key.
	// En gdrive es el fileId real, usado por GetObject/DeleteObject/PublicURL.
	ObjectKey string
	Size      int64
}

// StorageProvider is implemented by localfs and gdrive.
type StorageProvider interface {
	Provider() string

	PutObject(ctx context.Context, in PutObjectInput) (PutObjectOutput, error)
	GetObject(ctx context.Context, objectKey string) (rc io.ReadCloser, contentType string, size int64, err error)
	DeleteObject(ctx context.Context, objectKey string) error

	// PublicURL returns the address callers use to fetch a stored object.
	PublicURL(ctx context.Context, objectKey string) (string, error)

	// ObjectKeyFromURL recognises addresses that point back into this
	// provider, so downloads can take the credentialed path.
	ObjectKeyFromURL(rawURL string) (string, bool)
}

// HealthChecker is implemented by providers that can verify connectivity.
type HealthChecker interface {
	Ping(ctx context.Context) error
}
