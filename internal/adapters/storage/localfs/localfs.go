package localfs

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"montage/internal/ports"
)

// FilesPrefix is the HTTP route under which stored objects are served.
const FilesPrefix = "/files/"

// LocalFS implements ports.StorageProvider using the local filesystem.
// It stores objects under a configured root directory and exposes them
// under {publicBaseURL}/files/{key}.
type LocalFS struct {
	root          string
	publicBaseURL string
}

func New(root, publicBaseURL string) *LocalFS {
	return &LocalFS{root: root, publicBaseURL: strings.TrimRight(publicBaseURL, "/")}
}

func (l *LocalFS) Provider() string { return "localfs" }

// Root is the directory objects are stored under.
func (l *LocalFS) Root() string { return l.root }

// resolve maps an object key into the root, rejecting keys that escape it.
func (l *LocalFS) resolve(objectKey string) (string, error) {
	clean := path.Clean("/" + strings.TrimSpace(objectKey))
	if clean == "/" {
		return "", fmt.Errorf("object_key is required")
	}
	return filepath.Join(l.root, filepath.FromSlash(strings.TrimPrefix(clean, "/"))), nil
}

func (l *LocalFS) PutObject(ctx context.Context, in ports.PutObjectInput) (ports.PutObjectOutput, error) {
	dst, err := l.resolve(in.ObjectKey)
	if err != nil {
		return ports.PutObjectOutput{}, err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return ports.PutObjectOutput{}, err
	}

	// Write to a sibling temp file so readers never observe a partial object.
	tmp, err := os.CreateTemp(filepath.Dir(dst), ".upload-*")
	if err != nil {
		return ports.PutObjectOutput{}, err
	}
	n, err := io.Copy(tmp, in.Reader)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(tmp.Name())
		return ports.PutObjectOutput{}, err
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		_ = os.Remove(tmp.Name())
		return ports.PutObjectOutput{}, err
	}

	return ports.PutObjectOutput{ObjectKey: in.ObjectKey, Size: n}, nil
}

func (l *LocalFS) GetObject(ctx context.Context, objectKey string) (rc io.ReadCloser, contentType string, size int64, err error) {
	p, err := l.resolve(objectKey)
	if err != nil {
		return nil, "", 0, err
	}
	f, err := os.Open(p)
	if err != nil {
		return nil, "", 0, err
	}

	st, statErr := f.Stat()
	if statErr == nil {
		size = st.Size()
	}

	// Prefer extension-based type. If empty, sniff first bytes.
	contentType = mime.TypeByExtension(filepath.Ext(p))
	if contentType == "" {
		buf := make([]byte, 512)
		n, _ := f.Read(buf)
		_, _ = f.Seek(0, 0)
		contentType = http.DetectContentType(buf[:n])
	}

	return f, contentType, size, nil
}

func (l *LocalFS) DeleteObject(ctx context.Context, objectKey string) error {
	p, err := l.resolve(objectKey)
	if err != nil {
		return err
	}
	return os.Remove(p)
}

func (l *LocalFS) PublicURL(ctx context.Context, objectKey string) (string, error) {
	if l.publicBaseURL == "" {
		return "", fmt.Errorf("localfs: public base url is not configured")
	}
	return l.publicBaseURL + FilesPrefix + strings.TrimPrefix(objectKey, "/"), nil
}

func (l *LocalFS) ObjectKeyFromURL(rawURL string) (string, bool) {
	if l.publicBaseURL == "" || !strings.HasPrefix(rawURL, l.publicBaseURL+FilesPrefix) {
		return "", false
	}
	key := strings.TrimPrefix(rawURL, l.publicBaseURL+FilesPrefix)
	if i := strings.IndexAny(key, "?#"); i >= 0 {
		key = key[:i]
	}
	if unescaped, err := url.PathUnescape(key); err == nil {
		key = unescaped
	}
	return key, key != ""
}

func (l *LocalFS) Ping(ctx context.Context) error {
	st, err := os.Stat(l.root)
	if err != nil {
		return err
	}
	if !st.IsDir() {
		return fmt.Errorf("localfs: %s is not a directory", l.root)
	}
	return nil
}
