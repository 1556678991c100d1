package gdrive

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"regexp"
	"strings"

	"montage/internal/ports"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
)

// Client implements ports.StorageProvider backed by Google Drive.
// ObjectKey is stored as the Drive fileId for retrieval/deletion.
// For uploads we use the provided ObjectKey as the Drive file Name.
type Client struct {
	srv      *drive.Service
	folderID string
}

func NewClient(srv *drive.Service, folderID string) *Client {
	return &Client{srv: srv, folderID: folderID}
}

func (c *Client) Provider() string { return "gdrive" }

func (c *Client) PutObject(ctx context.Context, in ports.PutObjectInput) (ports.PutObjectOutput, error) {
	if in.ObjectKey == "" {
		return ports.PutObjectOutput{}, fmt.Errorf("object_key is required")
	}

	file := &drive.File{Name: in.ObjectKey}
	if c.folderID != "" {
		file.Parents = []string{c.folderID}
	}

	call := c.srv.Files.Create(file).SupportsAllDrives(true)
	if in.ContentType != "" {
		call = call.Media(in.Reader, googleapi.ContentType(in.ContentType))
	} else {
		call = call.Media(in.Reader)
	}

	created, err := call.Context(ctx).Do()
	if err != nil {
		return ports.PutObjectOutput{}, fmt.Errorf("gdrive upload failed: %w", err)
	}

	// We return the Drive fileId as ObjectKey, so later Get/Delete use it.
	return ports.PutObjectOutput{ObjectKey: created.Id, Size: in.Size}, nil
}

func (c *Client) GetObject(ctx context.Context, objectKey string) (rc io.ReadCloser, contentType string, size int64, err error) {
	resp, err := c.srv.Files.Get(objectKey).
		SupportsAllDrives(true).
		Context(ctx).
		Download()
	if err != nil {
		return nil, "", 0, err
	}

	contentType = resp.Header.Get("Content-Type")
	size = resp.ContentLength
	return resp.Body, contentType, size, nil
}

func (c *Client) DeleteObject(ctx context.Context, objectKey string) error {
	return c.srv.Files.Delete(objectKey).
		SupportsAllDrives(true).
		Context(ctx).
		Do()
}

// PublicURL shares the file with anyone holding the link and returns its
// direct download address.
func (c *Client) PublicURL(ctx context.Context, objectKey string) (string, error) {
	perm := &drive.Permission{Type: "anyone", Role: "reader"}
	if _, err := c.srv.Permissions.Create(objectKey, perm).
		SupportsAllDrives(true).
		Context(ctx).
		Do(); err != nil {
		return "", fmt.Errorf("gdrive share failed: %w", err)
	}
	return DownloadURL(objectKey), nil
}

func (c *Client) ObjectKeyFromURL(rawURL string) (string, bool) {
	return FileIDFromURL(rawURL)
}

func (c *Client) Ping(ctx context.Context) error {
	_, err := c.srv.About.Get().Fields("user").Context(ctx).Do()
	return err
}

// DownloadURL is the public download address of a Drive file.
func DownloadURL(fileID string) string {
	return "https://drive.google.com/uc?export=download&id=" + url.QueryEscape(fileID)
}

var filePathID = regexp.MustCompile(`^/file/d/([A-Za-z0-9_-]+)`)

// FileIDFromURL extracts the file id from the common Drive link shapes:
// gdrive://{id}, /file/d/{id}/view, /open?id={id} and /uc?id={id}.
func FileIDFromURL(rawURL string) (string, bool) {
	if id, ok := strings.CutPrefix(rawURL, "gdrive://"); ok {
		return id, id != ""
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", false
	}
	host := strings.ToLower(u.Host)
	if host != "drive.google.com" && host != "docs.google.com" {
		return "", false
	}
	if m := filePathID.FindStringSubmatch(u.Path); m != nil {
		return m[1], true
	}
	if id := u.Query().Get("id"); id != "" {
		return id, true
	}
	return "", false
}
