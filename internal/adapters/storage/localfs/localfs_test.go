package localfs

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"montage/internal/ports"
)

func TestPutGetDelete(t *testing.T) {
	root := t.TempDir()
	fs := New(root, "http://localhost:8080/")
	ctx := context.Background()

	out, err := fs.PutObject(ctx, ports.PutObjectInput{
		ObjectKey:   "renders/p1/j1/output.mp4",
		ContentType: "video/mp4",
		Reader:      strings.NewReader("video-bytes"),
	})
	if err != nil {
		t.Fatalf("PutObject: %v", err)
	}
	if out.ObjectKey != "renders/p1/j1/output.mp4" || out.Size != 11 {
		t.Fatalf("out = %+v", out)
	}

	rc, ct, size, err := fs.GetObject(ctx, out.ObjectKey)
	if err != nil {
		t.Fatalf("GetObject: %v", err)
	}
	body, _ := io.ReadAll(rc)
	rc.Close()
	if string(body) != "video-bytes" || size != 11 || ct != "video/mp4" {
		t.Fatalf("got %q %q %d", body, ct, size)
	}

	if err := fs.DeleteObject(ctx, out.ObjectKey); err != nil {
		t.Fatalf("DeleteObject: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "renders", "p1", "j1", "output.mp4")); !os.IsNotExist(err) {
		t.Fatalf("file should be gone, stat err = %v", err)
	}
}

func TestKeysStayInsideRoot(t *testing.T) {
	root := t.TempDir()
	fs := New(root, "")
	_, err := fs.PutObject(context.Background(), ports.PutObjectInput{
		ObjectKey: "../../escape.txt",
		Reader:    strings.NewReader("x"),
	})
	if err != nil {
		t.Fatalf("PutObject: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "escape.txt")); err != nil {
		t.Fatalf("object should land inside root: %v", err)
	}
	if _, err := fs.PutObject(context.Background(), ports.PutObjectInput{ObjectKey: "", Reader: strings.NewReader("x")}); err == nil {
		t.Fatal("expected error for empty key")
	}
}

func TestPublicURLRoundTrip(t *testing.T) {
	fs := New(t.TempDir(), "https://media.example.com")
	u, err := fs.PublicURL(context.Background(), "renders/p1/j1/output.mp4")
	if err != nil {
		t.Fatalf("PublicURL: %v", err)
	}
	if u != "https://media.example.com/files/renders/p1/j1/output.mp4" {
		t.Fatalf("url = %q", u)
	}
	key, ok := fs.ObjectKeyFromURL(u + "?v=1")
	if !ok || key != "renders/p1/j1/output.mp4" {
		t.Fatalf("key = %q ok=%v", key, ok)
	}
	if _, ok := fs.ObjectKeyFromURL("https://other.example.com/files/x"); ok {
		t.Fatal("foreign url should not match")
	}
	if _, err := New(t.TempDir(), "").PublicURL(context.Background(), "k"); err == nil {
		t.Fatal("expected error without base url")
	}
}
