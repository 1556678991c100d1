package storage

import (
	"context"
	"testing"

	"montage/internal/config"
)

func TestNewProvider(t *testing.T) {
	ctx := context.Background()

	p, err := NewProvider(ctx, config.StorageConfig{Provider: "localfs", LocalRoot: t.TempDir()}, "http://localhost:8080")
	if err != nil {
		t.Fatalf("localfs: %v", err)
	}
	if p.Provider() != "localfs" {
		t.Fatalf("provider = %q", p.Provider())
	}

	if _, err := NewProvider(ctx, config.StorageConfig{Provider: "localfs"}, ""); err == nil {
		t.Fatal("expected error without local root")
	}
	if _, err := NewProvider(ctx, config.StorageConfig{Provider: "gdrive"}, ""); err == nil {
		t.Fatal("expected error without gdrive credentials")
	}
	if _, err := NewProvider(ctx, config.StorageConfig{Provider: "s3"}, ""); err == nil {
		t.Fatal("expected error for unknown provider")
	}
}
