package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("MAX_CONCURRENT_JOBS", "")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.MaxConcurrent != 5 {
		t.Errorf("MaxConcurrent = %d, want 5", cfg.MaxConcurrent)
	}
	if cfg.CallbackRetryUnit != 5*time.Second {
		t.Errorf("CallbackRetryUnit = %v, want 5s", cfg.CallbackRetryUnit)
	}
	if cfg.Storage.Provider != "localfs" {
		t.Errorf("Storage.Provider = %q, want localfs", cfg.Storage.Provider)
	}
	if cfg.JobTTL != time.Hour {
		t.Errorf("JobTTL = %v, want 1h", cfg.JobTTL)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("MAX_CONCURRENT_JOBS", "2")
	t.Setenv("JOB_TTL", "30m")
	t.Setenv("PUBLIC_BASE_URL", "https://render.example.com/")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example.com, https://b.example.com")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.MaxConcurrent != 2 {
		t.Errorf("MaxConcurrent = %d, want 2", cfg.MaxConcurrent)
	}
	if cfg.JobTTL != 30*time.Minute {
		t.Errorf("JobTTL = %v", cfg.JobTTL)
	}
	if cfg.PublicBaseURL != "https://render.example.com" {
		t.Errorf("PublicBaseURL = %q, trailing slash should be trimmed", cfg.PublicBaseURL)
	}
	if len(cfg.CORSOrigins) != 2 {
		t.Errorf("CORSOrigins = %v", cfg.CORSOrigins)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"bad duration", map[string]string{"CALLBACK_TIMEOUT": "soon"}},
		{"zero concurrency", map[string]string{"MAX_CONCURRENT_JOBS": "0"}},
		{"unknown provider", map[string]string{"STORAGE_PROVIDER": "ftp"}},
		{"gdrive without credentials", map[string]string{"STORAGE_PROVIDER": "gdrive"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			if _, err := Load(); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "montage.yaml")
	if err := os.WriteFile(path, []byte("max_tracked_jobs: 42\nffmpeg_path: /opt/ffmpeg\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("MONTAGE_CONFIG", path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.MaxTrackedJobs != 42 {
		t.Errorf("MaxTrackedJobs = %d, want 42", cfg.MaxTrackedJobs)
	}
	if cfg.FFmpegPath != "/opt/ffmpeg" {
		t.Errorf("FFmpegPath = %q", cfg.FFmpegPath)
	}
}
