// Package config loads service configuration from the environment and an
// optional YAML file named by MONTAGE_CONFIG.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds every tunable of the montage service.
type Config struct {
	HTTPPort      string
	PublicBaseURL string
	CORSOrigins   []string

	LogLevel  string
	LogFormat string

	// WorkDir holds per-job inputs and outputs; it is wiped at startup.
	WorkDir        string
	MinFreeBytes   int64
	MaxConcurrent  int
	MaxTrackedJobs int
	JobTTL         time.Duration

	FFmpegPath  string
	FFprobePath string
	FontsDir    string

	DownloadTimeout   time.Duration
	CallbackTimeout   time.Duration
	CallbackRetryUnit time.Duration

	Storage StorageConfig

	// DatabaseURL enables effect templates when set.
	DatabaseURL string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RateLimitRPM  int
}

// StorageConfig selects and configures the object storage provider.
type StorageConfig struct {
	Provider  string
	LocalRoot string

	GDriveClientID     string
	GDriveClientSecret string
	GDriveRefreshToken string
	GDriveFolderID     string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http_port", "8080")
	v.SetDefault("public_base_url", "http://localhost:8080")
	v.SetDefault("cors_allowed_origins", "http://localhost:5173")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "json")
	v.SetDefault("work_dir", "/tmp/montage")
	v.SetDefault("min_free_bytes", int64(512<<20))
	v.SetDefault("max_concurrent_jobs", 5)
	v.SetDefault("max_tracked_jobs", 500)
	v.SetDefault("job_ttl", "1h")
	v.SetDefault("ffmpeg_path", "ffmpeg")
	v.SetDefault("ffprobe_path", "ffprobe")
	v.SetDefault("fonts_dir", "/usr/share/fonts")
	v.SetDefault("download_timeout", "5m")
	v.SetDefault("callback_timeout", "10s")
	v.SetDefault("callback_retry_unit", "5s")
	v.SetDefault("storage_provider", "localfs")
	v.SetDefault("storage_local_root", "/data/montage")
	v.SetDefault("redis_db", 0)
	v.SetDefault("rate_limit_rpm", 60)
}

// Load reads configuration from the environment, then the optional config file.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	if path := strings.TrimSpace(os.Getenv("MONTAGE_CONFIG")); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		HTTPPort:       v.GetString("http_port"),
		PublicBaseURL:  strings.TrimRight(v.GetString("public_base_url"), "/"),
		CORSOrigins:    splitCSV(v.GetString("cors_allowed_origins")),
		LogLevel:       v.GetString("log_level"),
		LogFormat:      v.GetString("log_format"),
		WorkDir:        v.GetString("work_dir"),
		MinFreeBytes:   v.GetInt64("min_free_bytes"),
		MaxConcurrent:  v.GetInt("max_concurrent_jobs"),
		MaxTrackedJobs: v.GetInt("max_tracked_jobs"),
		FFmpegPath:     v.GetString("ffmpeg_path"),
		FFprobePath:    v.GetString("ffprobe_path"),
		FontsDir:       v.GetString("fonts_dir"),
		Storage: StorageConfig{
			Provider:           strings.ToLower(v.GetString("storage_provider")),
			LocalRoot:          v.GetString("storage_local_root"),
			GDriveClientID:     v.GetString("gdrive_client_id"),
			GDriveClientSecret: v.GetString("gdrive_client_secret"),
			GDriveRefreshToken: v.GetString("gdrive_refresh_token"),
			GDriveFolderID:     v.GetString("gdrive_folder_id"),
		},
		DatabaseURL:   v.GetString("database_url"),
		RedisAddr:     v.GetString("redis_addr"),
		RedisPassword: v.GetString("redis_password"),
		RedisDB:       v.GetInt("redis_db"),
		RateLimitRPM:  v.GetInt("rate_limit_rpm"),
	}

	var err error
	if cfg.JobTTL, err = duration(v, "job_ttl"); err != nil {
		return nil, err
	}
	if cfg.DownloadTimeout, err = duration(v, "download_timeout"); err != nil {
		return nil, err
	}
	if cfg.CallbackTimeout, err = duration(v, "callback_timeout"); err != nil {
		return nil, err
	}
	if cfg.CallbackRetryUnit, err = duration(v, "callback_retry_unit"); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.MaxConcurrent <= 0 {
		return fmt.Errorf("invalid MAX_CONCURRENT_JOBS: must be positive")
	}
	if c.MaxTrackedJobs <= 0 {
		return fmt.Errorf("invalid MAX_TRACKED_JOBS: must be positive")
	}
	if strings.TrimSpace(c.WorkDir) == "" {
		return fmt.Errorf("WORK_DIR is required")
	}
	switch c.Storage.Provider {
	case "localfs":
		if strings.TrimSpace(c.Storage.LocalRoot) == "" {
			return fmt.Errorf("STORAGE_LOCAL_ROOT is required for localfs storage")
		}
	case "gdrive":
		if c.Storage.GDriveClientID == "" || c.Storage.GDriveClientSecret == "" || c.Storage.GDriveRefreshToken == "" {
			return fmt.Errorf("GDRIVE_CLIENT_ID, GDRIVE_CLIENT_SECRET and GDRIVE_REFRESH_TOKEN are required for gdrive storage")
		}
	default:
		return fmt.Errorf("unknown storage provider: %s", c.Storage.Provider)
	}
	return nil
}

func duration(v *viper.Viper, key string) (time.Duration, error) {
	raw := strings.TrimSpace(v.GetString(key))
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", strings.ToUpper(key), raw)
	}
	return d, nil
}

func splitCSV(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
