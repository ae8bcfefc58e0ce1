package infra

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv             string
	LogLevel           string
	Port               string
	DatabaseURL        string
	StorageBaseURL     string
	StorageDriver      string
	StoragePath        string
	MinioEndpoint      string
	MinioAccessKey     string
	MinioSecretKey     string
	MinioBucket        string
	MinioUseSSL        bool
	GeoIPDBPath        string
	DefaultLocale      string
	CORSAllowedOrigins []string
	ImageProvider      string
	QwenAPIKey         string
	QwenBaseURL        string
	QwenModel          string
	GeminiAPIKey       string
	GeminiModel        string
	GeminiBaseURL      string
	ClipboardEnabled   bool
	HTTPReadTimeout    time.Duration
	HTTPWriteTimeout   time.Duration
	HTTPIdleTimeout    time.Duration
	GenerationTimeout  time.Duration
	NoticeTTL          time.Duration
	CopiedIndicatorTTL time.Duration
}

const (
	StorageDriverFS    = "fs"
	StorageDriverMinio = "minio"

	ImageProviderQwen      = "qwen"
	ImageProviderGemini    = "gemini"
	ImageProviderSynthetic = "synthetic"
)

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	port := getEnv("PORT", "8080")
	cfg := &Config{
		AppEnv:             getEnv("APP_ENV", "development"),
		LogLevel:           os.Getenv("LOG_LEVEL"),
		Port:               port,
		DatabaseURL:        strings.TrimSpace(os.Getenv("DATABASE_URL")),
		StorageBaseURL:     getEnv("STORAGE_BASE_URL", fmt.Sprintf("http://localhost:%s/static", port)),
		StorageDriver:      strings.ToLower(getEnv("STORAGE_DRIVER", StorageDriverFS)),
		StoragePath:        getEnv("STORAGE_PATH", "./storage"),
		MinioEndpoint:      os.Getenv("MINIO_ENDPOINT"),
		MinioAccessKey:     os.Getenv("MINIO_ACCESS_KEY"),
		MinioSecretKey:     os.Getenv("MINIO_SECRET_KEY"),
		MinioBucket:        getEnv("MINIO_BUCKET", "batch-images"),
		MinioUseSSL:        getEnvBool("MINIO_USE_SSL", false),
		GeoIPDBPath:        os.Getenv("GEOIP_DB_PATH"),
		DefaultLocale:      strings.ToLower(getEnv("DEFAULT_LOCALE", "en")),
		CORSAllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:5173", "http://localhost:3000"}),
		ImageProvider:      strings.ToLower(getEnv("IMAGE_PROVIDER", ImageProviderQwen)),
		QwenAPIKey:         os.Getenv("QWEN_API_KEY"),
		QwenBaseURL:        getEnv("QWEN_BASE_URL", "https://dashscope-intl.aliyuncs.com/api/v1"),
		QwenModel:          getEnv("QWEN_MODEL", "qwen-image-plus"),
		GeminiAPIKey:       os.Getenv("GEMINI_API_KEY"),
		GeminiModel:        getEnv("GEMINI_MODEL", "gemini-2.5-flash-image"),
		GeminiBaseURL:      getEnv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com/v1beta"),
		ClipboardEnabled:   getEnvBool("CLIPBOARD_ENABLED", true),
		HTTPReadTimeout:    time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout:   time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 60)),
		HTTPIdleTimeout:    time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		GenerationTimeout:  time.Second * time.Duration(getEnvInt("GENERATION_TIMEOUT_SECONDS", 120)),
		NoticeTTL:          time.Second * time.Duration(getEnvInt("NOTICE_TTL_SECONDS", 3)),
		CopiedIndicatorTTL: time.Second * time.Duration(getEnvInt("COPIED_INDICATOR_SECONDS", 2)),
	}

	switch cfg.StorageDriver {
	case StorageDriverFS:
	case StorageDriverMinio:
		if strings.TrimSpace(cfg.MinioEndpoint) == "" {
			return nil, fmt.Errorf("MINIO_ENDPOINT is required when STORAGE_DRIVER=minio")
		}
	default:
		return nil, fmt.Errorf("unsupported STORAGE_DRIVER %q", cfg.StorageDriver)
	}

	switch cfg.ImageProvider {
	case ImageProviderQwen, ImageProviderGemini, ImageProviderSynthetic:
	default:
		return nil, fmt.Errorf("unsupported IMAGE_PROVIDER %q", cfg.ImageProvider)
	}

	if cfg.NoticeTTL <= 0 {
		return nil, fmt.Errorf("NOTICE_TTL_SECONDS must be positive")
	}
	if cfg.CopiedIndicatorTTL <= 0 {
		return nil, fmt.Errorf("COPIED_INDICATOR_SECONDS must be positive")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvList(key string, fallback []string) []string {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
