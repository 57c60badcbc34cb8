package infra

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv            string
	LogLevel          string
	Port              string
	DataDir           string
	RefreshInterval   time.Duration
	HistorySize       int
	ConcurrencyPolicy string
	PromptProvider    string
	ImageProvider     string
	GeminiAPIKey      string
	GeminiModel       string
	GeminiImageModel  string
	GeminiBaseURL     string
	OpenAIAPIKey      string
	OpenAIModel       string
	OpenAIVisionModel string
	OpenAIImageModel  string
	OpenAIBaseURL     string
	OpenAIOrg         string
	FFmpegPath        string
	VideoSeconds      int
	CatalogPath       string
	S3                S3Config
	HTTPReadTimeout   time.Duration
	HTTPWriteTimeout  time.Duration
	HTTPIdleTimeout   time.Duration
	ProviderTimeout   time.Duration
	RateLimitPerMin   int
}

// S3Config configures the optional object-store mirror. An empty Endpoint
// disables mirroring.
type S3Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// Enabled reports whether mirroring is configured.
func (c S3Config) Enabled() bool {
	return c.Endpoint != "" && c.Bucket != ""
}

// Concurrency policies accepted by CONCURRENCY_POLICY.
const (
	PolicyWait  = "wait"
	PolicyStale = "stale"
)

const minRefreshSeconds = 60

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:            getEnv("APP_ENV", "development"),
		LogLevel:          strings.ToLower(os.Getenv("LOG_LEVEL")),
		Port:              getEnv("PORT", "8000"),
		DataDir:           getEnv("DATA_DIR", "data"),
		RefreshInterval:   time.Second * time.Duration(getEnvInt("REFRESH_SECONDS", 300)),
		HistorySize:       getEnvInt("HISTORY_SIZE", 20),
		ConcurrencyPolicy: strings.ToLower(getEnv("CONCURRENCY_POLICY", PolicyWait)),
		PromptProvider:    strings.ToLower(getEnv("PROMPT_PROVIDER", "openai")),
		ImageProvider:     strings.ToLower(getEnv("IMAGE_PROVIDER", "openai")),
		GeminiAPIKey:      os.Getenv("GEMINI_API_KEY"),
		GeminiModel:       getEnv("GEMINI_MODEL", "gemini-1.5-flash"),
		GeminiImageModel:  getEnv("GEMINI_IMAGE_MODEL", "gemini-2.5-flash-image"),
		GeminiBaseURL:     getEnv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com/v1beta"),
		OpenAIAPIKey:      os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:       getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		OpenAIVisionModel: getEnv("OPENAI_VISION_MODEL", "gpt-4o"),
		OpenAIImageModel:  getEnv("OPENAI_IMAGE_MODEL", "gpt-image-1"),
		OpenAIBaseURL:     getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		OpenAIOrg:         os.Getenv("OPENAI_ORG"),
		FFmpegPath:        getEnv("FFMPEG_PATH", "ffmpeg"),
		VideoSeconds:      getEnvInt("VIDEO_SECONDS", 0),
		CatalogPath:       os.Getenv("CATALOG_PATH"),
		S3: S3Config{
			Endpoint:  os.Getenv("S3_ENDPOINT"),
			AccessKey: os.Getenv("S3_ACCESS_KEY"),
			SecretKey: os.Getenv("S3_SECRET_KEY"),
			Bucket:    getEnv("S3_BUCKET", "frameart"),
			UseSSL:    getEnvBool("S3_USE_SSL", false),
		},
		HTTPReadTimeout:  time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout: time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 600)),
		HTTPIdleTimeout:  time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		ProviderTimeout:  time.Second * time.Duration(getEnvInt("PROVIDER_TIMEOUT_SECONDS", 180)),
		RateLimitPerMin:  getEnvInt("RATE_LIMIT_PER_MINUTE", 120),
	}

	if cfg.RefreshInterval < minRefreshSeconds*time.Second {
		cfg.RefreshInterval = minRefreshSeconds * time.Second
	}
	if cfg.HistorySize <= 0 {
		return nil, fmt.Errorf("HISTORY_SIZE must be positive, got %d", cfg.HistorySize)
	}
	switch cfg.ConcurrencyPolicy {
	case PolicyWait, PolicyStale:
	default:
		return nil, fmt.Errorf("CONCURRENCY_POLICY must be %q or %q, got %q", PolicyWait, PolicyStale, cfg.ConcurrencyPolicy)
	}
	switch cfg.PromptProvider {
	case "openai", "gemini":
	default:
		return nil, fmt.Errorf("unsupported PROMPT_PROVIDER %q", cfg.PromptProvider)
	}
	switch cfg.ImageProvider {
	case "openai", "gemini", "synthetic":
	default:
		return nil, fmt.Errorf("unsupported IMAGE_PROVIDER %q", cfg.ImageProvider)
	}

	return cfg, nil
}

// ImagesDir is where numbered compliant stills are written.
func (c *Config) ImagesDir() string { return filepath.Join(c.DataDir, "images") }

// VideosDir is where derived videos are written.
func (c *Config) VideosDir() string { return filepath.Join(c.DataDir, "videos") }

// InspirationDir stores uploaded reference images.
func (c *Config) InspirationDir() string { return filepath.Join(c.DataDir, "inspiration") }

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
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
