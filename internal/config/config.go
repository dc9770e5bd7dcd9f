package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server     ServerConfig
	Auth       AuthConfig
	Provider   ProviderConfig
	Transcribe TranscribeConfig
	HTTP       HTTPConfig
	Redis      RedisConfig
	Database   DatabaseConfig
	Jobs       JobsConfig
	LogLevel   slog.Level
}

type ServerConfig struct {
	Host string
	Port int
}

type AuthConfig struct {
	JWTSecret     string
	TokenLifetime time.Duration
	APIKeys       []string
}

// ProviderConfig holds the transcription backend credentials. It is re-read
// from the environment on every request through LoadProvider.
type ProviderConfig struct {
	AzureAPIKey     string
	AzureEndpoint   string
	AzureAPIVersion string
	AzureDeployment string // empty: derived from the model name
	OpenAIAPIKey    string
	OpenAIBaseURL   string // empty: https://api.openai.com/v1
}

type TranscribeConfig struct {
	TempDir     string
	FFmpegPath  string
	FFprobePath string
	MaxUploadMB int
}

type HTTPConfig struct {
	AllowedOrigins []string
	RateLimitRPS   float64
	RateLimitBurst int
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type DatabaseConfig struct {
	URL            string
	MaxConns       int
	MinConns       int
	MigrationsPath string
}

type JobsConfig struct {
	SpoolDir    string
	ResultTTL   time.Duration
	Concurrency int
	Timeout     time.Duration
	MetricsAddr string // worker /metrics listener; empty disables it
	// WebhookSecret signs job callbacks; empty sends them unsigned.
	WebhookSecret string
}

// Load reads the optional env file named by ENV_FILE (default ".env") and
// then builds the configuration from the process environment.
func Load() (*Config, error) {
	if err := loadEnvFile(getEnv("ENV_FILE", ".env")); err != nil {
		return nil, err
	}

	port, err := getEnvInt("SERVER_PORT", 8000)
	if err != nil {
		return nil, fmt.Errorf("invalid SERVER_PORT: %w", err)
	}

	tokenHours, err := getEnvInt("JWT_EXPIRATION_HOURS", 24)
	if err != nil {
		return nil, fmt.Errorf("invalid JWT_EXPIRATION_HOURS: %w", err)
	}

	maxUpload, err := getEnvInt("MAX_UPLOAD_MB", 200)
	if err != nil {
		return nil, fmt.Errorf("invalid MAX_UPLOAD_MB: %w", err)
	}

	rps, err := getEnvFloat("RATE_LIMIT_RPS", 10)
	if err != nil {
		return nil, fmt.Errorf("invalid RATE_LIMIT_RPS: %w", err)
	}

	burst, err := getEnvInt("RATE_LIMIT_BURST", 20)
	if err != nil {
		return nil, fmt.Errorf("invalid RATE_LIMIT_BURST: %w", err)
	}

	redisDB, err := getEnvInt("REDIS_DB", 0)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	maxConns, err := getEnvInt("DB_MAX_CONNS", 10)
	if err != nil {
		return nil, fmt.Errorf("invalid DB_MAX_CONNS: %w", err)
	}

	minConns, err := getEnvInt("DB_MIN_CONNS", 1)
	if err != nil {
		return nil, fmt.Errorf("invalid DB_MIN_CONNS: %w", err)
	}

	ttlHours, err := getEnvInt("JOB_RESULT_TTL_HOURS", 24)
	if err != nil {
		return nil, fmt.Errorf("invalid JOB_RESULT_TTL_HOURS: %w", err)
	}

	concurrency, err := getEnvInt("WORKER_CONCURRENCY", 2)
	if err != nil {
		return nil, fmt.Errorf("invalid WORKER_CONCURRENCY: %w", err)
	}

	jobTimeout, err := getEnvInt("JOB_TIMEOUT_MINUTES", 30)
	if err != nil {
		return nil, fmt.Errorf("invalid JOB_TIMEOUT_MINUTES: %w", err)
	}

	level, err := parseLevel(getEnv("LOG_LEVEL", "info"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Server: ServerConfig{
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
			Port: port,
		},
		Auth: AuthConfig{
			JWTSecret:     getEnv("JWT_SECRET_KEY", ""),
			TokenLifetime: time.Duration(tokenHours) * time.Hour,
			APIKeys:       splitList(getEnv("VALID_API_KEYS", "")),
		},
		Provider: LoadProvider(),
		Transcribe: TranscribeConfig{
			TempDir:     getEnv("TRANSCRIBE_TEMP_DIR", os.TempDir()),
			FFmpegPath:  getEnv("FFMPEG_PATH", "ffmpeg"),
			FFprobePath: getEnv("FFPROBE_PATH", "ffprobe"),
			MaxUploadMB: maxUpload,
		},
		HTTP: HTTPConfig{
			AllowedOrigins: splitList(getEnv("CORS_ALLOWED_ORIGINS", "*")),
			RateLimitRPS:   rps,
			RateLimitBurst: burst,
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       redisDB,
		},
		Database: DatabaseConfig{
			URL:            getEnv("DATABASE_URL", ""),
			MaxConns:       maxConns,
			MinConns:       minConns,
			MigrationsPath: getEnv("MIGRATIONS_PATH", "migrations"),
		},
		Jobs: JobsConfig{
			SpoolDir:    getEnv("JOB_SPOOL_DIR", os.TempDir()),
			ResultTTL:   time.Duration(ttlHours) * time.Hour,
			Concurrency: concurrency,
			Timeout:     time.Duration(jobTimeout) * time.Minute,
			MetricsAddr: getEnv("WORKER_METRICS_ADDR", ""),

			WebhookSecret: getEnv("WEBHOOK_SIGNING_SECRET", ""),
		},
		LogLevel: level,
	}

	return cfg, nil
}

// LoadProvider reads the provider credentials straight from the environment.
// Nothing is cached, so rotated keys take effect on the next call.
func LoadProvider() ProviderConfig {
	return ProviderConfig{
		AzureAPIKey:     getEnv("AZURE_API_KEY", ""),
		AzureEndpoint:   getEnv("AZURE_API_BASE", ""),
		AzureAPIVersion: getEnv("AZURE_API_VERSION", "2024-10-21"),
		AzureDeployment: getEnv("AZURE_WHISPER_DEPLOYMENT", ""),
		OpenAIAPIKey:    getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL:   getEnv("OPENAI_BASE_URL", ""),
	}
}

func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func (c *Config) Validate() error {
	var missing []string
	if c.Auth.JWTSecret == "" {
		missing = append(missing, "JWT_SECRET_KEY")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required env vars: %s", strings.Join(missing, ", "))
	}
	if c.Transcribe.MaxUploadMB <= 0 {
		return fmt.Errorf("MAX_UPLOAD_MB must be positive, got %d", c.Transcribe.MaxUploadMB)
	}
	if c.HTTP.RateLimitRPS <= 0 || c.HTTP.RateLimitBurst <= 0 {
		return fmt.Errorf("rate limit must be positive (rps=%v burst=%d)", c.HTTP.RateLimitRPS, c.HTTP.RateLimitBurst)
	}
	return nil
}

// loadEnvFile populates unset variables from path. A missing file is not an error.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("invalid LOG_LEVEL %q: %w", s, err)
	}
	return level, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return strconv.Atoi(v)
}

func getEnvFloat(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return strconv.ParseFloat(v, 64)
}
