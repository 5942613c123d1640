package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds every runtime setting. Values are resolved in three layers:
// built-in defaults, then the optional YAML file named by CONFIG_FILE, then
// environment variables (a .env file is loaded into the environment first).
type Config struct {
	Port            int    `yaml:"port"`
	Password        string `yaml:"password"` // empty disables the login page
	StaticDirectory string `yaml:"static_dir"`
	LogDirectory    string `yaml:"log_dir"`
	MaxUploadSizeMB int64  `yaml:"max_upload_size_mb"`

	DatabasePath string `yaml:"database_path"`
	DatabaseURL  string `yaml:"database_url"` // postgres, replaces SQLite for inferences when set

	SegmentationModelPath string `yaml:"segmentation_model_path"`
	SegmentationModelName string `yaml:"segmentation_model_name"`
	Device                string `yaml:"device"` // cpu | cuda

	ChatBackend       string `yaml:"chat_backend"` // local | remote
	ChatModelID       string `yaml:"chat_model_id"`
	ChatModelPath     string `yaml:"chat_model_path"`
	ChatTokenizerPath string `yaml:"chat_tokenizer_path"`

	RecommendBackend       string `yaml:"recommend_backend"`
	RecommendModelID       string `yaml:"recommend_model_id"`
	RecommendModelPath     string `yaml:"recommend_model_path"`
	RecommendTokenizerPath string `yaml:"recommend_tokenizer_path"`

	CaptionModelID string `yaml:"caption_model_id"`

	RemoteBaseURL      string `yaml:"remote_base_url"`
	RemoteAPIKey       string `yaml:"remote_api_key"`
	RemoteTimeoutSecs  int    `yaml:"remote_timeout_secs"`
	ONNXRuntimeLibrary string `yaml:"onnxruntime_library"`
	EOSTokenID         int    `yaml:"eos_token_id"`

	ArtifactDirectory string `yaml:"artifact_dir"`
	MinioEndpoint     string `yaml:"minio_endpoint"`
	MinioAccessKey    string `yaml:"minio_access_key"`
	MinioSecretKey    string `yaml:"minio_secret_key"`
	MinioBucket       string `yaml:"minio_bucket"`
	MinioUseSSL       bool   `yaml:"minio_use_ssl"`

	RedisAddr         string `yaml:"redis_addr"`
	RedisPassword     string `yaml:"redis_password"`
	DashboardCacheTTL int    `yaml:"dashboard_cache_ttl"` // seconds

	RateLimitRPS   float64 `yaml:"rate_limit_rps"`
	RateLimitBurst int     `yaml:"rate_limit_burst"`

	SentryDSN   string `yaml:"sentry_dsn"`
	Environment string `yaml:"environment"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Port:            8080,
		StaticDirectory: "static",
		LogDirectory:    filepath.Join(".", "logs"),
		MaxUploadSizeMB: 20,

		DatabasePath: filepath.Join("databases", "inference_data.db"),

		SegmentationModelPath: filepath.Join("models", "segformer.onnx"),
		SegmentationModelName: "davidle7/segformer",
		Device:                "cpu",

		ChatBackend:       "remote",
		ChatModelID:       "mockingmonkey/MedGemma2",
		ChatModelPath:     filepath.Join("models", "medgemma2", "model.onnx"),
		ChatTokenizerPath: filepath.Join("models", "medgemma2", "tokenizer.json"),

		RecommendBackend:       "remote",
		RecommendModelID:       "mockingmonkey/MedGemma",
		RecommendModelPath:     filepath.Join("models", "medgemma", "model.onnx"),
		RecommendTokenizerPath: filepath.Join("models", "medgemma", "tokenizer.json"),

		CaptionModelID: "mockingmonkey/MedPali",

		RemoteBaseURL:     "http://localhost:8000",
		RemoteTimeoutSecs: 120,
		EOSTokenID:        1,

		ArtifactDirectory: filepath.Join(".", "artifacts"),
		MinioBucket:       "segmentations",

		DashboardCacheTTL: 60,

		RateLimitRPS:   2,
		RateLimitBurst: 5,

		Environment: "development",
	}
}

// Load resolves the configuration from defaults, CONFIG_FILE and the environment.
func Load() (*Config, error) {
	// a missing .env is normal outside development
	_ = godotenv.Load()

	cfg := Default()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Port = getEnvAsInt("PORT", c.Port)
	c.Password = getEnv("PASSWORD", c.Password)
	c.StaticDirectory = getEnv("STATIC_DIR", c.StaticDirectory)
	c.LogDirectory = getEnv("LOG_DIR", c.LogDirectory)
	c.MaxUploadSizeMB = getEnvAsInt64("MAX_UPLOAD_SIZE_MB", c.MaxUploadSizeMB)

	c.DatabasePath = getEnv("DATABASE_PATH", c.DatabasePath)
	c.DatabaseURL = getEnv("DATABASE_URL", c.DatabaseURL)

	c.SegmentationModelPath = getEnv("SEGMENTATION_MODEL_PATH", c.SegmentationModelPath)
	c.SegmentationModelName = getEnv("SEGMENTATION_MODEL_NAME", c.SegmentationModelName)
	c.Device = strings.ToLower(getEnv("DEVICE", c.Device))

	c.ChatBackend = strings.ToLower(getEnv("CHAT_BACKEND", c.ChatBackend))
	c.ChatModelID = getEnv("CHAT_MODEL_ID", c.ChatModelID)
	c.ChatModelPath = getEnv("CHAT_MODEL_PATH", c.ChatModelPath)
	c.ChatTokenizerPath = getEnv("CHAT_TOKENIZER_PATH", c.ChatTokenizerPath)

	c.RecommendBackend = strings.ToLower(getEnv("RECOMMEND_BACKEND", c.RecommendBackend))
	c.RecommendModelID = getEnv("RECOMMEND_MODEL_ID", c.RecommendModelID)
	c.RecommendModelPath = getEnv("RECOMMEND_MODEL_PATH", c.RecommendModelPath)
	c.RecommendTokenizerPath = getEnv("RECOMMEND_TOKENIZER_PATH", c.RecommendTokenizerPath)

	c.CaptionModelID = getEnv("CAPTION_MODEL_ID", c.CaptionModelID)

	c.RemoteBaseURL = getEnv("REMOTE_BASE_URL", c.RemoteBaseURL)
	c.RemoteAPIKey = getEnv("REMOTE_API_KEY", c.RemoteAPIKey)
	c.RemoteTimeoutSecs = getEnvAsInt("REMOTE_TIMEOUT_SECS", c.RemoteTimeoutSecs)
	c.ONNXRuntimeLibrary = getEnv("ONNXRUNTIME_SHARED_LIBRARY_PATH", c.ONNXRuntimeLibrary)
	c.EOSTokenID = getEnvAsInt("EOS_TOKEN_ID", c.EOSTokenID)

	c.ArtifactDirectory = getEnv("ARTIFACT_DIR", c.ArtifactDirectory)
	c.MinioEndpoint = getEnv("MINIO_ENDPOINT", c.MinioEndpoint)
	c.MinioAccessKey = getEnv("MINIO_ACCESS_KEY", c.MinioAccessKey)
	c.MinioSecretKey = getEnv("MINIO_SECRET_KEY", c.MinioSecretKey)
	c.MinioBucket = getEnv("MINIO_BUCKET", c.MinioBucket)
	c.MinioUseSSL = getEnvAsBool("MINIO_USE_SSL", c.MinioUseSSL)

	c.RedisAddr = getEnv("REDIS_ADDR", c.RedisAddr)
	c.RedisPassword = getEnv("REDIS_PASSWORD", c.RedisPassword)
	c.DashboardCacheTTL = getEnvAsInt("DASHBOARD_CACHE_TTL", c.DashboardCacheTTL)

	c.RateLimitRPS = getEnvAsFloat("RATE_LIMIT_RPS", c.RateLimitRPS)
	c.RateLimitBurst = getEnvAsInt("RATE_LIMIT_BURST", c.RateLimitBurst)

	c.SentryDSN = getEnv("SENTRY_DSN", c.SentryDSN)
	c.Environment = getEnv("ENVIRONMENT", c.Environment)
}

// Validate rejects settings the services cannot start with.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.Device != "cpu" && c.Device != "cuda" {
		return fmt.Errorf("unsupported device %q (want cpu or cuda)", c.Device)
	}
	for name, backend := range map[string]string{"chat": c.ChatBackend, "recommend": c.RecommendBackend} {
		if backend != "local" && backend != "remote" {
			return fmt.Errorf("unsupported %s backend %q (want local or remote)", name, backend)
		}
	}
	if c.MaxUploadSizeMB <= 0 {
		return fmt.Errorf("max upload size must be positive")
	}
	return nil
}

// RemoteTimeout is the HTTP timeout for remote model calls.
func (c *Config) RemoteTimeout() time.Duration {
	return time.Duration(c.RemoteTimeoutSecs) * time.Second
}

// DashboardTTL is how long dashboard summaries stay cached.
func (c *Config) DashboardTTL() time.Duration {
	return time.Duration(c.DashboardCacheTTL) * time.Second
}

// AuthEnabled reports whether pages require a login.
func (c *Config) AuthEnabled() bool {
	return c.Password != ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
