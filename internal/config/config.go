package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ConfigPath is the default configuration file location.
const ConfigPath = "config.yaml"

// MinioConfig holds object storage settings.
type MinioConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"accessKey"`
	SecretKey string `yaml:"secretKey"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"useSSL"`
}

// FileConfig represents configuration loaded from YAML, overridable by env.
type FileConfig struct {
	Port              string      `yaml:"port"`
	DatabaseURL       string      `yaml:"databaseURL"`
	RedisAddr         string      `yaml:"redisAddr"`
	RedisPassword     string      `yaml:"redisPassword"`
	AMQPURL           string      `yaml:"amqpURL"`
	LogLevel          string      `yaml:"logLevel"`
	CORSAllowOrigin   string      `yaml:"corsAllowOrigin"`
	SessionTTL        string      `yaml:"sessionTTL"`
	RefreshTTL        string      `yaml:"refreshTTL"`
	JWTPrivateKeyPath string      `yaml:"jwtPrivateKeyPath"`
	JWTIssuer         string      `yaml:"jwtIssuer"`
	JWTAudience       string      `yaml:"jwtAudience"`
	Minio             MinioConfig `yaml:"minio"`

	LoginRateLimitPerMinute    int `yaml:"loginRateLimitPerMinute"`
	SignupRateLimitPerMinute   int `yaml:"signupRateLimitPerMinute"`
	PasswordRateLimitPerMinute int `yaml:"passwordRateLimitPerMinute"`

	MaxUploadBytes    int64    `yaml:"maxUploadBytes"`
	AllowedExtensions []string `yaml:"allowedExtensions"`

	PredictionStream  string `yaml:"predictionStream"`
	PredictionWorkers int    `yaml:"predictionWorkers"`
}

// Load reads config from path (defaults to config.yaml). A .env file is
// applied to the process environment first, then env vars override YAML.
func Load(path string) (FileConfig, error) {
	_ = godotenv.Load()

	cfg := FileConfig{}
	if path == "" {
		path = ConfigPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}

	overrideString(&cfg.Port, "PORT")
	overrideString(&cfg.DatabaseURL, "DATABASE_URL")
	overrideString(&cfg.RedisAddr, "REDIS_ADDR")
	overrideString(&cfg.RedisPassword, "REDIS_PASSWORD")
	overrideString(&cfg.AMQPURL, "AMQP_URL")
	overrideString(&cfg.LogLevel, "LOG_LEVEL")
	overrideString(&cfg.CORSAllowOrigin, "CORS_ALLOW_ORIGIN")
	overrideString(&cfg.SessionTTL, "SESSION_TTL")
	overrideString(&cfg.RefreshTTL, "REFRESH_TTL")
	overrideString(&cfg.JWTPrivateKeyPath, "JWT_PRIVATE_KEY_PATH")
	overrideString(&cfg.JWTIssuer, "JWT_ISSUER")
	overrideString(&cfg.JWTAudience, "JWT_AUDIENCE")
	overrideString(&cfg.Minio.Endpoint, "MINIO_ENDPOINT")
	overrideString(&cfg.Minio.AccessKey, "MINIO_ACCESS_KEY")
	overrideString(&cfg.Minio.SecretKey, "MINIO_SECRET_KEY")
	overrideString(&cfg.Minio.Bucket, "MINIO_BUCKET")
	overrideString(&cfg.PredictionStream, "PREDICTION_STREAM")
	overrideInt(&cfg.LoginRateLimitPerMinute, "LOGIN_RATE_LIMIT_PER_MINUTE")
	overrideInt(&cfg.SignupRateLimitPerMinute, "SIGNUP_RATE_LIMIT_PER_MINUTE")
	overrideInt(&cfg.PasswordRateLimitPerMinute, "PASSWORD_RATE_LIMIT_PER_MINUTE")
	overrideInt(&cfg.PredictionWorkers, "PREDICTION_WORKERS")

	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func overrideString(target *string, env string) {
	if v := os.Getenv(env); v != "" {
		*target = v
	}
}

func overrideInt(target *int, env string) {
	if v := os.Getenv(env); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*target = n
		}
	}
}

func validate(cfg FileConfig) error {
	if cfg.Port == "" {
		return errors.New("config: port is required")
	}
	if cfg.DatabaseURL == "" {
		return errors.New("config: databaseURL is required (set DATABASE_URL)")
	}
	if strings.TrimSpace(cfg.RedisAddr) == "" {
		return errors.New("config: redisAddr is required (sessions, rate limits, prediction queue)")
	}
	if cfg.JWTPrivateKeyPath == "" {
		return errors.New("config: jwtPrivateKeyPath is required (set JWT_PRIVATE_KEY_PATH)")
	}
	if cfg.Minio.Endpoint == "" || cfg.Minio.Bucket == "" {
		return errors.New("config: minio endpoint and bucket are required for uploads")
	}
	if cfg.LoginRateLimitPerMinute < 0 || cfg.SignupRateLimitPerMinute < 0 || cfg.PasswordRateLimitPerMinute < 0 {
		return errors.New("config: rate limits must be >= 0")
	}
	if cfg.MaxUploadBytes < 0 {
		return errors.New("config: maxUploadBytes must be >= 0")
	}
	return nil
}

// ParseTTL parses an optional duration string; empty means "use default".
func ParseTTL(raw, name string) (time.Duration, error) {
	if raw == "" {
		return 0, nil
	}
	dur, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s duration: %w", name, err)
	}
	return dur, nil
}
