package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config aggregates application settings that may be sourced from files or environment variables.
type Config struct {
	API      APIConfig      `mapstructure:"api"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	MinIO    MinIOConfig    `mapstructure:"minio"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Internal InternalConfig `mapstructure:"internal"`
	Editor   EditorConfig   `mapstructure:"editor"`
	Stripe   StripeConfig   `mapstructure:"stripe"`
	Clamd    ClamdConfig    `mapstructure:"clamd"`
	Worker   WorkerConfig   `mapstructure:"worker"`
}

// APIConfig contains HTTP server settings.
type APIConfig struct {
	Port                  int           `mapstructure:"port"`
	CookieDomain          string        `mapstructure:"cookie_domain"`
	AllowedOrigins        []string      `mapstructure:"allowed_origins"`
	LoginRateLimitPerHour int           `mapstructure:"login_rate_limit_per_hour"`
	LoginLockThreshold    int           `mapstructure:"login_lock_threshold"`
	LoginLockTTL          time.Duration `mapstructure:"login_lock_ttl"`
	MaxPhotoBytes         int64         `mapstructure:"max_photo_bytes"`
}

// DatabaseConfig contains connection options for PostgreSQL.
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Name     string `mapstructure:"name"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	SSLMode  string `mapstructure:"sslmode"`
}

// RedisConfig 包含 Redis 连接配置。
type RedisConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// MinIOConfig contains connection options for MinIO/S3-compatible storage.
type MinIOConfig struct {
	Endpoint         string `mapstructure:"endpoint"`
	AccessKeyID      string `mapstructure:"access_key_id"`
	SecretAccessKey  string `mapstructure:"secret_access_key"`
	UseSSL           bool   `mapstructure:"use_ssl"`
	Bucket           string `mapstructure:"bucket"`
	Region           string `mapstructure:"region"`
	PublicEndpoint   string `mapstructure:"public_endpoint"` // 浏览器可访问的地址，用于预签名链接
	BucketLookup     string `mapstructure:"bucket_lookup"`
	AutoCreateBucket bool   `mapstructure:"auto_create_bucket"`
}

// AuthConfig 包含 JWT 签名密钥路径与令牌有效期。
type AuthConfig struct {
	PrivateKeyPath  string        `mapstructure:"private_key_path"`
	PublicKeyPath   string        `mapstructure:"public_key_path"`
	AccessTokenTTL  time.Duration `mapstructure:"access_token_ttl"`
	RefreshTokenTTL time.Duration `mapstructure:"refresh_token_ttl"`
}

// InternalConfig 描述 worker 与导出网关回调 API 内部接口所需的信息。
type InternalConfig struct {
	Secret     string `mapstructure:"secret"`
	APIBaseURL string `mapstructure:"api_base_url"`
}

// EditorConfig contains editor session tuning.
type EditorConfig struct {
	AutosaveDelay time.Duration `mapstructure:"autosave_delay"`
	PageHeightPx  float64       `mapstructure:"page_height_px"`
}

// StripeConfig contains checkout settings. An empty APIKey disables checkout.
type StripeConfig struct {
	APIKey     string `mapstructure:"api_key"`
	SuccessURL string `mapstructure:"success_url"`
	CancelURL  string `mapstructure:"cancel_url"`
}

// WorkerConfig 控制 asynq worker 并发与指标端口。
type WorkerConfig struct {
	Concurrency int `mapstructure:"concurrency"`
	MetricsPort int `mapstructure:"metrics_port"`
}

// ClamdConfig 指向 ClamAV 守护进程。
type ClamdConfig struct {
	Address string `mapstructure:"address"`
}

// DSN builds a lib/pq compatible connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host,
		d.Port,
		d.User,
		d.Password,
		d.Name,
		d.SSLMode,
	)
}

// Addr 返回 host:port 形式的 Redis 地址。
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// Load reads configuration solely from environment variables (with optional defaults).
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	if err := bindEnv(v); err != nil {
		return nil, fmt.Errorf("bind env: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// MustLoad wraps Load and panics on failure.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api.port", 8080)
	v.SetDefault("api.login_rate_limit_per_hour", 10)
	v.SetDefault("api.login_lock_threshold", 5)
	v.SetDefault("api.login_lock_ttl", 15*time.Minute)
	v.SetDefault("api.max_photo_bytes", 5<<20)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "cvstudio")
	v.SetDefault("database.user", "cvstudio")
	v.SetDefault("database.password", "cvstudio")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("minio.endpoint", "localhost:9000")
	v.SetDefault("minio.use_ssl", false)
	v.SetDefault("minio.bucket", "cvstudio")
	v.SetDefault("minio.public_endpoint", "http://localhost:9000")
	v.SetDefault("minio.bucket_lookup", "auto")
	v.SetDefault("minio.auto_create_bucket", true)
	v.SetDefault("auth.private_key_path", "keys/jwt_private.pem")
	v.SetDefault("auth.public_key_path", "keys/jwt_public.pem")
	v.SetDefault("auth.access_token_ttl", 15*time.Minute)
	v.SetDefault("auth.refresh_token_ttl", 7*24*time.Hour)
	v.SetDefault("internal.api_base_url", "http://localhost:8080")
	v.SetDefault("editor.autosave_delay", 3*time.Second)
	v.SetDefault("editor.page_height_px", 1122.0)
	v.SetDefault("stripe.success_url", "http://localhost:3000/checkout/success")
	v.SetDefault("stripe.cancel_url", "http://localhost:3000/checkout/cancel")
	v.SetDefault("clamd.address", "tcp://localhost:3310")
	v.SetDefault("worker.concurrency", 10)
	v.SetDefault("worker.metrics_port", 9091)
}

func bindEnv(v *viper.Viper) error {
	mappings := map[string]string{
		"api.port":                      "API_PORT",
		"api.cookie_domain":             "API_COOKIE_DOMAIN",
		"api.allowed_origins":           "API_ALLOWED_ORIGINS",
		"api.login_rate_limit_per_hour": "LOGIN_RATE_LIMIT_PER_HOUR",
		"api.login_lock_threshold":      "LOGIN_LOCK_THRESHOLD",
		"api.login_lock_ttl":            "LOGIN_LOCK_TTL",
		"api.max_photo_bytes":           "API_MAX_PHOTO_BYTES",
		"database.host":                 "DATABASE_HOST",
		"database.port":                 "DATABASE_PORT",
		"database.name":                 "POSTGRES_DB",
		"database.user":                 "POSTGRES_USER",
		"database.password":             "POSTGRES_PASSWORD",
		"database.sslmode":              "DATABASE_SSLMODE",
		"redis.host":                    "REDIS_HOST",
		"redis.port":                    "REDIS_PORT",
		"minio.endpoint":                "MINIO_ENDPOINT",
		"minio.access_key_id":           "MINIO_ACCESS_KEY_ID",
		"minio.secret_access_key":       "MINIO_SECRET_ACCESS_KEY",
		"minio.use_ssl":                 "MINIO_USE_SSL",
		"minio.bucket":                  "MINIO_BUCKET",
		"minio.region":                  "MINIO_REGION",
		"minio.public_endpoint":         "MINIO_PUBLIC_ENDPOINT",
		"minio.bucket_lookup":           "MINIO_BUCKET_LOOKUP",
		"minio.auto_create_bucket":      "MINIO_AUTO_CREATE_BUCKET",
		"auth.private_key_path":         "JWT_PRIVATE_KEY_PATH",
		"auth.public_key_path":          "JWT_PUBLIC_KEY_PATH",
		"auth.access_token_ttl":         "JWT_ACCESS_TTL",
		"auth.refresh_token_ttl":        "JWT_REFRESH_TTL",
		"internal.secret":               "INTERNAL_API_SECRET",
		"internal.api_base_url":         "INTERNAL_API_BASE_URL",
		"editor.autosave_delay":         "EDITOR_AUTOSAVE_DELAY",
		"editor.page_height_px":         "EDITOR_PAGE_HEIGHT_PX",
		"stripe.api_key":                "STRIPE_API_KEY",
		"stripe.success_url":            "STRIPE_SUCCESS_URL",
		"stripe.cancel_url":             "STRIPE_CANCEL_URL",
		"clamd.address":                 "CLAMD_ADDRESS",
		"worker.concurrency":            "WORKER_CONCURRENCY",
		"worker.metrics_port":           "WORKER_METRICS_PORT",
	}

	for key, env := range mappings {
		if err := v.BindEnv(key, env); err != nil {
			return fmt.Errorf("bind %s to %s: %w", key, env, err)
		}
	}

	return nil
}

func validate(cfg Config) error {
	if cfg.API.Port <= 0 {
		return errors.New("api port must be positive")
	}
	if cfg.API.LoginRateLimitPerHour <= 0 || cfg.API.LoginLockThreshold <= 0 {
		return errors.New("login limits must be positive")
	}
	if cfg.API.MaxPhotoBytes <= 0 {
		return errors.New("max photo bytes must be positive")
	}
	if cfg.Database.Host == "" {
		return errors.New("database host is required")
	}
	if cfg.Database.Port <= 0 {
		return errors.New("database port must be positive")
	}
	if cfg.Database.Name == "" {
		return errors.New("database name is required")
	}
	if cfg.Database.User == "" {
		return errors.New("database user is required")
	}
	if cfg.Database.Password == "" {
		return errors.New("database password is required")
	}
	if cfg.Database.SSLMode == "" {
		return errors.New("database sslmode is required")
	}
	if cfg.Redis.Host == "" {
		return errors.New("redis host is required")
	}
	if cfg.Redis.Port <= 0 {
		return errors.New("redis port must be positive")
	}
	if cfg.MinIO.Endpoint == "" {
		return errors.New("minio endpoint is required")
	}
	if cfg.MinIO.AccessKeyID == "" {
		return errors.New("minio access key id is required")
	}
	if cfg.MinIO.SecretAccessKey == "" {
		return errors.New("minio secret access key is required")
	}
	if cfg.MinIO.Bucket == "" {
		return errors.New("minio bucket is required")
	}
	if cfg.MinIO.PublicEndpoint == "" {
		return errors.New("minio public endpoint is required")
	}
	if cfg.Auth.PrivateKeyPath == "" || cfg.Auth.PublicKeyPath == "" {
		return errors.New("jwt key paths are required")
	}
	if cfg.Auth.AccessTokenTTL <= 0 || cfg.Auth.RefreshTokenTTL <= 0 {
		return errors.New("jwt token ttl must be positive")
	}
	if cfg.Internal.Secret == "" {
		return errors.New("internal api secret is required")
	}
	if cfg.Internal.APIBaseURL == "" {
		return errors.New("internal api base url is required")
	}
	if cfg.Editor.AutosaveDelay <= 0 {
		return errors.New("editor autosave delay must be positive")
	}
	if cfg.Editor.PageHeightPx <= 0 {
		return errors.New("editor page height must be positive")
	}
	if cfg.Worker.Concurrency <= 0 {
		return errors.New("worker concurrency must be positive")
	}
	if cfg.Stripe.APIKey != "" && (cfg.Stripe.SuccessURL == "" || cfg.Stripe.CancelURL == "") {
		return errors.New("stripe success and cancel urls are required")
	}
	return nil
}
