package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database     DatabaseConfig
	Redis        RedisConfig
	JWT          JWTConfig
	CORS         CORSConfig
	Log          LogConfig
	Import       ImportConfig
	Transactions TransactionsConfig
	Reference    ReferenceConfig
	Export       ExportConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// JWTConfig carries the identity-token verification secret. Tokens are
// minted elsewhere; this service only validates them.
type JWTConfig struct {
	Secret string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// ImportConfig tunes the bulk import pipeline and its background worker.
type ImportConfig struct {
	BatchSize     int
	RunTimeout    time.Duration
	Workers       int
	QueueCapacity int
	JobTTL        time.Duration
}

// TransactionsConfig tunes the transaction manager defaults.
type TransactionsConfig struct {
	MaxAttempts      int
	BackoffBase      time.Duration
	BackoffCap       time.Duration
	StatementTimeout time.Duration
}

// ReferenceConfig governs reference-data cache behaviour.
type ReferenceConfig struct {
	CacheTTL time.Duration
}

// ExportConfig bounds timetable exports and their signed download links.
type ExportConfig struct {
	Dir           string
	MaxRows       int
	ResultTTL     time.Duration
	SigningSecret string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret: v.GetString("JWT_SECRET"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Import = ImportConfig{
		BatchSize:     v.GetInt("IMPORT_BATCH_SIZE"),
		RunTimeout:    parseDuration(v.GetString("IMPORT_RUN_TIMEOUT"), 5*time.Minute),
		Workers:       v.GetInt("IMPORT_WORKERS"),
		QueueCapacity: v.GetInt("IMPORT_QUEUE_CAPACITY"),
		JobTTL:        parseDuration(v.GetString("IMPORT_JOB_TTL"), 24*time.Hour),
	}

	cfg.Transactions = TransactionsConfig{
		MaxAttempts:      v.GetInt("TX_MAX_ATTEMPTS"),
		BackoffBase:      parseDuration(v.GetString("TX_BACKOFF_BASE"), 50*time.Millisecond),
		BackoffCap:       parseDuration(v.GetString("TX_BACKOFF_CAP"), time.Second),
		StatementTimeout: parseDuration(v.GetString("TX_STATEMENT_TIMEOUT"), 0),
	}

	cfg.Reference = ReferenceConfig{
		CacheTTL: parseDuration(v.GetString("REFERENCE_CACHE_TTL"), 5*time.Minute),
	}

	cfg.Export = ExportConfig{
		Dir:           v.GetString("EXPORT_DIR"),
		MaxRows:       v.GetInt("EXPORT_MAX_ROWS"),
		ResultTTL:     parseDuration(v.GetString("EXPORT_RESULT_TTL"), 24*time.Hour),
		SigningSecret: v.GetString("EXPORT_SIGNING_SECRET"),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "timetiba")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("IMPORT_BATCH_SIZE", 50)
	v.SetDefault("IMPORT_RUN_TIMEOUT", "5m")
	v.SetDefault("IMPORT_WORKERS", 1)
	v.SetDefault("IMPORT_QUEUE_CAPACITY", 16)
	v.SetDefault("IMPORT_JOB_TTL", "24h")

	v.SetDefault("TX_MAX_ATTEMPTS", 3)
	v.SetDefault("TX_BACKOFF_BASE", "50ms")
	v.SetDefault("TX_BACKOFF_CAP", "1s")
	v.SetDefault("TX_STATEMENT_TIMEOUT", "")

	v.SetDefault("REFERENCE_CACHE_TTL", "5m")

	v.SetDefault("EXPORT_DIR", "./exports")
	v.SetDefault("EXPORT_MAX_ROWS", 5000)
	v.SetDefault("EXPORT_RESULT_TTL", "24h")
	v.SetDefault("EXPORT_SIGNING_SECRET", "dev_export_secret")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
