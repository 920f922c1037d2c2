package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Lock backends supported by the per-key locker.
const (
	LockBackendLocal = "local"
	LockBackendRedis = "redis"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	CORS      CORSConfig
	Log       LogConfig
	Risk      RiskConfig
	Lock      LockConfig
	Directory DirectoryConfig
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

// JWTConfig holds the secret used to verify capability tokens minted by the auth service.
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

// RiskConfig tunes risk evaluation and the batch sweep.
type RiskConfig struct {
	WindowDays       int
	SweepEnabled     bool
	SweepInterval    time.Duration
	SweepConcurrency int
	SweepRateLimit   float64
	SweepTenants     []string
}

// LockConfig selects the per-key lock implementation.
type LockConfig struct {
	Backend string
	TTL     time.Duration
}

// DirectoryConfig governs caching of teacher directory lookups.
type DirectoryConfig struct {
	CacheEnabled bool
	CacheTTL     time.Duration
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
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	return fromViper(v), nil
}

func fromViper(v *viper.Viper) *Config {
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

	cfg.JWT = JWTConfig{Secret: v.GetString("JWT_SECRET")}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	windowDays := v.GetInt("RISK_WINDOW_DAYS")
	if windowDays <= 0 {
		windowDays = 30
	}
	concurrency := v.GetInt("RISK_SWEEP_CONCURRENCY")
	if concurrency <= 0 {
		concurrency = 4
	}
	cfg.Risk = RiskConfig{
		WindowDays:       windowDays,
		SweepEnabled:     v.GetBool("ENABLE_RISK_SWEEP"),
		SweepInterval:    parseDuration(v.GetString("RISK_SWEEP_INTERVAL"), 6*time.Hour),
		SweepConcurrency: concurrency,
		SweepRateLimit:   v.GetFloat64("RISK_SWEEP_RATE_LIMIT"),
		SweepTenants:     splitAndTrim(v.GetString("RISK_SWEEP_TENANTS")),
	}

	backend := strings.ToLower(strings.TrimSpace(v.GetString("LOCK_BACKEND")))
	if backend != LockBackendRedis {
		backend = LockBackendLocal
	}
	cfg.Lock = LockConfig{
		Backend: backend,
		TTL:     parseDuration(v.GetString("LOCK_TTL"), 30*time.Second),
	}

	cfg.Directory = DirectoryConfig{
		CacheEnabled: v.GetBool("ENABLE_DIRECTORY_CACHE"),
		CacheTTL:     parseDuration(v.GetString("DIRECTORY_CACHE_TTL"), 5*time.Minute),
	}

	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "school_governance")
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

	v.SetDefault("RISK_WINDOW_DAYS", 30)
	v.SetDefault("ENABLE_RISK_SWEEP", false)
	v.SetDefault("RISK_SWEEP_INTERVAL", "6h")
	v.SetDefault("RISK_SWEEP_CONCURRENCY", 4)
	v.SetDefault("RISK_SWEEP_RATE_LIMIT", 0)
	v.SetDefault("RISK_SWEEP_TENANTS", "")

	v.SetDefault("LOCK_BACKEND", LockBackendLocal)
	v.SetDefault("LOCK_TTL", "30s")

	v.SetDefault("ENABLE_DIRECTORY_CACHE", false)
	v.SetDefault("DIRECTORY_CACHE_TTL", "5m")
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
