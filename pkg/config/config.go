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

	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"

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
	Lock      LockConfig
	Timetable TimetableConfig
	Conflicts ConflictCacheConfig
}

type DatabaseConfig struct {
	Driver       string
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	SQLitePath   string
	AutoMigrate  bool
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

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

// LockConfig selects how tenant writes are serialised.
type LockConfig struct {
	Backend     string
	TTL         time.Duration
	WaitTimeout time.Duration
}

// TimetableConfig tunes the scheduling engine.
type TimetableConfig struct {
	OccurrenceHorizon  time.Duration
	ComparisonWindow   time.Duration
	DetectorWorkers    int
	ParallelThreshold  int
	ImportMaxRows      int
	ImportMaxFileBytes int64
}

// ConflictCacheConfig governs caching of the tenant conflict report.
type ConflictCacheConfig struct {
	CacheEnabled  bool
	CacheTTL      time.Duration
	WarmerEnabled bool
	WarmerWorkers int
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

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Driver:       strings.ToLower(v.GetString("DB_DRIVER")),
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		SQLitePath:   v.GetString("SQLITE_PATH"),
		AutoMigrate:  v.GetBool("DB_AUTO_MIGRATE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Enabled:  v.GetBool("ENABLE_REDIS"),
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

	cfg.Lock = LockConfig{
		Backend:     strings.ToLower(v.GetString("LOCK_BACKEND")),
		TTL:         parseDuration(v.GetString("LOCK_TTL"), 30*time.Second),
		WaitTimeout: parseDuration(v.GetString("LOCK_WAIT_TIMEOUT"), 10*time.Second),
	}

	cfg.Timetable = TimetableConfig{
		OccurrenceHorizon:  days(v.GetInt("TIMETABLE_OCCURRENCE_HORIZON_DAYS"), 730),
		ComparisonWindow:   days(v.GetInt("TIMETABLE_COMPARISON_WINDOW_DAYS"), 365),
		DetectorWorkers:    v.GetInt("TIMETABLE_DETECTOR_WORKERS"),
		ParallelThreshold:  v.GetInt("TIMETABLE_PARALLEL_THRESHOLD"),
		ImportMaxRows:      v.GetInt("TIMETABLE_IMPORT_MAX_ROWS"),
		ImportMaxFileBytes: v.GetInt64("TIMETABLE_IMPORT_MAX_FILE_BYTES"),
	}

	cfg.Conflicts = ConflictCacheConfig{
		CacheEnabled:  v.GetBool("ENABLE_CONFLICT_CACHE"),
		CacheTTL:      parseDuration(v.GetString("CONFLICT_CACHE_TTL"), 10*time.Minute),
		WarmerEnabled: v.GetBool("ENABLE_CONFLICT_WARMER"),
		WarmerWorkers: v.GetInt("WARMER_WORKERS"),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_DRIVER", DriverPostgres)
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "school_timetable")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("SQLITE_PATH", "./data/timetable.db")
	v.SetDefault("DB_AUTO_MIGRATE", true)
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("ENABLE_REDIS", false)
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("LOCK_BACKEND", LockBackendLocal)
	v.SetDefault("LOCK_TTL", "30s")
	v.SetDefault("LOCK_WAIT_TIMEOUT", "10s")

	v.SetDefault("TIMETABLE_OCCURRENCE_HORIZON_DAYS", 730)
	v.SetDefault("TIMETABLE_COMPARISON_WINDOW_DAYS", 365)
	v.SetDefault("TIMETABLE_DETECTOR_WORKERS", 4)
	v.SetDefault("TIMETABLE_PARALLEL_THRESHOLD", 256)
	v.SetDefault("TIMETABLE_IMPORT_MAX_ROWS", 2000)
	v.SetDefault("TIMETABLE_IMPORT_MAX_FILE_BYTES", 5*1024*1024)

	v.SetDefault("ENABLE_CONFLICT_CACHE", false)
	v.SetDefault("CONFLICT_CACHE_TTL", "10m")
	v.SetDefault("ENABLE_CONFLICT_WARMER", false)
	v.SetDefault("WARMER_WORKERS", 1)
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

func days(n, fallback int) time.Duration {
	if n <= 0 {
		n = fallback
	}
	return time.Duration(n) * 24 * time.Hour
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
