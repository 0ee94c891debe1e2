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

	Database   DatabaseConfig
	Redis      RedisConfig
	CORS       CORSConfig
	Log        LogConfig
	Attendance AttendanceConfig
	Analytics  AnalyticsConfig
	Exports    ExportsConfig
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

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// AttendanceConfig governs the clock-event and shift lifecycle engine.
type AttendanceConfig struct {
	// Timezone is the IANA identifier of the reference civil timezone used
	// for day keys, schedule comparison and auto clock-out boundaries.
	Timezone string
	// OnTimeWindow is the half-width of the on-time band around a
	// scheduled boundary.
	OnTimeWindow time.Duration
	// NotScheduledWindow extends each declared slot on both sides; events
	// outside every extended slot classify as not scheduled.
	NotScheduledWindow time.Duration
	// MaxShiftDuration caps how long a shift may stay open before the
	// sweep force-closes it.
	MaxShiftDuration time.Duration
	// AutoCloseAtDayEnd closes stale shifts at the civil day boundary when
	// it arrives before actual_start + MaxShiftDuration.
	AutoCloseAtDayEnd bool
	// SweepInterval is the cadence of the background stale-shift sweep.
	// Zero disables the periodic job; the admin endpoint remains available.
	SweepInterval time.Duration
}

// AnalyticsConfig governs cache behaviour for breakdown endpoints.
type AnalyticsConfig struct {
	Enabled  bool
	CacheTTL time.Duration
}

// ExportsConfig controls report rendering and the on-disk audit copies.
type ExportsConfig struct {
	Enabled    bool
	StorageDir string
	MaxRows    int
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

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Attendance = AttendanceConfig{
		Timezone:           v.GetString("ATTENDANCE_TIMEZONE"),
		OnTimeWindow:       parseDuration(v.GetString("ATTENDANCE_ON_TIME_WINDOW"), 10*time.Minute),
		NotScheduledWindow: parseDuration(v.GetString("ATTENDANCE_NOT_SCHEDULED_WINDOW"), time.Hour),
		MaxShiftDuration:   parseDuration(v.GetString("ATTENDANCE_MAX_SHIFT_DURATION"), 12*time.Hour),
		AutoCloseAtDayEnd:  v.GetBool("ATTENDANCE_AUTO_CLOSE_DAY_END"),
		SweepInterval:      parseDuration(v.GetString("ATTENDANCE_SWEEP_INTERVAL"), 15*time.Minute),
	}

	cfg.Analytics = AnalyticsConfig{
		Enabled:  v.GetBool("ENABLE_ANALYTICS_CACHE"),
		CacheTTL: parseDuration(v.GetString("ANALYTICS_CACHE_TTL"), 10*time.Minute),
	}

	cfg.Exports = ExportsConfig{
		Enabled:    v.GetBool("ENABLE_EXPORTS"),
		StorageDir: v.GetString("EXPORTS_STORAGE_DIR"),
		MaxRows:    v.GetInt("EXPORTS_MAX_ROWS"),
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
	v.SetDefault("DB_NAME", "timeclock")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("ATTENDANCE_TIMEZONE", "America/Los_Angeles")
	v.SetDefault("ATTENDANCE_ON_TIME_WINDOW", "10m")
	v.SetDefault("ATTENDANCE_NOT_SCHEDULED_WINDOW", "1h")
	v.SetDefault("ATTENDANCE_MAX_SHIFT_DURATION", "12h")
	v.SetDefault("ATTENDANCE_AUTO_CLOSE_DAY_END", true)
	v.SetDefault("ATTENDANCE_SWEEP_INTERVAL", "15m")

	v.SetDefault("ENABLE_ANALYTICS_CACHE", false)
	v.SetDefault("ANALYTICS_CACHE_TTL", "10m")

	v.SetDefault("ENABLE_EXPORTS", true)
	v.SetDefault("EXPORTS_STORAGE_DIR", "")
	v.SetDefault("EXPORTS_MAX_ROWS", 5000)
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
