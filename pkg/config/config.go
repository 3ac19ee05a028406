package config

import (
	"errors"
	"fmt"
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

// Settings left at these values are refused in production.
const (
	devJWTSecret    = "dev_secret"
	devExportSecret = "dev_exports_secret"
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
	Analytics AnalyticsConfig
	Risk      RiskConfig
	Trend     TrendConfig
	Prefetch  PrefetchConfig
	Exports   ExportsConfig
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
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret     string
	Issuer     string
	Expiration time.Duration
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// AnalyticsConfig governs caching and windowing for the engagement engine.
type AnalyticsConfig struct {
	CacheTTL          time.Duration
	WindowGranularity time.Duration
	Timezone          string
	InactiveDays      int
	HistoryDays       int
	LeaderboardSize   int
	MemoSize          int
	DefaultPageSize   int
	NavigationTTL     time.Duration
}

// RiskConfig holds the risk classification thresholds. Scores strictly
// below a High bound are high risk, below a Medium bound medium risk.
type RiskConfig struct {
	HighWellbeing    float64
	MediumWellbeing  float64
	HighEngagement   float64
	MediumEngagement float64
}

type TrendConfig struct {
	WeeklyPoints  int
	MonthlyPoints int
}

type PrefetchConfig struct {
	Enabled    bool
	Workers    int
	BufferSize int
	Retries    int
	RetryDelay time.Duration
	WarmOnBoot bool
}

// ExportsConfig controls export storage and the signed download links.
type ExportsConfig struct {
	Enabled         bool
	StorageDir      string
	SignedURLSecret string
	SignedURLTTL    time.Duration
	CleanupInterval time.Duration
}

// defaults doubles as the list of recognised keys. Every key can be set from
// the environment or from the file named by CONFIG_FILE.
var defaults = map[string]any{
	"ENV":        EnvDevelopment,
	"PORT":       8080,
	"API_PREFIX": "/api/v1",

	"DB_HOST":           "localhost",
	"DB_PORT":           5432,
	"DB_USER":           "postgres",
	"DB_PASSWORD":       "postgres",
	"DB_NAME":           "wellness_dashboard",
	"DB_SSL_MODE":       "disable",
	"DB_MAX_OPEN_CONNS": 10,
	"DB_MAX_IDLE_CONNS": 5,

	"ENABLE_REDIS":   true,
	"REDIS_HOST":     "localhost",
	"REDIS_PORT":     6379,
	"REDIS_PASSWORD": "",
	"REDIS_DB":       0,

	"JWT_SECRET":     devJWTSecret,
	"JWT_ISSUER":     "wellness-analytics",
	"JWT_EXPIRATION": "24h",

	"ALLOWED_ORIGINS": "",
	"LOG_LEVEL":       "info",
	"LOG_FORMAT":      "json",

	"ANALYTICS_CACHE_TTL":          "5m",
	"ANALYTICS_WINDOW_GRANULARITY": "1m",
	"ANALYTICS_TIMEZONE":           "Local",
	"ANALYTICS_INACTIVE_DAYS":      7,
	"ANALYTICS_HISTORY_DAYS":       30,
	"ANALYTICS_LEADERBOARD_SIZE":   10,
	"ANALYTICS_MEMO_SIZE":          256,
	"ANALYTICS_PAGE_SIZE":          20,
	"NAVIGATION_SESSION_TTL":       "12h",

	"RISK_HIGH_WELLBEING":    40,
	"RISK_MEDIUM_WELLBEING":  70,
	"RISK_HIGH_ENGAGEMENT":   30,
	"RISK_MEDIUM_ENGAGEMENT": 60,

	"TREND_WEEKLY_POINTS":  4,
	"TREND_MONTHLY_POINTS": 6,

	"ENABLE_PREFETCH":       false,
	"PREFETCH_WORKERS":      2,
	"PREFETCH_BUFFER":       64,
	"PREFETCH_RETRIES":      1,
	"PREFETCH_RETRY_DELAY":  "2s",
	"PREFETCH_WARM_ON_BOOT": false,

	"ENABLE_EXPORTS":            false,
	"EXPORTS_STORAGE_DIR":       "./exports",
	"EXPORTS_SIGNED_URL_SECRET": devExportSecret,
	"EXPORTS_SIGNED_URL_TTL":    "1h",
	"EXPORTS_CLEANUP_INTERVAL":  "1h",
}

// Load reads .env into the process environment, then an optional CONFIG_FILE
// (any format viper reads), then the environment. Malformed durations and
// inconsistent settings are reported together.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.AutomaticEnv()

	if path := strings.TrimSpace(v.GetString("CONFIG_FILE")); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	r := &reader{v: v}
	cfg := r.build()
	if err := errors.Join(r.errs...); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// reader collects decode failures so one Load reports all of them.
type reader struct {
	v    *viper.Viper
	errs []error
}

func (r *reader) duration(key string) time.Duration {
	raw := strings.TrimSpace(r.v.GetString(key))
	if raw == "" {
		raw = fmt.Sprint(defaults[key])
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: %w", key, err))
	}
	return d
}

func (r *reader) build() *Config {
	v := r.v
	return &Config{
		Env:       strings.ToLower(v.GetString("ENV")),
		Port:      v.GetInt("PORT"),
		APIPrefix: v.GetString("API_PREFIX"),
		Database: DatabaseConfig{
			Host:         v.GetString("DB_HOST"),
			Port:         v.GetInt("DB_PORT"),
			User:         v.GetString("DB_USER"),
			Password:     v.GetString("DB_PASSWORD"),
			Name:         v.GetString("DB_NAME"),
			SSLMode:      v.GetString("DB_SSL_MODE"),
			MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
			MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
		},
		Redis: RedisConfig{
			Enabled:  v.GetBool("ENABLE_REDIS"),
			Host:     v.GetString("REDIS_HOST"),
			Port:     v.GetInt("REDIS_PORT"),
			Password: v.GetString("REDIS_PASSWORD"),
			DB:       v.GetInt("REDIS_DB"),
		},
		JWT: JWTConfig{
			Secret:     v.GetString("JWT_SECRET"),
			Issuer:     v.GetString("JWT_ISSUER"),
			Expiration: r.duration("JWT_EXPIRATION"),
		},
		CORS: CORSConfig{AllowedOrigins: origins(v.GetString("ALLOWED_ORIGINS"))},
		Log: LogConfig{
			Level:  v.GetString("LOG_LEVEL"),
			Format: v.GetString("LOG_FORMAT"),
		},
		Analytics: AnalyticsConfig{
			CacheTTL:          r.duration("ANALYTICS_CACHE_TTL"),
			WindowGranularity: r.duration("ANALYTICS_WINDOW_GRANULARITY"),
			Timezone:          v.GetString("ANALYTICS_TIMEZONE"),
			InactiveDays:      v.GetInt("ANALYTICS_INACTIVE_DAYS"),
			HistoryDays:       v.GetInt("ANALYTICS_HISTORY_DAYS"),
			LeaderboardSize:   v.GetInt("ANALYTICS_LEADERBOARD_SIZE"),
			MemoSize:          v.GetInt("ANALYTICS_MEMO_SIZE"),
			DefaultPageSize:   v.GetInt("ANALYTICS_PAGE_SIZE"),
			NavigationTTL:     r.duration("NAVIGATION_SESSION_TTL"),
		},
		Risk: RiskConfig{
			HighWellbeing:    v.GetFloat64("RISK_HIGH_WELLBEING"),
			MediumWellbeing:  v.GetFloat64("RISK_MEDIUM_WELLBEING"),
			HighEngagement:   v.GetFloat64("RISK_HIGH_ENGAGEMENT"),
			MediumEngagement: v.GetFloat64("RISK_MEDIUM_ENGAGEMENT"),
		},
		Trend: TrendConfig{
			WeeklyPoints:  v.GetInt("TREND_WEEKLY_POINTS"),
			MonthlyPoints: v.GetInt("TREND_MONTHLY_POINTS"),
		},
		Prefetch: PrefetchConfig{
			Enabled:    v.GetBool("ENABLE_PREFETCH"),
			Workers:    v.GetInt("PREFETCH_WORKERS"),
			BufferSize: v.GetInt("PREFETCH_BUFFER"),
			Retries:    v.GetInt("PREFETCH_RETRIES"),
			RetryDelay: r.duration("PREFETCH_RETRY_DELAY"),
			WarmOnBoot: v.GetBool("PREFETCH_WARM_ON_BOOT"),
		},
		Exports: ExportsConfig{
			Enabled:         v.GetBool("ENABLE_EXPORTS"),
			StorageDir:      v.GetString("EXPORTS_STORAGE_DIR"),
			SignedURLSecret: v.GetString("EXPORTS_SIGNED_URL_SECRET"),
			SignedURLTTL:    r.duration("EXPORTS_SIGNED_URL_TTL"),
			CleanupInterval: r.duration("EXPORTS_CLEANUP_INTERVAL"),
		},
	}
}

// Validate rejects settings the engine cannot run with.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(c.Port > 0 && c.Port < 65536, "PORT %d out of range", c.Port)
	check(strings.HasPrefix(c.APIPrefix, "/"), "API_PREFIX must start with /")

	r := c.Risk
	check(r.HighWellbeing < r.MediumWellbeing, "RISK_HIGH_WELLBEING (%v) must be below RISK_MEDIUM_WELLBEING (%v)", r.HighWellbeing, r.MediumWellbeing)
	check(r.HighEngagement < r.MediumEngagement, "RISK_HIGH_ENGAGEMENT (%v) must be below RISK_MEDIUM_ENGAGEMENT (%v)", r.HighEngagement, r.MediumEngagement)
	for name, v := range map[string]float64{
		"RISK_HIGH_WELLBEING": r.HighWellbeing, "RISK_MEDIUM_WELLBEING": r.MediumWellbeing,
		"RISK_HIGH_ENGAGEMENT": r.HighEngagement, "RISK_MEDIUM_ENGAGEMENT": r.MediumEngagement,
	} {
		check(v >= 0 && v <= 100, "%s (%v) must be within 0..100", name, v)
	}

	a := c.Analytics
	check(a.InactiveDays > 0, "ANALYTICS_INACTIVE_DAYS must be positive")
	check(a.HistoryDays >= 0, "ANALYTICS_HISTORY_DAYS must not be negative")
	check(a.DefaultPageSize > 0, "ANALYTICS_PAGE_SIZE must be positive")
	check(a.WindowGranularity >= 0, "ANALYTICS_WINDOW_GRANULARITY must not be negative")
	check(c.Trend.WeeklyPoints > 0 && c.Trend.MonthlyPoints > 0, "trend point counts must be positive")
	if a.Timezone != "" && !strings.EqualFold(a.Timezone, "local") {
		if _, err := time.LoadLocation(a.Timezone); err != nil {
			errs = append(errs, fmt.Errorf("ANALYTICS_TIMEZONE: %w", err))
		}
	}

	if c.Prefetch.Enabled {
		check(c.Prefetch.Workers > 0, "PREFETCH_WORKERS must be positive when prefetch is enabled")
		check(c.Prefetch.Retries >= 0, "PREFETCH_RETRIES must not be negative")
	}

	if c.Env == EnvProduction {
		check(c.JWT.Secret != devJWTSecret && c.JWT.Secret != "", "JWT_SECRET must be set in production")
		check(!c.Exports.Enabled || c.Exports.SignedURLSecret != devExportSecret, "EXPORTS_SIGNED_URL_SECRET must be set in production")
	}
	return errors.Join(errs...)
}

// Location resolves the analytics timezone. "Local", empty or unknown names
// use the process zone.
func (c AnalyticsConfig) Location() *time.Location {
	if c.Timezone == "" || strings.EqualFold(c.Timezone, "local") {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

func origins(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
