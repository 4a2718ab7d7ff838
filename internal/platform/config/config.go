// Package config reads process configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

var (
	ErrMissingSigningSecret = errors.New("SIGNING_SECRET is required")
	ErrMissingDatabaseURL   = errors.New("DATABASE_URL is required")
	ErrMissingSessionSecret = errors.New("ADMIN_SESSION_SECRET is required when admin is enabled")
	ErrSharedSessionSecret  = errors.New("ADMIN_SESSION_SECRET must differ from SIGNING_SECRET")
)

// Config is the full process configuration.
type Config struct {
	Server       Server
	Database     Database
	Redis        RedisConfig
	NationStates NationStates
	Ingest       Ingest
	Admin        Admin
	Kafka        Kafka
	RateLimit    RateLimit
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string
	LogLevel        string
	ShutdownTimeout time.Duration
}

type Database struct {
	URL          string
	MaxOpenConns int
	MaxIdleConns int
}

// RedisConfig is optional; without a URL ingestion falls back to an
// in-process lock.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// NationStates configures the outbound game API client.
type NationStates struct {
	BaseURL       string
	UserAgent     string
	SigningSecret string
	Interval      time.Duration
	Timeout       time.Duration
	// MissPolicy is "not_found" or "live".
	MissPolicy string
}

type Ingest struct {
	DumpURL    string
	TempDir    string
	Interval   time.Duration
	RunOnStart bool
	BatchSize  int
	QueueDepth int
	Timeout    time.Duration
	LockTTL    time.Duration
}

type Admin struct {
	Username      string
	Password      string
	PasswordHash  string
	SessionSecret string
	SessionTTL    time.Duration
	CookieName    string
	CookieSecure  bool
}

// RateLimit bounds per-client request rates on the sign and login endpoints.
type RateLimit struct {
	Disabled   bool
	SignLimit  int
	LoginLimit int
	Window     time.Duration
}

// Kafka is optional; audit events only go to the log without brokers.
type Kafka struct {
	Brokers []string
	Topic   string
}

// FromEnv builds a Config from environment variables so main stays lean.
// Missing required values are returned as errors for main to report.
func FromEnv() (Config, error) {
	var errs []error
	cfg := Config{
		Server: Server{
			Addr:            getEnv("OPENLETTER_ADDR", ":8080"),
			LogLevel:        getEnv("LOG_LEVEL", "info"),
			ShutdownTimeout: getDuration("SHUTDOWN_TIMEOUT", 10*time.Second, &errs),
		},
		Database: Database{
			URL:          os.Getenv("DATABASE_URL"),
			MaxOpenConns: getInt("DATABASE_MAX_OPEN_CONNS", 10, &errs),
			MaxIdleConns: getInt("DATABASE_MAX_IDLE_CONNS", 5, &errs),
		},
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     getInt("REDIS_POOL_SIZE", 10, &errs),
			MinIdleConns: getInt("REDIS_MIN_IDLE_CONNS", 1, &errs),
			DialTimeout:  getDuration("REDIS_DIAL_TIMEOUT", 5*time.Second, &errs),
			ReadTimeout:  getDuration("REDIS_READ_TIMEOUT", 3*time.Second, &errs),
			WriteTimeout: getDuration("REDIS_WRITE_TIMEOUT", 3*time.Second, &errs),
		},
		NationStates: NationStates{
			BaseURL:       getEnv("NS_API_URL", "https://www.nationstates.net/cgi-bin/api.cgi"),
			UserAgent:     getEnv("NS_USER_AGENT", "openletter (set NS_USER_AGENT to a contact address)"),
			SigningSecret: os.Getenv("SIGNING_SECRET"),
			Interval:      getDuration("NS_API_INTERVAL", 650*time.Millisecond, &errs),
			Timeout:       getDuration("NS_API_TIMEOUT", 10*time.Second, &errs),
			MissPolicy:    getEnv("NATION_MISS_POLICY", "not_found"),
		},
		Ingest: Ingest{
			DumpURL:    getEnv("DUMP_URL", "https://www.nationstates.net/pages/nations.xml.gz"),
			TempDir:    getEnv("DUMP_TEMP_DIR", os.TempDir()),
			Interval:   getDuration("INGEST_INTERVAL", 24*time.Hour, &errs),
			RunOnStart: getBool("INGEST_ON_START", false, &errs),
			BatchSize:  getInt("INGEST_BATCH_SIZE", 500, &errs),
			QueueDepth: getInt("INGEST_QUEUE_DEPTH", 4, &errs),
			Timeout:    getDuration("INGEST_TIMEOUT", 30*time.Minute, &errs),
			LockTTL:    getDuration("INGEST_LOCK_TTL", 45*time.Minute, &errs),
		},
		Admin: Admin{
			Username:      getEnv("ADMIN_USERNAME", "admin"),
			Password:      os.Getenv("ADMIN_PASSWORD"),
			PasswordHash:  os.Getenv("ADMIN_PASSWORD_HASH"),
			SessionSecret: os.Getenv("ADMIN_SESSION_SECRET"),
			SessionTTL:    getDuration("ADMIN_SESSION_TTL", 12*time.Hour, &errs),
			CookieName:    getEnv("ADMIN_COOKIE_NAME", "openletter_admin"),
			CookieSecure:  getBool("ADMIN_COOKIE_SECURE", true, &errs),
		},
		Kafka: Kafka{
			Brokers: splitList(os.Getenv("KAFKA_BROKERS")),
			Topic:   getEnv("KAFKA_AUDIT_TOPIC", "openletter.audit"),
		},
		RateLimit: RateLimit{
			Disabled:   getBool("RATE_LIMIT_DISABLED", false, &errs),
			SignLimit:  getInt("RATE_LIMIT_SIGN", 10, &errs),
			LoginLimit: getInt("RATE_LIMIT_LOGIN", 5, &errs),
			Window:     getDuration("RATE_LIMIT_WINDOW", time.Minute, &errs),
		},
	}

	if cfg.NationStates.SigningSecret == "" {
		errs = append(errs, ErrMissingSigningSecret)
	}
	if cfg.Database.URL == "" {
		errs = append(errs, ErrMissingDatabaseURL)
	}
	// Admin session tokens get their own key; the signing secret is rendered
	// into public verify tokens.
	if cfg.AdminEnabled() {
		switch {
		case cfg.Admin.SessionSecret == "":
			errs = append(errs, ErrMissingSessionSecret)
		case cfg.Admin.SessionSecret == cfg.NationStates.SigningSecret:
			errs = append(errs, ErrSharedSessionSecret)
		}
	}

	return cfg, errors.Join(errs...)
}

// AdminEnabled reports whether admin credentials are configured.
func (c Config) AdminEnabled() bool {
	return c.Admin.Password != "" || c.Admin.PasswordHash != ""
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration, errs *[]error) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		*errs = append(*errs, fmt.Errorf("%s: invalid duration %q", key, v))
		return fallback
	}
	return d
}

func getInt(key string, fallback int, errs *[]error) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		*errs = append(*errs, fmt.Errorf("%s: invalid positive integer %q", key, v))
		return fallback
	}
	return n
}

func getBool(key string, fallback bool, errs *[]error) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: invalid boolean %q", key, v))
		return fallback
	}
	return b
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
