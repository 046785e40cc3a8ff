package app

import (
	"strings"
	"time"
)

// Config contains all runtime configuration loaded from environment variables.
type Config struct {
	HTTPAddr string

	LogLevel  string
	LogFormat string
	// LogFile, when set, receives a copy of every log line through a rotating writer.
	LogFile string

	DataFile  string
	PublicDir string

	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int

	CORSAllowedOrigins   []string
	CORSAllowCredentials bool
	CORSMaxAgeSeconds    int

	MetricsEnabled bool
}

// Overrides carries command line values that take precedence over the environment.
type Overrides struct {
	HTTPAddr string
	DataFile string
	LogLevel string
}

// LoadConfig loads Config from environment variables with defaults.
func LoadConfig() Config {
	return Config{
		HTTPAddr: EnvString("EXCUSES_HTTP_ADDR", ":"+EnvString("PORT", "3000")),

		LogLevel:  EnvString("EXCUSES_LOG_LEVEL", "info"),
		LogFormat: strings.ToLower(EnvString("EXCUSES_LOG_FORMAT", "json")),
		LogFile:   EnvString("EXCUSES_LOG_FILE", ""),

		DataFile:  EnvString("EXCUSES_DATA_FILE", "excuses.json"),
		PublicDir: EnvString("EXCUSES_PUBLIC_DIR", ""),

		ReadHeaderTimeout: EnvDuration("EXCUSES_HTTP_READ_HEADER_TIMEOUT", 5*time.Second),
		ReadTimeout:       EnvDuration("EXCUSES_HTTP_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:      EnvDuration("EXCUSES_HTTP_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:       EnvDuration("EXCUSES_HTTP_IDLE_TIMEOUT", 60*time.Second),

		MaxHeaderBytes: EnvInt("EXCUSES_HTTP_MAX_HEADER_BYTES", 1<<20),

		CORSAllowedOrigins:   EnvCSV("EXCUSES_CORS_ORIGINS", "*"),
		CORSAllowCredentials: EnvBool("EXCUSES_CORS_ALLOW_CREDENTIALS", false),
		CORSMaxAgeSeconds:    EnvInt("EXCUSES_CORS_MAX_AGE_SECONDS", 300),

		MetricsEnabled: EnvBool("EXCUSES_METRICS_ENABLED", true),
	}
}

// Apply returns cfg with every non-empty override applied.
func (o Overrides) Apply(cfg Config) Config {
	if v := strings.TrimSpace(o.HTTPAddr); v != "" {
		cfg.HTTPAddr = v
	}
	if v := strings.TrimSpace(o.DataFile); v != "" {
		cfg.DataFile = v
	}
	if v := strings.TrimSpace(o.LogLevel); v != "" {
		cfg.LogLevel = v
	}
	return cfg
}
