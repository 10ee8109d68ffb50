package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	"github.com/joho/godotenv"
)

// Config holds all dashboard settings, populated from environment variables
// (and an optional .env file in the working directory).
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Analysis backend.
	BackendURL     string
	LookupPath     string
	ReportPath     string
	LookupEncoding string // "form" or "json"
	BackendTimeout time.Duration

	// Report output and branding.
	OutputDir         string
	MaxLogoBytes      int64
	TechnicianProfile string

	// Analysis event publishing.
	KafkaEnabled bool
	KafkaBrokers []string
	KafkaTopic   string
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	// A missing .env file is normal outside local development.
	_ = godotenv.Load()

	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	backendTimeout, err := time.ParseDuration(sharedcfg.EnvOrDefault("BACKEND_TIMEOUT", "30s"))
	if err != nil || backendTimeout <= 0 {
		return nil, errors.New("invalid BACKEND_TIMEOUT")
	}

	maxLogoBytes, err := parseMaxLogoBytes()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		BackendURL:     strings.TrimRight(sharedcfg.EnvOrDefault("BACKEND_URL", "http://localhost:8000"), "/"),
		LookupPath:     sharedcfg.EnvOrDefault("LOOKUP_PATH", "/api/analizar-referencia"),
		ReportPath:     sharedcfg.EnvOrDefault("REPORT_PATH", "/api/generar-pdf"),
		LookupEncoding: strings.ToLower(sharedcfg.EnvOrDefault("LOOKUP_ENCODING", "form")),
		BackendTimeout: backendTimeout,

		OutputDir:         sharedcfg.EnvOrDefault("OUTPUT_DIR", "informes"),
		MaxLogoBytes:      maxLogoBytes,
		TechnicianProfile: os.Getenv("TECHNICIAN_PROFILE"),

		KafkaEnabled: os.Getenv("KAFKA_ENABLED") == "true",
		KafkaBrokers: sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaTopic:   sharedcfg.EnvOrDefault("KAFKA_TOPIC", "parcel-analysis-events"),
	}

	if u, err := url.Parse(cfg.BackendURL); err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid BACKEND_URL %q", cfg.BackendURL)
	}
	if !strings.HasPrefix(cfg.LookupPath, "/") {
		return nil, errors.New("LOOKUP_PATH must start with /")
	}
	if !strings.HasPrefix(cfg.ReportPath, "/") {
		return nil, errors.New("REPORT_PATH must start with /")
	}
	if cfg.LookupEncoding != "form" && cfg.LookupEncoding != "json" {
		return nil, fmt.Errorf("invalid LOOKUP_ENCODING %q: want form or json", cfg.LookupEncoding)
	}
	if cfg.OutputDir == "" {
		return nil, errors.New("OUTPUT_DIR is required")
	}
	if cfg.KafkaEnabled {
		if len(cfg.KafkaBrokers) == 0 {
			return nil, errors.New("KAFKA_ENABLED is true but KAFKA_BROKERS is empty")
		}
		if cfg.KafkaTopic == "" {
			return nil, errors.New("KAFKA_ENABLED is true but KAFKA_TOPIC is empty")
		}
	}

	return cfg, nil
}

func parseMaxLogoBytes() (int64, error) {
	s := os.Getenv("MAX_LOGO_BYTES")
	if s == "" {
		return 2 << 20, nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n <= 0 {
		return 0, errors.New("invalid MAX_LOGO_BYTES")
	}
	return n, nil
}
