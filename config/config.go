package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	// Local status API
	Port            string
	Environment     string
	StatusAPISecret string

	// Backend endpoints
	APIURL string
	WSURL  string

	// Local persisted state (sqlite path or postgres:// URL)
	DatabaseURL string

	// Presence mirror; empty RedisURL disables it
	RedisURL    string
	RedisDB     int
	PresenceTTL time.Duration

	// Collaboration session timing
	ReconnectDelay    time.Duration
	HeartbeatInterval time.Duration
	HandshakeTimeout  time.Duration
	HTTPTimeout       time.Duration

	LogLevel string

	// Startup selection
	GoogleToken string
	ProjectID   string
}

// fileConfig is the optional YAML overlay. Keys use the same names as
// the environment variables.
type fileConfig map[string]string

// LoadConfig reads .env, then the YAML file named by CONFIG_FILE, then
// the environment. Environment values win over the file.
func LoadConfig() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	return Load(os.Getenv("CONFIG_FILE"))
}

// Load builds a Config from an optional YAML file and the environment.
func Load(path string) (*Config, error) {
	file := fileConfig{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	l := loader{file: file}
	cfg := &Config{
		Port:            l.str("PORT", "8090"),
		Environment:     l.str("ENVIRONMENT", "development"),
		StatusAPISecret: l.str("STATUS_API_SECRET", ""),

		APIURL: strings.TrimRight(l.str("API_URL", "http://localhost:8000"), "/"),
		WSURL:  strings.TrimRight(l.str("WS_URL", ""), "/"),

		DatabaseURL: l.str("DATABASE_URL", "wbs-collab.db"),

		RedisURL:    l.str("REDIS_URL", ""),
		RedisDB:     l.integer("REDIS_DB", 0),
		PresenceTTL: time.Duration(l.integer("PRESENCE_TTL_SECONDS", 120)) * time.Second,

		ReconnectDelay:    l.duration("RECONNECT_DELAY", 5*time.Second),
		HeartbeatInterval: l.duration("HEARTBEAT_INTERVAL", 30*time.Second),
		HandshakeTimeout:  l.duration("HANDSHAKE_TIMEOUT", 10*time.Second),
		HTTPTimeout:       l.duration("HTTP_TIMEOUT", 15*time.Second),

		LogLevel: l.str("LOG_LEVEL", "info"),

		GoogleToken: l.str("GOOGLE_TOKEN", ""),
		ProjectID:   l.str("PROJECT_ID", ""),
	}
	if len(l.errs) > 0 {
		return nil, fmt.Errorf("invalid configuration: %s", strings.Join(l.errs, "; "))
	}

	if cfg.WSURL == "" {
		cfg.WSURL = DeriveWSURL(cfg.APIURL)
	}
	return cfg, nil
}

// DeriveWSURL maps an http(s) API base URL onto its ws(s) counterpart.
func DeriveWSURL(apiURL string) string {
	switch {
	case strings.HasPrefix(apiURL, "https://"):
		return "wss://" + strings.TrimPrefix(apiURL, "https://")
	case strings.HasPrefix(apiURL, "http://"):
		return "ws://" + strings.TrimPrefix(apiURL, "http://")
	default:
		return apiURL
	}
}

type loader struct {
	file fileConfig
	errs []string
}

func (l *loader) str(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	if value := l.file[key]; value != "" {
		return value
	}
	return defaultValue
}

func (l *loader) integer(key string, defaultValue int) int {
	raw := l.str(key, "")
	if raw == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		l.errs = append(l.errs, fmt.Sprintf("%s: %q is not an integer", key, raw))
		return defaultValue
	}
	return value
}

func (l *loader) duration(key string, defaultValue time.Duration) time.Duration {
	raw := l.str(key, "")
	if raw == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(raw)
	if err != nil || value <= 0 {
		l.errs = append(l.errs, fmt.Sprintf("%s: %q is not a positive duration", key, raw))
		return defaultValue
	}
	return value
}
