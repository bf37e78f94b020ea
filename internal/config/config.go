package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

type LookupFunc func(string) (string, bool)

type Profile string

const (
	ProfileDev  Profile = "dev"
	ProfileTest Profile = "test"
	ProfileProd Profile = "prod"
)

const (
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
)

// ModelRetryMaxWait caps the backoff between two attempts of one model call.
const ModelRetryMaxWait = 8 * time.Second

// turnSlack covers schema reads, query execution and writing the reply.
const turnSlack = 30 * time.Second

type Config struct {
	Profile       Profile
	Service       ServiceConfig
	HTTP          HTTPConfig
	Database      DatabaseConfig
	AI            AIConfig
	Session       SessionConfig
	Observability ObservabilityConfig
	Auth          AuthConfig
}

type ServiceConfig struct {
	Name string
}

type HTTPConfig struct {
	Address      string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// DatabaseConfig holds the default connection descriptor offered to new
// sessions plus pool settings applied to every handle.
type DatabaseConfig struct {
	Driver           string
	Host             string
	Port             int
	User             string
	Password         string
	Name             string
	SSLMode          string
	MaxOpenConns     int
	MaxIdleConns     int
	ConnMaxIdleTime  time.Duration
	ConnMaxLifetime  time.Duration
	SchemaSampleRows int
}

type AIConfig struct {
	Provider    string
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
	Retries     int
}

type SessionConfig struct {
	TTL             time.Duration
	CleanupInterval time.Duration
	Greeting        string
}

type ObservabilityConfig struct {
	LogLevel slog.Level
	LogJSON  bool
}

type AuthConfig struct {
	Required   bool
	StaticKeys string
}

func LoadFromEnv(serviceName string) (Config, error) {
	return Load(serviceName, os.LookupEnv)
}

func Load(serviceName string, lookup LookupFunc) (Config, error) {
	if lookup == nil {
		return Config{}, fmt.Errorf("lookup function is required")
	}

	profile := ProfileDev
	if raw, ok := lookup("ASKDB_PROFILE"); ok {
		profile = Profile(strings.ToLower(strings.TrimSpace(raw)))
	}
	if !isValidProfile(profile) {
		return Config{}, fmt.Errorf("invalid ASKDB_PROFILE: %q", profile)
	}

	cfg := defaultsForProfile(profile)
	if serviceName != "" {
		cfg.Service.Name = serviceName
	}

	appliers := []func() error{
		func() error { return applyString(lookup, "ASKDB_SERVICE_NAME", &cfg.Service.Name) },
		func() error { return applyString(lookup, "ASKDB_HTTP_ADDR", &cfg.HTTP.Address) },
		func() error { return applyDuration(lookup, "ASKDB_HTTP_READ_TIMEOUT", &cfg.HTTP.ReadTimeout) },
		func() error { return applyDuration(lookup, "ASKDB_HTTP_WRITE_TIMEOUT", &cfg.HTTP.WriteTimeout) },
		func() error { return applyDuration(lookup, "ASKDB_HTTP_IDLE_TIMEOUT", &cfg.HTTP.IdleTimeout) },
		func() error { return applyString(lookup, "ASKDB_DB_DRIVER", &cfg.Database.Driver) },
		func() error { return applyString(lookup, "ASKDB_DB_HOST", &cfg.Database.Host) },
		func() error { return applyInt(lookup, "ASKDB_DB_PORT", &cfg.Database.Port) },
		func() error { return applyString(lookup, "ASKDB_DB_USER", &cfg.Database.User) },
		func() error { return applyString(lookup, "ASKDB_DB_PASSWORD", &cfg.Database.Password) },
		func() error { return applyString(lookup, "ASKDB_DB_NAME", &cfg.Database.Name) },
		func() error { return applyString(lookup, "ASKDB_DB_SSLMODE", &cfg.Database.SSLMode) },
		func() error { return applyInt(lookup, "ASKDB_DB_MAX_OPEN_CONNS", &cfg.Database.MaxOpenConns) },
		func() error { return applyInt(lookup, "ASKDB_DB_MAX_IDLE_CONNS", &cfg.Database.MaxIdleConns) },
		func() error {
			return applyDuration(lookup, "ASKDB_DB_CONN_MAX_IDLE_TIME", &cfg.Database.ConnMaxIdleTime)
		},
		func() error {
			return applyDuration(lookup, "ASKDB_DB_CONN_MAX_LIFETIME", &cfg.Database.ConnMaxLifetime)
		},
		func() error { return applyInt(lookup, "ASKDB_DB_SCHEMA_SAMPLE_ROWS", &cfg.Database.SchemaSampleRows) },
		func() error { return applyString(lookup, "ASKDB_AI_PROVIDER", &cfg.AI.Provider) },
		func() error { return applyString(lookup, "ASKDB_AI_BASE_URL", &cfg.AI.BaseURL) },
		func() error { return applyString(lookup, "ASKDB_AI_API_KEY", &cfg.AI.APIKey) },
		func() error { return applyString(lookup, "ASKDB_AI_MODEL", &cfg.AI.Model) },
		func() error { return applyFloat(lookup, "ASKDB_AI_TEMPERATURE", &cfg.AI.Temperature) },
		func() error { return applyInt(lookup, "ASKDB_AI_MAX_TOKENS", &cfg.AI.MaxTokens) },
		func() error { return applyDuration(lookup, "ASKDB_AI_TIMEOUT", &cfg.AI.Timeout) },
		func() error { return applyInt(lookup, "ASKDB_AI_RETRIES", &cfg.AI.Retries) },
		func() error { return applyDuration(lookup, "ASKDB_SESSION_TTL", &cfg.Session.TTL) },
		func() error {
			return applyDuration(lookup, "ASKDB_SESSION_CLEANUP_INTERVAL", &cfg.Session.CleanupInterval)
		},
		func() error { return applyString(lookup, "ASKDB_SESSION_GREETING", &cfg.Session.Greeting) },
		func() error { return applyBool(lookup, "ASKDB_LOG_JSON", &cfg.Observability.LogJSON) },
		func() error { return applyLogLevel(lookup, "ASKDB_LOG_LEVEL", &cfg.Observability.LogLevel) },
		func() error { return applyBool(lookup, "ASKDB_AUTH_REQUIRED", &cfg.Auth.Required) },
		func() error { return applyString(lookup, "ASKDB_AUTH_STATIC_KEYS", &cfg.Auth.StaticKeys) },
	}
	for _, apply := range appliers {
		if err := apply(); err != nil {
			return Config{}, err
		}
	}
	if _, set := lookup("ASKDB_HTTP_WRITE_TIMEOUT"); !set {
		if floor := cfg.AI.TurnBudget() + turnSlack; cfg.HTTP.WriteTimeout < floor {
			cfg.HTTP.WriteTimeout = floor
		}
	}

	cfg.AI.Provider = strings.ToLower(cfg.AI.Provider)
	cfg.Database.Driver = strings.ToLower(cfg.Database.Driver)

	if cfg.Service.Name == "" {
		return Config{}, fmt.Errorf("service name is required")
	}
	if cfg.HTTP.Address == "" {
		return Config{}, fmt.Errorf("http address is required")
	}
	if cfg.AI.Retries < 0 {
		return Config{}, fmt.Errorf("invalid ASKDB_AI_RETRIES: must not be negative")
	}
	if cfg.AI.Timeout <= 0 {
		return Config{}, fmt.Errorf("invalid ASKDB_AI_TIMEOUT: must be positive")
	}
	switch cfg.AI.Provider {
	case ProviderOpenAI, ProviderOllama:
	default:
		return Config{}, fmt.Errorf("invalid ASKDB_AI_PROVIDER: %q", cfg.AI.Provider)
	}
	return cfg, nil
}

// TurnBudget is the longest one question can spend on the model: both calls
// time out on every attempt and wait the full backoff in between.
func (c AIConfig) TurnBudget() time.Duration {
	perCall := time.Duration(c.Retries+1)*c.Timeout + time.Duration(c.Retries)*ModelRetryMaxWait
	return 2 * perCall
}

// TurnTimeout bounds one question. It stays inside the HTTP write deadline
// so a reply that ran out of time is still delivered.
func (c Config) TurnTimeout() time.Duration {
	budget := c.AI.TurnBudget()
	if c.HTTP.WriteTimeout <= 0 {
		return budget
	}
	reserve := min(turnSlack, c.HTTP.WriteTimeout/10)
	if limit := c.HTTP.WriteTimeout - reserve; limit < budget {
		return limit
	}
	return budget
}

// RequireModelCredential reports a missing model-provider credential. Only
// binaries that actually talk to a model call it, so tooling that merely
// reads config does not need a key.
func (c Config) RequireModelCredential() error {
	if c.AI.Provider == ProviderOpenAI && c.AI.APIKey == "" {
		return fmt.Errorf("ASKDB_AI_API_KEY is required for provider %q", c.AI.Provider)
	}
	return nil
}

func defaultsForProfile(profile Profile) Config {
	cfg := Config{
		Profile: profile,
		Service: ServiceConfig{Name: "askdb-api"},
		// Load raises WriteTimeout to cover AIConfig.TurnBudget unless it is set.
		HTTP: HTTPConfig{
			Address:      ":8080",
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 90 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Database: DatabaseConfig{
			Driver:           "postgres",
			Host:             "localhost",
			Port:             5432,
			User:             "postgres",
			Password:         "postgres",
			Name:             "postgres",
			SSLMode:          "disable",
			MaxOpenConns:     4,
			MaxIdleConns:     2,
			ConnMaxIdleTime:  5 * time.Minute,
			ConnMaxLifetime:  30 * time.Minute,
			SchemaSampleRows: 3,
		},
		AI: AIConfig{
			Provider:    ProviderOpenAI,
			BaseURL:     "https://api.openai.com",
			Model:       "gpt-4o-mini",
			Temperature: 0,
			MaxTokens:   512,
			Timeout:     60 * time.Second,
			Retries:     2,
		},
		Session: SessionConfig{
			TTL:             time.Hour,
			CleanupInterval: 10 * time.Minute,
			Greeting:        "Hello, I am SQL Assistant",
		},
		Observability: ObservabilityConfig{
			LogLevel: slog.LevelDebug,
			LogJSON:  true,
		},
		Auth: AuthConfig{
			Required:   false,
			StaticKeys: "",
		},
	}

	switch profile {
	case ProfileTest:
		cfg.HTTP.Address = ":18080"
		cfg.Observability.LogLevel = slog.LevelWarn
		cfg.Auth.Required = false
	case ProfileProd:
		cfg.Observability.LogLevel = slog.LevelInfo
		cfg.Auth.Required = true
		cfg.Database.SSLMode = "require"
	}

	return cfg
}

func isValidProfile(profile Profile) bool {
	switch profile {
	case ProfileDev, ProfileTest, ProfileProd:
		return true
	default:
		return false
	}
}

func applyString(lookup LookupFunc, key string, dst *string) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	*dst = strings.TrimSpace(raw)
	return nil
}

func applyDuration(lookup LookupFunc, key string, dst *time.Duration) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyBool(lookup LookupFunc, key string, dst *bool) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyInt(lookup LookupFunc, key string, dst *int) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyFloat(lookup LookupFunc, key string, dst *float64) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyLogLevel(lookup LookupFunc, key string, dst *slog.Level) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	level := strings.ToLower(strings.TrimSpace(raw))
	switch level {
	case "debug":
		*dst = slog.LevelDebug
	case "info":
		*dst = slog.LevelInfo
	case "warn", "warning":
		*dst = slog.LevelWarn
	case "error":
		*dst = slog.LevelError
	default:
		return fmt.Errorf("invalid %s: %q", key, raw)
	}
	return nil
}
