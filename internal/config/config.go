// Package config loads service settings from defaults, an optional YAML file
// and the environment.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix namespaces environment overrides, e.g. CLEANBOUNTY_HTTP_ADDR.
const EnvPrefix = "CLEANBOUNTY"

// Classifier backends.
const (
	BackendGemini = "gemini"
	BackendGRPC   = "grpc"
)

// Config is the resolved service configuration.
type Config struct {
	HTTP       HTTPConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	CacheTTL   time.Duration
	JWT        JWTConfig
	Gemini     GeminiConfig
	Classifier ClassifierConfig
	LogLevel   string
}

type HTTPConfig struct {
	Addr            string
	ShutdownTimeout time.Duration
}

type DatabaseConfig struct {
	Enabled bool
	DSN     string
}

type RedisConfig struct {
	Enabled bool
	Addr    string
}

type JWTConfig struct {
	Secret   string
	Audience string
}

type GeminiConfig struct {
	APIKey string
	Model  string
}

type ClassifierConfig struct {
	Backend string
	Addr    string
	Timeout time.Duration
}

// legacyEnv keeps the bare variable names deployments already set.
var legacyEnv = map[string]string{
	"database.dsn":    "DATABASE_DSN",
	"redis.addr":      "REDIS_ADDR",
	"jwt.secret":      "JWT_SECRET",
	"jwt.audience":    "JWT_AUDIENCE",
	"gemini.api_key":  "GEMINI_API_KEY",
	"classifier.addr": "CLASSIFIER_ADDR",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.shutdown_timeout", 15*time.Second)
	v.SetDefault("database.enabled", true)
	v.SetDefault("database.dsn", "host=postgres user=postgres password=postgres dbname=cleanbounty port=5432 sslmode=disable")
	v.SetDefault("redis.enabled", true)
	v.SetDefault("redis.addr", "redis:6379")
	v.SetDefault("cache.ttl", 24*time.Hour)
	v.SetDefault("jwt.secret", "dev-secret")
	v.SetDefault("jwt.audience", "")
	v.SetDefault("gemini.api_key", "")
	v.SetDefault("gemini.model", "gemini-1.5-flash")
	v.SetDefault("classifier.backend", BackendGemini)
	v.SetDefault("classifier.addr", "classifier:50051")
	v.SetDefault("classifier.timeout", 60*time.Second)
	v.SetDefault("log.level", "info")
}

// Load resolves the configuration. path may be empty, in which case
// ./config.yaml is read when present.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range legacyEnv {
		if err := v.BindEnv(key, EnvPrefix+"_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_")), env); err != nil {
			return nil, fmt.Errorf("bind %s: %w", key, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg := &Config{
		HTTP: HTTPConfig{
			Addr:            v.GetString("http.addr"),
			ShutdownTimeout: v.GetDuration("http.shutdown_timeout"),
		},
		Database: DatabaseConfig{
			Enabled: v.GetBool("database.enabled"),
			DSN:     v.GetString("database.dsn"),
		},
		Redis: RedisConfig{
			Enabled: v.GetBool("redis.enabled"),
			Addr:    v.GetString("redis.addr"),
		},
		CacheTTL: v.GetDuration("cache.ttl"),
		JWT: JWTConfig{
			Secret:   v.GetString("jwt.secret"),
			Audience: v.GetString("jwt.audience"),
		},
		Gemini: GeminiConfig{
			APIKey: v.GetString("gemini.api_key"),
			Model:  v.GetString("gemini.model"),
		},
		Classifier: ClassifierConfig{
			Backend: strings.ToLower(strings.TrimSpace(v.GetString("classifier.backend"))),
			Addr:    v.GetString("classifier.addr"),
			Timeout: v.GetDuration("classifier.timeout"),
		},
		LogLevel: v.GetString("log.level"),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects combinations the service cannot start with.
func (c *Config) Validate() error {
	switch c.Classifier.Backend {
	case BackendGemini:
		if c.Gemini.APIKey == "" {
			return errors.New("gemini.api_key is required for the gemini classifier backend")
		}
	case BackendGRPC:
		if c.Classifier.Addr == "" {
			return errors.New("classifier.addr is required for the grpc classifier backend")
		}
	default:
		return fmt.Errorf("unknown classifier.backend %q", c.Classifier.Backend)
	}
	if c.Classifier.Timeout <= 0 {
		return errors.New("classifier.timeout must be positive")
	}
	if c.Database.Enabled && c.Database.DSN == "" {
		return errors.New("database.dsn is required when the database is enabled")
	}
	if c.Redis.Enabled && c.Redis.Addr == "" {
		return errors.New("redis.addr is required when redis is enabled")
	}
	return nil
}
