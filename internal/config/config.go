package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// PathEnvVar names the optional YAML file layered between defaults and the environment.
const PathEnvVar = "CONFIG_PATH"

// MinSecretLength is the shortest accepted AUTH_SECRET.
const MinSecretLength = 16

// Config captures all runtime configuration. Keys are the lower-cased environment names.
type Config struct {
	Port                string `koanf:"port"`
	AuthSecret          string `koanf:"auth_secret"`
	TokenTTLHours       int    `koanf:"token_ttl_hours"`
	DBURL               string `koanf:"db_url"`
	CatalogPath         string `koanf:"catalog_path"`
	CatalogURL          string `koanf:"catalog_url"`
	CatalogTimeoutSecs  int    `koanf:"catalog_timeout_secs"`
	ReadTimeoutSecs     int    `koanf:"server_read_timeout"`
	WriteTimeoutSecs    int    `koanf:"server_write_timeout"`
	IdleTimeoutSecs     int    `koanf:"server_idle_timeout"`
	CORSOrigins         string `koanf:"cors_origins"`
	RateLimitRequests   int    `koanf:"rate_limit_reqs"`
	RateLimitWindowSecs int    `koanf:"rate_limit_window_secs"`
	LogLevel            string `koanf:"log_level"`
	LogFormat           string `koanf:"log_format"`
	DBMaxConns          int    `koanf:"db_max_conns"`
	DBMinConns          int    `koanf:"db_min_conns"`
	DBMaxIdleSecs       int    `koanf:"db_max_conn_idle_secs"`
	DBMaxLifeSecs       int    `koanf:"db_max_conn_lifetime_secs"`
	DBConnTimeoutSecs   int    `koanf:"db_conn_timeout_secs"`
	DBStatementCache    int    `koanf:"db_statement_cache_capacity"`
}

func defaults() Config {
	return Config{
		Port:                "8080",
		TokenTTLHours:       24 * 365,
		CatalogTimeoutSecs:  5,
		ReadTimeoutSecs:     15,
		WriteTimeoutSecs:    15,
		IdleTimeoutSecs:     60,
		CORSOrigins:         "*",
		RateLimitRequests:   30,
		RateLimitWindowSecs: 60,
		LogLevel:            "info",
		LogFormat:           "json",
		DBMaxConns:          20,
		DBMinConns:          2,
		DBMaxIdleSecs:       300,
		DBMaxLifeSecs:       3600,
		DBConnTimeoutSecs:   10,
		DBStatementCache:    256,
	}
}

// Load layers defaults, the optional CONFIG_PATH file and the environment, then validates.
func Load() (Config, error) {
	cfg, err := Read()
	if err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Read layers the sources like Load but skips validation, for tools that only need a
// subset of the keys.
func Read() (Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaults(), "koanf"), nil); err != nil {
		return Config{}, fmt.Errorf("load defaults: %w", err)
	}
	if path := os.Getenv(PathEnvVar); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, fmt.Errorf("load config file %s: %w", path, err)
		}
	}
	envProvider := env.ProviderWithValue("", ".", func(key, value string) (string, interface{}) {
		if value == "" {
			return "", nil
		}
		return strings.ToLower(key), value
	})
	if err := k.Load(envProvider, nil); err != nil {
		return Config{}, fmt.Errorf("load environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}

// Validate reports the first invalid key by its environment name.
func (c Config) Validate() error {
	switch {
	case c.AuthSecret == "":
		return fmt.Errorf("AUTH_SECRET is required")
	case len(c.AuthSecret) < MinSecretLength:
		return fmt.Errorf("AUTH_SECRET must be at least %d characters", MinSecretLength)
	case c.TokenTTLHours <= 0:
		return fmt.Errorf("TOKEN_TTL_HOURS must be positive")
	case c.CatalogTimeoutSecs <= 0:
		return fmt.Errorf("CATALOG_TIMEOUT_SECS must be positive")
	case c.RateLimitRequests <= 0:
		return fmt.Errorf("RATE_LIMIT_REQS must be positive")
	case c.RateLimitWindowSecs <= 0:
		return fmt.Errorf("RATE_LIMIT_WINDOW_SECS must be positive")
	case c.LogFormat != "json" && c.LogFormat != "console":
		return fmt.Errorf("LOG_FORMAT must be json or console")
	case c.DBMaxConns <= 0:
		return fmt.Errorf("DB_MAX_CONNS must be positive")
	case c.DBMinConns < 0:
		return fmt.Errorf("DB_MIN_CONNS must be non-negative")
	case c.DBMinConns > c.DBMaxConns:
		return fmt.Errorf("DB_MIN_CONNS cannot exceed DB_MAX_CONNS")
	case c.DBStatementCache < 0:
		return fmt.Errorf("DB_STATEMENT_CACHE_CAPACITY must be non-negative")
	}
	return nil
}

// AllowedOrigins splits CORS_ORIGINS on commas.
func (c Config) AllowedOrigins() []string {
	var out []string
	for _, o := range strings.Split(c.CORSOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

// TokenTTL is the lifetime of issued anonymous identities.
func (c Config) TokenTTL() time.Duration {
	return time.Duration(c.TokenTTLHours) * time.Hour
}

func (c Config) CatalogTimeout() time.Duration {
	return time.Duration(c.CatalogTimeoutSecs) * time.Second
}

func (c Config) RateLimitWindow() time.Duration {
	return time.Duration(c.RateLimitWindowSecs) * time.Second
}
