// Package config handles loading and validating the application
// configuration from a JSON or YAML file.
//
// The file selects the database backend (PostgreSQL or SQLite), the HTTP
// listen address, the secret used to sign session tokens and the optional
// membership lookup settings. A handful of secrets may be overridden from
// the environment so they need not live in the file.
package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Supported database drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Environment overrides applied after the file is parsed.
const (
	EnvDBPass      = "MULTIPLIER_DB_PASS"
	EnvNonceSecret = "MULTIPLIER_NONCE_SECRET"
)

// Config holds all application configuration. The file is read once at
// startup; changes require a restart.
type Config struct {
	// Driver selects the database backend: "postgres" (default) or "sqlite".
	Driver string `json:"driver" yaml:"driver"`

	// DBConn is the PostgreSQL host:port (e.g., "localhost:5432").
	DBConn string `json:"dbConn" yaml:"dbConn"`

	// DBName is the PostgreSQL database name.
	DBName string `json:"dbName" yaml:"dbName"`

	// DBUser is the PostgreSQL username.
	DBUser string `json:"dbUser" yaml:"dbUser"`

	// DBPass is the PostgreSQL password.
	DBPass string `json:"dbPass" yaml:"dbPass"`

	// SQLitePath is the database file used when Driver is "sqlite".
	SQLitePath string `json:"sqlitePath" yaml:"sqlitePath"`

	// AutoMigrate bootstraps the schema when the server starts.
	AutoMigrate bool `json:"autoMigrate" yaml:"autoMigrate"`

	// ListenAddr is the HTTP listen address (default ":8080").
	ListenAddr string `json:"listenAddr" yaml:"listenAddr"`

	// RestURL is the public base URL of the API handed to the front end
	// together with a session token (e.g., "https://example.com/").
	RestURL string `json:"restUrl" yaml:"restUrl"`

	// NonceSecret is the HMAC secret that signs session tokens.
	NonceSecret string `json:"nonceSecret" yaml:"nonceSecret"`

	// NonceTTL is how long an issued session token stays valid (default 24h).
	NonceTTL Duration `json:"nonceTTL" yaml:"nonceTTL"`

	// AllowedOrigins lists the origins allowed by CORS. Empty disables
	// CORS, so only same-origin pages can call the API.
	AllowedOrigins []string `json:"allowedOrigins" yaml:"allowedOrigins"`

	// OwnedDeletesOnly restricts delete calls to rows owned by the caller.
	// When false any logged-in caller may delete any row by id.
	OwnedDeletesOnly bool `json:"ownedDeletesOnly" yaml:"ownedDeletesOnly"`

	// LogMode is "production" for JSON logs, anything else for console logs.
	LogMode string `json:"logMode" yaml:"logMode"`

	// Patreon configures the optional richer membership lookup.
	Patreon PatreonConfig `json:"patreon" yaml:"patreon"`
}

// PatreonConfig configures the membership lookup against the Patreon API.
type PatreonConfig struct {
	// Enabled turns the lookup on. When off, only stored attributes are used.
	Enabled bool `json:"enabled" yaml:"enabled"`

	// APIBase is the API root (default "https://www.patreon.com/api/oauth2/v2").
	APIBase string `json:"apiBase" yaml:"apiBase"`

	// Timeout bounds a single lookup (default 5s).
	Timeout Duration `json:"timeout" yaml:"timeout"`

	// RedisAddr enables caching of lookup results when set.
	RedisAddr string `json:"redisAddr" yaml:"redisAddr"`

	// CacheTTL is how long a cached document is reused (default 10m).
	CacheTTL Duration `json:"cacheTTL" yaml:"cacheTTL"`
}

// Duration is a time.Duration that decodes from strings like "24h".
type Duration time.Duration

// UnmarshalJSON accepts a Go duration string or a number of seconds.
func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		return d.parse(s)
	}
	var secs float64
	if err := json.Unmarshal(b, &secs); err != nil {
		return fmt.Errorf("config: invalid duration %s", b)
	}
	*d = Duration(secs * float64(time.Second))
	return nil
}

// UnmarshalYAML accepts a Go duration string.
func (d *Duration) UnmarshalYAML(n *yaml.Node) error {
	return d.parse(n.Value)
}

func (d *Duration) parse(s string) error {
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("config: invalid duration %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Load reads and parses configuration from the given file path. Files
// ending in .yaml or .yml are decoded as YAML, everything else as JSON.
// It returns an error if the file cannot be read, parsed, or is missing
// required fields.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &cfg)
	default:
		err = json.Unmarshal(data, &cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	if v := os.Getenv(EnvDBPass); v != "" {
		cfg.DBPass = v
	}
	if v := os.Getenv(EnvNonceSecret); v != "" {
		cfg.NonceSecret = v
	}

	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Driver == "" {
		c.Driver = DriverPostgres
	}
	if c.ListenAddr == "" {
		c.ListenAddr = ":8080"
	}
	if c.NonceTTL == 0 {
		c.NonceTTL = Duration(24 * time.Hour)
	}
	if c.Patreon.APIBase == "" {
		c.Patreon.APIBase = "https://www.patreon.com/api/oauth2/v2"
	}
	if c.Patreon.Timeout == 0 {
		c.Patreon.Timeout = Duration(5 * time.Second)
	}
	if c.Patreon.CacheTTL == 0 {
		c.Patreon.CacheTTL = Duration(10 * time.Minute)
	}
}

// validate checks that all required fields are present.
func (c *Config) validate() error {
	switch c.Driver {
	case DriverPostgres:
		switch {
		case c.DBConn == "":
			return fmt.Errorf("config: dbConn is required")
		case c.DBName == "":
			return fmt.Errorf("config: dbName is required")
		case c.DBUser == "":
			return fmt.Errorf("config: dbUser is required")
		}
	case DriverSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("config: sqlitePath is required")
		}
	default:
		return fmt.Errorf("config: unknown driver %q", c.Driver)
	}
	if c.NonceSecret == "" {
		return fmt.Errorf("config: nonceSecret is required")
	}
	return nil
}

// ConnString builds a PostgreSQL connection URI from the config fields.
// The password is URL-encoded to handle special characters safely.
func (c *Config) ConnString() string {
	return fmt.Sprintf("postgres://%s:%s@%s/%s?sslmode=disable",
		url.QueryEscape(c.DBUser),
		url.QueryEscape(c.DBPass),
		c.DBConn,
		url.QueryEscape(c.DBName),
	)
}

// Describe returns a short, secret-free summary for startup logs.
func (c *Config) Describe() string {
	if c.Driver == DriverSQLite {
		return "sqlite:" + c.SQLitePath
	}
	return fmt.Sprintf("postgres:%s/%s", c.DBConn, c.DBName)
}
