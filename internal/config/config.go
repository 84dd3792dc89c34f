package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"

	"github.com/ovaphlow/pitchfork/service-market-go/internal/session"
	"github.com/ovaphlow/pitchfork/service-market-go/pkg/database"
	"github.com/ovaphlow/pitchfork/service-market-go/pkg/utilities"
)

// DefaultFile is read when no config path is given and it exists.
const DefaultFile = "service.yaml"

type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

type AuthConfig struct {
	BcryptCost      int           `yaml:"bcrypt_cost"`
	MaxFailedLogins int           `yaml:"max_failed_logins"`
	LockDuration    time.Duration `yaml:"lock_duration"`
}

// Config is the service configuration. It is read once at startup.
type Config struct {
	HTTP        HTTPConfig       `yaml:"http"`
	Database    database.Config  `yaml:"database"`
	Log         utilities.Config `yaml:"log"`
	Token       session.Config   `yaml:"token"`
	Auth        AuthConfig       `yaml:"auth"`
	AutoMigrate bool             `yaml:"auto_migrate"`
}

// Load reads the configuration and validates it for serving HTTP.
func Load(path string) (*Config, error) {
	cfg, err := Read(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Read builds the configuration from .env, an optional YAML file and the
// environment, in increasing order of precedence. An empty path falls back
// to CONFIG_FILE and then DefaultFile. Defaults are applied but nothing is
// validated.
func Read(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if path == "" {
		path = os.Getenv("CONFIG_FILE")
	}
	if path == "" {
		if _, err := os.Stat(DefaultFile); err == nil {
			path = DefaultFile
		}
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := cfg.overlayEnv(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) overlayEnv() error {
	c.Database = c.Database.OverlayEnv()
	c.Log = c.Log.OverlayEnv()
	c.Token = c.Token.OverlayEnv()

	if v := os.Getenv("HTTP_ADDR"); v != "" {
		c.HTTP.Addr = v
	}
	if v := os.Getenv("BCRYPT_COST"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid BCRYPT_COST %q: %w", v, err)
		}
		c.Auth.BcryptCost = n
	}
	if v := os.Getenv("LOCKOUT_MAX_ATTEMPTS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid LOCKOUT_MAX_ATTEMPTS %q: %w", v, err)
		}
		c.Auth.MaxFailedLogins = n
	}
	if v := os.Getenv("LOCKOUT_DURATION"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid LOCKOUT_DURATION %q: %w", v, err)
		}
		c.Auth.LockDuration = d
	}
	if v := os.Getenv("AUTO_MIGRATE"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid AUTO_MIGRATE %q: %w", v, err)
		}
		c.AutoMigrate = b
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = "0.0.0.0:8431"
	}
	if c.Database.DSN == "" {
		c.Database.DSN = database.DefaultDSN
	}
	if c.Auth.BcryptCost == 0 {
		c.Auth.BcryptCost = 12
	}
	if c.Auth.MaxFailedLogins == 0 {
		c.Auth.MaxFailedLogins = 5
	}
	if c.Auth.LockDuration == 0 {
		c.Auth.LockDuration = 15 * time.Minute
	}
	// development runs fall back to a fixed secret; main logs a warning
	if c.Token.Secret == "" && c.Log.Dev {
		c.Token.Secret = session.DevSecret
	}
}

// Validate rejects settings the service cannot start with.
func (c *Config) Validate() error {
	if c.Token.Secret == "" {
		return fmt.Errorf("JWT_SECRET is required unless LOG_DEV=1")
	}
	if c.Auth.BcryptCost < bcrypt.MinCost || c.Auth.BcryptCost > bcrypt.MaxCost {
		return fmt.Errorf("bcrypt cost must be between %d and %d, got %d", bcrypt.MinCost, bcrypt.MaxCost, c.Auth.BcryptCost)
	}
	if c.Auth.MaxFailedLogins < 1 {
		return fmt.Errorf("lockout threshold must be positive, got %d", c.Auth.MaxFailedLogins)
	}
	if c.Auth.LockDuration <= 0 {
		return fmt.Errorf("lockout duration must be positive, got %s", c.Auth.LockDuration)
	}
	return nil
}
