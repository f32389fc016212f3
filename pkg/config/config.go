// Package config loads the vault process configuration.
//
// Sources, lowest priority first: built-in defaults, the YAML file named by
// VAULT_CONFIG, .env files, and the process environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Environment string

const (
	Development Environment = "development"
	Production  Environment = "production"
)

// Config is the validated process configuration.
type Config struct {
	DatabaseURL         string        `yaml:"database_url" validate:"required"`
	Port                int           `yaml:"port" validate:"min=1,max=65535"`
	BackupDir           string        `yaml:"backup_dir" validate:"required"`
	ExportDir           string        `yaml:"export_dir" validate:"required"`
	TodoAPIURL          string        `yaml:"todo_api_url" validate:"required,url"`
	Environment         Environment   `yaml:"environment" validate:"oneof=development production"`
	LogLevel            string        `yaml:"log_level" validate:"oneof=debug info warn error"`
	OTelStdout          bool          `yaml:"otel_stdout"`
	MCPEnabled          bool          `yaml:"mcp_enabled"`
	StoreConnectTimeout time.Duration `yaml:"store_connect_timeout" validate:"gt=0"`
}

// Addr is the listen address derived from Port.
func (c *Config) Addr() string { return ":" + strconv.Itoa(c.Port) }

func (c *Config) IsProduction() bool { return c.Environment == Production }

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		DatabaseURL:         "sqlite:file:vault.sqlite?_pragma=busy_timeout(5000)",
		Port:                3000,
		BackupDir:           "backups",
		ExportDir:           ".",
		TodoAPIURL:          "https://jsonplaceholder.typicode.com",
		Environment:         Development,
		LogLevel:            "info",
		MCPEnabled:          true,
		StoreConnectTimeout: 30 * time.Second,
	}
}

// Load builds the configuration. envFiles default to ".env"; missing files
// are skipped.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}

	cfg := Default()
	if path := os.Getenv("VAULT_CONFIG"); path != "" {
		if err := cfg.loadYAML(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func (c *Config) loadYAML(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(b, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	c.DatabaseURL = getEnv("DATABASE_URL", c.DatabaseURL)
	c.BackupDir = getEnv("BACKUP_DIR", c.BackupDir)
	c.ExportDir = getEnv("EXPORT_DIR", c.ExportDir)
	c.TodoAPIURL = getEnv("TODO_API_URL", c.TodoAPIURL)
	c.Environment = Environment(strings.ToLower(getEnv("ENVIRONMENT", string(c.Environment))))
	c.LogLevel = strings.ToLower(getEnv("LOG_LEVEL", c.LogLevel))

	var err error
	if c.Port, err = getInt("PORT", c.Port); err != nil {
		return err
	}
	if c.OTelStdout, err = getBool("OTEL_STDOUT", c.OTelStdout); err != nil {
		return err
	}
	if c.MCPEnabled, err = getBool("MCP_ENABLED", c.MCPEnabled); err != nil {
		return err
	}
	if v := os.Getenv("STORE_CONNECT_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("STORE_CONNECT_TIMEOUT: %w", err)
		}
		c.StoreConnectTimeout = d
	}
	return nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func getBool(key string, def bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s: %w", key, err)
	}
	return b, nil
}
