package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Default key material. One fixed key and IV for the life of a deployment;
// there is no rotation scheme.
const (
	DefaultCipherKey = "A?D(G+KbPeShVmYq3t6w9z$C&F)J@NcQ"
	DefaultCipherIV  = "HrRy2w!z%C*F-JaN"

	defaultDatabasePath   = "Banking_Database.db"
	defaultAuditThreshold = "10000"
	defaultLogMaxSizeMB   = 10
	defaultLogMaxFiles    = 5
)

var ErrInvalidConfig = errors.New("invalid config")

type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Cipher   CipherConfig   `yaml:"cipher"`
	Audit    AuditConfig    `yaml:"audit"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type DatabaseConfig struct {
	Driver   string `yaml:"driver"`
	Path     string `yaml:"path"`
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	SSLMode  string `yaml:"sslmode"`
}

type CipherConfig struct {
	Key string `yaml:"key"`
	IV  string `yaml:"iv"`
}

type AuditConfig struct {
	File      string          `yaml:"file"`
	Threshold decimal.Decimal `yaml:"threshold"`
	Teller    string          `yaml:"teller"`
}

type LoggingConfig struct {
	Level     string `yaml:"level"`
	File      string `yaml:"file"`
	MaxSizeMB int    `yaml:"max_size_mb"`
	MaxFiles  int    `yaml:"max_files"`
}

func Default() *Config {
	return &Config{
		Database: DatabaseConfig{
			Driver:  "sqlite",
			Path:    defaultDatabasePath,
			Host:    "localhost",
			Port:    "5432",
			User:    "postgres",
			Name:    "banking",
			SSLMode: "disable",
		},
		Cipher: CipherConfig{
			Key: DefaultCipherKey,
			IV:  DefaultCipherIV,
		},
		Audit: AuditConfig{
			Threshold: decimal.RequireFromString(defaultAuditThreshold),
		},
		Logging: LoggingConfig{
			Level:     "info",
			MaxSizeMB: defaultLogMaxSizeMB,
			MaxFiles:  defaultLogMaxFiles,
		},
	}
}

// Load builds the configuration from defaults, then the YAML file at path
// (skipped when path is empty), then BANK_* environment variables.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
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

func (c *Config) applyEnv() error {
	c.Database.Driver = getEnvOrDefault("BANK_DB_DRIVER", c.Database.Driver)
	c.Database.Path = getEnvOrDefault("BANK_DB_PATH", c.Database.Path)
	c.Database.Host = getEnvOrDefault("BANK_DB_HOST", c.Database.Host)
	c.Database.Port = getEnvOrDefault("BANK_DB_PORT", c.Database.Port)
	c.Database.User = getEnvOrDefault("BANK_DB_USER", c.Database.User)
	c.Database.Password = getEnvOrDefault("BANK_DB_PASSWORD", c.Database.Password)
	c.Database.Name = getEnvOrDefault("BANK_DB_NAME", c.Database.Name)
	c.Database.SSLMode = getEnvOrDefault("BANK_DB_SSLMODE", c.Database.SSLMode)

	c.Cipher.Key = getEnvOrDefault("BANK_CIPHER_KEY", c.Cipher.Key)
	c.Cipher.IV = getEnvOrDefault("BANK_CIPHER_IV", c.Cipher.IV)

	c.Audit.File = getEnvOrDefault("BANK_AUDIT_FILE", c.Audit.File)
	c.Audit.Teller = getEnvOrDefault("BANK_TELLER", c.Audit.Teller)
	if raw, ok := os.LookupEnv("BANK_AUDIT_THRESHOLD"); ok {
		threshold, err := decimal.NewFromString(raw)
		if err != nil {
			return fmt.Errorf("%w: BANK_AUDIT_THRESHOLD %q: %v", ErrInvalidConfig, raw, err)
		}
		c.Audit.Threshold = threshold
	}

	c.Logging.Level = getEnvOrDefault("BANK_LOG_LEVEL", c.Logging.Level)
	c.Logging.File = getEnvOrDefault("BANK_LOG_FILE", c.Logging.File)
	c.Logging.MaxSizeMB = getEnvAsInt("BANK_LOG_MAX_SIZE_MB", c.Logging.MaxSizeMB)
	c.Logging.MaxFiles = getEnvAsInt("BANK_LOG_MAX_FILES", c.Logging.MaxFiles)
	return nil
}

func (c *Config) Validate() error {
	switch strings.ToLower(c.Database.Driver) {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("%w: database.driver must be sqlite or postgres, got %q", ErrInvalidConfig, c.Database.Driver)
	}
	if strings.EqualFold(c.Database.Driver, "sqlite") && c.Database.Path == "" {
		return fmt.Errorf("%w: database.path is required for sqlite", ErrInvalidConfig)
	}
	if len(c.Cipher.Key) != 32 {
		return fmt.Errorf("%w: cipher.key must be 32 bytes, got %d", ErrInvalidConfig, len(c.Cipher.Key))
	}
	if len(c.Cipher.IV) != 16 {
		return fmt.Errorf("%w: cipher.iv must be 16 bytes, got %d", ErrInvalidConfig, len(c.Cipher.IV))
	}
	if c.Audit.Threshold.IsNegative() {
		return fmt.Errorf("%w: audit.threshold must not be negative", ErrInvalidConfig)
	}
	return nil
}

// GetDBConnectionString returns the data source name for the configured driver.
func (c *Config) GetDBConnectionString() string {
	if strings.EqualFold(c.Database.Driver, "postgres") {
		return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
			c.Database.Host, c.Database.Port, c.Database.User, c.Database.Password, c.Database.Name, c.Database.SSLMode)
	}
	return c.Database.Path
}

func getEnvOrDefault(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnvOrDefault(key, strconv.Itoa(defaultValue))
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}
