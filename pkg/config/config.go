// Package config defines configuration for the spacegrab CLI: scheduler
// settings from a YAML file (with SPACEGRAB_ environment overrides) and
// object-storage credentials from a flat key=value file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	pkgerrors "github.com/kmoussa/spacegrab/pkg/errors"
)

// Credential file keys.
const (
	keyBucket    = "SPACES_NAME"
	keyAccessKey = "ACCESS_KEY"
	keySecretKey = "SECRET_KEY"
	keyRegion    = "REGION_NAME"
	keyEndpoint  = "ENDPOINT"
)

// Config defines scheduler settings for the spacegrab CLI.
type Config struct {
	// Workers is the number of pool connections (maximum concurrent
	// transfers).
	Workers int
	// PopWait bounds how long a connection waits on the ready queue before
	// rechecking for shutdown.
	PopWait time.Duration
	// JoinTimeout bounds the wait for connections and the tracker to exit
	// during Stop.
	JoinTimeout time.Duration
	// TrackerInterval is the progress display redraw period.
	TrackerInterval time.Duration
	// Retry defines the transfer retry policy. The default is no retries:
	// a failed transfer moves its task to the failed queue immediately.
	Retry RetryConfig
	// CredentialsFile is the path of the key=value credentials file.
	CredentialsFile string
}

// RetryConfig defines retry behavior for failed transfers.
type RetryConfig struct {
	// Attempts is the number of additional transfer attempts after the
	// first failure. 0 disables retries.
	Attempts int
}

// Credentials holds object-storage access settings. An empty value is legal
// at load time; client construction fails later when fields are missing.
type Credentials struct {
	Bucket    string
	AccessKey string
	SecretKey string
	Region    string
	Endpoint  string
}

// Empty reports whether no credential field is set.
func (c Credentials) Empty() bool {
	return c == Credentials{}
}

// Default returns a Config with sensible defaults.
func Default() Config {
	return Config{
		Workers:         4,
		PopWait:         500 * time.Millisecond,
		JoinTimeout:     30 * time.Second,
		TrackerInterval: 2 * time.Second,
		Retry:           RetryConfig{Attempts: 0},
		CredentialsFile: "spaces.conf",
	}
}

// yamlConfig mirrors Config with string durations for unmarshaling.
type yamlConfig struct {
	Workers         int             `yaml:"workers"`
	PopWait         string          `yaml:"pop_wait"`
	JoinTimeout     string          `yaml:"join_timeout"`
	TrackerInterval string          `yaml:"tracker_interval"`
	Retry           yamlRetryConfig `yaml:"retry"`
	CredentialsFile string          `yaml:"credentials_file"`
}

type yamlRetryConfig struct {
	Attempts *int `yaml:"attempts"`
}

// LoadFromFile loads configuration from a YAML file, applying defaults for
// unset keys.
func LoadFromFile(path string) (Config, error) {
	if path == "" {
		return Config{}, pkgerrors.ErrEmptyConfigPath
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	var yc yamlConfig
	if err := yaml.Unmarshal(data, &yc); err != nil {
		return Config{}, pkgerrors.Wrap(pkgerrors.ErrConfigParse, err.Error())
	}

	cfg := Default()

	if yc.Workers != 0 {
		cfg.Workers = yc.Workers
	}
	if yc.PopWait != "" {
		d, err := time.ParseDuration(yc.PopWait)
		if err != nil {
			return Config{}, fmt.Errorf("parse pop_wait: %w", err)
		}
		cfg.PopWait = d
	}
	if yc.JoinTimeout != "" {
		d, err := time.ParseDuration(yc.JoinTimeout)
		if err != nil {
			return Config{}, fmt.Errorf("parse join_timeout: %w", err)
		}
		cfg.JoinTimeout = d
	}
	if yc.TrackerInterval != "" {
		d, err := time.ParseDuration(yc.TrackerInterval)
		if err != nil {
			return Config{}, fmt.Errorf("parse tracker_interval: %w", err)
		}
		cfg.TrackerInterval = d
	}
	if yc.Retry.Attempts != nil {
		cfg.Retry.Attempts = *yc.Retry.Attempts
	}
	if yc.CredentialsFile != "" {
		cfg.CredentialsFile = yc.CredentialsFile
	}

	return cfg, nil
}

// LoadFromEnv applies environment overrides. Variables use the SPACEGRAB_
// prefix.
func (c *Config) LoadFromEnv() error {
	if v := os.Getenv("SPACEGRAB_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse SPACEGRAB_WORKERS: %w", err)
		}
		c.Workers = n
	}
	if v := os.Getenv("SPACEGRAB_POP_WAIT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parse SPACEGRAB_POP_WAIT: %w", err)
		}
		c.PopWait = d
	}
	if v := os.Getenv("SPACEGRAB_JOIN_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parse SPACEGRAB_JOIN_TIMEOUT: %w", err)
		}
		c.JoinTimeout = d
	}
	if v := os.Getenv("SPACEGRAB_TRACKER_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parse SPACEGRAB_TRACKER_INTERVAL: %w", err)
		}
		c.TrackerInterval = d
	}
	if v := os.Getenv("SPACEGRAB_RETRY_ATTEMPTS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse SPACEGRAB_RETRY_ATTEMPTS: %w", err)
		}
		c.Retry.Attempts = n
	}
	if v := os.Getenv("SPACEGRAB_CREDENTIALS_FILE"); v != "" {
		c.CredentialsFile = v
	}
	return nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Workers <= 0 {
		return pkgerrors.Wrap(pkgerrors.ErrConfigValidation, "workers must be positive")
	}
	if c.PopWait <= 0 {
		return pkgerrors.Wrap(pkgerrors.ErrConfigValidation, "pop_wait must be positive")
	}
	if c.JoinTimeout <= 0 {
		return pkgerrors.Wrap(pkgerrors.ErrConfigValidation, "join_timeout must be positive")
	}
	if c.TrackerInterval <= 0 {
		return pkgerrors.Wrap(pkgerrors.ErrConfigValidation, "tracker_interval must be positive")
	}
	if c.Retry.Attempts < 0 {
		return pkgerrors.Wrap(pkgerrors.ErrConfigValidation, "retry.attempts cannot be negative")
	}
	return nil
}

// LoadCredentials reads object-storage credentials from a flat key=value
// file. A missing file is reported as pkg/errors.ErrCredentialsFile together
// with empty credentials so callers can log and continue; client
// construction will fail later.
func LoadCredentials(path string) (Credentials, error) {
	env, err := godotenv.Read(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Credentials{}, pkgerrors.Wrap(pkgerrors.ErrCredentialsFile, path)
		}
		return Credentials{}, pkgerrors.Wrap(pkgerrors.ErrCredentialsParse, err.Error())
	}

	return Credentials{
		Bucket:    env[keyBucket],
		AccessKey: env[keyAccessKey],
		SecretKey: env[keySecretKey],
		Region:    env[keyRegion],
		Endpoint:  env[keyEndpoint],
	}, nil
}
