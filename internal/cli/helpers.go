package cli

import (
	"errors"
	"fmt"

	"github.com/kmoussa/spacegrab/pkg/config"
	pkgerrors "github.com/kmoussa/spacegrab/pkg/errors"
)

// These variables will be set by the main package
var (
	ConfigPath *string
	LogLevel   *string
	LogFormat  *string
)

// loadConfig resolves the effective configuration: file (when given),
// defaults otherwise, then environment overrides, then validation.
func loadConfig() (config.Config, error) {
	var cfg config.Config
	var err error

	configPath := ""
	if ConfigPath != nil {
		configPath = *ConfigPath
	}

	if configPath != "" {
		cfg, err = config.LoadFromFile(configPath)
		if err != nil {
			return config.Config{}, fmt.Errorf("failed to load config: %w", err)
		}
	} else {
		cfg = config.Default()
	}

	if err := cfg.LoadFromEnv(); err != nil {
		return config.Config{}, fmt.Errorf("failed to apply environment overrides: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}

	return cfg, nil
}

// loadCredentials reads the credentials file named by cfg. A missing file is
// not fatal here: empty credentials are returned and the caller decides what
// to do without them.
func loadCredentials(cfg config.Config, override string) (config.Credentials, error) {
	path := cfg.CredentialsFile
	if override != "" {
		path = override
	}

	creds, err := config.LoadCredentials(path)
	if err != nil {
		if errors.Is(err, pkgerrors.ErrCredentialsFile) {
			Warn("credentials file not found, continuing without credentials", "path", path)
			return config.Credentials{}, nil
		}
		return config.Credentials{}, fmt.Errorf("failed to load credentials: %w", err)
	}

	return creds, nil
}
