package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/rhuss/askdocs/pkg/debug"
)

// Load loads configuration from a layered set of sources.
//
// The loading order is:
//  1. Built-in defaults
//  2. YAML config file (explicit path, ASKDOCS_CONFIG env, ./config.yaml, /etc/askdocs/config.yaml)
//  3. Environment variable overrides
//  4. File reference resolution (_file suffix)
//  5. Validation
func Load(configPath string) (*Config, error) {
	cfg := Defaults()

	filePath := discoverConfigFile(configPath)
	if filePath != "" {
		if err := loadYAMLFile(filePath, &cfg); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", filePath, err)
		}
		debug.Log("config", "loaded config file", "path", filePath)
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, fmt.Errorf("environment overrides: %w", err)
	}

	if err := resolveFileReferences(&cfg); err != nil {
		return nil, fmt.Errorf("resolving file references: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return &cfg, nil
}

// discoverConfigFile finds the config file path using the discovery order:
// 1. Explicit configPath argument
// 2. ASKDOCS_CONFIG environment variable
// 3. ./config.yaml in the current directory
// 4. /etc/askdocs/config.yaml
//
// Returns empty string if no config file is found.
func discoverConfigFile(configPath string) string {
	if configPath != "" {
		return configPath
	}

	if envPath := os.Getenv("ASKDOCS_CONFIG"); envPath != "" {
		return envPath
	}

	for _, path := range []string{"config.yaml", "/etc/askdocs/config.yaml"} {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// loadYAMLFile reads and parses a YAML file into the Config struct.
// Fields not present in the YAML retain their current (default) values.
// Unknown keys are rejected so that typos do not pass silently.
func loadYAMLFile(path string, cfg *Config) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// applyEnvOverrides maps environment variables to config fields.
// Malformed numeric values are reported instead of ignored.
func applyEnvOverrides(cfg *Config) error {
	setString := func(name string, dst *string) {
		if v := os.Getenv(name); v != "" {
			*dst = v
		}
	}
	setInt := func(name string, dst *int) error {
		v := os.Getenv(name)
		if v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		*dst = n
		return nil
	}

	// OPENAI_API_KEY is honored for compatibility with OpenAI tooling;
	// ASKDOCS_API_KEY wins when both are set.
	setString("OPENAI_API_KEY", &cfg.Provider.APIKey)
	setString("ASKDOCS_API_KEY", &cfg.Provider.APIKey)
	setString("ASKDOCS_PROVIDER", &cfg.Provider.Type)
	setString("ASKDOCS_BACKEND_URL", &cfg.Provider.BaseURL)
	setString("ASKDOCS_ORGANIZATION", &cfg.Provider.Organization)

	setString("ASKDOCS_MODEL", &cfg.Engine.Model)
	setString("ASKDOCS_EMBEDDING_MODEL", &cfg.Engine.EmbeddingModel)
	setString("ASKDOCS_FALLBACK_ANSWER", &cfg.Engine.FallbackAnswer)

	setString("ASKDOCS_STREAM_FORMAT", &cfg.Server.StreamFormat)
	setString("ASKDOCS_STORAGE", &cfg.Storage.Type)
	setString("ASKDOCS_POSTGRES_DSN", &cfg.Storage.Postgres.DSN)
	setString("ASKDOCS_AUTH_TYPE", &cfg.Auth.Type)
	setString("ASKDOCS_JWT_SECRET", &cfg.Auth.JWT.Secret)
	setString("ASKDOCS_JWKS_URL", &cfg.Auth.JWT.JWKSURL)
	setString("ASKDOCS_LOG_FORMAT", &cfg.Logging.Format)

	if err := setInt("ASKDOCS_PORT", &cfg.Server.Port); err != nil {
		return err
	}
	if err := setInt("ASKDOCS_STORAGE_SIZE", &cfg.Storage.MaxSize); err != nil {
		return err
	}
	if err := setInt("ASKDOCS_MAX_TOKENS", &cfg.Engine.MaxTokens); err != nil {
		return err
	}

	if v := os.Getenv("ASKDOCS_TEMPERATURE"); v != "" {
		t, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("ASKDOCS_TEMPERATURE: %w", err)
		}
		cfg.Engine.Temperature = t
	}

	// ASKDOCS_API_KEYS: JSON array of API key configs.
	if v := os.Getenv("ASKDOCS_API_KEYS"); v != "" {
		keys, err := parseAPIKeysJSON(v)
		if err != nil {
			return err
		}
		if len(keys) > 0 {
			cfg.Auth.APIKeys = keys
		}
	}

	return nil
}

// parseAPIKeysJSON parses a JSON array of API key configurations.
func parseAPIKeysJSON(jsonStr string) ([]APIKeyConfig, error) {
	var keys []APIKeyConfig
	if err := json.Unmarshal([]byte(jsonStr), &keys); err != nil {
		return nil, fmt.Errorf("parsing ASKDOCS_API_KEYS: %w", err)
	}
	return keys, nil
}

// resolveFileReferences reads _file fields and populates the corresponding value fields.
// For each field ending in _file, if the value field is empty and the file field is set,
// the file is read, whitespace is trimmed, and the value field is populated.
func resolveFileReferences(cfg *Config) error {
	resolve := func(path string, dst *string, field string) error {
		if path == "" || *dst != "" {
			return nil
		}
		val, err := readSecretFile(path)
		if err != nil {
			return fmt.Errorf("%s: %w", field, err)
		}
		*dst = val
		slog.Debug("resolved secret file", "field", field)
		return nil
	}

	if err := resolve(cfg.Provider.APIKeyFile, &cfg.Provider.APIKey, "provider.api_key_file"); err != nil {
		return err
	}
	if err := resolve(cfg.Storage.Postgres.DSNFile, &cfg.Storage.Postgres.DSN, "storage.postgres.dsn_file"); err != nil {
		return err
	}
	if err := resolve(cfg.Auth.JWT.SecretFile, &cfg.Auth.JWT.Secret, "auth.jwt.secret_file"); err != nil {
		return err
	}
	for i := range cfg.Auth.APIKeys {
		k := &cfg.Auth.APIKeys[i]
		if err := resolve(k.KeyFile, &k.Key, fmt.Sprintf("auth.api_keys[%d].key_file", i)); err != nil {
			return err
		}
	}

	return nil
}

// readSecretFile reads a file and returns its content with surrounding whitespace trimmed.
func readSecretFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
