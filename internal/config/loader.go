package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const (
	maxConfigFileSize = 1024 * 1024 // 1MB

	// EnvPrefix is the prefix of every environment override.
	EnvPrefix = "RAGD_"
)

// nestedSections lists sub-sections whose env names would otherwise be
// flattened into a single field (RAGD_VECTORSTORE_QDRANT_HOST).
var nestedSections = map[string][]string{
	"vectorstore": {"chromem", "qdrant"},
	"embeddings":  {"retry"},
	"reranker":    {"retry"},
	"generator":   {"retry"},
	"cache":       {"nats"},
}

// Load reads configuration from the YAML file, then a .env file in the
// working directory, then RAGD_* environment variables.
//
// Precedence (highest to lowest):
//  1. Environment variables (RAGD_SERVER_PORT, RAGD_EMBEDDINGS_BASE_URL, ...)
//  2. .env file
//  3. YAML config file (~/.config/ragd/config.yaml)
//  4. Defaults
//
// The YAML file must live in ~/.config/ragd/ or /etc/ragd/, be at most 1MB
// and have 0600 or 0400 permissions. A missing file is not an error.
//
// Environment names map to keys by splitting on the first underscore:
//
//	RAGD_SERVER_PORT              -> server.port
//	RAGD_EMBEDDINGS_BASE_URL      -> embeddings.base_url
//	RAGD_VECTORSTORE_QDRANT_HOST  -> vectorstore.qdrant.host
//	RAGD_CACHE_NATS_URL           -> cache.nats.url
func Load(configPath string) (*Config, error) {
	return LoadWithDotEnv(configPath, ".env")
}

// LoadWithDotEnv is Load with an explicit .env location. An empty dotenvPath
// skips the .env step.
func LoadWithDotEnv(configPath, dotenvPath string) (*Config, error) {
	k := koanf.New(".")

	if configPath == "" {
		dir, err := DefaultConfigDir()
		if err != nil {
			return nil, err
		}
		configPath = filepath.Join(dir, "config.yaml")
	}

	if err := validateConfigPath(configPath); err != nil {
		return nil, fmt.Errorf("config path validation failed: %w", err)
	}

	content, err := readConfigFile(configPath)
	if err != nil {
		return nil, err
	}
	if content != nil {
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	if dotenvPath != "" {
		if err := godotenv.Load(dotenvPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", dotenvPath, err)
		}
	}

	if err := k.Load(env.ProviderWithValue(EnvPrefix, ".", envTransform), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := Default()
	// A configured list replaces the default list rather than merging into it.
	cfg.Ingestion.SupportedFileTypes = nil
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	applyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// DefaultConfigDir returns ~/.config/ragd.
func DefaultConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".config", "ragd"), nil
}

// EnsureConfigDir creates the ragd config directory with 0700 permissions.
func EnsureConfigDir() error {
	dir, err := DefaultConfigDir()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory %s: %w", dir, err)
	}
	return nil
}

// envTransform maps RAGD_SECTION_FIELD to section.field and decodes JSON
// list values such as RAGD_INGESTION_SUPPORTED_FILE_TYPES='["txt","md"]'.
func envTransform(key, value string) (string, interface{}) {
	lower := strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
	section, field, ok := strings.Cut(lower, "_")
	if !ok {
		return lower, value
	}

	path := section + "." + field
	for _, sub := range nestedSections[section] {
		if rest, found := strings.CutPrefix(field, sub+"_"); found {
			path = section + "." + sub + "." + rest
			break
		}
	}

	trimmed := strings.TrimSpace(value)
	if strings.HasPrefix(trimmed, "[") {
		var list []string
		if err := json.Unmarshal([]byte(trimmed), &list); err == nil {
			return path, list
		}
	}
	return path, value
}

// readConfigFile returns nil content when the file does not exist.
func readConfigFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	// Validate through the open descriptor to avoid a TOCTOU race.
	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if err := validateConfigFileProperties(info); err != nil {
		return nil, fmt.Errorf("config file validation failed: %w", err)
	}

	content, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return content, nil
}

// validateConfigPath checks that path is inside an allowed directory.
// It runs even when the file does not exist yet.
func validateConfigPath(path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}

	resolvedPath, err := filepath.EvalSymlinks(absPath)
	if err != nil {
		resolvedPath = absPath
	}

	userDir, err := DefaultConfigDir()
	if err != nil {
		return err
	}

	for _, dir := range []string{userDir, "/etc/ragd"} {
		if resolvedPath == dir || strings.HasPrefix(resolvedPath, dir+string(filepath.Separator)) {
			return nil
		}
	}
	return fmt.Errorf("config file must be in ~/.config/ragd/ or /etc/ragd/")
}

// validateConfigFileProperties checks file permissions and size.
func validateConfigFileProperties(info os.FileInfo) error {
	if runtime.GOOS != "windows" {
		perm := info.Mode().Perm()
		if perm != 0600 && perm != 0400 {
			return fmt.Errorf("insecure config file permissions: %v (expected 0600 or 0400)", perm)
		}
	}
	if info.Size() > maxConfigFileSize {
		return fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)
	}
	return nil
}

// applyDefaults fills values that Unmarshal may have cleared.
func applyDefaults(cfg *Config) {
	cfg.Ingestion.SupportedFileTypes = NormalizeExtensions(cfg.Ingestion.SupportedFileTypes)
	if len(cfg.Ingestion.SupportedFileTypes) == 0 {
		cfg.Ingestion.SupportedFileTypes = append([]string(nil), DefaultSupportedFileTypes...)
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "ragd"
	}
}
