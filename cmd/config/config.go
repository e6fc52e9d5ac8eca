package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	yaml "gopkg.in/yaml.v2"
)

// DefaultServerURL is used when neither a flag, the environment nor a
// config file names a server.
const DefaultServerURL = "http://localhost:8000"

// ErrNoConfigFile is returned by FindConfigFile when a directory holds no
// ally config file.
var ErrNoConfigFile = errors.New("no ally config file (yaml/toml/json) found")

// LoadConfig loads an ally config file from the specified directory
func LoadConfig(configDir string) (*AllyConfig, error) {
	if configDir == "" {
		return nil, fmt.Errorf("config directory is required")
	}

	foundFile, err := FindConfigFile(configDir)
	if err != nil {
		return nil, err
	}

	return LoadConfigFile(foundFile)
}

// LoadConfigFile loads and parses a config file based on its extension
func LoadConfigFile(filePath string) (*AllyConfig, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", filePath, err)
	}

	fileExt := strings.ToLower(filepath.Ext(filePath))

	var config AllyConfig
	switch fileExt {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config file %s: %w", filePath, err)
		}
	case ".toml":
		if err := toml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse TOML config file %s: %w", filePath, err)
		}
	case ".json":
		if err := json.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config file %s: %w", filePath, err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file extension: %s", fileExt)
	}

	return &config, nil
}

// FindConfigFile searches for ally config files (yaml/toml/json) in the specified directory
func FindConfigFile(searchPath string) (string, error) {
	if searchPath == "" {
		return "", fmt.Errorf("search path is required")
	}

	for _, configFile := range SupportedAllyConfigFiles {
		fullPath := filepath.Join(searchPath, configFile)
		if _, err := os.Stat(fullPath); err == nil {
			return fullPath, nil
		}
	}
	return "", fmt.Errorf("%w in %s", ErrNoConfigFile, searchPath)
}

// IsConfigFile checks if the given file path is an ally config file
func IsConfigFile(filePath string) bool {
	baseName := filepath.Base(filePath)

	for _, configFile := range SupportedAllyConfigFiles {
		if baseName == configFile {
			return true
		}
	}
	return false
}

// SaveConfig saves an ally.yaml configuration file
func SaveConfig(config *AllyConfig, configPath string) error {
	if configPath == "" {
		configPath = "ally.yaml"
	}

	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if dir := filepath.Dir(configPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Resolve loads the first config found in dirs (in order). A directory
// without a config file is skipped; a malformed file is an error. When no
// directory has one, an empty config is returned.
func Resolve(dirs ...string) (*AllyConfig, string, error) {
	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		path, err := FindConfigFile(dir)
		if errors.Is(err, ErrNoConfigFile) {
			continue
		}
		if err != nil {
			return nil, "", err
		}
		cfg, err := LoadConfigFile(path)
		if err != nil {
			return nil, "", err
		}
		return cfg, path, nil
	}
	return &AllyConfig{}, "", nil
}

// ServerConfig represents server connection configuration
type ServerConfig struct {
	URL     string
	Project string
}

// GetServerConfig returns server configuration with defaults applied.
// Precedence: flag, then ALLY_SERVER_URL, then the config file, then the
// default.
func GetServerConfig(cfg *AllyConfig, serverURL string, project string) *ServerConfig {
	if cfg == nil {
		cfg = &AllyConfig{}
	}

	finalServerURL := strings.TrimSpace(serverURL)
	if finalServerURL == "" {
		finalServerURL = strings.TrimSpace(os.Getenv("ALLY_SERVER_URL"))
	}
	if finalServerURL == "" {
		finalServerURL = strings.TrimSpace(cfg.ServerURL)
	}
	if finalServerURL == "" {
		finalServerURL = DefaultServerURL
	}

	finalProject := strings.TrimSpace(project)
	if finalProject == "" {
		finalProject = strings.TrimSpace(cfg.DefaultProject)
	}

	return &ServerConfig{
		URL:     strings.TrimSuffix(finalServerURL, "/"),
		Project: finalProject,
	}
}
