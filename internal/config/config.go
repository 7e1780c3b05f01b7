package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"taskdeck/internal/domain"
)

// Config models taskdeck.yml.
type Config struct {
	Defaults struct {
		Company  string `yaml:"company"`
		Area     string `yaml:"area"`
		Priority string `yaml:"priority"`
	} `yaml:"defaults"`
	Auth struct {
		JWTSecret              string `yaml:"jwt_secret"`
		AllowLegacyActorHeader bool   `yaml:"allow_legacy_actor_header"`
	} `yaml:"auth"`
	Upload struct {
		Dir string `yaml:"dir"`
	} `yaml:"upload"`
	Server struct {
		Addr string `yaml:"addr"`
	} `yaml:"server"`
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Defaults.Priority != "" && !domain.ValidPriority(c.Defaults.Priority) {
		return fmt.Errorf("config.defaults.priority %q is not a valid priority", c.Defaults.Priority)
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "taskdeck.yml")
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns the defaults if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

// Default returns the built-in defaults.
func Default() *Config {
	var cfg Config
	cfg.Defaults.Priority = domain.PriorityNormal
	cfg.Auth.AllowLegacyActorHeader = true
	cfg.Server.Addr = ":8800"
	return &cfg
}

// GenerateDefault returns the starter config YAML written by init.
func GenerateDefault() string {
	return defaultTemplate
}

const defaultTemplate = `defaults:
  company: ""
  area: ""
  priority: normal

auth:
  # Secret for signing and verifying bearer tokens. Leave empty to disable
  # JWT auth on the HTTP API.
  jwt_secret: ""
  # Accept the X-Actor-Id header when no token or API key is presented.
  allow_legacy_actor_header: true

upload:
  # Directory for uploaded files, relative to the workspace. Defaults to
  # .taskdeck/uploads when empty.
  dir: ""

server:
  addr: ":8800"
`
