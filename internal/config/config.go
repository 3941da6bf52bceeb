package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"capline/internal/catalog"
	"capline/internal/rules"
)

const FileName = "capline.yml"

const (
	DialectSQLite   = "sqlite"
	DialectPostgres = "postgres"
)

// Config models capline.yml.
type Config struct {
	Play struct {
		Team       string `yaml:"team"`
		Difficulty string `yaml:"difficulty"`
		ExportDir  string `yaml:"export_dir"`
	} `yaml:"play"`
	Archive struct {
		Enabled bool   `yaml:"enabled"`
		Dialect string `yaml:"dialect"`
		Path    string `yaml:"path"`
	} `yaml:"archive"`
	Receipts struct {
		Issuer string        `yaml:"issuer"`
		TTL    time.Duration `yaml:"ttl"`
	} `yaml:"receipts"`
	Server struct {
		Addr     string `yaml:"addr"`
		BasePath string `yaml:"base_path"`
	} `yaml:"server"`
	Simulate struct {
		Runs    int `yaml:"runs"`
		Workers int `yaml:"workers"`
	} `yaml:"simulate"`
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Play.Team == "" {
		return errors.New("config.play.team is required")
	}
	cat, err := catalog.Default()
	if err != nil {
		return err
	}
	if _, ok := cat.Team(c.Play.Team); !ok {
		return fmt.Errorf("config.play.team %s is not a known team", c.Play.Team)
	}
	if _, err := rules.ParseDifficulty(c.Play.Difficulty); err != nil {
		return fmt.Errorf("config.play.difficulty: %w", err)
	}
	switch c.Archive.Dialect {
	case DialectSQLite, DialectPostgres:
	default:
		return fmt.Errorf("config.archive.dialect must be %s or %s", DialectSQLite, DialectPostgres)
	}
	if c.Receipts.TTL < 0 {
		return errors.New("config.receipts.ttl must not be negative")
	}
	if c.Server.BasePath != "" && !strings.HasPrefix(c.Server.BasePath, "/") {
		return errors.New("config.server.base_path must start with /")
	}
	if c.Simulate.Runs <= 0 {
		return errors.New("config.simulate.runs must be positive")
	}
	if c.Simulate.Workers < 0 {
		return errors.New("config.simulate.workers must not be negative")
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, FileName)
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// Default returns the default Config.
func Default() *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(defaultTemplate)).Decode(&cfg)
	return &cfg
}

// Load reads and validates the workspace config.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("config %s not found; create one with capline config init", path)
	}
	return FromFile(path)
}

// LoadOptional returns the defaults if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// FromYAML parses raw YAML over the defaults and validates the result.
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

// Init writes the default config into a workspace. It refuses to overwrite.
func Init(workspace string) (string, error) {
	path := Path(workspace)
	if _, err := os.Stat(path); err == nil {
		return "", fmt.Errorf("config %s already exists", path)
	}
	if err := os.WriteFile(path, []byte(defaultTemplate), 0o644); err != nil {
		return "", err
	}
	return path, nil
}

const defaultTemplate = `play:
  team: KC
  difficulty: ROOKIE
  # Directory for ledger CSV exports, relative to the workspace.
  export_dir: exports

archive:
  enabled: true
  # sqlite or postgres. Postgres reads CAPLINE_POSTGRES_DSN.
  dialect: sqlite
  # Empty means <workspace>/.capline/capline.db.
  path: ""

receipts:
  # Receipts are signed only when CAPLINE_RECEIPT_SECRET is set.
  issuer: capline
  ttl: 720h

server:
  addr: 127.0.0.1:8080
  base_path: /v0

simulate:
  runs: 400
  workers: 8
`
