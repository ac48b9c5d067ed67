package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/mitchellh/go-homedir"
)

// Config represents the main configuration for dtb.
type Config struct {
	// Root is the share root. Empty means locate it under the home directory.
	Root string `toml:"root,omitempty"`
	// User overrides the user chosen by identity lookup.
	User     string         `toml:"user,omitempty"`
	BaseDir  string         `toml:"base_dir"`
	LogDir   string         `toml:"log_dir"`
	Locator  LocatorConfig  `toml:"locator"`
	Engine   EngineConfig   `toml:"engine"`
	Daemon   DaemonConfig   `toml:"daemon"`
	Database DatabaseConfig `toml:"database"`
}

// LocatorConfig controls the share root search.
type LocatorConfig struct {
	Services []string `toml:"services,omitempty"`
	Marker   string   `toml:"marker,omitempty"`
	Depth    int      `toml:"depth,omitempty"`
}

// EngineConfig holds share behavior settings.
type EngineConfig struct {
	DefaultDownloads  string   `toml:"default_downloads"`
	Strict            bool     `toml:"strict"`
	BrokenLinks       string   `toml:"broken_links"` // "delete" (default) or "defer"
	PruneInvalidUsers bool     `toml:"prune_invalid_users"`
	Ignore            []string `toml:"ignore"`
}

// DaemonConfig controls `dtb download --daemon`.
type DaemonConfig struct {
	IntervalSeconds int  `toml:"interval_seconds"`
	Watch           bool `toml:"watch"`
}

// DatabaseConfig represents configuration for the history database.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type DatabaseConfig struct {
	Type    string `toml:"type"`               // "sqlite" or "memory"
	DataDir string `toml:"data_dir,omitempty"` // only used for type=sqlite
}

// DefaultInterval is the daemon polling period in seconds.
const DefaultInterval = 5

// NewConfig creates a new Config rooted at baseDir with default settings.
func NewConfig(baseDir string) *Config {
	downloads := "Downloads"
	if home, err := homedir.Dir(); err == nil {
		downloads = filepath.Join(home, "Downloads")
	}
	return &Config{
		BaseDir: baseDir,
		LogDir:  filepath.Join(baseDir, "log"),
		Engine: EngineConfig{
			DefaultDownloads: downloads,
			BrokenLinks:      "delete",
		},
		Daemon: DaemonConfig{IntervalSeconds: DefaultInterval},
		Database: DatabaseConfig{
			Type:    "sqlite",
			DataDir: filepath.Join(baseDir, "db"),
		},
	}
}

// Expand resolves a leading ~ in every path setting.
func (c *Config) Expand() error {
	for _, p := range []*string{&c.Root, &c.BaseDir, &c.LogDir, &c.Engine.DefaultDownloads, &c.Database.DataDir} {
		expanded, err := homedir.Expand(*p)
		if err != nil {
			return fmt.Errorf("expanding %q: %w", *p, err)
		}
		*p = expanded
	}
	return nil
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads a Config from the specified file path.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

// Load reads the config at path, falling back to NewConfig(baseDir) when
// the file does not exist. Settings missing from the file keep their defaults.
func Load(path, baseDir string) (*Config, error) {
	cfg := NewConfig(baseDir)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, cfg.Expand()
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	if err := cfg.Expand(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// writeToFile writes a Config to the specified file path.
func writeToFile(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Init initializes a new config file at the specified path with the provided Config.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}
