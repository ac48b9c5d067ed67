package app

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/mitchellh/go-homedir"
)

// Environment variables that move dtb's machine-local files.
const (
	EnvConfigPath = "DTB_CONFIG_PATH"
	EnvHome       = "DTB_HOME"
)

// Defaults are the machine-local paths known before the config is read.
type Defaults struct {
	ConfigPath string // DTB_CONFIG_PATH or ~/.config/dtb.toml
	BaseDir    string // DTB_HOME or ~/.local/share/dtb
	LogDir     string
	EnvFile    string
}

// LoadEnv reads DTB_* overrides from the given .env files into the process
// environment. Missing files are skipped and variables already set win.
func LoadEnv(paths ...string) error {
	for _, p := range paths {
		err := godotenv.Load(p)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return fmt.Errorf("loading %s: %w", p, err)
		}
	}
	return nil
}

// GetDefaults resolves the default paths from the environment.
func GetDefaults() (*Defaults, error) {
	home, err := homedir.Dir()
	if err != nil {
		return nil, fmt.Errorf("cannot determine home directory: %w", err)
	}

	d := &Defaults{
		ConfigPath: os.Getenv(EnvConfigPath),
		BaseDir:    os.Getenv(EnvHome),
	}
	if d.ConfigPath == "" {
		d.ConfigPath = filepath.Join(home, ".config", "dtb.toml")
	}
	if d.BaseDir == "" {
		d.BaseDir = filepath.Join(home, ".local", "share", "dtb")
	}
	d.LogDir = filepath.Join(d.BaseDir, "log")
	d.EnvFile = filepath.Join(d.BaseDir, ".env")
	return d, nil
}

// LoadDefaults loads .env from the working directory, resolves the
// defaults, then loads the .env in the base directory. The second file can
// set DTB_CONFIG_PATH but not move the base directory it lives in.
func LoadDefaults() (*Defaults, error) {
	if err := LoadEnv(".env"); err != nil {
		return nil, err
	}
	d, err := GetDefaults()
	if err != nil {
		return nil, err
	}
	if err := LoadEnv(d.EnvFile); err != nil {
		return nil, err
	}
	if p := os.Getenv(EnvConfigPath); p != "" {
		d.ConfigPath = p
	}
	return d, nil
}
