package app

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/mitchellh/go-homedir"
)

func TestGetDefaults(t *testing.T) {
	t.Run("uses env vars when set", func(t *testing.T) {
		t.Setenv(EnvConfigPath, "/custom/config.toml")
		t.Setenv(EnvHome, "/custom/dtb")

		d, err := GetDefaults()
		if err != nil {
			t.Fatalf("GetDefaults() error = %v", err)
		}

		want := Defaults{
			ConfigPath: "/custom/config.toml",
			BaseDir:    "/custom/dtb",
			LogDir:     "/custom/dtb/log",
			EnvFile:    "/custom/dtb/.env",
		}
		if *d != want {
			t.Errorf("GetDefaults() = %+v, want %+v", *d, want)
		}
	})

	t.Run("falls back to home dir defaults", func(t *testing.T) {
		t.Setenv(EnvConfigPath, "")
		t.Setenv(EnvHome, "")

		d, err := GetDefaults()
		if err != nil {
			t.Fatalf("GetDefaults() error = %v", err)
		}

		home, err := homedir.Dir()
		if err != nil {
			t.Fatalf("homedir.Dir() error = %v", err)
		}
		if want := filepath.Join(home, ".config", "dtb.toml"); d.ConfigPath != want {
			t.Errorf("ConfigPath = %q, want %q", d.ConfigPath, want)
		}
		wantBase := filepath.Join(home, ".local", "share", "dtb")
		if d.BaseDir != wantBase {
			t.Errorf("BaseDir = %q, want %q", d.BaseDir, wantBase)
		}
		if want := filepath.Join(wantBase, "log"); d.LogDir != want {
			t.Errorf("LogDir = %q, want %q", d.LogDir, want)
		}
	})
}

func TestLoadDefaults(t *testing.T) {
	base := t.TempDir()
	t.Setenv(EnvHome, base)
	t.Setenv(EnvConfigPath, "")
	os.Unsetenv(EnvConfigPath)
	t.Chdir(t.TempDir())

	if err := os.WriteFile(filepath.Join(base, ".env"), []byte("DTB_CONFIG_PATH=/from/base/dtb.toml\n"), 0644); err != nil {
		t.Fatal(err)
	}

	d, err := LoadDefaults()
	if err != nil {
		t.Fatalf("LoadDefaults() error = %v", err)
	}
	if d.BaseDir != base {
		t.Errorf("BaseDir = %q, want %q", d.BaseDir, base)
	}
	if d.ConfigPath != "/from/base/dtb.toml" {
		t.Errorf("ConfigPath = %q, want %q", d.ConfigPath, "/from/base/dtb.toml")
	}
}

func TestLoadEnv(t *testing.T) {
	t.Run("sets unset variables", func(t *testing.T) {
		t.Setenv(EnvHome, "")
		os.Unsetenv(EnvHome)
		path := filepath.Join(t.TempDir(), ".env")
		if err := os.WriteFile(path, []byte("DTB_HOME=/from/env\n"), 0644); err != nil {
			t.Fatal(err)
		}

		if err := LoadEnv(path); err != nil {
			t.Fatalf("LoadEnv() error = %v", err)
		}
		if got := os.Getenv(EnvHome); got != "/from/env" {
			t.Errorf("DTB_HOME = %q, want %q", got, "/from/env")
		}
	})

	t.Run("does not override the environment", func(t *testing.T) {
		t.Setenv(EnvHome, "/from/shell")
		path := filepath.Join(t.TempDir(), ".env")
		if err := os.WriteFile(path, []byte("DTB_HOME=/from/env\n"), 0644); err != nil {
			t.Fatal(err)
		}

		if err := LoadEnv(path); err != nil {
			t.Fatalf("LoadEnv() error = %v", err)
		}
		if got := os.Getenv(EnvHome); got != "/from/shell" {
			t.Errorf("DTB_HOME = %q, want %q", got, "/from/shell")
		}
	})

	t.Run("skips missing files", func(t *testing.T) {
		if err := LoadEnv(filepath.Join(t.TempDir(), "missing.env")); err != nil {
			t.Errorf("LoadEnv() error = %v", err)
		}
	})
}
