package fs

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/afero"
)

// Resolve expands a leading ~, makes rawPath absolute and stats it.
// Special files are rejected.
func Resolve(fsys afero.Fs, rawPath string) (string, os.FileInfo, error) {
	expanded, err := homedir.Expand(rawPath)
	if err != nil {
		return "", nil, fmt.Errorf("expanding %s: %w", rawPath, err)
	}
	absPath, err := filepath.Abs(expanded)
	if err != nil {
		return "", nil, fmt.Errorf("resolving absolute path: %w", err)
	}

	info, err := fsys.Stat(absPath)
	if err != nil {
		return "", nil, fmt.Errorf("stat path: %w", err)
	}

	mode := info.Mode()
	if mode&os.ModeDevice != 0 {
		return "", nil, fmt.Errorf("device files not supported: %s", absPath)
	}
	if mode&os.ModeNamedPipe != 0 {
		return "", nil, fmt.Errorf("named pipes not supported: %s", absPath)
	}
	if mode&os.ModeSocket != 0 {
		return "", nil, fmt.Errorf("sockets not supported: %s", absPath)
	}

	return absPath, info, nil
}

// ResolveFile resolves rawPath and requires a regular file.
func ResolveFile(fsys afero.Fs, rawPath string) (string, error) {
	p, info, err := Resolve(fsys, rawPath)
	if err != nil {
		return "", err
	}
	if !info.Mode().IsRegular() {
		return "", fmt.Errorf("not a file: %s", p)
	}
	return p, nil
}

// ResolveDir resolves rawPath as a directory, creating it when missing.
func ResolveDir(fsys afero.Fs, rawPath string) (string, error) {
	expanded, err := homedir.Expand(rawPath)
	if err != nil {
		return "", fmt.Errorf("expanding %s: %w", rawPath, err)
	}
	absPath, err := filepath.Abs(expanded)
	if err != nil {
		return "", fmt.Errorf("resolving absolute path: %w", err)
	}
	if err := fsys.MkdirAll(absPath, 0755); err != nil {
		return "", fmt.Errorf("creating %s: %w", absPath, err)
	}
	info, err := fsys.Stat(absPath)
	if err != nil {
		return "", fmt.Errorf("stat path: %w", err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("not a directory: %s", absPath)
	}
	return absPath, nil
}
