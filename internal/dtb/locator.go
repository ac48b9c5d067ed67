package dtb

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/afero"
)

// DefaultMarker is the directory name that identifies a share root.
const DefaultMarker = "DropTheBeat"

// DefaultServices are the sync-service folder names searched for a share.
var DefaultServices = []string{"Dropbox", "Dropbox (Personal)"}

// DefaultSearchDepth bounds how many levels below a service folder are searched.
const DefaultSearchDepth = 3

// LocatorOptions configures FindRoot. Zero values select the defaults.
type LocatorOptions struct {
	Services []string
	Marker   string
	Depth    int
}

func (o LocatorOptions) withDefaults() LocatorOptions {
	if len(o.Services) == 0 {
		o.Services = DefaultServices
	}
	if o.Marker == "" {
		o.Marker = DefaultMarker
	}
	if o.Depth <= 0 {
		o.Depth = DefaultSearchDepth
	}
	return o
}

// checkoutFiles mark a source checkout that happens to carry the marker name.
var checkoutFiles = []string{"go.mod", "setup.py"}

func isCheckout(fs afero.Fs, dir string) bool {
	return slices.ContainsFunc(checkoutFiles, func(name string) bool {
		return isFile(fs, filepath.Join(dir, name))
	})
}

// errFound stops the walk once the marker is located.
var errFound = errors.New("found")

// FindRoot looks for a share root under top. Each direct child of top whose
// name is a known sync service is walked, at most opts.Depth levels deep,
// for a directory named opts.Marker. The first match is returned.
func FindRoot(fs afero.Fs, top string, opts LocatorOptions, logger Logger) (string, error) {
	opts = opts.withDefaults()

	logger.Debug("looking for service", "top", top)
	names, err := subdirs(fs, top)
	if err != nil {
		return "", fmt.Errorf("listing %s: %w", top, errors.Join(ErrNotFound, err))
	}

	for _, name := range names {
		if !slices.Contains(opts.Services, name) {
			continue
		}
		service := filepath.Join(top, name)
		logger.Debug("found service", "path", service)

		var found string
		err := afero.Walk(fs, service, func(path string, info os.FileInfo, err error) error {
			if err != nil {
				// Part of the tree may not be synced yet.
				return nil
			}
			if !info.IsDir() {
				return nil
			}
			if depth(service, path) >= opts.Depth {
				return filepath.SkipDir
			}
			candidate := filepath.Join(path, opts.Marker)
			if isDir(fs, candidate) && !isCheckout(fs, candidate) {
				found = candidate
				return errFound
			}
			return nil
		})
		if err != nil && !errors.Is(err, errFound) {
			return "", fmt.Errorf("searching %s: %w", service, err)
		}
		if found != "" {
			logger.Info("found share", "path", found)
			return found, nil
		}
	}

	return "", fmt.Errorf("no %q folder found under %s: %w", opts.Marker, top, ErrNotFound)
}

// depth counts the path segments of path below base.
func depth(base, path string) int {
	rel, err := filepath.Rel(base, path)
	if err != nil || rel == "." {
		return 0
	}
	return len(strings.Split(rel, string(filepath.Separator)))
}

// DefaultTop returns the directory FindRoot searches when none is given:
// the home directory of the current account.
func DefaultTop() (string, error) {
	home, err := homedir.Dir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return home, nil
}
