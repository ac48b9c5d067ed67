package dtb

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/ghodss/yaml"
	"github.com/spf13/afero"
)

// LinkExt is the extension of link descriptor files.
const LinkExt = ".yml"

// linkRecord is the on-disk shape of a link file: {link: relative/path}.
type linkRecord struct {
	Link string `json:"link"`
}

// IsLinkName reports whether a filename looks like a link descriptor.
func IsLinkName(name string) bool {
	return strings.HasSuffix(name, LinkExt)
}

// WriteLink writes a link descriptor at path. The relative path is stored
// with forward slashes so links stay valid on every OS sharing the tree.
func WriteLink(fs afero.Fs, path, relPath string) error {
	data, err := yaml.Marshal(linkRecord{Link: filepath.ToSlash(relPath)})
	if err != nil {
		return fmt.Errorf("encoding link: %w", err)
	}
	if err := afero.WriteFile(fs, path, data, 0644); err != nil {
		return fmt.Errorf("writing link %s: %w", path, err)
	}
	return nil
}

// ReadLink decodes the link descriptor at path and returns the stored
// relative path in host separators. A well-formed record without a link
// field yields ErrNotLink.
func ReadLink(fs afero.Fs, path string) (string, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return "", fmt.Errorf("reading link %s: %w", path, err)
	}
	var rec linkRecord
	if err := yaml.Unmarshal(data, &rec); err != nil {
		return "", fmt.Errorf("decoding link %s: %w", path, err)
	}
	if rec.Link == "" {
		return "", fmt.Errorf("%s: %w", path, ErrNotLink)
	}
	return filepath.FromSlash(rec.Link), nil
}
