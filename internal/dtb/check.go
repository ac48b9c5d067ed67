package dtb

import (
	"path/filepath"

	"github.com/spf13/afero"
)

// Layout of a user directory, relative to the user's folder.
const (
	PrivateDir   = ".dtb"
	InfoFile     = ".dtb/info.yml"
	SettingsFile = ".dtb/settings.yml"
	RequestsFile = ".dtb/requests.yml"
	DropsDir     = ".dtb/drops"
)

// Check validates the shape of a user directory. It returns an
// *InvalidUserError naming the first missing element, or nil. Only the
// presence of the metadata files is required, not their contents.
func Check(fs afero.Fs, path string) error {
	if !isDir(fs, path) {
		return &InvalidUserError{Path: path}
	}
	for _, dir := range []string{PrivateDir, DropsDir} {
		if !isDir(fs, filepath.Join(path, filepath.FromSlash(dir))) {
			return &InvalidUserError{Path: path, Missing: dir}
		}
	}
	for _, file := range []string{InfoFile, RequestsFile, SettingsFile} {
		if !isFile(fs, filepath.Join(path, filepath.FromSlash(file))) {
			return &InvalidUserError{Path: path, Missing: file}
		}
	}
	return nil
}
