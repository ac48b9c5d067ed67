package dtb

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a share root, a user or a link target
	// cannot be located. Callers usually react by creating or joining a user.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists is returned when creating a user whose folder exists.
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidUser matches every *InvalidUserError.
	ErrInvalidUser = errors.New("invalid user directory")

	// ErrNoDownloads is returned when a song is downloaded for a user that
	// has no downloads path recorded for the current machine.
	ErrNoDownloads = errors.New("no downloads path configured")

	// ErrNotLink is returned when a record decodes but has no link field.
	ErrNotLink = errors.New("record is not a link")
)

// InvalidUserError reports the first structural element missing from a
// candidate user directory.
type InvalidUserError struct {
	Path    string
	Missing string
}

func (e *InvalidUserError) Error() string {
	if e.Missing == "" {
		return fmt.Sprintf("invalid user directory %s: not a directory", e.Path)
	}
	return fmt.Sprintf("invalid user directory %s: missing %s", e.Path, e.Missing)
}

func (e *InvalidUserError) Is(target error) bool {
	return target == ErrInvalidUser
}
