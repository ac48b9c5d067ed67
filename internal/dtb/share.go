package dtb

import (
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"github.com/spf13/afero"
)

// Matcher reports whether a path relative to the share root should be
// skipped while scanning mailboxes.
type Matcher interface {
	Match(relativePath string) bool
}

// Options tunes engine behavior. The zero value is the default behavior.
type Options struct {
	// DefaultDownloads is recorded for a machine when no downloads path is given.
	DefaultDownloads string

	// Strict makes Song.Download return I/O errors instead of logging them.
	Strict bool

	// BrokenLinks selects what Download does with dangling links.
	BrokenLinks BrokenLinkPolicy

	// PruneInvalidUsers lets Cleanup delete top-level share directories
	// that fail the user directory check.
	PruneInvalidUsers bool

	// Ignore filters sync-service junk out of mailboxes. May be nil.
	Ignore Matcher
}

// Share is the repository of users living under one share root. Users are
// not registered anywhere: they are the directories present under the root
// that pass Check, listed on demand.
type Share struct {
	fs       afero.Fs
	root     string
	identity IdentitySource
	idgen    IDGenerator
	logger   Logger
	opts     Options
}

// NewShare creates a Share rooted at root with the provided dependencies.
func NewShare(fs afero.Fs, root string, identity IdentitySource, idgen IDGenerator, logger Logger, opts Options) *Share {
	if opts.BrokenLinks == "" {
		opts.BrokenLinks = BrokenLinksDelete
	}
	return &Share{
		fs:       fs,
		root:     root,
		identity: identity,
		idgen:    idgen,
		logger:   logger,
		opts:     opts,
	}
}

// Root returns the share root directory.
func (s *Share) Root() string {
	return s.root
}

// User returns a handle for the named user without validating it.
func (s *Share) User(name string) *User {
	return &User{share: s, Name: name, path: filepath.Join(s.root, name)}
}

// Users lists every valid user under the root. Directories that fail
// Check are skipped.
func (s *Share) Users() ([]*User, error) {
	names, err := subdirs(s.fs, s.root)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", s.root, err)
	}
	var users []*User
	for _, name := range names {
		u := s.User(name)
		if err := u.Check(); err != nil {
			s.logger.Debug("skipping directory", "path", u.path, "reason", err)
			continue
		}
		users = append(users, u)
	}
	return users, nil
}

// NewUser creates a user folder for the current machine and provisions the
// mailbox pair between it and every other directory under the root. An
// empty downloads path selects Options.DefaultDownloads.
func (s *Share) NewUser(name, downloads string) (*User, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	u := s.User(name)
	if exists(s.fs, u.path) {
		return nil, fmt.Errorf("user %s: %w", u.path, ErrAlreadyExists)
	}

	id, err := s.identity.Current()
	if err != nil {
		return nil, fmt.Errorf("identifying this machine: %w", err)
	}
	if downloads == "" {
		downloads = s.opts.DefaultDownloads
	}

	if err := s.fs.MkdirAll(u.DropsPath(), 0755); err != nil {
		return nil, fmt.Errorf("creating %s: %w", u.DropsPath(), err)
	}
	record := IdentityRecord{Computer: id.Computer, Account: id.Account, Downloads: downloads}
	if err := writeIdentities(s.fs, u.InfoPath(), []IdentityRecord{record}); err != nil {
		return nil, err
	}
	if err := writeRecord(s.fs, u.file(SettingsFile), map[string]any{}); err != nil {
		return nil, err
	}
	if err := writeRecord(s.fs, u.file(RequestsFile), []any{}); err != nil {
		return nil, err
	}

	others, err := subdirs(s.fs, s.root)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", s.root, err)
	}
	for _, other := range others {
		if other == name || strings.HasPrefix(other, ".") {
			continue
		}
		for _, mailbox := range []string{
			filepath.Join(u.path, other),
			filepath.Join(s.root, other, name),
		} {
			if err := s.fs.MkdirAll(mailbox, 0755); err != nil {
				return nil, fmt.Errorf("creating mailbox %s: %w", mailbox, err)
			}
		}
	}

	if err := u.Check(); err != nil {
		return nil, fmt.Errorf("created user is invalid: %w", err)
	}
	s.logger.Info("user created", "path", u.path, "identity", id.String())
	return u, nil
}

// AddUser records the current machine as another identity of an existing
// user. Mailboxes are left untouched. Unreadable identity records are
// discarded before the new one is added.
func (s *Share) AddUser(name, downloads string) (*User, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	u := s.User(name)
	if !exists(s.fs, u.path) {
		return nil, fmt.Errorf("user %s: %w", u.path, ErrNotFound)
	}
	if err := u.Check(); err != nil {
		return nil, err
	}

	id, err := s.identity.Current()
	if err != nil {
		return nil, fmt.Errorf("identifying this machine: %w", err)
	}
	if downloads == "" {
		downloads = s.opts.DefaultDownloads
	}

	records, err := readIdentities(s.fs, u.InfoPath())
	if err != nil {
		s.logger.Warn("discarding unreadable identity records", "path", u.InfoPath(), "error", err)
		records = nil
	}
	records = upsertIdentity(records, IdentityRecord{Computer: id.Computer, Account: id.Account, Downloads: downloads})
	if err := writeIdentities(s.fs, u.InfoPath(), records); err != nil {
		return nil, err
	}

	s.logger.Info("identity added", "path", u.path, "identity", id.String())
	return u, nil
}

// CurrentUser returns the user whose identity records contain this
// machine's (computer, account) pair. ErrNotFound means the machine must
// create or join a user.
func (s *Share) CurrentUser() (*User, error) {
	id, err := s.identity.Current()
	if err != nil {
		return nil, fmt.Errorf("identifying this machine: %w", err)
	}

	s.logger.Debug("looking for user", "identity", id.String(), "root", s.root)
	users, err := s.Users()
	if err != nil {
		return nil, err
	}
	for _, u := range users {
		if slices.ContainsFunc(u.Identities(), func(r IdentityRecord) bool {
			return r.Identity() == id
		}) {
			s.logger.Debug("found user", "path", u.path)
			return u, nil
		}
	}

	return nil, fmt.Errorf("%s in %s: %w", id, s.root, ErrNotFound)
}

func (s *Share) ignored(relativePath string) bool {
	return s.opts.Ignore != nil && s.opts.Ignore.Match(relativePath)
}

func validateName(name string) error {
	switch {
	case name == "":
		return fmt.Errorf("user name is empty")
	case strings.HasPrefix(name, "."):
		return fmt.Errorf("user name cannot start with '.': %q", name)
	case strings.ContainsAny(name, `/\`) || name != filepath.Base(name):
		return fmt.Errorf("user name cannot contain path separators: %q", name)
	}
	return nil
}
