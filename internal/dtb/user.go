package dtb

import (
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"github.com/spf13/afero"
)

// User is one logical identity's folder under the share root. Besides its
// private area it holds one mailbox per friend, named after the friend,
// where that friend drops songs for it.
type User struct {
	share *Share
	path  string

	Name string
}

func (u *User) String() string {
	return u.path
}

// Path returns the user's folder.
func (u *User) Path() string {
	return u.path
}

// PrivatePath returns the directory holding the user's metadata.
func (u *User) PrivatePath() string {
	return u.file(PrivateDir)
}

// DropsPath returns the directory holding canonical copies of shared songs.
func (u *User) DropsPath() string {
	return u.file(DropsDir)
}

// InfoPath returns the identity records file.
func (u *User) InfoPath() string {
	return u.file(InfoFile)
}

func (u *User) file(rel string) string {
	return filepath.Join(u.path, filepath.FromSlash(rel))
}

// Check validates the user's directory structure.
func (u *User) Check() error {
	return Check(u.share.fs, u.path)
}

// Identities returns the identity records of every machine the user runs.
// A missing or malformed info file yields no records.
func (u *User) Identities() []IdentityRecord {
	records, err := readIdentities(u.share.fs, u.InfoPath())
	if err != nil {
		u.share.logger.Debug("no identity records", "path", u.InfoPath(), "error", err)
		return nil
	}
	return records
}

// DownloadsPath returns the downloads directory recorded for the current
// machine, or "" when this machine has no record.
func (u *User) DownloadsPath() (string, error) {
	id, err := u.share.identity.Current()
	if err != nil {
		return "", fmt.Errorf("identifying this machine: %w", err)
	}
	for _, r := range u.Identities() {
		if r.Identity() == id {
			return r.Downloads, nil
		}
	}
	return "", nil
}

// SetDownloadsPath records the downloads directory for the current machine.
// Records of other machines are kept as they are.
func (u *User) SetDownloadsPath(path string) error {
	id, err := u.share.identity.Current()
	if err != nil {
		return fmt.Errorf("identifying this machine: %w", err)
	}
	records, err := readIdentities(u.share.fs, u.InfoPath())
	if err != nil {
		u.share.logger.Warn("discarding unreadable identity records", "path", u.InfoPath(), "error", err)
		records = nil
	}
	records = upsertIdentity(records, IdentityRecord{Computer: id.Computer, Account: id.Account, Downloads: path})
	return writeIdentities(u.share.fs, u.InfoPath(), records)
}

// Friends returns every other valid user under the share root.
func (u *User) Friends() ([]*User, error) {
	return u.friends(false)
}

// friends lists the other valid users. When clean is set and the share
// prunes invalid users, directories failing Check are deleted.
func (u *User) friends(clean bool) ([]*User, error) {
	s := u.share
	names, err := subdirs(s.fs, s.root)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", s.root, err)
	}

	var friends []*User
	for _, name := range names {
		if name == u.Name || strings.HasPrefix(name, ".") {
			continue
		}
		friend := s.User(name)
		if err := friend.Check(); err != nil {
			s.logger.Debug("skipping directory", "path", friend.path, "reason", err)
			if clean && s.opts.PruneInvalidUsers {
				s.logger.Warn("deleting invalid user directory", "path", friend.path)
				if err := removeDir(s.fs, friend.path); err != nil {
					s.logger.Error("cleanup failed", "path", friend.path, "error", err)
				}
			}
			continue
		}
		friends = append(friends, friend)
	}
	return friends, nil
}

// Incoming lists the songs waiting in the user's mailboxes. Each call
// rescans the filesystem.
func (u *User) Incoming() ([]*Song, error) {
	s := u.share
	s.logger.Debug("looking for incoming songs", "user", u.Name)

	downloads, err := u.DownloadsPath()
	if err != nil {
		return nil, err
	}
	senders, err := subdirs(s.fs, u.path)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", u.path, err)
	}

	var songs []*Song
	for _, sender := range senders {
		if sender == PrivateDir {
			continue
		}
		mailbox := filepath.Join(u.path, sender)
		infos, err := afero.ReadDir(s.fs, mailbox)
		if err != nil {
			// The sync service may still be materializing the mailbox.
			s.logger.Debug("skipping unreadable mailbox", "path", mailbox, "error", err)
			continue
		}
		for _, info := range infos {
			if !info.Mode().IsRegular() {
				continue
			}
			if s.ignored(filepath.Join(u.Name, sender, info.Name())) {
				s.logger.Debug("ignoring file", "path", filepath.Join(mailbox, info.Name()))
				continue
			}
			songs = append(songs, s.Song(filepath.Join(mailbox, info.Name()), sender, downloads))
		}
	}
	return songs, nil
}

// Outgoing lists the songs this user placed in friends' mailboxes that have
// not been consumed yet. Sender is set to the friend the song is addressed to.
func (u *User) Outgoing() ([]*Song, error) {
	return u.outgoing(false)
}

// outgoing collects pending songs from every friend. With strict set, a
// friend whose mailboxes cannot be listed fails the whole call, otherwise
// the friend is skipped.
func (u *User) outgoing(strict bool) ([]*Song, error) {
	u.share.logger.Debug("looking for outgoing songs", "user", u.Name)

	friends, err := u.Friends()
	if err != nil {
		return nil, err
	}

	var songs []*Song
	for _, friend := range friends {
		incoming, err := friend.Incoming()
		if err != nil {
			if strict {
				return nil, fmt.Errorf("listing songs for %s: %w", friend.Name, err)
			}
			u.share.logger.Warn("skipping friend", "friend", friend.Name, "error", err)
			continue
		}
		for _, song := range incoming {
			if song.Sender != u.Name {
				continue
			}
			song.Sender = friend.Name
			song.Downloads = ""
			songs = append(songs, song)
		}
	}
	return songs, nil
}

// Recommend copies the file at path into the user's drops directory and
// links it into the mailbox of every friend named in recipients, or of
// every friend when recipients is empty. It returns the canonical song.
func (u *User) Recommend(path string, recipients []string) (*Song, error) {
	s := u.share
	s.logger.Info("recommending song", "path", path)

	if !isFile(s.fs, path) {
		return nil, fmt.Errorf("not a file: %s", path)
	}
	dst, err := copyFile(s.fs, path, u.DropsPath())
	if err != nil {
		return nil, fmt.Errorf("dropping %s: %w", path, err)
	}
	song := s.Song(dst, "", "")

	friends, err := u.Friends()
	if err != nil {
		return nil, err
	}
	for _, name := range recipients {
		if !slices.ContainsFunc(friends, func(f *User) bool { return f.Name == name }) {
			s.logger.Warn("unknown recipient", "name", name)
		}
	}
	for _, friend := range friends {
		if len(recipients) > 0 && !slices.Contains(recipients, friend.Name) {
			continue
		}
		if _, err := song.Link(filepath.Join(friend.path, u.Name)); err != nil {
			return nil, fmt.Errorf("linking for %s: %w", friend.Name, err)
		}
	}
	return song, nil
}

// CleanupResult lists what a Cleanup removed.
type CleanupResult struct {
	Files       []string
	Directories []string
}

// Count returns the number of removed paths.
func (r *CleanupResult) Count() int {
	return len(r.Files) + len(r.Directories)
}

// Cleanup reclaims space and structure. Canonical files in the drops
// directory that no outgoing link references any more are deleted, and
// every directory of the user that is neither the private area nor a
// valid friend's mailbox is removed. Under BrokenLinksDefer, dangling
// incoming links are removed as well. Running Cleanup again right away
// removes nothing.
func (u *User) Cleanup() (*CleanupResult, error) {
	s := u.share
	result := &CleanupResult{}

	if err := u.reclaimOrphans(result); err != nil {
		return result, err
	}
	if err := u.reclaimDirectories(result); err != nil {
		return result, err
	}
	if s.opts.BrokenLinks == BrokenLinksDefer {
		if err := u.reclaimBrokenLinks(result); err != nil {
			return result, err
		}
	}

	s.logger.Info("cleanup complete", "user", u.Name, "files", len(result.Files), "directories", len(result.Directories))
	return result, nil
}

func (u *User) reclaimOrphans(result *CleanupResult) error {
	s := u.share
	infos, err := afero.ReadDir(s.fs, u.DropsPath())
	if err != nil {
		s.logger.Debug("no drops to reclaim", "path", u.DropsPath(), "error", err)
		return nil
	}

	outgoing, err := u.outgoing(true)
	if err != nil {
		return fmt.Errorf("collecting outgoing songs: %w", err)
	}
	referenced := make(map[string]bool, len(outgoing))
	for _, song := range outgoing {
		referenced[filepath.Clean(song.Source())] = true
	}

	for _, info := range infos {
		if !info.Mode().IsRegular() {
			continue
		}
		path := filepath.Join(u.DropsPath(), info.Name())
		if referenced[path] {
			continue
		}
		s.logger.Info("deleting unreferenced song", "path", path)
		if err := removeFile(s.fs, path); err != nil {
			return err
		}
		result.Files = append(result.Files, path)
	}
	return nil
}

func (u *User) reclaimDirectories(result *CleanupResult) error {
	s := u.share
	friends, err := u.friends(true)
	if err != nil {
		return err
	}
	names, err := subdirs(s.fs, u.path)
	if err != nil {
		return fmt.Errorf("listing %s: %w", u.path, err)
	}
	for _, name := range names {
		if name == PrivateDir || slices.ContainsFunc(friends, func(f *User) bool { return f.Name == name }) {
			continue
		}
		path := filepath.Join(u.path, name)
		s.logger.Info("deleting stale directory", "path", path)
		if err := removeDir(s.fs, path); err != nil {
			return err
		}
		result.Directories = append(result.Directories, path)
	}
	return nil
}

func (u *User) reclaimBrokenLinks(result *CleanupResult) error {
	incoming, err := u.Incoming()
	if err != nil {
		return err
	}
	for _, song := range incoming {
		if !song.Broken() {
			continue
		}
		u.share.logger.Info("deleting broken link", "path", song.Path())
		if err := removeFile(u.share.fs, song.Path()); err != nil {
			return err
		}
		result.Files = append(result.Files, song.Path())
	}
	return nil
}

// Delete removes the user's mailbox from every friend, then the user's own
// folder. A failure part way leaves a partially deleted user behind.
func (u *User) Delete() error {
	s := u.share
	friends, err := u.Friends()
	if err != nil {
		return err
	}
	for _, friend := range friends {
		if err := removeDir(s.fs, filepath.Join(friend.path, u.Name)); err != nil {
			return err
		}
	}
	if err := removeDir(s.fs, u.path); err != nil {
		return err
	}
	s.logger.Info("user deleted", "path", u.path)
	return nil
}
