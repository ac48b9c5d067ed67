package dtb

import (
	"fmt"
	"path/filepath"
)

// BrokenLinkPolicy decides what Download does with a link whose target is gone.
type BrokenLinkPolicy string

const (
	// BrokenLinksDelete removes the dangling link during Download.
	BrokenLinksDelete BrokenLinkPolicy = "delete"
	// BrokenLinksDefer leaves the dangling link for the receiver's Cleanup.
	BrokenLinksDefer BrokenLinkPolicy = "defer"
)

// ParseBrokenLinkPolicy validates a policy name. The empty string selects
// BrokenLinksDelete.
func ParseBrokenLinkPolicy(s string) (BrokenLinkPolicy, error) {
	switch BrokenLinkPolicy(s) {
	case "", BrokenLinksDelete:
		return BrokenLinksDelete, nil
	case BrokenLinksDefer:
		return BrokenLinksDefer, nil
	default:
		return "", fmt.Errorf("unknown broken link policy: %q", s)
	}
}

// Song is one shareable item: either a canonical file in a drops directory
// or a link file in a mailbox. Songs are views over files and are rebuilt
// every time a directory is scanned.
type Song struct {
	share *Share
	path  string

	// Sender is the other party: who sent an incoming song, or who an
	// outgoing song is addressed to.
	Sender string

	// Downloads is the receiving user's downloads directory on this machine.
	Downloads string
}

// Song wraps an existing file of the share as a Song.
func (s *Share) Song(path, sender, downloads string) *Song {
	return &Song{share: s, path: path, Sender: sender, Downloads: downloads}
}

// Path returns the file backing the song.
func (s *Song) Path() string {
	return s.path
}

func (s *Song) String() string {
	return s.path
}

// Name returns the basename of the song's source.
func (s *Song) Name() string {
	return filepath.Base(s.Source())
}

// IsLink reports whether the song is backed by a link descriptor that
// points somewhere else.
func (s *Song) IsLink() bool {
	return s.Source() != s.path
}

// Source returns the canonical file the song refers to. Links are resolved
// against their own directory; a corrupt or non-link record is treated as
// its own source.
func (s *Song) Source() string {
	if !IsLinkName(s.path) {
		return s.path
	}
	rel, err := ReadLink(s.share.fs, s.path)
	if err != nil {
		s.share.logger.Warn("unreadable link, using file as source", "path", s.path, "error", err)
		return s.path
	}
	return filepath.Clean(filepath.Join(filepath.Dir(s.path), rel))
}

// Download collects the song into the downloads directory and returns the
// downloaded path. A canonical file is copied and then deleted; a link is
// followed, its target copied and only the link deleted. A broken link
// returns "" and is handled according to the share's BrokenLinkPolicy.
//
// I/O failures are logged and reported as "" unless the share runs in
// strict mode, where they are returned to the caller.
func (s *Song) Download() (string, error) {
	if s.Downloads == "" {
		return "", fmt.Errorf("downloading %s: %w", s.path, ErrNoDownloads)
	}
	log := s.share.logger
	fs := s.share.fs

	src := s.Source()
	var dst string
	var err error
	switch {
	case src == s.path && copyTarget(src, s.Downloads) == filepath.Clean(src):
		log.Info("song already in downloads", "path", src)
		return filepath.Clean(src), nil
	case src == s.path:
		log.Info("moving song", "path", src, "downloads", s.Downloads)
		// Copy before removing so an interrupted move keeps the original.
		dst, err = copyFile(fs, src, s.Downloads)
		if err == nil {
			err = removeFile(fs, src)
		}
	case exists(fs, src):
		log.Info("copying song", "path", src, "downloads", s.Downloads)
		dst, err = copyFile(fs, src, s.Downloads)
		if err == nil {
			err = removeFile(fs, s.path)
		}
	default:
		log.Debug("unknown link target", "target", src)
		log.Warn("broken link", "path", s.path)
		if s.share.opts.BrokenLinks == BrokenLinksDefer {
			return "", nil
		}
		err = removeFile(fs, s.path)
	}

	if err != nil {
		if s.share.opts.Strict {
			return "", fmt.Errorf("downloading %s: %w", s.path, err)
		}
		log.Warn("download failed", "path", s.path, "error", err)
		return "", nil
	}
	return dst, nil
}

// Ignore deletes the file backing the song without following it.
func (s *Song) Ignore() error {
	s.share.logger.Info("deleting song", "path", s.path)
	return removeFile(s.share.fs, s.path)
}

// Link writes a new link file pointing at this song's source into dir,
// creating dir when it is missing, and returns the link as a Song.
func (s *Song) Link(dir string) (*Song, error) {
	fs := s.share.fs
	if !isDir(fs, dir) {
		s.share.logger.Warn("creating missing folder", "path", dir)
		if err := fs.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating %s: %w", dir, err)
		}
	}

	rel, err := filepath.Rel(dir, s.Source())
	if err != nil {
		return nil, fmt.Errorf("calculating relative path: %w", err)
	}

	path := filepath.Join(dir, s.share.idgen.New()+LinkExt)
	s.share.logger.Info("creating link", "path", path)
	if err := WriteLink(fs, path, rel); err != nil {
		return nil, err
	}
	return s.share.Song(path, "", ""), nil
}

// Broken reports whether the song is a link whose target is missing.
func (s *Song) Broken() bool {
	src := s.Source()
	return src != s.path && !exists(s.share.fs, src)
}
