package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/afero"

	"dtb-go/internal/config"
	"dtb-go/internal/database"
	"dtb-go/internal/dtb"
	"dtb-go/internal/fs"
	"dtb-go/internal/watch"
)

// History is the per-machine record of operations and transfers.
type History interface {
	CreateOperation(operation, parameters string) (*database.Operation, error)
	FinishOperation(id int64, status string) error
	ListOperations(limit int) ([]*database.Operation, error)
	RecordTransfer(t *database.Transfer) error
	ListTransfers(limit int) ([]*database.Transfer, error)
	Close() error
}

// Options carries command line overrides of the config.
type Options struct {
	// Root replaces the configured or located share root.
	Root string
	// As acts as the named user instead of the one matching this machine.
	As string
	// Verbosity is the number of -v flags.
	Verbosity int
	// Stderr receives console log output. Defaults to os.Stderr.
	Stderr io.Writer
}

// DTBApp is the application layer between the CLI and the share engine.
// It constructs all dependencies from config, exposes high-level operations
// that accept raw string paths, and records history until Close.
type DTBApp struct {
	cfg      *config.Config
	fs       afero.Fs
	share    *dtb.Share
	db       History
	log      dtb.Logger
	clock    dtb.Clock
	op       *Operation
	logFile  *os.File
	userName string
}

type deps struct {
	fs       afero.Fs
	identity dtb.IdentitySource
	idgen    dtb.IDGenerator
	clock    dtb.Clock
	db       History
	logger   *slog.Logger
}

// NewDTBApp creates a fully wired DTBApp from the given config.
// operation identifies the CLI command being run (e.g. "share", "download").
// The caller must call Close when done.
func NewDTBApp(cfg *config.Config, operation string, opts Options) (*DTBApp, error) {
	clock := dtb.RealClock{}
	stderr := opts.Stderr
	if stderr == nil {
		stderr = os.Stderr
	}

	opID := clock.Now().UTC().Format("20060102T150405Z")
	logger, logFile, err := newLogger(cfg.LogDir, opID, stderr, VerbosityLevel(opts.Verbosity))
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}

	db, err := database.NewDatabaseFromConfig(cfg.Database)
	if err != nil {
		logFile.Close()
		return nil, fmt.Errorf("creating database: %w", err)
	}
	if err := db.CheckMigrations(); err != nil {
		db.Close()
		logFile.Close()
		return nil, fmt.Errorf("database schema out of date: %w", err)
	}

	a, err := newDTBApp(cfg, operation, opts, deps{
		fs:       afero.NewOsFs(),
		identity: dtb.SystemIdentity{},
		idgen:    dtb.UUIDGenerator{},
		clock:    clock,
		db:       db,
		logger:   logger,
	})
	if err != nil {
		db.Close()
		logFile.Close()
		return nil, err
	}
	a.logFile = logFile
	return a, nil
}

func newDTBApp(cfg *config.Config, operation string, opts Options, d deps) (*DTBApp, error) {
	log := &slogAdapter{l: d.logger}

	root, err := resolveRoot(d.fs, cfg, opts.Root, log)
	if err != nil {
		return nil, err
	}

	policy, err := dtb.ParseBrokenLinkPolicy(cfg.Engine.BrokenLinks)
	if err != nil {
		return nil, err
	}
	matcher, err := fs.NewShareIgnoreMatcher(d.fs, root, cfg.Engine.Ignore)
	if err != nil {
		return nil, err
	}

	share := dtb.NewShare(d.fs, root, d.identity, d.idgen, log, dtb.Options{
		DefaultDownloads:  cfg.Engine.DefaultDownloads,
		Strict:            cfg.Engine.Strict,
		BrokenLinks:       policy,
		PruneInvalidUsers: cfg.Engine.PruneInvalidUsers,
		Ignore:            matcher,
	})

	userName := opts.As
	if userName == "" {
		userName = cfg.User
	}

	log.Debug("share ready", "root", root, "operation", operation)
	return &DTBApp{
		cfg:      cfg,
		fs:       d.fs,
		share:    share,
		db:       d.db,
		log:      log,
		clock:    d.clock,
		op:       NewOperation(operation),
		userName: userName,
	}, nil
}

// resolveRoot picks the share root: the command line override, then the
// configured root, then a search under the home directory.
func resolveRoot(fsys afero.Fs, cfg *config.Config, override string, log dtb.Logger) (string, error) {
	root := override
	if root == "" {
		root = cfg.Root
	}
	if root != "" {
		if ok, _ := afero.IsDir(fsys, root); !ok {
			return "", fmt.Errorf("share root %s: %w", root, dtb.ErrNotFound)
		}
		return root, nil
	}

	top, err := dtb.DefaultTop()
	if err != nil {
		return "", err
	}
	root, err = dtb.FindRoot(fsys, top, dtb.LocatorOptions{
		Services: cfg.Locator.Services,
		Marker:   cfg.Locator.Marker,
		Depth:    cfg.Locator.Depth,
	}, log)
	if err != nil {
		return "", fmt.Errorf("locating share root: %w", err)
	}
	return root, nil
}

// persistOperation saves the operation to the history.
// This should only be called for commands that change the share.
func (a *DTBApp) persistOperation(parameters string) error {
	return a.op.Begin(a.db, parameters)
}

// track marks the operation failed when err is set and returns err.
func (a *DTBApp) track(err error) error {
	return a.op.Fail(err)
}

// record stores a transfer of the current operation. History is best
// effort: a failure is logged, never returned.
func (a *DTBApp) record(kind, song, peer, destination string) {
	err := a.op.Record(a.db, &database.Transfer{
		Kind:        kind,
		Song:        song,
		Peer:        peer,
		Destination: destination,
	})
	if err != nil {
		a.log.Warn("cannot record transfer", "kind", kind, "song", song, "error", err)
	}
}

// Root returns the share root in use.
func (a *DTBApp) Root() string {
	return a.share.Root()
}

// resolveDownloads turns a raw downloads path into an absolute directory.
// The empty string selects the configured default.
func (a *DTBApp) resolveDownloads(raw string) (string, error) {
	if raw == "" {
		return "", nil
	}
	return fs.ResolveDir(a.fs, raw)
}

// NewUser creates a user for this machine.
func (a *DTBApp) NewUser(name, downloads string) (*dtb.User, error) {
	if err := a.persistOperation(name); err != nil {
		return nil, err
	}
	downloads, err := a.resolveDownloads(downloads)
	if err != nil {
		return nil, a.track(err)
	}
	u, err := a.share.NewUser(name, downloads)
	return u, a.track(err)
}

// JoinUser adds this machine to an existing user.
func (a *DTBApp) JoinUser(name, downloads string) (*dtb.User, error) {
	if err := a.persistOperation(name); err != nil {
		return nil, err
	}
	downloads, err := a.resolveDownloads(downloads)
	if err != nil {
		return nil, a.track(err)
	}
	u, err := a.share.AddUser(name, downloads)
	if err != nil {
		return nil, a.track(err)
	}
	// A join can follow a refused new in the same command.
	a.op.Succeed()
	return u, nil
}

// Identities returns the machines already recorded for the named user.
func (a *DTBApp) Identities(name string) []dtb.IdentityRecord {
	return a.share.User(name).Identities()
}

// CurrentUser returns the user this machine acts as. An --as override or
// the configured user name wins over identity lookup.
func (a *DTBApp) CurrentUser() (*dtb.User, error) {
	if a.userName != "" {
		u := a.share.User(a.userName)
		if err := u.Check(); err != nil {
			return nil, fmt.Errorf("user %s: %w", a.userName, err)
		}
		return u, nil
	}
	return a.share.CurrentUser()
}

// Friends lists the other users of the share.
func (a *DTBApp) Friends() ([]*dtb.User, error) {
	u, err := a.CurrentUser()
	if err != nil {
		return nil, err
	}
	return u.Friends()
}

// Incoming lists songs waiting for the current user.
func (a *DTBApp) Incoming() ([]*dtb.Song, error) {
	u, err := a.CurrentUser()
	if err != nil {
		return nil, err
	}
	return u.Incoming()
}

// Outgoing lists songs the current user shared that friends have not
// consumed. A cleanup runs first so consumed songs no longer show up.
func (a *DTBApp) Outgoing() ([]*dtb.Song, error) {
	u, err := a.CurrentUser()
	if err != nil {
		return nil, err
	}
	if err := a.persistOperation(u.Name); err != nil {
		return nil, err
	}
	if _, err := u.Cleanup(); err != nil {
		a.log.Warn("cleanup before listing failed", "user", u.Name, "error", err)
	}
	songs, err := u.Outgoing()
	return songs, a.track(err)
}

// Share copies the file at rawPath into the share and links it to the
// named friends, or to all friends when recipients is empty.
func (a *DTBApp) Share(rawPath string, recipients []string) (*dtb.Song, error) {
	if err := a.persistOperation(rawPath); err != nil {
		return nil, err
	}
	u, err := a.CurrentUser()
	if err != nil {
		return nil, a.track(err)
	}
	p, err := fs.ResolveFile(a.fs, rawPath)
	if err != nil {
		return nil, a.track(err)
	}
	song, err := u.Recommend(p, recipients)
	if err != nil {
		return nil, a.track(err)
	}

	peers := recipients
	if len(peers) == 0 {
		friends, err := u.Friends()
		if err != nil {
			a.log.Warn("cannot list friends for history", "error", err)
		}
		for _, f := range friends {
			peers = append(peers, f.Name)
		}
	}
	for _, peer := range peers {
		a.record(database.TransferShare, song.Name(), peer, "")
	}
	return song, nil
}

// DownloadAll downloads every incoming song of the current user and
// returns the paths of the downloaded files.
func (a *DTBApp) DownloadAll() ([]string, error) {
	u, err := a.CurrentUser()
	if err != nil {
		return nil, err
	}
	if err := a.persistOperation(u.Name); err != nil {
		return nil, err
	}
	songs, err := u.Incoming()
	if err != nil {
		return nil, a.track(err)
	}

	var downloaded []string
	for _, song := range songs {
		name, sender := song.Name(), song.Sender
		dst, err := song.Download()
		if err != nil {
			return downloaded, a.track(fmt.Errorf("downloading %s: %w", name, err))
		}
		if dst == "" {
			continue
		}
		a.record(database.TransferDownload, name, sender, dst)
		downloaded = append(downloaded, dst)
	}
	return downloaded, nil
}

// Ignore deletes the incoming songs called name without downloading them.
// It returns the number of songs ignored.
func (a *DTBApp) Ignore(name string) (int, error) {
	u, err := a.CurrentUser()
	if err != nil {
		return 0, err
	}
	if err := a.persistOperation(name); err != nil {
		return 0, err
	}
	songs, err := u.Incoming()
	if err != nil {
		return 0, a.track(err)
	}

	var count int
	for _, song := range songs {
		songName := song.Name()
		if !strings.EqualFold(songName, name) {
			continue
		}
		if err := song.Ignore(); err != nil {
			return count, a.track(err)
		}
		a.record(database.TransferIgnore, songName, song.Sender, "")
		count++
	}
	if count == 0 {
		return 0, a.track(fmt.Errorf("incoming song %q: %w", name, dtb.ErrNotFound))
	}
	return count, nil
}

// Cleanup reclaims unreferenced songs and stale directories of the current user.
func (a *DTBApp) Cleanup() (*dtb.CleanupResult, error) {
	u, err := a.CurrentUser()
	if err != nil {
		return nil, err
	}
	if err := a.persistOperation(u.Name); err != nil {
		return nil, err
	}
	result, err := u.Cleanup()
	return result, a.track(err)
}

// DeleteUser removes the current user and every mailbox held for it.
func (a *DTBApp) DeleteUser() (*dtb.User, error) {
	u, err := a.CurrentUser()
	if err != nil {
		return nil, err
	}
	if err := a.persistOperation(u.Name); err != nil {
		return nil, err
	}
	return u, a.track(u.Delete())
}

// Downloads returns the current user's downloads directory on this machine.
func (a *DTBApp) Downloads() (string, error) {
	u, err := a.CurrentUser()
	if err != nil {
		return "", err
	}
	return u.DownloadsPath()
}

// SetDownloads changes the current user's downloads directory on this machine.
func (a *DTBApp) SetDownloads(rawPath string) (string, error) {
	u, err := a.CurrentUser()
	if err != nil {
		return "", err
	}
	if err := a.persistOperation(rawPath); err != nil {
		return "", err
	}
	p, err := fs.ResolveDir(a.fs, rawPath)
	if err != nil {
		return "", a.track(err)
	}
	return p, a.track(u.SetDownloadsPath(p))
}

// History returns the most recent operations, newest first.
func (a *DTBApp) History(limit int) ([]*database.Operation, error) {
	return a.db.ListOperations(limit)
}

// Transfers returns the most recent song transfers, newest first.
func (a *DTBApp) Transfers(limit int) ([]*database.Transfer, error) {
	return a.db.ListTransfers(limit)
}

// RunDaemon downloads incoming songs until ctx is done. It polls every
// interval and, with useWatch, also reacts to changes in the mailboxes.
// report is called with the files of each pass that downloaded something.
func (a *DTBApp) RunDaemon(ctx context.Context, interval time.Duration, useWatch bool, report func([]string)) error {
	if interval <= 0 {
		interval = config.DefaultInterval * time.Second
	}

	var updates <-chan struct{}
	if useWatch {
		w, err := a.watchMailboxes()
		if err != nil {
			a.log.Warn("watching mailboxes failed, polling only", "error", err)
		} else {
			defer w.Close()
			updates = w.Updates()
		}
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		start := a.clock.Now()
		downloaded, err := a.DownloadAll()
		switch {
		case errors.Is(err, dtb.ErrNoDownloads), errors.Is(err, dtb.ErrNotFound):
			return err
		case err != nil:
			// The next pass may succeed; the failure stays in the log.
			a.log.Error("download pass failed", "error", err)
			a.op.Succeed()
		}
		if len(downloaded) > 0 {
			a.log.Info("download pass", "count", len(downloaded), "elapsed", a.clock.Now().Sub(start))
			if report != nil {
				report(downloaded)
			}
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		case <-updates:
		}
	}
}

func (a *DTBApp) watchMailboxes() (*watch.Watcher, error) {
	u, err := a.CurrentUser()
	if err != nil {
		return nil, err
	}
	friends, err := u.Friends()
	if err != nil {
		return nil, err
	}
	dirs := []string{u.Path()}
	for _, f := range friends {
		mailbox := filepath.Join(u.Path(), f.Name)
		if ok, _ := afero.IsDir(a.fs, mailbox); ok {
			dirs = append(dirs, mailbox)
		}
	}
	return watch.New(dirs, a.log)
}

// Close finalizes the operation and closes all resources.
func (a *DTBApp) Close() error {
	var firstErr error

	if err := a.op.Finish(a.db); err != nil {
		firstErr = err
	}

	if err := a.db.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("closing database: %w", err)
	}

	if a.logFile != nil {
		a.logFile.Close()
	}

	return firstErr
}
