package testutil

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"

	"dtb-go/internal/dtb"
)

const (
	// TestRoot is the share root of every TestShare.
	TestRoot = "/home/user/Dropbox/DropTheBeat"

	// TestDownloads is the default downloads directory of every TestShare.
	TestDownloads = "/home/user/Downloads"
)

// TestShare is a share on an in-memory filesystem with stubbed identity
// and deterministic link names.
type TestShare struct {
	*dtb.Share
	FS       afero.Fs
	Identity *StubIdentity
	IDs      *StubIDGenerator
}

// NewTestShare creates an empty share root in memory. The machine identity
// starts as ("PC", "MrTemp").
func NewTestShare(t *testing.T, opts dtb.Options) *TestShare {
	t.Helper()

	fs := afero.NewMemMapFs()
	if err := fs.MkdirAll(TestRoot, 0755); err != nil {
		t.Fatalf("creating share root: %v", err)
	}
	if opts.DefaultDownloads == "" {
		opts.DefaultDownloads = TestDownloads
	}

	ident := NewStubIdentity("PC", "MrTemp")
	ids := NewStubIDGenerator()
	return &TestShare{
		Share:    dtb.NewShare(fs, TestRoot, ident, ids, dtb.NewNopLogger(), opts),
		FS:       fs,
		Identity: ident,
		IDs:      ids,
	}
}

// AddFile writes a file, creating parent directories.
func (ts *TestShare) AddFile(t *testing.T, path string, content []byte) {
	t.Helper()
	if err := ts.FS.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("creating %s: %v", filepath.Dir(path), err)
	}
	if err := afero.WriteFile(ts.FS, path, content, 0644); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}
}

// AddDirectory creates a directory and its parents.
func (ts *TestShare) AddDirectory(t *testing.T, path string) {
	t.Helper()
	if err := ts.FS.MkdirAll(path, 0755); err != nil {
		t.Fatalf("creating %s: %v", path, err)
	}
}

// Exists reports whether path is present.
func (ts *TestShare) Exists(path string) bool {
	ok, _ := afero.Exists(ts.FS, path)
	return ok
}

// IsDir reports whether path is a directory.
func (ts *TestShare) IsDir(path string) bool {
	ok, _ := afero.IsDir(ts.FS, path)
	return ok
}

// ReadFile returns the content at path or fails the test.
func (ts *TestShare) ReadFile(t *testing.T, path string) []byte {
	t.Helper()
	data, err := afero.ReadFile(ts.FS, path)
	if err != nil {
		t.Fatalf("reading %s: %v", path, err)
	}
	return data
}

// Checksum returns the SHA-256 of the file at path as hex, to compare a
// downloaded song with the one that was shared.
func (ts *TestShare) Checksum(t *testing.T, path string) string {
	t.Helper()
	sum := sha256.Sum256(ts.ReadFile(t, path))
	return hex.EncodeToString(sum[:])
}

// NewUser creates a user as the given machine and fails the test on error.
func (ts *TestShare) NewUser(t *testing.T, name, computer, account string) *dtb.User {
	t.Helper()
	ts.Identity.Set(computer, account)
	u, err := ts.Share.NewUser(name, "")
	if err != nil {
		t.Fatalf("NewUser(%s) error = %v", name, err)
	}
	return u
}
