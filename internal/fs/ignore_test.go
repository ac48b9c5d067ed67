package fs

import (
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
)

func TestNewIgnoreMatcher(t *testing.T) {
	tests := []struct {
		name     string
		patterns []string
		want     int
	}{
		{name: "nil", patterns: nil, want: 0},
		{name: "blank lines and comments", patterns: []string{"", "  ", "# partial downloads", "*.part"}, want: 1},
		{name: "bare negation", patterns: []string{"!", "!*.m4a"}, want: 1},
		{name: "invalid glob", patterns: []string{"[mp3", "*.mp3"}, want: 1},
		{name: "leading slash", patterns: []string{"/Alice/*"}, want: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NewIgnoreMatcher(tt.patterns).Len(); got != tt.want {
				t.Errorf("Len() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestIgnoreMatcher_Match(t *testing.T) {
	mailbox := func(name string) string { return filepath.Join("Bob", "Alice", name) }

	tests := []struct {
		name     string
		patterns []string
		path     string
		want     bool
	}{
		{name: "base name glob", patterns: []string{"*.part"}, path: mailbox("song.part"), want: true},
		{name: "base name glob other extension", patterns: []string{"*.part"}, path: mailbox("song.yml"), want: false},
		{name: "exact base name", patterns: []string{".DS_Store"}, path: mailbox(".DS_Store"), want: true},
		{name: "base name in root", patterns: []string{"desktop.ini"}, path: "desktop.ini", want: true},
		{name: "anchored path", patterns: []string{"Bob/Alice/*"}, path: mailbox("x.yml"), want: true},
		{name: "anchored path other mailbox", patterns: []string{"Bob/Alice/*"}, path: filepath.Join("Bob", "Carol", "x.yml"), want: false},
		{name: "anchored star stays in one directory", patterns: []string{"Bob/*"}, path: mailbox("x.yml"), want: false},
		{name: "leading slash is anchored", patterns: []string{"/Bob/Alice/*.yml"}, path: mailbox("x.yml"), want: true},
		{name: "question mark", patterns: []string{"?.yml"}, path: mailbox("a.yml"), want: true},
		{name: "question mark is one character", patterns: []string{"?.yml"}, path: mailbox("ab.yml"), want: false},
		{name: "character class", patterns: []string{"*.[mp]art"}, path: mailbox("a.part"), want: true},
		{name: "no rules", patterns: nil, path: mailbox("a.yml"), want: false},
		{name: "empty path", patterns: []string{"*"}, path: "", want: false},
		{name: "negation re-includes", patterns: []string{"*.tmp", "!keep.tmp"}, path: mailbox("keep.tmp"), want: false},
		{name: "negation leaves others ignored", patterns: []string{"*.tmp", "!keep.tmp"}, path: mailbox("drop.tmp"), want: true},
		{name: "last match wins", patterns: []string{"*.tmp", "!keep.tmp", "Bob/Alice/*"}, path: mailbox("keep.tmp"), want: true},
		{name: "negation alone ignores nothing", patterns: []string{"!*.yml"}, path: mailbox("a.yml"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := NewIgnoreMatcher(tt.patterns).Match(tt.path); got != tt.want {
				t.Errorf("Match(%q) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}
}

func TestParseIgnoreFile(t *testing.T) {
	t.Run("returns raw lines", func(t *testing.T) {
		fsys := afero.NewMemMapFs()
		content := "*.part\n# sync client\n\n.sync*\n!keep.part\n"
		if err := afero.WriteFile(fsys, "/share/.dtbignore", []byte(content), 0644); err != nil {
			t.Fatalf("writing ignore file: %v", err)
		}

		lines, err := ParseIgnoreFile(fsys, "/share/.dtbignore")
		if err != nil {
			t.Fatalf("ParseIgnoreFile() error = %v", err)
		}
		if len(lines) != 5 {
			t.Fatalf("ParseIgnoreFile() = %d lines, want 5", len(lines))
		}
		if got := NewIgnoreMatcher(lines).Len(); got != 3 {
			t.Errorf("Len() = %d, want 3", got)
		}
	})

	t.Run("missing file", func(t *testing.T) {
		lines, err := ParseIgnoreFile(afero.NewMemMapFs(), "/share/.dtbignore")
		if err != nil {
			t.Fatalf("ParseIgnoreFile() error = %v", err)
		}
		if lines != nil {
			t.Errorf("ParseIgnoreFile() = %v, want nil", lines)
		}
	})
}

func TestNewShareIgnoreMatcher(t *testing.T) {
	fsys := afero.NewMemMapFs()
	if err := afero.WriteFile(fsys, "/share/.dtbignore", []byte("*.part\n!Thumbs.db\n"), 0644); err != nil {
		t.Fatalf("writing ignore file: %v", err)
	}

	m, err := NewShareIgnoreMatcher(fsys, "/share", []string{"Alice/Bob/*"})
	if err != nil {
		t.Fatalf("NewShareIgnoreMatcher() error = %v", err)
	}

	tests := []struct {
		path string
		want bool
	}{
		{path: filepath.Join("Bob", "Alice", ".DS_Store"), want: true},
		{path: filepath.Join("Bob", "Alice", ".dropbox.attr"), want: true},
		{path: filepath.Join("Bob", "Alice", "song.part"), want: true},
		{path: filepath.Join("Bob", "Alice", "Thumbs.db"), want: false},
		{path: filepath.Join("Alice", "Bob", "id.yml"), want: true},
		{path: filepath.Join("Bob", "Alice", "id.yml"), want: false},
	}
	for _, tt := range tests {
		if got := m.Match(tt.path); got != tt.want {
			t.Errorf("Match(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}
