// Package media reads audio tags so songs can be listed by artist and title
// instead of by file name.
package media

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"go.senan.xyz/taglib"
)

var validExts = map[string]bool{
	".mp3":  true,
	".wav":  true,
	".flac": true,
	".m4a":  true,
	".ogg":  true,
	".wma":  true,
	".aiff": true,
}

// Info holds the metadata shown for a song.
type Info struct {
	Artist string
	Title  string
	Length time.Duration
}

// Supported reports whether path has an audio extension taglib can read.
func Supported(path string) bool {
	return validExts[strings.ToLower(filepath.Ext(path))]
}

// Read extracts tags and properties from the audio file at path.
func Read(path string) (*Info, error) {
	if !Supported(path) {
		return nil, fmt.Errorf("file is not a supported audio format: %s", filepath.Ext(path))
	}

	tags, err := taglib.ReadTags(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read tags: %w", err)
	}
	props, err := taglib.ReadProperties(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read properties: %w", err)
	}

	return &Info{
		Artist: first(tags[taglib.Artist]),
		Title:  first(tags[taglib.Title]),
		Length: props.Length,
	}, nil
}

// Label formats info as "Artist - Title (m:ss)". It returns "" when the
// title is missing.
func (i *Info) Label() string {
	if i.Title == "" {
		return ""
	}
	label := i.Title
	if i.Artist != "" {
		label = i.Artist + " - " + label
	}
	if i.Length > 0 {
		secs := int(i.Length.Round(time.Second).Seconds())
		label += fmt.Sprintf(" (%d:%02d)", secs/60, secs%60)
	}
	return label
}

// DisplayName returns the tag label of the file at path, falling back to
// its base name when the file has no usable tags.
func DisplayName(path string) string {
	if info, err := Read(path); err == nil {
		if label := info.Label(); label != "" {
			return label
		}
	}
	return filepath.Base(path)
}

func first(values []string) string {
	if len(values) == 0 {
		return ""
	}
	return strings.TrimSpace(values[0])
}
