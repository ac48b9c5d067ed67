package dtb_test

import (
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dtb-go/internal/dtb"
	"dtb-go/internal/testutil"
)

const (
	fakeSong  = testutil.TestRoot + "/Jace/.dtb/drops/FakeSong.mp3"
	mailbox   = testutil.TestRoot + "/Me/Jace"
	downloads = testutil.TestDownloads
)

// songFixture lays out a canonical song, a link to it, a plain YAML file,
// a corrupt link and a broken link inside one mailbox.
func songFixture(t *testing.T, opts dtb.Options) *testutil.TestShare {
	t.Helper()
	ts := testutil.NewTestShare(t, opts)
	ts.AddFile(t, fakeSong, []byte("fake song"))
	ts.AddFile(t, mailbox+"/abc123.yml", []byte("link: ../../Jace/.dtb/drops/FakeSong.mp3\n"))
	ts.AddFile(t, mailbox+"/FakeFile.yml", []byte("name: not a link\n"))
	ts.AddFile(t, mailbox+"/corrupt.yml", []byte("link: [unclosed\n"))
	ts.AddFile(t, mailbox+"/broken.yml", []byte("link: ../../Jace/.dtb/drops/Gone.mp3\n"))
	return ts
}

func TestSong_Source(t *testing.T) {
	ts := songFixture(t, dtb.Options{})

	tests := []struct {
		name string
		path string
		want string
	}{
		{name: "canonical file", path: fakeSong, want: fakeSong},
		{name: "link", path: mailbox + "/abc123.yml", want: fakeSong},
		{name: "non-link YAML", path: mailbox + "/FakeFile.yml", want: mailbox + "/FakeFile.yml"},
		{name: "corrupt link", path: mailbox + "/corrupt.yml", want: mailbox + "/corrupt.yml"},
		{name: "broken link", path: mailbox + "/broken.yml", want: testutil.TestRoot + "/Jace/.dtb/drops/Gone.mp3"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			song := ts.Song(tt.path, "Jace", downloads)
			assert.Equal(t, tt.want, song.Source())
		})
	}
}

func TestSong_Link(t *testing.T) {
	ts := songFixture(t, dtb.Options{})
	song := ts.Song(fakeSong, "", "")

	link, err := song.Link(testutil.TestRoot + "/Empty/Jace")
	require.NoError(t, err)

	assert.Equal(t, testutil.TestRoot+"/Empty/Jace/id-1.yml", link.Path())
	assert.True(t, ts.Exists(link.Path()))
	assert.Equal(t, song.Path(), link.Source())
	assert.True(t, link.IsLink())
	assert.Equal(t, "FakeSong.mp3", link.Name())
}

func TestSong_Link_OfLink(t *testing.T) {
	ts := songFixture(t, dtb.Options{})
	song := ts.Song(mailbox+"/abc123.yml", "Jace", downloads)

	link, err := song.Link(testutil.TestRoot + "/Other/Jace")
	require.NoError(t, err)
	assert.Equal(t, fakeSong, link.Source())
}

func TestSong_Download(t *testing.T) {
	t.Run("canonical file is moved", func(t *testing.T) {
		ts := songFixture(t, dtb.Options{})
		song := ts.Song(fakeSong, "Jace", downloads)

		got, err := song.Download()
		require.NoError(t, err)

		assert.Equal(t, filepath.Join(downloads, "FakeSong.mp3"), got)
		assert.Equal(t, "fake song", string(ts.ReadFile(t, got)))
		assert.False(t, ts.Exists(fakeSong))
	})

	t.Run("link is followed and removed", func(t *testing.T) {
		ts := songFixture(t, dtb.Options{})
		song := ts.Song(mailbox+"/abc123.yml", "Jace", downloads)

		got, err := song.Download()
		require.NoError(t, err)

		assert.Equal(t, filepath.Join(downloads, "FakeSong.mp3"), got)
		assert.Equal(t, "fake song", string(ts.ReadFile(t, got)))
		assert.False(t, ts.Exists(mailbox+"/abc123.yml"))
		assert.True(t, ts.Exists(fakeSong), "canonical file must stay for other recipients")
	})

	t.Run("broken link is removed", func(t *testing.T) {
		ts := songFixture(t, dtb.Options{})
		song := ts.Song(mailbox+"/broken.yml", "Jace", downloads)

		got, err := song.Download()
		require.NoError(t, err)

		assert.Empty(t, got)
		assert.False(t, ts.Exists(mailbox+"/broken.yml"))
		assert.False(t, ts.Exists(downloads))
	})

	t.Run("broken link is kept when deferred", func(t *testing.T) {
		ts := songFixture(t, dtb.Options{BrokenLinks: dtb.BrokenLinksDefer})
		song := ts.Song(mailbox+"/broken.yml", "Jace", downloads)

		got, err := song.Download()
		require.NoError(t, err)

		assert.Empty(t, got)
		assert.True(t, ts.Exists(mailbox+"/broken.yml"))
	})

	t.Run("canonical file already in downloads is kept", func(t *testing.T) {
		ts := songFixture(t, dtb.Options{})
		ts.AddFile(t, mailbox+"/song.mp3", []byte("mailbox song"))
		song := ts.Song(mailbox+"/song.mp3", "Jace", mailbox)

		got, err := song.Download()
		require.NoError(t, err)

		assert.Equal(t, mailbox+"/song.mp3", got)
		assert.Equal(t, "mailbox song", string(ts.ReadFile(t, got)))
	})

	t.Run("link into the target's directory keeps the target", func(t *testing.T) {
		ts := songFixture(t, dtb.Options{})
		song := ts.Song(mailbox+"/abc123.yml", "Jace", filepath.Dir(fakeSong))

		got, err := song.Download()
		require.NoError(t, err)

		assert.Equal(t, fakeSong, got)
		assert.Equal(t, "fake song", string(ts.ReadFile(t, fakeSong)))
		assert.False(t, ts.Exists(mailbox+"/abc123.yml"))
	})

	t.Run("requires a downloads path", func(t *testing.T) {
		ts := songFixture(t, dtb.Options{})
		song := ts.Song(fakeSong, "Jace", "")

		_, err := song.Download()
		assert.ErrorIs(t, err, dtb.ErrNoDownloads)
		assert.True(t, ts.Exists(fakeSong))
	})
}

func TestSong_Download_IOError(t *testing.T) {
	ts := songFixture(t, dtb.Options{})
	readOnly := afero.NewReadOnlyFs(ts.FS)

	t.Run("logged and reported as nothing downloaded", func(t *testing.T) {
		share := dtb.NewShare(readOnly, testutil.TestRoot, ts.Identity, ts.IDs, dtb.NewNopLogger(), dtb.Options{})

		got, err := share.Song(fakeSong, "Jace", downloads).Download()
		require.NoError(t, err)
		assert.Empty(t, got)
		assert.True(t, ts.Exists(fakeSong))
	})

	t.Run("returned in strict mode", func(t *testing.T) {
		share := dtb.NewShare(readOnly, testutil.TestRoot, ts.Identity, ts.IDs, dtb.NewNopLogger(), dtb.Options{Strict: true})

		got, err := share.Song(fakeSong, "Jace", downloads).Download()
		assert.Error(t, err)
		assert.Empty(t, got)
		assert.True(t, ts.Exists(fakeSong))
	})
}

func TestSong_Ignore(t *testing.T) {
	ts := songFixture(t, dtb.Options{})
	song := ts.Song(mailbox+"/abc123.yml", "Jace", downloads)

	require.NoError(t, song.Ignore())
	assert.False(t, ts.Exists(song.Path()))
	assert.True(t, ts.Exists(fakeSong))

	// Already gone counts as ignored.
	assert.NoError(t, song.Ignore())
}

func TestSong_Broken(t *testing.T) {
	ts := songFixture(t, dtb.Options{})

	assert.True(t, ts.Song(mailbox+"/broken.yml", "Jace", "").Broken())
	assert.False(t, ts.Song(mailbox+"/abc123.yml", "Jace", "").Broken())
	assert.False(t, ts.Song(fakeSong, "Jace", "").Broken())
}

func TestParseBrokenLinkPolicy(t *testing.T) {
	got, err := dtb.ParseBrokenLinkPolicy("")
	require.NoError(t, err)
	assert.Equal(t, dtb.BrokenLinksDelete, got)

	got, err = dtb.ParseBrokenLinkPolicy("defer")
	require.NoError(t, err)
	assert.Equal(t, dtb.BrokenLinksDefer, got)

	_, err = dtb.ParseBrokenLinkPolicy("keep-forever")
	assert.Error(t, err)
}
