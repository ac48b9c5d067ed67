package watch

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dtb-go/internal/dtb"
)

func TestCombineUpdates(t *testing.T) {
	events := make(chan fsnotify.Event)
	combined := combineUpdates(events)

	for i := 0; i < 5; i++ {
		events <- fsnotify.Event{Name: "song.mp3", Op: fsnotify.Write}
	}
	close(events)

	var got int
	for range combined {
		got++
	}
	assert.Equal(t, 1, got, "bursts should be coalesced")
}

func TestWatcher_SignalsNewSongs(t *testing.T) {
	dir := t.TempDir()
	mailbox := filepath.Join(dir, "Alice")
	require.NoError(t, os.Mkdir(mailbox, 0755))

	w, err := New([]string{dir, mailbox}, dtb.NewNopLogger())
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, os.WriteFile(filepath.Join(mailbox, "song.mp3"), []byte("x"), 0644))
	waitForUpdate(t, w)
}

func TestWatcher_FollowsNewMailboxes(t *testing.T) {
	dir := t.TempDir()

	w, err := New([]string{dir}, dtb.NewNopLogger())
	require.NoError(t, err)
	defer w.Close()

	mailbox := filepath.Join(dir, "Bob")
	require.NoError(t, os.Mkdir(mailbox, 0755))
	waitForUpdate(t, w)

	// Give the watcher a moment to add the new directory before writing into it.
	time.Sleep(100 * time.Millisecond)
	drain(w)

	require.NoError(t, os.WriteFile(filepath.Join(mailbox, "song.mp3"), []byte("x"), 0644))
	waitForUpdate(t, w)
}

func TestNew_MissingDirectory(t *testing.T) {
	_, err := New([]string{filepath.Join(t.TempDir(), "missing")}, dtb.NewNopLogger())
	assert.Error(t, err)
}

func waitForUpdate(t *testing.T, w *Watcher) {
	t.Helper()
	select {
	case <-w.Updates():
	case <-time.After(5 * time.Second):
		t.Fatal("no update received")
	}
}

func drain(w *Watcher) {
	for {
		select {
		case <-w.Updates():
		default:
			return
		}
	}
}
