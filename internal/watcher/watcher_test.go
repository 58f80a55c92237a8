package watcher

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	waitFor = 3 * time.Second
	tick    = 10 * time.Millisecond
)

func touch(t *testing.T, path string) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, f.Close())
}

func startWatch(t *testing.T, root string, filter Filter, opts ...Option) (*Subscription, *collectSink) {
	t.Helper()
	sink := &collectSink{}
	sub, err := Start(WatchTarget{Root: root, Recursive: true}, filter, sink, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { sub.Stop() })
	return sub, sink
}

func waitForEvents(t *testing.T, sink *collectSink, n int) []ChangeEvent {
	t.Helper()
	require.Eventually(t, func() bool {
		return len(sink.snapshot()) >= n
	}, waitFor, tick)
	return sink.snapshot()
}

func TestStart_PathNotFound(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "no", "such", "dir")

	sub, err := Start(WatchTarget{Root: missing, Recursive: true}, nil, &collectSink{})

	assert.Nil(t, sub)
	var notFound *PathNotFoundError
	require.True(t, errors.As(err, &notFound))
	assert.Equal(t, missing, notFound.Path)
	assert.Equal(t, "The specified path does not exist: "+missing, err.Error())
}

func TestStart_RootIsFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "plain.txt")
	touch(t, file)

	_, err := Start(WatchTarget{Root: file, Recursive: true}, nil, &collectSink{})

	var subErr *SubscriptionError
	require.True(t, errors.As(err, &subErr))
	assert.Contains(t, err.Error(), "not a directory")
}

func TestWatcher_CreatedFile(t *testing.T) {
	root := t.TempDir()
	_, sink := startWatch(t, root, nil)

	path := filepath.Join(root, "x.txt")
	touch(t, path)

	events := waitForEvents(t, sink, 1)
	assert.Equal(t, Created, events[0].Kind)
	assert.Equal(t, path, events[0].Path)
	assert.False(t, events[0].ObservedAt.IsZero())
}

func TestWatcher_OrderedRecords(t *testing.T) {
	root := t.TempDir()
	_, sink := startWatch(t, root, nil)

	names := []string{"a.txt", "b.txt", "c.txt", "d.txt"}
	for _, name := range names {
		touch(t, filepath.Join(root, name))
	}

	events := waitForEvents(t, sink, len(names))
	require.Len(t, events, len(names))
	for i, name := range names {
		assert.Equal(t, Created, events[i].Kind)
		assert.Equal(t, filepath.Join(root, name), events[i].Path)
	}
}

func TestWatcher_CreateThenDeleteNotCoalesced(t *testing.T) {
	root := t.TempDir()
	_, sink := startWatch(t, root, nil)

	path := filepath.Join(root, "short-lived.txt")
	touch(t, path)
	require.NoError(t, os.Remove(path))

	events := waitForEvents(t, sink, 2)
	require.Len(t, events, 2)
	assert.Equal(t, []Kind{Created, Deleted}, kinds(events))
	assert.Equal(t, path, events[0].Path)
	assert.Equal(t, path, events[1].Path)
}

func TestWatcher_ModifiedFile(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "notes.txt")
	touch(t, path)
	_, sink := startWatch(t, root, nil)

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("hello\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	events := waitForEvents(t, sink, 1)
	assert.Equal(t, Modified, events[0].Kind)
	assert.Equal(t, path, events[0].Path)
}

func TestWatcher_MovedFile(t *testing.T) {
	root := t.TempDir()
	oldPath := filepath.Join(root, "old.txt")
	newPath := filepath.Join(root, "new.txt")
	touch(t, oldPath)
	_, sink := startWatch(t, root, nil)

	require.NoError(t, os.Rename(oldPath, newPath))

	events := waitForEvents(t, sink, 1)
	require.Len(t, events, 1)
	assert.Equal(t, Moved, events[0].Kind)
	assert.Equal(t, oldPath, events[0].Path)
	assert.Equal(t, newPath, events[0].DestPath)
}

func TestWatcher_MovedDirectoryReportsContents(t *testing.T) {
	root := t.TempDir()
	oldDir := filepath.Join(root, "olddir")
	newDir := filepath.Join(root, "newdir")
	require.NoError(t, os.MkdirAll(filepath.Join(oldDir, "nested"), 0o755))
	touch(t, filepath.Join(oldDir, "f.txt"))
	touch(t, filepath.Join(oldDir, "nested", "g.txt"))
	sub, sink := startWatch(t, root, nil)
	require.Equal(t, 3, sub.WatchedDirs())

	require.NoError(t, os.Rename(oldDir, newDir))

	events := waitForEvents(t, sink, 2)
	require.Len(t, events, 2)
	assert.Equal(t, []Kind{Moved, Moved}, kinds(events))
	assert.Equal(t, filepath.Join(oldDir, "f.txt"), events[0].Path)
	assert.Equal(t, filepath.Join(newDir, "f.txt"), events[0].DestPath)
	assert.Equal(t, filepath.Join(oldDir, "nested", "g.txt"), events[1].Path)
	assert.Equal(t, filepath.Join(newDir, "nested", "g.txt"), events[1].DestPath)
	assert.Equal(t, 3, sub.WatchedDirs())

	// The moved tree stays watched under its new name
	path := filepath.Join(newDir, "nested", "h.txt")
	touch(t, path)
	events = waitForEvents(t, sink, 3)
	assert.Equal(t, Created, events[2].Kind)
	assert.Equal(t, path, events[2].Path)
}

func TestWatcher_MovedOutOfTreeIsDeleted(t *testing.T) {
	root := t.TempDir()
	outside := t.TempDir()
	path := filepath.Join(root, "leaving.txt")
	touch(t, path)
	_, sink := startWatch(t, root, nil, WithMoveWindow(20*time.Millisecond))

	require.NoError(t, os.Rename(path, filepath.Join(outside, "leaving.txt")))

	events := waitForEvents(t, sink, 1)
	require.Len(t, events, 1)
	assert.Equal(t, Deleted, events[0].Kind)
	assert.Equal(t, path, events[0].Path)
}

func TestWatcher_IgnoredPaths(t *testing.T) {
	root := t.TempDir()
	obs := &countObserver{}
	_, sink := startWatch(t, root, substringFilter{"file_changes.log"}, WithObserver(obs))

	touch(t, filepath.Join(root, "file_changes.log"))
	marker := filepath.Join(root, "marker.txt")
	touch(t, marker)

	events := waitForEvents(t, sink, 1)
	require.Len(t, events, 1)
	assert.Equal(t, marker, events[0].Path)
	assert.Equal(t, 1, obs.count(ReasonIgnored))
}

func TestWatcher_MoveOntoIgnoredPathSuppressed(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "draft.txt")
	touch(t, src)
	_, sink := startWatch(t, root, substringFilter{"file_changes.log"})

	require.NoError(t, os.Rename(src, filepath.Join(root, "file_changes.log")))
	marker := filepath.Join(root, "marker.txt")
	touch(t, marker)

	events := waitForEvents(t, sink, 1)
	require.Len(t, events, 1)
	assert.Equal(t, marker, events[0].Path)
}

func TestWatcher_NewSubdirectoryIsWatched(t *testing.T) {
	root := t.TempDir()
	sub, sink := startWatch(t, root, nil)
	require.Equal(t, 1, sub.WatchedDirs())

	dir := filepath.Join(root, "sub")
	require.NoError(t, os.Mkdir(dir, 0o755))
	require.Eventually(t, func() bool { return sub.WatchedDirs() == 2 }, waitFor, tick)

	path := filepath.Join(dir, "y.txt")
	touch(t, path)

	waitForEvents(t, sink, 1)
	// Give a duplicate from the directory scan a chance to show up
	time.Sleep(100 * time.Millisecond)
	events := sink.snapshot()
	require.Len(t, events, 1)
	assert.Equal(t, Created, events[0].Kind)
	assert.Equal(t, path, events[0].Path)
}

func TestWatcher_ExistingTreeIsWatched(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0o755))
	sub, sink := startWatch(t, root, nil)
	assert.Equal(t, 3, sub.WatchedDirs())

	path := filepath.Join(nested, "deep.txt")
	touch(t, path)

	events := waitForEvents(t, sink, 1)
	assert.Equal(t, path, events[0].Path)
}

func TestWatcher_DirectoryEventsNotRecorded(t *testing.T) {
	root := t.TempDir()
	sub, sink := startWatch(t, root, nil)

	dir := filepath.Join(root, "tmpdir")
	require.NoError(t, os.Mkdir(dir, 0o755))
	require.Eventually(t, func() bool { return sub.WatchedDirs() == 2 }, waitFor, tick)
	require.NoError(t, os.Remove(dir))
	require.Eventually(t, func() bool { return sub.WatchedDirs() == 1 }, waitFor, tick)

	marker := filepath.Join(root, "marker.txt")
	touch(t, marker)

	events := waitForEvents(t, sink, 1)
	require.Len(t, events, 1)
	assert.Equal(t, marker, events[0].Path)
}

func TestWatcher_StopHaltsDelivery(t *testing.T) {
	root := t.TempDir()
	sub, sink := startWatch(t, root, nil)

	touch(t, filepath.Join(root, "before.txt"))
	waitForEvents(t, sink, 1)

	require.NoError(t, sub.Stop())
	require.NoError(t, sub.Stop())
	recorded := len(sink.snapshot())

	touch(t, filepath.Join(root, "after.txt"))
	time.Sleep(150 * time.Millisecond)
	assert.Len(t, sink.snapshot(), recorded)
}
