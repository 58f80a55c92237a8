package watcher

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const defaultMoveWindow = 100 * time.Millisecond

// Sink receives classified events in delivery order
type Sink interface {
	Record(ev ChangeEvent)
}

// Observer is notified about watcher internals. Implementations must be
// cheap; they are called from the event loop.
type Observer interface {
	NotificationSuppressed(reason string)
	WatchedDirectories(n int)
}

// Option configures a subscription
type Option func(*Subscription)

// WithLogger sets the diagnostic logger
func WithLogger(logger *zap.Logger) Option {
	return func(s *Subscription) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMoveWindow sets how long a rename waits for its matching create
func WithMoveWindow(d time.Duration) Option {
	return func(s *Subscription) {
		if d >= 0 {
			s.moveWindow = d
		}
	}
}

// WithObserver registers an observer for suppression and watch counts
func WithObserver(o Observer) Option {
	return func(s *Subscription) {
		s.observer = o
	}
}

// Subscription is a running recursive watch on a directory tree
type Subscription struct {
	target     WatchTarget
	fsw        *fsnotify.Watcher
	filter     Filter
	sink       Sink
	observer   Observer
	logger     *zap.Logger
	moveWindow time.Duration

	// owned by the event loop after Start returns
	watching map[string]bool
	goneDirs map[string]bool
	scanned  map[string]bool
	pending  *heldRename
	timer    *time.Timer

	mu       sync.Mutex
	dirCount int

	stopOnce sync.Once
	stopErr  error
	done     chan struct{}
}

// Start subscribes to every directory under target.Root and begins
// delivering classified events to sink. It fails with *PathNotFoundError
// before any OS resources are created if the root does not exist.
func Start(target WatchTarget, filter Filter, sink Sink, opts ...Option) (*Subscription, error) {
	root, err := filepath.Abs(target.Root)
	if err != nil {
		return nil, &SubscriptionError{Path: target.Root, Err: err}
	}
	target.Root = root

	info, err := os.Stat(root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, &PathNotFoundError{Path: root}
		}
		return nil, &SubscriptionError{Path: root, Err: err}
	}
	if !info.IsDir() {
		return nil, &SubscriptionError{Path: root, Err: errors.New("not a directory")}
	}

	s := &Subscription{
		target:     target,
		filter:     filter,
		sink:       sink,
		logger:     zap.NewNop(),
		moveWindow: defaultMoveWindow,
		watching:   make(map[string]bool),
		goneDirs:   make(map[string]bool),
		scanned:    make(map[string]bool),
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, &SubscriptionError{Path: root, Err: err}
	}
	s.fsw = fsw

	if target.Recursive {
		err = s.addTree(root, nil)
	} else {
		err = s.addDir(root)
	}
	if err != nil {
		fsw.Close()
		return nil, &SubscriptionError{Path: root, Err: err}
	}

	s.logger.Debug("subscription started",
		zap.String("root", root),
		zap.Int("directories", len(s.watching)))

	go s.run()
	return s, nil
}

// Target returns the resolved watch target
func (s *Subscription) Target() WatchTarget {
	return s.target
}

// WatchedDirs returns the number of directories currently watched
func (s *Subscription) WatchedDirs() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dirCount
}

// Stop releases the OS subscription and waits for the event loop to exit.
// No events reach the sink after Stop returns. Calls after the first are no-ops.
func (s *Subscription) Stop() error {
	s.stopOnce.Do(func() {
		s.stopErr = s.fsw.Close()
		<-s.done
	})
	return s.stopErr
}

// run processes fsnotify events on a single goroutine so the sink sees
// them in the order the OS delivered them.
func (s *Subscription) run() {
	defer close(s.done)

	events := s.fsw.Events
	errs := s.fsw.Errors
	for events != nil {
		select {
		case event, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			s.handleEvent(event)
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			s.logger.Warn("watcher error", zap.Error(err))
		case <-s.timerC():
			s.flushPending()
		}
	}

	s.flushPending()
	s.stopTimer()
}

// handleEvent handles a single fsnotify event
func (s *Subscription) handleEvent(event fsnotify.Event) {
	now := time.Now()
	path := filepath.Clean(event.Name)

	// A held rename pairs only with the create that immediately follows it.
	if s.pending != nil {
		if event.Has(fsnotify.Create) && now.Sub(s.pending.at) <= s.moveWindow {
			held := s.pending
			s.clearPending()
			s.handleMove(held, path, now)
			return
		}
		s.flushPending()
	}

	// A scanned file's duplicate Create, when there is one, precedes any
	// other event for it, so the first other event ends the dedup window.
	if !event.Has(fsnotify.Create) {
		delete(s.scanned, path)
	}

	switch {
	case event.Has(fsnotify.Create):
		s.handleCreate(path, now)
	case event.Has(fsnotify.Write):
		s.dispatch(Notification{Op: OpModify, SrcPath: path, IsDir: isDir(path), ObservedAt: now})
	case event.Has(fsnotify.Remove):
		wasDir := s.isWatchedDir(path)
		if wasDir {
			s.removeTree(path)
		}
		s.dispatch(Notification{Op: OpDelete, SrcPath: path, IsDir: wasDir, ObservedAt: now})
	case event.Has(fsnotify.Rename):
		s.holdRename(path, now)
	default:
		s.decodeFailed(&NotificationDecodeError{Event: event})
	}
}

func (s *Subscription) handleCreate(path string, now time.Time) {
	delete(s.goneDirs, path)

	// A file created between adding the watch on its new parent and
	// scanning that parent is seen by both; the scan already reported it.
	if s.scanned[path] {
		delete(s.scanned, path)
		return
	}

	dir := isDir(path)
	s.dispatch(Notification{Op: OpCreate, SrcPath: path, IsDir: dir, ObservedAt: now})
	if !dir || !s.target.Recursive {
		return
	}

	// Files written before the new directory was watched produced no
	// events of their own, so report what the walk finds.
	var found []string
	if err := s.addTree(path, &found); err != nil {
		s.logger.Warn("failed to watch new directory", zap.String("path", path), zap.Error(err))
	}
	for _, f := range found {
		if s.scanned[f] {
			continue
		}
		s.scanned[f] = true
		s.dispatch(Notification{Op: OpCreate, SrcPath: f, ObservedAt: now})
	}
}

func (s *Subscription) handleMove(held *heldRename, dest string, now time.Time) {
	destIsDir := isDir(dest)
	if held.wasDir {
		s.removeTree(held.path)
	}

	// A moved directory produces no events for its contents, so each file
	// found under the destination is reported as moved from the old tree.
	var found []string
	if destIsDir && s.target.Recursive {
		var collect *[]string
		if held.wasDir {
			collect = &found
		}
		if err := s.addTree(dest, collect); err != nil {
			s.logger.Warn("failed to watch moved directory", zap.String("path", dest), zap.Error(err))
		}
	}
	s.dispatch(Notification{
		Op:         OpMove,
		SrcPath:    held.path,
		DestPath:   dest,
		IsDir:      held.wasDir || destIsDir,
		ObservedAt: now,
	})

	for _, f := range found {
		rel, err := filepath.Rel(dest, f)
		if err != nil {
			continue
		}
		s.dispatch(Notification{
			Op:         OpMove,
			SrcPath:    filepath.Join(held.path, rel),
			DestPath:   f,
			ObservedAt: now,
		})
	}
}

func (s *Subscription) dispatch(n Notification) {
	ev, reason := classify(n, s.filter)
	if reason != "" {
		if s.observer != nil {
			s.observer.NotificationSuppressed(reason)
		}
		return
	}
	s.sink.Record(ev)
}

func (s *Subscription) decodeFailed(err *NotificationDecodeError) {
	s.logger.Debug("dropping notification", zap.Error(err))
	if s.observer != nil {
		s.observer.NotificationSuppressed(ReasonUnsupported)
	}
}

func isDir(path string) bool {
	info, err := os.Lstat(path)
	return err == nil && info.IsDir()
}
