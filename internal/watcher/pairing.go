package watcher

import (
	"time"
)

// heldRename is the source half of a move waiting for its destination.
// fsnotify reports a move inside the tree as Rename(old) followed by
// Create(new); a Rename with no such Create moved out of the tree.
type heldRename struct {
	path   string
	wasDir bool
	at     time.Time
}

func (s *Subscription) holdRename(path string, now time.Time) {
	s.pending = &heldRename{
		path:   path,
		wasDir: s.isWatchedDir(path),
		at:     now,
	}
	if s.moveWindow == 0 {
		s.flushPending()
		return
	}
	s.startTimer(s.moveWindow)
}

// flushPending reports a held rename that found no destination as a delete
func (s *Subscription) flushPending() {
	held := s.pending
	if held == nil {
		return
	}
	s.clearPending()

	if held.wasDir {
		s.removeTree(held.path)
	}
	s.dispatch(Notification{
		Op:         OpDelete,
		SrcPath:    held.path,
		IsDir:      held.wasDir,
		ObservedAt: held.at,
	})
}

func (s *Subscription) clearPending() {
	s.pending = nil
	s.stopTimer()
}

func (s *Subscription) startTimer(d time.Duration) {
	if s.timer == nil {
		s.timer = time.NewTimer(d)
		return
	}
	s.stopTimer()
	s.timer.Reset(d)
}

func (s *Subscription) stopTimer() {
	if s.timer == nil {
		return
	}
	if !s.timer.Stop() {
		select {
		case <-s.timer.C:
		default:
		}
	}
}

// timerC returns the pairing deadline channel, or nil when nothing is held
// so the event loop's select never fires on it.
func (s *Subscription) timerC() <-chan time.Time {
	if s.pending == nil || s.timer == nil {
		return nil
	}
	return s.timer.C
}
