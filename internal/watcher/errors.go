package watcher

import (
	"fmt"

	"github.com/fsnotify/fsnotify"
)

// PathNotFoundError is returned when the watch root does not exist
type PathNotFoundError struct {
	Path string
}

func (e *PathNotFoundError) Error() string {
	return fmt.Sprintf("The specified path does not exist: %s", e.Path)
}

// SubscriptionError is returned when the recursive watch cannot be established
type SubscriptionError struct {
	Path string
	Err  error
}

func (e *SubscriptionError) Error() string {
	return fmt.Sprintf("failed to watch %s: %v", e.Path, e.Err)
}

func (e *SubscriptionError) Unwrap() error {
	return e.Err
}

// NotificationDecodeError marks an fsnotify event that maps to no supported
// operation, e.g. a chmod-only change.
type NotificationDecodeError struct {
	Event fsnotify.Event
}

func (e *NotificationDecodeError) Error() string {
	return fmt.Sprintf("unsupported notification %s on %s", e.Event.Op, e.Event.Name)
}
