package watcher

// Filter decides whether a path is excluded from recording
type Filter interface {
	ShouldIgnore(path string) bool
}

// Suppression reasons reported to an Observer
const (
	ReasonDirectory   = "directory"
	ReasonIgnored     = "ignored"
	ReasonUnsupported = "unsupported"
)

// Classify maps a raw notification to a ChangeEvent. It returns false when
// the notification is for a directory, touches an ignored path, or carries
// an unsupported operation. Each call is independent of any other.
func Classify(n Notification, filter Filter) (ChangeEvent, bool) {
	ev, reason := classify(n, filter)
	return ev, reason == ""
}

func classify(n Notification, filter Filter) (ChangeEvent, string) {
	var kind Kind
	switch n.Op {
	case OpCreate:
		kind = Created
	case OpModify:
		kind = Modified
	case OpDelete:
		kind = Deleted
	case OpMove:
		kind = Moved
	default:
		return ChangeEvent{}, ReasonUnsupported
	}

	if n.IsDir {
		return ChangeEvent{}, ReasonDirectory
	}

	if ignored(filter, n.SrcPath) {
		return ChangeEvent{}, ReasonIgnored
	}
	if kind == Moved && ignored(filter, n.DestPath) {
		return ChangeEvent{}, ReasonIgnored
	}

	ev := ChangeEvent{
		Kind:       kind,
		Path:       n.SrcPath,
		ObservedAt: n.ObservedAt,
	}
	if kind == Moved {
		ev.DestPath = n.DestPath
	}
	return ev, ""
}

func ignored(filter Filter, path string) bool {
	return filter != nil && filter.ShouldIgnore(path)
}
