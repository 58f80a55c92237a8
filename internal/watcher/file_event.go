package watcher

import "time"

// Kind is the semantic type of a recorded change
type Kind int

// Kind constants
const (
	Created Kind = iota + 1
	Modified
	Deleted
	Moved
)

func (k Kind) String() string {
	switch k {
	case Created:
		return "Created"
	case Modified:
		return "Modified"
	case Deleted:
		return "Deleted"
	case Moved:
		return "Moved"
	default:
		return "Unknown"
	}
}

// ParseKind is the inverse of Kind.String
func ParseKind(s string) (Kind, bool) {
	for _, k := range []Kind{Created, Modified, Deleted, Moved} {
		if k.String() == s {
			return k, true
		}
	}
	return 0, false
}

// ChangeEvent represents a classified file system change
type ChangeEvent struct {
	Kind       Kind
	Path       string
	DestPath   string // for Moved events
	ObservedAt time.Time
	IsDir      bool
}

// Op is the operation carried by a raw notification
type Op int

// Op constants
const (
	OpCreate Op = iota + 1
	OpModify
	OpDelete
	OpMove
)

func (op Op) String() string {
	switch op {
	case OpCreate:
		return "create"
	case OpModify:
		return "modify"
	case OpDelete:
		return "delete"
	case OpMove:
		return "move"
	default:
		return "unknown"
	}
}

// Notification is a raw file system notification before classification
type Notification struct {
	Op         Op
	SrcPath    string
	DestPath   string // set for OpMove
	IsDir      bool
	ObservedAt time.Time
}

// WatchTarget is the directory tree a subscription covers
type WatchTarget struct {
	Root      string
	Recursive bool
}
