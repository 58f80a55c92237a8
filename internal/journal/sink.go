package journal

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/obby/dirwatch/internal/watcher"
)

const insertTimeout = 2 * time.Second

// Sink appends the events of one watch session to the journal
type Sink struct {
	db        *DB
	sessionID uuid.UUID
}

// NewSink creates a sink for a new session
func NewSink(db *DB) *Sink {
	return &Sink{
		db:        db,
		sessionID: uuid.New(),
	}
}

// SessionID returns the ID stamped on every row this sink writes
func (s *Sink) SessionID() uuid.UUID {
	return s.sessionID
}

// Append stores ev
func (s *Sink) Append(ev watcher.ChangeEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), insertTimeout)
	defer cancel()

	_, err := s.db.Insert(ctx, s.sessionID, ev)
	return err
}
