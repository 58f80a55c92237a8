package session

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/obby/dirwatch/internal/metrics"
	"github.com/obby/dirwatch/internal/watcher"
)

// State is the lifecycle state of a watch session
type State int

// State constants
const (
	Idle State = iota
	Watching
	Stopping
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Watching:
		return "watching"
	case Stopping:
		return "stopping"
	case Stopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// ErrAlreadyRun is returned when Run is called on a used session
var ErrAlreadyRun = errors.New("session already run")

// Recorder receives change events and session notices
type Recorder interface {
	watcher.Sink
	Notice(msg string)
	Console(msg string)
}

// Option configures a Session
type Option func(*Session)

// WithLogger sets the diagnostic logger
func WithLogger(logger *zap.Logger) Option {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMoveWindow sets the rename pairing window passed to the watcher
func WithMoveWindow(d time.Duration) Option {
	return func(s *Session) {
		s.moveWindow = d
	}
}

// WithMetrics counts session activity. When textfile is non-empty the
// metrics are written there after the watcher stops.
func WithMetrics(m *metrics.Metrics, textfile string) Option {
	return func(s *Session) {
		s.metrics = m
		s.metricsFile = textfile
	}
}

// Session runs one watch of one directory from start to shutdown
type Session struct {
	recorder    Recorder
	filter      watcher.Filter
	logger      *zap.Logger
	moveWindow  time.Duration
	metrics     *metrics.Metrics
	metricsFile string

	mu       sync.Mutex
	started  bool
	state    State
	sub      *watcher.Subscription
	watching chan struct{}
}

// New creates an idle session
func New(rec Recorder, filter watcher.Filter, opts ...Option) *Session {
	s := &Session{
		recorder:   rec,
		filter:     filter,
		logger:     zap.NewNop(),
		moveWindow: 100 * time.Millisecond,
		watching:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State returns the current state
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Watching is closed once the session has entered the Watching state
func (s *Session) Watching() <-chan struct{} {
	return s.watching
}

// Subscription returns the running subscription, or nil outside Watching
func (s *Session) Subscription() *watcher.Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sub
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	prev := s.state
	s.state = state
	s.mu.Unlock()
	s.logger.Debug("session state", zap.Stringer("from", prev), zap.Stringer("to", state))
}

// Run watches pathArg (the working directory when empty) until ctx is
// cancelled. It returns *watcher.PathNotFoundError or
// *watcher.SubscriptionError if the watch cannot start, and nil after a
// clean shutdown.
func (s *Session) Run(ctx context.Context, pathArg string) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return ErrAlreadyRun
	}
	s.started = true
	s.mu.Unlock()

	if pathArg == "" {
		pathArg = "."
	}
	root, err := filepath.Abs(pathArg)
	if err != nil {
		s.setState(Stopped)
		return fmt.Errorf("resolve %s: %w", pathArg, err)
	}

	sub, err := s.start(root)
	if err != nil {
		var notFound *watcher.PathNotFoundError
		if errors.As(err, &notFound) {
			s.recorder.Notice(notFound.Error())
		} else {
			// The caller reports the returned error
			s.logger.Debug("failed to start watcher", zap.String("path", root), zap.Error(err))
		}
		s.setState(Stopped)
		return err
	}

	s.mu.Lock()
	s.sub = sub
	s.state = Watching
	s.mu.Unlock()
	close(s.watching)

	s.recorder.Notice("Started watching directory: " + root)
	s.recorder.Console("Press Ctrl+C to stop...")

	<-ctx.Done()

	s.stop(sub)
	return nil
}

func (s *Session) start(root string) (*watcher.Subscription, error) {
	var sink watcher.Sink = s.recorder
	opts := []watcher.Option{
		watcher.WithLogger(s.logger),
		watcher.WithMoveWindow(s.moveWindow),
	}
	if s.metrics != nil {
		sink = s.metrics.Wrap(s.recorder)
		opts = append(opts, watcher.WithObserver(s.metrics))
	}

	target := watcher.WatchTarget{Root: root, Recursive: true}
	return watcher.Start(target, s.filter, sink, opts...)
}

func (s *Session) stop(sub *watcher.Subscription) {
	s.setState(Stopping)

	if err := sub.Stop(); err != nil {
		s.logger.Warn("failed to release watcher", zap.Error(err))
	}
	s.recorder.Notice("Stopped watching directory")

	if s.metrics != nil && s.metricsFile != "" {
		if err := s.metrics.WriteTextfile(s.metricsFile); err != nil {
			s.logger.Warn("failed to write metrics", zap.Error(err))
		}
	}

	s.mu.Lock()
	s.sub = nil
	s.state = Stopped
	s.mu.Unlock()
}
