package recorder

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/obby/dirwatch/internal/watcher"
	"go.uber.org/zap/zapcore"
)

// TimeLayout is the timestamp layout of every change log line
const TimeLayout = "2006-01-02 15:04:05"

// Sink names used in RecordSinkError
const (
	SinkLogFile = "log file"
	SinkJournal = "journal"
)

// Journal is an optional structured sink for change events
type Journal interface {
	Append(ev watcher.ChangeEvent) error
}

// RecordSinkError reports a failed write to one of the recorder's sinks
type RecordSinkError struct {
	Sink string
	Err  error
}

func (e *RecordSinkError) Error() string {
	return fmt.Sprintf("write %s: %v", e.Sink, e.Err)
}

func (e *RecordSinkError) Unwrap() error {
	return e.Err
}

// Option configures a Recorder
type Option func(*Recorder)

// WithJournal adds a journal sink written after the log file and console
func WithJournal(j Journal) Option {
	return func(r *Recorder) {
		r.journal = j
	}
}

// WithErrorHandler is called for every sink failure, not only the first
func WithErrorHandler(fn func(*RecordSinkError)) Option {
	return func(r *Recorder) {
		r.onError = fn
	}
}

// WithClock overrides the clock used for session notices
func WithClock(now func() time.Time) Option {
	return func(r *Recorder) {
		r.now = now
	}
}

// Recorder writes change lines to an append-only log file and mirrors
// them to a console stream
type Recorder struct {
	mu       sync.Mutex
	file     zapcore.Core
	console  zapcore.Core
	journal  Journal
	onError  func(*RecordSinkError)
	now      func() time.Time
	reported map[string]bool
	closer   io.Closer
}

// Open opens logPath in append mode and returns a recorder that mirrors
// every line to console
func Open(logPath string, console io.Writer, opts ...Option) (*Recorder, error) {
	f, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open change log: %w", err)
	}
	r := New(f, console, opts...)
	r.closer = f
	return r, nil
}

// New creates a recorder over arbitrary writers
func New(file, console io.Writer, opts ...Option) *Recorder {
	enc := zapcore.NewConsoleEncoder(encoderConfig())
	r := &Recorder{
		file:     zapcore.NewCore(enc, zapcore.AddSync(file), zapcore.InfoLevel),
		console:  zapcore.NewCore(enc.Clone(), zapcore.AddSync(console), zapcore.InfoLevel),
		now:      time.Now,
		reported: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func encoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		TimeKey:          "time",
		MessageKey:       "msg",
		LineEnding:       zapcore.DefaultLineEnding,
		EncodeTime:       zapcore.TimeEncoderOfLayout(TimeLayout),
		EncodeDuration:   zapcore.StringDurationEncoder,
		ConsoleSeparator: " - ",
	}
}

// FormatMessage returns the log message for an event, without timestamp
func FormatMessage(ev watcher.ChangeEvent) string {
	if ev.Kind == watcher.Moved {
		return fmt.Sprintf("Moved/Renamed: %s -> %s", ev.Path, ev.DestPath)
	}
	return fmt.Sprintf("%s: %s", ev.Kind, ev.Path)
}

// Record writes one change event to every sink
func (r *Recorder) Record(ev watcher.ChangeEvent) {
	at := ev.ObservedAt
	if at.IsZero() {
		at = r.now()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.write(at, FormatMessage(ev))

	if r.journal != nil {
		if err := r.journal.Append(ev); err != nil {
			r.sinkFailed(at, &RecordSinkError{Sink: SinkJournal, Err: err})
		}
	}
}

// Notice writes a session message to the log file and console
func (r *Recorder) Notice(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.write(r.now(), msg)
}

// Console writes a message to the console only
func (r *Recorder) Console(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.console.Write(zapcore.Entry{Level: zapcore.InfoLevel, Time: r.now(), Message: msg}, nil)
}

func (r *Recorder) write(at time.Time, msg string) {
	entry := zapcore.Entry{Level: zapcore.InfoLevel, Time: at, Message: msg}

	// The log file comes first; a failure there must not cost the console line.
	fileErr := r.file.Write(entry, nil)
	r.console.Write(entry, nil)

	if fileErr != nil {
		r.sinkFailed(at, &RecordSinkError{Sink: SinkLogFile, Err: fileErr})
	}
}

// sinkFailed must be called with r.mu held
func (r *Recorder) sinkFailed(at time.Time, err *RecordSinkError) {
	if r.onError != nil {
		r.onError(err)
	}
	if r.reported[err.Sink] {
		return
	}
	r.reported[err.Sink] = true

	msg := "Failed to write change log: " + err.Err.Error()
	if err.Sink == SinkJournal {
		msg = "Failed to write change journal: " + err.Err.Error()
	}
	r.console.Write(zapcore.Entry{Level: zapcore.ErrorLevel, Time: at, Message: msg}, nil)
}

// Sync flushes both sinks
func (r *Recorder) Sync() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	fileErr := r.file.Sync()
	r.console.Sync()
	return fileErr
}

// Close closes the log file if Open created it
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closer == nil {
		return nil
	}
	err := r.closer.Close()
	r.closer = nil
	return err
}
