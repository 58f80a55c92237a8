package metrics

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/obby/dirwatch/internal/recorder"
	"github.com/obby/dirwatch/internal/watcher"
)

type sliceSink struct {
	events []watcher.ChangeEvent
}

func (s *sliceSink) Record(ev watcher.ChangeEvent) {
	s.events = append(s.events, ev)
}

func TestMetrics_CountingSink(t *testing.T) {
	m := New()
	next := &sliceSink{}
	sink := m.Wrap(next)

	sink.Record(watcher.ChangeEvent{Kind: watcher.Created, Path: "/w/a"})
	sink.Record(watcher.ChangeEvent{Kind: watcher.Created, Path: "/w/b"})
	sink.Record(watcher.ChangeEvent{Kind: watcher.Deleted, Path: "/w/a"})

	assert.Len(t, next.events, 3)
	assert.Equal(t, float64(2), testutil.ToFloat64(m.changesRecorded.WithLabelValues("Created")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.changesRecorded.WithLabelValues("Deleted")))
}

func TestMetrics_Observer(t *testing.T) {
	m := New()
	var _ watcher.Observer = m

	m.NotificationSuppressed(watcher.ReasonDirectory)
	m.NotificationSuppressed(watcher.ReasonDirectory)
	m.NotificationSuppressed(watcher.ReasonIgnored)
	m.WatchedDirectories(4)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.suppressed.WithLabelValues(watcher.ReasonDirectory)))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.suppressed.WithLabelValues(watcher.ReasonIgnored)))
	assert.Equal(t, float64(4), testutil.ToFloat64(m.watchedDirs))
}

func TestMetrics_SinkFailed(t *testing.T) {
	m := New()
	m.SinkFailed(&recorder.RecordSinkError{Sink: recorder.SinkLogFile, Err: errors.New("disk full")})

	assert.Equal(t, float64(1), testutil.ToFloat64(m.sinkErrors.WithLabelValues(recorder.SinkLogFile)))
}

func TestMetrics_WriteTextfile(t *testing.T) {
	m := New()
	m.ChangeRecorded(watcher.Modified)
	m.WatchedDirectories(2)

	path := filepath.Join(t.TempDir(), "dirwatch.prom")
	require.NoError(t, m.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `dirwatch_changes_recorded_total{kind="Modified"} 1`)
	assert.Contains(t, string(data), "dirwatch_watched_directories 2")
}
