package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/obby/dirwatch/config"
	"github.com/obby/dirwatch/internal/journal"
	"github.com/obby/dirwatch/internal/metrics"
	"github.com/obby/dirwatch/internal/patterns"
	"github.com/obby/dirwatch/internal/recorder"
	"github.com/obby/dirwatch/internal/session"
	"github.com/obby/dirwatch/internal/watcher"
)

var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	flags := flag.NewFlagSet("dirwatch", flag.ContinueOnError)
	flags.SetOutput(stderr)
	flags.Usage = func() {
		fmt.Fprintf(stderr, "usage: dirwatch [flags] [directory]\n")
		flags.PrintDefaults()
	}

	var (
		configPath  = flags.String("config", "", "YAML config file (default $DIRWATCH_CONFIG)")
		logFile     = flags.String("log-file", "", "change log file (default "+config.DefaultLogFile+")")
		journalPath = flags.String("journal", "", "SQLite change journal (optional)")
		history     = flags.Int("history", 0, "print the last N journal entries and exit")
		showVersion = flags.Bool("version", false, "print version and exit")
	)
	if err := flags.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	if *showVersion {
		fmt.Fprintf(stdout, "dirwatch %s (built w/%s)\n", version, runtime.Version())
		return 0
	}

	// Load configuration
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "dirwatch: %v\n", err)
		return 1
	}
	if *logFile != "" {
		cfg.LogFile = *logFile
	}
	if *journalPath != "" {
		cfg.JournalPath = *journalPath
	}

	logger, err := newLogger(cfg.LogLevel, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "dirwatch: %v\n", err)
		return 1
	}
	defer logger.Sync()

	if *history > 0 {
		return printHistory(ctx, cfg.JournalPath, *history, stdout, stderr)
	}

	// Create path filter
	matcher, err := patterns.NewMatcher(cfg.IgnorePatterns(), cfg.IgnoreGlobs)
	if err != nil {
		fmt.Fprintf(stderr, "dirwatch: %v\n", err)
		return 1
	}

	m := metrics.New()
	recOpts := []recorder.Option{recorder.WithErrorHandler(m.SinkFailed)}

	if cfg.JournalPath != "" {
		db, err := journal.Open(cfg.JournalPath)
		if err != nil {
			fmt.Fprintf(stderr, "dirwatch: %v\n", err)
			return 1
		}
		defer db.Close()
		sink := journal.NewSink(db)
		logger.Debug("journal opened",
			zap.String("path", cfg.JournalPath),
			zap.Stringer("session", sink.SessionID()))
		recOpts = append(recOpts, recorder.WithJournal(sink))
	}

	// Create change recorder
	rec, err := recorder.Open(cfg.LogFile, stdout, recOpts...)
	if err != nil {
		fmt.Fprintf(stderr, "dirwatch: %v\n", err)
		return 1
	}
	defer rec.Close()

	sess := session.New(rec, matcher,
		session.WithLogger(logger),
		session.WithMoveWindow(time.Duration(cfg.MoveWindowMs)*time.Millisecond),
		session.WithMetrics(m, cfg.MetricsFile),
	)

	if err := sess.Run(ctx, flags.Arg(0)); err != nil {
		var notFound *watcher.PathNotFoundError
		if !errors.As(err, &notFound) {
			// A missing path has already been written to the change log
			fmt.Fprintf(stderr, "dirwatch: %v\n", err)
		}
		return 1
	}

	if err := rec.Sync(); err != nil {
		logger.Warn("failed to sync change log", zap.Error(err))
	}
	return 0
}

func newLogger(level string, out io.Writer) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, err
	}

	encCfg := zap.NewDevelopmentEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.AddSync(out), lvl)
	return zap.New(core).Named("dirwatch"), nil
}

func printHistory(ctx context.Context, path string, limit int, stdout, stderr io.Writer) int {
	if path == "" {
		fmt.Fprintln(stderr, "dirwatch: -history requires a journal (-journal or DIRWATCH_JOURNAL)")
		return 1
	}

	db, err := journal.Open(path)
	if err != nil {
		fmt.Fprintf(stderr, "dirwatch: %v\n", err)
		return 1
	}
	defer db.Close()

	entries, err := db.Recent(ctx, limit)
	if err != nil {
		fmt.Fprintf(stderr, "dirwatch: read journal: %v\n", err)
		return 1
	}

	// Oldest first, like the change log
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		kind, _ := watcher.ParseKind(e.Kind)
		ev := watcher.ChangeEvent{Kind: kind, Path: e.Path, DestPath: e.DestPath}
		fmt.Fprintf(stdout, "%s - %s\n", e.ObservedAt.Format(recorder.TimeLayout), recorder.FormatMessage(ev))
	}
	return 0
}
