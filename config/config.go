package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

// DefaultLogFile is the change log written in the working directory
const DefaultLogFile = "file_changes.log"

// Config holds the configuration for the directory watcher
type Config struct {
	LogFile      string   `yaml:"log_file"`
	LogLevel     string   `yaml:"log_level"`
	Ignore       []string `yaml:"ignore"`
	IgnoreGlobs  []string `yaml:"ignore_globs"`
	MoveWindowMs int      `yaml:"move_window_ms"`
	JournalPath  string   `yaml:"journal_path"`
	MetricsFile  string   `yaml:"metrics_file"`
}

// Default returns the configuration used when nothing else is set
func Default() *Config {
	return &Config{
		LogFile:      DefaultLogFile,
		LogLevel:     "info",
		MoveWindowMs: 100,
	}
}

// LoadConfig loads configuration from an optional YAML file and then
// applies environment variable overrides. An empty path falls back to
// DIRWATCH_CONFIG; if that is empty too only defaults and env are used.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv("DIRWATCH_CONFIG")
	}
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.loadEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func (c *Config) loadEnv() {
	if lf := os.Getenv("DIRWATCH_LOG_FILE"); lf != "" {
		c.LogFile = lf
	}

	if ll := os.Getenv("LOG_LEVEL"); ll != "" {
		c.LogLevel = ll
	}

	if globs := os.Getenv("DIRWATCH_IGNORE_GLOBS"); globs != "" {
		c.IgnoreGlobs = append(c.IgnoreGlobs, splitList(globs)...)
	}

	if mwStr := os.Getenv("DIRWATCH_MOVE_WINDOW_MS"); mwStr != "" {
		if mw, err := strconv.Atoi(mwStr); err == nil {
			c.MoveWindowMs = mw
		}
	}

	if jp := os.Getenv("DIRWATCH_JOURNAL"); jp != "" {
		c.JournalPath = jp
	}

	if mf := os.Getenv("DIRWATCH_METRICS_FILE"); mf != "" {
		c.MetricsFile = mf
	}
}

// Validate checks that the configuration is usable
func (c *Config) Validate() error {
	if strings.TrimSpace(c.LogFile) == "" {
		return fmt.Errorf("config: log_file must not be empty")
	}
	if c.MoveWindowMs < 0 {
		return fmt.Errorf("config: move_window_ms must be >= 0, got %d", c.MoveWindowMs)
	}
	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("config: invalid log_level %q", c.LogLevel)
	}
	return nil
}

// IgnorePatterns returns the substring ignore rules. The base name of the
// change log is always included so the watcher never records its own writes.
// The journal and metrics files are included when configured; the journal
// base name also covers its -wal and -shm companions.
func (c *Config) IgnorePatterns() []string {
	patterns := make([]string, 0, len(c.Ignore)+3)
	patterns = append(patterns, filepath.Base(c.LogFile))
	for _, own := range []string{c.JournalPath, c.MetricsFile} {
		if own != "" {
			patterns = append(patterns, filepath.Base(own))
		}
	}
	patterns = append(patterns, c.Ignore...)
	return patterns
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
