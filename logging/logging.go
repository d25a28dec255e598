/*
Package logging builds the zerolog logger of the daemon: human readable console output and an optional rotating
log file.
*/
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

const consoleTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Defaults of the rotating log file.
const (
	DefaultMaxSizeMB  = 25
	DefaultMaxAgeDays = 7
	DefaultMaxBackups = 5
)

type Config struct {
	Level   string `yaml:"level"`
	Console *bool  `yaml:"console"`
	// JSON writes the console output as JSON lines instead of the human readable format.
	JSON bool       `yaml:"json"`
	File FileConfig `yaml:"file"`
}

// FileConfig configures the rotating log file. The file is written as JSON lines. If Path is empty, no file is
// written.
type FileConfig struct {
	Path       string `yaml:"path"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxAgeDays int    `yaml:"max_age_days"`
	MaxBackups int    `yaml:"max_backups"`
	Compress   bool   `yaml:"compress"`
}

func (c *Config) ApplyDefaults() {
	if c.Level == "" {
		c.Level = zerolog.InfoLevel.String()
	}
	if c.Console == nil {
		console := true
		c.Console = &console
	}
	if c.File.MaxSizeMB <= 0 {
		c.File.MaxSizeMB = DefaultMaxSizeMB
	}
	if c.File.MaxAgeDays <= 0 {
		c.File.MaxAgeDays = DefaultMaxAgeDays
	}
	if c.File.MaxBackups <= 0 {
		c.File.MaxBackups = DefaultMaxBackups
	}
}

func (c Config) Validate() error {
	if _, err := ParseLevel(c.Level); err != nil {
		return err
	}
	return nil
}

// ConsoleEnabled reports whether log output goes to the console. It is enabled unless explicitly disabled.
func (c Config) ConsoleEnabled() bool {
	return c.Console == nil || *c.Console
}

// ParseLevel parses a level name, case insensitive. The empty name is the info level.
func ParseLevel(name string) (zerolog.Level, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return zerolog.InfoLevel, nil
	}
	if name == "warning" {
		name = "warn"
	}
	level, err := zerolog.ParseLevel(name)
	if err != nil {
		return zerolog.NoLevel, fmt.Errorf("invalid log level %q", name)
	}
	return level, nil
}

// New creates a logger that writes to console and the log file, as configured. The returned closer closes the
// log file.
func New(cfg Config, console io.Writer) (zerolog.Logger, io.Closer, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return zerolog.Nop(), nopCloser{}, err
	}
	if console == nil {
		console = os.Stderr
	}

	zerolog.TimeFieldFormat = consoleTimeFormat
	zerolog.ErrorFieldName = "err"

	var writers []io.Writer
	if cfg.ConsoleEnabled() {
		if cfg.JSON {
			writers = append(writers, console)
		} else {
			writers = append(writers, zerolog.ConsoleWriter{Out: console, TimeFormat: consoleTimeFormat})
		}
	}
	var closer io.Closer = nopCloser{}
	if cfg.File.Path != "" {
		rotator := &lumberjack.Logger{
			Filename:   cfg.File.Path,
			MaxSize:    cfg.File.MaxSizeMB,
			MaxAge:     cfg.File.MaxAgeDays,
			MaxBackups: cfg.File.MaxBackups,
			Compress:   cfg.File.Compress,
		}
		writers = append(writers, rotator)
		closer = rotator
	}

	var out io.Writer
	switch len(writers) {
	case 0:
		return zerolog.Nop(), closer, nil
	case 1:
		out = writers[0]
	default:
		out = zerolog.MultiLevelWriter(writers...)
	}

	return zerolog.New(out).Level(level).With().Timestamp().Logger(), closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
