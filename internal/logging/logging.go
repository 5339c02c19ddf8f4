package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/keagan/kitchencam/internal/apperr"
	"github.com/keagan/kitchencam/internal/layout"
)

const (
	// ComponentField names the per-component child logger field.
	ComponentField = "component"
	// DefaultComponent labels lines logged outside any component.
	DefaultComponent = "dataGather"

	lineTimeFormat = "2006-01-02 15:04:05"
)

// Options controls logger construction.
type Options struct {
	// Root is the output root; the log goes to <root>/logs/<date>/.
	Root string
	// Day selects the dated log file. Zero means today.
	Day time.Time
	// Debug lowers the level to debug and echoes every line to Console.
	Debug bool
	// Console receives the debug echo. Defaults to stderr.
	Console io.Writer
}

// Init opens the daily log file and builds the process logger. The returned
// closer flushes and closes the file.
func Init(opts Options) (zerolog.Logger, io.Closer, error) {
	zerolog.TimeFieldFormat = time.RFC3339

	day := opts.Day
	if day.IsZero() {
		day = time.Now()
	}
	path := layout.LogFile(opts.Root, layout.DateStamp(day))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return zerolog.Nop(), nil, apperr.Filesystem("create log directory", filepath.Dir(path), err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return zerolog.Nop(), nil, apperr.Filesystem("open log file", path, err)
	}

	writers := []io.Writer{FileWriter(f)}
	if opts.Debug {
		console := opts.Console
		if console == nil {
			console = os.Stderr
		}
		writers = append(writers, zerolog.ConsoleWriter{
			Out:        console,
			TimeFormat: "15:04:05",
		})
	}

	logger := NewLogger(writers...).
		Level(levelFor(opts.Debug)).
		With().Str("run_id", uuid.NewString()).Logger()
	log.Logger = logger

	return logger, f, nil
}

func levelFor(debug bool) zerolog.Level {
	if debug {
		return zerolog.DebugLevel
	}
	return zerolog.InfoLevel
}

// FileWriter renders events as plain text lines:
// "timestamp - component - LEVEL - message key=value ...".
func FileWriter(out io.Writer) zerolog.ConsoleWriter {
	return zerolog.ConsoleWriter{
		Out:           out,
		NoColor:       true,
		PartsOrder:    []string{zerolog.TimestampFieldName, ComponentField, zerolog.LevelFieldName, zerolog.MessageFieldName},
		FieldsExclude: []string{ComponentField},
		FormatPrepare: func(evt map[string]interface{}) error {
			c, ok := evt[ComponentField].(string)
			if !ok || c == "" {
				c = DefaultComponent
			}
			evt[ComponentField] = c + " -"
			return nil
		},
		FormatTimestamp: func(i interface{}) string {
			s, _ := i.(string)
			t, err := time.Parse(zerolog.TimeFieldFormat, s)
			if err != nil {
				return s + " -"
			}
			return t.Local().Format(lineTimeFormat) + " -"
		},
		FormatLevel: func(i interface{}) string {
			if i == nil {
				return "???? -"
			}
			return strings.ToUpper(fmt.Sprint(i)) + " -"
		},
	}
}

// NewLogger creates a new logger with optional writers
func NewLogger(writers ...io.Writer) zerolog.Logger {
	if len(writers) == 0 {
		return log.Logger
	}

	if len(writers) == 1 {
		return zerolog.New(writers[0]).With().Timestamp().Logger()
	}

	multi := zerolog.MultiLevelWriter(writers...)
	return zerolog.New(multi).With().Timestamp().Logger()
}

// WithComponent creates a logger with a component field
func WithComponent(logger zerolog.Logger, component string) zerolog.Logger {
	return logger.With().Str(ComponentField, component).Logger()
}
