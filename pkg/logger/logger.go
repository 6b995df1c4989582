package logger

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var pid = os.Getpid()

// Logger is a thin zerolog wrapper every component gets a copy of.
type Logger struct {
	logger *zerolog.Logger
}

func level(debug bool) zerolog.Level {
	if debug {
		return zerolog.DebugLevel
	}
	return zerolog.InfoLevel
}

// New makes a JSON logger writing into w (stderr when nil).
func New(debug bool, w io.Writer) *Logger {
	if w == nil {
		w = os.Stderr
	}
	zerolog.SetGlobalLevel(level(debug))
	l := zerolog.New(w).With().Timestamp().Int("pid", pid).Logger()
	return &Logger{logger: &l}
}

// NewConsole makes a human-readable logger.
// The m (module) and c (component name) fields are printed as columns
// before the message.
func NewConsole(debug bool, tag string, noColor bool, w io.Writer) *Logger {
	if w == nil {
		w = os.Stderr
	}
	zerolog.SetGlobalLevel(level(debug))
	zerolog.TimeFieldFormat = time.RFC3339Nano
	out := zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05.0000", NoColor: noColor,
		PartsOrder: []string{
			zerolog.TimestampFieldName,
			"pid",
			zerolog.LevelFieldName,
			"m",
			"c",
			zerolog.MessageFieldName,
		},
		FieldsExclude: []string{"m", "c", "pid"},
	}
	if noColor {
		out.FormatMessage = func(i any) string {
			if i == nil {
				return ""
			}
			return fmt.Sprintf("%v", i)
		}
	}
	l := zerolog.New(out).With().
		Str("pid", fmt.Sprintf("%4x", pid)).
		Str("m", tag).
		Str("c", " ").
		Timestamp().Logger()
	return &Logger{logger: &l}
}

func Default() *Logger { return &Logger{logger: &log.Logger} }

// Nop drops everything; used in tests.
func Nop() *Logger {
	l := zerolog.Nop()
	return &Logger{logger: &l}
}

// With creates a child context, finish it with Extend.
func (l *Logger) With() zerolog.Context { return l.logger.With() }

// Extend adds some additional context to the existing logger.
func (l *Logger) Extend(ctx zerolog.Context) *Logger {
	logger := ctx.Logger()
	return &Logger{logger: &logger}
}

func (l *Logger) Debug() *zerolog.Event { return l.logger.Debug() }
func (l *Logger) Info() *zerolog.Event  { return l.logger.Info() }
func (l *Logger) Warn() *zerolog.Event  { return l.logger.Warn() }
func (l *Logger) Error() *zerolog.Event { return l.logger.Error() }
