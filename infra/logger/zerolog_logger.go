package logger

import (
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// ZerologLogger implements Logger using rs/zerolog.
type ZerologLogger struct {
	log zerolog.Logger
}

// consoleFormat, when true, makes New/NewZerologLogger emit human-readable
// console output instead of JSON. ConfigureGlobal sets this from config;
// absent that call, the APP_ENV=dev convention below still applies.
var consoleFormat = strings.ToLower(os.Getenv("APP_ENV")) == "dev"

// ConfigureGlobal sets the process-wide log level and output format. It
// should be called once at startup, before any component calls New.
func ConfigureGlobal(level, format string) error {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return err
	}
	zerolog.SetGlobalLevel(lvl)
	consoleFormat = format == "console"
	return nil
}

// NewZerologLogger creates a ZerologLogger. Output format follows the most
// recent ConfigureGlobal call, defaulting to the APP_ENV=dev convention
// when ConfigureGlobal has never been called. All logs include the
// provided component field.
func NewZerologLogger(component string) Logger {
	var z zerolog.Logger
	if consoleFormat {
		writer := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
		z = zerolog.New(writer).With().Timestamp().Str("component", component).Logger()
	} else {
		z = zerolog.New(os.Stdout).With().Timestamp().Str("component", component).Logger()
	}
	return &ZerologLogger{log: z}
}

func (l *ZerologLogger) Debugf(format string, args ...any) {
	l.log.Debug().Msgf(format, args...)
}

func (l *ZerologLogger) Debugw(msg string, fields map[string]any) {
	ev := l.log.Debug()
	for k, v := range fields {
		ev = ev.Interface(k, v)
	}
	ev.Msg(msg)
}

func (l *ZerologLogger) Infof(format string, args ...any) {
	l.log.Info().Msgf(format, args...)
}

func (l *ZerologLogger) Warnf(format string, args ...any) {
	l.log.Warn().Msgf(format, args...)
}

func (l *ZerologLogger) Errorf(format string, args ...any) {
	l.log.Error().Msgf(format, args...)
}
