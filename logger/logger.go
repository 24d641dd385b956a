// Package logger wraps zerolog with the Infof/Debugf/Warnf/Errorf call
// shape used throughout scalpengine's components.
package logger

import (
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	base zerolog.Logger
	once sync.Once
)

func root() zerolog.Logger {
	once.Do(func() {
		zerolog.TimeFieldFormat = time.RFC3339
		base = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "15:04:05"}).
			With().Timestamp().Logger()
	})
	return base
}

// Logger is a component-tagged sub-logger.
type Logger struct {
	z zerolog.Logger
}

// Named returns a Logger tagged with the given component name.
func Named(component string) *Logger {
	return &Logger{z: root().With().Str("component", component).Logger()}
}

func (l *Logger) Debugf(format string, args ...interface{}) { l.z.Debug().Msgf(format, args...) }
func (l *Logger) Infof(format string, args ...interface{})  { l.z.Info().Msgf(format, args...) }
func (l *Logger) Warnf(format string, args ...interface{})  { l.z.Warn().Msgf(format, args...) }
func (l *Logger) Errorf(format string, args ...interface{}) { l.z.Error().Msgf(format, args...) }

// With returns a derived Logger with an extra string field attached, for
// per-symbol or per-request context without re-tagging the component name.
func (l *Logger) With(key, value string) *Logger {
	return &Logger{z: l.z.With().Str(key, value).Logger()}
}
