// Package tmlog provides the structured logger threaded through every
// component, wrapping zap the same way the teacher's common.Logger wraps
// its own backend: a small leveled interface call sites use directly
// (Debugf/Infof/Warnf/Errorf) rather than reaching into zap's richer API.
package tmlog

import (
	"go.uber.org/zap"
)

// Logger is the leveled, printf-style logging surface every tm component
// takes a dependency on.
type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
	With(keysAndValues ...interface{}) Logger
}

type sugared struct {
	s *zap.SugaredLogger
}

// New builds a production logger (JSON, info level) in the teacher's
// default configuration style.
func New() (Logger, error) {
	z, err := zap.NewProduction()
	if err != nil {
		return nil, err
	}
	return &sugared{s: z.Sugar()}, nil
}

// NewDevelopment builds a human-readable console logger with debug level
// enabled, for local runs and tests.
func NewDevelopment() (Logger, error) {
	z, err := zap.NewDevelopment()
	if err != nil {
		return nil, err
	}
	return &sugared{s: z.Sugar()}, nil
}

// NewNop returns a logger that discards everything, for tests that don't
// care about log output.
func NewNop() Logger {
	return &sugared{s: zap.NewNop().Sugar()}
}

func (l *sugared) Debugf(format string, args ...interface{}) { l.s.Debugf(format, args...) }
func (l *sugared) Infof(format string, args ...interface{})  { l.s.Infof(format, args...) }
func (l *sugared) Warnf(format string, args ...interface{})  { l.s.Warnf(format, args...) }
func (l *sugared) Errorf(format string, args ...interface{}) { l.s.Errorf(format, args...) }

func (l *sugared) With(keysAndValues ...interface{}) Logger {
	return &sugared{s: l.s.With(keysAndValues...)}
}
