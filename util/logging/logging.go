package logging

import (
	"io"
	"sync"

	"github.com/rs/zerolog"
)

var (
	NilLogger      = zerolog.Nop()
	NilLogging     = NewLogging(nil).SetLogger(NilLogger)
	TestNilLogging = NilLogging
)

type SetLogging interface {
	SetLogging(*Logging) *Logging
}

// Logging holds the zerolog.Logger with the context fields of the owner;
// SetLogging replaces the parent logger and keeps the owner's fields.
type Logging struct {
	l    *zerolog.Logger
	f    func(zerolog.Context) zerolog.Context
	lock sync.RWMutex
}

func NewLogging(f func(zerolog.Context) zerolog.Context) *Logging {
	if f == nil {
		f = func(c zerolog.Context) zerolog.Context { return c }
	}

	l := NilLogger

	return &Logging{l: &l, f: f}
}

func (l *Logging) Log() *zerolog.Logger {
	l.lock.RLock()
	defer l.lock.RUnlock()

	return l.l
}

func (l *Logging) SetLogger(z zerolog.Logger) *Logging {
	l.lock.Lock()
	defer l.lock.Unlock()

	nl := l.f(z.With()).Logger()
	l.l = &nl

	return l
}

func (l *Logging) SetLogging(p *Logging) *Logging {
	if p == nil {
		return l
	}

	return l.SetLogger(*p.Log())
}

// Writer returns the io.Writer, which writes each line as message at the given
// level; it is used for the libraries which expect the standard logger.
func (l *Logging) Writer(level zerolog.Level) io.Writer {
	return NewZerologSTDLoggingWriter(func() *zerolog.Event {
		return l.Log().WithLevel(level) //nolint:zerologlint //...
	})
}
