package util

import (
	"fmt"
	"io"
	"runtime"
	"strings"

	"github.com/pkg/errors"
)

// Error is a sentinel error; the value created by NewError carries only the
// identity, Call, Wrap and Errorf attach the stack of the caller.
type Error struct {
	wrapped error
	id      string
	msg     string
	extra   string
	stack   stack
}

func NewError(s string, a ...interface{}) Error {
	var pcs [1]uintptr
	_ = runtime.Callers(2, pcs[:]) //nolint:gomnd //...
	f := errors.Frame(pcs[0])

	return Error{
		id:  fmt.Sprintf("%n:%d", f, f),
		msg: strings.TrimSpace(fmt.Sprintf(s, a...)),
	}
}

func (er Error) Call() Error {
	er.stack = callers(3) //nolint:gomnd //...

	return er
}

func (er Error) Wrap(err error) Error {
	er.stack = callers(3) //nolint:gomnd //...
	er.wrapped = err

	return er
}

func (er Error) Wrapf(err error, s string, a ...interface{}) Error {
	er.stack = callers(3) //nolint:gomnd //...
	er.extra = fmt.Sprintf(s, a...)
	er.wrapped = err

	return er
}

// Errorf does not support `%w`.
func (er Error) Errorf(s string, a ...interface{}) Error {
	er.stack = callers(3) //nolint:gomnd //...
	er.extra = fmt.Sprintf(s, a...)

	return er
}

func (er Error) Unwrap() error {
	return er.wrapped
}

func (er Error) Is(err error) bool {
	e, ok := err.(Error) //nolint:errorlint //...
	if ok {
		return e.id == er.id
	}

	if er.wrapped == nil {
		return false
	}

	return errors.Is(er.wrapped, err)
}

func (er Error) Error() string {
	if er.stack == nil {
		panic(fmt.Errorf("Error, %q should not be used as error directly without Call()", er.msg))
	}

	s := er.message()

	if er.wrapped != nil {
		if e := er.wrapped.Error(); len(e) > 0 {
			s += "; " + e
		}
	}

	return s
}

func (er Error) Format(st fmt.State, verb rune) {
	switch {
	case verb == 'v' && st.Flag('+'):
		_, _ = fmt.Fprintf(st, "> %s", er.message())

		er.stack.Format(st, verb)

		if er.wrapped != nil {
			_, _ = fmt.Fprintf(st, "\n%+v", er.wrapped)
		}
	case verb == 'q':
		_, _ = fmt.Fprintf(st, "%q", er.Error())
	default:
		_, _ = io.WriteString(st, er.Error())
	}
}

func (er Error) StackTrace() errors.StackTrace {
	if er.stack != nil {
		return er.stack.StackTrace()
	}

	var i interface{ StackTrace() errors.StackTrace }
	if errors.As(er.wrapped, &i) {
		return i.StackTrace()
	}

	return nil
}

func (er Error) message() string {
	if len(er.extra) > 0 {
		return er.msg + " - " + er.extra
	}

	return er.msg
}

// callers is from
// https://github.com/pkg/errors/blob/856c240a51a2bf8fb8269ea7f3f9b046aadde36e/stack.go#L163
func callers(skip int) stack {
	const depth = 32

	var pcs [depth]uintptr
	n := runtime.Callers(skip, pcs[:])

	return stack(pcs[0:n])
}

type stack []uintptr

func (s stack) Format(st fmt.State, verb rune) {
	if verb == 'v' && st.Flag('+') {
		for _, pc := range s {
			_, _ = fmt.Fprintf(st, "\n%+v", errors.Frame(pc))
		}
	}
}

func (s stack) StackTrace() errors.StackTrace {
	f := make([]errors.Frame, len(s))
	for i := range f {
		f[i] = errors.Frame(s[i])
	}

	return f
}
