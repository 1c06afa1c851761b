package logging

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/diode"
)

const (
	FormatJSON     = "json"
	FormatTerminal = "terminal"
)

func Setup(
	output io.Writer,
	level zerolog.Level,
	format string,
	forceColor bool,
) *Logging {
	o := output
	if o == nil {
		o = os.Stderr
	}

	if format == FormatTerminal {
		o = zerolog.ConsoleWriter{
			Out:        o,
			TimeFormat: time.RFC3339Nano,
			NoColor:    !forceColor && !isatty.IsTerminal(os.Stderr.Fd()),
		}
	}

	z := zerolog.New(o).With().Timestamp()

	if level <= zerolog.DebugLevel {
		z = z.Caller()
	}

	return NewLogging(nil).SetLogger(z.Logger().Level(level))
}

// Output opens the log file; writes are buffered by diode, so slow disk does
// not block the callers.
func Output(f string) (io.Writer, error) {
	out, err := os.OpenFile(filepath.Clean(f), os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o600)
	if err != nil {
		return nil, errors.Wrapf(err, "open log file, %q", f)
	}

	return diode.NewWriter(out, 1000, 0, nil), nil //nolint:gomnd //...
}

func Outputs(files []string) (io.Writer, error) {
	if len(files) < 1 {
		return nil, errors.Errorf("empty log files")
	}

	ws := make([]io.Writer, len(files))

	for i := range files {
		switch f := files[i]; f {
		case "stdout":
			ws[i] = os.Stdout
		case "stderr":
			ws[i] = os.Stderr
		default:
			out, err := Output(f)
			if err != nil {
				return nil, err
			}

			ws[i] = out
		}
	}

	if len(ws) == 1 {
		return ws[0], nil
	}

	return zerolog.MultiLevelWriter(ws...), nil
}

type ZerologSTDLoggingWriter struct {
	f func() *zerolog.Event
}

func NewZerologSTDLoggingWriter(f func() *zerolog.Event) ZerologSTDLoggingWriter {
	return ZerologSTDLoggingWriter{f: f}
}

func (w ZerologSTDLoggingWriter) Write(b []byte) (int, error) {
	if w.f != nil {
		w.f().Msg(string(bytes.TrimRight(b, "\n")))
	}

	return len(b), nil
}
