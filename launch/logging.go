package launch

import (
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/pkgerrors"
	"github.com/spikeekips/throttler/util"
	"github.com/spikeekips/throttler/util/logging"
)

func init() { //nolint:gochecknoinits //...
	zerolog.TimeFieldFormat = time.RFC3339Nano
	zerolog.ErrorStackMarshaler = pkgerrors.MarshalStack //nolint:reassign //...
}

// LoggingFlagsVars is the default values of LoggingFlags for kong.Vars.
var LoggingFlagsVars = map[string]string{
	"log_format":      logging.FormatTerminal,
	"log_out":         "stderr",
	"log_level":       "debug",
	"log_force_color": "false",
}

type LoggingFlags struct {
	//revive:disable:line-length-limit
	//revive:disable:struct-tag
	Format     string       `enum:"json, terminal" default:"${log_format}" help:"log format: {${enum}}" group:"logging"`
	Level      LogLevelFlag `name:"level" default:"${log_level}" help:"log level: {trace, debug, info, warn, error}" group:"logging"`
	Out        []string     `name:"out" default:"${log_out}" help:"log output: {stdout, stderr, <file>}" group:"logging"`
	ForceColor bool         `name:"force-color" default:"${log_force_color}" negatable:"" help:"log force color" group:"logging"`
	//revive:enable:struct-tag
	//revive:enable:line-length-limit
}

type LogLevelFlag zerolog.Level

func (f *LogLevelFlag) UnmarshalText(b []byte) error {
	switch l, err := zerolog.ParseLevel(string(b)); {
	case err != nil:
		return util.ErrInvalid.Wrap(errors.WithStack(err))
	case l == zerolog.NoLevel:
		return util.ErrInvalid.Errorf("empty log level")
	default:
		*f = LogLevelFlag(l)

		return nil
	}
}

func (f LogLevelFlag) Level() zerolog.Level {
	return zerolog.Level(f)
}

func (f LogLevelFlag) String() string {
	return f.Level().String()
}

// SetupLoggingFromFlags builds the root logging; the duplicated outputs are
// opened once.
func SetupLoggingFromFlags(flag LoggingFlags) (*logging.Logging, error) {
	outs, _ := util.RemoveDuplicatedSlice(flag.Out, func(f string) (string, error) { return f, nil })

	if len(outs) < 1 {
		outs = []string{LoggingFlagsVars["log_out"]}
	}

	if len(flag.Format) < 1 {
		flag.Format = logging.FormatTerminal
	}

	w, err := logging.Outputs(outs)
	if err != nil {
		return nil, errors.WithMessage(err, "logging outputs")
	}

	return logging.Setup(w, flag.Level.Level(), flag.Format, flag.ForceColor), nil
}
