package main

import (
	"os"

	"github.com/alecthomas/kong"
	"github.com/rs/zerolog"
	"github.com/spikeekips/throttler/launch"
	ulogging "github.com/spikeekips/throttler/util/logging"
)

var (
	logging *ulogging.Logging
	log     *zerolog.Logger
)

func main() {
	var cli struct { //nolint:govet //...
		launch.LoggingFlags `embed:"" prefix:"log."`
		Init                initCommand `cmd:"" help:"generate node design"`
		Run                 runCommand  `cmd:"" help:"run node"`
	}

	kctx := kong.Parse(&cli, kong.Vars(launch.LoggingFlagsVars))

	switch i, err := launch.SetupLoggingFromFlags(cli.LoggingFlags); {
	case err != nil:
		kctx.FatalIfErrorf(err)
	default:
		logging = i
	}

	log = ulogging.NewLogging(func(lctx zerolog.Context) zerolog.Context {
		return lctx.Str("module", "main")
	}).SetLogging(logging).Log()

	log.Info().Str("command", kctx.Command()).Msg("start command")

	err := func() error {
		defer log.Info().Msg("stopped")

		return kctx.Run()
	}()
	if err != nil {
		log.Error().Err(err).Msg("stopped by error")

		os.Exit(1)
	}
}
