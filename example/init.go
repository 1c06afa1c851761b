package main

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/spikeekips/throttler/launch"
	"github.com/spikeekips/throttler/network/transport"
	"gopkg.in/yaml.v3"
)

type initCommand struct {
	Address transport.Address `arg:"" name:"address" help:"node address, <system>@<host>:<port>"`
	Admin   string            `name:"admin" help:"admin server bind" placeholder:"host:port"`
	Out     string            `name:"out" help:"node design file" default:"node.yml"`
}

func (cmd *initCommand) Run() error {
	d := launch.DefaultNodeDesign(cmd.Address)

	if len(cmd.Admin) > 0 {
		rl := launch.DefaultAdminRateLimit

		d.Admin.Bind = cmd.Admin
		d.Admin.RateLimit = &rl
	}

	if err := d.IsValid(nil); err != nil {
		return err
	}

	b, err := yaml.Marshal(d)
	if err != nil {
		return errors.Wrap(err, "marshal node design")
	}

	f := filepath.Clean(cmd.Out)

	if err := os.WriteFile(f, b, 0o600); err != nil {
		return errors.Wrap(err, "write node design")
	}

	log.Info().Str("file", f).Stringer("address", d.Address).Msg("node design generated")

	return nil
}
