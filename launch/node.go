package launch

import (
	"context"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/spikeekips/throttler/network/quictransport"
	"github.com/spikeekips/throttler/network/throttle"
	"github.com/spikeekips/throttler/network/transport"
	"github.com/spikeekips/throttler/util"
	"github.com/spikeekips/throttler/util/logging"
)

// Node runs the quic transport wrapped by the throttle transport with the
// admin server.
type Node struct {
	*logging.Logging
	raw       *quictransport.Transport
	transport *throttle.Transport
	admin     *AdminServer
	design    NodeDesign
}

func NewNode(design NodeDesign) (*Node, error) {
	if err := design.IsValid(nil); err != nil {
		return nil, err
	}

	tlsconfig, err := quictransport.GenerateTLSConfig(quictransport.DefaultNextProto)
	if err != nil {
		return nil, err
	}

	args := quictransport.NewTransportArgs()
	args.TLSConfig = tlsconfig
	args.ClientTLSConfig = quictransport.ClientTLSConfig(
		quictransport.DefaultNextProto, design.Network.Publish.TLSInsecure())
	args.Bind = design.Network.Bind
	args.Publish = transport.NewAddress(
		quictransport.SchemeIdentifier,
		design.Address.System,
		design.Network.Publish.Host(),
		design.Network.Publish.Port(),
	)
	args.MaxPayload = design.Network.MaxPayload

	raw, err := quictransport.NewTransport(args)
	if err != nil {
		return nil, err
	}

	t, err := throttle.NewTransport(raw, design.Throttle.ManagerArgs())
	if err != nil {
		return nil, err
	}

	n := &Node{
		Logging: logging.NewLogging(func(zctx zerolog.Context) zerolog.Context {
			return zctx.Str("module", "node").Stringer("address", design.Address)
		}),
		design:    design,
		raw:       raw,
		transport: t,
	}

	if design.Admin.Enabled() {
		n.admin = NewAdminServer(design.Admin.Bind, t)

		if i := design.Admin.RateLimit; i != nil {
			_ = n.admin.SetRateLimit(i.Limit(), i.Burst)
		}
	}

	return n, nil
}

func (n *Node) SetLogging(l *logging.Logging) *logging.Logging {
	_ = n.raw.SetLogging(l)
	_ = n.transport.SetLogging(l)

	if n.admin != nil {
		_ = n.admin.SetLogging(l)
	}

	return n.Logging.SetLogging(l)
}

func (n *Node) Transport() *throttle.Transport {
	return n.transport
}

// Admin returns nil if admin server is disabled.
func (n *Node) Admin() *AdminServer {
	return n.admin
}

// Start applies the directives of design and starts to listen.
func (n *Node) Start(ctx context.Context, l transport.AssociationEventListener) (transport.Address, error) {
	for i := range n.design.Throttle.Directives {
		d := n.design.Throttle.Directives[i]

		cmd, err := d.SetThrottle()
		if err != nil {
			return transport.Address{}, err
		}

		if _, err := n.transport.ManagementCommand(ctx, cmd); err != nil {
			return transport.Address{}, errors.WithMessagef(err, "apply directive, %q", d.Address)
		}

		n.Log().Debug().Interface("directive", d).Msg("directive applied")
	}

	addr, err := n.transport.Listen(ctx, l)
	if err != nil {
		return transport.Address{}, err
	}

	if n.admin != nil {
		if err := n.admin.StartWithContext(ctx); err != nil {
			_ = n.transport.Shutdown()

			return transport.Address{}, err
		}
	}

	n.Log().Info().Stringer("listen", addr).Msg("node started")

	return addr, nil
}

func (n *Node) Stop() error {
	if n.admin != nil {
		if err := n.admin.Stop(); err != nil && !errors.Is(err, util.ErrDaemonAlreadyStopped) {
			n.Log().Error().Err(err).Msg("failed to stop admin server")
		}
	}

	if err := n.transport.Shutdown(); err != nil {
		return err
	}

	n.Log().Info().Msg("node stopped")

	return nil
}
