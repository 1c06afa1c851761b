package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/spikeekips/throttler/launch"
	"github.com/spikeekips/throttler/network/pdu"
	"github.com/spikeekips/throttler/network/transport"
	"github.com/spikeekips/throttler/util"
)

type runCommand struct {
	Design   string              `name:"design" help:"node design file" default:"node.yml"`
	Peers    []transport.Address `name:"peer" help:"associate to the peer" placeholder:"address"`
	Interval time.Duration       `name:"interval" help:"heartbeat interval" default:"1s"`
	Retry    int                 `name:"retry" help:"max retries of associating to each peer" default:"10"`
}

func (cmd *runCommand) Run() error {
	design, _, err := launch.NodeDesignFromFile(cmd.Design)
	if err != nil {
		return err
	}

	log.Debug().Interface("design", design).Interface("peers", cmd.Peers).Msg("design loaded")

	node, err := launch.NewNode(design)
	if err != nil {
		return err
	}

	_ = node.SetLogging(logging)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app := newHeartbeatApp(cmd.Interval)

	local, err := node.Start(ctx, app)
	if err != nil {
		return errors.WithMessage(err, "start node")
	}

	defer func() {
		if err := node.Stop(); err != nil {
			log.Error().Err(err).Msg("failed to stop node")
		}
	}()

	app.local = local

	for i := range cmd.Peers {
		go app.associate(ctx, node.Transport(), cmd.Peers[i], cmd.Retry)
	}

	<-ctx.Done()

	return nil
}

// heartbeatApp sends the handshake and the heartbeats to the associated peers
// and answers the heartbeat with payload.
type heartbeatApp struct {
	local    transport.Address
	interval time.Duration
}

func newHeartbeatApp(interval time.Duration) *heartbeatApp {
	return &heartbeatApp{interval: interval}
}

func (app *heartbeatApp) Notify(e transport.AssociationEvent) {
	i, ok := e.(transport.InboundAssociation)
	if !ok {
		return
	}

	h := i.Handle

	log.Info().Stringer("remote", h.RemoteAddress()).Msg("inbound association")

	h.SetEventListener(transport.HandleEventListenerFunc(func(e transport.HandleEvent) {
		app.handleEvent(h, e)
	}))
}

// associate retries until the peer accepts the association; a peer may
// not be listening yet.
func (app *heartbeatApp) associate(
	ctx context.Context, t transport.Transport, peer transport.Address, limit int,
) {
	l := log.With().Stringer("peer", peer).Logger()

	var h transport.AssociationHandle

	if err := util.Retry(ctx, func(int) (bool, error) {
		i, err := t.Associate(ctx, peer)
		if err != nil {
			l.Debug().Err(err).Msg("failed to associate; retry")

			return true, err
		}

		h = i

		return false, nil
	}, limit, app.interval); err != nil {
		l.Error().Err(err).Msg("failed to associate")

		return
	}

	app.outbound(ctx, h)
}

func (app *heartbeatApp) outbound(ctx context.Context, h transport.AssociationHandle) {
	donech := make(chan struct{})

	h.SetEventListener(transport.HandleEventListenerFunc(func(e transport.HandleEvent) {
		if _, ok := e.(transport.Disassociated); ok {
			close(donech)
		}

		app.handleEvent(h, e)
	}))

	l := log.With().Stringer("remote", h.RemoteAddress()).Logger()

	if !h.Write(pdu.EncodeAssociate(app.local, uint64(time.Now().UnixNano()), "")) {
		l.Error().Msg("failed to send handshake")
	}

	ticker := time.NewTicker(app.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.Disassociate("stopped")

			return
		case <-donech:
			return
		case <-ticker.C:
			sent := h.Write(pdu.EncodeHeartbeat())

			l.Debug().Bool("sent", sent).Msg("heartbeat")
		}
	}
}

func (*heartbeatApp) handleEvent(h transport.AssociationHandle, e transport.HandleEvent) {
	l := log.With().Stringer("remote", h.RemoteAddress()).Logger()

	switch t := e.(type) {
	case transport.Disassociated:
		l.Info().Stringer("info", t.Info).Msg("disassociated")
	case transport.InboundPayload:
		i, err := pdu.Decode(t.Payload)
		if err != nil {
			l.Error().Err(err).Msg("invalid pdu")

			return
		}

		switch p := i.(type) {
		case pdu.Associate:
			l.Info().Stringer("origin", p.Origin).Msg("handshake received")
		case pdu.Heartbeat:
			l.Debug().Msg("heartbeat received")

			_ = h.Write(pdu.EncodePayload([]byte(time.Now().Format(time.RFC3339Nano))))
		case pdu.Payload:
			l.Debug().Str("payload", string(p.Payload)).Msg("payload received")
		case pdu.Disassociate:
			l.Info().Stringer("info", p.Info).Msg("peer disassociating")
		}
	}
}
