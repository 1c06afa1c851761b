package quictransport

import (
	"context"
	"crypto/tls"
	"net"
	"time"

	"github.com/pkg/errors"
	"github.com/quic-go/quic-go"
	"github.com/rs/zerolog"
	"github.com/spikeekips/throttler/network/transport"
	"github.com/spikeekips/throttler/util"
	"github.com/spikeekips/throttler/util/logging"
)

const (
	SchemeIdentifier  = "quic"
	defaultMaxPayload = 1 << 20
)

type TransportArgs struct {
	TLSConfig *tls.Config
	// ClientTLSConfig is used to associate to the remote.
	ClientTLSConfig *tls.Config
	QUICConfig      *quic.Config
	Bind            *net.UDPAddr
	// Publish is the advertised address; the remote knows this node by it.
	Publish           transport.Address
	MaxPayload        int
	HandshakeTimeout  time.Duration
	KeepAlivePeriod   time.Duration
	MaxIdleTimeout    time.Duration
	ListenerNotifyBuf int
}

func NewTransportArgs() *TransportArgs {
	return &TransportArgs{
		MaxPayload:       defaultMaxPayload,
		HandshakeTimeout: time.Second * 3,  //nolint:gomnd //...
		KeepAlivePeriod:  time.Second * 6,  //nolint:gomnd //...
		MaxIdleTimeout:   time.Second * 30, //nolint:gomnd //...
	}
}

func (args *TransportArgs) IsValid([]byte) error {
	e := util.ErrInvalid.Errorf("invalid TransportArgs")

	switch {
	case args.TLSConfig == nil:
		return e.Errorf("empty tls config")
	case args.ClientTLSConfig == nil:
		return e.Errorf("empty client tls config")
	case args.Bind == nil:
		return e.Errorf("empty bind")
	case args.MaxPayload < 1:
		return e.Errorf("wrong max payload, %d", args.MaxPayload)
	case args.HandshakeTimeout <= 0:
		return e.Errorf("wrong handshake timeout, %v", args.HandshakeTimeout)
	}

	if err := args.Publish.IsValid(nil); err != nil {
		return e.Wrap(err)
	}

	return nil
}

func (args *TransportArgs) quicConfig() *quic.Config {
	if args.QUICConfig != nil {
		return args.QUICConfig
	}

	return &quic.Config{
		HandshakeIdleTimeout: args.HandshakeTimeout,
		KeepAlivePeriod:      args.KeepAlivePeriod,
		MaxIdleTimeout:       args.MaxIdleTimeout,
	}
}

// Transport associates by quic; each association has its own quic connection
// and a single bidirectional stream. The frames are prefixed with the
// big-endian uint32 length. The first frame of stream is the publish address
// of the initiator.
type Transport struct {
	*logging.Logging
	*util.ContextDaemon
	args     *TransportArgs
	listener *util.Locked[transport.AssociationEventListener]
	handles  *util.LockedMap[string, *handle]
}

func NewTransport(args *TransportArgs) (*Transport, error) {
	if err := args.IsValid(nil); err != nil {
		return nil, err
	}

	publish := args.Publish
	if len(publish.Protocol) < 1 {
		publish.Protocol = SchemeIdentifier
	}

	args.Publish = publish

	return &Transport{
		Logging: logging.NewLogging(func(zctx zerolog.Context) zerolog.Context {
			return zctx.Str("module", "quic-transport").Stringer("publish", publish)
		}),
		args:     args,
		listener: util.EmptyLocked[transport.AssociationEventListener](),
		handles:  util.NewLockedMap[string, *handle](),
	}, nil
}

func (*Transport) SchemeIdentifier() string {
	return SchemeIdentifier
}

func (*Transport) IsResponsibleFor(transport.Address) bool {
	return true
}

func (t *Transport) MaximumPayloadBytes() int {
	return t.args.MaxPayload
}

func (t *Transport) Listen(ctx context.Context, l transport.AssociationEventListener) (transport.Address, error) {
	if _, err := t.listener.Set(func(_ transport.AssociationEventListener, isempty bool) (
		transport.AssociationEventListener, error,
	) {
		if !isempty {
			return nil, errors.Errorf("already listening")
		}

		return l, nil
	}); err != nil {
		return transport.Address{}, err
	}

	listener, err := quic.ListenAddrEarly(t.args.Bind.String(), t.args.TLSConfig, t.args.quicConfig())
	if err != nil {
		_ = t.listener.EmptyValue()

		return transport.Address{}, errors.Wrap(err, "listen")
	}

	t.ContextDaemon = util.NewContextDaemon("quic-transport", func(ctx context.Context) error {
		return t.start(ctx, listener)
	})
	_ = t.ContextDaemon.SetLogging(t.Logging)

	if err := t.ContextDaemon.StartWithContext(ctx); err != nil {
		_ = listener.Close()

		return transport.Address{}, err
	}

	t.Log().Debug().Stringer("bind", listener.Addr()).Msg("listening")

	return t.args.Publish, nil
}

func (t *Transport) Associate(ctx context.Context, remote transport.Address) (transport.AssociationHandle, error) {
	conn, err := quic.DialAddrEarly(ctx, remote.HostPort(), t.args.ClientTLSConfig, t.args.quicConfig())
	if err != nil {
		return nil, errors.Wrap(err, "dial")
	}

	stream, err := conn.OpenStreamSync(ctx)
	if err != nil {
		_ = conn.CloseWithError(errCodeDisassociate, "open stream")

		return nil, errors.Wrap(err, "open stream")
	}

	if err := writeFrame(stream, []byte(t.args.Publish.String())); err != nil {
		_ = conn.CloseWithError(errCodeDisassociate, "write preamble")

		return nil, errors.WithMessage(err, "write preamble")
	}

	h := t.newHandle(conn, stream, remote)

	t.Log().Trace().Str("id", h.id).Stringer("remote", remote).Msg("associated")

	return h, nil
}

func (*Transport) ManagementCommand(context.Context, interface{}) (bool, error) {
	return false, nil
}

// Shutdown closes the associations before the listener; the listener owns
// the udp socket, so the close frames can not be sent after it is closed.
func (t *Transport) Shutdown() error {
	_ = t.listener.EmptyValue()

	var hs []*handle

	t.handles.Traverse(func(_ string, h *handle) bool {
		hs = append(hs, h)

		return true
	})

	for i := range hs {
		hs[i].close(errCodeShutdown, "shutdown", transport.DisassociateShutdown, false)
	}

	if t.ContextDaemon != nil {
		if err := t.ContextDaemon.Stop(); err != nil && !errors.Is(err, util.ErrDaemonAlreadyStopped) {
			return err
		}
	}

	t.Log().Debug().Int("associations", len(hs)).Msg("shutdown")

	return nil
}

func (t *Transport) start(ctx context.Context, listener *quic.EarlyListener) error {
	go t.accept(ctx, listener)

	<-ctx.Done()

	if err := listener.Close(); err != nil {
		return errors.Wrap(err, "close listener")
	}

	return nil
}

func (t *Transport) accept(ctx context.Context, listener *quic.EarlyListener) {
	for {
		conn, err := listener.Accept(ctx)
		if err != nil {
			switch {
			case errors.Is(err, context.Canceled):
			case errors.Is(err, quic.ErrServerClosed):
			default:
				t.Log().Trace().Err(err).Msg("failed to accept connection")
			}

			return
		}

		go t.handleConnection(ctx, conn)
	}
}

func (t *Transport) handleConnection(ctx context.Context, conn quic.EarlyConnection) {
	l := t.Log().With().Stringer("remote_addr", conn.RemoteAddr()).Logger()

	hctx, cancel := context.WithTimeout(ctx, t.args.HandshakeTimeout)
	defer cancel()

	stream, err := conn.AcceptStream(hctx)
	if err != nil {
		l.Trace().Err(err).Msg("failed to accept stream")

		_ = conn.CloseWithError(errCodeDisassociate, "accept stream")

		return
	}

	b, err := readFrame(hctx, stream, t.args.MaxPayload)
	if err != nil {
		l.Trace().Err(err).Msg("failed to read preamble")

		_ = conn.CloseWithError(errCodeDisassociate, "read preamble")

		return
	}

	remote, err := transport.ParseAddress(string(b))
	if err != nil {
		l.Trace().Err(err).Msg("invalid preamble")

		_ = conn.CloseWithError(errCodeDisassociate, "invalid preamble")

		return
	}

	al, isempty := t.listener.Value()
	if isempty {
		_ = conn.CloseWithError(errCodeShutdown, "not listening")

		return
	}

	h := t.newHandle(conn, stream, remote)

	l.Trace().Str("id", h.id).Stringer("remote", remote).Msg("inbound association")

	al.Notify(transport.InboundAssociation{Handle: h})
}

func (t *Transport) newHandle(conn quic.Connection, stream quic.Stream, remote transport.Address) *handle {
	h := newHandle(t, util.UUID().String(), conn, stream, t.args.Publish, remote)

	_ = t.handles.SetValue(h.id, h)

	go h.read(conn.Context())

	return h
}
