package throttle

import (
	"context"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/spikeekips/throttler/network/transport"
	"github.com/spikeekips/throttler/util/logging"
)

// Transport wraps the transport.Transport and throttles the associations of
// it. The scheme of addresses is prefixed with "trttl.".
type Transport struct {
	*logging.Logging
	wrapped transport.Transport
	manager *Manager
}

func NewTransport(wrapped transport.Transport, args *ManagerArgs) (*Transport, error) {
	if err := args.IsValid(nil); err != nil {
		return nil, err
	}

	return &Transport{
		Logging: logging.NewLogging(func(zctx zerolog.Context) zerolog.Context {
			return zctx.Str("module", "throttle-transport").Str("wrapped", wrapped.SchemeIdentifier())
		}),
		wrapped: wrapped,
		manager: NewManager(args),
	}, nil
}

// Provider returns the function, which wraps the transport with Transport.
func Provider(args *ManagerArgs) func(transport.Transport) (transport.Transport, error) {
	return func(wrapped transport.Transport) (transport.Transport, error) {
		return NewTransport(wrapped, args)
	}
}

func (t *Transport) SetLogging(l *logging.Logging) *logging.Logging {
	_ = t.manager.SetLogging(l)

	return t.Logging.SetLogging(l)
}

func (t *Transport) SchemeIdentifier() string {
	return SchemeIdentifier + "." + t.wrapped.SchemeIdentifier()
}

func (t *Transport) IsResponsibleFor(a transport.Address) bool {
	return t.wrapped.IsResponsibleFor(removeScheme(a))
}

func (t *Transport) MaximumPayloadBytes() int {
	return t.wrapped.MaximumPayloadBytes()
}

func (t *Transport) Manager() *Manager {
	return t.manager
}

func (t *Transport) Listen(ctx context.Context, l transport.AssociationEventListener) (transport.Address, error) {
	t.manager.setAssociationListener(l)

	addr, err := t.wrapped.Listen(ctx, transport.AssociationEventListenerFunc(func(e transport.AssociationEvent) {
		if i, ok := e.(transport.InboundAssociation); ok {
			_ = t.manager.inboundAssociation(i.Handle)
		}
	}))
	if err != nil {
		return transport.Address{}, errors.WithMessage(err, "listen wrapped transport")
	}

	addr = augmentScheme(addr)

	t.Log().Debug().Stringer("address", addr).Msg("listening")

	return addr, nil
}

func (t *Transport) Associate(ctx context.Context, remote transport.Address) (transport.AssociationHandle, error) {
	wrapped, err := t.wrapped.Associate(ctx, removeScheme(remote))
	if err != nil {
		return nil, errors.WithMessage(err, "associate wrapped transport")
	}

	return t.manager.outboundAssociation(wrapped), nil
}

// ManagementCommand handles the throttle commands; the other commands are
// passed to the wrapped transport.
func (t *Transport) ManagementCommand(ctx context.Context, cmd interface{}) (bool, error) {
	if !isCommand(cmd) {
		return t.wrapped.ManagementCommand(ctx, cmd)
	}

	if _, err := t.manager.Ask(ctx, cmd); err != nil {
		return false, err
	}

	return true, nil
}

func (t *Transport) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), t.manager.args.AskTimeout*2) //nolint:gomnd //...
	defer cancel()

	if err := t.manager.Close(ctx); err != nil {
		t.Log().Error().Err(err).Msg("failed to close associations")
	}

	return t.wrapped.Shutdown()
}
