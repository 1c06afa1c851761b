package throttle

import (
	"strings"
	"sync/atomic"

	"github.com/pkg/errors"
	"github.com/spikeekips/throttler/network/transport"
	"github.com/spikeekips/throttler/util"
)

const SchemeIdentifier = "trttl"

type modeCell struct {
	Mode
}

// Handle is the AssociationHandle exposed to the upstream. The outbound
// frames are throttled by Write with the outbound Mode; the inbound frames are
// throttled by the association behind it.
type Handle struct {
	wrapped     transport.AssociationHandle
	association *association
	mode        atomic.Pointer[modeCell]
	listener    *util.Locked[transport.HandleEventListener]
	clock       func() int64
	local       transport.Address
	remote      transport.Address
}

func newHandle(wrapped transport.AssociationHandle, clock func() int64) *Handle {
	h := &Handle{
		wrapped:  wrapped,
		listener: util.EmptyLocked[transport.HandleEventListener](),
		clock:    clock,
		local:    augmentScheme(wrapped.LocalAddress()),
		remote:   augmentScheme(wrapped.RemoteAddress()),
	}

	h.mode.Store(&modeCell{Mode: Unthrottled{}})

	return h
}

func (h *Handle) LocalAddress() transport.Address {
	return h.local
}

func (h *Handle) RemoteAddress() transport.Address {
	return h.remote
}

// Write returns true without writing under Blackhole. If the outbound Mode
// does not admit the payload, it is dropped.
func (h *Handle) Write(b []byte) bool {
	tokens := len(b)

	for {
		current := h.mode.Load()

		if IsBlackhole(current.Mode) {
			metricOutboundFrames.WithLabelValues("blackholed").Inc()

			return true
		}

		next, ok := current.TryConsume(h.clock(), tokens)
		if !ok {
			metricOutboundFrames.WithLabelValues("dropped").Inc()

			return false
		}

		if h.mode.CompareAndSwap(current, &modeCell{Mode: next}) {
			break
		}
	}

	metricOutboundFrames.WithLabelValues("forwarded").Inc()

	return h.wrapped.Write(b)
}

// Disassociate stops the association; the wrapped handle is disassociated
// by the association.
func (h *Handle) Disassociate(reason string) {
	h.association.Log().Debug().Str("reason", reason).Msg("disassociate requested")

	_ = h.association.post(eventStop{})
}

// DisassociateWithFailure stops the association after notifying the upstream
// listener with the reason.
func (h *Handle) DisassociateWithFailure(info transport.DisassociateInfo) {
	_ = h.association.post(eventFailWith{info: info})
}

// SetEventListener registers the upstream listener; only the first listener
// is accepted.
func (h *Handle) SetEventListener(l transport.HandleEventListener) {
	if l == nil {
		return
	}

	if _, err := h.listener.Set(func(_ transport.HandleEventListener, isempty bool) (transport.HandleEventListener, error) {
		if !isempty {
			return nil, errors.Errorf("already set")
		}

		return l, nil
	}); err != nil {
		return
	}

	_ = h.association.post(eventListener{listener: l})
}

func (h *Handle) OutboundMode() Mode {
	return h.mode.Load().Mode
}

func (h *Handle) Wrapped() transport.AssociationHandle {
	return h.wrapped
}

// Done is closed when the association is stopped.
func (h *Handle) Done() <-chan struct{} {
	return h.association.Done()
}

func (h *Handle) setOutboundMode(m Mode) {
	h.mode.Store(&modeCell{Mode: m})
}

func augmentScheme(a transport.Address) transport.Address {
	if len(a.Protocol) < 1 {
		return a.WithProtocol(SchemeIdentifier)
	}

	return a.WithProtocol(SchemeIdentifier + "." + a.Protocol)
}

func removeScheme(a transport.Address) transport.Address {
	switch {
	case a.Protocol == SchemeIdentifier:
		return a.WithProtocol("")
	case strings.HasPrefix(a.Protocol, SchemeIdentifier+"."):
		return a.WithProtocol(strings.TrimPrefix(a.Protocol, SchemeIdentifier+"."))
	default:
		return a
	}
}
