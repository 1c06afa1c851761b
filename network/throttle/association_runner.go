package throttle

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/spikeekips/throttler/network/transport"
	"github.com/spikeekips/throttler/util"
	"github.com/spikeekips/throttler/util/logging"
)

// association runs the associationData in its own goroutine; the events are
// processed one by one in the posted order.
type association struct {
	*logging.Logging
	manager *Manager
	wrapped transport.AssociationHandle
	handle  *Handle
	mailbox *mailbox[associationEvent]
	timer   *time.Timer
	clock   func() int64
	donech  chan struct{}
	id      string
	data    associationData
	inbound bool
	once    sync.Once
}

func newAssociation(
	manager *Manager,
	wrapped transport.AssociationHandle,
	inbound bool,
	clock func() int64,
) *association {
	id := util.UUID().String()

	a := &association{
		Logging: logging.NewLogging(func(zctx zerolog.Context) zerolog.Context {
			return zctx.Str("module", "throttled-association").
				Str("id", id).
				Bool("inbound", inbound).
				Stringer("remote", wrapped.RemoteAddress())
		}),
		manager: manager,
		wrapped: wrapped,
		mailbox: newMailbox[associationEvent](),
		clock:   clock,
		donech:  make(chan struct{}),
		id:      id,
		inbound: inbound,
	}

	a.handle = newHandle(wrapped, clock)
	a.handle.association = a

	return a
}

func (a *association) start(data associationData) {
	a.once.Do(func() {
		a.data = data

		metricAssociations.Inc()

		go a.run()
	})
}

func (a *association) post(e associationEvent) bool {
	return a.mailbox.post(e)
}

func (a *association) Done() <-chan struct{} {
	return a.donech
}

// Notify receives the events of the wrapped handle.
func (a *association) Notify(e transport.HandleEvent) {
	switch i := e.(type) {
	case transport.InboundPayload:
		_ = a.post(eventInboundPayload{payload: i.Payload})
	case transport.Disassociated:
		_ = a.post(eventDisassociated{info: i.Info})
	}
}

func (a *association) run() {
	defer close(a.donech)
	defer a.cleanup()

	a.Log().Trace().Stringer("state", a.data.state).Msg("started")

	for {
		events, ok := a.mailbox.receive()
		if !ok {
			return
		}

		for i := range events {
			if a.handleEvent(events[i]) {
				return
			}
		}
	}
}

func (a *association) handleEvent(e associationEvent) bool {
	prev := a.data.state

	data, effects := a.data.transit(a.clock(), e)
	a.data = data

	if prev != data.state {
		a.Log().Trace().Stringer("from", prev).Stringer("to", data.state).Msg("state changed")
	}

	for i := range effects {
		if a.execute(effects[i]) {
			return true
		}
	}

	return false
}

func (a *association) execute(e associationEffect) (stopped bool) {
	switch i := e.(type) {
	case effectArmRead:
		a.wrapped.SetEventListener(a)
	case effectCheckin:
		a.Log().Trace().Stringer("origin", i.origin).Msg("origin found")

		a.manager.checkin(i.origin, a.handle)
	case effectNotifyAssociation:
		switch l, isempty := a.manager.associationListener.Value(); {
		case isempty:
			a.Log().Warn().Msg("no association listener; inbound association stopped")

			_ = a.post(eventStop{})
		default:
			l.Notify(transport.InboundAssociation{Handle: i.handle})
		}
	case effectDeliver:
		metricInboundFrames.WithLabelValues("delivered").Inc()

		i.listener.Notify(transport.InboundPayload{Payload: i.payload})
	case effectNotifyDisassociated:
		i.listener.Notify(transport.Disassociated{Info: i.info})
	case effectScheduleDequeue:
		a.scheduleDequeue(i.delay, i.generation)
	case effectCancelDequeue:
		a.cancelDequeue()
	case effectAck:
		if i.ack != nil {
			close(i.ack)
		}
	case effectDiscard:
		metricInboundFrames.WithLabelValues("discarded").Add(float64(i.frames))

		a.Log().Trace().Int("frames", i.frames).Msg("frames discarded")
	case effectStop:
		return true
	}

	return false
}

func (a *association) scheduleDequeue(delay time.Duration, generation uint64) {
	a.cancelDequeue()

	if delay <= 0 {
		_ = a.post(eventDequeue{generation: generation})

		return
	}

	a.timer = time.AfterFunc(delay, func() {
		_ = a.post(eventDequeue{generation: generation})
	})
}

func (a *association) cancelDequeue() {
	if a.timer != nil {
		_ = a.timer.Stop()

		a.timer = nil
	}
}

func (a *association) cleanup() {
	a.cancelDequeue()
	a.mailbox.close()

	a.wrapped.Disassociate("throttled association stopped")

	a.manager.removeAssociation(a)

	metricAssociations.Dec()

	a.Log().Trace().Msg("stopped")
}
