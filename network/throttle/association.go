package throttle

import (
	"time"

	"github.com/spikeekips/throttler/network/pdu"
	"github.com/spikeekips/throttler/network/transport"
)

type associationState uint8

const (
	stateAwaitingHandle associationState = iota
	stateAwaitingPeerIdentity
	stateAwaitingPolicy
	stateAwaitingDeliveryListener
	stateAwaitingPolicyAndListener
	stateActive
	stateStopped
)

func (s associationState) String() string {
	switch s {
	case stateAwaitingHandle:
		return "awaiting-handle"
	case stateAwaitingPeerIdentity:
		return "awaiting-peer-identity"
	case stateAwaitingPolicy:
		return "awaiting-policy"
	case stateAwaitingDeliveryListener:
		return "awaiting-delivery-listener"
	case stateAwaitingPolicyAndListener:
		return "awaiting-policy-and-listener"
	case stateActive:
		return "active"
	case stateStopped:
		return "stopped"
	default:
		return "<unknown>"
	}
}

type associationEvent interface {
	associationEvent()
}

type eventExposedHandle struct {
	handle *Handle
}

type eventInboundPayload struct {
	payload []byte
}

// eventMode updates the inbound Mode; ack is closed after it is applied.
type eventMode struct {
	mode Mode
	ack  chan struct{}
}

type eventListener struct {
	listener transport.HandleEventListener
}

type eventDequeue struct {
	generation uint64
}

// eventDisassociated comes from the wrapped handle.
type eventDisassociated struct {
	info transport.DisassociateInfo
}

type eventFailWith struct {
	info transport.DisassociateInfo
}

type eventStop struct{}

func (eventExposedHandle) associationEvent()  {}
func (eventInboundPayload) associationEvent() {}
func (eventMode) associationEvent()           {}
func (eventListener) associationEvent()       {}
func (eventDequeue) associationEvent()        {}
func (eventDisassociated) associationEvent()  {}
func (eventFailWith) associationEvent()       {}
func (eventStop) associationEvent()           {}

type associationEffect interface {
	associationEffect()
}

// effectArmRead registers the association as the listener of the wrapped
// handle.
type effectArmRead struct{}

type effectCheckin struct {
	origin transport.Address
}

type effectNotifyAssociation struct {
	handle *Handle
}

type effectDeliver struct {
	listener transport.HandleEventListener
	payload  []byte
}

type effectNotifyDisassociated struct {
	listener transport.HandleEventListener
	info     transport.DisassociateInfo
}

// effectScheduleDequeue replaces the pending dequeue timer; delay under or
// equal to zero means dequeue now.
type effectScheduleDequeue struct {
	delay      time.Duration
	generation uint64
}

type effectCancelDequeue struct{}

type effectAck struct {
	ack chan struct{}
}

type effectDiscard struct {
	frames int
}

type effectStop struct{}

func (effectArmRead) associationEffect()             {}
func (effectCheckin) associationEffect()             {}
func (effectNotifyAssociation) associationEffect()   {}
func (effectDeliver) associationEffect()             {}
func (effectNotifyDisassociated) associationEffect() {}
func (effectScheduleDequeue) associationEffect()     {}
func (effectCancelDequeue) associationEffect()       {}
func (effectAck) associationEffect()                 {}
func (effectDiscard) associationEffect()             {}
func (effectStop) associationEffect()                {}

// associationData is the state of association. transit does not touch
// anything outside of associationData; the side effects are returned as
// associationEffects.
type associationData struct {
	mode       Mode
	listener   transport.HandleEventListener
	handle     *Handle
	queue      [][]byte
	generation uint64
	state      associationState
}

func newInboundAssociationData() associationData {
	return associationData{state: stateAwaitingHandle}
}

// newOutboundAssociationData starts with the inbound Mode known at
// associating; the later Mode updates override it.
func newOutboundAssociationData(h *Handle, mode Mode) associationData {
	return associationData{state: stateAwaitingPolicyAndListener, handle: h, mode: mode}
}

func (d associationData) transit(now int64, e associationEvent) (associationData, []associationEffect) {
	if d.state == stateStopped {
		if i, ok := e.(eventMode); ok {
			return d, []associationEffect{effectAck{ack: i.ack}}
		}

		return d, nil
	}

	var effects []associationEffect
	var handled bool

	switch d.state {
	case stateAwaitingHandle:
		d, effects, handled = d.whenAwaitingHandle(e)
	case stateAwaitingPeerIdentity:
		d, effects, handled = d.whenAwaitingPeerIdentity(e)
	case stateAwaitingPolicy:
		d, effects, handled = d.whenAwaitingPolicy(e)
	case stateAwaitingDeliveryListener:
		d, effects, handled = d.whenAwaitingDeliveryListener(e)
	case stateAwaitingPolicyAndListener:
		d, effects, handled = d.whenAwaitingPolicyAndListener(e)
	case stateActive:
		d, effects, handled = d.whenActive(now, e)
	}

	if handled {
		return d, effects
	}

	return d.whenUnhandled(e)
}

func (d associationData) whenAwaitingHandle(e associationEvent) (associationData, []associationEffect, bool) {
	i, ok := e.(eventExposedHandle)
	if !ok {
		return d, nil, false
	}

	d.handle = i.handle
	d.state = stateAwaitingPeerIdentity

	return d, []associationEffect{effectArmRead{}}, true
}

func (d associationData) whenAwaitingPeerIdentity(e associationEvent) (associationData, []associationEffect, bool) {
	i, ok := e.(eventInboundPayload)
	if !ok {
		return d, nil, false
	}

	d.queue = append(d.queue, i.payload)

	origin, found := pdu.PeekOrigin(i.payload)
	if !found {
		return d, nil, true
	}

	d.state = stateAwaitingPolicy

	return d, []associationEffect{effectCheckin{origin: origin}}, true
}

func (d associationData) whenAwaitingPolicy(e associationEvent) (associationData, []associationEffect, bool) {
	switch i := e.(type) {
	case eventInboundPayload:
		d.queue = append(d.queue, i.payload)

		return d, nil, true
	case eventMode:
		d.mode = i.mode

		if IsBlackhole(i.mode) {
			discarded := len(d.queue)
			d.queue = nil
			d.state = stateStopped

			return d, []associationEffect{effectDiscard{frames: discarded}, effectAck{ack: i.ack}, effectStop{}}, true
		}

		d.state = stateAwaitingDeliveryListener

		return d, []associationEffect{effectNotifyAssociation{handle: d.handle}, effectAck{ack: i.ack}}, true
	default:
		return d, nil, false
	}
}

func (d associationData) whenAwaitingDeliveryListener(e associationEvent) (associationData, []associationEffect, bool) {
	switch i := e.(type) {
	case eventInboundPayload:
		d, effects := d.enqueue(i.payload)

		return d, effects, true
	case eventListener:
		return d.activate(i.listener)
	default:
		return d, nil, false
	}
}

func (d associationData) whenAwaitingPolicyAndListener(e associationEvent) (associationData, []associationEffect, bool) {
	switch i := e.(type) {
	case eventInboundPayload:
		d, effects := d.enqueue(i.payload)

		return d, effects, true
	case eventListener:
		return d.activate(i.listener)
	default:
		return d, nil, false
	}
}

func (d associationData) activate(l transport.HandleEventListener) (associationData, []associationEffect, bool) {
	d.listener = l
	d.state = stateActive

	var effects []associationEffect

	switch {
	case len(d.queue) < 1:
	case IsBlackhole(d.mode):
		effects = append(effects, effectDiscard{frames: len(d.queue)})
		d.queue = nil
	default:
		effects = d.scheduleDequeue(0, effects)
	}

	return d, effects, true
}

// enqueue holds the frame until the listener is known; under Blackhole the
// frame is dropped.
func (d associationData) enqueue(payload []byte) (associationData, []associationEffect) {
	if IsBlackhole(d.mode) {
		return d, []associationEffect{effectDiscard{frames: 1}}
	}

	d.queue = append(d.queue, payload)

	return d, nil
}

func (d associationData) whenActive(now int64, e associationEvent) (associationData, []associationEffect, bool) {
	switch i := e.(type) {
	case eventMode:
		var effects []associationEffect

		d, effects = d.setMode(i.mode, effects)

		d.generation++
		effects = append(effects, effectCancelDequeue{})

		if len(d.queue) > 0 {
			effects = d.scheduleDequeue(d.mode.TimeToAvailable(now, len(d.queue[0])), effects)
		}

		return d, append(effects, effectAck{ack: i.ack}), true
	case eventInboundPayload:
		d, effects := d.forwardOrDelay(now, i.payload)

		return d, effects, true
	case eventDequeue:
		if i.generation != d.generation || len(d.queue) < 1 || IsBlackhole(d.mode) {
			return d, nil, true
		}

		payload := d.queue[0]
		d.queue = d.queue[1:]

		effects := []associationEffect{effectDeliver{listener: d.listener, payload: payload}}

		d.mode, _ = d.mode.TryConsume(now, len(payload))

		if len(d.queue) > 0 {
			effects = d.scheduleDequeue(d.mode.TimeToAvailable(now, len(d.queue[0])), effects)
		}

		return d, effects, true
	default:
		return d, nil, false
	}
}

func (d associationData) whenUnhandled(e associationEvent) (associationData, []associationEffect) {
	switch i := e.(type) {
	case eventMode:
		var effects []associationEffect

		d, effects = d.setMode(i.mode, effects)

		return d, append(effects, effectAck{ack: i.ack})
	case eventDisassociated, eventStop:
		return d.stop(nil)
	case eventFailWith:
		var effects []associationEffect

		if d.listener != nil {
			effects = append(effects, effectNotifyDisassociated{listener: d.listener, info: i.info})
		}

		return d.stop(effects)
	default:
		return d, nil
	}
}

func (d associationData) forwardOrDelay(now int64, payload []byte) (associationData, []associationEffect) {
	switch {
	case IsBlackhole(d.mode):
		return d, []associationEffect{effectDiscard{frames: 1}}
	case len(d.queue) > 0:
		d.queue = append(d.queue, payload)

		return d, nil
	}

	next, ok := d.mode.TryConsume(now, len(payload))
	if ok {
		d.mode = next

		return d, []associationEffect{effectDeliver{listener: d.listener, payload: payload}}
	}

	d.queue = append(d.queue, payload)

	effects := d.scheduleDequeue(d.mode.TimeToAvailable(now, len(payload)), nil)

	return d, effects
}

// setMode discards the queued frames under Blackhole.
func (d associationData) setMode(m Mode, effects []associationEffect) (associationData, []associationEffect) {
	d.mode = m

	if IsBlackhole(m) && len(d.queue) > 0 {
		effects = append(effects, effectDiscard{frames: len(d.queue)}) //revive:disable-line:modifies-parameter
		d.queue = nil
	}

	return d, effects
}

func (d *associationData) scheduleDequeue(delay time.Duration, effects []associationEffect) []associationEffect {
	if IsBlackhole(d.mode) {
		return effects
	}

	d.generation++

	return append(effects, effectScheduleDequeue{delay: delay, generation: d.generation})
}

func (d associationData) stop(effects []associationEffect) (associationData, []associationEffect) {
	if len(d.queue) > 0 {
		effects = append(effects, effectDiscard{frames: len(d.queue)}) //revive:disable-line:modifies-parameter
	}

	d.queue = nil
	d.state = stateStopped

	return d, append(effects, effectStop{})
}
