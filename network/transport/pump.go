package transport

import "sync"

// EventPump delivers the HandleEvents to the listener in the order they were
// pushed. Events pushed before the listener is set are buffered.
type EventPump struct {
	listener HandleEventListener
	signalch chan struct{}
	donech   chan struct{}
	events   []HandleEvent
	closed   bool
	sync.Mutex
}

func NewEventPump() *EventPump {
	p := &EventPump{
		signalch: make(chan struct{}, 1),
		donech:   make(chan struct{}),
	}

	go p.start()

	return p
}

// SetEventListener sets the listener only once; the later calls are ignored.
func (p *EventPump) SetEventListener(l HandleEventListener) {
	p.Lock()
	defer p.Unlock()

	if p.listener != nil || l == nil {
		return
	}

	p.listener = l

	p.signal()
}

func (p *EventPump) Push(e HandleEvent) bool {
	p.Lock()
	defer p.Unlock()

	if p.closed {
		return false
	}

	p.events = append(p.events, e)

	p.signal()

	return true
}

// Close stops accepting the new events; the buffered events are still
// delivered if the listener is set.
func (p *EventPump) Close() {
	p.Lock()
	defer p.Unlock()

	if p.closed {
		return
	}

	p.closed = true

	p.signal()
}

func (p *EventPump) Done() <-chan struct{} {
	return p.donech
}

func (p *EventPump) signal() {
	select {
	case p.signalch <- struct{}{}:
	default:
	}
}

func (p *EventPump) start() {
	defer close(p.donech)

	for range p.signalch {
		for {
			l, events, closed := p.take()

			for i := range events {
				l.Notify(events[i])
			}

			switch {
			case len(events) > 0:
				continue
			case closed:
				return
			}

			break
		}
	}
}

func (p *EventPump) take() (HandleEventListener, []HandleEvent, bool) {
	p.Lock()
	defer p.Unlock()

	if p.listener == nil {
		return nil, nil, p.closed
	}

	events := p.events
	p.events = nil

	return p.listener, events, p.closed
}
