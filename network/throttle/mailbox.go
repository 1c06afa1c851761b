package throttle

import "sync"

// mailbox is the unbounded FIFO queue; post never blocks.
type mailbox[T any] struct {
	signalch chan struct{}
	items    []T
	closed   bool
	sync.Mutex
}

func newMailbox[T any]() *mailbox[T] {
	return &mailbox[T]{signalch: make(chan struct{}, 1)}
}

func (m *mailbox[T]) post(i T) bool {
	m.Lock()
	defer m.Unlock()

	if m.closed {
		return false
	}

	m.items = append(m.items, i)

	select {
	case m.signalch <- struct{}{}:
	default:
	}

	return true
}

// receive blocks until any item is posted; it returns false after close.
func (m *mailbox[T]) receive() ([]T, bool) {
	for {
		m.Lock()

		switch {
		case m.closed:
			m.Unlock()

			return nil, false
		case len(m.items) > 0:
			items := m.items
			m.items = nil

			m.Unlock()

			return items, true
		}

		m.Unlock()

		<-m.signalch
	}
}

func (m *mailbox[T]) close() {
	m.Lock()
	defer m.Unlock()

	if m.closed {
		return
	}

	m.closed = true
	m.items = nil

	select {
	case m.signalch <- struct{}{}:
	default:
	}
}
