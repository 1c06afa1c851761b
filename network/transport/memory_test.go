package transport

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/spikeekips/throttler/util/logging"
	"github.com/stretchr/testify/suite"
	"go.uber.org/goleak"
)

type collectedEvents struct {
	events []HandleEvent
	ch     chan HandleEvent
	sync.Mutex
}

func newCollectedEvents() *collectedEvents {
	return &collectedEvents{ch: make(chan HandleEvent, 100)}
}

func (c *collectedEvents) Notify(e HandleEvent) {
	c.Lock()
	c.events = append(c.events, e)
	c.Unlock()

	c.ch <- e
}

type testMemoryTransport struct {
	suite.Suite
	registry *MemoryRegistry
}

func (t *testMemoryTransport) SetupTest() {
	t.registry = NewMemoryRegistry()
}

func (t *testMemoryTransport) newTransport(host string, port int) (*MemoryTransport, chan AssociationHandle) {
	tr := NewMemoryTransport(t.registry, NewAddress("", "sys", host, port))
	tr.SetLogging(logging.TestNilLogging)

	ch := make(chan AssociationHandle, 10)

	_, err := tr.Listen(context.Background(), AssociationEventListenerFunc(func(e AssociationEvent) {
		if i, ok := e.(InboundAssociation); ok {
			ch <- i.Handle
		}
	}))
	t.NoError(err)

	return tr, ch
}

func (t *testMemoryTransport) waitEvent(ch chan HandleEvent) HandleEvent {
	select {
	case <-time.After(time.Second * 2):
		t.Fail("wait event, but expired")

		return nil
	case e := <-ch:
		return e
	}
}

func (t *testMemoryTransport) TestListenTwice() {
	a, _ := t.newTransport("127.0.0.1", 1)
	defer a.Shutdown()

	b := NewMemoryTransport(t.registry, NewAddress("", "sys", "127.0.0.1", 1))
	_, err := b.Listen(context.Background(), AssociationEventListenerFunc(func(AssociationEvent) {}))
	t.Error(err)
	t.ErrorContains(err, "already listening")
}

func (t *testMemoryTransport) TestAssociateUnknown() {
	a, _ := t.newTransport("127.0.0.1", 1)
	defer a.Shutdown()

	_, err := a.Associate(context.Background(), NewAddress("", "", "127.0.0.1", 2))
	t.Error(err)
	t.ErrorContains(err, "remote transport")
}

func (t *testMemoryTransport) TestWriteInOrder() {
	a, _ := t.newTransport("127.0.0.1", 1)
	defer a.Shutdown()

	b, bch := t.newTransport("127.0.0.1", 2)
	defer b.Shutdown()

	lh, err := a.Associate(context.Background(), b.local)
	t.NoError(err)

	var rh AssociationHandle
	select {
	case <-time.After(time.Second * 2):
		t.Fail("wait inbound association, but expired")

		return
	case rh = <-bch:
	}

	t.Equal(a.local, rh.RemoteAddress())
	t.Equal(b.local, lh.RemoteAddress())

	// NOTE written before listener is set; buffered
	t.True(lh.Write([]byte("a")))
	t.True(lh.Write([]byte("b")))

	events := newCollectedEvents()
	rh.SetEventListener(events)

	t.True(lh.Write([]byte("c")))

	for _, expected := range []string{"a", "b", "c"} {
		e := t.waitEvent(events.ch)

		p, ok := e.(InboundPayload)
		t.True(ok)
		t.Equal(expected, string(p.Payload))
	}

	lh.Disassociate("test")

	e := t.waitEvent(events.ch)
	d, ok := e.(Disassociated)
	t.True(ok)
	t.Equal(DisassociateUnknown, d.Info)

	t.False(lh.Write([]byte("d")))
	t.False(rh.Write([]byte("d")))

	lh.SetEventListener(newCollectedEvents())
}

func (t *testMemoryTransport) TestTooLarge() {
	a, _ := t.newTransport("127.0.0.1", 1)
	defer a.Shutdown()

	b, bch := t.newTransport("127.0.0.1", 2)
	defer b.Shutdown()

	lh, err := a.Associate(context.Background(), b.local)
	t.NoError(err)

	<-bch

	t.False(lh.Write(make([]byte, a.MaximumPayloadBytes()+1)))
}

func (t *testMemoryTransport) TestShutdown() {
	a, _ := t.newTransport("127.0.0.1", 1)
	b, bch := t.newTransport("127.0.0.1", 2)
	defer b.Shutdown()

	lh, err := a.Associate(context.Background(), b.local)
	t.NoError(err)
	lh.SetEventListener(newCollectedEvents())

	rh := <-bch
	events := newCollectedEvents()
	rh.SetEventListener(events)

	t.NoError(a.Shutdown())

	e := t.waitEvent(events.ch)
	d, ok := e.(Disassociated)
	t.True(ok)
	t.Equal(DisassociateShutdown, d.Info)

	t.Equal(0, a.handles.Len())
	t.Equal(0, b.handles.Len())

	_, found := t.registry.transport(a.local)
	t.False(found)
}

func TestMemoryTransport(t *testing.T) {
	defer goleak.VerifyNone(t)

	suite.Run(t, new(testMemoryTransport))
}
