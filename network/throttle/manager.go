package throttle

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/spikeekips/throttler/network/transport"
	"github.com/spikeekips/throttler/util"
	"github.com/spikeekips/throttler/util/logging"
	"golang.org/x/sync/errgroup"
)

var defaultAskTimeout = time.Second * 3

type ManagerArgs struct {
	// Clock returns monotonic nanoseconds.
	Clock func() int64
	// AskTimeout bounds the waiting for each association to acknowledge the
	// mode update or to be stopped.
	AskTimeout time.Duration
}

func NewManagerArgs() *ManagerArgs {
	return &ManagerArgs{
		Clock:      MonotonicNanos,
		AskTimeout: defaultAskTimeout,
	}
}

func (args *ManagerArgs) IsValid([]byte) error {
	e := util.ErrInvalid.Errorf("invalid ManagerArgs")

	switch {
	case args.Clock == nil:
		return e.Errorf("empty clock")
	case args.AskTimeout <= 0:
		return e.Errorf("wrong ask timeout, %v", args.AskTimeout)
	}

	return nil
}

type directive struct {
	mode      Mode
	direction Direction
}

var defaultDirective = directive{mode: Unthrottled{}, direction: DirectionBoth}

func (d directive) inbound() Mode {
	if d.direction.IncludesReceive() {
		return d.mode
	}

	return Unthrottled{}
}

func (d directive) outbound() Mode {
	if d.direction.IncludesSend() {
		return d.mode
	}

	return Unthrottled{}
}

type DirectiveInfo struct {
	Mode      Mode
	Address   transport.Address
	Direction Direction
}

type handleEntry struct {
	handle *Handle
	naked  transport.Address
}

// Manager keeps the throttling directives by naked address and the handles of
// the live associations.
type Manager struct {
	*logging.Logging
	args                *ManagerArgs
	directives          map[transport.Address]directive
	associationListener *util.Locked[transport.AssociationEventListener]
	associations        *util.LockedMap[string, *association]
	addressLocks        *util.LockedMap[transport.Address, *sync.Mutex]
	handles             []handleEntry
	sync.RWMutex
}

func NewManager(args *ManagerArgs) *Manager {
	return &Manager{
		Logging: logging.NewLogging(func(zctx zerolog.Context) zerolog.Context {
			return zctx.Str("module", "throttle-manager")
		}),
		args:                args,
		directives:          map[transport.Address]directive{},
		associationListener: util.EmptyLocked[transport.AssociationEventListener](),
		associations:        util.NewLockedMap[string, *association](),
		addressLocks:        util.NewLockedMap[transport.Address, *sync.Mutex](),
	}
}

// SetThrottle sets the directive of address and applies it to the live
// associations of address; it returns after every inbound association
// acknowledged it or the ask timeout expired.
func (m *Manager) SetThrottle(ctx context.Context, address transport.Address, direction Direction, mode Mode) error {
	if err := m.checkDirective(direction, mode); err != nil {
		return err
	}

	naked := address.Naked()

	l := m.addressLock(naked)
	l.Lock()
	defer l.Unlock()

	var asks []*modeAsk

	func() {
		m.Lock()
		defer m.Unlock()

		d := directive{mode: mode, direction: direction}
		m.directives[naked] = d

		// NOTE the new directive replaces the previous one; the unselected
		// direction goes back to Unthrottled.
		for i := range m.handles {
			e := m.handles[i]
			if e.naked != naked {
				continue
			}

			e.handle.setOutboundMode(d.outbound())
			asks = append(asks, m.askMode(e.handle.association, d.inbound()))
		}
	}()

	metricCommands.WithLabelValues("set-throttle").Inc()

	m.Log().Debug().
		Stringer("address", naked).
		Stringer("direction", direction).
		Stringer("mode", mode).
		Int("associations", len(asks)).
		Msg("set throttle")

	return m.waitAsks(ctx, asks)
}

// ForceDisassociate stops the live associations of address. The handles are
// removed from the table before the associations are stopped.
func (m *Manager) ForceDisassociate(ctx context.Context, address transport.Address) error {
	return m.forceDisassociate(ctx, address, func(h *Handle) {
		h.Disassociate("forced")
	})
}

// ForceDisassociateWithReason stops the live associations of address like
// ForceDisassociate, but the upstream listeners are notified with the reason.
func (m *Manager) ForceDisassociateWithReason(
	ctx context.Context, address transport.Address, reason transport.DisassociateInfo,
) error {
	return m.forceDisassociate(ctx, address, func(h *Handle) {
		h.DisassociateWithFailure(reason)
	})
}

func (m *Manager) InboundMode(address transport.Address) Mode {
	m.RLock()
	defer m.RUnlock()

	return m.directive(address.Naked()).inbound()
}

func (m *Manager) OutboundMode(address transport.Address) Mode {
	m.RLock()
	defer m.RUnlock()

	return m.directive(address.Naked()).outbound()
}

func (m *Manager) Directives() []DirectiveInfo {
	m.RLock()
	defer m.RUnlock()

	ds := make([]DirectiveInfo, 0, len(m.directives))

	for k := range m.directives {
		d := m.directives[k]

		ds = append(ds, DirectiveInfo{Address: k, Direction: d.direction, Mode: d.mode})
	}

	sort.Slice(ds, func(i, j int) bool {
		return ds[i].Address.String() < ds[j].Address.String()
	})

	return ds
}

// Associations returns the number of the checked-in associations by naked
// address.
func (m *Manager) Associations() map[transport.Address]int {
	m.RLock()
	defer m.RUnlock()

	counts := map[transport.Address]int{}

	for i := range m.handles {
		counts[m.handles[i].naked]++
	}

	return counts
}

// Close stops all the associations.
func (m *Manager) Close(ctx context.Context) error {
	var as []*association

	m.associations.Traverse(func(_ string, a *association) bool {
		as = append(as, a)

		return true
	})

	for i := range as {
		_ = as[i].post(eventStop{})
	}

	return m.waitStopped(ctx, as)
}

func (m *Manager) setAssociationListener(l transport.AssociationEventListener) {
	if l == nil {
		_ = m.associationListener.EmptyValue()

		return
	}

	_ = m.associationListener.SetValue(l)
}

// inboundAssociation starts the association for the handle initiated by the
// remote; the origin is not known until the handshake frame arrives.
func (m *Manager) inboundAssociation(wrapped transport.AssociationHandle) *Handle {
	a := m.newAssociation(wrapped, true)

	a.start(newInboundAssociationData())
	_ = a.post(eventExposedHandle{handle: a.handle})

	return a.handle
}

// outboundAssociation starts the association for the handle initiated by
// local; the remote address is already known.
func (m *Manager) outboundAssociation(wrapped transport.AssociationHandle) *Handle {
	a := m.newAssociation(wrapped, false)
	naked := wrapped.RemoteAddress().Naked()

	m.Lock()

	d := m.directive(naked)
	a.handle.setOutboundMode(d.outbound())
	m.handles = append(m.handles, handleEntry{naked: naked, handle: a.handle})

	a.start(newOutboundAssociationData(a.handle, d.inbound()))

	m.Unlock()

	wrapped.SetEventListener(a)

	return a.handle
}

func (m *Manager) newAssociation(wrapped transport.AssociationHandle, inbound bool) *association {
	a := newAssociation(m, wrapped, inbound, m.args.Clock)
	_ = a.SetLogging(m.Logging)

	_ = m.associations.SetValue(a.id, a)

	return a
}

// checkin registers the handle, whose origin is found, and applies the
// directive of origin. checkin does not wait the acknowledge; it is called
// by the association itself.
func (m *Manager) checkin(origin transport.Address, h *Handle) {
	naked := origin.Naked()

	m.Lock()
	defer m.Unlock()

	m.handles = append(m.handles, handleEntry{naked: naked, handle: h})

	d := m.directive(naked)

	if d.direction.IncludesSend() {
		h.setOutboundMode(d.mode)
	}

	_ = m.askMode(h.association, d.inbound())

	m.Log().Trace().Stringer("origin", naked).Stringer("mode", d.mode).Msg("checked in")
}

func (m *Manager) removeAssociation(a *association) {
	_ = m.associations.Remove(a.id)

	m.Lock()
	defer m.Unlock()

	m.handles = filterHandles(m.handles, func(e handleEntry) bool {
		return e.handle != a.handle
	})
}

func (m *Manager) forceDisassociate(ctx context.Context, address transport.Address, f func(*Handle)) error {
	naked := address.Naked()

	l := m.addressLock(naked)
	l.Lock()
	defer l.Unlock()

	var removed []*Handle

	func() {
		m.Lock()
		defer m.Unlock()

		m.handles = filterHandles(m.handles, func(e handleEntry) bool {
			if e.naked == naked {
				removed = append(removed, e.handle)

				return false
			}

			return true
		})
	}()

	metricCommands.WithLabelValues("force-disassociate").Inc()

	m.Log().Debug().Stringer("address", naked).Int("associations", len(removed)).Msg("force disassociate")

	as := make([]*association, len(removed))

	for i := range removed {
		f(removed[i])

		as[i] = removed[i].association
	}

	return m.waitStopped(ctx, as)
}

func (m *Manager) directive(naked transport.Address) directive {
	d, found := m.directives[naked]
	if !found {
		return defaultDirective
	}

	return d
}

func (*Manager) checkDirective(direction Direction, mode Mode) error {
	e := util.ErrInvalid.Errorf("invalid directive")

	if err := direction.IsValid(nil); err != nil {
		return e.Wrap(err)
	}

	switch t := mode.(type) {
	case nil:
		return e.Errorf("empty mode")
	case util.IsValider:
		if err := t.IsValid(nil); err != nil {
			return e.Wrap(err)
		}
	}

	return nil
}

func (m *Manager) addressLock(naked transport.Address) *sync.Mutex {
	l, _ := m.addressLocks.GetOrCreate(naked, func() *sync.Mutex {
		return &sync.Mutex{}
	})

	return l
}

type modeAsk struct {
	association *association
	ack         chan struct{}
}

// askMode posts the mode to the association. If the association is already
// stopped, the returned modeAsk is completed.
func (*Manager) askMode(a *association, mode Mode) *modeAsk {
	ask := &modeAsk{association: a, ack: make(chan struct{})}

	if !a.post(eventMode{mode: mode, ack: ask.ack}) {
		close(ask.ack)
	}

	return ask
}

func (m *Manager) waitAsks(ctx context.Context, asks []*modeAsk) error {
	if len(asks) < 1 {
		return nil
	}

	eg, ectx := errgroup.WithContext(ctx)

	for i := range asks {
		ask := asks[i]

		eg.Go(func() error {
			return m.waitWithTimeout(ectx, ask.association, ask.ack)
		})
	}

	if err := eg.Wait(); err != nil {
		return err
	}

	return errors.WithStack(ctx.Err())
}

func (m *Manager) waitStopped(ctx context.Context, as []*association) error {
	if len(as) < 1 {
		return nil
	}

	eg, ectx := errgroup.WithContext(ctx)

	for i := range as {
		a := as[i]

		eg.Go(func() error {
			return m.waitWithTimeout(ectx, a, a.Done())
		})
	}

	if err := eg.Wait(); err != nil {
		return err
	}

	return errors.WithStack(ctx.Err())
}

// waitWithTimeout waits until donech is closed or the association is
// stopped. The expired ask timeout is regarded as done.
func (m *Manager) waitWithTimeout(ctx context.Context, a *association, donech <-chan struct{}) error {
	tctx, cancel := context.WithTimeout(ctx, m.args.AskTimeout)
	defer cancel()

	select {
	case <-donech:
		return nil
	case <-a.Done():
		return nil
	case <-tctx.Done():
		if err := ctx.Err(); err != nil {
			return errors.WithStack(err)
		}

		metricAskTimeouts.Inc()

		m.Log().Warn().Str("association", a.id).Dur("timeout", m.args.AskTimeout).Msg("ask expired")

		return nil
	}
}

func filterHandles(hs []handleEntry, keep func(handleEntry) bool) []handleEntry {
	n := hs[:0]

	for i := range hs {
		if keep(hs[i]) {
			n = append(n, hs[i])
		}
	}

	for i := len(n); i < len(hs); i++ {
		hs[i] = handleEntry{}
	}

	return n
}
