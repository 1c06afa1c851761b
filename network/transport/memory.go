package transport

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/spikeekips/throttler/util"
	"github.com/spikeekips/throttler/util/logging"
)

const (
	MemorySchemeIdentifier   = "memory"
	defaultMemoryMaxPayloads = 1 << 16
)

// MemoryRegistry connects the MemoryTransports in the same process.
type MemoryRegistry struct {
	transports *util.LockedMap[string, *MemoryTransport]
}

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{transports: util.NewLockedMap[string, *MemoryTransport]()}
}

func (r *MemoryRegistry) register(t *MemoryTransport) error {
	if _, created := r.transports.GetOrCreate(t.local.HostPort(), func() *MemoryTransport {
		return t
	}); !created {
		return errors.Errorf("already listening, %q", t.local.HostPort())
	}

	return nil
}

func (r *MemoryRegistry) unregister(t *MemoryTransport) {
	if i, found := r.transports.Value(t.local.HostPort()); found && i == t {
		_ = r.transports.Remove(t.local.HostPort())
	}
}

func (r *MemoryRegistry) transport(addr Address) (*MemoryTransport, bool) {
	return r.transports.Value(addr.HostPort())
}

// MemoryTransport is the Transport without network; the associations are
// connected thru MemoryRegistry.
type MemoryTransport struct {
	*logging.Logging
	registry   *MemoryRegistry
	listener   *util.Locked[AssociationEventListener]
	handles    *util.LockedMap[string, *memoryHandle]
	local      Address
	maxPayload int
}

func NewMemoryTransport(registry *MemoryRegistry, local Address) *MemoryTransport {
	if len(local.Protocol) < 1 {
		local.Protocol = MemorySchemeIdentifier //revive:disable-line:modifies-parameter
	}

	return &MemoryTransport{
		Logging: logging.NewLogging(func(zctx zerolog.Context) zerolog.Context {
			return zctx.Str("module", "memory-transport").Stringer("local", local)
		}),
		registry:   registry,
		local:      local,
		listener:   util.EmptyLocked[AssociationEventListener](),
		handles:    util.NewLockedMap[string, *memoryHandle](),
		maxPayload: defaultMemoryMaxPayloads,
	}
}

func (*MemoryTransport) SchemeIdentifier() string {
	return MemorySchemeIdentifier
}

func (*MemoryTransport) IsResponsibleFor(Address) bool {
	return true
}

func (t *MemoryTransport) MaximumPayloadBytes() int {
	return t.maxPayload
}

func (t *MemoryTransport) Listen(_ context.Context, l AssociationEventListener) (Address, error) {
	if _, err := t.listener.Set(func(_ AssociationEventListener, isempty bool) (AssociationEventListener, error) {
		if !isempty {
			return nil, errors.Errorf("already listening")
		}

		return l, nil
	}); err != nil {
		return Address{}, err
	}

	if err := t.registry.register(t); err != nil {
		_ = t.listener.EmptyValue()

		return Address{}, err
	}

	t.Log().Debug().Msg("listening")

	return t.local, nil
}

func (t *MemoryTransport) Associate(_ context.Context, remote Address) (AssociationHandle, error) {
	rt, found := t.registry.transport(remote)
	if !found {
		return nil, util.ErrNotFound.Errorf("remote transport, %q", remote)
	}

	rl, isempty := rt.listener.Value()
	if isempty {
		return nil, errors.Errorf("remote transport not listening, %q", remote)
	}

	id := util.UUID().String()

	lh := newMemoryHandle(id, t, t.local, rt.local)
	rh := newMemoryHandle(id, rt, rt.local, t.local)
	lh.peer, rh.peer = rh, lh

	_ = t.handles.SetValue(id, lh)
	_ = rt.handles.SetValue(id, rh)

	t.Log().Trace().Str("id", id).Stringer("remote", remote).Msg("associated")

	rl.Notify(InboundAssociation{Handle: rh})

	return lh, nil
}

func (*MemoryTransport) ManagementCommand(context.Context, interface{}) (bool, error) {
	return false, nil
}

func (t *MemoryTransport) Shutdown() error {
	t.registry.unregister(t)
	_ = t.listener.EmptyValue()

	var hs []*memoryHandle

	t.handles.Traverse(func(_ string, h *memoryHandle) bool {
		hs = append(hs, h)

		return true
	})

	for i := range hs {
		hs[i].close(DisassociateShutdown)
	}

	t.Log().Debug().Int("associations", len(hs)).Msg("shutdown")

	return nil
}

type memoryHandle struct {
	*EventPump
	owner     *MemoryTransport
	peer      *memoryHandle
	id        string
	local     Address
	remote    Address
	closeonce sync.Once
	closed    atomic.Bool
}

func newMemoryHandle(id string, owner *MemoryTransport, local, remote Address) *memoryHandle {
	return &memoryHandle{
		EventPump: NewEventPump(),
		id:        id,
		owner:     owner,
		local:     local,
		remote:    remote,
	}
}

func (h *memoryHandle) LocalAddress() Address {
	return h.local
}

func (h *memoryHandle) RemoteAddress() Address {
	return h.remote
}

func (h *memoryHandle) Write(b []byte) bool {
	switch {
	case h.closed.Load():
		return false
	case len(b) > h.owner.maxPayload:
		return false
	}

	c := make([]byte, len(b))
	copy(c, b)

	return h.peer.Push(InboundPayload{Payload: c})
}

func (h *memoryHandle) Disassociate(reason string) {
	h.owner.Log().Trace().Str("id", h.id).Str("reason", reason).Msg("disassociate")

	h.close(DisassociateUnknown)
}

func (h *memoryHandle) close(info DisassociateInfo) {
	h.closeonce.Do(func() {
		h.closed.Store(true)
		_ = h.owner.handles.Remove(h.id)
		h.EventPump.Close()

		h.peer.remoteClosed(info)
	})
}

func (h *memoryHandle) remoteClosed(info DisassociateInfo) {
	h.closeonce.Do(func() {
		h.closed.Store(true)
		_ = h.owner.handles.Remove(h.id)

		_ = h.Push(Disassociated{Info: info})
		h.EventPump.Close()
	})
}
