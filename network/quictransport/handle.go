package quictransport

import (
	"context"
	"io"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	"github.com/quic-go/quic-go"
	"github.com/spikeekips/throttler/network/transport"
)

const (
	errCodeDisassociate quic.ApplicationErrorCode = 0x0
	errCodeShutdown     quic.ApplicationErrorCode = 0x1
)

// handle is one quic stream over one quic connection.
type handle struct {
	*transport.EventPump
	owner     *Transport
	conn      quic.Connection
	stream    quic.Stream
	id        string
	local     transport.Address
	remote    transport.Address
	closeonce sync.Once
	writel    sync.Mutex
	closed    atomic.Bool
}

func newHandle(
	owner *Transport,
	id string,
	conn quic.Connection,
	stream quic.Stream,
	local, remote transport.Address,
) *handle {
	return &handle{
		EventPump: transport.NewEventPump(),
		owner:     owner,
		id:        id,
		conn:      conn,
		stream:    stream,
		local:     local,
		remote:    remote,
	}
}

func (h *handle) LocalAddress() transport.Address {
	return h.local
}

func (h *handle) RemoteAddress() transport.Address {
	return h.remote
}

func (h *handle) Write(b []byte) bool {
	switch {
	case h.closed.Load():
		return false
	case len(b) > h.owner.args.MaxPayload:
		return false
	}

	h.writel.Lock()
	defer h.writel.Unlock()

	if err := writeFrame(h.stream, b); err != nil {
		h.owner.Log().Trace().Err(err).Str("id", h.id).Msg("failed to write frame")

		return false
	}

	return true
}

func (h *handle) Disassociate(reason string) {
	h.close(errCodeDisassociate, reason, transport.DisassociateUnknown, false)
}

// read pushes the frames to the EventPump until the stream is closed.
func (h *handle) read(ctx context.Context) {
	for {
		b, err := readFrame(ctx, h.stream, h.owner.args.MaxPayload)
		if err != nil {
			info := transport.DisassociateUnknown

			var aerr *quic.ApplicationError
			if errors.As(err, &aerr) && aerr.ErrorCode == errCodeShutdown {
				info = transport.DisassociateShutdown
			}

			if !errors.Is(err, io.EOF) && !errors.Is(err, context.Canceled) {
				h.owner.Log().Trace().Err(err).Str("id", h.id).Msg("failed to read frame")
			}

			h.close(errCodeDisassociate, "read failed", info, true)

			return
		}

		_ = h.Push(transport.InboundPayload{Payload: b})
	}
}

func (h *handle) close(code quic.ApplicationErrorCode, reason string, info transport.DisassociateInfo, notify bool) {
	h.closeonce.Do(func() {
		h.closed.Store(true)
		_ = h.owner.handles.Remove(h.id)

		// NOTE closing connection also closes the stream; the remote gets the
		// error code.
		_ = h.conn.CloseWithError(code, reason)

		if notify {
			_ = h.Push(transport.Disassociated{Info: info})
		}

		h.EventPump.Close()

		h.owner.Log().Trace().Str("id", h.id).Str("reason", reason).Msg("closed")
	})
}
