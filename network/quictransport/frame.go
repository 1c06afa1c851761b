package quictransport

import (
	"context"
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
	"github.com/spikeekips/throttler/network"
)

const frameHeaderSize = 4

func writeFrame(w io.Writer, b []byte) error {
	f := make([]byte, frameHeaderSize+len(b))
	binary.BigEndian.PutUint32(f[:frameHeaderSize], uint32(len(b)))
	copy(f[frameHeaderSize:], b)

	_, err := w.Write(f)

	return errors.WithStack(err)
}

func readFrame(ctx context.Context, r io.Reader, maxSize int) ([]byte, error) {
	h := make([]byte, frameHeaderSize)

	if _, err := network.EnsureRead(ctx, r, h); err != nil {
		return nil, err
	}

	size := binary.BigEndian.Uint32(h)
	if int64(size) > int64(maxSize) {
		return nil, errors.Errorf("too large frame, %d > %d", size, maxSize)
	}

	b := make([]byte, size)

	if _, err := network.EnsureRead(ctx, r, b); err != nil {
		return nil, err
	}

	return b, nil
}
