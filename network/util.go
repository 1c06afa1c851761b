package network

import (
	"context"
	"io"
	"net"

	"github.com/pkg/errors"
)

// EnsureRead reads until b is filled. If EOF is reached before b is filled,
// io.ErrUnexpectedEOF is returned.
func EnsureRead(ctx context.Context, r io.Reader, b []byte) (int, error) {
	if len(b) < 1 {
		return 0, nil
	}

	var n int

	for n < len(b) {
		select {
		case <-ctx.Done():
			return n, errors.WithStack(ctx.Err())
		default:
		}

		i, err := r.Read(b[n:])
		n += i

		switch {
		case err == nil:
		case errors.Is(err, io.EOF):
			if n == len(b) {
				return n, nil
			}

			if n < 1 {
				return n, errors.WithStack(io.EOF)
			}

			return n, errors.WithStack(io.ErrUnexpectedEOF)
		default:
			return n, errors.WithStack(err)
		}
	}

	return n, nil
}

func IsValidAddr(s string) error {
	if len(s) < 1 {
		return errors.Errorf("empty address")
	}

	switch host, port, err := net.SplitHostPort(s); {
	case err != nil:
		return errors.WithStack(err)
	case len(host) < 1:
		return errors.Errorf("empty host")
	case len(port) < 1:
		return errors.Errorf("empty port")
	}

	return nil
}
