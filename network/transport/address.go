package transport

import (
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/spikeekips/throttler/util"
)

// Address is the logical address of the remote endpoint,
// "<protocol>://<system>@<host>:<port>".
type Address struct {
	Protocol string
	System   string
	Host     string
	Port     int
}

func NewAddress(protocol, system, host string, port int) Address {
	return Address{Protocol: protocol, System: system, Host: host, Port: port}
}

func ParseAddress(s string) (a Address, _ error) {
	e := util.ErrInvalid.Errorf("parse address")

	i := strings.TrimSpace(s)
	if len(i) < 1 {
		return a, e.Errorf("empty address")
	}

	if !strings.Contains(i, "://") {
		i = "//" + i
	}

	u, err := url.Parse(i)
	if err != nil {
		return a, e.Wrap(errors.WithStack(err))
	}

	host, port, err := net.SplitHostPort(u.Host)
	if err != nil {
		return a, e.Wrap(errors.WithStack(err))
	}

	p, err := strconv.ParseUint(port, 10, 16)
	if err != nil {
		return a, e.Wrap(errors.WithStack(err))
	}

	a = Address{Protocol: u.Scheme, Host: host, Port: int(p)}

	if u.User != nil {
		a.System = u.User.Username()
	}

	if err := a.IsValid(nil); err != nil {
		return Address{}, err
	}

	return a, nil
}

func (a Address) IsValid([]byte) error {
	e := util.ErrInvalid.Errorf("invalid address")

	switch {
	case len(a.Host) < 1:
		return e.Errorf("empty host")
	case a.Port < 0 || a.Port > 65535:
		return e.Errorf("wrong port, %d", a.Port)
	}

	return nil
}

// Naked strips the protocol and system name; naked addresses are used as the
// key of the throttling directives.
func (a Address) Naked() Address {
	return Address{Host: a.Host, Port: a.Port}
}

func (a Address) IsNaked() bool {
	return len(a.Protocol) < 1 && len(a.System) < 1
}

func (a Address) WithProtocol(p string) Address {
	a.Protocol = p

	return a
}

func (a Address) WithSystem(s string) Address {
	a.System = s

	return a
}

func (a Address) HostPort() string {
	return net.JoinHostPort(a.Host, strconv.Itoa(a.Port))
}

func (a Address) String() string {
	var sb strings.Builder

	if len(a.Protocol) > 0 {
		_, _ = sb.WriteString(a.Protocol)
		_, _ = sb.WriteString("://")
	}

	if len(a.System) > 0 {
		_, _ = sb.WriteString(a.System)
		_, _ = sb.WriteString("@")
	}

	_, _ = sb.WriteString(a.HostPort())

	return sb.String()
}

func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a *Address) UnmarshalText(b []byte) error {
	i, err := ParseAddress(string(b))
	if err != nil {
		return err
	}

	*a = i

	return nil
}
