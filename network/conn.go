package network

import (
	"net"
	"net/url"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/spikeekips/throttler/util"
)

// ConnInfo is the UDP address with the TLS insecure flag; the string form is
// "<host>:<port>#tls_insecure".
type ConnInfo struct {
	addr        *net.UDPAddr
	s           string
	tlsinsecure bool
}

func NewConnInfo(addr *net.UDPAddr, tlsinsecure bool) ConnInfo {
	return ConnInfo{addr: addr, s: addr.String(), tlsinsecure: tlsinsecure}
}

func ParseConnInfo(s string) (ConnInfo, error) {
	e := util.ErrInvalid.Errorf("parse conn info")

	as, tlsinsecure := ParseTLSInsecure(s)

	if err := IsValidAddr(as); err != nil {
		return ConnInfo{}, e.Wrap(err)
	}

	addr, err := net.ResolveUDPAddr("udp", as)
	if err != nil {
		return ConnInfo{}, e.Wrap(errors.WithStack(err))
	}

	return ConnInfo{addr: addr, s: as, tlsinsecure: tlsinsecure}, nil
}

func (c ConnInfo) IsValid([]byte) error {
	if c.addr == nil {
		return util.ErrInvalid.Errorf("empty address")
	}

	return nil
}

func (c ConnInfo) UDPAddr() *net.UDPAddr {
	return c.addr
}

func (c ConnInfo) Host() string {
	h, _, _ := net.SplitHostPort(c.s)

	return h
}

func (c ConnInfo) Port() int {
	if c.addr == nil {
		return 0
	}

	return c.addr.Port
}

func (c ConnInfo) TLSInsecure() bool {
	return c.tlsinsecure
}

func (c ConnInfo) String() string {
	return ConnInfoToString(c.s, c.tlsinsecure)
}

func (c ConnInfo) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *ConnInfo) UnmarshalText(b []byte) error {
	i, err := ParseConnInfo(string(b))
	if err != nil {
		return err
	}

	*c = i

	return nil
}

func HasTLSInsecure(s string) bool {
	v, err := url.ParseQuery(s)
	if err != nil {
		return false
	}

	return v.Has("tls_insecure")
}

func ParseTLSInsecure(s string) (string, bool) {
	switch i := strings.Index(s, "#"); {
	case i < 0:
		return s, false
	case len(s[i:]) > 0:
		return s[:i], HasTLSInsecure(s[i+1:])
	default:
		return s[:i], false
	}
}

func ConnInfoToString(addr string, tlsinsecure bool) string { // revive:disable-line:flag-parameter
	ti := ""
	if tlsinsecure {
		ti = "#tls_insecure"
	}

	return addr + ti
}

func ConnInfoLog(ci ConnInfo) *zerolog.Event {
	return zerolog.Dict().
		Stringer("addr", ci.addr).
		Bool("tls_insecure", ci.TLSInsecure())
}
