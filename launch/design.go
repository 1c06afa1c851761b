package launch

import (
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spikeekips/throttler/network"
	"github.com/spikeekips/throttler/network/throttle"
	"github.com/spikeekips/throttler/network/transport"
	"github.com/spikeekips/throttler/util"
	"golang.org/x/time/rate"
	"gopkg.in/yaml.v3"
)

var (
	DefaultNetworkBind    = &net.UDPAddr{IP: net.ParseIP("0.0.0.0"), Port: 4321} //nolint:gomnd //...
	DefaultNetworkPublish = &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 4321} //nolint:gomnd //...
	DefaultMaxPayload     = 1 << 20
	DefaultAskTimeout     = time.Second * 3
	DefaultAdminRateLimit = RateLimitDesign{Every: time.Millisecond * 100, Burst: 10} //nolint:gomnd //...
)

// NodeDesign is the configuration of the node, loaded from the yaml file.
type NodeDesign struct {
	Address  transport.Address  `yaml:"address"`
	Network  NodeNetworkDesign  `yaml:"network"`
	Throttle NodeThrottleDesign `yaml:"throttle"`
	Admin    NodeAdminDesign    `yaml:"admin"`
}

func DefaultNodeDesign(address transport.Address) NodeDesign {
	bind := *DefaultNetworkBind
	bind.Port = address.Port

	return NodeDesign{
		Address: address,
		Network: NodeNetworkDesign{
			Bind:       &bind,
			Publish:    network.NewConnInfo(&net.UDPAddr{IP: DefaultNetworkPublish.IP, Port: address.Port}, true),
			MaxPayload: DefaultMaxPayload,
		},
		Throttle: NodeThrottleDesign{AskTimeout: DefaultAskTimeout},
	}
}

func NodeDesignFromFile(f string) (d NodeDesign, _ []byte, _ error) {
	b, err := os.ReadFile(filepath.Clean(f))
	if err != nil {
		return d, nil, errors.Wrap(err, "load NodeDesign from file")
	}

	if err := d.DecodeYAML(b); err != nil {
		return d, b, errors.WithMessage(err, "load NodeDesign from file")
	}

	if err := d.IsValid(nil); err != nil {
		return d, b, errors.WithMessage(err, "load NodeDesign from file")
	}

	return d, b, nil
}

func (d *NodeDesign) IsValid([]byte) error {
	e := util.ErrInvalid.Errorf("invalid NodeDesign")

	if err := d.Address.IsValid(nil); err != nil {
		return e.Wrap(err)
	}

	if len(d.Address.System) < 1 {
		return e.Errorf("empty system name in address")
	}

	if err := d.Network.IsValid(nil); err != nil {
		return e.Wrap(err)
	}

	if d.Network.Publish.Port() != d.Address.Port {
		return e.Errorf("publish port, %d does not match with address, %q", d.Network.Publish.Port(), d.Address)
	}

	if err := d.Throttle.IsValid(nil); err != nil {
		return e.Wrap(err)
	}

	for i := range d.Throttle.Directives {
		if d.Throttle.Directives[i].Address.Naked() == d.Address.Naked() {
			return e.Errorf("directive for local address, %q", d.Address)
		}
	}

	if err := d.Admin.IsValid(nil); err != nil {
		return e.Wrap(err)
	}

	return nil
}

func (d *NodeDesign) DecodeYAML(b []byte) error {
	if err := yaml.Unmarshal(b, d); err != nil {
		return errors.Wrap(err, "unmarshal NodeDesign")
	}

	return nil
}

type NodeNetworkDesign struct {
	Bind       *net.UDPAddr
	Publish    network.ConnInfo
	MaxPayload int
}

type nodeNetworkDesignYAMLMarshaler struct {
	Bind       string `yaml:"bind,omitempty"`
	Publish    string `yaml:"publish"`
	MaxPayload int    `yaml:"max_payload,omitempty"`
}

func (d *NodeNetworkDesign) IsValid([]byte) error {
	e := util.ErrInvalid.Errorf("invalid NodeNetworkDesign")

	switch {
	case d.Bind == nil:
		d.Bind = DefaultNetworkBind
	case d.Bind.Port < 1:
		return e.Errorf("invalid bind port")
	}

	if d.Publish.UDPAddr() == nil {
		d.Publish = network.NewConnInfo(&net.UDPAddr{IP: DefaultNetworkPublish.IP, Port: d.Bind.Port}, false)
	}

	if d.Publish.Port() < 1 {
		return e.Errorf("invalid publish port")
	}

	switch {
	case d.MaxPayload == 0:
		d.MaxPayload = DefaultMaxPayload
	case d.MaxPayload < 0:
		return e.Errorf("wrong max payload, %d", d.MaxPayload)
	}

	return nil
}

func (d NodeNetworkDesign) MarshalYAML() (interface{}, error) {
	var bind string

	if d.Bind != nil {
		bind = d.Bind.String()
	}

	return nodeNetworkDesignYAMLMarshaler{
		Bind:       bind,
		Publish:    d.Publish.String(),
		MaxPayload: d.MaxPayload,
	}, nil
}

func (d *NodeNetworkDesign) UnmarshalYAML(y *yaml.Node) error {
	var u nodeNetworkDesignYAMLMarshaler

	if err := y.Decode(&u); err != nil {
		return errors.Wrap(err, "unmarshal NodeNetworkDesign")
	}

	if s := strings.TrimSpace(u.Bind); len(s) > 0 {
		addr, err := net.ResolveUDPAddr("udp", s)
		if err != nil {
			return errors.Wrap(err, "invalid bind")
		}

		d.Bind = addr
	}

	if s := strings.TrimSpace(u.Publish); len(s) > 0 {
		ci, err := network.ParseConnInfo(s)
		if err != nil {
			return errors.WithMessage(err, "invalid publish")
		}

		d.Publish = ci
	}

	d.MaxPayload = u.MaxPayload

	return nil
}

type NodeThrottleDesign struct {
	AskTimeout time.Duration     `yaml:"ask_timeout,omitempty"`
	Directives []DirectiveDesign `yaml:"directives,omitempty"`
}

func (d *NodeThrottleDesign) IsValid([]byte) error {
	e := util.ErrInvalid.Errorf("invalid NodeThrottleDesign")

	switch {
	case d.AskTimeout == 0:
		d.AskTimeout = DefaultAskTimeout
	case d.AskTimeout < 0:
		return e.Errorf("wrong ask timeout, %v", d.AskTimeout)
	}

	if util.IsDuplicatedSlice(d.Directives, func(i DirectiveDesign) (bool, string) {
		return true, i.Address.Naked().String()
	}) {
		return e.Errorf("duplicated directive address")
	}

	for i := range d.Directives {
		if err := d.Directives[i].IsValid(nil); err != nil {
			return e.Wrap(err)
		}
	}

	return nil
}

func (d NodeThrottleDesign) ManagerArgs() *throttle.ManagerArgs {
	args := throttle.NewManagerArgs()

	if d.AskTimeout > 0 {
		args.AskTimeout = d.AskTimeout
	}

	return args
}

// DirectiveDesign is the throttle directive for the remote address; it is
// used by the node design and the admin API.
type DirectiveDesign struct {
	Address   transport.Address   `json:"address" yaml:"address"`
	Mode      throttle.ModeDesign `json:"mode" yaml:"mode"`
	Direction throttle.Direction  `json:"direction" yaml:"direction"`
}

func NewDirectiveDesign(i throttle.DirectiveInfo) DirectiveDesign {
	return DirectiveDesign{
		Address:   i.Address,
		Direction: i.Direction,
		Mode:      throttle.NewModeDesign(i.Mode),
	}
}

func (d DirectiveDesign) IsValid([]byte) error {
	e := util.ErrInvalid.Errorf("invalid DirectiveDesign")

	if err := util.CheckIsValid(nil, false, d.Address, d.Direction, d.Mode); err != nil {
		return e.Wrap(err)
	}

	return nil
}

func (d DirectiveDesign) SetThrottle() (throttle.SetThrottle, error) {
	mode, err := d.Mode.Mode()
	if err != nil {
		return throttle.SetThrottle{}, err
	}

	return throttle.SetThrottle{
		Address:   d.Address,
		Direction: d.Direction,
		Mode:      mode,
	}, nil
}

type NodeAdminDesign struct {
	// RateLimit limits the management commands; nil means no limit.
	RateLimit *RateLimitDesign `yaml:"rate_limit,omitempty"`
	// Bind is the listen address of admin http server; empty Bind disables
	// the admin server.
	Bind string `yaml:"bind,omitempty"`
}

func (d *NodeAdminDesign) IsValid([]byte) error {
	if len(d.Bind) < 1 {
		return nil
	}

	e := util.ErrInvalid.Errorf("invalid NodeAdminDesign")

	if _, err := net.ResolveTCPAddr("tcp", d.Bind); err != nil {
		return e.Wrap(errors.WithStack(err))
	}

	if d.RateLimit != nil {
		if err := d.RateLimit.IsValid(nil); err != nil {
			return e.Wrap(err)
		}
	}

	return nil
}

// RateLimitDesign allows Burst requests at once and one more in every
// Every.
type RateLimitDesign struct {
	Every time.Duration `yaml:"every"`
	Burst int           `yaml:"burst"`
}

func (d RateLimitDesign) IsValid([]byte) error {
	switch {
	case d.Every < 1:
		return util.ErrInvalid.Errorf("invalid rate limit; every should be over zero, %v", d.Every)
	case d.Burst < 1:
		return util.ErrInvalid.Errorf("invalid rate limit; burst should be over zero, %d", d.Burst)
	default:
		return nil
	}
}

func (d RateLimitDesign) Limit() rate.Limit {
	return rate.Every(d.Every)
}

func (d NodeAdminDesign) Enabled() bool {
	return len(d.Bind) > 0
}
