package launch

import (
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spikeekips/throttler/network"
	"github.com/spikeekips/throttler/network/throttle"
	"github.com/spikeekips/throttler/network/transport"
	"github.com/spikeekips/throttler/util"
	"github.com/stretchr/testify/suite"
	"gopkg.in/yaml.v3"
)

type testNodeDesign struct {
	suite.Suite
}

func (t *testNodeDesign) TestDecode() {
	b := []byte(`
address: quic://n0@127.0.0.1:4321
network:
  bind: 0.0.0.0:4321
  publish: 127.0.0.1:4321#tls_insecure
  max_payload: 333
throttle:
  ask_timeout: 9s
  directives:
    - address: 127.0.0.1:4322
      direction: receive
      mode:
        type: token-bucket
        capacity: 10
        tokens_per_second: 3
    - address: quic://n2@127.0.0.1:4323
      mode:
        type: blackhole
admin:
  bind: 127.0.0.1:0
`)

	var d NodeDesign
	t.NoError(d.DecodeYAML(b))
	t.NoError(d.IsValid(nil))

	t.Equal(transport.NewAddress("quic", "n0", "127.0.0.1", 4321), d.Address)

	t.Equal("0.0.0.0:4321", d.Network.Bind.String())
	t.Equal("127.0.0.1:4321#tls_insecure", d.Network.Publish.String())
	t.True(d.Network.Publish.TLSInsecure())
	t.Equal(333, d.Network.MaxPayload)

	t.Equal(time.Second*9, d.Throttle.AskTimeout)
	t.Equal(2, len(d.Throttle.Directives))

	d0 := d.Throttle.Directives[0]
	t.Equal(transport.NewAddress("", "", "127.0.0.1", 4322), d0.Address)
	t.Equal(throttle.DirectionReceive, d0.Direction)
	t.Equal(throttle.ModeTypeTokenBucket, d0.Mode.Type)
	t.Equal(10, d0.Mode.Capacity)
	t.Equal(float64(3), d0.Mode.TokensPerSecond)

	d1 := d.Throttle.Directives[1]
	t.Equal(throttle.DirectionBoth, d1.Direction)

	cmd, err := d1.SetThrottle()
	t.NoError(err)
	t.Equal(throttle.Blackhole{}, cmd.Mode)

	t.True(d.Admin.Enabled())
	t.Nil(d.Admin.RateLimit)
	t.Equal(time.Second*9, d.Throttle.ManagerArgs().AskTimeout)
}

func (t *testNodeDesign) TestAdminRateLimit() {
	b := []byte(`
address: n0@127.0.0.1:4321
admin:
  bind: 127.0.0.1:0
  rate_limit:
    every: 300ms
    burst: 3
`)

	var d NodeDesign
	t.NoError(d.DecodeYAML(b))
	t.NoError(d.IsValid(nil))

	t.NotNil(d.Admin.RateLimit)
	t.Equal(RateLimitDesign{Every: time.Millisecond * 300, Burst: 3}, *d.Admin.RateLimit)

	ub, err := yaml.Marshal(d.Admin)
	t.NoError(err)
	t.Contains(string(ub), "every: 300ms")
}

func (t *testNodeDesign) TestDefaults() {
	b := []byte(`
address: n0@127.0.0.1:4321
network:
  bind: 0.0.0.0:4321
`)

	var d NodeDesign
	t.NoError(d.DecodeYAML(b))
	t.NoError(d.IsValid(nil))

	t.Equal("127.0.0.1:4321", d.Network.Publish.String())
	t.False(d.Network.Publish.TLSInsecure())
	t.Equal(DefaultMaxPayload, d.Network.MaxPayload)
	t.Equal(DefaultAskTimeout, d.Throttle.AskTimeout)
	t.False(d.Admin.Enabled())
}

func (t *testNodeDesign) TestMarshal() {
	d := DefaultNodeDesign(transport.NewAddress("quic", "n0", "127.0.0.1", 4321))
	d.Throttle.Directives = []DirectiveDesign{
		{
			Address:   transport.NewAddress("", "", "127.0.0.1", 4322),
			Direction: throttle.DirectionSend,
			Mode:      throttle.ModeDesign{Type: throttle.ModeTypeBlackhole},
		},
	}
	t.NoError(d.IsValid(nil))

	b, err := yaml.Marshal(d)
	t.NoError(err)

	var ud NodeDesign
	t.NoError(ud.DecodeYAML(b))
	t.NoError(ud.IsValid(nil))

	t.Equal(d.Address, ud.Address)
	t.Equal(d.Network.Bind.String(), ud.Network.Bind.String())
	t.Equal(d.Network.Publish.String(), ud.Network.Publish.String())
	t.Equal(d.Throttle.Directives, ud.Throttle.Directives)
}

func (t *testNodeDesign) TestInvalid() {
	base := func() NodeDesign {
		return DefaultNodeDesign(transport.NewAddress("quic", "n0", "127.0.0.1", 4321))
	}

	t.Run("empty system", func() {
		d := base()
		d.Address.System = ""

		err := d.IsValid(nil)
		t.Error(err)
		t.ErrorIs(err, util.ErrInvalid)
		t.ErrorContains(err, "empty system")
	})

	t.Run("publish port mismatch", func() {
		d := base()
		d.Network.Publish = network.NewConnInfo(&net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 1}, false)

		err := d.IsValid(nil)
		t.Error(err)
		t.ErrorContains(err, "does not match")
	})

	t.Run("directive for local", func() {
		d := base()
		d.Throttle.Directives = []DirectiveDesign{{Address: d.Address.Naked()}}

		err := d.IsValid(nil)
		t.Error(err)
		t.ErrorContains(err, "local address")
	})

	t.Run("duplicated directive", func() {
		d := base()
		d.Throttle.Directives = []DirectiveDesign{
			{Address: transport.NewAddress("", "", "127.0.0.1", 1)},
			{Address: transport.NewAddress("quic", "a", "127.0.0.1", 1)},
		}

		err := d.IsValid(nil)
		t.Error(err)
		t.ErrorContains(err, "duplicated")
	})

	t.Run("invalid mode", func() {
		d := base()
		d.Throttle.Directives = []DirectiveDesign{
			{
				Address: transport.NewAddress("", "", "127.0.0.1", 1),
				Mode:    throttle.ModeDesign{Type: throttle.ModeTypeTokenBucket},
			},
		}

		err := d.IsValid(nil)
		t.Error(err)
		t.ErrorIs(err, util.ErrInvalid)
	})

	t.Run("wrong ask timeout", func() {
		d := base()
		d.Throttle.AskTimeout = -1

		err := d.IsValid(nil)
		t.Error(err)
		t.ErrorContains(err, "ask timeout")
	})

	t.Run("invalid admin bind", func() {
		d := base()
		d.Admin.Bind = "a:b:c"

		err := d.IsValid(nil)
		t.Error(err)
		t.ErrorIs(err, util.ErrInvalid)
	})

	t.Run("invalid admin rate limit", func() {
		d := base()
		d.Admin.Bind = "127.0.0.1:0"
		d.Admin.RateLimit = &RateLimitDesign{Every: time.Second}

		err := d.IsValid(nil)
		t.Error(err)
		t.ErrorIs(err, util.ErrInvalid)
		t.ErrorContains(err, "burst")
	})

	t.Run("unknown direction", func() {
		b := []byte(`
address: n0@127.0.0.1:4321
throttle:
  directives:
    - address: 127.0.0.1:4322
      direction: upward
`)

		var d NodeDesign
		err := d.DecodeYAML(b)
		t.Error(err)
		t.ErrorContains(err, "unknown direction")
	})
}

func (t *testNodeDesign) TestFromFile() {
	f := filepath.Join(t.T().TempDir(), "node.yml")

	d := DefaultNodeDesign(transport.NewAddress("quic", "n0", "127.0.0.1", 4321))

	b, err := yaml.Marshal(d)
	t.NoError(err)
	t.NoError(os.WriteFile(f, b, 0o600))

	ud, ub, err := NodeDesignFromFile(f)
	t.NoError(err)
	t.Equal(b, ub)
	t.Equal(d.Address, ud.Address)

	_, _, err = NodeDesignFromFile(filepath.Join(t.T().TempDir(), "not-found.yml"))
	t.Error(err)
}

func TestNodeDesign(t *testing.T) {
	suite.Run(t, new(testNodeDesign))
}
