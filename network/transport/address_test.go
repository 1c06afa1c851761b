package transport

import (
	"testing"

	"github.com/spikeekips/throttler/util"
	"github.com/stretchr/testify/suite"
)

type testAddress struct {
	suite.Suite
}

func (t *testAddress) TestParse() {
	cases := []struct {
		name string
		s    string
		err  string
		a    Address
	}{
		{name: "full", s: "tcp://sys@127.0.0.1:4321", a: NewAddress("tcp", "sys", "127.0.0.1", 4321)},
		{name: "without protocol", s: "sys@127.0.0.1:4321", a: NewAddress("", "sys", "127.0.0.1", 4321)},
		{name: "naked", s: "localhost:80", a: NewAddress("", "", "localhost", 80)},
		{name: "empty", s: " ", err: "empty address"},
		{name: "without port", s: "tcp://sys@127.0.0.1", err: "missing port"},
		{name: "wrong port", s: "127.0.0.1:99999", err: "out of range"},
	}

	for i, c := range cases {
		i := i
		c := c

		t.Run(c.name, func() {
			a, err := ParseAddress(c.s)
			if len(c.err) > 0 {
				t.Error(err, "%d: %v", i, c.name)
				t.ErrorIs(err, util.ErrInvalid)
				t.ErrorContains(err, c.err)

				return
			}

			t.NoError(err, "%d: %v", i, c.name)
			t.Equal(c.a, a, "%d: %v", i, c.name)
		})
	}
}

func (t *testAddress) TestNaked() {
	a := NewAddress("trttl.tcp", "sys", "127.0.0.1", 4321)

	n := a.Naked()
	t.True(n.IsNaked())
	t.False(a.IsNaked())
	t.Equal("127.0.0.1:4321", n.String())
	t.Equal(n, a.WithProtocol("udp").WithSystem("other").Naked())
}

func (t *testAddress) TestString() {
	a := NewAddress("tcp", "sys", "::1", 4321)
	t.Equal("tcp://sys@[::1]:4321", a.String())

	b, err := ParseAddress(a.String())
	t.NoError(err)
	t.Equal(a, b)
}

func (t *testAddress) TestText() {
	a := NewAddress("tcp", "sys", "127.0.0.1", 4321)

	b, err := a.MarshalText()
	t.NoError(err)

	var u Address
	t.NoError(u.UnmarshalText(b))
	t.Equal(a, u)
}

func TestAddress(t *testing.T) {
	suite.Run(t, new(testAddress))
}
