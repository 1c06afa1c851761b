package pdu

import (
	"testing"

	"github.com/spikeekips/throttler/network/transport"
	"github.com/stretchr/testify/suite"
	"google.golang.org/protobuf/encoding/protowire"
)

type testPDU struct {
	suite.Suite
}

func (t *testPDU) TestAssociate() {
	origin := transport.NewAddress("tcp", "sys", "127.0.0.1", 4333)

	b := EncodeAssociate(origin, 33, "cookie")

	i, err := Decode(b)
	t.NoError(err)

	a, ok := i.(Associate)
	t.True(ok)
	t.Equal(origin, a.Origin)
	t.Equal(uint64(33), a.UID)
	t.Equal("cookie", a.Cookie)
}

func (t *testPDU) TestPeekOrigin() {
	t.Run("associate", func() {
		origin := transport.NewAddress("tcp", "sys", "1.2.3.4", 5555)

		a, found := PeekOrigin(EncodeAssociate(origin, 1, ""))
		t.True(found)
		t.Equal(origin, a)
	})

	t.Run("payload", func() {
		_, found := PeekOrigin(EncodePayload([]byte("showme")))
		t.False(found)
	})

	t.Run("heartbeat", func() {
		_, found := PeekOrigin(EncodeHeartbeat())
		t.False(found)
	})

	t.Run("garbage", func() {
		_, found := PeekOrigin([]byte{0xff, 0xff, 0xff})
		t.False(found)
	})

	t.Run("empty", func() {
		_, found := PeekOrigin(nil)
		t.False(found)
	})
}

func (t *testPDU) TestPayload() {
	i, err := Decode(EncodePayload([]byte("findme")))
	t.NoError(err)

	p, ok := i.(Payload)
	t.True(ok)
	t.Equal([]byte("findme"), p.Payload)
}

func (t *testPDU) TestDisassociate() {
	for _, info := range []transport.DisassociateInfo{
		transport.DisassociateUnknown,
		transport.DisassociateShutdown,
		transport.DisassociateQuarantined,
	} {
		i, err := Decode(EncodeDisassociate(info))
		t.NoError(err)

		d, ok := i.(Disassociate)
		t.True(ok)
		t.Equal(info, d.Info)
	}
}

func (t *testPDU) TestUnknownCommand() {
	var c []byte
	c = protowire.AppendTag(c, fieldCommandType, protowire.VarintType)
	c = protowire.AppendVarint(c, 99)

	var b []byte
	b = protowire.AppendTag(b, fieldInstruction, protowire.BytesType)
	b = protowire.AppendBytes(b, c)

	_, err := Decode(b)
	t.Error(err)
	t.ErrorIs(err, ErrDecode)
}

func (t *testPDU) TestAssociateWithoutOrigin() {
	var info []byte
	info = protowire.AppendTag(info, fieldUID, protowire.Fixed64Type)
	info = protowire.AppendFixed64(info, 3)

	_, err := Decode(encodeControl(CommandAssociate, info))
	t.Error(err)
	t.ErrorContains(err, "without origin")
}

func TestPDU(t *testing.T) {
	suite.Run(t, new(testPDU))
}
