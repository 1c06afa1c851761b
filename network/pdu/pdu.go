// Package pdu encodes and decodes the protocol data units exchanged over an
// association. The layout follows the protobuf wire format:
//
//	message ProtocolMessage { bytes payload = 1; ControlMessage instruction = 2; }
//	message ControlMessage  { CommandType command_type = 1; HandshakeInfo handshake_info = 2; }
//	message HandshakeInfo   { AddressData origin = 1; fixed64 uid = 2; string cookie = 3; }
//	message AddressData     { string system = 1; string hostname = 2; uint32 port = 3; string protocol = 4; }
package pdu

import (
	"github.com/pkg/errors"
	"github.com/spikeekips/throttler/network/transport"
	"github.com/spikeekips/throttler/util"
	"google.golang.org/protobuf/encoding/protowire"
)

var ErrDecode = util.NewError("decode pdu")

type CommandType uint64

const (
	CommandAssociate                CommandType = 1
	CommandDisassociate             CommandType = 2
	CommandHeartbeat                CommandType = 3
	CommandDisassociateShuttingDown CommandType = 4
	CommandDisassociateQuarantined  CommandType = 5
)

const (
	fieldPayload     protowire.Number = 1
	fieldInstruction protowire.Number = 2

	fieldCommandType   protowire.Number = 1
	fieldHandshakeInfo protowire.Number = 2

	fieldOrigin protowire.Number = 1
	fieldUID    protowire.Number = 2
	fieldCookie protowire.Number = 3

	fieldSystem   protowire.Number = 1
	fieldHostname protowire.Number = 2
	fieldPort     protowire.Number = 3
	fieldProtocol protowire.Number = 4
)

type PDU interface {
	pdu()
}

type Associate struct {
	Origin transport.Address
	Cookie string
	UID    uint64
}

type Disassociate struct {
	Info transport.DisassociateInfo
}

type Heartbeat struct{}

type Payload struct {
	Payload []byte
}

func (Associate) pdu()    {}
func (Disassociate) pdu() {}
func (Heartbeat) pdu()    {}
func (Payload) pdu()      {}

func EncodeAssociate(origin transport.Address, uid uint64, cookie string) []byte {
	var addr []byte
	addr = appendString(addr, fieldSystem, origin.System)
	addr = appendString(addr, fieldHostname, origin.Host)
	addr = protowire.AppendTag(addr, fieldPort, protowire.VarintType)
	addr = protowire.AppendVarint(addr, uint64(origin.Port))
	addr = appendString(addr, fieldProtocol, origin.Protocol)

	var info []byte
	info = protowire.AppendTag(info, fieldOrigin, protowire.BytesType)
	info = protowire.AppendBytes(info, addr)
	info = protowire.AppendTag(info, fieldUID, protowire.Fixed64Type)
	info = protowire.AppendFixed64(info, uid)
	info = appendString(info, fieldCookie, cookie)

	return encodeControl(CommandAssociate, info)
}

func EncodeDisassociate(info transport.DisassociateInfo) []byte {
	switch info {
	case transport.DisassociateShutdown:
		return encodeControl(CommandDisassociateShuttingDown, nil)
	case transport.DisassociateQuarantined:
		return encodeControl(CommandDisassociateQuarantined, nil)
	default:
		return encodeControl(CommandDisassociate, nil)
	}
}

func EncodeHeartbeat() []byte {
	return encodeControl(CommandHeartbeat, nil)
}

func EncodePayload(b []byte) []byte {
	var m []byte
	m = protowire.AppendTag(m, fieldPayload, protowire.BytesType)

	return protowire.AppendBytes(m, b)
}

func Decode(b []byte) (PDU, error) {
	fs, err := fields(b)
	if err != nil {
		return nil, err
	}

	for i := range fs {
		switch f := fs[i]; {
		case f.num == fieldPayload && f.typ == protowire.BytesType:
			return Payload{Payload: f.b}, nil
		case f.num == fieldInstruction && f.typ == protowire.BytesType:
			return decodeControl(f.b)
		}
	}

	return nil, ErrDecode.Errorf("neither payload nor instruction")
}

// PeekOrigin extracts the origin address from the associate pdu. Any other
// or malformed pdu returns false.
func PeekOrigin(b []byte) (transport.Address, bool) {
	switch i, err := Decode(b); {
	case err != nil:
		return transport.Address{}, false
	default:
		a, ok := i.(Associate)
		if !ok {
			return transport.Address{}, false
		}

		return a.Origin, true
	}
}

func encodeControl(t CommandType, info []byte) []byte {
	var c []byte
	c = protowire.AppendTag(c, fieldCommandType, protowire.VarintType)
	c = protowire.AppendVarint(c, uint64(t))

	if info != nil {
		c = protowire.AppendTag(c, fieldHandshakeInfo, protowire.BytesType)
		c = protowire.AppendBytes(c, info)
	}

	var m []byte
	m = protowire.AppendTag(m, fieldInstruction, protowire.BytesType)

	return protowire.AppendBytes(m, c)
}

func decodeControl(b []byte) (PDU, error) {
	fs, err := fields(b)
	if err != nil {
		return nil, err
	}

	var t CommandType
	var info []byte

	for i := range fs {
		switch f := fs[i]; {
		case f.num == fieldCommandType && f.typ == protowire.VarintType:
			t = CommandType(f.v)
		case f.num == fieldHandshakeInfo && f.typ == protowire.BytesType:
			info = f.b
		}
	}

	switch t {
	case CommandAssociate:
		if info == nil {
			return nil, ErrDecode.Errorf("associate without handshake info")
		}

		return decodeAssociate(info)
	case CommandDisassociate:
		return Disassociate{Info: transport.DisassociateUnknown}, nil
	case CommandDisassociateShuttingDown:
		return Disassociate{Info: transport.DisassociateShutdown}, nil
	case CommandDisassociateQuarantined:
		return Disassociate{Info: transport.DisassociateQuarantined}, nil
	case CommandHeartbeat:
		return Heartbeat{}, nil
	default:
		return nil, ErrDecode.Errorf("unknown command type, %d", t)
	}
}

func decodeAssociate(b []byte) (PDU, error) {
	fs, err := fields(b)
	if err != nil {
		return nil, err
	}

	var a Associate
	var origin []byte

	for i := range fs {
		switch f := fs[i]; {
		case f.num == fieldOrigin && f.typ == protowire.BytesType:
			origin = f.b
		case f.num == fieldUID && f.typ == protowire.Fixed64Type:
			a.UID = f.v
		case f.num == fieldCookie && f.typ == protowire.BytesType:
			a.Cookie = string(f.b)
		}
	}

	if origin == nil {
		return nil, ErrDecode.Errorf("associate without origin")
	}

	addr, err := decodeAddress(origin)
	if err != nil {
		return nil, err
	}

	a.Origin = addr

	return a, nil
}

func decodeAddress(b []byte) (a transport.Address, _ error) {
	fs, err := fields(b)
	if err != nil {
		return a, err
	}

	for i := range fs {
		switch f := fs[i]; {
		case f.num == fieldSystem && f.typ == protowire.BytesType:
			a.System = string(f.b)
		case f.num == fieldHostname && f.typ == protowire.BytesType:
			a.Host = string(f.b)
		case f.num == fieldPort && f.typ == protowire.VarintType:
			a.Port = int(f.v)
		case f.num == fieldProtocol && f.typ == protowire.BytesType:
			a.Protocol = string(f.b)
		}
	}

	if err := a.IsValid(nil); err != nil {
		return a, ErrDecode.Wrap(err)
	}

	return a, nil
}

type field struct {
	b   []byte
	v   uint64
	num protowire.Number
	typ protowire.Type
}

func fields(b []byte) ([]field, error) {
	if len(b) < 1 {
		return nil, ErrDecode.Errorf("empty")
	}

	var fs []field

	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, ErrDecode.Wrap(errors.WithStack(protowire.ParseError(n)))
		}

		b = b[n:] //revive:disable-line:modifies-parameter

		f := field{num: num, typ: typ}

		switch typ {
		case protowire.VarintType:
			f.v, n = protowire.ConsumeVarint(b)
		case protowire.Fixed64Type:
			f.v, n = protowire.ConsumeFixed64(b)
		case protowire.BytesType:
			f.b, n = protowire.ConsumeBytes(b)
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
		}

		if n < 0 {
			return nil, ErrDecode.Wrap(errors.WithStack(protowire.ParseError(n)))
		}

		b = b[n:] //revive:disable-line:modifies-parameter

		fs = append(fs, f)
	}

	return fs, nil
}

func appendString(b []byte, num protowire.Number, s string) []byte {
	if len(s) < 1 {
		return b
	}

	b = protowire.AppendTag(b, num, protowire.BytesType) //revive:disable-line:modifies-parameter

	return protowire.AppendString(b, s)
}
