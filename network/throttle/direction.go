package throttle

import (
	"strings"

	"github.com/spikeekips/throttler/util"
)

type Direction uint8

const (
	DirectionBoth Direction = iota
	DirectionSend
	DirectionReceive
)

func (d Direction) IncludesSend() bool {
	return d == DirectionBoth || d == DirectionSend
}

func (d Direction) IncludesReceive() bool {
	return d == DirectionBoth || d == DirectionReceive
}

func (d Direction) IsValid([]byte) error {
	switch d {
	case DirectionBoth, DirectionSend, DirectionReceive:
		return nil
	default:
		return util.ErrInvalid.Errorf("unknown direction, %d", d)
	}
}

func (d Direction) String() string {
	switch d {
	case DirectionSend:
		return "send"
	case DirectionReceive:
		return "receive"
	case DirectionBoth:
		return "both"
	default:
		return "<unknown>"
	}
}

func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "send":
		return DirectionSend, nil
	case "receive":
		return DirectionReceive, nil
	case "both", "":
		return DirectionBoth, nil
	default:
		return DirectionBoth, util.ErrInvalid.Errorf("unknown direction, %q", s)
	}
}

func (d Direction) MarshalText() ([]byte, error) {
	if err := d.IsValid(nil); err != nil {
		return nil, err
	}

	return []byte(d.String()), nil
}

func (d *Direction) UnmarshalText(b []byte) error {
	i, err := ParseDirection(string(b))
	if err != nil {
		return err
	}

	*d = i

	return nil
}
