package throttle

import (
	"context"

	"github.com/spikeekips/throttler/network/transport"
	"github.com/spikeekips/throttler/util"
)

type SetThrottle struct {
	Mode      Mode
	Address   transport.Address
	Direction Direction
}

type SetThrottleAck struct{}

type ForceDisassociate struct {
	Address transport.Address
}

type ForceDisassociateExplicitly struct {
	Address transport.Address
	Reason  transport.DisassociateInfo
}

type ForceDisassociateAck struct{}

// Ask handles the management command and returns the acknowledge.
func (m *Manager) Ask(ctx context.Context, cmd interface{}) (interface{}, error) {
	switch c := cmd.(type) {
	case SetThrottle:
		if err := m.SetThrottle(ctx, c.Address, c.Direction, c.Mode); err != nil {
			return nil, err
		}

		return SetThrottleAck{}, nil
	case ForceDisassociate:
		if err := m.ForceDisassociate(ctx, c.Address); err != nil {
			return nil, err
		}

		return ForceDisassociateAck{}, nil
	case ForceDisassociateExplicitly:
		if err := m.ForceDisassociateWithReason(ctx, c.Address, c.Reason); err != nil {
			return nil, err
		}

		return ForceDisassociateAck{}, nil
	default:
		return nil, util.ErrNotImplemented.Errorf("unknown command, %T", cmd)
	}
}

func isCommand(cmd interface{}) bool {
	switch cmd.(type) {
	case SetThrottle, ForceDisassociate, ForceDisassociateExplicitly:
		return true
	default:
		return false
	}
}
