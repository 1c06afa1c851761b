package transport

import (
	"strings"

	"github.com/spikeekips/throttler/util"
)

type DisassociateInfo uint8

const (
	DisassociateUnknown DisassociateInfo = iota
	DisassociateShutdown
	DisassociateQuarantined
)

func (d DisassociateInfo) String() string {
	switch d {
	case DisassociateShutdown:
		return "shutdown"
	case DisassociateQuarantined:
		return "quarantined"
	default:
		return "unknown"
	}
}

func ParseDisassociateInfo(s string) (DisassociateInfo, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "unknown", "":
		return DisassociateUnknown, nil
	case "shutdown":
		return DisassociateShutdown, nil
	case "quarantined":
		return DisassociateQuarantined, nil
	default:
		return DisassociateUnknown, util.ErrInvalid.Errorf("unknown disassociate info, %q", s)
	}
}

func (d DisassociateInfo) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *DisassociateInfo) UnmarshalText(b []byte) error {
	i, err := ParseDisassociateInfo(string(b))
	if err != nil {
		return err
	}

	*d = i

	return nil
}

type HandleEvent interface {
	handleEvent()
}

// InboundPayload is the frame received from the remote.
type InboundPayload struct {
	Payload []byte
}

func (InboundPayload) handleEvent() {}

// Disassociated notifies that the association is closed.
type Disassociated struct {
	Info DisassociateInfo
}

func (Disassociated) handleEvent() {}

type HandleEventListener interface {
	Notify(HandleEvent)
}

type HandleEventListenerFunc func(HandleEvent)

func (f HandleEventListenerFunc) Notify(e HandleEvent) {
	f(e)
}

type AssociationEvent interface {
	associationEvent()
}

// InboundAssociation notifies the new association initiated by the remote.
type InboundAssociation struct {
	Handle AssociationHandle
}

func (InboundAssociation) associationEvent() {}

type AssociationEventListener interface {
	Notify(AssociationEvent)
}

type AssociationEventListenerFunc func(AssociationEvent)

func (f AssociationEventListenerFunc) Notify(e AssociationEvent) {
	f(e)
}
