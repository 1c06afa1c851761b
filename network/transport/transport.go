package transport

import "context"

// Transport establishes associations with the remote endpoints.
type Transport interface {
	SchemeIdentifier() string
	IsResponsibleFor(Address) bool
	MaximumPayloadBytes() int
	// Listen starts to accept the inbound associations; the new associations
	// are notified to the listener as InboundAssociation.
	Listen(context.Context, AssociationEventListener) (Address, error)
	Associate(_ context.Context, remote Address) (AssociationHandle, error)
	// ManagementCommand handles the transport specific commands; unknown
	// commands return false.
	ManagementCommand(context.Context, interface{}) (bool, error)
	Shutdown() error
}

// AssociationHandle is the single association between local and remote.
// The inbound frames are not delivered until SetEventListener is called.
type AssociationHandle interface {
	LocalAddress() Address
	RemoteAddress() Address
	// Write returns false if the payload could not be sent; the payload is
	// dropped.
	Write([]byte) bool
	Disassociate(reason string)
	SetEventListener(HandleEventListener)
}
