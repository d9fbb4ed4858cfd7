// Package trace records controller exchanges and collections during a run.
// This package has no dependencies on sim/ or its other sub-packages. It stores pure data types.
package trace

import "time"

// NoContainer marks an exchange that is not about a single container.
const NoContainer = -1

// Outcome classifies how an exchange ended.
type Outcome string

const (
	// OutcomeOK means a well-formed response of the expected kind arrived.
	OutcomeOK Outcome = "ok"
	// OutcomeNoResponse means the controller closed the stream without answering.
	OutcomeNoResponse Outcome = "no-response"
	// OutcomeConnectError means the controller could not be reached.
	OutcomeConnectError Outcome = "connect-error"
	// OutcomeTransportError means the connection failed mid-exchange.
	OutcomeTransportError Outcome = "transport-error"
	// OutcomeProtocolError means the reply was not a usable document.
	OutcomeProtocolError Outcome = "protocol-error"
	// OutcomeUnexpected means the reply was well-formed but of another kind.
	OutcomeUnexpected Outcome = "unexpected-response"
)

// Dropped reports whether the exchange produced no usable response.
func (o Outcome) Dropped() bool {
	return o != OutcomeOK
}

// ExchangeRecord captures a single request/response exchange with the controller.
type ExchangeRecord struct {
	Cycle        int
	Phase        string
	Kind         string // request kind
	ContainerID  int    // NoContainer unless Kind is a container report
	Outcome      Outcome
	ResponseType string // "" when no response was parsed
	Err          string
	Duration     time.Duration
}

// CollectionRecord captures the containers emptied after one REQ_CIRCUITS exchange.
type CollectionRecord struct {
	Cycle    int
	Emptied  []int // ids reset to zero, in circuit order
	Unknown  []int // ids referenced by circuits but absent from the fleet
	Circuits int
}
