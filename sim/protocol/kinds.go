// Package protocol defines the documents exchanged with the collection controller.
//
// Requests are rooted at <request> and carry a <request_type> discriminator.
// Responses are rooted at <response> and carry a <response_type> discriminator,
// compared case-insensitively. Only field presence is checked; there is no
// schema validation and no status codes.
package protocol

import (
	"errors"
	"strings"
)

// Kind names a message type.
type Kind string

const (
	// KindContainerReport reports one container's fill state.
	KindContainerReport Kind = "CONTAINER_REPORT"
	// KindTrigCircuitComputation asks the controller to (re)compute circuits.
	KindTrigCircuitComputation Kind = "TRIG_CIRCUIT_COMPUTATION"
	// KindReqCircuits fetches the computed circuits.
	KindReqCircuits Kind = "REQ_CIRCUITS"
)

// Element names.
const (
	elemRequest         = "request"
	elemRequestType     = "request_type"
	elemResponse        = "response"
	elemResponseType    = "response_type"
	elemContainerReport = "container_report"
	elemID              = "id"
	elemWeight          = "weight"
	elemVolume          = "volume"
	elemVolumeMax       = "volumemax"
	elemCircuits        = "circuits"
	elemCircuit         = "circuit"
	elemContainerSets   = "container_sets"
	elemContainerSet    = "container_set"
	elemContainers      = "containers"
	elemContainer       = "container"
)

var (
	// ErrMissingField reports a required element that is absent or not of the expected type.
	ErrMissingField = errors.New("protocol: missing field")
	// ErrUnknownKind reports an unrecognised request type.
	ErrUnknownKind = errors.New("protocol: unknown message kind")
	// ErrUnexpectedType reports a document rooted at the wrong element or a response of the wrong kind.
	ErrUnexpectedType = errors.New("protocol: unexpected document type")
)

// validKinds maps accepted discriminators.
var validKinds = map[Kind]bool{
	KindContainerReport:        true,
	KindTrigCircuitComputation: true,
	KindReqCircuits:            true,
}

// IsKnownKind returns true if k is one of the defined message kinds.
func IsKnownKind(k Kind) bool {
	return validKinds[k]
}

// normalizeKind collapses whitespace and upper-cases a discriminator.
func normalizeKind(s string) Kind {
	return Kind(strings.ToUpper(strings.Join(strings.Fields(s), " ")))
}
