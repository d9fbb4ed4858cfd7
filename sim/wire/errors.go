package wire

import "errors"

var (
	// ErrConnect reports that the controller could not be reached.
	ErrConnect = errors.New("wire: connect failed")
	// ErrTransport reports a read or write failure on an open connection.
	ErrTransport = errors.New("wire: transport failure")
	// ErrProtocol reports received content that is not a well-formed document.
	ErrProtocol = errors.New("wire: malformed document")
	// ErrClosed reports use of a channel after it was closed.
	ErrClosed = errors.New("wire: channel closed")
)
