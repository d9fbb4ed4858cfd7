package wire

import (
	"context"
	"fmt"
	"net"

	"github.com/beevik/etree"
	"github.com/sirupsen/logrus"
)

// DefaultAddr is the controller address used when none is configured.
const DefaultAddr = "localhost:10000"

// Dialer opens stream connections. *net.Dialer satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// Dial connects to addr over TCP and wraps the connection in a Channel.
func Dial(ctx context.Context, dialer Dialer, addr string) (*Channel, error) {
	logrus.Debugf("wire: connecting to %s", addr)
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrConnect, addr, err)
	}
	return NewChannel(conn), nil
}

// Exchange writes req and waits for the reply on ch.
// The reply is io.EOF if the peer closed the stream without answering.
func Exchange(ctx context.Context, ch *Channel, req *etree.Document) (*etree.Document, error) {
	if err := ch.Write(ctx, req); err != nil {
		return nil, err
	}
	return ch.Read(ctx)
}
