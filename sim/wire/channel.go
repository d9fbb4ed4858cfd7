// sim/wire/channel.go
package wire

import (
	"bufio"
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"time"

	"github.com/beevik/etree"
	"github.com/sirupsen/logrus"
)

// Channel carries one XML document per message over a stream connection.
//
// A Channel is Open until Close is called or any read, parse or write failure
// occurs; a closed Channel cannot be reopened.
//
// Thread-safety: NOT thread-safe. One request in flight at a time.
type Channel struct {
	conn   net.Conn
	reader *bufio.Reader
	closed bool
}

// NewChannel wraps an established connection.
func NewChannel(conn net.Conn) *Channel {
	return &Channel{
		conn:   conn,
		reader: bufio.NewReader(conn),
	}
}

// RemoteAddr returns the peer address, or "" once closed.
func (c *Channel) RemoteAddr() string {
	if c.closed {
		return ""
	}
	return c.conn.RemoteAddr().String()
}

// Write sends doc followed by the end-of-message empty line.
func (c *Channel) Write(ctx context.Context, doc *etree.Document) error {
	if c.closed {
		return ErrClosed
	}
	frame, err := encodeFrame(doc)
	if err != nil {
		return err
	}

	stop := c.bind(ctx)
	_, err = c.conn.Write(frame)
	stop()
	if err != nil {
		c.Close()
		return fmt.Errorf("%w: write: %w", ErrTransport, contextCause(ctx, err))
	}
	return nil
}

// Read returns the next document.
//
// io.EOF means the peer closed the stream before sending any content. It is
// also returned for a terminator with no content, since a document always has
// a root element. Both close the channel.
func (c *Channel) Read(ctx context.Context) (*etree.Document, error) {
	if c.closed {
		return nil, ErrClosed
	}

	stop := c.bind(ctx)
	buf, err := c.readFrame()
	stop()
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("%w: read: %w", ErrTransport, contextCause(ctx, err))
	}
	if buf.Len() == 0 {
		c.Close()
		logrus.Debugf("wire: stream closed by peer")
		return nil, io.EOF
	}

	doc, err := decodeFrame(buf.Bytes())
	if err != nil {
		c.Close()
		return nil, err
	}
	return doc, nil
}

// Close releases the connection. Safe to call more than once.
func (c *Channel) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	if err := c.conn.Close(); err != nil {
		logrus.Warnf("wire: error while closing connection: %v", err)
		return err
	}
	return nil
}

// IsClosed reports whether the channel has been closed.
func (c *Channel) IsClosed() bool {
	return c.closed
}

// readFrame accumulates non-empty lines until an empty line or end of stream.
// A clean end of stream is not an error; the buffer tells whether anything arrived.
func (c *Channel) readFrame() (*bytes.Buffer, error) {
	var buf bytes.Buffer
	for {
		line, err := c.reader.ReadString('\n')
		text := strings.TrimRight(line, "\r\n")
		if err != nil {
			if err == io.EOF {
				buf.WriteString(text)
				return &buf, nil
			}
			return nil, err
		}
		if text == "" {
			return &buf, nil
		}
		buf.WriteString(text)
	}
}

// bind applies ctx's deadline to the connection and arranges for cancellation
// to interrupt blocked I/O. The returned func must be called once the I/O is done.
func (c *Channel) bind(ctx context.Context) func() {
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Time{}
	}
	_ = c.conn.SetDeadline(deadline)
	if ctx.Done() == nil {
		return func() {}
	}
	stop := context.AfterFunc(ctx, func() {
		_ = c.conn.SetDeadline(time.Unix(1, 0))
	})
	return func() { stop() }
}

// contextCause prefers the context error when cancellation caused err.
func contextCause(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if _, ok := ctx.Deadline(); ok && errors.Is(err, os.ErrDeadlineExceeded) {
		return context.DeadlineExceeded
	}
	return err
}

var lineBreaks = strings.NewReplacer("\r", "&#xD;", "\n", "&#xA;")

// encodeFrame renders the declaration line, the compact document and the
// end-of-message empty line.
func encodeFrame(doc *etree.Document) ([]byte, error) {
	if doc == nil || doc.Root() == nil {
		return nil, fmt.Errorf("%w: document has no root element", ErrProtocol)
	}
	body := etree.NewDocument()
	body.SetRoot(doc.Root().Copy())
	text, err := body.WriteToString()
	if err != nil {
		return nil, fmt.Errorf("%w: encode: %w", ErrProtocol, err)
	}

	var frame bytes.Buffer
	frame.WriteString(xml.Header)
	frame.WriteString(lineBreaks.Replace(text))
	frame.WriteString("\n\n")
	return frame.Bytes(), nil
}

func decodeFrame(data []byte) (*etree.Document, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(data); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProtocol, err)
	}
	if doc.Root() == nil {
		return nil, fmt.Errorf("%w: no root element", ErrProtocol)
	}
	return doc, nil
}
