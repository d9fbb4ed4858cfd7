package driver

import (
	"context"
	"net"
	"sync"
	"testing"

	"github.com/beevik/etree"
	"github.com/stretchr/testify/require"

	"github.com/binsim/binsim/sim/protocol"
	"github.com/binsim/binsim/sim/wire"
)

// reply tells the fake controller how to answer one request.
type reply struct {
	doc    *etree.Document // sent framed when set
	raw    string          // written as-is when set
	hangUp bool            // close the connection without answering
	silent bool            // read on without answering
}

// fakeController is a TCP controller that records every request it parses.
type fakeController struct {
	ln      net.Listener
	respond func(req protocol.Request) reply

	mu       sync.Mutex
	requests []protocol.Request
	conns    int
}

// newFakeController listens on a loopback port. A nil respond answers every
// request with an empty response of the same kind.
func newFakeController(t *testing.T, respond func(req protocol.Request) reply) *fakeController {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	if respond == nil {
		respond = echoKind
	}
	fc := &fakeController{ln: ln, respond: respond}
	t.Cleanup(func() { _ = ln.Close() })
	go fc.accept()
	return fc
}

// echoKind answers with a response of the request's kind; REQ_CIRCUITS gets
// an empty <circuits/> collection.
func echoKind(req protocol.Request) reply {
	if req.Kind() == protocol.KindReqCircuits {
		return reply{doc: protocol.NewCircuitsResponse(nil)}
	}
	return reply{doc: protocol.NewResponse(req.Kind())}
}

// withCircuits answers REQ_CIRCUITS with circuits and echoes everything else.
func withCircuits(circuits [][][]int) func(protocol.Request) reply {
	return func(req protocol.Request) reply {
		if req.Kind() == protocol.KindReqCircuits {
			return reply{doc: protocol.NewCircuitsResponse(circuits)}
		}
		return echoKind(req)
	}
}

func (fc *fakeController) Addr() string { return fc.ln.Addr().String() }

func (fc *fakeController) accept() {
	for {
		conn, err := fc.ln.Accept()
		if err != nil {
			return
		}
		fc.mu.Lock()
		fc.conns++
		fc.mu.Unlock()
		go fc.serve(conn)
	}
}

func (fc *fakeController) serve(conn net.Conn) {
	ch := wire.NewChannel(conn)
	defer ch.Close()
	ctx := context.Background()

	for {
		doc, err := ch.Read(ctx)
		if err != nil {
			return
		}
		req, err := protocol.ParseRequest(doc)
		if err != nil {
			return
		}
		fc.mu.Lock()
		fc.requests = append(fc.requests, req)
		fc.mu.Unlock()

		r := fc.respond(req)
		switch {
		case r.hangUp:
			return
		case r.silent:
			continue
		case r.raw != "":
			if _, err := conn.Write([]byte(r.raw)); err != nil {
				return
			}
		case r.doc != nil:
			if err := ch.Write(ctx, r.doc); err != nil {
				return
			}
		}
	}
}

// Requests returns the requests received so far, in arrival order.
func (fc *fakeController) Requests() []protocol.Request {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	return append([]protocol.Request(nil), fc.requests...)
}

// Conns returns the number of accepted connections.
func (fc *fakeController) Conns() int {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	return fc.conns
}

// Kinds returns the kind of every received request.
func (fc *fakeController) Kinds() []protocol.Kind {
	var kinds []protocol.Kind
	for _, r := range fc.Requests() {
		kinds = append(kinds, r.Kind())
	}
	return kinds
}

// Reports returns the container reports received, in arrival order.
func (fc *fakeController) Reports() []protocol.ContainerReport {
	var reports []protocol.ContainerReport
	for _, r := range fc.Requests() {
		if cr, ok := r.(protocol.ContainerReport); ok {
			reports = append(reports, cr)
		}
	}
	return reports
}
