package driver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/binsim/binsim/sim/protocol"
	"github.com/binsim/binsim/sim/trace"
	"github.com/binsim/binsim/sim/wire"
)

var (
	// ErrNoResponse reports that the controller closed the stream without answering.
	ErrNoResponse = errors.New("driver: no response from controller")
	// ErrUnexpectedResponse reports a well-formed response of another kind than requested.
	ErrUnexpectedResponse = errors.New("driver: unexpected response type")
)

// classify maps an exchange error to its trace outcome.
func classify(err error) trace.Outcome {
	switch {
	case err == nil:
		return trace.OutcomeOK
	case errors.Is(err, ErrNoResponse):
		return trace.OutcomeNoResponse
	case errors.Is(err, wire.ErrConnect):
		return trace.OutcomeConnectError
	case errors.Is(err, wire.ErrProtocol):
		return trace.OutcomeProtocolError
	case errors.Is(err, ErrUnexpectedResponse):
		return trace.OutcomeUnexpected
	default:
		return trace.OutcomeTransportError
	}
}

// exchangeContext applies the per-exchange timeout, if any.
func (d *Driver) exchangeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if d.cfg.ExchangeTimeout > 0 {
		return context.WithTimeout(ctx, d.cfg.ExchangeTimeout)
	}
	return ctx, func() {}
}

// dial opens a channel to the controller.
func (d *Driver) dial(ctx context.Context) (*wire.Channel, error) {
	ctx, cancel := d.exchangeContext(ctx)
	defer cancel()
	return wire.Dial(ctx, d.dialer, d.cfg.Addr)
}

// responseCheck validates the payload of a response of the expected kind.
// A failed check makes the exchange a protocol error.
type responseCheck func(resp *protocol.Response) error

// exchangeOnce sends req on a fresh connection and closes it on every path.
func (d *Driver) exchangeOnce(ctx context.Context, phase Phase, req protocol.Request, containerID int, check responseCheck) (*protocol.Response, error) {
	start := time.Now()
	ch, err := d.dial(ctx)
	if err != nil {
		d.record(ctx, phase, req, containerID, nil, err, time.Since(start))
		return nil, err
	}
	defer ch.Close()
	return d.send(ctx, ch, phase, req, containerID, check)
}

// send performs one request/response exchange on ch and records it.
// A nil check accepts any response of the expected kind.
func (d *Driver) send(ctx context.Context, ch *wire.Channel, phase Phase, req protocol.Request, containerID int, check responseCheck) (*protocol.Response, error) {
	start := time.Now()
	exCtx, cancel := d.exchangeContext(ctx)
	defer cancel()

	resp, err := roundTrip(exCtx, ch, req)
	if err == nil && check != nil {
		if checkErr := check(resp); checkErr != nil {
			err = fmt.Errorf("%w: %w", wire.ErrProtocol, checkErr)
		}
	}
	d.record(ctx, phase, req, containerID, resp, err, time.Since(start))
	return resp, err
}

func roundTrip(ctx context.Context, ch *wire.Channel, req protocol.Request) (*protocol.Response, error) {
	doc, err := wire.Exchange(ctx, ch, req.Document())
	if errors.Is(err, io.EOF) {
		return nil, ErrNoResponse
	}
	if err != nil {
		return nil, err
	}
	resp, err := protocol.ParseResponse(doc)
	if err != nil {
		ch.Close()
		return nil, fmt.Errorf("%w: %w", wire.ErrProtocol, err)
	}
	if !resp.Is(req.Kind()) {
		return resp, fmt.Errorf("%w: got %s, want %s", ErrUnexpectedResponse, resp.Type, req.Kind())
	}
	return resp, nil
}

func (d *Driver) record(ctx context.Context, phase Phase, req protocol.Request, containerID int, resp *protocol.Response, err error, elapsed time.Duration) {
	rec := trace.ExchangeRecord{
		Cycle:       d.cycle,
		Phase:       phase.String(),
		Kind:        string(req.Kind()),
		ContainerID: containerID,
		Outcome:     classify(err),
		Duration:    elapsed,
	}
	if resp != nil {
		rec.ResponseType = string(resp.Type)
	}

	log := logrus.WithFields(logrus.Fields{"phase": rec.Phase, "kind": rec.Kind})
	if containerID != trace.NoContainer {
		log = log.WithField("container", containerID)
	}
	if err != nil {
		rec.Err = err.Error()
		log.Warnf("Exchange dropped (%s): %v", rec.Outcome, err)
	} else {
		log.Infof("Server response: %s", rec.ResponseType)
	}

	d.trace.RecordExchange(rec)
	d.observer.Exchange(ctx, rec)
}
