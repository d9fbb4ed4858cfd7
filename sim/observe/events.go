package observe

import (
	"context"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/binsim/binsim/sim/trace"
)

// DefaultSubjectPrefix roots every subject published by Events.
const DefaultSubjectPrefix = "binsim"

// Publisher sends one message on a subject. *nats.Conn satisfies it.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// ExchangeEvent is published after every controller exchange.
type ExchangeEvent struct {
	Cycle        int    `json:"cycle"`
	Phase        string `json:"phase"`
	Kind         string `json:"kind"`
	ContainerID  int    `json:"container_id"`
	Outcome      string `json:"outcome"`
	ResponseType string `json:"response_type,omitempty"`
	Error        string `json:"error,omitempty"`
	DurationMs   int64  `json:"duration_ms"`
}

// ContainerState is one container in a CycleEvent.
type ContainerState struct {
	ID        int `json:"id"`
	Weight    int `json:"weight"`
	Volume    int `json:"volume"`
	VolumeMax int `json:"volumemax"`
}

// CycleEvent is published at the end of every cycle.
type CycleEvent struct {
	Cycle      int              `json:"cycle"`
	Containers []ContainerState `json:"containers"`
	Emptied    []int            `json:"emptied"`
}

// Events publishes driver events on a message bus.
type Events struct {
	pub    Publisher
	codec  Codec
	prefix string
}

// NewEvents creates an Events observer. A nil codec defaults to JSON.
func NewEvents(pub Publisher, codec Codec) *Events {
	if codec == nil {
		codec = JSONCodec{}
	}
	return &Events{pub: pub, codec: codec, prefix: DefaultSubjectPrefix}
}

// ExchangeSubject returns the subject used for exchanges of the given request kind.
func (e *Events) ExchangeSubject(kind string) string {
	return e.prefix + ".exchange." + strings.ToLower(kind)
}

// CycleSubject returns the subject used for end-of-cycle events.
func (e *Events) CycleSubject() string {
	return e.prefix + ".cycle"
}

// Exchange publishes an ExchangeEvent on ExchangeSubject(record.Kind).
func (e *Events) Exchange(_ context.Context, record trace.ExchangeRecord) {
	e.publish(e.ExchangeSubject(record.Kind), ExchangeEvent{
		Cycle:        record.Cycle,
		Phase:        record.Phase,
		Kind:         record.Kind,
		ContainerID:  record.ContainerID,
		Outcome:      string(record.Outcome),
		ResponseType: record.ResponseType,
		Error:        record.Err,
		DurationMs:   record.Duration.Milliseconds(),
	})
}

// Cycle publishes a CycleEvent on CycleSubject().
func (e *Events) Cycle(_ context.Context, report CycleReport) {
	event := CycleEvent{
		Cycle:      report.Cycle,
		Containers: make([]ContainerState, len(report.Containers)),
		Emptied:    report.Emptied,
	}
	for i := range report.Containers {
		c := &report.Containers[i]
		event.Containers[i] = ContainerState{ID: c.ID(), Weight: c.Weight(), Volume: c.Volume(), VolumeMax: c.VolumeMax()}
	}
	e.publish(e.CycleSubject(), event)
}

func (e *Events) publish(subject string, v any) {
	data, err := e.codec.Marshal(v)
	if err != nil {
		logrus.Warnf("events: failed to encode %s: %v", subject, err)
		return
	}
	if err := e.pub.Publish(subject, data); err != nil {
		logrus.Warnf("events: failed to publish %s: %v", subject, err)
		return
	}
	logrus.Debugf("events: published %s (%d bytes, %s)", subject, len(data), e.codec.Name())
}
