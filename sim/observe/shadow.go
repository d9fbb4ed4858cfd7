package observe

import (
	"context"
	"strconv"
	"time"

	backend "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/binsim/binsim/sim/trace"
)

// Shadow mirrors container fill levels into Redis for dashboards.
// It only writes; the simulator never reads its state back.
type Shadow struct {
	client *backend.Client
	prefix string
	ttl    time.Duration
}

// ShadowOption configures a Shadow.
type ShadowOption func(*Shadow)

// WithPrefix sets the key prefix.
func WithPrefix(prefix string) ShadowOption {
	return func(s *Shadow) {
		s.prefix = prefix
	}
}

// WithTTL sets the expiration of per-container keys. Zero keeps them forever.
func WithTTL(ttl time.Duration) ShadowOption {
	return func(s *Shadow) {
		s.ttl = ttl
	}
}

// NewShadow connects to the Redis server at addr.
func NewShadow(addr string, opts ...ShadowOption) *Shadow {
	return NewShadowFromClient(backend.NewClient(&backend.Options{Addr: addr}), opts...)
}

// NewShadowFromClient creates a Shadow from an existing client.
func NewShadowFromClient(client *backend.Client, opts ...ShadowOption) *Shadow {
	s := &Shadow{
		client: client,
		prefix: "binsim:",
		ttl:    24 * time.Hour,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Shadow) containerKey(id int) string {
	return s.prefix + "container:" + strconv.Itoa(id)
}

func (s *Shadow) collectionsKey() string {
	return s.prefix + "collections"
}

func (s *Shadow) cycleKey() string {
	return s.prefix + "cycle"
}

// Ping checks the connection.
func (s *Shadow) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Exchange stores the outcome of the last report of each container.
func (s *Shadow) Exchange(ctx context.Context, record trace.ExchangeRecord) {
	if record.ContainerID == trace.NoContainer {
		return
	}
	key := s.containerKey(record.ContainerID)
	if err := s.client.HSet(ctx, key, "last_outcome", string(record.Outcome)).Err(); err != nil {
		logrus.Warnf("shadow: failed to record outcome for container %d: %v", record.ContainerID, err)
	}
}

// Cycle writes every container's state and the collection counter in one pipeline.
func (s *Shadow) Cycle(ctx context.Context, report CycleReport) {
	pipe := s.client.Pipeline()
	for i := range report.Containers {
		c := &report.Containers[i]
		key := s.containerKey(c.ID())
		pipe.HSet(ctx, key,
			"weight", c.Weight(),
			"volume", c.Volume(),
			"volumemax", c.VolumeMax(),
			"cycle", report.Cycle,
		)
		if s.ttl > 0 {
			pipe.Expire(ctx, key, s.ttl)
		}
	}
	if len(report.Emptied) > 0 {
		pipe.IncrBy(ctx, s.collectionsKey(), int64(len(report.Emptied)))
	}
	pipe.Set(ctx, s.cycleKey(), report.Cycle, 0)

	if _, err := pipe.Exec(ctx); err != nil {
		logrus.Warnf("shadow: failed to mirror cycle %d: %v", report.Cycle, err)
		return
	}
	logrus.Debugf("shadow: mirrored %d containers for cycle %d", len(report.Containers), report.Cycle)
}

// Close releases the Redis client.
func (s *Shadow) Close() error {
	return s.client.Close()
}
