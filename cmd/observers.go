package cmd

import (
	"context"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"

	"github.com/binsim/binsim/sim/observe"
)

// buildObservers starts the observers enabled in cfg. The returned func
// releases their connections and must be called once the run ends.
func buildObservers(ctx context.Context, cfg ObserveConfig) (observe.Observer, func(), error) {
	var observers observe.Multi
	var closers []func()
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	if cfg.MetricsAddr != "" {
		metrics := observe.NewMetrics()
		go func() {
			if err := metrics.Serve(ctx, cfg.MetricsAddr); err != nil {
				logrus.Errorf("Metrics server stopped: %v", err)
			}
		}()
		observers = append(observers, metrics)
	}

	if cfg.RedisAddr != "" {
		opts := []observe.ShadowOption{observe.WithTTL(cfg.RedisTTL)}
		if cfg.RedisPrefix != "" {
			opts = append(opts, observe.WithPrefix(cfg.RedisPrefix))
		}
		shadow := observe.NewShadow(cfg.RedisAddr, opts...)
		closers = append(closers, func() { _ = shadow.Close() })
		if err := shadow.Ping(ctx); err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("redis %s: %w", cfg.RedisAddr, err)
		}
		logrus.Infof("Mirroring fleet to Redis at %s", cfg.RedisAddr)
		observers = append(observers, shadow)
	}

	if cfg.NATSURL != "" {
		codec, err := observe.CodecByName(cfg.EventCodec)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		nc, err := nats.Connect(cfg.NATSURL, nats.Name("binsim"))
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("nats %s: %w", cfg.NATSURL, err)
		}
		closers = append(closers, func() {
			if err := nc.Drain(); err != nil {
				nc.Close()
			}
		})
		logrus.Infof("Publishing %s events to %s", codec.Name(), cfg.NATSURL)
		observers = append(observers, observe.NewEvents(nc, codec))
	}

	if len(observers) == 0 {
		return observe.Nop{}, closeAll, nil
	}
	return observers, closeAll, nil
}
