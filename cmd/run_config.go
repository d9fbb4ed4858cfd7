package cmd

import (
	"bytes"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/binsim/binsim/sim/driver"
	"github.com/binsim/binsim/sim/observe"
	"github.com/binsim/binsim/sim/trace"
	"github.com/binsim/binsim/sim/wire"
)

// RunConfig is the --config YAML file.
// Nil pointer fields mean "not set in YAML" and keep the flag value.
type RunConfig struct {
	Containers      *int           `yaml:"containers"`
	Host            string         `yaml:"host"`
	Port            int            `yaml:"port"`
	Seed            *int64         `yaml:"seed"`
	Mode            string         `yaml:"mode"`
	Interactive     *bool          `yaml:"interactive"`
	Cycles          *int           `yaml:"cycles"`
	ComputeWait     *time.Duration `yaml:"compute_wait"`
	ComputeJitter   *time.Duration `yaml:"compute_jitter"`
	ExchangeTimeout *time.Duration `yaml:"timeout"`
	TraceLevel      string         `yaml:"trace_level"`
	Observe         ObserveYAML    `yaml:"observe"`
}

// ObserveYAML configures the optional observers.
type ObserveYAML struct {
	MetricsAddr string         `yaml:"metrics_addr"`
	RedisAddr   string         `yaml:"redis_addr"`
	RedisPrefix string         `yaml:"redis_prefix"`
	RedisTTL    *time.Duration `yaml:"redis_ttl"`
	NATSURL     string         `yaml:"nats_url"`
	EventCodec  string         `yaml:"event_codec"`
}

// ObserveConfig is the resolved observer setup. Empty addresses disable an observer.
type ObserveConfig struct {
	MetricsAddr string
	RedisAddr   string
	RedisPrefix string
	RedisTTL    time.Duration
	NATSURL     string
	EventCodec  string
}

// runSettings is everything the run command needs after resolution.
type runSettings struct {
	Driver  driver.Config
	Observe ObserveConfig
}

// loadRunConfig parses a run config with strict field checking: typos are errors.
func loadRunConfig(path string) (*RunConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read run config: %w", err)
	}
	var rc RunConfig
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&rc); err != nil {
		return nil, fmt.Errorf("parse run config %s: %w", path, err)
	}
	return &rc, nil
}

// resolveRunConfig layers flag defaults, the YAML file, explicitly set flags
// and positional arguments, in that order of increasing precedence.
func resolveRunConfig(changed func(name string) bool, args []string) (runSettings, error) {
	s := runSettings{
		Driver: driver.DefaultConfig(),
		Observe: ObserveConfig{
			RedisTTL:   24 * time.Hour,
			EventCodec: "json",
		},
	}
	useFlag := func(string) bool { return true }
	if configPath != "" {
		rc, err := loadRunConfig(configPath)
		if err != nil {
			return s, err
		}
		if err := rc.apply(&s); err != nil {
			return s, err
		}
		useFlag = changed
	}
	if err := applyFlags(&s, useFlag); err != nil {
		return s, err
	}
	if err := applyArgs(&s.Driver, args); err != nil {
		return s, err
	}
	if err := s.Driver.Validate(); err != nil {
		return s, err
	}
	if _, err := observe.CodecByName(s.Observe.EventCodec); err != nil {
		return s, err
	}
	return s, nil
}

func (rc *RunConfig) apply(s *runSettings) error {
	d := &s.Driver
	if rc.Containers != nil {
		d.Containers = *rc.Containers
	}
	if rc.Host != "" || rc.Port != 0 {
		host, port := wireHostPort(d.Addr)
		if rc.Host != "" {
			host = rc.Host
		}
		if rc.Port != 0 {
			port = strconv.Itoa(rc.Port)
		}
		d.Addr = net.JoinHostPort(host, port)
	}
	if rc.Seed != nil {
		d.Seed = *rc.Seed
	}
	if rc.Mode != "" {
		mode, err := driver.ParseMode(rc.Mode)
		if err != nil {
			return err
		}
		d.Mode = mode
	}
	if rc.Interactive != nil {
		d.Interactive = *rc.Interactive
	}
	if rc.Cycles != nil {
		d.Cycles = *rc.Cycles
	}
	if rc.ComputeWait != nil {
		d.ComputeWait = *rc.ComputeWait
	}
	if rc.ComputeJitter != nil {
		d.ComputeJitter = *rc.ComputeJitter
	}
	if rc.ExchangeTimeout != nil {
		d.ExchangeTimeout = *rc.ExchangeTimeout
	}
	if rc.TraceLevel != "" {
		d.TraceLevel = trace.TraceLevel(rc.TraceLevel)
	}

	o := &s.Observe
	if rc.Observe.MetricsAddr != "" {
		o.MetricsAddr = rc.Observe.MetricsAddr
	}
	if rc.Observe.RedisAddr != "" {
		o.RedisAddr = rc.Observe.RedisAddr
	}
	if rc.Observe.RedisPrefix != "" {
		o.RedisPrefix = rc.Observe.RedisPrefix
	}
	if rc.Observe.RedisTTL != nil {
		o.RedisTTL = *rc.Observe.RedisTTL
	}
	if rc.Observe.NATSURL != "" {
		o.NATSURL = rc.Observe.NATSURL
	}
	if rc.Observe.EventCodec != "" {
		o.EventCodec = rc.Observe.EventCodec
	}
	return nil
}

// applyFlags copies every flag for which use(name) is true.
func applyFlags(s *runSettings, use func(name string) bool) error {
	d := &s.Driver
	if use("seed") {
		d.Seed = seed
	}
	if use("mode") {
		mode, err := driver.ParseMode(connMode)
		if err != nil {
			return err
		}
		d.Mode = mode
	}
	if use("interactive") {
		d.Interactive = interactive
	}
	if use("cycles") {
		d.Cycles = cycles
	}
	if use("compute-wait") {
		d.ComputeWait = computeWait
	}
	if use("compute-jitter") {
		d.ComputeJitter = computeJitter
	}
	if use("timeout") {
		d.ExchangeTimeout = exchangeTimeout
	}
	if use("trace-level") {
		d.TraceLevel = trace.TraceLevel(traceLevel)
	}

	o := &s.Observe
	if use("metrics-addr") {
		o.MetricsAddr = metricsAddr
	}
	if use("redis-addr") {
		o.RedisAddr = redisAddr
	}
	if use("nats-url") {
		o.NATSURL = natsURL
	}
	if use("event-codec") {
		o.EventCodec = eventCodec
	}
	return nil
}

// applyArgs applies [containers [host port]].
func applyArgs(d *driver.Config, args []string) error {
	if len(args) == 0 {
		return nil
	}
	n, err := strconv.Atoi(args[0])
	if err != nil || n < 0 {
		return fmt.Errorf("container count must be a non-negative integer, got %q", args[0])
	}
	d.Containers = n

	switch len(args) {
	case 1:
		return nil
	case 3:
		port, err := strconv.Atoi(args[2])
		if err != nil || port <= 0 || port > 65535 {
			return fmt.Errorf("invalid port %q", args[2])
		}
		d.Addr = net.JoinHostPort(args[1], strconv.Itoa(port))
		return nil
	default:
		return fmt.Errorf("expected [containers [host port]], got %d argument(s)", len(args))
	}
}

// wireHostPort splits addr, falling back to the default controller address.
func wireHostPort(addr string) (string, string) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		host, port, _ = net.SplitHostPort(wire.DefaultAddr)
	}
	return host, port
}
