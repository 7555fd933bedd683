// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package events

import (
	"fmt"

	"k8s.io/utils/clock"
)

// Config selects the event sinks and event types.
type Config struct {
	// Log writes events to the process logger.
	Log bool `mapstructure:"log" yaml:"log" json:"log"`

	// AMQP publishes events to a broker when set.
	AMQP *AMQPConfig `mapstructure:"amqp" yaml:"amqp,omitempty" json:"amqp,omitempty"`

	RaiseSuccessEvents     *bool `mapstructure:"raise_success_events" yaml:"raise_success_events,omitempty" json:"raise_success_events,omitempty"`
	RaiseFailureEvents     *bool `mapstructure:"raise_failure_events" yaml:"raise_failure_events,omitempty" json:"raise_failure_events,omitempty"`
	RaiseInformationEvents *bool `mapstructure:"raise_information_events" yaml:"raise_information_events,omitempty" json:"raise_information_events,omitempty"`
}

// Options returns the configured event types. Unset flags default to true.
func (c *Config) Options() Options {
	return Options{
		RaiseSuccessEvents:     boolOr(c.RaiseSuccessEvents, true),
		RaiseFailureEvents:     boolOr(c.RaiseFailureEvents, true),
		RaiseInformationEvents: boolOr(c.RaiseInformationEvents, true),
	}
}

// NewServiceFromConfig builds the event service. The returned close
// function releases broker connections.
func NewServiceFromConfig(cfg *Config, clk clock.PassiveClock) (Service, func() error, error) {
	if cfg == nil || (!cfg.Log && cfg.AMQP == nil) {
		return NopService{}, func() error { return nil }, nil
	}

	var (
		sinks   []Sink
		closeFn = func() error { return nil }
	)
	if cfg.Log {
		sinks = append(sinks, LogSink{})
	}
	if cfg.AMQP != nil {
		sink, err := DialAMQPSink(*cfg.AMQP)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create amqp event sink: %w", err)
		}
		sinks = append(sinks, sink)
		closeFn = sink.Close
	}

	opts := []ServiceOption{WithOptions(cfg.Options())}
	if clk != nil {
		opts = append(opts, WithClock(clk))
	}
	return NewService(sinks, opts...), closeFn, nil
}

func boolOr(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}
