// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package events

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"k8s.io/utils/clock"
)

//go:generate mockgen -destination=mocks/mock_service.go -package=mocks -source=service.go Service,Sink

// Service raises events.
type Service interface {
	// Raise stamps the event and hands it to the configured sinks. Events of
	// a disabled type are dropped without error.
	Raise(ctx context.Context, evt *Event) error
}

// Sink delivers stamped events.
type Sink interface {
	Persist(ctx context.Context, evt *Event) error
}

// Options selects which event types are raised.
type Options struct {
	RaiseSuccessEvents     bool
	RaiseFailureEvents     bool
	RaiseInformationEvents bool
}

// AllEvents raises every event type.
var AllEvents = Options{RaiseSuccessEvents: true, RaiseFailureEvents: true, RaiseInformationEvents: true}

// DefaultService stamps events with an id and a timestamp and fans them out
// to sinks in order.
type DefaultService struct {
	sinks   []Sink
	options Options
	clock   clock.PassiveClock
}

// ServiceOption configures a DefaultService.
type ServiceOption func(*DefaultService)

// WithClock sets the clock used for timestamps.
func WithClock(clk clock.PassiveClock) ServiceOption {
	return func(s *DefaultService) {
		s.clock = clk
	}
}

// WithOptions sets which event types are raised. The default is AllEvents.
func WithOptions(opts Options) ServiceOption {
	return func(s *DefaultService) {
		s.options = opts
	}
}

// NewService returns a DefaultService delivering to sinks.
func NewService(sinks []Sink, opts ...ServiceOption) *DefaultService {
	s := &DefaultService{
		sinks:   sinks,
		options: AllEvents,
		clock:   clock.RealClock{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Raise implements Service. Every sink is attempted; failures are joined.
func (s *DefaultService) Raise(ctx context.Context, evt *Event) error {
	if evt == nil {
		return fmt.Errorf("event is nil")
	}
	if !s.enabled(evt.Type) {
		return nil
	}

	if evt.ID == "" {
		evt.ID = uuid.NewString()
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = s.clock.Now().UTC()
	}

	var errs []error
	for _, sink := range s.sinks {
		if err := sink.Persist(ctx, evt); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *DefaultService) enabled(t Type) bool {
	switch t {
	case TypeSuccess:
		return s.options.RaiseSuccessEvents
	case TypeFailure:
		return s.options.RaiseFailureEvents
	case TypeInformation:
		return s.options.RaiseInformationEvents
	default:
		return false
	}
}

// NopService drops every event.
type NopService struct{}

// Raise implements Service.
func (NopService) Raise(context.Context, *Event) error { return nil }

var (
	_ Service = (*DefaultService)(nil)
	_ Service = NopService{}
)
