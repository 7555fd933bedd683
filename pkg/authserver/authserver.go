// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package authserver wires the OAuth 2.0 and OpenID Connect decision and
// issuance components into an Engine.
//
// The engine sits behind a protocol front end that parses and validates
// requests. It decides whether login or consent is needed, and it issues
// authorization codes, tokens and device codes for validated requests:
//
//	cfg, err := authserver.LoadConfig("authcore.yaml")
//	if err != nil {
//	    return err
//	}
//	engine, err := authserver.New(ctx, cfg)
//	if err != nil {
//	    return err
//	}
//	defer engine.Close()
//
//	resp, err := engine.Token().Process(ctx, validatedRequest)
//
// # Storage
//
// Grants are persisted in memory (default), in Redis, or in SQLite.
package authserver

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"k8s.io/utils/clock"

	"github.com/stacklok/authcore/pkg/authserver/claims"
	"github.com/stacklok/authcore/pkg/authserver/clients"
	"github.com/stacklok/authcore/pkg/authserver/consent"
	"github.com/stacklok/authcore/pkg/authserver/events"
	"github.com/stacklok/authcore/pkg/authserver/grants"
	"github.com/stacklok/authcore/pkg/authserver/interaction"
	"github.com/stacklok/authcore/pkg/authserver/model"
	"github.com/stacklok/authcore/pkg/authserver/resources"
	"github.com/stacklok/authcore/pkg/authserver/response"
	"github.com/stacklok/authcore/pkg/authserver/server/keys"
	"github.com/stacklok/authcore/pkg/authserver/storage"
	"github.com/stacklok/authcore/pkg/authserver/token"
	autherrors "github.com/stacklok/authcore/pkg/errors"
	"github.com/stacklok/authcore/pkg/logger"
)

const defaultDeviceInterval = response.DefaultDeviceInterval

// Engine holds the wired components.
type Engine struct {
	issuer string

	clients   *clients.MemoryStore
	resources *resources.MemoryStore
	keys      *keys.Service
	store     storage.GrantStore
	events    events.Service

	devices     *grants.DeviceStore
	grants      *grants.Service
	consent     consent.Service
	interaction *interaction.Engine

	authorize    response.AuthorizeProcessor
	token        response.TokenProcessor
	device       *response.DeviceAuthorizationGenerator
	revoker      *response.Revoker
	introspector *response.Introspector

	closers []func() error
}

type options struct {
	clock          clock.PassiveClock
	profile        claims.ProfileService
	store          storage.GrantStore
	keys           *keys.Service
	events         events.Service
	meterProvider  metric.MeterProvider
	tracerProvider trace.TracerProvider
}

// Option configures New.
type Option func(*options)

// WithClock replaces the real clock.
func WithClock(clk clock.PassiveClock) Option {
	return func(o *options) {
		o.clock = clk
	}
}

// WithProfileService replaces the default profile service, which only
// returns the claims already present on the subject.
func WithProfileService(profile claims.ProfileService) Option {
	return func(o *options) {
		o.profile = profile
	}
}

// WithGrantStore uses store instead of the configured storage backend.
// The engine does not close it.
func WithGrantStore(store storage.GrantStore) Option {
	return func(o *options) {
		o.store = store
	}
}

// WithKeyService uses credentials instead of the configured key source.
func WithKeyService(credentials *keys.Service) Option {
	return func(o *options) {
		o.keys = credentials
	}
}

// WithEventService uses evts instead of the configured event sinks.
func WithEventService(evts events.Service) Option {
	return func(o *options) {
		o.events = evts
	}
}

// WithTelemetry sets the providers for the token and authorize metrics and
// spans. The global providers are used otherwise.
func WithTelemetry(meterProvider metric.MeterProvider, tracerProvider trace.TracerProvider) Option {
	return func(o *options) {
		o.meterProvider = meterProvider
		o.tracerProvider = tracerProvider
	}
}

// New validates cfg and builds an Engine. Close releases the storage and
// event broker connections.
func New(ctx context.Context, cfg *Config, opts ...Option) (*Engine, error) {
	o := &options{
		clock:   clock.RealClock{},
		profile: claims.DefaultProfileService{},
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.meterProvider == nil {
		o.meterProvider = otel.GetMeterProvider()
	}
	if o.tracerProvider == nil {
		o.tracerProvider = otel.GetTracerProvider()
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	e := &Engine{issuer: cfg.Issuer}
	if err := e.build(ctx, cfg, o); err != nil {
		_ = e.Close()
		return nil, err
	}

	logger.Infow("authserver engine ready",
		"issuer", cfg.Issuer,
		"clients", len(cfg.Clients),
		"storage", cfg.Storage.Type,
	)
	return e, nil
}

func (e *Engine) build(ctx context.Context, cfg *Config, o *options) error {
	var err error

	identity, err := cfg.ToIdentityResources()
	if err != nil {
		return autherrors.NewConfigurationError("invalid identity resources", err)
	}
	if e.resources, err = resources.NewMemoryStore(identity, cfg.ToAPIResources(), cfg.ToAPIScopes()); err != nil {
		return autherrors.NewConfigurationError("invalid resources", err)
	}
	if e.clients, err = clients.NewMemoryStore(cfg.ToClients()...); err != nil {
		return autherrors.NewConfigurationError("invalid clients", err)
	}

	e.keys = o.keys
	if e.keys == nil {
		if e.keys, err = keys.NewServiceFromConfig(ctx, cfg.Keys); err != nil {
			return autherrors.NewConfigurationError("failed to load signing keys", err)
		}
	}

	e.store = o.store
	if e.store == nil {
		if e.store, err = NewGrantStore(ctx, &cfg.Storage, o.clock); err != nil {
			return fmt.Errorf("failed to create grant storage: %w", err)
		}
		e.closers = append(e.closers, e.store.Close)
	}

	e.events = o.events
	if e.events == nil {
		evts, closeEvents, err := events.NewServiceFromConfig(&cfg.Events, o.clock)
		if err != nil {
			return autherrors.NewConfigurationError("failed to create event sinks", err)
		}
		e.events = evts
		e.closers = append(e.closers, closeEvents)
	}

	codes := grants.NewCodeStore(e.store)
	refreshTokens := grants.NewRefreshStore(e.store)
	references := grants.NewReferenceStore(e.store)
	e.devices = grants.NewDeviceStore(e.store)
	e.grants = grants.NewService(e.store)
	e.consent = consent.NewService(grants.NewConsentStore(e.store), o.clock)
	e.interaction = interaction.NewEngine(o.profile, e.consent, e.events, o.clock)

	factory := token.NewFactory(token.Options{
		Issuer:                  cfg.Issuer,
		EmitStaticAudienceClaim: cfg.EmitStaticAudienceClaim,
	}, claims.NewAssembler(o.profile), e.keys, references, o.clock)

	e.authorize, err = response.MonitorAuthorizeResponses(o.meterProvider, o.tracerProvider,
		response.NewAuthorizeResponseGenerator(factory, codes, e.events, o.clock))
	if err != nil {
		return fmt.Errorf("failed to create authorize telemetry: %w", err)
	}

	e.token, err = response.MonitorTokenResponses(o.meterProvider, o.tracerProvider,
		response.NewTokenResponseGenerator(response.TokenGeneratorConfig{
			Factory:             factory,
			Refresh:             token.NewLifecycle(refreshTokens, e.events, o.clock),
			Codes:               codes,
			RefreshTokens:       refreshTokens,
			Devices:             e.devices,
			Clients:             e.clients,
			Resources:           e.resources,
			Profile:             o.profile,
			Events:              e.events,
			Clock:               o.clock,
			ExtensionGrantTypes: cfg.ExtensionGrantTypes,
		}))
	if err != nil {
		return fmt.Errorf("failed to create token telemetry: %w", err)
	}

	deviceOpts := []response.DeviceOption{response.WithInterval(cfg.Device.Interval)}
	if cfg.Device.VerificationURI != "" {
		deviceOpts = append(deviceOpts, response.WithVerificationURI(cfg.Device.VerificationURI))
	}
	e.device = response.NewDeviceAuthorizationGenerator(e.devices, e.events, o.clock, deviceOpts...)
	e.revoker = response.NewRevoker(refreshTokens, references, e.events, response.WithGrantService(e.grants))
	e.introspector = response.NewIntrospector(cfg.Issuer, e.keys, references, refreshTokens, o.clock)
	return nil
}

// Close releases the resources the engine opened.
func (e *Engine) Close() error {
	var errs []error
	for i := len(e.closers) - 1; i >= 0; i-- {
		errs = append(errs, e.closers[i]())
	}
	e.closers = nil
	return errors.Join(errs...)
}

// Issuer returns the configured issuer.
func (e *Engine) Issuer() string { return e.issuer }

// Clients returns the client registry.
func (e *Engine) Clients() *clients.MemoryStore { return e.clients }

// Resources returns the resource registry.
func (e *Engine) Resources() resources.Store { return e.resources }

// Keys returns the signing credential service.
func (e *Engine) Keys() *keys.Service { return e.keys }

// Interaction returns the login and consent decision engine.
func (e *Engine) Interaction() *interaction.Engine { return e.interaction }

// Consent returns the consent service.
func (e *Engine) Consent() consent.Service { return e.consent }

// Authorize returns the authorize response processor.
func (e *Engine) Authorize() response.AuthorizeProcessor { return e.authorize }

// Token returns the token response processor.
func (e *Engine) Token() response.TokenProcessor { return e.token }

// DeviceAuthorization returns the device authorization response generator.
func (e *Engine) DeviceAuthorization() *response.DeviceAuthorizationGenerator { return e.device }

// Devices returns the device code store, used by the verification page to
// approve or deny a user code.
func (e *Engine) Devices() *grants.DeviceStore { return e.devices }

// Revoker returns the token revoker.
func (e *Engine) Revoker() *response.Revoker { return e.revoker }

// Introspector returns the token introspector.
func (e *Engine) Introspector() *response.Introspector { return e.introspector }

// Grants returns the persisted grant service.
func (e *Engine) Grants() *grants.Service { return e.grants }

// Health checks the grant storage.
func (e *Engine) Health(ctx context.Context) error {
	return e.store.Health(ctx)
}

// ValidateResources resolves scopes for clientID, as a front end does
// before building a validated request.
func (e *Engine) ValidateResources(
	ctx context.Context, clientID string, scopes []string,
) (*model.Client, *model.ResourceValidationResult, error) {
	client, err := e.clients.FindEnabledClientByID(ctx, clientID)
	if err != nil {
		return nil, nil, err
	}
	if client == nil {
		return nil, nil, autherrors.NewInvalidArgumentError(fmt.Sprintf("unknown client %q", clientID), nil)
	}
	validated, err := resources.Validate(ctx, e.resources, client, scopes)
	if err != nil {
		return nil, nil, err
	}
	return client, validated, nil
}
