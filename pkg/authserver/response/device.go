// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package response

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"k8s.io/utils/clock"

	"github.com/stacklok/authcore/pkg/authserver/events"
	"github.com/stacklok/authcore/pkg/authserver/grants"
	"github.com/stacklok/authcore/pkg/authserver/model"
	"github.com/stacklok/authcore/pkg/authserver/server/crypto"
	"github.com/stacklok/authcore/pkg/logger"
)

const (
	// DefaultDeviceInterval is the minimum polling interval returned to
	// devices.
	DefaultDeviceInterval = 5 * time.Second

	// maxUserCodeAttempts bounds the retries on user code collisions.
	maxUserCodeAttempts = 5
)

// DeviceAuthorizationRequest is a device authorization request that passed
// client authentication and scope validation.
type DeviceAuthorizationRequest struct {
	Client             *model.Client
	ValidatedResources *model.ResourceValidationResult
}

// DeviceAuthorizationResponse is the RFC 8628 device authorization response.
type DeviceAuthorizationResponse struct {
	DeviceCode              string
	UserCode                string
	VerificationURI         string
	VerificationURIComplete string
	Lifetime                time.Duration
	Interval                time.Duration
}

// ToMap renders the JSON response body.
func (r *DeviceAuthorizationResponse) ToMap() map[string]any {
	out := map[string]any{
		"device_code": r.DeviceCode,
		"user_code":   r.UserCode,
		"expires_in":  int64(r.Lifetime / time.Second),
		"interval":    int64(r.Interval / time.Second),
	}
	if r.VerificationURI != "" {
		out["verification_uri"] = r.VerificationURI
	}
	if r.VerificationURIComplete != "" {
		out["verification_uri_complete"] = r.VerificationURIComplete
	}
	return out
}

// DeviceAuthorizationGenerator creates device authorizations.
type DeviceAuthorizationGenerator struct {
	devices         grants.DeviceFlowStore
	events          events.Service
	clock           clock.PassiveClock
	verificationURI string
	interval        time.Duration
	userCode        func() (string, error)
}

// DeviceOption configures a DeviceAuthorizationGenerator.
type DeviceOption func(*DeviceAuthorizationGenerator)

// WithVerificationURI sets the page where users enter their user code.
func WithVerificationURI(uri string) DeviceOption {
	return func(g *DeviceAuthorizationGenerator) {
		g.verificationURI = uri
	}
}

// WithInterval sets the polling interval returned to devices.
func WithInterval(interval time.Duration) DeviceOption {
	return func(g *DeviceAuthorizationGenerator) {
		if interval > 0 {
			g.interval = interval
		}
	}
}

// WithUserCodeGenerator replaces the random user code generator.
func WithUserCodeGenerator(gen func() (string, error)) DeviceOption {
	return func(g *DeviceAuthorizationGenerator) {
		g.userCode = gen
	}
}

// NewDeviceAuthorizationGenerator returns a DeviceAuthorizationGenerator.
func NewDeviceAuthorizationGenerator(
	devices grants.DeviceFlowStore,
	evts events.Service,
	clk clock.PassiveClock,
	opts ...DeviceOption,
) *DeviceAuthorizationGenerator {
	if evts == nil {
		evts = events.NopService{}
	}
	g := &DeviceAuthorizationGenerator{
		devices:  devices,
		events:   evts,
		clock:    clk,
		interval: DefaultDeviceInterval,
		userCode: crypto.CreateUserCode,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// CreateResponse persists a new device authorization and returns the codes.
func (g *DeviceAuthorizationGenerator) CreateResponse(
	ctx context.Context,
	req *DeviceAuthorizationRequest,
) (*DeviceAuthorizationResponse, error) {
	client := req.Client
	scopes := req.ValidatedResources.RawScopeValues()

	lifetime := client.DeviceCodeLifetime
	if lifetime <= 0 {
		lifetime = model.DefaultDeviceCodeLifetime
	}

	deviceCode := crypto.CreateHandle()
	data := &model.DeviceCode{
		CreationTime:    g.clock.Now(),
		Lifetime:        lifetime,
		ClientID:        client.ClientID,
		IsOpenID:        req.ValidatedResources.IsOpenID(),
		RequestedScopes: scopes,
	}

	var userCode string
	for attempt := 1; ; attempt++ {
		code, err := g.userCode()
		if err != nil {
			return nil, fmt.Errorf("failed to generate user code: %w", err)
		}
		err = g.devices.StoreDeviceAuthorization(ctx, deviceCode, code, data)
		if err == nil {
			userCode = code
			break
		}
		if !errors.Is(err, grants.ErrUserCodeCollision) || attempt == maxUserCodeAttempts {
			return nil, fmt.Errorf("failed to store device authorization: %w", err)
		}
		logger.Debugw("user code collision, retrying", "attempt", attempt)
	}

	resp := &DeviceAuthorizationResponse{
		DeviceCode:      deviceCode,
		UserCode:        userCode,
		VerificationURI: g.verificationURI,
		Lifetime:        lifetime,
		Interval:        g.interval,
	}
	if g.verificationURI != "" {
		resp.VerificationURIComplete = completeVerificationURI(g.verificationURI, userCode)
	}

	if err := g.events.Raise(ctx, events.DeviceAuthorizationSuccess(client.ClientID, scopes)); err != nil {
		logger.Warnw("failed to raise event", "event", events.NameDeviceAuthorization, "error", err)
	}
	return resp, nil
}

func completeVerificationURI(base, userCode string) string {
	u, err := url.Parse(base)
	if err != nil {
		return ""
	}
	q := u.Query()
	q.Set("user_code", userCode)
	u.RawQuery = q.Encode()
	return u.String()
}
