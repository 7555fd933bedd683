// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package response

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"time"

	"github.com/ory/fosite"
	"k8s.io/utils/clock"

	"github.com/stacklok/authcore/pkg/authserver/claims"
	"github.com/stacklok/authcore/pkg/authserver/clients"
	"github.com/stacklok/authcore/pkg/authserver/events"
	"github.com/stacklok/authcore/pkg/authserver/grants"
	"github.com/stacklok/authcore/pkg/authserver/model"
	"github.com/stacklok/authcore/pkg/authserver/resources"
	"github.com/stacklok/authcore/pkg/authserver/server/crypto"
	"github.com/stacklok/authcore/pkg/authserver/token"
	autherrors "github.com/stacklok/authcore/pkg/errors"
	"github.com/stacklok/authcore/pkg/logger"
)

// TokenProcessor builds token endpoint responses.
type TokenProcessor interface {
	Process(ctx context.Context, req *model.ValidatedTokenRequest) (*TokenResponse, error)
}

// TokenResponse is the token endpoint response.
type TokenResponse struct {
	AccessToken         string
	AccessTokenLifetime time.Duration
	RefreshToken        string
	IdentityToken       string
	Scope               string
	Custom              map[string]any
}

// ToMap renders the JSON response body. Custom entries never replace the
// standard fields.
func (r *TokenResponse) ToMap() map[string]any {
	out := make(map[string]any, len(r.Custom)+6)
	for k, v := range r.Custom {
		out[k] = v
	}
	out["access_token"] = r.AccessToken
	out["token_type"] = model.TokenTypeBearer
	out["expires_in"] = int64(r.AccessTokenLifetime / time.Second)
	if r.Scope != "" {
		out["scope"] = r.Scope
	}
	if r.RefreshToken != "" {
		out["refresh_token"] = r.RefreshToken
	}
	if r.IdentityToken != "" {
		out["id_token"] = r.IdentityToken
	}
	return out
}

// TokenGeneratorConfig holds the collaborators of a TokenResponseGenerator.
type TokenGeneratorConfig struct {
	Factory       *token.Factory
	Refresh       token.RefreshTokenService
	Codes         grants.AuthorizationCodeStore
	RefreshTokens grants.RefreshTokenStore
	Devices       grants.DeviceFlowStore
	Clients       clients.Store
	Resources     resources.Store
	Profile       claims.ProfileService
	Events        events.Service
	Clock         clock.PassiveClock

	// ExtensionGrantTypes are the registered extension grants. Their
	// validators authenticate the subject; the response is built like a
	// password grant response.
	ExtensionGrantTypes []string
}

// TokenResponseGenerator is the default TokenProcessor.
type TokenResponseGenerator struct {
	cfg TokenGeneratorConfig
}

// NewTokenResponseGenerator returns a TokenResponseGenerator.
func NewTokenResponseGenerator(cfg TokenGeneratorConfig) *TokenResponseGenerator {
	if cfg.Events == nil {
		cfg.Events = events.NopService{}
	}
	return &TokenResponseGenerator{cfg: cfg}
}

// Process implements TokenProcessor. Protocol failures are returned as
// *fosite.RFC6749Error values; any other error is a server error.
func (g *TokenResponseGenerator) Process(ctx context.Context, req *model.ValidatedTokenRequest) (*TokenResponse, error) {
	logger.Debugw("processing token request", "clientID", req.Client.ClientID, "grantType", req.GrantType)

	resp, subjectID, err := g.dispatch(ctx, req)
	if err != nil {
		if rfcErr, ok := protocolError(err); ok {
			g.raise(ctx, events.TokenIssuedFailure(events.EndpointToken, req.Client.ClientID,
				req.GrantType, rfcErr.ErrorField, rfcErr.DescriptionField))
		}
		return nil, err
	}

	g.raise(ctx, events.TokenIssuedSuccess(events.EndpointToken, req.Client.ClientID, subjectID,
		req.GrantType, model.ParseScopes(resp.Scope)))
	return resp, nil
}

func (g *TokenResponseGenerator) dispatch(
	ctx context.Context,
	req *model.ValidatedTokenRequest,
) (*TokenResponse, string, error) {
	// refresh_token is governed by AllowOfflineAccess, checked at redemption.
	if req.GrantType != model.GrantTypeRefreshToken && !req.Client.AllowsGrantType(req.GrantType) {
		return nil, "", fosite.ErrUnauthorizedClient.WithHintf(
			"The client is not allowed to use grant type %q.", req.GrantType)
	}

	switch req.GrantType {
	case model.GrantTypeClientCredentials:
		return g.processTokenRequest(ctx, req)
	case model.GrantTypePassword:
		if !req.Subject.IsAuthenticated() {
			return nil, "", fosite.ErrInvalidGrant
		}
		return g.processTokenRequest(ctx, req)
	case model.GrantTypeAuthorizationCode:
		return g.processAuthorizationCodeRequest(ctx, req)
	case model.GrantTypeRefreshToken:
		return g.processRefreshTokenRequest(ctx, req)
	case model.GrantTypeDeviceCode:
		return g.processDeviceCodeRequest(ctx, req)
	default:
		if slices.Contains(g.cfg.ExtensionGrantTypes, req.GrantType) {
			return g.processTokenRequest(ctx, req)
		}
		return nil, "", fosite.ErrUnsupportedGrantType.WithHintf("Grant type %q is not supported.", req.GrantType)
	}
}

// processTokenRequest serves the grants whose validator already resolved the
// subject and the scopes.
func (g *TokenResponseGenerator) processTokenRequest(
	ctx context.Context,
	req *model.ValidatedTokenRequest,
) (*TokenResponse, string, error) {
	at, encoded, err := g.createAccessToken(ctx, req, req.Subject, req.ValidatedResources, req.SessionID)
	if err != nil {
		return nil, "", err
	}

	resp := &TokenResponse{
		AccessToken:         encoded,
		AccessTokenLifetime: at.Lifetime,
		Scope:               model.JoinScopes(req.ValidatedResources.RawScopeValues()),
		Custom:              req.CustomResponse,
	}

	if req.ValidatedResources != nil && req.ValidatedResources.Resources.OfflineAccess {
		handle, err := g.cfg.Refresh.CreateRefreshToken(ctx, req.Subject, at, req.Client)
		if err != nil {
			return nil, "", err
		}
		resp.RefreshToken = handle
	}
	return resp, req.Subject.GetSubjectID(), nil
}

func (g *TokenResponseGenerator) processAuthorizationCodeRequest(
	ctx context.Context,
	req *model.ValidatedTokenRequest,
) (*TokenResponse, string, error) {
	code, err := g.cfg.Codes.TakeAuthorizationCode(ctx, req.AuthorizationCodeHandle)
	if err != nil {
		return nil, "", fmt.Errorf("failed to redeem authorization code: %w", err)
	}
	if code == nil {
		logger.Debugw("authorization code not found", "clientID", req.Client.ClientID)
		return nil, "", invalidGrant()
	}
	if reason := g.codeRejection(code, req); reason != "" {
		logger.Infow("authorization code rejected", "clientID", req.Client.ClientID, "reason", reason)
		return nil, "", invalidGrant()
	}

	return g.redeem(ctx, req, redemption{
		clientID:  code.ClientID,
		subject:   code.Subject,
		scopes:    code.RequestedScopes,
		isOpenID:  code.IsOpenID,
		nonce:     code.Nonce,
		stateHash: code.StateHash,
		sessionID: code.SessionID,
		caller:    claims.CallerToken,
	})
}

// codeRejection returns why code cannot be redeemed by req, or "" when it can.
func (g *TokenResponseGenerator) codeRejection(code *model.AuthorizationCode, req *model.ValidatedTokenRequest) string {
	switch {
	case !g.cfg.Clock.Now().Before(code.ExpiresAt()):
		return "expired"
	case code.ClientID != req.Client.ClientID:
		return "issued to another client"
	case code.RedirectURI != req.RedirectURI:
		return "redirect_uri mismatch"
	case code.CodeChallenge != "":
		if !crypto.VerifyPKCE(code.CodeChallenge, code.CodeChallengeMethod, req.CodeVerifier) {
			return "code_verifier mismatch"
		}
	case req.Client.RequirePKCE():
		return "client requires PKCE but the code has no challenge"
	case req.CodeVerifier != "":
		return "code_verifier sent for a code without challenge"
	}
	return ""
}

func (g *TokenResponseGenerator) processDeviceCodeRequest(
	ctx context.Context,
	req *model.ValidatedTokenRequest,
) (*TokenResponse, string, error) {
	dc, err := g.cfg.Devices.FindByDeviceCode(ctx, req.DeviceCode)
	if err != nil {
		return nil, "", fmt.Errorf("failed to look up device code: %w", err)
	}
	if dc == nil {
		logger.Debugw("device code not found", "clientID", req.Client.ClientID)
		return nil, "", invalidGrant()
	}
	if dc.ClientID != req.Client.ClientID {
		logger.Infow("device code issued to another client", "clientID", req.Client.ClientID)
		return nil, "", invalidGrant()
	}
	if !g.cfg.Clock.Now().Before(dc.ExpiresAt()) {
		g.removeDeviceCode(ctx, req.DeviceCode)
		return nil, "", ErrExpiredToken
	}
	if dc.IsDenied {
		g.removeDeviceCode(ctx, req.DeviceCode)
		return nil, "", fosite.ErrAccessDenied
	}
	if !dc.IsAuthorized {
		return nil, "", ErrAuthorizationPending
	}

	taken, err := g.cfg.Devices.TakeByDeviceCode(ctx, req.DeviceCode)
	if err != nil {
		return nil, "", fmt.Errorf("failed to redeem device code: %w", err)
	}
	if taken == nil {
		return nil, "", invalidGrant()
	}

	scopes := taken.AuthorizedScopes
	if scopes == nil {
		scopes = taken.RequestedScopes
	}
	return g.redeem(ctx, req, redemption{
		clientID:  taken.ClientID,
		subject:   taken.Subject,
		scopes:    scopes,
		isOpenID:  slices.Contains(scopes, model.ScopeOpenID),
		sessionID: taken.SessionID,
		caller:    claims.CallerDevice,
	})
}

func (g *TokenResponseGenerator) removeDeviceCode(ctx context.Context, deviceCode string) {
	if err := g.cfg.Devices.RemoveByDeviceCode(ctx, deviceCode); err != nil {
		logger.Warnw("failed to remove device code", "error", err)
	}
}

// redemption is the persisted state of a code or device code.
type redemption struct {
	clientID  string
	subject   *model.Subject
	scopes    []string
	isOpenID  bool
	nonce     string
	stateHash string
	sessionID string
	caller    string
}

// redeem mints the tokens for a redeemed code or device code.
func (g *TokenResponseGenerator) redeem(
	ctx context.Context,
	req *model.ValidatedTokenRequest,
	r redemption,
) (*TokenResponse, string, error) {
	client, err := g.cfg.Clients.FindEnabledClientByID(ctx, r.clientID)
	if err != nil {
		return nil, "", fmt.Errorf("failed to find client: %w", err)
	}
	if client == nil {
		return nil, "", autherrors.NewConfigurationError(
			fmt.Sprintf("client %s was removed or disabled after the grant was issued", r.clientID), nil)
	}

	if err := g.ensureActive(ctx, r.subject, client, r.caller); err != nil {
		return nil, "", err
	}

	validated, err := resources.Validate(ctx, g.cfg.Resources, nil, r.scopes)
	if err != nil {
		logger.Infow("stored scopes no longer resolve", "clientID", client.ClientID, "error", err)
		return nil, "", fosite.ErrInvalidScope
	}

	at, encoded, err := g.createAccessToken(ctx, &model.ValidatedTokenRequest{
		GrantType:           req.GrantType,
		Client:              client,
		AccessTokenLifetime: req.AccessTokenLifetime,
		AccessTokenType:     req.AccessTokenType,
	}, r.subject, validated, r.sessionID)
	if err != nil {
		return nil, "", err
	}

	resp := &TokenResponse{
		AccessToken:         encoded,
		AccessTokenLifetime: at.Lifetime,
		Scope:               model.JoinScopes(validated.RawScopeValues()),
		Custom:              req.CustomResponse,
	}

	if validated.Resources.OfflineAccess {
		handle, err := g.cfg.Refresh.CreateRefreshToken(ctx, r.subject, at, client)
		if err != nil {
			return nil, "", err
		}
		resp.RefreshToken = handle
	}

	if r.isOpenID {
		id, err := g.cfg.Factory.CreateIdentityToken(ctx, &token.CreationRequest{
			Subject:                  r.subject,
			Client:                   client,
			Resources:                validated,
			IncludeAllIdentityClaims: client.AlwaysIncludeUserClaimsInIDToken,
			Nonce:                    r.nonce,
			SessionID:                r.sessionID,
			AccessTokenToHash:        encoded,
			StateHash:                r.stateHash,
		})
		if err != nil {
			return nil, "", err
		}
		resp.IdentityToken, err = g.cfg.Factory.Encode(ctx, id)
		if err != nil {
			return nil, "", err
		}
	}

	return resp, r.subject.GetSubjectID(), nil
}

func (g *TokenResponseGenerator) processRefreshTokenRequest(
	ctx context.Context,
	req *model.ValidatedTokenRequest,
) (*TokenResponse, string, error) {
	client := req.Client

	rt, err := g.cfg.RefreshTokens.GetRefreshToken(ctx, req.RefreshTokenHandle)
	if err != nil {
		return nil, "", fmt.Errorf("failed to look up refresh token: %w", err)
	}
	switch {
	case rt == nil || rt.AccessToken == nil:
		logger.Debugw("refresh token not found", "clientID", client.ClientID)
		return nil, "", invalidGrant()
	case !g.cfg.Clock.Now().Before(rt.ExpiresAt()):
		logger.Debugw("refresh token expired", "clientID", client.ClientID)
		return nil, "", invalidGrant()
	case rt.ClientID() != client.ClientID:
		logger.Infow("refresh token issued to another client", "clientID", client.ClientID)
		return nil, "", invalidGrant()
	case !client.AllowOfflineAccess:
		logger.Infow("client no longer allows offline access", "clientID", client.ClientID)
		return nil, "", invalidGrant()
	}

	subject := subjectFromToken(rt.AccessToken)
	if subject != nil {
		if err := g.ensureActive(ctx, subject, client, claims.CallerRefresh); err != nil {
			return nil, "", err
		}
	}

	scopes := rt.Scopes()
	var validated *model.ResourceValidationResult
	resolve := func() (*model.ResourceValidationResult, error) {
		if validated != nil {
			return validated, nil
		}
		v, err := resources.Validate(ctx, g.cfg.Resources, nil, scopes)
		if err != nil {
			logger.Infow("refresh token scopes no longer resolve", "clientID", client.ClientID, "error", err)
			return nil, fosite.ErrInvalidScope
		}
		validated = v
		return v, nil
	}

	var at *model.Token
	if client.UpdateAccessTokenClaimsOnRefresh {
		v, err := resolve()
		if err != nil {
			return nil, "", err
		}
		at, err = g.cfg.Factory.CreateAccessToken(ctx, &token.CreationRequest{
			Subject:             subject,
			Client:              client,
			Resources:           v,
			SessionID:           rt.SessionID(),
			AccessTokenLifetime: req.AccessTokenLifetime,
			AccessTokenType:     req.AccessTokenType,
		})
		if err != nil {
			return nil, "", err
		}
	} else {
		at = rt.AccessToken.Clone()
		at.CreationTime = g.cfg.Clock.Now()
		at.Claims = slices.DeleteFunc(at.Claims, func(c model.Claim) bool { return c.Type == model.ClaimIssuedAt })
		at.Claims = append(at.Claims, model.NewTimeClaim(model.ClaimIssuedAt, at.CreationTime))
		at.Lifetime = client.AccessTokenLifetime
		if req.AccessTokenLifetime > 0 {
			at.Lifetime = req.AccessTokenLifetime
		}
		at.AccessTokenType = client.AccessTokenType
		if req.AccessTokenType != "" {
			at.AccessTokenType = req.AccessTokenType
		}
	}

	// Encoding a reference token persists it, so it waits until the
	// rotation has been won.
	rt.AccessToken = at
	handle, err := g.cfg.Refresh.UpdateRefreshToken(ctx, req.RefreshTokenHandle, rt, client)
	if err != nil {
		if errors.Is(err, token.ErrRefreshTokenReused) {
			return nil, "", invalidGrant()
		}
		return nil, "", err
	}

	encoded, err := g.cfg.Factory.Encode(ctx, at)
	if err != nil {
		return nil, "", err
	}

	resp := &TokenResponse{
		AccessToken:         encoded,
		AccessTokenLifetime: at.Lifetime,
		RefreshToken:        handle,
		Scope:               model.JoinScopes(at.Scopes()),
		Custom:              req.CustomResponse,
	}

	if slices.Contains(scopes, model.ScopeOpenID) {
		v, err := resolve()
		if err != nil {
			return nil, "", err
		}
		id, err := g.cfg.Factory.CreateIdentityToken(ctx, &token.CreationRequest{
			Subject:                  subject,
			Client:                   client,
			Resources:                v,
			IncludeAllIdentityClaims: client.AlwaysIncludeUserClaimsInIDToken,
			SessionID:                rt.SessionID(),
			AccessTokenToHash:        encoded,
		})
		if err != nil {
			return nil, "", err
		}
		resp.IdentityToken, err = g.cfg.Factory.Encode(ctx, id)
		if err != nil {
			return nil, "", err
		}
	}

	return resp, subject.GetSubjectID(), nil
}

func (g *TokenResponseGenerator) createAccessToken(
	ctx context.Context,
	req *model.ValidatedTokenRequest,
	subject *model.Subject,
	validated *model.ResourceValidationResult,
	sessionID string,
) (*model.Token, string, error) {
	at, err := g.cfg.Factory.CreateAccessToken(ctx, &token.CreationRequest{
		Subject:             subject,
		Client:              req.Client,
		Resources:           validated,
		SessionID:           sessionID,
		AccessTokenLifetime: req.AccessTokenLifetime,
		AccessTokenType:     req.AccessTokenType,
	})
	if err != nil {
		return nil, "", err
	}
	encoded, err := g.cfg.Factory.Encode(ctx, at)
	if err != nil {
		return nil, "", err
	}
	return at, encoded, nil
}

// ensureActive rejects grants of subjects the profile service disabled since
// the grant was issued.
func (g *TokenResponseGenerator) ensureActive(
	ctx context.Context, subject *model.Subject, client *model.Client, caller string,
) error {
	if !subject.IsAuthenticated() {
		return invalidGrant()
	}
	active, err := g.cfg.Profile.IsActive(ctx, &claims.IsActiveRequest{Subject: subject, Client: client, Caller: caller})
	if err != nil {
		return fmt.Errorf("failed to check whether user is active: %w", err)
	}
	if !active {
		logger.Infow("user is no longer active", "clientID", client.ClientID)
		return invalidGrant()
	}
	return nil
}

// subjectFromToken rebuilds the subject an access token was issued to, or
// returns nil for client tokens.
func subjectFromToken(t *model.Token) *model.Subject {
	sub := t.SubjectID()
	if sub == "" {
		return nil
	}
	s := &model.Subject{SubjectID: sub}
	for _, c := range t.Claims {
		switch c.Type {
		case model.ClaimAuthenticationTime:
			if n, err := strconv.ParseInt(c.Value, 10, 64); err == nil {
				s.AuthTime = time.Unix(n, 0).UTC()
			}
		case model.ClaimIdentityProvider:
			s.IdentityProvider = c.Value
		case model.ClaimAuthenticationMeth:
			s.AuthenticationMethods = append(s.AuthenticationMethods, c.Value)
		default:
			if !model.IsProtocolClaimType(c.Type) {
				s.Claims = append(s.Claims, c)
			}
		}
	}
	return s
}

func (g *TokenResponseGenerator) raise(ctx context.Context, evt *events.Event) {
	if err := g.cfg.Events.Raise(ctx, evt); err != nil {
		logger.Warnw("failed to raise event", "event", evt.Name, "error", err)
	}
}

var _ TokenProcessor = (*TokenResponseGenerator)(nil)
