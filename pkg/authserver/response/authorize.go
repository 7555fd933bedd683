// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package response

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ory/fosite"
	"k8s.io/utils/clock"

	"github.com/stacklok/authcore/pkg/authserver/clients"
	"github.com/stacklok/authcore/pkg/authserver/events"
	"github.com/stacklok/authcore/pkg/authserver/grants"
	"github.com/stacklok/authcore/pkg/authserver/model"
	"github.com/stacklok/authcore/pkg/authserver/server/crypto"
	"github.com/stacklok/authcore/pkg/authserver/token"
	"github.com/stacklok/authcore/pkg/logger"
)

// sessionStateSaltBytes is the entropy of the session_state salt.
const sessionStateSaltBytes = 16

// AuthorizeProcessor builds authorize responses.
type AuthorizeProcessor interface {
	CreateResponse(ctx context.Context, req *model.ValidatedAuthorizeRequest) (*AuthorizeResponse, error)
}

// AuthorizeResponse is the parameter set returned to the client's redirect
// URI.
type AuthorizeResponse struct {
	Request     *model.ValidatedAuthorizeRequest
	RedirectURI string

	Code                string
	IdentityToken       string
	AccessToken         string
	AccessTokenLifetime time.Duration
	Scope               string
	State               string
	SessionState        string
}

// ToValues renders the response parameters. Empty parameters are omitted.
func (r *AuthorizeResponse) ToValues() url.Values {
	v := url.Values{}
	if r.Code != "" {
		v.Set("code", r.Code)
	}
	if r.IdentityToken != "" {
		v.Set("id_token", r.IdentityToken)
	}
	if r.AccessToken != "" {
		v.Set("access_token", r.AccessToken)
		v.Set("token_type", model.TokenTypeBearer)
		v.Set("expires_in", strconv.FormatInt(int64(r.AccessTokenLifetime/time.Second), 10))
	}
	if r.Scope != "" {
		v.Set("scope", r.Scope)
	}
	if r.State != "" {
		v.Set("state", r.State)
	}
	if r.SessionState != "" {
		v.Set("session_state", r.SessionState)
	}
	return v
}

// ErrorResponse renders an authorize error.
func ErrorResponse(errorCode, description, state string) url.Values {
	v := url.Values{"error": {errorCode}}
	if description != "" {
		v.Set("error_description", description)
	}
	if state != "" {
		v.Set("state", state)
	}
	return v
}

// AuthorizeResponseGenerator is the default AuthorizeProcessor.
type AuthorizeResponseGenerator struct {
	factory *token.Factory
	codes   grants.AuthorizationCodeStore
	events  events.Service
	clock   clock.PassiveClock
	salt    func() string
}

// AuthorizeOption configures an AuthorizeResponseGenerator.
type AuthorizeOption func(*AuthorizeResponseGenerator)

// WithSessionStateSalt replaces the random session_state salt.
func WithSessionStateSalt(salt func() string) AuthorizeOption {
	return func(g *AuthorizeResponseGenerator) {
		g.salt = salt
	}
}

// NewAuthorizeResponseGenerator returns an AuthorizeResponseGenerator.
func NewAuthorizeResponseGenerator(
	factory *token.Factory,
	codes grants.AuthorizationCodeStore,
	evts events.Service,
	clk clock.PassiveClock,
	opts ...AuthorizeOption,
) *AuthorizeResponseGenerator {
	if evts == nil {
		evts = events.NopService{}
	}
	g := &AuthorizeResponseGenerator{
		factory: factory,
		codes:   codes,
		events:  evts,
		clock:   clk,
		salt:    func() string { return crypto.CreateUniqueID(sessionStateSaltBytes) },
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// CreateResponse implements AuthorizeProcessor. The request must have passed
// the interaction engine.
func (g *AuthorizeResponseGenerator) CreateResponse(
	ctx context.Context,
	req *model.ValidatedAuthorizeRequest,
) (*AuthorizeResponse, error) {
	flow, ok := model.FlowForResponseType(req.ResponseType)
	if !ok {
		return nil, fosite.ErrUnsupportedResponseType.WithHintf("Response type %q is not supported.", req.ResponseType)
	}
	redirectURI, ok := clients.MatchRedirectURI(req.Client, req.RedirectURI)
	if !ok {
		return nil, fosite.ErrInvalidRequest.WithHint("The redirect_uri is not registered for the client.")
	}

	logger.Debugw("creating authorize response", "clientID", req.ClientID, "flow", flow)

	var (
		resp *AuthorizeResponse
		err  error
	)
	switch flow {
	case model.FlowAuthorizationCode:
		resp, err = g.createCodeFlowResponse(ctx, req)
	case model.FlowImplicit:
		resp, err = g.createImplicitFlowResponse(ctx, req, "")
	case model.FlowHybrid:
		resp, err = g.createHybridFlowResponse(ctx, req)
	}
	if err != nil {
		return nil, err
	}

	resp.Request = req
	resp.RedirectURI = redirectURI
	resp.State = req.State
	resp.Scope = model.JoinScopes(req.ValidatedResources.RawScopeValues())
	resp.SessionState = g.sessionState(req)

	if resp.AccessToken != "" || resp.IdentityToken != "" {
		g.raise(ctx, events.TokenIssuedSuccess(events.EndpointAuthorize, req.ClientID,
			req.Subject.GetSubjectID(), string(flow), req.ValidatedResources.RawScopeValues()))
	}
	return resp, nil
}

func (g *AuthorizeResponseGenerator) createCodeFlowResponse(
	ctx context.Context,
	req *model.ValidatedAuthorizeRequest,
) (*AuthorizeResponse, error) {
	code, err := g.createCode(ctx, req)
	if err != nil {
		return nil, err
	}
	return &AuthorizeResponse{Code: code}, nil
}

func (g *AuthorizeResponseGenerator) createHybridFlowResponse(
	ctx context.Context,
	req *model.ValidatedAuthorizeRequest,
) (*AuthorizeResponse, error) {
	code, err := g.createCode(ctx, req)
	if err != nil {
		return nil, err
	}
	resp, err := g.createImplicitFlowResponse(ctx, req, code)
	if err != nil {
		return nil, err
	}
	resp.Code = code
	return resp, nil
}

func (g *AuthorizeResponseGenerator) createImplicitFlowResponse(
	ctx context.Context,
	req *model.ValidatedAuthorizeRequest,
	authorizationCode string,
) (*AuthorizeResponse, error) {
	resp := &AuthorizeResponse{}
	tokenRequested := model.ResponseTypeIncludesToken(req.ResponseType)

	if tokenRequested {
		at, err := g.factory.CreateAccessToken(ctx, &token.CreationRequest{
			Subject:             req.Subject,
			Client:              req.Client,
			Resources:           req.ValidatedResources,
			SessionID:           req.SessionID,
			AccessTokenLifetime: req.AccessTokenLifetime,
		})
		if err != nil {
			return nil, err
		}
		encoded, err := g.factory.Encode(ctx, at)
		if err != nil {
			return nil, err
		}
		resp.AccessToken = encoded
		resp.AccessTokenLifetime = at.Lifetime
	}

	if model.ResponseTypeIncludesIDToken(req.ResponseType) {
		stateHash, err := g.stateHash(ctx, req)
		if err != nil {
			return nil, err
		}
		id, err := g.factory.CreateIdentityToken(ctx, &token.CreationRequest{
			Subject:   req.Subject,
			Client:    req.Client,
			Resources: req.ValidatedResources,
			// Without an access token the relying party cannot call
			// userinfo, so the identity token carries the profile claims.
			IncludeAllIdentityClaims: !tokenRequested || req.Client.AlwaysIncludeUserClaimsInIDToken,
			Nonce:                    req.Nonce,
			SessionID:                req.SessionID,
			AccessTokenToHash:        resp.AccessToken,
			AuthorizationCodeToHash:  authorizationCode,
			StateHash:                stateHash,
		})
		if err != nil {
			return nil, err
		}
		encoded, err := g.factory.Encode(ctx, id)
		if err != nil {
			return nil, err
		}
		resp.IdentityToken = encoded
	}

	return resp, nil
}

func (g *AuthorizeResponseGenerator) createCode(ctx context.Context, req *model.ValidatedAuthorizeRequest) (string, error) {
	stateHash, err := g.stateHash(ctx, req)
	if err != nil {
		return "", err
	}

	code := &model.AuthorizationCode{
		CreationTime:        g.clock.Now(),
		Lifetime:            req.Client.AuthorizationCodeLifetime,
		ClientID:            req.ClientID,
		Subject:             req.Subject,
		IsOpenID:            req.IsOpenIDRequest(),
		RequestedScopes:     req.ValidatedResources.RawScopeValues(),
		RedirectURI:         req.RedirectURI,
		Nonce:               req.Nonce,
		StateHash:           stateHash,
		WasConsentShown:     req.WasConsentShown,
		SessionID:           req.SessionID,
		CodeChallenge:       crypto.HashCodeChallenge(req.CodeChallenge),
		CodeChallengeMethod: req.CodeChallengeMethod,
	}

	handle, err := g.codes.StoreAuthorizationCode(ctx, code)
	if err != nil {
		return "", fmt.Errorf("failed to store authorization code: %w", err)
	}
	return handle, nil
}

// stateHash hashes state with the algorithm of the credential that signs the
// client's identity tokens.
func (g *AuthorizeResponseGenerator) stateHash(ctx context.Context, req *model.ValidatedAuthorizeRequest) (string, error) {
	if req.State == "" {
		return "", nil
	}
	alg, err := g.factory.SigningAlgorithm(ctx, req.Client)
	if err != nil {
		return "", err
	}
	return crypto.CreateHashClaimValue(req.State, alg)
}

func (g *AuthorizeResponseGenerator) sessionState(req *model.ValidatedAuthorizeRequest) string {
	if !req.IsOpenIDRequest() || req.SessionID == "" {
		return ""
	}
	origin, err := originOf(req.RedirectURI)
	if err != nil {
		logger.Warnw("cannot compute session_state", "clientID", req.ClientID, "error", err)
		return ""
	}
	return SessionState(req.ClientID, origin, req.SessionID, g.salt())
}

// SessionState computes the OpenID Connect Session Management value
// base64url(SHA-256(clientID + origin + sessionID + salt)) "." salt.
func SessionState(clientID, origin, sessionID, salt string) string {
	return crypto.SHA256Base64URL(clientID+origin+sessionID+salt) + "." + salt
}

// originOf returns scheme://host[:port] of rawURL, omitting default ports.
func originOf(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("redirect uri %q is not absolute", rawURL)
	}
	host := u.Host
	if isDefaultPort(u.Scheme, u.Port()) {
		host = strings.TrimSuffix(host, ":"+u.Port())
	}
	return u.Scheme + "://" + host, nil
}

func isDefaultPort(scheme, port string) bool {
	return (scheme == "https" && port == "443") || (scheme == "http" && port == "80")
}

func (g *AuthorizeResponseGenerator) raise(ctx context.Context, evt *events.Event) {
	if err := g.events.Raise(ctx, evt); err != nil {
		logger.Warnw("failed to raise event", "event", evt.Name, "error", err)
	}
}

var _ AuthorizeProcessor = (*AuthorizeResponseGenerator)(nil)
