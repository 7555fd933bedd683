// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package response

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
	"k8s.io/utils/clock"

	"github.com/stacklok/authcore/pkg/authserver/grants"
	"github.com/stacklok/authcore/pkg/authserver/model"
	"github.com/stacklok/authcore/pkg/authserver/server/keys"
	"github.com/stacklok/authcore/pkg/authserver/token"
	"github.com/stacklok/authcore/pkg/logger"
)

// supportedJWTAlgorithms are the algorithms the key providers can produce.
var supportedJWTAlgorithms = []jose.SignatureAlgorithm{
	jose.RS256, jose.RS384, jose.RS512,
	jose.PS256, jose.PS384, jose.PS512,
	jose.ES256, jose.ES384, jose.ES512,
	jose.EdDSA,
}

// IntrospectionRequest is an RFC 7662 introspection request from an
// authenticated caller.
type IntrospectionRequest struct {
	Client        *model.Client
	Token         string
	TokenTypeHint string
}

// Introspector answers introspection requests.
type Introspector struct {
	issuer        string
	keys          keys.CredentialService
	references    grants.ReferenceTokenStore
	refreshTokens grants.RefreshTokenStore
	clock         clock.PassiveClock
}

// NewIntrospector returns an Introspector.
func NewIntrospector(
	issuer string,
	credentials keys.CredentialService,
	references grants.ReferenceTokenStore,
	refreshTokens grants.RefreshTokenStore,
	clk clock.PassiveClock,
) *Introspector {
	return &Introspector{
		issuer:        issuer,
		keys:          credentials,
		references:    references,
		refreshTokens: refreshTokens,
		clock:         clk,
	}
}

// inactive is the only response given for tokens that are unknown, expired,
// invalid, or not visible to the caller.
func inactive() map[string]any {
	return map[string]any{"active": false}
}

// Introspect returns the RFC 7662 response for req.Token.
func (i *Introspector) Introspect(ctx context.Context, req *IntrospectionRequest) (map[string]any, error) {
	if req.Token == "" {
		return inactive(), nil
	}

	if strings.Count(req.Token, ".") == 2 {
		return i.introspectJWT(ctx, req.Token)
	}

	tries := []func(context.Context, *IntrospectionRequest) (map[string]any, error){
		i.introspectReferenceToken, i.introspectRefreshToken,
	}
	if req.TokenTypeHint == TokenTypeHintRefreshToken {
		tries[0], tries[1] = tries[1], tries[0]
	}
	for _, try := range tries {
		resp, err := try(ctx, req)
		if err != nil || resp != nil {
			return resp, err
		}
	}
	return inactive(), nil
}

func (i *Introspector) introspectJWT(ctx context.Context, raw string) (map[string]any, error) {
	parsed, err := jwt.ParseSigned(raw, supportedJWTAlgorithms)
	if err != nil || len(parsed.Headers) != 1 {
		logger.Debugw("introspected token is not a valid JWS", "error", err)
		return inactive(), nil
	}
	header := parsed.Headers[0]
	if typ, _ := header.ExtraHeaders[jose.HeaderType].(string); typ != token.JWTTypeAccessToken {
		return inactive(), nil
	}

	validation, err := i.keys.ValidationKeys(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load validation keys: %w", err)
	}

	for _, key := range validation {
		if header.KeyID != "" && key.KeyID != header.KeyID {
			continue
		}
		var std jwt.Claims
		payload := map[string]any{}
		if err := parsed.Claims(key.PublicKey, &std, &payload); err != nil {
			continue
		}
		if err := std.ValidateWithLeeway(jwt.Expected{Issuer: i.issuer, Time: i.clock.Now()}, 0); err != nil {
			logger.Debugw("introspected token failed validation", "error", err)
			return inactive(), nil
		}
		return activePayload(payload), nil
	}
	return inactive(), nil
}

func (i *Introspector) introspectReferenceToken(ctx context.Context, req *IntrospectionRequest) (map[string]any, error) {
	t, err := i.references.GetReferenceToken(ctx, req.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to look up reference token: %w", err)
	}
	if t == nil {
		return nil, nil
	}
	if !i.clock.Now().Before(t.ExpiresAt()) {
		return inactive(), nil
	}
	payload, err := token.Payload(t)
	if err != nil {
		return nil, err
	}
	return activePayload(payload), nil
}

// activePayload marks payload active and renders scope as the
// space-delimited string introspection responses use.
func activePayload(payload map[string]any) map[string]any {
	switch scopes := payload[model.ClaimScope].(type) {
	case []any:
		values := make([]string, 0, len(scopes))
		for _, s := range scopes {
			if str, ok := s.(string); ok {
				values = append(values, str)
			}
		}
		payload[model.ClaimScope] = model.JoinScopes(values)
	case []string:
		payload[model.ClaimScope] = model.JoinScopes(scopes)
	}
	payload["active"] = true
	return payload
}

// introspectRefreshToken only reveals refresh tokens to the client they were
// issued to.
func (i *Introspector) introspectRefreshToken(ctx context.Context, req *IntrospectionRequest) (map[string]any, error) {
	rt, err := i.refreshTokens.GetRefreshToken(ctx, req.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to look up refresh token: %w", err)
	}
	if rt == nil {
		return nil, nil
	}
	if req.Client == nil || rt.ClientID() != req.Client.ClientID || !i.clock.Now().Before(rt.ExpiresAt()) {
		return inactive(), nil
	}

	out := map[string]any{
		"active":     true,
		"token_type": TokenTypeHintRefreshToken,
		"client_id":  rt.ClientID(),
		"scope":      model.JoinScopes(rt.Scopes()),
		"iat":        rt.CreationTime.Unix(),
		"exp":        rt.ExpiresAt().Unix(),
	}
	if sub := rt.SubjectID(); sub != "" {
		out["sub"] = sub
	}
	return out, nil
}
