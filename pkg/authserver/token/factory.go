// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package token builds identity and access tokens, renders them as signed
// JWTs or reference handles, and manages the refresh token lifecycle.
package token

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"k8s.io/utils/clock"

	"github.com/stacklok/authcore/pkg/authserver/claims"
	"github.com/stacklok/authcore/pkg/authserver/grants"
	"github.com/stacklok/authcore/pkg/authserver/model"
	"github.com/stacklok/authcore/pkg/authserver/server/crypto"
	"github.com/stacklok/authcore/pkg/authserver/server/keys"
	"github.com/stacklok/authcore/pkg/logger"
)

// CreationRequest carries everything needed to mint one token.
type CreationRequest struct {
	Subject   *model.Subject
	Client    *model.Client
	Resources *model.ResourceValidationResult

	// IncludeAllIdentityClaims puts the profile claims of the requested
	// identity resources into the identity token.
	IncludeAllIdentityClaims bool

	Nonce     string
	SessionID string

	// AccessTokenToHash and AuthorizationCodeToHash produce at_hash and
	// c_hash. StateHash is copied into s_hash as is.
	AccessTokenToHash       string
	AuthorizationCodeToHash string
	StateHash               string

	// AccessTokenLifetime and AccessTokenType override the client settings
	// when set.
	AccessTokenLifetime time.Duration
	AccessTokenType     model.AccessTokenType
}

// Options configures a Factory.
type Options struct {
	// Issuer is the iss of every token.
	Issuer string

	// EmitStaticAudienceClaim adds "{issuer}/resources" to every access
	// token audience.
	EmitStaticAudienceClaim bool
}

// Factory creates and encodes tokens.
type Factory struct {
	opts       Options
	assembler  *claims.Assembler
	keys       keys.CredentialService
	references grants.ReferenceTokenStore
	clock      clock.PassiveClock
}

// NewFactory returns a Factory.
func NewFactory(
	opts Options,
	assembler *claims.Assembler,
	credentials keys.CredentialService,
	references grants.ReferenceTokenStore,
	clk clock.PassiveClock,
) *Factory {
	return &Factory{
		opts:       opts,
		assembler:  assembler,
		keys:       credentials,
		references: references,
		clock:      clk,
	}
}

// Issuer returns the configured issuer.
func (f *Factory) Issuer() string {
	return f.opts.Issuer
}

// SigningAlgorithm returns the algorithm of the credential that signs
// identity tokens for client. Hash claims bound to those tokens (s_hash,
// at_hash, c_hash) must use its hash family.
func (f *Factory) SigningAlgorithm(ctx context.Context, client *model.Client) (string, error) {
	key, err := f.keys.SigningCredentials(ctx, client.AllowedIdentityTokenSigningAlgorithms)
	if err != nil {
		return "", err
	}
	return key.Algorithm, nil
}

// CreateIdentityToken builds an identity token. Claims are emitted in the
// order nonce, iat, at_hash, c_hash, s_hash, sid, then the identity claims.
func (f *Factory) CreateIdentityToken(ctx context.Context, req *CreationRequest) (*model.Token, error) {
	logger.Debugw("creating identity token", "clientID", req.Client.ClientID)

	now := f.clock.Now()
	var out []model.Claim

	if req.Nonce != "" {
		out = append(out, model.NewClaim(model.ClaimNonce, req.Nonce))
	}
	out = append(out, model.NewTimeClaim(model.ClaimIssuedAt, now))

	if req.AccessTokenToHash != "" || req.AuthorizationCodeToHash != "" {
		alg, err := f.SigningAlgorithm(ctx, req.Client)
		if err != nil {
			return nil, err
		}
		if req.AccessTokenToHash != "" {
			v, err := crypto.CreateHashClaimValue(req.AccessTokenToHash, alg)
			if err != nil {
				return nil, err
			}
			out = append(out, model.NewClaim(model.ClaimAccessTokenHash, v))
		}
		if req.AuthorizationCodeToHash != "" {
			v, err := crypto.CreateHashClaimValue(req.AuthorizationCodeToHash, alg)
			if err != nil {
				return nil, err
			}
			out = append(out, model.NewClaim(model.ClaimAuthorizationCode, v))
		}
	}

	if req.StateHash != "" {
		out = append(out, model.NewClaim(model.ClaimStateHash, req.StateHash))
	}
	if req.SessionID != "" {
		out = append(out, model.NewClaim(model.ClaimSessionID, req.SessionID))
	}

	identityClaims, err := f.assembler.IdentityTokenClaims(ctx,
		req.Subject, req.Resources, req.IncludeAllIdentityClaims, req.Client)
	if err != nil {
		return nil, err
	}
	out = append(out, identityClaims...)

	return &model.Token{
		Type:                     model.TokenTypeIdentityToken,
		Issuer:                   f.opts.Issuer,
		Audiences:                []string{req.Client.ClientID},
		CreationTime:             now,
		Lifetime:                 req.Client.IdentityTokenLifetime,
		ClientID:                 req.Client.ClientID,
		AccessTokenType:          model.AccessTokenTypeJWT,
		Claims:                   model.DistinctClaims(out),
		Version:                  model.CurrentTokenVersion,
		AllowedSigningAlgorithms: req.Client.AllowedIdentityTokenSigningAlgorithms,
	}, nil
}

// CreateAccessToken builds an access token.
func (f *Factory) CreateAccessToken(ctx context.Context, req *CreationRequest) (*model.Token, error) {
	logger.Debugw("creating access token", "clientID", req.Client.ClientID)

	now := f.clock.Now()

	out, err := f.assembler.AccessTokenClaims(ctx, req.Subject, req.Resources, req.Client)
	if err != nil {
		return nil, err
	}
	if req.Client.IncludeJwtID {
		out = append(out, model.NewClaim(model.ClaimJwtID, uuid.NewString()))
	}
	if req.SessionID != "" {
		out = append(out, model.NewClaim(model.ClaimSessionID, req.SessionID))
	}
	out = append(out, model.NewTimeClaim(model.ClaimIssuedAt, now))

	var audiences []string
	var signingAlgorithms []string
	if req.Resources != nil {
		audiences = req.Resources.Resources.APIResourceNames()
		for _, api := range req.Resources.Resources.APIResources {
			signingAlgorithms = append(signingAlgorithms, api.AllowedAccessTokenSigningAlgorithms...)
		}
	}
	if f.opts.EmitStaticAudienceClaim {
		audiences = append(audiences, strings.TrimSuffix(f.opts.Issuer, "/")+"/resources")
	}

	lifetime := req.AccessTokenLifetime
	if lifetime <= 0 {
		lifetime = req.Client.AccessTokenLifetime
	}
	tokenType := req.AccessTokenType
	if tokenType == "" {
		tokenType = req.Client.AccessTokenType
	}

	return &model.Token{
		Type:                     model.TokenTypeAccessToken,
		Issuer:                   f.opts.Issuer,
		Audiences:                audiences,
		CreationTime:             now,
		Lifetime:                 lifetime,
		ClientID:                 req.Client.ClientID,
		AccessTokenType:          tokenType,
		Claims:                   model.DistinctClaims(out),
		Version:                  model.CurrentTokenVersion,
		AllowedSigningAlgorithms: signingAlgorithms,
	}, nil
}

// Encode renders t. Reference access tokens are persisted and their opaque
// handle is returned; everything else is signed with the active credential.
// A missing credential is a configuration error.
func (f *Factory) Encode(ctx context.Context, t *model.Token) (string, error) {
	if t.Type == model.TokenTypeAccessToken && t.AccessTokenType == model.AccessTokenTypeReference {
		handle, err := f.references.StoreReferenceToken(ctx, t)
		if err != nil {
			return "", fmt.Errorf("failed to store reference token: %w", err)
		}
		return handle, nil
	}

	key, err := f.keys.SigningCredentials(ctx, t.AllowedSigningAlgorithms)
	if err != nil {
		return "", err
	}
	return signJWT(t, key)
}
