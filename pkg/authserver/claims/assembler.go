// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package claims assembles the claim sets of identity tokens, access tokens
// and userinfo responses.
package claims

import (
	"context"
	"fmt"

	"github.com/stacklok/authcore/pkg/authserver/model"
	"github.com/stacklok/authcore/pkg/logger"
)

// Assembler builds claim sets from the subject, the client and the granted
// resources. Profile lookups are delegated to a ProfileService.
type Assembler struct {
	profile ProfileService
}

// NewAssembler returns an Assembler over profile.
func NewAssembler(profile ProfileService) *Assembler {
	return &Assembler{profile: profile}
}

// SubjectClaims returns the claims every token about subject carries: sub,
// auth_time, idp and one amr per authentication method.
func SubjectClaims(subject *model.Subject) []model.Claim {
	if subject == nil {
		return nil
	}

	out := []model.Claim{model.NewClaim(model.ClaimSubject, subject.SubjectID)}
	if !subject.AuthTime.IsZero() {
		out = append(out, model.NewTimeClaim(model.ClaimAuthenticationTime, subject.AuthTime))
	}
	if subject.IdentityProvider != "" {
		out = append(out, model.NewClaim(model.ClaimIdentityProvider, subject.IdentityProvider))
	}
	for _, amr := range subject.AuthenticationMethods {
		out = append(out, model.NewClaim(model.ClaimAuthenticationMeth, amr))
	}
	return out
}

// IdentityTokenClaims returns the identity claims for an identity token.
// Profile claims of the requested identity resources are included only when
// includeAllIdentityClaims is set; otherwise relying parties fetch them from
// the userinfo endpoint.
func (a *Assembler) IdentityTokenClaims(
	ctx context.Context,
	subject *model.Subject,
	resources *model.ResourceValidationResult,
	includeAllIdentityClaims bool,
	client *model.Client,
) ([]model.Claim, error) {
	out := SubjectClaims(subject)

	if includeAllIdentityClaims && resources != nil {
		claimTypes := resources.Resources.IdentityUserClaimTypes()
		if len(claimTypes) > 0 {
			profileClaims, err := a.profileClaims(ctx, &ProfileDataRequest{
				Subject:             subject,
				Client:              client,
				Caller:              CallerIdentityToken,
				RequestedClaimTypes: claimTypes,
				RequestedResources:  resources,
			})
			if err != nil {
				return nil, err
			}
			out = append(out, profileClaims...)
		}
	}

	return model.DistinctClaims(out), nil
}

// AccessTokenClaims returns client_id, client claims, one scope claim per
// granted scope and, for tokens issued to a subject, the subject claims plus
// the profile claims requested by the granted API resources and scopes.
func (a *Assembler) AccessTokenClaims(
	ctx context.Context,
	subject *model.Subject,
	resources *model.ResourceValidationResult,
	client *model.Client,
) ([]model.Claim, error) {
	out := []model.Claim{model.NewClaim(model.ClaimClientID, client.ClientID)}

	if len(client.Claims) > 0 && (subject == nil || client.AlwaysSendClientClaims) {
		for _, c := range client.Claims {
			c.Type = client.ClientClaimsPrefix + c.Type
			out = append(out, c)
		}
	}

	for _, scope := range resources.RawScopeValues() {
		out = append(out, model.NewClaim(model.ClaimScope, scope))
	}

	if subject != nil {
		out = append(out, SubjectClaims(subject)...)
	}

	if subject != nil && resources != nil {
		claimTypes := resources.Resources.APIUserClaimTypes()
		if len(claimTypes) > 0 {
			profileClaims, err := a.profileClaims(ctx, &ProfileDataRequest{
				Subject:             subject,
				Client:              client,
				Caller:              CallerAccessToken,
				RequestedClaimTypes: claimTypes,
				RequestedResources:  resources,
			})
			if err != nil {
				return nil, err
			}
			out = append(out, profileClaims...)
		}
	}

	return model.DistinctClaims(out), nil
}

// UserInfoClaims returns sub plus the profile claims of the granted identity
// resources.
func (a *Assembler) UserInfoClaims(
	ctx context.Context,
	subject *model.Subject,
	resources *model.ResourceValidationResult,
	client *model.Client,
) ([]model.Claim, error) {
	if !subject.IsAuthenticated() {
		return nil, fmt.Errorf("userinfo requires a subject")
	}

	out := []model.Claim{model.NewClaim(model.ClaimSubject, subject.SubjectID)}
	if resources == nil {
		return out, nil
	}
	claimTypes := resources.Resources.IdentityUserClaimTypes()
	if len(claimTypes) > 0 {
		profileClaims, err := a.profileClaims(ctx, &ProfileDataRequest{
			Subject:             subject,
			Client:              client,
			Caller:              CallerUserInfo,
			RequestedClaimTypes: claimTypes,
			RequestedResources:  resources,
		})
		if err != nil {
			return nil, err
		}
		out = append(out, profileClaims...)
	}
	return model.DistinctClaims(out), nil
}

func (a *Assembler) profileClaims(ctx context.Context, req *ProfileDataRequest) ([]model.Claim, error) {
	profileClaims, err := a.profile.GetProfileData(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to get profile data: %w", err)
	}

	out := make([]model.Claim, 0, len(profileClaims))
	for _, c := range profileClaims {
		if model.IsProtocolClaimType(c.Type) {
			logger.Debugw("dropping protocol claim returned by profile service",
				"claimType", c.Type, "caller", req.Caller)
			continue
		}
		out = append(out, c)
	}
	return out, nil
}
