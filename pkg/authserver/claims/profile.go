// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package claims

import (
	"context"
	"slices"

	"github.com/stacklok/authcore/pkg/authserver/model"
)

//go:generate mockgen -destination=mocks/mock_profile.go -package=mocks -source=profile.go ProfileService

// Callers identify who asks the profile service for claims.
const (
	CallerIdentityToken = "ClaimsProviderIdentityToken"
	CallerAccessToken   = "ClaimsProviderAccessToken"
	CallerUserInfo      = "UserInfoEndpoint"
	CallerAuthorize     = "AuthorizeEndpoint"
	CallerToken         = "TokenEndpoint"
	CallerRefresh       = "RefreshTokenValidation"
	CallerDevice        = "DeviceCodeValidation"
)

// ProfileDataRequest asks for claims about a subject.
type ProfileDataRequest struct {
	Subject             *model.Subject
	Client              *model.Client
	Caller              string
	RequestedClaimTypes []string
	RequestedResources  *model.ResourceValidationResult
}

// IsActiveRequest asks whether a subject may currently obtain tokens.
type IsActiveRequest struct {
	Subject *model.Subject
	Client  *model.Client
	Caller  string
}

// ProfileService is the host application's user directory.
type ProfileService interface {
	// GetProfileData returns claims for the requested claim types. Claim
	// types the engine sets itself are ignored if returned.
	GetProfileData(ctx context.Context, req *ProfileDataRequest) ([]model.Claim, error)

	// IsActive reports whether the subject is still allowed to sign in and
	// obtain tokens.
	IsActive(ctx context.Context, req *IsActiveRequest) (bool, error)
}

// DefaultProfileService serves the claims established at login time and
// treats every authenticated subject as active.
type DefaultProfileService struct{}

// GetProfileData implements ProfileService.
func (DefaultProfileService) GetProfileData(_ context.Context, req *ProfileDataRequest) ([]model.Claim, error) {
	if req.Subject == nil {
		return nil, nil
	}
	var out []model.Claim
	for _, c := range req.Subject.Claims {
		if slices.Contains(req.RequestedClaimTypes, c.Type) {
			out = append(out, c)
		}
	}
	return out, nil
}

// IsActive implements ProfileService.
func (DefaultProfileService) IsActive(_ context.Context, req *IsActiveRequest) (bool, error) {
	return req.Subject.IsAuthenticated(), nil
}

var _ ProfileService = DefaultProfileService{}
