// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package resources

import (
	"fmt"

	"github.com/stacklok/authcore/pkg/authserver/model"
)

// OpenID returns the openid identity resource. It is required whenever it
// is requested.
func OpenID() model.IdentityResource {
	return model.IdentityResource{
		Name:        model.ScopeOpenID,
		DisplayName: "Your user identifier",
		Enabled:     true,
		Required:    true,
		UserClaims:  []string{model.ClaimSubject},
	}
}

// Profile returns the profile identity resource.
func Profile() model.IdentityResource {
	return model.IdentityResource{
		Name:        model.ScopeProfile,
		DisplayName: "User profile",
		Enabled:     true,
		Emphasize:   true,
		UserClaims: []string{
			model.ClaimName,
			model.ClaimFamilyName,
			model.ClaimGivenName,
			model.ClaimMiddleName,
			model.ClaimNickName,
			model.ClaimPreferredUserName,
			model.ClaimProfile,
			model.ClaimPicture,
			model.ClaimWebSite,
			model.ClaimGender,
			model.ClaimBirthDate,
			model.ClaimZoneInfo,
			model.ClaimLocale,
			model.ClaimUpdatedAt,
		},
	}
}

// Email returns the email identity resource.
func Email() model.IdentityResource {
	return model.IdentityResource{
		Name:        model.ScopeEmail,
		DisplayName: "Your email address",
		Enabled:     true,
		Emphasize:   true,
		UserClaims:  []string{model.ClaimEmail, model.ClaimEmailVerified},
	}
}

// Phone returns the phone identity resource.
func Phone() model.IdentityResource {
	return model.IdentityResource{
		Name:        model.ScopePhone,
		DisplayName: "Your phone number",
		Enabled:     true,
		Emphasize:   true,
		UserClaims:  []string{model.ClaimPhoneNumber, model.ClaimPhoneNumberVerified},
	}
}

// Address returns the address identity resource.
func Address() model.IdentityResource {
	return model.IdentityResource{
		Name:        model.ScopeAddress,
		DisplayName: "Your postal address",
		Enabled:     true,
		Emphasize:   true,
		UserClaims:  []string{model.ClaimAddress},
	}
}

var standardIdentityResources = map[string]func() model.IdentityResource{
	model.ScopeOpenID:  OpenID,
	model.ScopeProfile: Profile,
	model.ScopeEmail:   Email,
	model.ScopePhone:   Phone,
	model.ScopeAddress: Address,
}

// StandardIdentityResource returns the OpenID Connect identity resource
// called name.
func StandardIdentityResource(name string) (model.IdentityResource, bool) {
	factory, ok := standardIdentityResources[name]
	if !ok {
		return model.IdentityResource{}, false
	}
	return factory(), true
}

// StandardIdentityResources resolves names to standard identity resources.
// An unknown name is an error.
func StandardIdentityResources(names ...string) ([]model.IdentityResource, error) {
	out := make([]model.IdentityResource, 0, len(names))
	for _, name := range names {
		r, ok := StandardIdentityResource(name)
		if !ok {
			return nil, fmt.Errorf("unknown standard identity resource %q", name)
		}
		out = append(out, r)
	}
	return out, nil
}
