// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package interaction

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	clocktesting "k8s.io/utils/clock/testing"

	claimmocks "github.com/stacklok/authcore/pkg/authserver/claims/mocks"
	consentmocks "github.com/stacklok/authcore/pkg/authserver/consent/mocks"
	"github.com/stacklok/authcore/pkg/authserver/model"
	"github.com/stacklok/authcore/pkg/authserver/resources"
	autherrors "github.com/stacklok/authcore/pkg/errors"
)

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func validatedResources() *model.ResourceValidationResult {
	return &model.ResourceValidationResult{
		Scopes: []string{model.ScopeOpenID, model.ScopeProfile},
		Resources: model.Resources{
			IdentityResources: []model.IdentityResource{resources.OpenID(), resources.Profile()},
		},
	}
}

func authenticated() *model.Subject {
	return &model.Subject{
		SubjectID:        "alice",
		AuthTime:         testNow.Add(-10 * time.Minute),
		IdentityProvider: model.LocalIdentityProvider,
	}
}

func newRequest(subject *model.Subject, prompts ...string) *model.ValidatedAuthorizeRequest {
	client := model.NewClient("web")
	return &model.ValidatedAuthorizeRequest{
		Client:             client,
		ClientID:           client.ClientID,
		Subject:            subject,
		ValidatedResources: validatedResources(),
		RequestedScopes:    []string{model.ScopeOpenID, model.ScopeProfile},
		PromptModes:        prompts,
	}
}

type engineMocks struct {
	profile *claimmocks.MockProfileService
	consent *consentmocks.MockService
}

func newTestEngine(t *testing.T) (*Engine, engineMocks) {
	t.Helper()
	ctrl := gomock.NewController(t)
	m := engineMocks{
		profile: claimmocks.NewMockProfileService(ctrl),
		consent: consentmocks.NewMockService(ctrl),
	}
	return NewEngine(m.profile, m.consent, nil, clocktesting.NewFakeClock(testNow)), m
}

func (m engineMocks) active(active bool) {
	m.profile.EXPECT().IsActive(gomock.Any(), gomock.Any()).Return(active, nil)
}

func TestDecide_Login(t *testing.T) {
	t.Parallel()

	maxAge := 5 * time.Minute

	tests := []struct {
		name      string
		subject   *model.Subject
		prompts   []string
		mutate    func(*model.ValidatedAuthorizeRequest)
		isActive  *bool
		wantLogin bool
		wantError string
	}{
		{name: "unauthenticated", subject: nil, wantLogin: true},
		{name: "unauthenticated with prompt none", subject: nil, prompts: []string{model.PromptModeNone}, wantError: "login_required"},
		{name: "prompt login", subject: authenticated(), prompts: []string{model.PromptModeLogin}, wantLogin: true},
		{name: "prompt select_account", subject: authenticated(), prompts: []string{model.PromptModeSelectAccount}, wantLogin: true},
		{name: "inactive user", subject: authenticated(), isActive: new(bool), wantLogin: true},
		{
			name: "idp mismatch", subject: authenticated(), isActive: ptr(true), wantLogin: true,
			mutate: func(r *model.ValidatedAuthorizeRequest) { r.IdP = "google" },
		},
		{
			name: "max_age exceeded", subject: authenticated(), isActive: ptr(true), wantLogin: true,
			mutate: func(r *model.ValidatedAuthorizeRequest) { r.MaxAge = &maxAge },
		},
		{
			name: "local login disabled", subject: authenticated(), isActive: ptr(true), wantLogin: true,
			mutate: func(r *model.ValidatedAuthorizeRequest) { r.Client.EnableLocalLogin = false },
		},
		{
			name: "idp restricted", subject: authenticated(), isActive: ptr(true), wantLogin: true,
			mutate: func(r *model.ValidatedAuthorizeRequest) { r.Client.IdentityProviderRestrictions = []string{"google"} },
		},
		{
			name: "sso lifetime exceeded", subject: authenticated(), isActive: ptr(true), wantLogin: true,
			mutate: func(r *model.ValidatedAuthorizeRequest) { r.Client.UserSSOLifetime = time.Minute },
		},
		{
			name: "login failure wins over prompt none consent", subject: authenticated(), isActive: new(bool),
			prompts: []string{model.PromptModeNone}, wantError: "login_required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			engine, m := newTestEngine(t)
			if tt.isActive != nil {
				m.active(*tt.isActive)
			}

			req := newRequest(tt.subject, tt.prompts...)
			if tt.mutate != nil {
				tt.mutate(req)
			}

			got, err := engine.Decide(context.Background(), req, nil)
			require.NoError(t, err)
			assert.Equal(t, tt.wantLogin, got.IsLogin)
			assert.False(t, got.IsConsent)
			if tt.wantError != "" {
				require.NotNil(t, got.Error)
				assert.Equal(t, tt.wantError, got.Error.Code)
			} else {
				assert.Nil(t, got.Error)
			}
		})
	}
}

func TestDecide_PromptLoginIsCleared(t *testing.T) {
	t.Parallel()
	engine, m := newTestEngine(t)

	req := newRequest(authenticated(), model.PromptModeLogin)
	got, err := engine.Decide(context.Background(), req, nil)
	require.NoError(t, err)
	assert.True(t, got.IsLogin)
	assert.Empty(t, req.PromptModes)

	m.active(true)
	m.consent.EXPECT().RequiresConsent(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(false, nil)
	got, err = engine.Decide(context.Background(), req, nil)
	require.NoError(t, err)
	assert.True(t, got.ShouldProceed(), "returning user is not sent back to login")
}

func TestDecide_AnonymousDeny(t *testing.T) {
	t.Parallel()
	engine, _ := newTestEngine(t)

	got, err := engine.Decide(context.Background(), newRequest(nil), &model.ConsentDecision{})
	require.NoError(t, err)
	require.NotNil(t, got.Error)
	assert.Equal(t, "access_denied", got.Error.Code)

	got, err = engine.Decide(context.Background(), newRequest(nil), &model.ConsentDecision{
		Error: "interaction_required", ErrorDescription: "user went away",
	})
	require.NoError(t, err)
	assert.Equal(t, "interaction_required", got.Error.Code)
	assert.Equal(t, "user went away", got.Error.Description)
}

func TestDecide_Consent(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		prompts      []string
		required     bool
		decision     *model.ConsentDecision
		expectUpdate []string
		wantConsent  bool
		wantError    string
		wantScopes   []string
	}{
		{name: "not required", wantScopes: []string{model.ScopeOpenID, model.ScopeProfile}},
		{name: "required without decision", required: true, wantConsent: true},
		{name: "prompt consent without decision", prompts: []string{model.PromptModeConsent}, wantConsent: true},
		{name: "required with prompt none", required: true, prompts: []string{model.PromptModeNone}, wantError: "consent_required"},
		{name: "denied", required: true, decision: &model.ConsentDecision{}, wantError: "access_denied"},
		{
			name: "required scope missing", required: true,
			decision:  &model.ConsentDecision{ScopesConsented: []string{model.ScopeProfile}},
			wantError: "access_denied",
		},
		{
			name: "granted subset remembered", required: true,
			decision:     &model.ConsentDecision{ScopesConsented: []string{model.ScopeOpenID}, RememberConsent: true},
			expectUpdate: []string{model.ScopeOpenID},
			wantScopes:   []string{model.ScopeOpenID},
		},
		{
			name: "granted not remembered clears", required: true,
			decision:     &model.ConsentDecision{ScopesConsented: []string{model.ScopeOpenID, model.ScopeProfile}},
			expectUpdate: []string{},
			wantScopes:   []string{model.ScopeOpenID, model.ScopeProfile},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			engine, m := newTestEngine(t)
			m.active(true)
			m.consent.EXPECT().RequiresConsent(gomock.Any(), gomock.Any(), gomock.Any(),
				[]string{model.ScopeOpenID, model.ScopeProfile}).Return(tt.required, nil)
			if tt.expectUpdate != nil {
				m.consent.EXPECT().UpdateConsent(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(
					func(_ context.Context, _ *model.Subject, _ *model.Client, scopes []string) error {
						assert.ElementsMatch(t, tt.expectUpdate, scopes)
						return nil
					})
			}

			req := newRequest(authenticated(), tt.prompts...)
			got, err := engine.Decide(context.Background(), req, tt.decision)
			require.NoError(t, err)

			assert.False(t, got.IsLogin)
			assert.Equal(t, tt.wantConsent, got.IsConsent)
			if tt.wantError != "" {
				require.NotNil(t, got.Error)
				assert.Equal(t, tt.wantError, got.Error.Code)
				return
			}
			assert.Nil(t, got.Error)
			if tt.wantScopes != nil {
				assert.Equal(t, tt.wantScopes, req.ValidatedResources.RawScopeValues())
			}
			if tt.decision != nil {
				assert.True(t, req.WasConsentShown)
			}
		})
	}
}

func TestDecide_InvalidPromptIsFatal(t *testing.T) {
	t.Parallel()
	engine, m := newTestEngine(t)
	m.active(true)

	_, err := engine.Decide(context.Background(), newRequest(authenticated(), "bogus"), nil)
	require.Error(t, err)
	assert.True(t, autherrors.IsConfiguration(err))
}

func TestDecide_CollaboratorFailures(t *testing.T) {
	t.Parallel()

	t.Run("profile", func(t *testing.T) {
		t.Parallel()
		engine, m := newTestEngine(t)
		m.profile.EXPECT().IsActive(gomock.Any(), gomock.Any()).Return(false, errors.New("directory down"))
		_, err := engine.Decide(context.Background(), newRequest(authenticated()), nil)
		require.ErrorContains(t, err, "directory down")
	})

	t.Run("consent", func(t *testing.T) {
		t.Parallel()
		engine, m := newTestEngine(t)
		m.active(true)
		m.consent.EXPECT().RequiresConsent(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
			Return(false, errors.New("store down"))
		_, err := engine.Decide(context.Background(), newRequest(authenticated()), nil)
		require.ErrorContains(t, err, "store down")
	})
}

func ptr[T any](v T) *T {
	return &v
}
