// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package interaction decides whether an authorize request needs the user to
// log in, grant consent, or can be answered right away.
package interaction

import (
	"context"
	"fmt"
	"slices"

	"github.com/ory/fosite"
	"k8s.io/utils/clock"

	"github.com/stacklok/authcore/pkg/authserver/claims"
	"github.com/stacklok/authcore/pkg/authserver/consent"
	"github.com/stacklok/authcore/pkg/authserver/events"
	"github.com/stacklok/authcore/pkg/authserver/model"
	autherrors "github.com/stacklok/authcore/pkg/errors"
	"github.com/stacklok/authcore/pkg/logger"
)

// Engine runs the login and consent decision for authorize requests.
type Engine struct {
	profile claims.ProfileService
	consent consent.Service
	events  events.Service
	clock   clock.PassiveClock
}

// NewEngine returns an Engine.
func NewEngine(profile claims.ProfileService, consentService consent.Service, evts events.Service, clk clock.PassiveClock) *Engine {
	if evts == nil {
		evts = events.NopService{}
	}
	return &Engine{profile: profile, consent: consentService, events: evts, clock: clk}
}

// Decide returns what has to happen before req can be answered. decision is
// the user's answer on the consent page, or nil when the page was not shown.
//
// Login is always decided first; consent is never evaluated while a login is
// outstanding. When req carries prompt=none, a login or consent result
// becomes the login_required or consent_required error. The returned error is
// reserved for failures of the collaborators and for invalid prompt modes.
func (e *Engine) Decide(
	ctx context.Context,
	req *model.ValidatedAuthorizeRequest,
	decision *model.ConsentDecision,
) (*model.InteractionResponse, error) {
	logger.Debugw("deciding authorize interaction", "clientID", req.ClientID)

	if decision != nil && !decision.Granted() && !req.Subject.IsAuthenticated() {
		logger.Infow("user denied consent before authenticating", "clientID", req.ClientID)
		return deniedResponse(decision), nil
	}

	result, err := e.processLogin(ctx, req)
	if err != nil {
		return nil, err
	}
	if !result.IsLogin && !result.IsError() {
		result, err = e.processConsent(ctx, req, decision)
		if err != nil {
			return nil, err
		}
	}

	if (result.IsLogin || result.IsConsent) && req.HasPrompt(model.PromptModeNone) {
		code := fosite.ErrConsentRequired.ErrorField
		if result.IsLogin {
			code = fosite.ErrLoginRequired.ErrorField
		}
		logger.Infow("interaction required but prompt=none", "clientID", req.ClientID, "error", code)
		return &model.InteractionResponse{Error: &model.InteractionError{Code: code}}, nil
	}
	return result, nil
}

func (e *Engine) processLogin(ctx context.Context, req *model.ValidatedAuthorizeRequest) (*model.InteractionResponse, error) {
	login := &model.InteractionResponse{IsLogin: true}

	if req.HasPrompt(model.PromptModeLogin) || req.HasPrompt(model.PromptModeSelectAccount) {
		logger.Debugw("showing login: prompt requested it", "prompt", req.PromptModes)
		// Cleared so the prompt does not fire again when the user returns.
		req.RemovePrompt()
		return login, nil
	}

	subject := req.Subject
	if !subject.IsAuthenticated() {
		logger.Debugw("showing login: user is not authenticated")
		return login, nil
	}

	active, err := e.profile.IsActive(ctx, &claims.IsActiveRequest{
		Subject: subject,
		Client:  req.Client,
		Caller:  claims.CallerAuthorize,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to check whether user is active: %w", err)
	}
	if !active {
		logger.Debugw("showing login: user is not active", "subject", subject.SubjectID)
		return login, nil
	}

	currentIdP := subject.IdentityProvider
	if req.IdP != "" && req.IdP != currentIdP {
		logger.Debugw("showing login: current identity provider does not match requested one",
			"current", currentIdP, "requested", req.IdP)
		return login, nil
	}

	if req.MaxAge != nil && e.clock.Now().After(subject.AuthTime.Add(*req.MaxAge)) {
		logger.Debugw("showing login: requested max_age exceeded", "subject", subject.SubjectID)
		return login, nil
	}

	client := req.Client
	if currentIdP == model.LocalIdentityProvider && !client.EnableLocalLogin {
		logger.Debugw("showing login: local login is disabled for client", "clientID", client.ClientID)
		return login, nil
	}

	if len(client.IdentityProviderRestrictions) > 0 &&
		!slices.Contains(client.IdentityProviderRestrictions, currentIdP) {
		logger.Debugw("showing login: identity provider is not allowed for client",
			"idp", currentIdP, "clientID", client.ClientID)
		return login, nil
	}

	if client.UserSSOLifetime > 0 && e.clock.Now().Sub(subject.AuthTime) > client.UserSSOLifetime {
		logger.Debugw("showing login: user's authentication is older than the client's SSO lifetime",
			"clientID", client.ClientID)
		return login, nil
	}

	return &model.InteractionResponse{}, nil
}

func (e *Engine) processConsent(
	ctx context.Context,
	req *model.ValidatedAuthorizeRequest,
	decision *model.ConsentDecision,
) (*model.InteractionResponse, error) {
	for _, mode := range req.PromptModes {
		if mode != model.PromptModeNone && mode != model.PromptModeConsent {
			return nil, autherrors.NewConfigurationError(
				fmt.Sprintf("invalid prompt mode %q reached the consent phase", mode), nil)
		}
	}

	if req.ValidatedResources == nil {
		req.ValidatedResources = &model.ResourceValidationResult{}
	}
	scopes := req.ValidatedResources.RawScopeValues()
	required, err := e.consent.RequiresConsent(ctx, req.Subject, req.Client, scopes)
	if err != nil {
		return nil, fmt.Errorf("failed to check consent: %w", err)
	}

	if required && req.HasPrompt(model.PromptModeNone) {
		logger.Infow("consent required but prompt=none", "clientID", req.ClientID)
		return &model.InteractionResponse{
			Error: &model.InteractionError{Code: fosite.ErrConsentRequired.ErrorField},
		}, nil
	}

	if !req.HasPrompt(model.PromptModeConsent) && !required {
		return &model.InteractionResponse{}, nil
	}

	if decision == nil {
		logger.Debugw("showing consent page", "clientID", req.ClientID)
		return &model.InteractionResponse{IsConsent: true}, nil
	}

	req.WasConsentShown = true

	if !decision.Granted() {
		logger.Infow("user denied consent", "clientID", req.ClientID)
		e.raise(ctx, events.ConsentDenied(req.ClientID, req.Subject.SubjectID, scopes))
		return deniedResponse(decision), nil
	}

	for _, scope := range req.ValidatedResources.Resources.RequiredScopes() {
		if !slices.Contains(decision.ScopesConsented, scope) {
			logger.Infow("user did not consent to a required scope", "clientID", req.ClientID, "scope", scope)
			e.raise(ctx, events.ConsentDenied(req.ClientID, req.Subject.SubjectID, scopes))
			return &model.InteractionResponse{
				Error: &model.InteractionError{Code: fosite.ErrAccessDenied.ErrorField},
			}, nil
		}
	}

	req.ValidatedResources = req.ValidatedResources.Filter(decision.ScopesConsented)

	if req.Client.AllowRememberConsent {
		var remembered []string
		if decision.RememberConsent {
			for _, scope := range req.ValidatedResources.RawScopeValues() {
				if scope == model.ScopeOfflineAccess && !req.Client.AllowOfflineAccess {
					continue
				}
				remembered = append(remembered, scope)
			}
		}
		if err := e.consent.UpdateConsent(ctx, req.Subject, req.Client, remembered); err != nil {
			return nil, fmt.Errorf("failed to update consent: %w", err)
		}
	}

	e.raise(ctx, events.ConsentGranted(req.ClientID, req.Subject.SubjectID,
		scopes, req.ValidatedResources.RawScopeValues(), decision.RememberConsent))
	return &model.InteractionResponse{}, nil
}

func deniedResponse(decision *model.ConsentDecision) *model.InteractionResponse {
	code := decision.Error
	if code == "" {
		code = fosite.ErrAccessDenied.ErrorField
	}
	return &model.InteractionResponse{
		Error: &model.InteractionError{Code: code, Description: decision.ErrorDescription},
	}
}

func (e *Engine) raise(ctx context.Context, evt *events.Event) {
	if err := e.events.Raise(ctx, evt); err != nil {
		logger.Warnw("failed to raise event", "event", evt.Name, "error", err)
	}
}
