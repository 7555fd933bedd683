// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package response

import (
	"context"
	"fmt"

	"github.com/stacklok/authcore/pkg/authserver/events"
	"github.com/stacklok/authcore/pkg/authserver/grants"
	"github.com/stacklok/authcore/pkg/authserver/model"
	"github.com/stacklok/authcore/pkg/logger"
)

// Token type hints accepted by the revocation and introspection endpoints.
const (
	TokenTypeHintAccessToken  = "access_token"
	TokenTypeHintRefreshToken = "refresh_token"
)

// RevocationRequest is an RFC 7009 revocation request from an authenticated
// client.
type RevocationRequest struct {
	Client        *model.Client
	Token         string
	TokenTypeHint string
}

// Revoker answers revocation requests.
type Revoker struct {
	refreshTokens grants.RefreshTokenStore
	references    grants.ReferenceTokenStore
	grants        *grants.Service
	events        events.Service
}

// RevokerOption configures a Revoker.
type RevokerOption func(*Revoker)

// WithGrantService makes RevokeAll available.
func WithGrantService(svc *grants.Service) RevokerOption {
	return func(r *Revoker) {
		r.grants = svc
	}
}

// NewRevoker returns a Revoker.
func NewRevoker(
	refreshTokens grants.RefreshTokenStore,
	references grants.ReferenceTokenStore,
	evts events.Service,
	opts ...RevokerOption,
) *Revoker {
	if evts == nil {
		evts = events.NopService{}
	}
	r := &Revoker{refreshTokens: refreshTokens, references: references, events: evts}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Revoke revokes req.Token when it belongs to req.Client. Unknown tokens and
// tokens of other clients are ignored; per RFC 7009 the caller answers 200 in
// both cases. The hint only picks which kind is tried first.
func (r *Revoker) Revoke(ctx context.Context, req *RevocationRequest) error {
	if req.Token == "" {
		return nil
	}

	order := []func(context.Context, *RevocationRequest) (bool, error){r.revokeReferenceToken, r.revokeRefreshToken}
	if req.TokenTypeHint != TokenTypeHintAccessToken {
		order[0], order[1] = order[1], order[0]
	}

	for _, revoke := range order {
		found, err := revoke(ctx, req)
		if err != nil {
			return err
		}
		if found {
			return nil
		}
	}
	logger.Debugw("revocation of unknown token ignored", "clientID", req.Client.ClientID)
	return nil
}

// revokeRefreshToken removes a refresh token together with the reference
// access tokens issued to the same subject and client.
func (r *Revoker) revokeRefreshToken(ctx context.Context, req *RevocationRequest) (bool, error) {
	rt, err := r.refreshTokens.GetRefreshToken(ctx, req.Token)
	if err != nil {
		return false, fmt.Errorf("failed to look up refresh token: %w", err)
	}
	if rt == nil {
		return false, nil
	}
	if rt.ClientID() != req.Client.ClientID {
		logger.Infow("client tried to revoke another client's refresh token", "clientID", req.Client.ClientID)
		return true, nil
	}

	if err := r.refreshTokens.RemoveRefreshToken(ctx, req.Token); err != nil {
		return false, fmt.Errorf("failed to remove refresh token: %w", err)
	}
	if sub := rt.SubjectID(); sub != "" {
		if err := r.references.RemoveReferenceTokens(ctx, sub, req.Client.ClientID); err != nil {
			return false, fmt.Errorf("failed to remove reference tokens: %w", err)
		}
	}
	r.raise(ctx, events.TokenRevoked(req.Client.ClientID, rt.SubjectID(), TokenTypeHintRefreshToken))
	return true, nil
}

func (r *Revoker) revokeReferenceToken(ctx context.Context, req *RevocationRequest) (bool, error) {
	t, err := r.references.GetReferenceToken(ctx, req.Token)
	if err != nil {
		return false, fmt.Errorf("failed to look up reference token: %w", err)
	}
	if t == nil {
		return false, nil
	}
	if t.ClientID != req.Client.ClientID {
		logger.Infow("client tried to revoke another client's access token", "clientID", req.Client.ClientID)
		return true, nil
	}

	if err := r.references.RemoveReferenceToken(ctx, req.Token); err != nil {
		return false, fmt.Errorf("failed to remove reference token: %w", err)
	}
	r.raise(ctx, events.TokenRevoked(req.Client.ClientID, t.SubjectID(), TokenTypeHintAccessToken))
	return true, nil
}

// RevokeAll removes every grant subjectID gave clientID, or every grant of
// subjectID when clientID is empty.
func (r *Revoker) RevokeAll(ctx context.Context, subjectID, clientID string) error {
	if r.grants == nil {
		return fmt.Errorf("revoker has no grant service")
	}
	if err := r.grants.RemoveAllGrants(ctx, subjectID, clientID); err != nil {
		return err
	}
	r.raise(ctx, events.GrantsRevoked(clientID, subjectID))
	return nil
}

func (r *Revoker) raise(ctx context.Context, evt *events.Event) {
	if err := r.events.Raise(ctx, evt); err != nil {
		logger.Warnw("failed to raise event", "event", evt.Name, "error", err)
	}
}
