// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package grants

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/stacklok/authcore/pkg/authserver/model"
	"github.com/stacklok/authcore/pkg/authserver/storage"
	"github.com/stacklok/authcore/pkg/logger"
)

// Grant summarizes what a subject has granted one client: the union of
// remembered consent, refresh tokens and reference tokens.
type Grant struct {
	ClientID     string     `json:"client_id" yaml:"client_id"`
	SubjectID    string     `json:"subject_id" yaml:"subject_id"`
	Scopes       []string   `json:"scopes" yaml:"scopes"`
	CreationTime time.Time  `json:"creation_time" yaml:"creation_time"`
	Expiration   *time.Time `json:"expiration,omitempty" yaml:"expiration,omitempty"`
	Description  string     `json:"description,omitempty" yaml:"description,omitempty"`
}

// summaryTypes are the grant types that represent standing access.
var summaryTypes = []storage.GrantType{
	storage.UserConsentGrantType,
	storage.RefreshTokenGrantType,
	storage.ReferenceTokenGrantType,
}

// Service manages every persisted grant of a subject.
type Service struct {
	store      storage.GrantStore
	codes      *CodeStore
	refresh    *RefreshStore
	references *ReferenceStore
	consents   *ConsentStore
}

// NewService returns a Service over store.
func NewService(store storage.GrantStore) *Service {
	return &Service{
		store:      store,
		codes:      NewCodeStore(store),
		refresh:    NewRefreshStore(store),
		references: NewReferenceStore(store),
		consents:   NewConsentStore(store),
	}
}

// GetAllGrants returns one Grant per client the subject has granted access
// to, ordered by client id.
func (s *Service) GetAllGrants(ctx context.Context, subjectID string) ([]Grant, error) {
	if subjectID == "" {
		return nil, fmt.Errorf("subject id is required")
	}

	persisted, err := s.store.GetAll(ctx, storage.Filter{SubjectID: subjectID, Types: summaryTypes})
	if err != nil {
		return nil, fmt.Errorf("failed to list grants: %w", err)
	}

	byClient := make(map[string]*Grant)
	for _, p := range persisted {
		scopes, ok := scopesOf(p)
		if !ok {
			continue
		}

		g, exists := byClient[p.ClientID]
		if !exists {
			g = &Grant{ClientID: p.ClientID, SubjectID: subjectID, CreationTime: p.CreationTime}
			byClient[p.ClientID] = g
		}
		for _, scope := range scopes {
			if !slices.Contains(g.Scopes, scope) {
				g.Scopes = append(g.Scopes, scope)
			}
		}
		if p.CreationTime.Before(g.CreationTime) {
			g.CreationTime = p.CreationTime
		}
		g.Expiration = laterExpiration(g.Expiration, p.Expiration, !exists)
	}

	result := make([]Grant, 0, len(byClient))
	for _, g := range byClient {
		sort.Strings(g.Scopes)
		result = append(result, *g)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ClientID < result[j].ClientID })
	return result, nil
}

// laterExpiration keeps the later of two expirations where nil means never.
func laterExpiration(current, candidate *time.Time, first bool) *time.Time {
	if first {
		return candidate
	}
	if current == nil || candidate == nil {
		return nil
	}
	if candidate.After(*current) {
		return candidate
	}
	return current
}

func scopesOf(p *storage.PersistedGrant) ([]string, bool) {
	switch p.Type {
	case storage.UserConsentGrantType:
		var c model.Consent
		if err := Deserialize(p.Data, &c); err != nil {
			return nil, false
		}
		return c.Scopes, true
	case storage.RefreshTokenGrantType:
		var rt model.RefreshToken
		if err := Deserialize(p.Data, &rt); err != nil {
			return nil, false
		}
		return rt.Scopes(), true
	case storage.ReferenceTokenGrantType:
		var t model.Token
		if err := Deserialize(p.Data, &t); err != nil {
			return nil, false
		}
		return t.Scopes(), true
	default:
		return nil, false
	}
}

// RemoveAllGrants revokes consent, refresh tokens, reference tokens and
// unredeemed authorization codes of subjectID. An empty clientID removes
// grants for every client.
func (s *Service) RemoveAllGrants(ctx context.Context, subjectID, clientID string) error {
	if subjectID == "" {
		return fmt.Errorf("subject id is required")
	}

	logger.Debugw("removing grants", "subject", subjectID, "clientID", clientID)

	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error { return s.consents.RemoveUserConsents(gctx, subjectID, clientID) })
	group.Go(func() error { return s.refresh.RemoveRefreshTokens(gctx, subjectID, clientID) })
	group.Go(func() error { return s.references.RemoveReferenceTokens(gctx, subjectID, clientID) })
	group.Go(func() error { return s.codes.RemoveAuthorizationCodes(gctx, subjectID, clientID) })
	return group.Wait()
}
