// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package token

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/authcore/pkg/authserver/model"
	autherrors "github.com/stacklok/authcore/pkg/errors"
)

func TestPayload(t *testing.T) {
	t.Parallel()

	created := time.Unix(1700000000, 0).UTC()

	tests := []struct {
		name      string
		audiences []string
		claims    []model.Claim
		want      map[string]any
		wantErr   bool
	}{
		{
			name:      "single audience and single scope",
			audiences: []string{"api1"},
			claims: []model.Claim{
				model.NewClaim(model.ClaimClientID, "svc"),
				model.NewClaim(model.ClaimScope, "api1"),
			},
			want: map[string]any{
				model.ClaimAudience: "api1",
				model.ClaimClientID: "svc",
				model.ClaimScope:    []any{"api1"},
			},
		},
		{
			name:      "multiple audiences and repeated claims",
			audiences: []string{"api1", "api2"},
			claims: []model.Claim{
				model.NewClaim(model.ClaimRole, "admin"),
				model.NewClaim(model.ClaimRole, "dev"),
			},
			want: map[string]any{
				model.ClaimAudience: []string{"api1", "api2"},
				model.ClaimRole:     []any{"admin", "dev"},
			},
		},
		{
			name: "typed values",
			claims: []model.Claim{
				model.NewTypedClaim("age", "42", model.ClaimValueTypeInteger),
				model.NewTypedClaim("ratio", "0.5", model.ClaimValueTypeDouble),
				model.NewTypedClaim(model.ClaimEmailVerified, "true", model.ClaimValueTypeBoolean),
				model.NewTypedClaim("broken", "nope", model.ClaimValueTypeInteger),
			},
			want: map[string]any{
				"age":                    int64(42),
				"ratio":                  0.5,
				model.ClaimEmailVerified: true,
				"broken":                 "nope",
			},
		},
		{
			name: "json objects merge",
			claims: []model.Claim{
				model.NewTypedClaim(model.ClaimAddress, `{"street":"Main"}`, model.ClaimValueTypeJSON),
				model.NewTypedClaim(model.ClaimAddress, `{"city":"Springfield"}`, model.ClaimValueTypeJSON),
			},
			want: map[string]any{
				model.ClaimAddress: map[string]any{"street": "Main", "city": "Springfield"},
			},
		},
		{
			name: "json arrays flatten",
			claims: []model.Claim{
				model.NewTypedClaim("groups", `["a","b"]`, model.ClaimValueTypeJSON),
				model.NewClaim("groups", "c"),
			},
			want: map[string]any{
				"groups": []any{"a", "b", "c"},
			},
		},
		{
			name: "single json array stays an array",
			claims: []model.Claim{
				model.NewTypedClaim("groups", `["a"]`, model.ClaimValueTypeJSON),
			},
			want: map[string]any{
				"groups": []any{"a"},
			},
		},
		{
			name: "object mixed with string",
			claims: []model.Claim{
				model.NewTypedClaim(model.ClaimAddress, `{"street":"Main"}`, model.ClaimValueTypeJSON),
				model.NewClaim(model.ClaimAddress, "Main Street"),
			},
			wantErr: true,
		},
		{
			name: "json scalar",
			claims: []model.Claim{
				model.NewTypedClaim("n", `5`, model.ClaimValueTypeJSON),
			},
			wantErr: true,
		},
		{
			name: "invalid json",
			claims: []model.Claim{
				model.NewTypedClaim("n", `{`, model.ClaimValueTypeJSON),
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			tok := &model.Token{
				Type:         model.TokenTypeAccessToken,
				Issuer:       "https://issuer.example.com",
				Audiences:    tt.audiences,
				CreationTime: created,
				Lifetime:     time.Hour,
				Claims:       tt.claims,
			}

			got, err := Payload(tok)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, autherrors.IsConfiguration(err))
				return
			}
			require.NoError(t, err)

			assert.Equal(t, "https://issuer.example.com", got[model.ClaimIssuer])
			assert.Equal(t, created.Unix(), got[model.ClaimNotBefore])
			assert.Equal(t, created.Add(time.Hour).Unix(), got[model.ClaimExpiration])
			if tt.audiences == nil {
				assert.NotContains(t, got, model.ClaimAudience)
			}
			for k, v := range tt.want {
				assert.Equal(t, v, got[k], k)
			}
		})
	}
}
