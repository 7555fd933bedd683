// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package response_test

import (
	"context"
	"testing"

	"github.com/ory/fosite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/stacklok/authcore/pkg/authserver/model"
	"github.com/stacklok/authcore/pkg/authserver/response"
)

func counterTotal(t *testing.T, rm metricdata.ResourceMetrics, name string) int64 {
	t.Helper()
	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok, "metric %s is not an int64 sum", name)
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
		}
	}
	return total
}

func TestMonitorTokenResponses(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	reader := sdkmetric.NewManualReader()
	meterProvider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	spans := tracetest.NewSpanRecorder()
	tracerProvider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(spans))

	processor, err := response.MonitorTokenResponses(meterProvider, tracerProvider, f.tokens)
	require.NoError(t, err)

	svc := f.client(t, "svc")
	_, err = processor.Process(context.Background(), &model.ValidatedTokenRequest{
		GrantType:          model.GrantTypeClientCredentials,
		Client:             svc,
		ValidatedResources: f.validate(t, svc, "api1"),
	})
	require.NoError(t, err)

	_, err = processor.Process(context.Background(), &model.ValidatedTokenRequest{
		GrantType: model.GrantTypePassword,
		Client:    svc,
		Subject:   alice(),
	})
	require.ErrorIs(t, err, fosite.ErrUnauthorizedClient)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	assert.Equal(t, int64(2), counterTotal(t, rm, "authcore_token_requests"))
	assert.Equal(t, int64(1), counterTotal(t, rm, "authcore_token_errors"))

	ended := spans.Ended()
	require.Len(t, ended, 2)
	assert.Equal(t, "token client_credentials", ended[0].Name())
	assert.Equal(t, codes.Unset, ended[0].Status().Code)
	assert.Equal(t, "token password", ended[1].Name())
	assert.Equal(t, codes.Error, ended[1].Status().Code)
}

func TestMonitorAuthorizeResponses(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	reader := sdkmetric.NewManualReader()
	spans := tracetest.NewSpanRecorder()
	processor, err := response.MonitorAuthorizeResponses(
		sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)),
		sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(spans)),
		f.authorize,
	)
	require.NoError(t, err)

	resp, err := processor.CreateResponse(context.Background(),
		f.authorizeRequest(t, "spa", model.ResponseTypeIDToken, model.ScopeOpenID))
	require.NoError(t, err)
	assert.NotEmpty(t, resp.IdentityToken)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	assert.Equal(t, int64(1), counterTotal(t, rm, "authcore_authorize_requests"))
	assert.Equal(t, int64(0), counterTotal(t, rm, "authcore_authorize_errors"))
	require.Len(t, spans.Ended(), 1)
}
