// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package response

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/stacklok/authcore/pkg/authserver/model"
)

const instrumentationName = "github.com/stacklok/authcore/pkg/authserver/response"

var (
	attrClientID     = attribute.Key("oauth.client_id")
	attrGrantType    = attribute.Key("oauth.grant_type")
	attrResponseType = attribute.Key("oauth.response_type")
	attrErrorCode    = attribute.Key("oauth.error")
	attrErrorType    = attribute.Key("error.type")
)

type instruments struct {
	tracer         trace.Tracer
	requestsTotal  metric.Int64Counter
	errorsTotal    metric.Int64Counter
	requestsLength metric.Float64Histogram
}

func newInstruments(
	meterProvider metric.MeterProvider,
	tracerProvider trace.TracerProvider,
	endpoint string,
) (*instruments, error) {
	meter := meterProvider.Meter(instrumentationName)

	requestsTotal, err := meter.Int64Counter(
		"authcore_"+endpoint+"_requests",
		metric.WithDescription("Total number of "+endpoint+" responses generated"))
	if err != nil {
		return nil, fmt.Errorf("failed to create requests total counter: %w", err)
	}
	errorsTotal, err := meter.Int64Counter(
		"authcore_"+endpoint+"_errors",
		metric.WithDescription("Total number of "+endpoint+" requests that failed"))
	if err != nil {
		return nil, fmt.Errorf("failed to create errors total counter: %w", err)
	}
	requestsLength, err := meter.Float64Histogram(
		"authcore_"+endpoint+"_duration",
		metric.WithDescription("Duration of "+endpoint+" response generation in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create duration histogram: %w", err)
	}

	return &instruments{
		tracer:         tracerProvider.Tracer(instrumentationName),
		requestsTotal:  requestsTotal,
		errorsTotal:    errorsTotal,
		requestsLength: requestsLength,
	}, nil
}

// record starts a span and counts the request. The returned function records
// the duration and the outcome held by err, and ends the span.
func (in *instruments) record(
	ctx context.Context,
	spanName string,
	attrs []attribute.KeyValue,
	err *error,
) (context.Context, func()) {
	ctx, span := in.tracer.Start(ctx, spanName,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attrs...),
	)

	metricAttrs := metric.WithAttributes(attrs...)
	start := time.Now()
	in.requestsTotal.Add(ctx, 1, metricAttrs)

	return ctx, func() {
		in.requestsLength.Record(ctx, time.Since(start).Seconds(), metricAttrs)
		if err != nil && *err != nil {
			errAttrs := metricAttrs
			if rfcErr, ok := protocolError(*err); ok {
				span.SetAttributes(attrErrorCode.String(rfcErr.ErrorField))
				errAttrs = metric.WithAttributes(append(attrs, attrErrorCode.String(rfcErr.ErrorField))...)
			}
			in.errorsTotal.Add(ctx, 1, errAttrs)
			span.RecordError(*err)
			span.SetAttributes(attrErrorType.String((*err).Error()))
			span.SetStatus(codes.Error, (*err).Error())
		}
		span.End()
	}
}

// MonitorTokenResponses decorates processor so every token response records
// a span and request, error and duration metrics.
func MonitorTokenResponses(
	meterProvider metric.MeterProvider,
	tracerProvider trace.TracerProvider,
	processor TokenProcessor,
) (TokenProcessor, error) {
	in, err := newInstruments(meterProvider, tracerProvider, "token")
	if err != nil {
		return nil, err
	}
	return telemetryTokenProcessor{processor: processor, instruments: in}, nil
}

type telemetryTokenProcessor struct {
	processor   TokenProcessor
	instruments *instruments
}

var _ TokenProcessor = telemetryTokenProcessor{}

// Process implements TokenProcessor.
func (t telemetryTokenProcessor) Process(
	ctx context.Context, req *model.ValidatedTokenRequest,
) (_ *TokenResponse, retErr error) {
	attrs := []attribute.KeyValue{
		attrClientID.String(req.Client.ClientID),
		attrGrantType.String(req.GrantType),
	}
	ctx, done := t.instruments.record(ctx, "token "+req.GrantType, attrs, &retErr)
	defer done()
	return t.processor.Process(ctx, req)
}

// MonitorAuthorizeResponses decorates processor so every authorize response
// records a span and request, error and duration metrics.
func MonitorAuthorizeResponses(
	meterProvider metric.MeterProvider,
	tracerProvider trace.TracerProvider,
	processor AuthorizeProcessor,
) (AuthorizeProcessor, error) {
	in, err := newInstruments(meterProvider, tracerProvider, "authorize")
	if err != nil {
		return nil, err
	}
	return telemetryAuthorizeProcessor{processor: processor, instruments: in}, nil
}

type telemetryAuthorizeProcessor struct {
	processor   AuthorizeProcessor
	instruments *instruments
}

var _ AuthorizeProcessor = telemetryAuthorizeProcessor{}

// CreateResponse implements AuthorizeProcessor.
func (t telemetryAuthorizeProcessor) CreateResponse(
	ctx context.Context, req *model.ValidatedAuthorizeRequest,
) (_ *AuthorizeResponse, retErr error) {
	attrs := []attribute.KeyValue{
		attrClientID.String(req.ClientID),
		attrResponseType.String(req.ResponseType),
	}
	ctx, done := t.instruments.record(ctx, "authorize", attrs, &retErr)
	defer done()
	return t.processor.CreateResponse(ctx, req)
}
