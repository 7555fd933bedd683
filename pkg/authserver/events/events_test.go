// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package events_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	clocktesting "k8s.io/utils/clock/testing"

	"github.com/stacklok/authcore/pkg/authserver/events"
	"github.com/stacklok/authcore/pkg/authserver/events/mocks"
)

var testNow = time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

func TestDefaultService_Raise(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)

	first := mocks.NewMockSink(ctrl)
	second := mocks.NewMockSink(ctrl)

	var seen *events.Event
	first.EXPECT().Persist(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, evt *events.Event) error {
		seen = evt
		return errors.New("sink down")
	})
	second.EXPECT().Persist(gomock.Any(), gomock.Any()).Return(nil)

	svc := events.NewService([]events.Sink{first, second}, events.WithClock(clocktesting.NewFakePassiveClock(testNow)))

	err := svc.Raise(context.Background(), events.TokenIssuedSuccess(events.EndpointToken, "web", "alice", "authorization_code", []string{"openid"}))
	require.ErrorContains(t, err, "sink down", "every sink is attempted and failures are reported")

	require.NotNil(t, seen)
	assert.NotEmpty(t, seen.ID)
	assert.Equal(t, testNow, seen.Timestamp)
	assert.Equal(t, events.TypeSuccess, seen.Type)

	require.Error(t, svc.Raise(context.Background(), nil))
}

func TestDefaultService_Options(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		opts     events.Options
		evt      *events.Event
		wantSent bool
	}{
		{name: "failure enabled", opts: events.Options{RaiseFailureEvents: true}, evt: events.TokenIssuedFailure("Token", "c", "password", "invalid_grant", ""), wantSent: true},
		{name: "failure disabled", opts: events.Options{RaiseSuccessEvents: true}, evt: events.TokenIssuedFailure("Token", "c", "password", "invalid_grant", "")},
		{name: "information disabled", opts: events.Options{RaiseSuccessEvents: true}, evt: events.RefreshTokenCreated("c", "s", time.Hour)},
		{name: "information enabled", opts: events.AllEvents, evt: events.RefreshTokenRotated("c", "s", 2), wantSent: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ctrl := gomock.NewController(t)
			sink := mocks.NewMockSink(ctrl)
			if tt.wantSent {
				sink.EXPECT().Persist(gomock.Any(), tt.evt).Return(nil)
			}
			svc := events.NewService([]events.Sink{sink}, events.WithOptions(tt.opts))
			require.NoError(t, svc.Raise(context.Background(), tt.evt))
		})
	}
}

func TestLogSink(t *testing.T) {
	t.Parallel()

	evt := events.ConsentGranted("web", "alice", []string{"openid", "api1"}, []string{"openid"}, true)
	require.NoError(t, events.LogSink{}.Persist(context.Background(), evt))
	assert.Equal(t, "true", evt.Details["remembered"])
	assert.Equal(t, "openid api1", evt.Details["requested_scopes"])

	require.NoError(t, events.LogSink{}.Persist(context.Background(), events.TokenIssuedFailure("Token", "c", "", "invalid_client", "")))
}

type fakePublisher struct {
	failures int
	calls    int
	keys     []string
	messages []amqp.Publishing
}

func (f *fakePublisher) PublishWithContext(
	_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing,
) error {
	f.calls++
	if f.calls <= f.failures {
		return errors.New("channel closed")
	}
	f.keys = append(f.keys, exchange+"/"+key)
	f.messages = append(f.messages, msg)
	return nil
}

func TestAMQPSink_Persist(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		failures  int
		wantErr   bool
		wantCalls int
	}{
		{name: "first attempt", failures: 0, wantCalls: 1},
		{name: "retried", failures: 2, wantCalls: 3},
		{name: "gives up", failures: 10, wantErr: true, wantCalls: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			pub := &fakePublisher{failures: tt.failures}
			sink := events.NewAMQPSink(pub, events.AMQPConfig{MaxRetries: 2, InitialInterval: time.Millisecond})

			evt := events.TokenRevoked("web", "alice", "refresh_token")
			evt.ID = "evt-1"
			err := sink.Persist(context.Background(), evt)

			assert.Equal(t, tt.wantCalls, pub.calls)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Len(t, pub.messages, 1)
			assert.Equal(t, []string{"authcore.events/authcore.token.success"}, pub.keys)

			msg := pub.messages[0]
			assert.Equal(t, "application/json", msg.ContentType)
			assert.Equal(t, amqp.Persistent, msg.DeliveryMode)
			assert.Equal(t, "evt-1", msg.MessageId)

			var decoded events.Event
			require.NoError(t, json.Unmarshal(msg.Body, &decoded))
			assert.Equal(t, events.NameTokenRevoked, decoded.Name)
			assert.Equal(t, "refresh_token", decoded.Details["token_type"])
		})
	}
}

func TestNewServiceFromConfig(t *testing.T) {
	t.Parallel()

	svc, closeFn, err := events.NewServiceFromConfig(nil, nil)
	require.NoError(t, err)
	assert.IsType(t, events.NopService{}, svc)
	require.NoError(t, closeFn())

	disabled := false
	cfg := &events.Config{Log: true, RaiseInformationEvents: &disabled}
	assert.Equal(t, events.Options{RaiseSuccessEvents: true, RaiseFailureEvents: true}, cfg.Options())

	svc, _, err = events.NewServiceFromConfig(cfg, clocktesting.NewFakePassiveClock(testNow))
	require.NoError(t, err)
	assert.IsType(t, &events.DefaultService{}, svc)

	_, _, err = events.NewServiceFromConfig(&events.Config{AMQP: &events.AMQPConfig{}}, nil)
	require.ErrorContains(t, err, "url is required")
}
