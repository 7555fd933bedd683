// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package events

import (
	"context"

	"github.com/stacklok/authcore/pkg/logger"
)

// LogSink writes events to the process logger. Failure events are logged at
// warn level, everything else at info.
type LogSink struct{}

// Persist implements Sink.
func (LogSink) Persist(_ context.Context, evt *Event) error {
	kv := []any{
		"id", evt.ID,
		"category", string(evt.Category),
		"type", string(evt.Type),
		"clientID", evt.ClientID,
	}
	if evt.SubjectID != "" {
		kv = append(kv, "subject", evt.SubjectID)
	}
	if evt.GrantType != "" {
		kv = append(kv, "grantType", evt.GrantType)
	}
	if evt.Endpoint != "" {
		kv = append(kv, "endpoint", evt.Endpoint)
	}
	if len(evt.Scopes) > 0 {
		kv = append(kv, "scopes", evt.Scopes)
	}
	if evt.Error != "" {
		kv = append(kv, "error", evt.Error, "errorDescription", evt.ErrorDescription)
	}
	for k, v := range evt.Details {
		kv = append(kv, k, v)
	}

	if evt.Type == TypeFailure {
		logger.Warnw(evt.Name, kv...)
		return nil
	}
	logger.Infow(evt.Name, kv...)
	return nil
}

var _ Sink = LogSink{}
