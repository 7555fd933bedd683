// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_Error(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{
			name: "error with cause",
			err: &Error{
				Type:    ErrInvalidArgument,
				Message: "test message",
				Cause:   errors.New("underlying error"),
			},
			want: "invalid_argument: test message: underlying error",
		},
		{
			name: "error without cause",
			err: &Error{
				Type:    ErrConfiguration,
				Message: "no signing credential",
			},
			want: "configuration: no signing credential",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestError_Unwrap(t *testing.T) {
	t.Parallel()

	cause := errors.New("underlying error")
	err := NewInternalError("test message", cause)
	assert.Same(t, cause, err.Unwrap())
	assert.ErrorIs(t, err, cause)

	assert.Nil(t, NewInternalError("test message", nil).Unwrap())
}

func TestTypeChecks(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		err       error
		check     func(error) bool
		wantMatch bool
	}{
		{"invalid argument", NewInvalidArgumentError("m", nil), IsInvalidArgument, true},
		{"configuration", NewConfigurationError("m", nil), IsConfiguration, true},
		{"storage", NewStorageError("m", nil), IsStorage, true},
		{"internal", NewInternalError("m", nil), IsInternal, true},
		{"wrapped configuration", fmt.Errorf("outer: %w", NewConfigurationError("m", nil)), IsConfiguration, true},
		{"mismatched type", NewStorageError("m", nil), IsConfiguration, false},
		{"plain error", errors.New("plain"), IsInternal, false},
		{"nil error", nil, IsInternal, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.wantMatch, tt.check(tt.err))
		})
	}
}

func TestIsFatal(t *testing.T) {
	t.Parallel()

	assert.True(t, IsFatal(NewConfigurationError("m", nil)))
	assert.True(t, IsFatal(fmt.Errorf("wrap: %w", NewInternalError("m", nil))))
	assert.False(t, IsFatal(errors.New("plain")))
}
