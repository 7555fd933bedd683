// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package grants

import (
	"encoding/json"
	"fmt"
)

// PayloadVersion is the envelope version written by Serialize.
const PayloadVersion = 1

// envelope wraps every persisted payload so the format can evolve.
type envelope struct {
	Version int             `json:"version"`
	Payload json.RawMessage `json:"payload"`
}

// Serialize encodes v into a versioned envelope.
func Serialize(v any) ([]byte, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	data, err := json.Marshal(envelope{Version: PayloadVersion, Payload: payload})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal envelope: %w", err)
	}
	return data, nil
}

// Deserialize decodes an envelope written by Serialize into v.
func Deserialize(data []byte, v any) error {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("failed to unmarshal envelope: %w", err)
	}
	if env.Version < 1 || env.Version > PayloadVersion {
		return fmt.Errorf("unsupported payload version %d", env.Version)
	}
	if err := json.Unmarshal(env.Payload, v); err != nil {
		return fmt.Errorf("failed to unmarshal payload: %w", err)
	}
	return nil
}
