// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package grants

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/stacklok/authcore/pkg/authserver/model"
	"github.com/stacklok/authcore/pkg/authserver/storage"
)

// ErrUnknownUserCode is returned when a user code does not match a pending
// device authorization.
var ErrUnknownUserCode = errors.New("unknown or expired user code")

// ErrUserCodeCollision is returned when a user code is already pending.
var ErrUserCodeCollision = errors.New("user code collision")

// DeviceCodeGracePeriod keeps a device record past its lifetime so a late
// poll can be told expired_token instead of invalid_grant. The user code is
// not extended.
const DeviceCodeGracePeriod = 5 * time.Minute

// DeviceFlowStore persists device authorizations. Each one is reachable by
// its device code (the client polls with it) and by its user code (the user
// types it on a second device).
type DeviceFlowStore interface {
	// StoreDeviceAuthorization persists a new device authorization.
	StoreDeviceAuthorization(ctx context.Context, deviceCode, userCode string, data *model.DeviceCode) error

	// FindByUserCode returns the authorization, or nil when it does not exist.
	FindByUserCode(ctx context.Context, userCode string) (*model.DeviceCode, error)

	// FindByDeviceCode returns the authorization, or nil when it does not exist.
	FindByDeviceCode(ctx context.Context, deviceCode string) (*model.DeviceCode, error)

	// TakeByDeviceCode returns and removes the authorization.
	TakeByDeviceCode(ctx context.Context, deviceCode string) (*model.DeviceCode, error)

	// RemoveByDeviceCode deletes the authorization.
	RemoveByDeviceCode(ctx context.Context, deviceCode string) error

	// Authorize records the user's approval of the request behind userCode.
	Authorize(ctx context.Context, userCode string, subject *model.Subject, scopes []string, sessionID string) error

	// Deny records the user's refusal of the request behind userCode.
	Deny(ctx context.Context, userCode string) error
}

// deviceRecord is stored under the hashed device code.
type deviceRecord struct {
	UserCodeKey string            `json:"user_code_key"`
	Data        *model.DeviceCode `json:"data"`
}

// userCodeRecord is stored under the hashed user code and points at the
// device record. It holds no plaintext device code.
type userCodeRecord struct {
	DeviceCodeKey string `json:"device_code_key"`
}

// DeviceStore is the default DeviceFlowStore.
type DeviceStore struct {
	devices   typedStore[deviceRecord]
	userCodes typedStore[userCodeRecord]
}

// NewDeviceStore returns a DeviceStore over store.
func NewDeviceStore(store storage.GrantStore) *DeviceStore {
	return &DeviceStore{
		devices:   newTypedStore[deviceRecord](store, storage.DeviceCodeGrantType),
		userCodes: newTypedStore[userCodeRecord](store, storage.UserCodeGrantType),
	}
}

// StoreDeviceAuthorization implements DeviceFlowStore.
func (s *DeviceStore) StoreDeviceAuthorization(
	ctx context.Context, deviceCode, userCode string, data *model.DeviceCode,
) error {
	if deviceCode == "" || userCode == "" {
		return fmt.Errorf("device code and user code are required")
	}

	existing, err := s.userCodes.get(ctx, userCode)
	if err != nil {
		return err
	}
	if existing != nil {
		return ErrUserCodeCollision
	}

	deviceKey := s.devices.key(deviceCode)
	userKey := s.userCodes.key(userCode)
	expiration := expiresAfter(data.CreationTime, data.Lifetime)

	if err := s.devices.put(ctx, s.deviceRec(deviceKey, data), &deviceRecord{UserCodeKey: userKey, Data: data}); err != nil {
		return err
	}

	err = s.userCodes.put(ctx, record{
		key:          userKey,
		clientID:     data.ClientID,
		creationTime: data.CreationTime,
		expiration:   expiration,
	}, &userCodeRecord{DeviceCodeKey: deviceKey})
	if err != nil {
		_ = s.devices.removeByKey(ctx, deviceKey)
		return err
	}
	return nil
}

func (*DeviceStore) deviceRec(deviceKey string, data *model.DeviceCode) record {
	retention := data.Lifetime
	if retention > 0 {
		retention += DeviceCodeGracePeriod
	}
	return record{
		key:          deviceKey,
		clientID:     data.ClientID,
		subjectID:    data.Subject.GetSubjectID(),
		sessionID:    data.SessionID,
		creationTime: data.CreationTime,
		expiration:   expiresAfter(data.CreationTime, retention),
	}
}

// FindByUserCode implements DeviceFlowStore.
func (s *DeviceStore) FindByUserCode(ctx context.Context, userCode string) (*model.DeviceCode, error) {
	rec, _, err := s.findByUserCode(ctx, userCode)
	if err != nil || rec == nil {
		return nil, err
	}
	return rec.Data, nil
}

func (s *DeviceStore) findByUserCode(ctx context.Context, userCode string) (*deviceRecord, string, error) {
	pointer, err := s.userCodes.get(ctx, userCode)
	if err != nil || pointer == nil {
		return nil, "", err
	}
	rec, err := s.devices.getByKey(ctx, pointer.DeviceCodeKey)
	if err != nil || rec == nil || rec.Data == nil {
		return nil, "", err
	}
	return rec, pointer.DeviceCodeKey, nil
}

// FindByDeviceCode implements DeviceFlowStore.
func (s *DeviceStore) FindByDeviceCode(ctx context.Context, deviceCode string) (*model.DeviceCode, error) {
	rec, err := s.devices.get(ctx, deviceCode)
	if err != nil || rec == nil {
		return nil, err
	}
	return rec.Data, nil
}

// TakeByDeviceCode implements DeviceFlowStore.
func (s *DeviceStore) TakeByDeviceCode(ctx context.Context, deviceCode string) (*model.DeviceCode, error) {
	rec, err := s.devices.take(ctx, deviceCode)
	if err != nil || rec == nil {
		return nil, err
	}
	if err := s.userCodes.removeByKey(ctx, rec.UserCodeKey); err != nil {
		return nil, err
	}
	return rec.Data, nil
}

// RemoveByDeviceCode implements DeviceFlowStore.
func (s *DeviceStore) RemoveByDeviceCode(ctx context.Context, deviceCode string) error {
	_, err := s.TakeByDeviceCode(ctx, deviceCode)
	return err
}

// Authorize implements DeviceFlowStore.
func (s *DeviceStore) Authorize(
	ctx context.Context, userCode string, subject *model.Subject, scopes []string, sessionID string,
) error {
	if !subject.IsAuthenticated() {
		return fmt.Errorf("device authorization requires an authenticated subject")
	}
	return s.update(ctx, userCode, func(data *model.DeviceCode) {
		data.IsAuthorized = true
		data.IsDenied = false
		data.Subject = subject
		data.AuthorizedScopes = scopes
		data.SessionID = sessionID
	})
}

// Deny implements DeviceFlowStore.
func (s *DeviceStore) Deny(ctx context.Context, userCode string) error {
	return s.update(ctx, userCode, func(data *model.DeviceCode) {
		data.IsAuthorized = false
		data.IsDenied = true
	})
}

func (s *DeviceStore) update(ctx context.Context, userCode string, mutate func(*model.DeviceCode)) error {
	rec, deviceKey, err := s.findByUserCode(ctx, userCode)
	if err != nil {
		return err
	}
	if rec == nil {
		return ErrUnknownUserCode
	}
	mutate(rec.Data)
	return s.devices.put(ctx, s.deviceRec(deviceKey, rec.Data), rec)
}

var _ DeviceFlowStore = (*DeviceStore)(nil)
