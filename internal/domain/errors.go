package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrCredentialFailure - не удалось получить креды, можно повторить
	ErrCredentialFailure = errors.New("credential failure")
	// ErrConnectionFailure - подключение не удалось, инстанс менеджера больше не пригоден
	ErrConnectionFailure = errors.New("connection failure")
	ErrConnectionClosed  = errors.New("connection manager is closed")
	ErrNotConnected      = errors.New("not connected")
	ErrAlreadyConnected  = errors.New("already connected")
	ErrNoCredential      = errors.New("no credential held")
	ErrCredentialExpired = errors.New("credential expired")
	ErrConnectCanceled   = errors.New("connect canceled by disconnect")
	ErrRequestDiscarded  = errors.New("credential request discarded")

	ErrDeviceBusy  = errors.New("device operation already in progress")
	ErrMediaClosed = errors.New("media controller is closed")

	ErrParticipantNotFound     = errors.New("participant not found")
	ErrNotPermitted            = errors.New("not permitted for this role")
	ErrCannotModerateSelf      = errors.New("cannot moderate the local participant")
	ErrDataChannelUnavailable  = errors.New("transport has no data channel")
	ErrModerationNotPropagated = errors.New("moderation applied locally but not propagated")
)

type DeviceErrorKind int

const (
	DevicePermissionDenied DeviceErrorKind = iota + 1
	DeviceNotFound
	DeviceAborted
	DeviceUnavailable
)

func (k DeviceErrorKind) String() string {
	switch k {
	case DevicePermissionDenied:
		return "permission denied"
	case DeviceNotFound:
		return "device not found"
	case DeviceAborted:
		return "aborted"
	case DeviceUnavailable:
		return "device unavailable"
	default:
		return "unknown device error"
	}
}

// DeviceError - ошибка доступа к устройству. Все виды восстановимы пользователем.
type DeviceError struct {
	Kind   DeviceErrorKind
	Device TrackSource
	Err    error
}

func (e *DeviceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Device, e.Kind, e.Err)
	}

	return fmt.Sprintf("%s: %s", e.Device, e.Kind)
}

func (e *DeviceError) Unwrap() error {
	return e.Err
}

// PermissionDenied - удобная проверка для вызывающих
func (e *DeviceError) PermissionDenied() bool {
	return e.Kind == DevicePermissionDenied
}
