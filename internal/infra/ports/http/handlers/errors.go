package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/qrave1/LiveRoom/internal/application/constant"
	"github.com/qrave1/LiveRoom/internal/domain"
	"github.com/qrave1/LiveRoom/internal/infra/ports/http/dto"
)

var conflictErrors = []error{
	domain.ErrAlreadyConnected,
	domain.ErrNotConnected,
	domain.ErrNoCredential,
	domain.ErrCredentialExpired,
	domain.ErrConnectCanceled,
	domain.ErrRequestDiscarded,
	domain.ErrDeviceBusy,
}

// errorStatus переводит доменные ошибки в HTTP статус
func errorStatus(err error) int {
	var devErr *domain.DeviceError
	if errors.As(err, &devErr) {
		switch devErr.Kind {
		case domain.DevicePermissionDenied:
			return http.StatusForbidden
		case domain.DeviceNotFound:
			return http.StatusNotFound
		case domain.DeviceAborted:
			return http.StatusRequestTimeout
		default:
			return http.StatusServiceUnavailable
		}
	}

	for _, target := range conflictErrors {
		if errors.Is(err, target) {
			return http.StatusConflict
		}
	}

	switch {
	case errors.Is(err, domain.ErrParticipantNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrNotPermitted):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrCannotModerateSelf):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrConnectionClosed), errors.Is(err, domain.ErrMediaClosed):
		return http.StatusGone
	case errors.Is(err, domain.ErrCredentialFailure), errors.Is(err, domain.ErrConnectionFailure):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(c echo.Context, msg string, err error) error {
	status := errorStatus(err)

	if status >= http.StatusInternalServerError {
		slog.Error(msg, slog.Any(constant.Error, err))
	} else {
		slog.Warn(msg, slog.Any(constant.Error, err))
	}

	return c.JSON(status, dto.ErrorResponse{Error: err.Error()})
}
