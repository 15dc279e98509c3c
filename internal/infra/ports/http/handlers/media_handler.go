package handlers

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/qrave1/LiveRoom/internal/domain"
	"github.com/qrave1/LiveRoom/internal/infra/ports/http/dto"
	"github.com/qrave1/LiveRoom/internal/usecase"
)

type MediaHandler struct {
	media usecase.MediaUsecase
}

func NewMediaHandler(media usecase.MediaUsecase) *MediaHandler {
	return &MediaHandler{media: media}
}

func (h *MediaHandler) State(c echo.Context) error {
	return c.JSON(http.StatusOK, dto.MediaStateResponse{Media: h.media.State()})
}

// RequestMicrophone - ошибка устройства не ошибка запроса: granted=false
func (h *MediaHandler) RequestMicrophone(c echo.Context) error {
	granted, err := h.media.RequestMicrophoneAccess(c.Request().Context())

	var devErr *domain.DeviceError
	if err != nil && !errors.As(err, &devErr) {
		return writeError(c, "request microphone", err)
	}

	resp := dto.MicrophoneAccessResponse{Granted: granted, Media: h.media.State()}
	if devErr != nil {
		resp.Reason = devErr.Kind.String()
	}

	return c.JSON(http.StatusOK, resp)
}

func (h *MediaHandler) ToggleMicrophone(c echo.Context) error {
	return c.JSON(http.StatusOK, dto.MediaStateResponse{Media: h.media.ToggleMicrophone()})
}

func (h *MediaHandler) ToggleCamera(c echo.Context) error {
	if err := h.media.ToggleCamera(c.Request().Context()); err != nil {
		return writeError(c, "toggle camera", err)
	}

	return c.JSON(http.StatusOK, dto.MediaStateResponse{Media: h.media.State()})
}

func (h *MediaHandler) ToggleScreenShare(c echo.Context) error {
	if err := h.media.ToggleScreenShare(c.Request().Context()); err != nil {
		return writeError(c, "toggle screen share", err)
	}

	return c.JSON(http.StatusOK, dto.MediaStateResponse{Media: h.media.State()})
}
