package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/qrave1/LiveRoom/internal/domain"
	"github.com/qrave1/LiveRoom/internal/infra/ports/http/dto"
	"github.com/qrave1/LiveRoom/internal/usecase"
)

type ModerationHandler struct {
	moderation usecase.ModerationUsecase
}

func NewModerationHandler(moderation usecase.ModerationUsecase) *ModerationHandler {
	return &ModerationHandler{moderation: moderation}
}

func (h *ModerationHandler) Mute(c echo.Context) error {
	return h.target(c, "mute participant", h.moderation.Mute)
}

func (h *ModerationHandler) Unmute(c echo.Context) error {
	return h.target(c, "unmute participant", h.moderation.Unmute)
}

func (h *ModerationHandler) Pick(c echo.Context) error {
	return h.target(c, "pick participant", h.moderation.Pick)
}

func (h *ModerationHandler) Unpick(c echo.Context) error {
	return h.target(c, "unpick participant", h.moderation.Unpick)
}

func (h *ModerationHandler) GiveFloor(c echo.Context) error {
	return h.target(c, "give floor", h.moderation.GiveFloor)
}

func (h *ModerationHandler) StopScreenShare(c echo.Context) error {
	return h.target(c, "stop screen share", h.moderation.StopScreenShare)
}

func (h *ModerationHandler) AcknowledgeHand(c echo.Context) error {
	return h.target(c, "acknowledge hand", h.moderation.AcknowledgeHand)
}

func (h *ModerationHandler) MuteAll(c echo.Context) error {
	affected, err := h.moderation.MuteAll(c.Request().Context())

	return h.respond(c, "mute all", dto.ModerationResponse{Affected: affected}, err)
}

func (h *ModerationHandler) UnmuteAll(c echo.Context) error {
	affected, err := h.moderation.UnmuteAll(c.Request().Context())

	return h.respond(c, "unmute all", dto.ModerationResponse{Affected: affected}, err)
}

func (h *ModerationHandler) RaiseHand(c echo.Context) error {
	err := h.moderation.RaiseHand(c.Request().Context())

	return h.respond(c, "raise hand", dto.ModerationResponse{}, err)
}

func (h *ModerationHandler) LowerHand(c echo.Context) error {
	err := h.moderation.LowerHand(c.Request().Context())

	return h.respond(c, "lower hand", dto.ModerationResponse{}, err)
}

func (h *ModerationHandler) target(
	c echo.Context,
	msg string,
	action func(ctx context.Context, participantID string) error,
) error {
	var req dto.ParticipantPath
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "invalid participant id"})
	}

	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: err.Error()})
	}

	err := action(c.Request().Context(), req.ID)

	return h.respond(c, msg, dto.ModerationResponse{
		ParticipantID: req.ID,
		Flags:         h.moderation.Flags(req.ID),
	}, err)
}

// respond: флаги уже применены, даже если команда не ушла в комнату
func (h *ModerationHandler) respond(c echo.Context, msg string, resp dto.ModerationResponse, err error) error {
	switch {
	case err == nil:
		resp.Propagated = true
		return c.JSON(http.StatusOK, resp)
	case errors.Is(err, domain.ErrModerationNotPropagated):
		return c.JSON(http.StatusAccepted, resp)
	default:
		return writeError(c, msg, err)
	}
}
