package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/qrave1/LiveRoom/internal/usecase"
)

type SessionHandler struct {
	session usecase.SessionUsecase
}

func NewSessionHandler(session usecase.SessionUsecase) *SessionHandler {
	return &SessionHandler{session: session}
}

func (h *SessionHandler) Snapshot(c echo.Context) error {
	return c.JSON(http.StatusOK, h.session.Snapshot())
}

func (h *SessionHandler) Roster(c echo.Context) error {
	return c.JSON(http.StatusOK, h.session.Connection().Snapshot())
}

func (h *SessionHandler) Join(c echo.Context) error {
	if err := h.session.Join(c.Request().Context()); err != nil {
		return writeError(c, "join room", err)
	}

	return c.JSON(http.StatusOK, h.session.Snapshot())
}

func (h *SessionHandler) Leave(c echo.Context) error {
	if err := h.session.Leave(c.Request().Context()); err != nil {
		return writeError(c, "leave room", err)
	}

	return c.JSON(http.StatusOK, h.session.Snapshot())
}
