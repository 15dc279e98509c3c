package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/qrave1/LiveRoom/internal/application/config"
	"github.com/qrave1/LiveRoom/internal/infra/ports/http/dto"
)

type IceHandler struct {
	cfg *config.Config
}

func NewIceHandler(cfg *config.Config) *IceHandler {
	return &IceHandler{cfg: cfg}
}

// IceServers отдает STUN/TURN, с которыми сессия создает peer connection
func (h *IceHandler) IceServers(c echo.Context) error {
	return c.JSON(http.StatusOK, dto.IceServersResponse{ICEServers: h.cfg.ICEServers})
}
